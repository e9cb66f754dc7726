package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/model"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// CreateGeneration - generations 레코드 생성
func (c *Client) CreateGeneration(ctx context.Context, gen *model.Generation) (*model.Generation, error) {
	log.Printf("💾 Creating generation: product=%s collection=%s", gen.ProductID, gen.CollectionID)

	insertData := map[string]interface{}{
		"product_id":              gen.ProductID,
		"collection_id":           gen.CollectionID,
		"user_id":                 gen.UserID,
		"generation_type":         gen.GenerationType,
		"aspect_ratio":            gen.AspectRatio,
		"resolution":              gen.Resolution,
		"merged_prompts":          gen.MergedPrompts,
		"visuals":                 gen.Visuals,
		"status":                  gen.Status,
		"progress_percent":        gen.ProgressPercent,
		"completed_visuals_count": gen.CompletedVisualsCount,
	}

	data, _, err := c.supabase.From("generations").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to insert generation: %w", err)
	}

	var generations []model.Generation
	if err := json.Unmarshal(data, &generations); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}

	if len(generations) == 0 {
		return nil, fmt.Errorf("no generation record returned")
	}

	log.Printf("✅ Generation created: %s", generations[0].ID)
	return &generations[0], nil
}

// FetchGeneration - generations 단건 조회
func (c *Client) FetchGeneration(ctx context.Context, generationID string) (*model.Generation, error) {
	var generations []model.Generation

	data, _, err := c.supabase.From("generations").
		Select("*", "exact", false).
		Eq("id", generationID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}

	if err := json.Unmarshal(data, &generations); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}

	if len(generations) == 0 {
		return nil, nil
	}

	return &generations[0], nil
}

// ListGenerations - 사용자의 generations 목록 조회 (필터 + 페이지네이션)
func (c *Client) ListGenerations(ctx context.Context, userID string, filters model.GenerationFilters) ([]model.Generation, error) {
	query := c.supabase.From("generations").
		Select("*", "exact", false).
		Eq("user_id", userID)

	if filters.ProductID != "" {
		query = query.Eq("product_id", filters.ProductID)
	}
	if filters.CollectionID != "" {
		query = query.Eq("collection_id", filters.CollectionID)
	}
	if filters.GenerationType != "" {
		query = query.Eq("generation_type", filters.GenerationType)
	}
	if filters.Status != "" {
		query = query.Eq("status", filters.Status)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	from := (page - 1) * limit
	to := from + limit - 1

	data, _, err := query.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(from, to, "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}

	var generations []model.Generation
	if err := json.Unmarshal(data, &generations); err != nil {
		return nil, fmt.Errorf("failed to parse generations response: %w", err)
	}

	return generations, nil
}

// UpdateGenerationStatus - Generation 상태 업데이트 (started_at/completed_at 자동 기록)
func (c *Client) UpdateGenerationStatus(ctx context.Context, generationID string, status string) error {
	log.Printf("📝 Updating generation %s status to: %s", generationID, status)

	updateData := map[string]interface{}{
		"status": status,
	}

	if status == model.StatusProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.StatusCompleted || status == model.StatusFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From("generations").
		Update(updateData, "", "").
		Eq("id", generationID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update generation status: %w", err)
	}

	log.Printf("✅ Generation %s status updated to: %s", generationID, status)
	return nil
}

// UpdateGenerationFields - Generation 임의 컬럼 업데이트
func (c *Client) UpdateGenerationFields(ctx context.Context, generationID string, fields map[string]interface{}) error {
	_, _, err := c.supabase.From("generations").
		Update(fields, "", "").
		Eq("id", generationID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update generation fields: %w", err)
	}
	return nil
}

// UpdateVisualSlot - visuals 배열에서 해당 slot만 교체하고 진행률 재계산.
// 쓰기 실패 시 1회 재시도.
func (c *Client) UpdateVisualSlot(ctx context.Context, generationID string, visual model.Visual) error {
	gen, err := c.FetchGeneration(ctx, generationID)
	if err != nil {
		return err
	}
	if gen == nil {
		return fmt.Errorf("generation not found: %s", generationID)
	}

	replaced := false
	for i := range gen.Visuals {
		if gen.Visuals[i].Type == visual.Type {
			gen.Visuals[i] = visual
			replaced = true
			break
		}
	}
	if !replaced {
		gen.Visuals = append(gen.Visuals, visual)
	}

	completed := 0
	for _, v := range gen.Visuals {
		if v.Status == model.StatusCompleted {
			completed++
		}
	}

	updateData := map[string]interface{}{
		"visuals":                 gen.Visuals,
		"completed_visuals_count": completed,
		"progress_percent":        model.ProgressPercent(gen.Visuals),
		"current_step":            visual.Type,
	}

	_, _, err = c.supabase.From("generations").
		Update(updateData, "", "").
		Eq("id", generationID).
		Execute()

	if err != nil {
		log.Printf("⚠️ Visual slot update failed, retrying once: %v", err)
		_, _, err = c.supabase.From("generations").
			Update(updateData, "", "").
			Eq("id", generationID).
			Execute()
	}

	if err != nil {
		return fmt.Errorf("failed to update visual slot %s: %w", visual.Type, err)
	}

	log.Printf("📊 Generation %s slot %s → %s (%d completed)", generationID, visual.Type, visual.Status, completed)
	return nil
}

// UpdateMergedPrompts - merged_prompts JSONB 교체
func (c *Client) UpdateMergedPrompts(ctx context.Context, generationID string, prompts map[string]model.MergedPrompt) error {
	updateData := map[string]interface{}{
		"merged_prompts": prompts,
	}

	_, _, err := c.supabase.From("generations").
		Update(updateData, "", "").
		Eq("id", generationID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update merged prompts: %w", err)
	}

	log.Printf("✅ Generation %s merged_prompts updated (%d slots)", generationID, len(prompts))
	return nil
}

// ResetGeneration - 재생성을 위해 결과/진행 상태 초기화
func (c *Client) ResetGeneration(ctx context.Context, generationID string, visuals []model.Visual) error {
	updateData := map[string]interface{}{
		"status":                  model.StatusPending,
		"visuals":                 visuals,
		"progress_percent":        0,
		"completed_visuals_count": 0,
		"current_step":            nil,
		"started_at":              nil,
		"completed_at":            nil,
	}

	_, _, err := c.supabase.From("generations").
		Update(updateData, "", "").
		Eq("id", generationID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to reset generation: %w", err)
	}

	log.Printf("🔄 Generation %s reset to pending", generationID)
	return nil
}

// FetchDAPreset - da_presets 단건 조회
func (c *Client) FetchDAPreset(ctx context.Context, presetID string) (*model.DAPreset, error) {
	var presets []model.DAPreset

	data, _, err := c.supabase.From("da_presets").
		Select("*", "exact", false).
		Eq("id", presetID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query da_presets: %w", err)
	}

	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse preset response: %w", err)
	}

	if len(presets) == 0 {
		return nil, nil
	}

	return &presets[0], nil
}

// FetchDefaultDAPreset - 기본 DA 프리셋 조회
func (c *Client) FetchDefaultDAPreset(ctx context.Context) (*model.DAPreset, error) {
	var presets []model.DAPreset

	data, _, err := c.supabase.From("da_presets").
		Select("*", "exact", false).
		Eq("is_default", strconv.FormatBool(true)).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query default preset: %w", err)
	}

	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse preset response: %w", err)
	}

	if len(presets) == 0 {
		return nil, nil
	}

	return &presets[0], nil
}
