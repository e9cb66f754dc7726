package model

import (
	"math"
	"time"
)

// Generation / Visual 상태 상수
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Visual slot 상수 - 한 Generation이 생성하는 6개 컷
const (
	SlotDuo          = "duo"
	SlotSolo         = "solo"
	SlotFlatlayFront = "flatlay_front"
	SlotFlatlayBack  = "flatlay_back"
	SlotCloseupFront = "closeup_front"
	SlotCloseupBack  = "closeup_back"
)

// VisualSlots - slot 순서 고정 (archive 경로, visual index가 이 순서를 따름)
var VisualSlots = []string{
	SlotDuo,
	SlotSolo,
	SlotFlatlayFront,
	SlotFlatlayBack,
	SlotCloseupFront,
	SlotCloseupBack,
}

// Generation type 상수
const (
	GenerationTypeFullSet      = "full_set"
	GenerationTypeAdRecreation = "ad_recreation"
)

// PromptOutput - 생성 출력 설정
type PromptOutput struct {
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspect_ratio"`
}

// MergedPrompt - slot별 최종 병합 프롬프트
type MergedPrompt struct {
	VisualID       string       `json:"visual_id"`
	ShotType       string       `json:"shot_type"`
	ModelType      string       `json:"model_type"`
	Prompt         string       `json:"prompt"`
	NegativePrompt string       `json:"negative_prompt"`
	Output         PromptOutput `json:"output"`
	Editable       bool         `json:"editable"`
	LastEditedAt   *time.Time   `json:"last_edited_at,omitempty"`
}

// Visual - generations.visuals JSONB 배열의 한 항목 (slot별 결과)
type Visual struct {
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Prompt      string     `json:"prompt,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	ImagePath   string     `json:"image_path,omitempty"`
	MimeType    string     `json:"mime_type,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Terminal - slot이 종료 상태인지
func (v Visual) Terminal() bool {
	return v.Status == StatusCompleted || v.Status == StatusFailed
}

// Generation - generations 테이블 구조
type Generation struct {
	ID                    string                  `json:"id"`
	ProductID             string                  `json:"product_id"`
	CollectionID          string                  `json:"collection_id"`
	UserID                string                  `json:"user_id"`
	GenerationType        string                  `json:"generation_type"`
	AspectRatio           string                  `json:"aspect_ratio"`
	Resolution            string                  `json:"resolution"`
	ModelOverride         string                  `json:"model_override,omitempty"`
	MergedPrompts         map[string]MergedPrompt `json:"merged_prompts,omitempty"`
	Visuals               []Visual                `json:"visuals,omitempty"`
	Status                string                  `json:"status"`
	CurrentStep           string                  `json:"current_step,omitempty"`
	ProgressPercent       int                     `json:"progress_percent"`
	CompletedVisualsCount int                     `json:"completed_visuals_count"`
	CreatedAt             time.Time               `json:"created_at"`
	StartedAt             *time.Time              `json:"started_at,omitempty"`
	CompletedAt           *time.Time              `json:"completed_at,omitempty"`
}

// CompletedCount - completed 상태 slot 개수
func (g *Generation) CompletedCount() int {
	count := 0
	for _, v := range g.Visuals {
		if v.Status == StatusCompleted {
			count++
		}
	}
	return count
}

// Progress - 진행률 (completed / total, 반올림 퍼센트). total 0이면 0.
func (g *Generation) Progress() int {
	return ProgressPercent(g.Visuals)
}

// AllTerminal - 모든 slot이 종료 상태인지 (aggregate 판정은 전체 join 후에만)
func (g *Generation) AllTerminal() bool {
	if len(g.Visuals) == 0 {
		return false
	}
	for _, v := range g.Visuals {
		if !v.Terminal() {
			return false
		}
	}
	return true
}

// ProgressPercent - visuals 배열에서 진행률 계산
func ProgressPercent(visuals []Visual) int {
	if len(visuals) == 0 {
		return 0
	}
	completed := 0
	for _, v := range visuals {
		if v.Status == StatusCompleted {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(visuals)) * 100))
}

// AggregateStatus - 모든 slot 종료 후 최종 상태 (하나라도 성공이면 completed)
func AggregateStatus(visuals []Visual) string {
	for _, v := range visuals {
		if v.Status == StatusCompleted {
			return StatusCompleted
		}
	}
	return StatusFailed
}

// GenerationFilters - 목록 조회 필터
type GenerationFilters struct {
	ProductID      string
	CollectionID   string
	GenerationType string
	Status         string
	Page           int
	Limit          int
}

// Product - products 테이블 구조
type Product struct {
	ID                     string                 `json:"id"`
	CollectionID           string                 `json:"collection_id"`
	BrandID                string                 `json:"brand_id,omitempty"`
	UserID                 string                 `json:"user_id"`
	Name                   string                 `json:"name"`
	FrontImageURL          string                 `json:"front_image_url,omitempty"`
	BackImageURL           string                 `json:"back_image_url,omitempty"`
	ReferenceImages        []string               `json:"reference_images,omitempty"`
	AnalyzedProductJSON    map[string]interface{} `json:"analyzed_product_json,omitempty"`
	ManualProductOverrides map[string]interface{} `json:"manual_product_overrides,omitempty"`
	FinalProductJSON       map[string]interface{} `json:"final_product_json,omitempty"`
	CreatedAt              time.Time              `json:"created_at"`
}

// Collection - collections 테이블 구조 (DA preset 연결 포함)
type Collection struct {
	ID          string                 `json:"id"`
	BrandID     string                 `json:"brand_id,omitempty"`
	UserID      string                 `json:"user_id"`
	Name        string                 `json:"name"`
	DAPresetID  string                 `json:"da_preset_id,omitempty"`
	DAOverrides map[string]interface{} `json:"da_overrides,omitempty"`
	FinalDAJSON map[string]interface{} `json:"final_da_json,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// DAPreset - da_presets 테이블 구조 (Art Direction 프리셋)
type DAPreset struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Code        string                 `json:"code"`
	Description string                 `json:"description,omitempty"`
	IsDefault   bool                   `json:"is_default"`
	ImageURL    string                 `json:"image_url,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// AdRecreation 상태 상수
const (
	AdStatusUploaded   = "uploaded"
	AdStatusAnalyzing  = "analyzing"
	AdStatusAnalyzed   = "analyzed"
	AdStatusGenerating = "generating"
	AdStatusCompleted  = "completed"
	AdStatusFailed     = "failed"
)

// AdRecreation - ad_recreations 테이블 구조 (경쟁사 광고 재현 워크플로우)
type AdRecreation struct {
	ID                   string                 `json:"id"`
	UserID               string                 `json:"user_id"`
	CompetitorAdURL      string                 `json:"competitor_ad_url"`
	BrandBrief           string                 `json:"brand_brief,omitempty"`
	BrandReferenceImages []string               `json:"brand_reference_images,omitempty"`
	VariationsCount      int                    `json:"variations_count"`
	Analysis             map[string]interface{} `json:"analysis,omitempty"`
	Variations           []Visual               `json:"variations,omitempty"`
	Status               string                 `json:"status"`
	CreatedAt            time.Time              `json:"created_at"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
}
