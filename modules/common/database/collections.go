package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/postgrest-go"

	"modeshoot-server/modules/common/model"
)

// FetchCollection - collections 단건 조회
func (c *Client) FetchCollection(ctx context.Context, collectionID string) (*model.Collection, error) {
	var collections []model.Collection

	data, _, err := c.supabase.From("collections").
		Select("*", "exact", false).
		Eq("id", collectionID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}

	if err := json.Unmarshal(data, &collections); err != nil {
		return nil, fmt.Errorf("failed to parse collection response: %w", err)
	}

	if len(collections) == 0 {
		return nil, nil
	}

	return &collections[0], nil
}

// UpdateCollectionDA - DA 프리셋 연결 + 최종 DA JSONB 저장
func (c *Client) UpdateCollectionDA(ctx context.Context, collectionID string, presetID string, overrides, final map[string]interface{}) error {
	updateData := map[string]interface{}{
		"da_preset_id":  presetID,
		"da_overrides":  overrides,
		"final_da_json": final,
	}

	_, _, err := c.supabase.From("collections").
		Update(updateData, "", "").
		Eq("id", collectionID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update collection DA: %w", err)
	}

	log.Printf("✅ Collection %s DA updated (preset: %s)", collectionID, presetID)
	return nil
}

// ListDAPresets - 사용 가능한 DA 프리셋 전체 조회
func (c *Client) ListDAPresets(ctx context.Context) ([]model.DAPreset, error) {
	var presets []model.DAPreset

	data, _, err := c.supabase.From("da_presets").
		Select("*", "exact", false).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query da_presets: %w", err)
	}

	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets response: %w", err)
	}

	return presets, nil
}

// CreateCollection - collections 레코드 생성
func (c *Client) CreateCollection(ctx context.Context, collection *model.Collection) (*model.Collection, error) {
	insertData := map[string]interface{}{
		"user_id": collection.UserID,
		"name":    collection.Name,
	}
	if collection.BrandID != "" {
		insertData["brand_id"] = collection.BrandID
	}

	data, _, err := c.supabase.From("collections").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to insert collection: %w", err)
	}

	var collections []model.Collection
	if err := json.Unmarshal(data, &collections); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("insert returned no rows")
	}

	log.Printf("✅ Collection created: %s (%s)", collections[0].ID, collections[0].Name)
	return &collections[0], nil
}

// ListCollections - 사용자 컬렉션 목록
func (c *Client) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	data, _, err := c.supabase.From("collections").
		Select("*", "exact", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}

	var collections []model.Collection
	if err := json.Unmarshal(data, &collections); err != nil {
		return nil, fmt.Errorf("failed to parse collections response: %w", err)
	}

	return collections, nil
}

// UpdateCollectionFields - 기본 필드 부분 업데이트
func (c *Client) UpdateCollectionFields(ctx context.Context, collectionID string, fields map[string]interface{}) error {
	_, _, err := c.supabase.From("collections").
		Update(fields, "", "").
		Eq("id", collectionID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}

	return nil
}

// DeleteCollection - collections 레코드 삭제
func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	_, _, err := c.supabase.From("collections").
		Delete("", "").
		Eq("id", collectionID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	log.Printf("🗑️ Collection deleted: %s", collectionID)
	return nil
}
