package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/postgrest-go"

	"modeshoot-server/modules/common/model"
)

// CreateAdRecreation - ad_recreations 레코드 생성
func (c *Client) CreateAdRecreation(ctx context.Context, ad *model.AdRecreation) (*model.AdRecreation, error) {
	insertData := map[string]interface{}{
		"user_id":                ad.UserID,
		"competitor_ad_url":      ad.CompetitorAdURL,
		"brand_brief":            ad.BrandBrief,
		"brand_reference_images": ad.BrandReferenceImages,
		"variations_count":       ad.VariationsCount,
		"status":                 ad.Status,
	}

	data, _, err := c.supabase.From("ad_recreations").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to insert ad recreation: %w", err)
	}

	var ads []model.AdRecreation
	if err := json.Unmarshal(data, &ads); err != nil {
		return nil, fmt.Errorf("failed to parse ad recreation response: %w", err)
	}

	if len(ads) == 0 {
		return nil, fmt.Errorf("no ad recreation record returned")
	}

	log.Printf("✅ Ad recreation created: %s", ads[0].ID)
	return &ads[0], nil
}

// FetchAdRecreation - ad_recreations 단건 조회
func (c *Client) FetchAdRecreation(ctx context.Context, adID string) (*model.AdRecreation, error) {
	var ads []model.AdRecreation

	data, _, err := c.supabase.From("ad_recreations").
		Select("*", "exact", false).
		Eq("id", adID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query ad_recreations: %w", err)
	}

	if err := json.Unmarshal(data, &ads); err != nil {
		return nil, fmt.Errorf("failed to parse ad recreation response: %w", err)
	}

	if len(ads) == 0 {
		return nil, nil
	}

	return &ads[0], nil
}

// UpdateAdRecreationFields - ad_recreations 임의 컬럼 업데이트
func (c *Client) UpdateAdRecreationFields(ctx context.Context, adID string, fields map[string]interface{}) error {
	_, _, err := c.supabase.From("ad_recreations").
		Update(fields, "", "").
		Eq("id", adID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update ad recreation: %w", err)
	}
	return nil
}

// ListAdRecreations - 사용자 광고 재해석 목록 (페이지네이션)
func (c *Client) ListAdRecreations(ctx context.Context, userID string, page, limit int) ([]model.AdRecreation, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	from := (page - 1) * limit
	to := from + limit - 1

	data, _, err := c.supabase.From("ad_recreations").
		Select("*", "exact", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(from, to, "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query ad_recreations: %w", err)
	}

	var ads []model.AdRecreation
	if err := json.Unmarshal(data, &ads); err != nil {
		return nil, fmt.Errorf("failed to parse ad recreations response: %w", err)
	}

	return ads, nil
}
