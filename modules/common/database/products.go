package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/postgrest-go"

	"modeshoot-server/modules/common/model"
)

// CreateProduct - products 레코드 생성
func (c *Client) CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error) {
	insertData := map[string]interface{}{
		"collection_id":    product.CollectionID,
		"user_id":          product.UserID,
		"name":             product.Name,
		"front_image_url":  product.FrontImageURL,
		"back_image_url":   product.BackImageURL,
		"reference_images": product.ReferenceImages,
	}
	if product.BrandID != "" {
		insertData["brand_id"] = product.BrandID
	}

	data, _, err := c.supabase.From("products").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("insert returned no rows")
	}

	log.Printf("✅ Product created: %s (%s)", products[0].ID, products[0].Name)
	return &products[0], nil
}

// ListProducts - 사용자 제품 목록 (컬렉션 필터 선택)
func (c *Client) ListProducts(ctx context.Context, userID, collectionID string) ([]model.Product, error) {
	query := c.supabase.From("products").
		Select("*", "exact", false).
		Eq("user_id", userID)

	if collectionID != "" {
		query = query.Eq("collection_id", collectionID)
	}

	data, _, err := query.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse products response: %w", err)
	}

	return products, nil
}

// FetchProduct - products 단건 조회
func (c *Client) FetchProduct(ctx context.Context, productID string) (*model.Product, error) {
	var products []model.Product

	data, _, err := c.supabase.From("products").
		Select("*", "exact", false).
		Eq("id", productID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse product response: %w", err)
	}

	if len(products) == 0 {
		return nil, nil
	}

	return &products[0], nil
}

// UpdateProductAnalysis - 분석 결과 JSONB 저장 (final = analyzed + overrides)
func (c *Client) UpdateProductAnalysis(ctx context.Context, productID string, analyzed, final map[string]interface{}) error {
	updateData := map[string]interface{}{
		"analyzed_product_json": analyzed,
		"final_product_json":    final,
	}

	_, _, err := c.supabase.From("products").
		Update(updateData, "", "").
		Eq("id", productID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update product analysis: %w", err)
	}

	log.Printf("✅ Product %s analysis updated", productID)
	return nil
}

// UpdateProductOverrides - 수동 override JSONB 저장
func (c *Client) UpdateProductOverrides(ctx context.Context, productID string, overrides, final map[string]interface{}) error {
	updateData := map[string]interface{}{
		"manual_product_overrides": overrides,
		"final_product_json":       final,
	}

	_, _, err := c.supabase.From("products").
		Update(updateData, "", "").
		Eq("id", productID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update product overrides: %w", err)
	}

	log.Printf("✅ Product %s overrides updated", productID)
	return nil
}

// UpdateProductFields - 기본 필드 부분 업데이트
func (c *Client) UpdateProductFields(ctx context.Context, productID string, fields map[string]interface{}) error {
	_, _, err := c.supabase.From("products").
		Update(fields, "", "").
		Eq("id", productID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	return nil
}

// DeleteProduct - products 레코드 삭제
func (c *Client) DeleteProduct(ctx context.Context, productID string) error {
	_, _, err := c.supabase.From("products").
		Delete("", "").
		Eq("id", productID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	log.Printf("🗑️ Product deleted: %s", productID)
	return nil
}
