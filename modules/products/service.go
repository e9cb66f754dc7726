package products

import (
	"context"
	"errors"
	"fmt"
	"log"

	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/prompt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("bad request")
)

const analysisPrompt = `Analyze this fashion product from the provided photos.
Return a JSON object with these fields:
type (garment category), color (primary color name), color_hex,
fabric (material description), details (array of notable construction details),
logos (placement and description of any logos), fit (silhouette description).`

// Store - product 영속성 (database.Client가 구현)
type Store interface {
	CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error)
	FetchProduct(ctx context.Context, productID string) (*model.Product, error)
	ListProducts(ctx context.Context, userID, collectionID string) ([]model.Product, error)
	UpdateProductFields(ctx context.Context, productID string, fields map[string]interface{}) error
	DeleteProduct(ctx context.Context, productID string) error
	UpdateProductAnalysis(ctx context.Context, productID string, analyzed, final map[string]interface{}) error
	UpdateProductOverrides(ctx context.Context, productID string, overrides, final map[string]interface{}) error
	FetchCollection(ctx context.Context, collectionID string) (*model.Collection, error)
}

// ImageSource - 분석용 원본 이미지 다운로드
type ImageSource interface {
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

type Service struct {
	store    Store
	files    ImageSource
	analyzer ai.VisionAnalyzer
}

func NewService(store Store, files ImageSource, analyzer ai.VisionAnalyzer) *Service {
	return &Service{
		store:    store,
		files:    files,
		analyzer: analyzer,
	}
}

// CreateRequest - 제품 등록 입력
type CreateRequest struct {
	CollectionID    string   `json:"collection_id"`
	Name            string   `json:"name"`
	FrontImageURL   string   `json:"front_image_url,omitempty"`
	BackImageURL    string   `json:"back_image_url,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

// UpdateRequest - 제품 기본 정보 수정 입력 (nil 필드는 유지)
type UpdateRequest struct {
	Name            *string   `json:"name,omitempty"`
	FrontImageURL   *string   `json:"front_image_url,omitempty"`
	BackImageURL    *string   `json:"back_image_url,omitempty"`
	ReferenceImages *[]string `json:"reference_images,omitempty"`
}

// Create - 제품 등록 (컬렉션 소유자 검증)
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*model.Product, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.CollectionID == "" {
		return nil, fmt.Errorf("%w: collection_id is required", ErrValidation)
	}

	collection, err := s.store.FetchCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, fmt.Errorf("%w: collection not found", ErrNotFound)
	}
	if collection.UserID != userID {
		return nil, fmt.Errorf("%w: not the owner of this collection", ErrForbidden)
	}

	product := &model.Product{
		CollectionID:    req.CollectionID,
		BrandID:         collection.BrandID,
		UserID:          userID,
		Name:            req.Name,
		FrontImageURL:   req.FrontImageURL,
		BackImageURL:    req.BackImageURL,
		ReferenceImages: req.ReferenceImages,
	}

	return s.store.CreateProduct(ctx, product)
}

// List - 사용자 제품 목록 (컬렉션 필터 선택)
func (s *Service) List(ctx context.Context, userID, collectionID string) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// Update - 이름/이미지 수정 (분석 JSON은 analyze/json 경로로만 변경)
func (s *Service) Update(ctx context.Context, productID, userID string, req UpdateRequest) (*model.Product, error) {
	if _, err := s.Get(ctx, productID, userID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		fields["name"] = *req.Name
	}
	if req.FrontImageURL != nil {
		fields["front_image_url"] = *req.FrontImageURL
	}
	if req.BackImageURL != nil {
		fields["back_image_url"] = *req.BackImageURL
	}
	if req.ReferenceImages != nil {
		fields["reference_images"] = *req.ReferenceImages
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	if err := s.store.UpdateProductFields(ctx, productID, fields); err != nil {
		return nil, err
	}

	return s.Get(ctx, productID, userID)
}

// Delete - 제품 삭제
func (s *Service) Delete(ctx context.Context, productID, userID string) error {
	if _, err := s.Get(ctx, productID, userID); err != nil {
		return err
	}
	return s.store.DeleteProduct(ctx, productID)
}

// Get - 단건 조회 (소유자 검증)
func (s *Service) Get(ctx context.Context, productID, userID string) (*model.Product, error) {
	product, err := s.store.FetchProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product not found", ErrNotFound)
	}
	if product.UserID != userID {
		return nil, fmt.Errorf("%w: not the owner of this product", ErrForbidden)
	}
	return product, nil
}

// Analyze - 상품 이미지를 AI로 분석해 analyzed/final JSON 초기화
func (s *Service) Analyze(ctx context.Context, productID, userID string) (map[string]interface{}, error) {
	product, err := s.Get(ctx, productID, userID)
	if err != nil {
		return nil, err
	}

	urls := collectImageURLs(product)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: product has no images to analyze", ErrValidation)
	}

	var images []ai.ImageInput
	for _, url := range urls {
		data, err := s.files.DownloadImage(ctx, url)
		if err != nil {
			log.Printf("⚠️ Failed to download product image %s: %v", url, err)
			continue
		}
		images = append(images, ai.ImageInput{MIMEType: "image/png", Data: data})
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("%w: could not load any product image", ErrValidation)
	}

	analyzed, err := s.analyzer.AnalyzeImage(ctx, analysisPrompt, images)
	if err != nil {
		return nil, fmt.Errorf("product analysis failed: %w", err)
	}

	// 분석 직후엔 final = analyzed (override는 아직 없음)
	final := prompt.MergeJSON(analyzed, product.ManualProductOverrides)
	if err := s.store.UpdateProductAnalysis(ctx, productID, analyzed, final); err != nil {
		return nil, err
	}

	log.Printf("🔍 Product %s analyzed (%d fields)", productID, len(analyzed))
	return analyzed, nil
}

// UpdateOverrides - 수동 override 저장, final JSON 재계산
func (s *Service) UpdateOverrides(ctx context.Context, productID, userID string, overrides map[string]interface{}) (map[string]interface{}, error) {
	product, err := s.Get(ctx, productID, userID)
	if err != nil {
		return nil, err
	}

	if len(overrides) == 0 {
		return nil, fmt.Errorf("%w: no overrides provided", ErrValidation)
	}

	final := prompt.MergeJSON(product.AnalyzedProductJSON, overrides)
	if final == nil {
		final = overrides
	}

	if err := s.store.UpdateProductOverrides(ctx, productID, overrides, final); err != nil {
		return nil, err
	}

	log.Printf("✏️ Product %s overrides saved", productID)
	return final, nil
}

// FinalJSON - analyzed + overrides 병합 결과 조회
func (s *Service) FinalJSON(ctx context.Context, productID, userID string) (map[string]interface{}, error) {
	product, err := s.Get(ctx, productID, userID)
	if err != nil {
		return nil, err
	}

	if len(product.FinalProductJSON) > 0 {
		return product.FinalProductJSON, nil
	}

	final := prompt.MergeJSON(product.AnalyzedProductJSON, product.ManualProductOverrides)
	if final == nil {
		final = map[string]interface{}{}
	}
	return final, nil
}

func collectImageURLs(product *model.Product) []string {
	var urls []string
	for _, u := range append([]string{product.FrontImageURL, product.BackImageURL}, product.ReferenceImages...) {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
