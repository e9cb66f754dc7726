package adrecreation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/common/storage"
	"modeshoot-server/modules/prompt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("bad request")
)

const analysisPrompt = `Analyze this advertisement image for recreation purposes.
Return a JSON object with: layout (composition description), color_palette (array of dominant colors),
typography (text style if any), subject (what is featured), mood, lighting, target_audience.`

const variationTemplate = `Create a {{style}} style fashion advertisement.
Base it on this analysis of a reference ad: layout {{layout}}, color palette {{color_palette}},
mood {{mood}}, lighting {{lighting}}. Feature the brand's product per this brief: {{brief}}.
Do not copy the reference ad, produce an original composition in the same spirit.`

// Store - ad recreation 영속성 (database.Client가 구현)
type Store interface {
	CreateAdRecreation(ctx context.Context, ad *model.AdRecreation) (*model.AdRecreation, error)
	FetchAdRecreation(ctx context.Context, adID string) (*model.AdRecreation, error)
	ListAdRecreations(ctx context.Context, userID string, page, limit int) ([]model.AdRecreation, error)
	UpdateAdRecreationFields(ctx context.Context, adID string, fields map[string]interface{}) error
}

// FileStore - 이미지 다운로드/업로드 (storage.Client가 구현)
type FileStore interface {
	UploadVisual(ctx context.Context, imageData []byte, userID, generationID, slotType string) (*storage.StoredFile, error)
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

type Service struct {
	store     Store
	files     FileStore
	analyzer  ai.VisionAnalyzer
	generator ai.ImageGenerator
	cfg       *config.Config
}

func NewService(store Store, files FileStore, analyzer ai.VisionAnalyzer, generator ai.ImageGenerator, cfg *config.Config) *Service {
	return &Service{
		store:     store,
		files:     files,
		analyzer:  analyzer,
		generator: generator,
		cfg:       cfg,
	}
}

// CreateRequest - POST /ad-recreations 요청
type CreateRequest struct {
	CompetitorAdURL      string   `json:"competitor_ad_url"`
	BrandBrief           string   `json:"brand_brief,omitempty"`
	BrandReferenceImages []string `json:"brand_reference_images,omitempty"`
	VariationsCount      int      `json:"variations_count,omitempty"`
}

// VariationsRequest - POST /ad-recreations/{id}/variations 요청
type VariationsRequest struct {
	VariationsCount int      `json:"variations_count,omitempty"`
	VariationStyles []string `json:"variation_styles,omitempty"`
}

// Create - 경쟁사 광고 등록 (uploaded 상태)
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*model.AdRecreation, error) {
	if req.CompetitorAdURL == "" {
		return nil, fmt.Errorf("%w: competitor_ad_url is required", ErrValidation)
	}

	count := req.VariationsCount
	if count < 1 || count > 10 {
		count = 3
	}

	ad := &model.AdRecreation{
		UserID:               userID,
		CompetitorAdURL:      req.CompetitorAdURL,
		BrandBrief:           req.BrandBrief,
		BrandReferenceImages: req.BrandReferenceImages,
		VariationsCount:      count,
		Status:               model.AdStatusUploaded,
	}

	created, err := s.store.CreateAdRecreation(ctx, ad)
	if err != nil {
		return nil, err
	}

	log.Printf("📣 Ad recreation created: %s (%d variations planned)", created.ID, count)
	return created, nil
}

// List - 사용자 광고 재해석 목록 (페이지네이션)
func (s *Service) List(ctx context.Context, userID string, page, limit int) ([]model.AdRecreation, error) {
	ads, err := s.store.ListAdRecreations(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	if ads == nil {
		ads = []model.AdRecreation{}
	}
	return ads, nil
}

// Get - 단건 조회 (소유자 검증)
func (s *Service) Get(ctx context.Context, adID, userID string) (*model.AdRecreation, error) {
	ad, err := s.store.FetchAdRecreation(ctx, adID)
	if err != nil {
		return nil, err
	}
	if ad == nil || ad.UserID != userID {
		return nil, fmt.Errorf("%w: ad recreation not found", ErrNotFound)
	}
	return ad, nil
}

// Analyze - 경쟁사 광고 이미지 분석. uploaded 상태에서만 허용.
func (s *Service) Analyze(ctx context.Context, adID, userID string) (map[string]interface{}, error) {
	ad, err := s.Get(ctx, adID, userID)
	if err != nil {
		return nil, err
	}

	if ad.Status != model.AdStatusUploaded {
		return nil, fmt.Errorf("%w: ad recreation must be in uploaded status for analysis", ErrValidation)
	}

	if err := s.store.UpdateAdRecreationFields(ctx, adID, map[string]interface{}{
		"status": model.AdStatusAnalyzing,
	}); err != nil {
		return nil, err
	}

	data, err := s.files.DownloadImage(ctx, ad.CompetitorAdURL)
	if err != nil {
		s.markFailed(ctx, adID, err)
		return nil, fmt.Errorf("failed to download competitor ad: %w", err)
	}

	analysis, err := s.analyzer.AnalyzeImage(ctx, analysisPrompt, []ai.ImageInput{
		{MIMEType: "image/png", Data: data},
	})
	if err != nil {
		s.markFailed(ctx, adID, err)
		return nil, fmt.Errorf("ad analysis failed: %w", err)
	}

	if err := s.store.UpdateAdRecreationFields(ctx, adID, map[string]interface{}{
		"status":   model.AdStatusAnalyzed,
		"analysis": analysis,
	}); err != nil {
		return nil, err
	}

	log.Printf("🔍 Ad recreation %s analyzed (%d fields)", adID, len(analysis))
	return analysis, nil
}

// GenerateVariations - 분석 결과 기반으로 변형 광고를 순차 생성.
// analyzed 상태에서만 허용. 일부 실패해도 나머지는 진행.
func (s *Service) GenerateVariations(ctx context.Context, adID, userID string, req VariationsRequest) (*model.AdRecreation, error) {
	ad, err := s.Get(ctx, adID, userID)
	if err != nil {
		return nil, err
	}

	if ad.Status != model.AdStatusAnalyzed {
		return nil, fmt.Errorf("%w: ad recreation must be analyzed before generating variations", ErrValidation)
	}

	count := ad.VariationsCount
	if req.VariationsCount > 0 && req.VariationsCount <= 10 {
		count = req.VariationsCount
	}

	if err := s.store.UpdateAdRecreationFields(ctx, adID, map[string]interface{}{
		"status":           model.AdStatusGenerating,
		"variations_count": count,
	}); err != nil {
		return nil, err
	}

	refs := s.loadBrandReferences(ctx, ad)

	variations := make([]model.Visual, 0, count)
	for i := 0; i < count; i++ {
		style := "similar"
		if i < len(req.VariationStyles) && req.VariationStyles[i] != "" {
			style = req.VariationStyles[i]
		}

		visual := s.generateVariation(ctx, ad, i+1, style, refs)
		variations = append(variations, visual)
	}

	finalStatus := model.AdStatusFailed
	for _, v := range variations {
		if v.Status == model.StatusCompleted {
			finalStatus = model.AdStatusCompleted
			break
		}
	}

	now := time.Now().UTC()
	if err := s.store.UpdateAdRecreationFields(ctx, adID, map[string]interface{}{
		"status":       finalStatus,
		"variations":   variations,
		"completed_at": now.Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	ad.Status = finalStatus
	ad.Variations = variations
	ad.VariationsCount = count
	ad.CompletedAt = &now

	log.Printf("🏁 Ad recreation %s finished: %s (%d variations)", adID, finalStatus, len(variations))
	return ad, nil
}

// generateVariation - 변형 1개 생성 (실패는 해당 변형에만 기록)
func (s *Service) generateVariation(ctx context.Context, ad *model.AdRecreation, index int, style string, refs []ai.ImageInput) model.Visual {
	name := fmt.Sprintf("variation_%d", index)
	log.Printf("🖼️  [%s] Generating %s (%s style)", ad.ID, name, style)

	vars := map[string]interface{}{
		"style":         style,
		"layout":        valueOrDefault(ad.Analysis, "layout", "balanced composition"),
		"color_palette": valueOrDefault(ad.Analysis, "color_palette", "brand colors"),
		"mood":          valueOrDefault(ad.Analysis, "mood", "aspirational"),
		"lighting":      valueOrDefault(ad.Analysis, "lighting", "studio lighting"),
		"brief":         briefOrDefault(ad.BrandBrief),
	}
	promptText := prompt.Clean(prompt.Build(variationTemplate, vars))

	visual := model.Visual{
		Type:   name,
		Prompt: promptText,
	}

	req := ai.ImageRequest{
		Prompt:      promptText,
		References:  refs,
		AspectRatio: s.cfg.DefaultAspectRatio,
		Resolution:  s.cfg.DefaultResolution,
	}
	result, err := ai.GenerateWithRetry(ctx, s.generator, req, s.cfg.MaxAttempts)
	if err != nil {
		log.Printf("❌ [%s] %s failed: %v", ad.ID, name, err)
		visual.Status = model.StatusFailed
		visual.Error = err.Error()
		return visual
	}

	stored, err := s.files.UploadVisual(ctx, result.Data, ad.UserID, ad.ID, name)
	if err != nil {
		log.Printf("❌ [%s] %s upload failed: %v", ad.ID, name, err)
		visual.Status = model.StatusFailed
		visual.Error = err.Error()
		return visual
	}

	now := time.Now().UTC()
	visual.Status = model.StatusCompleted
	visual.ImageURL = stored.URL
	visual.ImagePath = stored.Path
	visual.MimeType = "image/webp"
	visual.GeneratedAt = &now

	log.Printf("✅ [%s] %s completed", ad.ID, name)
	return visual
}

func (s *Service) loadBrandReferences(ctx context.Context, ad *model.AdRecreation) []ai.ImageInput {
	var refs []ai.ImageInput
	for _, url := range ad.BrandReferenceImages {
		data, err := s.files.DownloadImage(ctx, url)
		if err != nil {
			log.Printf("⚠️ Failed to download brand reference %s: %v", url, err)
			continue
		}
		refs = append(refs, ai.ImageInput{MIMEType: "image/png", Data: data})
	}
	return refs
}

func (s *Service) markFailed(ctx context.Context, adID string, cause error) {
	if err := s.store.UpdateAdRecreationFields(ctx, adID, map[string]interface{}{
		"status": model.AdStatusFailed,
	}); err != nil {
		log.Printf("⚠️ Failed to mark ad recreation %s failed: %v (cause: %v)", adID, err, cause)
	}
}

func valueOrDefault(analysis map[string]interface{}, key, fallbackValue string) interface{} {
	if analysis == nil {
		return fallbackValue
	}
	if v, ok := analysis[key]; ok && v != nil {
		return v
	}
	return fallbackValue
}

func briefOrDefault(brief string) string {
	if brief == "" {
		return "a premium fashion product"
	}
	return brief
}
