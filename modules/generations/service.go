package generations

import (
	"context"
	"fmt"
	"log"
	"time"

	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/fallback"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/common/storage"
	"modeshoot-server/modules/events"
	"modeshoot-server/modules/prompt"
)

// Store - generation 영속성 (database.Client가 구현)
type Store interface {
	CreateGeneration(ctx context.Context, gen *model.Generation) (*model.Generation, error)
	FetchGeneration(ctx context.Context, generationID string) (*model.Generation, error)
	ListGenerations(ctx context.Context, userID string, filters model.GenerationFilters) ([]model.Generation, error)
	UpdateGenerationStatus(ctx context.Context, generationID string, status string) error
	UpdateGenerationFields(ctx context.Context, generationID string, fields map[string]interface{}) error
	UpdateVisualSlot(ctx context.Context, generationID string, visual model.Visual) error
	UpdateMergedPrompts(ctx context.Context, generationID string, prompts map[string]model.MergedPrompt) error
	ResetGeneration(ctx context.Context, generationID string, visuals []model.Visual) error
	FetchProduct(ctx context.Context, productID string) (*model.Product, error)
	FetchCollection(ctx context.Context, collectionID string) (*model.Collection, error)
	FetchDAPreset(ctx context.Context, presetID string) (*model.DAPreset, error)
	FetchDefaultDAPreset(ctx context.Context) (*model.DAPreset, error)
}

// Queue - 작업 큐 (redisQueue가 구현)
type Queue interface {
	// Enqueue - 생성 작업 등록. 이미 진행 중이면 false.
	Enqueue(ctx context.Context, generationID string) (bool, error)
	// Release - active guard 해제
	Release(ctx context.Context, generationID string) error
}

// FileStore - 이미지 저장소 (storage.Client가 구현)
type FileStore interface {
	UploadVisual(ctx context.Context, imageData []byte, userID, generationID, slotType string) (*storage.StoredFile, error)
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

type Service struct {
	store Store
	queue Queue
	files FileStore
	hub   *events.Hub
	cfg   *config.Config
}

func NewService(store Store, queue Queue, files FileStore, hub *events.Hub, cfg *config.Config) *Service {
	return &Service{
		store: store,
		queue: queue,
		files: files,
		hub:   hub,
		cfg:   cfg,
	}
}

// Create - generation 생성. 상품/컬렉션 검증 후 6개 slot의 merged prompt를
// 미리 빌드해 pending 상태로 저장한다.
func (s *Service) Create(ctx context.Context, userID string, req CreateGenerationRequest) (*model.Generation, error) {
	if req.ProductID == "" || req.CollectionID == "" {
		return nil, fmt.Errorf("%w: product_id and collection_id are required", ErrValidation)
	}

	product, err := s.store.FetchProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product not found", ErrNotFound)
	}

	if product.UserID != userID {
		return nil, fmt.Errorf("%w: not the owner of this product", ErrForbidden)
	}

	if product.CollectionID != req.CollectionID {
		return nil, fmt.Errorf("%w: product does not belong to this collection", ErrValidation)
	}

	collection, err := s.store.FetchCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, fmt.Errorf("%w: collection not found", ErrNotFound)
	}

	aspectRatio := fallback.SafeAspectRatio(req.AspectRatio, s.cfg.DefaultAspectRatio)
	resolution := fallback.SafeString(req.Resolution, s.cfg.DefaultResolution)
	generationType := fallback.SafeString(req.GenerationType, model.GenerationTypeFullSet)

	productJSON := s.resolveProductJSON(product)
	daJSON, err := s.resolveDAJSON(ctx, collection)
	if err != nil {
		return nil, err
	}

	mergedPrompts := prompt.BuildMergedPrompts(productJSON, daJSON, aspectRatio, resolution)
	visuals := pendingVisuals(mergedPrompts)

	gen := &model.Generation{
		ProductID:      req.ProductID,
		CollectionID:   req.CollectionID,
		UserID:         userID,
		GenerationType: generationType,
		AspectRatio:    aspectRatio,
		Resolution:     resolution,
		MergedPrompts:  mergedPrompts,
		Visuals:        visuals,
		Status:         model.StatusPending,
	}

	created, err := s.store.CreateGeneration(ctx, gen)
	if err != nil {
		return nil, err
	}

	log.Printf("🎨 Generation created: %s (%d slots, %s/%s)", created.ID, len(visuals), aspectRatio, resolution)
	return created, nil
}

// List - 사용자의 generation 목록 조회
func (s *Service) List(ctx context.Context, userID string, filters model.GenerationFilters) (*ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}

	items, err := s.store.ListGenerations(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	if items == nil {
		items = []model.Generation{}
	}

	return &ListResponse{
		Items: items,
		Total: len(items),
		Page:  filters.Page,
		Limit: filters.Limit,
	}, nil
}

// Get - 단건 조회 (소유자 검증 포함)
func (s *Service) Get(ctx context.Context, generationID, userID string) (*model.Generation, error) {
	gen, err := s.store.FetchGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if gen == nil || gen.UserID != userID {
		return nil, fmt.Errorf("%w: generation not found", ErrNotFound)
	}
	return gen, nil
}

// VerifyOwnership - 스트림 구독 전 소유자 확인
func (s *Service) VerifyOwnership(ctx context.Context, generationID, userID string) error {
	_, err := s.Get(ctx, generationID, userID)
	return err
}

// PreviewPrompts - 실행될 프롬프트 목록 미리보기
func (s *Service) PreviewPrompts(ctx context.Context, generationID, userID string) (*PromptsResponse, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}
	return &PromptsResponse{Prompts: extractPrompts(gen)}, nil
}

// UpdatePrompts - slot 순서대로 프롬프트 덮어쓰기. 진행 중엔 거부.
func (s *Service) UpdatePrompts(ctx context.Context, generationID, userID string, req UpdatePromptsRequest) (*model.Generation, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}

	if gen.Status == model.StatusProcessing {
		return nil, fmt.Errorf("%w: generation is in progress", ErrValidation)
	}

	if len(req.Prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompts provided", ErrValidation)
	}
	if len(req.Prompts) > len(model.VisualSlots) {
		return nil, fmt.Errorf("%w: at most %d prompts allowed", ErrValidation, len(model.VisualSlots))
	}

	now := time.Now().UTC()
	visuals := make([]model.Visual, 0, len(req.Prompts))
	for i, edit := range req.Prompts {
		slot := model.VisualSlots[i]
		text := prompt.Clean(edit.Prompt)

		// 프롬프트 없이 negative/output만 고치는 객체 편집은 저장된 프롬프트 유지
		mp, hasMerged := gen.MergedPrompts[slot]
		if text == "" && hasMerged {
			text = mp.Prompt
		}

		visuals = append(visuals, model.Visual{
			Type:   slot,
			Status: model.StatusPending,
			Prompt: text,
		})

		if hasMerged {
			mp.Prompt = text
			if edit.NegativePrompt != nil {
				mp.NegativePrompt = *edit.NegativePrompt
			}
			if edit.Output != nil {
				mp.Output = *edit.Output
			}
			mp.LastEditedAt = &now
			gen.MergedPrompts[slot] = mp
		}
	}

	if err := s.store.UpdateGenerationFields(ctx, generationID, map[string]interface{}{
		"visuals":                 visuals,
		"merged_prompts":          gen.MergedPrompts,
		"status":                  model.StatusPending,
		"progress_percent":        0,
		"completed_visuals_count": 0,
		"completed_at":            nil,
	}); err != nil {
		return nil, err
	}

	gen.Visuals = visuals
	gen.Status = model.StatusPending
	gen.CompletedAt = nil

	log.Printf("✏️ Generation %s prompts updated (%d slots)", generationID, len(visuals))
	return gen, nil
}

// Generate - 생성 실행. 프롬프트 확정 후 큐에 등록한다.
// SETNX active guard로 중복 dispatch를 막는다.
func (s *Service) Generate(ctx context.Context, generationID, userID string, req GenerateRequest) (*model.Generation, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}

	if gen.Status == model.StatusProcessing {
		return nil, fmt.Errorf("%w: generation is already in progress", ErrValidation)
	}

	if len(req.Prompts) > 0 {
		if _, err := s.UpdatePrompts(ctx, generationID, userID, UpdatePromptsRequest{Prompts: req.Prompts}); err != nil {
			return nil, err
		}
		gen, err = s.Get(ctx, generationID, userID)
		if err != nil {
			return nil, err
		}
	}

	prompts := extractPrompts(gen)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompts to generate", ErrValidation)
	}

	// 이전 실행 결과가 남아 있으면 pending으로 초기화
	if gen.AllTerminal() || len(gen.Visuals) == 0 {
		gen.Visuals = pendingVisuals(gen.MergedPrompts)
	}

	acquired, err := s.queue.Enqueue(ctx, generationID)
	if err != nil {
		// dispatch 못 한 generation은 failed로 확정 (pending으로 남기지 않음)
		if uerr := s.store.UpdateGenerationStatus(ctx, generationID, model.StatusFailed); uerr != nil {
			log.Printf("⚠️ Failed to mark generation %s failed after enqueue error: %v", generationID, uerr)
		}
		return nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: generation is already queued", ErrValidation)
	}

	if err := s.store.UpdateGenerationFields(ctx, generationID, map[string]interface{}{
		"status":                  model.StatusProcessing,
		"visuals":                 gen.Visuals,
		"model_override":          req.Model,
		"progress_percent":        0,
		"completed_visuals_count": 0,
		"started_at":              "now()",
		"completed_at":            nil,
	}); err != nil {
		// 상태 저장 실패 시 guard 회수
		_ = s.queue.Release(ctx, generationID)
		return nil, err
	}

	gen.Status = model.StatusProcessing
	gen.ModelOverride = req.Model
	log.Printf("🚀 Generation %s queued (%d prompts)", generationID, len(prompts))
	return gen, nil
}

// Reset - 결과/진행 상태 초기화, active guard 해제
func (s *Service) Reset(ctx context.Context, generationID, userID string) (*model.Generation, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}

	visuals := pendingVisuals(gen.MergedPrompts)
	if err := s.store.ResetGeneration(ctx, generationID, visuals); err != nil {
		return nil, err
	}

	if err := s.queue.Release(ctx, generationID); err != nil {
		log.Printf("⚠️ Failed to release active guard for %s: %v", generationID, err)
	}

	gen.Status = model.StatusPending
	gen.Visuals = visuals
	gen.ProgressPercent = 0
	gen.CompletedVisualsCount = 0
	gen.CurrentStep = ""
	gen.StartedAt = nil
	gen.CompletedAt = nil
	return gen, nil
}

// Progress - 진행 상황 조회 (슬롯별 상태 포함)
func (s *Service) Progress(ctx context.Context, generationID, userID string) (*ProgressResponse, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}

	visuals := gen.Visuals
	if visuals == nil {
		visuals = []model.Visual{}
	}

	return &ProgressResponse{
		GenerationID:          gen.ID,
		Status:                gen.Status,
		CurrentStep:           gen.CurrentStep,
		ProgressPercent:       model.ProgressPercent(visuals),
		CompletedVisualsCount: gen.CompletedCount(),
		TotalVisuals:          len(visuals),
		Visuals:               visuals,
	}, nil
}

// resolveProductJSON - final 우선, 없으면 analyzed + overrides 병합
func (s *Service) resolveProductJSON(product *model.Product) map[string]interface{} {
	if len(product.FinalProductJSON) > 0 {
		return product.FinalProductJSON
	}
	merged := prompt.MergeJSON(product.AnalyzedProductJSON, product.ManualProductOverrides)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	if merged["name"] == nil && product.Name != "" {
		merged["name"] = product.Name
	}
	return merged
}

// resolveDAJSON - collection의 final DA 우선, 없으면 preset config + overrides
func (s *Service) resolveDAJSON(ctx context.Context, collection *model.Collection) (map[string]interface{}, error) {
	if len(collection.FinalDAJSON) > 0 {
		return collection.FinalDAJSON, nil
	}

	var preset *model.DAPreset
	var err error
	if collection.DAPresetID != "" {
		preset, err = s.store.FetchDAPreset(ctx, collection.DAPresetID)
	} else {
		preset, err = s.store.FetchDefaultDAPreset(ctx)
	}
	if err != nil {
		return nil, err
	}

	base := map[string]interface{}{}
	if preset != nil {
		base = preset.Config
	}

	merged := prompt.MergeJSON(base, collection.DAOverrides)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	return merged, nil
}

// pendingVisuals - merged prompt 기반으로 slot 순서의 pending visual 배열 생성
func pendingVisuals(mergedPrompts map[string]model.MergedPrompt) []model.Visual {
	visuals := make([]model.Visual, 0, len(model.VisualSlots))
	for _, slot := range model.VisualSlots {
		v := model.Visual{
			Type:   slot,
			Status: model.StatusPending,
		}
		if mp, ok := mergedPrompts[slot]; ok {
			v.Prompt = mp.Prompt
		}
		visuals = append(visuals, v)
	}
	return visuals
}

// extractPrompts - visuals에서 프롬프트 추출, 비어 있으면 merged prompt로 보충
func extractPrompts(gen *model.Generation) []string {
	var prompts []string
	for _, v := range gen.Visuals {
		text := v.Prompt
		if text == "" {
			if mp, ok := gen.MergedPrompts[v.Type]; ok {
				text = mp.Prompt
			}
		}
		if text != "" {
			prompts = append(prompts, text)
		}
	}
	return prompts
}
