package generations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/common/storage"
	"modeshoot-server/modules/events"
)

// --- 테스트용 fake 구현 ---

type fakeStore struct {
	mu          sync.Mutex
	generations map[string]*model.Generation
	products    map[string]*model.Product
	collections map[string]*model.Collection
	presets     map[string]*model.DAPreset
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		generations: map[string]*model.Generation{},
		products:    map[string]*model.Product{},
		collections: map[string]*model.Collection{},
		presets:     map[string]*model.DAPreset{},
	}
}

func (f *fakeStore) CreateGeneration(ctx context.Context, gen *model.Generation) (*model.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	clone := *gen
	clone.ID = fmt.Sprintf("gen-%d", f.nextID)
	f.generations[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *fakeStore) FetchGeneration(ctx context.Context, id string) (*model.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return nil, nil
	}
	clone := *gen
	clone.Visuals = append([]model.Visual(nil), gen.Visuals...)
	return &clone, nil
}

func (f *fakeStore) ListGenerations(ctx context.Context, userID string, filters model.GenerationFilters) ([]model.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Generation
	for _, gen := range f.generations {
		if gen.UserID != userID {
			continue
		}
		if filters.Status != "" && gen.Status != filters.Status {
			continue
		}
		if filters.ProductID != "" && gen.ProductID != filters.ProductID {
			continue
		}
		out = append(out, *gen)
	}
	return out, nil
}

func (f *fakeStore) UpdateGenerationStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return fmt.Errorf("generation not found: %s", id)
	}
	gen.Status = status
	return nil
}

func (f *fakeStore) UpdateGenerationFields(ctx context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return fmt.Errorf("generation not found: %s", id)
	}
	if v, ok := fields["status"].(string); ok {
		gen.Status = v
	}
	if v, ok := fields["visuals"].([]model.Visual); ok {
		gen.Visuals = append([]model.Visual(nil), v...)
	}
	if v, ok := fields["merged_prompts"].(map[string]model.MergedPrompt); ok {
		gen.MergedPrompts = v
	}
	if v, ok := fields["model_override"].(string); ok {
		gen.ModelOverride = v
	}
	if _, ok := fields["completed_at"]; ok {
		gen.CompletedAt = nil
	}
	return nil
}

func (f *fakeStore) UpdateVisualSlot(ctx context.Context, id string, visual model.Visual) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return fmt.Errorf("generation not found: %s", id)
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
	gen.CompletedVisualsCount = 0
	for _, v := range gen.Visuals {
		if v.Status == model.StatusCompleted {
			gen.CompletedVisualsCount++
		}
	}
	gen.ProgressPercent = model.ProgressPercent(gen.Visuals)
	gen.CurrentStep = visual.Type
	return nil
}

func (f *fakeStore) UpdateMergedPrompts(ctx context.Context, id string, prompts map[string]model.MergedPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen, ok := f.generations[id]; ok {
		gen.MergedPrompts = prompts
	}
	return nil
}

func (f *fakeStore) ResetGeneration(ctx context.Context, id string, visuals []model.Visual) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return fmt.Errorf("generation not found: %s", id)
	}
	gen.Status = model.StatusPending
	gen.Visuals = append([]model.Visual(nil), visuals...)
	gen.ProgressPercent = 0
	gen.CompletedVisualsCount = 0
	gen.CurrentStep = ""
	gen.StartedAt = nil
	gen.CompletedAt = nil
	return nil
}

func (f *fakeStore) FetchProduct(ctx context.Context, id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id], nil
}

func (f *fakeStore) FetchCollection(ctx context.Context, id string) (*model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collections[id], nil
}

func (f *fakeStore) FetchDAPreset(ctx context.Context, id string) (*model.DAPreset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presets[id], nil
}

func (f *fakeStore) FetchDefaultDAPreset(ctx context.Context) (*model.DAPreset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.presets {
		if p.IsDefault {
			return p, nil
		}
	}
	return nil, nil
}

type fakeQueue struct {
	mu         sync.Mutex
	active     map[string]bool
	queued     []string
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{active: map[string]bool{}}
}

func (q *fakeQueue) Enqueue(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return false, q.enqueueErr
	}
	if q.active[id] {
		return false, nil
	}
	q.active[id] = true
	q.queued = append(q.queued, id)
	return true, nil
}

func (q *fakeQueue) Release(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, id)
	return nil
}

type fakeFiles struct {
	mu       sync.Mutex
	uploads  []string
	images   map[string][]byte
	failURLs map[string]bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		images:   map[string][]byte{},
		failURLs: map[string]bool{},
	}
}

func (f *fakeFiles) UploadVisual(ctx context.Context, data []byte, userID, generationID, slotType string) (*storage.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := fmt.Sprintf("generations/user-%s/%s/%s.webp", userID, generationID, slotType)
	url := "https://storage.example.com/" + path
	f.uploads = append(f.uploads, path)
	f.images[url] = data
	return &storage.StoredFile{URL: url, Path: path}, nil
}

func (f *fakeFiles) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failURLs[url] {
		return nil, fmt.Errorf("download failed: %s", url)
	}
	if data, ok := f.images[url]; ok {
		return data, nil
	}
	return []byte("image-bytes"), nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultAspectRatio: "4:5",
		DefaultResolution:  "4K",
		MaxAttempts:        3,
	}
}

type testEnv struct {
	store   *fakeStore
	queue   *fakeQueue
	files   *fakeFiles
	hub     *events.Hub
	service *Service
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	queue := newFakeQueue()
	files := newFakeFiles()
	hub := events.NewHub()
	service := NewService(store, queue, files, hub, testConfig())

	store.products["prod-1"] = &model.Product{
		ID:           "prod-1",
		CollectionID: "col-1",
		UserID:       "user-1",
		Name:         "Hooded Jacket",
		AnalyzedProductJSON: map[string]interface{}{
			"type":   "hooded jacket",
			"color":  "navy",
			"fabric": "cotton twill",
		},
	}
	store.collections["col-1"] = &model.Collection{
		ID:         "col-1",
		UserID:     "user-1",
		Name:       "FW26 Outerwear",
		DAPresetID: "preset-1",
	}
	store.presets["preset-1"] = &model.DAPreset{
		ID:   "preset-1",
		Name: "Warm Studio",
		Config: map[string]interface{}{
			"da_name": "warm-studio",
			"mood":    "relaxed weekend",
		},
	}

	return &testEnv{store: store, queue: queue, files: files, hub: hub, service: service}
}

// --- Create ---

func TestCreateBuildsSixSlotGeneration(t *testing.T) {
	env := newTestEnv()

	gen, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID:    "prod-1",
		CollectionID: "col-1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, gen.Status)
	assert.Equal(t, "4:5", gen.AspectRatio)
	assert.Equal(t, "4K", gen.Resolution)
	assert.Len(t, gen.Visuals, 6)
	assert.Len(t, gen.MergedPrompts, 6)

	for i, v := range gen.Visuals {
		assert.Equal(t, model.VisualSlots[i], v.Type)
		assert.Equal(t, model.StatusPending, v.Status)
		assert.NotEmpty(t, v.Prompt)
		assert.NotContains(t, v.Prompt, "{{")
	}
}

func TestCreateRejectsUnknownProduct(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID:    "prod-missing",
		CollectionID: "col-1",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsForeignProduct(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.Create(context.Background(), "user-2", CreateGenerationRequest{
		ProductID:    "prod-1",
		CollectionID: "col-1",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateRejectsCollectionMismatch(t *testing.T) {
	env := newTestEnv()
	env.store.collections["col-2"] = &model.Collection{ID: "col-2", UserID: "user-1", Name: "Other"}

	_, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID:    "prod-1",
		CollectionID: "col-2",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateHonorsCustomOutputConfig(t *testing.T) {
	env := newTestEnv()

	gen, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID:    "prod-1",
		CollectionID: "col-1",
		AspectRatio:  "1:1",
		Resolution:   "2K",
	})
	require.NoError(t, err)
	assert.Equal(t, "1:1", gen.AspectRatio)
	assert.Equal(t, "2K", gen.Resolution)
	assert.Equal(t, "1:1", gen.MergedPrompts["solo"].Output.AspectRatio)
}

func TestCreateFallsBackOnInvalidAspectRatio(t *testing.T) {
	env := newTestEnv()

	gen, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID:    "prod-1",
		CollectionID: "col-1",
		AspectRatio:  "7:13",
	})
	require.NoError(t, err)
	assert.Equal(t, "4:5", gen.AspectRatio)
}

// --- Get / ownership ---

func TestGetEnforcesOwnership(t *testing.T) {
	env := newTestEnv()
	gen, err := env.service.Create(context.Background(), "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	_, err = env.service.Get(context.Background(), gen.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, gen.ID, got.ID)
}

// --- Prompts ---

func TestUpdatePromptsOverwritesAndResets(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	updated, err := env.service.UpdatePrompts(ctx, gen.ID, "user-1", UpdatePromptsRequest{
		Prompts: []PromptEdit{{Prompt: "custom duo prompt"}, {Prompt: "custom solo prompt"}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, updated.Status)
	assert.Len(t, updated.Visuals, 2)
	assert.Equal(t, "custom duo prompt", updated.Visuals[0].Prompt)
	assert.Equal(t, "duo", updated.Visuals[0].Type)
	assert.Equal(t, "custom solo prompt", updated.MergedPrompts["solo"].Prompt)
	assert.NotNil(t, updated.MergedPrompts["solo"].LastEditedAt)
}

func TestUpdatePromptsRejectedWhileProcessing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateGenerationStatus(ctx, gen.ID, model.StatusProcessing))

	_, err = env.service.UpdatePrompts(ctx, gen.ID, "user-1", UpdatePromptsRequest{
		Prompts: []PromptEdit{{Prompt: "x"}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePromptsRejectsEmpty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	_, err = env.service.UpdatePrompts(ctx, gen.ID, "user-1", UpdatePromptsRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePromptsAcceptsStringsAndObjects(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	// 문자열과 객체가 섞인 payload
	body := `{"prompts": [
		"plain duo prompt",
		{"prompt": "solo with rules", "negative_prompt": "no text overlays", "output": {"resolution": "2K", "aspect_ratio": "1:1"}}
	]}`
	var req UpdatePromptsRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Len(t, req.Prompts, 2)
	assert.Equal(t, "plain duo prompt", req.Prompts[0].Prompt)
	assert.Nil(t, req.Prompts[0].NegativePrompt)
	require.NotNil(t, req.Prompts[1].NegativePrompt)

	updated, err := env.service.UpdatePrompts(ctx, gen.ID, "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, "plain duo prompt", updated.Visuals[0].Prompt)
	solo := updated.MergedPrompts["solo"]
	assert.Equal(t, "solo with rules", solo.Prompt)
	assert.Equal(t, "no text overlays", solo.NegativePrompt)
	assert.Equal(t, "2K", solo.Output.Resolution)
	assert.Equal(t, "1:1", solo.Output.AspectRatio)
}

func TestUpdatePromptsObjectWithoutPromptKeepsStored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)
	stored := gen.MergedPrompts["duo"].Prompt
	require.NotEmpty(t, stored)

	negative := "no props"
	updated, err := env.service.UpdatePrompts(ctx, gen.ID, "user-1", UpdatePromptsRequest{
		Prompts: []PromptEdit{{NegativePrompt: &negative}},
	})
	require.NoError(t, err)

	assert.Equal(t, stored, updated.Visuals[0].Prompt)
	assert.Equal(t, "no props", updated.MergedPrompts["duo"].NegativePrompt)
}

func TestPreviewPromptsReturnsResolvedPrompts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	preview, err := env.service.PreviewPrompts(ctx, gen.ID, "user-1")
	require.NoError(t, err)
	assert.Len(t, preview.Prompts, 6)
	for _, p := range preview.Prompts {
		assert.NotContains(t, p, "{{")
	}
}

// --- Generate / queue ---

func TestGenerateEnqueuesAndMarksProcessing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	started, err := env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusProcessing, started.Status)
	assert.Equal(t, []string{gen.ID}, env.queue.queued)
}

func TestGenerateRejectedWhileProcessing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	require.NoError(t, err)

	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateIdempotentDispatchGuard(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	// guard는 잡혀 있지만 status는 pending인 경쟁 상황
	acquired, err := env.queue.Enqueue(ctx, gen.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, env.queue.queued, 1)
}

func TestGenerateMarksFailedWhenEnqueueErrors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	env.queue.enqueueErr = errors.New("redis: connection refused")

	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)

	// pending으로 남지 않고 failed로 확정
	after, err := env.service.Get(ctx, gen.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, after.Status)
}

func TestGeneratePersistsModelOverride(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	started, err := env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{Model: "gemini-3-pro-image-preview"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro-image-preview", started.ModelOverride)

	// worker가 다시 조회해도 override가 보인다
	fetched, err := env.store.FetchGeneration(ctx, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro-image-preview", fetched.ModelOverride)
}

// --- Reset ---

func TestResetClearsStateAndGuard(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	require.NoError(t, err)

	reset, err := env.service.Reset(ctx, gen.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, reset.Status)
	assert.Equal(t, 0, reset.ProgressPercent)
	assert.False(t, env.queue.active[gen.ID])

	// guard가 풀렸으니 재실행 가능
	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	assert.NoError(t, err)
}

// --- Progress ---

func TestProgressReflectsSlotStates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	require.NoError(t, env.store.UpdateVisualSlot(ctx, gen.ID, model.Visual{
		Type: "duo", Status: model.StatusCompleted, ImageURL: "https://x/duo.webp",
	}))
	require.NoError(t, env.store.UpdateVisualSlot(ctx, gen.ID, model.Visual{
		Type: "solo", Status: model.StatusFailed, Error: "refused",
	}))

	progress, err := env.service.Progress(ctx, gen.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 6, progress.TotalVisuals)
	assert.Equal(t, 1, progress.CompletedVisualsCount)
	assert.Equal(t, 17, progress.ProgressPercent)
}
