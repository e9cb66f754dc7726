package adrecreation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/common/storage"
)

type fakeStore struct {
	ads    map[string]*model.AdRecreation
	nextID int
}

func (f *fakeStore) CreateAdRecreation(ctx context.Context, ad *model.AdRecreation) (*model.AdRecreation, error) {
	f.nextID++
	clone := *ad
	clone.ID = fmt.Sprintf("ad-%d", f.nextID)
	f.ads[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *fakeStore) FetchAdRecreation(ctx context.Context, id string) (*model.AdRecreation, error) {
	ad, ok := f.ads[id]
	if !ok {
		return nil, nil
	}
	clone := *ad
	return &clone, nil
}

func (f *fakeStore) ListAdRecreations(ctx context.Context, userID string, page, limit int) ([]model.AdRecreation, error) {
	var out []model.AdRecreation
	for _, ad := range f.ads {
		if ad.UserID == userID {
			out = append(out, *ad)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAdRecreationFields(ctx context.Context, id string, fields map[string]interface{}) error {
	ad, ok := f.ads[id]
	if !ok {
		return fmt.Errorf("ad not found: %s", id)
	}
	if v, ok := fields["status"].(string); ok {
		ad.Status = v
	}
	if v, ok := fields["analysis"].(map[string]interface{}); ok {
		ad.Analysis = v
	}
	if v, ok := fields["variations"].([]model.Visual); ok {
		ad.Variations = v
	}
	if v, ok := fields["variations_count"].(int); ok {
		ad.VariationsCount = v
	}
	return nil
}

type fakeFiles struct {
	uploads []string
}

func (f *fakeFiles) UploadVisual(ctx context.Context, data []byte, userID, genID, slot string) (*storage.StoredFile, error) {
	path := fmt.Sprintf("generations/user-%s/%s/%s.webp", userID, genID, slot)
	f.uploads = append(f.uploads, path)
	return &storage.StoredFile{URL: "https://storage.example.com/" + path, Path: path}, nil
}

func (f *fakeFiles) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	return []byte("image-bytes"), nil
}

type fakeAnalyzer struct {
	result map[string]interface{}
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, prompt string, images []ai.ImageInput) (map[string]interface{}, error) {
	return f.result, nil
}

type styleGenerator struct {
	failOn string
	calls  []string
}

func (g *styleGenerator) GenerateImage(ctx context.Context, req ai.ImageRequest) (*ai.ImageResult, error) {
	g.calls = append(g.calls, req.Prompt)
	if g.failOn != "" && strings.Contains(req.Prompt, g.failOn) {
		return nil, ai.ErrRefused
	}
	return &ai.ImageResult{MIMEType: "image/png", Data: []byte("png")}, nil
}

func newTestService() (*Service, *fakeStore, *fakeFiles, *styleGenerator) {
	store := &fakeStore{ads: map[string]*model.AdRecreation{}}
	files := &fakeFiles{}
	generator := &styleGenerator{}
	analyzer := &fakeAnalyzer{result: map[string]interface{}{
		"layout":   "hero product centered",
		"mood":     "energetic",
		"lighting": "golden hour",
	}}
	cfg := &config.Config{DefaultAspectRatio: "4:5", DefaultResolution: "4K", MaxAttempts: 3}
	return NewService(store, files, analyzer, generator, cfg), store, files, generator
}

func TestCreateDefaultsVariationsCount(t *testing.T) {
	service, _, _, _ := newTestService()

	ad, err := service.Create(context.Background(), "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdStatusUploaded, ad.Status)
	assert.Equal(t, 3, ad.VariationsCount)
}

func TestCreateRequiresURL(t *testing.T) {
	service, _, _, _ := newTestService()

	_, err := service.Create(context.Background(), "user-1", CreateRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAnalyzeTransitionsToAnalyzed(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)

	analysis, err := service.Analyze(ctx, ad.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "energetic", analysis["mood"])
	assert.Equal(t, model.AdStatusAnalyzed, store.ads[ad.ID].Status)
}

func TestAnalyzeRejectedOutsideUploadedStatus(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)
	store.ads[ad.ID].Status = model.AdStatusCompleted

	_, err = service.Analyze(ctx, ad.ID, "user-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateVariationsRequiresAnalyzed(t *testing.T) {
	service, _, _, _ := newTestService()
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)

	_, err = service.GenerateVariations(ctx, ad.ID, "user-1", VariationsRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateVariationsSequential(t *testing.T) {
	service, _, files, generator := newTestService()
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
		BrandBrief:      "sustainable linen shirts",
	})
	require.NoError(t, err)
	_, err = service.Analyze(ctx, ad.ID, "user-1")
	require.NoError(t, err)

	result, err := service.GenerateVariations(ctx, ad.ID, "user-1", VariationsRequest{
		VariationStyles: []string{"minimal", "bold"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.AdStatusCompleted, result.Status)
	assert.Len(t, result.Variations, 3)
	assert.Len(t, files.uploads, 3)
	assert.NotNil(t, result.CompletedAt)

	assert.Contains(t, generator.calls[0], "minimal")
	assert.Contains(t, generator.calls[1], "bold")
	assert.Contains(t, generator.calls[2], "similar")
	for _, call := range generator.calls {
		assert.Contains(t, call, "sustainable linen shirts")
		assert.NotContains(t, call, "{{")
	}
}

func TestGenerateVariationsPartialFailure(t *testing.T) {
	service, _, _, generator := newTestService()
	generator.failOn = "bold"
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)
	_, err = service.Analyze(ctx, ad.ID, "user-1")
	require.NoError(t, err)

	result, err := service.GenerateVariations(ctx, ad.ID, "user-1", VariationsRequest{
		VariationsCount: 2,
		VariationStyles: []string{"minimal", "bold"},
	})
	require.NoError(t, err)

	// 하나 실패해도 전체는 completed
	assert.Equal(t, model.AdStatusCompleted, result.Status)
	assert.Len(t, result.Variations, 2)
	assert.Equal(t, model.StatusCompleted, result.Variations[0].Status)
	assert.Equal(t, model.StatusFailed, result.Variations[1].Status)
	assert.NotEmpty(t, result.Variations[1].Error)
}

func TestGetEnforcesOwnership(t *testing.T) {
	service, _, _, _ := newTestService()
	ctx := context.Background()

	ad, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)

	_, err = service.Get(ctx, ad.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReturnsOnlyOwnRecords(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	first, err := service.Create(ctx, "user-1", CreateRequest{
		CompetitorAdURL: "https://ads.example.com/competitor.png",
	})
	require.NoError(t, err)

	store.ads["ad-other"] = &model.AdRecreation{ID: "ad-other", UserID: "user-2", Status: model.AdStatusUploaded}

	ads, err := service.List(ctx, "user-1", 1, 20)
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, first.ID, ads[0].ID)
}
