package generations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/events"
)

// Pop - worker 테스트용 논블로킹 구현
func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) == 0 {
		return "", nil
	}
	id := q.queued[0]
	q.queued = q.queued[1:]
	return id, nil
}

// slotFailGenerator - 프롬프트에 특정 문구가 들어 있으면 실패하는 생성기
type slotFailGenerator struct {
	mu       sync.Mutex
	failOn   string
	failWith error
	calls    []string
	requests []ai.ImageRequest
}

func (g *slotFailGenerator) GenerateImage(ctx context.Context, req ai.ImageRequest) (*ai.ImageResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Prompt)
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.failOn != "" && strings.Contains(req.Prompt, g.failOn) {
		return nil, g.failWith
	}
	return &ai.ImageResult{MIMEType: "image/png", Data: []byte("png-bytes")}, nil
}

func createAndQueue(t *testing.T, env *testEnv) *model.Generation {
	t.Helper()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)
	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{})
	require.NoError(t, err)
	return gen
}

func TestWorkerCompletesAllSlots(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	generator := &slotFailGenerator{}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	final, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, final.Status)
	assert.Equal(t, 6, final.CompletedCount())
	assert.Equal(t, 100, final.ProgressPercent)
	for _, v := range final.Visuals {
		assert.Equal(t, model.StatusCompleted, v.Status)
		assert.NotEmpty(t, v.ImageURL)
		assert.NotNil(t, v.GeneratedAt)
	}

	// active guard 해제 확인
	assert.False(t, env.queue.active[gen.ID])
}

func TestWorkerIsolatesSlotFailure(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	// flatlay_front만 거부됨
	generator := &slotFailGenerator{failOn: "front side facing up", failWith: ai.ErrRefused}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	final, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)

	// 하나 실패해도 나머지는 완료, aggregate는 completed
	assert.Equal(t, model.StatusCompleted, final.Status)
	assert.Equal(t, 5, final.CompletedCount())
	assert.Len(t, final.Visuals, 6)

	var failed *model.Visual
	for i := range final.Visuals {
		if final.Visuals[i].Status == model.StatusFailed {
			failed = &final.Visuals[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "flatlay_front", failed.Type)
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.ImageURL)
}

func TestWorkerAllSlotsFailedMeansFailed(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	generator := &slotFailGenerator{failOn: "", failWith: ai.ErrRefused}
	generator.failOn = "photography" // 모든 템플릿에 포함됨
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	final, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, final.Status)
	assert.Equal(t, 0, final.CompletedCount())
	for _, v := range final.Visuals {
		assert.Equal(t, model.StatusFailed, v.Status)
	}
}

func TestWorkerPublishesProgressEvents(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	sub := env.hub.Subscribe(gen.ID, "user-1")
	defer env.hub.Unsubscribe(gen.ID, "user-1", sub)

	generator := &slotFailGenerator{failOn: "front side facing up", failWith: ai.ErrRefused}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	counts := map[string]int{}
	for len(sub.Channel) > 0 {
		event := <-sub.Channel
		counts[event.Type]++
		assert.Equal(t, gen.ID, event.GenerationID)
		assert.Equal(t, "user-1", event.UserID)
		assert.NotEmpty(t, event.Timestamp)

		switch event.Type {
		case events.TypeVisualProcessing, events.TypeVisualCompleted, events.TypeVisualFailed:
			require.NotNil(t, event.VisualIndex)
			assert.GreaterOrEqual(t, *event.VisualIndex, 0)
			assert.Less(t, *event.VisualIndex, 6)
		case events.TypeGenerationCompleted:
			require.NotNil(t, event.CompletedCount)
			require.NotNil(t, event.TotalCount)
			assert.Equal(t, 5, *event.CompletedCount)
			assert.Equal(t, 6, *event.TotalCount)
		}
	}

	assert.Equal(t, 6, counts[events.TypeVisualProcessing])
	assert.Equal(t, 5, counts[events.TypeVisualCompleted])
	assert.Equal(t, 1, counts[events.TypeVisualFailed])
	assert.Equal(t, 1, counts[events.TypeGenerationCompleted])
}

func TestRetryVisualTouchesOnlyItsSlot(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	// 첫 실행: flatlay_front 실패
	generator := &slotFailGenerator{failOn: "front side facing up", failWith: ai.ErrRefused}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	before, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 5, before.CompletedCount())

	// 재시도: 이번엔 성공
	generator.mu.Lock()
	generator.failOn = ""
	generator.mu.Unlock()

	failedIndex := -1
	for i, v := range before.Visuals {
		if v.Status == model.StatusFailed {
			failedIndex = i
		}
	}
	require.GreaterOrEqual(t, failedIndex, 0)

	uploadsBefore := len(env.files.uploads)
	after, err := worker.RetryVisual(context.Background(), gen.ID, "user-1", failedIndex, "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, after.Visuals[failedIndex].Status)
	assert.Equal(t, 6, after.CompletedCount())
	assert.Equal(t, model.StatusCompleted, after.Status)
	// 다른 slot은 재업로드되지 않음
	assert.Equal(t, uploadsBefore+1, len(env.files.uploads))
}

func TestRetryVisualIndexOutOfRange(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1",
	})
	require.NoError(t, err)

	worker := NewWorker(env.service, env.queue, &slotFailGenerator{})

	_, err = worker.RetryVisual(ctx, gen.ID, "user-1", 99, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = worker.RetryVisual(ctx, gen.ID, "user-1", -1, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRetryVisualRejectedWhileGenerationProcessing(t *testing.T) {
	env := newTestEnv()
	// Generate 직후는 아직 worker가 집어가지 않은 processing 상태
	gen := createAndQueue(t, env)

	worker := NewWorker(env.service, env.queue, &slotFailGenerator{})

	_, err := worker.RetryVisual(context.Background(), gen.ID, "user-1", 0, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	// 아무 slot도 건드리지 않았는지 확인
	after, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)
	for _, v := range after.Visuals {
		assert.Equal(t, model.StatusPending, v.Status)
	}
}

func TestWorkerPassesResolutionAndModelToGenerator(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	gen, err := env.service.Create(ctx, "user-1", CreateGenerationRequest{
		ProductID: "prod-1", CollectionID: "col-1", Resolution: "2K",
	})
	require.NoError(t, err)
	_, err = env.service.Generate(ctx, gen.ID, "user-1", GenerateRequest{Model: "gemini-3-pro-image-preview"})
	require.NoError(t, err)

	generator := &slotFailGenerator{}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(ctx, gen.ID)

	require.NotEmpty(t, generator.requests)
	for _, req := range generator.requests {
		assert.Equal(t, "2K", req.Resolution)
		assert.Equal(t, "gemini-3-pro-image-preview", req.Model)
		assert.Equal(t, gen.AspectRatio, req.AspectRatio)
	}
}

func TestRetryVisualUsesModelOverride(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	generator := &slotFailGenerator{failOn: "front side facing up", failWith: ai.ErrRefused}
	worker := NewWorker(env.service, env.queue, generator)
	worker.processGeneration(context.Background(), gen.ID)

	before, err := env.service.Get(context.Background(), gen.ID, "user-1")
	require.NoError(t, err)

	failedIndex := -1
	for i, v := range before.Visuals {
		if v.Status == model.StatusFailed {
			failedIndex = i
		}
	}
	require.GreaterOrEqual(t, failedIndex, 0)

	generator.mu.Lock()
	generator.failOn = ""
	generator.mu.Unlock()

	_, err = worker.RetryVisual(context.Background(), gen.ID, "user-1", failedIndex, "gemini-2.5-flash-image")
	require.NoError(t, err)

	generator.mu.Lock()
	last := generator.requests[len(generator.requests)-1]
	generator.mu.Unlock()
	assert.Equal(t, "gemini-2.5-flash-image", last.Model)
}

func TestWorkerRetriesTransientErrors(t *testing.T) {
	env := newTestEnv()
	gen := createAndQueue(t, env)

	// 항상 transient 에러: 각 slot당 MaxAttempts(3)회 시도
	transient := errors.New("503 service unavailable")
	generator := &slotFailGenerator{failOn: "photography", failWith: transient}
	worker := NewWorker(env.service, env.queue, generator)

	done := make(chan struct{})
	go func() {
		worker.processGeneration(context.Background(), gen.ID)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Minute):
		t.Fatal("worker did not finish")
	}

	generator.mu.Lock()
	calls := len(generator.calls)
	generator.mu.Unlock()
	assert.Equal(t, 18, calls) // 6 slots * 3 attempts
}
