package generations

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/events"
	"modeshoot-server/modules/prompt"
)

// WorkQueue - worker가 소비하는 큐 (RedisQueue가 구현)
type WorkQueue interface {
	Queue
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// Worker - Redis 큐를 감시하며 generation 작업을 처리
type Worker struct {
	service   *Service
	queue     WorkQueue
	generator ai.ImageGenerator
}

func NewWorker(service *Service, queue WorkQueue, generator ai.ImageGenerator) *Worker {
	return &Worker{
		service:   service,
		queue:     queue,
		generator: generator,
	}
}

// Start - Queue 감시 루프 시작 (blocking)
func (w *Worker) Start(ctx context.Context) {
	log.Println("🚀 Generation worker starting...")
	log.Printf("👀 Watching queue: %s", queueKey)

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Generation worker stopped")
			return
		default:
		}

		// Job 받기 (BRPOP - Blocking Right Pop)
		generationID, err := w.queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("🛑 Generation worker stopped")
				return
			}
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if generationID == "" {
			continue
		}

		log.Printf("📩 Received generation job: %s", generationID)
		go w.processGeneration(ctx, generationID)
	}
}

// processGeneration - generation 1건 처리.
// slot들을 2개 동시 실행 제한으로 병렬 처리, slot 실패는 서로 격리.
func (w *Worker) processGeneration(ctx context.Context, generationID string) {
	defer func() {
		if err := w.queue.Release(ctx, generationID); err != nil {
			log.Printf("⚠️ Failed to release guard for %s: %v", generationID, err)
		}
	}()

	// 1단계: Generation 조회
	gen, err := w.service.store.FetchGeneration(ctx, generationID)
	if err != nil || gen == nil {
		log.Printf("❌ Failed to fetch generation %s: %v", generationID, err)
		return
	}

	log.Printf("🎨 Processing generation: %s (%d slots, %s)", gen.ID, len(gen.Visuals), gen.AspectRatio)

	if len(gen.Visuals) == 0 {
		log.Printf("⚠️ Generation %s has no visuals, marking failed", generationID)
		_ = w.service.store.UpdateGenerationStatus(ctx, generationID, model.StatusFailed)
		return
	}

	// 2단계: 참조 이미지 다운로드 (실패해도 프롬프트만으로 진행)
	refs := w.fetchReferences(ctx, gen)

	// 3단계: slot별 병렬 처리 (동시 2개 제한)
	var wg sync.WaitGroup
	var slotMutex sync.Mutex
	semaphore := make(chan struct{}, 2)

	for i := range gen.Visuals {
		if gen.Visuals[i].Status == model.StatusCompleted {
			continue
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }() // 완료 시 반환

			visual := w.runSlot(ctx, gen, index, gen.Visuals[index], refs)

			slotMutex.Lock()
			gen.Visuals[index] = visual
			if err := w.service.store.UpdateVisualSlot(ctx, generationID, visual); err != nil {
				log.Printf("❌ Failed to persist slot %s: %v", visual.Type, err)
			}
			slotMutex.Unlock()
		}(i)
	}

	wg.Wait()

	// 4단계: 최종 상태 판정 (하나라도 성공이면 completed)
	finalStatus := model.AggregateStatus(gen.Visuals)
	if err := w.service.store.UpdateGenerationStatus(ctx, generationID, finalStatus); err != nil {
		log.Printf("❌ Failed to update final status for %s: %v", generationID, err)
	}

	// 5단계: 완료 이벤트 발행
	event := events.NewEvent(events.TypeGenerationCompleted, gen.ID, gen.UserID)
	event.Status = finalStatus
	event.Progress = model.ProgressPercent(gen.Visuals)
	event.CompletedCount = events.Int(gen.CompletedCount())
	event.TotalCount = events.Int(len(gen.Visuals))
	w.service.hub.Publish(event)

	log.Printf("🏁 Generation %s finished: %s (%d/%d completed)",
		gen.ID, finalStatus, gen.CompletedCount(), len(gen.Visuals))
}

// runSlot - slot 1개 생성. 상태 전이와 이벤트 발행 포함.
// 반환된 Visual을 호출자가 저장한다.
func (w *Worker) runSlot(ctx context.Context, gen *model.Generation, index int, visual model.Visual, refs []ai.ImageInput) model.Visual {
	log.Printf("🖼️  [%s] Generating slot: %s", gen.ID, visual.Type)

	visual.Status = model.StatusProcessing
	visual.Error = ""

	procEvent := events.NewEvent(events.TypeVisualProcessing, gen.ID, gen.UserID)
	procEvent.VisualType = visual.Type
	procEvent.VisualIndex = events.Int(index)
	procEvent.Status = model.StatusProcessing
	w.service.hub.Publish(procEvent)

	promptText := visual.Prompt
	if promptText == "" {
		if mp, ok := gen.MergedPrompts[visual.Type]; ok {
			promptText = mp.Prompt
		}
	}
	if promptText == "" {
		return w.failSlot(gen, index, visual, fmt.Errorf("no prompt for slot %s", visual.Type))
	}

	if mp, ok := gen.MergedPrompts[visual.Type]; ok && mp.NegativePrompt != "" {
		promptText = promptText + "\n\nAvoid: " + mp.NegativePrompt
	}
	promptText = prompt.Clean(promptText)

	req := ai.ImageRequest{
		Prompt:      promptText,
		References:  refs,
		AspectRatio: gen.AspectRatio,
		Resolution:  gen.Resolution,
		Model:       gen.ModelOverride,
	}
	result, err := ai.GenerateWithRetry(ctx, w.generator, req, w.service.cfg.MaxAttempts)
	if err != nil {
		return w.failSlot(gen, index, visual, err)
	}

	stored, err := w.service.files.UploadVisual(ctx, result.Data, gen.UserID, gen.ID, visual.Type)
	if err != nil {
		return w.failSlot(gen, index, visual, fmt.Errorf("upload failed: %w", err))
	}

	now := time.Now().UTC()
	visual.Status = model.StatusCompleted
	visual.ImageURL = stored.URL
	visual.ImagePath = stored.Path
	visual.MimeType = "image/webp"
	visual.GeneratedAt = &now
	visual.Error = ""

	doneEvent := events.NewEvent(events.TypeVisualCompleted, gen.ID, gen.UserID)
	doneEvent.VisualType = visual.Type
	doneEvent.VisualIndex = events.Int(index)
	doneEvent.Status = model.StatusCompleted
	doneEvent.ImageURL = stored.URL
	w.service.hub.Publish(doneEvent)

	log.Printf("✅ [%s] Slot completed: %s", gen.ID, visual.Type)
	return visual
}

// failSlot - slot 실패 처리 (다른 slot에 영향 없음)
func (w *Worker) failSlot(gen *model.Generation, index int, visual model.Visual, err error) model.Visual {
	log.Printf("❌ [%s] Slot %s failed: %v", gen.ID, visual.Type, err)

	visual.Status = model.StatusFailed
	visual.Error = err.Error()

	failEvent := events.NewEvent(events.TypeVisualFailed, gen.ID, gen.UserID)
	failEvent.VisualType = visual.Type
	failEvent.VisualIndex = events.Int(index)
	failEvent.Status = model.StatusFailed
	failEvent.Error = err.Error()
	w.service.hub.Publish(failEvent)

	return visual
}

// fetchReferences - 상품 원본 이미지 다운로드 (앞/뒤)
func (w *Worker) fetchReferences(ctx context.Context, gen *model.Generation) []ai.ImageInput {
	product, err := w.service.store.FetchProduct(ctx, gen.ProductID)
	if err != nil || product == nil {
		log.Printf("⚠️ Failed to fetch product %s for references: %v", gen.ProductID, err)
		return nil
	}

	var refs []ai.ImageInput
	for _, url := range []string{product.FrontImageURL, product.BackImageURL} {
		if url == "" {
			continue
		}
		data, err := w.service.files.DownloadImage(ctx, url)
		if err != nil {
			log.Printf("⚠️ Failed to download reference image %s: %v", url, err)
			continue
		}
		refs = append(refs, ai.ImageInput{MIMEType: "image/png", Data: data})
	}

	log.Printf("📎 Loaded %d reference images for generation %s", len(refs), gen.ID)
	return refs
}

// RetryVisual - 실패한 slot 1개만 재실행. 다른 slot은 건드리지 않는다.
// worker가 generation 전체를 처리 중일 때는 거부한다 (visuals 배열 동시 수정 방지).
func (w *Worker) RetryVisual(ctx context.Context, generationID, userID string, index int, modelOverride string) (*model.Generation, error) {
	gen, err := w.service.Get(ctx, generationID, userID)
	if err != nil {
		return nil, err
	}

	if gen.Status == model.StatusProcessing {
		return nil, fmt.Errorf("%w: generation is still processing", ErrValidation)
	}

	if index < 0 || index >= len(gen.Visuals) {
		return nil, fmt.Errorf("%w: visual index %d out of range", ErrValidation, index)
	}

	target := gen.Visuals[index]
	if target.Status == model.StatusProcessing {
		return nil, fmt.Errorf("%w: visual %s is already processing", ErrValidation, target.Type)
	}

	if modelOverride != "" {
		gen.ModelOverride = modelOverride
	}

	refs := w.fetchReferences(ctx, gen)

	visual := w.runSlot(ctx, gen, index, target, refs)
	gen.Visuals[index] = visual

	if err := w.service.store.UpdateVisualSlot(ctx, generationID, visual); err != nil {
		return nil, err
	}

	// 전체 slot 종료 상태면 aggregate 상태도 갱신
	if gen.AllTerminal() {
		finalStatus := model.AggregateStatus(gen.Visuals)
		if finalStatus != gen.Status {
			if err := w.service.store.UpdateGenerationStatus(ctx, generationID, finalStatus); err != nil {
				log.Printf("⚠️ Failed to update status after retry: %v", err)
			}
			gen.Status = finalStatus
		}
	}

	return gen, nil
}
