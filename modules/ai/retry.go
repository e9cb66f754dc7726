package ai

import (
	"context"
	"log"
	"time"
)

// 테스트에서 대체 가능하도록 변수로 분리
var sleep = time.Sleep

// GenerateWithRetry - 일시적 에러에 대해 지수 백오프로 재시도.
// 거부(ErrRefused)/타임아웃(ErrTimeout)은 즉시 반환한다.
// backoff: 2s → 4s → 8s
func GenerateWithRetry(ctx context.Context, gen ImageGenerator, req ImageRequest, maxAttempts int) (*ImageResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	backoff := 2 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := gen.GenerateImage(ctx, req)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			log.Printf("🚫 Generation failed permanently on attempt %d: %v", attempt, err)
			return nil, err
		}

		if attempt < maxAttempts {
			log.Printf("⚠️  Generation attempt %d/%d failed, retrying in %v: %v", attempt, maxAttempts, backoff, err)
			sleep(backoff)
			backoff *= 2
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	log.Printf("❌ Generation failed after %d attempts: %v", maxAttempts, lastErr)
	return nil, lastErr
}
