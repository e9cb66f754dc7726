package generations

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 작업 큐 키 (LPUSH / BRPOP)
	queueKey = "generations:queue"

	// active guard 키 prefix (SETNX + TTL)
	activeKeyPrefix = "generations:active:"

	// 작업이 끝나지 않아도 guard가 영구히 남지 않도록 TTL 부여
	activeGuardTTL = 30 * time.Minute
)

// RedisQueue - Redis 리스트 기반 generation 작업 큐
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue - SETNX로 active guard 확보 후 큐에 등록.
// 이미 guard가 있으면 false (중복 dispatch 차단).
func (q *RedisQueue) Enqueue(ctx context.Context, generationID string) (bool, error) {
	acquired, err := q.client.SetNX(ctx, activeKeyPrefix+generationID, "1", activeGuardTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire active guard: %w", err)
	}
	if !acquired {
		log.Printf("⚠️ Generation %s already active, skipping enqueue", generationID)
		return false, nil
	}

	if err := q.client.LPush(ctx, queueKey, generationID).Err(); err != nil {
		// push 실패 시 guard 회수
		q.client.Del(ctx, activeKeyPrefix+generationID)
		return false, fmt.Errorf("failed to push to queue: %w", err)
	}

	log.Printf("📦 Generation %s enqueued", generationID)
	return true, nil
}

// Release - active guard 해제
func (q *RedisQueue) Release(ctx context.Context, generationID string) error {
	return q.client.Del(ctx, activeKeyPrefix+generationID).Err()
}

// Pop - 큐에서 작업 1개 꺼내기 (블로킹, timeout 시 빈 문자열)
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}
