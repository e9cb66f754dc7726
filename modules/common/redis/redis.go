package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"modeshoot-server/modules/common/config"
)

var client *redis.Client

// Connect - Redis 연결 초기화 (queue + active guard 용)
func Connect() (*redis.Client, error) {
	cfg := config.GetConfig()

	opts := &redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}

	// 관리형 Redis는 TLS 필요
	if cfg.RedisUseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("✅ Redis 연결 완료: %s", cfg.GetRedisAddr())
	return client, nil
}

// GetClient - 초기화된 Redis 클라이언트 반환
func GetClient() *redis.Client {
	if client == nil {
		log.Fatal("❌ Redis가 초기화되지 않았습니다. Connect()를 먼저 호출하세요.")
	}
	return client
}
