package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"modeshoot-server/modules/adrecreation"
	"modeshoot-server/modules/ai"
	"modeshoot-server/modules/collections"
	"modeshoot-server/modules/common/config"
	"modeshoot-server/modules/common/database"
	commonredis "modeshoot-server/modules/common/redis"
	"modeshoot-server/modules/common/storage"
	"modeshoot-server/modules/events"
	"modeshoot-server/modules/generations"
	"modeshoot-server/modules/products"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Redis 연결
	redisClient, err := commonredis.Connect()
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	// Database 클라이언트
	db := database.NewClient()
	if db == nil {
		log.Fatal("❌ Failed to initialize database client")
	}

	// Storage 클라이언트
	files := storage.NewClient()

	// AI 백엔드 (gemini | vertex)
	generator, err := ai.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize AI backend: %v", err)
	}
	analyzer := ai.NewGeminiAnalyzer(cfg)

	// 이벤트 허브 + 큐
	hub := events.NewHub()
	queue := generations.NewRedisQueue(redisClient)

	// 서비스 계층
	generationService := generations.NewService(db, queue, files, hub, cfg)
	productService := products.NewService(db, files, analyzer)
	collectionService := collections.NewService(db)
	adService := adrecreation.NewService(db, files, analyzer, generator, cfg)

	// Generation Worker 시작 (백그라운드)
	worker := generations.NewWorker(generationService, queue, generator)
	go worker.Start(ctx)

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")

	generations.NewHandler(generationService, worker).RegisterRoutes(r)
	products.NewHandler(productService).RegisterRoutes(r)
	collections.NewHandler(collectionService).RegisterRoutes(r)
	adrecreation.NewHandler(adService).RegisterRoutes(r)

	log.Printf("🚀 Modeshoot server starting on port %s", cfg.Port)
	log.Printf("📡 SSE endpoint: http://localhost:%s/generations/{id}/stream", cfg.Port)
	log.Printf("🔌 WebSocket endpoint: ws://localhost:%s/ws/generations", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	// 서버 시작
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
