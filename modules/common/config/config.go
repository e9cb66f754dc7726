package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	SupabaseStorageBucket  string

	// AI Backend ("gemini" | "vertex")
	AIBackend      string
	GeminiAPIKey   string
	GeminiAPIKeys  []string
	GeminiModel    string
	AnalysisModel  string
	VertexProject  string
	VertexLocation string

	// Server
	Port        string
	FrontendURL string

	// Generation 기본값
	DefaultAspectRatio string
	DefaultResolution  string
	SlotTimeout        time.Duration
	MaxAttempts        int
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	// Slot timeout 파싱 (초 단위, 이미지 생성은 오래 걸림)
	slotTimeout := 180 * time.Second
	if timeoutStr := os.Getenv("SLOT_TIMEOUT_SECONDS"); timeoutStr != "" {
		if parsed, err := strconv.Atoi(timeoutStr); err == nil && parsed > 0 {
			slotTimeout = time.Duration(parsed) * time.Second
		}
	}

	// 재시도 횟수 파싱
	maxAttempts := 3
	if attemptsStr := os.Getenv("GENERATION_MAX_ATTEMPTS"); attemptsStr != "" {
		if parsed, err := strconv.Atoi(attemptsStr); err == nil && parsed > 0 {
			maxAttempts = parsed
		}
	}

	primaryKey := getEnv("GEMINI_API_KEY", "")

	// 보조 키 목록 (쉼표 구분) - rate limit 시 순차 사용
	apiKeys := []string{}
	if primaryKey != "" {
		apiKeys = append(apiKeys, primaryKey)
	}
	if extra := os.Getenv("GEMINI_API_KEYS"); extra != "" {
		for _, key := range strings.Split(extra, ",") {
			key = strings.TrimSpace(key)
			if key != "" && key != primaryKey {
				apiKeys = append(apiKeys, key)
			}
		}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "visuals"),

		// AI Backend
		AIBackend:      getEnv("AI_BACKEND", "gemini"),
		GeminiAPIKey:   primaryKey,
		GeminiAPIKeys:  apiKeys,
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		AnalysisModel:  getEnv("ANALYSIS_MODEL", "gemini-1.5-flash"),
		VertexProject:  getEnv("VERTEXAI_PROJECT", ""),
		VertexLocation: getEnv("VERTEXAI_LOCATION", "us-central1"),

		// Server
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "*"),

		// Generation 기본값
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "4:5"),
		DefaultResolution:  getEnv("DEFAULT_RESOLUTION", "4K"),
		SlotTimeout:        slotTimeout,
		MaxAttempts:        maxAttempts,
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s", globalConfig.SupabaseURL)
	log.Printf("   AI Backend: %s (model: %s)", globalConfig.AIBackend, globalConfig.GeminiModel)
	log.Printf("   Defaults: %s / %s, timeout %s, %d attempts",
		globalConfig.DefaultAspectRatio, globalConfig.DefaultResolution, globalConfig.SlotTimeout, globalConfig.MaxAttempts)

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	switch c.AIBackend {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case "vertex":
		if c.VertexProject == "" {
			return fmt.Errorf("VERTEXAI_PROJECT is required when AI_BACKEND=vertex")
		}
	default:
		return fmt.Errorf("unknown AI_BACKEND: %s", c.AIBackend)
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
