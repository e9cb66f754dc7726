package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modeshoot-server/modules/common/config"
)

var (
	// ErrRefused - 모델이 생성을 거부함 (정책 위반 등, 재시도 불가)
	ErrRefused = errors.New("model refused to generate image")

	// ErrTimeout - slot 타임아웃 초과 (재시도 불가)
	ErrTimeout = errors.New("image generation timed out")
)

// ImageInput - 생성/분석에 첨부하는 참조 이미지
type ImageInput struct {
	MIMEType string
	Data     []byte
}

// ImageResult - 생성 결과 이미지
type ImageResult struct {
	MIMEType string
	Data     []byte
}

// ImageRequest - 이미지 생성 1회 요청
type ImageRequest struct {
	Prompt      string
	References  []ImageInput
	AspectRatio string
	Resolution  string // "1K" | "2K" | "4K", 비어 있으면 백엔드 기본값
	Model       string // 비어 있으면 백엔드 기본 모델
}

// ImageGenerator - 이미지 생성 백엔드 인터페이스
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// VisionAnalyzer - 이미지 분석(JSON 추출) 백엔드 인터페이스
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, prompt string, images []ImageInput) (map[string]interface{}, error)
}

// IsRetryable - 재시도 가능한 에러인지 (거부/타임아웃은 재시도 금지)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRefused) || errors.Is(err, ErrTimeout) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// isRefusalText - 모델이 이미지 대신 거부 텍스트를 반환했는지 판별
func isRefusalText(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"cannot generate", "can't generate", "unable to", "violates", "policy"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// NewFromConfig - 설정된 백엔드에 맞는 ImageGenerator 생성
func NewFromConfig(ctx context.Context, cfg *config.Config) (ImageGenerator, error) {
	switch cfg.AIBackend {
	case "vertex":
		return NewVertexGenerator(ctx, cfg)
	case "gemini", "":
		return NewGeminiGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI backend: %s", cfg.AIBackend)
	}
}
