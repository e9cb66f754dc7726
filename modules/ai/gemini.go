package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"modeshoot-server/modules/common/config"
)

// GeminiGenerator - Gemini API 기반 이미지 생성기.
// 429 rate limit 시 다음 API 키로 전환 (키별 최대 3회 시도).
type GeminiGenerator struct {
	apiKeys []string
	model   string
	timeout time.Duration
}

func NewGeminiGenerator(cfg *config.Config) *GeminiGenerator {
	return &GeminiGenerator{
		apiKeys: cfg.GeminiAPIKeys,
		model:   cfg.GeminiModel,
		timeout: cfg.SlotTimeout,
	}
}

// GenerateImage - 프롬프트 + 참조 이미지로 1장 생성
func (g *GeminiGenerator) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if len(g.apiKeys) == 0 {
		return nil, fmt.Errorf("no Gemini API keys configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var parts []*genai.Part
	for _, ref := range req.References {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: ref.MIMEType,
				Data:     ref.Data,
			},
		})
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	content := &genai.Content{
		Parts: parts,
		Role:  "user",
	}

	genConfig := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   req.Resolution,
		},
	}

	modelName := g.model
	if req.Model != "" {
		modelName = req.Model
	}

	const maxRetriesPerKey = 3
	var lastErr error

	for keyIndex, apiKey := range g.apiKeys {
		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				log.Printf("⚠️  [Gemini] Failed to create client with key #%d: %v", keyIndex+1, err)
				lastErr = err
				continue
			}

			result, err := client.Models.GenerateContent(ctx, modelName, []*genai.Content{content}, genConfig)
			if err == nil {
				return extractImage(result)
			}

			lastErr = err

			// 타임아웃은 재시도하지 않음
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				log.Printf("⏰ [Gemini] Generation timed out after %v", g.timeout)
				return nil, ErrTimeout
			}

			// 429가 아니면 바로 반환
			if !is429Error(err) {
				log.Printf("❌ [Gemini] Key #%d failed with non-429 error: %v", keyIndex+1, err)
				return nil, err
			}

			log.Printf("⚠️  [Gemini] Key #%d hit rate limit (429) on attempt %d/%d", keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				time.Sleep(time.Second * 2)
			}
		}

		log.Printf("⚠️  [Gemini] Key #%d exhausted, trying next key...", keyIndex+1)
	}

	return nil, fmt.Errorf("all %d API keys exhausted, last error: %w", len(g.apiKeys), lastErr)
}

// extractImage - 응답에서 이미지 추출. 이미지 없이 거부 텍스트만 있으면 ErrRefused.
func extractImage(result *genai.GenerateContentResponse) (*ImageResult, error) {
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				log.Printf("✅ Received image from Gemini: %d bytes", len(part.InlineData.Data))
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return &ImageResult{MIMEType: mimeType, Data: part.InlineData.Data}, nil
			}
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		}
	}

	text := strings.Join(textParts, " ")
	if isRefusalText(text) {
		log.Printf("🚫 [Gemini] Model refused: %s", text)
		return nil, ErrRefused
	}

	return nil, fmt.Errorf("no image data in response: %s", text)
}

// is429Error - 429 Rate Limit 에러인지 확인
func is429Error(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(strings.ToLower(errStr), "rate limit") ||
		strings.Contains(strings.ToLower(errStr), "quota")
}
