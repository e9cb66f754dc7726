package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"modeshoot-server/modules/common/config"
)

// GeminiAnalyzer - Gemini vision 모델 기반 이미지 분석기.
// 상품 사진/경쟁사 광고에서 구조화된 JSON을 추출한다.
type GeminiAnalyzer struct {
	apiKey string
	model  string
}

func NewGeminiAnalyzer(cfg *config.Config) *GeminiAnalyzer {
	return &GeminiAnalyzer{
		apiKey: cfg.GeminiAPIKey,
		model:  cfg.AnalysisModel,
	}
}

// AnalyzeImage - 이미지들을 분석해 JSON 객체로 반환
func (a *GeminiAnalyzer) AnalyzeImage(ctx context.Context, prompt string, images []ImageInput) (map[string]interface{}, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)

	var parts []genai.Part
	for _, img := range images {
		format := strings.TrimPrefix(img.MIMEType, "image/")
		parts = append(parts, genai.ImageData(format, img.Data))
	}
	parts = append(parts, genai.Text(prompt+"\n\nRespond with a single JSON object only."))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in analysis response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	raw := stripJSONFences(sb.String())

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}

	log.Printf("✅ Image analysis complete: %d top-level fields", len(result))
	return result, nil
}

// stripJSONFences - ```json ... ``` 마크다운 펜스 제거
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
