package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"modeshoot-server/modules/common/config"
)

// VertexGenerator - Vertex AI 기반 이미지 생성기 (서비스 계정 인증)
type VertexGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewVertexGenerator - Vertex AI 클라이언트 생성 (환경 변수 자동 처리)
func NewVertexGenerator(ctx context.Context, cfg *config.Config) (*VertexGenerator, error) {
	var opts []option.ClientOption

	// 1. VERTEXAI_CREDENTIALS_JSON 확인 (배포 환경용)
	if credsJSON := os.Getenv("VERTEXAI_CREDENTIALS_JSON"); credsJSON != "" {
		log.Println("✅ [VertexAI] Using VERTEXAI_CREDENTIALS_JSON from environment")
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	} else if credsPath := os.Getenv("VERTEXAI_CREDENTIALS_PATH"); credsPath != "" {
		// 2. VERTEXAI_CREDENTIALS_PATH 확인 (로컬 테스트용)
		log.Printf("✅ [VertexAI] Using credentials from file: %s", credsPath)
		credsData, err := os.ReadFile(credsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		var creds map[string]interface{}
		if err := json.Unmarshal(credsData, &creds); err != nil {
			return nil, fmt.Errorf("invalid JSON credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credsData))
	} else {
		// 3. Application Default Credentials (ADC)
		log.Println("⚠️  [VertexAI] No explicit credentials found, using Application Default Credentials")
	}

	client, err := genai.NewClient(ctx, cfg.VertexProject, cfg.VertexLocation, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [VertexAI] Client initialized for project=%s, location=%s", cfg.VertexProject, cfg.VertexLocation)
	return &VertexGenerator{
		client:  client,
		model:   cfg.GeminiModel,
		timeout: cfg.SlotTimeout,
	}, nil
}

// GenerateImage - 프롬프트 + 참조 이미지로 1장 생성.
// Vertex SDK에는 ImageConfig가 없어 aspect ratio/해상도를 프롬프트에 명시한다.
func (v *VertexGenerator) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	modelName := v.model
	if req.Model != "" {
		modelName = req.Model
	}
	model := v.client.GenerativeModel(modelName)

	var parts []genai.Part
	for _, ref := range req.References {
		parts = append(parts, genai.Blob{
			MIMEType: ref.MIMEType,
			Data:     ref.Data,
		})
	}
	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt = prompt + fmt.Sprintf("\n\nOutput aspect ratio: %s.", req.AspectRatio)
	}
	if req.Resolution != "" {
		prompt = prompt + fmt.Sprintf("\nOutput resolution: %s.", req.Resolution)
	}
	parts = append(parts, genai.Text(prompt))

	result, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			log.Printf("⏰ [VertexAI] Generation timed out after %v", v.timeout)
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("vertex generate failed: %w", err)
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Blob:
				if len(p.Data) > 0 {
					log.Printf("✅ Received image from Vertex AI: %d bytes", len(p.Data))
					mimeType := p.MIMEType
					if mimeType == "" {
						mimeType = "image/png"
					}
					return &ImageResult{MIMEType: mimeType, Data: p.Data}, nil
				}
			case genai.Text:
				textParts = append(textParts, string(p))
			}
		}
	}

	text := strings.Join(textParts, " ")
	if isRefusalText(text) {
		log.Printf("🚫 [VertexAI] Model refused: %s", text)
		return nil, ErrRefused
	}

	return nil, fmt.Errorf("no image data in response: %s", text)
}
