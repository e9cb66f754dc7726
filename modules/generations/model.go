package generations

import (
	"encoding/json"
	"errors"

	"modeshoot-server/modules/common/model"
)

var (
	// ErrNotFound - 대상 리소스 없음 (404)
	ErrNotFound = errors.New("not found")

	// ErrForbidden - 소유자가 아님 (403)
	ErrForbidden = errors.New("forbidden")

	// ErrValidation - 요청 검증 실패 (400)
	ErrValidation = errors.New("bad request")
)

// CreateGenerationRequest - POST /generations 요청
type CreateGenerationRequest struct {
	ProductID      string `json:"product_id"`
	CollectionID   string `json:"collection_id"`
	GenerationType string `json:"generation_type,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
}

// PromptEdit - 프롬프트 편집 1건. JSON 문자열("...")과
// 객체({prompt, negative_prompt, output}) 두 형태를 모두 받는다.
type PromptEdit struct {
	Prompt         string              `json:"prompt"`
	NegativePrompt *string             `json:"negative_prompt,omitempty"`
	Output         *model.PromptOutput `json:"output,omitempty"`
}

func (p *PromptEdit) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.Prompt)
	}
	type plain PromptEdit
	var edit plain
	if err := json.Unmarshal(data, &edit); err != nil {
		return err
	}
	*p = PromptEdit(edit)
	return nil
}

// UpdatePromptsRequest - POST /generations/{id}/prompts 요청.
// slot 순서대로 프롬프트를 덮어쓴다.
type UpdatePromptsRequest struct {
	Prompts []PromptEdit `json:"prompts"`
}

// GenerateRequest - POST /generations/{id}/generate 요청.
// prompts가 비어 있으면 저장된 프롬프트 사용. model은 백엔드 기본 모델 덮어쓰기.
type GenerateRequest struct {
	Prompts []PromptEdit `json:"prompts,omitempty"`
	Model   string       `json:"model,omitempty"`
}

// RetryVisualRequest - POST /generations/{id}/visuals/{index}/retry 요청 (optional body)
type RetryVisualRequest struct {
	Model string `json:"model,omitempty"`
}

// ListResponse - GET /generations 응답
type ListResponse struct {
	Items []model.Generation `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// PromptsResponse - GET /generations/{id}/prompts 응답
type PromptsResponse struct {
	Prompts []string `json:"prompts"`
}

// ProgressResponse - GET /generations/{id}/progress 응답
type ProgressResponse struct {
	GenerationID          string         `json:"generation_id"`
	Status                string         `json:"status"`
	CurrentStep           string         `json:"current_step,omitempty"`
	ProgressPercent       int            `json:"progress_percent"`
	CompletedVisualsCount int            `json:"completed_visuals_count"`
	TotalVisuals          int            `json:"total_visuals"`
	Visuals               []model.Visual `json:"visuals"`
}
