package prompt

import (
	"fmt"

	"modeshoot-server/modules/common/fallback"
	"modeshoot-server/modules/common/model"
)

// 기본 negative prompt - 모든 slot 공통
const NegativePrompt = "blurry, low quality, distorted fabric, wrong colors, " +
	"extra limbs, deformed hands, watermark, text overlay, logo artifacts, " +
	"oversaturated, cartoon, illustration, 3d render"

// slot별 프롬프트 템플릿
var slotTemplates = map[string]string{
	model.SlotDuo: `Professional fashion e-commerce photography. Two adult models wearing the {{product_color}} {{product_type}} made of {{product_fabric}}, standing together in natural poses. Background: {{background}}, floor: {{floor}}. Props: {{props}}. Styling: {{styling}}. Lighting: {{lighting}}. Mood: {{mood}}. {{quality}} quality, sharp focus on garment details: {{product_details}}.`,

	model.SlotSolo: `Professional fashion e-commerce photography. One adult model wearing the {{product_color}} {{product_type}} made of {{product_fabric}}, relaxed full-body pose. Background: {{background}}, floor: {{floor}}. Props: {{props}}. Styling: {{styling}}. Lighting: {{lighting}}. Mood: {{mood}}. {{quality}} quality, sharp focus on garment details: {{product_details}}.`,

	model.SlotFlatlayFront: `Professional flat lay product photography, top-down view. The {{product_color}} {{product_type}} made of {{product_fabric}}, front side facing up, neatly arranged on {{floor}}. Props: {{props}}. Lighting: {{lighting}}. Mood: {{mood}}. {{quality}} quality, true-to-life colors, visible details: {{product_details}}. No model.`,

	model.SlotFlatlayBack: `Professional flat lay product photography, top-down view. The {{product_color}} {{product_type}} made of {{product_fabric}}, back side facing up, neatly arranged on {{floor}}. Props: {{props}}. Lighting: {{lighting}}. Mood: {{mood}}. {{quality}} quality, true-to-life colors, visible details: {{product_details}}. No model.`,

	model.SlotCloseupFront: `Macro detail photography of the front of the {{product_color}} {{product_type}}. Extreme closeup of fabric texture ({{product_fabric}}) and construction details: {{product_details}}. Background: {{background}}. Lighting: {{lighting}}. {{quality}} quality, tack-sharp focus.`,

	model.SlotCloseupBack: `Macro detail photography of the back of the {{product_color}} {{product_type}}. Extreme closeup of fabric texture ({{product_fabric}}) and construction details: {{product_details}}. Background: {{background}}. Lighting: {{lighting}}. {{quality}} quality, tack-sharp focus.`,
}

// slot별 model type (모델 없는 컷은 "none")
var slotModelTypes = map[string]string{
	model.SlotDuo:          "adult",
	model.SlotSolo:         "adult",
	model.SlotFlatlayFront: "none",
	model.SlotFlatlayBack:  "none",
	model.SlotCloseupFront: "none",
	model.SlotCloseupBack:  "none",
}

// BuildMergedPrompts - 상품 JSON + DA JSON으로 6개 slot의 최종 프롬프트 생성.
// 모든 변수에 fallback을 적용해 미해결 플레이스홀더가 남지 않는다.
func BuildMergedPrompts(productJSON, daJSON map[string]interface{}, aspectRatio, resolution string) map[string]model.MergedPrompt {
	vars := buildTemplateVars(productJSON, daJSON)

	prompts := make(map[string]model.MergedPrompt, len(model.VisualSlots))
	for i, slot := range model.VisualSlots {
		text := Clean(Build(slotTemplates[slot], vars))
		modelType := slotModelTypes[slot]

		prompts[slot] = model.MergedPrompt{
			VisualID:       fmt.Sprintf("visual_%d_%s_%s", i+1, slot, modelType),
			ShotType:       slot,
			ModelType:      modelType,
			Prompt:         text,
			NegativePrompt: NegativePrompt,
			Output: model.PromptOutput{
				Resolution:  resolution,
				AspectRatio: aspectRatio,
			},
			Editable: true,
		}
	}

	return prompts
}

// buildTemplateVars - 상품/DA JSON을 템플릿 변수로 평탄화 (누락값은 기본값)
func buildTemplateVars(productJSON, daJSON map[string]interface{}) map[string]interface{} {
	background := fallback.SafeMap(daJSON["background"])
	props := fallback.SafeMap(daJSON["props"])
	styling := fallback.SafeMap(daJSON["styling"])
	lighting := fallback.SafeMap(daJSON["lighting"])

	backgroundDesc := fallback.SafeString(background["type"], "seamless studio backdrop")
	if hex := fallback.SafeString(background["hex"], ""); hex != "" {
		backgroundDesc = backgroundDesc + " (" + hex + ")"
	}

	propsDesc := joinNonEmpty(
		fallback.ToDisplayString(props["left_side"]),
		fallback.ToDisplayString(props["right_side"]),
	)
	if propsDesc == "" {
		propsDesc = "none"
	}

	stylingDesc := joinNonEmpty(
		fallback.ToDisplayString(styling["pants"]),
		fallback.ToDisplayString(styling["footwear"]),
	)
	if stylingDesc == "" {
		stylingDesc = "minimal neutral styling"
	}

	lightingDesc := fallback.SafeString(lighting["type"], "soft diffused studio light")
	if temp := fallback.SafeString(lighting["temperature"], ""); temp != "" {
		lightingDesc = lightingDesc + ", " + temp
	}

	details := fallback.ToDisplayString(productJSON["details"])
	if details == "" {
		details = "stitching, trims and closures"
	}

	return map[string]interface{}{
		"product_type":    fallback.SafeString(productJSON["type"], "garment"),
		"product_color":   fallback.SafeString(productJSON["color"], fallback.SafeString(productJSON["color_name"], "neutral tone")),
		"product_fabric":  fallback.SafeString(productJSON["fabric"], "premium fabric"),
		"product_details": details,
		"background":      backgroundDesc,
		"floor":           fallback.SafeString(daJSON["floor"], "matching studio floor"),
		"props":           propsDesc,
		"styling":         stylingDesc,
		"lighting":        lightingDesc,
		"mood":            fallback.SafeString(daJSON["mood"], "clean and modern"),
		"quality":         fallback.SafeString(daJSON["quality"], "ultra high"),
	}
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
