package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Build - 템플릿의 {{key}} 플레이스홀더를 변수값으로 치환.
// 문자열 배열은 콤마로 연결, 객체는 JSON 직렬화.
// 변수에 없는 플레이스홀더는 그대로 남긴다.
func Build(template string, variables map[string]interface{}) string {
	prompt := template

	for key, value := range variables {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(prompt, placeholder) {
			continue
		}
		prompt = strings.ReplaceAll(prompt, placeholder, renderValue(value))
	}

	return strings.TrimSpace(prompt)
}

// renderValue - 변수값을 프롬프트 문자열로 변환
func renderValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ", ")
	case []interface{}:
		allStrings := true
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				allStrings = false
				break
			}
			parts = append(parts, s)
		}
		if allStrings {
			return strings.Join(parts, ", ")
		}
		return toJSON(v)
	case map[string]interface{}:
		return toJSON(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toJSON(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

// Clean - 연속 공백을 하나로 축소
func Clean(prompt string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(prompt, " "))
}
