package fallback

import (
	"fmt"
	"strconv"
	"strings"
)

// SafeString - interface{} 값을 string으로 안전하게 변환, 실패 시 기본값
func SafeString(value interface{}, defaultValue string) string {
	if value == nil {
		return defaultValue
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return defaultValue
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return defaultValue
	}
}

// SafeInt - interface{} 값을 int로 안전하게 변환, 실패 시 기본값
func SafeInt(value interface{}, defaultValue int) int {
	if value == nil {
		return defaultValue
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		return defaultValue
	default:
		return defaultValue
	}
}

// 지원하는 aspect ratio 목록
var validAspectRatios = map[string]bool{
	"1:1":  true,
	"2:3":  true,
	"3:2":  true,
	"3:4":  true,
	"4:3":  true,
	"4:5":  true,
	"5:4":  true,
	"9:16": true,
	"16:9": true,
	"21:9": true,
}

// SafeAspectRatio - aspect ratio 검증, 미지원 값이면 기본값
func SafeAspectRatio(value interface{}, defaultValue string) string {
	ratio := SafeString(value, defaultValue)
	if validAspectRatios[ratio] {
		return ratio
	}
	return defaultValue
}

// SafeMap - interface{} 값을 map으로 안전하게 변환, 실패 시 빈 map
func SafeMap(value interface{}) map[string]interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// ToDisplayString - 프롬프트 치환용 문자열 변환 (slice는 콤마 연결)
func ToDisplayString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, ToDisplayString(item))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
