package prompt

// DeepClone - map/slice 구조를 재귀 복사 (원본 변형 방지)
func DeepClone(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		clone := make(map[string]interface{}, len(v))
		for key, item := range v {
			clone[key] = DeepClone(item)
		}
		return clone
	case []interface{}:
		clone := make([]interface{}, len(v))
		for i, item := range v {
			clone[i] = DeepClone(item)
		}
		return clone
	default:
		return v
	}
}

// MergeDeep - source를 target 위에 재귀 병합.
// 배열은 통째로 교체, 객체는 재귀, 스칼라는 덮어쓰기. target을 변형한다.
func MergeDeep(target, source map[string]interface{}) map[string]interface{} {
	if target == nil {
		target = map[string]interface{}{}
	}

	for key, sourceValue := range source {
		targetValue := target[key]

		targetMap, targetIsMap := targetValue.(map[string]interface{})
		sourceMap, sourceIsMap := sourceValue.(map[string]interface{})

		if targetIsMap && sourceIsMap {
			target[key] = MergeDeep(targetMap, sourceMap)
		} else {
			target[key] = sourceValue
		}
	}

	return target
}

// MergeJSON - original 위에 overrides 병합 (clone 후 병합, 원본 보존)
func MergeJSON(original, overrides map[string]interface{}) map[string]interface{} {
	if overrides == nil {
		return original
	}

	clone, _ := DeepClone(original).(map[string]interface{})
	return MergeDeep(clone, overrides)
}
