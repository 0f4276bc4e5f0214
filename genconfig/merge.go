package genconfig

// deepMerge merges overlay onto base and returns a new document. When both
// sides hold a mapping under the same key the mappings merge recursively;
// for every other value the overlay wins. Neither input is mutated.
func deepMerge(base, overlay Document) Document {
	result := deepCopy(base)
	for key, value := range overlay {
		baseVal, exists := result[key]
		baseMap, baseIsMap := asMap(baseVal)
		overlayMap, overlayIsMap := asMap(value)
		if exists && baseIsMap && overlayIsMap {
			result[key] = map[string]any(deepMerge(Document(baseMap), Document(overlayMap)))
			continue
		}
		result[key] = copyValue(value)
	}
	return result
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

func deepCopy(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Document:
		return map[string]any(deepCopy(val))
	case map[string]any:
		return map[string]any(deepCopy(Document(val)))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
