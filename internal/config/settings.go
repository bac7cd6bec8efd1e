package config

import (
	"maps"
	"strings"
)

// deepMerge recursively merges src into dst. Maps merge key by key; any
// other value in src replaces the one in dst.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = cloneValue(srcVal)
	}
	return dst
}

// cloneValue deep-copies maps and slices.
func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case map[string]string:
		return maps.Clone(v)
	default:
		return val
	}
}

// getByPath retrieves a value from a nested map by dotted path. The empty
// path selects the whole map.
func getByPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return data, data != nil
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// setByPath sets a value in a nested map by dotted path, creating
// intermediate maps as needed.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// normalize expands dotted keys ("vemod.vmdls.path": x) into nested maps,
// so flat and nested spellings of a setting merge the same way.
func normalize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, val := range data {
		if m, ok := val.(map[string]any); ok {
			val = normalize(m)
		}
		if !strings.Contains(key, ".") {
			out = deepMerge(out, map[string]any{key: val})
			continue
		}
		nested := make(map[string]any)
		setByPath(nested, key, val)
		out = deepMerge(out, nested)
	}
	return out
}
