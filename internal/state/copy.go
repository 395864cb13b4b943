package state

import "github.com/vibe-assist/vibe-assist/internal/types"

func copyIssue(issue types.Issue) types.Issue {
	if issue.PriorityScore != nil {
		v := *issue.PriorityScore
		issue.PriorityScore = &v
	}
	return issue
}

// copyMap deep-copies a decoded JSON object
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// mergeInto merges src into dst recursively for nested objects
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		incoming, isMap := v.(map[string]any)
		existing, hasMap := dst[k].(map[string]any)
		if isMap && hasMap {
			mergeInto(existing, incoming)
			continue
		}
		dst[k] = copyValue(v)
	}
}
