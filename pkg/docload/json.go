package docload

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// jsonToText flattens a JSON document into "key: value" lines with
// two-space indentation per nesting level. Object keys are emitted in
// sorted order so extraction stays deterministic.
func jsonToText(data []byte) (string, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return "", err
	}
	return strings.Join(flattenJSON(root, ""), "\n"), nil
}

func flattenJSON(value any, prefix string) []string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var lines []string
		for _, k := range keys {
			switch v[k].(type) {
			case map[string]any, []any:
				lines = append(lines, prefix+k+":")
				lines = append(lines, flattenJSON(v[k], prefix+"  ")...)
			default:
				lines = append(lines, fmt.Sprintf("%s%s: %v", prefix, k, v[k]))
			}
		}
		return lines
	case []any:
		var lines []string
		for i, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				lines = append(lines, fmt.Sprintf("%s[%d]:", prefix, i))
				lines = append(lines, flattenJSON(item, prefix+"  ")...)
			default:
				lines = append(lines, fmt.Sprintf("%s%v", prefix, item))
			}
		}
		return lines
	default:
		return []string{fmt.Sprintf("%s%v", prefix, v)}
	}
}
