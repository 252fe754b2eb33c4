package extract

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/use-agent/igextract/models"
)

// maxDepth bounds tree walks over untrusted payloads.
const maxDepth = 64

// at follows a dotted path through maps and arrays ("a.edges.0.node").
func at(v any, path string) (any, bool) {
	if path == "" {
		return v, v != nil
	}
	for _, sec := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[sec]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(sec)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

// firstString returns the first non-empty string found at any of paths.
func firstString(v any, paths ...string) string {
	for _, p := range paths {
		if s, ok := at(v, p); ok {
			if str, ok := s.(string); ok {
				if str = strings.TrimSpace(str); str != "" {
					return str
				}
			}
		}
	}
	return ""
}

// firstCount returns the first count found at any of paths. Numbers,
// numeric strings and {"count": n} objects are accepted.
func firstCount(v any, paths ...string) (int64, bool) {
	for _, p := range paths {
		raw, ok := at(v, p)
		if !ok {
			continue
		}
		if m, isMap := raw.(map[string]any); isMap {
			raw = m["count"]
		}
		switch n := raw.(type) {
		case float64:
			if n >= 0 {
				return int64(n), true
			}
		case string:
			if c, ok := models.ParseCount(n); ok {
				return c, true
			}
		}
	}
	return 0, false
}

// firstBool returns the first boolean found at any of paths.
func firstBool(v any, paths ...string) (bool, bool) {
	for _, p := range paths {
		if raw, ok := at(v, p); ok {
			if b, ok := raw.(bool); ok {
				return b, true
			}
		}
	}
	return false, false
}

// findObject walks v depth first and returns the first object accepted by
// match.
func findObject(v any, match func(map[string]any) bool) map[string]any {
	var found map[string]any
	var walk func(v any, depth int) bool
	walk = func(v any, depth int) bool {
		if depth > maxDepth {
			return false
		}
		switch node := v.(type) {
		case map[string]any:
			if match(node) {
				found = node
				return true
			}
			for _, k := range sortedKeys(node) {
				if walk(node[k], depth+1) {
					return true
				}
			}
		case []any:
			for _, child := range node {
				if walk(child, depth+1) {
					return true
				}
			}
		}
		return false
	}
	walk(v, 0)
	return found
}

// findKey returns the first non-empty string stored under key anywhere in v.
func findKey(v any, key string) string {
	var out string
	findObject(v, func(m map[string]any) bool {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			out = strings.TrimSpace(s)
			return true
		}
		return false
	})
	return out
}

// findBool returns the first boolean stored under key anywhere in v.
func findBool(v any, key string) (bool, bool) {
	var out, found bool
	findObject(v, func(m map[string]any) bool {
		if b, ok := m[key].(bool); ok {
			out, found = b, true
			return true
		}
		return false
	})
	return out, found
}

// sortedKeys gives map walks a stable order. Keys are visited shortest
// first so shallow, generic keys such as "user" precede long edge names.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}
