package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// SplitPath turns "tabs/abc/content" into its segments. The empty path and
// "/" address the root.
func SplitPath(path string) ([]string, error) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func JoinPath(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

func isPrefix(prefix, parts []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if prefix[i] != parts[i] {
			return false
		}
	}
	return true
}

// Normalize converts v into the internal representation: JSON compatible
// values where arrays become maps keyed "0".."n-1", numbers are float64 and
// empty maps are dropped.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return internalize(decoded)
}

func internalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, c := range t {
			if k == "" || strings.ContainsAny(k, "/.#$[]") {
				return nil, fmt.Errorf("%w: bad key %q", ErrInvalidValue, k)
			}
			child, err := internalize(c)
			if err != nil {
				return nil, err
			}
			if child != nil {
				m[k] = child
			}
		}
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	case []any:
		m := make(map[string]any, len(t))
		for i, c := range t {
			child, err := internalize(c)
			if err != nil {
				return nil, err
			}
			if child != nil {
				m[strconv.Itoa(i)] = child
			}
		}
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	default:
		return t, nil
	}
}

// externalize deep-copies an internal value, turning maps with dense
// integer keys back into arrays.
func externalize(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if arr, ok := asArray(m); ok {
		return arr
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = externalize(c)
	}
	return out
}

func asArray(m map[string]any) ([]any, bool) {
	arr := make([]any, len(m))
	for k, c := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return nil, false
		}
		arr[i] = externalize(c)
	}
	return arr, true
}

// Clone deep-copies an external value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = Clone(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Clone(c)
		}
		return out
	default:
		return t
	}
}

func cloneInternal(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = cloneInternal(c)
	}
	return out
}

func getAt(node any, parts []string) any {
	for _, p := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[p]
	}
	return node
}

// setIn replaces the value at parts, creating and pruning intermediate maps.
// It mutates node in place and returns the new node.
func setIn(node any, parts []string, v any) any {
	if len(parts) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setIn(m[parts[0]], parts[1:], v)
	if child == nil {
		delete(m, parts[0])
	} else {
		m[parts[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// orderValue reads a numeric ordering field from an internal child value.
func orderValue(v any, field string) (float64, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	f, ok := m[field].(float64)
	return f, ok
}

// sortedKeys orders child keys by the orderBy field (absent values first)
// and then by key.
func sortedKeys(children map[string]any, keys []string, orderBy string) []string {
	sort.Slice(keys, func(i, j int) bool {
		if orderBy != "" {
			oi, hi := orderValue(children[keys[i]], orderBy)
			oj, hj := orderValue(children[keys[j]], orderBy)
			if hi != hj {
				return !hi
			}
			if hi && oi != oj {
				return oi < oj
			}
		}
		return keys[i] < keys[j]
	})
	return keys
}
