// Package templates renders placeholder strings against a nested context.
//
// A placeholder is either {{ path }} or { path }. A path is a dot separated
// list of segments made of letters, digits, '_' and '$'. Numeric segments index
// into lists. Anything that does not resolve renders as an empty string, so a
// template never fails to render.
package templates

import (
	"reflect"
	"regexp"
	"strconv"

	"github.com/opencode-ai/promptchain/internal/models"
)

const segment = `[A-Za-z0-9_$]+`

var placeholderPattern = regexp.MustCompile(
	`\{\{\s*(` + segment + `(?:\.` + segment + `)*)\s*\}\}` +
		`|\{\s*(` + segment + `(?:\.` + segment + `)*)\s*\}`,
)

// Render substitutes every placeholder in tmpl with its value from data.
func Render(tmpl string, data map[string]any) string {
	if tmpl == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		value, ok := Lookup(data, pathOf(match))
		if !ok {
			return ""
		}
		return models.Stringify(value)
	})
}

// Paths returns the paths referenced by tmpl in order of appearance.
func Paths(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			paths = append(paths, m[1])
		} else {
			paths = append(paths, m[2])
		}
	}
	return paths
}

func pathOf(match string) string {
	m := placeholderPattern.FindStringSubmatch(match)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// Lookup resolves a dotted path into data. The second return is false when any
// segment is missing.
func Lookup(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		next, ok := child(current, path[start:i])
		if !ok {
			return nil, false
		}
		current = next
		start = i + 1
	}
	return current, true
}

func child(parent any, key string) (any, bool) {
	switch p := parent.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := p[key]
		return v, ok
	case map[string]string:
		v, ok := p[key]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(p) {
			return nil, false
		}
		return p[idx], true
	case models.StepResult:
		return child(p.Fields(), key)
	}

	rv := reflect.ValueOf(parent)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}
