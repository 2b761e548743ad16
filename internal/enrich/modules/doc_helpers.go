package modules

import (
	"fmt"
	"strings"
)

// errMissingField tags a schema violation on a module payload.
func errMissingField(field string) error {
	return fmt.Errorf("output schema violation: %s", field)
}

// Doc is a generic parsed upstream response.
type Doc map[string]any

// AsDoc converts a parsed adapter value to a Doc.
func AsDoc(value any) Doc {
	if m, ok := value.(map[string]any); ok {
		return Doc(m)
	}
	return Doc{}
}

// Str returns a string field, empty when absent or mistyped.
func (d Doc) Str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Num returns a numeric field as float64.
func (d Doc) Num(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean field.
func (d Doc) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// List returns a list field of Docs.
func (d Doc) List(key string) []Doc {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Doc, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Doc(m))
		}
	}
	return out
}

// Strings returns a list field of strings.
func (d Doc) Strings(key string) []string {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Sub returns a nested Doc field.
func (d Doc) Sub(key string) Doc {
	if m, ok := d[key].(map[string]any); ok {
		return Doc(m)
	}
	return Doc{}
}

// Nums returns a list field of floats.
func (d Doc) Nums(key string) []float64 {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		if f, ok := item.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// containsAny reports whether s contains any of the needles as whole words,
// case-insensitively. A multi-word needle matches as a word sequence, so
// "cto" never matches inside "director" but "machine learning" still matches
// "Machine Learning Engineer".
func containsAny(s string, needles ...string) bool {
	haystack := tokenPad(s)
	for _, needle := range needles {
		if strings.Contains(haystack, tokenPad(needle)) {
			return true
		}
	}
	return false
}

// tokenPad lowercases s, collapses every non-alphanumeric run to a single
// space, and pads both ends so word boundaries align under Contains.
func tokenPad(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	inGap := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			inGap = false
		case !inGap:
			b.WriteByte(' ')
			inGap = true
		}
	}
	if !inGap {
		b.WriteByte(' ')
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
