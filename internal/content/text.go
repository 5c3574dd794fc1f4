package content

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics so that "Kész" and "kesz" compare
// equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// CharCount counts the runes of s after trimming surrounding whitespace.
func CharCount(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

// lowEffort holds folded answers that never count as real work.
var lowEffort = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"ok", "oké", "kész", "megcsináltam", "done", "yes", "igen", "ready",
		"finished", "complete", "completed", "megvan", "na", "jó", "jo",
		"yep", "yup", "k", "x", ".", "..",
	} {
		lowEffort[Fold(s)] = struct{}{}
	}
}

// IsLowEffort reports whether s is a throwaway answer such as "ok" or "kész".
func IsLowEffort(s string) bool {
	_, ok := lowEffort[Fold(s)]
	return ok
}

// pick returns the first non-nil value stored under any of keys.
func pick(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// pickString returns the first scalar value under keys that is non-blank as
// a trimmed string.
func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any, bool:
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// pickInt returns the first value under keys that coerces to an integer.
func pickInt(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if _, isBool := v.(bool); isBool {
			continue
		}
		n, err := cast.ToIntE(v)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// pickBool returns the first value under keys that coerces to a boolean.
func pickBool(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		b, err := cast.ToBoolE(v)
		if err == nil {
			return b, true
		}
	}
	return false, false
}

// pickList returns the first list stored under keys.
func pickList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			if len(v) > 0 {
				return v
			}
		case []string:
			if len(v) > 0 {
				out := make([]any, len(v))
				for i, s := range v {
					out[i] = s
				}
				return out
			}
		case []map[string]any:
			if len(v) > 0 {
				out := make([]any, len(v))
				for i, e := range v {
					out[i] = e
				}
				return out
			}
		}
	}
	return nil
}

func pickMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if v, ok := m[k].(map[string]any); ok {
			return v
		}
	}
	return nil
}

// scalarText renders a list element as text. Maps are searched under keys.
func scalarText(v any, keys ...string) string {
	switch e := v.(type) {
	case nil:
		return ""
	case map[string]any:
		return pickString(e, keys...)
	case []any, bool:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// textList collects the non-blank textual elements of list.
func textList(list []any, keys ...string) []string {
	var out []string
	for _, v := range list {
		if s := scalarText(v, keys...); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dedupe drops entries whose folded form was already seen.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		key := Fold(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
