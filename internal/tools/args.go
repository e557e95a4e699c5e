package tools

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Args is a permissive view over a tool call's JSON arguments. Lookups
// never fail; missing or mistyped fields read as zero values. Numbers
// sent as strings and strings sent as numbers are both accepted.
type Args struct {
	raw    string
	parsed gjson.Result
}

// ParseArgs wraps raw JSON. Empty input is treated as an empty object.
func ParseArgs(raw string) (Args, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) {
		return Args{raw: raw}, false
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return Args{raw: raw}, false
	}
	return Args{raw: raw, parsed: parsed}, true
}

// Raw returns the argument JSON as received.
func (a Args) Raw() string { return a.raw }

// Has reports whether key is present and not null.
func (a Args) Has(key string) bool {
	v := a.parsed.Get(key)
	return v.Exists() && v.Type != gjson.Null
}

// String returns key as trimmed text.
func (a Args) String(key string) string {
	return strings.TrimSpace(a.parsed.Get(key).String())
}

// StringOr returns key, or def when it is empty.
func (a Args) StringOr(key, def string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return def
}

// Int returns key as an integer, or def when absent.
func (a Args) Int(key string, def int) int {
	if !a.Has(key) {
		return def
	}
	return int(a.parsed.Get(key).Int())
}

// Float returns key as a float, or def when absent.
func (a Args) Float(key string, def float64) float64 {
	if !a.Has(key) {
		return def
	}
	return a.parsed.Get(key).Float()
}

// Bool returns key as a bool, or def when absent. "true", "1" and "yes"
// strings count as true.
func (a Args) Bool(key string, def bool) bool {
	if !a.Has(key) {
		return def
	}
	v := a.parsed.Get(key)
	if v.Type == gjson.String {
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "1", "yes":
			return true
		default:
			return false
		}
	}
	return v.Bool()
}

// Strings returns key as a string list. A single string is returned as
// a one-element list.
func (a Args) Strings(key string) []string {
	v := a.parsed.Get(key)
	if !v.Exists() {
		return nil
	}
	if !v.IsArray() {
		if s := strings.TrimSpace(v.String()); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// Get exposes the underlying gjson value for nested lookups.
func (a Args) Get(path string) gjson.Result {
	return a.parsed.Get(path)
}

// Missing returns the keys that are absent or empty.
func (a Args) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		v := a.parsed.Get(k)
		if !v.Exists() || v.Type == gjson.Null || (v.Type == gjson.String && strings.TrimSpace(v.Str) == "") {
			out = append(out, k)
		}
	}
	return out
}
