// Package locale picks between the two languages Lumen speaks to users
// (English and Chinese) and selects localized strings.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Lang is a supported user-facing language.
type Lang int

const (
	English Lang = iota
	Chinese
)

var (
	supported = []language.Tag{language.English, language.Chinese}
	matcher   = language.NewMatcher(supported)
)

// Detect maps a device locale identifier ("en-US", "zh-Hans-CN",
// "zh_TW") to a Lang. A "zh" prefix always selects Chinese; other
// identifiers go through the language matcher. Unknown or unparsable
// locales fall back to English.
func Detect(id string) Lang {
	id = strings.ReplaceAll(strings.TrimSpace(id), "_", "-")
	if id == "" {
		return English
	}
	if strings.HasPrefix(strings.ToLower(id), "zh") {
		return Chinese
	}
	tag, err := language.Parse(id)
	if err != nil {
		return English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return English
	}
	return Lang(idx)
}

// Pick returns en or zh depending on l.
func (l Lang) Pick(en, zh string) string {
	if l == Chinese {
		return zh
	}
	return en
}

// Other returns the other supported language, used for bilingual search.
func (l Lang) Other() Lang {
	if l == Chinese {
		return English
	}
	return Chinese
}

// Code returns the ISO 639-1 code.
func (l Lang) Code() string {
	if l == Chinese {
		return "zh"
	}
	return "en"
}

func (l Lang) String() string { return l.Code() }
