/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// FieldMaskFormat defines possible formats in which a secret field may appear.
type FieldMaskFormat string

// Field mask formats.
const (
	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	FieldMaskFormatJSON       FieldMaskFormat = "json"
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
)

// MaskingRule describes a secret field and the formats it should be masked in.
type MaskingRule struct {
	Field   string
	Formats []FieldMaskFormat
}

// DefaultMaskingRules cover credentials that may be passed in a request URI or dumped headers.
var DefaultMaskingRules = []MaskingRule{
	{Field: "Authorization", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader}},
	{Field: "password", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "client_secret", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "access_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "refresh_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "api_key", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Masker replaces secret values in strings. Field names are searched in a single pass,
// regular expressions run only for the fields actually present.
type Masker struct {
	matcher      *ahocorasick.Matcher
	replacements [][]replacement // indexed like the matcher dictionary
}

// NewMasker builds a Masker for the given rules.
func NewMasker(rules []MaskingRule) *Masker {
	dict := make([]string, 0, len(rules))
	m := &Masker{replacements: make([][]replacement, 0, len(rules))}
	for _, rule := range rules {
		dict = append(dict, strings.ToLower(rule.Field))
		m.replacements = append(m.replacements, fieldReplacements(rule))
	}
	m.matcher = ahocorasick.NewStringMatcher(dict)
	return m
}

func fieldReplacements(rule MaskingRule) []replacement {
	field := regexp.QuoteMeta(rule.Field)
	reps := make([]replacement, 0, len(rule.Formats))
	for _, format := range rule.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			reps = append(reps, replacement{regexp.MustCompile(`(?i)` + field + `: .+?\r\n`), rule.Field + ": ***\r\n"})
		case FieldMaskFormatJSON:
			reps = append(reps, replacement{regexp.MustCompile(`(?i)"` + field + `"\s*:\s*".*?[^\\]"`), `"` + rule.Field + `": "***"`})
		case FieldMaskFormatURLEncoded:
			reps = append(reps, replacement{regexp.MustCompile(`(?i)` + field + `\s*=\s*[^&\s]+`), rule.Field + "=***"})
		}
	}
	return reps
}

// Mask returns s with all known secrets replaced by "***". Safe for concurrent use.
func (m *Masker) Mask(s string) string {
	hits := m.matcher.MatchThreadSafe([]byte(strings.ToLower(s)))
	for _, i := range hits {
		for _, rep := range m.replacements[i] {
			s = rep.re.ReplaceAllString(s, rep.with)
		}
	}
	return s
}
