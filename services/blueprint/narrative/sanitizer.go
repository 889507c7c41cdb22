// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package narrative

import (
	"regexp"
	"strings"
)

// RedactionMarker replaces forbidden terms in narrative text.
const RedactionMarker = "[…]"

// Sanitizer strips domain-leaking vocabulary from narrative text. It runs
// unconditionally on every narrative before it is accepted, whether the
// text came from the rule-based path or an external generator.
//
// Matching is case-insensitive and whole-word; sanitizing already-clean
// text is a no-op, so the pass is idempotent.
//
// Thread Safety: read-only after construction; safe for concurrent use.
type Sanitizer struct {
	pattern *regexp.Regexp
}

// NewSanitizer compiles the forbidden-term list into a single matcher.
// An empty list yields a sanitizer that passes text through unchanged.
func NewSanitizer(terms []string) *Sanitizer {
	if len(terms) == 0 {
		return &Sanitizer{}
	}
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	if len(quoted) == 0 {
		return &Sanitizer{}
	}
	// Whole-word anchors; embedded fragments are left alone.
	expr := `(?i)\b(` + strings.Join(quoted, "|") + `)\b`
	return &Sanitizer{pattern: regexp.MustCompile(expr)}
}

// Sanitize replaces every forbidden term with the redaction marker.
func (s *Sanitizer) Sanitize(text string) string {
	if s.pattern == nil {
		return text
	}
	return s.pattern.ReplaceAllString(text, RedactionMarker)
}

// Clean reports whether the text contains no forbidden terms.
func (s *Sanitizer) Clean(text string) bool {
	if s.pattern == nil {
		return true
	}
	return !s.pattern.MatchString(text)
}
