// Copyright 2025 Certen Protocol
//
// Package langtag parses Accept-Language headers and applies standard
// language-range matching to xAPI language maps, backing the Query
// Engine's "canonical" format and the Request Guard's header parsing.
//
// Built on golang.org/x/text/language for BCP 47 tag parsing and matching.
package langtag

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Entry is one weighted language-tag from an Accept-Language header.
type Entry struct {
	Tag language.Tag
	Raw string
	// Q is the quality value scaled by 1000 and rounded, supporting
	// up-to-three-decimal q values.
	Q int
}

// ParseAcceptLanguage parses a comma-separated Accept-Language header
// value into a priority-ordered Entry list: sorted by quality
// descending, then by tag alphabetically ascending on ties. Malformed
// entries (unparsable tag, out-of-range or unparsable q) are skipped
// and reported as warnings rather than failing the whole header.
func ParseAcceptLanguage(header string) ([]Entry, []string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	var entries []Entry
	var warnings []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.Split(part, ";")
		rawTag := strings.TrimSpace(pieces[0])
		tag, err := language.Parse(rawTag)
		if err != nil {
			warnings = append(warnings, "skipping unparsable language tag: "+rawTag)
			continue
		}
		q := 1.0
		if len(pieces) > 1 {
			qv := strings.SplitN(strings.TrimSpace(pieces[1]), "=", 2)
			if len(qv) != 2 || strings.TrimSpace(qv[0]) != "q" {
				warnings = append(warnings, "malformed q parameter for tag: "+rawTag)
				continue
			} else if parsed, err := strconv.ParseFloat(strings.TrimSpace(qv[1]), 64); err != nil || parsed < 0 || parsed > 1 {
				warnings = append(warnings, "out-of-range or unparsable q for tag: "+rawTag)
				continue
			} else {
				q = parsed
			}
		}
		entries = append(entries, Entry{Tag: tag, Raw: rawTag, Q: int(q*1000 + 0.5)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Q != entries[j].Q {
			return entries[i].Q > entries[j].Q
		}
		return entries[i].Raw < entries[j].Raw
	})
	return entries, warnings
}

// Tags extracts the language.Tag values from a priority-ordered Entry
// list, for use as language.Matcher.Match preference arguments.
func Tags(entries []Entry) []language.Tag {
	tags := make([]language.Tag, len(entries))
	for i, e := range entries {
		tags[i] = e.Tag
	}
	return tags
}

// FilterLanguageMap retains only the single best-matching entry of m
// against the given priority-ordered preferences ("retains only the
// first matching tag per map using standard language-range
// matching"). When prefs is empty or m has no
// well-formed tags, m is returned unmodified.
func FilterLanguageMap(m map[string]string, prefs []language.Tag) map[string]string {
	if len(m) == 0 || len(prefs) == 0 {
		return m
	}
	keys := make([]string, 0, len(m))
	tags := make([]language.Tag, 0, len(m))
	for k := range m {
		t, err := language.Parse(k)
		if err != nil {
			continue
		}
		keys = append(keys, k)
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		return m
	}
	matcher := language.NewMatcher(tags)
	_, idx, _ := matcher.Match(prefs...)
	return map[string]string{keys[idx]: m[keys[idx]]}
}
