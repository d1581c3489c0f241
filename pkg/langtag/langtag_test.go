// Copyright 2025 Certen Protocol
package langtag

import (
	"testing"

	"golang.org/x/text/language"
)

func TestParseAcceptLanguageOrdersByQualityDescending(t *testing.T) {
	entries, warnings := ParseAcceptLanguage("en-US;q=0.5, fr-FR;q=0.9, de-DE")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Raw != "de-DE" {
		t.Errorf("expected de-DE (implicit q=1.0) first, got %q", entries[0].Raw)
	}
	if entries[1].Raw != "fr-FR" {
		t.Errorf("expected fr-FR second, got %q", entries[1].Raw)
	}
	if entries[2].Raw != "en-US" {
		t.Errorf("expected en-US last, got %q", entries[2].Raw)
	}
}

func TestParseAcceptLanguageBreaksTiesAlphabetically(t *testing.T) {
	entries, _ := ParseAcceptLanguage("fr-FR;q=0.8, de-DE;q=0.8")
	if entries[0].Raw != "de-DE" || entries[1].Raw != "fr-FR" {
		t.Errorf("expected alphabetical tiebreak, got %q then %q", entries[0].Raw, entries[1].Raw)
	}
}

func TestParseAcceptLanguageSkipsMalformedEntriesAndWarns(t *testing.T) {
	entries, warnings := ParseAcceptLanguage("en-US, not a valid tag!!!, fr-FR;q=2.0")
	if len(warnings) == 0 {
		t.Error("expected warnings for malformed entries")
	}
	for _, e := range entries {
		if e.Raw == "not a valid tag!!!" {
			t.Error("malformed tag should have been skipped, not included")
		}
	}
}

func TestTagsExtractsInOrder(t *testing.T) {
	entries, _ := ParseAcceptLanguage("fr-FR;q=0.9, en-US")
	tags := Tags(entries)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
	if tags[0] != language.MustParse("en-US") {
		t.Errorf("expected en-US first (highest implicit q), got %v", tags[0])
	}
}

func TestFilterLanguageMapReturnsUnmodifiedWhenPrefsEmpty(t *testing.T) {
	m := map[string]string{"en-US": "hi", "fr-FR": "salut"}
	got := FilterLanguageMap(m, nil)
	if len(got) != 2 {
		t.Errorf("expected map unchanged with no preferences, got %v", got)
	}
}

func TestFilterLanguageMapPicksBestMatch(t *testing.T) {
	m := map[string]string{"en-US": "hi", "fr-FR": "salut", "fr-CA": "allo"}
	prefs := []language.Tag{language.MustParse("fr-CA")}
	got := FilterLanguageMap(m, prefs)
	if len(got) != 1 {
		t.Fatalf("expected exactly one surviving entry, got %d", len(got))
	}
	if _, ok := got["fr-CA"]; !ok {
		t.Errorf("expected fr-CA to be the best match, got %v", got)
	}
}
