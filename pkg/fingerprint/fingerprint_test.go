// Copyright 2025 Certen Protocol
package fingerprint

import "testing"

func TestOfIsStableAcrossMapKeyOrder(t *testing.T) {
	a := map[string]any{"id": "http://example.com/verb", "display": map[string]any{"en-US": "did"}}
	b := map[string]any{"display": map[string]any{"en-US": "did"}, "id": "http://example.com/verb"}

	fa, err := Of(a)
	if err != nil {
		t.Fatalf("of a: %v", err)
	}
	fb, err := Of(b)
	if err != nil {
		t.Fatalf("of b: %v", err)
	}
	if fa != fb {
		t.Errorf("expected identical fingerprints regardless of key order, got %d and %d", fa, fb)
	}
}

func TestOfDiffersOnValueChange(t *testing.T) {
	a := map[string]any{"id": "http://example.com/verb-a"}
	b := map[string]any{"id": "http://example.com/verb-b"}

	fa, err := Of(a)
	if err != nil {
		t.Fatalf("of a: %v", err)
	}
	fb, err := Of(b)
	if err != nil {
		t.Fatalf("of b: %v", err)
	}
	if fa == fb {
		t.Error("expected different fingerprints for different content")
	}
}

func TestOfRejectsInvalidUTF8String(t *testing.T) {
	if _, err := Of(map[string]any{"name": string([]byte{0xff, 0xfe})}); err == nil {
		t.Error("expected an encoding error for invalid UTF-8")
	}
}

func TestOfRoundTripsTypedStruct(t *testing.T) {
	type verb struct {
		ID string `json:"id"`
	}
	fa, err := Of(verb{ID: "http://example.com/verb"})
	if err != nil {
		t.Fatalf("of typed struct: %v", err)
	}
	fb, err := Of(map[string]any{"id": "http://example.com/verb"})
	if err != nil {
		t.Fatalf("of map: %v", err)
	}
	if fa != fb {
		t.Errorf("expected typed struct and equivalent map to fingerprint the same, got %d and %d", fa, fb)
	}
}

func TestNormalizeIRITrimsWhitespace(t *testing.T) {
	if got := NormalizeIRI("  http://example.com/activity  "); got != "http://example.com/activity" {
		t.Errorf("expected trimmed IRI, got %q", got)
	}
}

func TestNormalizeMailboxLowercasesLocalAndDomain(t *testing.T) {
	if got := NormalizeMailbox("mailto:Jane.Doe@Example.COM"); got != "mailto:jane.doe@example.com" {
		t.Errorf("expected lowercased mailbox, got %q", got)
	}
}

func TestNormalizeMailboxHandlesMissingPrefix(t *testing.T) {
	if got := NormalizeMailbox("  Jane@Example.com  "); got != "jane@example.com" {
		t.Errorf("expected trimmed and lowercased value without mailto: prefix, got %q", got)
	}
}

func TestSortedKeysReturnsDeterministicOrder(t *testing.T) {
	m := map[string]string{"fr-FR": "Bonjour", "en-US": "Hello", "de-DE": "Hallo"}
	got := SortedKeys(m)
	want := []string{"de-DE", "en-US", "fr-FR"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
