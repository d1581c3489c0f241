// Copyright 2025 Certen Protocol
package query

import "testing"

func TestEffectiveLimitUsesDefaultWhenZero(t *testing.T) {
	f := &Filter{Limit: 0}
	if got := f.effectiveLimit(50, 500); got != 50 {
		t.Errorf("expected default limit 50, got %d", got)
	}
}

func TestEffectiveLimitCapsAtMax(t *testing.T) {
	f := &Filter{Limit: 10000}
	if got := f.effectiveLimit(50, 500); got != 500 {
		t.Errorf("expected capped limit 500, got %d", got)
	}
}

func TestEffectiveLimitHonorsRequestedValue(t *testing.T) {
	f := &Filter{Limit: 25}
	if got := f.effectiveLimit(50, 500); got != 25 {
		t.Errorf("expected requested limit 25, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	id := int64(7)
	f := Filter{VerbID: &id, Limit: 10}
	token, err := encodeCursor(cursor{Filter: f})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, _, _, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.VerbID == nil || *decoded.VerbID != 7 {
		t.Errorf("expected VerbID 7, got %v", decoded.VerbID)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeCursor("not-a-valid-cursor!!"); err == nil {
		t.Error("expected an error decoding a malformed cursor")
	}
}
