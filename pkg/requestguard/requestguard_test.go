// Copyright 2025 Certen Protocol
package requestguard

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRequest(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/statements", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestCheckRejectsMissingVersion(t *testing.T) {
	if _, err := Check(newRequest(nil)); err == nil {
		t.Fatal("expected an error for a missing version header")
	}
}

func TestCheckRejectsWrongVersion(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: "1.0.3"})
	if _, err := Check(r); err == nil {
		t.Fatal("expected an error for an unsupported version")
	}
}

func TestCheckAcceptsExactVersion(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.HasConditionals() {
		t.Error("expected no conditionals parsed")
	}
}

func TestParseConditionalAny(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion, "If-Match": "*"})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.PassIfMatch(`"1-abc"`) {
		t.Error("expected If-Match: * to pass any etag")
	}
}

func TestParseConditionalSetStrongComparison(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion, "If-Match": `"1-abc", "2-def"`})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.PassIfMatch(`"2-def"`) {
		t.Error("expected a listed tag to pass")
	}
	if g.PassIfMatch(`"3-xyz"`) {
		t.Error("expected an unlisted tag to fail")
	}
}

func TestPassIfNoneMatchWeakComparisonStripsPrefix(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion, "If-None-Match": `W/"1-abc"`})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.PassIfNoneMatch(`"1-abc"`) {
		t.Error("expected a weak-matching tag to fail If-None-Match")
	}
	if !g.PassIfNoneMatch(`"2-def"`) {
		t.Error("expected a non-matching tag to pass If-None-Match")
	}
}

func TestPassIfNoneMatchAnyFailsWhenResourceExists(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion, "If-None-Match": "*"})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.PassIfNoneMatch(`"1-abc"`) {
		t.Error("expected If-None-Match: * to fail when the resource exists")
	}
	if !g.PassIfNoneMatch("") {
		t.Error("expected If-None-Match: * to pass when the resource does not exist")
	}
}

func TestRequireConditionalOnMutation(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.RequireConditionalOnMutation(); err == nil {
		t.Error("expected an error when no conditional header is present")
	}
}

func TestAcceptLanguageParsedAndSorted(t *testing.T) {
	r := newRequest(map[string]string{VersionHeader: WantVersion, "Accept-Language": "en-GB,en-US;q=0.9,en;q=0.1"})
	g, err := Check(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Languages) != 3 {
		t.Fatalf("expected 3 languages, got %d", len(g.Languages))
	}
	if g.Languages[0].String() != "en-GB" {
		t.Errorf("expected en-GB first, got %s", g.Languages[0])
	}
}

func TestStrongETagIsStableForSameBody(t *testing.T) {
	body := []byte(`{"id":"abc"}`)
	if StrongETag(body) != StrongETag(body) {
		t.Error("expected the same body to produce the same etag")
	}
	if StrongETag(body) == StrongETag([]byte(`{"id":"xyz"}`)) {
		t.Error("expected different bodies to produce different etags")
	}
}

func TestParseLimit(t *testing.T) {
	if n, err := ParseLimit(""); err != nil || n != 0 {
		t.Errorf("expected 0, nil for empty limit, got %d, %v", n, err)
	}
	if n, err := ParseLimit("25"); err != nil || n != 25 {
		t.Errorf("expected 25, nil, got %d, %v", n, err)
	}
	if _, err := ParseLimit("-1"); err == nil {
		t.Error("expected an error for a negative limit")
	}
	if _, err := ParseLimit("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric limit")
	}
}
