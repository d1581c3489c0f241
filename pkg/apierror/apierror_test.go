// Copyright 2025 Certen Protocol
package apierror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCodeMapsKnownKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Encoding("bad encoding"), http.StatusBadRequest},
		{Conflict("already exists"), http.StatusConflict},
		{NotFound("missing"), http.StatusNotFound},
		{PreconditionFailed("etag mismatch"), http.StatusPreconditionFailed},
		{New(KindUnauthorized, "no token"), http.StatusUnauthorized},
		{New(KindForbidden, "denied"), http.StatusForbidden},
		{New(KindUnavailable, "db down"), http.StatusServiceUnavailable},
		{New(KindDB, "constraint violation"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestStatusCodeDefaultsToInternalServerErrorForPlainErrors(t *testing.T) {
	if got := StatusCode(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("expected 500 for a plain error, got %d", got)
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	underlying := errors.New("connection reset")
	wrapped := Wrap(KindDB, underlying, "querying statement table")
	if !errors.Is(wrapped, underlying) {
		t.Error("expected errors.Is to see through Wrap to the underlying error")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := Conflict("duplicate fingerprint")
	if !Is(err, KindConflict) {
		t.Error("expected Is to report KindConflict")
	}
	if Is(err, KindNotFound) {
		t.Error("expected Is to reject a non-matching kind")
	}
}
