// Copyright 2025 Certen Protocol
//
// Package requestguard implements the cross-cutting HTTP header
// contract every xAPI 2.0 LRS endpoint must honor: protocol version
// enforcement, If-Match/If-None-Match precondition evaluation, and
// Accept-Language extraction, grounded on the reference LRS's Rocket
// request guard (original_source/src/lrs/headers.rs) but adapted to
// net/http's plain handler style.
package requestguard

import (
	"hash/fnv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/langtag"
)

// WantVersion is the only xAPI protocol version this LRS accepts.
const WantVersion = "2.0.0"

// VersionHeader, HashHeader and ConsistentThroughHeader are the xAPI
// specific HTTP header names used throughout the Statement API.
const (
	VersionHeader           = "X-Experience-API-Version"
	HashHeader              = "X-Experience-API-Hash"
	ConsistentThroughHeader = "X-Experience-API-Consistent-Through"
)

// etagState is the tri-state value of an If-Match/If-None-Match header.
type etagState int

const (
	etagAbsent etagState = iota
	etagAny
	etagSet
)

// conditional holds one request's parsed If-Match or If-None-Match header.
type conditional struct {
	state etagState
	tags  []string // entity-tag values as sent, W/ weak prefixes kept
}

// Guard is the parsed, validated result of applying the Request Guard
// to one incoming request.
type Guard struct {
	IfMatch     conditional
	IfNoneMatch conditional
	Languages   []language.Tag
	Warnings    []string
}

// Check validates r's xAPI version header and parses its conditional
// and Accept-Language headers. It returns an *apierror.Error of kind
// Validation if the version header is missing or names an unsupported
// version.
func Check(r *http.Request) (*Guard, error) {
	version := r.Header.Get(VersionHeader)
	if version == "" {
		return nil, apierror.Validation("missing %s header", VersionHeader)
	}
	if !isCompatibleVersion(version) {
		return nil, apierror.Validation("xAPI version %q wanted %s", version, WantVersion)
	}

	g := &Guard{}
	g.IfMatch = parseConditional(r.Header.Values("If-Match"))
	g.IfNoneMatch = parseConditional(r.Header.Values("If-None-Match"))

	if al := r.Header.Get("Accept-Language"); al != "" {
		entries, warnings := langtag.ParseAcceptLanguage(al)
		g.Languages = langtag.Tags(entries)
		g.Warnings = warnings
	}
	return g, nil
}

// isCompatibleVersion accepts only an exact match on WantVersion. The
// reference LRS's headers.rs notes it should in principle compare
// major.minor and track multiple supported versions; this LRS, like
// the reference, supports exactly 2.0.0 for now.
func isCompatibleVersion(v string) bool {
	return v == WantVersion
}

func parseConditional(values []string) conditional {
	if len(values) == 0 {
		return conditional{state: etagAbsent}
	}
	var tags []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part == "*" {
				return conditional{state: etagAny}
			}
			tags = append(tags, part)
		}
	}
	if len(tags) == 0 {
		return conditional{state: etagAbsent}
	}
	return conditional{state: etagSet, tags: tags}
}

func stripWeakPrefix(tag string) string {
	return strings.TrimPrefix(tag, "W/")
}

// HasConditionals reports whether the request carried any If-Match or
// If-None-Match header.
func (g *Guard) HasConditionals() bool {
	return g.IfMatch.state != etagAbsent || g.IfNoneMatch.state != etagAbsent
}

// PassIfMatch evaluates the request's If-Match header against etag
// using strong comparison (weak tags never satisfy If-Match), per
// RFC 7232 §3.1. A request with no If-Match header always passes.
func (g *Guard) PassIfMatch(etag string) bool {
	switch g.IfMatch.state {
	case etagAbsent:
		return true
	case etagAny:
		return true
	default:
		for _, t := range g.IfMatch.tags {
			if !strings.HasPrefix(t, "W/") && t == etag {
				return true
			}
		}
		return false
	}
}

// PassIfNoneMatch evaluates the request's If-None-Match header against
// etag using weak comparison: it passes (the request may proceed) only
// when none of the listed tags match. A bare "*" matches any existing
// resource, so PassIfNoneMatch("*", ...) fails whenever etag is
// non-empty (the resource exists).
func (g *Guard) PassIfNoneMatch(etag string) bool {
	switch g.IfNoneMatch.state {
	case etagAbsent:
		return true
	case etagAny:
		return etag == ""
	default:
		for _, t := range g.IfNoneMatch.tags {
			if stripWeakPrefix(t) == stripWeakPrefix(etag) {
				return false
			}
		}
		return true
	}
}

// RequireConditionalOnMutation enforces the xAPI rule that PUT
// requests against a Document or Statement-ref resource (other than
// the first write) must carry a precondition header, rejecting the
// request with a Conflict error when neither is present.
func (g *Guard) RequireConditionalOnMutation() error {
	if !g.HasConditionals() {
		return apierror.Conflict("a concurrency precondition (If-Match or If-None-Match) is required")
	}
	return nil
}

// StrongETag computes the strong entity tag for an HTTP response body:
// the content length and an FNV-64a digest of the body, formatted as
// "<length>-<digest>".
func StrongETag(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf(`"%d-%x"`, len(body), h.Sum64())
}

// ParseLimit parses the "limit" query parameter, returning 0 (meaning
// "use the server default") when absent or zero. A negative or
// non-numeric value is rejected with a Validation error.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.Validation("invalid limit %q: %v", raw, err)
	}
	if n < 0 {
		return 0, apierror.Validation("limit must not be negative")
	}
	return n, nil
}
