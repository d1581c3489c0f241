// Copyright 2025 Certen Protocol
//
// Package query implements the Statement Query Engine: filter-to-SQL
// translation, cursor pagination, and response-format transforms over
// pkg/store's tables.
package query

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/xapi-lrs/pkg/actor"
	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/model"
)

// unknownIRISentinel is the row id substituted for an actor/verb/activity
// IRI not present in the database, so the generated SQL stays
// structurally identical and correctly yields zero rows instead of
// silently dropping the predicate.
const unknownIRISentinel = -1

// Format selects how returned Statements are serialized.
type Format string

const (
	FormatIDs       Format = "ids"
	FormatExact     Format = "exact"
	FormatCanonical Format = "canonical"
)

// Filter is the Statement selection predicate.
type Filter struct {
	ActorID            *int64
	VerbID             *int64
	ActivityID         *int64
	Registration       *uuid.UUID
	RelatedActivities  bool
	RelatedAgents      bool
	Since              *time.Time
	Until              *time.Time
	Limit              int
	Ascending          bool
}

// Params is the raw request input to Resolve, before actor/verb/activity
// IRIs are turned into row ids.
type Params struct {
	Agent              *model.Actor
	VerbIRI            string
	ActivityIRI        string
	Registration       string
	RelatedActivities  bool
	RelatedAgents      bool
	Since              string
	Until              string
	Limit              int
	Ascending          bool
}

// Resolve builds a Filter from request Params, translating IRIs to row
// ids (or the unknown-IRI sentinel) against the current database state.
func Resolve(ctx context.Context, db *sql.DB, actors *actor.Resolver, p Params) (*Filter, error) {
	f := &Filter{
		RelatedActivities: p.RelatedActivities,
		RelatedAgents:     p.RelatedAgents,
		Limit:             p.Limit,
		Ascending:         p.Ascending,
	}

	if p.Agent != nil {
		fp, err := p.Agent.Fingerprint()
		if err != nil {
			return nil, fmt.Errorf("query: resolving agent filter: %w", err)
		}
		var id int64
		if err := db.QueryRowContext(ctx, "SELECT id FROM actor WHERE fingerprint = $1", int64(fp)).Scan(&id); err != nil {
			id = unknownIRISentinel
		}
		f.ActorID = &id
	}
	if p.VerbIRI != "" {
		id := lookupOrSentinel(ctx, db, "SELECT id FROM verb WHERE iri = $1", p.VerbIRI)
		f.VerbID = &id
	}
	if p.ActivityIRI != "" {
		id := lookupOrSentinel(ctx, db, "SELECT id FROM activity WHERE iri = $1", p.ActivityIRI)
		f.ActivityID = &id
	}
	if p.Registration != "" {
		id, err := uuid.Parse(p.Registration)
		if err != nil {
			return nil, apierror.Validation("invalid registration UUID %q: %v", p.Registration, err)
		}
		f.Registration = &id
	}
	if p.Since != "" {
		t, err := time.Parse(time.RFC3339Nano, p.Since)
		if err != nil {
			return nil, apierror.Validation("invalid since timestamp %q: %v", p.Since, err)
		}
		f.Since = &t
	}
	if p.Until != "" {
		t, err := time.Parse(time.RFC3339Nano, p.Until)
		if err != nil {
			return nil, apierror.Validation("invalid until timestamp %q: %v", p.Until, err)
		}
		f.Until = &t
	}
	return f, nil
}

func lookupOrSentinel(ctx context.Context, db *sql.DB, q, iri string) int64 {
	var id int64
	if err := db.QueryRowContext(ctx, q, iri).Scan(&id); err != nil {
		return unknownIRISentinel
	}
	return id
}

// effectiveLimit returns f's requested page length bounded by
// [1, maxLimit], substituting defaultLimit when the request's limit is
// zero (absent).
func (f *Filter) effectiveLimit(defaultLimit, maxLimit int) int {
	n := f.Limit
	if n <= 0 {
		n = defaultLimit
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n
}

// Page is one page of a query response.
type Page struct {
	Statements []*model.Statement
	More       string // opaque cursor, empty if no further page exists
}

// cursor encodes a Filter plus the pivot of the last row returned, so a
// "more" request replays the same predicate with a tighter stored/id bound.
type cursor struct {
	Filter     Filter    `json:"filter"`
	PivotStored time.Time `json:"pivotStored"`
	PivotSeq    int64     `json:"pivotSeq"`
}

// encodeCursor renders a cursor as an opaque base64url token.
func encodeCursor(c cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("query: encoding cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a "more" token back into its Filter and pivot.
func DecodeCursor(token string) (*Filter, time.Time, int64, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, time.Time{}, 0, apierror.Validation("malformed cursor: %v", err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, time.Time{}, 0, apierror.Validation("malformed cursor: %v", err)
	}
	return &c.Filter, c.PivotStored, c.PivotSeq, nil
}
