// Copyright 2025 Certen Protocol
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/certen/xapi-lrs/pkg/model"
)

// Engine executes Filters against the normalized projection and
// rehydrates matching rows into model.Statement values.
type Engine struct {
	db                  *sql.DB
	defaultLimit        int
	maxLimit            int
}

// New returns an Engine with the server's configured default and
// maximum page lengths.
func New(db *sql.DB, defaultLimit, maxLimit int) *Engine {
	return &Engine{db: db, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Run executes f, returning up to its effective limit of Statements
// (oldest-pivot-exclusive when resuming from a cursor) plus an opaque
// "more" token if further rows exist.
func (e *Engine) Run(ctx context.Context, f *Filter, format Format, langPrefs []language.Tag, pivotStored *time.Time, pivotSeq *int64) (*Page, error) {
	limit := f.effectiveLimit(e.defaultLimit, e.maxLimit)

	// Fetch one extra row so presence of a further page can be detected
	// without a second round-trip; the extra row is trimmed before return.
	query, args := e.buildQuery(f, limit+1, pivotStored, pivotSeq)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: executing filter: %w", err)
	}
	defer rows.Close()

	type row struct {
		raw    []byte
		stored time.Time
		seq    int64
	}
	var fetched []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.raw, &r.stored, &r.seq); err != nil {
			return nil, fmt.Errorf("query: scanning row: %w", err)
		}
		fetched = append(fetched, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: iterating rows: %w", err)
	}

	hasMore := len(fetched) > limit
	if hasMore {
		fetched = fetched[:limit]
	}

	var raws [][]byte
	var lastStored time.Time
	var lastSeq int64
	for _, r := range fetched {
		raws = append(raws, r.raw)
		lastStored, lastSeq = r.stored, r.seq
	}

	var more string
	if hasMore {
		tok, err := encodeCursor(cursor{Filter: *f, PivotStored: lastStored, PivotSeq: lastSeq})
		if err != nil {
			return nil, err
		}
		more = tok
	}

	statements := make([]*model.Statement, 0, len(raws))
	for _, raw := range raws {
		st, err := model.ParseStatement(raw)
		if err != nil {
			return nil, fmt.Errorf("query: reparsing stored statement: %w", err)
		}
		transformed, err := e.applyFormat(st, format, langPrefs)
		if err != nil {
			return nil, err
		}
		statements = append(statements, transformed)
	}

	return &Page{Statements: statements, More: more}, nil
}

func (e *Engine) applyFormat(st *model.Statement, format Format, langPrefs []language.Tag) (*model.Statement, error) {
	switch format {
	case FormatExact, "":
		return st, nil
	case FormatIDs:
		return model.ToIDSFormat(st)
	case FormatCanonical:
		return model.Canonicalize(st, langPrefs)
	default:
		return st, nil
	}
}

// buildQuery renders f (with an optional cursor pivot) into a
// parameterized SQL statement over the statement table joined against
// whichever projection tables related_activities/related_agents need.
func (e *Engine) buildQuery(f *Filter, limit int, pivotStored *time.Time, pivotSeq *int64) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "s.voided = false")

	if f.ActorID != nil {
		if f.RelatedAgents {
			where = append(where, fmt.Sprintf(`(
				s.actor_id = %[1]s OR s.obj_actor_id = %[1]s OR s.authority_id = %[1]s
				OR EXISTS (SELECT 1 FROM context_actor ca WHERE ca.statement_id = s.id AND ca.actor_id = %[1]s)
			)`, arg(*f.ActorID)))
		} else {
			where = append(where, fmt.Sprintf("s.actor_id = %s", arg(*f.ActorID)))
		}
	}
	if f.VerbID != nil {
		where = append(where, fmt.Sprintf("s.verb_id = %s", arg(*f.VerbID)))
	}
	if f.ActivityID != nil {
		if f.RelatedActivities {
			where = append(where, fmt.Sprintf(`(
				s.obj_activity_id = %[1]s
				OR EXISTS (SELECT 1 FROM context_activity ca WHERE ca.statement_id = s.id AND ca.activity_id = %[1]s)
			)`, arg(*f.ActivityID)))
		} else {
			where = append(where, fmt.Sprintf("s.obj_activity_id = %s", arg(*f.ActivityID)))
		}
	}
	if f.Registration != nil {
		where = append(where, fmt.Sprintf("s.registration = %s", arg(f.Registration.String())))
	}
	if f.Since != nil {
		where = append(where, fmt.Sprintf("s.stored > %s", arg(*f.Since)))
	}
	if f.Until != nil {
		where = append(where, fmt.Sprintf("s.stored <= %s", arg(*f.Until)))
	}

	order := "DESC"
	pivotCmp := "<"
	if f.Ascending {
		order = "ASC"
		pivotCmp = ">"
	}
	if pivotStored != nil && pivotSeq != nil {
		where = append(where, fmt.Sprintf("(s.stored, s.seq) %s (%s, %s)", pivotCmp, arg(*pivotStored), arg(*pivotSeq)))
	}

	query := fmt.Sprintf(`
		SELECT s.raw, s.stored, s.seq
		FROM statement s
		WHERE %s
		ORDER BY s.stored %s, s.seq %s
		LIMIT %s
	`, strings.Join(where, " AND "), order, order, arg(limit))

	return query, args
}
