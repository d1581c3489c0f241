// Copyright 2025 Certen Protocol
//
// Package actor resolves Actor values to and from actor table rows,
// including the persona-union walk that answers GET /agents.
package actor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/certen/xapi-lrs/pkg/database"
	"github.com/certen/xapi-lrs/pkg/ifi"
	"github.com/certen/xapi-lrs/pkg/model"
)

// Resolver finds-or-creates actor rows and hydrates them back into
// model.Actor values, including Group membership and persona-union.
type Resolver struct {
	db     *sql.DB
	ifi    *ifi.Index
	logger *log.Logger
}

// New returns a Resolver backed by db.
func New(db *sql.DB) *Resolver {
	return &Resolver{db: db, ifi: ifi.New(db)}
}

// NewWithLogger returns a Resolver that reports skipped Group members
// through logger.
func NewWithLogger(db *sql.DB, logger *log.Logger) *Resolver {
	return &Resolver{db: db, ifi: ifi.New(db), logger: logger}
}

// Resolve returns the actor.id for a, inserting a new row (and its IFI
// links) if no row with a's fingerprint already exists. Actors with
// identical content but no IFI overlap share a row; Actors with
// overlapping IFIs but differing content (e.g. display name) are
// deliberately distinct rows so FindPerson can discover both personas.
func (r *Resolver) Resolve(ctx context.Context, q ifi.Queryer, a model.Actor) (int64, error) {
	fp, err := a.Fingerprint()
	if err != nil {
		return 0, fmt.Errorf("actor: fingerprint: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx, `SELECT id FROM actor WHERE fingerprint = $1`, int64(fp)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("actor: lookup by fingerprint: %w", err)
	}

	var memberIDs []int64
	for _, m := range a.Member {
		mid, err := r.Resolve(ctx, q, m)
		if err != nil {
			return 0, fmt.Errorf("actor: resolving member: %w", err)
		}
		memberIDs = append(memberIDs, mid)
	}

	var name sql.NullString
	if a.Name != "" {
		name = sql.NullString{String: a.Name, Valid: true}
	}
	err = q.QueryRowContext(ctx, `
		INSERT INTO actor (fingerprint, is_group, name, member_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, int64(fp), a.IsGroup, name, pq.Array(memberIDs)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("actor: insert: %w", err)
	}

	for _, i := range a.IFIs() {
		ifiID, err := r.ifi.FindOrInsert(ctx, q, i)
		if err != nil {
			return 0, err
		}
		if err := r.ifi.Link(ctx, q, id, ifiID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Format selects how much of an Actor is populated when hydrating.
type Format int

const (
	// FormatExact hydrates the full Actor, including display name.
	FormatExact Format = iota
	// FormatIDs hydrates only the first IFI found, dropping name and
	// every other identifier, per the "ids" query format.
	FormatIDs
)

// Hydrate reconstructs a model.Actor from its actor.id.
func (r *Resolver) Hydrate(ctx context.Context, id int64, format Format) (*model.Actor, error) {
	var isGroup bool
	var name sql.NullString
	var memberIDs []int64
	err := r.db.QueryRowContext(ctx, `
		SELECT is_group, name, member_ids FROM actor WHERE id = $1
	`, id).Scan(&isGroup, &name, pq.Array(&memberIDs))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrActorNotFound
		}
		return nil, fmt.Errorf("actor: hydrate %d: %w", id, err)
	}

	a := &model.Actor{IsGroup: isGroup}
	if isGroup {
		a.ObjectType = "Group"
	} else {
		a.ObjectType = "Agent"
	}

	ifiIDs, err := r.ifi.IFIIDsFor(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	for _, ifiID := range ifiIDs {
		var kind int
		var value string
		if err := r.db.QueryRowContext(ctx, `SELECT kind, value FROM ifi WHERE id = $1`, ifiID).Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("actor: hydrate ifi %d: %w", ifiID, err)
		}
		applyIFI(a, model.IFIKind(kindName(kind)), value)
		if format == FormatIDs {
			break
		}
	}

	if format != FormatIDs && name.Valid {
		a.Name = name.String
	}

	if isGroup {
		for _, mid := range memberIDs {
			member, err := r.Hydrate(ctx, mid, format)
			if err != nil {
				// A malformed historical member must not prevent serving
				// the rest of the Group.
				if r.logger != nil {
					r.logger.Printf("warning: skipping group member %d: %v", mid, err)
				}
				continue
			}
			a.Member = append(a.Member, *member)
		}
	}
	return a, nil
}

func applyIFI(a *model.Actor, kind model.IFIKind, value string) {
	switch kind {
	case model.IFIMbox:
		a.Mbox = value
	case model.IFIMboxSHA1Sum:
		a.MboxSHA1Sum = value
	case model.IFIOpenID:
		a.OpenID = value
	case model.IFIAccount:
		hp, n := splitAccount(value)
		a.Account = &model.Account{HomePage: hp, Name: n}
	}
}

func splitAccount(joined string) (homePage, name string) {
	for i := len(joined) - 1; i >= 0; i-- {
		if joined[i] == ':' {
			return joined[:i], joined[i+1:]
		}
	}
	return joined, ""
}

func kindName(k int) string {
	switch k {
	case 0:
		return string(model.IFIMbox)
	case 1:
		return string(model.IFIMboxSHA1Sum)
	case 2:
		return string(model.IFIOpenID)
	default:
		return string(model.IFIAccount)
	}
}
