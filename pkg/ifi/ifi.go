// Copyright 2025 Certen Protocol
//
// Package ifi maintains the Inverse Functional Identifier index: the
// mapping from a normalized (kind, value) pair to a stable integer id
// shared by every Actor row that carries that identifier.
package ifi

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/xapi-lrs/pkg/model"
)

// Index provides find-or-insert access to the ifi table.
type Index struct {
	db *sql.DB
}

// New returns an Index backed by db.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// FindOrInsert returns the id of the ifi row for (kind, value), inserting
// it if it does not already exist. Safe for concurrent callers: relies on
// the (kind, value) unique constraint and ON CONFLICT to resolve races.
func (ix *Index) FindOrInsert(ctx context.Context, q Queryer, i model.IFI) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO ifi (kind, value)
		VALUES ($1, $2)
		ON CONFLICT (kind, value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id
	`, kindCode(i.Kind), i.Value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ifi: find-or-insert (%s,%q): %w", i.Kind, i.Value, err)
	}
	return id, nil
}

// kindCode maps an IFIKind to the SMALLINT stored in ifi.kind:
// 0=mbox 1=mbox_sha1sum 2=openid 3=account.
func kindCode(k model.IFIKind) int {
	switch k {
	case model.IFIMbox:
		return 0
	case model.IFIMboxSHA1Sum:
		return 1
	case model.IFIOpenID:
		return 2
	default:
		return 3
	}
}

// Find returns the id of the ifi row for (kind, value), or
// sql.ErrNoRows if it does not exist.
func (ix *Index) Find(ctx context.Context, q Queryer, i model.IFI) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM ifi WHERE kind = $1 AND value = $2
	`, kindCode(i.Kind), i.Value).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ActorIDsFor returns every actor.id that has a row in actor_ifi for the
// given ifi id. Used as the seed frontier for persona-union resolution.
func (ix *Index) ActorIDsFor(ctx context.Context, q Queryer, ifiID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT actor_id FROM actor_ifi WHERE ifi_id = $1
	`, ifiID)
	if err != nil {
		return nil, fmt.Errorf("ifi: actor ids for %d: %w", ifiID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IFIIDsFor returns every ifi.id linked to the given actor.id. Used to
// expand the persona-union frontier across the bipartite actor<->ifi graph.
func (ix *Index) IFIIDsFor(ctx context.Context, q Queryer, actorID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ifi_id FROM actor_ifi WHERE actor_id = $1
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("ifi: ifi ids for actor %d: %w", actorID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Link associates an actor with an ifi id, ignoring the write if the pair
// already exists.
func (ix *Index) Link(ctx context.Context, q Queryer, actorID, ifiID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO actor_ifi (actor_id, ifi_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, actorID, ifiID)
	if err != nil {
		return fmt.Errorf("ifi: link actor %d to ifi %d: %w", actorID, ifiID, err)
	}
	return nil
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting callers run
// index operations either standalone or inside a Statement Store transaction.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
