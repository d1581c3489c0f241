// Copyright 2025 Certen Protocol
package actor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certen/xapi-lrs/pkg/model"
)

// FindPerson returns the persona-union aggregate reachable from agent:
// every Actor row connected to it through a shared IFI of any kind
// (accounts included), a shared name, or transitively through another
// persona's IFIs. Group rows are skipped and not expanded. The walk
// is breadth-first over the bipartite actor<->ifi graph using an
// explicit worklist and visited set, never recursion, so it terminates
// on arbitrarily large identifier rings.
func (r *Resolver) FindPerson(ctx context.Context, agent model.Actor) (*model.Person, error) {
	candidates, err := r.initCandidates(ctx, agent)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool, len(candidates)*2)
	person := &model.Person{}
	seenName := map[string]bool{}
	seenMbox := map[string]bool{}
	seenMboxSHA1 := map[string]bool{}
	seenOpenID := map[string]bool{}
	seenAccount := map[string]bool{}

	for len(candidates) > 0 {
		id := candidates[0]
		candidates = candidates[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		var isGroup bool
		var name sql.NullString
		err := r.db.QueryRowContext(ctx, `SELECT is_group, name FROM actor WHERE id = $1`, id).Scan(&isGroup, &name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("actor: find_person row %d: %w", id, err)
		}
		if isGroup {
			continue
		}
		if name.Valid && !seenName[name.String] {
			seenName[name.String] = true
			person.Names = append(person.Names, name.String)
		}

		ifiIDs, err := r.ifi.IFIIDsFor(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		for _, ifiID := range ifiIDs {
			var kind int
			var value string
			if err := r.db.QueryRowContext(ctx, `SELECT kind, value FROM ifi WHERE id = $1`, ifiID).Scan(&kind, &value); err != nil {
				return nil, fmt.Errorf("actor: find_person ifi %d: %w", ifiID, err)
			}
			switch model.IFIKind(kindName(kind)) {
			case model.IFIMbox:
				if !seenMbox[value] {
					seenMbox[value] = true
					person.Mboxes = append(person.Mboxes, value)
				}
			case model.IFIMboxSHA1Sum:
				if !seenMboxSHA1[value] {
					seenMboxSHA1[value] = true
					person.MboxSHA1Sums = append(person.MboxSHA1Sums, value)
				}
			case model.IFIOpenID:
				if !seenOpenID[value] {
					seenOpenID[value] = true
					person.OpenIDs = append(person.OpenIDs, value)
				}
			case model.IFIAccount:
				if !seenAccount[value] {
					seenAccount[value] = true
					hp, n := splitAccount(value)
					person.Accounts = append(person.Accounts, model.Account{HomePage: hp, Name: n})
				}
			}

			others, err := r.ifi.ActorIDsFor(ctx, r.db, ifiID)
			if err != nil {
				return nil, err
			}
			for _, other := range others {
				if !visited[other] {
					candidates = append(candidates, other)
				}
			}
		}
	}
	return person, nil
}

// initCandidates seeds the persona-union walk: every non-group Actor
// sharing agent's display name, plus every Actor sharing one of
// agent's IFIs.
func (r *Resolver) initCandidates(ctx context.Context, agent model.Actor) ([]int64, error) {
	var candidates []int64

	if agent.Name != "" {
		rows, err := r.db.QueryContext(ctx, `SELECT id FROM actor WHERE name = $1 AND is_group = false`, agent.Name)
		if err != nil {
			return nil, fmt.Errorf("actor: find_person by name: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return err
				}
				candidates = append(candidates, id)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}

	for _, i := range agent.IFIs() {
		ifiID, err := r.ifi.Find(ctx, r.db, i)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("actor: find_person ifi lookup: %w", err)
		}
		actorIDs, err := r.ifi.ActorIDsFor(ctx, r.db, ifiID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, actorIDs...)
	}
	return candidates, nil
}
