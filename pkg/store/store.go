// Copyright 2025 Certen Protocol
//
// Package store implements the Statement Store: ingest, point lookup,
// and the voiding state machine, atop the normalized relational
// projection described by pkg/database's migrations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/xapi-lrs/pkg/actor"
	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/database"
	"github.com/certen/xapi-lrs/pkg/ifi"
	"github.com/certen/xapi-lrs/pkg/model"
)

// Store is the Statement Store: it owns ingest, voiding, and point
// lookup by UUID. Query Engine (pkg/query) reads the same tables for
// filtered, paginated access.
type Store struct {
	db     *sql.DB
	actors *actor.Resolver
	ifi    *ifi.Index

	mu               chan struct{} // 1-buffered mutex guarding consistentThrough
	consistentThrough time.Time
}

// New returns a Store backed by db.
func New(db *sql.DB) *Store {
	s := &Store{
		db:     db,
		actors: actor.New(db),
		ifi:    ifi.New(db),
		mu:     make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

// DB exposes the underlying connection pool for callers (pkg/query) that
// read the same tables outside of Store's own write transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ConsistentThrough returns the process-wide monotonic timestamp set by
// the most recent successful write, for the X-Experience-API-Consistent-Through header.
func (s *Store) ConsistentThrough() time.Time {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	return s.consistentThrough
}

func (s *Store) advanceConsistentThrough(t time.Time) {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	if t.After(s.consistentThrough) {
		s.consistentThrough = t
	}
}

// Ingest assigns ids/stored/authority as needed, deduplicates by
// fingerprint, detects UUID/fingerprint conflicts, resolves every
// Actor/Verb/Activity reference, writes the Statement and its
// projection rows, and applies the voiding transition — all Statements
// in the batch share a single transaction, so an error on any one of
// them rolls back the entire batch rather than leaving earlier
// Statements durably committed.
func (s *Store) Ingest(ctx context.Context, statements []*model.Statement, authority *model.Actor) ([]uuid.UUID, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindUnavailable, err, "acquiring database transaction")
	}
	defer tx.Rollback()

	ids := make([]uuid.UUID, 0, len(statements))
	for _, st := range statements {
		id, err := s.ingestOne(ctx, tx, st, authority, now)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit batch: %w", err)
	}
	s.advanceConsistentThrough(now)
	return ids, nil
}

func (s *Store) ingestOne(ctx context.Context, tx *sql.Tx, st *model.Statement, authority *model.Actor, now time.Time) (uuid.UUID, error) {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.Stored = now
	if st.Authority == nil {
		st.Authority = authority
	}

	fp, err := st.Fingerprint()
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: fingerprint: %w", err)
	}

	if existingID, ok, err := findByFingerprint(ctx, tx, fp); err != nil {
		return uuid.Nil, err
	} else if ok {
		equivalent, err := s.isEquivalent(ctx, tx, existingID, st)
		if err != nil {
			return uuid.Nil, err
		}
		if equivalent {
			return existingID, nil
		}
		return uuid.Nil, apierror.Conflict("a different statement with the same content fingerprint already exists as %s", existingID)
	}

	if existingFP, ok, err := findFingerprintByUUID(ctx, tx, st.ID); err != nil {
		return uuid.Nil, err
	} else if ok && existingFP != fp {
		return uuid.Nil, apierror.Conflict("statement id %s already exists with different content", st.ID)
	}

	actorID, err := s.actors.Resolve(ctx, tx, st.Actor)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: resolve actor: %w", err)
	}
	verbID, err := s.resolveVerb(ctx, tx, st.Verb)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: resolve verb: %w", err)
	}

	objKind, objActivityID, objActorID, objStatementRef, objSubStatement, err := s.resolveObject(ctx, tx, st.Object)
	if err != nil {
		return uuid.Nil, err
	}

	var authorityID sql.NullInt64
	if st.Authority != nil {
		aid, err := s.actors.Resolve(ctx, tx, *st.Authority)
		if err != nil {
			return uuid.Nil, fmt.Errorf("store: resolve authority: %w", err)
		}
		authorityID = sql.NullInt64{Int64: aid, Valid: true}
	}

	var registration sql.NullString
	if st.Context != nil && st.Context.Registration != nil {
		registration = sql.NullString{String: st.Context.Registration.String(), Valid: true}
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: marshal raw: %w", err)
	}

	resultJSON, err := marshalOptional(st.Result)
	if err != nil {
		return uuid.Nil, err
	}
	contextJSON, err := marshalOptional(st.Context)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO statement (
			id, fingerprint, actor_id, verb_id, object_kind,
			obj_activity_id, obj_actor_id, obj_statement_ref, obj_substatement,
			result, context, registration, timestamp, stored, authority_id,
			version, voided, raw
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, false, $17
		)
	`, st.ID, int64(fp), actorID, verbID, int(objKind),
		objActivityID, objActorID, objStatementRef, objSubStatement,
		resultJSON, contextJSON, registration, timestampOrNow(st.Timestamp, now), st.Stored, authorityID,
		st.Version, raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert statement: %w", err)
	}

	if err := s.writeAttachments(ctx, tx, st); err != nil {
		return uuid.Nil, err
	}
	if err := s.writeContextJunctions(ctx, tx, st); err != nil {
		return uuid.Nil, err
	}

	if st.Verb.ID == model.VoidingVerbID {
		if err := s.applyVoiding(ctx, tx, st); err != nil {
			return uuid.Nil, err
		}
	}

	return st.ID, nil
}

func timestampOrNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

func marshalOptional(v any) ([]byte, error) {
	if isNilInterfaceValue(v) {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: marshal: %w", err)
	}
	return b, nil
}

func isNilInterfaceValue(v any) bool {
	switch x := v.(type) {
	case *model.Result:
		return x == nil
	case *model.Context:
		return x == nil
	case *model.ActivityDefinition:
		return x == nil
	default:
		return v == nil
	}
}

func findByFingerprint(ctx context.Context, tx *sql.Tx, fp uint64) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM statement WHERE fingerprint = $1`, int64(fp)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("store: lookup by fingerprint: %w", err)
	}
	return id, true, nil
}

func findFingerprintByUUID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (uint64, bool, error) {
	var fp int64
	err := tx.QueryRowContext(ctx, `SELECT fingerprint FROM statement WHERE id = $1`, id).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: lookup fingerprint by uuid: %w", err)
	}
	return uint64(fp), true, nil
}

// isEquivalent compares st against the statement already stored under
// existingID by content fingerprint equivalence.
func (s *Store) isEquivalent(ctx context.Context, tx *sql.Tx, existingID uuid.UUID, st *model.Statement) (bool, error) {
	var raw []byte
	if err := tx.QueryRowContext(ctx, `SELECT raw FROM statement WHERE id = $1`, existingID).Scan(&raw); err != nil {
		return false, fmt.Errorf("store: loading existing raw: %w", err)
	}
	existing, err := model.ParseStatement(raw)
	if err != nil {
		return false, fmt.Errorf("store: reparsing existing statement: %w", err)
	}
	ok, err := model.Equivalent(existing, st)
	if err != nil {
		return false, fmt.Errorf("store: equivalence check: %w", err)
	}
	return ok, nil
}

func (s *Store) resolveVerb(ctx context.Context, tx *sql.Tx, v model.Verb) (int64, error) {
	var id int64
	var existingDisplay []byte
	err := tx.QueryRowContext(ctx, `SELECT id, display FROM verb WHERE iri = $1`, v.ID).Scan(&id, &existingDisplay)
	if errors.Is(err, sql.ErrNoRows) {
		display, err := json.Marshal(v.Display)
		if err != nil {
			return 0, fmt.Errorf("store: marshal verb display: %w", err)
		}
		err = tx.QueryRowContext(ctx, `INSERT INTO verb (iri, display) VALUES ($1, $2) RETURNING id`, v.ID, display).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("store: insert verb: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: lookup verb: %w", err)
	}

	var existing model.LanguageMap
	if len(existingDisplay) > 0 {
		if err := json.Unmarshal(existingDisplay, &existing); err != nil {
			return 0, fmt.Errorf("store: unmarshal existing verb display: %w", err)
		}
	}
	merged := existing.Merge(v.Display)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("store: marshal merged verb display: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE verb SET display = $1 WHERE id = $2`, mergedJSON, id); err != nil {
		return 0, fmt.Errorf("store: update verb display: %w", err)
	}
	return id, nil
}

func (s *Store) resolveActivity(ctx context.Context, tx *sql.Tx, act model.Activity) (int64, error) {
	var id int64
	var existingDef []byte
	err := tx.QueryRowContext(ctx, `SELECT id, definition FROM activity WHERE iri = $1`, act.ID).Scan(&id, &existingDef)
	if errors.Is(err, sql.ErrNoRows) {
		defJSON, err := marshalOptional(act.Definition)
		if err != nil {
			return 0, err
		}
		err = tx.QueryRowContext(ctx, `INSERT INTO activity (iri, definition) VALUES ($1, $2) RETURNING id`, act.ID, defJSON).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("store: insert activity: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: lookup activity: %w", err)
	}
	if act.Definition == nil {
		return id, nil
	}

	var existing model.ActivityDefinition
	if len(existingDef) > 0 {
		if err := json.Unmarshal(existingDef, &existing); err != nil {
			return 0, fmt.Errorf("store: unmarshal existing activity definition: %w", err)
		}
	}
	merged := existing.Merge(act.Definition)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("store: marshal merged activity definition: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE activity SET definition = $1 WHERE id = $2`, mergedJSON, id); err != nil {
		return 0, fmt.Errorf("store: update activity definition: %w", err)
	}
	return id, nil
}

func (s *Store) resolveObject(ctx context.Context, tx *sql.Tx, o model.StatementObject) (model.ObjectKind, sql.NullInt64, sql.NullInt64, sql.NullString, []byte, error) {
	var activityID, actorID sql.NullInt64
	var statementRef sql.NullString
	var subJSON []byte

	switch o.Kind {
	case model.ObjectActivity:
		id, err := s.resolveActivity(ctx, tx, *o.Activity)
		if err != nil {
			return 0, activityID, actorID, statementRef, nil, err
		}
		activityID = sql.NullInt64{Int64: id, Valid: true}
	case model.ObjectAgent, model.ObjectGroup:
		id, err := s.actors.Resolve(ctx, tx, *o.Actor)
		if err != nil {
			return 0, activityID, actorID, statementRef, nil, fmt.Errorf("store: resolve object actor: %w", err)
		}
		actorID = sql.NullInt64{Int64: id, Valid: true}
	case model.ObjectStatementRef:
		statementRef = sql.NullString{String: o.StatementRef.ID.String(), Valid: true}
	case model.ObjectSubStatement:
		b, err := json.Marshal(o.SubStatement)
		if err != nil {
			return 0, activityID, actorID, statementRef, nil, fmt.Errorf("store: marshal substatement: %w", err)
		}
		subJSON = b
		// Resolve the sub-statement's own actor/activity so context
		// junctions and related_agents/related_activities expansion can
		// reach them without re-parsing the JSON blob.
		if _, err := s.actors.Resolve(ctx, tx, o.SubStatement.Actor); err != nil {
			return 0, activityID, actorID, statementRef, nil, fmt.Errorf("store: resolve substatement actor: %w", err)
		}
		if o.SubStatement.Object.Kind == model.ObjectActivity && o.SubStatement.Object.Activity != nil {
			if _, err := s.resolveActivity(ctx, tx, *o.SubStatement.Object.Activity); err != nil {
				return 0, activityID, actorID, statementRef, nil, err
			}
		}
	}
	return o.Kind, activityID, actorID, statementRef, subJSON, nil
}

// ContextActivityRole enumerates the context_activity.role column.
type ContextActivityRole int

const (
	RoleParent ContextActivityRole = iota
	RoleGrouping
	RoleCategory
	RoleOther
)

// ContextActorRole enumerates the context_actor.role column.
type ContextActorRole int

const (
	RoleInstructor ContextActorRole = iota
	RoleTeam
	RoleContextAgent
	RoleContextGroup
	RoleAuthority
	RoleSubStatementActor
)

func (s *Store) writeContextJunctions(ctx context.Context, tx *sql.Tx, st *model.Statement) error {
	link := func(role ContextActorRole, a model.Actor) error {
		id, err := s.actors.Resolve(ctx, tx, a)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO context_actor (statement_id, role, actor_id) VALUES ($1, $2, $3)`, st.ID, int(role), id)
		return err
	}
	linkAct := func(role ContextActivityRole, act model.Activity) error {
		id, err := s.resolveActivity(ctx, tx, act)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO context_activity (statement_id, role, activity_id) VALUES ($1, $2, $3)`, st.ID, int(role), id)
		return err
	}

	if st.Authority != nil {
		if err := link(RoleAuthority, *st.Authority); err != nil {
			return fmt.Errorf("store: link authority: %w", err)
		}
	}
	if st.Object.Kind == model.ObjectSubStatement && st.Object.SubStatement != nil {
		sub := st.Object.SubStatement
		if err := link(RoleSubStatementActor, sub.Actor); err != nil {
			return fmt.Errorf("store: link substatement actor: %w", err)
		}
		// The nested Object's Activity and the SubStatement's own
		// contextActivities must be reachable via related_activities=true
		// exactly like a top-level Statement's, so they are linked here
		// too rather than only living in obj_substatement's JSON blob.
		if sub.Object.Kind == model.ObjectActivity && sub.Object.Activity != nil {
			if err := linkAct(RoleOther, *sub.Object.Activity); err != nil {
				return fmt.Errorf("store: link substatement object activity: %w", err)
			}
		}
		if sub.Context != nil && sub.Context.ContextActivities != nil {
			for _, a := range sub.Context.ContextActivities.Parent {
				if err := linkAct(RoleParent, a); err != nil {
					return fmt.Errorf("store: link substatement parent activity: %w", err)
				}
			}
			for _, a := range sub.Context.ContextActivities.Grouping {
				if err := linkAct(RoleGrouping, a); err != nil {
					return fmt.Errorf("store: link substatement grouping activity: %w", err)
				}
			}
			for _, a := range sub.Context.ContextActivities.Category {
				if err := linkAct(RoleCategory, a); err != nil {
					return fmt.Errorf("store: link substatement category activity: %w", err)
				}
			}
			for _, a := range sub.Context.ContextActivities.Other {
				if err := linkAct(RoleOther, a); err != nil {
					return fmt.Errorf("store: link substatement other activity: %w", err)
				}
			}
		}
	}
	if st.Context == nil {
		return nil
	}
	c := st.Context
	if c.Instructor != nil {
		if err := link(RoleInstructor, *c.Instructor); err != nil {
			return fmt.Errorf("store: link instructor: %w", err)
		}
	}
	if c.Team != nil {
		if err := link(RoleTeam, *c.Team); err != nil {
			return fmt.Errorf("store: link team: %w", err)
		}
	}
	for _, ca := range c.ContextAgents {
		if err := link(RoleContextAgent, ca.Agent); err != nil {
			return fmt.Errorf("store: link contextAgent: %w", err)
		}
	}
	for _, cg := range c.ContextGroups {
		if err := link(RoleContextGroup, cg.Group); err != nil {
			return fmt.Errorf("store: link contextGroup: %w", err)
		}
	}
	if c.ContextActivities != nil {
		for _, a := range c.ContextActivities.Parent {
			if err := linkAct(RoleParent, a); err != nil {
				return fmt.Errorf("store: link parent activity: %w", err)
			}
		}
		for _, a := range c.ContextActivities.Grouping {
			if err := linkAct(RoleGrouping, a); err != nil {
				return fmt.Errorf("store: link grouping activity: %w", err)
			}
		}
		for _, a := range c.ContextActivities.Category {
			if err := linkAct(RoleCategory, a); err != nil {
				return fmt.Errorf("store: link category activity: %w", err)
			}
		}
		for _, a := range c.ContextActivities.Other {
			if err := linkAct(RoleOther, a); err != nil {
				return fmt.Errorf("store: link other activity: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) writeAttachments(ctx context.Context, tx *sql.Tx, st *model.Statement) error {
	for _, at := range st.Attachments {
		display, err := json.Marshal(at.Display)
		if err != nil {
			return fmt.Errorf("store: marshal attachment display: %w", err)
		}
		description, err := marshalOptional(at.Description)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO statement_attachment (statement_id, usage_type, display, description, content_type, length, sha2, file_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, st.ID, at.UsageType, display, description, at.ContentType, at.Length, at.SHA2, nullIfEmpty(at.FileURL))
		if err != nil {
			return fmt.Errorf("store: insert attachment: %w", err)
		}
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// applyVoiding marks the Statement referenced by st's StatementRef
// object as voided.
func (s *Store) applyVoiding(ctx context.Context, tx *sql.Tx, st *model.Statement) error {
	if st.Object.Kind != model.ObjectStatementRef || st.Object.StatementRef == nil {
		return apierror.Validation("voiding statement must reference a statement by StatementRef")
	}
	targetID := st.Object.StatementRef.ID

	var targetVerb string
	err := tx.QueryRowContext(ctx, `
		SELECT v.iri FROM statement s JOIN verb v ON v.id = s.verb_id WHERE s.id = $1
	`, targetID).Scan(&targetVerb)
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.Validation("voiding statement references unknown statement %s", targetID)
	}
	if err != nil {
		return fmt.Errorf("store: loading voiding target: %w", err)
	}
	if targetVerb == model.VoidingVerbID {
		return apierror.Validation("cannot void a voiding statement")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE statement SET voided = true WHERE id = $1`, targetID); err != nil {
		return fmt.Errorf("store: applying voiding: %w", err)
	}
	return nil
}

// FindByUUID returns the Statement with the given id. If includeVoided
// is false, a voided Statement is reported as not found.
func (s *Store) FindByUUID(ctx context.Context, id uuid.UUID, includeVoided bool) (*model.Statement, error) {
	var raw []byte
	var voided bool
	err := s.db.QueryRowContext(ctx, `SELECT raw, voided FROM statement WHERE id = $1`, id).Scan(&raw, &voided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrStatementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by uuid: %w", err)
	}
	if voided && !includeVoided {
		return nil, database.ErrStatementNotFound
	}
	st, err := model.ParseStatement(raw)
	if err != nil {
		return nil, fmt.Errorf("store: reparsing statement %s: %w", id, err)
	}
	st.Voided = voided
	return st, nil
}

// FindVoidedByUUID returns the Statement with the given id only if it
// has been voided.
func (s *Store) FindVoidedByUUID(ctx context.Context, id uuid.UUID) (*model.Statement, error) {
	st, err := s.FindByUUID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !st.Voided {
		return nil, database.ErrStatementNotFound
	}
	return st, nil
}

// FindActivityByIRI returns the merged Activity stored under iri, for
// the GET /activities supplemented endpoint.
func (s *Store) FindActivityByIRI(ctx context.Context, iri string) (*model.Activity, error) {
	var def []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM activity WHERE iri = $1`, iri).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find activity by iri: %w", err)
	}
	act := &model.Activity{ObjectType: "Activity", ID: iri}
	if len(def) > 0 {
		var definition model.ActivityDefinition
		if err := json.Unmarshal(def, &definition); err != nil {
			return nil, fmt.Errorf("store: unmarshal activity definition: %w", err)
		}
		act.Definition = &definition
	}
	return act, nil
}

// AttachmentContent returns the binary content stored for a given sha2,
// used to serve GET ?attachments=true responses.
func (s *Store) AttachmentContent(ctx context.Context, sha2 string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM attachment_blob WHERE sha2 = $1`, sha2).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: attachment content: %w", err)
	}
	return content, nil
}

// StoreAttachmentBlob persists the binary content of an ingested
// attachment part, keyed by its sha2, ignoring the write if already present.
func (s *Store) StoreAttachmentBlob(ctx context.Context, sha2 string, content []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachment_blob (sha2, content) VALUES ($1, $2)
		ON CONFLICT (sha2) DO NOTHING
	`, sha2, content)
	if err != nil {
		return fmt.Errorf("store: store attachment blob: %w", err)
	}
	return nil
}
