// Copyright 2025 Certen Protocol
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/xapi-lrs/pkg/database"
	"github.com/certen/xapi-lrs/pkg/model"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	connStr := os.Getenv("LRS_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testDB, err = sql.Open("postgres", connStr)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func completedStatement(activityIRI string) *model.Statement {
	return &model.Statement{
		Actor:  model.Actor{Mbox: "mailto:store-test@example.com", Name: "Store Test"},
		Verb:   model.Verb{ID: "http://adlnet.gov/expapi/verbs/completed"},
		Object: model.StatementObject{Kind: model.ObjectActivity, Activity: &model.Activity{ID: activityIRI}},
	}
}

func TestIngestIsIdempotentByFingerprint(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)

	st1 := completedStatement("http://example.com/activities/idempotent")
	ids1, err := s.Ingest(ctx, []*model.Statement{st1}, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	st2 := completedStatement("http://example.com/activities/idempotent")
	ids2, err := s.Ingest(ctx, []*model.Statement{st2}, nil)
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if ids1[0] != ids2[0] {
		t.Errorf("expected re-ingesting identical content to return the same id, got %s and %s", ids1[0], ids2[0])
	}
}

func TestIngestRejectsDivergentContentUnderSameUUID(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)

	st1 := completedStatement("http://example.com/activities/uuid-conflict")
	ids, err := s.Ingest(ctx, []*model.Statement{st1}, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	st2 := completedStatement("http://example.com/activities/different")
	st2.ID = ids[0]
	if _, err := s.Ingest(ctx, []*model.Statement{st2}, nil); err == nil {
		t.Error("expected conflict error for same id, different content")
	}
}

func TestVoidingMarksTargetVoided(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)

	target := completedStatement("http://example.com/activities/to-be-voided")
	ids, err := s.Ingest(ctx, []*model.Statement{target}, nil)
	if err != nil {
		t.Fatalf("ingest target: %v", err)
	}

	voiding := &model.Statement{
		Actor:  model.Actor{Mbox: "mailto:voider@example.com"},
		Verb:   model.Verb{ID: model.VoidingVerbID},
		Object: model.StatementObject{Kind: model.ObjectStatementRef, StatementRef: &model.StatementRef{ObjectType: "StatementRef", ID: ids[0]}},
	}
	if _, err := s.Ingest(ctx, []*model.Statement{voiding}, nil); err != nil {
		t.Fatalf("ingest voiding statement: %v", err)
	}

	if _, err := s.FindByUUID(ctx, ids[0], false); !errors.Is(err, database.ErrStatementNotFound) {
		t.Errorf("expected voided statement to be hidden from FindByUUID, got %v", err)
	}
	voided, err := s.FindVoidedByUUID(ctx, ids[0])
	if err != nil {
		t.Fatalf("find voided: %v", err)
	}
	if !voided.Voided {
		t.Error("expected Voided flag to be set")
	}
}

func TestVoidingRejectsVoidingAVoidingStatement(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)

	target := completedStatement("http://example.com/activities/double-void-target")
	ids, err := s.Ingest(ctx, []*model.Statement{target}, nil)
	if err != nil {
		t.Fatalf("ingest target: %v", err)
	}
	firstVoid := &model.Statement{
		Actor:  model.Actor{Mbox: "mailto:voider@example.com"},
		Verb:   model.Verb{ID: model.VoidingVerbID},
		Object: model.StatementObject{Kind: model.ObjectStatementRef, StatementRef: &model.StatementRef{ObjectType: "StatementRef", ID: ids[0]}},
	}
	voidIDs, err := s.Ingest(ctx, []*model.Statement{firstVoid}, nil)
	if err != nil {
		t.Fatalf("ingest first void: %v", err)
	}

	secondVoid := &model.Statement{
		Actor:  model.Actor{Mbox: "mailto:voider@example.com"},
		Verb:   model.Verb{ID: model.VoidingVerbID},
		Object: model.StatementObject{Kind: model.ObjectStatementRef, StatementRef: &model.StatementRef{ObjectType: "StatementRef", ID: voidIDs[0]}},
	}
	if _, err := s.Ingest(ctx, []*model.Statement{secondVoid}, nil); err == nil {
		t.Error("expected error when voiding a voiding statement")
	}
}

func TestFindActivityByIRIReturnsMergedDefinition(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)

	iri := "http://example.com/activities/merge-target"
	first := &model.Statement{
		Actor: model.Actor{Mbox: "mailto:a@example.com"},
		Verb:  model.Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"},
		Object: model.StatementObject{Kind: model.ObjectActivity, Activity: &model.Activity{
			ID:         iri,
			Definition: &model.ActivityDefinition{Name: model.LanguageMap{"en-US": "Algebra"}},
		}},
	}
	second := &model.Statement{
		Actor: model.Actor{Mbox: "mailto:b@example.com"},
		Verb:  model.Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"},
		Object: model.StatementObject{Kind: model.ObjectActivity, Activity: &model.Activity{
			ID:         iri,
			Definition: &model.ActivityDefinition{Name: model.LanguageMap{"fr-FR": "Algèbre"}},
		}},
	}
	if _, err := s.Ingest(ctx, []*model.Statement{first}, nil); err != nil {
		t.Fatalf("ingest first: %v", err)
	}
	if _, err := s.Ingest(ctx, []*model.Statement{second}, nil); err != nil {
		t.Fatalf("ingest second: %v", err)
	}

	act, err := s.FindActivityByIRI(ctx, iri)
	if err != nil {
		t.Fatalf("find activity: %v", err)
	}
	if len(act.Definition.Name) != 2 {
		t.Errorf("expected merged name with 2 entries, got %v", act.Definition.Name)
	}
}

func TestFindActivityByIRINotFound(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)
	if _, err := s.FindActivityByIRI(ctx, "http://example.com/activities/never-seen"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConsistentThroughAdvancesAfterIngest(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	s := New(testDB)
	before := s.ConsistentThrough()

	st := completedStatement("http://example.com/activities/consistent-through")
	if _, err := s.Ingest(ctx, []*model.Statement{st}, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	after := s.ConsistentThrough()
	if !after.After(before) {
		t.Errorf("expected consistent-through to advance, got before=%v after=%v", before, after)
	}
}
