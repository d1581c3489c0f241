// Copyright 2025 Certen Protocol
//
// Package server exposes the Statement core over HTTP: PUT/POST/GET
// /statements, plus the supplemented GET /agents, GET /activities and
// GET /about endpoints, wired through the Request Guard, Multipart
// Ingest, Signature Verifier, Statement Store and Query Engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/certen/xapi-lrs/pkg/actor"
	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/config"
	"github.com/certen/xapi-lrs/pkg/database"
	"github.com/certen/xapi-lrs/pkg/ingest"
	"github.com/certen/xapi-lrs/pkg/model"
	"github.com/certen/xapi-lrs/pkg/query"
	"github.com/certen/xapi-lrs/pkg/requestguard"
	"github.com/certen/xapi-lrs/pkg/signature"
	"github.com/certen/xapi-lrs/pkg/store"
)

// Server holds the wired Statement-core components and implements the
// xAPI 2.0 Statement API surface.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	actors   *actor.Resolver
	engine   *query.Engine
	verifier *signature.Verifier
	logger   *log.Logger
}

// New returns a Server ready to be mounted onto a mux.
func New(cfg *config.Config, st *store.Store, actors *actor.Resolver, engine *query.Engine, verifier *signature.Verifier, logger *log.Logger) *Server {
	return &Server{cfg: cfg, store: st, actors: actors, engine: engine, verifier: verifier, logger: logger}
}

// Mux builds the server's net/http.ServeMux with plain HandleFunc routes.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/statements", s.stopWatch(s.handleStatements))
	mux.HandleFunc("/agents", s.stopWatch(s.handleAgents))
	mux.HandleFunc("/activities", s.stopWatch(s.handleActivities))
	mux.HandleFunc("/about", s.stopWatch(s.handleAbout))
	return mux
}

// stopWatch wraps a handler to record arrival time and set an
// X-Stop-Watch response header reporting "<arrival RFC3339>; <ms> ms"
// before the wrapped handler's first write, and logs the duration at
// the server's configured logger.
func (s *Server) stopWatch(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		arrival := time.Now().UTC()
		sw := &stopWatchWriter{ResponseWriter: w, arrival: arrival}
		next(sw, r)
		duration := time.Since(arrival)
		if s.logger != nil {
			s.logger.Printf("%s %s %s", r.Method, r.URL.Path, duration)
		}
	}
}

// stopWatchWriter sets the X-Stop-Watch header on the first write, since
// headers can no longer be mutated once the status line is sent.
type stopWatchWriter struct {
	http.ResponseWriter
	arrival     time.Time
	wroteHeader bool
}

func (w *stopWatchWriter) setHeader() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	duration := time.Since(w.arrival)
	w.Header().Set("X-Stop-Watch", fmt.Sprintf("%s; %.3f ms", w.arrival.Format(time.RFC3339Nano), float64(duration.Nanoseconds())/1e6))
}

func (w *stopWatchWriter) WriteHeader(status int) {
	w.setHeader()
	w.ResponseWriter.WriteHeader(status)
}

func (w *stopWatchWriter) Write(b []byte) (int, error) {
	w.setHeader()
	return w.ResponseWriter.Write(b)
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	guard, err := requestguard.Check(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(requestguard.VersionHeader, requestguard.WantVersion)

	switch r.Method {
	case http.MethodPut:
		s.putStatement(w, r, guard)
	case http.MethodPost:
		s.postStatements(w, r, guard)
	case http.MethodGet:
		s.getStatements(w, r, guard)
	default:
		writeError(w, apierror.New(apierror.KindValidation, "method %s not allowed on /statements", r.Method))
	}
}

func (s *Server) putStatement(w http.ResponseWriter, r *http.Request, guard *requestguard.Guard) {
	idParam := r.URL.Query().Get("statementId")
	if idParam == "" {
		writeError(w, apierror.Validation("PUT /statements requires a statementId query parameter"))
		return
	}
	id, err := uuid.Parse(idParam)
	if err != nil {
		writeError(w, apierror.Validation("invalid statementId %q: %v", idParam, err))
		return
	}

	result, err := ingest.Parse(r.Header.Get("Content-Type"), r.Body, s.cfg.MaxIngestBodyBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(result.Statements) != 1 {
		writeError(w, apierror.Validation("PUT /statements requires exactly one statement"))
		return
	}
	st := result.Statements[0]
	if st.ID != uuid.Nil && st.ID != id {
		writeError(w, apierror.Conflict("statement id %s does not match statementId query parameter %s", st.ID, id))
		return
	}
	st.ID = id

	if err := s.verifyAttached(st, result.Attachments); err != nil {
		writeError(w, err)
		return
	}
	if err := st.Validate(0); err != nil {
		writeError(w, err)
		return
	}

	authority := s.requestAuthority()
	if _, err := s.store.Ingest(r.Context(), []*model.Statement{st}, authority); err != nil {
		writeError(w, err)
		return
	}
	if err := s.persistAttachments(r.Context(), result.Attachments); err != nil {
		writeError(w, err)
		return
	}
	s.setConsistentThrough(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postStatements(w http.ResponseWriter, r *http.Request, guard *requestguard.Guard) {
	result, err := ingest.Parse(r.Header.Get("Content-Type"), r.Body, s.cfg.MaxIngestBodyBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, st := range result.Statements {
		if err := s.verifyAttached(st, result.Attachments); err != nil {
			writeError(w, err)
			return
		}
		if err := st.Validate(0); err != nil {
			writeError(w, err)
			return
		}
	}

	authority := s.requestAuthority()
	ids, err := s.store.Ingest(r.Context(), result.Statements, authority)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.persistAttachments(r.Context(), result.Attachments); err != nil {
		writeError(w, err)
		return
	}
	s.setConsistentThrough(w)

	body := make([]string, len(ids))
	for i, id := range ids {
		body[i] = id.String()
	}
	writeJSON(w, http.StatusOK, body)
}

// verifyAttached checks the signature attachment, if any, structurally
// against st. A Statement without a signature attachment passes unchecked.
func (s *Server) verifyAttached(st *model.Statement, parts []ingest.AttachmentPart) error {
	token, ok := ingest.SignatureAttachment(st, parts)
	if !ok {
		return nil
	}
	if s.verifier == nil {
		return nil
	}
	_, err := s.verifier.Verify(token, st)
	return err
}

func (s *Server) persistAttachments(ctx context.Context, parts []ingest.AttachmentPart) error {
	for _, p := range parts {
		if err := s.store.StoreAttachmentBlob(ctx, p.SHA2, p.Content); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) getStatements(w http.ResponseWriter, r *http.Request, guard *requestguard.Guard) {
	q := r.URL.Query()

	if idParam := q.Get("statementId"); idParam != "" {
		s.getSingleStatement(w, r, idParam, false, guard)
		return
	}
	if idParam := q.Get("voidedStatementId"); idParam != "" {
		s.getSingleStatement(w, r, idParam, true, guard)
		return
	}
	s.getStatementPage(w, r, guard)
}

func (s *Server) getSingleStatement(w http.ResponseWriter, r *http.Request, idParam string, voided bool, guard *requestguard.Guard) {
	id, err := uuid.Parse(idParam)
	if err != nil {
		writeError(w, apierror.Validation("invalid statement id %q: %v", idParam, err))
		return
	}
	var st *model.Statement
	if voided {
		st, err = s.store.FindVoidedByUUID(r.Context(), id)
	} else {
		st, err = s.store.FindByUUID(r.Context(), id, false)
	}
	if err != nil {
		if errors.Is(err, database.ErrStatementNotFound) {
			writeError(w, apierror.NotFound("statement %s not found", id))
			return
		}
		writeError(w, err)
		return
	}

	format := query.Format(r.URL.Query().Get("format"))
	switch format {
	case query.FormatIDs:
		st, err = model.ToIDSFormat(st)
	case query.FormatCanonical:
		st, err = model.Canonicalize(st, guard.Languages)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.setConsistentThrough(w)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getStatementPage(w http.ResponseWriter, r *http.Request, guard *requestguard.Guard) {
	q := r.URL.Query()

	if more := q.Get("more"); more != "" {
		filter, pivotStored, pivotSeq, err := query.DecodeCursor(more)
		if err != nil {
			writeError(w, err)
			return
		}
		s.runQuery(w, r, filter, query.Format(q.Get("format")), guard, &pivotStored, &pivotSeq)
		return
	}

	limit, err := requestguard.ParseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	var agent *model.Actor
	if raw := q.Get("agent"); raw != "" {
		var a model.Actor
		if jerr := json.Unmarshal([]byte(raw), &a); jerr != nil {
			writeError(w, apierror.Validation("invalid agent parameter: %v", jerr))
			return
		}
		agent = &a
	}

	params := query.Params{
		Agent:             agent,
		VerbIRI:           q.Get("verb"),
		ActivityIRI:       q.Get("activity"),
		Registration:      q.Get("registration"),
		RelatedActivities: q.Get("related_activities") == "true",
		RelatedAgents:     q.Get("related_agents") == "true",
		Since:             q.Get("since"),
		Until:             q.Get("until"),
		Limit:             limit,
		Ascending:         q.Get("ascending") == "true",
	}

	filter, err := query.Resolve(r.Context(), s.store.DB(), s.actors, params)
	if err != nil {
		writeError(w, err)
		return
	}
	s.runQuery(w, r, filter, query.Format(q.Get("format")), guard, nil, nil)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, filter *query.Filter, format query.Format, guard *requestguard.Guard, pivotStored *time.Time, pivotSeq *int64) {
	page, err := s.engine.Run(r.Context(), filter, format, guard.Languages, pivotStored, pivotSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setConsistentThrough(w)
	writeJSON(w, http.StatusOK, struct {
		Statements []*model.Statement `json:"statements"`
		More       string             `json:"more"`
	}{Statements: page.Statements, More: page.More})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if _, err := requestguard.Check(r); err != nil {
		writeError(w, err)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, apierror.New(apierror.KindValidation, "method %s not allowed on /agents", r.Method))
		return
	}
	raw := r.URL.Query().Get("agent")
	if raw == "" {
		writeError(w, apierror.Validation("GET /agents requires an agent query parameter"))
		return
	}
	var a model.Actor
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		writeError(w, apierror.Validation("invalid agent parameter: %v", err))
		return
	}
	person, err := s.actors.FindPerson(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	if _, err := requestguard.Check(r); err != nil {
		writeError(w, err)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, apierror.New(apierror.KindValidation, "method %s not allowed on /activities", r.Method))
		return
	}
	iri := r.URL.Query().Get("activityId")
	if iri == "" {
		writeError(w, apierror.Validation("GET /activities requires an activityId query parameter"))
		return
	}
	act, err := s.store.FindActivityByIRI(r.Context(), iri)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, apierror.NotFound("activity %q not found", iri))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Version []string `json:"version"`
	}{Version: []string{s.cfg.XAPIVersion}})
}

func (s *Server) requestAuthority() *model.Actor {
	if s.cfg.LegacyAuthorityName == "" {
		return nil
	}
	return &model.Actor{ObjectType: "Agent", Name: s.cfg.LegacyAuthorityName, Mbox: "mailto:" + s.cfg.LegacyAuthorityName}
}

func (s *Server) setConsistentThrough(w http.ResponseWriter) {
	w.Header().Set(requestguard.ConsistentThroughHeader, s.store.ConsistentThrough().Format("2006-01-02T15:04:05.000Z07:00"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", requestguard.StrongETag(body))
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := apierror.StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
