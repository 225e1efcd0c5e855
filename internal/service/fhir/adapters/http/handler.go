package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/curanet/fhird/internal/service/fhir/app/bundle"
	"github.com/curanet/fhird/internal/service/fhir/app/conditional"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

const fhirJSON = "application/fhir+json"

// Server implements the REST surface. The same handlers serve standalone
// requests and the sub-requests the bundle engine replays through the
// loopback pipeline.
type Server struct {
	store  ports.Store
	cond   *conditional.Coordinator
	engine *bundle.Engine
	logger *zap.Logger
}

func NewServer(store ports.Store, cond *conditional.Coordinator, logger *zap.Logger) *Server {
	return &Server{store: store, cond: cond, logger: logger}
}

// AttachEngine closes the construction cycle: the engine dispatches through
// the router built from this server, so it is wired in after the router.
func (s *Server) AttachEngine(e *bundle.Engine) {
	s.engine = e
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, "unreadable body")
		return
	}
	b, err := model.ParseBundle(raw)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
		return
	}

	result, err := s.engine.Process(r.Context(), b)
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeSubmissionError maps submission-level engine failures onto one
// response; per-entry failures never reach here.
func (s *Server) writeSubmissionError(w http.ResponseWriter, err error) {
	var abort *bundle.AbortError
	switch {
	case errors.As(err, &abort):
		writeJSON(w, abort.Status, abort.Outcome)
	case errors.Is(err, bundle.ErrInvalidMode),
		errors.Is(err, bundle.ErrUnresolvedReference):
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
	case errors.Is(err, bundle.ErrUnsupportedResource):
		writeOutcome(w, http.StatusBadRequest, model.IssueNotSupported, err.Error())
	default:
		s.logger.Error("submission failed", zap.Error(err))
		writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, "transaction failed")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	res, ok := s.readResource(w, r, typ)
	if !ok {
		return
	}

	// Conditional create: search first, act on the match count. The window
	// between this check and the create is unguarded; see package conditional.
	if criteria := r.Header.Get("If-None-Exist"); criteria != "" {
		query, err := url.ParseQuery(criteria)
		if err != nil {
			writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, "malformed If-None-Exist")
			return
		}
		decision, err := s.cond.Evaluate(r.Context(), typ, query)
		if err != nil {
			writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
			return
		}
		switch decision.Outcome {
		case conditional.Ambiguous:
			writeOutcome(w, http.StatusPreconditionFailed, model.IssueMultipleMatches, "criteria not selective enough")
			return
		case conditional.Exists:
			existing, err := s.store.Read(r.Context(), typ, decision.Match.ID)
			if err != nil {
				writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
				return
			}
			// No-op success: an existing resource already satisfies the
			// criteria. Distinct from created (200, no new id).
			w.Header().Set("Location", fmt.Sprintf("%s/%s/_history/%s", typ, existing.ID(), existing.VersionID()))
			writeResource(w, http.StatusOK, existing)
			return
		}
	}

	if forced := r.Header.Get(bundle.ProvisionalIDHeader); forced != "" {
		res.SetID(forced)
	}
	created, err := s.store.Create(r.Context(), res)
	if err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			writeOutcome(w, http.StatusConflict, model.IssueConflict, err.Error())
			return
		}
		writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/%s/_history/%s", typ, created.ID(), created.VersionID()))
	writeResource(w, http.StatusCreated, created)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.store.Read(r.Context(), typ, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeOutcome(w, http.StatusNotFound, model.IssueNotFound, err.Error())
			return
		}
		writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
		return
	}
	writeResource(w, http.StatusOK, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	res, ok := s.readResource(w, r, typ)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	s.update(w, r, typ, id, res, r.Header.Get("If-Match"))
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, typ, id string, res model.Resource, ifMatch string) {
	updated, created, err := s.store.Update(r.Context(), typ, id, res, ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrVersionConflict):
			writeOutcome(w, http.StatusPreconditionFailed, model.IssueConflict, err.Error())
		case errors.Is(err, ports.ErrNotFound):
			writeOutcome(w, http.StatusNotFound, model.IssueNotFound, err.Error())
		default:
			writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
		}
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("%s/%s/_history/%s", typ, updated.ID(), updated.VersionID()))
	}
	writeResource(w, status, updated)
}

// handleConditionalUpdate serves PUT /{type}?criteria: zero matches creates,
// one match updates it, many fail.
func (s *Server) handleConditionalUpdate(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	if len(query) == 0 {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, "conditional update requires selection criteria")
		return
	}
	res, ok := s.readResource(w, r, typ)
	if !ok {
		return
	}
	decision, err := s.cond.Evaluate(r.Context(), typ, query)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
		return
	}
	switch decision.Outcome {
	case conditional.Ambiguous:
		writeOutcome(w, http.StatusPreconditionFailed, model.IssueMultipleMatches, "criteria not selective enough")
	case conditional.Exists:
		s.update(w, r, typ, decision.Match.ID, res, r.Header.Get("If-Match"))
	default:
		created, err := s.store.Create(r.Context(), res)
		if err != nil {
			writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
			return
		}
		w.Header().Set("Location", fmt.Sprintf("%s/%s/_history/%s", typ, created.ID(), created.VersionID()))
		writeResource(w, http.StatusCreated, created)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), typ, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeOutcome(w, http.StatusNotFound, model.IssueNotFound, err.Error())
			return
		}
		writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConditionalDelete serves DELETE /{type}?criteria. Zero matches is a
// successful no-op.
func (s *Server) handleConditionalDelete(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	if len(query) == 0 {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, "conditional delete requires selection criteria")
		return
	}
	decision, err := s.cond.Evaluate(r.Context(), typ, query)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
		return
	}
	switch decision.Outcome {
	case conditional.Ambiguous:
		writeOutcome(w, http.StatusPreconditionFailed, model.IssueMultipleMatches, "criteria not selective enough")
	case conditional.Exists:
		if err := s.store.Delete(r.Context(), typ, decision.Match.ID); err != nil {
			writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.knownType(w, r)
	if !ok {
		return
	}
	resources, err := s.store.Search(r.Context(), typ, r.URL.Query())
	if err != nil {
		writeOutcome(w, http.StatusInternalServerError, model.IssueProcessing, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.NewSearchset(resources))
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	type restResource struct {
		Type string `json:"type"`
	}
	capability := map[string]any{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{fhirJSON},
		"rest": []map[string]any{{
			"mode": "server",
			"interaction": []map[string]string{
				{"code": "batch"},
				{"code": "transaction"},
			},
			"resource": func() []restResource {
				var out []restResource
				for _, t := range model.KnownTypes() {
					out = append(out, restResource{Type: t})
				}
				return out
			}(),
		}},
	}
	writeJSON(w, http.StatusOK, capability)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// knownType resolves the {resourceType} route param, rejecting types the
// server does not serve.
func (s *Server) knownType(w http.ResponseWriter, r *http.Request) (string, bool) {
	typ := chi.URLParam(r, "resourceType")
	if !model.IsKnownType(typ) {
		writeOutcome(w, http.StatusNotFound, model.IssueNotSupported, fmt.Sprintf("resource type %q is not supported", typ))
		return "", false
	}
	return typ, true
}

func (s *Server) readResource(w http.ResponseWriter, r *http.Request, typ string) (model.Resource, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, "unreadable body")
		return nil, false
	}
	res, err := model.ParseResource(raw)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid, err.Error())
		return nil, false
	}
	if res.Type() != typ {
		writeOutcome(w, http.StatusBadRequest, model.IssueInvalid,
			fmt.Sprintf("resource type %q does not match endpoint %q", res.Type(), typ))
		return nil, false
	}
	return res, true
}

func writeResource(w http.ResponseWriter, status int, res model.Resource) {
	if v := res.VersionID(); v != "" {
		w.Header().Set("ETag", `W/"`+v+`"`)
	}
	if lu := res.LastUpdated(); lu != "" {
		w.Header().Set("Last-Modified", lu)
	}
	writeJSON(w, status, res)
}

func writeOutcome(w http.ResponseWriter, status int, code, diagnostics string) {
	writeJSON(w, status, model.NewOutcome(code, diagnostics))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", fhirJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
