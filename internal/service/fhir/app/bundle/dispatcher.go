package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// ProvisionalIDHeader forces a pre-assigned id onto a create operation so a
// reference-bound id survives the round trip through the pipeline. Internal
// only; the outer HTTP server never sets it on behalf of clients.
const ProvisionalIDHeader = "X-Provisional-Id"

// envelope is one entry's result, keyed back to its original position.
type envelope struct {
	index  int
	status int
	entry  model.BundleEntry
}

func (e envelope) isError() bool {
	return e.status >= 400
}

// dispatcher synthesizes a self-contained sub-request per entry and routes it
// through the same pipeline that serves standalone requests.
type dispatcher struct {
	pipeline ports.Pipeline
	audit    ports.AuditSink
}

func (d *dispatcher) dispatch(ctx context.Context, e Entry, forcedID string) envelope {
	path, rawQuery, _ := strings.Cut(e.URL, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}

	req := ports.SubRequest{
		Method: e.Method,
		Path:   "/" + path,
		Query:  query,
		Header: http.Header{},
	}
	if e.IfMatch != "" {
		req.Header.Set("If-Match", e.IfMatch)
	}
	if e.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", e.IfNoneMatch)
	}
	if e.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", e.IfModifiedSince)
	}
	if e.IfNoneExist != "" {
		req.Header.Set("If-None-Exist", e.IfNoneExist)
	}
	if forcedID != "" {
		req.Header.Set(ProvisionalIDHeader, forcedID)
	}
	if e.Resource != nil && (e.Method == "POST" || e.Method == "PUT" || e.Method == "PATCH") {
		req.Header.Set("Content-Type", "application/fhir+json")
		req.Body, _ = json.Marshal(e.Resource)
	}

	// Per-entry context: same correlation id as the submission, entry-specific
	// operation descriptor for audit/authorization downstream.
	entryCtx := common.WithOperation(ctx, common.Operation{
		ResourceType: e.resourceType(),
		Action:       strings.ToLower(e.Method),
	})
	ev := ports.AuditEvent{
		Correlation:  common.Correlation(entryCtx),
		ResourceType: e.resourceType(),
		Action:       strings.ToLower(e.Method),
	}
	d.audit.Executing(entryCtx, ev)

	resp, err := d.pipeline.Dispatch(entryCtx, req)
	if err != nil {
		// Local fallback: routing never reached a handler.
		env := d.synthesize(e.Index, http.StatusNotFound,
			model.NewOutcome(model.IssueNotFound, fmt.Sprintf("no handler for %s %s", e.Method, e.URL)))
		ev.Status = env.status
		d.audit.Executed(entryCtx, ev)
		return env
	}

	env := d.capture(e.Index, resp)
	ev.Status = env.status
	d.audit.Executed(entryCtx, ev)
	return env
}

// capture turns a pipeline response into a result envelope, synthesizing
// outcomes the pipeline did not attach.
func (d *dispatcher) capture(index int, resp ports.SubResponse) envelope {
	result := model.BundleEntry{
		Response: &model.EntryResponse{
			Status:       statusLine(resp.Status),
			Location:     resp.Header.Get("Location"),
			Etag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}

	body := resp.Body
	if len(body) == 0 || !json.Valid(body) {
		switch {
		case resp.Status == http.StatusForbidden:
			result.Response.Outcome = model.NewOutcome(model.IssueForbidden, "forbidden").MarshalRaw()
		case resp.Status == http.StatusNotFound:
			result.Response.Outcome = model.NewOutcome(model.IssueNotFound, "not found").MarshalRaw()
		case resp.Status >= 400:
			result.Response.Outcome = model.NewOutcome(model.IssueProcessing, statusLine(resp.Status)).MarshalRaw()
		}
		return envelope{index: index, status: resp.Status, entry: result}
	}

	if outcome, ok := model.AsOutcome(body); ok {
		result.Response.Outcome = outcome.MarshalRaw()
	} else {
		result.Resource = json.RawMessage(body)
	}
	return envelope{index: index, status: resp.Status, entry: result}
}

func (d *dispatcher) synthesize(index, status int, outcome model.OperationOutcome) envelope {
	return envelope{
		index:  index,
		status: status,
		entry: model.BundleEntry{
			Response: &model.EntryResponse{
				Status:  statusLine(status),
				Outcome: outcome.MarshalRaw(),
			},
		},
	}
}

func statusLine(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprint(code)
}
