package bundle

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

func respond(status int, header http.Header, body []byte) func(ports.SubRequest) (ports.SubResponse, error) {
	return func(ports.SubRequest) (ports.SubResponse, error) {
		if header == nil {
			header = http.Header{}
		}
		return ports.SubResponse{Status: status, Header: header, Body: body}, nil
	}
}

func TestDispatch_BuildsSubRequest(t *testing.T) {
	pipeline := &fakePipeline{fn: respond(200, nil, []byte(`{"resourceType":"Patient","id":"5"}`))}
	d := &dispatcher{pipeline: pipeline, audit: &recordingAudit{}}

	entry := Entry{
		Index:    3,
		Method:   "PUT",
		URL:      "Patient/5?foo=bar",
		Resource: model.Resource{"resourceType": "Patient", "id": "5"},
		IfMatch:  `W/"2"`,
	}
	env := d.dispatch(context.Background(), entry, "forced-1")

	require.Len(t, pipeline.requests, 1)
	req := pipeline.requests[0]
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "/Patient/5", req.Path)
	assert.Equal(t, "bar", req.Query.Get("foo"))
	assert.Equal(t, `W/"2"`, req.Header.Get("If-Match"))
	assert.Equal(t, "forced-1", req.Header.Get(ProvisionalIDHeader))
	assert.NotEmpty(t, req.Body)

	assert.Equal(t, 3, env.index)
	assert.Equal(t, 200, env.status)
	assert.False(t, env.isError())
	assert.Equal(t, "200 OK", env.entry.Response.Status)
	assert.NotEmpty(t, env.entry.Resource)
	assert.Empty(t, env.entry.Response.Outcome)
}

func TestDispatch_OutcomeBodyAttachedAsOutcome(t *testing.T) {
	body := model.NewOutcome(model.IssueConflict, "stale").MarshalRaw()
	d := &dispatcher{
		pipeline: &fakePipeline{fn: respond(412, nil, body)},
		audit:    &recordingAudit{},
	}
	env := d.dispatch(context.Background(), Entry{Method: "PUT", URL: "Patient/1"}, "")

	assert.True(t, env.isError())
	assert.Empty(t, env.entry.Resource)
	outcome, ok := model.AsOutcome(env.entry.Response.Outcome)
	require.True(t, ok)
	assert.Equal(t, model.IssueConflict, outcome.Issue[0].Code)
}

func TestDispatch_SynthesizesForbiddenOutcome(t *testing.T) {
	d := &dispatcher{
		pipeline: &fakePipeline{fn: respond(http.StatusForbidden, nil, nil)},
		audit:    &recordingAudit{},
	}
	env := d.dispatch(context.Background(), Entry{Method: "GET", URL: "Patient/1"}, "")

	outcome, ok := model.AsOutcome(env.entry.Response.Outcome)
	require.True(t, ok)
	assert.Equal(t, model.IssueForbidden, outcome.Issue[0].Code)
}

func TestDispatch_PipelineErrorBecomesNotFound(t *testing.T) {
	d := &dispatcher{
		pipeline: &fakePipeline{fn: func(ports.SubRequest) (ports.SubResponse, error) {
			return ports.SubResponse{}, errors.New("no route")
		}},
		audit: &recordingAudit{},
	}
	env := d.dispatch(context.Background(), Entry{Method: "FOO", URL: "Nowhere/1"}, "")

	assert.Equal(t, http.StatusNotFound, env.status)
	outcome, ok := model.AsOutcome(env.entry.Response.Outcome)
	require.True(t, ok)
	assert.Equal(t, model.IssueNotFound, outcome.Issue[0].Code)
}

func TestDispatch_AuditPairing(t *testing.T) {
	audit := &recordingAudit{}
	d := &dispatcher{
		pipeline: &fakePipeline{fn: respond(204, nil, nil)},
		audit:    audit,
	}
	ctx := common.WithCorrelation(context.Background(), "corr-1")
	d.dispatch(ctx, Entry{Method: "DELETE", URL: "Patient/5"}, "")

	require.Len(t, audit.events, 2)
	for _, ev := range audit.events {
		assert.Equal(t, "corr-1", ev.Correlation)
		assert.Equal(t, "Patient", ev.ResourceType)
		assert.Equal(t, "delete", ev.Action)
	}
	assert.Zero(t, audit.events[0].Status, "executing record precedes the result")
	assert.Equal(t, 204, audit.events[1].Status)
}

func TestDispatch_CapturesResponseMetadata(t *testing.T) {
	header := http.Header{}
	header.Set("Location", "Patient/9/_history/1")
	header.Set("ETag", `W/"1"`)
	header.Set("Last-Modified", "2026-05-01T12:00:00Z")
	d := &dispatcher{
		pipeline: &fakePipeline{fn: respond(201, header, []byte(`{"resourceType":"Patient","id":"9"}`))},
		audit:    &recordingAudit{},
	}
	env := d.dispatch(context.Background(), Entry{Method: "POST", URL: "Patient",
		Resource: model.Resource{"resourceType": "Patient"}}, "")

	assert.Equal(t, "201 Created", env.entry.Response.Status)
	assert.Equal(t, "Patient/9/_history/1", env.entry.Response.Location)
	assert.Equal(t, `W/"1"`, env.entry.Response.Etag)
	assert.Equal(t, "2026-05-01T12:00:00Z", env.entry.Response.LastModified)
}
