package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/curanet/fhird/internal/service/fhir/adapters/audit"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// entrySnapshot is the stable projection of a response entry used for golden
// comparison: ids and clock are deterministic in the test stack, so these
// bytes are reproducible.
type entrySnapshot struct {
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
}

func snapshot(t *testing.T, b model.Bundle) []byte {
	t.Helper()
	out := make([]entrySnapshot, 0, len(b.Entry))
	for _, e := range b.Entry {
		require.NotNil(t, e.Response)
		out = append(out, entrySnapshot{Status: e.Response.Status, Location: e.Response.Location})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	require.NoError(t, err)
	return data
}

// A mixed batch touching every verb class: the response must line up with
// submission order even though execution reorders by verb.
func TestBatchScenario(t *testing.T) {
	s := newStack(t)
	s.seed(t, model.Resource{"resourceType": "Patient", "id": "5"})
	s.seed(t, model.Resource{"resourceType": "Patient", "id": "7"})
	s.seed(t, model.Resource{"resourceType": "Observation", "id": "o1", "status": "final",
		"meta": map[string]any{"tag": []any{map[string]any{"code": "123"}}}})

	submission := model.Bundle{
		ResourceType: "Bundle",
		Type:         model.BundleTypeBatch,
		Entry: []model.BundleEntry{
			{Request: &model.EntryRequest{Method: "DELETE", URL: "Patient/5"}},
			{
				FullURL:  "urn:uuid:1",
				Resource: json.RawMessage(`{"resourceType":"Patient","name":[{"family":"Alpha"}]}`),
				Request:  &model.EntryRequest{Method: "POST", URL: "Patient"},
			},
			{
				FullURL:  "urn:uuid:2",
				Resource: json.RawMessage(`{"resourceType":"Patient","name":[{"family":"Beta"}]}`),
				Request:  &model.EntryRequest{Method: "POST", URL: "Patient"},
			},
			{
				Resource: json.RawMessage(`{"resourceType":"Patient","id":"7"}`),
				Request:  &model.EntryRequest{Method: "PUT", URL: "Patient/7", IfMatch: `W/"99"`},
			},
			{Request: &model.EntryRequest{Method: "GET", URL: "Observation?tag=123"}},
		},
	}
	rec := s.do(t, "POST", "/", submission, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out, err := model.ParseBundle(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, model.BundleTypeBatchResponse, out.Type)
	require.Len(t, out.Entry, 5)

	g := goldie.New(t)
	g.Assert(t, "batch_scenario", snapshot(t, out))

	// the delete landed and the creates kept their assigned ids
	_, err = s.store.Read(context.Background(), "Patient", "5")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	for _, id := range []string{"id-1", "id-2"} {
		_, err = s.store.Read(context.Background(), "Patient", id)
		assert.NoError(t, err)
	}

	// the search entry carries a searchset with the tagged observation
	results, err := model.ParseBundle(out.Entry[4].Resource)
	require.NoError(t, err)
	require.Len(t, results.Entry, 1)
	assert.Equal(t, "Observation/o1", results.Entry[0].FullURL)
}

func TestSubmissionAuditTrail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := newStack(t, withAudit(audit.NewSink(zap.New(core))))
	s.seed(t, model.Resource{"resourceType": "Patient", "id": "1"})

	submission := model.Bundle{
		ResourceType: "Bundle",
		Type:         model.BundleTypeBatch,
		Entry: []model.BundleEntry{
			{Request: &model.EntryRequest{Method: "GET", URL: "Patient/1"}},
			{Request: &model.EntryRequest{Method: "DELETE", URL: "Patient/1"}},
		},
	}
	rec := s.do(t, "POST", "/", submission, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 4, "one executing and one executed record per entry")

	correlations := map[string]struct{}{}
	for _, e := range entries {
		fields := e.ContextMap()
		corr, _ := fields["correlation"].(string)
		assert.NotEmpty(t, corr)
		correlations[corr] = struct{}{}
		assert.Equal(t, "Patient", fields["resource_type"])
	}
	assert.Len(t, correlations, 1, "every record carries the submission correlation id")
}
