package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	res, err := ParseResource([]byte(`{"resourceType":"Patient","id":"5","gender":"male"}`))
	require.NoError(t, err)
	assert.Equal(t, "Patient", res.Type())
	assert.Equal(t, "5", res.ID())
}

func TestParseResource_Invalid(t *testing.T) {
	_, err := ParseResource([]byte(`{"id":"5"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resourceType")

	_, err = ParseResource([]byte(`not json`))
	require.Error(t, err)
}

func TestSetMeta(t *testing.T) {
	res := Resource{"resourceType": "Patient"}
	res.SetMeta("3", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Equal(t, "3", res.VersionID())
	assert.Equal(t, "2026-01-02T03:04:05Z", res.LastUpdated())
}

func TestClone_Independent(t *testing.T) {
	res, err := ParseResource([]byte(`{"resourceType":"Observation","subject":{"reference":"urn:1"}}`))
	require.NoError(t, err)

	cp := res.Clone()
	cp.SetID("x")
	require.NoError(t, cp.RewriteReferences(func(string) (string, error) { return "Patient/1", nil }))

	assert.Empty(t, res.ID())
	subject := res["subject"].(map[string]any)
	assert.Equal(t, "urn:1", subject["reference"])
}

func TestRewriteReferences_Nested(t *testing.T) {
	res, err := ParseResource([]byte(`{
		"resourceType": "DiagnosticReport",
		"subject": {"reference": "urn:patient"},
		"result": [
			{"reference": "urn:obs1"},
			{"reference": "Observation/kept"}
		],
		"contained": [{"resourceType": "Observation", "device": {"reference": "urn:device"}}]
	}`))
	require.NoError(t, err)

	seen := map[string]string{
		"urn:patient":      "Patient/p1",
		"urn:obs1":         "Observation/o1",
		"urn:device":       "Device/d1",
		"Observation/kept": "Observation/kept",
	}
	err = res.RewriteReferences(func(ref string) (string, error) {
		out, ok := seen[ref]
		require.True(t, ok, "unexpected reference %q", ref)
		return out, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Patient/p1", res["subject"].(map[string]any)["reference"])
	results := res["result"].([]any)
	assert.Equal(t, "Observation/o1", results[0].(map[string]any)["reference"])
	assert.Equal(t, "Observation/kept", results[1].(map[string]any)["reference"])
	contained := res["contained"].([]any)[0].(map[string]any)
	assert.Equal(t, "Device/d1", contained["device"].(map[string]any)["reference"])
}

func TestRewriteReferences_ErrorStopsWalk(t *testing.T) {
	res := Resource{
		"resourceType": "Observation",
		"subject":      map[string]any{"reference": "urn:missing"},
	}
	boom := errors.New("unresolved")
	err := res.RewriteReferences(func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}
