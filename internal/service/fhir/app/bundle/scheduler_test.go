package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchedule_GroupsByVerbClass(t *testing.T) {
	entries := []Entry{
		{Index: 0, Method: "GET", URL: "Patient/1"},
		{Index: 1, Method: "POST", URL: "Patient"},
		{Index: 2, Method: "DELETE", URL: "Patient/2"},
		{Index: 3, Method: "PUT", URL: "Patient/3"},
		{Index: 4, Method: "POST", URL: "Observation"},
		{Index: 5}, // malformed: no verb
		{Index: 6, Method: "PATCH", URL: "Patient/4"},
		{Index: 7, Method: "HEAD", URL: "Patient/5"},
	}

	groups, malformed := schedule(entries)

	indexes := func(es []Entry) []int {
		var out []int
		for _, e := range es {
			out = append(out, e.Index)
		}
		return out
	}

	assert.Equal(t, []int{2}, indexes(groups[classDelete]))
	assert.Equal(t, []int{1, 4}, indexes(groups[classCreate]))
	assert.Equal(t, []int{3, 6}, indexes(groups[classUpdate]))
	assert.Equal(t, []int{0, 7}, indexes(groups[classRead]))
	assert.Equal(t, []int{5}, indexes(malformed))

	// every entry lands in exactly one place
	total := len(malformed)
	for _, g := range groups {
		total += len(g)
	}
	assert.Equal(t, len(entries), total)
}

func TestClassify_UnknownVerbRunsLast(t *testing.T) {
	assert.Equal(t, classRead, classify("OPTIONS"))
	assert.Equal(t, classRead, classify("TRACE"))
}
