package conditional

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type stubSearch struct {
	matches []ports.Match
	err     error
}

func (s stubSearch) Search(ctx context.Context, resourceType string, query url.Values) ([]ports.Match, error) {
	return s.matches, s.err
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		matches []ports.Match
		want    Outcome
	}{
		{"zero matches proceeds", nil, Proceed},
		{"one match exists", []ports.Match{{ID: "1", Type: "Patient"}}, Exists},
		{"many matches ambiguous", []ports.Match{{ID: "1"}, {ID: "2"}}, Ambiguous},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCoordinator(stubSearch{matches: tc.matches})
			d, err := c.Evaluate(context.Background(), "Patient", url.Values{"identifier": {"x"}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Outcome)
			if tc.want == Exists {
				require.NotNil(t, d.Match)
				assert.Equal(t, "1", d.Match.ID)
			} else {
				assert.Nil(t, d.Match)
			}
		})
	}
}

func TestEvaluate_SearchError(t *testing.T) {
	boom := errors.New("search down")
	c := NewCoordinator(stubSearch{err: boom})
	_, err := c.Evaluate(context.Background(), "Patient", url.Values{})
	assert.ErrorIs(t, err, boom)
}
