package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    string
		limit       int
		want        []step
		wantDropped [][2]string
		wantErr     bool
	}{
		{
			name:     "fenced with ids and dependencies",
			response: "```json\n{\"subquestions\": [{\"id\": \"q1\", \"question\": \"A?\"}, {\"id\": \"q2\", \"question\": \"B?\", \"depends_on\": [\"q1\"], \"rationale\": \"why\"}]}\n```",
			limit:    10,
			want: []step{
				{ID: "q1", Question: "A?"},
				{ID: "q2", Question: "B?", DependsOn: []string{"q1"}, Rationale: "why"},
			},
		},
		{
			name:     "ids default to position",
			response: `{"subquestions": [{"question": " A? "}, {"question": "B?"}]}`,
			limit:    10,
			want:     []step{{ID: "q1", Question: "A?"}, {ID: "q2", Question: "B?"}},
		},
		{
			name:     "duplicate id is renumbered",
			response: `{"subquestions": [{"id": "x", "question": "A?"}, {"id": "x", "question": "B?"}]}`,
			limit:    10,
			want:     []step{{ID: "x", Question: "A?"}, {ID: "q2", Question: "B?"}},
		},
		{
			name:     "forward and unknown dependencies dropped",
			response: `{"subquestions": [{"id": "q1", "question": "A?", "depends_on": ["q2"]}, {"id": "q2", "question": "B?", "depends_on": ["q1", "q1", "zz"]}]}`,
			limit:    10,
			want: []step{
				{ID: "q1", Question: "A?"},
				{ID: "q2", Question: "B?", DependsOn: []string{"q1"}},
			},
			wantDropped: [][2]string{{"q1", "q2"}, {"q2", "zz"}},
		},
		{
			name:     "empty questions skipped and cap applied",
			response: `{"subquestions": [{"question": ""}, {"question": "A?"}, {"question": "B?"}, {"question": "C?"}]}`,
			limit:    2,
			want:     []step{{ID: "q1", Question: "A?"}, {ID: "q2", Question: "B?"}},
		},
		{name: "no json", response: "sorry", limit: 10, wantErr: true},
		{name: "malformed json", response: `{"subquestions": [}`, limit: 10, wantErr: true},
		{name: "no sub-questions", response: `{"subquestions": []}`, limit: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, dropped, err := parsePlan(tt.response, tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestWaves(t *testing.T) {
	t.Parallel()

	steps := []step{
		{ID: "q1"},
		{ID: "q2"},
		{ID: "q3", DependsOn: []string{"q1"}},
		{ID: "q4", DependsOn: []string{"q2", "q3"}},
		{ID: "q5"},
	}
	assert.Equal(t, [][]int{{0, 1, 4}, {2}, {3}}, waves(steps))
}
