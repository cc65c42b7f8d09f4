package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/agent/pkg/viz"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const sakaSQL = "SELECT assists FROM players WHERE second_name = 'Saka'"

func sakaResolver() *mockResolver {
	return &mockResolver{resolutions: map[string]entity.Resolution{
		"How many assists does Saka have?": matched(player("Saka", 17, "Bukayo", "Saka", "Arsenal", 180)),
	}}
}

func TestDirect_Saka(t *testing.T) {
	t.Parallel()

	exec := &mockExecutor{results: map[string]store.ResultSet{
		sakaSQL: {Headers: []string{"assists"}, Rows: [][]any{{int64(11)}}},
	}}
	f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) {
		return fenced(sakaSQL), nil
	}, exec, nil)

	resp, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	require.NoError(t, err)
	assert.Equal(t, sakaSQL, resp.SQL)
	assert.Equal(t, []string{"assists"}, resp.Data.Headers)
	assert.Equal(t, [][]any{{int64(11)}}, resp.Data.Rows)
	assert.Empty(t, resp.PlotPath)

	require.Equal(t, 1, f.completer.calls())
	assert.Contains(t, f.completer.userPrompts()[0], "second_name 'Saka'")
	assert.Equal(t, []int{17}, f.refresher.ids)
}

func TestDirect_TeamAlias(t *testing.T) {
	t.Parallel()

	const q = "How many goals have Tottenham Hotspur players scored?"
	const sql = "SELECT SUM(goals_scored) AS goals FROM players WHERE team_name LIKE '%Spurs%'"
	resolver := &mockResolver{resolutions: map[string]entity.Resolution{
		q: matched(entity.Mention{
			Span: "Tottenham Hotspur",
			Kind: entity.KindTeam,
			Candidates: []entity.Candidate{{
				Kind: entity.KindTeam, Canonical: "Spurs", ShortName: "TOT", TeamID: 18,
			}},
		}),
	}}
	f := newFixture(t, resolver, func(llm.Prompt) (string, error) { return fenced(sql), nil }, nil, nil)

	resp, err := f.pipeline.Direct(context.Background(), Request{Question: q})
	require.NoError(t, err)
	assert.Contains(t, resp.SQL, "team_name LIKE '%Spurs%'")
	assert.Contains(t, f.completer.userPrompts()[0], "team_name LIKE '%Spurs%'")
	assert.Empty(t, f.refresher.ids)
}

func TestDirect_NoMatchReturnsEmptyStatement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &mockResolver{}, func(llm.Prompt) (string, error) {
		return fenced("SELECT web_name FROM players"), nil
	}, nil, nil)

	resp, err := f.pipeline.Direct(context.Background(), Request{Question: "Who is the best striker on Mars?"})
	require.NoError(t, err)
	assert.Equal(t, sqlguard.NoMatchSQL, resp.SQL)
	assert.Empty(t, resp.Data.Rows)
	assert.Equal(t, 1, f.completer.calls())
	assert.Equal(t, []string{sqlguard.NoMatchSQL}, f.executor.queries)
	assert.Contains(t, f.completer.userPrompts()[0], "NO_MATCH")
}

func TestDirect_LeagueWideRanking(t *testing.T) {
	t.Parallel()

	const (
		q   = "Top 5 players with the most goals"
		sql = "SELECT web_name, goals_scored FROM players ORDER BY goals_scored DESC LIMIT 5"
	)
	exec := &mockExecutor{results: map[string]store.ResultSet{
		sql: {Headers: []string{"web_name", "goals_scored"}, Rows: [][]any{{"Haaland", int64(22)}, {"Salah", int64(18)}}},
	}}
	resolver := &mockResolver{resolutions: map[string]entity.Resolution{q: entity.NoEntities}}
	f := newFixture(t, resolver, func(llm.Prompt) (string, error) { return fenced(sql), nil }, exec, nil)

	resp, err := f.pipeline.Direct(context.Background(), Request{Question: q})
	require.NoError(t, err)
	assert.Equal(t, sql, resp.SQL)
	assert.Len(t, resp.Data.Rows, 2)
	assert.Equal(t, []string{sql}, f.executor.queries)
	assert.NotContains(t, f.completer.userPrompts()[0], "NO_MATCH")
	assert.Contains(t, f.completer.userPrompts()[0], "across all players and teams")
	assert.Empty(t, f.refresher.ids)
}

func TestDirect_RetryBound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) {
		return fenced("DELETE FROM players WHERE second_name = 'Saka'"), nil
	}, nil, nil)

	_, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	var synth *sqlguard.SynthesisError
	require.ErrorAs(t, err, &synth)
	assert.ErrorIs(t, err, sqlguard.ErrSynthesis)
	assert.Equal(t, sqlguard.ReasonMutation, synth.Last.Reason)
	assert.Equal(t, 1+sqlguard.DefaultMaxCorrections, f.completer.calls())
	assert.Empty(t, f.executor.queries)

	for _, p := range f.completer.userPrompts()[1:] {
		assert.Contains(t, p, "mutation")
	}
}

func TestDirect_ExecutionErrorTriggersCorrection(t *testing.T) {
	t.Parallel()

	const bad = "SELECT assists / minutes AS rate FROM players WHERE second_name = 'Saka'"
	divErr := &store.ExecutionError{SQL: bad, Code: "22012", Err: errors.New("division by zero")}
	exec := &mockExecutor{
		errs: map[string][]error{bad: {divErr}},
		results: map[string]store.ResultSet{
			sakaSQL: {Headers: []string{"assists"}, Rows: [][]any{{int64(11)}}},
		},
	}
	f := newFixture(t, sakaResolver(), func(p llm.Prompt) (string, error) {
		if strings.Contains(p.User, "execution_error") && strings.Contains(p.User, "division by zero") {
			return fenced(sakaSQL), nil
		}
		return fenced(bad), nil
	}, exec, nil)

	resp, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	require.NoError(t, err)
	assert.Equal(t, sakaSQL, resp.SQL)
	assert.Equal(t, 2, f.completer.calls())
	assert.Equal(t, []string{bad, sakaSQL}, f.executor.queries)
}

func TestDirect_ExecutionErrorsShareBudget(t *testing.T) {
	t.Parallel()

	execErr := &store.ExecutionError{SQL: sakaSQL, Code: "57014", Err: errors.New("canceling statement due to statement timeout")}
	exec := &mockExecutor{errs: map[string][]error{sakaSQL: {execErr}}}
	f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) {
		return fenced(sakaSQL), nil
	}, exec, nil)

	_, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	var got *store.ExecutionError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "57014", got.Code)
	assert.Equal(t, 1+sqlguard.DefaultMaxCorrections, f.completer.calls())
	assert.Len(t, f.executor.queries, 1+sqlguard.DefaultMaxCorrections)
}

func TestDirect_StoreUnavailableIsNotRetried(t *testing.T) {
	t.Parallel()

	exec := &mockExecutor{errs: map[string][]error{sakaSQL: {store.ErrUnavailable}}}
	f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) { return fenced(sakaSQL), nil }, exec, nil)

	_, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, 1, f.completer.calls())
}

func TestDirect_ResolutionError(t *testing.T) {
	t.Parallel()

	resolver := &mockResolver{err: &entity.ResolutionError{Source: "directory", Err: errors.New("connection refused")}}
	f := newFixture(t, resolver, func(llm.Prompt) (string, error) {
		t.Fatal("no generation expected")
		return "", nil
	}, nil, nil)

	_, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	assert.ErrorIs(t, err, entity.ErrDataUnavailable)
}

func TestDirect_ProviderError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) {
		return "", &llm.Error{Provider: llm.ProviderAnthropic, Kind: llm.ErrRateLimited}
	}, nil, nil)

	_, err := f.pipeline.Direct(context.Background(), Request{Question: "How many assists does Saka have?"})
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestDirect_Visualization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		visualize bool
		vizErr    error
		wantPath  string
		wantError string
	}{
		{name: "chart saved", visualize: true, wantPath: "/plots/chart.vl.json"},
		{name: "nothing to draw", visualize: true, vizErr: viz.ErrNoVisualization, wantError: viz.ErrNoVisualization.Error()},
		{name: "not requested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plots := &mockPlots{}
			f := newFixture(t, sakaResolver(), func(llm.Prompt) (string, error) { return fenced(sakaSQL), nil }, nil,
				func(c *Config) {
					c.Visualizer = &mockVisualizer{spec: viz.Spec{Kind: viz.KindBar, X: "assists"}, err: tt.vizErr}
					c.Plots = plots
				})

			resp, err := f.pipeline.Direct(context.Background(), Request{
				Question:      "How many assists does Saka have?",
				Visualization: tt.visualize,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, resp.PlotPath)
			assert.Equal(t, tt.wantError, resp.VisualizationError)
			if tt.wantPath != "" {
				assert.Len(t, plots.saved, 1)
			}
		})
	}
}
