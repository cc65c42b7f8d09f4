package prompts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	p, err := LoadPrompts()
	require.NoError(t, err)
	aliases, err := entity.DefaultAliases()
	require.NoError(t, err)
	b, err := NewBuilder(BuilderConfig{
		Prompts:         p,
		Aliases:         aliases,
		ChartKinds:      []string{"bar", "line"},
		MaxSubQuestions: 10,
	})
	require.NoError(t, err)
	return b
}

func sakaResolution() entity.Resolution {
	return entity.Resolution{
		Status: entity.StatusMatched,
		Mentions: []entity.Mention{{
			Span: "Saka",
			Kind: entity.KindPlayer,
			Candidates: []entity.Candidate{{
				Kind: entity.KindPlayer, Canonical: "Bukayo Saka", PlayerID: 17,
				FirstName: "Bukayo", SecondName: "Saka", WebName: "Saka", TeamName: "Arsenal", TotalPoints: 200,
			}},
		}},
	}
}

func TestLoadPrompts(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)
	for name, body := range map[string]string{
		"generate": p.Generate, "examples": p.Examples, "correct": p.Correct,
		"decompose": p.Decompose, "visualize": p.Visualize, "synthesize": p.Synthesize,
	} {
		assert.NotEmpty(t, body, name)
	}
}

func TestNewBuilder_Validation(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)
	aliases, err := entity.DefaultAliases()
	require.NoError(t, err)

	_, err = NewBuilder(BuilderConfig{Aliases: aliases, ChartKinds: []string{"bar"}, MaxSubQuestions: 1})
	assert.EqualError(t, err, "prompts are required")
	_, err = NewBuilder(BuilderConfig{Prompts: p, ChartKinds: []string{"bar"}, MaxSubQuestions: 1})
	assert.EqualError(t, err, "alias table is required")
	_, err = NewBuilder(BuilderConfig{Prompts: p, Aliases: aliases, MaxSubQuestions: 1})
	assert.EqualError(t, err, "chart kinds are required")
	_, err = NewBuilder(BuilderConfig{Prompts: p, Aliases: aliases, ChartKinds: []string{"bar"}})
	assert.EqualError(t, err, "max sub-questions must be positive")
}

func TestBuilder_SQLIsDeterministic(t *testing.T) {
	t.Parallel()

	req := SQLRequest{Question: "How many assists does Saka have?", Resolution: sakaResolution()}
	first := newTestBuilder(t).SQL(req)
	second := newTestBuilder(t).SQL(req)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("prompt changed between builds (-first +second):\n%s", diff)
	}
	assert.Equal(t, first, newTestBuilder(t).SQL(req))
}

func TestBuilder_SQLContent(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	p := b.SQL(SQLRequest{Question: "How many assists does Saka have?", Resolution: sakaResolution()})

	assert.Contains(t, p.System, "players:")
	assert.Contains(t, p.System, "second_name")
	assert.Contains(t, p.System, "TOT | Spurs")
	assert.Contains(t, p.System, "team_name LIKE '%Spurs%'")
	assert.Contains(t, p.System, sqlguard.NoMatchSQL)
	assert.NotContains(t, p.System, "{{")

	assert.Contains(t, p.User, "second_name 'Saka'")
	assert.Contains(t, p.User, "How many assists does Saka have?")
	assert.NotContains(t, p.User, "Research context")
}

func TestRenderResolution(t *testing.T) {
	t.Parallel()

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.NoMatch)
		assert.Contains(t, out, "NO_MATCH")
		assert.Contains(t, out, sqlguard.NoMatchSQL)
	})

	t.Run("no entities", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.NoEntities)
		assert.Contains(t, out, "across all players and teams")
		assert.NotContains(t, out, "NO_MATCH")
		assert.NotContains(t, out, sqlguard.NoMatchSQL)
	})

	t.Run("team names are escaped", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.Resolution{
			Status: entity.StatusMatched,
			Mentions: []entity.Mention{{
				Span: "Forest", Kind: entity.KindTeam,
				Candidates: []entity.Candidate{{Kind: entity.KindTeam, Canonical: "Nott'm Forest", ShortName: "NFO"}},
			}},
		})
		assert.Equal(t, "- \"Forest\" -> team Nott'm Forest (NFO). Filter with team_name LIKE '%Nott''m Forest%'.\n", out)
	})

	t.Run("team", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.Resolution{
			Status: entity.StatusMatched,
			Mentions: []entity.Mention{{
				Span: "Tottenham Hotspur", Kind: entity.KindTeam,
				Candidates: []entity.Candidate{{Kind: entity.KindTeam, Canonical: "Spurs", ShortName: "TOT"}},
			}},
		})
		assert.Equal(t, "- \"Tottenham Hotspur\" -> team Spurs (TOT). Filter with team_name LIKE '%Spurs%'.\n", out)
	})

	t.Run("ambiguous player lists candidates in order", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.Resolution{
			Status: entity.StatusMatched,
			Mentions: []entity.Mention{{
				Span: "Silva", Kind: entity.KindPlayer,
				Candidates: []entity.Candidate{
					{Canonical: "Bernardo Silva", PlayerID: 1, SecondName: "Silva", WebName: "Bernardo", TeamName: "Man City"},
					{Canonical: "Thiago Silva", PlayerID: 2, SecondName: "Silva", WebName: "T.Silva", TeamName: "Chelsea"},
				},
			}},
		})
		assert.Contains(t, out, "ambiguous")
		assert.Contains(t, out, "1. Bernardo Silva")
		assert.Contains(t, out, "2. Thiago Silva")
	})

	t.Run("apostrophes are escaped", func(t *testing.T) {
		t.Parallel()
		out := RenderResolution(entity.Resolution{
			Status: entity.StatusMatched,
			Mentions: []entity.Mention{{
				Span: "O'Reilly", Kind: entity.KindPlayer,
				Candidates: []entity.Candidate{{Canonical: "Nico O'Reilly", SecondName: "O'Reilly", WebName: "O'Reilly"}},
			}},
		})
		assert.Contains(t, out, "second_name 'O''Reilly'")
	})
}

func TestBuilder_ResearchContext(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	p := b.SQL(SQLRequest{
		Question:   "How many goals did he score?",
		Resolution: sakaResolution(),
		Parent: &Parent{
			Question: "Compare Saka and Salah",
			Priors:   []Prior{{ID: "q1", Question: "Saka assists", SQL: "SELECT 1", Result: "assists\n9"}},
		},
	})
	assert.Contains(t, p.User, "Compare Saka and Salah")
	assert.Contains(t, p.User, "Earlier step q1: Saka assists")
	assert.Contains(t, p.User, "SQL: SELECT 1")
}

func TestBuilder_Correction(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	req := SQLRequest{Question: "How many assists does Saka have?", Resolution: sakaResolution()}
	p := b.Correction(req, "SELECT salary FROM players", "unknown_column", "column salary does not exist")
	assert.Equal(t, b.SQL(req).System, p.System)
	assert.Contains(t, p.User, "SELECT salary FROM players")
	assert.Contains(t, p.User, "unknown_column")
	assert.Contains(t, p.User, "column salary does not exist")
}

func TestBuilder_DecomposeAndVisualize(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	assert.Contains(t, b.Decompose("compare").System, "10")
	assert.Equal(t, 10, b.MaxSubQuestions())
	assert.Contains(t, b.Visualize("q", "x").System, "bar, line")
	assert.Contains(t, b.Synthesize("Who is better?", "data").User, "Who is better?")
}
