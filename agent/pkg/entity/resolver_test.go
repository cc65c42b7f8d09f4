package entity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	players     []Player
	teams       []Team
	err         error
	playerCalls int
	teamCalls   int
}

func (m *mockDirectory) Players(ctx context.Context) ([]Player, error) {
	m.playerCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.players, nil
}

func (m *mockDirectory) Teams(ctx context.Context) ([]Team, error) {
	m.teamCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.teams, nil
}

func testDirectory() *mockDirectory {
	return &mockDirectory{
		teams: []Team{
			{ID: 1, Name: "Arsenal", ShortName: "ARS"},
			{ID: 6, Name: "Chelsea", ShortName: "CHE"},
			{ID: 12, Name: "Liverpool", ShortName: "LIV"},
			{ID: 13, Name: "Man City", ShortName: "MCI"},
			{ID: 18, Name: "Spurs", ShortName: "TOT"},
			{ID: 21, Name: "Luton", ShortName: "LUT"},
		},
		players: []Player{
			{ID: 1, FirstName: "Bukayo", SecondName: "Saka", WebName: "Saka", TeamName: "Arsenal", TotalPoints: 200, Minutes: 2900},
			{ID: 2, FirstName: "Martin", SecondName: "Ødegaard", WebName: "Ødegaard", TeamName: "Arsenal", TotalPoints: 150, Minutes: 2500},
			{ID: 3, FirstName: "Erling", SecondName: "Haaland", WebName: "Haaland", TeamName: "Man City", TotalPoints: 220, Minutes: 2800},
			{ID: 4, FirstName: "Bernardo", SecondName: "Mota Veiga de Carvalho e Silva", WebName: "Bernardo", TeamName: "Man City", TotalPoints: 120, Minutes: 2400},
			{ID: 5, FirstName: "Thiago", SecondName: "Emiliano da Silva", WebName: "T.Silva", TeamName: "Chelsea", TotalPoints: 80, Minutes: 1500},
			{ID: 6, FirstName: "Mohamed", SecondName: "Salah", WebName: "M.Salah", TeamName: "Liverpool", TotalPoints: 260, Minutes: 3000},
			{ID: 7, FirstName: "Heung-Min", SecondName: "Son", WebName: "Son", TeamName: "Spurs", TotalPoints: 150, Minutes: 2600},
			{ID: 8, FirstName: "Mohamed", SecondName: "Elneny", WebName: "Elneny", TeamName: "Arsenal", TotalPoints: 5, Minutes: 90},
		},
	}
}

func newTestResolver(t *testing.T, dir Directory) *Resolver {
	t.Helper()
	aliases, err := DefaultAliases()
	require.NoError(t, err)
	r, err := NewResolver(&Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Aliases:   aliases,
		Directory: dir,
	})
	require.NoError(t, err)
	return r
}

func TestResolve_TeamAliasTakesPrecedence(t *testing.T) {
	r := newTestResolver(t, testDirectory())

	res, err := r.Resolve(context.Background(), "Who is the top goalscorer on Tottenham Hotspur?")
	require.NoError(t, err)
	require.Equal(t, StatusMatched, res.Status)
	require.Len(t, res.Mentions, 1)

	m := res.Mentions[0]
	assert.Equal(t, KindTeam, m.Kind)
	assert.Equal(t, "Tottenham Hotspur", m.Span)
	require.Len(t, m.Candidates, 1)
	assert.Equal(t, "Spurs", m.Candidates[0].Canonical)
	assert.Equal(t, "TOT", m.Candidates[0].ShortName)
	assert.Equal(t, 18, m.Candidates[0].TeamID)
	assert.Empty(t, res.Players())
}

func TestResolve_TeamAndPlayer(t *testing.T) {
	r := newTestResolver(t, testDirectory())

	res, err := r.Resolve(context.Background(), "How many goals has Son scored for Spurs?")
	require.NoError(t, err)
	require.Len(t, res.Mentions, 2)

	assert.Equal(t, KindPlayer, res.Mentions[0].Kind)
	assert.Equal(t, "Son", res.Mentions[0].Candidates[0].SecondName)
	assert.Equal(t, KindTeam, res.Mentions[1].Kind)
	assert.Equal(t, "Spurs", res.Mentions[1].Candidates[0].Canonical)
	for _, p := range res.Players() {
		for _, c := range p.Candidates {
			assert.NotEqual(t, "Spurs", c.Canonical)
		}
	}
}

func TestResolve_Players(t *testing.T) {
	tests := []struct {
		name       string
		question   string
		wantSpans  []string
		wantFirst  []int
		wantCounts []int
	}{
		{
			name:       "surname",
			question:   "How many assists does Saka have?",
			wantSpans:  []string{"Saka"},
			wantFirst:  []int{1},
			wantCounts: []int{1},
		},
		{
			name:       "full name merges into one mention",
			question:   "Mohamed Salah goals this season",
			wantSpans:  []string{"Mohamed Salah"},
			wantFirst:  []int{6},
			wantCounts: []int{1},
		},
		{
			name:       "diacritics folded",
			question:   "odegaard's expected assists",
			wantSpans:  []string{"odegaard's"},
			wantFirst:  []int{2},
			wantCounts: []int{1},
		},
		{
			name:       "two players in question order",
			question:   "Compare Haaland and Salah over the last 3 seasons",
			wantSpans:  []string{"Haaland", "Salah"},
			wantFirst:  []int{3, 6},
			wantCounts: []int{1, 1},
		},
		{
			name:       "shared surname ranked by total points",
			question:   "How many minutes has Silva played?",
			wantSpans:  []string{"Silva"},
			wantFirst:  []int{4},
			wantCounts: []int{2},
		},
		{
			name:       "surname prefix",
			question:   "haal xg",
			wantSpans:  []string{"haal"},
			wantFirst:  []int{3},
			wantCounts: []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, testDirectory())
			res, err := r.Resolve(context.Background(), tt.question)
			require.NoError(t, err)
			players := res.Players()
			require.Len(t, players, len(tt.wantSpans))
			for i, m := range players {
				assert.Equal(t, tt.wantSpans[i], m.Span)
				assert.Equal(t, tt.wantFirst[i], m.Candidates[0].PlayerID)
				assert.Len(t, m.Candidates, tt.wantCounts[i])
			}
		})
	}
}

func TestResolve_AmbiguousMentionKeepsAllCandidates(t *testing.T) {
	r := newTestResolver(t, testDirectory())

	res, err := r.Resolve(context.Background(), "Silva assists")
	require.NoError(t, err)
	require.Len(t, res.Mentions, 1)
	m := res.Mentions[0]
	assert.True(t, m.Ambiguous())
	assert.Equal(t, "Bernardo Mota Veiga de Carvalho e Silva", m.Candidates[0].Canonical)
	assert.Equal(t, "Thiago Emiliano da Silva", m.Candidates[1].Canonical)
}

func TestResolve_NoMatch(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     Resolution
	}{
		{name: "unknown proper noun", question: "What is the capital of France?", want: NoMatch},
		{name: "unknown player", question: "How many goals has Zidane scored?", want: NoMatch},
		{name: "lower case code is a word", question: "Who are the new signings?", want: NoEntities},
		{name: "league-wide ranking", question: "Top 5 players with the most goals", want: NoEntities},
		{name: "best at a position", question: "Who is the best goalkeeper this season?", want: NoEntities},
		{name: "imperative opener", question: "Tell me the top scorers in the Premier League", want: NoEntities},
		{name: "empty", question: "", want: NoEntities},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, testDirectory())
			res, err := r.Resolve(context.Background(), tt.question)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			assert.Equal(t, tt.want.Status == StatusNoMatch, res.IsNoMatch())
		})
	}
}

func TestResolve_UpperCaseCode(t *testing.T) {
	r := newTestResolver(t, testDirectory())

	res, err := r.Resolve(context.Background(), "TOT clean sheets at home")
	require.NoError(t, err)
	require.Len(t, res.Teams(), 1)
	assert.Equal(t, "Spurs", res.Teams()[0].Candidates[0].Canonical)
}

func TestResolve_DirectoryOnlyTeam(t *testing.T) {
	r := newTestResolver(t, testDirectory())

	res, err := r.Resolve(context.Background(), "Luton points")
	require.NoError(t, err)
	require.Len(t, res.Teams(), 1)
	assert.Equal(t, 21, res.Teams()[0].Candidates[0].TeamID)
}

func TestResolve_DirectoryUnavailable(t *testing.T) {
	dir := testDirectory()
	dir.err = errors.New("connection refused")
	r := newTestResolver(t, dir)

	_, err := r.Resolve(context.Background(), "Saka assists")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "team directory", resErr.Source)
}

func TestNewResolver_Validation(t *testing.T) {
	aliases, err := DefaultAliases()
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{name: "missing logger", cfg: Config{Aliases: aliases, Directory: testDirectory()}, errMsg: "logger is required"},
		{name: "missing aliases", cfg: Config{Logger: log, Directory: testDirectory()}, errMsg: "alias table is required"},
		{name: "missing directory", cfg: Config{Logger: log, Aliases: aliases}, errMsg: "directory is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "Odegaard", Fold("Ødegaard"))
	assert.Equal(t, "Guehi", Fold("Guéhi"))
	assert.Equal(t, "Szczesny", Fold("Szczęsny"))
}
