package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAliases(t *testing.T) {
	table, err := DefaultAliases()
	require.NoError(t, err)

	spurs, ok := table.Lookup("TOT")
	require.True(t, ok)
	assert.Equal(t, "Spurs", spurs.Name)

	forest, ok := table.Lookup("nott'm forest")
	require.True(t, ok)
	assert.Equal(t, "NFO", forest.Code)

	assert.Contains(t, table.Render(), "TOT | Spurs | spurs, tottenham, tottenham hotspur")
	assert.Equal(t, table.Render(), table.Render())
}

func TestParseAliases_Errors(t *testing.T) {
	_, err := ParseAliases([]byte("teams: ["))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataUnavailable))

	_, err = ParseAliases([]byte("version: x\nteams: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no teams defined")
}

func TestLoadAliases_MissingFile(t *testing.T) {
	_, err := LoadAliases("/nonexistent/aliases.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestCachedDirectory(t *testing.T) {
	dir := testDirectory()
	cached, err := NewCachedDirectory(dir, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		players, err := cached.Players(context.Background())
		require.NoError(t, err)
		assert.Len(t, players, len(dir.players))
		_, err = cached.Teams(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dir.playerCalls)
	assert.Equal(t, 1, dir.teamCalls)

	cached.Invalidate()
	_, err = cached.Players(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dir.playerCalls)
}

func TestCachedDirectory_ErrorsNotCached(t *testing.T) {
	dir := testDirectory()
	dir.err = errors.New("down")
	cached, err := NewCachedDirectory(dir, time.Minute)
	require.NoError(t, err)

	_, err = cached.Players(context.Background())
	require.Error(t, err)

	dir.err = nil
	players, err := cached.Players(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, players)
	assert.Equal(t, 2, dir.playerCalls)
}
