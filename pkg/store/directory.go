package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
)

// Directory lists known players and teams for entity resolution.
type Directory struct {
	store *Store
}

func (s *Store) Directory() *Directory {
	return &Directory{store: s}
}

func (d *Directory) Players(ctx context.Context) ([]entity.Player, error) {
	rows, err := d.store.pool.Query(ctx, `
		SELECT player_id, COALESCE(first_name, ''), COALESCE(second_name, ''), COALESCE(web_name, ''),
		       COALESCE(team_name, ''), COALESCE(total_points, 0), COALESCE(minutes, 0)
		FROM players
		ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query players: %v", ErrUnavailable, err)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Player, error) {
		var p entity.Player
		err := row.Scan(&p.ID, &p.FirstName, &p.SecondName, &p.WebName, &p.TeamName, &p.TotalPoints, &p.Minutes)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan players: %w", err)
	}
	return players, nil
}

func (d *Directory) Teams(ctx context.Context) ([]entity.Team, error) {
	rows, err := d.store.pool.Query(ctx, `
		SELECT team_id, COALESCE(team_name, ''), COALESCE(short_name, '')
		FROM teams
		ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query teams: %v", ErrUnavailable, err)
	}
	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Team, error) {
		var t entity.Team
		err := row.Scan(&t.ID, &t.Name, &t.ShortName)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan teams: %w", err)
	}
	return teams, nil
}
