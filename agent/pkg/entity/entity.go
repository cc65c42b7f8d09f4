// Package entity resolves player and team mentions in a question to canonical
// names from the store.
package entity

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the resolved type of a mention.
type Kind string

const (
	KindPlayer Kind = "player"
	KindTeam   Kind = "team"
	KindNone   Kind = "none"
)

// Player is a row of the live player directory.
type Player struct {
	ID          int
	FirstName   string
	SecondName  string
	WebName     string
	TeamName    string
	TotalPoints int
	Minutes     int
}

// FullName returns "First Second".
func (p Player) FullName() string {
	return p.FirstName + " " + p.SecondName
}

// Team is a row of the live team directory.
type Team struct {
	ID        int
	Name      string
	ShortName string
}

// Directory is the live player/team name directory.
type Directory interface {
	Players(ctx context.Context) ([]Player, error)
	Teams(ctx context.Context) ([]Team, error)
}

// Candidate is one possible canonical identity for a mention.
type Candidate struct {
	Kind Kind `json:"kind"`

	// Canonical is the team_name for teams and "First Second" for players.
	Canonical string `json:"canonical"`

	ShortName  string `json:"short_name,omitempty"`
	TeamID     int    `json:"team_id,omitempty"`
	PlayerID   int    `json:"player_id,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	SecondName string `json:"second_name,omitempty"`
	WebName    string `json:"web_name,omitempty"`
	TeamName   string `json:"team_name,omitempty"`

	TotalPoints int `json:"total_points,omitempty"`
	Minutes     int `json:"minutes,omitempty"`
}

// Mention is a span of the question resolved to one or more candidates.
// Candidates are ordered by preference; see rankPlayers.
type Mention struct {
	Span       string      `json:"span"`
	Kind       Kind        `json:"kind"`
	Candidates []Candidate `json:"candidates"`
}

// Ambiguous reports whether the mention has more than one candidate.
func (m Mention) Ambiguous() bool {
	return len(m.Candidates) > 1
}

// Status distinguishes a resolution that found mentions, one that named
// something unknown, and one that named no entity at all.
type Status string

const (
	StatusMatched Status = "matched"
	// StatusNoMatch means the question names a player or team that is not in
	// the data.
	StatusNoMatch Status = "no_match"
	// StatusNone means the question names no player or team, as in league-wide
	// rankings.
	StatusNone Status = "none"
)

// Resolution is the output of Resolve.
type Resolution struct {
	Status   Status    `json:"status"`
	Mentions []Mention `json:"mentions,omitempty"`
}

// NoMatch is the sentinel returned when the question names a player or team
// that could not be resolved.
var NoMatch = Resolution{Status: StatusNoMatch}

// NoEntities is returned when the question names no player or team at all.
var NoEntities = Resolution{Status: StatusNone}

// IsNoMatch reports whether r is the no-match sentinel.
func (r Resolution) IsNoMatch() bool {
	return r.Status == StatusNoMatch
}

// Players returns the player mentions.
func (r Resolution) Players() []Mention {
	return r.filter(KindPlayer)
}

// Teams returns the team mentions.
func (r Resolution) Teams() []Mention {
	return r.filter(KindTeam)
}

func (r Resolution) filter(k Kind) []Mention {
	var out []Mention
	for _, m := range r.Mentions {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// ErrDataUnavailable is matched by every ResolutionError.
var ErrDataUnavailable = errors.New("entity data unavailable")

// ResolutionError reports that the alias table or live directory could not be
// read.
type ResolutionError struct {
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve entities: %s unavailable: %v", e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrDataUnavailable
}
