package refresh

import (
	"sort"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/pkg/fpl"
	"github.com/malbeclabs/sportsql/pkg/store"
)

// teamNameReplacements maps long club names to the canonical short names
// used in every table.
var teamNameReplacements = map[string]string{
	"AFC Bournemouth":         "Bournemouth",
	"Brighton & Hove Albion":  "Brighton",
	"Ipswich Town":            "Ipswich",
	"Leeds United":            "Leeds",
	"Leicester City":          "Leicester",
	"Liverpool FC":            "Liverpool",
	"Luton Town":              "Luton",
	"Manchester City":         "Man City",
	"Manchester United":       "Man Utd",
	"Newcastle United":        "Newcastle",
	"Nottingham Forest":       "Nott'm Forest",
	"Sheffield United":        "Sheffield Utd",
	"Tottenham Hotspur":       "Spurs",
	"West Ham United":         "West Ham",
	"Wolverhampton Wanderers": "Wolves",
}

var positions = map[int]string{
	1: "Goalkeeper",
	2: "Defender",
	3: "Midfielder",
	4: "Forward",
}

func canonicalTeamName(name string) string {
	if short, ok := teamNameReplacements[name]; ok {
		return short
	}
	return name
}

func teamNames(teams []fpl.Team) map[int]string {
	names := make(map[int]string, len(teams))
	for _, t := range teams {
		names[t.ID] = canonicalTeamName(t.Name)
	}
	return names
}

type standing struct {
	teamID                       int
	name                         string
	played, win, draw, loss, pts int
	goalsFor, goalsAgainst       int
}

// buildTeams computes the league table from finished fixtures.
func buildTeams(teams []fpl.Team, fixtures []fpl.Fixture) store.TableData {
	table := make(map[int]*standing, len(teams))
	for _, t := range teams {
		table[t.ID] = &standing{teamID: t.ID, name: canonicalTeamName(t.Name)}
	}
	for _, f := range fixtures {
		if !f.Finished || f.TeamHScore == nil || f.TeamAScore == nil {
			continue
		}
		home, away := table[f.TeamH], table[f.TeamA]
		if home == nil || away == nil {
			continue
		}
		hs, as := *f.TeamHScore, *f.TeamAScore
		home.played++
		away.played++
		home.goalsFor += hs
		home.goalsAgainst += as
		away.goalsFor += as
		away.goalsAgainst += hs
		switch {
		case hs > as:
			home.win++
			home.pts += 3
			away.loss++
		case hs < as:
			away.win++
			away.pts += 3
			home.loss++
		default:
			home.draw++
			away.draw++
			home.pts++
			away.pts++
		}
	}

	order := make([]*standing, 0, len(table))
	for _, s := range table {
		order = append(order, s)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.pts != b.pts {
			return a.pts > b.pts
		}
		if gd := (a.goalsFor - a.goalsAgainst) - (b.goalsFor - b.goalsAgainst); gd != 0 {
			return gd > 0
		}
		if a.goalsFor != b.goalsFor {
			return a.goalsFor > b.goalsFor
		}
		return a.name < b.name
	})
	position := make(map[int]int, len(order))
	for i, s := range order {
		position[s.teamID] = i + 1
	}

	rows := make([]store.Row, 0, len(teams))
	for _, t := range teams {
		s := table[t.ID]
		rows = append(rows, store.Row{
			"team_id":    t.ID,
			"team_name":  s.name,
			"short_name": t.ShortName,
			"position":   position[t.ID],
			"played":     s.played,
			"win":        s.win,
			"draw":       s.draw,
			"loss":       s.loss,
			"points":     s.pts,
			"strength":   t.Strength,
		})
	}
	return store.TableData{Table: "teams", Rows: rows}
}

func per90(v, minutes int) any {
	if minutes <= 0 {
		return nil
	}
	return float64(v) / float64(minutes) * 90
}

func buildPlayers(elements []fpl.Element, teams map[int]string) store.TableData {
	rows := make([]store.Row, 0, len(elements))
	for _, e := range elements {
		rows = append(rows, store.Row{
			"player_id":       e.ID,
			"first_name":      entity.Fold(e.FirstName),
			"second_name":     entity.Fold(e.SecondName),
			"web_name":        entity.Fold(e.WebName),
			"player_position": positions[e.ElementType],
			"team_id":         e.Team,
			"team_name":       teams[e.Team],
			"form":            float64(e.Form),
			"points_per_game": float64(e.PointsPerGame),

			"starts":           e.Starts,
			"minutes":          e.Minutes,
			"goals_scored":     e.GoalsScored,
			"assists":          e.Assists,
			"yellow_cards":     e.YellowCards,
			"red_cards":        e.RedCards,
			"penalties_missed": e.PenaltiesMissed,
			"own_goals":        e.OwnGoals,
			"goals_conceded":   e.GoalsConceded,
			"saves":            e.Saves,
			"clean_sheets":     e.CleanSheets,
			"penalties_saved":  e.PenaltiesSaved,

			"goals_per_90":                      per90(e.GoalsScored, e.Minutes),
			"assists_per_90":                    per90(e.Assists, e.Minutes),
			"goals_conceded_per_90":             float64(e.GoalsConcededPer90),
			"saves_per_90":                      float64(e.SavesPer90),
			"clean_sheets_per_90":               float64(e.CleanSheetsPer90),
			"expected_goals":                    float64(e.ExpectedGoals),
			"expected_assists":                  float64(e.ExpectedAssists),
			"expected_goal_involvements":        float64(e.ExpectedGoalInvolvements),
			"expected_goals_conceded":           float64(e.ExpectedGoalsConceded),
			"expected_goals_per_90":             float64(e.ExpectedGoalsPer90),
			"expected_assists_per_90":           float64(e.ExpectedAssistsPer90),
			"expected_goal_involvements_per_90": float64(e.ExpectedGoalInvolvementsPer90),
			"expected_goals_conceded_per_90":    float64(e.ExpectedGoalsConcededPer90),
			"ict_index":                         float64(e.ICTIndex),
			"influence":                         float64(e.Influence),
			"creativity":                        float64(e.Creativity),
			"threat":                            float64(e.Threat),

			"total_points": e.TotalPoints,
		})
	}
	return store.TableData{Table: "players", Rows: rows}
}

func buildFixtures(fixtures []fpl.Fixture, teams map[int]string) store.TableData {
	rows := make([]store.Row, 0, len(fixtures))
	for _, f := range fixtures {
		rows = append(rows, store.Row{
			"game_id":           f.ID,
			"gw":                intOrNil(f.Event),
			"finished":          f.Finished,
			"team_h":            f.TeamH,
			"team_h_name":       teams[f.TeamH],
			"team_h_score":      intOrNil(f.TeamHScore),
			"team_a":            f.TeamA,
			"team_a_name":       teams[f.TeamA],
			"team_a_score":      intOrNil(f.TeamAScore),
			"kickoff_time":      timeOrNil(f.KickoffTime),
			"team_h_difficulty": f.TeamHDifficulty,
			"team_a_difficulty": f.TeamADifficulty,
		})
	}
	return store.TableData{Table: "fixtures", Rows: rows}
}

// playerTables holds one player's rows for the three per-player tables.
type playerTables struct {
	history []store.Row
	past    []store.Row
	future  []store.Row
}

func buildPlayerTables(playerID int, s *fpl.ElementSummary) playerTables {
	var out playerTables
	for _, h := range s.HistoryPast {
		out.history = append(out.history, store.Row{
			"player_id":                  playerID,
			"season_name":                h.SeasonName,
			"element_code":               h.ElementCode,
			"start_cost":                 h.StartCost,
			"end_cost":                   h.EndCost,
			"total_points":               h.TotalPoints,
			"minutes":                    h.Minutes,
			"goals_scored":               h.GoalsScored,
			"assists":                    h.Assists,
			"clean_sheets":               h.CleanSheets,
			"goals_conceded":             h.GoalsConceded,
			"own_goals":                  h.OwnGoals,
			"penalties_saved":            h.PenaltiesSaved,
			"penalties_missed":           h.PenaltiesMissed,
			"yellow_cards":               h.YellowCards,
			"red_cards":                  h.RedCards,
			"saves":                      h.Saves,
			"bonus":                      h.Bonus,
			"bps":                        h.BPS,
			"influence":                  float64(h.Influence),
			"creativity":                 float64(h.Creativity),
			"threat":                     float64(h.Threat),
			"ict_index":                  float64(h.ICTIndex),
			"starts":                     h.Starts,
			"expected_goals":             float64(h.ExpectedGoals),
			"expected_assists":           float64(h.ExpectedAssists),
			"expected_goal_involvements": float64(h.ExpectedGoalInvolvements),
			"expected_goals_conceded":    float64(h.ExpectedGoalsConceded),
		})
	}
	for _, m := range s.History {
		out.past = append(out.past, store.Row{
			"player_id":                  playerID,
			"fixture":                    m.Fixture,
			"opponent_team":              m.OpponentTeam,
			"total_points":               m.TotalPoints,
			"was_home":                   m.WasHome,
			"kickoff_time":               timeOrNil(m.KickoffTime),
			"team_h_score":               intOrNil(m.TeamHScore),
			"team_a_score":               intOrNil(m.TeamAScore),
			"round":                      m.Round,
			"minutes":                    m.Minutes,
			"goals_scored":               m.GoalsScored,
			"assists":                    m.Assists,
			"clean_sheets":               m.CleanSheets,
			"goals_conceded":             m.GoalsConceded,
			"own_goals":                  m.OwnGoals,
			"penalties_saved":            m.PenaltiesSaved,
			"penalties_missed":           m.PenaltiesMissed,
			"yellow_cards":               m.YellowCards,
			"red_cards":                  m.RedCards,
			"saves":                      m.Saves,
			"bonus":                      m.Bonus,
			"bps":                        m.BPS,
			"influence":                  float64(m.Influence),
			"creativity":                 float64(m.Creativity),
			"threat":                     float64(m.Threat),
			"ict_index":                  float64(m.ICTIndex),
			"starts":                     m.Starts,
			"expected_goals":             float64(m.ExpectedGoals),
			"expected_assists":           float64(m.ExpectedAssists),
			"expected_goal_involvements": float64(m.ExpectedGoalInvolvements),
			"expected_goals_conceded":    float64(m.ExpectedGoalsConceded),
			"value":                      m.Value,
			"selected":                   m.Selected,
			"transfers_in":               m.TransfersIn,
			"transfers_out":              m.TransfersOut,
		})
	}
	for _, f := range s.Fixtures {
		out.future = append(out.future, store.Row{
			"player_id":    playerID,
			"code":         f.Code,
			"team_h":       f.TeamH,
			"team_a":       f.TeamA,
			"event":        intOrNil(f.Event),
			"finished":     f.Finished,
			"kickoff_time": timeOrNil(f.KickoffTime),
			"event_name":   f.EventName,
			"is_home":      f.IsHome,
			"difficulty":   f.Difficulty,
		})
	}
	return out
}

func (p playerTables) tableData() []store.TableData {
	return []store.TableData{
		{Table: "player_history", Rows: p.history},
		{Table: "player_past", Rows: p.past},
		{Table: "player_future", Rows: p.future},
	}
}
