package fpl

import (
	"encoding/json"
	"strconv"
	"time"
)

// Decimal is a number the feed encodes as a JSON string ("6.5").
type Decimal float64

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*d = Decimal(f)
		return nil
	}
	if s == "" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*d = Decimal(f)
	return nil
}

type Bootstrap struct {
	Teams    []Team    `json:"teams"`
	Elements []Element `json:"elements"`
	Events   []Event   `json:"events"`
}

type Team struct {
	ID        int    `json:"id"`
	Code      int    `json:"code"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Strength  int    `json:"strength"`
	Position  int    `json:"position"`
	Played    int    `json:"played"`
	Win       int    `json:"win"`
	Draw      int    `json:"draw"`
	Loss      int    `json:"loss"`
	Points    int    `json:"points"`
}

type Event struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	IsCurrent    bool   `json:"is_current"`
	Finished     bool   `json:"finished"`
	DeadlineTime string `json:"deadline_time"`
}

// Element is a player in the bootstrap feed.
type Element struct {
	ID            int     `json:"id"`
	Code          int     `json:"code"`
	FirstName     string  `json:"first_name"`
	SecondName    string  `json:"second_name"`
	WebName       string  `json:"web_name"`
	ElementType   int     `json:"element_type"`
	Team          int     `json:"team"`
	Form          Decimal `json:"form"`
	PointsPerGame Decimal `json:"points_per_game"`
	TotalPoints   int     `json:"total_points"`

	Starts          int `json:"starts"`
	Minutes         int `json:"minutes"`
	GoalsScored     int `json:"goals_scored"`
	Assists         int `json:"assists"`
	YellowCards     int `json:"yellow_cards"`
	RedCards        int `json:"red_cards"`
	PenaltiesMissed int `json:"penalties_missed"`
	OwnGoals        int `json:"own_goals"`
	GoalsConceded   int `json:"goals_conceded"`
	Saves           int `json:"saves"`
	CleanSheets     int `json:"clean_sheets"`
	PenaltiesSaved  int `json:"penalties_saved"`

	GoalsConcededPer90 Decimal `json:"goals_conceded_per_90"`
	SavesPer90         Decimal `json:"saves_per_90"`
	CleanSheetsPer90   Decimal `json:"clean_sheets_per_90"`

	ExpectedGoals                 Decimal `json:"expected_goals"`
	ExpectedAssists               Decimal `json:"expected_assists"`
	ExpectedGoalInvolvements      Decimal `json:"expected_goal_involvements"`
	ExpectedGoalsConceded         Decimal `json:"expected_goals_conceded"`
	ExpectedGoalsPer90            Decimal `json:"expected_goals_per_90"`
	ExpectedAssistsPer90          Decimal `json:"expected_assists_per_90"`
	ExpectedGoalInvolvementsPer90 Decimal `json:"expected_goal_involvements_per_90"`
	ExpectedGoalsConcededPer90    Decimal `json:"expected_goals_conceded_per_90"`
	ICTIndex                      Decimal `json:"ict_index"`
	Influence                     Decimal `json:"influence"`
	Creativity                    Decimal `json:"creativity"`
	Threat                        Decimal `json:"threat"`
}

type Fixture struct {
	ID              int        `json:"id"`
	Event           *int       `json:"event"`
	Finished        bool       `json:"finished"`
	TeamH           int        `json:"team_h"`
	TeamA           int        `json:"team_a"`
	TeamHScore      *int       `json:"team_h_score"`
	TeamAScore      *int       `json:"team_a_score"`
	KickoffTime     *time.Time `json:"kickoff_time"`
	TeamHDifficulty int        `json:"team_h_difficulty"`
	TeamADifficulty int        `json:"team_a_difficulty"`
}

// ElementSummary is the per-player detail feed.
type ElementSummary struct {
	Fixtures    []UpcomingFixture `json:"fixtures"`
	History     []MatchHistory    `json:"history"`
	HistoryPast []SeasonHistory   `json:"history_past"`
}

type UpcomingFixture struct {
	ID          int        `json:"id"`
	Code        int        `json:"code"`
	TeamH       int        `json:"team_h"`
	TeamA       int        `json:"team_a"`
	Event       *int       `json:"event"`
	Finished    bool       `json:"finished"`
	KickoffTime *time.Time `json:"kickoff_time"`
	EventName   string     `json:"event_name"`
	IsHome      bool       `json:"is_home"`
	Difficulty  int        `json:"difficulty"`
}

type MatchHistory struct {
	Element      int        `json:"element"`
	Fixture      int        `json:"fixture"`
	OpponentTeam int        `json:"opponent_team"`
	TotalPoints  int        `json:"total_points"`
	WasHome      bool       `json:"was_home"`
	KickoffTime  *time.Time `json:"kickoff_time"`
	TeamHScore   *int       `json:"team_h_score"`
	TeamAScore   *int       `json:"team_a_score"`
	Round        int        `json:"round"`

	Minutes         int `json:"minutes"`
	GoalsScored     int `json:"goals_scored"`
	Assists         int `json:"assists"`
	CleanSheets     int `json:"clean_sheets"`
	GoalsConceded   int `json:"goals_conceded"`
	OwnGoals        int `json:"own_goals"`
	PenaltiesSaved  int `json:"penalties_saved"`
	PenaltiesMissed int `json:"penalties_missed"`
	YellowCards     int `json:"yellow_cards"`
	RedCards        int `json:"red_cards"`
	Saves           int `json:"saves"`
	Bonus           int `json:"bonus"`
	BPS             int `json:"bps"`

	Influence                Decimal `json:"influence"`
	Creativity               Decimal `json:"creativity"`
	Threat                   Decimal `json:"threat"`
	ICTIndex                 Decimal `json:"ict_index"`
	Starts                   int     `json:"starts"`
	ExpectedGoals            Decimal `json:"expected_goals"`
	ExpectedAssists          Decimal `json:"expected_assists"`
	ExpectedGoalInvolvements Decimal `json:"expected_goal_involvements"`
	ExpectedGoalsConceded    Decimal `json:"expected_goals_conceded"`

	Value        int `json:"value"`
	Selected     int `json:"selected"`
	TransfersIn  int `json:"transfers_in"`
	TransfersOut int `json:"transfers_out"`
}

type SeasonHistory struct {
	SeasonName  string `json:"season_name"`
	ElementCode int    `json:"element_code"`
	StartCost   int    `json:"start_cost"`
	EndCost     int    `json:"end_cost"`
	TotalPoints int    `json:"total_points"`

	Minutes         int `json:"minutes"`
	GoalsScored     int `json:"goals_scored"`
	Assists         int `json:"assists"`
	CleanSheets     int `json:"clean_sheets"`
	GoalsConceded   int `json:"goals_conceded"`
	OwnGoals        int `json:"own_goals"`
	PenaltiesSaved  int `json:"penalties_saved"`
	PenaltiesMissed int `json:"penalties_missed"`
	YellowCards     int `json:"yellow_cards"`
	RedCards        int `json:"red_cards"`
	Saves           int `json:"saves"`
	Bonus           int `json:"bonus"`
	BPS             int `json:"bps"`

	Influence                Decimal `json:"influence"`
	Creativity               Decimal `json:"creativity"`
	Threat                   Decimal `json:"threat"`
	ICTIndex                 Decimal `json:"ict_index"`
	Starts                   int     `json:"starts"`
	ExpectedGoals            Decimal `json:"expected_goals"`
	ExpectedAssists          Decimal `json:"expected_assists"`
	ExpectedGoalInvolvements Decimal `json:"expected_goal_involvements"`
	ExpectedGoalsConceded    Decimal `json:"expected_goals_conceded"`
}
