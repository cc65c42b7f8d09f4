// Package schema is the documented, versioned description of the tables the
// query pipeline may read. It is rendered into LLM prompts, used as the SQL
// whitelist, and compared against the live store to detect drift; see
// store.CheckSchema.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Version identifies the revision of the documented schema. Bump it together
// with a new migration whenever a table or column changes.
const Version = "2025.3"

// Column types use the spelling reported by information_schema.columns.data_type.
const (
	Integer   = "integer"
	Float     = "double precision"
	Text      = "text"
	Boolean   = "boolean"
	Timestamp = "timestamp with time zone"
)

// Column is a documented column.
type Column struct {
	Name string
	Type string
	Note string
}

// Table is a documented table.
type Table struct {
	Name        string
	Description string
	Columns     []Column
}

// HasColumn reports whether the table documents a column with the given name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in declared order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func ints(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Integer}
	}
	return cols
}

func floats(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Float}
	}
	return cols
}

func cols(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Tables is the fixed set of readable tables, in prompt order.
var Tables = []Table{
	{
		Name:        "players",
		Description: "one row per player, current season totals",
		Columns: cols(
			[]Column{
				{Name: "player_id", Type: Integer},
				{Name: "first_name", Type: Text},
				{Name: "second_name", Type: Text, Note: "surname; a single name in a question defaults to this column"},
				{Name: "web_name", Type: Text, Note: "short display name"},
				{Name: "player_position", Type: Text, Note: "Goalkeeper, Defender, Midfielder or Forward"},
				{Name: "team_id", Type: Integer},
				{Name: "team_name", Type: Text, Note: "canonical short team name, e.g. Spurs"},
			},
			floats("form", "points_per_game"),
			ints("starts", "minutes", "goals_scored", "assists", "yellow_cards", "red_cards",
				"penalties_missed", "own_goals", "goals_conceded", "saves", "clean_sheets", "penalties_saved"),
			floats("goals_per_90", "assists_per_90", "goals_conceded_per_90", "saves_per_90", "clean_sheets_per_90",
				"expected_goals", "expected_assists", "expected_goal_involvements", "expected_goals_conceded",
				"expected_goals_per_90", "expected_assists_per_90", "expected_goal_involvements_per_90",
				"expected_goals_conceded_per_90", "ict_index", "influence", "creativity", "threat"),
			ints("total_points"),
		),
	},
	{
		Name:        "teams",
		Description: "one row per team with its league standing",
		Columns: cols(
			[]Column{
				{Name: "team_id", Type: Integer},
				{Name: "team_name", Type: Text, Note: "canonical short team name"},
				{Name: "short_name", Type: Text, Note: "three letter code, e.g. TOT"},
			},
			ints("position", "played", "win", "draw", "loss", "points", "strength"),
		),
	},
	{
		Name:        "fixtures",
		Description: "one row per league match this season, played or upcoming",
		Columns: cols(
			ints("game_id", "gw"),
			[]Column{{Name: "finished", Type: Boolean}},
			ints("team_h"),
			[]Column{{Name: "team_h_name", Type: Text}},
			ints("team_h_score", "team_a"),
			[]Column{{Name: "team_a_name", Type: Text}},
			ints("team_a_score"),
			[]Column{{Name: "kickoff_time", Type: Timestamp}},
			ints("team_h_difficulty", "team_a_difficulty"),
		),
	},
	{
		Name:        "player_history",
		Description: "one row per player per previous season; no names, join players on player_id",
		Columns: cols(
			ints("player_id"),
			[]Column{{Name: "season_name", Type: Text, Note: "e.g. 2023/24"}},
			ints("element_code", "start_cost", "end_cost", "total_points", "minutes", "goals_scored", "assists",
				"clean_sheets", "goals_conceded", "own_goals", "penalties_saved", "penalties_missed",
				"yellow_cards", "red_cards", "saves", "bonus", "bps"),
			floats("influence", "creativity", "threat", "ict_index"),
			ints("starts"),
			floats("expected_goals", "expected_assists", "expected_goal_involvements", "expected_goals_conceded"),
		),
	},
	{
		Name:        "player_past",
		Description: "one row per completed match this season per player; no names, join players on player_id",
		Columns: cols(
			ints("player_id", "fixture", "opponent_team", "total_points"),
			[]Column{
				{Name: "was_home", Type: Boolean},
				{Name: "kickoff_time", Type: Timestamp},
			},
			ints("team_h_score", "team_a_score"),
			[]Column{{Name: "round", Type: Integer, Note: "gameweek"}},
			ints("minutes", "goals_scored", "assists", "clean_sheets", "goals_conceded", "own_goals",
				"penalties_saved", "penalties_missed", "yellow_cards", "red_cards", "saves", "bonus", "bps"),
			floats("influence", "creativity", "threat", "ict_index"),
			ints("starts"),
			floats("expected_goals", "expected_assists", "expected_goal_involvements", "expected_goals_conceded"),
			ints("value", "selected", "transfers_in", "transfers_out"),
		),
	},
	{
		Name:        "player_future",
		Description: "one row per upcoming match per player; no names, join players on player_id",
		Columns: cols(
			ints("player_id", "code", "team_h", "team_a"),
			[]Column{{Name: "event", Type: Integer, Note: "gameweek"}},
			[]Column{
				{Name: "finished", Type: Boolean},
				{Name: "kickoff_time", Type: Timestamp},
				{Name: "event_name", Type: Text},
				{Name: "is_home", Type: Boolean},
			},
			ints("difficulty"),
		),
	},
}

// Lookup returns the documented table with the given name.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the whitelisted table names, sorted.
func TableNames() []string {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// AllColumns returns the set of every documented column name across tables.
func AllColumns() map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tables {
		for _, c := range t.Columns {
			set[c.Name] = true
		}
	}
	return set
}

// Describe renders the schema as prompt text.
func Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema version %s (PostgreSQL).\n\n", Version)
	for i, t := range Tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s\n", t.Name, t.Description)
		for _, c := range t.Columns {
			if c.Note != "" {
				fmt.Fprintf(&sb, "  - %s (%s) %s\n", c.Name, c.Type, c.Note)
			} else {
				fmt.Fprintf(&sb, "  - %s (%s)\n", c.Name, c.Type)
			}
		}
	}
	return sb.String()
}
