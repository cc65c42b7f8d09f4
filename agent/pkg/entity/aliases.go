package entity

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// TeamAlias is one canonical team with its accepted surface forms.
type TeamAlias struct {
	Name    string   `yaml:"name"`
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

// AliasTable is the static team alias table. It is read-only after load and
// safe for concurrent use.
type AliasTable struct {
	Version string      `yaml:"version"`
	Teams   []TeamAlias `yaml:"teams"`

	phrases []aliasPhrase
	codes   map[string]int
}

type aliasPhrase struct {
	tokens []string
	team   int
}

// DefaultAliases returns the embedded alias table.
func DefaultAliases() (*AliasTable, error) {
	return ParseAliases(defaultAliases)
}

// LoadAliases reads an alias table from a YAML file.
func LoadAliases(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ResolutionError{Source: "alias table", Err: err}
	}
	return ParseAliases(data)
}

// ParseAliases parses and indexes a YAML alias table.
func ParseAliases(data []byte) (*AliasTable, error) {
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, &ResolutionError{Source: "alias table", Err: fmt.Errorf("parse: %w", err)}
	}
	if len(t.Teams) == 0 {
		return nil, &ResolutionError{Source: "alias table", Err: fmt.Errorf("no teams defined")}
	}
	t.index()
	return &t, nil
}

func (t *AliasTable) index() {
	t.codes = make(map[string]int, len(t.Teams))
	seen := make(map[string]bool)
	for i, team := range t.Teams {
		if team.Code != "" {
			t.codes[strings.ToUpper(team.Code)] = i
		}
		forms := append([]string{team.Name}, team.Aliases...)
		for _, form := range forms {
			toks := normalizeTokens(form)
			key := strings.Join(toks, " ")
			if len(toks) == 0 || seen[key] {
				continue
			}
			seen[key] = true
			t.phrases = append(t.phrases, aliasPhrase{tokens: toks, team: i})
		}
	}
	// Longest phrases first so "tottenham hotspur" wins over "tottenham".
	sort.SliceStable(t.phrases, func(i, j int) bool {
		return len(t.phrases[i].tokens) > len(t.phrases[j].tokens)
	})
}

// Lookup returns the alias entry for a canonical team name or code.
func (t *AliasTable) Lookup(nameOrCode string) (TeamAlias, bool) {
	if i, ok := t.codes[strings.ToUpper(nameOrCode)]; ok {
		return t.Teams[i], true
	}
	for _, team := range t.Teams {
		if strings.EqualFold(team.Name, nameOrCode) {
			return team, true
		}
	}
	return TeamAlias{}, false
}

// Render formats the table as "CODE | Name | aliases" lines, in file order.
func (t *AliasTable) Render() string {
	var sb strings.Builder
	for _, team := range t.Teams {
		fmt.Fprintf(&sb, "%s | %s | %s\n", team.Code, team.Name, strings.Join(team.Aliases, ", "))
	}
	return sb.String()
}
