package entity

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	defaultMaxCandidates = 5

	// Tokens shorter than this never start a player mention.
	minPlayerTokenLen = 3

	// Prefix matching against surnames needs at least this many characters.
	minPartialLen = 4
)

// Config configures a Resolver.
type Config struct {
	Logger        *slog.Logger
	Aliases       *AliasTable
	Directory     Directory
	MaxCandidates int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Aliases == nil {
		return errors.New("alias table is required")
	}
	if c.Directory == nil {
		return errors.New("directory is required")
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = defaultMaxCandidates
	}
	return nil
}

// Resolver maps mentions in a question to canonical players and teams. The
// static alias table is consulted first; spans it claims are never offered as
// player candidates. Remaining tokens are matched against the live directory.
type Resolver struct {
	cfg *Config
	log *slog.Logger
}

func NewResolver(cfg *Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, log: cfg.Logger}, nil
}

// Aliases returns the static alias table the resolver was built with.
func (r *Resolver) Aliases() *AliasTable {
	return r.cfg.Aliases
}

type located struct {
	start int
	Mention
}

// Resolve returns the mentions found in question. With no mentions it returns
// NoMatch when a name-like word went unresolved and NoEntities otherwise. A
// directory failure is returned as a *ResolutionError and never as an empty
// result.
func (r *Resolver) Resolve(ctx context.Context, question string) (Resolution, error) {
	teams, err := r.cfg.Directory.Teams(ctx)
	if err != nil {
		return Resolution{}, &ResolutionError{Source: "team directory", Err: err}
	}
	players, err := r.cfg.Directory.Players(ctx)
	if err != nil {
		return Resolution{}, &ResolutionError{Source: "player directory", Err: err}
	}

	toks := tokenize(question)
	used := make([]bool, len(toks))

	var found []located
	found = append(found, r.matchAliases(toks, used, teams)...)
	found = append(found, matchDirectoryTeams(toks, used, teams)...)
	found = append(found, r.matchPlayers(toks, used, players)...)

	if len(found) == 0 {
		if names := unresolvedNames(toks, used); len(names) > 0 {
			r.log.Debug("entity: unresolved names", "question", question, "names", names)
			return NoMatch, nil
		}
		r.log.Debug("entity: no entities named", "question", question)
		return NoEntities, nil
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	res := Resolution{Status: StatusMatched, Mentions: make([]Mention, len(found))}
	for i, f := range found {
		res.Mentions[i] = f.Mention
	}
	r.log.Debug("entity: resolved mentions", "question", question, "count", len(res.Mentions))
	return res, nil
}

// unresolvedNames returns capitalised words outside any mention that are not
// question vocabulary. They are taken to name something the data lacks.
func unresolvedNames(toks []token, used []bool) []string {
	var out []string
	for i, t := range toks {
		if used[i] || len([]rune(t.norm)) < 2 || stopwords[t.norm] || isNumeric(t.norm) {
			continue
		}
		if first := []rune(t.orig)[0]; unicode.IsUpper(first) {
			out = append(out, t.orig)
		}
	}
	return out
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func (r *Resolver) teamCandidate(alias TeamAlias, teams []Team) Candidate {
	c := Candidate{Kind: KindTeam, Canonical: alias.Name, ShortName: alias.Code}
	for _, t := range teams {
		if strings.EqualFold(t.Name, alias.Name) || (alias.Code != "" && strings.EqualFold(t.ShortName, alias.Code)) {
			c.TeamID = t.ID
			break
		}
	}
	return c
}

func (r *Resolver) matchAliases(toks []token, used []bool, teams []Team) []located {
	table := r.cfg.Aliases
	var out []located
	for i := 0; i < len(toks); i++ {
		if used[i] {
			continue
		}
		if idx, ok := table.codes[toks[i].orig]; ok && isUpper(toks[i].orig) {
			used[i] = true
			out = append(out, located{start: i, Mention: Mention{
				Span:       toks[i].orig,
				Kind:       KindTeam,
				Candidates: []Candidate{r.teamCandidate(table.Teams[idx], teams)},
			}})
			continue
		}
		for _, p := range table.phrases {
			if !phraseAt(toks, used, i, p.tokens) {
				continue
			}
			end := i + len(p.tokens)
			markUsed(used, i, end)
			out = append(out, located{start: i, Mention: Mention{
				Span:       spanText(toks, i, end),
				Kind:       KindTeam,
				Candidates: []Candidate{r.teamCandidate(table.Teams[p.team], teams)},
			}})
			i = end - 1
			break
		}
	}
	return out
}

// matchDirectoryTeams catches teams that are in the store but not in the
// static alias table, e.g. after promotion.
func matchDirectoryTeams(toks []token, used []bool, teams []Team) []located {
	var out []located
	for _, t := range teams {
		name := normalizeTokens(t.Name)
		for i := 0; i < len(toks); i++ {
			matched := phraseAt(toks, used, i, name)
			end := i + len(name)
			if !matched && !used[i] && t.ShortName != "" && toks[i].orig == t.ShortName && isUpper(t.ShortName) {
				matched, end = true, i+1
			}
			if !matched {
				continue
			}
			markUsed(used, i, end)
			out = append(out, located{start: i, Mention: Mention{
				Span:       spanText(toks, i, end),
				Kind:       KindTeam,
				Candidates: []Candidate{{Kind: KindTeam, Canonical: t.Name, ShortName: t.ShortName, TeamID: t.ID}},
			}})
		}
	}
	return out
}

type playerIndex struct {
	players []Player
	surname map[string][]int
	first   map[string][]int
}

func newPlayerIndex(players []Player) *playerIndex {
	idx := &playerIndex{
		players: players,
		surname: make(map[string][]int),
		first:   make(map[string][]int),
	}
	for i, p := range players {
		seen := make(map[string]bool)
		for _, t := range append(normalizeTokens(p.SecondName), normalizeTokens(p.WebName)...) {
			if !seen[t] {
				seen[t] = true
				idx.surname[t] = append(idx.surname[t], i)
			}
		}
		for _, t := range normalizeTokens(p.FirstName) {
			idx.first[t] = append(idx.first[t], i)
		}
	}
	return idx
}

// lookup returns the preferred matches for a token (surname, then first name,
// then surname prefix) and the union used for multi-token merging.
func (idx *playerIndex) lookup(tok string) (preferred, all []int) {
	sur := idx.surname[tok]
	first := idx.first[tok]
	all = union(sur, first)
	switch {
	case len(sur) > 0:
		return sur, all
	case len(first) > 0:
		return first, all
	}
	if len(tok) < minPartialLen {
		return nil, nil
	}
	var partial []int
	for name, ids := range idx.surname {
		if strings.HasPrefix(name, tok) {
			partial = union(partial, ids)
		}
	}
	return partial, partial
}

func (r *Resolver) matchPlayers(toks []token, used []bool, players []Player) []located {
	if len(players) == 0 {
		return nil
	}
	idx := newPlayerIndex(players)
	seen := make(map[string]bool)
	var out []located
	for i := 0; i < len(toks); i++ {
		if !playerCandidateToken(toks[i], used[i]) {
			continue
		}
		preferred, all := idx.lookup(toks[i].norm)
		if len(preferred) == 0 {
			continue
		}
		j := i
		cur := all
		for j+1 < len(toks) && playerCandidateToken(toks[j+1], used[j+1]) {
			_, next := idx.lookup(toks[j+1].norm)
			both := intersect(cur, next)
			if len(both) == 0 {
				break
			}
			cur = both
			j++
		}
		ids := preferred
		if j > i {
			ids = cur
		}
		markUsed(used, i, j+1)

		cands := r.rankPlayers(idx.players, ids)
		key := candidateKey(cands)
		if seen[key] {
			i = j
			continue
		}
		seen[key] = true
		out = append(out, located{start: i, Mention: Mention{
			Span:       spanText(toks, i, j+1),
			Kind:       KindPlayer,
			Candidates: cands,
		}})
		i = j
	}
	return out
}

// rankPlayers orders candidates for a shared name by total points, then
// minutes, then id, and keeps the top MaxCandidates.
func (r *Resolver) rankPlayers(players []Player, ids []int) []Candidate {
	ps := make([]Player, len(ids))
	for i, id := range ids {
		ps[i] = players[id]
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].TotalPoints != ps[j].TotalPoints {
			return ps[i].TotalPoints > ps[j].TotalPoints
		}
		if ps[i].Minutes != ps[j].Minutes {
			return ps[i].Minutes > ps[j].Minutes
		}
		return ps[i].ID < ps[j].ID
	})
	if len(ps) > r.cfg.MaxCandidates {
		ps = ps[:r.cfg.MaxCandidates]
	}
	out := make([]Candidate, len(ps))
	for i, p := range ps {
		out[i] = Candidate{
			Kind:        KindPlayer,
			Canonical:   p.FullName(),
			PlayerID:    p.ID,
			FirstName:   p.FirstName,
			SecondName:  p.SecondName,
			WebName:     p.WebName,
			TeamName:    p.TeamName,
			TotalPoints: p.TotalPoints,
			Minutes:     p.Minutes,
		}
	}
	return out
}

func playerCandidateToken(t token, used bool) bool {
	if used || len(t.norm) < minPlayerTokenLen || stopwords[t.norm] {
		return false
	}
	return !unicode.IsDigit([]rune(t.norm)[0])
}

func phraseAt(toks []token, used []bool, i int, phrase []string) bool {
	if len(phrase) == 0 || i+len(phrase) > len(toks) {
		return false
	}
	for k, p := range phrase {
		if used[i+k] || toks[i+k].norm != p {
			return false
		}
	}
	return true
}

func markUsed(used []bool, from, to int) {
	for k := from; k < to; k++ {
		used[k] = true
	}
}

func spanText(toks []token, from, to int) string {
	parts := make([]string, 0, to-from)
	for _, t := range toks[from:to] {
		parts = append(parts, t.orig)
	}
	return strings.Join(parts, " ")
}

func isUpper(s string) bool {
	return len(s) >= 3 && strings.ToUpper(s) == s && strings.ToLower(s) != s
}

func union(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, v := range append(append([]int{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func intersect(a, b []int) []int {
	set := make(map[int]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []int
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func candidateKey(cands []Candidate) string {
	var sb strings.Builder
	for _, c := range cands {
		sb.WriteString(strconv.Itoa(c.PlayerID))
		sb.WriteByte('|')
	}
	return sb.String()
}
