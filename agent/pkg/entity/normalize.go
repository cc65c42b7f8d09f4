package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type token struct {
	orig string
	norm string
}

// Letters with no canonical decomposition.
var foldLetters = strings.NewReplacer(
	"ø", "o", "Ø", "O", "æ", "ae", "Æ", "AE", "ß", "ss",
	"ł", "l", "Ł", "L", "đ", "d", "Đ", "D", "ı", "i",
)

// Fold strips diacritics so "Ødegaard" and "Odegaard" compare equal.
func Fold(s string) string {
	// transform chains hold state, build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return foldLetters.Replace(out)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’'
}

func tokenize(s string) []token {
	var out []token
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) }) {
		orig := strings.Trim(word, "'’")
		n := strings.ToLower(Fold(orig))
		n = strings.TrimSuffix(n, "'s")
		n = strings.TrimSuffix(n, "’s")
		n = strings.NewReplacer("'", "", "’", "").Replace(n)
		if n == "" {
			continue
		}
		out = append(out, token{orig: orig, norm: n})
	}
	return out
}

func normalizeTokens(s string) []string {
	toks := tokenize(s)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.norm
	}
	return out
}

// stopwords never start a player mention. They cover question phrasing and
// football vocabulary that collides with real surnames.
var stopwords = map[string]bool{
	"a": true, "about": true, "after": true, "against": true, "all": true, "and": true, "any": true,
	"are": true, "as": true, "assist": true, "assists": true, "at": true, "average": true, "away": true,
	"be": true, "been": true, "before": true, "best": true, "between": true, "bonus": true, "by": true,
	"can": true, "card": true, "cards": true, "clean": true, "compare": true, "conceded": true, "cost": true,
	"current": true, "currently": true, "did": true, "difficulty": true, "do": true, "does": true,
	"each": true, "for": true, "form": true, "forward": true, "forwards": true, "from": true, "game": true,
	"games": true, "gameweek": true, "get": true, "give": true, "goal": true, "goalkeeper": true,
	"goalkeepers": true, "goals": true, "got": true, "gw": true, "had": true, "has": true, "have": true,
	"highest": true, "his": true, "home": true, "how": true, "in": true, "is": true, "it": true,
	"keeper": true, "last": true, "league": true, "list": true, "lowest": true, "made": true, "many": true,
	"match": true, "matches": true, "me": true, "midfielder": true, "midfielders": true, "minutes": true,
	"more": true, "most": true, "much": true, "my": true, "next": true, "of": true, "on": true, "or": true,
	"over": true, "per": true, "play": true, "played": true, "player": true, "players": true, "playing": true,
	"points": true, "position": true, "premier": true, "price": true, "red": true, "saves": true,
	"score": true, "scored": true, "scorer": true, "season": true, "seasons": true, "sheets": true,
	"show": true, "since": true, "so": true, "than": true, "that": true, "the": true, "their": true,
	"them": true, "this": true, "to": true, "top": true, "total": true, "upcoming": true, "versus": true,
	"vs": true, "was": true, "week": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "whom": true, "whose": true, "will": true, "with": true, "won": true,
	"year": true, "years": true, "yellow": true, "goalscorer": true, "defender": true, "defenders": true,
	"table": true, "team": true, "teams": true, "expected": true, "xg": true, "xa": true, "fixtures": true,
	"fixture": true, "club": true, "among": true, "both": true,
	"tell": true, "name": true, "find": true, "rank": true, "please": true, "i": true, "fpl": true,
	"epl": true, "pl": true, "whos": true, "whats": true, "rate": true, "hey": true, "ok": true,
}
