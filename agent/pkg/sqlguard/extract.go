package sqlguard

import (
	"encoding/json"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	sqlFenceRe    = regexp.MustCompile("(?is)```\\s*(?:sql|postgresql|postgres|pgsql)\\s*\\n(.*?)```")
	anyFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	// WITH only starts a statement when a CTE head follows, so prose such as
	// "the query with the most goals" is skipped.
	statementRe   = regexp.MustCompile(`(?i)\bselect\b|\bwith\s+(?:recursive\s+)?[a-z_"][\w"]*\s*(?:\([^)]*\)\s*)?as\s*(?:(?:not\s+)?materialized\s*)?\(`)
	forbiddenRe   = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|merge)\b`)
	lineCommentRe = regexp.MustCompile(`(?m)--.*$`)
)

// Extract pulls the first candidate statement text out of an LLM completion.
// Code fences and surrounding commentary are stripped. The returned text may
// still hold chained statements; Validate rejects those.
func Extract(completion string) (string, error) {
	text := strings.TrimSpace(completion)
	if text == "" {
		return "", reject("", ReasonEmpty, "completion is empty")
	}

	if m := sqlFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if m := anyFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		var resp struct {
			SQL string `json:"sql"`
		}
		if err := json.Unmarshal([]byte(text), &resp); err == nil && resp.SQL != "" {
			text = strings.TrimSpace(resp.SQL)
		}
	}

	// Drop commentary before the statement, but keep anything that starts
	// with a forbidden keyword so it is reported as a mutation.
	start := -1
	if loc := statementRe.FindStringIndex(text); loc != nil {
		start = loc[0]
	}
	if loc := forbiddenRe.FindStringIndex(text); loc != nil && (start == -1 || loc[0] < start) {
		start = loc[0]
	}
	if start == -1 {
		return "", reject("", ReasonEmpty, "no SQL statement found in completion")
	}
	text = strings.TrimSpace(text[start:])
	if text == "" {
		return "", reject("", ReasonEmpty, "no SQL statement found in completion")
	}
	return text, nil
}

// splitStatements returns the non-empty statements in sql.
func splitStatements(sql string) []string {
	parts, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		parts = strings.Split(sql, ";")
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.TrimSpace(lineCommentRe.ReplaceAllString(p, "")) != "" {
			out = append(out, p)
		}
	}
	return out
}
