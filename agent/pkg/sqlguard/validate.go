// Package sqlguard turns untrusted LLM output into a single read-only
// statement over the documented schema, or rejects it.
package sqlguard

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/malbeclabs/sportsql/pkg/schema"
)

// NoMatchSQL is the canonical statement for questions that name no known
// player or team. It always returns zero rows.
const NoMatchSQL = "SELECT NULL AS no_match WHERE FALSE"

// Statement is a validated, read-only SQL statement.
type Statement struct {
	SQL    string
	Tables []string
	// Empty is set when the statement provably returns zero rows.
	Empty bool
}

// mutatingKeywords are rejected wherever they appear as keywords, even inside
// an otherwise valid SELECT (FOR UPDATE, data-modifying CTEs).
var mutatingKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"TRUNCATE": true, "CREATE": true, "GRANT": true, "REVOKE": true, "MERGE": true,
	"COPY": true, "VACUUM": true, "REINDEX": true, "CLUSTER": true, "COMMENT": true,
}

var forbiddenFunctions = map[string]bool{
	"set_config": true, "current_setting": true, "nextval": true, "setval": true,
	"query_to_xml": true, "query_to_xml_and_xmlschema": true, "cursor_to_xml": true,
	"table_to_xml": true, "schema_to_xml": true, "database_to_xml": true,
	"txid_current": true, "version": true, "inet_server_addr": true, "inet_server_port": true,
}

// Server administration and catalog introspection live under these prefixes.
var forbiddenFunctionPrefixes = []string{"pg_", "has_", "lo_", "dblink"}

var fallbackKeywordRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|merge|copy)\b`)

// Parse extracts and validates the first candidate statement in completion.
func Parse(completion string) (Statement, error) {
	text, err := Extract(completion)
	if err != nil {
		return Statement{}, err
	}
	return Validate(text)
}

// Validate checks that sql is exactly one SELECT over whitelisted tables and
// columns with no mutating keywords or side-effecting functions.
func Validate(sql string) (Statement, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return Statement{}, reject(sql, ReasonEmpty, "statement is empty")
	}
	if kw := findMutatingKeyword(sql); kw != "" {
		return Statement{}, reject(sql, ReasonMutation, "%s is not allowed; only read-only SELECT queries may run", kw)
	}

	stmts := splitStatements(sql)
	switch {
	case len(stmts) == 0:
		return Statement{}, reject(sql, ReasonEmpty, "statement is empty")
	case len(stmts) > 1:
		return Statement{}, reject(sql, ReasonMultiple, "found %d statements; exactly one is allowed", len(stmts))
	}
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmts[0]), ";"))

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return Statement{}, reject(sql, ReasonParse, "%v", err)
	}
	if len(tree.Stmts) != 1 {
		return Statement{}, reject(sql, ReasonMultiple, "found %d statements; exactly one is allowed", len(tree.Stmts))
	}
	sel := tree.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return Statement{}, reject(sql, ReasonNotSelect, "only SELECT statements are allowed")
	}
	if sel.GetIntoClause() != nil {
		return Statement{}, reject(sql, ReasonMutation, "SELECT INTO is not allowed")
	}

	raw, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return Statement{}, reject(sql, ReasonParse, "%v", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Statement{}, reject(sql, ReasonParse, "decode parse tree: %v", err)
	}
	refs := collectRefs(doc)
	if refs.mutation != "" {
		return Statement{}, reject(sql, ReasonMutation, "%s is not allowed", refs.mutation)
	}
	if refs.locking {
		return Statement{}, reject(sql, ReasonMutation, "row locking clauses are not allowed")
	}
	for _, fn := range refs.functions {
		if isForbiddenFunction(fn) {
			return Statement{}, reject(sql, ReasonForbiddenFunction, "function %s is not allowed", fn)
		}
	}

	tables := make(map[string]bool)
	for _, rv := range refs.relations {
		if rv.cte {
			continue
		}
		if rv.schema != "" && rv.schema != "public" {
			return Statement{}, reject(sql, ReasonUnknownTable, "table %s.%s is not available; use only %s",
				rv.schema, rv.name, strings.Join(schema.TableNames(), ", "))
		}
		if _, ok := schema.Lookup(rv.name); !ok {
			return Statement{}, reject(sql, ReasonUnknownTable, "table %s is not available; use only %s",
				rv.name, strings.Join(schema.TableNames(), ", "))
		}
		tables[rv.name] = true
	}

	known := schema.AllColumns()
	for _, col := range refs.columns {
		if !known[col] && !refs.outputs[col] {
			return Statement{}, reject(sql, ReasonUnknownColumn, "column %s does not exist in the documented schema", col)
		}
	}

	out := Statement{SQL: sql, Empty: provablyEmpty(sel)}
	for t := range tables {
		out.Tables = append(out.Tables, t)
	}
	sort.Strings(out.Tables)
	return out, nil
}

func findMutatingKeyword(sql string) string {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		if m := fallbackKeywordRe.FindString(sql); m != "" {
			return strings.ToUpper(m)
		}
		return ""
	}
	for _, tok := range scan.GetTokens() {
		if tok.GetKeywordKind() == pg_query.KeywordKind_NO_KEYWORD {
			continue
		}
		start, end := int(tok.GetStart()), int(tok.GetEnd())
		if start < 0 || end > len(sql) || start >= end {
			continue
		}
		word := strings.ToUpper(sql[start:end])
		if mutatingKeywords[word] {
			return word
		}
	}
	return ""
}

func isForbiddenFunction(name string) bool {
	name = strings.ToLower(name)
	if forbiddenFunctions[name] {
		return true
	}
	for _, p := range forbiddenFunctionPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// provablyEmpty recognises WHERE FALSE and LIMIT 0 on a plain SELECT.
func provablyEmpty(sel *pg_query.SelectStmt) bool {
	if sel.GetLarg() != nil || sel.GetRarg() != nil {
		return false
	}
	if b := sel.GetWhereClause().GetAConst().GetBoolval(); b != nil && !b.GetBoolval() {
		return true
	}
	if c := sel.GetLimitCount().GetAConst(); c != nil && c.GetIval() != nil && c.GetIval().GetIval() == 0 {
		return true
	}
	return false
}

// IsProvablyEmpty reports whether sql is a valid statement that always
// returns zero rows.
func IsProvablyEmpty(sql string) bool {
	stmt, err := Validate(sql)
	return err == nil && stmt.Empty
}

type relation struct {
	schema string
	name   string
	// cte is set when an unqualified name resolves to a CTE in scope.
	cte bool
}

type refs struct {
	relations []relation
	columns   []string
	functions []string
	// outputs holds column names the query defines itself: select-list
	// labels and CTE or alias column lists. They satisfy column checks only;
	// relation names are checked against CTE scope alone.
	outputs  map[string]bool
	mutation string
	locking  bool
}

// collectRefs walks the JSON parse tree, tracking which CTE names are visible
// at each relation reference.
func collectRefs(doc any) refs {
	r := refs{outputs: make(map[string]bool)}
	r.walk(doc, nil)
	return r
}

func (r *refs) walk(v any, scope map[string]bool) {
	switch n := v.(type) {
	case []any:
		for _, item := range n {
			r.walk(item, scope)
		}
	case map[string]any:
		for key, child := range n {
			r.visit(key, child, scope)
		}
	}
}

func (r *refs) visit(key string, child any, scope map[string]bool) {
	obj, _ := child.(map[string]any)
	switch key {
	case "InsertStmt", "UpdateStmt", "DeleteStmt", "MergeStmt":
		if r.mutation == "" {
			r.mutation = strings.ToUpper(strings.TrimSuffix(key, "Stmt"))
		}
	case "lockingClause":
		r.locking = true
	case "SelectStmt":
		if obj != nil {
			r.walkSelect(obj, scope)
			return
		}
	case "RangeVar":
		if obj != nil {
			rv := relation{name: str(obj["relname"]), schema: str(obj["schemaname"])}
			rv.cte = rv.schema == "" && scope[rv.name]
			r.relations = append(r.relations, rv)
		}
	case "ColumnRef":
		if obj != nil {
			if name := columnName(obj["fields"]); name != "" {
				r.columns = append(r.columns, name)
			}
		}
	case "FuncCall":
		if obj != nil {
			if name := lastName(obj["funcname"]); name != "" {
				r.functions = append(r.functions, name)
			}
		}
	case "ResTarget":
		if obj != nil {
			if name := str(obj["name"]); name != "" {
				r.outputs[name] = true
			}
		}
	case "alias":
		if obj != nil {
			for _, c := range nameList(obj["colnames"]) {
				r.outputs[c] = true
			}
		}
	}
	r.walk(child, scope)
}

// walkSelect brings the statement's CTEs into scope. A non-recursive CTE
// sees only the CTEs declared before it; the statement body and every CTE of
// a WITH RECURSIVE see them all.
func (r *refs) walkSelect(sel map[string]any, scope map[string]bool) {
	full := scope
	if with, ok := sel["withClause"].(map[string]any); ok {
		recursive, _ := with["recursive"].(bool)
		var names []string
		var bodies []map[string]any
		for _, item := range asList(with["ctes"]) {
			node, _ := item.(map[string]any)
			cte, ok := node["CommonTableExpr"].(map[string]any)
			if !ok {
				continue
			}
			names = append(names, str(cte["ctename"]))
			bodies = append(bodies, cte)
			for _, c := range nameList(cte["aliascolnames"]) {
				r.outputs[c] = true
			}
		}
		full = extendScope(scope, names)
		for i, cte := range bodies {
			visible := full
			if !recursive {
				visible = extendScope(scope, names[:i])
			}
			r.walk(cte["ctequery"], visible)
		}
	}
	for key, child := range sel {
		if key == "withClause" {
			continue
		}
		r.visit(key, child, full)
	}
}

func extendScope(scope map[string]bool, names []string) map[string]bool {
	if len(names) == 0 {
		return scope
	}
	out := make(map[string]bool, len(scope)+len(names))
	for k := range scope {
		out[k] = true
	}
	for _, n := range names {
		out[n] = true
	}
	return out
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// nameList returns the svals of a list of String nodes.
func nameList(v any) []string {
	list, _ := v.([]any)
	var out []string
	for _, item := range list {
		node, _ := item.(map[string]any)
		if s, ok := node["String"].(map[string]any); ok {
			out = append(out, str(s["sval"]))
		}
	}
	return out
}

func lastName(v any) string {
	names := nameList(v)
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}

// columnName returns the referenced column, or "" for star expansions.
func columnName(v any) string {
	list, _ := v.([]any)
	if len(list) == 0 {
		return ""
	}
	last, _ := list[len(list)-1].(map[string]any)
	if _, star := last["A_Star"]; star {
		return ""
	}
	s, _ := last["String"].(map[string]any)
	return str(s["sval"])
}
