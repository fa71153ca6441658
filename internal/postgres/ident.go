package postgres

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Ident always double-quotes an identifier for use in DDL.
func Ident(s string) string { return pgx.Identifier{s}.Sanitize() }

// Literal renders s as a standard-conforming SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reserved words that cannot appear unquoted as table or object names
var reserved = map[string]struct{}{
	"all": {}, "analyse": {}, "analyze": {}, "and": {}, "any": {}, "array": {}, "as": {}, "asc": {},
	"both": {}, "case": {}, "cast": {}, "check": {}, "collate": {}, "column": {}, "constraint": {},
	"create": {}, "default": {}, "desc": {}, "distinct": {}, "do": {}, "else": {}, "end": {},
	"except": {}, "false": {}, "for": {}, "foreign": {}, "from": {}, "grant": {}, "group": {},
	"having": {}, "in": {}, "into": {}, "is": {}, "join": {}, "limit": {}, "not": {}, "null": {},
	"offset": {}, "on": {}, "only": {}, "or": {}, "order": {}, "primary": {}, "references": {},
	"select": {}, "table": {}, "then": {}, "to": {}, "true": {}, "union": {}, "unique": {},
	"user": {}, "using": {}, "when": {}, "where": {}, "with": {},
}

// DisplayIdent quotes name only when PostgreSQL would require it, so hints
// read like hand-written SQL (public.orders rather than "public"."orders").
func DisplayIdent(name string) string {
	if _, kw := reserved[name]; !kw && plainIdent.MatchString(name) {
		return name
	}
	return Ident(name)
}

// DisplayQualified renders schema.table with DisplayIdent on each part.
func DisplayQualified(schema, table string) string {
	return DisplayIdent(schema) + "." + DisplayIdent(table)
}

// ConnInfo renders a libpq keyword/value connection string. Values are
// single-quoted when they contain spaces, quotes or backslashes.
func ConnInfo(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, connValue(kv[k])))
	}
	return strings.Join(parts, " ")
}

func connValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t\n") {
		return v
	}
	esc := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + esc.Replace(v) + "'"
}
