package store

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/joescharf/tagger/internal/tagging"
)

// Supported dialect names.
const (
	DialectMemory   = "memory"
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// flavor captures what differs between the SQL backends.
type flavor struct {
	name       string
	driverName string
	schema     string
	numbered   bool // $1, $2 ... instead of ?
	patternOp  string
	escape     func(string) string
	wildcard   string
}

// sqlite LIKE ignores ASCII case, GLOB does not.
var sqliteFlavor = flavor{
	name:       DialectSQLite,
	driverName: "sqlite",
	schema:     "schema/sqlite.sql.tmpl",
	patternOp:  "GLOB",
	escape: strings.NewReplacer(
		"[", "[[]",
		"*", "[*]",
		"?", "[?]",
	).Replace,
	wildcard: "*",
}

var postgresFlavor = flavor{
	name:       DialectPostgres,
	driverName: "postgres",
	schema:     "schema/postgres.sql.tmpl",
	numbered:   true,
	patternOp:  `LIKE`,
	escape: strings.NewReplacer(
		`\`, `\\`,
		"%", `\%`,
		"_", `\_`,
	).Replace,
	wildcard: "%",
}

func flavorFor(name string) (flavor, error) {
	switch name {
	case DialectSQLite, "sqlite3":
		return sqliteFlavor, nil
	case DialectPostgres, "postgresql", "pg":
		return postgresFlavor, nil
	default:
		return flavor{}, errors.Newf("unsupported sql dialect %q", name)
	}
}

// rebind rewrites ? placeholders for drivers that number them.
func (f flavor) rebind(query string) string {
	if !f.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nameCondition turns a name pattern into a WHERE fragment and its argument.
func (f flavor) nameCondition(p tagging.Pattern) (string, any) {
	text := f.escape(p.Text)
	switch p.Mode {
	case tagging.MatchContains:
		return f.patternClause(), f.wildcard + text + f.wildcard
	case tagging.MatchPrefix:
		return f.patternClause(), text + f.wildcard
	case tagging.MatchSuffix:
		return f.patternClause(), f.wildcard + text
	default:
		return "name = ?", p.Text
	}
}

func (f flavor) patternClause() string {
	if f.patternOp == "LIKE" {
		return `name LIKE ? ESCAPE '\'`
	}
	return "name " + f.patternOp + " ?"
}
