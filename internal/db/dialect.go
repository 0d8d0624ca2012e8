package db

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported stores. Queries are written with
// ? placeholders and rebound per dialect.
type Dialect struct {
	Name string
	// SeqColumn orders rows by insertion.
	SeqColumn string
	numbered  bool
}

var (
	Postgres = Dialect{Name: "postgres", SeqColumn: "seq", numbered: true}
	SQLite   = Dialect{Name: "sqlite", SeqColumn: "rowid"}
)

// DialectFor returns the dialect for a driver name. Unknown names get the postgres dialect.
func DialectFor(driver string) Dialect {
	if driver == SQLite.Name {
		return SQLite
	}
	return Postgres
}

// Rebind rewrites ? placeholders into $1..$n for dialects that need numbered parameters.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
