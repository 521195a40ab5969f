package storage

import (
	"strconv"
	"strings"
)

type dialect struct {
	name string
	// positional renders the n-th (1-based) bind parameter.
	positional func(n int) string
	// lockRow is appended to single-row selects inside write transactions.
	// SQLite has no row locks; its single writer connection serializes instead.
	lockRow string
}

var (
	sqliteDialect = dialect{
		name:       "sqlite",
		positional: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:       "postgres",
		positional: func(n int) string { return "$" + strconv.Itoa(n) },
		lockRow:    " FOR UPDATE",
	}
)

// rebind rewrites "?" placeholders for the dialect. Queries in this package
// never contain literal question marks.
func (d dialect) rebind(q string) string {
	if d.name == sqliteDialect.name || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(d.positional(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
