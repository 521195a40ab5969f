// Package storage is kinobot's relational persistence layer.
//
// One SQL implementation serves two dialects:
//   - sqlite (modernc.org/sqlite, pure Go, single writer connection)
//   - postgres (github.com/jackc/pgx/v5/stdlib)
//
// Tables: content, stats, subscribers, participants, contest (singleton),
// admins, audit. Multi-row mutations (delete, rename, draw steps) run in a
// single transaction; counter increments are single atomic statements.
package storage
