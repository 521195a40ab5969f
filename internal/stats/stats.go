// Package stats keeps per-code search and view counters.
package stats

import (
	"context"
	"fmt"

	"kinobot/internal/storage"
)

type Counter struct {
	Code     string
	Searched int64
	Viewed   int64
}

// Counters increments with single-statement upserts, so concurrent callers
// never lose updates.
type Counters struct {
	st storage.Store
}

func New(st storage.Store) *Counters { return &Counters{st: st} }

func (c *Counters) RecordSearch(ctx context.Context, code string) error {
	return c.bump(ctx, code, storage.StatSearched)
}

func (c *Counters) RecordView(ctx context.Context, code string) error {
	return c.bump(ctx, code, storage.StatViewed)
}

func (c *Counters) bump(ctx context.Context, code string, f storage.StatField) error {
	if code == "" {
		return fmt.Errorf("stats: empty code")
	}
	if err := c.st.IncrementStat(ctx, code, f); err != nil {
		return fmt.Errorf("stats %s %q: %w", f, code, err)
	}
	return nil
}

// Read reports ok=false when no counter exists for code.
func (c *Counters) Read(ctx context.Context, code string) (Counter, bool, error) {
	rec, ok, err := c.st.GetStat(ctx, code)
	if err != nil || !ok {
		return Counter{}, ok, err
	}
	return Counter{Code: rec.Code, Searched: rec.Searched, Viewed: rec.Viewed}, true, nil
}
