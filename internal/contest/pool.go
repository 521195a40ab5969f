package contest

import (
	"context"

	"kinobot/internal/storage"
)

// Pool is the participant set of the current cycle.
type Pool struct {
	st storage.Store
}

func NewPool(st storage.Store) *Pool { return &Pool{st: st} }

// Add reports whether userID was newly added.
func (p *Pool) Add(ctx context.Context, userID int64) (bool, error) {
	return p.st.AddParticipant(ctx, userID)
}

// List returns participants by ascending user id.
func (p *Pool) List(ctx context.Context) ([]int64, error) {
	return p.st.ListParticipants(ctx)
}

func (p *Pool) Clear(ctx context.Context) error {
	return p.st.ClearParticipants(ctx)
}
