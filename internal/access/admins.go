// Package access answers "is this user an admin" from a read-through cache
// over the persisted admin list plus the configured owners.
package access

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

var ErrOwner = errors.New("owners cannot be removed")

type Admins struct {
	st  storage.Store
	log logx.Logger

	mu       sync.RWMutex
	owners   map[int64]struct{}
	cache    map[int64]struct{}
	loadedAt time.Time
}

func NewAdmins(st storage.Store, owners []int64, log logx.Logger) *Admins {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Admins{st: st, log: log.With(logx.Comp("access"))}
	a.SetOwners(owners)
	return a
}

// SetOwners replaces the configured owner set.
func (a *Admins) SetOwners(owners []int64) {
	m := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		if id != 0 {
			m[id] = struct{}{}
		}
	}
	a.mu.Lock()
	a.owners = m
	a.mu.Unlock()
}

func (a *Admins) IsOwner(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.owners[userID]
	return ok
}

// IsAdmin consults the cache, loading it on first use. A load failure
// denies everyone except owners.
func (a *Admins) IsAdmin(ctx context.Context, userID int64) bool {
	a.mu.RLock()
	_, owner := a.owners[userID]
	cache := a.cache
	a.mu.RUnlock()
	if owner {
		return true
	}
	if cache == nil {
		if err := a.Refresh(ctx); err != nil {
			a.log.Warn("admin list load failed", logx.Err(err))
			return false
		}
		a.mu.RLock()
		cache = a.cache
		a.mu.RUnlock()
	}
	_, ok := cache[userID]
	return ok
}

// Refresh reloads the persisted admin list.
func (a *Admins) Refresh(ctx context.Context) error {
	list, err := a.st.ListAdmins(ctx)
	if err != nil {
		return err
	}
	m := make(map[int64]struct{}, len(list))
	for _, r := range list {
		m[r.UserID] = struct{}{}
	}
	a.mu.Lock()
	a.cache = m
	a.loadedAt = time.Now()
	a.mu.Unlock()
	return nil
}

func (a *Admins) invalidate() {
	a.mu.Lock()
	a.cache = nil
	a.mu.Unlock()
}

// Add persists userID as an admin. It reports false when already present.
func (a *Admins) Add(ctx context.Context, userID, addedBy int64) (bool, error) {
	added, err := a.st.AddAdmin(ctx, storage.AdminRecord{UserID: userID, AddedBy: addedBy})
	if err != nil {
		return false, err
	}
	a.invalidate()
	if added {
		a.log.Info("admin added", logx.Int64("user_id", userID), logx.Int64("by", addedBy))
	}
	return added, nil
}

// Remove deletes a persisted admin. Owners return ErrOwner.
func (a *Admins) Remove(ctx context.Context, userID int64) (bool, error) {
	if a.IsOwner(userID) {
		return false, ErrOwner
	}
	removed, err := a.st.RemoveAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	a.invalidate()
	if removed {
		a.log.Info("admin removed", logx.Int64("user_id", userID))
	}
	return removed, nil
}

// All returns owners and persisted admins, ascending and de-duplicated.
func (a *Admins) All(ctx context.Context) ([]int64, error) {
	list, err := a.st.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	out := make([]int64, 0, len(a.owners)+len(list))
	for id := range a.owners {
		out = append(out, id)
	}
	a.mu.RUnlock()
	for _, r := range list {
		out = append(out, r.UserID)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
