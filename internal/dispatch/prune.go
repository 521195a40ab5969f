package dispatch

import (
	"sort"
	"time"
)

const (
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// Prune drops finished job statuses older than StatusTTL, then the oldest
// finished ones beyond StatusMax. Running and queued jobs are kept. It
// returns the number of statuses removed.
func (s *Service) Prune(now time.Time) int {
	s.mu.Lock()
	max, ttl := s.cfg.StatusMax, s.cfg.StatusTTL
	s.mu.Unlock()

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	removed := 0
	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			removed++
			continue
		}
		if st.Done() && now.Sub(st.DoneAt) > ttl {
			delete(s.status, id)
			removed++
		}
	}

	over := len(s.status) - max
	if over <= 0 {
		return removed
	}
	type cand struct {
		id string
		t  time.Time
	}
	cands := make([]cand, 0, len(s.status))
	for id, st := range s.status {
		if st.Done() {
			cands = append(cands, cand{id: id, t: st.DoneAt})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].t.Before(cands[j].t) })
	for i := 0; i < len(cands) && over > 0; i++ {
		delete(s.status, cands[i].id)
		removed++
		over--
	}
	return removed
}
