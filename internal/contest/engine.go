package contest

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

const DefaultCap = 3

var (
	ErrActive       = errors.New("draw already active")
	ErrNotActive    = errors.New("draw not active")
	ErrCapReached   = errors.New("all winners already picked")
	ErrNoCandidates = errors.New("no eligible participants")
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
)

type State struct {
	Active        bool
	Cycle         int
	Winners       []int64
	Announcements []storage.AnnouncementRef
	Cap           int
}

func (s State) Phase() Phase {
	switch {
	case s.Active:
		return PhaseActive
	case s.Cycle == 0:
		return PhaseIdle
	default:
		return PhaseFinished
	}
}

// Pick is the outcome of a successful PickWinner.
type Pick struct {
	Winner  int64
	Place   int // 1-based
	Winners []int64
	// Finished is true only for the pick that reached the cap.
	Finished bool
}

type Engine struct {
	st   storage.Store
	pool *Pool
	log  logx.Logger

	mu  sync.Mutex
	rng *rand.Rand
	cap atomic.Int32
}

type Option func(*Engine)

// WithRand replaces the random source; tests use a seeded one.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

func NewEngine(st storage.Store, cap int, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		st:   st,
		pool: NewPool(st),
		log:  log.With(logx.Comp("contest")),
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	e.SetCap(cap)
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Pool() *Pool { return e.pool }

// SetCap changes the winner cap for subsequent picks. Non-positive means DefaultCap.
func (e *Engine) SetCap(n int) {
	if n <= 0 {
		n = DefaultCap
	}
	e.cap.Store(int32(n))
}

func (e *Engine) Cap() int { return int(e.cap.Load()) }

func (e *Engine) stateOf(rec storage.ContestRecord) State {
	return State{
		Active:        rec.Active,
		Cycle:         rec.Cycle,
		Winners:       slices.Clone(rec.Winners),
		Announcements: slices.Clone(rec.Announcements),
		Cap:           e.Cap(),
	}
}

func (e *Engine) State(ctx context.Context) (State, error) {
	rec, err := e.st.GetContest(ctx)
	if err != nil {
		return State{}, err
	}
	return e.stateOf(rec), nil
}

// Start begins a new cycle: winners and announcements reset, pool cleared.
func (e *Engine) Start(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out storage.ContestRecord
	err := e.st.WithContest(ctx, func(tx storage.ContestTx) error {
		rec, err := tx.Contest()
		if err != nil {
			return err
		}
		if rec.Active {
			return ErrActive
		}
		if err := tx.ClearParticipants(); err != nil {
			return err
		}
		out = storage.ContestRecord{Active: true, Cycle: rec.Cycle + 1}
		return tx.Save(out)
	})
	if err != nil {
		return State{}, err
	}
	e.log.Info("draw started", logx.Int("cycle", out.Cycle), logx.Int("cap", e.Cap()))
	return e.stateOf(out), nil
}

// Join adds userID to the pool of the active cycle. It reports false for a
// repeated join.
func (e *Engine) Join(ctx context.Context, userID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.st.GetContest(ctx)
	if err != nil {
		return false, err
	}
	if !rec.Active {
		return false, ErrNotActive
	}
	return e.pool.Add(ctx, userID)
}

// PickWinner draws uniformly from participants who have not won yet. On
// error the winner list is unchanged.
//
// If the cap was lowered to or below the current winner count, the active
// cycle is closed instead: the returned Pick has Finished set, no Winner, and
// the error is ErrCapReached. Later calls see ErrNotActive.
func (e *Engine) PickWinner(ctx context.Context) (Pick, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	limit := e.Cap()
	var (
		pick   Pick
		closed bool
	)
	err := e.st.WithContest(ctx, func(tx storage.ContestTx) error {
		rec, err := tx.Contest()
		if err != nil {
			return err
		}
		if !rec.Active {
			return ErrNotActive
		}
		if len(rec.Winners) >= limit {
			rec.Active = false
			closed = true
			pick = Pick{Place: len(rec.Winners), Winners: slices.Clone(rec.Winners), Finished: true}
			return tx.Save(rec)
		}
		participants, err := tx.Participants()
		if err != nil {
			return err
		}
		candidates := make([]int64, 0, len(participants))
		for _, id := range participants {
			if !slices.Contains(rec.Winners, id) {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			return ErrNoCandidates
		}

		winner := candidates[e.rng.IntN(len(candidates))]
		rec.Winners = append(rec.Winners, winner)
		pick = Pick{Winner: winner, Place: len(rec.Winners)}
		if len(rec.Winners) == limit {
			rec.Active = false
			pick.Finished = true
		}
		pick.Winners = slices.Clone(rec.Winners)
		return tx.Save(rec)
	})
	if err != nil {
		return Pick{}, err
	}
	if closed {
		e.log.Info("draw closed at lowered cap", logx.Int("winners", len(pick.Winners)), logx.Int("cap", limit))
		return pick, ErrCapReached
	}
	e.log.Info("winner picked",
		logx.Int64("user_id", pick.Winner),
		logx.Int("place", pick.Place),
		logx.Bool("finished", pick.Finished),
	)
	return pick, nil
}

// Finish ends the active cycle early.
func (e *Engine) Finish(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out storage.ContestRecord
	err := e.st.WithContest(ctx, func(tx storage.ContestTx) error {
		rec, err := tx.Contest()
		if err != nil {
			return err
		}
		if !rec.Active {
			return ErrNotActive
		}
		rec.Active = false
		out = rec
		return tx.Save(rec)
	})
	if err != nil {
		return State{}, err
	}
	e.log.Info("draw finished", logx.Int("cycle", out.Cycle), logx.Int("winners", len(out.Winners)))
	return e.stateOf(out), nil
}

// RecordAnnouncements appends refs to the current cycle.
func (e *Engine) RecordAnnouncements(ctx context.Context, refs []storage.AnnouncementRef) error {
	if len(refs) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.WithContest(ctx, func(tx storage.ContestTx) error {
		rec, err := tx.Contest()
		if err != nil {
			return err
		}
		rec.Announcements = append(rec.Announcements, refs...)
		return tx.Save(rec)
	})
}

// Medal returns the place marker used in announcements.
func Medal(place int) string {
	switch place {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return "🏅"
	}
}
