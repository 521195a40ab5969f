package bot

import (
	"sync"
	"time"

	"kinobot/internal/transport"
)

// Step is the pending input a user owes the bot.
type Step int

const (
	StepNone Step = iota
	// StepContact: the next message is relayed to all admins.
	StepContact
	// StepReply: an admin's next message goes to Session.Target.
	StepReply
	StepRenameOld
	StepRenameNew
	StepRenameTitle
	// StepIngestMedia collects the ad post then the parts until /done.
	StepIngestMedia
	// StepIngestInfo waits for "<code> <title>".
	StepIngestInfo
	StepPostPhoto
	StepPostTitle
	StepPostLink
)

func (s Step) String() string {
	switch s {
	case StepContact:
		return "contact"
	case StepReply:
		return "reply"
	case StepRenameOld:
		return "rename.old"
	case StepRenameNew:
		return "rename.new"
	case StepRenameTitle:
		return "rename.title"
	case StepIngestMedia:
		return "ingest.media"
	case StepIngestInfo:
		return "ingest.info"
	case StepPostPhoto:
		return "post.photo"
	case StepPostTitle:
		return "post.title"
	case StepPostLink:
		return "post.link"
	default:
		return "none"
	}
}

type Session struct {
	Step    Step
	Target  int64
	OldCode string
	NewCode string
	Title   string
	Media   []transport.Media
	Touched time.Time
}

// Sessions keeps one wizard session per user. Idle sessions expire after ttl.
type Sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[int64]Session
	now func() time.Time
}

const DefaultSessionTTL = 15 * time.Minute

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{ttl: ttl, m: map[int64]Session{}, now: time.Now}
}

func (s *Sessions) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *Sessions) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.m[userID]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(ss.Touched) > s.ttl {
		delete(s.m, userID)
		return Session{}, false
	}
	return ss, true
}

func (s *Sessions) Set(userID int64, ss Session) {
	ss.Touched = s.now()
	s.mu.Lock()
	if ss.Step == StepNone {
		delete(s.m, userID)
	} else {
		s.m[userID] = ss
	}
	s.mu.Unlock()
}

// Clear drops the session and reports whether one was pending.
func (s *Sessions) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[userID]
	delete(s.m, userID)
	return ok
}

// Prune removes expired sessions.
func (s *Sessions) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ss := range s.m {
		if now.Sub(ss.Touched) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
