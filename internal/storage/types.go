package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: key already exists")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): database file at Path
//   - "postgres": server reachable through DSN
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means default
}

// ContentRecord is one row of the content table.
type ContentRecord struct {
	Code         string
	Channel      string
	BasePosition int
	PartCount    int
	Title        string
	Voice        string
	Genres       []string
	Status       string
	MediaRef     string
	UpdatedAt    time.Time
}

type ContentSummary struct {
	Code      string
	Title     string
	PartCount int
}

type StatField string

const (
	StatSearched StatField = "searched"
	StatViewed   StatField = "viewed"
)

type StatRecord struct {
	Code     string
	Searched int64
	Viewed   int64
}

// AnnouncementRef points at a message that published draw results.
type AnnouncementRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// ContestRecord is the singleton draw state.
type ContestRecord struct {
	Active        bool
	Cycle         int
	Winners       []int64
	Announcements []AnnouncementRef
	UpdatedAt     time.Time
}

type AdminRecord struct {
	UserID  int64
	AddedBy int64
	AddedAt time.Time
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	Action        string
	Target        string
	OK            int
	Fail          int
	Error         string
	TookMS        int64
	MetaJSON      string
}
