package storage

import (
	"context"
	"errors"
	"strings"

	logx "kinobot/pkg/logx"
)

// Store is the persistence API used by the domain packages.
type Store interface {
	UpsertContent(ctx context.Context, rec ContentRecord) error
	GetContent(ctx context.Context, code string) (ContentRecord, bool, error)
	ListContent(ctx context.Context) ([]ContentSummary, error)
	CountContent(ctx context.Context) (int, error)
	// DeleteContent removes the entry and its counter; false when absent.
	DeleteContent(ctx context.Context, code string) (bool, error)
	// RenameContent returns ErrNotFound or ErrConflict.
	RenameContent(ctx context.Context, oldCode, newCode, newTitle string) error

	IncrementStat(ctx context.Context, code string, field StatField) error
	GetStat(ctx context.Context, code string) (StatRecord, bool, error)

	AddSubscriber(ctx context.Context, userID int64) (bool, error)
	CountSubscribers(ctx context.Context) (int, error)
	ListSubscribers(ctx context.Context) ([]int64, error)

	AddParticipant(ctx context.Context, userID int64) (bool, error)
	ListParticipants(ctx context.Context) ([]int64, error)
	ClearParticipants(ctx context.Context) error

	GetContest(ctx context.Context) (ContestRecord, error)
	// WithContest runs fn in a transaction holding the contest row lock.
	WithContest(ctx context.Context, fn func(tx ContestTx) error) error

	AddAdmin(ctx context.Context, rec AdminRecord) (bool, error)
	RemoveAdmin(ctx context.Context, userID int64) (bool, error)
	ListAdmins(ctx context.Context) ([]AdminRecord, error)

	AppendAudit(ctx context.Context, e AuditEntry) error

	Driver() string
	Ping(ctx context.Context) error
	Close() error
}

// ContestTx is the view of the store inside WithContest.
type ContestTx interface {
	Contest() (ContestRecord, error)
	Participants() ([]int64, error)
	Save(rec ContestRecord) error
	ClearParticipants() error
}

// Open initializes the configured store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
