package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kinobot/internal/storage"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

// Registry is the data-access layer for content entries.
type Registry struct {
	st  storage.Store
	log logx.Logger
}

func NewRegistry(st storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{st: st, log: log.With(logx.Comp("catalog"))}
}

// MaxCodeLen bounds a code in bytes so "part:<code>:<k>" and
// "gate:check:<code>" stay within Telegram's callback_data limit.
const MaxCodeLen = 32

// NormalizeCode trims surrounding space; codes are otherwise opaque.
func NormalizeCode(code string) string { return strings.TrimSpace(code) }

func validate(e Entry) error {
	switch {
	case e.Code == "":
		return fmt.Errorf("%w: empty code", ErrInvalid)
	case strings.ContainsAny(e.Code, " \t\n"):
		return fmt.Errorf("%w: code %q contains whitespace", ErrInvalid, e.Code)
	case len(e.Code) > MaxCodeLen:
		return fmt.Errorf("%w: code longer than %d bytes", ErrInvalid, MaxCodeLen)
	case e.Channel == "":
		return fmt.Errorf("%w: empty channel", ErrInvalid)
	case e.PartCount < 0:
		return fmt.Errorf("%w: negative part count %d", ErrInvalid, e.PartCount)
	case e.BasePosition < 0:
		return fmt.Errorf("%w: negative base position %d", ErrInvalid, e.BasePosition)
	}
	return nil
}

// Upsert inserts or replaces every field of the entry. An existing counter
// is left intact.
func (r *Registry) Upsert(ctx context.Context, e Entry) error {
	e.Code = NormalizeCode(e.Code)
	if err := validate(e); err != nil {
		return err
	}
	if err := r.st.UpsertContent(ctx, toRecord(e)); err != nil {
		return fmt.Errorf("upsert %q: %w", e.Code, err)
	}
	r.log.Info("content registered",
		logx.String("code", e.Code),
		logx.String("channel", e.Channel.String()),
		logx.Int("base", e.BasePosition),
		logx.Int("parts", e.PartCount),
	)
	return nil
}

func (r *Registry) Get(ctx context.Context, code string) (Entry, bool, error) {
	rec, ok, err := r.st.GetContent(ctx, NormalizeCode(code))
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	return fromRecord(rec), true, nil
}

// List returns summaries in storage order; use SortSummaries for display.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.st.ListContent(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summary{Code: row.Code, Title: row.Title, PartCount: row.PartCount})
	}
	return out, nil
}

func (r *Registry) Count(ctx context.Context) (int, error) { return r.st.CountContent(ctx) }

// Delete removes the entry together with its counter. It reports false and
// changes nothing when the code is not registered.
func (r *Registry) Delete(ctx context.Context, code string) (bool, error) {
	code = NormalizeCode(code)
	ok, err := r.st.DeleteContent(ctx, code)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", code, err)
	}
	if ok {
		r.log.Info("content deleted", logx.String("code", code))
	}
	return ok, nil
}

// Rename moves an entry to newCode, keeping its counter. An empty newTitle
// keeps the current title.
func (r *Registry) Rename(ctx context.Context, oldCode, newCode, newTitle string) error {
	oldCode, newCode = NormalizeCode(oldCode), NormalizeCode(newCode)
	if newCode == "" || len(newCode) > MaxCodeLen || strings.ContainsAny(newCode, " \t\n") {
		return fmt.Errorf("%w: code %q", ErrInvalid, newCode)
	}
	err := r.st.RenameContent(ctx, oldCode, newCode, strings.TrimSpace(newTitle))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %q", ErrNotFound, oldCode)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %q", ErrConflict, newCode)
	case err != nil:
		return fmt.Errorf("rename %q: %w", oldCode, err)
	}
	r.log.Info("content renamed", logx.String("from", oldCode), logx.String("to", newCode))
	return nil
}

// Landing looks up code and resolves its landing post.
func (r *Registry) Landing(ctx context.Context, code string) (Entry, Target, error) {
	e, err := r.mustGet(ctx, code)
	if err != nil {
		return Entry{}, Target{}, err
	}
	t, err := ResolveLanding(e)
	return e, t, err
}

// Resolve looks up code and resolves part k.
func (r *Registry) Resolve(ctx context.Context, code string, part int) (Target, error) {
	e, err := r.mustGet(ctx, code)
	if err != nil {
		return Target{}, err
	}
	return ResolvePart(e, part)
}

func (r *Registry) mustGet(ctx context.Context, code string) (Entry, error) {
	e, ok, err := r.Get(ctx, code)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, NormalizeCode(code))
	}
	return e, nil
}

func toRecord(e Entry) storage.ContentRecord {
	return storage.ContentRecord{
		Code:         e.Code,
		Channel:      e.Channel.String(),
		BasePosition: e.BasePosition,
		PartCount:    e.PartCount,
		Title:        e.Title,
		Voice:        e.Voice,
		Genres:       e.Genres,
		Status:       e.Status,
		MediaRef:     e.MediaRef,
	}
}

func fromRecord(rec storage.ContentRecord) Entry {
	return Entry{
		Code:         rec.Code,
		Channel:      transport.Channel(rec.Channel),
		BasePosition: rec.BasePosition,
		PartCount:    rec.PartCount,
		Title:        rec.Title,
		Voice:        rec.Voice,
		Genres:       rec.Genres,
		Status:       rec.Status,
		MediaRef:     rec.MediaRef,
		UpdatedAt:    rec.UpdatedAt,
	}
}
