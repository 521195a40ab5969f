package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	logx "kinobot/pkg/logx"
)

type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func (s *sqlStore) Driver() string { return s.d.name }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqlStore) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q execer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, q execer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.d.rebind(query), args...)
}

// inTx runs fn in a transaction, committing only when fn returns nil.
func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowMS() int64 { return time.Now().UnixMilli() }

func fromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func joinGenres(g []string) string {
	out := make([]string, 0, len(g))
	for _, v := range g {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ",")
}

func splitGenres(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// ---- content ----

func (s *sqlStore) UpsertContent(ctx context.Context, rec ContentRecord) error {
	if rec.Code == "" {
		return errors.New("storage: empty content code")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx,
			`INSERT INTO content(code, channel, base_position, part_count, title, voice, genres, status, media_ref, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(code) DO UPDATE SET
			   channel=excluded.channel, base_position=excluded.base_position, part_count=excluded.part_count,
			   title=excluded.title, voice=excluded.voice, genres=excluded.genres, status=excluded.status,
			   media_ref=excluded.media_ref, updated_at=excluded.updated_at`,
			rec.Code, rec.Channel, rec.BasePosition, rec.PartCount, rec.Title, rec.Voice,
			joinGenres(rec.Genres), rec.Status, rec.MediaRef, nowMS(),
		)
		if err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, `INSERT INTO stats(code, searched, viewed) VALUES(?,0,0) ON CONFLICT(code) DO NOTHING`, rec.Code)
		return err
	})
}

func (s *sqlStore) GetContent(ctx context.Context, code string) (ContentRecord, bool, error) {
	var (
		rec    ContentRecord
		genres string
		upd    int64
	)
	err := s.queryRow(ctx, s.db,
		`SELECT code, channel, base_position, part_count, title, voice, genres, status, media_ref, updated_at
		 FROM content WHERE code = ?`, code,
	).Scan(&rec.Code, &rec.Channel, &rec.BasePosition, &rec.PartCount, &rec.Title, &rec.Voice, &genres, &rec.Status, &rec.MediaRef, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentRecord{}, false, nil
	}
	if err != nil {
		return ContentRecord{}, false, err
	}
	rec.Genres = splitGenres(genres)
	rec.UpdatedAt = fromMS(upd)
	return rec, true, nil
}

func (s *sqlStore) ListContent(ctx context.Context) ([]ContentSummary, error) {
	rows, err := s.query(ctx, s.db, `SELECT code, title, part_count FROM content`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentSummary
	for rows.Next() {
		var cs ContentSummary
		if err := rows.Scan(&cs.Code, &cs.Title, &cs.PartCount); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *sqlStore) CountContent(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM content`).Scan(&n)
	return n, err
}

func (s *sqlStore) DeleteContent(ctx context.Context, code string) (bool, error) {
	deleted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `DELETE FROM content WHERE code = ?`, code)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Leave any transient counter untouched.
			return nil
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM stats WHERE code = ?`, code); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *sqlStore) RenameContent(ctx context.Context, oldCode, newCode, newTitle string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := s.queryRow(ctx, tx, `SELECT 1 FROM content WHERE code = ?`+s.d.lockRow, oldCode).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if oldCode != newCode {
			err = s.queryRow(ctx, tx, `SELECT 1 FROM content WHERE code = ?`, newCode).Scan(&one)
			switch {
			case err == nil:
				return ErrConflict
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
			// A counter under newCode without an entry is transient; drop it.
			if _, err := s.exec(ctx, tx, `DELETE FROM stats WHERE code = ?`, newCode); err != nil {
				return err
			}
		}

		if _, err := s.exec(ctx, tx,
			`UPDATE content SET code = ?, title = COALESCE(NULLIF(?, ''), title), updated_at = ? WHERE code = ?`,
			newCode, newTitle, nowMS(), oldCode,
		); err != nil {
			return err
		}
		if oldCode == newCode {
			return nil
		}
		res, err := s.exec(ctx, tx, `UPDATE stats SET code = ? WHERE code = ?`, newCode, oldCode)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = s.exec(ctx, tx, `INSERT INTO stats(code, searched, viewed) VALUES(?,0,0)`, newCode)
		}
		return err
	})
}

// ---- stats ----

func (s *sqlStore) IncrementStat(ctx context.Context, code string, field StatField) error {
	var searched, viewed int
	switch field {
	case StatSearched:
		searched = 1
	case StatViewed:
		viewed = 1
	default:
		return errors.New("storage: unknown stat field " + string(field))
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO stats(code, searched, viewed) VALUES(?,?,?)
		 ON CONFLICT(code) DO UPDATE SET searched = stats.searched + excluded.searched, viewed = stats.viewed + excluded.viewed`,
		code, searched, viewed,
	)
	return err
}

func (s *sqlStore) GetStat(ctx context.Context, code string) (StatRecord, bool, error) {
	rec := StatRecord{Code: code}
	err := s.queryRow(ctx, s.db, `SELECT searched, viewed FROM stats WHERE code = ?`, code).Scan(&rec.Searched, &rec.Viewed)
	if errors.Is(err, sql.ErrNoRows) {
		return StatRecord{}, false, nil
	}
	if err != nil {
		return StatRecord{}, false, err
	}
	return rec, true, nil
}

// ---- subscribers / participants ----

func (s *sqlStore) insertUser(ctx context.Context, q execer, table, col string, userID int64) (bool, error) {
	res, err := s.exec(ctx, q,
		`INSERT INTO `+table+`(user_id, `+col+`) VALUES(?,?) ON CONFLICT(user_id) DO NOTHING`,
		userID, nowMS(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) listUsers(ctx context.Context, q execer, table string) ([]int64, error) {
	rows, err := s.query(ctx, q, `SELECT user_id FROM `+table+` ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddSubscriber(ctx context.Context, userID int64) (bool, error) {
	return s.insertUser(ctx, s.db, "subscribers", "first_seen", userID)
}

func (s *sqlStore) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}

func (s *sqlStore) ListSubscribers(ctx context.Context) ([]int64, error) {
	return s.listUsers(ctx, s.db, "subscribers")
}

func (s *sqlStore) AddParticipant(ctx context.Context, userID int64) (bool, error) {
	return s.insertUser(ctx, s.db, "participants", "joined_at", userID)
}

func (s *sqlStore) ListParticipants(ctx context.Context) ([]int64, error) {
	return s.listUsers(ctx, s.db, "participants")
}

func (s *sqlStore) ClearParticipants(ctx context.Context) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM participants`)
	return err
}
