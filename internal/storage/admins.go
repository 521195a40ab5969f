package storage

import (
	"context"
	"strings"
	"time"
)

func (s *sqlStore) AddAdmin(ctx context.Context, rec AdminRecord) (bool, error) {
	at := rec.AddedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.exec(ctx, s.db,
		`INSERT INTO admins(user_id, added_by, added_at) VALUES(?,?,?) ON CONFLICT(user_id) DO NOTHING`,
		rec.UserID, rec.AddedBy, at.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) RemoveAdmin(ctx context.Context, userID int64) (bool, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) ListAdmins(ctx context.Context) ([]AdminRecord, error) {
	rows, err := s.query(ctx, s.db, `SELECT user_id, added_by, added_at FROM admins ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AdminRecord
	for rows.Next() {
		var (
			rec AdminRecord
			at  int64
		)
		if err := rows.Scan(&rec.UserID, &rec.AddedBy, &at); err != nil {
			return nil, err
		}
		rec.AddedAt = fromMS(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
