package storage

import (
	"context"
	"database/sql"
	"encoding/json"
)

const contestColumns = `active, cycle, winners, announcements, updated_at`

func (s *sqlStore) scanContest(row *sql.Row) (ContestRecord, error) {
	var (
		rec           ContestRecord
		active        int
		winners, anns string
		upd           int64
	)
	if err := row.Scan(&active, &rec.Cycle, &winners, &anns, &upd); err != nil {
		return ContestRecord{}, err
	}
	rec.Active = active != 0
	rec.UpdatedAt = fromMS(upd)
	if err := json.Unmarshal([]byte(winners), &rec.Winners); err != nil {
		return ContestRecord{}, err
	}
	if err := json.Unmarshal([]byte(anns), &rec.Announcements); err != nil {
		return ContestRecord{}, err
	}
	return rec, nil
}

func (s *sqlStore) GetContest(ctx context.Context) (ContestRecord, error) {
	return s.scanContest(s.queryRow(ctx, s.db, `SELECT `+contestColumns+` FROM contest WHERE id = 1`))
}

func (s *sqlStore) WithContest(ctx context.Context, fn func(tx ContestTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&contestTx{ctx: ctx, tx: tx, s: s})
	})
}

type contestTx struct {
	ctx context.Context
	tx  *sql.Tx
	s   *sqlStore
}

func (c *contestTx) Contest() (ContestRecord, error) {
	return c.s.scanContest(c.s.queryRow(c.ctx, c.tx, `SELECT `+contestColumns+` FROM contest WHERE id = 1`+c.s.d.lockRow))
}

func (c *contestTx) Participants() ([]int64, error) {
	return c.s.listUsers(c.ctx, c.tx, "participants")
}

func (c *contestTx) ClearParticipants() error {
	_, err := c.s.exec(c.ctx, c.tx, `DELETE FROM participants`)
	return err
}

func (c *contestTx) Save(rec ContestRecord) error {
	if rec.Winners == nil {
		rec.Winners = []int64{}
	}
	if rec.Announcements == nil {
		rec.Announcements = []AnnouncementRef{}
	}
	winners, err := json.Marshal(rec.Winners)
	if err != nil {
		return err
	}
	anns, err := json.Marshal(rec.Announcements)
	if err != nil {
		return err
	}
	active := 0
	if rec.Active {
		active = 1
	}
	_, err = c.s.exec(c.ctx, c.tx,
		`UPDATE contest SET active = ?, cycle = ?, winners = ?, announcements = ?, updated_at = ? WHERE id = 1`,
		active, rec.Cycle, string(winners), string(anns), nowMS(),
	)
	return err
}
