package store

import (
	"context"

	"github.com/dcallahan11/resybot-open/internal/db"
)

// Repo provides CRUD over tasks, schedules, accounts and proxies. No
// transactional guarantees; callers tolerate reads racing writes.
type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const taskCols = `id,name,account_id,backup_account_id,restaurant_id,party_size,start_date,end_date,desired_time,flex_minutes,start_hour,end_hour,delay_ms,created_at,updated_at`

func (r *Repo) CreateTask(ctx context.Context, t Task) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO tasks(name,account_id,backup_account_id,restaurant_id,party_size,start_date,end_date,desired_time,flex_minutes,start_hour,end_hour,delay_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id`,
		t.Name, t.AccountID, t.BackupAccountID, t.RestaurantID, t.PartySize, t.StartDate, t.EndDate,
		t.DesiredTime, t.FlexMinutes, t.StartHour, t.EndHour, t.DelayMS,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetTask(ctx context.Context, id int64) (Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if err != nil {
		return Task{}, db.WrapNotFound(err)
	}
	return t, nil
}

func (r *Repo) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskCols+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteTask(ctx context.Context, id int64) error {
	return r.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
}

func scanTask(row db.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.Name, &t.AccountID, &t.BackupAccountID, &t.RestaurantID, &t.PartySize,
		&t.StartDate, &t.EndDate, &t.DesiredTime, &t.FlexMinutes, &t.StartHour, &t.EndHour,
		&t.DelayMS, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
