package store

import (
	"context"

	"github.com/dcallahan11/resybot-open/internal/db"
)

const scheduleCols = `id,task_id,kind,run_at,time_of_day,day_of_week,duration_sec,enabled,created_at`

func (r *Repo) CreateSchedule(ctx context.Context, s Schedule) (int64, error) {
	var id int64
	// time_of_day is stored as NULL for once schedules to keep the
	// kind invariant visible in the table itself.
	var tod *string
	if s.TimeOfDay != "" {
		tod = &s.TimeOfDay
	}
	err := r.db.QueryRow(ctx, `
INSERT INTO schedules(task_id,kind,run_at,time_of_day,day_of_week,duration_sec,enabled)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`,
		s.TaskID, string(s.Kind), s.RunAt, tod, s.DayOfWeek, s.DurationSec, s.Enabled,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=$1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		return Schedule{}, db.WrapNotFound(err)
	}
	return s, nil
}

func (r *Repo) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleCols+` FROM schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteSchedule(ctx context.Context, id int64) error {
	return r.db.Exec(ctx, `DELETE FROM schedules WHERE id=$1`, id)
}

func (r *Repo) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.db.Exec(ctx, `UPDATE schedules SET enabled=$2 WHERE id=$1`, id, enabled)
}

func scanSchedule(row db.Row) (Schedule, error) {
	var s Schedule
	var kind string
	var tod *string
	err := row.Scan(&s.ID, &s.TaskID, &kind, &s.RunAt, &tod, &s.DayOfWeek, &s.DurationSec, &s.Enabled, &s.CreatedAt)
	if err != nil {
		return Schedule{}, err
	}
	s.Kind = ScheduleKind(kind)
	if tod != nil {
		s.TimeOfDay = *tod
	}
	return s, nil
}
