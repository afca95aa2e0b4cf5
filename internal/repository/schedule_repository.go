package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

// ScheduleRepository persists per-channel publish state. Every status
// change is guarded in SQL so a schedule only ever moves forward; the
// boolean results report whether the row actually moved.
type ScheduleRepository interface {
	Create(ctx context.Context, tx *sql.Tx, s *models.Schedule) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.Schedule, error)
	CountPublished(ctx context.Context, tx *sql.Tx, postID int64) (int, error)
	Transition(ctx context.Context, id int64, to string) (bool, error)
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time, attempts int) (bool, error)
	MarkFailed(ctx context.Context, id int64, message, kind string, attempts int) (bool, error)
	CancelByPostID(ctx context.Context, tx *sql.Tx, postID int64) (int64, error)
	MarkRemoved(ctx context.Context, id int64, at time.Time) error
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) Create(ctx context.Context, tx *sql.Tx, s *models.Schedule) (int64, error) {
	query := `
		INSERT INTO schedules (post_id, channel_id, scheduled_for, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	status := s.Status
	if status == "" {
		status = models.ScheduleStatusPending
	}

	var id int64
	if err := conn(r.db, tx).QueryRowContext(ctx, query, s.PostID, s.ChannelID, s.ScheduledFor, status).Scan(&id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

const scheduleColumns = `id, post_id, channel_id, scheduled_for, status, platform_post_id, platform_url,
	published_at, error, error_kind, attempts, removed_at, created_at, updated_at`

func scanSchedule(row scanner) (*models.Schedule, error) {
	var (
		s                      models.Schedule
		postID, url, msg, kind sql.NullString
	)
	err := row.Scan(&s.ID, &s.PostID, &s.ChannelID, &s.ScheduledFor, &s.Status, &postID, &url,
		&s.PublishedAt, &msg, &kind, &s.Attempts, &s.RemovedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.PlatformPostID, s.PlatformURL, s.Error, s.ErrorKind = postID.String, url.String, msg.String, kind.String
	return &s, nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return s, nil
}

func (r *scheduleRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE post_id = $1 ORDER BY id`, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) CountPublished(ctx context.Context, tx *sql.Tx, postID int64) (int, error) {
	var n int
	err := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schedules WHERE post_id = $1 AND status = $2`, postID, models.ScheduleStatusPublished).Scan(&n)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

// update applies set to the schedule only while its status is one that may
// move to the target status.
func (r *scheduleRepository) update(ctx context.Context, id int64, to, set string, args ...any) (int64, error) {
	if set != "" {
		set = ", " + set
	}
	query := `UPDATE schedules SET status = $2` + set + `, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = ANY($3)`
	result, err := r.db.ExecContext(ctx, query, append([]any{id, to, pq.Array(models.TransitionSources(to))}, args...)...)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}

func (r *scheduleRepository) Transition(ctx context.Context, id int64, to string) (bool, error) {
	n, err := r.update(ctx, id, to, "")
	return n == 1, err
}

func (r *scheduleRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	return r.Transition(ctx, id, models.ScheduleStatusPublishing)
}

func (r *scheduleRepository) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time, attempts int) (bool, error) {
	n, err := r.update(ctx, id, models.ScheduleStatusPublished,
		"platform_post_id = $4, platform_url = $5, published_at = $6, attempts = $7, error = NULL, error_kind = NULL",
		platformPostID, nullString(platformURL), publishedAt, attempts)
	return n == 1, err
}

func (r *scheduleRepository) MarkFailed(ctx context.Context, id int64, message, kind string, attempts int) (bool, error) {
	n, err := r.update(ctx, id, models.ScheduleStatusFailed,
		"error = $4, error_kind = $5, attempts = $6",
		message, nullString(kind), attempts)
	return n == 1, err
}

// CancelByPostID cancels every schedule of the post that has not started
// publishing and returns how many were cancelled.
func (r *scheduleRepository) CancelByPostID(ctx context.Context, tx *sql.Tx, postID int64) (int64, error) {
	query := `UPDATE schedules SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE post_id = $1 AND status = ANY($3)`
	result, err := conn(r.db, tx).ExecContext(ctx, query, postID, models.ScheduleStatusCancelled,
		pq.Array(models.TransitionSources(models.ScheduleStatusCancelled)))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func (r *scheduleRepository) MarkRemoved(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE schedules SET removed_at = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND status = $3`
	if _, err := r.db.ExecContext(ctx, query, id, at, models.ScheduleStatusPublished); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
