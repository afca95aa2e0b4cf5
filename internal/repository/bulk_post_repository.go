package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

type BulkPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, b *models.BulkPost) (int64, error)
	GetByPostID(ctx context.Context, postID int64) (*models.BulkPost, error)
	SetStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error
	UpdateResult(ctx context.Context, b *models.BulkPost) error
}

type bulkPostRepository struct {
	db *sql.DB
}

func NewBulkPostRepository(db *sql.DB) BulkPostRepository {
	return &bulkPostRepository{db: db}
}

func (r *bulkPostRepository) Create(ctx context.Context, tx *sql.Tx, b *models.BulkPost) (int64, error) {
	query := `
		INSERT INTO bulk_posts (post_id, user_id, task_id, status, total_platforms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := conn(r.db, tx).QueryRowContext(ctx, query, b.PostID, b.UserID, b.TaskID, b.Status, b.TotalPlatforms).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *bulkPostRepository) GetByPostID(ctx context.Context, postID int64) (*models.BulkPost, error) {
	query := `SELECT id, post_id, user_id, task_id, status, total_platforms, success_count, failed_count, summary, created_at, updated_at
		FROM bulk_posts WHERE post_id = $1`

	var b models.BulkPost
	err := r.db.QueryRowContext(ctx, query, postID).Scan(&b.ID, &b.PostID, &b.UserID, &b.TaskID, &b.Status,
		&b.TotalPlatforms, &b.SuccessCount, &b.FailedCount, &b.Summary, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &b, nil
}

func (r *bulkPostRepository) SetStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	query := `UPDATE bulk_posts SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := conn(r.db, tx).ExecContext(ctx, query, id, status); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// UpdateResult stores the aggregate of a finished run.
func (r *bulkPostRepository) UpdateResult(ctx context.Context, b *models.BulkPost) error {
	query := `
		UPDATE bulk_posts
		SET status = $2, total_platforms = $3, success_count = $4, failed_count = $5, summary = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, b.ID, b.Status, b.TotalPlatforms, b.SuccessCount, b.FailedCount, b.Summary); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
