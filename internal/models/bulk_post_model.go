package models

import "time"

type BulkPost struct {
	ID             int64     `db:"id" json:"id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	TaskID         string    `db:"task_id" json:"-"`
	Status         string    `db:"status" json:"status"`
	TotalPlatforms int       `db:"total_platforms" json:"total_platforms"`
	SuccessCount   int       `db:"success_count" json:"success_count"`
	FailedCount    int       `db:"failed_count" json:"failed_count"`
	Summary        string    `db:"summary" json:"summary"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

const (
	BulkStatusPending   = "pending"
	BulkStatusPartial   = "partial"
	BulkStatusCompleted = "completed"
	BulkStatusFailed    = "failed"
	BulkStatusCancelled = "cancelled"
)
