package models

import "time"

type Post struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	BrandID   int64     `db:"brand_id" json:"brand_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Hashtags  []string  `db:"hashtags" json:"hashtags"`
	MediaURLs []string  `db:"media_urls" json:"media_urls"`
	MediaType string    `db:"media_type" json:"media_type"` // none, image, video
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	MediaTypeNone  = "none"
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

type Schedule struct {
	ID             int64      `db:"id" json:"id"`
	PostID         int64      `db:"post_id" json:"post_id"`
	ChannelID      int64      `db:"channel_id" json:"channel_id"`
	ScheduledFor   time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Status         string     `db:"status" json:"status"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformURL    string     `db:"platform_url" json:"platform_url,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	Error          string     `db:"error" json:"error,omitempty"`
	ErrorKind      string     `db:"error_kind" json:"error_kind,omitempty"`
	Attempts       int        `db:"attempts" json:"attempts"`
	RemovedAt      *time.Time `db:"removed_at" json:"removed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	ScheduleStatusPending    = "pending"
	ScheduleStatusQueued     = "queued"
	ScheduleStatusPublishing = "publishing"
	ScheduleStatusPublished  = "published"
	ScheduleStatusFailed     = "failed"
	ScheduleStatusCancelled  = "cancelled"
)

var scheduleRank = map[string]int{
	ScheduleStatusPending:    0,
	ScheduleStatusQueued:     1,
	ScheduleStatusPublishing: 2,
	ScheduleStatusPublished:  3,
	ScheduleStatusFailed:     3,
	ScheduleStatusCancelled:  3,
}

// IsTerminal reports whether no further transition is allowed.
func IsTerminal(status string) bool {
	return status == ScheduleStatusPublished || status == ScheduleStatusFailed || status == ScheduleStatusCancelled
}

// CanTransition reports whether a schedule may move from one status to
// another. Schedules only move forward and terminal states are final.
// Cancellation is only possible before publishing starts.
func CanTransition(from, to string) bool {
	fr, ok := scheduleRank[from]
	if !ok {
		return false
	}
	tr, ok := scheduleRank[to]
	if !ok || IsTerminal(from) {
		return false
	}
	if to == ScheduleStatusCancelled {
		return from == ScheduleStatusPending || from == ScheduleStatusQueued
	}
	return tr > fr
}

// TransitionSources lists every status that may move to the given one.
func TransitionSources(to string) []string {
	var out []string
	for _, from := range []string{ScheduleStatusPending, ScheduleStatusQueued, ScheduleStatusPublishing} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
