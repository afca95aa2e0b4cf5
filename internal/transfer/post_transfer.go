package transfer

import "time"

type PostCreation struct {
	BrandID      int64      `json:"brand_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Hashtags     []string   `json:"hashtags"`
	MediaURLs    []string   `json:"media_urls"`
	MediaType    string     `json:"media_type"`
	ChannelIDs   []int64    `json:"channel_ids"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type ContentUpdate struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

type ScheduleStatus struct {
	ID             int64      `json:"id"`
	ChannelID      int64      `json:"channel_id"`
	Provider       string     `json:"provider"`
	Status         string     `json:"status"`
	ScheduledFor   time.Time  `json:"scheduled_for"`
	PlatformPostID string     `json:"platform_post_id,omitempty"`
	PlatformURL    string     `json:"platform_url,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Attempts       int        `json:"attempts"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
}

// BulkPostStatus is the pollable state of one fanned-out post.
type BulkPostStatus struct {
	PostID         int64            `json:"post_id"`
	Status         string           `json:"status"`
	TotalPlatforms int              `json:"total_platforms"`
	SuccessCount   int              `json:"success_count"`
	FailedCount    int              `json:"failed_count"`
	Summary        string           `json:"summary,omitempty"`
	Schedules      []ScheduleStatus `json:"schedules"`
}

type MediaUpload struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
	MIME      string `json:"mime"`
	Size      int    `json:"size"`
}
