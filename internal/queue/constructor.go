package queue

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type Queue struct {
	pr        repository.PostRepository
	sr        repository.ScheduleRepository
	br        repository.BulkPostRepository
	cr        repository.ChannelRepository
	publisher *publisher.Publisher
	now       func() time.Time
}

func NewQueue(
	pr repository.PostRepository,
	sr repository.ScheduleRepository,
	br repository.BulkPostRepository,
	cr repository.ChannelRepository,
	pub *publisher.Publisher) *Queue {
	return &Queue{
		pr:        pr,
		sr:        sr,
		br:        br,
		cr:        cr,
		publisher: pub,
		now:       time.Now,
	}
}

const TaskTypePublishBulkPost = "publish:bulk_post"

type BulkPostPayload struct {
	PostID int64 `json:"post_id"`
}
