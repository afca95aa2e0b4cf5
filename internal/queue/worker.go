package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
	"github.com/maheshrc27/crosspost/internal/publisher"
)

func (q *Queue) HandleBulkPostTask(ctx context.Context, task *asynq.Task) error {
	var payload BulkPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	return q.PublishBulkPost(ctx, payload.PostID)
}

// PublishBulkPost publishes a post to every channel still queued for it
// and stores the aggregated result. Errors returned before publishing
// starts are safe to retry; once attempts run the task never fails so
// nothing gets posted twice.
func (q *Queue) PublishBulkPost(ctx context.Context, postID int64) error {
	post, err := q.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found: %w", postID, asynq.SkipRetry)
	}
	bulk, err := q.br.GetByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if bulk == nil {
		return fmt.Errorf("bulk post for post %d not found: %w", postID, asynq.SkipRetry)
	}
	if bulk.Status != models.BulkStatusPending {
		slog.Info("bulk post already handled", "post_id", postID, "status", bulk.Status)
		return nil
	}

	schedules, err := q.sr.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}
	var ids []int64
	for _, sc := range schedules {
		ids = append(ids, sc.ChannelID)
	}
	channels, err := q.cr.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[int64]*models.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	var (
		assignments []publisher.Assignment
		blocked     []publisher.Outcome
	)
	for _, sc := range schedules {
		if sc.Status == models.ScheduleStatusPublishing {
			// left behind by a run that stopped before recording a result
			o := q.interrupted(ctx, sc, byID[sc.ChannelID])
			blocked = append(blocked, o)
			continue
		}
		if sc.Status != models.ScheduleStatusQueued && sc.Status != models.ScheduleStatusPending {
			continue
		}
		a := publisher.Assignment{ScheduleID: sc.ID, Channel: byID[sc.ChannelID]}
		if a.Channel != nil && a.Channel.Status != models.ChannelStatusActive {
			o := publisher.Outcome{
				Assignment: a,
				Provider:   provider.Name(a.Channel.Provider),
				Status:     publisher.OutcomeFailed,
				Err:        fmt.Errorf("channel is %s", a.Channel.Status),
			}
			q.record(ctx, o)
			blocked = append(blocked, o)
			continue
		}
		assignments = append(assignments, a)
	}
	if len(assignments) == 0 && len(blocked) == 0 {
		slog.Info("no queued schedules", "post_id", postID)
		return nil
	}

	req := &provider.PublishRequest{
		Content:   post.Content,
		Title:     post.Title,
		Hashtags:  post.Hashtags,
		MediaURLs: post.MediaURLs,
		MediaType: post.MediaType,
	}
	report := q.publisher.Publish(ctx, req, assignments, publisher.Options{
		Cancelled: func() bool { return q.cancelled(ctx, postID) },
		OnStart: func(a publisher.Assignment) bool {
			ok, err := q.sr.MarkPublishing(ctx, a.ScheduleID)
			if err != nil {
				slog.Info(err.Error())
			}
			return ok
		},
		OnOutcome: func(o publisher.Outcome) { q.record(ctx, o) },
	})
	if len(blocked) > 0 {
		outcomes := append(blocked, report.Outcomes...)
		status, stats := publisher.Aggregate(outcomes)
		report = &publisher.Report{Status: status, Stats: stats, Outcomes: outcomes}
	}

	bulk.Status = report.Status
	bulk.TotalPlatforms = report.Stats.TotalPlatforms
	bulk.SuccessCount = report.Stats.SuccessCount
	bulk.FailedCount = report.Stats.FailedCount
	bulk.Summary = report.Summary()
	if err := q.br.UpdateResult(ctx, bulk); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error saving result of post %d: %v: %w", postID, err, asynq.SkipRetry)
	}

	slog.Info("bulk post finished", "post_id", postID, "status", bulk.Status, "summary", bulk.Summary)
	return nil
}

// errInterrupted marks a schedule whose attempt outlived its worker. The
// post may or may not be live, so it is failed rather than retried.
var errInterrupted = errors.New("publishing was interrupted; check the platform before publishing again")

const errorKindUnknown = "unknown"

func (q *Queue) interrupted(ctx context.Context, sc *models.Schedule, ch *models.Channel) publisher.Outcome {
	o := publisher.Outcome{
		Assignment: publisher.Assignment{ScheduleID: sc.ID, Channel: ch},
		Status:     publisher.OutcomeFailed,
		Attempts:   sc.Attempts,
		Err:        errInterrupted,
	}
	if ch != nil {
		o.Provider = provider.Name(ch.Provider)
	}
	ok, err := q.sr.MarkFailed(ctx, sc.ID, errInterrupted.Error(), errorKindUnknown, sc.Attempts)
	if err != nil {
		slog.Info(err.Error())
	} else if !ok {
		slog.Info("schedule status not updated", "schedule_id", sc.ID, "outcome", string(o.Status))
	}
	slog.Info("interrupted schedule failed", "schedule_id", sc.ID)
	return o
}

// cancelled reports whether the post was cancelled since the task started.
func (q *Queue) cancelled(ctx context.Context, postID int64) bool {
	bulk, err := q.br.GetByPostID(ctx, postID)
	if err != nil || bulk == nil {
		return false
	}
	return bulk.Status == models.BulkStatusCancelled
}

func (q *Queue) record(ctx context.Context, o publisher.Outcome) {
	id := o.Assignment.ScheduleID
	var (
		ok  bool
		err error
	)
	switch o.Status {
	case publisher.OutcomeSucceeded:
		ok, err = q.sr.MarkPublished(ctx, id, o.Result.PlatformPostID, o.Result.PlatformURL, q.now(), o.Attempts)
	case publisher.OutcomeFailed:
		ok, err = q.sr.MarkFailed(ctx, id, o.Err.Error(), o.ErrorKind(), o.Attempts)
	case publisher.OutcomeCancelled:
		ok, err = q.sr.Transition(ctx, id, models.ScheduleStatusCancelled)
	}
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !ok {
		slog.Info("schedule status not updated", "schedule_id", id, "outcome", string(o.Status))
	}
}
