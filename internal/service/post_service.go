package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

// Scheduler hands bulk posts to the background worker.
type Scheduler interface {
	EnqueueBulkPost(ctx context.Context, postID int64, taskID string, at time.Time) error
	CancelBulkPost(ctx context.Context, taskID string) error
}

type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*transfer.BulkPostStatus, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	Status(ctx context.Context, userID, postID int64) (*transfer.BulkPostStatus, error)
	Cancel(ctx context.Context, userID, postID int64) error
	UpdateContent(ctx context.Context, userID, postID int64, cu *transfer.ContentUpdate) error
	Analytics(ctx context.Context, userID, scheduleID int64) (*provider.Analytics, error)
	RemoveFromPlatform(ctx context.Context, userID, scheduleID int64) error
}

type postService struct {
	db        *sql.DB
	pr        repository.PostRepository
	sr        repository.ScheduleRepository
	br        repository.BulkPostRepository
	cr        repository.ChannelRepository
	factory   ProviderFactory
	scheduler Scheduler
	now       func() time.Time
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	sr repository.ScheduleRepository,
	br repository.BulkPostRepository,
	cr repository.ChannelRepository,
	factory ProviderFactory,
	scheduler Scheduler) PostService {
	return &postService{
		db:        db,
		pr:        pr,
		sr:        sr,
		br:        br,
		cr:        cr,
		factory:   factory,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Create stores the post with one schedule per channel and queues a single
// bulk publish task for the scheduled time.
func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*transfer.BulkPostStatus, error) {
	if userID == 0 {
		return nil, invalid("user id is required")
	}
	if pc == nil {
		return nil, invalid("post creation data is missing")
	}
	if strings.TrimSpace(pc.Content) == "" && len(pc.MediaURLs) == 0 {
		return nil, invalid("post needs content or media")
	}

	channelIDs := uniqueIDs(pc.ChannelIDs)
	if len(channelIDs) == 0 {
		return nil, invalid("no channels selected")
	}
	channels, err := s.activeChannels(ctx, userID, channelIDs)
	if err != nil {
		return nil, err
	}

	mediaType := pc.MediaType
	switch mediaType {
	case "":
		mediaType = provider.DetectMediaType(pc.MediaURLs)
	case models.MediaTypeNone, models.MediaTypeImage, models.MediaTypeVideo:
	default:
		return nil, invalid("unknown media type %q", pc.MediaType)
	}

	at := s.now()
	if pc.ScheduledFor != nil && pc.ScheduledFor.After(at) {
		at = *pc.ScheduledFor
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	post := &models.Post{
		UserID:    userID,
		BrandID:   pc.BrandID,
		Title:     pc.Title,
		Content:   pc.Content,
		Hashtags:  pc.Hashtags,
		MediaURLs: pc.MediaURLs,
		MediaType: mediaType,
	}
	postID, err := s.pr.Create(ctx, tx, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	status := &transfer.BulkPostStatus{PostID: postID, Status: models.BulkStatusPending, TotalPlatforms: len(channels)}
	for _, ch := range channels {
		sc := &models.Schedule{PostID: postID, ChannelID: ch.ID, ScheduledFor: at, Status: models.ScheduleStatusQueued}
		id, err := s.sr.Create(ctx, tx, sc)
		if err != nil {
			return nil, fmt.Errorf("error creating schedule for channel %d: %w", ch.ID, err)
		}
		status.Schedules = append(status.Schedules, transfer.ScheduleStatus{
			ID: id, ChannelID: ch.ID, Provider: ch.Provider, Status: sc.Status, ScheduledFor: at,
		})
	}

	bulk := &models.BulkPost{
		PostID:         postID,
		UserID:         userID,
		TaskID:         uuid.NewString(),
		Status:         models.BulkStatusPending,
		TotalPlatforms: len(channels),
	}
	bulkID, err := s.br.Create(ctx, tx, bulk)
	if err != nil {
		return nil, fmt.Errorf("error creating bulk post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.scheduler.EnqueueBulkPost(ctx, postID, bulk.TaskID, at); err != nil {
		if serr := s.br.SetStatus(ctx, nil, bulkID, models.BulkStatusFailed); serr != nil {
			slog.Info(serr.Error())
		}
		return nil, fmt.Errorf("error queueing post %d: %w", postID, err)
	}
	slog.Info("post scheduled", "post_id", postID, "channels", len(channels), "at", at)
	return status, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	var out []int64
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *postService) activeChannels(ctx context.Context, userID int64, ids []int64) ([]*models.Channel, error) {
	channels, err := s.cr.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading channels: %w", err)
	}
	byID := make(map[int64]*models.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	out := make([]*models.Channel, 0, len(ids))
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok || ch.UserID != userID {
			return nil, fmt.Errorf("channel %d: %w", id, ErrNotFound)
		}
		if ch.Status != models.ChannelStatusActive {
			return nil, fmt.Errorf("channel %d is %s: %w", id, ch.Status, ErrChannelBlocked)
		}
		out = append(out, ch)
	}
	return out, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) checkPost(ctx context.Context, userID, postID int64) error {
	if userID == 0 || postID == 0 {
		return invalid("user id and post id are required")
	}
	ok, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return nil
}

func (s *postService) Status(ctx context.Context, userID, postID int64) (*transfer.BulkPostStatus, error) {
	if err := s.checkPost(ctx, userID, postID); err != nil {
		return nil, err
	}
	bulk, err := s.br.GetByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if bulk == nil {
		return nil, fmt.Errorf("bulk post for post %d: %w", postID, ErrNotFound)
	}
	schedules, err := s.sr.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(schedules))
	for _, sc := range schedules {
		ids = append(ids, sc.ChannelID)
	}
	channels, err := s.cr.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	providers := make(map[int64]string, len(channels))
	for _, ch := range channels {
		providers[ch.ID] = ch.Provider
	}

	status := &transfer.BulkPostStatus{
		PostID:         postID,
		Status:         bulk.Status,
		TotalPlatforms: bulk.TotalPlatforms,
		SuccessCount:   bulk.SuccessCount,
		FailedCount:    bulk.FailedCount,
		Summary:        bulk.Summary,
	}
	for _, sc := range schedules {
		status.Schedules = append(status.Schedules, transfer.ScheduleStatus{
			ID:             sc.ID,
			ChannelID:      sc.ChannelID,
			Provider:       providers[sc.ChannelID],
			Status:         sc.Status,
			ScheduledFor:   sc.ScheduledFor,
			PlatformPostID: sc.PlatformPostID,
			PlatformURL:    sc.PlatformURL,
			PublishedAt:    sc.PublishedAt,
			Error:          sc.Error,
			ErrorKind:      sc.ErrorKind,
			Attempts:       sc.Attempts,
			RemovedAt:      sc.RemovedAt,
		})
	}
	return status, nil
}

// Cancel stops every schedule of the post that has not started. Attempts
// already sent to a platform run to completion.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) error {
	if err := s.checkPost(ctx, userID, postID); err != nil {
		return err
	}
	bulk, err := s.br.GetByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if bulk == nil {
		return fmt.Errorf("bulk post for post %d: %w", postID, ErrNotFound)
	}
	if bulk.Status != models.BulkStatusPending {
		return fmt.Errorf("post %d is %s: %w", postID, bulk.Status, ErrNotCancellable)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.sr.CancelByPostID(ctx, tx, postID)
	if err != nil {
		return fmt.Errorf("error cancelling schedules: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("post %d has no pending schedules: %w", postID, ErrNotCancellable)
	}
	if err := s.br.SetStatus(ctx, tx, bulk.ID, models.BulkStatusCancelled); err != nil {
		return fmt.Errorf("error cancelling bulk post: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.scheduler.CancelBulkPost(ctx, bulk.TaskID); err != nil {
		slog.Info("queued task not removed, worker will skip cancelled schedules", "post_id", postID, "error", err.Error())
	}
	slog.Info("post cancelled", "post_id", postID, "schedules", n)
	return nil
}

func (s *postService) UpdateContent(ctx context.Context, userID, postID int64, cu *transfer.ContentUpdate) error {
	if err := s.checkPost(ctx, userID, postID); err != nil {
		return err
	}
	if cu == nil || strings.TrimSpace(cu.Content) == "" {
		return invalid("content is required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	published, err := s.sr.CountPublished(ctx, tx, postID)
	if err != nil {
		return err
	}
	if published > 0 {
		return ErrPostImmutable
	}
	if err := s.pr.UpdateContent(ctx, tx, postID, cu.Content, cu.Hashtags); err != nil {
		return fmt.Errorf("error updating post: %w", err)
	}
	return tx.Commit()
}

// publishedSchedule loads a schedule owned by the user that is live on its
// platform, with the adapter for its channel.
func (s *postService) publishedSchedule(ctx context.Context, userID, scheduleID int64) (*models.Schedule, provider.Provider, error) {
	sc, err := s.sr.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	if sc == nil {
		return nil, nil, fmt.Errorf("schedule %d: %w", scheduleID, ErrNotFound)
	}
	if err := s.checkPost(ctx, userID, sc.PostID); err != nil {
		return nil, nil, err
	}
	if sc.Status != models.ScheduleStatusPublished || sc.PlatformPostID == "" || sc.RemovedAt != nil {
		return nil, nil, fmt.Errorf("schedule %d is %s: %w", scheduleID, sc.Status, ErrNotPublished)
	}

	ch, err := s.cr.GetByID(ctx, sc.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, fmt.Errorf("channel %d: %w", sc.ChannelID, ErrNotFound)
	}
	p, err := s.factory.Provider(ch.Provider, ch)
	if err != nil {
		return nil, nil, err
	}
	return sc, p, nil
}

// Analytics returns nil metrics when the platform cannot report them.
func (s *postService) Analytics(ctx context.Context, userID, scheduleID int64) (*provider.Analytics, error) {
	sc, p, err := s.publishedSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, err
	}
	if !p.Capabilities().HasAnalytics {
		return nil, nil
	}
	return p.PostAnalytics(ctx, sc.PlatformPostID)
}

// RemoveFromPlatform deletes the published post on its platform. The
// schedule stays published and records when it was removed.
func (s *postService) RemoveFromPlatform(ctx context.Context, userID, scheduleID int64) error {
	sc, p, err := s.publishedSchedule(ctx, userID, scheduleID)
	if err != nil {
		return err
	}
	if err := p.DeletePost(ctx, sc.PlatformPostID); err != nil {
		return err
	}
	if err := s.sr.MarkRemoved(ctx, sc.ID, s.now()); err != nil {
		return fmt.Errorf("error recording removal: %w", err)
	}
	slog.Info("post removed from platform", "schedule_id", sc.ID, "provider", p.Name())
	return nil
}
