package job

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/robfig/cron"
)

const (
	refreshWindow      = 30 * time.Minute
	refreshLockTTL     = 2 * time.Minute
	refreshConcurrency = 10
	refreshSpec        = "@every 00h10m00s"
)

// TokenRefreshJob renews channel tokens shortly before they expire. A
// channel is refreshed by at most one goroutine and one instance at a time.
type TokenRefreshJob struct {
	cr       repository.ChannelRepository
	cs       service.ChannelService
	locker   Locker
	now      func() time.Time
	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewTokenRefreshJob(cr repository.ChannelRepository, cs service.ChannelService, locker Locker) *TokenRefreshJob {
	return &TokenRefreshJob{
		cr:       cr,
		cs:       cs,
		locker:   locker,
		now:      time.Now,
		inflight: make(map[int64]struct{}),
	}
}

// Schedule registers the job on c.
func (j *TokenRefreshJob) Schedule(c *cron.Cron) error {
	return c.AddFunc(refreshSpec, j.RefreshTokens)
}

func (j *TokenRefreshJob) RefreshTokens() {
	j.Run(context.Background())
}

func (j *TokenRefreshJob) Run(ctx context.Context) {
	channels, err := j.cr.ListExpiring(ctx, j.now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, refreshConcurrency)

	for _, ch := range channels {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(ch *models.Channel) {
			defer wg.Done()
			defer func() { <-semaphore }()
			j.refresh(ctx, ch)
		}(ch)
	}
	wg.Wait()
}

func (j *TokenRefreshJob) refresh(ctx context.Context, ch *models.Channel) {
	if !j.claim(ch.ID) {
		return
	}
	defer j.unclaim(ch.ID)

	release, ok, err := j.locker.Acquire(ctx, "token_refresh:"+strconv.FormatInt(ch.ID, 10), refreshLockTTL)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !ok {
		slog.Info("token refresh running elsewhere", "channel_id", ch.ID)
		return
	}
	defer release()

	// Another instance may have refreshed between listing and locking; its
	// rotated refresh token makes the listed copy stale.
	current, err := j.cr.GetByID(ctx, ch.ID)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !j.due(ch, current) {
		slog.Info("token already refreshed", "channel_id", ch.ID)
		return
	}

	if err := j.cs.RefreshToken(ctx, current); err != nil {
		slog.Info("unable to refresh token", "channel_id", ch.ID, "provider", ch.Provider, "error", err.Error())
		return
	}
	slog.Info("token refreshed", "channel_id", ch.ID, "provider", ch.Provider)
}

// due reports whether the stored channel still holds the listed token and
// that token still expires inside the refresh window.
func (j *TokenRefreshJob) due(listed, current *models.Channel) bool {
	if current == nil || current.Status != models.ChannelStatusActive {
		return false
	}
	if current.AccessToken != listed.AccessToken || current.TokenExpiresAt == nil {
		return false
	}
	return current.TokenExpiresAt.Before(j.now().Add(refreshWindow))
}

func (j *TokenRefreshJob) claim(id int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, busy := j.inflight[id]; busy {
		return false
	}
	j.inflight[id] = struct{}{}
	return true
}

func (j *TokenRefreshJob) unclaim(id int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.inflight, id)
}
