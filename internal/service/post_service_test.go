package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type postFixture struct {
	svc       *postService
	mock      sqlmock.Sqlmock
	posts     *fakePosts
	schedules *fakeSchedules
	bulk      *fakeBulk
	scheduler *fakeScheduler
	provider  *fakeProvider
}

func newPostFixture(t *testing.T, schedules ...*models.Schedule) *postFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	f := &postFixture{
		mock:      mock,
		posts:     &fakePosts{owner: map[int64]int64{}},
		schedules: newFakeSchedules(schedules...),
		bulk:      &fakeBulk{},
		scheduler: &fakeScheduler{enqueued: map[int64]time.Time{}},
		provider:  &fakeProvider{},
	}
	channels := newFakeChannels(
		&models.Channel{ID: 1, UserID: 1, Provider: "linkedin", Status: models.ChannelStatusActive},
		&models.Channel{ID: 2, UserID: 1, Provider: "instagram", Status: models.ChannelStatusActive},
		&models.Channel{ID: 3, UserID: 1, Provider: "twitter", Status: models.ChannelStatusReconnectRequired},
		&models.Channel{ID: 4, UserID: 2, Provider: "facebook", Status: models.ChannelStatusActive},
	)
	f.svc = NewPostService(db, f.posts, f.schedules, f.bulk, channels, &fakeFactory{p: f.provider}, f.scheduler).(*postService)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestCreatePost(t *testing.T) {
	f := newPostFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	later := testNow.Add(time.Hour)

	status, err := f.svc.Create(context.Background(), 1, &transfer.PostCreation{
		Content:      "Launch day",
		Hashtags:     []string{"#launch"},
		MediaURLs:    []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.mp4"},
		ChannelIDs:   []int64{1, 2, 1},
		ScheduledFor: &later,
	})
	require.NoError(t, err)

	assert.Equal(t, models.BulkStatusPending, status.Status)
	assert.Equal(t, 2, status.TotalPlatforms)
	require.Len(t, status.Schedules, 2)
	assert.Equal(t, "linkedin", status.Schedules[0].Provider)
	assert.Equal(t, models.ScheduleStatusQueued, status.Schedules[1].Status)

	assert.Equal(t, models.MediaTypeVideo, f.posts.created[0].MediaType)
	assert.Equal(t, later, f.scheduler.enqueued[status.PostID])
	assert.Equal(t, f.bulk.bulk.TaskID, f.scheduler.taskIDs[0])
	assert.Len(t, f.bulk.bulk.TaskID, 36)
}

func TestCreatePostPastScheduleRunsNow(t *testing.T) {
	f := newPostFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	past := testNow.Add(-time.Hour)

	status, err := f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x", ChannelIDs: []int64{1}, ScheduledFor: &past})
	require.NoError(t, err)
	assert.Equal(t, testNow, f.scheduler.enqueued[status.PostID])
	assert.Equal(t, models.MediaTypeNone, f.posts.created[0].MediaType)
}

func TestCreatePostRejectsChannels(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x", ChannelIDs: []int64{1, 3}})
	assert.ErrorIs(t, err, ErrChannelBlocked)

	_, err = f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x", ChannelIDs: []int64{4}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x", ChannelIDs: []int64{1}, MediaType: "gif"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreatePostQueueFailure(t *testing.T) {
	f := newPostFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.scheduler.err = errors.New("redis down")

	_, err := f.svc.Create(context.Background(), 1, &transfer.PostCreation{Content: "x", ChannelIDs: []int64{1}})
	require.Error(t, err)
	assert.Equal(t, []string{models.BulkStatusFailed}, f.bulk.statuses)
}

func TestUpdateContentOfPublishedPost(t *testing.T) {
	f := newPostFixture(t)
	f.posts.owner[5] = 1
	f.schedules.published = 1
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.UpdateContent(context.Background(), 1, 5, &transfer.ContentUpdate{Content: "edited"})
	assert.ErrorIs(t, err, ErrPostImmutable)
	assert.Empty(t, f.posts.updated)
}

func TestUpdateContentBeforePublishing(t *testing.T) {
	f := newPostFixture(t)
	f.posts.owner[5] = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.UpdateContent(context.Background(), 1, 5, &transfer.ContentUpdate{Content: "edited"}))
	assert.Equal(t, "edited", f.posts.updated)
}

func TestCancel(t *testing.T) {
	f := newPostFixture(t)
	f.posts.owner[5] = 1
	f.bulk.bulk = &models.BulkPost{ID: 9, PostID: 5, TaskID: "task-1", Status: models.BulkStatusPending}
	f.schedules.cancelled = 2
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Cancel(context.Background(), 1, 5))
	assert.Equal(t, []string{models.BulkStatusCancelled}, f.bulk.statuses)
	assert.Equal(t, []string{"task-1"}, f.scheduler.cancelled)
}

func TestCancelAfterCompletion(t *testing.T) {
	f := newPostFixture(t)
	f.posts.owner[5] = 1
	f.bulk.bulk = &models.BulkPost{ID: 9, PostID: 5, Status: models.BulkStatusPartial}

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), 1, 5), ErrNotCancellable)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), 2, 5), ErrNotFound)
}

func TestCancelWhenEverythingStarted(t *testing.T) {
	f := newPostFixture(t)
	f.posts.owner[5] = 1
	f.bulk.bulk = &models.BulkPost{ID: 9, PostID: 5, Status: models.BulkStatusPending}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), 1, 5), ErrNotCancellable)
	assert.Empty(t, f.scheduler.cancelled)
}

func TestAnalytics(t *testing.T) {
	f := newPostFixture(t,
		&models.Schedule{ID: 1, PostID: 5, ChannelID: 1, Status: models.ScheduleStatusPublished, PlatformPostID: "urn:li:share:1"},
		&models.Schedule{ID: 2, PostID: 5, ChannelID: 2, Status: models.ScheduleStatusFailed},
	)
	f.posts.owner[5] = 1
	likes := int64(4)
	f.provider.caps = provider.Capabilities{HasAnalytics: true}
	f.provider.analytics = &provider.Analytics{Likes: &likes}

	a, err := f.svc.Analytics(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), *a.Likes)

	_, err = f.svc.Analytics(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotPublished)

	f.provider.caps = provider.Capabilities{}
	a, err = f.svc.Analytics(context.Background(), 1, 1)
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestRemoveFromPlatform(t *testing.T) {
	f := newPostFixture(t,
		&models.Schedule{ID: 1, PostID: 5, ChannelID: 1, Status: models.ScheduleStatusPublished, PlatformPostID: "urn:li:share:1"},
	)
	f.posts.owner[5] = 1

	require.NoError(t, f.svc.RemoveFromPlatform(context.Background(), 1, 1))
	assert.Equal(t, []string{"urn:li:share:1"}, f.provider.deleted)
	assert.Equal(t, testNow, f.schedules.removed[1])

	f.provider.err = &provider.Error{Kind: provider.KindUnsupported}
	f.schedules.schedules[1].RemovedAt = nil
	err := f.svc.RemoveFromPlatform(context.Background(), 1, 1)
	assert.ErrorIs(t, err, provider.ErrUnsupportedOperation)
}

func TestStatus(t *testing.T) {
	f := newPostFixture(t,
		&models.Schedule{ID: 1, PostID: 5, ChannelID: 1, Status: models.ScheduleStatusPublished, PlatformURL: "https://www.linkedin.com/feed/update/1"},
		&models.Schedule{ID: 2, PostID: 5, ChannelID: 2, Status: models.ScheduleStatusFailed, Error: "timeout", ErrorKind: "media_timeout"},
	)
	f.posts.owner[5] = 1
	f.bulk.bulk = &models.BulkPost{ID: 9, PostID: 5, Status: models.BulkStatusPartial, TotalPlatforms: 2, SuccessCount: 1, FailedCount: 1,
		Summary: "published to 1 of 2 platforms; failed: Instagram (media processing timeout)"}

	st, err := f.svc.Status(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, models.BulkStatusPartial, st.Status)
	assert.Contains(t, st.Summary, "Instagram")
	require.Len(t, st.Schedules, 2)
	assert.Equal(t, "instagram", st.Schedules[1].Provider)
	assert.Equal(t, "media_timeout", st.Schedules[1].ErrorKind)
}
