package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
)

type fakeChannels struct {
	mu       sync.Mutex
	channels map[int64]*models.Channel
	nextID   int64
	tokens   map[int64]*models.Channel
}

func newFakeChannels(chs ...*models.Channel) *fakeChannels {
	f := &fakeChannels{channels: map[int64]*models.Channel{}, tokens: map[int64]*models.Channel{}, nextID: 100}
	for _, ch := range chs {
		f.channels[ch.ID] = ch
	}
	return f
}

func (f *fakeChannels) Upsert(ctx context.Context, tx *sql.Tx, ch *models.Channel) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := *ch
	c.ID = f.nextID
	f.channels[c.ID] = &c
	return c.ID, nil
}

func (f *fakeChannels) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[id], nil
}

func (f *fakeChannels) ListByUserID(ctx context.Context, userID int64) ([]*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Channel
	for _, ch := range f.channels {
		if ch.UserID == userID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) ListExpiring(ctx context.Context, before time.Time) ([]*models.Channel, error) {
	return nil, nil
}

func (f *fakeChannels) CheckByUserID(ctx context.Context, channelID, userID int64) (bool, error) {
	ch, _ := f.GetByID(ctx, channelID)
	return ch != nil && ch.UserID == userID, nil
}

func (f *fakeChannels) SetToken(ctx context.Context, id int64, oldAccessToken string, ch *models.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[id] = ch
	return nil
}

func (f *fakeChannels) SetStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id].Status = status
	return nil
}

type fakePosts struct {
	owner   map[int64]int64
	created []*models.Post
	updated string
}

func (f *fakePosts) Create(ctx context.Context, tx *sql.Tx, p *models.Post) (int64, error) {
	f.created = append(f.created, p)
	id := int64(len(f.created))
	f.owner[id] = p.UserID
	return id, nil
}

func (f *fakePosts) GetByID(ctx context.Context, id int64) (*models.Post, error) { return nil, nil }

func (f *fakePosts) ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return f.created, nil
}

func (f *fakePosts) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return f.owner[postID] == userID, nil
}

func (f *fakePosts) UpdateContent(ctx context.Context, tx *sql.Tx, id int64, content string, hashtags []string) error {
	f.updated = content
	return nil
}

type fakeSchedules struct {
	schedules map[int64]*models.Schedule
	published int
	cancelled int64
	removed   map[int64]time.Time
}

func newFakeSchedules(ss ...*models.Schedule) *fakeSchedules {
	f := &fakeSchedules{schedules: map[int64]*models.Schedule{}, removed: map[int64]time.Time{}}
	for _, s := range ss {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeSchedules) Create(ctx context.Context, tx *sql.Tx, s *models.Schedule) (int64, error) {
	id := int64(len(f.schedules) + 1)
	c := *s
	c.ID = id
	f.schedules[id] = &c
	return id, nil
}

func (f *fakeSchedules) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	return f.schedules[id], nil
}

func (f *fakeSchedules) ListByPostID(ctx context.Context, postID int64) ([]*models.Schedule, error) {
	var out []*models.Schedule
	for i := int64(1); i <= int64(len(f.schedules)); i++ {
		if s, ok := f.schedules[i]; ok && s.PostID == postID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) CountPublished(ctx context.Context, tx *sql.Tx, postID int64) (int, error) {
	return f.published, nil
}

func (f *fakeSchedules) Transition(ctx context.Context, id int64, to string) (bool, error) {
	return true, nil
}

func (f *fakeSchedules) MarkPublishing(ctx context.Context, id int64) (bool, error) { return true, nil }

func (f *fakeSchedules) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time, attempts int) (bool, error) {
	return true, nil
}

func (f *fakeSchedules) MarkFailed(ctx context.Context, id int64, message, kind string, attempts int) (bool, error) {
	return true, nil
}

func (f *fakeSchedules) CancelByPostID(ctx context.Context, tx *sql.Tx, postID int64) (int64, error) {
	return f.cancelled, nil
}

func (f *fakeSchedules) MarkRemoved(ctx context.Context, id int64, at time.Time) error {
	f.removed[id] = at
	return nil
}

type fakeBulk struct {
	bulk     *models.BulkPost
	statuses []string
}

func (f *fakeBulk) Create(ctx context.Context, tx *sql.Tx, b *models.BulkPost) (int64, error) {
	c := *b
	c.ID = 1
	f.bulk = &c
	return 1, nil
}

func (f *fakeBulk) GetByPostID(ctx context.Context, postID int64) (*models.BulkPost, error) {
	return f.bulk, nil
}

func (f *fakeBulk) SetStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeBulk) UpdateResult(ctx context.Context, b *models.BulkPost) error { return nil }

type fakeScheduler struct {
	enqueued  map[int64]time.Time
	taskIDs   []string
	cancelled []string
	err       error
}

func (f *fakeScheduler) EnqueueBulkPost(ctx context.Context, postID int64, taskID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued[postID] = at
	f.taskIDs = append(f.taskIDs, taskID)
	return nil
}

func (f *fakeScheduler) CancelBulkPost(ctx context.Context, taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

type fakeProvider struct {
	provider.Provider
	name      provider.Name
	caps      provider.Capabilities
	creds     *provider.Credentials
	err       error
	analytics *provider.Analytics
	deleted   []string
	state     string
}

func (p *fakeProvider) Name() provider.Name                 { return p.name }
func (p *fakeProvider) Capabilities() provider.Capabilities { return p.caps }
func (p *fakeProvider) Config() provider.Config {
	return provider.Config{Name: p.name, Scopes: []string{"scope"}}
}
func (p *fakeProvider) AuthorizationURL(state string) string {
	return "https://auth.example.com/?state=" + state
}
func (p *fakeProvider) TestConnection(ctx context.Context) provider.ConnectionResult {
	return provider.ConnectionResult{Status: provider.Reachable}
}

func (p *fakeProvider) HandleCallback(ctx context.Context, code, state string) (*provider.Credentials, error) {
	p.state = state
	return p.creds, p.err
}

func (p *fakeProvider) RefreshAccessToken(ctx context.Context) (*provider.Credentials, error) {
	return p.creds, p.err
}

func (p *fakeProvider) PostAnalytics(ctx context.Context, id string) (*provider.Analytics, error) {
	return p.analytics, p.err
}

func (p *fakeProvider) DeletePost(ctx context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

type fakeFactory struct {
	p *fakeProvider
}

func (f *fakeFactory) Provider(name string, ch *models.Channel) (provider.Provider, error) {
	n, err := provider.ParseName(name)
	if err != nil {
		return nil, err
	}
	f.p.name = n
	return f.p, nil
}

func (f *fakeFactory) SupportedProviders() []provider.Name {
	return []provider.Name{provider.LinkedIn, provider.YouTube}
}
