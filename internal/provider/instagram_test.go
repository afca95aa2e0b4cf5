package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph is a minimal Instagram Graph API.
type fakeGraph struct {
	mu        sync.Mutex
	statuses  []string // returned in order by container status checks, last repeats
	checks    int
	created   []string // media url of each container create call, in order
	kinds     []string // IMAGE or the media_type of each create call
	children  string
	published []string
	inflight  atomic.Int32
	maxFlight atomic.Int32
	nextID    int
	insights  func(w http.ResponseWriter)
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	path := strings.TrimPrefix(r.URL.Path, "/v21.0")

	switch {
	case r.Method == http.MethodPost && path == "/ig-1/media":
		n := g.inflight.Add(1)
		for {
			m := g.maxFlight.Load()
			if n <= m || g.maxFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		g.inflight.Add(-1)

		g.mu.Lock()
		g.nextID++
		id := fmt.Sprintf("c%d", g.nextID)
		if r.FormValue("media_type") == "CAROUSEL" {
			g.children = r.FormValue("children")
		} else {
			g.created = append(g.created, r.FormValue("image_url")+r.FormValue("video_url"))
			switch {
			case r.FormValue("image_url") != "":
				g.kinds = append(g.kinds, "IMAGE")
			case r.FormValue("video_url") != "":
				g.kinds = append(g.kinds, r.FormValue("media_type"))
			}
		}
		g.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	case r.Method == http.MethodPost && path == "/ig-1/media_publish":
		g.mu.Lock()
		g.published = append(g.published, r.FormValue("creation_id"))
		g.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"id": "17890001"})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/insights"):
		g.insights(w)

	case r.Method == http.MethodGet && r.FormValue("fields") == "permalink":
		writeJSON(w, http.StatusOK, map[string]string{"id": "17890001", "permalink": "https://www.instagram.com/p/Cabc123/"})

	case r.Method == http.MethodGet && r.FormValue("fields") == "status_code,status":
		g.mu.Lock()
		st := g.statuses[len(g.statuses)-1]
		if g.checks < len(g.statuses) {
			st = g.statuses[g.checks]
		}
		g.checks++
		g.mu.Unlock()
		if st == "NOT_READY" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
				"message": "media not ready", "type": "OAuthException", "code": 9007,
			}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": strings.TrimPrefix(path, "/"), "status_code": st})

	default:
		http.NotFound(w, r)
	}
}

func igChannel(t *testing.T) map[string]string {
	return map[string]string{"igUserId": "ig-1", "pageId": "page-1"}
}

func TestInstagramPublishSingleImage(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	res, err := p.Publish(context.Background(), &PublishRequest{
		Content:   "Hello",
		Hashtags:  []string{"go"},
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "17890001", res.PlatformPostID)
	assert.Contains(t, res.PlatformURL, res.PlatformPostID)
	assert.Equal(t, "https://www.instagram.com/p/Cabc123/", res.Permalink)
	assert.Equal(t, "Hello\n\n#go", res.Content)
	assert.Equal(t, "image", res.MediaType)
	assert.Equal(t, 3, g.checks)
	assert.Equal(t, []string{"c1"}, g.published)
}

func TestInstagramPublishNotReadyIsRetried(t *testing.T) {
	g := &fakeGraph{statuses: []string{"NOT_READY", "IN_PROGRESS", "FINISHED"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	_, err := p.Publish(context.Background(), &PublishRequest{MediaURLs: []string{"https://cdn.example.com/a.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 3, g.checks)
}

func TestInstagramPublishTimeoutSkipsPublish(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	res, err := p.Publish(context.Background(), &PublishRequest{MediaURLs: []string{"https://cdn.example.com/a.mp4"}})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMediaTimeout)
	assert.Contains(t, err.Error(), "c1")
	assert.Empty(t, g.published)
	// Video budget is 5m at a 5s interval.
	assert.Equal(t, 61, g.checks)
}

func TestInstagramPublishContainerError(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS", "ERROR"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	_, err := p.Publish(context.Background(), &PublishRequest{MediaURLs: []string{"https://cdn.example.com/a.jpg"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMediaProcessing)
	assert.Empty(t, g.published)
}

func TestInstagramCarouselCreatesSequentially(t *testing.T) {
	g := &fakeGraph{statuses: []string{"FINISHED"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	urls := []string{
		"https://cdn.example.com/1.jpg",
		"https://cdn.example.com/2.jpg",
		"https://cdn.example.com/3.mp4",
	}
	res, err := p.Publish(context.Background(), &PublishRequest{Content: "carousel", MediaURLs: urls})
	require.NoError(t, err)

	assert.Equal(t, urls, g.created)
	assert.Equal(t, int32(1), g.maxFlight.Load())
	assert.Equal(t, "c1,c2,c3", g.children)
	assert.Equal(t, []string{"c4"}, g.published)
	// three children and the parent
	assert.Equal(t, 4, g.checks)
	assert.Equal(t, "video", res.MediaType)
}

func TestInstagramMixedCarouselKeepsItemTypes(t *testing.T) {
	g := &fakeGraph{statuses: []string{"FINISHED"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	urls := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.mp4"}
	res, err := p.Publish(context.Background(), &PublishRequest{
		Content:   "mixed",
		MediaURLs: urls,
		MediaType: DetectMediaType(urls),
	})
	require.NoError(t, err)

	assert.Equal(t, urls, g.created)
	assert.Equal(t, []string{"IMAGE", "VIDEO"}, g.kinds)
	assert.Equal(t, "video", res.MediaType)
}

func TestInstagramPublishHonorsCancelledContext(t *testing.T) {
	g := &fakeGraph{statuses: []string{"FINISHED"}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Publish(ctx, &PublishRequest{MediaURLs: []string{"https://cdn.example.com/a.jpg"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Empty(t, g.created)
	assert.Empty(t, g.published)
}

func TestInstagramAnalyticsPermissionDenied(t *testing.T) {
	g := &fakeGraph{insights: func(w http.ResponseWriter) {
		writeGraphError(w, http.StatusForbidden, 10, "Application does not have permission for this action")
	}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	a, err := p.PostAnalytics(context.Background(), "17890001")
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestInstagramAnalytics(t *testing.T) {
	g := &fakeGraph{insights: func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"name": "reach", "values": []map[string]any{{"value": 120}}},
			{"name": "likes", "values": []map[string]any{{"value": 0}}},
		}})
	}}
	env := newTestEnv(t, g)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	a, err := p.PostAnalytics(context.Background(), "17890001")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, int64(120), *a.Reach)
	assert.Equal(t, int64(0), *a.Likes)
	assert.Nil(t, a.Comments)
	assert.Nil(t, a.Impressions)
}

func TestInstagramUnsupportedOperations(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.provider(t, Instagram, testChannel(t, Instagram, igChannel(t)))

	assert.ErrorIs(t, p.UpdatePost(context.Background(), "1", "new"), ErrUnsupportedOperation)
	assert.ErrorIs(t, p.DeletePost(context.Background(), "1"), ErrUnsupportedOperation)
	_, err := p.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.False(t, IsRetryable(err))

	caps := p.Capabilities()
	assert.False(t, caps.CanUpdate)
	assert.False(t, caps.CanDelete)
	assert.True(t, caps.RequiresMedia)
	assert.Zero(t, env.calls())
}

// fakeFacebookLogin serves the token exchange and page discovery steps.
func fakeFacebookLogin(pages []map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/oauth/access_token":
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "short", "token_type": "bearer", "expires_in": 3600})
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/oauth/access_token":
			if r.FormValue("fb_exchange_token") != "short" {
				writeGraphError(w, http.StatusBadRequest, 100, "bad token")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "long", "token_type": "bearer", "expires_in": 5184000})
		case r.URL.Path == "/v21.0/me/accounts":
			writeJSON(w, http.StatusOK, map[string]any{"data": pages})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestInstagramHandleCallback(t *testing.T) {
	env := newTestEnv(t, fakeFacebookLogin([]map[string]any{
		{"id": "page-0", "name": "No IG", "access_token": "page-token-0"},
		{"id": "page-1", "name": "Shop", "access_token": "page-token-1", "instagram_business_account": map[string]any{
			"id": "ig-1", "username": "shop", "name": "The Shop", "profile_picture_url": "https://cdn.example.com/p.jpg",
		}},
	}))
	p := env.provider(t, Instagram, nil)

	creds, err := p.HandleCallback(context.Background(), "code-1", "state")
	require.NoError(t, err)
	assert.Equal(t, "page-token-1", creds.AccessToken)
	assert.Zero(t, creds.ExpiresIn)
	assert.Equal(t, "ig-1", creds.PlatformUserID)
	assert.Equal(t, "shop", creds.PlatformUsername)
	assert.Equal(t, "The Shop", creds.DisplayName)
	assert.Equal(t, "page-1", creds.ProviderData["pageId"])
	assert.Equal(t, "ig-1", creds.ProviderData["igUserId"])
}

func TestInstagramHandleCallbackNoPages(t *testing.T) {
	env := newTestEnv(t, fakeFacebookLogin([]map[string]any{}))
	p := env.provider(t, Instagram, nil)

	_, err := p.HandleCallback(context.Background(), "code-1", "state")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOAuth)
	pe, _ := AsError(err)
	assert.Equal(t, "no_facebook_pages", pe.Code)
	assert.NotEmpty(t, pe.Remediation)
}

func TestInstagramHandleCallbackNoBusinessAccount(t *testing.T) {
	env := newTestEnv(t, fakeFacebookLogin([]map[string]any{
		{"id": "page-0", "name": "Bakery", "access_token": "page-token-0"},
	}))
	p := env.provider(t, Instagram, nil)

	_, err := p.HandleCallback(context.Background(), "code-1", "state")
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindOAuth, pe.Kind)
	assert.Equal(t, "no_instagram_business_account", pe.Code)
	assert.Contains(t, pe.Message, "Bakery")
	assert.Contains(t, pe.Remediation, "Business or Creator")
}

func TestInstagramHandleCallbackSteps(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.provider(t, Instagram, nil)

	_, err := p.HandleCallback(context.Background(), "", "state")
	pe, _ := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, "missing_code", pe.Code)
	assert.Zero(t, env.calls())

	// token endpoint returns 404 from the default handler
	_, err = p.HandleCallback(context.Background(), "code", "state")
	pe, _ = AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, "token_exchange_failed", pe.Code)
}
