package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacebookPublishMultiplePhotos(t *testing.T) {
	var (
		staged   []string
		attached []map[string]string
	)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/v21.0/page-1/photos":
			assert.Equal(t, "false", r.FormValue("published"))
			staged = append(staged, r.FormValue("url"))
			writeJSON(w, http.StatusOK, map[string]string{"id": "photo-" + string(rune('0'+len(staged)))})
		case "/v21.0/page-1/feed":
			assert.Equal(t, "Album", r.FormValue("message"))
			_ = json.Unmarshal([]byte(r.FormValue("attached_media")), &attached)
			writeJSON(w, http.StatusOK, map[string]string{"id": "page-1_99"})
		default:
			http.NotFound(w, r)
		}
	}))
	p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))

	res, err := p.Publish(context.Background(), &PublishRequest{
		Content:   "Album",
		MediaURLs: []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1_99", res.PlatformPostID)
	assert.Equal(t, "https://www.facebook.com/page-1_99", res.PlatformURL)
	assert.Len(t, staged, 2)
	assert.Equal(t, []map[string]string{{"media_fbid": "photo-1"}, {"media_fbid": "photo-2"}}, attached)
}

func TestFacebookPublishTextOnly(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v21.0/page-1/feed" {
			writeJSON(w, http.StatusOK, map[string]string{"id": "page-1_1"})
			return
		}
		http.NotFound(w, r)
	}))
	p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))

	res, err := p.Publish(context.Background(), &PublishRequest{Content: "just words"})
	require.NoError(t, err)
	assert.Equal(t, "none", res.MediaType)
}

func TestFacebookPublishVideo(t *testing.T) {
	var form map[string]string
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Method == http.MethodPost && r.URL.Path == "/v21.0/page-1/videos" {
			form = map[string]string{
				"file_url":    r.FormValue("file_url"),
				"description": r.FormValue("description"),
				"title":       r.FormValue("title"),
			}
			writeJSON(w, http.StatusOK, map[string]string{"id": "video-1"})
			return
		}
		http.NotFound(w, r)
	}))
	p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))

	res, err := p.Publish(context.Background(), &PublishRequest{
		Content:   "Behind the scenes",
		Title:     "Bakery tour",
		Hashtags:  []string{"bread"},
		MediaURLs: []string{"https://cdn.example.com/tour.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "video-1", res.PlatformPostID)
	assert.Equal(t, "https://www.facebook.com/video-1", res.PlatformURL)
	assert.Equal(t, "video", res.MediaType)
	assert.Equal(t, map[string]string{
		"file_url":    "https://cdn.example.com/tour.mp4",
		"description": "Behind the scenes\n\n#bread",
		"title":       "Bakery tour",
	}, form)
}

func TestFacebookUpdateAndDelete(t *testing.T) {
	var calls []string
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.URL.Path != "/v21.0/page-1_99" {
			http.NotFound(w, r)
			return
		}
		// the Graph client tunnels DELETE through POST with a method field
		calls = append(calls, r.Method+" "+r.FormValue("method")+"|"+r.FormValue("message"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}))
	p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))
	require.True(t, p.Capabilities().CanUpdate)

	require.NoError(t, p.UpdatePost(context.Background(), "page-1_99", "fixed typo"))
	require.NoError(t, p.DeletePost(context.Background(), "page-1_99"))
	assert.Equal(t, []string{"POST |fixed typo", "POST DELETE|"}, calls)
}

func TestFacebookGraphErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		kind Kind
	}{
		{4, KindTransient},
		{190, KindOAuth},
		{200, KindPlatform},
		{100, KindPlatform},
	}
	for _, tc := range cases {
		env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeGraphError(w, http.StatusBadRequest, tc.code, "graph says no")
		}))
		p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))

		_, err := p.Publish(context.Background(), &PublishRequest{Content: "x"})
		require.Error(t, err)
		assert.Equal(t, tc.kind, KindOf(err), tc.code)
		assert.Contains(t, err.Error(), "facebook: ")
		assert.Contains(t, err.Error(), "graph says no")
	}
}

func TestFacebookAnalytics(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/post-1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":       "post-1",
				"likes":    map[string]any{"data": []any{}, "summary": map[string]any{"total_count": 7}},
				"comments": map[string]any{"data": []any{}, "summary": map[string]any{"total_count": 1}},
			})
		case "/v21.0/post-1/insights":
			writeGraphError(w, http.StatusBadRequest, 200, "requires read_insights")
		case "/v21.0/post-2":
			writeGraphError(w, http.StatusBadRequest, 10, "no permission")
		default:
			http.NotFound(w, r)
		}
	}))
	p := env.provider(t, Facebook, testChannel(t, Facebook, map[string]string{"pageId": "page-1"}))

	a, err := p.PostAnalytics(context.Background(), "post-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), *a.Likes)
	assert.Equal(t, int64(1), *a.Comments)
	assert.Equal(t, int64(0), *a.Shares)
	assert.Nil(t, a.Reach)
	assert.Nil(t, a.Impressions)

	a, err = p.PostAnalytics(context.Background(), "post-2")
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestFacebookHandleCallbackUsesPageToken(t *testing.T) {
	env := newTestEnv(t, fakeFacebookLogin([]map[string]any{
		{"id": "page-1", "name": "Bakery", "access_token": "page-token", "link": "https://www.facebook.com/bakery",
			"picture": map[string]any{"data": map[string]any{"url": "https://cdn.example.com/p.png"}}},
	}))
	p := env.provider(t, Facebook, nil)

	creds, err := p.HandleCallback(context.Background(), "code", "state")
	require.NoError(t, err)
	assert.Equal(t, "page-token", creds.AccessToken)
	assert.Zero(t, creds.ExpiresIn)
	assert.Equal(t, "page-1", creds.PlatformUserID)
	assert.Equal(t, "https://www.facebook.com/bakery", creds.ProfileURL)
	assert.Equal(t, "https://cdn.example.com/p.png", creds.Avatar)

	_, err = p.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}
