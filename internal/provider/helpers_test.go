package provider

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and fires immediately.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// rewriteTransport sends every request to the test server whatever host
// it was addressed to, and counts them.
type rewriteTransport struct {
	target *url.URL
	calls  atomic.Int64
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.calls.Add(1)
	r := req.Clone(req.Context())
	r.Header.Set("X-Original-Host", req.URL.Host)
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type testEnv struct {
	factory   *Factory
	transport *rewriteTransport
	clock     *fakeClock
}

func (e *testEnv) calls() int64 { return e.transport.calls.Load() }

func testConfig() config.Config {
	app := func(name string) config.OAuthApp {
		return config.OAuthApp{
			ClientID:     name + "-client",
			ClientSecret: name + "-secret",
			RedirectURI:  "https://app.example.com/api/channels/" + name + "/callback",
		}
	}
	return config.Config{
		LinkedIn:        app("linkedin"),
		Facebook:        app("facebook"),
		Instagram:       app("instagram"),
		Twitter:         app("twitter"),
		Google:          app("youtube"),
		WhatsApp:        app("whatsapp"),
		GraphAPIVersion: "v21.0",
		LinkedInVersion: "202401",
		SecretKey:       testSecret,
		Publishing: config.Publishing{
			ImagePollInterval: time.Second,
			ImagePollTimeout:  time.Minute,
			VideoPollInterval: 5 * time.Second,
			VideoPollTimeout:  5 * time.Minute,
			CarouselItemDelay: time.Millisecond,
		},
	}
}

func newTestEnv(t *testing.T, h http.Handler) *testEnv {
	t.Helper()
	if h == nil {
		h = http.NotFoundHandler()
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	rt := &rewriteTransport{target: target}
	clock := newFakeClock()

	f := NewFactory(testConfig(),
		WithHTTPClient(&http.Client{Transport: rt}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock),
	)
	return &testEnv{factory: f, transport: rt, clock: clock}
}

func (e *testEnv) provider(t *testing.T, name Name, ch *models.Channel) Provider {
	t.Helper()
	p, err := e.factory.Provider(string(name), ch)
	require.NoError(t, err)
	return p
}

func encrypt(t *testing.T, s string) string {
	t.Helper()
	out, err := utils.Encrypt([]byte(s), []byte(testSecret))
	require.NoError(t, err)
	return out
}

func testChannel(t *testing.T, name Name, data map[string]string) *models.Channel {
	t.Helper()
	return &models.Channel{
		ID:               7,
		Provider:         string(name),
		PlatformUserID:   "user-1",
		PlatformUsername: "someone",
		AccessToken:      encrypt(t, "access-token"),
		ProviderData:     data,
		Status:           models.ChannelStatusActive,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGraphError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message, "type": "OAuthException", "code": code},
	})
}
