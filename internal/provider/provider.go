// Package provider contains the per-platform publishing adapters and the
// factory that builds them from a stored channel.
//
// Every adapter implements Provider. Adapters are built per operation from
// a channel's credentials and keep no state across requests.
package provider

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type Provider interface {
	Name() Name
	Config() Config
	Capabilities() Capabilities

	// AuthorizationURL builds the consent URL embedding the opaque state.
	AuthorizationURL(state string) string
	HandleCallback(ctx context.Context, code, state string) (*Credentials, error)
	RefreshAccessToken(ctx context.Context) (*Credentials, error)
	TestConnection(ctx context.Context) ConnectionResult

	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
	// UpdatePost edits a live post where Capabilities().CanUpdate is set.
	// The publishing service does not call it: posts are immutable once a
	// schedule is published.
	UpdatePost(ctx context.Context, platformPostID, content string) error
	DeletePost(ctx context.Context, platformPostID string) error

	// PostAnalytics returns nil, nil when the platform or the granted
	// permissions cannot supply metrics for the post.
	PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error)
}

// Config is the static description of a platform integration.
type Config struct {
	Name        Name     `json:"name"`
	AuthURL     string   `json:"auth_url"`
	TokenURL    string   `json:"token_url"`
	APIBaseURL  string   `json:"api_base_url"`
	Scopes      []string `json:"scopes"`
	ClientID    string   `json:"client_id"`
	CallbackURL string   `json:"callback_url"`
	Limits      Limits   `json:"limits"`
}

// Limits are the hard constraints checked before any network call. Zero
// means no limit, except MaxVideos where a negative value means no limit.
type Limits struct {
	MaxTextLength  int  `json:"max_text_length"`
	MaxTitleLength int  `json:"max_title_length,omitempty"`
	MaxHashtags    int  `json:"max_hashtags,omitempty"`
	MaxMediaItems  int  `json:"max_media_items"`
	MaxVideos      int  `json:"max_videos"`
	MediaRequired  bool `json:"media_required"`
	VideoOnly      bool `json:"video_only"`
}

type Capabilities struct {
	CanRefresh    bool `json:"can_refresh"`
	CanUpdate     bool `json:"can_update"`
	CanDelete     bool `json:"can_delete"`
	HasAnalytics  bool `json:"has_analytics"`
	RequiresMedia bool `json:"requires_media"`
}

type PublishRequest struct {
	Content   string   `json:"content"`
	Title     string   `json:"title,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
}

// Caption joins the content and the ordered hashtags.
func (r *PublishRequest) Caption() string {
	text := strings.TrimSpace(r.Content)
	if len(r.Hashtags) == 0 {
		return text
	}
	tags := make([]string, 0, len(r.Hashtags))
	for _, tag := range r.Hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(tags, " ")
	}
	return text + "\n\n" + strings.Join(tags, " ")
}

// IsVideo reports whether the i-th media item is a video. A single item
// follows the post's explicit media type. In a multi-item post each URL is
// classified by its own extension, and the post's media type only settles
// URLs without a recognizable one when no other item accounts for it.
func (r *PublishRequest) IsVideo(i int) bool {
	if i < 0 || i >= len(r.MediaURLs) {
		return false
	}
	if len(r.MediaURLs) == 1 && (r.MediaType == models.MediaTypeVideo || r.MediaType == models.MediaTypeImage) {
		return r.MediaType == models.MediaTypeVideo
	}
	switch mediaKindOfURL(r.MediaURLs[i]) {
	case models.MediaTypeVideo:
		return true
	case models.MediaTypeImage:
		return false
	}
	if r.MediaType != models.MediaTypeVideo {
		return false
	}
	for j, raw := range r.MediaURLs {
		if j != i && mediaKindOfURL(raw) == models.MediaTypeVideo {
			return false
		}
	}
	return true
}

func (r *PublishRequest) videoCount() int {
	n := 0
	for i := range r.MediaURLs {
		if r.IsVideo(i) {
			n++
		}
	}
	return n
}

func (r *PublishRequest) resolvedMediaType() string {
	switch {
	case len(r.MediaURLs) == 0:
		return models.MediaTypeNone
	case r.videoCount() > 0:
		return models.MediaTypeVideo
	default:
		return models.MediaTypeImage
	}
}

// DetectMediaType derives a post's media type from its media URLs.
func DetectMediaType(urls []string) string {
	return (&PublishRequest{MediaURLs: urls}).resolvedMediaType()
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".m4v": {}, ".webm": {}, ".avi": {}, ".mkv": {},
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".heic": {},
}

// mediaKindOfURL classifies a URL by extension, empty when unknown.
func mediaKindOfURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := videoExtensions[ext]; ok {
		return models.MediaTypeVideo
	}
	if _, ok := imageExtensions[ext]; ok {
		return models.MediaTypeImage
	}
	return ""
}

type PublishResult struct {
	Success        bool     `json:"success"`
	PlatformPostID string   `json:"platform_post_id"`
	PlatformURL    string   `json:"platform_url,omitempty"`
	Permalink      string   `json:"permalink,omitempty"`
	Provider       Name     `json:"provider"`
	Content        string   `json:"content"`
	MediaURLs      []string `json:"media_urls,omitempty"`
	MediaType      string   `json:"media_type"`
}

// Credentials are returned to the caller for persistence; providers never
// write them to storage themselves.
type Credentials struct {
	AccessToken      string            `json:"-"`
	RefreshToken     string            `json:"-"`
	ExpiresIn        time.Duration     `json:"expires_in"` // zero means the token does not expire
	PlatformUserID   string            `json:"platform_user_id"`
	PlatformUsername string            `json:"platform_username,omitempty"`
	DisplayName      string            `json:"display_name"`
	ProfileURL       string            `json:"profile_url"`
	Avatar           string            `json:"avatar"`
	ProviderData     map[string]string `json:"provider_data,omitempty"`
}

// ExpiresAt converts ExpiresIn to an absolute time, nil for non-expiring tokens.
func (c *Credentials) ExpiresAt(now time.Time) *time.Time {
	if c == nil || c.ExpiresIn <= 0 {
		return nil
	}
	t := now.Add(c.ExpiresIn)
	return &t
}

// Analytics holds normalized post metrics. A nil field means the platform
// did not report the metric, which is different from zero.
type Analytics struct {
	Likes       *int64 `json:"likes"`
	Comments    *int64 `json:"comments"`
	Shares      *int64 `json:"shares"`
	Reach       *int64 `json:"reach"`
	Impressions *int64 `json:"impressions"`
}

func int64Ptr(v int64) *int64 { return &v }

type ConnectionStatus string

const (
	Reachable   ConnectionStatus = "reachable"
	Unreachable ConnectionStatus = "unreachable"
	Unknown     ConnectionStatus = "unknown"
)

// ConnectionResult is the outcome of a best-effort liveness probe.
// Unreachable means the platform rejected the credentials; Unknown means
// the probe itself could not complete.
type ConnectionResult struct {
	Status ConnectionStatus `json:"status"`
	Detail string           `json:"detail,omitempty"`
}
