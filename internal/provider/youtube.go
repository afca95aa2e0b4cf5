package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	config "github.com/maheshrc27/crosspost/configs"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var youtubeLimits = Limits{
	MaxTextLength:  5000,
	MaxTitleLength: 100,
	MaxVideos:      -1,
	MediaRequired:  true,
	VideoOnly:      true,
}

type youtube struct {
	client
	oauth *oauth2.Config
}

func newYouTube(c client, cfg config.Config) *youtube {
	return &youtube{
		client: c,
		oauth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURI,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				yt.YoutubeUploadScope,
				yt.YoutubeScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

func (p *youtube) Name() Name { return YouTube }

func (p *youtube) Config() Config {
	return Config{
		Name:        YouTube,
		AuthURL:     p.oauth.Endpoint.AuthURL,
		TokenURL:    p.oauth.Endpoint.TokenURL,
		APIBaseURL:  "https://youtube.googleapis.com/youtube/v3",
		Scopes:      p.oauth.Scopes,
		ClientID:    p.oauth.ClientID,
		CallbackURL: p.oauth.RedirectURL,
		Limits:      youtubeLimits,
	}
}

func (p *youtube) Capabilities() Capabilities {
	return Capabilities{CanRefresh: true, CanUpdate: true, CanDelete: true, HasAnalytics: true, RequiresMedia: true}
}

// AuthorizationURL forces the consent prompt so Google issues a refresh
// token on every connect.
func (p *youtube) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (p *youtube) service(ctx context.Context, tok *oauth2.Token) (*yt.Service, error) {
	httpClient := oauth2.NewClient(p.oauthContext(ctx), oauth2.StaticTokenSource(tok))
	svc, err := yt.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, &Error{Kind: KindPlatform, Provider: YouTube, Op: "client", Code: "client_init_failed", Message: "error creating YouTube client", Err: err}
	}
	return svc, nil
}

func (p *youtube) channelService(ctx context.Context) (*yt.Service, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, err
	}
	return p.service(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func (p *youtube) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	if code == "" {
		return nil, p.logError("exchange_code", oauthError(YouTube, "missing_code", "authorization code is empty", nil))
	}
	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code)
	if err != nil {
		return nil, p.logError("exchange_code", p.exchangeError("token_exchange_failed", "failed to exchange authorization code", err))
	}
	if tok.RefreshToken == "" {
		e := oauthError(YouTube, "refresh_token_missing", "Google did not issue a refresh token", nil)
		e.Remediation = strings.Join([]string{
			"1. Open https://myaccount.google.com/permissions and remove access for this app.",
			"2. Connect the YouTube channel again and approve offline access.",
		}, "\n")
		return nil, p.logError("exchange_code", e)
	}

	svc, err := p.service(ctx, tok)
	if err != nil {
		return nil, p.logError("channel_discovery", err)
	}
	res, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		e := p.apiError("channel_discovery", err)
		if e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "channel_discovery_failed"
			e.Message = "failed to list YouTube channels for the account"
		}
		return nil, p.logError("channel_discovery", e)
	}
	if len(res.Items) == 0 {
		e := oauthError(YouTube, "no_youtube_channel", "the Google account has no YouTube channel", nil)
		e.Remediation = strings.Join([]string{
			"1. Sign in to https://www.youtube.com with the same Google account and create a channel.",
			"2. If the channel belongs to a Brand Account, pick that account on the Google consent screen.",
			"3. Connect again.",
		}, "\n")
		return nil, p.logError("channel_discovery", e)
	}

	ch := res.Items[0]
	creds := &Credentials{
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresIn:      p.tokenExpiry(tok),
		PlatformUserID: ch.Id,
		ProfileURL:     "https://www.youtube.com/channel/" + ch.Id,
	}
	if ch.Snippet != nil {
		creds.PlatformUsername = ch.Snippet.CustomUrl
		creds.DisplayName = ch.Snippet.Title
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			creds.Avatar = ch.Snippet.Thumbnails.Default.Url
		}
	}
	p.log("youtube channel linked", "channel", ch.Id)
	return creds, nil
}

func (p *youtube) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	rt, err := p.refreshToken()
	if err != nil {
		return nil, p.logError("refresh_token", err)
	}
	if rt == "" {
		e := oauthError(YouTube, "refresh_token_missing", "channel has no refresh token; reconnect the channel", nil)
		e.Op = "refresh_token"
		return nil, p.logError("refresh_token", e)
	}
	tok, err := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		e := p.exchangeError("refresh_failed", "failed to refresh the Google token", err)
		e.Op = "refresh_token"
		return nil, p.logError("refresh_token", e)
	}
	p.log("token refreshed")
	return refreshedCredentials(p.channel, tok, p.tokenExpiry(tok), rt), nil
}

func (p *youtube) TestConnection(ctx context.Context) ConnectionResult {
	svc, err := p.channelService(ctx)
	if err != nil {
		return ConnectionResult{Status: Unreachable, Detail: err.Error()}
	}
	if _, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do(); err != nil {
		return connectionFromError(&p.client, p.apiError("test_connection", err))
	}
	return connectionFromError(&p.client, nil)
}

// Publish uploads the first video of the post. Other media items are
// ignored because a YouTube upload carries exactly one video.
func (p *youtube) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := p.validate(req, youtubeLimits); err != nil {
		return nil, err
	}
	idx := 0
	for i := range req.MediaURLs {
		if req.IsVideo(i) {
			idx = i
			break
		}
	}
	if len(req.MediaURLs) > 1 {
		p.log("only one video per upload, using first video", "index", idx, "ignored", len(req.MediaURLs)-1)
	}

	svc, err := p.channelService(ctx)
	if err != nil {
		return nil, p.logError("publish", err)
	}

	media, err := p.openMedia(ctx, req.MediaURLs[idx])
	if err != nil {
		return nil, p.logError("fetch_media", err)
	}
	defer media.Body.Close()

	description := req.Caption()
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       videoTitle(req),
			Description: description,
			Tags:        tagsWithoutHash(req.Hashtags),
			CategoryId:  "22",
		},
		Status: &yt.VideoStatus{PrivacyStatus: "public"},
	}
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(media.Body).Context(ctx).Do()
	if err != nil {
		return nil, p.logError("upload_video", p.apiError("upload_video", err))
	}
	p.log("video uploaded", "video_id", uploaded.Id)

	return &PublishResult{
		Success:        true,
		PlatformPostID: uploaded.Id,
		PlatformURL:    "https://www.youtube.com/watch?v=" + uploaded.Id,
		Provider:       YouTube,
		Content:        description,
		MediaURLs:      []string{req.MediaURLs[idx]},
		MediaType:      req.resolvedMediaType(),
	}, nil
}

// videoTitle uses the post title, falling back to the first line of the
// content cut to the title limit.
func videoTitle(req *PublishRequest) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title, _, _ = strings.Cut(strings.TrimSpace(req.Content), "\n")
	}
	if title == "" {
		title = "Untitled"
	}
	if utf8.RuneCountInString(title) > youtubeLimits.MaxTitleLength {
		title = string([]rune(title)[:youtubeLimits.MaxTitleLength])
	}
	return title
}

func tagsWithoutHash(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimPrefix(strings.TrimSpace(t), "#"); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (p *youtube) UpdatePost(ctx context.Context, platformPostID, content string) error {
	svc, err := p.channelService(ctx)
	if err != nil {
		return p.logError("update_post", err)
	}
	res, err := svc.Videos.List([]string{"snippet"}).Id(platformPostID).Context(ctx).Do()
	if err != nil {
		return p.logError("update_post", p.apiError("update_post", err))
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return p.logError("update_post", &Error{Kind: KindPlatform, Provider: YouTube, Op: "update_post", Code: "not_found",
			Message: "video " + platformPostID + " was not found"})
	}
	v := res.Items[0]
	v.Snippet.Description = content
	if _, err := svc.Videos.Update([]string{"snippet"}, v).Context(ctx).Do(); err != nil {
		return p.logError("update_post", p.apiError("update_post", err))
	}
	p.log("video updated", "video_id", platformPostID)
	return nil
}

func (p *youtube) DeletePost(ctx context.Context, platformPostID string) error {
	svc, err := p.channelService(ctx)
	if err != nil {
		return p.logError("delete_post", err)
	}
	if err := svc.Videos.Delete(platformPostID).Context(ctx).Do(); err != nil {
		return p.logError("delete_post", p.apiError("delete_post", err))
	}
	p.log("video deleted", "video_id", platformPostID)
	return nil
}

// PostAnalytics maps video statistics. Views are reported as impressions;
// reach and shares need the YouTube Analytics API and stay nil.
func (p *youtube) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	svc, err := p.channelService(ctx)
	if err != nil {
		return nil, p.logError("analytics", err)
	}
	res, err := svc.Videos.List([]string{"statistics"}).Id(platformPostID).Context(ctx).Do()
	if err != nil {
		e := p.apiError("analytics", err)
		if e.Code == "permission_denied" {
			p.log("analytics not available", "video_id", platformPostID)
			return nil, nil
		}
		return nil, p.logError("analytics", e)
	}
	if len(res.Items) == 0 || res.Items[0].Statistics == nil {
		p.log("analytics not available", "video_id", platformPostID)
		return nil, nil
	}
	st := res.Items[0].Statistics
	return &Analytics{
		Likes:       int64Ptr(int64(st.LikeCount)),
		Comments:    int64Ptr(int64(st.CommentCount)),
		Impressions: int64Ptr(int64(st.ViewCount)),
	}, nil
}

// apiError classifies a googleapi failure. Quota and rate limit reasons are
// transient even though Google answers them with 403.
func (p *youtube) apiError(op string, err error) *Error {
	var ge *googleapi.Error
	if !errors.As(err, &ge) {
		return &Error{Kind: KindTransient, Provider: YouTube, Op: op, Code: "network_error", Message: op + " request failed", Err: err}
	}
	e := &Error{Provider: YouTube, Op: op, Message: op + " failed", Err: errors.New(ge.Message)}
	reason := ""
	if len(ge.Errors) > 0 {
		reason = ge.Errors[0].Reason
	}
	switch {
	case reason == "quotaExceeded" || reason == "rateLimitExceeded" || reason == "userRateLimitExceeded" || ge.Code == http.StatusTooManyRequests:
		e.Kind, e.Code = KindTransient, "rate_limited"
	case ge.Code >= 500:
		e.Kind, e.Code = KindTransient, "upstream_unavailable"
	case ge.Code == http.StatusUnauthorized:
		e.Kind, e.Code = KindOAuth, "token_invalid"
		e.Message = op + " rejected the access token; reconnect the channel"
	case ge.Code == http.StatusForbidden:
		e.Kind, e.Code = KindPlatform, "permission_denied"
	case ge.Code == http.StatusNotFound:
		e.Kind, e.Code = KindPlatform, "not_found"
	default:
		e.Kind, e.Code = KindPlatform, "upstream_rejected"
	}
	return e
}
