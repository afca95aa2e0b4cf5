package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	twitterAPI   = "https://api.x.com/2"
	twitterChunk = 4 << 20
)

var twitterLimits = Limits{
	MaxTextLength: 280,
	MaxMediaItems: 4,
	MaxVideos:     1,
}

type twitter struct {
	client
	oauth *oauth2.Config
}

func newTwitter(c client, cfg config.Config) *twitter {
	return &twitter{
		client: c,
		oauth: &oauth2.Config{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			RedirectURL:  cfg.Twitter.RedirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access", "media.write"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://x.com/i/oauth2/authorize",
				TokenURL:  twitterAPI + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

func (p *twitter) Name() Name { return Twitter }

func (p *twitter) Config() Config {
	return Config{
		Name:        Twitter,
		AuthURL:     p.oauth.Endpoint.AuthURL,
		TokenURL:    p.oauth.Endpoint.TokenURL,
		APIBaseURL:  twitterAPI,
		Scopes:      p.oauth.Scopes,
		ClientID:    p.oauth.ClientID,
		CallbackURL: p.oauth.RedirectURL,
		Limits:      twitterLimits,
	}
}

func (p *twitter) Capabilities() Capabilities {
	return Capabilities{CanRefresh: true, CanDelete: true, HasAnalytics: true}
}

// verifier derives the PKCE code verifier from the state so the callback
// can recompute it without server-side storage.
func (p *twitter) verifier(state string) string {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write([]byte("twitter-pkce:" + state))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (p *twitter) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(p.verifier(state)))
}

func (p *twitter) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	if code == "" {
		return nil, p.logError("exchange_code", oauthError(Twitter, "missing_code", "authorization code is empty", nil))
	}
	if state == "" {
		return nil, p.logError("exchange_code", oauthError(Twitter, "missing_state", "state is required to complete the PKCE exchange", nil))
	}
	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code, oauth2.VerifierOption(p.verifier(state)))
	if err != nil {
		return nil, p.logError("exchange_code", p.exchangeError("token_exchange_failed", "failed to exchange authorization code", err))
	}
	if tok.RefreshToken == "" {
		p.log("no refresh token issued; offline.access was not granted")
	}

	var me transfer.TwitterUser
	if _, err := p.send(ctx, "profile", call{method: http.MethodGet, url: twitterAPI + "/users/me?user.fields=profile_image_url", bearer: tok.AccessToken}, &me); err != nil {
		if e, ok := AsError(err); ok && e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "profile_lookup_failed"
			e.Message = "failed to read the X account; make sure users.read is granted"
		}
		return nil, p.logError("profile", err)
	}
	if me.Data.ID == "" {
		return nil, p.logError("profile", oauthError(Twitter, "profile_lookup_failed", "X returned an account without an id", nil))
	}

	return &Credentials{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresIn:        p.tokenExpiry(tok),
		PlatformUserID:   me.Data.ID,
		PlatformUsername: me.Data.Username,
		DisplayName:      me.Data.Name,
		ProfileURL:       "https://x.com/" + me.Data.Username,
		Avatar:           me.Data.ProfileImageURL,
	}, nil
}

func (p *twitter) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	rt, err := p.refreshToken()
	if err != nil {
		return nil, p.logError("refresh_token", err)
	}
	if rt == "" {
		e := oauthError(Twitter, "refresh_token_missing", "channel has no refresh token; reconnect and grant offline access", nil)
		e.Op = "refresh_token"
		return nil, p.logError("refresh_token", e)
	}
	tok, err := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		e := p.exchangeError("refresh_failed", "failed to refresh the X token", err)
		e.Op = "refresh_token"
		return nil, p.logError("refresh_token", e)
	}
	p.log("token refreshed")
	return refreshedCredentials(p.channel, tok, p.tokenExpiry(tok), rt), nil
}

func (p *twitter) TestConnection(ctx context.Context) ConnectionResult {
	token, err := p.accessToken()
	if err != nil {
		return ConnectionResult{Status: Unreachable, Detail: err.Error()}
	}
	_, err = p.send(ctx, "test_connection", call{method: http.MethodGet, url: twitterAPI + "/users/me", bearer: token}, nil)
	return connectionFromError(&p.client, err)
}

func (p *twitter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := p.validate(req, twitterLimits); err != nil {
		return nil, err
	}
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("publish", err)
	}

	body := transfer.TwitterTweetRequest{Text: req.Caption()}
	if len(req.MediaURLs) > 0 {
		ids := make([]string, 0, len(req.MediaURLs))
		for i, mediaURL := range req.MediaURLs {
			id, err := p.uploadMedia(ctx, token, mediaURL, req.IsVideo(i))
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		body.Media = &transfer.TwitterTweetMedia{MediaIDs: ids}
	}

	var tweet transfer.TwitterTweet
	if _, err := p.send(ctx, "create_tweet", call{method: http.MethodPost, url: twitterAPI + "/tweets", bearer: token, json: body}, &tweet); err != nil {
		return nil, p.logError("create_tweet", err)
	}
	if tweet.Data.ID == "" {
		return nil, p.logError("create_tweet", &Error{Kind: KindPlatform, Provider: Twitter, Op: "create_tweet", Code: "malformed_response",
			Message: "X did not return the id of the created post"})
	}
	p.log("tweet published", "tweet_id", tweet.Data.ID)

	username := "i"
	if p.channel.PlatformUsername != "" {
		username = p.channel.PlatformUsername
	}
	return &PublishResult{
		Success:        true,
		PlatformPostID: tweet.Data.ID,
		PlatformURL:    "https://x.com/" + username + "/status/" + tweet.Data.ID,
		Provider:       Twitter,
		Content:        body.Text,
		MediaURLs:      req.MediaURLs,
		MediaType:      req.resolvedMediaType(),
	}, nil
}

// uploadMedia runs the chunked initialize, append, finalize sequence and
// waits for video processing when X reports it.
func (p *twitter) uploadMedia(ctx context.Context, token, mediaURL string, video bool) (string, error) {
	data, contentType, err := p.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", p.logError("fetch_media", err)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			contentType = kind.MIME.Value
		}
	}
	category := "tweet_image"
	if video {
		category = "tweet_video"
	}

	var init transfer.TwitterMedia
	if _, err := p.send(ctx, "initialize_upload", call{method: http.MethodPost, url: twitterAPI + "/media/upload/initialize", bearer: token,
		json: map[string]any{"media_type": contentType, "total_bytes": len(data), "media_category": category}}, &init); err != nil {
		return "", p.logError("initialize_upload", err)
	}
	mediaID := init.Data.ID
	if mediaID == "" {
		return "", p.logError("initialize_upload", &Error{Kind: KindPlatform, Provider: Twitter, Op: "initialize_upload", Code: "malformed_response",
			Message: "media upload was not assigned an id"})
	}

	for segment, off := 0, 0; off < len(data); segment, off = segment+1, off+twitterChunk {
		end := min(off+twitterChunk, len(data))
		body, ct, err := appendBody(segment, data[off:end])
		if err != nil {
			return "", err
		}
		if _, err := p.send(ctx, "append_upload", call{method: http.MethodPost, url: twitterAPI + "/media/upload/" + mediaID + "/append", bearer: token,
			raw: body, rawCT: ct}, nil); err != nil {
			return "", p.logError("append_upload", err)
		}
	}

	var fin transfer.TwitterMedia
	if _, err := p.send(ctx, "finalize_upload", call{method: http.MethodPost, url: twitterAPI + "/media/upload/" + mediaID + "/finalize", bearer: token}, &fin); err != nil {
		return "", p.logError("finalize_upload", err)
	}
	p.log("media uploaded", "media_id", mediaID, "bytes", len(data))

	if fin.Data.ProcessingInfo == nil {
		return mediaID, nil
	}
	cfg := p.imagePoll()
	if video {
		cfg = p.videoPoll()
	}
	check := func(ctx context.Context) (mediaStatus, error) {
		q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
		var st transfer.TwitterMedia
		if _, err := p.send(ctx, "poll_media", call{method: http.MethodGet, url: twitterAPI + "/media/upload?" + q.Encode(), bearer: token}, &st); err != nil {
			return mediaStatus{}, p.logError("poll_media", err)
		}
		info := st.Data.ProcessingInfo
		if info == nil {
			return mediaStatus{State: mediaFinished, Detail: "succeeded"}, nil
		}
		switch info.State {
		case "succeeded":
			return mediaStatus{State: mediaFinished, Detail: info.State}, nil
		case "failed":
			detail := info.State
			if info.Error != nil {
				detail += ": " + info.Error.Message
			}
			return mediaStatus{State: mediaFailed, Detail: detail}, nil
		}
		return mediaStatus{State: mediaInProgress, Detail: info.State + " " + strconv.Itoa(info.ProgressPercent) + "%"}, nil
	}
	if err := p.awaitMedia(ctx, mediaID, cfg, check); err != nil {
		return "", err
	}
	return mediaID, nil
}

func appendBody(segment int, chunk []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("segment_index", strconv.Itoa(segment)); err != nil {
		return nil, "", fmt.Errorf("error writing segment index: %w", err)
	}
	part, err := w.CreateFormFile("media", "blob")
	if err != nil {
		return nil, "", fmt.Errorf("error creating media part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", fmt.Errorf("error writing media part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (p *twitter) UpdatePost(ctx context.Context, platformPostID, content string) error {
	return p.logError("update_post", unsupportedOperation(Twitter, "update", "X does not allow editing posts through the API"))
}

func (p *twitter) DeletePost(ctx context.Context, platformPostID string) error {
	token, err := p.accessToken()
	if err != nil {
		return p.logError("delete_post", err)
	}
	if _, err := p.send(ctx, "delete_post", call{method: http.MethodDelete, url: twitterAPI + "/tweets/" + url.PathEscape(platformPostID), bearer: token}, nil); err != nil {
		return p.logError("delete_post", err)
	}
	p.log("tweet deleted", "tweet_id", platformPostID)
	return nil
}

// PostAnalytics reads public metrics. Shares are retweets plus quotes;
// reach is not reported.
func (p *twitter) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("analytics", err)
	}
	var tweet transfer.TwitterTweet
	if _, err := p.send(ctx, "analytics", call{method: http.MethodGet, url: twitterAPI + "/tweets/" + url.PathEscape(platformPostID) + "?tweet.fields=public_metrics",
		bearer: token}, &tweet); err != nil {
		if e, ok := AsError(err); ok && e.Code == "permission_denied" {
			p.log("analytics not available", "tweet_id", platformPostID)
			return nil, nil
		}
		return nil, p.logError("analytics", err)
	}
	m := tweet.Data.PublicMetrics
	if m == nil {
		p.log("analytics not available", "tweet_id", platformPostID)
		return nil, nil
	}
	return &Analytics{
		Likes:       int64Ptr(m.LikeCount),
		Comments:    int64Ptr(m.ReplyCount),
		Shares:      int64Ptr(m.RetweetCount + m.QuoteCount),
		Impressions: int64Ptr(m.ImpressionCount),
	}, nil
}
