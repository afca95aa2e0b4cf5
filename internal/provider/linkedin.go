package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
	ln "golang.org/x/oauth2/linkedin"
)

const linkedinAPI = "https://api.linkedin.com"

var linkedinLimits = Limits{
	MaxTextLength: 3000,
	MaxMediaItems: 20,
	MaxVideos:     1,
}

type linkedin struct {
	client
	oauth   *oauth2.Config
	version string
}

func newLinkedIn(c client, cfg config.Config) *linkedin {
	return &linkedin{
		client: c,
		oauth: &oauth2.Config{
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			RedirectURL:  cfg.LinkedIn.RedirectURI,
			Scopes:       []string{"openid", "profile", "email", "w_member_social"},
			Endpoint:     ln.Endpoint,
		},
		version: cfg.LinkedInVersion,
	}
}

func (p *linkedin) Name() Name { return LinkedIn }

func (p *linkedin) Config() Config {
	return Config{
		Name:        LinkedIn,
		AuthURL:     p.oauth.Endpoint.AuthURL,
		TokenURL:    p.oauth.Endpoint.TokenURL,
		APIBaseURL:  linkedinAPI + "/rest",
		Scopes:      p.oauth.Scopes,
		ClientID:    p.oauth.ClientID,
		CallbackURL: p.oauth.RedirectURL,
		Limits:      linkedinLimits,
	}
}

// Capabilities reports refresh only for channels that were issued a
// refresh token.
func (p *linkedin) Capabilities() Capabilities {
	return Capabilities{
		CanRefresh:   p.channel != nil && p.channel.RefreshToken != "",
		CanUpdate:    true,
		CanDelete:    true,
		HasAnalytics: true,
	}
}

func (p *linkedin) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *linkedin) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	if code == "" {
		return nil, p.logError("exchange_code", oauthError(LinkedIn, "missing_code", "authorization code is empty", nil))
	}
	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code)
	if err != nil {
		return nil, p.logError("exchange_code", p.exchangeError("token_exchange_failed", "failed to exchange authorization code", err))
	}
	p.log("token obtained", "has_refresh_token", tok.RefreshToken != "")

	var info transfer.LinkedInUserInfo
	if _, err := p.send(ctx, "profile", call{method: http.MethodGet, url: linkedinAPI + "/v2/userinfo", bearer: tok.AccessToken}, &info); err != nil {
		e, _ := AsError(err)
		if e != nil && e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "profile_lookup_failed"
			e.Message = "failed to read the LinkedIn member profile; make sure the openid and profile scopes are granted"
		}
		return nil, p.logError("profile", err)
	}
	if info.Sub == "" {
		return nil, p.logError("profile", oauthError(LinkedIn, "profile_lookup_failed", "LinkedIn returned a profile without a member id", nil))
	}

	return &Credentials{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresIn:        p.tokenExpiry(tok),
		PlatformUserID:   info.Sub,
		PlatformUsername: info.Email,
		DisplayName:      info.Name,
		ProfileURL:       "https://www.linkedin.com/",
		Avatar:           info.Picture,
		ProviderData:     map[string]string{"authorUrn": "urn:li:person:" + info.Sub},
	}, nil
}

func (p *linkedin) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	rt, err := p.refreshToken()
	if err != nil {
		return nil, p.logError("refresh_token", err)
	}
	if rt == "" {
		return nil, p.logError("refresh_token", unsupportedOperation(LinkedIn, "refresh",
			"LinkedIn did not issue a refresh token for this app; reconnect the channel before the token expires"))
	}

	tok, err := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		e := p.exchangeError("refresh_failed", "failed to refresh the LinkedIn token", err)
		e.Op = "refresh_token"
		return nil, p.logError("refresh_token", e)
	}
	p.log("token refreshed")
	return refreshedCredentials(p.channel, tok, p.tokenExpiry(tok), rt), nil
}

func (p *linkedin) TestConnection(ctx context.Context) ConnectionResult {
	token, err := p.accessToken()
	if err != nil {
		return ConnectionResult{Status: Unreachable, Detail: err.Error()}
	}
	_, err = p.send(ctx, "test_connection", call{method: http.MethodGet, url: linkedinAPI + "/v2/userinfo", bearer: token}, nil)
	return connectionFromError(&p.client, err)
}

func (p *linkedin) author() string {
	if urn := p.channel.Data("authorUrn"); urn != "" {
		return urn
	}
	return "urn:li:person:" + p.channel.PlatformUserID
}

func (p *linkedin) headers() map[string]string {
	return map[string]string{
		"LinkedIn-Version":          p.version,
		"X-Restli-Protocol-Version": "2.0.0",
	}
}

func (p *linkedin) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := p.validate(req, linkedinLimits); err != nil {
		return nil, err
	}
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("publish", err)
	}
	author := p.author()
	commentary := req.Caption()

	post := map[string]any{
		"author":     author,
		"commentary": commentary,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}

	switch {
	case len(req.MediaURLs) == 0:
	case req.IsVideo(0):
		videoURN, err := p.uploadVideo(ctx, token, author, req.MediaURLs[0])
		if err != nil {
			return nil, err
		}
		post["content"] = map[string]any{"media": map[string]any{"id": videoURN, "title": req.Title}}
	default:
		images := make([]map[string]any, 0, len(req.MediaURLs))
		for i, mediaURL := range req.MediaURLs {
			imageURN, err := p.uploadImage(ctx, token, author, mediaURL)
			if err != nil {
				return nil, err
			}
			p.log("image uploaded", "index", i, "image", imageURN)
			images = append(images, map[string]any{"id": imageURN})
		}
		if len(images) == 1 {
			post["content"] = map[string]any{"media": images[0]}
		} else {
			post["content"] = map[string]any{"multiImage": map[string]any{"images": images}}
		}
	}

	header, err := p.send(ctx, "create_post", call{method: http.MethodPost, url: linkedinAPI + "/rest/posts", bearer: token, header: p.headers(), json: post}, nil)
	if err != nil {
		return nil, p.logError("create_post", err)
	}
	urn := header.Get("X-Restli-Id")
	if urn == "" {
		return nil, p.logError("create_post", &Error{Kind: KindPlatform, Provider: LinkedIn, Op: "create_post", Code: "malformed_response",
			Message: "LinkedIn did not return the id of the created post"})
	}
	p.log("post published", "urn", urn)

	return &PublishResult{
		Success:        true,
		PlatformPostID: urn,
		PlatformURL:    "https://www.linkedin.com/feed/update/" + urn,
		Provider:       LinkedIn,
		Content:        commentary,
		MediaURLs:      req.MediaURLs,
		MediaType:      req.resolvedMediaType(),
	}, nil
}

func (p *linkedin) uploadImage(ctx context.Context, token, author, mediaURL string) (string, error) {
	var init transfer.LinkedInImageUpload
	body := map[string]any{"initializeUploadRequest": map[string]any{"owner": author}}
	if _, err := p.send(ctx, "initialize_image_upload", call{method: http.MethodPost, url: linkedinAPI + "/rest/images?action=initializeUpload",
		bearer: token, header: p.headers(), json: body}, &init); err != nil {
		return "", p.logError("initialize_image_upload", err)
	}
	if init.Value.UploadURL == "" || init.Value.Image == "" {
		return "", p.logError("initialize_image_upload", &Error{Kind: KindPlatform, Provider: LinkedIn, Op: "initialize_image_upload", Code: "malformed_response",
			Message: "image upload registration returned no upload url"})
	}

	data, contentType, err := p.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", p.logError("fetch_media", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := p.send(ctx, "upload_image", call{method: http.MethodPut, url: init.Value.UploadURL, bearer: token, raw: data, rawCT: contentType}, nil); err != nil {
		return "", p.logError("upload_image", err)
	}
	return init.Value.Image, nil
}

// uploadVideo runs the initialize, multi-part upload, finalize sequence and
// waits until the video asset is AVAILABLE.
func (p *linkedin) uploadVideo(ctx context.Context, token, author, mediaURL string) (string, error) {
	data, _, err := p.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", p.logError("fetch_media", err)
	}

	var init transfer.LinkedInVideoUpload
	body := map[string]any{"initializeUploadRequest": map[string]any{
		"owner":           author,
		"fileSizeBytes":   len(data),
		"uploadCaptions":  false,
		"uploadThumbnail": false,
	}}
	if _, err := p.send(ctx, "initialize_video_upload", call{method: http.MethodPost, url: linkedinAPI + "/rest/videos?action=initializeUpload",
		bearer: token, header: p.headers(), json: body}, &init); err != nil {
		return "", p.logError("initialize_video_upload", err)
	}
	videoURN := init.Value.Video
	if videoURN == "" || len(init.Value.UploadInstructions) == 0 {
		return "", p.logError("initialize_video_upload", &Error{Kind: KindPlatform, Provider: LinkedIn, Op: "initialize_video_upload", Code: "malformed_response",
			Message: "video upload registration returned no upload instructions"})
	}

	etags := make([]string, 0, len(init.Value.UploadInstructions))
	for i, part := range init.Value.UploadInstructions {
		if part.FirstByte < 0 || part.LastByte >= int64(len(data)) || part.FirstByte > part.LastByte {
			return "", p.logError("upload_video", &Error{Kind: KindPlatform, Provider: LinkedIn, Op: "upload_video", Code: "malformed_response",
				Message: fmt.Sprintf("upload part %d has an invalid byte range", i)})
		}
		header, err := p.send(ctx, "upload_video", call{method: http.MethodPut, url: part.UploadURL, bearer: token,
			raw: data[part.FirstByte : part.LastByte+1], rawCT: "application/octet-stream"}, nil)
		if err != nil {
			return "", p.logError("upload_video", err)
		}
		etags = append(etags, header.Get("ETag"))
	}

	finalize := map[string]any{"finalizeUploadRequest": map[string]any{
		"video":           videoURN,
		"uploadToken":     init.Value.UploadToken,
		"uploadedPartIds": etags,
	}}
	if _, err := p.send(ctx, "finalize_video_upload", call{method: http.MethodPost, url: linkedinAPI + "/rest/videos?action=finalizeUpload",
		bearer: token, header: p.headers(), json: finalize}, nil); err != nil {
		return "", p.logError("finalize_video_upload", err)
	}
	p.log("video uploaded", "video", videoURN, "parts", len(etags))

	check := func(ctx context.Context) (mediaStatus, error) {
		var v transfer.LinkedInVideo
		_, err := p.send(ctx, "poll_media", call{method: http.MethodGet, url: linkedinAPI + "/rest/videos/" + url.PathEscape(videoURN),
			bearer: token, header: p.headers()}, &v)
		if err != nil {
			if e, ok := AsError(err); ok && e.Code == "not_found" {
				return mediaStatus{State: mediaNotReady, Detail: "not yet available"}, nil
			}
			return mediaStatus{}, p.logError("poll_media", err)
		}
		switch v.Status {
		case "AVAILABLE":
			return mediaStatus{State: mediaFinished, Detail: v.Status}, nil
		case "PROCESSING_FAILED":
			return mediaStatus{State: mediaFailed, Detail: v.Status}, nil
		}
		return mediaStatus{State: mediaInProgress, Detail: v.Status}, nil
	}
	if err := p.awaitMedia(ctx, videoURN, p.videoPoll(), check); err != nil {
		return "", err
	}
	return videoURN, nil
}

func (p *linkedin) UpdatePost(ctx context.Context, platformPostID, content string) error {
	token, err := p.accessToken()
	if err != nil {
		return p.logError("update_post", err)
	}
	h := p.headers()
	h["X-RestLi-Method"] = "PARTIAL_UPDATE"
	patch := map[string]any{"patch": map[string]any{"$set": map[string]any{"commentary": content}}}
	if _, err := p.send(ctx, "update_post", call{method: http.MethodPost, url: linkedinAPI + "/rest/posts/" + url.PathEscape(platformPostID),
		bearer: token, header: h, json: patch}, nil); err != nil {
		return p.logError("update_post", err)
	}
	p.log("post updated", "urn", platformPostID)
	return nil
}

func (p *linkedin) DeletePost(ctx context.Context, platformPostID string) error {
	token, err := p.accessToken()
	if err != nil {
		return p.logError("delete_post", err)
	}
	h := p.headers()
	h["X-RestLi-Method"] = "DELETE"
	if _, err := p.send(ctx, "delete_post", call{method: http.MethodDelete, url: linkedinAPI + "/rest/posts/" + url.PathEscape(platformPostID),
		bearer: token, header: h}, nil); err != nil {
		return p.logError("delete_post", err)
	}
	p.log("post deleted", "urn", platformPostID)
	return nil
}

// PostAnalytics reads likes and comments. Reach, impressions and shares
// need organization analytics permissions and stay nil.
func (p *linkedin) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("analytics", err)
	}
	var actions transfer.LinkedInSocialActions
	if _, err := p.send(ctx, "analytics", call{method: http.MethodGet, url: linkedinAPI + "/v2/socialActions/" + url.PathEscape(platformPostID),
		bearer: token}, &actions); err != nil {
		if e, ok := AsError(err); ok && e.Code == "permission_denied" {
			p.log("analytics not available", "urn", platformPostID)
			return nil, nil
		}
		return nil, p.logError("analytics", err)
	}
	return &Analytics{
		Likes:    int64Ptr(actions.LikesSummary.TotalLikes),
		Comments: int64Ptr(actions.CommentsSummary.AggregatedTotalComments),
	}, nil
}
