package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/facebook"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var instagramLimits = Limits{
	MaxTextLength: 2200,
	MaxHashtags:   30,
	MaxMediaItems: 10,
	MaxVideos:     -1,
	MediaRequired: true,
}

// instagram publishes through the Instagram Graph API using a Facebook Page
// linked to an Instagram Business or Creator account.
type instagram struct {
	graphClient
}

func newInstagram(c client, cfg config.Config) *instagram {
	return &instagram{
		graphClient: newGraphClient(c, cfg.Instagram, cfg.GraphAPIVersion, []string{
			"instagram_basic",
			"instagram_content_publish",
			"instagram_manage_insights",
			"pages_show_list",
			"pages_read_engagement",
			"business_management",
		}),
	}
}

func (p *instagram) Name() Name     { return Instagram }
func (p *instagram) Config() Config { return p.graphConfig(instagramLimits) }

func (p *instagram) Capabilities() Capabilities {
	return Capabilities{HasAnalytics: true, RequiresMedia: true}
}

func (p *instagram) AuthorizationURL(state string) string {
	return p.authorizationURL(state)
}

// HandleCallback walks code -> long-lived user token -> Pages -> the first
// Page with a linked Instagram business account. The Page token is stored
// because it does not expire.
func (p *instagram) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	userToken, _, err := p.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	pages, err := p.listPages(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, p.logError("page_discovery", noPagesError(Instagram))
	}
	p.log("pages discovered", "count", len(pages))

	var page *transfer.FacebookPage
	for i := range pages {
		if pages[i].InstagramBusinessAccount != nil && pages[i].InstagramBusinessAccount.ID != "" {
			page = &pages[i]
			break
		}
	}
	if page == nil {
		return nil, p.logError("instagram_discovery", noInstagramAccountError(pages))
	}
	if page.AccessToken == "" {
		return nil, p.logError("instagram_discovery", oauthError(Instagram, "page_token_missing",
			fmt.Sprintf("Facebook did not return an access token for page %q", page.Name), nil))
	}

	ig := page.InstagramBusinessAccount
	display := ig.Name
	if display == "" {
		display = ig.Username
	}
	p.log("instagram account linked", "page_id", page.ID, "ig_user_id", ig.ID)

	return &Credentials{
		AccessToken:      page.AccessToken,
		PlatformUserID:   ig.ID,
		PlatformUsername: ig.Username,
		DisplayName:      display,
		ProfileURL:       "https://www.instagram.com/" + ig.Username + "/",
		Avatar:           ig.ProfilePictureURL,
		ProviderData: map[string]string{
			"pageId":   page.ID,
			"pageName": page.Name,
			"igUserId": ig.ID,
		},
	}, nil
}

func noInstagramAccountError(pages []transfer.FacebookPage) *Error {
	names := make([]string, 0, len(pages))
	for _, pg := range pages {
		names = append(names, pg.Name)
	}
	e := oauthError(Instagram, "no_instagram_business_account",
		fmt.Sprintf("none of the shared Facebook Pages (%s) has a linked Instagram business account", strings.Join(names, ", ")), nil)
	e.Remediation = strings.Join([]string{
		"1. In the Instagram app, switch the account to a Business or Creator account.",
		"2. In Facebook Page settings, open Linked accounts and connect the Instagram account to the Page.",
		"3. Reconnect and make sure that Page is selected on the consent screen.",
		"4. Grant instagram_basic and instagram_content_publish.",
	}, "\n")
	return e
}

func (p *instagram) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	return nil, p.logError("refresh_token", unsupportedOperation(Instagram, "refresh",
		"Instagram page tokens do not expire; reconnect the channel to renew access"))
}

func (p *instagram) TestConnection(ctx context.Context) ConnectionResult {
	return p.graphConnection(ctx, p.igUserID())
}

func (p *instagram) igUserID() string {
	if id := p.channel.Data("igUserId"); id != "" {
		return id
	}
	if p.channel != nil {
		return p.channel.PlatformUserID
	}
	return ""
}

func (p *instagram) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := p.validate(req, instagramLimits); err != nil {
		return nil, err
	}
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("publish", err)
	}
	s := p.session(ctx, token)
	igID := p.igUserID()
	caption := req.Caption()

	var containerID string
	if len(req.MediaURLs) == 1 {
		containerID, err = p.createContainer(s, igID, req.MediaURLs[0], req.IsVideo(0), caption, false)
		if err != nil {
			return nil, err
		}
		if err := p.awaitMedia(ctx, containerID, p.pollFor(req.IsVideo(0)), p.containerCheck(s, containerID)); err != nil {
			return nil, err
		}
	} else {
		containerID, err = p.carousel(ctx, s, igID, req, caption)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.Post("/"+igID+"/media_publish", facebook.Params{"creation_id": containerID})
	if err != nil {
		e := p.graphError("media_publish", err)
		e.Message = fmt.Sprintf("publishing container %s failed", containerID)
		return nil, p.logError("media_publish", e)
	}
	var published transfer.GraphID
	if err := res.Decode(&published); err != nil || published.ID == "" {
		return nil, p.logError("media_publish", &Error{Kind: KindPlatform, Provider: Instagram, Op: "publish", Code: "malformed_response",
			Message: "media_publish returned no media id", Err: err})
	}
	p.log("media published", "media_id", published.ID, "container_id", containerID)

	return &PublishResult{
		Success:        true,
		PlatformPostID: published.ID,
		PlatformURL:    "https://www.instagram.com/p/" + published.ID + "/",
		Permalink:      p.permalink(s, published.ID),
		Provider:       Instagram,
		Content:        caption,
		MediaURLs:      req.MediaURLs,
		MediaType:      req.resolvedMediaType(),
	}, nil
}

func (p *instagram) pollFor(video bool) PollConfig {
	if video {
		return p.videoPoll()
	}
	return p.imagePoll()
}

// carousel creates the child containers one at a time, waits for all of
// them concurrently and then creates and awaits the parent container.
func (p *instagram) carousel(ctx context.Context, s *facebook.Session, igID string, req *PublishRequest, caption string) (string, error) {
	limiter := rate.NewLimiter(rate.Every(p.publishing.CarouselItemDelay), 1)
	children := make([]string, 0, len(req.MediaURLs))
	anyVideo := false

	for i, mediaURL := range req.MediaURLs {
		if err := limiter.Wait(ctx); err != nil {
			return "", &Error{Kind: KindTransient, Provider: Instagram, Op: "publish", Code: "cancelled",
				Message: fmt.Sprintf("carousel interrupted after %d of %d items", i, len(req.MediaURLs)), Err: err}
		}
		id, err := p.createContainer(s, igID, mediaURL, req.IsVideo(i), "", true)
		if err != nil {
			return "", err
		}
		anyVideo = anyVideo || req.IsVideo(i)
		children = append(children, id)
		p.log("carousel item created", "index", i, "container_id", id)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range children {
		cfg := p.pollFor(req.IsVideo(i))
		g.Go(func() error {
			return p.awaitMedia(gctx, id, cfg, p.containerCheck(s, id))
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	res, err := s.Post("/"+igID+"/media", facebook.Params{
		"media_type": "CAROUSEL",
		"children":   strings.Join(children, ","),
		"caption":    caption,
	})
	if err != nil {
		return "", p.logError("create_container", p.graphError("create_container", err))
	}
	parent, err := decodeID(res)
	if err != nil {
		return "", p.logError("create_container", p.malformed("create_container", err))
	}
	p.log("carousel container created", "container_id", parent, "children", len(children))

	if err := p.awaitMedia(ctx, parent, p.pollFor(anyVideo), p.containerCheck(s, parent)); err != nil {
		return "", err
	}
	return parent, nil
}

func (p *instagram) createContainer(s *facebook.Session, igID, mediaURL string, video bool, caption string, child bool) (string, error) {
	params := facebook.Params{}
	switch {
	case video && child:
		params["media_type"] = "VIDEO"
		params["video_url"] = mediaURL
	case video:
		params["media_type"] = "REELS"
		params["video_url"] = mediaURL
	default:
		params["image_url"] = mediaURL
	}
	if child {
		params["is_carousel_item"] = "true"
	} else if caption != "" {
		params["caption"] = caption
	}

	res, err := s.Post("/"+igID+"/media", params)
	if err != nil {
		e := p.graphError("create_container", err)
		e.Message = "creating media container for " + mediaURL + " failed"
		return "", p.logError("create_container", e)
	}
	id, err := decodeID(res)
	if err != nil {
		return "", p.logError("create_container", p.malformed("create_container", err))
	}
	p.log("container created", "container_id", id, "video", video)
	return id, nil
}

func (p *instagram) containerCheck(s *facebook.Session, containerID string) statusCheck {
	return func(ctx context.Context) (mediaStatus, error) {
		res, err := s.WithContext(ctx).Get("/"+containerID, facebook.Params{"fields": "status_code,status"})
		if err != nil {
			if isNotYetAvailable(err) {
				return mediaStatus{State: mediaNotReady, Detail: "not yet available"}, nil
			}
			return mediaStatus{}, p.logError("poll_media", p.graphError("poll_media", err))
		}
		var st transfer.ContainerStatus
		if err := res.Decode(&st); err != nil {
			return mediaStatus{}, p.logError("poll_media", p.malformed("poll_media", err))
		}
		switch st.StatusCode {
		case "FINISHED", "PUBLISHED":
			return mediaStatus{State: mediaFinished, Detail: st.StatusCode}, nil
		case "ERROR", "EXPIRED":
			detail := st.StatusCode
			if st.Status != "" {
				detail += ": " + st.Status
			}
			return mediaStatus{State: mediaFailed, Detail: detail}, nil
		}
		return mediaStatus{State: mediaInProgress, Detail: st.StatusCode}, nil
	}
}

func (p *instagram) permalink(s *facebook.Session, mediaID string) string {
	res, err := s.Get("/"+mediaID, facebook.Params{"fields": "permalink"})
	if err != nil {
		p.log("permalink unavailable", "media_id", mediaID, "error", err.Error())
		return ""
	}
	var link string
	if err := res.DecodeField("permalink", &link); err != nil {
		return ""
	}
	return link
}

func (p *instagram) UpdatePost(ctx context.Context, platformPostID, content string) error {
	return p.logError("update_post", unsupportedOperation(Instagram, "update", "Instagram does not allow editing published media through the API"))
}

func (p *instagram) DeletePost(ctx context.Context, platformPostID string) error {
	return p.logError("delete_post", unsupportedOperation(Instagram, "delete", "Instagram does not allow deleting media through the API"))
}

func (p *instagram) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("analytics", err)
	}
	res, err := p.session(ctx, token).Get("/"+platformPostID+"/insights", facebook.Params{
		"metric": "reach,impressions,likes,comments,shares",
	})
	if err != nil {
		if isPermissionDenied(err) {
			p.log("analytics not available", "media_id", platformPostID)
			return nil, nil
		}
		return nil, p.logError("analytics", p.graphError("analytics", err))
	}

	var insights []transfer.Insight
	if err := res.DecodeField("data", &insights); err != nil {
		return nil, p.logError("analytics", p.malformed("analytics", err))
	}
	return insightsToAnalytics(insights), nil
}

func insightsToAnalytics(insights []transfer.Insight) *Analytics {
	a := &Analytics{}
	for _, in := range insights {
		if len(in.Values) == 0 {
			continue
		}
		v := int64Ptr(in.Values[0].Value)
		switch in.Name {
		case "likes":
			a.Likes = v
		case "comments":
			a.Comments = v
		case "shares":
			a.Shares = v
		case "reach", "post_impressions_unique":
			a.Reach = v
		case "impressions", "post_impressions":
			a.Impressions = v
		}
	}
	return a
}
