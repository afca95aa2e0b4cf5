package provider

import (
	"context"
	"fmt"

	"github.com/huandu/facebook"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

var facebookLimits = Limits{
	MaxTextLength: 63206,
	MaxMediaItems: 10,
	MaxVideos:     1,
}

// fbPage publishes to a Facebook Page with a non-expiring Page token.
type fbPage struct {
	graphClient
}

func newFacebook(c client, cfg config.Config) *fbPage {
	return &fbPage{
		graphClient: newGraphClient(c, cfg.Facebook, cfg.GraphAPIVersion, []string{
			"pages_show_list",
			"pages_read_engagement",
			"pages_manage_posts",
			"read_insights",
		}),
	}
}

func (p *fbPage) Name() Name     { return Facebook }
func (p *fbPage) Config() Config { return p.graphConfig(facebookLimits) }

func (p *fbPage) Capabilities() Capabilities {
	return Capabilities{CanUpdate: true, CanDelete: true, HasAnalytics: true}
}

func (p *fbPage) AuthorizationURL(state string) string {
	return p.authorizationURL(state)
}

func (p *fbPage) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	userToken, _, err := p.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	pages, err := p.listPages(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, p.logError("page_discovery", noPagesError(Facebook))
	}

	page := pages[0]
	if page.AccessToken == "" {
		return nil, p.logError("page_discovery", oauthError(Facebook, "page_token_missing",
			fmt.Sprintf("Facebook did not return an access token for page %q; grant pages_manage_posts", page.Name), nil))
	}
	if len(pages) > 1 {
		p.log("multiple pages shared, using the first", "page_id", page.ID, "count", len(pages))
	}

	profile := page.Link
	if profile == "" {
		profile = "https://www.facebook.com/" + page.ID
	}
	return &Credentials{
		AccessToken:    page.AccessToken,
		PlatformUserID: page.ID,
		DisplayName:    page.Name,
		ProfileURL:     profile,
		Avatar:         page.Picture.Data.URL,
		ProviderData: map[string]string{
			"pageId":   page.ID,
			"pageName": page.Name,
		},
	}, nil
}

func (p *fbPage) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	return nil, p.logError("refresh_token", unsupportedOperation(Facebook, "refresh",
		"Facebook page tokens do not expire; reconnect the channel to renew access"))
}

func (p *fbPage) TestConnection(ctx context.Context) ConnectionResult {
	return p.graphConnection(ctx, p.pageID())
}

func (p *fbPage) pageID() string {
	if id := p.channel.Data("pageId"); id != "" {
		return id
	}
	if p.channel != nil {
		return p.channel.PlatformUserID
	}
	return ""
}

func (p *fbPage) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := p.validate(req, facebookLimits); err != nil {
		return nil, err
	}
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("publish", err)
	}
	s := p.session(ctx, token)
	pageID := p.pageID()
	message := req.Caption()

	var postID string
	switch {
	case len(req.MediaURLs) == 0:
		postID, err = p.post(s, "/"+pageID+"/feed", facebook.Params{"message": message})
	case req.IsVideo(0):
		params := facebook.Params{"file_url": req.MediaURLs[0], "description": message}
		if req.Title != "" {
			params["title"] = req.Title
		}
		postID, err = p.post(s, "/"+pageID+"/videos", params)
	case len(req.MediaURLs) == 1:
		postID, err = p.post(s, "/"+pageID+"/photos", facebook.Params{"url": req.MediaURLs[0], "caption": message})
	default:
		postID, err = p.multiPhoto(s, pageID, message, req.MediaURLs)
	}
	if err != nil {
		return nil, err
	}
	p.log("post published", "post_id", postID)

	return &PublishResult{
		Success:        true,
		PlatformPostID: postID,
		PlatformURL:    "https://www.facebook.com/" + postID,
		Provider:       Facebook,
		Content:        message,
		MediaURLs:      req.MediaURLs,
		MediaType:      req.resolvedMediaType(),
	}, nil
}

// multiPhoto uploads each photo unpublished and attaches them to one feed post.
func (p *fbPage) multiPhoto(s *facebook.Session, pageID, message string, urls []string) (string, error) {
	attached := make([]map[string]string, 0, len(urls))
	for i, u := range urls {
		id, err := p.post(s, "/"+pageID+"/photos", facebook.Params{"url": u, "published": "false"})
		if err != nil {
			return "", err
		}
		p.log("photo staged", "index", i, "photo_id", id)
		attached = append(attached, map[string]string{"media_fbid": id})
	}
	return p.post(s, "/"+pageID+"/feed", facebook.Params{"message": message, "attached_media": attached})
}

// post issues a Graph POST and returns the created object id, preferring
// post_id for photo uploads.
func (p *fbPage) post(s *facebook.Session, path string, params facebook.Params) (string, error) {
	res, err := s.Post(path, params)
	if err != nil {
		return "", p.logError("publish", p.graphError("publish", err))
	}
	var out transfer.GraphID
	if err := res.Decode(&out); err != nil {
		return "", p.logError("publish", p.malformed("publish", err))
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	if out.ID == "" {
		return "", p.logError("publish", p.malformed("publish", fmt.Errorf("response has no id")))
	}
	return out.ID, nil
}

func (p *fbPage) UpdatePost(ctx context.Context, platformPostID, content string) error {
	token, err := p.accessToken()
	if err != nil {
		return p.logError("update_post", err)
	}
	if _, err := p.session(ctx, token).Post("/"+platformPostID, facebook.Params{"message": content}); err != nil {
		return p.logError("update_post", p.graphError("update_post", err))
	}
	p.log("post updated", "post_id", platformPostID)
	return nil
}

func (p *fbPage) DeletePost(ctx context.Context, platformPostID string) error {
	token, err := p.accessToken()
	if err != nil {
		return p.logError("delete_post", err)
	}
	if _, err := p.session(ctx, token).Delete("/"+platformPostID, nil); err != nil {
		return p.logError("delete_post", p.graphError("delete_post", err))
	}
	p.log("post deleted", "post_id", platformPostID)
	return nil
}

// PostAnalytics reads engagement counters from the post and reach from page
// insights. Insights need read_insights; without it reach stays nil.
func (p *fbPage) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("analytics", err)
	}
	s := p.session(ctx, token)

	res, err := s.Get("/"+platformPostID, facebook.Params{
		"fields": "id,likes.summary(true).limit(0),comments.summary(true).limit(0),shares",
	})
	if err != nil {
		if isPermissionDenied(err) {
			p.log("analytics not available", "post_id", platformPostID)
			return nil, nil
		}
		return nil, p.logError("analytics", p.graphError("analytics", err))
	}
	var stats transfer.FacebookPostStats
	if err := res.Decode(&stats); err != nil {
		return nil, p.logError("analytics", p.malformed("analytics", err))
	}

	a := &Analytics{
		Likes:    int64Ptr(stats.Likes.Summary.TotalCount),
		Comments: int64Ptr(stats.Comments.Summary.TotalCount),
		Shares:   int64Ptr(0), // Graph omits shares when a post has none
	}
	if stats.Shares != nil {
		a.Shares = int64Ptr(stats.Shares.Count)
	}

	ins, err := s.Get("/"+platformPostID+"/insights", facebook.Params{"metric": "post_impressions,post_impressions_unique"})
	if err != nil {
		p.log("post insights unavailable", "post_id", platformPostID, "error", err.Error())
		return a, nil
	}
	var insights []transfer.Insight
	if err := ins.DecodeField("data", &insights); err == nil {
		m := insightsToAnalytics(insights)
		a.Reach, a.Impressions = m.Reach, m.Impressions
	}
	return a, nil
}
