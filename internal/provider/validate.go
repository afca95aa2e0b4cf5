package provider

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// validate enforces a platform's hard limits before any network call so a
// post that would be rejected never uploads media.
func (c *client) validate(req *PublishRequest, lim Limits) error {
	if req == nil {
		return c.logError("validate", validationError(c.name, "empty_post", "post is empty"))
	}

	caption := req.Caption()
	if strings.TrimSpace(caption) == "" && len(req.MediaURLs) == 0 {
		return c.logError("validate", validationError(c.name, "empty_post", "post has neither text nor media"))
	}
	if lim.MediaRequired && len(req.MediaURLs) == 0 {
		return c.logError("validate", validationError(c.name, "media_required", "%s requires at least one image or video; text-only posts are not allowed", c.name))
	}
	if n := utf8.RuneCountInString(caption); lim.MaxTextLength > 0 && n > lim.MaxTextLength {
		return c.logError("validate", validationError(c.name, "text_too_long", "caption exceeds %d characters (%d)", lim.MaxTextLength, n))
	}
	if lim.MaxTitleLength > 0 && utf8.RuneCountInString(req.Title) > lim.MaxTitleLength {
		return c.logError("validate", validationError(c.name, "title_too_long", "title exceeds %d characters", lim.MaxTitleLength))
	}
	if lim.MaxHashtags > 0 && len(req.Hashtags) > lim.MaxHashtags {
		return c.logError("validate", validationError(c.name, "too_many_hashtags", "post has %d hashtags, the limit is %d", len(req.Hashtags), lim.MaxHashtags))
	}
	if lim.MaxMediaItems > 0 && len(req.MediaURLs) > lim.MaxMediaItems {
		return c.logError("validate", validationError(c.name, "too_many_media", "post has %d media items, the limit is %d", len(req.MediaURLs), lim.MaxMediaItems))
	}

	for _, raw := range req.MediaURLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return c.logError("validate", validationError(c.name, "invalid_media_url", "media url %q is not an absolute http(s) URL", raw))
		}
	}

	videos := req.videoCount()
	if lim.VideoOnly && videos == 0 {
		return c.logError("validate", validationError(c.name, "video_required", "%s only accepts video posts", c.name))
	}
	if lim.MaxVideos >= 0 && videos > lim.MaxVideos && !lim.VideoOnly {
		return c.logError("validate", validationError(c.name, "too_many_videos", "post has %d videos, the limit is %d", videos, lim.MaxVideos))
	}
	if lim.MaxVideos == 1 && videos > 0 && len(req.MediaURLs) > 1 && !lim.VideoOnly {
		return c.logError("validate", validationError(c.name, "mixed_media", "%s cannot combine a video with other media in one post", c.name))
	}
	return nil
}
