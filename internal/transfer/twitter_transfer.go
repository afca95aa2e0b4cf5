package transfer

type TwitterUser struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

type TwitterProcessingInfo struct {
	State           string `json:"state"` // pending, in_progress, succeeded, failed
	CheckAfterSecs  int    `json:"check_after_secs"`
	ProgressPercent int    `json:"progress_percent"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type TwitterMedia struct {
	Data struct {
		ID             string                 `json:"id"`
		MediaKey       string                 `json:"media_key"`
		ProcessingInfo *TwitterProcessingInfo `json:"processing_info,omitempty"`
	} `json:"data"`
}

type TwitterTweetRequest struct {
	Text  string             `json:"text"`
	Media *TwitterTweetMedia `json:"media,omitempty"`
}

type TwitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TwitterTweet struct {
	Data struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		PublicMetrics *struct {
			RetweetCount    int64 `json:"retweet_count"`
			ReplyCount      int64 `json:"reply_count"`
			LikeCount       int64 `json:"like_count"`
			QuoteCount      int64 `json:"quote_count"`
			ImpressionCount int64 `json:"impression_count"`
		} `json:"public_metrics,omitempty"`
	} `json:"data"`
}
