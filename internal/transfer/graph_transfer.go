package transfer

type GraphToken struct {
	AccessToken string `facebook:"access_token" json:"access_token"`
	TokenType   string `facebook:"token_type" json:"token_type"`
	ExpiresIn   int64  `facebook:"expires_in" json:"expires_in"`
}

type GraphPicture struct {
	Data struct {
		URL string `facebook:"url" json:"url"`
	} `facebook:"data" json:"data"`
}

type InstagramAccount struct {
	ID                string `facebook:"id" json:"id"`
	Username          string `facebook:"username" json:"username"`
	Name              string `facebook:"name" json:"name"`
	ProfilePictureURL string `facebook:"profile_picture_url" json:"profile_picture_url"`
}

type FacebookPage struct {
	ID                       string            `facebook:"id" json:"id"`
	Name                     string            `facebook:"name" json:"name"`
	AccessToken              string            `facebook:"access_token" json:"access_token"`
	Link                     string            `facebook:"link" json:"link"`
	Picture                  GraphPicture      `facebook:"picture" json:"picture"`
	InstagramBusinessAccount *InstagramAccount `facebook:"instagram_business_account" json:"instagram_business_account,omitempty"`
}

type GraphID struct {
	ID     string `facebook:"id" json:"id"`
	PostID string `facebook:"post_id" json:"post_id"`
}

// ContainerStatus is the processing state of an Instagram media container.
type ContainerStatus struct {
	ID         string `facebook:"id" json:"id"`
	StatusCode string `facebook:"status_code" json:"status_code"` // IN_PROGRESS, FINISHED, ERROR, EXPIRED, PUBLISHED
	Status     string `facebook:"status" json:"status"`
}

type InsightValue struct {
	Value int64 `facebook:"value" json:"value"`
}

type Insight struct {
	Name   string         `facebook:"name" json:"name"`
	Values []InsightValue `facebook:"values" json:"values"`
}

type GraphSummary struct {
	Summary struct {
		TotalCount int64 `facebook:"total_count" json:"total_count"`
	} `facebook:"summary" json:"summary"`
}

type FacebookPostStats struct {
	ID       string       `facebook:"id" json:"id"`
	Likes    GraphSummary `facebook:"likes" json:"likes"`
	Comments GraphSummary `facebook:"comments" json:"comments"`
	Shares   *struct {
		Count int64 `facebook:"count" json:"count"`
	} `facebook:"shares" json:"shares,omitempty"`
}

type DebugToken struct {
	Data struct {
		AppID          string `facebook:"app_id" json:"app_id"`
		IsValid        bool   `facebook:"is_valid" json:"is_valid"`
		GranularScopes []struct {
			Scope     string   `facebook:"scope" json:"scope"`
			TargetIDs []string `facebook:"target_ids" json:"target_ids"`
		} `facebook:"granular_scopes" json:"granular_scopes"`
	} `facebook:"data" json:"data"`
}

type WhatsAppPhoneNumber struct {
	ID                 string `facebook:"id" json:"id"`
	DisplayPhoneNumber string `facebook:"display_phone_number" json:"display_phone_number"`
	VerifiedName       string `facebook:"verified_name" json:"verified_name"`
	QualityRating      string `facebook:"quality_rating" json:"quality_rating"`
}

type WhatsAppMessageResponse struct {
	Messages []struct {
		ID string `facebook:"id" json:"id"`
	} `facebook:"messages" json:"messages"`
}
