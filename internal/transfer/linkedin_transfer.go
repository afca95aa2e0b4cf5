package transfer

type LinkedInUserInfo struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	Email      string `json:"email"`
}

type LinkedInImageUpload struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

type LinkedInUploadInstruction struct {
	UploadURL string `json:"uploadUrl"`
	FirstByte int64  `json:"firstByte"`
	LastByte  int64  `json:"lastByte"`
}

type LinkedInVideoUpload struct {
	Value struct {
		UploadInstructions []LinkedInUploadInstruction `json:"uploadInstructions"`
		Video              string                      `json:"video"`
		UploadToken        string                      `json:"uploadToken"`
	} `json:"value"`
}

type LinkedInVideo struct {
	ID     string `json:"id"`
	Status string `json:"status"` // WAITING_UPLOAD, PROCESSING, AVAILABLE, PROCESSING_FAILED
}

type LinkedInSocialActions struct {
	LikesSummary struct {
		TotalLikes int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}
