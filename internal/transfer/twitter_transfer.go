package transfer

type TwitterTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

type TwitterUserResponse struct {
	Data TwitterUser `json:"data"`
}

type TwitterUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// TwitterMediaResponse is returned by every media/upload.json phase.
type TwitterMediaResponse struct {
	MediaID          int64                  `json:"media_id"`
	MediaIDString    string                 `json:"media_id_string"`
	ExpiresAfterSecs int                    `json:"expires_after_secs"`
	ProcessingInfo   *TwitterProcessingInfo `json:"processing_info"`
}

type TwitterProcessingInfo struct {
	State           string                  `json:"state"` // pending, in_progress, succeeded, failed
	CheckAfterSecs  int                     `json:"check_after_secs"`
	ProgressPercent int                     `json:"progress_percent"`
	Error           *TwitterProcessingError `json:"error"`
}

type TwitterProcessingError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type TweetRequest struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
