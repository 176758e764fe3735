package twitter

// idsResponse is the body of followers/ids and friends/ids
type idsResponse struct {
	IDs            []string `json:"ids"`
	NextCursor     int64    `json:"next_cursor"`
	PreviousCursor int64    `json:"previous_cursor"`
}

// userResponse is the subset of a user object we read
type userResponse struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Protected  bool   `json:"protected"`
}

// friendshipResponse is the body of friendships/show
type friendshipResponse struct {
	Relationship struct {
		Source struct {
			IDStr      string `json:"id_str"`
			Following  bool   `json:"following"`
			FollowedBy bool   `json:"followed_by"`
		} `json:"source"`
		Target struct {
			IDStr     string `json:"id_str"`
			Following bool   `json:"following"`
		} `json:"target"`
	} `json:"relationship"`
}

// rateLimitResponse is the body of application/rate_limit_status
type rateLimitResponse struct {
	Resources map[string]map[string]struct {
		Limit     int   `json:"limit"`
		Remaining int   `json:"remaining"`
		Reset     int64 `json:"reset"`
	} `json:"resources"`
}

// errorResponse is the error envelope of every endpoint
type errorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Error string `json:"error"`
}

// API error codes with a fixed meaning
const (
	codeCouldNotAuthenticate = 32
	codeNoSuchUser           = 34
	codeUserNotFound         = 50
	codeSuspended            = 63
	codeRateLimitExceeded    = 88
	codeInvalidToken         = 89
	codeUnableToVerify       = 99
	codeBadAuthData          = 215
)
