package twitter

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the REST API host
	BaseURL = "https://api.twitter.com"

	FollowerIDsEndpoint     = "/1.1/followers/ids.json"
	FriendIDsEndpoint       = "/1.1/friends/ids.json"
	UserShowEndpoint        = "/1.1/users/show.json"
	FriendshipShowEndpoint  = "/1.1/friendships/show.json"
	RateLimitStatusEndpoint = "/1.1/application/rate_limit_status.json"
	TokenEndpoint           = "/oauth2/token"

	// IDsPageSize is the largest page the ids endpoints return
	IDsPageSize = 5000
)

// idsURL builds a followers/ids or friends/ids request for one page.
func idsURL(base, endpoint, userID string, cursor int64) string {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(IDsPageSize))
	params.Set("stringify_ids", "true")
	return fmt.Sprintf("%s%s?%s", base, endpoint, params.Encode())
}

func userShowURL(base, userID string) string {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("include_entities", "false")
	return fmt.Sprintf("%s%s?%s", base, UserShowEndpoint, params.Encode())
}

func friendshipURL(base, source, target string) string {
	params := url.Values{}
	params.Set("source_id", source)
	params.Set("target_id", target)
	return fmt.Sprintf("%s%s?%s", base, FriendshipShowEndpoint, params.Encode())
}

func rateLimitURL(base string) string {
	params := url.Values{}
	params.Set("resources", "followers,friends,users,friendships")
	return fmt.Sprintf("%s%s?%s", base, RateLimitStatusEndpoint, params.Encode())
}
