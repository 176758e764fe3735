// Package social defines the vocabulary shared by the crawler, the graph and
// the matrix builder, and the remote API they talk to.
package social

import (
	"context"
	"fmt"
	"time"
)

// UserID is a decimal user identifier as returned by the remote API.
type UserID = string

// RootID is the synthetic parent of propagation trees. It is never sent to
// the API.
const RootID UserID = "ROOT"

// FirstCursor asks for the first page of a paginated listing.
const FirstCursor int64 = -1

// Direction selects which adjacency list a crawl fills.
type Direction string

const (
	// Follower lists the users who follow the subject.
	Follower Direction = "follower"
	// Friend lists the users the subject follows.
	Friend Direction = "friend"
)

// ParseDirection accepts "follower(s)" or "friend(s)".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "follower", "followers":
		return Follower, nil
	case "friend", "friends":
		return Friend, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// PageKind returns the operation kind used to page through this direction.
func (d Direction) PageKind() OperationKind {
	if d == Friend {
		return FriendPage
	}
	return FollowerPage
}

// OperationKind is one rate-limited API operation.
type OperationKind int

const (
	FollowerPage OperationKind = iota
	FriendPage
	UserLookup
	Relationship

	// NumKinds is the number of operation kinds.
	NumKinds
)

var kindNames = [...]string{"follower_page", "friend_page", "user_lookup", "relationship"}

func (k OperationKind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Cooldowns holds the per-kind wait after a credential is used.
type Cooldowns [NumKinds]time.Duration

// DefaultCooldowns follows the v1.1 rate limit windows: 15 page calls and
// 450 lookups per 15 minutes, 180 friendship lookups per 15 minutes.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		FollowerPage: 62 * time.Second,
		FriendPage:   62 * time.Second,
		UserLookup:   2 * time.Second,
		Relationship: 5 * time.Second,
	}
}

// Page is one page of a cursored ID listing.
type Page struct {
	Next int64
	Prev int64
	IDs  []UserID
}

// Profile is the subset of a user object the crawler needs.
type Profile struct {
	ID         UserID
	ScreenName string
	Protected  bool
}

// Friendship reports follow edges between two users.
type Friendship struct {
	SourceFollowsTarget bool
	TargetFollowsSource bool
}

// RateStatus summarises a credential's remaining quota for one endpoint.
type RateStatus struct {
	Resource  string
	Limit     int
	Remaining int
	Reset     time.Time
}

// API is the remote boundary. Implementations return *errors.Error values
// typed as rate_limit, network, server_error, not_found, protected,
// suspended or auth.
type API interface {
	FollowerIDsPage(ctx context.Context, id UserID, cursor int64) (Page, error)
	FriendIDsPage(ctx context.Context, id UserID, cursor int64) (Page, error)
	User(ctx context.Context, id UserID) (Profile, error)
	Relationship(ctx context.Context, source, target UserID) (Friendship, error)
}

// Verifier is implemented by clients that can check their own credentials.
type Verifier interface {
	VerifyCredentials(ctx context.Context) ([]RateStatus, error)
}

// PageFunc fetches one page of a listing.
type PageFunc func(ctx context.Context, id UserID, cursor int64) (Page, error)

// PageFuncFor returns the API's page function for d.
func PageFuncFor(api API, d Direction) PageFunc {
	if d == Friend {
		return api.FriendIDsPage
	}
	return api.FollowerIDsPage
}
