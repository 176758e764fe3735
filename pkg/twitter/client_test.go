package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"followgraph/pkg/auth"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient starts a server with handler and returns a bearer client
// pointed at it.
func newTestClient(t *testing.T, log logger.Logger, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), ClientConfig{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		Credential: &auth.Credential{Name: "test", BearerToken: "tok"},
	}, log)
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsInvalidCredential(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{
		Credential: &auth.Credential{Name: "empty"},
	}, logger.NewTestLogger())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
}

func TestFollowerIDsPage(t *testing.T) {
	client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, FollowerIDsEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "42", q.Get("user_id"))
		assert.Equal(t, "-1", q.Get("cursor"))
		assert.Equal(t, "5000", q.Get("count"))
		assert.Equal(t, "true", q.Get("stringify_ids"))
		fmt.Fprint(w, `{"ids":["1","2","3"],"next_cursor":5,"previous_cursor":0}`)
	})

	page, err := client.FollowerIDsPage(context.Background(), "42", social.FirstCursor)
	require.NoError(t, err)
	assert.Equal(t, []social.UserID{"1", "2", "3"}, page.IDs)
	assert.Equal(t, int64(5), page.Next)
	assert.Equal(t, int64(0), page.Prev)
}

func TestFriendIDsPageEmpty(t *testing.T) {
	client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, FriendIDsEndpoint, r.URL.Path)
		fmt.Fprint(w, `{"ids":[],"next_cursor":0,"previous_cursor":0}`)
	})

	page, err := client.FriendIDsPage(context.Background(), "7", social.FirstCursor)
	require.NoError(t, err)
	assert.NotNil(t, page.IDs)
	assert.Empty(t, page.IDs)
}

func TestUserAndRelationship(t *testing.T) {
	client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case UserShowEndpoint:
			fmt.Fprint(w, `{"id_str":"9","screen_name":"nine","protected":true}`)
		case FriendshipShowEndpoint:
			assert.Equal(t, "1", r.URL.Query().Get("source_id"))
			assert.Equal(t, "2", r.URL.Query().Get("target_id"))
			fmt.Fprint(w, `{"relationship":{"source":{"following":true,"followed_by":false},"target":{"following":false}}}`)
		default:
			http.NotFound(w, r)
		}
	})

	profile, err := client.User(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, social.Profile{ID: "9", ScreenName: "nine", Protected: true}, profile)

	rel, err := client.Relationship(context.Background(), "1", "2")
	require.NoError(t, err)
	assert.True(t, rel.SourceFollowsTarget)
	assert.False(t, rel.TargetFollowsSource)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   errs.ErrorType
	}{
		{"too many requests", 429, `{"errors":[{"code":88,"message":"Rate limit exceeded"}]}`, errs.ErrorTypeRateLimit},
		{"rate limit code only", 400, `{"errors":[{"code":88,"message":"Rate limit exceeded"}]}`, errs.ErrorTypeRateLimit},
		{"protected listing", 401, `{"request":"/1.1/followers/ids.json","error":"Not authorized."}`, errs.ErrorTypeProtected},
		{"invalid token", 401, `{"errors":[{"code":89,"message":"Invalid or expired token."}]}`, errs.ErrorTypeAuth},
		{"no such user", 404, `{"errors":[{"code":34,"message":"Sorry, that page does not exist."}]}`, errs.ErrorTypeNotFound},
		{"user not found", 404, `{"errors":[{"code":50,"message":"User not found."}]}`, errs.ErrorTypeNotFound},
		{"suspended", 403, `{"errors":[{"code":63,"message":"User has been suspended."}]}`, errs.ErrorTypeSuspended},
		{"locked account", 403, `{"errors":[{"code":326,"message":"To protect our users from spam, this account is temporarily locked."}]}`, errs.ErrorTypeUnknown},
		{"bare 403", 403, ``, errs.ErrorTypeUnknown},
		{"bare 404", 404, ``, errs.ErrorTypeNotFound},
		{"service unavailable", 503, `<html>over capacity</html>`, errs.ErrorTypeServerError},
		{"bad gateway", 502, ``, errs.ErrorTypeServerError},
		{"other", 418, ``, errs.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.FollowerIDsPage(context.Background(), "1", social.FirstCursor)
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestParsingError(t *testing.T) {
	log := logger.NewTestLogger()
	client := newTestClient(t, log, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ids": not json`)
	})

	_, err := client.FollowerIDsPage(context.Background(), "1", social.FirstCursor)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client, err := NewClient(context.Background(), ClientConfig{
		BaseURL:    base,
		Timeout:    time.Second,
		Credential: &auth.Credential{Name: "test", BearerToken: "tok"},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = client.User(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
	assert.True(t, errs.IsTransient(err))
}

func TestCancelledContextIsNotANetworkError(t *testing.T) {
	client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.User(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientCredentialsGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(TokenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck", user)
		assert.Equal(t, "cs", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"bearer","access_token":"app-token"}`)
	})
	mux.HandleFunc(UserShowEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id_str":"5","screen_name":"five"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientConfig{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		Credential: &auth.Credential{Name: "app", ConsumerKey: "ck", ConsumerSecret: "cs"},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	profile, err := client.User(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "five", profile.ScreenName)
}

func TestTokenRejectionIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":[{"code":99,"message":"Unable to verify your credentials"}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientConfig{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		Credential: &auth.Credential{Name: "app", ConsumerKey: "ck", ConsumerSecret: "bad"},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = client.User(context.Background(), "5")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.False(t, errs.IsTransient(err))
}

func TestVerifyCredentials(t *testing.T) {
	client := newTestClient(t, logger.NewTestLogger(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RateLimitStatusEndpoint, r.URL.Path)
		fmt.Fprint(w, `{"resources":{
			"followers":{"/followers/ids":{"limit":15,"remaining":14,"reset":1700000000}},
			"friendships":{"/friendships/show":{"limit":180,"remaining":180,"reset":1700000000}}}}`)
	})

	statuses, err := client.VerifyCredentials(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "/followers/ids", statuses[0].Resource)
	assert.Equal(t, 14, statuses[0].Remaining)
	assert.Equal(t, time.Unix(1700000000, 0), statuses[1].Reset)
}

func TestRequestLogging(t *testing.T) {
	log := logger.NewTestLogger()
	client := newTestClient(t, log, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id_str":"1"}`)
	})

	_, err := client.User(context.Background(), "1")
	require.NoError(t, err)

	assert.True(t, log.HasMessage("sending HTTP request"))
	completed := log.GetMessagesByLevel("DEBUG")
	require.NotEmpty(t, completed)
	last := completed[len(completed)-1]
	assert.Equal(t, "HTTP request completed", last.Message)
	assert.Equal(t, 200, last.Fields["status"])
	assert.Equal(t, "test", last.Fields["credential"])
}
