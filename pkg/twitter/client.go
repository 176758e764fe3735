package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"followgraph/pkg/auth"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/social"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientConfig configures one API client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Credential *auth.Credential
	// HTTPClient replaces the transport; the token exchange also uses it.
	HTTPClient *http.Client
}

// Client talks to the v1.1 REST API with one credential. It implements
// social.API and social.Verifier.
type Client struct {
	httpClient *http.Client
	baseURL    string
	name       string
	logger     logger.Logger
}

// NewClient builds a client authenticated with the credential's bearer
// token, or with an app-only token obtained through the client
// credentials grant.
func NewClient(ctx context.Context, cfg ClientConfig, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := cfg.Credential.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "invalid API credential")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = BaseURL
	}

	raw := cfg.HTTPClient
	if raw == nil {
		raw = &http.Client{Timeout: cfg.Timeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, raw)

	var httpClient *http.Client
	if cfg.Credential.BearerToken != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Credential.BearerToken,
			TokenType:   "Bearer",
		}))
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.Credential.ConsumerKey,
			ClientSecret: cfg.Credential.ConsumerSecret,
			TokenURL:     base + TokenEndpoint,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		httpClient = cc.Client(ctx)
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		name:       cfg.Credential.Name,
		logger:     log.WithField("credential", cfg.Credential.Name),
	}, nil
}

// Name returns the credential name
func (c *Client) Name() string { return c.name }

// doRequest performs an HTTP request and logs its timing
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// token endpoint failures surface here
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, c.classify(rerr.Response.StatusCode, rerr.Body, req.URL.Path)
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"path":     req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// getJSON performs a GET and decodes a 200 body into target
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return c.classify(resp.StatusCode, body, req.URL.Path)
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"path":         req.URL.Path,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "failed to parse JSON",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// classify maps a non-200 response to a typed error. API error codes win
// over the HTTP status when both are present.
func (c *Client) classify(status int, body []byte, path string) error {
	var envelope errorResponse
	_ = json.Unmarshal(body, &envelope)

	code := 0
	message := http.StatusText(status)
	if len(envelope.Errors) > 0 {
		code = envelope.Errors[0].Code
		message = envelope.Errors[0].Message
	} else if envelope.Error != "" {
		message = envelope.Error
	}

	var t errs.ErrorType
	switch {
	case status == http.StatusTooManyRequests || code == codeRateLimitExceeded:
		t = errs.ErrorTypeRateLimit
	case code == codeNoSuchUser || code == codeUserNotFound || status == http.StatusNotFound:
		t = errs.ErrorTypeNotFound
	case code == codeSuspended:
		t = errs.ErrorTypeSuspended
	case code == codeInvalidToken || code == codeCouldNotAuthenticate || code == codeUnableToVerify || code == codeBadAuthData:
		t = errs.ErrorTypeAuth
	case status == http.StatusUnauthorized:
		// listings of protected accounts answer 401 without an error code
		t = errs.ErrorTypeProtected
	case status >= 500:
		t = errs.ErrorTypeServerError
	default:
		t = errs.ErrorTypeUnknown
	}

	fields := map[string]interface{}{
		"status": status,
		"code":   code,
		"path":   path,
		"type":   string(t),
	}
	if errs.IsRetryable(t) {
		c.logger.WarnWithFields("API call throttled or failed", fields)
	} else {
		c.logger.DebugWithFields("API call unresolved", fields)
	}

	return errs.New(t, status, message)
}

func (c *Client) record(kind social.OperationKind, err error) {
	result := "ok"
	if err != nil {
		result = string(errs.TypeOf(err))
	}
	metrics.RecordAPICall(kind.String(), result)
}

func (c *Client) idsPage(ctx context.Context, kind social.OperationKind, endpoint string, id social.UserID, cursor int64) (social.Page, error) {
	var resp idsResponse
	err := c.getJSON(ctx, idsURL(c.baseURL, endpoint, id, cursor), &resp)
	c.record(kind, err)
	if err != nil {
		return social.Page{}, err
	}

	ids := resp.IDs
	if ids == nil {
		ids = []social.UserID{}
	}
	return social.Page{Next: resp.NextCursor, Prev: resp.PreviousCursor, IDs: ids}, nil
}

// FollowerIDsPage returns one page of the users following id
func (c *Client) FollowerIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return c.idsPage(ctx, social.FollowerPage, FollowerIDsEndpoint, id, cursor)
}

// FriendIDsPage returns one page of the users id follows
func (c *Client) FriendIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return c.idsPage(ctx, social.FriendPage, FriendIDsEndpoint, id, cursor)
}

// User looks up a profile
func (c *Client) User(ctx context.Context, id social.UserID) (social.Profile, error) {
	var resp userResponse
	err := c.getJSON(ctx, userShowURL(c.baseURL, id), &resp)
	c.record(social.UserLookup, err)
	if err != nil {
		return social.Profile{}, err
	}
	if resp.IDStr == "" {
		resp.IDStr = id
	}
	return social.Profile{ID: resp.IDStr, ScreenName: resp.ScreenName, Protected: resp.Protected}, nil
}

// Relationship reports both follow edges between source and target
func (c *Client) Relationship(ctx context.Context, source, target social.UserID) (social.Friendship, error) {
	var resp friendshipResponse
	err := c.getJSON(ctx, friendshipURL(c.baseURL, source, target), &resp)
	c.record(social.Relationship, err)
	if err != nil {
		return social.Friendship{}, err
	}
	return social.Friendship{
		SourceFollowsTarget: resp.Relationship.Source.Following,
		TargetFollowsSource: resp.Relationship.Target.Following,
	}, nil
}

// VerifyCredentials fetches the rate limit status, which fails unless the
// credential authenticates.
func (c *Client) VerifyCredentials(ctx context.Context) ([]social.RateStatus, error) {
	var resp rateLimitResponse
	if err := c.getJSON(ctx, rateLimitURL(c.baseURL), &resp); err != nil {
		return nil, err
	}

	var out []social.RateStatus
	for _, endpoints := range resp.Resources {
		for endpoint, s := range endpoints {
			out = append(out, social.RateStatus{
				Resource:  endpoint,
				Limit:     s.Limit,
				Remaining: s.Remaining,
				Reset:     time.Unix(s.Reset, 0),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}

var _ social.API = (*Client)(nil)
var _ social.Verifier = (*Client)(nil)

func (c *Client) String() string {
	return fmt.Sprintf("twitter.Client(%s)", c.name)
}
