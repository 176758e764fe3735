// Package twitter binds social.API to the v1.1 REST endpoints.
//
// Client holds one credential and maps every failure to a typed error from
// followgraph/pkg/errors: 429 and code 88 are rate limits, 404 and codes
// 34/50 mean not found, code 63 means suspended, a bare 401 on a listing
// means the account is protected, and 5xx responses are server errors.
//
// Rotator wraps several clients behind one social.API, claiming a client
// per call from a ratelimit.Pool and resting it for the operation's
// cooldown afterwards.
package twitter
