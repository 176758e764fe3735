package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOfWalksChain(t *testing.T) {
	inner := New(ErrorTypeRateLimit, 429, "too many requests")
	wrapped := fmt.Errorf("fetching page: %w", inner)

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(nil, ErrorTypeRateLimit))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := Wrap(ErrorTypeNetwork, cause, "request failed")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "network")
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		transient  bool
		resolution bool
	}{
		{"network", New(ErrorTypeNetwork, 0, "reset"), true, false},
		{"rate limit", New(ErrorTypeRateLimit, 429, "limited"), true, false},
		{"server", New(ErrorTypeServerError, 503, "down"), true, false},
		{"not found", New(ErrorTypeNotFound, 404, "gone"), false, true},
		{"protected", New(ErrorTypeProtected, 401, "private"), false, true},
		{"suspended", New(ErrorTypeSuspended, 403, "suspended"), false, true},
		{"auth", New(ErrorTypeAuth, 401, "bad token"), false, true},
		{"untyped", stderrors.New("boom"), false, true},
		{"corrupt", New(ErrorTypeCorrupt, 0, "bad tile"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.resolution, IsResolution(tt.err))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	for code, want := range map[int]bool{0: true, 429: true, 500: true, 503: true, 401: false, 403: false, 404: false, 400: false} {
		assert.Equal(t, want, IsRetryableStatusCode(code), "status %d", code)
	}
}
