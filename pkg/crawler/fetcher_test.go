package crawler

import (
	"context"
	"testing"
	"time"

	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagesByCursor serves a fixed page per requested cursor and records the
// cursors asked for.
func pagesByCursor(pages map[int64]social.Page, asked *[]int64) social.PageFunc {
	return func(_ context.Context, _ social.UserID, cursor int64) (social.Page, error) {
		*asked = append(*asked, cursor)
		p, ok := pages[cursor]
		if !ok {
			return social.Page{}, errs.New(errs.ErrorTypeUnknown, 0, "unexpected cursor")
		}
		return p, nil
	}
}

func TestFetchAllStopsOnRepeatedCursor(t *testing.T) {
	var asked []int64
	pageFn := pagesByCursor(map[int64]social.Page{
		-1: {Next: 5, Prev: 0, IDs: []social.UserID{"a", "b"}},
		5:  {Next: 5, Prev: -1, IDs: []social.UserID{"c"}},
	}, &asked)

	f := NewFetcher(false, 0, logger.NewNopLogger())
	ids, err := f.FetchAll(context.Background(), "u", pageFn)
	require.NoError(t, err)

	assert.Equal(t, []social.UserID{"a", "b", "c"}, ids)
	assert.Equal(t, []int64{-1, 5}, asked)
}

func TestFetchAllStopsWhenNextEqualsPrev(t *testing.T) {
	var asked []int64
	pageFn := pagesByCursor(map[int64]social.Page{
		-1: {Next: 7, Prev: 0, IDs: []social.UserID{"a"}},
		7:  {Next: 9, Prev: 9, IDs: []social.UserID{"b"}},
	}, &asked)

	ids, err := NewFetcher(false, 0, logger.NewNopLogger()).FetchAll(context.Background(), "u", pageFn)
	require.NoError(t, err)
	assert.Equal(t, []social.UserID{"a", "b"}, ids)
	assert.Equal(t, []int64{-1, 7}, asked)
}

func TestFetchAllFollowsCursorsToZero(t *testing.T) {
	var asked []int64
	pageFn := pagesByCursor(map[int64]social.Page{
		-1: {Next: 11, IDs: []social.UserID{"a"}},
		11: {Next: 12, Prev: -11, IDs: []social.UserID{"b"}},
		12: {Next: 0, Prev: -12, IDs: []social.UserID{"c"}},
	}, &asked)

	ids, err := NewFetcher(false, 0, logger.NewNopLogger()).FetchAll(context.Background(), "u", pageFn)
	require.NoError(t, err)
	assert.Equal(t, []social.UserID{"a", "b", "c"}, ids)
	assert.Equal(t, []int64{-1, 11, 12}, asked)
}

func TestFetchAllEmptyListIsNotNil(t *testing.T) {
	var asked []int64
	pageFn := pagesByCursor(map[int64]social.Page{-1: {Next: 0}}, &asked)

	ids, err := NewFetcher(false, 0, logger.NewNopLogger()).FetchAll(context.Background(), "u", pageFn)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestFetchAllReturnsErrorsUnchanged(t *testing.T) {
	calls := 0
	limited := errs.New(errs.ErrorTypeRateLimit, 429, "slow down")
	pageFn := func(_ context.Context, _ social.UserID, cursor int64) (social.Page, error) {
		calls++
		if cursor == -1 {
			return social.Page{Next: 3, IDs: []social.UserID{"a"}}, nil
		}
		return social.Page{}, limited
	}

	ids, err := NewFetcher(false, 0, logger.NewNopLogger()).FetchAll(context.Background(), "u", pageFn)
	assert.Same(t, limited, err)
	assert.Nil(t, ids)
	assert.Equal(t, 2, calls)
}

func TestFetchAllPacesPagesWithOneCredential(t *testing.T) {
	var asked []int64
	pageFn := pagesByCursor(map[int64]social.Page{
		-1: {Next: 1},
		1:  {Next: 2},
		2:  {Next: 0},
	}, &asked)

	start := time.Now()
	_, err := NewFetcher(true, 20*time.Millisecond, logger.NewNopLogger()).FetchAll(context.Background(), "u", pageFn)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Len(t, asked, 3)
}

func TestFetchAllPacingHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pageFn := func(_ context.Context, _ social.UserID, cursor int64) (social.Page, error) {
		cancel()
		return social.Page{Next: cursor + 10}, nil
	}

	_, err := NewFetcher(true, time.Hour, logger.NewNopLogger()).FetchAll(ctx, "u", pageFn)
	assert.ErrorIs(t, err, context.Canceled)
}
