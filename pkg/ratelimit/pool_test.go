package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "followgraph/pkg/errors"
	"followgraph/pkg/social"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, values ...string) *Pool[string] {
	t.Helper()
	sched := NewScheduler()
	t.Cleanup(sched.Stop)
	p, err := NewPool(values, sched)
	require.NoError(t, err)
	return p
}

func TestNewPoolRequiresCredentials(t *testing.T) {
	_, err := NewPool[string](nil, NewScheduler())
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
}

func TestAcquireReturnsFirstAvailableInOrder(t *testing.T) {
	p := newTestPool(t, "a", "b", "c")
	ctx := context.Background()

	s1, err := p.Acquire(ctx, social.FollowerPage, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", s1.Value)

	s2, err := p.Acquire(ctx, social.FollowerPage, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "b", s2.Value)

	// Kinds are independent.
	s3, err := p.Acquire(ctx, social.UserLookup, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", s3.Value)
}

func TestReleaseCooldown(t *testing.T) {
	p := newTestPool(t, "a", "b")
	ctx := context.Background()
	const cooldown = 80 * time.Millisecond

	s, err := p.Acquire(ctx, social.FriendPage, time.Millisecond)
	require.NoError(t, err)

	released := time.Now()
	p.Release(s, social.FriendPage, cooldown)
	assert.False(t, s.Available(social.FriendPage))

	var reenabled time.Time
	require.Eventually(t, func() bool {
		if s.Available(social.FriendPage) {
			reenabled = time.Now()
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	assert.GreaterOrEqual(t, reenabled.Sub(released), cooldown)
}

func TestAcquireBlocksUntilReenabled(t *testing.T) {
	p := newTestPool(t, "a", "b")
	ctx := context.Background()

	a, _ := p.Acquire(ctx, social.Relationship, time.Millisecond)
	b, _ := p.Acquire(ctx, social.Relationship, time.Millisecond)
	p.Release(a, social.Relationship, 50*time.Millisecond)
	p.Release(b, social.Relationship, 500*time.Millisecond)

	start := time.Now()
	got, err := p.Acquire(ctx, social.Relationship, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Value)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquireHonoursContext(t *testing.T) {
	p := newTestPool(t, "a", "b")
	bg := context.Background()
	a, _ := p.Acquire(bg, social.UserLookup, time.Millisecond)
	b, _ := p.Acquire(bg, social.UserLookup, time.Millisecond)
	p.Release(a, social.UserLookup, time.Hour)
	p.Release(b, social.UserLookup, time.Hour)

	ctx, cancel := context.WithTimeout(bg, 30*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx, social.UserLookup, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSingleCredentialIsPassThrough(t *testing.T) {
	p, err := NewPool([]string{"only"}, nil)
	require.NoError(t, err)
	assert.True(t, p.Single())

	for i := 0; i < 3; i++ {
		s, err := p.Acquire(context.Background(), social.FollowerPage, time.Hour)
		require.NoError(t, err)
		p.Release(s, social.FollowerPage, time.Hour)
		assert.True(t, s.Available(social.FollowerPage))
	}
}

func TestConcurrentAcquireNeverSharesASlot(t *testing.T) {
	p := newTestPool(t, "a", "b", "c", "d")
	var inUse [4]atomic.Int32
	var overlap atomic.Bool

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				s, err := p.Acquire(context.Background(), social.Relationship, time.Millisecond)
				if err != nil {
					return
				}
				if inUse[s.Index].Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				inUse[s.Index].Add(-1)
				p.Release(s, social.Relationship, 2*time.Millisecond)
			}
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}
