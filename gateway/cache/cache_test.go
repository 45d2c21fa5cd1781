package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

func setupRedisCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(Config{}, rdb, zap.NewNop())
}

func simplePolicy() *types.CachePolicy {
	return &types.CachePolicy{Mode: types.CacheSimple, TTL: time.Minute}
}

func okEntry(body string) *Entry {
	return &Entry{Status: 200, ContentType: "application/json", Body: []byte(body)}
}

func TestFingerprintStability(t *testing.T) {
	req := &types.Request{
		Function: types.FunctionChatComplete,
		Chat: &types.ChatBody{
			Model:    "gpt-4o",
			Messages: []types.Message{types.NewUserMessage("ping")},
		},
	}

	a := Fingerprint("openai", "gpt-4o", types.FunctionChatComplete, req, false)
	b := Fingerprint("openai", "gpt-4o", types.FunctionChatComplete, req, false)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("groq", "gpt-4o", types.FunctionChatComplete, req, false))
	assert.NotEqual(t, a, Fingerprint("openai", "gpt-4o", types.FunctionChatComplete, req, true),
		"strict flag participates in the fingerprint")
}

func TestDisabledModeBypasses(t *testing.T) {
	c := New(Config{}, nil, nil)

	var calls int32
	entry, status, err := c.Fetch(context.Background(), nil, Lookup{Fingerprint: "fp"}, func(context.Context) (*Entry, error) {
		atomic.AddInt32(&calls, 1)
		return okEntry("a"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheNA, status)
	assert.Equal(t, []byte("a"), entry.Body)

	// Second call computes again: nothing was stored.
	_, status, err = c.Fetch(context.Background(), nil, Lookup{Fingerprint: "fp"}, func(context.Context) (*Entry, error) {
		atomic.AddInt32(&calls, 1)
		return okEntry("a"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheNA, status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSimpleMissThenHit(t *testing.T) {
	c := New(Config{}, nil, nil)
	lookup := Lookup{Fingerprint: "fp-1"}

	entry, status, err := c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
		return okEntry("cached"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)
	assert.Equal(t, []byte("cached"), entry.Body)

	entry, status, err = c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
		t.Fatal("hit must not reach upstream")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheHit, status)
	assert.Equal(t, []byte("cached"), entry.Body)
}

func TestConcurrentHitsCountSafely(t *testing.T) {
	c := New(Config{}, nil, nil)
	lookup := Lookup{Fingerprint: "fp-hits"}

	_, _, err := c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
		return okEntry("shared"), nil
	})
	require.NoError(t, err)

	const hits = 64
	var wg sync.WaitGroup
	for i := 0; i < hits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, status, err := c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
				t.Error("hit must not reach upstream")
				return nil, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, types.CacheHit, status)
		}()
	}
	wg.Wait()

	entry, ok := c.local.Get("fp-hits")
	require.True(t, ok)
	assert.EqualValues(t, hits, entry.Hits())
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(Config{}, nil, nil)
	lookup := Lookup{Fingerprint: "fp-err"}

	_, status, err := c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
		return nil, errors.New("upstream down")
	})
	require.Error(t, err)
	assert.Equal(t, types.CacheMiss, status)

	_, status, err = c.Fetch(context.Background(), simplePolicy(), lookup, func(context.Context) (*Entry, error) {
		return okEntry("recovered"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status, "failed computations leave no entry behind")
}

func TestForceRefreshBypassesLookupButWrites(t *testing.T) {
	c := New(Config{}, nil, nil)
	policy := simplePolicy()

	_, _, err := c.Fetch(context.Background(), policy, Lookup{Fingerprint: "fp-2"}, func(context.Context) (*Entry, error) {
		return okEntry("v1"), nil
	})
	require.NoError(t, err)

	entry, status, err := c.Fetch(context.Background(), policy, Lookup{Fingerprint: "fp-2", ForceRefresh: true}, func(context.Context) (*Entry, error) {
		return okEntry("v2"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)
	assert.Equal(t, []byte("v2"), entry.Body)

	entry, status, err = c.Fetch(context.Background(), policy, Lookup{Fingerprint: "fp-2"}, func(context.Context) (*Entry, error) {
		t.Fatal("refreshed entry must serve the follow-up")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheHit, status)
	assert.Equal(t, []byte("v2"), entry.Body, "the forced refresh replaced the stored entry")
}

func TestMaxAgeTreatsStaleAsMiss(t *testing.T) {
	c := New(Config{}, nil, nil)
	policy := &types.CachePolicy{Mode: types.CacheSimple, TTL: time.Hour, MaxAge: 10 * time.Millisecond}
	lookup := Lookup{Fingerprint: "fp-3"}

	_, _, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		return okEntry("old"), nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, status, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		return okEntry("new"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)
}

func TestSingleFlightCollapsesConcurrentMisses(t *testing.T) {
	c := New(Config{}, nil, nil)
	policy := simplePolicy()
	lookup := Lookup{Fingerprint: "fp-sf"}

	var upstreamCalls int32
	release := make(chan struct{})

	const n = 16
	var wg sync.WaitGroup
	statuses := make([]types.CacheStatus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, status, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
				atomic.AddInt32(&upstreamCalls, 1)
				<-release
				return okEntry("shared"), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []byte("shared"), entry.Body)
			statuses[i] = status
		}(i)
	}

	// Give all goroutines time to join the flight, then let the leader go.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&upstreamCalls),
		"concurrent identical misses collapse to one upstream call")
	for _, s := range statuses {
		assert.Equal(t, types.CacheMiss, s)
	}
}

func TestLeaderCancellationPromotesWaiter(t *testing.T) {
	c := New(Config{}, nil, nil)
	policy := simplePolicy()
	lookup := Lookup{Fingerprint: "fp-cancel"}

	started := make(chan struct{})
	release := make(chan struct{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := c.Fetch(leaderCtx, policy, lookup, func(ctx context.Context) (*Entry, error) {
			close(started)
			select {
			case <-release:
				return okEntry("survived"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
		leaderDone <- err
	}()

	<-started

	waiterDone := make(chan struct{})
	var waiterEntry *Entry
	go func() {
		defer close(waiterDone)
		entry, _, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
			return okEntry("survived"), nil
		})
		assert.NoError(t, err)
		waiterEntry = entry
	}()

	// Let the waiter join the same flight before the leader walks away.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	require.ErrorIs(t, <-leaderDone, context.Canceled)

	close(release)
	<-waiterDone
	require.NotNil(t, waiterEntry)
	assert.Equal(t, []byte("survived"), waiterEntry.Body,
		"the in-flight computation outlives the canceled leader")
}

func TestSemanticHit(t *testing.T) {
	c := New(Config{}, nil, nil)
	policy := &types.CachePolicy{Mode: types.CacheSemantic, TTL: time.Minute, SimilarityThreshold: 0.95}

	first := Lookup{
		Scope:       "skill-1",
		Fingerprint: "fp-a",
		Embedding:   []float32{1, 0, 0},
	}
	_, status, err := c.Fetch(context.Background(), policy, first, func(context.Context) (*Entry, error) {
		return okEntry("semantic"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)

	// Different exact fingerprint, nearly identical embedding.
	second := Lookup{
		Scope:       "skill-1",
		Fingerprint: "fp-b",
		Embedding:   []float32{0.995, 0.0999, 0},
	}
	entry, status, err := c.Fetch(context.Background(), policy, second, func(context.Context) (*Entry, error) {
		t.Fatal("semantic hit must not reach upstream")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheHit, status)
	assert.Equal(t, []byte("semantic"), entry.Body)

	// Orthogonal embedding in the same scope misses.
	third := Lookup{
		Scope:       "skill-1",
		Fingerprint: "fp-c",
		Embedding:   []float32{0, 0, 1},
	}
	_, status, err = c.Fetch(context.Background(), policy, third, func(context.Context) (*Entry, error) {
		return okEntry("other"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)

	// Scopes are isolated.
	otherScope := Lookup{
		Scope:       "skill-2",
		Fingerprint: "fp-d",
		Embedding:   []float32{1, 0, 0},
	}
	_, status, err = c.Fetch(context.Background(), policy, otherScope, func(context.Context) (*Entry, error) {
		return okEntry("scoped"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)
}

func TestRedisTierBackfillsLocal(t *testing.T) {
	_, c := setupRedisCache(t)
	policy := simplePolicy()
	lookup := Lookup{Fingerprint: "fp-redis"}

	_, _, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		return okEntry("tiered"), nil
	})
	require.NoError(t, err)

	// Drop the local tier; the entry must come back from Redis.
	c.local = newLRUCache(8)

	entry, status, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		t.Fatal("redis tier should have served this")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheHit, status)
	assert.Equal(t, []byte("tiered"), entry.Body)
	assert.Equal(t, 1, c.local.Len(), "redis hits back-fill the local tier")
}

func TestRedisTTLExpiry(t *testing.T) {
	mr, c := setupRedisCache(t)
	policy := &types.CachePolicy{Mode: types.CacheSimple, TTL: time.Second}
	lookup := Lookup{Fingerprint: "fp-ttl"}

	_, _, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		return okEntry("expiring"), nil
	})
	require.NoError(t, err)

	c.local = newLRUCache(8)
	mr.FastForward(2 * time.Second)

	_, status, err := c.Fetch(context.Background(), policy, lookup, func(context.Context) (*Entry, error) {
		return okEntry("fresh"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.CacheMiss, status)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch scores zero")
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}), "zero vector scores zero")
}

func TestLRUEviction(t *testing.T) {
	l := newLRUCache(2)
	exp := time.Now().Add(time.Minute)

	l.Set("a", okEntry("a"), exp)
	l.Set("b", okEntry("b"), exp)
	_, ok := l.Get("a") // a becomes most recent
	require.True(t, ok)

	l.Set("c", okEntry("c"), exp) // evicts b

	_, ok = l.Get("b")
	assert.False(t, ok)
	_, ok = l.Get("a")
	assert.True(t, ok)
	_, ok = l.Get("c")
	assert.True(t, ok)
}
