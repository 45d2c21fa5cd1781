// Package cache implements the request-fingerprint response cache: a local
// LRU tier with an optional Redis tier behind it, single-flight collapsing of
// concurrent misses and an embedding bucket for semantic matching.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/idkhub-com/reactive-agents/types"
)

// ErrMiss reports a cache miss from the tier lookups.
var ErrMiss = errors.New("cache miss")

const (
	defaultTTL       = time.Hour
	defaultLocalSize = 1000
	redisPrefix      = "ra:response_cache:"
)

// Entry is one cached upstream response.
type Entry struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	// HitCount is updated atomically: the local tier shares one *Entry
	// across concurrent hits.
	HitCount int64 `json:"hit_count"`
}

// Hits reads the hit counter safely alongside concurrent lookups.
func (e *Entry) Hits() int64 { return atomic.LoadInt64(&e.HitCount) }

// Config holds the cache tiers' knobs.
type Config struct {
	LocalMaxSize int
	DefaultTTL   time.Duration
}

// Lookup identifies one request against the cache.
type Lookup struct {
	// Scope isolates semantic buckets (one per skill or provider+model).
	Scope string
	// Fingerprint is the exact-match key (Fingerprint()).
	Fingerprint string
	// Embedding enables the semantic tier when the policy mode is semantic.
	Embedding []float32
	// ForceRefresh bypasses the lookup but still writes the fresh entry.
	ForceRefresh bool
}

// ComputeFunc performs the upstream call on a miss. The context it receives
// stays alive while at least one caller is still waiting on the flight.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Cache is the two-tier response cache with single-flight miss collapsing.
type Cache struct {
	cfg    Config
	local  *lruCache
	redis  *redis.Client
	logger *zap.Logger

	flights singleflight.Group
	sharedMu sync.Mutex
	shared   map[string]*sharedCtx

	semMu    sync.RWMutex
	semantic map[string][]semanticEntry
}

type semanticEntry struct {
	embedding   []float32
	fingerprint string
}

// New creates a cache. rdb may be nil to run local-only; logger may be nil.
func New(cfg Config, rdb *redis.Client, logger *zap.Logger) *Cache {
	if cfg.LocalMaxSize <= 0 {
		cfg.LocalMaxSize = defaultLocalSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		cfg:      cfg,
		local:    newLRUCache(cfg.LocalMaxSize),
		redis:    rdb,
		logger:   logger.With(zap.String("component", "cache")),
		shared:   make(map[string]*sharedCtx),
		semantic: make(map[string][]semanticEntry),
	}
}

// Fingerprint computes the exact-match cache key for a request attempt.
func Fingerprint(provider, model string, fn types.FunctionName, req *types.Request, strict bool) string {
	payload := struct {
		Provider string             `json:"provider"`
		Model    string             `json:"model"`
		Function types.FunctionName `json:"function"`
		Body     *types.Request     `json:"body"`
		Strict   bool               `json:"strict"`
	}{provider, model, fn, req, strict}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of the canonical request cannot fail in practice; keep a
		// deterministic key anyway.
		data = []byte(provider + ":" + model + ":" + string(fn))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fetch resolves a request through the cache according to the policy. On a
// miss, compute runs once per fingerprint regardless of concurrency and its
// result is stored before any waiter is released.
func (c *Cache) Fetch(ctx context.Context, policy *types.CachePolicy, lookup Lookup, compute ComputeFunc) (*Entry, types.CacheStatus, error) {
	mode := types.CacheDisabled
	if policy != nil {
		mode = policy.Mode
	}
	if mode == types.CacheDisabled || mode == "" {
		entry, err := compute(ctx)
		return entry, types.CacheNA, err
	}

	ttl := c.cfg.DefaultTTL
	if policy.TTL > 0 {
		ttl = policy.TTL
	}

	if !lookup.ForceRefresh {
		if entry := c.get(ctx, lookup.Fingerprint, policy.MaxAge); entry != nil {
			return entry, types.CacheHit, nil
		}
		if mode == types.CacheSemantic && len(lookup.Embedding) > 0 {
			if fp := c.semanticMatch(lookup.Scope, lookup.Embedding, policy.SimilarityThreshold); fp != "" {
				if entry := c.get(ctx, fp, policy.MaxAge); entry != nil {
					return entry, types.CacheHit, nil
				}
			}
		}
	}

	entry, err := c.computeShared(ctx, lookup.Fingerprint, func(sctx context.Context) (*Entry, error) {
		entry, err := compute(sctx)
		if err != nil {
			return nil, err
		}
		c.store(sctx, lookup.Fingerprint, entry, ttl)
		if mode == types.CacheSemantic && len(lookup.Embedding) > 0 {
			c.registerSemantic(lookup.Scope, lookup.Embedding, lookup.Fingerprint)
		}
		return entry, nil
	})
	return entry, types.CacheMiss, err
}

// get probes local then Redis, back-filling local on a Redis hit. A nil
// return is a miss.
func (c *Cache) get(ctx context.Context, key string, maxAge time.Duration) *Entry {
	now := time.Now()
	fresh := func(e *Entry) bool {
		if now.After(e.ExpiresAt) {
			return false
		}
		if maxAge > 0 && now.Sub(e.CreatedAt) > maxAge {
			return false
		}
		return true
	}

	if entry, ok := c.local.Get(key); ok {
		if fresh(entry) {
			atomic.AddInt64(&entry.HitCount, 1)
			return entry
		}
		c.local.Delete(key)
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, redisPrefix+key).Bytes()
		if err == nil {
			var entry Entry
			if json.Unmarshal(data, &entry) == nil && fresh(&entry) {
				atomic.AddInt64(&entry.HitCount, 1)
				c.local.Set(key, &entry, entry.ExpiresAt)
				return &entry
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.Error(err))
		}
	}
	return nil
}

func (c *Cache) store(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	entry.CreatedAt = time.Now()
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	c.local.Set(key, entry, entry.ExpiresAt)

	if c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, redisPrefix+key, data, ttl).Err(); err != nil {
			c.logger.Warn("redis set failed", zap.Error(err))
		}
	}
}

// computeShared collapses concurrent misses for one fingerprint into one
// upstream call. The flight's context is detached from any single caller and
// is canceled only when every waiter has gone away, so a canceled leader
// hands the in-flight call over to the remaining waiters.
func (c *Cache) computeShared(ctx context.Context, key string, fn ComputeFunc) (*Entry, error) {
	sctx := c.acquireShared(key)
	defer c.releaseShared(key)

	ch := c.flights.DoChan(key, func() (any, error) {
		return fn(sctx.ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sharedCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

func (c *Cache) acquireShared(key string) *sharedCtx {
	c.sharedMu.Lock()
	defer c.sharedMu.Unlock()
	s, ok := c.shared[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		s = &sharedCtx{ctx: ctx, cancel: cancel}
		c.shared[key] = s
	}
	s.refs++
	return s
}

func (c *Cache) releaseShared(key string) {
	c.sharedMu.Lock()
	defer c.sharedMu.Unlock()
	s, ok := c.shared[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		s.cancel()
		delete(c.shared, key)
	}
}

// semanticMatch returns the fingerprint of the closest stored embedding in
// the scope when its cosine similarity reaches the threshold.
func (c *Cache) semanticMatch(scope string, embedding []float32, threshold float64) string {
	if threshold <= 0 {
		threshold = 0.95
	}
	c.semMu.RLock()
	defer c.semMu.RUnlock()

	best, bestSim := "", threshold
	for _, se := range c.semantic[scope] {
		sim := CosineSimilarity(embedding, se.embedding)
		if sim >= bestSim {
			best, bestSim = se.fingerprint, sim
		}
	}
	return best
}

func (c *Cache) registerSemantic(scope string, embedding []float32, fingerprint string) {
	c.semMu.Lock()
	defer c.semMu.Unlock()
	for _, se := range c.semantic[scope] {
		if se.fingerprint == fingerprint {
			return
		}
	}
	c.semantic[scope] = append(c.semantic[scope], semanticEntry{embedding, fingerprint})
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
