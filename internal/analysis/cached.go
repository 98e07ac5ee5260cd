package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Cached memoizes baseline reports per transaction list and collapses
// concurrent identical calls into one upstream request. Callers always get
// their own deep copy.
//
// The shared upstream call is detached from the caller that started it, so
// one client going away does not fail the others waiting on the same key.
type Cached struct {
	next        Analyzer
	cache       *cache.LRUCache[core.Report]
	group       singleflight.Group
	callTimeout time.Duration
	logger      *log.Logger
}

// CachedOption configures a Cached analyzer.
type CachedOption func(*Cached)

// WithCallTimeout bounds the shared upstream call. Zero leaves it to the
// wrapped analyzer.
func WithCallTimeout(d time.Duration) CachedOption {
	return func(c *Cached) { c.callTimeout = d }
}

// NewCached wraps next with an LRU of the given size and TTL.
func NewCached(next Analyzer, size int, ttl time.Duration, logger *log.Logger, opts ...CachedOption) *Cached {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Cached{
		next:   next,
		cache:  cache.NewLRUCache[core.Report](size, ttl),
		logger: logger.WithComponent(log.ComponentAnalysis),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Name() string {
	return NameOf(c.next) + "+cache"
}

// Cache exposes the underlying LRU for cleanup registration and stats.
func (c *Cached) Cache() *cache.LRUCache[core.Report] {
	return c.cache
}

func (c *Cached) Analyze(ctx context.Context, txs []core.Transaction) (core.Report, error) {
	key, err := Fingerprint(txs)
	if err != nil {
		return core.Report{}, err
	}

	if report, ok := c.cache.Get(key); ok {
		c.logger.DebugContext(ctx, "Analysis served from cache", log.FieldCacheHit, true, log.FieldTransactions, len(txs))
		return report.Clone(), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if c.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, c.callTimeout)
			defer cancel()
		}
		report, err := c.next.Analyze(callCtx, txs)
		if err != nil {
			return core.Report{}, err
		}
		c.cache.Set(key, report.Clone())
		return report, nil
	})

	select {
	case <-ctx.Done():
		return core.Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Report{}, res.Err
		}
		c.logger.DebugContext(ctx, "Analysis completed", log.FieldCacheHit, false, "shared", res.Shared, log.FieldTransactions, len(txs))
		return res.Val.(core.Report).Clone(), nil
	}
}

// Fingerprint hashes the canonical JSON form of txs. Order matters: the
// collaborator sees the list in order.
func Fingerprint(txs []core.Transaction) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range txs {
		if err := enc.Encode(txs[i]); err != nil {
			return "", fmt.Errorf("fingerprint transaction %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
