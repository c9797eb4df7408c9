// Package cache holds the scored lead list in memory with a freshness window.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// Defaults.
const (
	DefaultTTL            = 15 * time.Minute
	DefaultRefreshTimeout = 5 * time.Minute
	refreshKey            = "leads"
)

// Entry is one successful refresh. Leads and Timestamp are always set together.
type Entry struct {
	Timestamp time.Time
	Leads     []types.ScoredLead
}

// Age returns how long ago the entry was produced.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Config configures a LeadCache. Zero values take defaults.
type Config struct {
	Clock          Clock
	Observer       Observer
	TTL            time.Duration
	RefreshTimeout time.Duration
}

// LeadCache serves scored leads, refreshing from its Source when the entry is
// missing, stale, or a refresh is forced. At most one refresh runs at a time.
type LeadCache struct {
	source         Source
	scorer         Scorer
	clock          Clock
	observer       Observer
	entry          *Entry
	group          singleflight.Group
	mu             sync.RWMutex
	ttl            time.Duration
	refreshTimeout time.Duration
}

// New creates an empty LeadCache.
func New(source Source, scorer Scorer, cfg Config) *LeadCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &LeadCache{
		source:         source,
		scorer:         scorer,
		clock:          cfg.Clock,
		observer:       cfg.Observer,
		ttl:            cfg.TTL,
		refreshTimeout: cfg.RefreshTimeout,
	}
}

// TTL returns the freshness window.
func (c *LeadCache) TTL() time.Duration {
	return c.ttl
}

// Leads returns the scored leads, refreshing first when forced or stale.
func (c *LeadCache) Leads(ctx context.Context, forceRefresh bool) ([]types.ScoredLead, error) {
	entry, err := c.Get(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return entry.Leads, nil
}

// Get returns the current entry, refreshing first when forced or stale.
func (c *LeadCache) Get(ctx context.Context, forceRefresh bool) (Entry, error) {
	if !forceRefresh {
		if entry, ok := c.fresh(); ok {
			c.observer.CacheHit()
			return entry, nil
		}
	}
	c.observer.CacheMiss()
	return c.refresh(ctx, forceRefresh)
}

// Cached returns the current entry regardless of age. It refreshes only when
// nothing has been cached yet.
func (c *LeadCache) Cached(ctx context.Context) (Entry, error) {
	if entry, ok := c.Snapshot(); ok {
		c.observer.CacheHit()
		return entry, nil
	}
	c.observer.CacheMiss()
	return c.refresh(ctx, false)
}

// Snapshot returns the current entry without refreshing.
func (c *LeadCache) Snapshot() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Entry{}, false
	}
	return *c.entry, true
}

func (c *LeadCache) fresh() (Entry, bool) {
	entry, ok := c.Snapshot()
	if !ok || entry.Age(c.clock.Now()) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

// refreshResult is what a refresh flight hands every caller that joined it.
type refreshResult struct {
	entry   Entry
	fetched bool
}

// refresh joins the in-flight refresh or starts one. The caller may give up
// when ctx ends; the refresh itself keeps running. A forced caller that joined
// a flight answered from the cache starts another one.
func (c *LeadCache) refresh(ctx context.Context, forceRefresh bool) (Entry, error) {
	for {
		res, err := c.joinRefresh(ctx, forceRefresh)
		if err != nil {
			return Entry{}, err
		}
		if res.fetched || !forceRefresh {
			return res.entry, nil
		}
	}
}

func (c *LeadCache) joinRefresh(ctx context.Context, forceRefresh bool) (refreshResult, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// A refresh that finished between our freshness check and now already
		// satisfies non-forced callers.
		if !forceRefresh {
			if entry, ok := c.fresh(); ok {
				return refreshResult{entry: entry}, nil
			}
		}
		entry, err := c.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		return refreshResult{entry: entry, fetched: true}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return refreshResult{}, res.Err
		}
		out, ok := res.Val.(refreshResult)
		if !ok {
			return refreshResult{}, fmt.Errorf("unexpected refresh result type %T", res.Val)
		}
		return out, nil
	case <-ctx.Done():
		return refreshResult{}, ctx.Err()
	}
}

func (c *LeadCache) load(ctx context.Context) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	refreshID := uuid.NewString()
	start := time.Now()
	slog.InfoContext(ctx, "Refreshing leads", "component", "cache", "refresh_id", refreshID)

	records, err := c.source.FetchAll(ctx)
	if err != nil {
		c.observer.RefreshFailed(time.Since(start))
		slog.ErrorContext(ctx, "Lead refresh failed", "component", "cache", "refresh_id", refreshID,
			"duration", time.Since(start), "error", err)
		return Entry{}, fmt.Errorf("refresh leads: %w", err)
	}

	now := c.clock.Now()
	entry := Entry{Leads: c.scorer.ScoreAll(records, now), Timestamp: now}

	c.mu.Lock()
	c.entry = &entry
	c.mu.Unlock()

	c.observer.RefreshSucceeded(len(entry.Leads), time.Since(start))
	slog.InfoContext(ctx, "Lead refresh complete", "component", "cache", "refresh_id", refreshID,
		"count", len(entry.Leads), "duration", time.Since(start))
	return entry, nil
}
