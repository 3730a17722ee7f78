// Package query is the client-side query cache: keyed pages of server data
// with staleness, in-flight de-duplication, prefix invalidation and the
// optimistic-mutation protocol.
package query

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/booking-client/pkg/metrics"
)

// Fetcher loads the value for a key from the network.
type Fetcher func(ctx context.Context) (interface{}, error)

type Options struct {
	// StaleTime overrides the cache-wide freshness window.
	StaleTime time.Duration
	// KeepPrevious returns the latest page cached under the same resource
	// as a stale placeholder while an uncached page/filter combination
	// resolves, instead of returning nothing.
	KeepPrevious bool
}

// Result is the synchronous answer of Get: the current value (possibly
// stale), whether a refresh is in flight, and the last fetch error.
type Result struct {
	Value   interface{}
	Stale   bool
	Loading bool
	Err     error
}

type entry struct {
	value     interface{}
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	err       error
}

// Cache is the process-wide query cache singleton. All mutations of the
// entry map happen under mu; network fetches run outside the lock and
// re-enter through commit.
type Cache struct {
	mu      sync.Mutex
	entries *gocache.Cache
	group   singleflight.Group
	gens    map[string]uint64
	metrics *metrics.Metrics
	logger  *zerolog.Logger

	defaultStale time.Duration
}

func NewCache(defaultStale, eviction time.Duration, m *metrics.Metrics, logger *zerolog.Logger) *Cache {
	if defaultStale <= 0 {
		defaultStale = 30 * time.Second
	}
	if eviction <= 0 {
		eviction = 15 * time.Minute
	}
	return &Cache{
		entries:      gocache.New(eviction, 2*eviction),
		gens:         make(map[string]uint64),
		metrics:      m,
		logger:       logger,
		defaultStale: defaultStale,
	}
}

func (c *Cache) lookupLocked(ks string) *entry {
	if v, ok := c.entries.Get(ks); ok {
		return v.(*entry)
	}
	return nil
}

// genForLocked sums the generations of every cancelled prefix covering ks.
// A fetch captures this at dispatch; a different value at commit time means
// a mutation cancelled the key family in between.
func (c *Cache) genForLocked(ks string) uint64 {
	var gen uint64
	for prefix, n := range c.gens {
		if strings.HasPrefix(ks, prefix) {
			gen += n
		}
	}
	return gen
}

// Get returns the cached value for key, possibly stale, and triggers an
// asynchronous refresh when the entry is missing, stale or past its
// freshness window. It never blocks on the network.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher, opts Options) Result {
	ks := key.String()
	staleTime := opts.StaleTime
	if staleTime <= 0 {
		staleTime = c.defaultStale
	}

	c.mu.Lock()
	e := c.lookupLocked(ks)
	if e != nil && e.hasValue && !e.stale && time.Since(e.fetchedAt) < staleTime {
		value := e.value
		c.mu.Unlock()
		c.metrics.CacheHits.Inc()
		return Result{Value: value}
	}

	res := Result{Loading: true}
	if e != nil {
		res.Err = e.err
		if e.hasValue {
			res.Value = e.value
			res.Stale = true
		}
	}
	if res.Value == nil && opts.KeepPrevious {
		if prev := c.latestLocked(key.Resource); prev != nil {
			res.Value = prev.value
			res.Stale = true
		}
	}
	gen := c.genForLocked(ks)
	c.mu.Unlock()

	c.metrics.CacheMisses.Inc()
	go c.resolve(context.WithoutCancel(ctx), ks, gen, fetch)
	return res
}

// GetWait returns a fresh value for key, joining the in-flight fetch when
// one exists. Two concurrent calls for the same key produce one network
// call and share its result.
func (c *Cache) GetWait(ctx context.Context, key Key, fetch Fetcher, opts Options) (interface{}, error) {
	ks := key.String()
	staleTime := opts.StaleTime
	if staleTime <= 0 {
		staleTime = c.defaultStale
	}

	c.mu.Lock()
	e := c.lookupLocked(ks)
	if e != nil && e.hasValue && !e.stale && time.Since(e.fetchedAt) < staleTime {
		value := e.value
		c.mu.Unlock()
		c.metrics.CacheHits.Inc()
		return value, nil
	}
	gen := c.genForLocked(ks)
	c.mu.Unlock()

	c.metrics.CacheMisses.Inc()
	value, err, shared := c.resolve(ctx, ks, gen, fetch)
	if shared {
		c.metrics.CacheJoins.Inc()
	}
	return value, err
}

// resolve funnels all fetches for a key through one singleflight slot, so
// overlapping requests attach to the same call. The executing goroutine
// commits the result exactly once.
func (c *Cache) resolve(ctx context.Context, ks string, gen uint64, fetch Fetcher) (interface{}, error, bool) {
	return c.group.Do(ks, func() (interface{}, error) {
		value, err := fetch(ctx)
		c.commit(ks, gen, value, err)
		return value, err
	})
}

func (c *Cache) commit(ks string, gen uint64, value interface{}, fetchErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genForLocked(ks) != gen {
		// A mutation cancelled this key family while the fetch was in
		// flight; the late resolution is dropped, not applied.
		c.metrics.CacheDropped.Inc()
		c.logger.Debug().Str("key", ks).Msg("dropping cancelled fetch result")
		return
	}

	e := c.lookupLocked(ks)
	if e == nil {
		e = &entry{}
	}
	if fetchErr != nil {
		// No automatic retry: the error is recorded and the caller decides
		// whether to re-trigger.
		e.err = fetchErr
		c.entries.SetDefault(ks, e)
		return
	}
	e.value = value
	e.hasValue = true
	e.fetchedAt = time.Now()
	e.stale = false
	e.err = nil
	c.entries.SetDefault(ks, e)
}

// latestLocked finds the most recently fetched entry under a resource
// prefix, for the keep-previous-data placeholder.
func (c *Cache) latestLocked(prefix string) *entry {
	var best *entry
	for ks, item := range c.entries.Items() {
		if !strings.HasPrefix(ks, prefix) {
			continue
		}
		e, ok := item.Object.(*entry)
		if !ok || !e.hasValue {
			continue
		}
		if best == nil || e.fetchedAt.After(best.fetchedAt) {
			best = e
		}
	}
	return best
}

// Invalidate marks every entry under prefix stale. Invalidating twice in a
// row is the same as once; the refetch happens on the next read.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ks, item := range c.entries.Items() {
		if !strings.HasPrefix(ks, prefix) {
			continue
		}
		if e, ok := item.Object.(*entry); ok {
			e.stale = true
		}
	}
	c.metrics.CacheInvalidations.Inc()
}

// CancelPrefix abandons every in-flight fetch under prefix: their eventual
// resolutions will be discarded at commit time.
func (c *Cache) CancelPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[prefix]++
}

// SetValue applies a synchronous local transformation to the cached value.
// The updater must build a new value rather than mutate in place, so earlier
// snapshots stay intact. It contacts no network and is reserved for the
// optimistic-update protocol.
func (c *Cache) SetValue(key Key, update func(interface{}) interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(key.String())
	if e == nil || !e.hasValue {
		return false
	}
	e.value = update(e.value)
	return true
}

// Snapshot returns the current cached value for key, if any.
func (c *Cache) Snapshot(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(key.String())
	if e == nil || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Restore puts a snapshot back verbatim. It reports false when the entry
// has been evicted in the meantime, the tolerated degraded rollback case.
func (c *Cache) Restore(key Key, snapshot interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(key.String())
	if e == nil {
		return false
	}
	e.value = snapshot
	e.hasValue = true
	return true
}
