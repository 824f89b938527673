// Package bookingcache keeps fetched bookings per (kind, location, day) so
// that picker sessions and the slots endpoint share one upstream request.
package bookingcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"bookingslots/internal/metrics"
	"bookingslots/internal/model"
	"bookingslots/internal/slots"
)

// Key identifies one day of bookings for one resource.
type Key struct {
	Kind       model.Kind
	LocationID string
	Day        string // YYYY-MM-DD in the facility timezone
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.LocationID, k.Day)
}

// Result is one successful fetch.
type Result struct {
	Intervals    []slots.Interval
	Appointments []model.Appointment
	FetchedAt    time.Time
}

// FetchFunc loads the bookings for key from the backend.
type FetchFunc func(ctx context.Context, key Key) (*Result, error)

type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Snapshot is what a non-blocking lookup sees.
type Snapshot struct {
	Status Status
	Result *Result
	Err    error
}

type entry struct {
	result    *Result
	err       error
	expiresAt time.Time
}

// Options tune the cache. Zero values fall back to defaults.
type Options struct {
	Size         int
	TTL          time.Duration
	ErrorTTL     time.Duration
	FetchTimeout time.Duration
}

// Cache is a bounded TTL cache with in-flight de-duplication. Invalidate
// bumps the key's generation; a fetch started under an older generation
// never writes its result. Generations are only tracked while a fetch for
// the key is running.
type Cache struct {
	fetch  FetchFunc
	opts   Options
	logger *zerolog.Logger

	mu       sync.Mutex
	entries  *lru.Cache[Key, *entry]
	gens     map[Key]uint64
	inflight map[Key]int
	group    singleflight.Group

	now func() time.Time
}

// New creates a cache around fetch.
func New(fetch FetchFunc, opts Options, logger *zerolog.Logger) (*Cache, error) {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	entries, err := lru.New[Key, *entry](opts.Size)
	if err != nil {
		return nil, err
	}

	return &Cache{
		fetch:    fetch,
		opts:     opts,
		logger:   logger,
		entries:  entries,
		gens:     make(map[Key]uint64),
		inflight: make(map[Key]int),
		now:      time.Now,
	}, nil
}

// Lookup never blocks. On a miss it starts a background fetch and reports
// StatusPending; later lookups see the stored outcome.
func (c *Cache) Lookup(key Key) Snapshot {
	if snap, ok := c.cached(key); ok {
		return snap
	}
	metrics.IncCacheLookup("pending")
	c.group.DoChan(key.String(), c.loader(key))
	return Snapshot{Status: StatusPending}
}

// Get returns the bookings for key, waiting for a fetch if needed. A cached
// failure is returned as an error until it expires.
func (c *Cache) Get(ctx context.Context, key Key) (*Result, error) {
	if snap, ok := c.cached(key); ok {
		return snap.Result, snap.Err
	}
	metrics.IncCacheLookup("miss")

	ch := c.group.DoChan(key.String(), c.loader(key))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

// Invalidate drops key and makes any in-flight fetch for it stale.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if c.inflight[key] > 0 {
		c.gens[key]++
	}
	c.entries.Remove(key)
	c.mu.Unlock()

	c.group.Forget(key.String())
	c.logger.Debug().Str("key", key.String()).Msg("booking cache invalidated")
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) cached(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return Snapshot{}, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		return Snapshot{}, false
	}
	if e.err != nil {
		metrics.IncCacheLookup("failed")
		return Snapshot{Status: StatusFailed, Err: e.err}, true
	}
	metrics.IncCacheLookup("hit")
	return Snapshot{Status: StatusReady, Result: e.result}, true
}

// loader returns the singleflight body for key. The generation is read when
// the fetch starts, so only invalidations that happen during the fetch make
// it stale.
func (c *Cache) loader(key Key) func() (any, error) {
	return func() (any, error) {
		gen := c.begin(key)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
		defer cancel()

		res, err := c.fetch(ctx, key)
		if err == nil && res == nil {
			res = &Result{}
		}
		if res != nil && res.FetchedAt.IsZero() {
			res.FetchedAt = c.now()
		}
		c.store(key, gen, res, err)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

func (c *Cache) begin(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key]++
	return c.gens[key]
}

func (c *Cache) store(key Key, gen uint64, res *Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.gens[key] != gen
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
		delete(c.gens, key)
	}

	if stale {
		metrics.IncStaleDiscarded()
		c.logger.Debug().Str("key", key.String()).Msg("discarding stale booking fetch")
		return
	}

	ttl := c.opts.TTL
	if err != nil {
		ttl = c.opts.ErrorTTL
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("booking fetch failed")
	}
	c.entries.Add(key, &entry{result: res, err: err, expiresAt: c.now().Add(ttl)})
}
