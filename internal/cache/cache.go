// Package cache loads and memoizes decoded sample buffers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/samples"
)

// ErrNoLocator is returned for keys that have no asset to load.
var ErrNoLocator = errors.New("no asset locator")

// warnBytes is the size past which the cache logs a growth warning once.
const warnBytes = 256 << 20

// Decoder turns a fetched payload into a canonical buffer.
type Decoder func(ctx context.Context, data []byte) (*audio.Buffer, error)

// LoadError describes a failed or timed-out load. Failed loads are never
// cached, so a later Acquire retries.
type LoadError struct {
	Key     samples.Key
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.Key, e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Timeout reports whether the load hit its deadline.
func (e *LoadError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries  int   `json:"entries"`
	Bytes    int   `json:"bytes"`
	Fetches  int64 `json:"fetches"`
	Failures int64 `json:"failures"`
}

// Cache holds every decoded buffer for the life of the process. Entries are
// never evicted, so a key is decoded at most once.
type Cache struct {
	fetch   Fetcher
	decode  Decoder
	timeout time.Duration

	mu      sync.RWMutex
	entries map[samples.Key]*audio.Buffer
	bytes   int
	warned  bool

	group    singleflight.Group
	fetches  atomic.Int64
	failures atomic.Int64
}

// New creates a cache. A nil decoder selects audio.Decode.
func New(f Fetcher, d Decoder, timeout time.Duration) *Cache {
	if d == nil {
		d = audio.Decode
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Cache{
		fetch:   f,
		decode:  d,
		timeout: timeout,
		entries: make(map[samples.Key]*audio.Buffer),
	}
}

// Get returns a cached buffer without loading.
func (c *Cache) Get(key samples.Key) (*audio.Buffer, bool) {
	c.mu.RLock()
	b, ok := c.entries[key]
	c.mu.RUnlock()
	return b, ok
}

// Acquire returns the buffer for key, loading it from locator on a miss.
// Concurrent callers for the same key share one fetch. The load itself runs
// on a detached context bounded by the cache timeout, so a caller giving up
// through ctx does not fail the others waiting on the same key.
func (c *Cache) Acquire(ctx context.Context, key samples.Key, locator string) (*audio.Buffer, error) {
	if b, ok := c.Get(key); ok {
		return b, nil
	}
	if locator == "" {
		return nil, &LoadError{Key: key, Err: ErrNoLocator}
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		if b, ok := c.Get(key); ok {
			return b, nil
		}
		return c.load(key, locator)
	})

	select {
	case <-ctx.Done():
		return nil, &LoadError{Key: key, Locator: locator, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, &LoadError{Key: key, Locator: locator, Err: r.Err}
		}
		return r.Val.(*audio.Buffer), nil
	}
}

func (c *Cache) load(key samples.Key, locator string) (*audio.Buffer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.fetches.Add(1)
	start := time.Now()
	data, err := c.fetch.Fetch(ctx, locator)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	b, err := c.decode(ctx, data)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("decode: %w", err)
	}
	// a deadline hit during decode still counts as a timeout
	if err := ctx.Err(); err != nil {
		c.failures.Add(1)
		return nil, err
	}

	c.store(key, b)
	log.Printf("Sample cached: %s (%.2fs, %v)", key, b.Duration().Seconds(), time.Since(start).Round(time.Millisecond))
	return b, nil
}

func (c *Cache) store(key samples.Key, b *audio.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = b
	c.bytes += b.Size()
	if c.bytes > warnBytes && !c.warned {
		c.warned = true
		log.Printf("Sample cache past %d MB (%d entries); entries are never evicted", warnBytes>>20, len(c.entries))
	}
}

// Request pairs a key with its locator for Warm.
type Request struct {
	Key     samples.Key
	Locator string
}

// Warm loads a batch of keys with bounded parallelism. It returns the number
// of keys that ended up cached and the first load error, if any.
func (c *Cache) Warm(ctx context.Context, reqs []Request, parallel int) (int, error) {
	if parallel <= 0 {
		parallel = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	var loaded atomic.Int64
	var firstErr error
	var errOnce sync.Once
	for _, r := range reqs {
		g.Go(func() error {
			if _, err := c.Acquire(gctx, r.Key, r.Locator); err != nil {
				errOnce.Do(func() { firstErr = err })
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load()), firstErr
}

// Stats reports the current cache size and load counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:  len(c.entries),
		Bytes:    c.bytes,
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}
