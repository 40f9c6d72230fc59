package finance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// FitCache memoizes forecast results in memory. Concurrent requests for the
// same key share a single fit. Entries are evicted oldest first once the
// cache is full.
type FitCache struct {
	maxEntries int
	group      singleflight.Group

	mu      sync.Mutex
	entries map[string]*Result
	order   []string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewFitCache creates a cache holding at most maxEntries results. A
// non-positive size disables storage but still collapses concurrent fits.
func NewFitCache(maxEntries int) *FitCache {
	return &FitCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*Result),
	}
}

// Do returns the cached result for key or runs fit, storing its result.
// Errors are not cached. A caller waiting on a fit shared with other callers
// returns ctx.Err() as soon as ctx is done. If a shared fit was cancelled by
// another caller's context while ctx is still live, the fit is retried.
func (c *FitCache) Do(ctx context.Context, key string, fit func() (*Result, error)) (*Result, error) {
	for {
		if r, ok := c.get(key); ok {
			c.hits.Add(1)
			return r.clone(), nil
		}

		ch := c.group.DoChan(key, func() (interface{}, error) {
			if r, ok := c.get(key); ok {
				return r, nil
			}
			c.misses.Add(1)
			r, err := fit()
			if err != nil {
				return nil, err
			}
			c.put(key, r)
			return r, nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			if ctx.Err() == nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
				continue
			}
			return nil, res.Err
		}
		return res.Val.(*Result).clone(), nil
	}
}

// Stats returns the number of cache hits and fits run.
func (c *FitCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of stored results.
func (c *FitCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *FitCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *FitCache) put(key string, r *Result) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = r
	c.order = append(c.order, key)
}
