// Package cache provides a bounded LRU cache that collapses concurrent
// misses for the same key into one load.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

// Observer is notified of hits and misses.
type Observer func(name string, hit bool)

// LRU is a size-bounded cache with per-entry TTL. It is safe for concurrent
// use and meant to be created once and injected where needed.
type LRU[T any] struct {
	name     string
	ttl      time.Duration
	store    *ccache.Cache[T]
	inflight singleflight.Group
	observe  Observer
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	ttl     time.Duration
	prune   uint32
	observe Observer
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithItemsToPrune sets how many entries are evicted when the cache is full.
func WithItemsToPrune(n uint32) Option {
	return func(o *options) { o.prune = n }
}

// WithObserver registers a hit/miss callback.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observe = fn }
}

// NewLRU creates a cache holding at most maxSize entries.
func NewLRU[T any](name string, maxSize int64, opts ...Option) *LRU[T] {
	o := options{ttl: 30 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	if o.prune == 0 {
		o.prune = uint32(maxSize/10) + 1
	}

	return &LRU[T]{
		name:    name,
		ttl:     o.ttl,
		store:   ccache.New(ccache.Configure[T]().MaxSize(maxSize).ItemsToPrune(o.prune)),
		observe: o.observe,
	}
}

// Get returns a live entry.
func (c *LRU[T]) Get(key string) (T, bool) {
	item := c.store.Get(key)
	if item == nil || item.Expired() {
		var zero T
		return zero, false
	}
	return item.Value(), true
}

// Set stores value under key with the cache TTL.
func (c *LRU[T]) Set(key string, value T) {
	c.store.Set(key, value, c.ttl)
}

// GetOrLoad returns the cached value or runs load once for all concurrent
// callers asking for the same key. Errors are not cached.
//
// load runs on a context detached from the caller's cancellation, so a
// caller that gives up does not fail the others waiting on the same key.
// Each caller still returns as soon as its own ctx is done.
func (c *LRU[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		c.record(true)
		return v, nil
	}
	c.record(false)

	loadCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, loaded)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		out, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache %s: unexpected value type %T", c.name, res.Val)
		}
		return out, nil
	}
}

// Len returns the number of stored entries.
func (c *LRU[T]) Len() int {
	return c.store.ItemCount()
}

// Stop releases the cache's background worker.
func (c *LRU[T]) Stop() {
	c.store.Stop()
}

func (c *LRU[T]) record(hit bool) {
	if c.observe != nil {
		c.observe(c.name, hit)
	}
}
