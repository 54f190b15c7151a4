package gatt

import "sync"

// Handle is implemented by tree-owned resources. The cache never extends a
// handle's lifetime; it only needs to know when a cached handle has been
// invalidated by connection teardown or a service change.
type Handle interface {
	Invalidated() bool
}

// CachedRef memoizes the mapping from a logical identifier path to a live
// resource handle. A miss is expected and cheap: it means "first use" or
// "use after invalidation", not a bug.
//
// The zero value is an empty cache ready for use.
type CachedRef[T Handle] struct {
	mu  sync.Mutex
	ref T
	ok  bool
}

// GetOrFind returns the cached handle while it is still valid; otherwise it
// invokes find (the authoritative tree lookup) and caches the result.
// The fallback runs outside the cache's lock, so concurrent misses may race;
// whichever resolves last wins the cache slot, which is harmless because both
// resolved the same logical path.
func (c *CachedRef[T]) GetOrFind(find func() (T, error)) (T, error) {
	c.mu.Lock()
	if c.ok && !c.ref.Invalidated() {
		ref := c.ref
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	ref, err := find()
	if err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	c.ref = ref
	c.ok = true
	c.mu.Unlock()
	return ref, nil
}
