package cache

// AgeCacheOption is a functional option used to configure an AgeCache during construction.
type AgeCacheOption[K comparable, V any] func(*ageCache[K, V])

// WithOnEvict sets the callback run for every entry removed by Cycle or Purge, typically releasing the
// native object.
//
// Parameters:
//   - fn: the eviction callback
//
// Returns:
//   - AgeCacheOption[K, V]: a function that sets the callback
func WithOnEvict[K comparable, V any](fn func(K, V)) AgeCacheOption[K, V] {
	return func(c *ageCache[K, V]) {
		c.onEvict = fn
	}
}
