package completion

import "github.com/okian/skillcert/pkg/logger"

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithListener registers a function called after every invalidation.
func WithListener(fn func(Invalidation)) Option {
	return func(c *Cache) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}
