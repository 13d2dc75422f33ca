package roster

import "github.com/okian/skillcert/pkg/logger"

// Option applies a configuration option to the Prefetcher.
type Option func(*Prefetcher)

// WithLogger sets a custom logger for the prefetcher.
func WithLogger(l logger.Logger) Option {
	return func(p *Prefetcher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLevelProgress toggles the backend level-progress override.
func WithLevelProgress(enabled bool) Option {
	return func(p *Prefetcher) {
		p.useProgress = enabled
	}
}
