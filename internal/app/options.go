package service

import "github.com/okian/skillcert/pkg/logger"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPrefetch toggles the background roster load on position selection.
func WithPrefetch(enabled bool) Option {
	return func(s *Service) {
		s.prefetch = enabled
	}
}

// WithLevelProgress toggles the backend level-progress override.
func WithLevelProgress(enabled bool) Option {
	return func(s *Service) {
		s.levelProgress = enabled
	}
}
