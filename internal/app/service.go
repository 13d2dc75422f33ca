// Package service wires the evaluation engine to the backend client and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/hierarchy"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/roster"
	"github.com/okian/skillcert/internal/domain/session"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// Backend is everything the service reads from and writes to the REST
// collaborator. *backend.Client satisfies it.
type Backend interface {
	session.Backend
	roster.Source
	ListAreas(ctx context.Context) ([]model.Area, error)
	ListPositions(ctx context.Context, areaID, groupID int64) ([]model.Position, error)
	ListEmployees(ctx context.Context, positionID int64) ([]model.Employee, error)
}

// Service owns the workspaces (one hierarchy cursor each), the evaluation
// sessions and the completion cache shared by both.
type Service struct {
	mu sync.RWMutex

	backend    Backend
	cache      *completion.Cache
	summarizer *roster.Prefetcher

	workspaces map[string]*workspace
	sessions   map[string]*sessionEntry

	prefetch      bool
	levelProgress bool

	// State
	started bool
	bgCtx   context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Start must be called before use.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:       backend,
		workspaces:    make(map[string]*workspace),
		sessions:      make(map[string]*sessionEntry),
		prefetch:      true,
		levelProgress: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the cache and the background context used by roster loads.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.cache = completion.NewCache(completion.WithLogger(s.logger.Named("completion")))
	s.summarizer = roster.New(s.backend, s.cache,
		roster.WithLogger(s.logger.Named("roster")),
		roster.WithLevelProgress(s.levelProgress))
	s.bgCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.started = true

	s.logger.Info(ctx, "evaluation service started",
		logger.Bool("prefetch", s.prefetch),
		logger.Bool("level_progress", s.levelProgress))
	return nil
}

// Stop cancels running roster loads and waits for them to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	for _, ws := range s.workspaces {
		ws.prefetcher.Cancel()
	}
	s.mu.Unlock()

	s.bg.Wait()
	s.logger.Info(context.Background(), "evaluation service stopped")
}

// Cache exposes the completion cache.
func (s *Service) Cache() *completion.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// Levels returns the level summary of an employee, computing and caching it
// when absent.
func (s *Service) Levels(ctx context.Context, employeeID, areaID, positionID int64) (completion.Summary, error) {
	if err := s.ready(); err != nil {
		return completion.Summary{}, err
	}
	if sum, ok := s.cache.Get(employeeID); ok {
		return sum, nil
	}
	scope := hierarchy.Scope{AreaID: areaID, PositionID: positionID}
	version := s.cache.Version(employeeID)
	sum, err := s.summarizer.Summarize(ctx, scope, employeeID)
	if err != nil {
		return completion.Summary{}, fmt.Errorf("summarize employee %d: %w", employeeID, err)
	}
	s.cache.Put(employeeID, version, sum)
	return sum, nil
}

// recompute refreshes the cached summary of one employee. Failures leave the
// entry invalidated so the next read recomputes.
func (s *Service) recompute(ctx context.Context, scope hierarchy.Scope, employeeID int64) {
	version := s.cache.Version(employeeID)
	sum, err := s.summarizer.Summarize(ctx, scope, employeeID)
	if err != nil {
		metrics.RecordError("service", "recompute")
		s.logger.Warn(ctx, "level summary not recomputed",
			logger.Int64("employee_id", employeeID),
			logger.Error(err))
		return
	}
	s.cache.Put(employeeID, version, sum)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"prefetch":   s.prefetch,
		"workspaces": len(s.workspaces),
		"sessions":   len(s.sessions),
	}
	if s.started {
		stats["cachedSummaries"] = s.cache.Len()
		metrics.UpdateSessionsActive(len(s.sessions))
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
