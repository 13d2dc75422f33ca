// Package roster loads level summaries for every employee of a position, one
// employee at a time, and stores them in the completion cache.
package roster

import (
	"context"
	"sync"
	"time"

	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/hierarchy"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// Source is the part of the backend the prefetcher reads.
type Source interface {
	ListEvaluations(ctx context.Context, areaID, positionID int64) ([]model.EvaluationInstance, error)
	ListResults(ctx context.Context, userID int64) ([]model.EvaluationResult, error)
	LevelProgress(ctx context.Context, positionID int64) ([]model.LevelProgress, error)
}

// Store receives computed summaries. *completion.Cache satisfies it.
type Store interface {
	Version(employeeID int64) uint64
	Put(employeeID int64, version uint64, s completion.Summary) bool
}

// Report counts what happened to each employee of a run.
type Report struct {
	Applied   int `json:"aplicados"`
	Discarded int `json:"descartados"`
	Failed    int `json:"fallidos"`
}

// Prefetcher runs roster loads. Starting a load or calling Cancel makes any
// earlier run discard what it fetches from then on.
type Prefetcher struct {
	mu        sync.Mutex
	run       uint64
	scope     hierarchy.Scope
	cancelled bool

	source      Source
	store       Store
	useProgress bool
	logger      logger.Logger
}

// New creates a prefetcher.
func New(source Source, store Store, opts ...Option) *Prefetcher {
	p := &Prefetcher{
		source:      source,
		store:       store,
		useProgress: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("roster")
	}
	return p
}

// Cancel flags the running load. Results still in flight are discarded.
func (p *Prefetcher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
}

// Load computes and stores the summary of every employee under scope.
// Instances and level progress are fetched once; results are fetched per
// employee. A failing employee is logged and skipped.
func (p *Prefetcher) Load(ctx context.Context, scope hierarchy.Scope, employees []model.Employee) (Report, error) {
	if scope.PositionID == 0 {
		return Report{}, failure.Field(ErrNoPosition, "posicion_id")
	}

	p.mu.Lock()
	p.run++
	token := p.run
	p.scope = scope
	p.cancelled = false
	p.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.RecordPrefetchDuration(float64(time.Since(start).Milliseconds()))
	}()

	instances, err := p.source.ListEvaluations(ctx, scope.AreaID, scope.PositionID)
	if err != nil {
		metrics.RecordError("roster", string(failure.KindOf(err)))
		return Report{}, err
	}
	progress := p.levelProgress(ctx, scope.PositionID)

	var report Report
	for i, e := range employees {
		if !p.current(token) || ctx.Err() != nil {
			n := len(employees) - i
			report.Discarded += n
			for j := 0; j < n; j++ {
				metrics.RecordPrefetchEmployee("discarded")
			}
			break
		}

		version := p.store.Version(e.ID)
		s, err := p.summarize(ctx, instances, progress, e.ID)
		if err != nil {
			report.Failed++
			metrics.RecordPrefetchEmployee("failed")
			metrics.RecordError("roster", string(failure.KindOf(err)))
			p.logger.Warn(ctx, "level summary skipped",
				logger.Int64("employee_id", e.ID),
				logger.Error(err))
			continue
		}

		if !p.accepts(token, e) || !p.store.Put(e.ID, version, s) {
			report.Discarded++
			metrics.RecordPrefetchEmployee("discarded")
			continue
		}
		report.Applied++
		metrics.RecordPrefetchEmployee("applied")
	}

	p.logger.Debug(ctx, "roster loaded",
		logger.Int64("position_id", scope.PositionID),
		logger.Int("applied", report.Applied),
		logger.Int("discarded", report.Discarded),
		logger.Int("failed", report.Failed))
	return report, nil
}

// Summarize computes one employee's summary without touching any running load.
func (p *Prefetcher) Summarize(ctx context.Context, scope hierarchy.Scope, employeeID int64) (completion.Summary, error) {
	instances, err := p.source.ListEvaluations(ctx, scope.AreaID, scope.PositionID)
	if err != nil {
		return completion.Summary{}, err
	}
	return p.summarize(ctx, instances, p.levelProgress(ctx, scope.PositionID), employeeID)
}

func (p *Prefetcher) summarize(ctx context.Context, instances []model.EvaluationInstance, progress []model.LevelProgress, employeeID int64) (completion.Summary, error) {
	results, err := p.source.ListResults(ctx, employeeID)
	if err != nil {
		return completion.Summary{}, err
	}
	s := completion.Calculate(instances, completion.IndexResults(results))
	if len(progress) > 0 {
		s = s.ApplyOverride(employeeID, progress)
	}
	return s, nil
}

// levelProgress is best effort: a failure only loses the override.
func (p *Prefetcher) levelProgress(ctx context.Context, positionID int64) []model.LevelProgress {
	if !p.useProgress {
		return nil
	}
	progress, err := p.source.LevelProgress(ctx, positionID)
	if err != nil {
		p.logger.Warn(ctx, "level progress unavailable",
			logger.Int64("position_id", positionID),
			logger.Error(err))
		return nil
	}
	return progress
}

func (p *Prefetcher) current(token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return token == p.run && !p.cancelled
}

func (p *Prefetcher) accepts(token uint64, e model.Employee) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return token == p.run && !p.cancelled && p.scope.Contains(e)
}
