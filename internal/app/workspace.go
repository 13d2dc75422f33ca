package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/hierarchy"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/roster"
	"github.com/okian/skillcert/pkg/logger"
)

// Level names accepted by Select.
const (
	LevelArea     = "area"
	LevelGroup    = "grupo"
	LevelPosition = "posicion"
	LevelEmployee = "empleado"
)

// workspace is one navigation context: a cursor, the roster of the selected
// position and the prefetcher filling the cache for it.
type workspace struct {
	mu         sync.Mutex
	id         string
	cursor     *hierarchy.Cursor
	prefetcher *roster.Prefetcher
	roster     []model.Employee
	loading    bool
	report     *roster.Report
}

// WorkspaceView is what the API returns for a workspace.
type WorkspaceView struct {
	ID        string                       `json:"id"`
	Depth     string                       `json:"nivel"`
	Scope     hierarchy.Scope              `json:"alcance"`
	Area      *model.Area                  `json:"area,omitempty"`
	Group     *model.Group                 `json:"grupo,omitempty"`
	Position  *model.Position              `json:"posicion,omitempty"`
	Employee  *model.Employee              `json:"empleado,omitempty"`
	Items     any                          `json:"elementos"`
	Summaries map[int64]completion.Summary `json:"resumenes,omitempty"`
	Loading   bool                         `json:"cargando"`
	Report    *roster.Report               `json:"reporte,omitempty"`
}

// NewWorkspace creates a workspace positioned at the area list.
func (s *Service) NewWorkspace(ctx context.Context) (WorkspaceView, error) {
	if err := s.ready(); err != nil {
		return WorkspaceView{}, err
	}
	ws := &workspace{
		id:     uuid.NewString(),
		cursor: hierarchy.New(),
		prefetcher: roster.New(s.backend, s.cache,
			roster.WithLogger(s.logger.Named("roster")),
			roster.WithLevelProgress(s.levelProgress)),
	}
	s.mu.Lock()
	s.workspaces[ws.id] = ws
	s.mu.Unlock()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return s.view(ctx, ws)
}

// Workspace returns the current view of a workspace, including the list for
// its current depth.
func (s *Service) Workspace(ctx context.Context, id string) (WorkspaceView, error) {
	ws, err := s.workspace(id)
	if err != nil {
		return WorkspaceView{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return s.view(ctx, ws)
}

// Select moves the cursor of a workspace. Any change of area, group or
// position cancels the running roster load. Selecting a position reloads its
// roster and, when enabled, starts a background load of level summaries.
func (s *Service) Select(ctx context.Context, id, level string, nodeID int64) (WorkspaceView, error) {
	ws, err := s.workspace(id)
	if err != nil {
		return WorkspaceView{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	before := ws.cursor.Generation()
	err = s.apply(ctx, ws, level, nodeID)
	if ws.cursor.Generation() != before {
		ws.prefetcher.Cancel()
		ws.roster = nil
		ws.report = nil
		ws.loading = false
	}
	if err != nil {
		return WorkspaceView{}, err
	}
	if level == LevelPosition {
		if err := s.loadRoster(ctx, ws); err != nil {
			return WorkspaceView{}, err
		}
	}
	return s.view(ctx, ws)
}

// Back clears the deepest selection of a workspace.
func (s *Service) Back(ctx context.Context, id string) (WorkspaceView, error) {
	ws, err := s.workspace(id)
	if err != nil {
		return WorkspaceView{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	before := ws.cursor.Generation()
	ws.cursor.Back()
	if ws.cursor.Generation() != before {
		ws.prefetcher.Cancel()
		ws.roster = nil
		ws.report = nil
		ws.loading = false
	}
	return s.view(ctx, ws)
}

// apply must be called with ws.mu held.
func (s *Service) apply(ctx context.Context, ws *workspace, level string, nodeID int64) error {
	scope := ws.cursor.Scope()
	switch level {
	case LevelArea:
		areas, err := s.backend.ListAreas(ctx)
		if err != nil {
			return err
		}
		a, ok := find(areas, nodeID, func(a model.Area) int64 { return a.ID })
		if !ok {
			return fmt.Errorf("%w: area %d", ErrNodeNotFound, nodeID)
		}
		ws.cursor.SelectArea(a)
		return nil
	case LevelGroup:
		if scope.AreaID == 0 {
			return ws.cursor.SelectGroup(model.Group{ID: nodeID})
		}
		groups, err := s.backend.ListGroups(ctx, scope.AreaID)
		if err != nil {
			return err
		}
		g, ok := find(groups, nodeID, func(g model.Group) int64 { return g.ID })
		if !ok {
			return fmt.Errorf("%w: group %d", ErrNodeNotFound, nodeID)
		}
		return ws.cursor.SelectGroup(g)
	case LevelPosition:
		if scope.GroupID == 0 {
			return ws.cursor.SelectPosition(model.Position{ID: nodeID})
		}
		positions, err := s.backend.ListPositions(ctx, scope.AreaID, scope.GroupID)
		if err != nil {
			return err
		}
		p, ok := find(positions, nodeID, func(p model.Position) int64 { return p.ID })
		if !ok {
			return fmt.Errorf("%w: position %d", ErrNodeNotFound, nodeID)
		}
		return ws.cursor.SelectPosition(p)
	case LevelEmployee:
		if scope.PositionID == 0 {
			return ws.cursor.SelectEmployee(model.Employee{ID: nodeID})
		}
		e, ok := find(ws.roster, nodeID, func(e model.Employee) int64 { return e.ID })
		if !ok {
			return fmt.Errorf("%w: employee %d", ErrNodeNotFound, nodeID)
		}
		return ws.cursor.SelectEmployee(e)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// loadRoster must be called with ws.mu held.
func (s *Service) loadRoster(ctx context.Context, ws *workspace) error {
	scope := ws.cursor.Scope()
	employees, err := s.backend.ListEmployees(ctx, scope.PositionID)
	if err != nil {
		return err
	}
	area, _ := ws.cursor.Area()
	ws.roster = ws.roster[:0]
	for _, e := range employees {
		if scope.Contains(e) && (len(e.AreaIDs) == 0 || e.InArea(area.ID)) {
			ws.roster = append(ws.roster, e)
		}
	}
	for _, e := range ws.roster {
		s.cache.Invalidate(ctx, e.ID, completion.ReasonRosterReloaded)
	}

	if !s.prefetch || len(ws.roster) == 0 {
		return nil
	}

	s.mu.RLock()
	bgCtx := s.bgCtx
	s.mu.RUnlock()

	employeesCopy := append([]model.Employee(nil), ws.roster...)
	generation := ws.cursor.Generation()
	ws.loading = true
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		report, err := ws.prefetcher.Load(bgCtx, scope, employeesCopy)
		if err != nil {
			s.logger.Warn(bgCtx, "roster load failed",
				logger.String("workspace", ws.id),
				logger.Int64("position_id", scope.PositionID),
				logger.Error(err))
		}

		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.cursor.Generation() != generation {
			return
		}
		ws.loading = false
		ws.report = &report
	}()
	return nil
}

// view must be called with ws.mu held.
func (s *Service) view(ctx context.Context, ws *workspace) (WorkspaceView, error) {
	v := WorkspaceView{
		ID:      ws.id,
		Depth:   ws.cursor.CurrentDepth().String(),
		Scope:   ws.cursor.Scope(),
		Loading: ws.loading,
		Report:  ws.report,
	}
	if a, ok := ws.cursor.Area(); ok {
		v.Area = &a
	}
	if g, ok := ws.cursor.Group(); ok {
		v.Group = &g
	}
	if p, ok := ws.cursor.Position(); ok {
		v.Position = &p
	}
	if e, ok := ws.cursor.Employee(); ok {
		v.Employee = &e
	}

	var err error
	switch ws.cursor.CurrentDepth() {
	case hierarchy.DepthAreas:
		v.Items, err = s.backend.ListAreas(ctx)
	case hierarchy.DepthGroups:
		v.Items, err = s.backend.ListGroups(ctx, v.Scope.AreaID)
	case hierarchy.DepthPositions:
		v.Items, err = s.backend.ListPositions(ctx, v.Scope.AreaID, v.Scope.GroupID)
	case hierarchy.DepthEmployees:
		v.Items = append([]model.Employee(nil), ws.roster...)
		v.Summaries = make(map[int64]completion.Summary, len(ws.roster))
		for _, e := range ws.roster {
			if sum, ok := s.cache.Get(e.ID); ok {
				v.Summaries[e.ID] = sum
			}
		}
	}
	if err != nil {
		return WorkspaceView{}, err
	}
	return v, nil
}

func (s *Service) workspace(id string) (*workspace, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return ws, nil
}

func find[T any](items []T, id int64, key func(T) int64) (T, bool) {
	for _, it := range items {
		if key(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}
