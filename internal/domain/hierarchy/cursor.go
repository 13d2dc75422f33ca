// Package hierarchy holds the navigation cursor over area → group →
// position → employee. It is pure in-memory state.
package hierarchy

import (
	"fmt"

	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
)

// Depth names the list the UI has to show next.
type Depth int

// Navigation depths.
const (
	DepthAreas Depth = iota
	DepthGroups
	DepthPositions
	DepthEmployees
)

func (d Depth) String() string {
	switch d {
	case DepthAreas:
		return "areas"
	case DepthGroups:
		return "groups"
	case DepthPositions:
		return "positions"
	case DepthEmployees:
		return "employees"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// Scope is the id view of a selection. Zero means not selected.
type Scope struct {
	AreaID     int64 `json:"area_id"`
	GroupID    int64 `json:"grupo_id"`
	PositionID int64 `json:"posicion_id"`
	EmployeeID int64 `json:"usuario_id"`
}

// Contains reports whether an employee can be shown under the scope's
// position.
func (s Scope) Contains(e model.Employee) bool {
	if s.PositionID == 0 || e.PositionID != s.PositionID {
		return false
	}
	if s.GroupID != 0 && e.GroupID != 0 && e.GroupID != s.GroupID {
		return false
	}
	return true
}

// Cursor holds the current selection. A deeper field is never set unless its
// parent is set and agrees with it.
type Cursor struct {
	area     *model.Area
	group    *model.Group
	position *model.Position
	employee *model.Employee

	// generation changes whenever area, group or position change.
	generation uint64
}

// New returns an empty cursor at DepthAreas.
func New() *Cursor { return &Cursor{} }

// SelectArea selects an area and clears everything below it.
func (c *Cursor) SelectArea(a model.Area) {
	c.area = &a
	c.clearFrom(DepthGroups)
}

// SelectGroup selects a group of the current area. Position and employee are
// cleared whether or not the group is accepted.
func (c *Cursor) SelectGroup(g model.Group) error {
	c.clearFrom(DepthPositions)
	if c.area == nil {
		return failure.Field(ErrNoParent, "area")
	}
	if g.AreaID != c.area.ID {
		return failure.Field(ErrOutsideParent, "grupo",
			fmt.Sprintf("group %d belongs to area %d, not %d", g.ID, g.AreaID, c.area.ID))
	}
	c.group = &g
	return nil
}

// SelectPosition selects a position that belongs to the current area and
// group. The employee is cleared whether or not the position is accepted.
func (c *Cursor) SelectPosition(p model.Position) error {
	c.clearFrom(DepthEmployees)
	if c.area == nil || c.group == nil {
		return failure.Field(ErrNoParent, "grupo")
	}
	if p.AreaID != c.area.ID {
		return failure.Field(ErrOutsideParent, "posicion",
			fmt.Sprintf("position %d belongs to area %d, not %d", p.ID, p.AreaID, c.area.ID))
	}
	if p.GroupID != 0 && p.GroupID != c.group.ID {
		return failure.Field(ErrOutsideParent, "posicion",
			fmt.Sprintf("position %d belongs to group %d, not %d", p.ID, p.GroupID, c.group.ID))
	}
	c.position = &p
	return nil
}

// SelectEmployee selects an employee of the current position.
func (c *Cursor) SelectEmployee(e model.Employee) error {
	c.employee = nil
	if c.position == nil {
		return failure.Field(ErrNoParent, "posicion")
	}
	if !c.Scope().Contains(e) || (len(e.AreaIDs) > 0 && !e.InArea(c.area.ID)) {
		return failure.Field(ErrOutsideParent, "usuario",
			fmt.Sprintf("employee %d is not assigned to position %d", e.ID, c.position.ID))
	}
	c.employee = &e
	return nil
}

// Back clears the deepest selected level.
func (c *Cursor) Back() {
	switch {
	case c.employee != nil:
		c.employee = nil
	case c.position != nil:
		c.clearFrom(DepthPositions)
	case c.group != nil:
		c.clearFrom(DepthGroups)
	case c.area != nil:
		c.area = nil
		c.clearFrom(DepthGroups)
	}
}

// Reset clears the whole selection.
func (c *Cursor) Reset() {
	c.area = nil
	c.clearFrom(DepthGroups)
}

// CurrentDepth returns the list that must be requested next.
func (c *Cursor) CurrentDepth() Depth {
	switch {
	case c.area == nil:
		return DepthAreas
	case c.group == nil:
		return DepthGroups
	case c.position == nil:
		return DepthPositions
	default:
		return DepthEmployees
	}
}

// Area returns the selected area.
func (c *Cursor) Area() (model.Area, bool) { return deref(c.area) }

// Group returns the selected group.
func (c *Cursor) Group() (model.Group, bool) { return deref(c.group) }

// Position returns the selected position.
func (c *Cursor) Position() (model.Position, bool) { return deref(c.position) }

// Employee returns the selected employee.
func (c *Cursor) Employee() (model.Employee, bool) { return deref(c.employee) }

// Scope returns the ids of the current selection.
func (c *Cursor) Scope() Scope {
	var s Scope
	if c.area != nil {
		s.AreaID = c.area.ID
	}
	if c.group != nil {
		s.GroupID = c.group.ID
	}
	if c.position != nil {
		s.PositionID = c.position.ID
	}
	if c.employee != nil {
		s.EmployeeID = c.employee.ID
	}
	return s
}

// Generation increases every time area, group or position change. Work
// started under one generation is stale once it differs.
func (c *Cursor) Generation() uint64 { return c.generation }

// clearFrom clears depth d and everything below it.
func (c *Cursor) clearFrom(d Depth) {
	c.generation++
	c.employee = nil
	if d <= DepthPositions {
		c.position = nil
	}
	if d <= DepthGroups {
		c.group = nil
	}
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
