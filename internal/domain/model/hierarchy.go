// Package model contains domain models passed between layers.
package model

// Area is the top organizational scope.
type Area struct {
	ID     int64  `json:"id"`
	Name   string `json:"nombre"`
	Active bool   `json:"activo"`
}

// Group belongs to an Area. Supervisors lists the group's supervisor ids in
// the order the backend returns them.
type Group struct {
	ID          int64   `json:"id"`
	AreaID      int64   `json:"area"`
	Name        string  `json:"nombre"`
	Active      bool    `json:"activo"`
	Supervisors []int64 `json:"supervisores,omitempty"`
}

// Position belongs to an Area and, optionally, to one Group of that area.
// GroupID is zero when the position is shared by every group of the area.
type Position struct {
	ID      int64  `json:"id"`
	AreaID  int64  `json:"area"`
	GroupID int64  `json:"grupo,omitempty"`
	Name    string `json:"nombre"`
	Active  bool   `json:"activo"`
}

// Employee is read-only to the core; it is created and edited through the backend.
type Employee struct {
	ID             int64   `json:"id"`
	FullName       string  `json:"nombre_completo"`
	EmployeeNumber string  `json:"numero_empleado,omitempty"`
	PositionID     int64   `json:"posicion"`
	GroupID        int64   `json:"grupo"`
	AreaIDs        []int64 `json:"areas"`
}

// InArea reports whether the employee is assigned to the area.
func (e Employee) InArea(areaID int64) bool {
	for _, id := range e.AreaIDs {
		if id == areaID {
			return true
		}
	}
	return false
}

// Supervisor is a user eligible to supervise evaluations in an area.
type Supervisor struct {
	ID       int64  `json:"id"`
	FullName string `json:"nombre_completo"`
}
