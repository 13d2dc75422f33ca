package api

import (
	"context"
	"net/http"

	"github.com/okian/skillcert/internal/domain/completion"
)

// LevelsDependencies reads level summaries.
type LevelsDependencies interface {
	Levels(ctx context.Context, employeeID, areaID, positionID int64) (completion.Summary, error)
}

// LevelsHandler handles level completion requests.
type LevelsHandler struct {
	deps LevelsDependencies
}

// NewLevelsHandler creates a new levels handler.
func NewLevelsHandler(deps LevelsDependencies) *LevelsHandler {
	return &LevelsHandler{deps: deps}
}

// HandleGet handles GET /employees/{id}/levels?area_id=&posicion_id=.
func (h *LevelsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.levels"
	employeeID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	areaID, err := queryID(r, "area_id")
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	positionID, err := queryID(r, "posicion_id")
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	sum, err := h.deps.Levels(r.Context(), employeeID, areaID, positionID)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
