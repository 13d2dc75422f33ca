package api

import (
	"net/http"
)

type selectRequest struct {
	Level string `json:"nivel" validate:"required,oneof=area grupo posicion empleado"`
	ID    int64  `json:"id" validate:"required,gt=0"`
}

// WorkspaceHandler handles hierarchy navigation requests.
type WorkspaceHandler struct {
	deps WorkspaceDependencies
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(deps WorkspaceDependencies) *WorkspaceHandler {
	return &WorkspaceHandler{deps: deps}
}

// HandleCreate handles POST /workspaces.
func (h *WorkspaceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.NewWorkspace(r.Context())
	if err != nil {
		writeFailure(w, r, "api.create_workspace", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// HandleGet handles GET /workspaces/{id}.
func (h *WorkspaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Workspace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "api.get_workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleSelect handles POST /workspaces/{id}/select.
func (h *WorkspaceHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	const op = "api.select"
	var req selectRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	v, err := h.deps.Select(r.Context(), r.PathValue("id"), req.Level, req.ID)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleBack handles POST /workspaces/{id}/back.
func (h *WorkspaceHandler) HandleBack(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Back(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "api.back", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
