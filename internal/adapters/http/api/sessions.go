package api

import (
	"net/http"

	service "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/internal/domain/model"
)

type scoresRequest struct {
	Points []service.ScoreInput `json:"puntos" validate:"required,min=1,dive"`
}

type supervisorRequest struct {
	SupervisorID int64 `json:"supervisor" validate:"required,gt=0"`
}

// signatureRequest carries a captured signature. Either an image or a
// signer must be given.
type signatureRequest struct {
	Type       string `json:"tipo_firma" validate:"required"`
	Image      string `json:"imagen" validate:"required_without=SignerID"`
	SignerID   *int64 `json:"usuario" validate:"omitempty,gt=0"`
	SignerName string `json:"nombre_firmante"`
	Name       string `json:"nombre"`
}

type clearResponse struct {
	Cleared bool `json:"limpiada"`
}

// SessionHandler handles evaluation session requests.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleOpen handles POST /sessions.
func (h *SessionHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	const op = "api.open_session"
	var req service.SessionRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	v, err := h.deps.OpenSession(r.Context(), req)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "api.get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleClose handles DELETE /sessions/{id}.
func (h *SessionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseSession(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, r, "api.close_session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleScores handles POST /sessions/{id}/scores.
func (h *SessionHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.scores"
	var req scoresRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	v, err := h.deps.Score(r.Context(), r.PathValue("id"), req.Points)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleSupervisor handles POST /sessions/{id}/supervisor.
func (h *SessionHandler) HandleSupervisor(w http.ResponseWriter, r *http.Request) {
	const op = "api.supervisor"
	var req supervisorRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	v, err := h.deps.SelectSupervisor(r.Context(), r.PathValue("id"), req.SupervisorID)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleCapture handles POST /sessions/{id}/signatures.
func (h *SessionHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture_signature"
	var req signatureRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	p := model.PendingSignature{
		Image:      model.Image(req.Image),
		SignerID:   req.SignerID,
		SignerName: req.SignerName,
		Name:       req.Name,
	}
	v, err := h.deps.CaptureSignature(r.Context(), r.PathValue("id"), req.Type, p)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleRemove handles DELETE /sessions/{id}/signatures/{tipo}.
func (h *SessionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.RemoveSignature(r.Context(), r.PathValue("id"), r.PathValue("tipo"))
	if err != nil {
		writeFailure(w, r, "api.remove_signature", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleClear handles POST /sessions/{id}/signatures/{tipo}/clear.
func (h *SessionHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.deps.ClearSignature(r.Context(), r.PathValue("id"), r.PathValue("tipo"))
	if err != nil {
		writeFailure(w, r, "api.clear_signature", err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Cleared: cleared})
}

// HandleSubmit handles POST /sessions/{id}/submit. A saved result with
// failed signatures still answers 201; the failures are listed in the body.
func (h *SessionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "api.submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandleRetry handles POST /sessions/{id}/signatures/retry.
func (h *SessionHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.RetrySignatures(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "api.retry_signatures", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
