package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/skillcert/internal/adapters/backend"
	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/hierarchy"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/session"
	"github.com/okian/skillcert/internal/domain/signature"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

type sessionEntry struct {
	id         string
	scope      hierarchy.Scope
	controller *session.Controller
}

// SessionRequest opens an evaluation for an employee. When the employee
// already has a result for the evaluation it is opened read-only.
type SessionRequest struct {
	EmployeeID   int64 `json:"usuario" validate:"required,gt=0"`
	EvaluationID int64 `json:"evaluacion" validate:"required,gt=0"`
	AreaID       int64 `json:"area_id" validate:"required,gt=0"`
	PositionID   int64 `json:"posicion_id" validate:"required,gt=0"`
	Editable     bool  `json:"editable"`
}

// SessionView is a session snapshot with its id.
type SessionView struct {
	ID string `json:"id"`
	session.Snapshot
}

// ScoreInput updates one question. Nil fields are left unchanged.
type ScoreInput struct {
	QuestionID int64   `json:"punto_evaluacion" validate:"required,gt=0"`
	Score      *int    `json:"puntuacion,omitempty"`
	Notes      *string `json:"observaciones,omitempty"`
}

// SlotFailure is a signature slot that could not be committed.
type SlotFailure struct {
	Type    string `json:"tipo_firma"`
	Message string `json:"mensaje"`
}

// SignatureReport is the API form of a signature commit run.
type SignatureReport struct {
	Committed []string      `json:"firmadas"`
	Assigned  []string      `json:"asignadas"`
	Failed    []SlotFailure `json:"pendientes"`
}

// SubmitView is returned after a submission.
type SubmitView struct {
	Result     model.EvaluationResult `json:"resultado"`
	Signatures SignatureReport        `json:"firmas"`
}

// OpenSession starts an evaluation, or views the saved result when one exists.
func (s *Service) OpenSession(ctx context.Context, req SessionRequest) (SessionView, error) {
	if err := s.ready(); err != nil {
		return SessionView{}, err
	}

	instances, err := s.backend.ListEvaluations(ctx, req.AreaID, req.PositionID)
	if err != nil {
		return SessionView{}, err
	}
	inst, ok := find(instances, req.EvaluationID, func(e model.EvaluationInstance) int64 { return e.ID })
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %d", ErrEvaluationNotFound, req.EvaluationID)
	}
	employees, err := s.backend.ListEmployees(ctx, req.PositionID)
	if err != nil {
		return SessionView{}, err
	}
	emp, ok := find(employees, req.EmployeeID, func(e model.Employee) int64 { return e.ID })
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %d", ErrEmployeeNotFound, req.EmployeeID)
	}
	results, err := s.backend.ListResults(ctx, req.EmployeeID)
	if err != nil {
		return SessionView{}, err
	}

	entry := &sessionEntry{
		id:    uuid.NewString(),
		scope: hierarchy.Scope{AreaID: req.AreaID, GroupID: emp.GroupID, PositionID: req.PositionID, EmployeeID: emp.ID},
	}
	entry.controller = session.New(s.backend,
		session.WithLogger(s.logger.Named("session").With(logger.String("session_id", entry.id))),
		session.WithTracker(&tracker{svc: s, scope: entry.scope}))

	if saved, ok := completion.IndexResults(results)[inst.ID]; ok {
		if err := entry.controller.View(ctx, inst, saved, req.Editable); err != nil {
			return SessionView{}, err
		}
		entry.controller.SetEmployee(emp)
	} else {
		err := entry.controller.Start(ctx, session.StartRequest{
			Instance: inst,
			Employee: emp,
			AreaID:   req.AreaID,
		})
		if err != nil {
			return SessionView{}, err
		}
	}

	s.mu.Lock()
	s.sessions[entry.id] = entry
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateSessionsActive(n)

	return SessionView{ID: entry.id, Snapshot: entry.controller.Snapshot()}, nil
}

// Session returns the snapshot of a session.
func (s *Service) Session(_ context.Context, id string) (SessionView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{ID: id, Snapshot: entry.controller.Snapshot()}, nil
}

// CloseSession cancels and forgets a session.
func (s *Service) CloseSession(_ context.Context, id string) error {
	entry, err := s.session(id)
	if err != nil {
		return err
	}
	if err := entry.controller.Cancel(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateSessionsActive(n)
	return nil
}

// Score applies score and note updates in order, stopping at the first
// rejected one.
func (s *Service) Score(_ context.Context, id string, inputs []ScoreInput) (SessionView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	for _, in := range inputs {
		if in.Score != nil {
			if err := entry.controller.Score(in.QuestionID, model.Score(*in.Score)); err != nil {
				return SessionView{}, err
			}
		}
		if in.Notes != nil {
			if err := entry.controller.SetNotes(in.QuestionID, *in.Notes); err != nil {
				return SessionView{}, err
			}
		}
	}
	return SessionView{ID: id, Snapshot: entry.controller.Snapshot()}, nil
}

// SelectSupervisor sets the supervisor of a session.
func (s *Service) SelectSupervisor(_ context.Context, id string, supervisorID int64) (SessionView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := entry.controller.SelectSupervisor(supervisorID); err != nil {
		return SessionView{}, err
	}
	return SessionView{ID: id, Snapshot: entry.controller.Snapshot()}, nil
}

// CaptureSignature records a signature on a session.
func (s *Service) CaptureSignature(ctx context.Context, id, slotType string, p model.PendingSignature) (SessionView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := entry.controller.CaptureSignature(ctx, slotType, p); err != nil {
		return SessionView{}, err
	}
	return SessionView{ID: id, Snapshot: entry.controller.Snapshot()}, nil
}

// RemoveSignature drops a pending signature.
func (s *Service) RemoveSignature(_ context.Context, id, slotType string) (SessionView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := entry.controller.RemoveSignature(slotType); err != nil {
		return SessionView{}, err
	}
	return SessionView{ID: id, Snapshot: entry.controller.Snapshot()}, nil
}

// ClearSignature drops a pending drawing. It reports whether anything changed.
func (s *Service) ClearSignature(_ context.Context, id, slotType string) (bool, error) {
	entry, err := s.session(id)
	if err != nil {
		return false, err
	}
	return entry.controller.ClearSignature(slotType)
}

// Submit saves the evaluation of a session. The session id is the
// idempotency key of the create call.
func (s *Service) Submit(ctx context.Context, id string) (SubmitView, error) {
	entry, err := s.session(id)
	if err != nil {
		return SubmitView{}, err
	}
	out, err := entry.controller.Submit(backend.WithIdempotencyKey(ctx, id))
	if err != nil {
		return SubmitView{}, err
	}
	return SubmitView{Result: out.Result, Signatures: reportView(out.Signatures)}, nil
}

// RetrySignatures commits the signatures still pending on a session.
func (s *Service) RetrySignatures(ctx context.Context, id string) (SignatureReport, error) {
	entry, err := s.session(id)
	if err != nil {
		return SignatureReport{}, err
	}
	report, err := entry.controller.RetrySignatures(ctx)
	if err != nil {
		return SignatureReport{}, err
	}
	return reportView(report), nil
}

func (s *Service) session(id string) (*sessionEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return entry, nil
}

func reportView(r signature.Report) SignatureReport {
	out := SignatureReport{
		Committed: append([]string{}, r.Committed...),
		Assigned:  append([]string{}, r.Assigned...),
		Failed:    make([]SlotFailure, len(r.Failed)),
	}
	for i, f := range r.Failed {
		out.Failed[i] = SlotFailure{Type: f.Type, Message: failure.UserMessage(f.Err)}
	}
	return out
}
