package service

import (
	"context"

	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/hierarchy"
	"github.com/okian/skillcert/internal/domain/model"
)

// tracker keeps the completion cache in step with one session. A created
// result recomputes the summary right away; a committed signature only
// invalidates it and the next read recomputes.
type tracker struct {
	svc   *Service
	scope hierarchy.Scope
}

func (t *tracker) ResultCreated(ctx context.Context, result model.EvaluationResult) {
	employeeID := result.UserID
	if employeeID == 0 {
		employeeID = t.scope.EmployeeID
	}
	t.svc.cache.Invalidate(ctx, employeeID, completion.ReasonResultCreated)
	t.svc.recompute(ctx, t.scope, employeeID)
}

func (t *tracker) SignatureCommitted(ctx context.Context, employeeID, _ int64, _ model.SignatureRecord) {
	if employeeID == 0 {
		employeeID = t.scope.EmployeeID
	}
	t.svc.cache.Invalidate(ctx, employeeID, completion.ReasonSignatureCommitted)
}
