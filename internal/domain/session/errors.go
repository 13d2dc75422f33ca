package session

import "errors"

// Validation sentinels. Each is raised before any backend call and leaves the
// session untouched.
var (
	ErrNotStarted         = errors.New("no evaluation in progress")
	ErrReadOnly           = errors.New("evaluation is read-only")
	ErrSaving             = errors.New("evaluation is being saved")
	ErrInvalidScore       = errors.New("score must be 1, 2 or 3")
	ErrUnknownQuestion    = errors.New("question does not belong to this evaluation")
	ErrUnknownSupervisor  = errors.New("supervisor is not eligible for this area")
	ErrSupervisorRequired = errors.New("a supervisor must be selected")
	ErrUnscoredQuestions  = errors.New("every question must be scored")
	ErrAlreadySubmitted   = errors.New("evaluation was already submitted for this employee")
	ErrNothingToRetry     = errors.New("no saved evaluation with pending signatures")
)
