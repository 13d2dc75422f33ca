package service

import "errors"

// Sentinel errors returned by the service. Not-found errors are mapped to 404
// by the HTTP layer.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNodeNotFound       = errors.New("hierarchy node not found")
	ErrEvaluationNotFound = errors.New("evaluation not found for position")
	ErrEmployeeNotFound   = errors.New("employee not found for position")
	ErrUnknownLevel       = errors.New("unknown hierarchy level")
)

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEvaluationNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
