package backend

import "errors"

// Sentinel errors for backend client configuration and decoding.
var (
	ErrInvalidBaseURL = errors.New("invalid backend base url")
	ErrUnexpectedBody = errors.New("unexpected backend response body")
	ErrTooManyPages   = errors.New("backend pagination exceeded page limit")
)
