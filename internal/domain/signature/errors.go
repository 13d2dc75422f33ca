package signature

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for signature errors. All of them are reported as
// validation errors and are raised before any backend call.
var (
	ErrDuplicateSlot             = errors.New("duplicate signature slot")
	ErrMissingEmployeeSlot       = errors.New("evaluation has no employee signature slot")
	ErrUnknownSlot               = errors.New("unknown signature slot")
	ErrEmptySignature            = errors.New("signature needs a signer or an image")
	ErrEmployeeSignatureLocked   = errors.New("employee signature is already signed and cannot be changed")
	ErrEmployeeSignatureRequired = errors.New("employee signature image is required")
	ErrSaving                    = errors.New("a signature commit is in progress")
	ErrNoResult                  = errors.New("evaluation result is not saved yet")
)

// SlotFailure is one slot that could not be committed.
type SlotFailure struct {
	Type string
	Err  error
}

// PartialCommitError lists the slots that stayed pending after a commit run.
// The owning evaluation result is saved regardless.
type PartialCommitError struct {
	Failures []SlotFailure
}

func (e *PartialCommitError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%v)", f.Type, f.Err)
	}
	return fmt.Sprintf("%d signature(s) not committed: %s", len(e.Failures), strings.Join(parts, ", "))
}

// Unwrap exposes every slot error to errors.Is / errors.As.
func (e *PartialCommitError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Slots returns the failed slot types in commit order.
func (e *PartialCommitError) Slots() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Type
	}
	return out
}
