package hierarchy

import "errors"

// Sentinel kinds for cursor selection errors.
var (
	ErrNoParent      = errors.New("parent level is not selected")
	ErrOutsideParent = errors.New("node does not belong to the selected parent")
)
