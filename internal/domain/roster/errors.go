package roster

import "errors"

// ErrNoPosition is returned when a roster is loaded without a position.
var ErrNoPosition = errors.New("roster scope has no position")
