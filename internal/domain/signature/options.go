package signature

import "github.com/okian/skillcert/pkg/logger"

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracker receives a notification for every newly signed record.
func WithTracker(t Tracker) Option {
	return func(r *Reconciler) {
		if t != nil {
			r.tracker = t
		}
	}
}

// WithEmployee sets the evaluated employee, reported to the tracker.
func WithEmployee(id int64) Option {
	return func(r *Reconciler) {
		r.employeeID = id
	}
}
