// Package errs classifies Kubernetes API errors into the categories
// spec.md §7 reasons about (transient vs. not-found vs. fatal), so
// callers can decide continue-vs-abort without each repeating
// apierrors lookups inline.
package errs

import apierrors "k8s.io/apimachinery/pkg/api/errors"

// IsNotFound reports whether err represents a missing object, which
// the reaper and launcher treat as "nothing to do" rather than a
// failure.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// IsTransient reports whether err is worth retrying on the next tick
// rather than surfacing as a hard failure for this one: server
// timeouts, rate limiting, and conflicting concurrent writes.
func IsTransient(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsConflict(err)
}
