package shared

import "errors"

// Error categories. Domain errors wrap exactly one of these so callers can
// branch with errors.Is regardless of the concrete message.
var (
	// ErrValidation marks malformed input rejected before any persistence.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict marks a request that contradicts the document state.
	ErrStateConflict = errors.New("state conflict")
	// ErrNotFound indicates the resource does not exist for the business.
	ErrNotFound = errors.New("not found")
	// ErrConcurrency indicates a concurrent writer won a uniqueness race.
	// Safe to retry once after re-reading state.
	ErrConcurrency = errors.New("concurrent modification")
)

// Kind returns the category name of err, or "internal" when none matches.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrency):
		return "concurrency"
	default:
		return "internal"
	}
}
