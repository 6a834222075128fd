package transport

import "errors"

// PermissionError marks a send failure that cannot succeed on retry:
// bot kicked/blocked, chat access revoked, bad credentials. Adapters wrap the
// underlying transport error so callers can branch with IsPermission without
// knowing platform error types.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "permission denied"
	}
	return "permission denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// IsPermission reports whether err (or anything it wraps) is a permission
// failure. Everything else is treated as a transient transport failure.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
