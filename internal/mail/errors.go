package mail

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates expired or revoked provider credentials; the
// caller should ask the user to re-authenticate.
var ErrUnauthorized = errors.New("gmail authorization expired")

// ErrNotFound indicates the requested message does not exist.
var ErrNotFound = errors.New("message not found")

// ErrNoToken indicates no stored OAuth token for the user.
var ErrNoToken = errors.New("no token stored for user")

// ProviderError wraps a transient provider failure that is safe to retry.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gmail %s failed (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
