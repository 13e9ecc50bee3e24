package google

import (
	"errors"
	"fmt"
)

// ErrNoClientSecrets is returned when an operation needs the OAuth client
// registration and the client secret file is missing.
var ErrNoClientSecrets = errors.New("oauth client secret file not found")

// AuthError reports that no valid credential could be obtained.
type AuthError struct {
	// Stage is the flow step that failed, e.g. "interactive".
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
