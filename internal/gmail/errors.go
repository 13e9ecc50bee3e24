package gmail

import (
	"errors"
	"fmt"

	"github.com/teemow/gmailmcp/internal/google"
)

// ErrServiceUnavailable is returned when a Gmail service cannot be built
// from an otherwise valid credential.
var ErrServiceUnavailable = errors.New("gmail service unavailable")

// TransientRemoteError wraps a failed Gmail API call.
type TransientRemoteError struct {
	Op  string
	Err error
}

func (e *TransientRemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientRemoteError) Unwrap() error {
	return e.Err
}

// MalformedDataError reports a response missing a field the caller needs.
type MalformedDataError struct {
	Field string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed gmail response: missing %s", e.Field)
}

// IsAuthFailure reports whether err means no usable Gmail service could be
// obtained, as opposed to a failure of the call itself.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || google.IsAuthError(err)
}
