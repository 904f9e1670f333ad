package tracker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/issuebot/internal/model"
)

// RemoteError reports a tracker call that failed in transport or came
// back with a non-success status. It matches model.ErrRemoteCall.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool {
	return target == model.ErrRemoteCall
}

// Unauthorized reports whether the tracker rejected the bot's credentials.
func (e *RemoteError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsAuthError reports whether err (or any error in its chain) is a
// RemoteError caused by rejected credentials.
func IsAuthError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.Unauthorized()
}

// MalformedResponseError reports a tracker response that lacks a field
// the bot relies on. Payload holds the raw response for the logs.
// It matches model.ErrMalformedResponse.
type MalformedResponseError struct {
	Op      string
	Field   string
	Payload []byte
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: missing or invalid %q", e.Op, e.Field)
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == model.ErrMalformedResponse
}
