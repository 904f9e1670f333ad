package model

import "errors"

// Error kinds shared by the router, the poller, and their collaborators.
// Concrete errors wrap one of these so callers classify with errors.Is.
var (
	// ErrNotFound means a capability token resolved to no issue.
	ErrNotFound = errors.New("issue not found")

	// ErrAlreadyInState means a subscribe/unsubscribe request asked for
	// the state the issue is already in.
	ErrAlreadyInState = errors.New("already in requested state")

	// ErrRemoteCall means the tracker could not be reached or answered
	// with a non-success status.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrMalformedResponse means the tracker answered without a field the
	// bot relies on. It signals API contract drift.
	ErrMalformedResponse = errors.New("malformed remote response")

	// ErrDeliveryFailed means an outbound message could not be handed to
	// the mail transport.
	ErrDeliveryFailed = errors.New("mail delivery failed")
)

// StateError is returned when a subscription change is rejected because
// the issue already has the requested state.
type StateError struct {
	Title      string
	Subscribed bool
}

func (e *StateError) Error() string {
	if e.Subscribed {
		return "You are already subscribed to issue `" + e.Title + "`"
	}
	return "You are not subscribed to issue `" + e.Title + "`"
}

func (e *StateError) Unwrap() error {
	return ErrAlreadyInState
}

// UserMessage returns the short description of err that is safe to show
// to a submitter. Tracker and internal details never leak through it.
func UserMessage(err error) string {
	var stateErr *StateError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &stateErr):
		return stateErr.Error()
	case errors.Is(err, ErrNotFound):
		return "Issue not found"
	case errors.Is(err, ErrRemoteCall), errors.Is(err, ErrMalformedResponse):
		return "The issue tracker could not process the request due to an internal error"
	default:
		return "Internal error"
	}
}
