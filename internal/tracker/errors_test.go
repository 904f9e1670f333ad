package tracker_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/tracker"
)

func TestRemoteErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("creating issue: %w", &tracker.RemoteError{Op: "POST /issues", Err: cause})

	assert.ErrorIs(t, err, model.ErrRemoteCall)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, model.ErrMalformedResponse)
	assert.False(t, tracker.IsAuthError(err))
}

func TestRemoteErrorUnauthorized(t *testing.T) {
	err := &tracker.RemoteError{Op: "GET /comments", StatusCode: http.StatusUnauthorized}
	assert.True(t, tracker.IsAuthError(err))
	assert.Equal(t, "GET /comments: unexpected status 401", err.Error())
}

func TestMalformedResponseErrorClassification(t *testing.T) {
	err := fmt.Errorf("closing: %w", &tracker.MalformedResponseError{
		Op: "PATCH /issues/1", Field: "state", Payload: []byte(`{}`),
	})

	assert.ErrorIs(t, err, model.ErrMalformedResponse)
	assert.NotErrorIs(t, err, model.ErrRemoteCall)

	var malformed *tracker.MalformedResponseError
	assert.ErrorAs(t, err, &malformed)
	assert.Equal(t, []byte(`{}`), malformed.Payload)
}
