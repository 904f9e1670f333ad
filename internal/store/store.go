package store

import (
	"context"
	"errors"

	"github.com/nhle/issuebot/internal/model"
)

// ErrConsistency is returned when a conditional update touches a number
// of rows other than exactly one. Callers treat it as fatal for the
// operation in progress.
var ErrConsistency = errors.New("store consistency violation")

// Store is the capability store: the persistent table of issues keyed by
// their capability token. It does not interpret tracker semantics.
type Store interface {
	// InsertIssue adds a newly created issue. The token must be unique.
	InsertIssue(ctx context.Context, issue model.Issue) error

	// FindByToken resolves a capability token. It returns an error
	// wrapping model.ErrNotFound when no issue owns the token.
	FindByToken(ctx context.Context, token model.Token) (*model.Issue, error)

	// SetSubscribed flips the subscription flag of the issue owning token.
	// The update only applies when the flag currently differs from value.
	SetSubscribed(ctx context.Context, token model.Token, value bool) error

	// SetWatermark advances the watermark of issue id. The update only
	// applies when value is not older than the stored watermark.
	SetWatermark(ctx context.Context, id int64, value string) error

	// ListIssues returns every stored issue ordered by id.
	ListIssues(ctx context.Context) ([]model.Issue, error)
}
