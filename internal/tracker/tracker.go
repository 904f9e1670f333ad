// Package tracker defines the contract between the bot and a remote
// issue tracker. Backends live in the gitea and github subpackages.
package tracker

import (
	"context"

	"github.com/nhle/issuebot/internal/model"
)

// Comment is a remote comment with a canonical CreatedAt timestamp.
type Comment = model.Comment

// Created identifies an issue the tracker has just created.
type Created struct {
	ID        int64
	CreatedAt string
}

// Client is implemented by every tracker backend. Implementations return
// *RemoteError for transport failures and non-success statuses and
// *MalformedResponseError when a field the bot relies on is missing.
type Client interface {
	// CreateIssue opens a new issue and returns its number.
	CreateIssue(ctx context.Context, title, body string) (Created, error)

	// PostComment appends a comment to issue id.
	PostComment(ctx context.Context, id int64, body string) error

	// Close closes issue id. It fails unless the tracker confirms the
	// closed state.
	Close(ctx context.Context, id int64) error

	// ListCommentsSince returns the comments of issue id in API order.
	// An empty since lists every comment. Implementations may return
	// comments at or before since; callers filter.
	ListCommentsSince(ctx context.Context, id int64, since string) ([]Comment, error)
}
