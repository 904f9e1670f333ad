// Package github implements tracker.Client against the GitHub REST API
// using go-github.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/tracker"
)

const commentsPerPage = 100

// Client adapts a go-github client to one repository.
type Client struct {
	gh     *gh.Client
	owner  string
	repo   string
	logger *slog.Logger
}

var _ tracker.Client = (*Client)(nil)

// NewClient creates a client for owner/repo. A non-empty baseURL selects a
// GitHub Enterprise instance; an empty one targets api.github.com.
func NewClient(baseURL, owner, repo, token string, logger *slog.Logger) (*Client, error) {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, err
		}
	}
	return NewFromGitHub(client, owner, repo, logger), nil
}

// NewFromGitHub wraps an existing go-github client.
func NewFromGitHub(client *gh.Client, owner, repo string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gh: client, owner: owner, repo: repo, logger: logger}
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string) (tracker.Created, error) {
	const op = "create issue"
	issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gh.IssueRequest{
		Title: gh.String(title),
		Body:  gh.String(body),
	})
	if err != nil {
		return tracker.Created{}, remoteError(op, resp, err)
	}
	if issue.Number == nil {
		return tracker.Created{}, c.malformed(op, "number", issue)
	}

	if issue.CreatedAt == nil {
		return tracker.Created{}, c.malformed(op, "created_at", issue)
	}

	return tracker.Created{
		ID:        int64(issue.GetNumber()),
		CreatedAt: model.FormatTimestamp(issue.GetCreatedAt().Time),
	}, nil
}

// PostComment appends a comment to issue id.
func (c *Client) PostComment(ctx context.Context, id int64, body string) error {
	_, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, int(id), &gh.IssueComment{
		Body: gh.String(body),
	})
	if err != nil {
		return remoteError("create comment", resp, err)
	}
	return nil
}

// Close closes issue id and checks the state GitHub reports back.
func (c *Client) Close(ctx context.Context, id int64) error {
	const op = "close issue"
	issue, resp, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, int(id), &gh.IssueRequest{
		State: gh.String("closed"),
	})
	if err != nil {
		return remoteError(op, resp, err)
	}
	if issue.GetState() != "closed" {
		return c.malformed(op, "state", issue)
	}
	return nil
}

// ListCommentsSince pages through every comment of issue id updated at or
// after since.
func (c *Client) ListCommentsSince(ctx context.Context, id int64, since string) ([]tracker.Comment, error) {
	const op = "list comments"
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: commentsPerPage},
	}
	if since != "" {
		t, err := time.Parse(model.TimestampLayout, since)
		if err != nil {
			return nil, fmt.Errorf("%s on issue %d: watermark %q is not canonical: %w", op, id, since, err)
		}
		opts.Since = &t
	}

	var comments []tracker.Comment
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, int(id), opts)
		if err != nil {
			return nil, remoteError(op, resp, err)
		}
		for _, ic := range page {
			if ic.Body == nil {
				return nil, c.malformed(op, "body", ic)
			}
			if ic.User == nil || ic.User.Login == nil {
				return nil, c.malformed(op, "user.login", ic)
			}
			if ic.CreatedAt == nil {
				return nil, c.malformed(op, "created_at", ic)
			}
			comments = append(comments, tracker.Comment{
				CreatedAt: model.FormatTimestamp(ic.GetCreatedAt().Time),
				Author:    ic.User.GetLogin(),
				Body:      ic.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return comments, nil
}

func (c *Client) malformed(op, field string, v any) error {
	raw, _ := json.Marshal(v)
	c.logger.Error("malformed tracker response",
		"op", op,
		"field", field,
		"payload", string(raw),
	)
	return &tracker.MalformedResponseError{Op: op, Field: field, Payload: raw}
}

// remoteError converts a go-github failure into a tracker.RemoteError.
func remoteError(op string, resp *gh.Response, err error) error {
	remote := &tracker.RemoteError{Op: op, Err: err}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		remote.Err = nil
		remote.Body = ghErr.Message
	}
	if resp != nil {
		remote.StatusCode = resp.StatusCode
	}
	return remote
}
