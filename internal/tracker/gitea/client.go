// Package gitea implements tracker.Client against the Gitea REST API v1.
package gitea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/tracker"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxRetryElapsed   = 2 * time.Minute
)

// Client is a thin HTTP client for one Gitea repository. It handles token
// authentication, JSON marshaling, and retry with exponential backoff on
// HTTP 429.
type Client struct {
	baseURL    string
	repo       string
	token      string
	httpClient *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

var _ tracker.Client = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for malformed responses and retries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackOff replaces the retry schedule used on HTTP 429. The factory
// is called once per request since BackOff values are stateful.
func WithBackOff(f func() backoff.BackOff, maxRetries uint64) Option {
	return func(c *Client) {
		c.newBackOff = f
		c.maxRetries = maxRetries
	}
}

// NewClient creates a client for repo ("owner/name") on the Gitea instance
// rooted at baseURL (e.g. https://git.example.com).
func NewClient(baseURL, repo, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		repo:    repo,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = maxRetryElapsed
			return bo
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateIssue opens a new issue and returns its number and creation time.
func (c *Client) CreateIssue(
	ctx context.Context,
	title string,
	body string,
) (tracker.Created, error) {
	path := c.issuesPath()
	raw, err := c.do(ctx, http.MethodPost, path, createIssueRequest{
		Title: title,
		Body:  body,
	})
	if err != nil {
		return tracker.Created{}, err
	}

	var resp issueResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Number == nil {
		return tracker.Created{}, c.malformed("POST "+path, "number", raw)
	}
	if resp.CreatedAt == nil {
		return tracker.Created{}, c.malformed("POST "+path, "created_at", raw)
	}
	ts, err := model.CanonicalTimestamp(*resp.CreatedAt)
	if err != nil {
		return tracker.Created{}, c.malformed("POST "+path, "created_at", raw)
	}

	return tracker.Created{ID: *resp.Number, CreatedAt: ts}, nil
}

// PostComment appends a comment to issue id.
func (c *Client) PostComment(ctx context.Context, id int64, body string) error {
	path := c.issuePath(id) + "/comments"
	_, err := c.do(ctx, http.MethodPost, path, commentRequest{Body: body})
	return err
}

// Close sets the state of issue id to closed. Gitea answers with the
// updated issue, and anything but state "closed" is a failure.
func (c *Client) Close(ctx context.Context, id int64) error {
	path := c.issuePath(id)
	raw, err := c.do(ctx, http.MethodPatch, path, editIssueRequest{State: "closed"})
	if err != nil {
		return err
	}

	var resp issueResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.State == nil {
		return c.malformed("PATCH "+path, "state", raw)
	}
	if *resp.State != "closed" {
		return c.malformed("PATCH "+path, "state", raw)
	}

	return nil
}

// ListCommentsSince returns the comments of issue id, oldest first, with
// timestamps in canonical form.
func (c *Client) ListCommentsSince(
	ctx context.Context,
	id int64,
	since string,
) ([]tracker.Comment, error) {
	path := c.issuePath(id) + "/comments"
	if since != "" {
		path += "?" + url.Values{"since": {since}}.Encode()
	}

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp []commentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, c.malformed("GET "+path, "comments", raw)
	}

	comments := make([]tracker.Comment, 0, len(resp))
	for _, rc := range resp {
		if rc.Body == nil {
			return nil, c.malformed("GET "+path, "body", raw)
		}
		if rc.User == nil || rc.User.Login == nil {
			return nil, c.malformed("GET "+path, "user.login", raw)
		}
		if rc.CreatedAt == nil {
			return nil, c.malformed("GET "+path, "created_at", raw)
		}
		ts, err := model.CanonicalTimestamp(*rc.CreatedAt)
		if err != nil {
			return nil, c.malformed("GET "+path, "created_at", raw)
		}
		comments = append(comments, tracker.Comment{
			CreatedAt: ts,
			Author:    *rc.User.Login,
			Body:      *rc.Body,
		})
	}

	return comments, nil
}

func (c *Client) issuesPath() string {
	return "/api/v1/repos/" + c.repo + "/issues"
}

func (c *Client) issuePath(id int64) string {
	return c.issuesPath() + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) malformed(op, field string, raw []byte) error {
	c.logger.Error("malformed tracker response",
		"op", op,
		"field", field,
		"payload", string(raw),
	)
	return &tracker.MalformedResponseError{Op: op, Field: field, Payload: raw}
}

// errRateLimited marks a 429 answer as retryable.
type errRateLimited struct{}

func (e *errRateLimited) Error() string { return "rate limited (429)" }

// do builds the request, handles auth and rate limiting, and returns the
// raw response body of a 2xx answer.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
) ([]byte, error) {
	op := method + " " + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var respBody []byte
	bo := &retryAfterBackOff{BackOff: c.newBackOff()}
	attempt := func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(&tracker.RemoteError{Op: op, Err: err})
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return backoff.Permanent(&tracker.RemoteError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("reading response body: %w", readErr),
			})
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("tracker rate limited", "op", op)
			bo.next = retryAfter(resp)
			return &errRateLimited{}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&tracker.RemoteError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Body:       apiMessage(data),
			})
		}

		respBody = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
	err := backoff.Retry(attempt, policy)
	if err != nil {
		if _, ok := err.(*errRateLimited); ok {
			return nil, &tracker.RemoteError{
				Op:         op,
				StatusCode: http.StatusTooManyRequests,
				Err:        fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, err),
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !isTrackerError(err) {
			return nil, &tracker.RemoteError{Op: op, Err: ctxErr}
		}
		return nil, err
	}

	return respBody, nil
}

// retryAfterBackOff honors a server-provided Retry-After delay for the
// next wait and otherwise defers to the wrapped schedule.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.next > 0 {
		d, b.next = b.next, 0
	}
	return d
}

// retryAfter reads the Retry-After header in seconds. Zero means the
// header was absent or unusable.
func retryAfter(resp *http.Response) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// apiMessage extracts Gitea's {"message": ...} error text, falling back to
// the raw body.
func apiMessage(data []byte) string {
	var apiErr errorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(data))
}

func isTrackerError(err error) bool {
	switch err.(type) {
	case *tracker.RemoteError, *tracker.MalformedResponseError:
		return true
	}
	return false
}
