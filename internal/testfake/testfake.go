// Package testfake provides in-memory tracker and notifier doubles for
// router, poller and server tests.
package testfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/tracker"
)

// Config returns a valid configuration for bot "issues@example.org"
// tracking owner/repo on git.example.org, with delivery in dry-run mode.
func Config() model.Config {
	return model.Config{
		Tag:         "bot",
		LocalPart:   "issues",
		Domain:      "example.org",
		BaseURL:     "https://git.example.org",
		Repo:        "owner/repo",
		BotName:     "IssueBot",
		BotUsername: "issuebot",
		Tracker:     model.TrackerGitea,
		DryRun:      true,
	}
}

// Call records one tracker invocation.
type Call struct {
	Method string
	ID     int64
	Title  string
	Body   string
	Since  string
}

// Tracker is a scripted tracker.Client. Comments are served per issue and
// filtered by since the way Gitea does (created at or after since).
type Tracker struct {
	mu sync.Mutex

	NextID    int64
	CreatedAt string
	Comments  map[int64][]tracker.Comment

	// Err, when set, is returned by every method.
	Err error
	// ListErr, when set, is returned by ListCommentsSince for that issue.
	ListErr map[int64]error

	Calls []Call
}

var _ tracker.Client = (*Tracker)(nil)

// NewTracker returns a tracker that numbers new issues from 1.
func NewTracker() *Tracker {
	return &Tracker{
		NextID:    1,
		CreatedAt: "2024-01-01T00:00:00Z",
		Comments:  make(map[int64][]tracker.Comment),
		ListErr:   make(map[int64]error),
	}
}

func (t *Tracker) CreateIssue(_ context.Context, title, body string) (tracker.Created, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, Call{Method: "CreateIssue", Title: title, Body: body})
	if t.Err != nil {
		return tracker.Created{}, t.Err
	}
	id := t.NextID
	t.NextID++
	return tracker.Created{ID: id, CreatedAt: t.CreatedAt}, nil
}

func (t *Tracker) PostComment(_ context.Context, id int64, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, Call{Method: "PostComment", ID: id, Body: body})
	return t.Err
}

func (t *Tracker) Close(_ context.Context, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, Call{Method: "Close", ID: id})
	return t.Err
}

func (t *Tracker) ListCommentsSince(_ context.Context, id int64, since string) ([]tracker.Comment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, Call{Method: "ListCommentsSince", ID: id, Since: since})
	if t.Err != nil {
		return nil, t.Err
	}
	if err := t.ListErr[id]; err != nil {
		return nil, err
	}

	var out []tracker.Comment
	for _, c := range t.Comments[id] {
		if since == "" || c.CreatedAt >= since {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddComment appends a remote comment to issue id.
func (t *Tracker) AddComment(id int64, createdAt, author, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Comments[id] = append(t.Comments[id], tracker.Comment{CreatedAt: createdAt, Author: author, Body: body})
}

// CallCount returns how many times method was invoked.
func (t *Tracker) CallCount(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MutatingCalls returns every call other than ListCommentsSince.
func (t *Tracker) MutatingCalls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Call
	for _, c := range t.Calls {
		if c.Method != "ListCommentsSince" {
			out = append(out, c)
		}
	}
	return out
}

// Notifier records outbound messages.
type Notifier struct {
	mu sync.Mutex

	// Err, when set, fails every Send.
	Err error

	Sent []mail.Message
}

// Send records msg, or fails with Err wrapped in model.ErrDeliveryFailed.
func (n *Notifier) Send(_ context.Context, msg mail.Message) (mail.Delivery, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrDeliveryFailed, n.Err)
	}
	n.Sent = append(n.Sent, msg)
	return mail.DeliverySent, nil
}

// Messages returns a copy of the recorded messages.
func (n *Notifier) Messages() []mail.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]mail.Message(nil), n.Sent...)
}
