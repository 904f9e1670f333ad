// Package poller pushes new remote discussion to subscribed submitters.
// Each run compares every issue's remote comments with its watermark,
// sends at most one digest per issue and advances the watermark only
// after the digest was delivered.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/store"
	"github.com/nhle/issuebot/internal/templates"
	"github.com/nhle/issuebot/internal/tracker"
)

// issueTimeout bounds the work on a single issue.
const issueTimeout = 30 * time.Second

// Outcome is the result of polling one issue.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeUpdated
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unchanged"
	}
}

// IssueResult records what happened to one issue during a run.
type IssueResult struct {
	IssueID int64
	Outcome Outcome

	// NewComments is the number of comments newer than the old watermark.
	NewComments int

	// Notified is true when a digest was handed to the notifier.
	Notified bool

	Watermark string
	Err       error
}

// Report aggregates a run.
type Report struct {
	Updated   int
	Unchanged int
	Failed    int
	Results   []IssueResult

	// listErr is set when the issue list itself could not be read.
	listErr error
}

// Err is non-nil when the run could not list issues or any issue failed.
// Issues that were updated stay updated either way.
func (r Report) Err() error {
	errs := []error{r.listErr}
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			errs = append(errs, fmt.Errorf("issue %d: %w", res.IssueID, res.Err))
		}
	}
	return errors.Join(errs...)
}

// ListErr is the error that prevented the run from reading the issue
// list, nil when the list was read.
func (r Report) ListErr() error {
	return r.listErr
}

func (r *Report) add(res IssueResult) {
	switch res.Outcome {
	case OutcomeUpdated:
		r.Updated++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Unchanged++
	}
	r.Results = append(r.Results, res)
}

// Notifier delivers digests.
type Notifier interface {
	Send(ctx context.Context, msg mail.Message) (mail.Delivery, error)
}

// Poller runs update passes over every stored issue.
type Poller struct {
	cfg      model.Config
	store    store.Store
	tracker  tracker.Client
	notifier Notifier
	replies  *templates.Renderer
	logger   *slog.Logger
}

// New creates a Poller.
func New(
	cfg model.Config,
	st store.Store,
	tc tracker.Client,
	n Notifier,
	replies *templates.Renderer,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		store:    st,
		tracker:  tc,
		notifier: n,
		replies:  replies,
		logger:   logger,
	}
}

// Run polls every issue in id order. A failing issue never stops the rest.
func (p *Poller) Run(ctx context.Context) Report {
	var report Report

	issues, err := p.store.ListIssues(ctx)
	if err != nil {
		p.logger.Error("listing issues failed", "error", err)
		report.listErr = fmt.Errorf("listing issues: %w", err)
		return report
	}

	for _, issue := range issues {
		res := p.pollIssue(ctx, issue)
		if res.Outcome == OutcomeFailed {
			p.logger.Error("issue poll failed", "issue", issue.ID, "error", res.Err)
		}
		report.add(res)
	}

	p.logger.Info("poll finished",
		"issues", len(issues),
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
	)
	return report
}

// pollIssue handles a single issue.
func (p *Poller) pollIssue(ctx context.Context, issue model.Issue) IssueResult {
	ctx, cancel := context.WithTimeout(ctx, issueTimeout)
	defer cancel()

	res := IssueResult{IssueID: issue.ID, Watermark: issue.Watermark}
	fail := func(err error) IssueResult {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	comments, err := p.tracker.ListCommentsSince(ctx, issue.ID, issue.Watermark)
	if err != nil {
		return fail(fmt.Errorf("listing comments: %w", err))
	}

	fresh, watermark := newerThan(comments, issue.Watermark)
	res.NewComments = len(fresh)
	if len(fresh) == 0 {
		res.Outcome = OutcomeUnchanged
		return res
	}

	if issue.Subscribed {
		if err := p.notify(ctx, issue, fresh); err != nil {
			return fail(err)
		}
		res.Notified = true
	}

	if err := p.store.SetWatermark(ctx, issue.ID, watermark); err != nil {
		return fail(fmt.Errorf("advancing watermark to %s: %w", watermark, err))
	}

	p.logger.Info("issue updated",
		"issue", issue.ID,
		"new_comments", len(fresh),
		"notified", res.Notified,
		"watermark", watermark,
	)
	res.Outcome = OutcomeUpdated
	res.Watermark = watermark
	return res
}

// newerThan keeps the comments created strictly after watermark, in API
// order, and returns the newest timestamp among them.
func newerThan(comments []tracker.Comment, watermark string) ([]tracker.Comment, string) {
	var fresh []tracker.Comment
	newest := watermark
	for _, c := range comments {
		if c.CreatedAt <= watermark {
			continue
		}
		fresh = append(fresh, c)
		if c.CreatedAt > newest {
			newest = c.CreatedAt
		}
	}
	return fresh, newest
}

// notify sends one digest with every fresh comment.
func (p *Poller) notify(ctx context.Context, issue model.Issue, fresh []tracker.Comment) error {
	rendered := make([]string, 0, len(fresh))
	for _, c := range fresh {
		rendered = append(rendered, p.renderComment(c))
	}

	digest, err := p.replies.Digest(issue, rendered)
	if err != nil {
		return fmt.Errorf("rendering digest: %w", err)
	}

	msg := mail.Message{
		From:    p.cfg.BotAddress(),
		To:      []string{issue.Submitter},
		Subject: digest.Subject,
		Body:    digest.Body,
	}
	if _, err := p.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}
	return nil
}

// renderComment relays the bot's own comments verbatim and attributes
// everyone else's.
func (p *Poller) renderComment(c tracker.Comment) string {
	if c.Author == p.cfg.BotUsername {
		return c.Body
	}
	return "User " + c.Author + " replied:\n\n" + c.Body
}
