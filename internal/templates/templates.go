// Package templates renders the subjects and bodies of every message the
// bot sends.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/nhle/issuebot/internal/model"
)

//go:embed replies.tmpl
var files embed.FS

// CommentSeparator goes between the comments of one digest.
const CommentSeparator = "\n\n-------------------------------------------------------------------------\n\n"

// Reply is a rendered subject and body.
type Reply struct {
	Subject string
	Body    string
}

// Renderer fills the reply templates from the bot configuration.
type Renderer struct {
	cfg  model.Config
	tmpl *template.Template
}

// New parses the embedded templates.
func New(cfg model.Config) (*Renderer, error) {
	tmpl, err := template.ParseFS(files, "replies.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing reply templates: %w", err)
	}
	return &Renderer{cfg: cfg, tmpl: tmpl}, nil
}

// data is the value every template executes against.
type data struct {
	model.Config

	Title      string
	URL        string
	Reason     string
	Subscribed bool
	Comments   string

	token model.Token
}

// Command returns the address performing cmd on the issue being rendered.
func (d data) Command(cmd string) string {
	return d.CommandAddress(d.token, cmd)
}

func (r *Renderer) subject(format string, args ...any) string {
	return "[" + r.cfg.Tag + "] " + fmt.Sprintf(format, args...)
}

func (r *Renderer) issueData(issue model.Issue) data {
	return data{
		Config:     r.cfg,
		Title:      issue.Title,
		URL:        r.cfg.IssueURL(issue.ID),
		Subscribed: issue.Subscribed,
		token:      issue.Token,
	}
}

func (r *Renderer) render(name string, subject string, d data) (Reply, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, d); err != nil {
		return Reply{}, fmt.Errorf("rendering %s: %w", name, err)
	}
	return Reply{Subject: subject, Body: buf.String()}, nil
}

// IssueCreated confirms a new issue and hands out its command addresses.
func (r *Renderer) IssueCreated(issue model.Issue) (Reply, error) {
	return r.render("issue_created",
		r.subject("Issue `%s` successfully created", issue.Title),
		r.issueData(issue))
}

// IssueFailed reports that title could not be filed.
func (r *Renderer) IssueFailed(title, reason string) (Reply, error) {
	return r.render("issue_failed",
		r.subject("Issue `%s` could not be created", title),
		data{Config: r.cfg, Reason: reason})
}

// ReplyPosted confirms a comment and restates the subscription state.
func (r *Renderer) ReplyPosted(issue model.Issue) (Reply, error) {
	return r.render("reply_posted",
		r.subject("Your reply on issue `%s` has been posted", issue.Title),
		r.issueData(issue))
}

// ReplyFailed reports that a comment could not be posted.
func (r *Renderer) ReplyFailed(reason string) (Reply, error) {
	return r.render("reply_failed",
		r.subject("Your reply could not be created"),
		data{Config: r.cfg, Reason: reason})
}

// Closed confirms that issue was closed.
func (r *Renderer) Closed(issue model.Issue) (Reply, error) {
	return r.render("closed",
		r.subject("issue `%s` has been closed", issue.Title),
		r.issueData(issue))
}

// CloseFailed reports that an issue could not be closed.
func (r *Renderer) CloseFailed(reason string) (Reply, error) {
	return r.render("close_failed",
		r.subject("issue could not be closed"),
		data{Config: r.cfg, Reason: reason})
}

// SubscriptionChanged confirms a subscription change. issue carries the
// new state.
func (r *Renderer) SubscriptionChanged(issue model.Issue) (Reply, error) {
	subject := r.subject("subscription to `%s` successful", issue.Title)
	if !issue.Subscribed {
		subject = r.subject("subscription removal to `%s` successful", issue.Title)
	}
	return r.render("subscription_changed", subject, r.issueData(issue))
}

// SubscriptionFailed reports a rejected subscription change. subscribe is
// the state that was asked for.
func (r *Renderer) SubscriptionFailed(subscribe bool, reason string) (Reply, error) {
	subject := r.subject("could not subscribe")
	if !subscribe {
		subject = r.subject("could not unsubscribe")
	}
	return r.render("subscription_failed", subject, data{Config: r.cfg, Reason: reason})
}

// InvalidRequest describes the valid command addresses.
func (r *Renderer) InvalidRequest() (Reply, error) {
	return r.render("invalid_request", r.subject("invalid request"), data{Config: r.cfg})
}

// Digest bundles already rendered comments into one update notice.
func (r *Renderer) Digest(issue model.Issue, comments []string) (Reply, error) {
	d := r.issueData(issue)
	d.Comments = strings.Join(comments, CommentSeparator)
	return r.render("digest", r.subject("new replies in issue `%s`", issue.Title), d)
}
