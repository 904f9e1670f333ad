// Package router turns one inbound message into at most one tracker action
// and exactly one reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/store"
	"github.com/nhle/issuebot/internal/templates"
	"github.com/nhle/issuebot/internal/tracker"
)

// ErrInvalidRequest is the action error of a message whose recipient tag
// names no valid command.
var ErrInvalidRequest = errors.New("invalid request")

// anonymousName replaces the submitter in public text of anonymous issues.
const anonymousName = "Anonymous"

// Notifier delivers replies.
type Notifier interface {
	Send(ctx context.Context, msg mail.Message) (mail.Delivery, error)
}

// Replies renders the reply to each kind of request.
type Replies interface {
	IssueCreated(issue model.Issue) (templates.Reply, error)
	IssueFailed(title, reason string) (templates.Reply, error)
	ReplyPosted(issue model.Issue) (templates.Reply, error)
	ReplyFailed(reason string) (templates.Reply, error)
	Closed(issue model.Issue) (templates.Reply, error)
	CloseFailed(reason string) (templates.Reply, error)
	SubscriptionChanged(issue model.Issue) (templates.Reply, error)
	SubscriptionFailed(subscribe bool, reason string) (templates.Reply, error)
	InvalidRequest() (templates.Reply, error)
}

// Result describes what Handle did with a message.
type Result struct {
	Command Command

	// Issue is the issue acted on, when one was created or resolved.
	Issue *model.Issue

	// Err is the action error reported to the sender, nil on success.
	Err error

	Delivery mail.Delivery
}

// Router authenticates commands against the capability store and performs
// them on the tracker.
type Router struct {
	cfg      model.Config
	store    store.Store
	tracker  tracker.Client
	notifier Notifier
	replies  Replies
	logger   *slog.Logger
}

// New creates a Router.
func New(
	cfg model.Config,
	st store.Store,
	tc tracker.Client,
	n Notifier,
	replies Replies,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		store:    st,
		tracker:  tc,
		notifier: n,
		replies:  replies,
		logger:   logger,
	}
}

// Handle routes env and sends the one reply it warrants. The returned error
// is non-nil only when that reply could not be delivered; action failures
// are reported to the sender and in Result.Err.
func (r *Router) Handle(ctx context.Context, env *mail.Envelope) (Result, error) {
	cmd := ParseCommand(env.To, r.cfg.LocalPart, r.cfg.Domain)
	res := Result{Command: cmd}

	logger := r.logger.With("from", env.From, "command", cmd.Kind.String())
	if cmd.Kind.authenticated() {
		logger = logger.With("token", cmd.Token.Short())
	}
	logger.Info("routing message", "subject", env.Subject)

	var reply templates.Reply
	var err error
	switch cmd.Kind {
	case KindNewIssue, KindNewAnonymousIssue:
		reply, err = r.newIssue(ctx, logger, env, cmd.Kind == KindNewAnonymousIssue, &res)
	case KindReply:
		reply, err = r.reply(ctx, logger, env, cmd.Token, &res)
	case KindClose:
		reply, err = r.closeIssue(ctx, logger, cmd.Token, &res)
	case KindSubscribe, KindUnsubscribe:
		reply, err = r.changeSubscription(ctx, logger, cmd.Token, cmd.Kind == KindSubscribe, &res)
	default:
		logger.Warn("invalid request", "tag", cmd.Tag, "to", env.To)
		res.Err = ErrInvalidRequest
		reply, err = r.replies.InvalidRequest()
	}
	if err != nil {
		logger.Error("reply could not be rendered, sending fallback", "error", err)
		reply = r.fallbackReply()
	}

	msg := mail.ReplyTo(env, r.cfg.BotAddress())
	msg.Subject = reply.Subject
	msg.Body = reply.Body

	res.Delivery, err = r.notifier.Send(ctx, msg)
	if err != nil {
		logger.Error("reply not delivered", "error", err)
		return res, fmt.Errorf("sending reply to %s: %w", env.From, err)
	}

	logger.Info("reply sent", "subject", reply.Subject, "delivery", res.Delivery.String())
	return res, nil
}

// fallbackReply is sent when the proper reply cannot be rendered. It uses
// no template so it cannot fail itself.
func (r *Router) fallbackReply() templates.Reply {
	return templates.Reply{
		Subject: "[" + r.cfg.Tag + "] your request could not be answered",
		Body: "Your message was received, but the reply to it could not be " +
			"prepared due to an internal error.\n\n-- \n" +
			r.cfg.BotName + " <" + r.cfg.HelpAddress() + ">\n",
	}
}

// HandleMessage adapts Handle to mail.Handler.
func (r *Router) HandleMessage(ctx context.Context, env *mail.Envelope) error {
	_, err := r.Handle(ctx, env)
	return err
}

func (r *Router) newIssue(
	ctx context.Context,
	logger *slog.Logger,
	env *mail.Envelope,
	anonymous bool,
	res *Result,
) (templates.Reply, error) {
	title := env.Subject
	who := env.From
	if anonymous {
		who = anonymousName
	}

	created, err := r.tracker.CreateIssue(ctx, title, who+" reports:\n\n"+env.Body)
	if err != nil {
		logger.Error("issue could not be created", "title", title, "error", err)
		res.Err = err
		return r.replies.IssueFailed(title, model.UserMessage(err))
	}

	issue := model.Issue{
		ID:         created.ID,
		Submitter:  env.From,
		Token:      model.NewToken(),
		CreatedAt:  created.CreatedAt,
		Anonymous:  anonymous,
		Subscribed: true,
		Title:      title,
	}
	if err := r.store.InsertIssue(ctx, issue); err != nil {
		// The remote issue exists but nobody can act on it by mail.
		logger.Error("issue created remotely but not stored",
			"issue", created.ID,
			"title", title,
			"error", err,
		)
		res.Err = err
		return r.replies.IssueFailed(title, model.UserMessage(err))
	}

	logger.Info("issue created", "issue", issue.ID, "title", title, "anonymous", anonymous)
	res.Issue = &issue
	return r.replies.IssueCreated(issue)
}

// resolve looks up the issue owning token. It runs before any tracker call.
func (r *Router) resolve(
	ctx context.Context,
	logger *slog.Logger,
	token model.Token,
	res *Result,
) (*model.Issue, error) {
	if token.IsZero() {
		logger.Warn("malformed token")
		res.Err = fmt.Errorf("malformed token: %w", model.ErrNotFound)
		return nil, res.Err
	}

	issue, err := r.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Warn("unknown token")
		} else {
			logger.Error("token lookup failed", "error", err)
		}
		res.Err = err
		return nil, err
	}
	res.Issue = issue
	return issue, nil
}

func (r *Router) reply(
	ctx context.Context,
	logger *slog.Logger,
	env *mail.Envelope,
	token model.Token,
	res *Result,
) (templates.Reply, error) {
	issue, err := r.resolve(ctx, logger, token, res)
	if err != nil {
		return r.replies.ReplyFailed(model.UserMessage(err))
	}

	who := env.From
	if issue.Anonymous {
		who = anonymousName
	}
	if err := r.tracker.PostComment(ctx, issue.ID, who+" replies:\n\n"+env.Body); err != nil {
		logger.Error("reply could not be posted", "issue", issue.ID, "error", err)
		res.Err = err
		return r.replies.ReplyFailed(model.UserMessage(err))
	}

	logger.Info("reply posted", "issue", issue.ID)
	return r.replies.ReplyPosted(*issue)
}

func (r *Router) closeIssue(
	ctx context.Context,
	logger *slog.Logger,
	token model.Token,
	res *Result,
) (templates.Reply, error) {
	issue, err := r.resolve(ctx, logger, token, res)
	if err != nil {
		return r.replies.CloseFailed(model.UserMessage(err))
	}

	if err := r.tracker.Close(ctx, issue.ID); err != nil {
		logger.Error("issue could not be closed", "issue", issue.ID, "error", err)
		res.Err = err
		return r.replies.CloseFailed(model.UserMessage(err))
	}

	logger.Info("issue closed", "issue", issue.ID)
	return r.replies.Closed(*issue)
}

func (r *Router) changeSubscription(
	ctx context.Context,
	logger *slog.Logger,
	token model.Token,
	subscribe bool,
	res *Result,
) (templates.Reply, error) {
	issue, err := r.resolve(ctx, logger, token, res)
	if err != nil {
		return r.replies.SubscriptionFailed(subscribe, model.UserMessage(err))
	}

	if issue.Subscribed == subscribe {
		err := &model.StateError{Title: issue.Title, Subscribed: issue.Subscribed}
		logger.Info("subscription unchanged", "issue", issue.ID, "subscribed", issue.Subscribed)
		res.Err = err
		return r.replies.SubscriptionFailed(subscribe, model.UserMessage(err))
	}

	if err := r.store.SetSubscribed(ctx, token, subscribe); err != nil {
		logger.Error("subscription could not be changed", "issue", issue.ID, "error", err)
		res.Err = err
		return r.replies.SubscriptionFailed(subscribe, model.UserMessage(err))
	}

	issue.Subscribed = subscribe
	logger.Info("subscription changed", "issue", issue.ID, "subscribed", subscribe)
	return r.replies.SubscriptionChanged(*issue)
}
