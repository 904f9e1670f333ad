package app

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/tracker"
	"github.com/nhle/issuebot/internal/tracker/gitea"
	"github.com/nhle/issuebot/internal/tracker/github"
)

// NewTracker builds the tracker client selected by cfg.Tracker.
func NewTracker(cfg model.Config, logger *slog.Logger) (tracker.Client, error) {
	logger = logger.With("component", "tracker", "tracker", cfg.Tracker)

	switch cfg.Tracker {
	case model.TrackerGitea, "":
		return gitea.NewClient(cfg.BaseURL, cfg.Repo, cfg.AuthToken, gitea.WithLogger(logger)), nil
	case model.TrackerGitHub:
		owner, name, err := cfg.RepoOwnerName()
		if err != nil {
			return nil, err
		}
		client, err := github.NewClient(githubAPIBase(cfg.BaseURL), owner, name, cfg.AuthToken, logger)
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown tracker %q", cfg.Tracker)
	}
}

// githubAPIBase returns the enterprise base URL for a GitHub web root, or
// "" for github.com itself.
func githubAPIBase(webRoot string) string {
	u, err := url.Parse(webRoot)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if host == "github.com" || host == "www.github.com" {
		return ""
	}
	return strings.TrimRight(webRoot, "/")
}

// NewNotifier picks the mail transport: the mailer command when set,
// otherwise SMTP. In dry-run mode nothing is delivered.
func NewNotifier(cfg model.Config, logger *slog.Logger) (*mail.Notifier, error) {
	logger = logger.With("component", "notifier")

	var transport mail.Transport
	switch {
	case strings.TrimSpace(cfg.Mailer) != "":
		t, err := mail.NewCommandTransport(cfg.Mailer)
		if err != nil {
			return nil, err
		}
		transport = t
	case cfg.SMTP.Host != "":
		transport = mail.NewSMTPTransport(cfg.SMTP)
	case !cfg.DryRun:
		return nil, fmt.Errorf("no mail transport configured")
	}

	return mail.NewNotifier(transport, cfg.DryRun, logger), nil
}
