// Package app assembles the bot from a configuration: logging, the
// capability store, the tracker backend, mail delivery, and the router and
// poller built on top of them.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/poller"
	"github.com/nhle/issuebot/internal/router"
	"github.com/nhle/issuebot/internal/server"
	"github.com/nhle/issuebot/internal/store"
	"github.com/nhle/issuebot/internal/templates"
	"github.com/nhle/issuebot/internal/tracker"
)

// Bot holds the wired components of one process.
type Bot struct {
	Config   model.Config
	Logger   *slog.Logger
	Store    *store.SQLiteStore
	Tracker  tracker.Client
	Notifier *mail.Notifier
	Replies  *templates.Renderer

	closers []io.Closer
}

// New wires every component from cfg. cfg must already be validated.
// Callers must Close the returned Bot.
func New(cfg model.Config) (*Bot, error) {
	logger, logCloser, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	b := &Bot{Config: cfg, Logger: logger}
	if logCloser != nil {
		b.closers = append(b.closers, logCloser)
	}

	if err := b.init(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bot) init() error {
	st, err := store.NewSQLiteStore(b.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", b.Config.DBPath, err)
	}
	b.Store = st
	b.closers = append(b.closers, st)

	b.Tracker, err = NewTracker(b.Config, b.Logger)
	if err != nil {
		return err
	}

	b.Notifier, err = NewNotifier(b.Config, b.Logger)
	if err != nil {
		return err
	}

	b.Replies, err = templates.New(b.Config)
	if err != nil {
		return fmt.Errorf("loading reply templates: %w", err)
	}

	return nil
}

// Router returns a router over the bot's components.
func (b *Bot) Router() *router.Router {
	return router.New(b.Config, b.Store, b.Tracker, b.Notifier, b.Replies,
		b.Logger.With("component", "router"))
}

// Poller returns a poller over the bot's components.
func (b *Bot) Poller() *poller.Poller {
	return poller.New(b.Config, b.Store, b.Tracker, b.Notifier, b.Replies,
		b.Logger.With("component", "poller"))
}

// Server returns the HTTP front of the router and the poller.
func (b *Bot) Server() *server.Server {
	return server.New(b.Router(), b.Poller(), b.Logger.With("component", "server"))
}

// Inbox returns the IMAP mailbox configured for `issuebot fetch`.
func (b *Bot) Inbox() (*mail.Inbox, error) {
	if b.Config.IMAP.Host == "" {
		return nil, errors.New("imap.host is not configured")
	}
	return mail.NewInbox(b.Config.IMAP, b.Logger.With("component", "inbox")), nil
}

// Close releases the store and the log file.
func (b *Bot) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger. Output goes to log_file (appended)
// when set, otherwise to stderr. The returned closer is nil for stderr.
func NewLogger(cfg model.Config) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.LogFile, err)
		}
		out, closer = f, f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}
