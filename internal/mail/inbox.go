package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/issuebot/internal/model"
)

// Handler processes one inbound message. A non-nil error means the
// message was not dealt with and must stay unread.
type Handler func(ctx context.Context, env *Envelope) error

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Handled     int
	Unparseable int
}

// rawMessage is a fetched message awaiting routing.
type rawMessage struct {
	uid  imap.UID
	body []byte
}

// mailbox is the IMAP surface Drain needs.
type mailbox interface {
	fetchUnseen(ctx context.Context) ([]rawMessage, error)
	markSeen(ctx context.Context, uid imap.UID) error
	close() error
}

// Inbox drains unread messages from an IMAP mailbox.
type Inbox struct {
	cfg    model.IMAPConfig
	logger *slog.Logger
	dial   func(ctx context.Context) (mailbox, error)
}

// NewInbox creates an Inbox for the configured server and mailbox.
func NewInbox(cfg model.IMAPConfig, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Inbox{cfg: cfg, logger: logger}
	in.dial = in.connect
	return in
}

// Drain fetches every unseen message, passes each to handle in UID order,
// and flags it \Seen once handled. Messages that cannot be parsed are
// flagged too, since retrying them cannot succeed. The first handler
// error stops the drain and leaves that message and the rest unread.
func (in *Inbox) Drain(ctx context.Context, handle Handler) (DrainStats, error) {
	var stats DrainStats

	mb, err := in.dial(ctx)
	if err != nil {
		return stats, err
	}
	defer mb.close()

	msgs, err := mb.fetchUnseen(ctx)
	if err != nil {
		return stats, err
	}
	in.logger.Info("fetched unseen messages", "mailbox", in.cfg.Mailbox, "count", len(msgs))

	for _, m := range msgs {
		env, err := ParseEnvelope(bytes.NewReader(m.body))
		if err != nil {
			in.logger.Warn("discarding unparseable message", "uid", m.uid, "error", err)
			stats.Unparseable++
		} else if err := handle(ctx, env); err != nil {
			return stats, fmt.Errorf("handling message uid %d: %w", m.uid, err)
		} else {
			stats.Handled++
		}

		if err := mb.markSeen(ctx, m.uid); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// imapMailbox is a logged-in IMAP session with the mailbox selected.
type imapMailbox struct {
	client *imapclient.Client
}

// connect dials the server, authenticates and selects the mailbox.
func (in *Inbox) connect(_ context.Context) (mailbox, error) {
	addr := in.cfg.Host + ":" + in.cfg.Port

	var client *imapclient.Client
	var err error

	if in.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(in.cfg.Username, in.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", in.cfg.Username, err)
	}

	if _, err := client.Select(in.cfg.Mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", in.cfg.Mailbox, err)
	}

	return &imapMailbox{client: client}, nil
}

func (m *imapMailbox) fetchUnseen(_ context.Context) ([]rawMessage, error) {
	searchData, err := m.client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := m.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var msgs []rawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("collecting message data: %w", err)
		}
		msgs = append(msgs, rawMessage{uid: buf.UID, body: buf.FindBodySection(bodySection)})
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	return msgs, nil
}

func (m *imapMailbox) markSeen(_ context.Context, uid imap.UID) error {
	storeCmd := m.client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging uid %d seen: %w", uid, err)
	}
	return nil
}

func (m *imapMailbox) close() error {
	return m.client.Logout().Wait()
}
