package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/nhle/issuebot/internal/model"
)

// CommandTransport pipes each message into an external command such as
// "/usr/sbin/sendmail -t". A non-zero exit status is a failure.
type CommandTransport struct {
	argv []string
}

// NewCommandTransport splits command into arguments, honoring shell-style
// quoting.
func NewCommandTransport(command string) (*CommandTransport, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing mailer command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("mailer command is empty")
	}
	return &CommandTransport{argv: argv}, nil
}

// Deliver runs the command with raw on stdin. Recipients are taken from
// the message headers by the command itself.
func (t *CommandTransport) Deliver(ctx context.Context, _ string, _ []string, raw []byte) error {
	cmd := exec.CommandContext(ctx, t.argv[0], t.argv[1:]...)
	cmd.Stdin = bytes.NewReader(raw)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("running %s: %w: %s", t.argv[0], err, msg)
		}
		return fmt.Errorf("running %s: %w", t.argv[0], err)
	}
	return nil
}

const smtpDialTimeout = 30 * time.Second

// SMTPTransport submits messages to an SMTP server over implicit TLS or
// STARTTLS, authenticating with PLAIN when a username is set.
type SMTPTransport struct {
	cfg model.SMTPConfig
}

// NewSMTPTransport creates a transport for the given server settings.
func NewSMTPTransport(cfg model.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Deliver sends raw to every recipient in one SMTP transaction.
func (t *SMTPTransport) Deliver(ctx context.Context, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var conn net.Conn
	var err error
	if t.cfg.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if !t.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
				return fmt.Errorf("SMTP STARTTLS: %w", err)
			}
		}
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing message: %w", err)
	}

	return client.Quit()
}
