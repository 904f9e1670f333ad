// Package mail parses inbound messages, composes replies and delivers
// them through a sendmail-style command or SMTP.
package mail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Envelope is the part of an inbound message the router works with.
type Envelope struct {
	// From is the sender formatted for display and for reply headers,
	// e.g. "Jane Doe <jane@example.com>".
	From string

	// FromAddress is the bare sender address.
	FromAddress string

	// To lists the bare addresses of every To and Cc recipient, in
	// header order.
	To []string

	Subject    string
	Body       string
	MessageID  string
	References []string
}

// ParseEnvelope reads a raw RFC 5322 message. The body is the first
// text/plain part, or the first inline part when there is none.
func ParseEnvelope(r io.Reader) (*Envelope, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	env := &Envelope{}

	from, err := mr.Header.AddressList("From")
	if err != nil {
		return nil, fmt.Errorf("parsing From: %w", err)
	}
	if len(from) == 0 {
		return nil, errors.New("message has no From address")
	}
	env.From = from[0].String()
	env.FromAddress = from[0].Address

	for _, key := range []string{"To", "Cc"} {
		list, err := mr.Header.AddressList(key)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", key, err)
		}
		for _, addr := range list {
			env.To = append(env.To, addr.Address)
		}
	}

	if env.Subject, err = mr.Header.Subject(); err != nil {
		return nil, fmt.Errorf("parsing Subject: %w", err)
	}

	// Malformed ids are not worth rejecting the message over; the reply
	// just loses its threading.
	env.MessageID, _ = mr.Header.MessageID()
	env.References, _ = mr.Header.MsgIDList("References")

	env.Body, err = readBody(mr)
	if err != nil {
		return nil, err
	}

	return env, nil
}

// readBody walks the MIME parts and returns the preferred text body.
func readBody(mr *mail.Reader) (string, error) {
	var fallback string
	haveFallback := false

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("reading %s part: %w", contentType, err)
		}

		if contentType == "" || strings.HasPrefix(contentType, "text/plain") {
			return normalizeNewlines(body), nil
		}
		if !haveFallback {
			fallback, haveFallback = normalizeNewlines(body), true
		}
	}

	return fallback, nil
}

func normalizeNewlines(b []byte) string {
	return string(bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n")))
}
