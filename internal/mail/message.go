package mail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is an outbound plain-text message.
type Message struct {
	From       string
	To         []string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
}

// Recipients returns the bare addresses of To.
func (m Message) Recipients() ([]string, error) {
	list, err := parseAddresses(m.To)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out, nil
}

// Sender returns the bare address of From.
func (m Message) Sender() (string, error) {
	a, err := mail.ParseAddress(m.From)
	if err != nil {
		return "", fmt.Errorf("parsing From %q: %w", m.From, err)
	}
	return a.Address, nil
}

// Bytes renders the message as RFC 5322 text with a fresh Message-ID.
func (m Message) Bytes() ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())

	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return nil, fmt.Errorf("parsing From %q: %w", m.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	to, err := parseAddresses(m.To)
	if err != nil {
		return nil, err
	}
	h.SetAddressList("To", to)
	h.SetSubject(m.Subject)

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating Message-ID: %w", err)
	}
	if m.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{m.InReplyTo})
	}
	if len(m.References) > 0 {
		h.SetMsgIDList("References", m.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := w.Write([]byte(m.Body)); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}

	return buf.Bytes(), nil
}

// ReplyTo builds a threaded reply to env. The subject is set by the
// caller.
func ReplyTo(env *Envelope, from string) Message {
	msg := Message{
		From: from,
		To:   []string{env.From},
	}
	if env.MessageID != "" {
		msg.InReplyTo = env.MessageID
		msg.References = append(append([]string{}, env.References...), env.MessageID)
	}
	return msg
}

func parseAddresses(list []string) ([]*mail.Address, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	out := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("parsing address %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
