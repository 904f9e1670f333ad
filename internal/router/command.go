package router

import (
	"strings"

	"github.com/nhle/issuebot/internal/model"
)

// Kind is the action an inbound message asks for.
type Kind int

const (
	KindInvalid Kind = iota
	KindNewIssue
	KindNewAnonymousIssue
	KindReply
	KindClose
	KindSubscribe
	KindUnsubscribe
)

func (k Kind) String() string {
	switch k {
	case KindNewIssue:
		return "new-issue"
	case KindNewAnonymousIssue:
		return "new-anonymous-issue"
	case KindReply:
		return "reply"
	case KindClose:
		return "close"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	default:
		return "invalid"
	}
}

// authenticated reports whether the kind needs a capability token.
func (k Kind) authenticated() bool {
	switch k {
	case KindReply, KindClose, KindSubscribe, KindUnsubscribe:
		return true
	}
	return false
}

var tokenCommands = map[string]Kind{
	"reply":       KindReply,
	"close":       KindClose,
	"subscribe":   KindSubscribe,
	"unsubscribe": KindUnsubscribe,
}

// Command is a parsed recipient address.
type Command struct {
	Kind Kind

	// Token is set for authenticated kinds only. It is zero when the
	// address carried something that is not a token.
	Token model.Token

	// Tag is the raw text between the bot's local part and the domain,
	// without the leading '+'.
	Tag string
}

// ParseCommand finds the first recipient addressed to localPart@domain,
// with or without a "+tag", and decodes the tag. The tag is split on '+'
// only, so dotted local parts stay intact. No matching recipient, an
// unknown command or extra segments all yield KindInvalid.
func ParseCommand(recipients []string, localPart, domain string) Command {
	for _, rcpt := range recipients {
		tag, tagged, ok := matchRecipient(rcpt, localPart, domain)
		if !ok {
			continue
		}
		if !tagged {
			return Command{Kind: KindNewIssue}
		}
		return parseTag(tag)
	}
	return Command{Kind: KindInvalid}
}

// matchRecipient reports whether addr belongs to the bot and returns the
// tag it carries. tagged is false for the bare bot address.
func matchRecipient(addr, localPart, domain string) (tag string, tagged bool, ok bool) {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || !strings.EqualFold(addr[at+1:], domain) {
		return "", false, false
	}

	local := addr[:at]
	if strings.EqualFold(local, localPart) {
		return "", false, true
	}
	if len(local) > len(localPart) && local[len(localPart)] == '+' &&
		strings.EqualFold(local[:len(localPart)], localPart) {
		return local[len(localPart)+1:], true, true
	}
	return "", false, false
}

// parseTag decodes the text after "local+". An empty tag is invalid.
func parseTag(tag string) Command {
	cmd := Command{Kind: KindInvalid, Tag: tag}
	parts := strings.Split(tag, "+")
	switch {
	case len(parts) == 1 && strings.EqualFold(parts[0], "anonymous"):
		cmd.Kind = KindNewAnonymousIssue
	case len(parts) == 2:
		kind, ok := tokenCommands[strings.ToLower(parts[1])]
		if !ok {
			return cmd
		}
		// A token that does not parse cannot own an issue; it is left
		// zero so the lookup fails with model.ErrNotFound.
		cmd.Kind = kind
		cmd.Token, _ = model.ParseToken(parts[0])
	}
	return cmd
}
