package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the canonical encoding of every timestamp the bot
// stores or compares. It is fixed-width and always UTC, so string order
// and chronological order coincide.
//
// The layout carries whole seconds only. Gitea and GitHub both report
// comment and issue times at second precision, so truncating a
// fractional input never merges two distinct tracker timestamps. A
// backend that reports sub-second times would need a fixed-width
// fractional layout and a migration of stored values.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CanonicalTimestamp parses an RFC 3339 timestamp with any offset or
// fractional precision and re-encodes it in the canonical layout.
func CanonicalTimestamp(s string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return FormatTimestamp(t), nil
}

// Token is the capability secret handed to a submitter when an issue is
// created. Possession of the token is the only authorization for follow-up
// actions on the issue. It is generated once and never reissued.
type Token uuid.UUID

// NewToken returns a fresh random (v4) token.
func NewToken() Token {
	return Token(uuid.New())
}

// ParseToken parses the textual form used in command addresses.
func ParseToken(s string) (Token, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Token{}, fmt.Errorf("invalid token %q: %w", s, err)
	}
	return Token(u), nil
}

// String returns the hyphenated hex form of the token.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// Short returns the first block of the token, for display only.
func (t Token) Short() string {
	return t.String()[:8]
}

// IsZero reports whether t is the zero token.
func (t Token) IsZero() bool {
	return uuid.UUID(t) == uuid.Nil
}

// Value stores the token as a 16-byte blob.
func (t Token) Value() (driver.Value, error) {
	b := make([]byte, 16)
	copy(b, t[:])
	return b, nil
}

// Scan reads a token stored as a 16-byte blob.
func (t *Token) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scanning token: unexpected type %T", src)
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return fmt.Errorf("scanning token: %w", err)
	}
	*t = Token(u)
	return nil
}

// Issue is a locally tracked remote issue together with its capability
// token and the submitter's notification state.
type Issue struct {
	// ID is the remote tracker's issue number.
	ID int64 `json:"id" db:"id"`

	// Submitter is the original reporter's address.
	Submitter string `json:"submitter" db:"submitter"`

	// Token authorizes every follow-up action on the issue.
	Token Token `json:"-" db:"password"`

	// CreatedAt is the canonical timestamp of local creation.
	CreatedAt string `json:"time_created" db:"time_created"`

	// Anonymous hides the submitter's identity from the public tracker.
	Anonymous bool `json:"anonymous" db:"anonymous"`

	// Subscribed controls whether the submitter receives update digests.
	Subscribed bool `json:"subscribed" db:"subscribed"`

	Title string `json:"title" db:"title"`

	// Watermark is the canonical timestamp of the newest remote comment
	// already delivered. Empty until the first delivery; never decreases.
	Watermark string `json:"last_update" db:"last_update"`
}

// Comment is a single remote comment on an issue.
type Comment struct {
	CreatedAt string `json:"created_at"`
	Author    string `json:"author"`
	Body      string `json:"body"`
}
