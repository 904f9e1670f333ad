package mail_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/mail"
)

func TestParseEnvelopePlain(t *testing.T) {
	raw := "From: Jane Doe <jane@example.com>\r\n" +
		"To: issues+anonymous@example.org\r\n" +
		"Cc: someone@example.net\r\n" +
		"Subject: crash on start\r\n" +
		"Message-ID: <abc@example.com>\r\n" +
		"References: <root@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"it crashes\r\nevery time\r\n"

	env, err := mail.ParseEnvelope(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, `"Jane Doe" <jane@example.com>`, env.From)
	assert.Equal(t, "jane@example.com", env.FromAddress)
	assert.Equal(t, []string{"issues+anonymous@example.org", "someone@example.net"}, env.To)
	assert.Equal(t, "crash on start", env.Subject)
	assert.Equal(t, "abc@example.com", env.MessageID)
	assert.Equal(t, []string{"root@example.com"}, env.References)
	assert.Equal(t, "it crashes\nevery time\n", env.Body)
}

func TestParseEnvelopeMultipartPrefersPlainText(t *testing.T) {
	raw := "From: jane@example.com\r\n" +
		"To: issues@example.org\r\n" +
		"Subject: html first\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>hello</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--XYZ--\r\n"

	env, err := mail.ParseEnvelope(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "hello", env.Body)
}

func TestParseEnvelopeEncodedSubject(t *testing.T) {
	raw := "From: jane@example.com\r\n" +
		"To: issues@example.org\r\n" +
		"Subject: =?UTF-8?Q?caf=C3=A9_broken?=\r\n" +
		"\r\n" +
		"body\r\n"

	env, err := mail.ParseEnvelope(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "café broken", env.Subject)
}

func TestParseEnvelopeRequiresFrom(t *testing.T) {
	raw := "To: issues@example.org\r\nSubject: x\r\n\r\nbody\r\n"

	_, err := mail.ParseEnvelope(strings.NewReader(raw))
	require.Error(t, err)
}
