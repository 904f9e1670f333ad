package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/model"
)

func TestCanonicalTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-01T10:00:00Z", "2024-03-01T10:00:00Z"},
		{"2024-03-01T12:00:00+02:00", "2024-03-01T10:00:00Z"},
		{"2024-03-01T10:00:00.123456Z", "2024-03-01T10:00:00Z"},
	}
	for _, tt := range tests {
		got, err := model.CanonicalTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := model.CanonicalTimestamp("yesterday")
	assert.Error(t, err)
}

func TestCanonicalTimestampsSortChronologically(t *testing.T) {
	earlier, err := model.CanonicalTimestamp("2024-03-01T11:30:00+02:00")
	require.NoError(t, err)
	later, err := model.CanonicalTimestamp("2024-03-01T10:00:00Z")
	require.NoError(t, err)

	assert.Less(t, earlier, later)
}

func TestCanonicalTimestampTruncatesToSeconds(t *testing.T) {
	a, err := model.CanonicalTimestamp("2024-03-01T10:00:00.100Z")
	require.NoError(t, err)
	b, err := model.CanonicalTimestamp("2024-03-01T10:00:00.900Z")
	require.NoError(t, err)
	next, err := model.CanonicalTimestamp("2024-03-01T10:00:01Z")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, len(model.TimestampLayout))
	assert.Less(t, b, next)
}

func TestFormatTimestampUsesUTC(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	ts := time.Date(2024, 1, 1, 20, 0, 0, 0, loc)

	assert.Equal(t, "2024-01-02T01:00:00Z", model.FormatTimestamp(ts))
}

func TestTokenRoundTrip(t *testing.T) {
	tok := model.NewToken()
	require.False(t, tok.IsZero())

	parsed, err := model.ParseToken(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
	assert.Equal(t, tok.String()[:8], tok.Short())

	v, err := tok.Value()
	require.NoError(t, err)
	var scanned model.Token
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, tok, scanned)
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[model.Token]bool)
	for range 100 {
		tok := model.NewToken()
		require.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := model.ParseToken("badtoken")
	assert.Error(t, err)
}

func TestTokenScanRejectsWrongType(t *testing.T) {
	var tok model.Token
	assert.Error(t, tok.Scan("not-bytes"))
	assert.Error(t, tok.Scan([]byte{1, 2, 3}))
}
