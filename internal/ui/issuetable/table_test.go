package issuetable_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/ui/issuetable"
)

func TestRows(t *testing.T) {
	tok := model.NewToken()
	issues := []model.Issue{
		{ID: 3, Title: "crash", Submitter: "jane@example.com", Token: tok, Subscribed: true},
		{
			ID:        4,
			Title:     strings.Repeat("x", 60),
			Submitter: "hidden@example.com",
			Token:     model.NewToken(),
			Anonymous: true,
			Watermark: "2024-03-01T10:00:00Z",
		},
	}

	rows := issuetable.Rows(issues)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"3", "crash", "jane@example.com", tok.Short(), "yes", "never"}, rows[0])
	assert.Equal(t, "(anonymous)", rows[1][2])
	assert.Equal(t, "no", rows[1][4])
	assert.Equal(t, "2024-03-01T10:00:00Z", rows[1][5])
	assert.Len(t, []rune(rows[1][1]), 40)
}

func TestRenderNeverShowsFullToken(t *testing.T) {
	tok := model.NewToken()
	out := issuetable.Render([]model.Issue{{ID: 1, Title: "crash", Token: tok}})

	assert.Contains(t, out, "crash")
	assert.Contains(t, out, tok.Short())
	assert.NotContains(t, out, tok.String())
}

func TestRenderEmpty(t *testing.T) {
	assert.Contains(t, issuetable.Render(nil), "No issues stored yet.")
}
