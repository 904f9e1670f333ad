package poller_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/poller"
	"github.com/nhle/issuebot/internal/store"
	"github.com/nhle/issuebot/internal/templates"
	"github.com/nhle/issuebot/internal/testfake"
	"github.com/nhle/issuebot/tests/testutil"
)

type harness struct {
	poller   *poller.Poller
	store    *store.SQLiteStore
	tracker  *testfake.Tracker
	notifier *testfake.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, testutil.NewTestStore(t))
}

func newHarnessWithStore(t *testing.T, st *store.SQLiteStore) *harness {
	t.Helper()

	cfg := model.Config{
		Tag:         "bot",
		LocalPart:   "issues",
		Domain:      "example.org",
		BaseURL:     "https://git.example.org",
		Repo:        "owner/repo",
		BotName:     "IssueBot",
		BotUsername: "issuebot",
	}
	replies, err := templates.New(cfg)
	require.NoError(t, err)

	h := &harness{
		store:    st,
		tracker:  testfake.NewTracker(),
		notifier: &testfake.Notifier{},
	}
	h.poller = poller.New(cfg, h.store, h.tracker, h.notifier, replies,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func (h *harness) watermark(t *testing.T, issue model.Issue) string {
	t.Helper()
	got, err := h.store.FindByToken(context.Background(), issue.Token)
	require.NoError(t, err)
	return got.Watermark
}

func TestBoundaryCommentIsNotResent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", true)
	require.NoError(t, h.store.SetWatermark(ctx, 1, "2024-01-02T00:00:00Z"))

	h.tracker.AddComment(1, "2024-01-02T00:00:00Z", "alice", "already delivered")
	h.tracker.AddComment(1, "2024-01-03T00:00:00Z", "bob", "new one")

	report := h.poller.Run(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Updated)

	sent := h.notifier.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "[bot] new replies in issue `crash`", sent[0].Subject)
	assert.Equal(t, []string{issue.Submitter}, sent[0].To)
	assert.Equal(t, "issues@example.org", sent[0].From)
	assert.Contains(t, sent[0].Body, "User bob replied:\n\nnew one")
	assert.NotContains(t, sent[0].Body, "already delivered")

	assert.Equal(t, "2024-01-03T00:00:00Z", h.watermark(t, issue))
	assert.Equal(t, "2024-01-02T00:00:00Z", h.tracker.Calls[0].Since)
}

func TestDigestKeepsAPIOrderAndRelaysBotComments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", true)

	h.tracker.AddComment(1, "2024-01-05T00:00:00Z", "carol", "later")
	h.tracker.AddComment(1, "2024-01-04T00:00:00Z", "issuebot", "jane@example.com replies:\n\nfrom mail")

	report := h.poller.Run(ctx)
	require.NoError(t, report.Err())

	sent := h.notifier.Messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body,
		"User carol replied:\n\nlater"+templates.CommentSeparator+"jane@example.com replies:\n\nfrom mail")
	assert.NotContains(t, sent[0].Body, "User issuebot")
	assert.Equal(t, "2024-01-05T00:00:00Z", h.watermark(t, issue), "max, not last")
}

func TestFailedSendKeepsCommentsForNextRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", true)
	h.tracker.AddComment(1, "2024-01-03T00:00:00Z", "bob", "hello")

	h.notifier.Err = errors.New("sendmail exited 75")
	report := h.poller.Run(ctx)
	require.ErrorIs(t, report.Err(), model.ErrDeliveryFailed)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, h.watermark(t, issue))

	h.notifier.Err = nil
	report = h.poller.Run(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Updated)

	sent := h.notifier.Messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "User bob replied:\n\nhello")
	assert.Equal(t, "2024-01-03T00:00:00Z", h.watermark(t, issue))
}

func TestWatermarkIsMonotonicAcrossRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", true)

	var marks []string
	h.tracker.AddComment(1, "2024-01-01T10:00:00Z", "a", "1")
	h.poller.Run(ctx)
	marks = append(marks, h.watermark(t, issue))

	h.poller.Run(ctx)
	marks = append(marks, h.watermark(t, issue))

	h.tracker.AddComment(1, "2024-01-01T09:00:00Z", "late", "backdated")
	h.tracker.AddComment(1, "2024-01-01T11:00:00Z", "b", "2")
	h.poller.Run(ctx)
	marks = append(marks, h.watermark(t, issue))

	assert.Equal(t, []string{"2024-01-01T10:00:00Z", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z"}, marks)
	for i := 1; i < len(marks); i++ {
		assert.GreaterOrEqual(t, marks[i], marks[i-1])
	}
	assert.Len(t, h.notifier.Messages(), 2)
}

func TestUnsubscribedIssueAdvancesSilently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", false)
	h.tracker.AddComment(1, "2024-01-03T00:00:00Z", "bob", "hello")

	report := h.poller.Run(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Updated)
	assert.False(t, report.Results[0].Notified)
	assert.Empty(t, h.notifier.Messages())
	assert.Equal(t, "2024-01-03T00:00:00Z", h.watermark(t, issue))
}

func TestNoNewComments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	issue := testutil.SeedIssue(t, h.store, 1, "crash", true)

	report := h.poller.Run(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Unchanged)
	assert.Empty(t, h.notifier.Messages())
	assert.Empty(t, h.watermark(t, issue))
	assert.Empty(t, h.tracker.Calls[0].Since, "empty watermark lists everything")
}

func TestOneFailingIssueDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.SeedIssue(t, h.store, 1, "broken", true)
	second := testutil.SeedIssue(t, h.store, 2, "fine", true)
	testutil.SeedIssue(t, h.store, 3, "quiet", true)

	h.tracker.ListErr[1] = &testRemoteError{}
	h.tracker.AddComment(2, "2024-01-03T00:00:00Z", "bob", "hello")

	report := h.poller.Run(ctx)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	require.Error(t, report.Err())
	assert.ErrorIs(t, report.Err(), model.ErrRemoteCall)

	assert.Equal(t, "2024-01-03T00:00:00Z", h.watermark(t, second), "committed despite the failed run")
	require.Len(t, report.Results, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{report.Results[0].IssueID, report.Results[1].IssueID, report.Results[2].IssueID})
}

type testRemoteError struct{}

func (*testRemoteError) Error() string        { return "connection refused" }
func (*testRemoteError) Is(target error) bool { return target == model.ErrRemoteCall }

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "updated", poller.OutcomeUpdated.String())
	assert.Equal(t, "unchanged", poller.OutcomeUnchanged.String())
	assert.Equal(t, "failed", poller.OutcomeFailed.String())
}

func TestLegacyOffsetWatermarkStillDelivers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE issue (
		id INTEGER PRIMARY KEY, submitter TEXT NOT NULL, password BLOB,
		time_created TEXT NOT NULL, anonymous BOOLEAN, subscribed BOOLEAN,
		title TEXT NOT NULL, last_update TEXT)`)
	require.NoError(t, err)
	_, err = legacy.Exec(
		`INSERT INTO issue VALUES (1, 'a@example.com', ?, '2024-01-01T00:00:00Z', 0, 1, 'crash', '"2024-01-02T10:00:00+02:00"')`,
		model.NewToken(),
	)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	st, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := newHarnessWithStore(t, st)
	h.tracker.AddComment(1, "2024-01-02T09:30:00Z", "bob", "ninety minutes later")

	report := h.poller.Run(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Updated)
	require.Len(t, h.notifier.Messages(), 1)
	assert.Contains(t, h.notifier.Messages()[0].Body, "ninety minutes later")
}

func TestListFailureIsReported(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	report := h.poller.Run(context.Background())

	require.Error(t, report.ListErr())
	assert.Contains(t, report.ListErr().Error(), "listing issues")
	assert.ErrorIs(t, report.Err(), report.ListErr())
	assert.Empty(t, report.Results)
}
