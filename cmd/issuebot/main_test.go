package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/poller"
	"github.com/nhle/issuebot/internal/store"
	"github.com/nhle/issuebot/internal/templates"
	"github.com/nhle/issuebot/internal/testfake"
	"github.com/nhle/issuebot/tests/testutil"
)

const inboundMail = "From: Jane <jane@example.com>\r\n" +
	"To: issues@example.org\r\n" +
	"Subject: crash on start\r\n" +
	"\r\n" +
	"It crashes.\r\n"

// writeConfig writes a dry-run config pointing at a fake Gitea and returns
// its path and the database path.
func writeConfig(t *testing.T, giteaURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bot.db")
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
tag = "bot"
auth_token = "secret"
local_part = "issues"
domain = "example.org"
base_url = %q
repo = "owner/repo"
bot_name = "IssueBot"
bot_username = "issuebot"
dry_run = true
db_path = %q
log_file = %q
`, giteaURL, dbPath, filepath.Join(dir, "bot.log"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, dbPath
}

func fakeGitea(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/repos/owner/repo/issues", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 42, "created_at": "2024-03-01T10:00:00Z"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdin = strings.NewReader(in)
	t.Cleanup(func() {
		stdin = os.Stdin
		configPath = ""
		dryRun = false
	})
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInboundMessageCreatesIssue(t *testing.T) {
	srv := fakeGitea(t)
	cfgPath, dbPath := writeConfig(t, srv.URL)

	_, err := execute(t, inboundMail, "--config", cfgPath)
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer st.Close()
	issues, err := st.ListIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, int64(42), issues[0].ID)
	assert.Equal(t, "crash on start", issues[0].Title)
	assert.True(t, issues[0].Subscribed)
}

func TestInboundRejectsGarbage(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://git.example.org")

	_, err := execute(t, "not a message", "--config", cfgPath)
	assert.Error(t, err)
}

func TestInvalidConfigIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("tag = \"bot\"\nauth_token = \"x\"\n"), 0o600))

	_, err := execute(t, "", "cron", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is required")
}

func TestCronWithNoIssues(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://git.example.org")

	_, err := execute(t, "", "cron", "--config", cfgPath)
	assert.NoError(t, err)
}

func TestCronErrorWhenIssuesCannotBeListed(t *testing.T) {
	cfg := testfake.Config()
	replies, err := templates.New(cfg)
	require.NoError(t, err)
	st := testutil.NewTestStore(t)
	require.NoError(t, st.Close())

	p := poller.New(cfg, st, testfake.NewTracker(), &testfake.Notifier{}, replies,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = cronError(p.Run(context.Background()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing issues")
	assert.NotContains(t, err.Error(), "0 of 0")
}

func TestCronErrorCountsFailedIssues(t *testing.T) {
	cfg := testfake.Config()
	replies, err := templates.New(cfg)
	require.NoError(t, err)
	st := testutil.NewTestStore(t)
	testutil.SeedIssue(t, st, 1, "crash", true)
	testutil.SeedIssue(t, st, 2, "typo", true)
	tc := testfake.NewTracker()
	tc.ListErr = map[int64]error{2: errors.New("boom")}

	p := poller.New(cfg, st, tc, &testfake.Notifier{}, replies,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = cronError(p.Run(context.Background()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 issues failed")
}

func TestListEmpty(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://git.example.org")

	out, err := execute(t, "", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No issues stored yet.")
}

func TestCredentialSetRejectsUnknownKey(t *testing.T) {
	_, err := execute(t, "value\n", "credential", "set", "password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "password"`)
}
