package setup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/model"
)

func TestApplyMergesAnswers(t *testing.T) {
	base := model.Config{LogLevel: "debug", DBPath: "./sqlite3.db", SMTP: model.SMTPConfig{Port: "587"}}
	a := FromConfig(base)
	a.Tag = " meli-issues "
	a.LocalPart = "issues"
	a.Domain = "meli.delivery"
	a.BaseURL = "https://git.meli.delivery/"
	a.Repo = "meli/meli"
	a.BotName = "IssueBot"
	a.BotUsername = "issuebot"
	a.AuthToken = "secret"
	a.PollInterval = "5m"

	cfg, err := a.Apply(base)
	require.NoError(t, err)

	assert.Equal(t, "meli-issues", cfg.Tag)
	assert.Equal(t, model.TrackerGitea, cfg.Tracker)
	assert.Equal(t, "https://git.meli.delivery", cfg.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel, "untouched keys survive")
	assert.Equal(t, "587", cfg.SMTP.Port)
	assert.Empty(t, cfg.AuthToken, "secrets go to the keyring by default")
	assert.Equal(t, map[string]string{"auth_token": "secret"}, a.Secrets())
}

func TestApplyKeepsSecretsInFileWhenAsked(t *testing.T) {
	a := FromConfig(model.Config{})
	a.StoreSecrets = false
	a.AuthToken = "secret"
	a.SMTPPassword = "hunter2"

	cfg, err := a.Apply(model.Config{})
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, "hunter2", cfg.SMTP.Password)
}

func TestApplyRejectsBadInterval(t *testing.T) {
	a := FromConfig(model.Config{})
	a.PollInterval = "often"

	_, err := a.Apply(model.Config{})
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("https://git.example.org"))
	assert.Error(t, validateURL("git.example.org"))

	assert.NoError(t, validateRepo("owner/name"))
	assert.Error(t, validateRepo("owner"))

	assert.NoError(t, validateLocalPart("issues"))
	assert.Error(t, validateLocalPart("issues+x"))

	assert.NoError(t, validatePort(""))
	assert.Error(t, validatePort("25a"))

	assert.NoError(t, validateDuration(""))
	assert.NoError(t, validateDuration("90s"))
	assert.Error(t, validateDuration("-1m"))
}

func TestNewFormBuilds(t *testing.T) {
	assert.NotNil(t, NewForm(FromConfig(model.Config{})))
}
