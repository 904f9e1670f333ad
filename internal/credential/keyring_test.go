package credential_test

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/issuebot/internal/credential"
	"github.com/nhle/issuebot/internal/model"
)

func TestSetGetDelete(t *testing.T) {
	s := credential.NewStore(keyring.NewArrayKeyring(nil))

	require.NoError(t, s.Set(credential.KeyAuthToken, "secret"))
	got, err := s.Get(credential.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, s.Delete(credential.KeyAuthToken))
	_, err = s.Get(credential.KeyAuthToken)
	require.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestResolveFillsOnlyEmptySecrets(t *testing.T) {
	s := credential.NewStore(keyring.NewArrayKeyring([]keyring.Item{
		{Key: credential.KeyAuthToken, Data: []byte("from-keyring")},
		{Key: credential.KeySMTPPassword, Data: []byte("smtp-from-keyring")},
	}))

	cfg := model.Config{
		AuthToken: "",
		SMTP:      model.SMTPConfig{Host: "smtp.example.org", Password: "from-env"},
		IMAP:      model.IMAPConfig{Host: "imap.example.org"},
	}
	assert.True(t, credential.NeedsResolve(cfg))

	require.NoError(t, s.Resolve(&cfg))
	assert.Equal(t, "from-keyring", cfg.AuthToken)
	assert.Equal(t, "from-env", cfg.SMTP.Password)
	assert.Empty(t, cfg.IMAP.Password, "missing keys are skipped")
}

func TestNeedsResolve(t *testing.T) {
	assert.False(t, credential.NeedsResolve(model.Config{AuthToken: "x"}))
	assert.True(t, credential.NeedsResolve(model.Config{}))
	assert.True(t, credential.NeedsResolve(model.Config{AuthToken: "x", IMAP: model.IMAPConfig{Host: "h"}}))
}

func TestIsValidKey(t *testing.T) {
	assert.True(t, credential.IsValidKey("smtp.password"))
	assert.False(t, credential.IsValidKey("password"))
}
