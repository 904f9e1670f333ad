package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tracker backends.
const (
	TrackerGitea  = "gitea"
	TrackerGitHub = "github"
)

// SMTPConfig holds the SMTP server settings used when no mailer command
// is configured.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// IMAPConfig holds the mailbox settings for `issuebot fetch`.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
}

// Config is the bot configuration. It is loaded once at startup and
// passed by value to every component; nothing mutates it afterwards.
type Config struct {
	// Tag prefixes reply subjects, e.g. "meli-issues" becomes [meli-issues].
	Tag string `mapstructure:"tag" yaml:"tag"`

	// AuthToken authenticates the bot against the tracker API.
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`

	// LocalPart and Domain form the bot address, e.g. issues@meli.delivery.
	LocalPart string `mapstructure:"local_part" yaml:"local_part"`
	Domain    string `mapstructure:"domain" yaml:"domain"`

	// BaseURL is the tracker root, e.g. https://git.meli.delivery.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Repo is "owner/name".
	Repo string `mapstructure:"repo" yaml:"repo"`

	// BotName is displayed in reply signatures.
	BotName string `mapstructure:"bot_name" yaml:"bot_name"`

	// BotUsername is the bot's tracker login. Comments by this login are
	// relayed without attribution.
	BotUsername string `mapstructure:"bot_username" yaml:"bot_username"`

	// Tracker selects the backend: "gitea" (default) or "github".
	Tracker string `mapstructure:"tracker" yaml:"tracker"`

	// Mailer is a command that accepts a finished message on stdin,
	// e.g. "/usr/sbin/sendmail -t".
	Mailer string `mapstructure:"mailer" yaml:"mailer"`

	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
	IMAP IMAPConfig `mapstructure:"imap" yaml:"imap"`

	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// DryRun logs outbound mail instead of delivering it.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// ListenAddr is the address `issuebot serve` binds.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// PollInterval makes `issuebot serve` run the poller periodically.
	// Zero disables it.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// BotAddress returns the bare bot address, local@domain.
func (c Config) BotAddress() string {
	return c.LocalPart + "@" + c.Domain
}

// HelpAddress returns the address used in reply signatures.
func (c Config) HelpAddress() string {
	return c.LocalPart + "+help@" + c.Domain
}

// CommandAddress returns the address that performs cmd on the issue
// owning token.
func (c Config) CommandAddress(token Token, cmd string) string {
	return fmt.Sprintf("%s+%s+%s@%s", c.LocalPart, token, cmd, c.Domain)
}

// IssuesURL returns the public issue list URL of the repository.
func (c Config) IssuesURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + c.Repo + "/issues"
}

// IssueURL returns the public URL of a single issue.
func (c Config) IssueURL(id int64) string {
	return c.IssuesURL() + "/" + strconv.FormatInt(id, 10)
}

// RepoOwnerName splits Repo into owner and name.
func (c Config) RepoOwnerName() (string, string, error) {
	owner, name, ok := strings.Cut(c.Repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repo %q must have the form owner/name", c.Repo)
	}
	return owner, name, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	required := []struct {
		key, value string
	}{
		{"tag", c.Tag},
		{"local_part", c.LocalPart},
		{"domain", c.Domain},
		{"base_url", c.BaseURL},
		{"repo", c.Repo},
		{"bot_name", c.BotName},
		{"bot_username", c.BotUsername},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.Repo != "" {
		if _, _, err := c.RepoOwnerName(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Tracker {
	case TrackerGitea, TrackerGitHub:
	default:
		errs = append(errs, fmt.Errorf("tracker must be %q or %q, got %q", TrackerGitea, TrackerGitHub, c.Tracker))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must not be negative, got %s", c.PollInterval))
	}
	if !c.DryRun && strings.TrimSpace(c.Mailer) == "" && c.SMTP.Host == "" {
		errs = append(errs, errors.New("either mailer or smtp.host is required unless dry_run is set"))
	}
	return errors.Join(errs...)
}

// ConfigPath resolves the configuration file location: an explicit path
// wins, then $ISSUEBOT_CONFIG (or the older $ISSUE_BOT_CONFIG), then
// ./config.toml.
func ConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, env := range []string{"ISSUEBOT_CONFIG", "ISSUE_BOT_CONFIG"} {
		if p := os.Getenv(env); p != "" {
			return p
		}
	}
	return filepath.Join(".", "config.toml")
}

// defaultConfig returns the values used for keys the file leaves unset.
func defaultConfig() Config {
	return Config{
		Tracker:    TrackerGitea,
		LogLevel:   "info",
		DBPath:     "./sqlite3.db",
		ListenAddr: ":8025",
		SMTP:       SMTPConfig{Port: "587"},
		IMAP:       IMAPConfig{Port: "993", TLS: true, Mailbox: "INBOX"},
	}
}

// newViper builds a viper instance with defaults and ISSUEBOT_* env
// bindings for every key, so env-only deployments work.
func newViper(path string) (*viper.Viper, error) {
	d := defaultConfig()
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("ISSUEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := map[string]any{
		"tag":           "",
		"auth_token":    "",
		"local_part":    "",
		"domain":        "",
		"base_url":      "",
		"repo":          "",
		"bot_name":      "",
		"bot_username":  "",
		"tracker":       d.Tracker,
		"mailer":        "",
		"smtp.host":     "",
		"smtp.port":     d.SMTP.Port,
		"smtp.username": "",
		"smtp.password": "",
		"smtp.tls":      false,
		"imap.host":     "",
		"imap.port":     d.IMAP.Port,
		"imap.username": "",
		"imap.password": "",
		"imap.tls":      d.IMAP.TLS,
		"imap.mailbox":  d.IMAP.Mailbox,
		"log_file":      "",
		"log_level":     d.LogLevel,
		"db_path":       d.DBPath,
		"dry_run":       false,
		"listen_addr":   d.ListenAddr,
		"poll_interval": "0s",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// The database location has historically been overridable on its own,
	// including under the bot's older ISSUE_BOT_ prefix.
	if err := v.BindEnv("db_path", "ISSUEBOT_DB_PATH", "ISSUEBOT_DB", "ISSUE_BOT_DB"); err != nil {
		return nil, fmt.Errorf("binding db_path environment: %w", err)
	}

	return v, nil
}

// LoadConfig reads the configuration file at path (TOML or YAML, chosen
// by extension) and overlays ISSUEBOT_* environment variables. A missing
// file is not an error: the result then comes from defaults and the
// environment alone. The returned config is not validated.
func LoadConfig(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Tracker = strings.ToLower(strings.TrimSpace(cfg.Tracker))

	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories if needed.
// Secrets are written only when non-empty; the keyring is the preferred
// home for them.
func SaveConfig(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.Set("tag", cfg.Tag)
	v.Set("local_part", cfg.LocalPart)
	v.Set("domain", cfg.Domain)
	v.Set("base_url", cfg.BaseURL)
	v.Set("repo", cfg.Repo)
	v.Set("bot_name", cfg.BotName)
	v.Set("bot_username", cfg.BotUsername)
	v.Set("tracker", cfg.Tracker)
	v.Set("mailer", cfg.Mailer)
	v.Set("db_path", cfg.DBPath)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_level", cfg.LogLevel)
	v.Set("dry_run", cfg.DryRun)
	v.Set("listen_addr", cfg.ListenAddr)
	if cfg.PollInterval > 0 {
		v.Set("poll_interval", cfg.PollInterval.String())
	}
	if cfg.AuthToken != "" {
		v.Set("auth_token", cfg.AuthToken)
	}
	if cfg.SMTP.Host != "" {
		v.Set("smtp.host", cfg.SMTP.Host)
		v.Set("smtp.port", cfg.SMTP.Port)
		v.Set("smtp.username", cfg.SMTP.Username)
		v.Set("smtp.tls", cfg.SMTP.TLS)
	}
	if cfg.IMAP.Host != "" {
		v.Set("imap.host", cfg.IMAP.Host)
		v.Set("imap.port", cfg.IMAP.Port)
		v.Set("imap.username", cfg.IMAP.Username)
		v.Set("imap.tls", cfg.IMAP.TLS)
		v.Set("imap.mailbox", cfg.IMAP.Mailbox)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
