// Package setup is the interactive configuration wizard behind
// `issuebot setup`.
package setup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nhle/issuebot/internal/credential"
	"github.com/nhle/issuebot/internal/model"
)

// Answers holds the wizard fields. Zero fields keep the value of the
// configuration the wizard started from.
type Answers struct {
	Tag         string
	LocalPart   string
	Domain      string
	Tracker     string
	BaseURL     string
	Repo        string
	BotName     string
	BotUsername string
	AuthToken   string

	Mailer       string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string

	PollInterval string
	DBPath       string

	// StoreSecrets puts secrets in the keyring instead of the config file.
	StoreSecrets bool
}

// FromConfig pre-fills the wizard from an existing configuration.
func FromConfig(cfg model.Config) *Answers {
	a := &Answers{
		Tag:          cfg.Tag,
		LocalPart:    cfg.LocalPart,
		Domain:       cfg.Domain,
		Tracker:      cfg.Tracker,
		BaseURL:      cfg.BaseURL,
		Repo:         cfg.Repo,
		BotName:      cfg.BotName,
		BotUsername:  cfg.BotUsername,
		Mailer:       cfg.Mailer,
		SMTPHost:     cfg.SMTP.Host,
		SMTPPort:     cfg.SMTP.Port,
		SMTPUsername: cfg.SMTP.Username,
		DBPath:       cfg.DBPath,
		StoreSecrets: true,
	}
	if a.Tracker == "" {
		a.Tracker = model.TrackerGitea
	}
	if cfg.PollInterval > 0 {
		a.PollInterval = cfg.PollInterval.String()
	}
	return a
}

// NewForm builds the wizard. Values are written into a as the user types.
func NewForm(a *Answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tag").
				Description("Prefix of reply subjects, e.g. meli-issues").
				Value(&a.Tag).
				Validate(validateRequired("Tag")),
			huh.NewInput().
				Title("Local part").
				Description("Mailbox name of the bot address").
				Placeholder("issues").
				Value(&a.LocalPart).
				Validate(validateLocalPart),
			huh.NewInput().
				Title("Domain").
				Placeholder("example.org").
				Value(&a.Domain).
				Validate(validateRequired("Domain")),
			huh.NewInput().
				Title("Bot name").
				Description("Shown in reply signatures").
				Value(&a.BotName).
				Validate(validateRequired("Bot name")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Tracker").
				Options(
					huh.NewOption("Gitea", model.TrackerGitea),
					huh.NewOption("GitHub", model.TrackerGitHub),
				).
				Value(&a.Tracker),
			huh.NewInput().
				Title("Base URL").
				Description("Tracker web root (e.g., https://git.example.com)").
				Value(&a.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Repository").
				Placeholder("owner/name").
				Value(&a.Repo).
				Validate(validateRepo),
			huh.NewInput().
				Title("Bot username").
				Description("Tracker login of the bot account").
				Value(&a.BotUsername).
				Validate(validateRequired("Bot username")),
			huh.NewInput().
				Title("API token").
				Description("Leave empty to keep the stored token").
				EchoMode(huh.EchoModePassword).
				Value(&a.AuthToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Mailer command").
				Description("Receives each outgoing message on stdin; leave empty to use SMTP").
				Placeholder("/usr/sbin/sendmail -t").
				Value(&a.Mailer),
			huh.NewInput().
				Title("SMTP host").
				Value(&a.SMTPHost),
			huh.NewInput().
				Title("SMTP port").
				Placeholder("587").
				Value(&a.SMTPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("SMTP username").
				Value(&a.SMTPUsername),
			huh.NewInput().
				Title("SMTP password").
				EchoMode(huh.EchoModePassword).
				Value(&a.SMTPPassword),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Database path").
				Placeholder("./sqlite3.db").
				Value(&a.DBPath),
			huh.NewInput().
				Title("Poll interval").
				Description("How often `issuebot serve` polls, e.g. 5m; empty disables it").
				Value(&a.PollInterval).
				Validate(validateDuration),
			huh.NewConfirm().
				Title("Store secrets in the system keyring?").
				Value(&a.StoreSecrets),
		),
	)
}

// Apply merges the answers into base. Secrets are copied only when
// StoreSecrets is off; otherwise they are left for the keyring.
func (a Answers) Apply(base model.Config) (model.Config, error) {
	cfg := base
	cfg.Tag = strings.TrimSpace(a.Tag)
	cfg.LocalPart = strings.TrimSpace(a.LocalPart)
	cfg.Domain = strings.TrimSpace(a.Domain)
	cfg.Tracker = a.Tracker
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	cfg.Repo = strings.TrimSpace(a.Repo)
	cfg.BotName = strings.TrimSpace(a.BotName)
	cfg.BotUsername = strings.TrimSpace(a.BotUsername)
	cfg.Mailer = strings.TrimSpace(a.Mailer)
	cfg.SMTP.Host = strings.TrimSpace(a.SMTPHost)
	cfg.SMTP.Username = strings.TrimSpace(a.SMTPUsername)
	if p := strings.TrimSpace(a.SMTPPort); p != "" {
		cfg.SMTP.Port = p
	}
	if p := strings.TrimSpace(a.DBPath); p != "" {
		cfg.DBPath = p
	}

	cfg.PollInterval = 0
	if s := strings.TrimSpace(a.PollInterval); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return model.Config{}, fmt.Errorf("parsing poll interval: %w", err)
		}
		cfg.PollInterval = d
	}

	if !a.StoreSecrets {
		if a.AuthToken != "" {
			cfg.AuthToken = a.AuthToken
		}
		if a.SMTPPassword != "" {
			cfg.SMTP.Password = a.SMTPPassword
		}
	}

	return cfg, nil
}

// Secrets returns the non-empty secrets entered, keyed by keyring key.
func (a Answers) Secrets() map[string]string {
	out := make(map[string]string)
	if a.AuthToken != "" {
		out[credential.KeyAuthToken] = a.AuthToken
	}
	if a.SMTPPassword != "" {
		out[credential.KeySMTPPassword] = a.SMTPPassword
	}
	return out
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateLocalPart(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("local part is required")
	}
	if strings.ContainsAny(s, "+@ ") {
		return fmt.Errorf("local part must not contain '+', '@' or spaces")
	}
	return nil
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validateRepo(s string) error {
	_, _, err := model.Config{Repo: strings.TrimSpace(s)}.RepoOwnerName()
	return err
}

func validatePort(s string) error {
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}

func validateDuration(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}
