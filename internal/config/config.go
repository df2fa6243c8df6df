// Package config loads engine settings from the environment, with a
// best-effort .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage and surfaces.
	DBPath   string
	WebAddr  string
	LogLevel slog.Level

	// Scheduler.
	PollCheckInterval    time.Duration
	DefaultPollFrequency time.Duration
	MaxConsecutiveErrors int
	ErrorBackoff         time.Duration
	ClaimTimeout         time.Duration

	// Rate governor.
	MinAPIInterval  time.Duration
	MaxCallsPerHour int

	// Upstream session.
	SessionValidationInterval time.Duration
	SessionMaxFailures        int
	RecreationGovAPIKey       string

	// Email.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPProtocol string
	FromEmail    string
	FromName     string

	// SMS.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Ops alerts.
	DiscordToken     string
	DiscordChannelID string
}

// Load reads configuration from the environment. A missing .env is fine;
// a malformed value is an error rather than a silent default.
func Load() (Config, error) {
	godotenv.Load()

	cfg := Config{
		DBPath:       envStr("DB_PATH", "campwatch.duckdb"),
		WebAddr:      envStr("WEB_ADDR", ":8080"),
		SMTPProtocol: envStr("SMTP_PROTOCOL", "starttls"),
		FromEmail:    envStr("FROM_EMAIL", ""),
		FromName:     envStr("FROM_NAME", "Campsite Tracker"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),

		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),

		RecreationGovAPIKey: os.Getenv("RECREATION_GOV_API_KEY"),
	}

	var err error
	if cfg.LogLevel, err = parseLogLevel(envStr("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}
	if cfg.PollCheckInterval, err = envDuration("POLL_CHECK_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DefaultPollFrequency, err = envDuration("DEFAULT_POLL_FREQUENCY", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.MaxConsecutiveErrors, err = envInt("MAX_CONSECUTIVE_ERRORS", 5); err != nil {
		return Config{}, err
	}
	if cfg.ErrorBackoff, err = envDuration("ERROR_BACKOFF_DURATION", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ClaimTimeout, err = envDuration("CLAIM_TIMEOUT", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.MinAPIInterval, err = envDuration("MIN_API_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxCallsPerHour, err = envInt("MAX_CALLS_PER_HOUR", 1000); err != nil {
		return Config{}, err
	}
	if cfg.SessionValidationInterval, err = envDuration("SESSION_VALIDATION_INTERVAL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxFailures, err = envInt("SESSION_MAX_FAILURES", 3); err != nil {
		return Config{}, err
	}
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EmailConfigured reports whether real SMTP delivery is set up.
func (c Config) EmailConfigured() bool {
	return c.SMTPHost != "" && c.FromEmail != ""
}

// SMSConfigured reports whether real Twilio delivery is set up.
func (c Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
	}
}
