package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// TwilioConfig holds the Twilio REST API credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

// TwilioSMS sends text messages through the Twilio Messages API.
type TwilioSMS struct {
	config TwilioConfig
	http   *http.Client
	logger *slog.Logger
}

func NewTwilioSMS(cfg TwilioConfig, client *http.Client, logger *slog.Logger) *TwilioSMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioSMS{config: cfg, http: client, logger: logger}
}

// Send delivers one SMS and returns the Twilio message SID.
func (t *TwilioSMS) Send(ctx context.Context, to, message string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.config.BaseURL, t.config.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.config.FromNumber)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	req.SetBasicAuth(t.config.AccountSID, t.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("twilio read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("twilio response decode: %w", err)
	}
	t.logger.Info("sms sent", slog.String("to", to), slog.String("sid", parsed.SID))
	return parsed.SID, nil
}
