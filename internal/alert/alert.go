// Package alert delivers operational alerts to a Discord channel. The
// zero-value Alerter is a no-op so callers never have to nil-check.
package alert

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type Alerter struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

// New connects a Discord alerter. An empty token or channel id returns a
// disabled alerter rather than an error; alerts are optional plumbing.
func New(token, channelID string, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Alerter{channelID: channelID, logger: logger}
	if token == "" || channelID == "" {
		logger.Info("discord alerts disabled")
		return a
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("discord session failed, alerts disabled", slog.String("err", err.Error()))
		return a
	}
	a.session = session
	return a
}

// Notify posts one message to the ops channel. Failures are logged, never
// returned; an alerting outage must not affect polling.
func (a *Alerter) Notify(msg string) {
	if a == nil || a.session == nil {
		return
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, msg); err != nil {
		a.logger.Error("discord alert failed", slog.String("err", err.Error()))
	}
}

// Close releases the Discord session.
func (a *Alerter) Close() {
	if a != nil && a.session != nil {
		a.session.Close()
	}
}
