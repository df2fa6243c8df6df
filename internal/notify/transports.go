// Package notify composes and delivers availability notifications over
// email and SMS, recording every attempt.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EmailTransport sends one email and returns a provider message id.
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SMSTransport sends one text message and returns a provider message id.
type SMSTransport interface {
	Send(ctx context.Context, to, message string) (string, error)
}

// LogEmail is the dev-mode email transport: logs instead of sending.
type LogEmail struct {
	Logger *slog.Logger
}

func (l *LogEmail) Send(ctx context.Context, to, subject, body string) (string, error) {
	id := "dev-email-" + uuid.NewString()
	if l.Logger != nil {
		l.Logger.Info("email (dev mode, not sent)",
			slog.String("to", to), slog.String("subject", subject), slog.String("id", id))
	}
	return id, nil
}

// LogSMS is the dev-mode SMS transport.
type LogSMS struct {
	Logger *slog.Logger
}

func (l *LogSMS) Send(ctx context.Context, to, message string) (string, error) {
	id := "dev-sms-" + uuid.NewString()
	if l.Logger != nil {
		l.Logger.Info("sms (dev mode, not sent)",
			slog.String("to", to), slog.String("message", message), slog.String("id", id))
	}
	return id, nil
}
