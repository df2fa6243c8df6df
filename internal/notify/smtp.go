package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string // SMTP server hostname
	Port     int    // SMTP server port (25, 465, 587)
	Username string // SMTP auth username
	Password string // SMTP auth password
	Protocol string // "tls" (port 465), "starttls" (port 587), "none" (port 25)
	FromAddr string // Sender email address
	FromName string // Sender display name
}

// SMTPMailer sends availability emails via SMTP, one recipient per send.
type SMTPMailer struct {
	config SMTPConfig
	logger *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Protocol == "none" {
		logger.Warn("SMTP using unencrypted connection - credentials will be sent in plaintext. Consider using TLS or STARTTLS.")
	}
	return &SMTPMailer{config: cfg, logger: logger}
}

// Send delivers one email and returns the generated Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.config.Host)
	msg := m.buildMessage(to, subject, body, messageID)

	client, err := m.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("smtp connect: %w", err)
	}
	defer client.Close()

	if m.config.Username != "" {
		if err := m.authenticate(client); err != nil {
			return "", fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.config.FromAddr); err != nil {
		return "", fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return "", fmt.Errorf("smtp RCPT TO %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return "", fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("smtp close data: %w", err)
	}

	client.Quit()
	m.logger.Info("email sent", slog.String("to", to), slog.String("subject", subject))
	return messageID, nil
}

// connect establishes an SMTP connection using the configured protocol.
func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.config.Host, fmt.Sprintf("%d", m.config.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	switch m.config.Protocol {
	case "tls":
		// Implicit TLS (port 465): TLS from the start
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.config.Host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("TLS dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.config.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP client: %w", err)
		}
		return client, nil

	case "starttls":
		// STARTTLS (port 587): plain connect, then upgrade
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.config.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP client: %w", err)
		}
		if err := client.StartTLS(&tls.Config{ServerName: m.config.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
		return client, nil

	default:
		// Plain SMTP (port 25): no encryption
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.config.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP client: %w", err)
		}
		return client, nil
	}
}

// authenticate performs SMTP AUTH PLAIN.
func (m *SMTPMailer) authenticate(client *smtp.Client) error {
	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	return client.Auth(auth)
}

// buildMessage constructs an RFC 2822 email message.
func (m *SMTPMailer) buildMessage(to, subject, body, messageID string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.config.FromName, m.config.FromAddr))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}
