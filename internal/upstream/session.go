package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/campwatch/campwatch/internal/httpx"
)

// SessionConfig controls how often the upstream session is re-warmed and
// how user agents rotate after failures.
type SessionConfig struct {
	BaseURL            string
	ValidationInterval time.Duration
	MaxFailures        int
	UserAgents         []string
}

// DefaultSessionConfig returns the production defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BaseURL:            "https://www.recreation.gov",
		ValidationInterval: 30 * time.Minute,
		MaxFailures:        3,
		UserAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		},
	}
}

// Session keeps a warmed cookie session against the upstream site. The
// HTTP client carries a shared cookie jar; warming is a GET of the site
// root with browser headers. User agents rotate on failures.
type Session struct {
	http   *http.Client
	cfg    SessionConfig
	logger *slog.Logger

	mu            sync.RWMutex
	lastValidated time.Time
	valid         bool
	failures      int
	userAgent     string
}

// SessionStats is a read-only view of the session state, exposed on the
// status endpoint.
type SessionStats struct {
	Valid         bool      `json:"valid"`
	LastValidated time.Time `json:"last_validated"`
	Failures      int       `json:"failures"`
	UserAgent     string    `json:"user_agent"`
}

// NewSession creates a session manager over the given cookie-jar client.
func NewSession(client *http.Client, cfg SessionConfig, logger *slog.Logger) *Session {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultSessionConfig().UserAgents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		http:      client,
		cfg:       cfg,
		logger:    logger,
		userAgent: cfg.UserAgents[0],
	}
}

// EnsureValid refreshes the session when it has never been validated, is
// stale, has been marked invalid, or has accumulated too many failures.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.RLock()
	needs := s.lastValidated.IsZero() ||
		time.Since(s.lastValidated) > s.cfg.ValidationInterval ||
		!s.valid ||
		s.failures >= s.cfg.MaxFailures
	s.mu.RUnlock()

	if !needs {
		return nil
	}
	return s.refresh(ctx)
}

// refresh warms a new session by loading the site root. The user agent is
// chosen by failure count so repeated failures walk through the pool.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.RLock()
	ua := s.cfg.UserAgents[s.failures%len(s.cfg.UserAgents)]
	s.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("session request: %w", err)
	}
	httpx.PageHeaders(req, ua)

	resp, err := s.http.Do(req)
	if err != nil {
		s.recordFailure()
		return fmt.Errorf("session warm-up GET failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.recordFailure()
		return fmt.Errorf("session warm-up status %d", resp.StatusCode)
	}

	s.mu.Lock()
	s.lastValidated = time.Now()
	s.valid = true
	s.userAgent = ua
	s.failures = 0
	s.mu.Unlock()

	s.logger.Info("warmed upstream session", slog.String("user_agent", ua))
	return nil
}

func (s *Session) recordFailure() {
	s.mu.Lock()
	s.failures++
	s.valid = false
	s.mu.Unlock()
}

// Invalidate marks the session invalid so the next EnsureValid refreshes.
// Called when an API request comes back 401/403.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// Reset clears all session state and forces an immediate refresh.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.lastValidated = time.Time{}
	s.valid = false
	s.failures = 0
	s.mu.Unlock()
	return s.refresh(ctx)
}

// UserAgent returns the user agent of the current session.
func (s *Session) UserAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userAgent
}

// Stats returns a snapshot of the session state.
func (s *Session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStats{
		Valid:         s.valid,
		LastValidated: s.lastValidated,
		Failures:      s.failures,
		UserAgent:     s.userAgent,
	}
}
