package db

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/marcboeker/go-duckdb"
)

//go:embed schema.sql
var schemaFS embed.FS

type Store struct {
	DB *sql.DB
}

func Open(path string) (*Store, error) {
	return OpenWithMode(path, "READ_WRITE")
}

// OpenReadOnly opens the database without the write lock, for tooling that
// inspects a live engine's database.
func OpenReadOnly(path string) (*Store, error) { return OpenWithMode(path, "READ_ONLY") }

// OpenWithMode allows specifying DuckDB access_mode (READ_WRITE or READ_ONLY).
func OpenWithMode(path, mode string) (*Store, error) {
	if mode == "" {
		mode = "READ_WRITE"
	}
	dsn := fmt.Sprintf("%s?access_mode=%s", path, mode)
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if strings.EqualFold(mode, "READ_WRITE") {
		if err := migrate(db); err != nil {
			return nil, err
		}
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func migrate(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(schemaBytes))
	return err
}

// Models

// PollingJob is one campground's polling schedule. There is at most one
// job per campground; active_scan_count says how many scans want it.
type PollingJob struct {
	CampgroundID         string
	ActiveScanCount      int
	LastPolled           sql.NullTime
	NextPollAt           time.Time
	PollFrequencyMinutes int
	ConsecutiveErrors    int
	IsBeingPolled        bool
	Priority             int
	UpdatedAt            time.Time
}

// UserScan is one user's request to watch a campground over a date range.
// Checkout is exclusive: a scan for 15th..17th covers the nights of the
// 15th and 16th.
type UserScan struct {
	ID               string
	UserID           string
	CampgroundID     string
	CheckIn          time.Time
	CheckOut         time.Time
	Nights           int
	Status           string
	NotificationSent bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        sql.NullTime
}

// Preferences controls which channels a user wants. Stored as JSON in the
// users row; missing or malformed JSON means both channels on.
type Preferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

type User struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	EmailVerified bool
	PhoneVerified bool
	Preferences   Preferences
	IsActive      bool
}

type Campground struct {
	ID        string
	Name      string
	StateCode string
	Lat       float64
	Lon       float64
}

// NotificationRecord is one delivery attempt over one channel.
type NotificationRecord struct {
	ID                  string
	UserID              string
	UserScanID          string
	Type                string // email|sms
	Recipient           string
	Subject             string
	Message             string
	AvailabilityDetails string
	Status              string // sent|failed
	SentAt              sql.NullTime
	ExternalID          string
	CreatedAt           time.Time
}

func parsePreferences(raw sql.NullString) Preferences {
	prefs := Preferences{Email: true, SMS: true}
	if !raw.Valid || raw.String == "" {
		return prefs
	}
	if err := json.Unmarshal([]byte(raw.String), &prefs); err != nil {
		return Preferences{Email: true, SMS: true}
	}
	return prefs
}

func marshalPreferences(p Preferences) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// normalizeDay returns time truncated to 00:00:00 UTC.
func normalizeDay(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}
