package upstream

import (
	"errors"
	"fmt"
	"time"
)

// SiteAvailability is the state of one campsite on one date. Two values
// describe the same site iff SiteID and Date match.
type SiteAvailability struct {
	SiteID    string    `json:"site_id"`
	SiteName  string    `json:"site_name"`
	Available bool      `json:"available"`
	Date      time.Time `json:"date"`
	Price     *float64  `json:"price,omitempty"`
}

// CampgroundAvailability is one snapshot of a campground over a date range.
// Sites holds every parsed site/date tuple, available or not.
type CampgroundAvailability struct {
	CampgroundID string             `json:"campground_id"`
	Sites        []SiteAvailability `json:"available_sites"`
	TotalSites   int                `json:"total_sites"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// Facility is a campground as described by the RIDB facility endpoints.
type Facility struct {
	FacilityID  string   `json:"FacilityID"`
	Name        string   `json:"FacilityName"`
	Description string   `json:"FacilityDescription"`
	Latitude    *float64 `json:"FacilityLatitude"`
	Longitude   *float64 `json:"FacilityLongitude"`
	Phone       string   `json:"FacilityPhone"`
	Email       string   `json:"FacilityEmail"`
	StateCode   string   `json:"AddressStateCode"`
}

// Error kinds surfaced by the client. Workers branch on these to decide
// whether to reset the session or just count the failure.
var (
	ErrRateLimited = errors.New("rate limited by upstream")
	ErrAuthFailed  = errors.New("authentication failed with upstream")
	ErrNotFound    = errors.New("not found")
)

// APIError is any other non-2xx upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// statusError maps an HTTP status code to the error kind the rest of the
// engine branches on.
func statusError(status int, body string) error {
	switch status {
	case 429:
		return ErrRateLimited
	case 401, 403:
		return ErrAuthFailed
	case 404:
		return ErrNotFound
	default:
		return &APIError{Status: status, Body: body}
	}
}

// DecodeStatus converts an upstream availability status string into
// (available, price). The decode is total: unknown strings are treated
// as unavailable. Strings starting with "$" are priced and available.
func DecodeStatus(status string) (bool, *float64) {
	switch status {
	case "Available":
		return true, nil
	case "Reserved", "Not Available", "Not Reservable", "Walk-up":
		return false, nil
	// Legacy RIDB single-letter codes.
	case "A":
		return true, nil
	case "R", "X", "W", "N":
		return false, nil
	}
	if len(status) >= 1 && status[0] == '$' {
		var price float64
		if _, err := fmt.Sscanf(status[1:], "%f", &price); err == nil {
			return true, &price
		}
		return true, nil
	}
	return false, nil
}
