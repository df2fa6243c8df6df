package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDecodeStatus(t *testing.T) {
	price25 := 25.0
	price5050 := 50.50
	cases := []struct {
		status    string
		available bool
		price     *float64
	}{
		{"Available", true, nil},
		{"Reserved", false, nil},
		{"Not Available", false, nil},
		{"Not Reservable", false, nil},
		{"Walk-up", false, nil},
		{"A", true, nil},
		{"R", false, nil},
		{"X", false, nil},
		{"W", false, nil},
		{"N", false, nil},
		{"$25.00", true, &price25},
		{"$50.50", true, &price5050},
		{"$", true, nil},
		{"unknown", false, nil},
		{"", false, nil},
	}
	for _, c := range cases {
		avail, price := DecodeStatus(c.status)
		if avail != c.available {
			t.Errorf("DecodeStatus(%q) available = %v, want %v", c.status, avail, c.available)
		}
		if (price == nil) != (c.price == nil) {
			t.Errorf("DecodeStatus(%q) price = %v, want %v", c.status, price, c.price)
			continue
		}
		if price != nil && *price != *c.price {
			t.Errorf("DecodeStatus(%q) price = %v, want %v", c.status, *price, *c.price)
		}
	}
}

func TestMonthAnchors(t *testing.T) {
	from := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	anchors := monthAnchors(from, to)
	if len(anchors) != 3 {
		t.Fatalf("expected 3 anchors, got %d: %v", len(anchors), anchors)
	}
	want := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !anchors[i].Equal(want[i]) {
			t.Errorf("anchor %d = %v, want %v", i, anchors[i], want[i])
		}
	}

	same := monthAnchors(from, from)
	if len(same) != 1 {
		t.Fatalf("expected 1 anchor for single-day range, got %d", len(same))
	}
}

func TestFetchMonthlyAvailabilityStraddlesMonths(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start_date")
		starts = append(starts, start)
		switch start {
		case "2026-06-01T00:00:00.000Z":
			fmt.Fprint(w, `{"campsites":{"101":{"availabilities":{"2026-06-29T00:00:00Z":"Available","2026-06-30T00:00:00Z":"Reserved","2026-06-15T00:00:00Z":"Available"},"campsite_type":"STANDARD","loop":"A"}}}`)
		case "2026-07-01T00:00:00.000Z":
			fmt.Fprint(w, `{"campsites":{"101":{"availabilities":{"2026-07-01T00:00:00Z":"$25.00"},"campsite_type":"STANDARD","loop":"A"},"102":{"availabilities":{"2026-07-01T00:00:00Z":"Not Reservable"},"campsite_type":"STANDARD","loop":"B"}}}`)
		default:
			t.Errorf("unexpected start_date %q", start)
			http.Error(w, "bad start", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), nil, ClientConfig{InternalBaseURL: srv.URL, RIDBBaseURL: srv.URL}, nil)
	from := time.Date(2026, 6, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	snap, err := client.FetchMonthlyAvailability(context.Background(), "232447", from, to)
	if err != nil {
		t.Fatalf("FetchMonthlyAvailability: %v", err)
	}
	if len(starts) != 2 {
		t.Fatalf("expected 2 month fetches, got %d: %v", len(starts), starts)
	}
	if snap.CampgroundID != "232447" {
		t.Errorf("campground id = %q", snap.CampgroundID)
	}
	if snap.TotalSites != 2 {
		t.Errorf("total sites = %d, want 2", snap.TotalSites)
	}
	// June 15 is outside the window and must be filtered out.
	if len(snap.Sites) != 4 {
		t.Fatalf("expected 4 site/date entries, got %d: %+v", len(snap.Sites), snap.Sites)
	}
	var priced *SiteAvailability
	for i := range snap.Sites {
		s := &snap.Sites[i]
		if s.Date.Before(from) || s.Date.After(to) {
			t.Errorf("entry outside window: %+v", s)
		}
		if s.Price != nil {
			priced = s
		}
	}
	if priced == nil || *priced.Price != 25.0 || !priced.Available {
		t.Errorf("expected a priced available entry, got %+v", priced)
	}
}

func TestFetchMonthlyAvailabilityErrorMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", c.code)
		}))
		client := NewClient(srv.Client(), nil, ClientConfig{InternalBaseURL: srv.URL, RIDBBaseURL: srv.URL}, nil)
		day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		_, err := client.FetchMonthlyAvailability(context.Background(), "1", day, day)
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: got %v, want %v", c.code, err, c.want)
		}
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := NewClient(srv.Client(), nil, ClientConfig{InternalBaseURL: srv.URL, RIDBBaseURL: srv.URL}, nil)
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchMonthlyAvailability(context.Background(), "1", day, day)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestSearchFacilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/facilities" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "50" || q.Get("offset") != "0" {
			t.Errorf("paging params = %v", q)
		}
		if q.Get("query") != "yosemite" || q.Get("state") != "CA" || q.Get("apikey") != "test-key" {
			t.Errorf("params = %v", q)
		}
		fmt.Fprint(w, `{"RECDATA":[{"FacilityID":"232447","FacilityName":"Upper Pines","AddressStateCode":"CA","FacilityLatitude":37.7}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), nil, ClientConfig{InternalBaseURL: srv.URL, RIDBBaseURL: srv.URL, APIKey: "test-key"}, nil)
	facilities, err := client.SearchFacilities(context.Background(), "yosemite", "CA", "")
	if err != nil {
		t.Fatalf("SearchFacilities: %v", err)
	}
	if len(facilities) != 1 {
		t.Fatalf("expected 1 facility, got %d", len(facilities))
	}
	f := facilities[0]
	if f.FacilityID != "232447" || f.Name != "Upper Pines" || f.StateCode != "CA" {
		t.Errorf("facility = %+v", f)
	}
	if f.Latitude == nil || *f.Latitude != 37.7 {
		t.Errorf("latitude = %v", f.Latitude)
	}
}
