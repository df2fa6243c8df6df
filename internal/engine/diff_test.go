package engine

import (
	"testing"
	"time"

	"github.com/campwatch/campwatch/internal/upstream"
)

func d(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func TestDiffFirstSnapshotAllNew(t *testing.T) {
	current := upstream.CampgroundAvailability{
		Sites: []upstream.SiteAvailability{
			{SiteID: "101", Available: true, Date: d(2026, 7, 15)},
			{SiteID: "102", Available: false, Date: d(2026, 7, 15)},
		},
	}
	fresh := Diff(nil, current)
	if len(fresh) != 1 || fresh[0].SiteID != "101" {
		t.Fatalf("fresh = %+v", fresh)
	}
}

func TestDiffOnlyTransitionsCount(t *testing.T) {
	previous := map[time.Time][]upstream.SiteAvailability{
		d(2026, 7, 15): {
			{SiteID: "101", Available: true, Date: d(2026, 7, 15)},
			{SiteID: "102", Available: false, Date: d(2026, 7, 15)},
		},
	}
	current := upstream.CampgroundAvailability{
		Sites: []upstream.SiteAvailability{
			// Still available: not new.
			{SiteID: "101", Available: true, Date: d(2026, 7, 15)},
			// Was reserved, now open: new.
			{SiteID: "102", Available: true, Date: d(2026, 7, 15)},
			// Unseen site: new.
			{SiteID: "103", Available: true, Date: d(2026, 7, 15)},
		},
	}
	fresh := Diff(previous, current)
	if len(fresh) != 2 {
		t.Fatalf("fresh = %+v", fresh)
	}
	if fresh[0].SiteID != "102" || fresh[1].SiteID != "103" {
		t.Errorf("order = %s, %s", fresh[0].SiteID, fresh[1].SiteID)
	}
}

func TestDiffPerDateIndependence(t *testing.T) {
	previous := map[time.Time][]upstream.SiteAvailability{
		d(2026, 7, 15): {{SiteID: "101", Available: true, Date: d(2026, 7, 15)}},
	}
	current := upstream.CampgroundAvailability{
		Sites: []upstream.SiteAvailability{
			// Same site, different date with no prior state: new.
			{SiteID: "101", Available: true, Date: d(2026, 7, 16)},
		},
	}
	fresh := Diff(previous, current)
	if len(fresh) != 1 || !fresh[0].Date.Equal(d(2026, 7, 16)) {
		t.Fatalf("fresh = %+v", fresh)
	}
}

func TestDiffClosuresIgnored(t *testing.T) {
	previous := map[time.Time][]upstream.SiteAvailability{
		d(2026, 7, 15): {{SiteID: "101", Available: true, Date: d(2026, 7, 15)}},
	}
	current := upstream.CampgroundAvailability{
		Sites: []upstream.SiteAvailability{
			{SiteID: "101", Available: false, Date: d(2026, 7, 15)},
		},
	}
	if fresh := Diff(previous, current); len(fresh) != 0 {
		t.Fatalf("closure reported as new: %+v", fresh)
	}
}
