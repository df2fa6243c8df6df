package engine

import (
	"time"

	"github.com/campwatch/campwatch/internal/upstream"
)

// Diff returns the sites in current that are newly available compared to
// the previous snapshot: available now, and either absent from the prior
// state for that date or not available in it. Dates with no prior
// snapshot treat every available site as new. Order follows current.
func Diff(previous map[time.Time][]upstream.SiteAvailability, current upstream.CampgroundAvailability) []upstream.SiteAvailability {
	wasAvailable := map[time.Time]map[string]bool{}
	for date, sites := range previous {
		d := day(date)
		m := map[string]bool{}
		for _, site := range sites {
			if site.Available {
				m[site.SiteID] = true
			}
		}
		wasAvailable[d] = m
	}

	var fresh []upstream.SiteAvailability
	for _, site := range current.Sites {
		if !site.Available {
			continue
		}
		if wasAvailable[day(site.Date)][site.SiteID] {
			continue
		}
		fresh = append(fresh, site)
	}
	return fresh
}

func day(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}
