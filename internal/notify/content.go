package notify

import (
	"fmt"
	"strings"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/upstream"
)

// composeEmail builds the subject and plaintext body for one scan's
// availability email. sites are the newly opened sites within the scan's
// window.
func composeEmail(scan db.UserScan, campgroundName string, sites []upstream.SiteAvailability) (string, string) {
	subject := fmt.Sprintf("🏕️ Campsite Available: %s (%s - %s)",
		campgroundName,
		scan.CheckIn.Format("01/02"),
		scan.CheckOut.Format("01/02"))

	available := sites[:0:0]
	for _, site := range sites {
		if site.Available {
			available = append(available, site)
		}
	}

	siteList := formatSiteLines(available)
	if len(available) > 5 {
		siteList = fmt.Sprintf("%d sites available (showing first 5):\n%s",
			len(available), formatSiteLines(available[:5]))
	}

	body := fmt.Sprintf(`Great news! New campsites are available for your search:

🏕️ Campground: %s
📅 Your Dates: %s to %s (%d nights)

Available Sites:
%s

Visit recreation.gov to book your site:
https://www.recreation.gov/camping/campgrounds/%s

This notification was sent because you set up a scan for this campground. You can manage your scans in the Campsite Tracker app.
`,
		campgroundName,
		scan.CheckIn.Format("January 2, 2006"),
		scan.CheckOut.Format("January 2, 2006"),
		scan.Nights,
		siteList,
		scan.CampgroundID)

	return subject, body
}

func formatSiteLines(sites []upstream.SiteAvailability) string {
	lines := make([]string, 0, len(sites))
	for _, site := range sites {
		price := ""
		if site.Price != nil {
			price = fmt.Sprintf(" ($%.2f)", *site.Price)
		}
		lines = append(lines, fmt.Sprintf("• %s on %s%s", site.SiteName, site.Date.Format("01/02/2006"), price))
	}
	return strings.Join(lines, "\n")
}

// composeSMS builds the text message for one scan. The count is every
// available site in the snapshot, not just the new ones, since that is
// what the user will find on the booking page.
func composeSMS(scan db.UserScan, campgroundName string, snapshot upstream.CampgroundAvailability) string {
	count := 0
	for _, site := range snapshot.Sites {
		if site.Available {
			count++
		}
	}
	return fmt.Sprintf("🏕️ %d campsites available at %s for %s-%s! Check recreation.gov to book. -Campsite Tracker",
		count,
		campgroundName,
		scan.CheckIn.Format("01/02"),
		scan.CheckOut.Format("01/02"))
}
