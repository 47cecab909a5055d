package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Delta is one day bucket at a public location that crossed from no
// availability in the previous snapshot to at least the alert threshold now.
type Delta struct {
	LocationName string    `json:"location_name"`
	Day          time.Time `json:"day"`
	Count        int       `json:"count"`
	Previous     int       `json:"previous"`
}

// Changes compares two consecutive snapshots and returns the day buckets
// worth alerting on. Only public locations are considered, and only locations
// that existed in the previous snapshot: a location seen for the first time
// has no baseline to have "changed" from. A day bucket absent from the
// previous snapshot's availability counts as previously zero, since the
// projection drops non-positive buckets.
func Changes(prev, curr []LocationSnapshot, threshold int) []Delta {
	var deltas []Delta
	for _, loc := range curr {
		if !loc.LocationPublic || loc.LocationID == nil {
			continue
		}

		prevLoc, ok := findLocation(prev, *loc.LocationID)
		if !ok {
			continue
		}

		prevByDay := make(map[time.Time]int, len(prevLoc.Availability))
		for _, b := range prevLoc.Availability {
			prevByDay[b.Timestamp] = b.Count
		}

		for _, b := range loc.Availability {
			prevCount := prevByDay[b.Timestamp]
			if prevCount <= 0 && b.Count >= threshold {
				deltas = append(deltas, Delta{
					LocationName: loc.LocationName,
					Day:          b.Timestamp,
					Count:        b.Count,
					Previous:     prevCount,
				})
			}
		}
	}
	return deltas
}

func findLocation(locs []LocationSnapshot, id int) (LocationSnapshot, bool) {
	for _, l := range locs {
		if l.LocationID != nil && *l.LocationID == id {
			return l, true
		}
	}
	return LocationSnapshot{}, false
}

// FormatDeltas renders deltas as the alert email's availability block, one
// location section per line group.
func FormatDeltas(deltas []Delta) string {
	byLocation := make(map[string][]Delta)
	var names []string
	for _, d := range deltas {
		if _, ok := byLocation[d.LocationName]; !ok {
			names = append(names, d.LocationName)
		}
		byLocation[d.LocationName] = append(byLocation[d.LocationName], d)
	}
	sort.Strings(names)

	var sections []string
	for _, name := range names {
		lines := []string{name}
		for _, d := range byLocation[name] {
			lines = append(lines, fmt.Sprintf(" - %s - %d appointments (+%d)",
				d.Day.Format("Jan 02"), d.Count, d.Count-d.Previous))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}
