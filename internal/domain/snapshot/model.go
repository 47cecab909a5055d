// Package snapshot projects aggregation results into the dashboard's output
// document, diffs consecutive snapshots for change alerting, and persists the
// latest and previous snapshot.
package snapshot

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vaxwatch/vaxwatch/internal/domain/availability"
	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// Bucket is one day-level figure.
type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// LocationSnapshot is the per-location output record. Availability holds only
// positive-count day buckets; Booked holds every day bucket.
type LocationSnapshot struct {
	LocationID     *int     `json:"location_id"`
	LocationName   string   `json:"location_name"`
	LocationPublic bool     `json:"location_public"`
	Availability   []Bucket `json:"availability"`
	Booked         []Bucket `json:"booked"`
}

// Snapshot is one complete scrape result, ordered by location identifier
// ascending.
type Snapshot struct {
	ID        uuid.UUID          `json:"id"`
	TakenAt   time.Time          `json:"taken_at"`
	Locations []LocationSnapshot `json:"locations"`
}

// LocationByID finds a location record by identifier.
func (s *Snapshot) LocationByID(id int) (LocationSnapshot, bool) {
	for _, l := range s.Locations {
		if l.LocationID != nil && *l.LocationID == id {
			return l, true
		}
	}
	return LocationSnapshot{}, false
}

// Project converts an aggregation result into the output document. Result
// locations are already ordered by identifier; buckets are sorted by
// timestamp so repeated runs over identical inputs serialize byte-identically.
func Project(result *availability.Result) []LocationSnapshot {
	out := make([]LocationSnapshot, 0, len(result.Locations))
	for _, la := range result.Locations {
		rec := LocationSnapshot{
			LocationName:   la.Name(),
			LocationPublic: la.IsPublic(),
			Availability:   positiveBuckets(la.DailyAvailable()),
			Booked:         sortedBuckets(la.DailyBooked()),
		}
		if id := la.ID(); id != schedule.UnknownLocationID {
			rec.LocationID = &id
		}
		out = append(out, rec)
	}
	return out
}

func positiveBuckets(m map[time.Time]int) []Bucket {
	filtered := make(map[time.Time]int, len(m))
	for t, v := range m {
		if v > 0 {
			filtered[t] = v
		}
	}
	return sortedBuckets(filtered)
}

func sortedBuckets(m map[time.Time]int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for t, v := range m {
		out = append(out, Bucket{Timestamp: t, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
