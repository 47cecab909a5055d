// Package availability implements the aggregation engine that turns a
// provider's raw schedule data (duty blocks, off-duty exceptions, booked
// appointments) into per-location, per-slot availability counts with hour
// and day rollups. The whole pass is a pure function of configuration,
// schedule and "now"; it holds no state between invocations.
package availability

import (
	"time"

	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// LocationAvailability is the per-location aggregate built fresh on every
// pass. Slot maps are keyed by slot-start timestamp (UTC). CapacityBySlot
// keys exist only for slots with net eligible capacity; BookedBySlot keys are
// raw appointment start timestamps, not pre-aligned to the slot grid.
type LocationAvailability struct {
	Location schedule.Location

	CapacityBySlot  map[time.Time]int
	BookedBySlot    map[time.Time]int
	AvailableBySlot map[time.Time]int

	// StaffIDs holds every staff identifier associated with this location
	// through a duty block, eligible or not. The resolver's first rule
	// reads it.
	StaffIDs map[int]struct{}

	// Raw retained inputs, kept for auditing and for the resolver's
	// duty-block-id fallback.
	DutyBlocks []schedule.DutyBlock
	OffDuty    []schedule.OffDutyException
	Booked     []schedule.Appointment
}

func newLocationAvailability(loc schedule.Location) *LocationAvailability {
	return &LocationAvailability{
		Location:        loc,
		CapacityBySlot:  make(map[time.Time]int),
		BookedBySlot:    make(map[time.Time]int),
		AvailableBySlot: make(map[time.Time]int),
		StaffIDs:        make(map[int]struct{}),
	}
}

// ID returns the location identifier, or schedule.UnknownLocationID.
func (a *LocationAvailability) ID() int { return a.Location.LocationID() }

// Name returns the location's display name.
func (a *LocationAvailability) Name() string { return a.Location.Name }

// IsPublic reports whether the location is publicly visible.
func (a *LocationAvailability) IsPublic() bool { return a.Location.Public }

func truncateHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func rollup(src map[time.Time]int, bucket func(time.Time) time.Time) map[time.Time]int {
	out := make(map[time.Time]int, len(src))
	for t, v := range src {
		out[bucket(t)] += v
	}
	return out
}

// HourlyCapacity sums slot capacity into hour buckets.
func (a *LocationAvailability) HourlyCapacity() map[time.Time]int {
	return rollup(a.CapacityBySlot, truncateHour)
}

// HourlyBooked sums booked counts into hour buckets.
func (a *LocationAvailability) HourlyBooked() map[time.Time]int {
	return rollup(a.BookedBySlot, truncateHour)
}

// HourlyAvailable sums only the positive per-slot availability values within
// each hour. Negative and zero slots are excluded here, and only here: the
// daily rollup takes these hourly figures as-is.
func (a *LocationAvailability) HourlyAvailable() map[time.Time]int {
	out := make(map[time.Time]int, len(a.AvailableBySlot))
	for t, v := range a.AvailableBySlot {
		h := truncateHour(t)
		if _, ok := out[h]; !ok {
			out[h] = 0
		}
		if v > 0 {
			out[h] += v
		}
	}
	return out
}

// DailyCapacity sums hourly capacity into day buckets.
func (a *LocationAvailability) DailyCapacity() map[time.Time]int {
	return rollup(a.HourlyCapacity(), truncateDay)
}

// DailyBooked sums hourly booked counts into day buckets.
func (a *LocationAvailability) DailyBooked() map[time.Time]int {
	return rollup(a.HourlyBooked(), truncateDay)
}

// DailyAvailable is a straight sum of HourlyAvailable values across each day.
// No re-filtering happens at this level; downstream consumers rely on the day
// figure being exactly the sum of its hour figures.
func (a *LocationAvailability) DailyAvailable() map[time.Time]int {
	return rollup(a.HourlyAvailable(), truncateDay)
}

// TotalCapacity sums capacity across every tracked slot.
func (a *LocationAvailability) TotalCapacity() int { return total(a.CapacityBySlot) }

// TotalBooked sums booked counts across every tracked slot.
func (a *LocationAvailability) TotalBooked() int { return total(a.BookedBySlot) }

// TotalAvailable sums net availability across every tracked slot, negatives
// included.
func (a *LocationAvailability) TotalAvailable() int { return total(a.AvailableBySlot) }

func total(m map[time.Time]int) int {
	sum := 0
	for _, v := range m {
		sum += v
	}
	return sum
}

// OverlapAnomaly records more than one booked entry falling inside a single
// slot window. The summation is left untouched; the anomaly exists so
// downstream consumers can decide whether to trust the slot's figure.
type OverlapAnomaly struct {
	LocationID int       `json:"location_id"`
	Slot       time.Time `json:"slot"`
	Entries    int       `json:"entries"`
	Booked     int       `json:"booked"`
}

// Result is the output of one aggregation pass: location aggregates ordered
// by location identifier ascending, plus the anomalies observed on the way.
type Result struct {
	Locations  []*LocationAvailability
	Anomalies  []OverlapAnomaly
	Unresolved int // appointments dropped by the resolver
}
