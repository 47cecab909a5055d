package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// Default aggregation parameters. The slot grid and the cutoff grace follow
// the provider's own booking granularity.
const (
	DefaultSlotLength  = 15 * time.Minute
	DefaultCutoffGrace = 30 * time.Minute
)

// Options selects filters and parameters for one aggregation pass. The zero
// value means: now = time.Now, 15-minute slots, 30-minute cutoff grace, no
// date-range filter, all locations, default staff remap table.
type Options struct {
	// Now anchors the cutoff; the pass is a pure function of its inputs
	// and this timestamp.
	Now time.Time

	// CutoffGrace is subtracted from Now to form the cutoff below which
	// slots and bookings are no longer tracked.
	CutoffGrace time.Duration

	// SlotLength is the slot grid width.
	SlotLength time.Duration

	// From/To restrict tracked slots and counted bookings to the half-open
	// range [From, To). Zero values disable either bound.
	From time.Time
	To   time.Time

	// PublicOnly drops non-public locations from the result. Resolution
	// still sees every location, so attribution is unaffected.
	PublicOnly bool

	// StaffRemap overrides the manual broken-identifier table consulted by
	// the resolver's last rule. Nil means DefaultStaffRemap.
	StaffRemap map[int]int
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.CutoffGrace == 0 {
		o.CutoffGrace = DefaultCutoffGrace
	}
	if o.SlotLength == 0 {
		o.SlotLength = DefaultSlotLength
	}
	if o.StaffRemap == nil {
		o.StaffRemap = DefaultStaffRemap()
	}
	return o
}

func (o Options) inRange(t time.Time) bool {
	if !o.From.IsZero() && t.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && !t.Before(o.To) {
		return false
	}
	return true
}

// Aggregate runs one full pass: capacity build, booking attribution,
// availability calculation. It validates its inputs first and produces no
// partial output on failure. Given identical inputs and Options.Now, two
// passes produce identical results.
func Aggregate(cfg *schedule.ProviderConfig, sched *schedule.Schedule, opts Options, logger zerolog.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	appointments, err := sched.BookedAppointments()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	opts = opts.withDefaults()
	cutoff := opts.Now.Add(-opts.CutoffGrace)

	locations := buildCapacity(cfg, sched, opts, cutoff)

	// Location order is fixed before bookings are attributed so that the
	// resolver scans deterministically.
	sort.SliceStable(locations, func(i, j int) bool {
		return locations[i].ID() < locations[j].ID()
	})

	unresolved := aggregateBookings(cfg, appointments, locations, opts, cutoff, logger)
	anomalies := calculateAvailability(locations, opts.SlotLength, logger)

	if opts.PublicOnly {
		filtered := locations[:0]
		for _, la := range locations {
			if la.IsPublic() {
				filtered = append(filtered, la)
			}
		}
		locations = filtered
	}

	return &Result{Locations: locations, Anomalies: anomalies, Unresolved: unresolved}, nil
}

// buildCapacity expands duty blocks into slot capacity on the provider's
// booking grid. Staff-id and duty-block association happens for every block;
// slot generation only for blocks serving at least one first-timer-bookable
// service.
func buildCapacity(cfg *schedule.ProviderConfig, sched *schedule.Schedule, opts Options, cutoff time.Time) []*LocationAvailability {
	blocks := make([]schedule.DutyBlock, len(sched.OnTimes))
	copy(blocks, sched.OnTimes)
	sort.SliceStable(blocks, func(i, j int) bool {
		if !blocks[i].From.Equal(blocks[j].From) {
			return blocks[i].From.Before(blocks[j].From)
		}
		return blocks[i].Until.Before(blocks[j].Until)
	})

	offDuty := indexOffDuty(sched.ProviderUserOffTimes)

	index := make(map[int]*LocationAvailability)
	var locations []*LocationAvailability

	for _, block := range blocks {
		locID := block.FlexibleHour.LocationID

		la, ok := index[locID]
		if !ok {
			loc, found := cfg.LocationByID(locID)
			if !found {
				// The provider occasionally schedules against a
				// location missing from configuration; keep its id.
				id := locID
				loc = schedule.Location{ID: &id}
			}
			la = newLocationAvailability(loc)
			index[locID] = la
			locations = append(locations, la)
		}

		la.DutyBlocks = append(la.DutyBlocks, block)
		la.StaffIDs[block.ResourceID] = struct{}{}

		if !anyNewRespondentService(cfg, block.FlexibleHour.ServiceIDs) {
			continue
		}

		exceptions := offDuty[resourceKey{block.ResourceType, block.ResourceID}]

		// A trailing partial slot shorter than the grid width is
		// discarded, hence the strict inequality.
		from, until := block.From.UTC(), block.Until.UTC()
		for slot := from; slot.Add(opts.SlotLength).Before(until); slot = slot.Add(opts.SlotLength) {
			if slot.Before(cutoff) || !opts.inRange(slot) {
				continue
			}

			covered := coveringExceptions(exceptions, slot)
			if len(covered) > 0 {
				la.OffDuty = append(la.OffDuty, covered...)
				continue
			}

			la.CapacityBySlot[slot] += block.FlexibleHour.Slots
		}
	}

	return locations
}

type resourceKey struct {
	resourceType string
	resourceID   int
}

func indexOffDuty(exceptions []schedule.OffDutyException) map[resourceKey][]schedule.OffDutyException {
	out := make(map[resourceKey][]schedule.OffDutyException)
	for _, o := range exceptions {
		o.From, o.Until = o.From.UTC(), o.Until.UTC()
		k := resourceKey{o.ResourceType, o.ResourceID}
		out[k] = append(out[k], o)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].From.Before(list[j].From) })
	}
	return out
}

func coveringExceptions(exceptions []schedule.OffDutyException, slot time.Time) []schedule.OffDutyException {
	var covered []schedule.OffDutyException
	for _, o := range exceptions {
		if o.Covers(slot) {
			covered = append(covered, o)
		}
	}
	return covered
}

func anyNewRespondentService(cfg *schedule.ProviderConfig, serviceIDs []int) bool {
	for _, id := range serviceIDs {
		if svc, ok := cfg.ServiceByID(id); ok && svc.AllowNewRespondent {
			return true
		}
	}
	return false
}

// aggregateBookings attributes each appointment to a location and counts it
// against the exact appointment-start timestamp. Two appointments sharing a
// start timestamp merge additively; that happens in real data and is not an
// error.
func aggregateBookings(cfg *schedule.ProviderConfig, appointments []schedule.Appointment, locations []*LocationAvailability, opts Options, cutoff time.Time, logger zerolog.Logger) int {
	sorted := make([]schedule.Appointment, len(appointments))
	copy(sorted, appointments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartAt.Before(sorted[j].StartAt) })

	resolver := NewResolver(cfg.Mappings, opts.StaffRemap)

	unresolved := 0
	for _, appt := range sorted {
		la := resolver.Resolve(appt.ProviderUserID, locations)
		if la == nil {
			unresolved++
			logger.Debug().
				Int("appointment_id", appt.ID).
				Int("provider_user_id", appt.ProviderUserID).
				Msg("appointment unresolvable, dropping")
			continue
		}

		la.Booked = append(la.Booked, appt)

		start := appt.StartAt.UTC()
		if start.Before(cutoff) || !opts.inRange(start) {
			continue
		}

		la.BookedBySlot[start]++
	}
	return unresolved
}

// calculateAvailability nets capacity against bookings per slot window.
// Values are not clamped: a negative figure marks an over-booked slot.
func calculateAvailability(locations []*LocationAvailability, slotLength time.Duration, logger zerolog.Logger) []OverlapAnomaly {
	var anomalies []OverlapAnomaly

	for _, la := range locations {
		slots := make([]time.Time, 0, len(la.CapacityBySlot))
		for slot := range la.CapacityBySlot {
			slots = append(slots, slot)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

		for _, slot := range slots {
			end := slot.Add(slotLength)
			booked, entries := 0, 0
			for t, count := range la.BookedBySlot {
				if !t.Before(slot) && t.Before(end) {
					booked += count
					entries++
				}
			}

			if entries > 1 {
				// Overlapping bookings in one window can over-report
				// lost availability; surface it, keep the sum.
				anomalies = append(anomalies, OverlapAnomaly{
					LocationID: la.ID(),
					Slot:       slot,
					Entries:    entries,
					Booked:     booked,
				})
				logger.Warn().
					Int("location_id", la.ID()).
					Time("slot", slot).
					Int("entries", entries).
					Msg("overlapping bookings in slot window")
			}

			la.AvailableBySlot[slot] = la.CapacityBySlot[slot] - booked
		}
	}

	return anomalies
}
