package availability

import (
	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// DefaultStaffRemap maps staff identifiers known to be broken upstream (they
// never appear in schedule data) to their real location identifiers. The set
// encodes provider data-quality issues and can be overridden through
// Options.StaffRemap.
func DefaultStaffRemap() map[int]int {
	return map[int]int{
		1301: 29, // international centre
		1761: 28, // brampton soccer
		1302: 30, // paramount
		152:  9,  // caledon
	}
}

// Resolver attributes a booked appointment's staff identifier to the owning
// location. Resolution is an ordered fallback chain; the first matching rule
// wins:
//
//  1. the staff id is in some location's StaffIDs set,
//  2. the staff id appears as provider_user_id in the config's
//     service-location mapping table,
//  3. the staff id equals the id of one of a location's retained duty blocks
//     (bookings are sometimes keyed against the duty-block id),
//  4. the staff id is in the manual remap table of known broken identifiers.
//
// When nothing matches the appointment is unresolvable and gets dropped by
// the caller; that is recurring, expected behavior.
type Resolver struct {
	mappings []schedule.ServiceLocationMapping
	remap    map[int]int
}

// NewResolver builds a resolver over the configuration's mapping table and a
// manual remap table. A nil remap disables rule 4.
func NewResolver(mappings []schedule.ServiceLocationMapping, remap map[int]int) *Resolver {
	return &Resolver{mappings: mappings, remap: remap}
}

// Resolve walks the fallback chain over locations in their given order and
// returns the owning location, or nil when the staff id is unresolvable.
func (r *Resolver) Resolve(staffID int, locations []*LocationAvailability) *LocationAvailability {
	for _, la := range locations {
		if _, ok := la.StaffIDs[staffID]; ok {
			return la
		}
	}

	for _, m := range r.mappings {
		if m.ProviderUserID != staffID {
			continue
		}
		if la := byLocationID(locations, m.LocationID); la != nil {
			return la
		}
		break
	}

	for _, la := range locations {
		for _, block := range la.DutyBlocks {
			if block.ID == staffID {
				return la
			}
		}
	}

	if locID, ok := r.remap[staffID]; ok {
		return byLocationID(locations, locID)
	}

	return nil
}

func byLocationID(locations []*LocationAvailability, id int) *LocationAvailability {
	for _, la := range locations {
		if la.ID() == id {
			return la
		}
	}
	return nil
}
