// Package schedule defines the provider-side data model: the booking
// provider's configuration (locations, services, staff mappings) and the
// scraped schedule window (duty blocks, off-duty exceptions, appointments).
// All types are passive holders decoded straight off the provider's wire
// format; they are created once per scrape cycle and never mutated after
// the aggregation pass that consumes them.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidData reports malformed or incomplete provider payloads. A scrape
// cycle that hits it produces no output at all.
var ErrInvalidData = errors.New("invalid provider data")

// UnknownLocationID is the sentinel used for locations the provider serves
// without an identifier.
const UnknownLocationID = -1

// Location is a clinic site as published by the provider.
type Location struct {
	ID          *int   `json:"id"`
	Name        string `json:"name"`
	Public      bool   `json:"public"`
	FullAddress string `json:"full_address"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
}

// LocationID returns the location's identifier, or UnknownLocationID when the
// provider omitted one.
func (l Location) LocationID() int {
	if l.ID == nil {
		return UnknownLocationID
	}
	return *l.ID
}

// Service is a bookable appointment type.
type Service struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	SlotLength int    `json:"slot_length"` // minutes

	// AllowNewRespondent marks services bookable by first-time patients;
	// only these contribute public capacity.
	AllowNewRespondent      bool `json:"allow_new_respondent"`
	AllowExistingRespondent bool `json:"allow_existing_respondent"`
}

// Setting is a per-resource scheduling setting block. Retained as-is from the
// provider payload; the aggregation engine does not consume it.
type Setting struct {
	ResourceID              int    `json:"resource_id"`
	ResourceType            string `json:"resource_type"`
	Slots                   int    `json:"slots"`
	SlotLength              int    `json:"slot_length"`
	AllowNewRespondent      bool   `json:"allow_new_respondent"`
	LocationVisibleToPublic bool   `json:"location_visible_to_public"`
}

// ServiceLocationMapping ties a service and location to a staff identifier.
// Used only as a resolver fallback when attributing appointments.
type ServiceLocationMapping struct {
	ServiceID      int `json:"service_id"`
	LocationID     int `json:"location_id"`
	ProviderUserID int `json:"provider_user_id"`
}

// ProviderConfig is the provider's public configuration document.
type ProviderConfig struct {
	Locations []Location               `json:"locations"`
	Services  []Service                `json:"services"`
	Settings  []Setting                `json:"settings"`
	Mappings  []ServiceLocationMapping `json:"services_mapped_with_on_time"`
}

// Validate checks that the configuration carries the sections the aggregation
// engine depends on.
func (c *ProviderConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidData)
	}
	if c.Locations == nil {
		return fmt.Errorf("%w: configuration has no locations section", ErrInvalidData)
	}
	if c.Services == nil {
		return fmt.Errorf("%w: configuration has no services section", ErrInvalidData)
	}
	return nil
}

// LocationByID finds a configured location by identifier.
func (c *ProviderConfig) LocationByID(id int) (Location, bool) {
	for _, l := range c.Locations {
		if l.LocationID() == id {
			return l, true
		}
	}
	return Location{}, false
}

// ServiceByID finds a configured service by identifier.
func (c *ProviderConfig) ServiceByID(id int) (Service, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// FlexibleHour is the nested capacity record on a duty block: where the block
// takes place, how many concurrent slots it offers, and which services it
// serves.
type FlexibleHour struct {
	ProviderUserID int   `json:"provider_user_id"`
	LocationID     int   `json:"location_id"`
	Slots          int   `json:"slots"`
	ServiceIDs     []int `json:"service_ids"`
	OnTimeID       int   `json:"on_time_id"`
}

// DutyBlock is a contiguous on-duty window for one staff member.
type DutyBlock struct {
	ID           int       `json:"id"`
	ResourceID   int       `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	From         time.Time `json:"from"`
	Until        time.Time `json:"until"`
	Duration     int       `json:"duration"`

	FlexibleHour FlexibleHour `json:"flexible_hour"`
}

// OffDutyException is a sub-window during which a staff member is unavailable
// despite an overlapping duty block.
type OffDutyException struct {
	ResourceID   int       `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	From         time.Time `json:"from"`
	Until        time.Time `json:"until"`
}

// Covers reports whether t falls inside the exception's half-open window
// [From, Until).
func (o OffDutyException) Covers(t time.Time) bool {
	return !t.Before(o.From) && t.Before(o.Until)
}

// Appointment is one booked appointment.
type Appointment struct {
	ID             int       `json:"id"`
	ProviderUserID int       `json:"provider_user_id"`
	StartAt        time.Time `json:"start_at"`
	UntilAt        time.Time `json:"until_at"`
}

// Schedule is the scraped schedule window for a caller-specified date range.
type Schedule struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	OnTimes              []DutyBlock        `json:"on_times"`
	ProviderUserOffTimes []OffDutyException `json:"provider_user_off_times"`
	Appointments         []Appointment      `json:"appointments"`

	// AppointmentsCSV is the provider's alternative appointment encoding:
	// a header line followed by id,provider_user_id,start_at,until_at rows.
	AppointmentsCSV string `json:"appointments_csv"`
}

// Validate checks that the schedule carries the sections the aggregation
// engine depends on.
func (s *Schedule) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: schedule is nil", ErrInvalidData)
	}
	if s.OnTimes == nil {
		return fmt.Errorf("%w: schedule has no on_times section", ErrInvalidData)
	}
	if s.Appointments == nil && s.AppointmentsCSV == "" {
		return fmt.Errorf("%w: schedule has neither appointments nor appointments_csv", ErrInvalidData)
	}
	return nil
}

// BookedAppointments returns the schedule's appointments, falling back to the
// CSV encoding when the structured list is absent. Malformed CSV rows are an
// input error, not a skip: the whole payload is rejected.
func (s *Schedule) BookedAppointments() ([]Appointment, error) {
	if s.Appointments != nil {
		return s.Appointments, nil
	}

	lines := strings.Split(s.AppointmentsCSV, "\n")
	var appts []Appointment
	for i, line := range lines {
		if i == 0 { // header
			continue
		}
		fields := strings.Split(strings.TrimRight(line, "\r"), ",")
		if len(fields) != 4 {
			continue
		}
		appt, err := parseAppointmentRow(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: appointments_csv line %d: %v", ErrInvalidData, i+1, err)
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

func parseAppointmentRow(fields []string) (Appointment, error) {
	id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Appointment{}, fmt.Errorf("bad id %q", fields[0])
	}
	providerUserID, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Appointment{}, fmt.Errorf("bad provider_user_id %q", fields[1])
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[2]))
	if err != nil {
		return Appointment{}, fmt.Errorf("bad start_at %q", fields[2])
	}
	until, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[3]))
	if err != nil {
		return Appointment{}, fmt.Errorf("bad until_at %q", fields[3])
	}
	return Appointment{ID: id, ProviderUserID: providerUserID, StartAt: start, UntilAt: until}, nil
}
