package snapshot

import (
	"strings"
	"testing"
)

func snapLoc(id int, name string, public bool, availability ...Bucket) LocationSnapshot {
	return LocationSnapshot{
		LocationID:     intPtr(id),
		LocationName:   name,
		LocationPublic: public,
		Availability:   availability,
	}
}

func TestChanges_ZeroToThresholdAlerts(t *testing.T) {
	prev := []LocationSnapshot{snapLoc(10, "Clinic A", true)}
	curr := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 5})}

	deltas := Changes(prev, curr, 3)
	if len(deltas) != 1 {
		t.Fatalf("want 1 delta, got %d", len(deltas))
	}
	d := deltas[0]
	if d.LocationName != "Clinic A" || !d.Day.Equal(day1) || d.Count != 5 || d.Previous != 0 {
		t.Errorf("unexpected delta: %+v", d)
	}
}

func TestChanges_BelowThresholdIgnored(t *testing.T) {
	prev := []LocationSnapshot{snapLoc(10, "Clinic A", true)}
	curr := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 2})}

	if deltas := Changes(prev, curr, 3); len(deltas) != 0 {
		t.Errorf("count below threshold must not alert, got %v", deltas)
	}
}

func TestChanges_AlreadyAvailableIgnored(t *testing.T) {
	// The day already had availability last cycle; growth is not news.
	prev := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 1})}
	curr := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 8})}

	if deltas := Changes(prev, curr, 3); len(deltas) != 0 {
		t.Errorf("previously available day must not alert, got %v", deltas)
	}
}

func TestChanges_PrivateLocationIgnored(t *testing.T) {
	prev := []LocationSnapshot{snapLoc(20, "Clinic B", false)}
	curr := []LocationSnapshot{snapLoc(20, "Clinic B", false, Bucket{Timestamp: day1, Count: 9})}

	if deltas := Changes(prev, curr, 3); len(deltas) != 0 {
		t.Errorf("private locations must not alert, got %v", deltas)
	}
}

func TestChanges_NewLocationHasNoBaseline(t *testing.T) {
	curr := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 9})}

	if deltas := Changes(nil, curr, 3); len(deltas) != 0 {
		t.Errorf("location absent from the previous snapshot must not alert, got %v", deltas)
	}
}

func TestChanges_SentinelLocationIgnored(t *testing.T) {
	loc := LocationSnapshot{
		LocationName:   "unknown",
		LocationPublic: true,
		Availability:   []Bucket{{Timestamp: day1, Count: 9}},
	}

	if deltas := Changes([]LocationSnapshot{loc}, []LocationSnapshot{loc}, 3); len(deltas) != 0 {
		t.Errorf("sentinel location must not alert, got %v", deltas)
	}
}

func TestChanges_MultipleDaysAndLocations(t *testing.T) {
	prev := []LocationSnapshot{
		snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 2}),
		snapLoc(20, "Clinic B", true),
	}
	curr := []LocationSnapshot{
		snapLoc(10, "Clinic A", true,
			Bucket{Timestamp: day1, Count: 6}, // had 2 before, no alert
			Bucket{Timestamp: day2, Count: 4}, // new day, alerts
		),
		snapLoc(20, "Clinic B", true, Bucket{Timestamp: day1, Count: 3}),
	}

	deltas := Changes(prev, curr, 3)
	if len(deltas) != 2 {
		t.Fatalf("want 2 deltas, got %d: %v", len(deltas), deltas)
	}
}

func TestFormatDeltas(t *testing.T) {
	deltas := []Delta{
		{LocationName: "Clinic B", Day: day1, Count: 3, Previous: 0},
		{LocationName: "Clinic A", Day: day1, Count: 5, Previous: 0},
		{LocationName: "Clinic A", Day: day2, Count: 4, Previous: 0},
	}

	got := FormatDeltas(deltas)
	want := "Clinic A\n" +
		" - Mar 10 - 5 appointments (+5)\n" +
		" - Mar 11 - 4 appointments (+4)\n" +
		"\n" +
		"Clinic B\n" +
		" - Mar 10 - 3 appointments (+3)"
	if got != want {
		t.Errorf("formatted block mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatDeltas_Empty(t *testing.T) {
	if got := FormatDeltas(nil); got != "" {
		t.Errorf("want empty string, got %q", got)
	}
}

func TestFormatDeltas_SortsLocations(t *testing.T) {
	deltas := []Delta{
		{LocationName: "Zeta", Day: day1, Count: 3},
		{LocationName: "Alpha", Day: day1, Count: 3},
	}
	got := FormatDeltas(deltas)
	if strings.Index(got, "Alpha") > strings.Index(got, "Zeta") {
		t.Error("locations must be ordered by name")
	}
}

func TestChanges_PreservesPreviousCount(t *testing.T) {
	// A previously negative day that the projection would have dropped
	// shows up as previous 0.
	prev := []LocationSnapshot{snapLoc(10, "Clinic A", true)}
	curr := []LocationSnapshot{snapLoc(10, "Clinic A", true, Bucket{Timestamp: day1, Count: 3})}

	deltas := Changes(prev, curr, 3)
	if len(deltas) != 1 || deltas[0].Previous != 0 {
		t.Fatalf("want previous 0, got %v", deltas)
	}
}
