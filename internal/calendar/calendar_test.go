package calendar

import (
	"strings"
	"testing"
	"time"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
SUMMARY:Work shift
DTSTART:20300101T090000Z
DTEND:20300101T170000Z
LOCATION:Office
END:VEVENT
BEGIN:VEVENT
SUMMARY:Lunch with a friend
DTSTART:20300101T120000Z
DTEND:20300101T130000Z
END:VEVENT
END:VCALENDAR
`

func TestParseICSExtractsVEVENTs(t *testing.T) {
	events, err := parseICS(strings.NewReader(sampleICS))
	if err != nil {
		t.Fatalf("parseICS: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Summary != "Work shift" || events[0].Location != "Office" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
}

func TestEventIsWorkMatchesKeyword(t *testing.T) {
	e := Event{Summary: "Work shift"}
	if !e.isWork() {
		t.Fatalf("expected 'Work shift' to match a work keyword")
	}
	e2 := Event{Summary: "Lunch with a friend"}
	if e2.isWork() {
		t.Fatalf("expected 'Lunch with a friend' to not match a work keyword")
	}
}

func TestEventIsActiveWithinWindow(t *testing.T) {
	start, _ := time.Parse(time.RFC3339, "2030-01-01T09:00:00Z")
	end, _ := time.Parse(time.RFC3339, "2030-01-01T17:00:00Z")
	e := Event{Start: start, End: end}
	mid, _ := time.Parse(time.RFC3339, "2030-01-01T12:00:00Z")
	before, _ := time.Parse(time.RFC3339, "2030-01-01T08:00:00Z")
	if !e.isActive(mid) {
		t.Fatalf("expected mid-event time to be active")
	}
	if e.isActive(before) {
		t.Fatalf("expected pre-event time to be inactive")
	}
}

func TestIsWorkTimeWithoutURLReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{CachePath: dir + "/calendar_cache.json"})
	isWork, err := s.IsWorkTime(time.Now())
	if err != nil {
		t.Fatalf("IsWorkTime: %v", err)
	}
	if isWork {
		t.Fatalf("expected no work time with an empty ICS URL and empty cache")
	}
}

func TestIsWorkTimeUsesCachedEvents(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{CachePath: dir + "/calendar_cache.json", SyncInterval: time.Hour})
	now := time.Now()
	s.events = []Event{{Summary: "Work shift", Start: now.Add(-time.Hour), End: now.Add(time.Hour)}}
	s.lastSync = now // cache is fresh, Sync(false) is a no-op

	isWork, err := s.IsWorkTime(now)
	if err != nil {
		t.Fatalf("IsWorkTime: %v", err)
	}
	if !isWork {
		t.Fatalf("expected cached active work event to report work time")
	}
}

func TestNextTransitionDuringWorkReturnsEndTime(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{CachePath: dir + "/calendar_cache.json", SyncInterval: time.Hour})
	now := time.Now()
	end := now.Add(2 * time.Hour)
	s.events = []Event{{Summary: "Work shift", Start: now.Add(-time.Hour), End: end}}
	s.lastSync = now

	transition := s.NextTransition(now)
	if transition == nil || transition.ToMode != "user_first" {
		t.Fatalf("expected a transition to user_first, got %+v", transition)
	}
}
