// Package calendar implements ICS-feed polling and the work-hours
// predicate that drives calendar-sourced mode switching (spec §4.10's
// CalendarSource, supplemented feature), ported from the Python
// prototype's calendar_sync.py. There is no ICS parsing library anywhere
// in the corpus, so this hand-scans the handful of VEVENT lines the
// work-hours check needs (DTSTART/DTEND/SUMMARY) rather than pulling in an
// out-of-corpus dependency.
package calendar

import (
	"bufio"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
)

var workKeywords = []string{"work", "shift", "meeting", "on-call", "oncall"}

// Event is one calendar entry relevant to the work-hours window.
type Event struct {
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
}

func (e Event) isActive(t time.Time) bool {
	return !t.Before(e.Start) && !t.After(e.End)
}

func (e Event) isWork() bool {
	lower := strings.ToLower(e.Summary)
	for _, kw := range workKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type cache struct {
	Events   []Event   `json:"events"`
	LastSync time.Time `json:"last_sync"`
}

// Sync polls the ICS URL on a fixed interval and caches the result to
// survive restarts and outages.
type Sync struct {
	icsURL       string
	cachePath    string
	syncInterval time.Duration
	httpClient   *http.Client

	events   []Event
	lastSync time.Time
}

// Config configures a Sync.
type Config struct {
	ICSURL       string
	CachePath    string
	SyncInterval time.Duration // default 15 minutes
}

// New builds a Sync, loading any persisted cache.
func New(cfg Config) *Sync {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s := &Sync{
		icsURL:       cfg.ICSURL,
		cachePath:    cfg.CachePath,
		syncInterval: interval,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	var c cache
	if ok, _ := statefile.ReadSnapshot(s.cachePath, &c); ok {
		s.events = c.Events
		s.lastSync = c.LastSync
	}
	return s
}

// Sync refreshes the event window from the ICS feed unless the cache is
// still fresh and force is false. A window of [-1 day, +7 days] around now
// is kept, matching the prototype.
func (s *Sync) Sync(force bool) error {
	if !force && time.Since(s.lastSync) < s.syncInterval {
		return nil
	}
	if s.icsURL == "" {
		return nil
	}
	resp, err := s.httpClient.Get(s.icsURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	events, err := parseICS(resp.Body)
	if err != nil {
		return err
	}

	now := time.Now()
	windowStart := now.AddDate(0, 0, -1)
	windowEnd := now.AddDate(0, 0, 7)
	var filtered []Event
	for _, e := range events {
		if !e.End.Before(windowStart) && !e.Start.After(windowEnd) {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Start.Before(filtered[j].Start) })

	s.events = filtered
	s.lastSync = now
	return statefile.WriteSnapshot(s.cachePath, cache{Events: s.events, LastSync: s.lastSync})
}

// IsWorkTime implements scheduler.CalendarSource: it reports whether now
// falls inside an active work-keyword event.
func (s *Sync) IsWorkTime(now time.Time) (bool, error) {
	if err := s.Sync(false); err != nil {
		return false, err
	}
	for _, e := range s.events {
		if e.isActive(now) && e.isWork() {
			return true, nil
		}
	}
	return false, nil
}

// FetchEvents returns every cached event overlapping date's calendar day.
func (s *Sync) FetchEvents(date time.Time) []Event {
	var out []Event
	for _, e := range s.events {
		if !e.Start.After(endOfDay(date)) && !e.End.Before(startOfDay(date)) {
			out = append(out, e)
		}
	}
	return out
}

// Transition describes the next work/non-work mode boundary.
type Transition struct {
	Time     time.Time
	FromMode string
	ToMode   string
	Event    string
}

// NextTransition finds the next calendar-driven mode boundary from now,
// or nil if nothing is scheduled within the cached window.
func (s *Sync) NextTransition(now time.Time) *Transition {
	isWork, _ := s.IsWorkTime(now)
	if isWork {
		for _, e := range s.events {
			if e.isActive(now) && e.isWork() {
				return &Transition{Time: e.End, FromMode: "autonomous", ToMode: "user_first", Event: e.Summary}
			}
		}
		return nil
	}
	for _, e := range s.events {
		if e.Start.After(now) && e.isWork() {
			return &Transition{Time: e.Start, FromMode: "user_first", ToMode: "autonomous", Event: e.Summary}
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

const icsTimeLayoutUTC = "20060102T150405Z"
const icsTimeLayoutLocal = "20060102T150405"
const icsDateLayout = "20060102"

func parseICSTime(value string) (time.Time, bool) {
	if strings.HasSuffix(value, "Z") {
		if t, err := time.Parse(icsTimeLayoutUTC, value); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(icsTimeLayoutLocal, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(icsDateLayout, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseICS hand-scans VEVENT blocks for SUMMARY/DTSTART/DTEND/LOCATION.
// It deliberately ignores RRULE, VALARM, and every other ICS feature this
// system never needs.
func parseICS(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var events []Event
	var cur *Event
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "BEGIN:VEVENT":
			cur = &Event{}
		case line == "END:VEVENT":
			if cur != nil && !cur.Start.IsZero() && !cur.End.IsZero() {
				events = append(events, *cur)
			}
			cur = nil
		case cur == nil:
			continue
		case strings.HasPrefix(line, "SUMMARY:"):
			cur.Summary = strings.TrimPrefix(line, "SUMMARY:")
		case strings.HasPrefix(line, "LOCATION:"):
			cur.Location = strings.TrimPrefix(line, "LOCATION:")
		case strings.HasPrefix(line, "DTSTART"):
			if t, ok := parseICSTime(valueAfterColon(line)); ok {
				cur.Start = t
			}
		case strings.HasPrefix(line, "DTEND"):
			if t, ok := parseICSTime(valueAfterColon(line)); ok {
				cur.End = t
			}
		}
	}
	return events, scanner.Err()
}

func valueAfterColon(line string) string {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return ""
	}
	return line[idx+1:]
}
