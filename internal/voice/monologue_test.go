package voice

import (
	"math/rand"
	"testing"
	"time"
)

func newTestMonologue(t *testing.T, nowFn func() time.Time) *MonologueEngine {
	t.Helper()
	m := NewMonologueEngine(7*time.Minute, 25*time.Minute, 22, 6, true)
	m.now = nowFn
	m.rnd = rand.New(rand.NewSource(1))
	m.nextTime = m.calcNextTime()
	return m
}

func TestCheckAndGenerateReturnsEmptyBeforeNextTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonologue(t, func() time.Time { return base })
	if got := m.CheckAndGenerate(); got != "" {
		t.Fatalf("expected no line before the scheduled time, got %q", got)
	}
}

func TestCheckAndGenerateFiresAfterNextTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonologue(t, func() time.Time { return base })
	m.nextTime = base.Add(-time.Second)

	got := m.CheckAndGenerate()
	if got == "" {
		t.Fatalf("expected a line once the scheduled time has passed")
	}
}

func TestCheckAndGenerateReturnsEmptyWhenMuted(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonologue(t, func() time.Time { return base })
	m.nextTime = base.Add(-time.Second)
	m.ToggleMute()

	if got := m.CheckAndGenerate(); got != "" {
		t.Fatalf("expected no line while muted, got %q", got)
	}
}

func TestSelectLinePrefersHotTemplateOverIdle(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonologue(t, func() time.Time { return base })
	m.UpdateStatus(80, 10, true)

	line := m.selectLine()
	found := false
	for _, candidate := range monologueTemplates["cpu_hot"] {
		if candidate == line {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cpu_hot template, got %q", line)
	}
}

func TestIsQuietHoursWrapsMidnight(t *testing.T) {
	m := NewMonologueEngine(time.Minute, time.Minute*2, 22, 6, true)

	m.now = func() time.Time { return time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) }
	if !m.IsQuietHours() {
		t.Fatalf("expected 23:00 to be quiet hours")
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC) }
	if !m.IsQuietHours() {
		t.Fatalf("expected 03:00 to be quiet hours")
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	if m.IsQuietHours() {
		t.Fatalf("expected noon not to be quiet hours")
	}
}

func TestVolumeDropsDuringQuietHours(t *testing.T) {
	m := NewMonologueEngine(time.Minute, time.Minute*2, 22, 6, true)
	m.now = func() time.Time { return time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) }

	if got := m.Volume(0.25, 0.15); got != 0.15 {
		t.Fatalf("expected night volume during quiet hours, got %v", got)
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	if got := m.Volume(0.25, 0.15); got != 0.25 {
		t.Fatalf("expected base volume outside quiet hours, got %v", got)
	}
}
