package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/types"
)

func TestTaskDueAfterInterval(t *testing.T) {
	s := New(nil, nil, 0)
	calls := 0
	s.Register("tick", func() (any, error) { calls++; return nil, nil }, 0, nil, nil)

	s.RunDue(types.ModeAutonomous)
	s.RunDue(types.ModeAutonomous)
	if calls != 2 {
		t.Fatalf("expected 2 calls with 0s interval (always due), got %d", calls)
	}
}

func TestTaskNotDueWithinInterval(t *testing.T) {
	s := New(nil, nil, 0)
	calls := 0
	s.Register("slow", func() (any, error) { calls++; return nil, nil }, 3600, nil, nil)

	s.RunDue(types.ModeAutonomous)
	s.RunDue(types.ModeAutonomous)
	if calls != 1 {
		t.Fatalf("expected 1 call since the second run isn't due yet, got %d", calls)
	}
}

func TestTaskRespectsAllowedModes(t *testing.T) {
	s := New(nil, nil, 0)
	calls := 0
	s.Register("autonomous_only", func() (any, error) { calls++; return nil, nil }, 0, nil,
		map[types.Mode]bool{types.ModeAutonomous: true})

	s.RunDue(types.ModeSafe)
	if calls != 0 {
		t.Fatalf("expected task to be skipped outside its allowed modes")
	}
	s.RunDue(types.ModeAutonomous)
	if calls != 1 {
		t.Fatalf("expected task to run in its allowed mode")
	}
}

func TestTaskRespectsCondition(t *testing.T) {
	s := New(nil, nil, 0)
	allowed := false
	calls := 0
	s.Register("conditional", func() (any, error) { calls++; return nil, nil }, 0,
		func() bool { return allowed }, nil)

	s.RunDue(types.ModeAutonomous)
	if calls != 0 {
		t.Fatalf("expected condition=false to block the task")
	}
	allowed = true
	s.RunDue(types.ModeAutonomous)
	if calls != 1 {
		t.Fatalf("expected condition=true to allow the task")
	}
}

func TestRunDueRecordsFailure(t *testing.T) {
	s := New(nil, nil, 0)
	s.Register("flaky", func() (any, error) { return nil, errors.New("boom") }, 0, nil, nil)

	results := s.RunDue(types.ModeAutonomous)
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected 1 failed result, got %+v", results)
	}
}

type fakeCalendar struct{ isWork bool }

func (f fakeCalendar) IsWorkTime(now time.Time) (bool, error) { return f.isWork, nil }

func newTestModeManager(t *testing.T) *modemgr.Manager {
	t.Helper()
	dir := t.TempDir()
	return modemgr.New(modemgr.Paths{
		Snapshot: filepath.Join(dir, "ship_mode.json"),
		History:  filepath.Join(dir, "mode_history.jsonl"),
	})
}

func TestCheckCalendarModeRespectsInterval(t *testing.T) {
	mm := newTestModeManager(t)
	s := New(fakeCalendar{isWork: true}, mm, time.Hour)
	s.lastCalendarCheck = time.Now()
	if res := s.CheckCalendarMode(); res != nil {
		t.Fatalf("expected no check within the interval window")
	}
}

func TestCheckCalendarModeSwitchesToAutonomousDuringWorkHours(t *testing.T) {
	mm := newTestModeManager(t)
	mm.Switch(types.ModeUserFirst, "start", types.SourceUser)

	s := New(fakeCalendar{isWork: true}, mm, 0)
	res := s.CheckCalendarMode()
	if res == nil || !res.Success || res.New != types.ModeAutonomous {
		t.Fatalf("expected switch to autonomous, got %+v", res)
	}
}

func TestCheckCalendarModeSwitchesToUserFirstAfterWorkHours(t *testing.T) {
	mm := newTestModeManager(t) // starts in autonomous

	s := New(fakeCalendar{isWork: false}, mm, 0)
	res := s.CheckCalendarMode()
	if res == nil || !res.Success || res.New != types.ModeUserFirst {
		t.Fatalf("expected switch to user_first, got %+v", res)
	}
}

func TestCheckCalendarModeBlockedByManualOverride(t *testing.T) {
	mm := newTestModeManager(t)
	mm.Override(types.ModeSafe, time.Hour, types.SourceUser)

	s := New(fakeCalendar{isWork: true}, mm, 0)
	res := s.CheckCalendarMode()
	if res != nil && res.Success {
		t.Fatalf("expected calendar switch to be blocked by active override, got %+v", res)
	}
}
