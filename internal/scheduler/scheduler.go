// Package scheduler implements the mode-aware periodic task scheduler and
// the calendar-driven mode hook (spec §4.10), ported from the Python
// prototype's task_scheduler.py.
package scheduler

import (
	"time"

	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/types"
)

// Task is one registered periodic task.
type Task struct {
	Name         string
	Fn           func() (any, error)
	IntervalSec  int
	Condition    func() bool
	AllowedModes map[types.Mode]bool // nil = all modes

	lastRun  time.Time
	runCount int
}

func (t *Task) isDue() bool {
	return time.Since(t.lastRun) >= time.Duration(t.IntervalSec)*time.Second
}

func (t *Task) shouldRun(currentMode types.Mode) bool {
	if !t.isDue() {
		return false
	}
	if t.AllowedModes != nil && !t.AllowedModes[currentMode] {
		return false
	}
	if t.Condition != nil && !t.Condition() {
		return false
	}
	return true
}

// TaskResult is one run_due() outcome.
type TaskResult struct {
	Name    string
	Success bool
	Result  any
	Error   string
}

// CalendarSource resolves whether now falls within configured work hours.
type CalendarSource interface {
	IsWorkTime(now time.Time) (bool, error)
}

// Scheduler holds the in-memory task list and the calendar hook state.
type Scheduler struct {
	tasks                []*Task
	calendar              CalendarSource
	modeManager           *modemgr.Manager
	lastCalendarCheck     time.Time
	calendarCheckInterval time.Duration
}

// New builds a Scheduler. calendar may be nil to disable calendar-driven
// mode switching.
func New(calendar CalendarSource, modeManager *modemgr.Manager, calendarCheckInterval time.Duration) *Scheduler {
	return &Scheduler{calendar: calendar, modeManager: modeManager, calendarCheckInterval: calendarCheckInterval}
}

// Register adds a task to the scheduler.
func (s *Scheduler) Register(name string, fn func() (any, error), intervalSec int, condition func() bool, allowedModes map[types.Mode]bool) {
	s.tasks = append(s.tasks, &Task{Name: name, Fn: fn, IntervalSec: intervalSec, Condition: condition, AllowedModes: allowedModes})
}

// CheckCalendarMode runs at most once per calendarCheckInterval: if the
// calendar source disagrees with the current mode, it switches. Manual
// overrides block this switch via modemgr's own override-suppression logic.
func (s *Scheduler) CheckCalendarMode() *modemgr.SwitchResult {
	if s.calendar == nil || s.modeManager == nil {
		return nil
	}
	if time.Since(s.lastCalendarCheck) < s.calendarCheckInterval {
		return nil
	}
	s.lastCalendarCheck = time.Now()

	isWork, err := s.calendar.IsWorkTime(time.Now())
	if err != nil {
		return nil
	}
	current := s.modeManager.Current().Mode

	if isWork && current != types.ModeAutonomous {
		res := s.modeManager.Switch(types.ModeAutonomous, "work hours detected (calendar)", types.SourceCalendar)
		return &res
	}
	if !isWork && current == types.ModeAutonomous {
		res := s.modeManager.Switch(types.ModeUserFirst, "work hours ended (calendar)", types.SourceCalendar)
		return &res
	}
	return nil
}

// RunDue executes every due task under currentMode, updating last_run/run_count.
func (s *Scheduler) RunDue(currentMode types.Mode) []TaskResult {
	var results []TaskResult
	for _, t := range s.tasks {
		if !t.shouldRun(currentMode) {
			continue
		}
		result, err := t.Fn()
		t.lastRun = time.Now()
		t.runCount++
		if err != nil {
			results = append(results, TaskResult{Name: t.Name, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, TaskResult{Name: t.Name, Success: true, Result: result})
	}
	return results
}

// StatusEntry is one Status() row.
type StatusEntry struct {
	Name     string
	Interval int
	LastRun  string
	RunCount int
	Modes    []string
}

// Status reports every registered task's state.
func (s *Scheduler) Status() []StatusEntry {
	out := make([]StatusEntry, 0, len(s.tasks))
	for _, t := range s.tasks {
		lastRun := "never"
		if !t.lastRun.IsZero() {
			lastRun = t.lastRun.Format(time.RFC3339)
		}
		modes := []string{"all modes"}
		if t.AllowedModes != nil {
			modes = modes[:0]
			for m := range t.AllowedModes {
				modes = append(modes, string(m))
			}
		}
		out = append(out, StatusEntry{Name: t.Name, Interval: t.IntervalSec, LastRun: lastRun, RunCount: t.runCount, Modes: modes})
	}
	return out
}

// RegisterDefaults registers the default task table from spec §4.10 /
// task_scheduler.py's defaults, plus the SPEC_FULL.md §6 supplemented
// maintenance tasks (weekly digest, mood sampling, file organizer).
// Callers supply the actual task bodies.
func (s *Scheduler) RegisterDefaults(archiveColdFiles, checkFastTier, runHealthProbes, runSelfRepair, weeklyDigest, sampleMood, organizeFiles func() (any, error)) {
	autonomousAndMaintenance := map[types.Mode]bool{types.ModeAutonomous: true, types.ModeMaintenance: true}
	autonomousMaintenanceSafe := map[types.Mode]bool{types.ModeAutonomous: true, types.ModeMaintenance: true, types.ModeSafe: true}
	maintenanceOnly := map[types.Mode]bool{types.ModeMaintenance: true}

	s.Register("archive_cold_files", archiveColdFiles, 24*3600, nil, autonomousAndMaintenance)
	s.Register("fast_tier_fullness_check", checkFastTier, 3600, nil, nil)
	s.Register("health_probes", runHealthProbes, 300, nil, nil)
	s.Register("self_repair_sweep", runSelfRepair, 600, nil, autonomousMaintenanceSafe)
	s.Register("weekly_digest", weeklyDigest, 7*24*3600, nil, maintenanceOnly)
	s.Register("mood_sample", sampleMood, 300, nil, nil)
	s.Register("file_organizer_sweep", organizeFiles, 24*3600, nil, maintenanceOnly)
}
