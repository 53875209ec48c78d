// Package modemgr implements the operating-mode state machine (spec §4.2).
// It owns the mode snapshot and mode-history log; every other worker only
// ever reads the snapshot at its own tick boundary (spec §9 "Cyclic config
// vs. workers").
//
// Per-mode configuration values are ported verbatim from the Python
// prototype's ship_mode.py MODES table.
package modemgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Paths bundles the two files the manager owns.
type Paths struct {
	Snapshot string // state/ship_mode.json
	History  string // state/mode_history.jsonl
}

// Manager owns the current mode and serializes every transition through
// switch(), so the history log is always complete (spec §4.2 invariant).
type Manager struct {
	mu      sync.Mutex
	paths   Paths
	configs map[types.Mode]types.ModeConfig
	current types.ModeSnapshot
}

// defaultConfigs is ported verbatim from ship_mode.py's MODES dict.
func defaultConfigs() map[types.Mode]types.ModeConfig {
	return map[types.Mode]types.ModeConfig{
		types.ModeAutonomous: {IterationIntervalSec: 30, NotifyLevel: types.NotifyMinimal, AutonomousTasksEnabled: true, PriorityBias: types.BiasSystem},
		types.ModeUserFirst:  {IterationIntervalSec: 10, NotifyLevel: types.NotifyResponsive, AutonomousTasksEnabled: false, PriorityBias: types.BiasUser},
		types.ModeMaintenance: {IterationIntervalSec: 60, NotifyLevel: types.NotifyStatus, AutonomousTasksEnabled: true, PriorityBias: types.BiasMaintenance},
		types.ModePowerSave:  {IterationIntervalSec: 300, NotifyLevel: types.NotifyCritical, AutonomousTasksEnabled: false, PriorityBias: types.BiasNone},
		types.ModeSafe:       {IterationIntervalSec: 60, NotifyLevel: types.NotifyAll, AutonomousTasksEnabled: false, PriorityBias: types.BiasSafety},
		types.ModeEmergency:  {IterationIntervalSec: 15, NotifyLevel: types.NotifyAll, AutonomousTasksEnabled: false, PriorityBias: types.BiasSafety},
	}
}

// New loads the current mode from disk, defaulting to autonomous if the
// snapshot is missing or corrupt.
func New(paths Paths) *Manager {
	m := &Manager{paths: paths, configs: defaultConfigs()}
	var snap types.ModeSnapshot
	if ok, _ := statefile.ReadSnapshot(paths.Snapshot, &snap); ok && snap.Mode != "" {
		m.current = snap
	} else {
		m.current = types.ModeSnapshot{Mode: types.ModeAutonomous, Since: time.Now()}
	}
	return m
}

// SwitchResult is the outcome of a switch/override call.
type SwitchResult struct {
	Success bool
	Old     types.Mode
	New     types.Mode
	Reason  string
}

// Current returns the current mode snapshot.
func (m *Manager) Current() types.ModeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// GetConfig returns the config record for the current mode, falling back
// to the autonomous config for any mode lacking an explicit entry (boot,
// storm, shutdown carry no steady-state config — callers for those must not
// call GetConfig during the transient window).
func (m *Manager) GetConfig() types.ModeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.configs[m.current.Mode]; ok {
		return cfg
	}
	return m.configs[types.ModeAutonomous]
}

// Switch moves to target for reason, attributed to source. It refuses a
// no-op switch, and refuses a calendar-sourced switch while an unexpired
// override is active.
func (m *Manager) Switch(target types.Mode, reason string, source types.ModeSource) SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switchLocked(target, reason, source, false, time.Time{})
}

// Override forces target for duration, setting the override flag so
// calendar-sourced switches are suppressed until the deadline.
func (m *Manager) Override(target types.Mode, duration time.Duration, source types.ModeSource) SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := time.Now().Add(duration)
	return m.switchLocked(target, "manual override", source, true, until)
}

func (m *Manager) switchLocked(target types.Mode, reason string, source types.ModeSource, override bool, overrideUntil time.Time) SwitchResult {
	old := m.current.Mode

	if old == target && !override {
		return SwitchResult{Success: false, Old: old, New: old, Reason: "no-op"}
	}

	if source == types.SourceCalendar && m.current.Override {
		if m.current.OverrideUntil.IsZero() || time.Now().Before(m.current.OverrideUntil) {
			return SwitchResult{Success: false, Old: old, New: old, Reason: "override active"}
		}
	}

	snap := types.ModeSnapshot{Mode: target, Since: time.Now(), Override: override, OverrideUntil: overrideUntil}
	if err := statefile.WriteSnapshot(m.paths.Snapshot, snap); err != nil {
		return SwitchResult{Success: false, Old: old, New: old, Reason: fmt.Sprintf("write failed: %v", err)}
	}
	m.current = snap

	entry := types.ModeHistoryEntry{From: old, To: target, Reason: reason, Source: source, Timestamp: snap.Since}
	_ = statefile.AppendJSONL(m.paths.History, entry) // failures logged by caller's worker loop, never raised

	return SwitchResult{Success: true, Old: old, New: target, Reason: reason}
}

// History returns the full append-only mode_history.jsonl.
func (m *Manager) History() ([]types.ModeHistoryEntry, error) {
	return statefile.ReadAllJSONL[types.ModeHistoryEntry](m.paths.History)
}
