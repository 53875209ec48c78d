package display

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

func testPaths(dir string) Paths {
	return Paths{
		ModeSnapshot:  filepath.Join(dir, "ship_mode.json"),
		GoalSnapshot:  filepath.Join(dir, "goal.json"),
		HealthHistory: filepath.Join(dir, "health_history.jsonl"),
		AudioState:    filepath.Join(dir, "audio_state.json"),
		LineStatus:    filepath.Join(dir, "line_status.json"),
		NetworkState:  filepath.Join(dir, "network.json"),
	}
}

func TestRenderDefaultsToBootModeWhenSnapshotMissing(t *testing.T) {
	dir := t.TempDir()
	m := New(testPaths(dir), NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[0] != "shipOS: boot "+modeGlyph(types.ModeBoot) {
		t.Fatalf("unexpected mode row: %q", rows[0])
	}
}

func TestRenderReadsModeAndGoal(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	if err := statefile.WriteSnapshot(paths.ModeSnapshot, types.ModeSnapshot{Mode: types.ModeAutonomous}); err != nil {
		t.Fatalf("write mode: %v", err)
	}
	if err := statefile.WriteSnapshot(paths.GoalSnapshot, goalSnapshot{Goal: "organize the archive"}); err != nil {
		t.Fatalf("write goal: %v", err)
	}

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[0] != "shipOS: autonomous 🤖" {
		t.Fatalf("unexpected mode row: %q", rows[0])
	}
	if rows[1] != "DEST: organize the archive" {
		t.Fatalf("unexpected goal row: %q", rows[1])
	}
}

func TestRenderTruncatesLongGoal(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	long := "this goal text is deliberately much longer than the forty character row budget allows"
	statefile.WriteSnapshot(paths.GoalSnapshot, goalSnapshot{Goal: long})

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if len(rows[1]) > len("DEST: ")+40 {
		t.Fatalf("expected goal row to be truncated, got %q (%d chars)", rows[1], len(rows[1]))
	}
}

func TestRenderReadsLatestHealthSamples(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	statefile.AppendJSONL(paths.HealthHistory, types.HealthSample{Name: "cpu_temp", Value: 55})
	statefile.AppendJSONL(paths.HealthHistory, types.HealthSample{Name: "disk_root", Value: 42})

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[2] != "TEMP: 55C DISK: 42%" {
		t.Fatalf("unexpected temp/disk row: %q", rows[2])
	}
}

func TestRenderShowsLineRXOverlayWhenFresh(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	statefile.WriteSnapshot(paths.LineStatus, types.LineStatusSnapshot{LastRX: time.Now()})

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[3] != "AI: LINE RX" {
		t.Fatalf("expected LINE RX overlay, got %q", rows[3])
	}
}

func TestRenderFallsBackToFaceWhenLineStatusStale(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	statefile.WriteSnapshot(paths.LineStatus, types.LineStatusSnapshot{LastRX: time.Now().Add(-time.Minute)})
	statefile.WriteSnapshot(paths.AudioState, types.AudioStateSnapshot{State: types.AudioSpeaking})

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[3] != "AI: 🗣️" {
		t.Fatalf("expected speaking face, got %q", rows[3])
	}
}

func TestRenderNetworkRowShowsOfflineWhenTailscaleEmpty(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	statefile.WriteSnapshot(paths.NetworkState, NetworkSnapshot{LAN: "192.168.1.10"})

	m := New(paths, NewTerminalSink(), time.Millisecond)
	rows := m.render()
	if rows[4] != "LAN: 192.168.1.10  TS: OFFLINE" {
		t.Fatalf("unexpected network row: %q", rows[4])
	}
}

func TestShowBootFrameFreezesRows(t *testing.T) {
	dir := t.TempDir()
	sink := NewTerminalSink()
	m := New(testPaths(dir), sink, time.Millisecond)
	m.ShowBootFrame()
	if sink.Last[0] != "shipOS: booting ⏳" {
		t.Fatalf("unexpected boot frame: %+v", sink.Last)
	}
}

func TestShowShutdownFrameFreezesRows(t *testing.T) {
	dir := t.TempDir()
	sink := NewTerminalSink()
	m := New(testPaths(dir), sink, time.Millisecond)
	m.ShowShutdownFrame()
	if sink.Last[0] != "shipOS: shutting down" {
		t.Fatalf("unexpected shutdown frame: %+v", sink.Last)
	}
	if !m.frozen {
		t.Fatalf("expected display to be frozen after shutdown frame")
	}
}
