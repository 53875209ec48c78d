package webhook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/costguard"
	"github.com/shipos/autonomous/internal/inbox"
	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func newTestModeManager(t *testing.T) *modemgr.Manager {
	t.Helper()
	dir := t.TempDir()
	return modemgr.New(modemgr.Paths{
		Snapshot: filepath.Join(dir, "ship_mode.json"),
		History:  filepath.Join(dir, "mode_history.jsonl"),
	})
}

func newTestInbox(t *testing.T) *inbox.Inbox {
	t.Helper()
	dir := t.TempDir()
	classifier := inbox.NewClassifier([]string{`\?`}, 10, []string{"please", "now"})
	return inbox.New(filepath.Join(dir, "inbox.jsonl"), filepath.Join(dir, "history"), classifier)
}

func TestHandleStatusCommand(t *testing.T) {
	mm := newTestModeManager(t)
	s := New(Deps{Modes: mm})
	reply := s.Handle(context.Background(), TextEvent{Text: "status"})
	if reply.Text == "" {
		t.Fatalf("expected a non-empty status reply")
	}
}

func TestHandleModeSwitchCommand(t *testing.T) {
	mm := newTestModeManager(t)
	s := New(Deps{Modes: mm})
	reply := s.Handle(context.Background(), TextEvent{Text: "mode safe"})
	if mm.Current().Mode != types.ModeSafe {
		t.Fatalf("expected mode to switch to safe, got %s (reply=%q)", mm.Current().Mode, reply.Text)
	}
}

func TestHandleStopCommandSwitchesToSafe(t *testing.T) {
	mm := newTestModeManager(t)
	s := New(Deps{Modes: mm})
	s.Handle(context.Background(), TextEvent{Text: "stop"})
	if mm.Current().Mode != types.ModeSafe {
		t.Fatalf("expected stop to switch to safe, got %s", mm.Current().Mode)
	}
}

func TestHandleSpeakCommandWritesAudioCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_cmd.json")
	s := New(Deps{AudioCmdPath: path})

	reply := s.Handle(context.Background(), TextEvent{Text: "speak good morning"})
	if reply.Text != "queued" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	var cmd types.AudioCommand
	ok, err := statefile.ReadSnapshot(path, &cmd)
	if err != nil || !ok {
		t.Fatalf("expected an audio command snapshot, err=%v", err)
	}
	if cmd.Action != types.AudioCmdSpeak || cmd.Text != "good morning" {
		t.Fatalf("unexpected audio command: %+v", cmd)
	}
	if cmd.Timestamp.IsZero() {
		t.Fatalf("expected the timestamp to be stamped")
	}
}

func TestHandleMuteAndVoiceCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_cmd.json")
	s := New(Deps{AudioCmdPath: path})

	s.Handle(context.Background(), TextEvent{Text: "mute"})
	var cmd types.AudioCommand
	if ok, err := statefile.ReadSnapshot(path, &cmd); err != nil || !ok || cmd.Action != types.AudioCmdMonologueMute {
		t.Fatalf("expected a monologue_mute command, got %+v (ok=%v err=%v)", cmd, ok, err)
	}

	s.Handle(context.Background(), TextEvent{Text: "voice gentle"})
	if ok, err := statefile.ReadSnapshot(path, &cmd); err != nil || !ok || cmd.Action != types.AudioCmdChangeVoice || cmd.Voice != "gentle" {
		t.Fatalf("expected a change_voice command for 'gentle', got %+v (ok=%v err=%v)", cmd, ok, err)
	}
}

func TestHandleExecLogToggle(t *testing.T) {
	var enabledWindow time.Duration
	disabled := false
	s := New(Deps{
		ExecLogEnable:  func(d time.Duration) { enabledWindow = d },
		ExecLogDisable: func() { disabled = true },
	})
	s.Handle(context.Background(), TextEvent{Text: "log on"})
	if enabledWindow != 30*time.Minute {
		t.Fatalf("expected a 30-minute exec-log window, got %v", enabledWindow)
	}
	s.Handle(context.Background(), TextEvent{Text: "log off"})
	if !disabled {
		t.Fatalf("expected exec log to be disabled")
	}
}

func TestHandleApproveResolvesConfirmation(t *testing.T) {
	dir := t.TempDir()
	g, err := costguard.New(dir)
	if err != nil {
		t.Fatalf("costguard.New: %v", err)
	}
	s := New(Deps{CostGuard: g})

	done := make(chan struct {
		approved bool
		message  string
	}, 1)
	go func() {
		approved, message := g.RequestConfirmation("archive old files", 0.05, time.Second)
		done <- struct {
			approved bool
			message  string
		}{approved, message}
	}()

	time.Sleep(50 * time.Millisecond)
	entries, err := filepathGlobConfirmations(t, g)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one pending confirmation, got %v (err=%v)", entries, err)
	}
	id := entries[0]

	reply := s.Handle(context.Background(), TextEvent{Text: "approve:" + id})
	if reply.Text != "recorded your response" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	result := <-done
	if !result.approved {
		t.Fatalf("expected the confirmation to be approved, got message %q", result.message)
	}
}

func TestHandleFallsBackToInboxClassification(t *testing.T) {
	ib := newTestInbox(t)
	s := New(Deps{Inbox: ib})
	reply := s.Handle(context.Background(), TextEvent{UserID: "u1", Text: "organize my downloads folder"})
	if reply.Text != "got it" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	drained, err := ib.Drain()
	if err != nil || len(drained) != 1 {
		t.Fatalf("expected exactly one drained event, got %v (err=%v)", drained, err)
	}
}

func TestVerifySignatureConstantTime(t *testing.T) {
	if !VerifySignature("secret123", "secret123") {
		t.Fatalf("expected matching secrets to verify")
	}
	if VerifySignature("secret123", "wrongpass") {
		t.Fatalf("expected mismatched secrets to fail")
	}
	if VerifySignature("secret123", "short") {
		t.Fatalf("expected length mismatch to fail")
	}
}

// filepathGlobConfirmations lists the UUID-named confirmation files the
// cost guard has written so far, mirroring costguard's own test helper
// since confirmation ids are generated internally.
func filepathGlobConfirmations(t *testing.T, g *costguard.Guard) ([]string, error) {
	t.Helper()
	dir := filepath.Dir(g.ConfirmationPath("probe"))
	entries, err := readDirNames(dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range entries {
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}
