package voice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

func TestPollAudioCmdSpeaksAndDeletesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_cmd.json")
	if err := statefile.WriteSnapshot(path, types.AudioCommand{
		Action:    types.AudioCmdSpeak,
		Text:      "hello from chat",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	a := New(Config{AudioCmdPath: path, ConversationVolume: 0.6}, Deps{})
	var last time.Time
	a.pollAudioCmd(&last)

	req, ok := a.queue.Dequeue()
	if !ok || req.Text != "hello from chat" {
		t.Fatalf("expected the speak command to be queued, got %q (ok=%v)", req.Text, ok)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected the audio command file to be removed after dispatch, stat err = %v", err)
	}
	if last.IsZero() {
		t.Fatalf("expected lastTimestamp to be updated")
	}
}

func TestPollAudioCmdSkipsAlreadyDispatchedTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_cmd.json")
	ts := time.Now()
	if err := statefile.WriteSnapshot(path, types.AudioCommand{
		Action:    types.AudioCmdSpeak,
		Text:      "stale",
		Timestamp: ts,
	}); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	a := New(Config{AudioCmdPath: path}, Deps{})
	last := ts
	a.pollAudioCmd(&last)

	if _, ok := a.queue.Dequeue(); ok {
		t.Fatalf("expected an already-seen timestamp to be skipped")
	}
}

func TestDispatchAudioCommandTogglesMonologueMute(t *testing.T) {
	m := NewMonologueEngine(time.Minute, 2*time.Minute, 22, 7, true)
	a := New(Config{}, Deps{Monologue: m})

	a.dispatchAudioCommand(types.AudioCommand{Action: types.AudioCmdMonologueMute})
	if !m.muted {
		t.Fatalf("expected monologue to be muted")
	}
	a.dispatchAudioCommand(types.AudioCommand{Action: types.AudioCmdMonologueUnmute})
	if m.muted {
		t.Fatalf("expected monologue to be unmuted")
	}
}

func TestDispatchAudioCommandChangesVoice(t *testing.T) {
	tts := &OpenAITTS{}
	a := New(Config{}, Deps{TTS: tts})

	a.dispatchAudioCommand(types.AudioCommand{Action: types.AudioCmdChangeVoice, Voice: "gentle"})

	if tts.voice != "gentle" {
		t.Fatalf("expected voice to change to 'gentle', got %q", tts.voice)
	}
}
