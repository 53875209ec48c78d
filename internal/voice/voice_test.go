package voice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

func TestArbiterSpeakEnqueuesInPriorityOrder(t *testing.T) {
	a := New(Config{}, Deps{})
	a.Speak("low priority", types.PriorityMonologue, 0.2)
	a.Speak("urgent", types.PriorityTalk, 0.7)

	req, ok := a.queue.Dequeue()
	if !ok || req.Text != "urgent" {
		t.Fatalf("expected the higher-priority request first, got %q", req.Text)
	}
}

func TestSetStateWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_state.json")
	a := New(Config{StatePath: path}, Deps{})

	a.setState(types.AudioListening)

	var snap types.AudioStateSnapshot
	ok, err := statefile.ReadSnapshot(path, &snap)
	if err != nil || !ok {
		t.Fatalf("expected a snapshot to be written, err=%v", err)
	}
	if snap.State != types.AudioListening {
		t.Fatalf("expected state %q, got %q", types.AudioListening, snap.State)
	}
	if a.State() != types.AudioListening {
		t.Fatalf("expected in-memory state to match, got %q", a.State())
	}
}

func TestDoSpeakCallsSynthesizeAndReturnsToIdle(t *testing.T) {
	var capturedText string
	fake := fakeTTS{ok: true}
	a := New(Config{}, Deps{TTS: captureTTS{fakeTTS: fake, capture: &capturedText}})

	a.doSpeak(context.Background(), types.VoiceRequest{Text: "hello there", Priority: types.PriorityTalk, Volume: 0.7})

	if capturedText != "hello there" {
		t.Fatalf("expected TTS to receive the request text, got %q", capturedText)
	}
	if a.State() != types.AudioIdle {
		t.Fatalf("expected state to return to idle after speaking, got %q", a.State())
	}
}

func TestDoSpeakWithNoTTSDoesNotPanic(t *testing.T) {
	a := New(Config{}, Deps{})
	a.doSpeak(context.Background(), types.VoiceRequest{Text: "hello"})
	if a.State() != types.AudioIdle {
		t.Fatalf("expected idle state when no TTS engine is configured")
	}
}

func TestHandleStatusReadEnqueuesHealthSummary(t *testing.T) {
	a := New(Config{}, Deps{HealthSamples: func() []types.HealthSample {
		return []types.HealthSample{{Name: "network", Status: types.HealthOK}}
	}})

	a.handleStatusRead()

	req, ok := a.queue.Dequeue()
	if !ok {
		t.Fatalf("expected a queued status report")
	}
	if req.Priority != types.PriorityNotification {
		t.Fatalf("expected notification priority, got %v", req.Priority)
	}
}

func TestHandleLogbookReportsCallbackError(t *testing.T) {
	a := New(Config{}, Deps{Logbook: func() (string, error) { return "", errors.New("disk full") }})

	a.handleLogbook()

	req, ok := a.queue.Dequeue()
	if !ok {
		t.Fatalf("expected a queued message")
	}
	if req.Text == "" {
		t.Fatalf("expected an error message to be spoken")
	}
}

func TestHandleEmergencyStopInvokesStopService(t *testing.T) {
	orig := emergencyStopDelay
	emergencyStopDelay = 0
	defer func() { emergencyStopDelay = orig }()

	called := false
	a := New(Config{}, Deps{StopService: func(ctx context.Context) error {
		called = true
		return nil
	}})

	done := make(chan struct{})
	go func() {
		a.handleEmergencyStop(context.Background())
		close(done)
	}()
	<-done

	if !called {
		t.Fatalf("expected StopService to be invoked")
	}
	req, ok := a.queue.Dequeue()
	if !ok || req.Priority != types.PriorityEmergency {
		t.Fatalf("expected an emergency-priority warning to be queued first")
	}
}

func TestProcessTalkSpeaksReplyOnSuccess(t *testing.T) {
	a := New(Config{ConversationVolume: 0.7}, Deps{
		STT:    fakeSTT{text: "what's the weather"},
		OnTalk: func(ctx context.Context, text string) (string, error) { return "sunny today", nil },
	})

	a.processTalk(context.Background(), "irrelevant.wav")

	req, ok := a.queue.Dequeue()
	if !ok || req.Text != "sunny today" {
		t.Fatalf("expected the reply to be queued, got %q (ok=%v)", req.Text, ok)
	}
	if a.State() != types.AudioIdle {
		t.Fatalf("expected idle state after processing, got %q", a.State())
	}
}

func TestProcessTalkSkipsReplyOnEmptyTranscription(t *testing.T) {
	called := false
	a := New(Config{}, Deps{
		STT:    fakeSTT{text: ""},
		OnTalk: func(ctx context.Context, text string) (string, error) { called = true; return "x", nil },
	})

	a.processTalk(context.Background(), "irrelevant.wav")

	if called {
		t.Fatalf("expected OnTalk not to be called when nothing was transcribed")
	}
	if _, ok := a.queue.Dequeue(); ok {
		t.Fatalf("expected nothing queued when transcription was empty")
	}
}

func TestHandleTalkReleaseSpeaksFailureMessageOnEmptyRecording(t *testing.T) {
	a := New(Config{ConversationVolume: 0.7}, Deps{Recorder: &stubRecorder{stopPath: ""}})

	a.handleTalkPress()
	a.handleTalkRelease(context.Background())

	req, ok := a.queue.Dequeue()
	if !ok || req.Text == "" {
		t.Fatalf("expected a spoken failure message when the recording is empty, got %q (ok=%v)", req.Text, ok)
	}
	if req.Priority != types.PriorityTalk {
		t.Fatalf("expected TALK priority, got %v", req.Priority)
	}
	if a.State() != types.AudioIdle {
		t.Fatalf("expected state to return to idle, got %q", a.State())
	}
}

type stubRecorder struct {
	stopPath string
}

func (s *stubRecorder) Start() (string, error) { return "", nil }
func (s *stubRecorder) Stop() string           { return s.stopPath }
func (s *stubRecorder) Cleanup()               {}

type captureTTS struct {
	fakeTTS
	capture *string
}

func (c captureTTS) Synthesize(ctx context.Context, text, outputPath string) (bool, error) {
	*c.capture = text
	return c.fakeTTS.Synthesize(ctx, text, outputPath)
}
