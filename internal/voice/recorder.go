package voice

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// RecorderIface is the push-to-talk capture surface the arbiter depends on,
// satisfied by *Recorder; tests substitute a stub to drive edge cases (e.g.
// an empty recording) without spawning arecord.
type RecorderIface interface {
	Start() (string, error)
	Stop() string
	Cleanup()
}

// Recorder captures a WAV file via arecord, push-to-talk style: Start opens
// the capture, Stop terminates it and validates the result. Ported from
// the prototype's Recorder, with max_duration acting as a hard backstop
// arecord itself enforces via -d.
type Recorder struct {
	SampleRate  int
	Channels    int
	Device      string
	MaxDuration time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	outPath string
	active  bool
}

func NewRecorder(sampleRate, channels int, device string, maxDuration time.Duration) *Recorder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if device == "" {
		device = "default"
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Second
	}
	return &Recorder{SampleRate: sampleRate, Channels: channels, Device: device, MaxDuration: maxDuration}
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start begins capture and returns the temp WAV path it is writing to.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return r.outPath, nil
	}

	f, err := os.CreateTemp("", "rec_*.wav")
	if err != nil {
		return "", fmt.Errorf("voice: create recording file: %w", err)
	}
	path := f.Name()
	f.Close()

	cmd := exec.Command("arecord",
		"-D", r.Device,
		"-f", "S16_LE",
		"-r", fmt.Sprintf("%d", r.SampleRate),
		"-c", fmt.Sprintf("%d", r.Channels),
		"-d", fmt.Sprintf("%d", int(r.MaxDuration.Seconds())),
		path,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("voice: start arecord: %w", err)
	}

	r.cmd = cmd
	r.outPath = path
	r.active = true
	return path, nil
}

// Stop terminates capture and returns the recorded path, or "" if the
// result is missing or too small to contain anything past a WAV header.
func (r *Recorder) Stop() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ""
	}
	r.active = false

	if r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Signal(os.Interrupt)
		done := make(chan error, 1)
		go func() { done <- r.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			_ = r.cmd.Process.Kill()
		}
	}

	info, err := os.Stat(r.outPath)
	if err != nil || info.Size() <= 44 {
		return ""
	}
	return r.outPath
}

// Cleanup removes the last recording's temp file.
func (r *Recorder) Cleanup() {
	r.mu.Lock()
	path := r.outPath
	r.mu.Unlock()
	if path != "" {
		_ = os.Remove(path)
	}
}
