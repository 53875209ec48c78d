// Package voice implements the voice arbiter (spec §4.8): a single
// exclusive-access audio sink fed by a priority speak queue, a push-to-talk
// pipeline (record -> STT -> LLM callback -> TTS), an ambient monologue
// generator, and a macropad action dispatch table. Ported from the
// prototype's audio/audio_manager.py AudioManager, generalized from its
// hard-coded Japanese persona strings and threading.Thread model into
// configuration and goroutines.
package voice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Config holds the volume table and tunables. Ported from AudioManager's
// constructor defaults.
type Config struct {
	ConversationVolume   float64
	MonologueVolume      float64
	MonologueNightVolume float64
	NotificationVolume   float64
	EmergencyVolume      float64
	MaxVolume            float64
	VolumeStep           float64
	StatePath            string // e.g. /var/run/ai_audio_state.json
	AudioSink            string // wpctl @DEFAULT_AUDIO_SINK@ target
	AudioCmdPath         string // e.g. /var/run/shipos-audio-cmd.json, polled every 2s
}

func (c Config) withDefaults() Config {
	if c.ConversationVolume == 0 {
		c.ConversationVolume = 0.70
	}
	if c.MonologueVolume == 0 {
		c.MonologueVolume = 0.25
	}
	if c.MonologueNightVolume == 0 {
		c.MonologueNightVolume = 0.15
	}
	if c.NotificationVolume == 0 {
		c.NotificationVolume = 0.50
	}
	if c.EmergencyVolume == 0 {
		c.EmergencyVolume = 1.00
	}
	if c.MaxVolume == 0 {
		c.MaxVolume = 0.85
	}
	if c.VolumeStep == 0 {
		c.VolumeStep = 0.05
	}
	if c.AudioSink == "" {
		c.AudioSink = "@DEFAULT_AUDIO_SINK@"
	}
	return c
}

// Deps wires the arbiter's collaborators. STT/TTS/Recorder/Monologue are
// required for the corresponding features to work; a nil value just
// disables that path (e.g. a headless deployment with no mic).
type Deps struct {
	STT       STT
	TTS       TTS
	Recorder  RecorderIface
	Monologue *MonologueEngine
	Listener  *Listener

	// OnTalk is invoked with the transcribed push-to-talk text and must
	// return the reply to speak back.
	OnTalk func(ctx context.Context, text string) (string, error)
	// HealthSamples feeds the status_read action.
	HealthSamples func() []types.HealthSample
	// Logbook appends and returns a short description of the entry recorded,
	// for the logbook action.
	Logbook func() (string, error)
	// StopService is called by the emergency_stop action after the spoken
	// warning finishes; nil disables the actual shutdown (dry run).
	StopService func(ctx context.Context) error
}

// Arbiter owns the audio state machine and the exclusive-access speak
// queue. All state transitions go through setState so the state file
// (read by the display controller) always reflects reality.
type Arbiter struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	state  types.AudioState
	since  time.Time
	talkOn bool

	queue  *speakQueue
	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, deps Deps) *Arbiter {
	return &Arbiter{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		state:  types.AudioIdle,
		since:  time.Now(),
		queue:  newSpeakQueue(),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

func (a *Arbiter) State() types.AudioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Arbiter) setState(s types.AudioState) {
	a.mu.Lock()
	a.state = s
	a.since = time.Now()
	snapshot := types.AudioStateSnapshot{State: s, Since: a.since}
	a.mu.Unlock()

	if a.cfg.StatePath != "" {
		if err := statefile.WriteSnapshot(a.cfg.StatePath, snapshot); err != nil {
			logging.For("voice").Warn().Err(err).Msg("failed to write audio state snapshot")
		}
	}
}

// Speak enqueues text for playback, ordered by priority then arrival.
// Returns immediately; playback happens on the speaker goroutine.
func (a *Arbiter) Speak(text string, priority types.VoicePriority, volume float64) {
	a.mu.Lock()
	a.queue.Enqueue(types.VoiceRequest{Text: text, Priority: priority, Volume: volume, EnqueuedAt: time.Now()})
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Start launches the speaker, monologue, and input-listener goroutines.
func (a *Arbiter) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.speakerLoop(ctx)

	if a.deps.Monologue != nil {
		a.wg.Add(1)
		go a.monologueLoop(ctx)
	}

	if a.deps.Listener != nil {
		a.deps.Listener.OnAction = a.handleAction
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.deps.Listener.Run(ctx)
		}()
	}

	if a.cfg.AudioCmdPath != "" {
		a.wg.Add(1)
		go a.audioCmdLoop(ctx)
	}

	a.Speak("voice arbiter online, good morning", types.PriorityNotification, a.cfg.NotificationVolume)
}

// Stop signals all goroutines to exit and blocks until they do.
func (a *Arbiter) Stop() {
	close(a.stopCh)
	if a.deps.Listener != nil {
		a.deps.Listener.Stop()
	}
	a.wg.Wait()
}

func (a *Arbiter) speakerLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		a.mu.Lock()
		req, ok := a.queue.Dequeue()
		a.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-a.notify:
				continue
			case <-time.After(time.Second):
				continue
			}
		}

		a.doSpeak(ctx, req)
	}
}

func (a *Arbiter) doSpeak(ctx context.Context, req types.VoiceRequest) {
	log := logging.For("voice")
	if a.deps.TTS == nil {
		log.Warn().Str("text", req.Text).Msg("no TTS engine configured, dropping speak request")
		return
	}

	a.setState(types.AudioSpeaking)
	defer a.setState(types.AudioIdle)

	wavFile, err := os.CreateTemp("", "tts_*.wav")
	if err != nil {
		log.Error().Err(err).Msg("failed to allocate tts temp file")
		return
	}
	wavPath := wavFile.Name()
	wavFile.Close()
	defer os.Remove(wavPath)

	ok, err := a.deps.TTS.Synthesize(ctx, req.Text, wavPath)
	if err != nil || !ok {
		log.Warn().Err(err).Msg("tts synthesis failed")
		return
	}

	vol := req.Volume
	if vol > a.cfg.MaxVolume {
		vol = a.cfg.MaxVolume
	}
	a.setVolume(ctx, vol)

	cmd := exec.CommandContext(ctx, "aplay", wavPath)
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Msg("playback failed")
	}
}

func (a *Arbiter) setVolume(ctx context.Context, vol float64) {
	_ = exec.CommandContext(ctx, "wpctl", "set-volume", a.cfg.AudioSink, fmt.Sprintf("%.2f", vol)).Run()
}

func (a *Arbiter) adjustVolume(ctx context.Context, delta float64) {
	sign := "+"
	if delta < 0 {
		sign = "-"
	}
	_ = exec.CommandContext(ctx, "wpctl", "set-volume", a.cfg.AudioSink, fmt.Sprintf("%.2f%s", abs(delta), sign)).Run()
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (a *Arbiter) monologueLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			if a.State() != types.AudioIdle {
				continue
			}
			text := a.deps.Monologue.CheckAndGenerate()
			if text == "" {
				continue
			}
			vol := a.deps.Monologue.Volume(a.cfg.MonologueVolume, a.cfg.MonologueNightVolume)
			a.Speak(text, types.PriorityMonologue, vol)
		}
	}
}

// handleAction dispatches a macropad action. Grounded on AudioManager's
// _on_action table.
func (a *Arbiter) handleAction(act Action) {
	ctx := context.Background()
	log := logging.For("voice")
	switch act {
	case ActionTalkPress:
		a.handleTalkPress()
	case ActionTalkRelease:
		a.handleTalkRelease(ctx)
	case ActionMonologueToggle:
		if a.deps.Monologue != nil {
			a.deps.Monologue.ToggleMute()
		}
	case ActionStatusRead:
		a.handleStatusRead()
	case ActionLogbook:
		a.handleLogbook()
	case ActionEmergencyStop:
		a.handleEmergencyStop(ctx)
	case ActionVolumeUp:
		a.adjustVolume(ctx, a.cfg.VolumeStep)
	case ActionVolumeDown:
		a.adjustVolume(ctx, -a.cfg.VolumeStep)
	default:
		log.Warn().Str("action", string(act)).Msg("unhandled voice action")
	}
}

func (a *Arbiter) handleTalkPress() {
	if a.deps.Recorder == nil {
		return
	}
	a.mu.Lock()
	a.talkOn = true
	a.mu.Unlock()
	a.setState(types.AudioListening)
	if _, err := a.deps.Recorder.Start(); err != nil {
		logging.For("voice").Error().Err(err).Msg("failed to start recording")
	}
}

func (a *Arbiter) handleTalkRelease(ctx context.Context) {
	if a.deps.Recorder == nil {
		return
	}
	a.mu.Lock()
	wasOn := a.talkOn
	a.talkOn = false
	a.mu.Unlock()
	if !wasOn {
		return
	}

	wavPath := a.deps.Recorder.Stop()
	defer a.deps.Recorder.Cleanup()

	if wavPath == "" {
		a.Speak("I didn't catch a recording that time.", types.PriorityTalk, a.cfg.ConversationVolume)
		a.setState(types.AudioIdle)
		return
	}

	a.setState(types.AudioThinking)
	a.processTalk(ctx, wavPath)
}

func (a *Arbiter) processTalk(ctx context.Context, wavPath string) {
	log := logging.For("voice")
	if a.deps.STT == nil || a.deps.OnTalk == nil {
		a.setState(types.AudioIdle)
		return
	}

	text, err := a.deps.STT.Transcribe(ctx, wavPath)
	if err != nil || text == "" {
		log.Warn().Err(err).Msg("nothing transcribed from push-to-talk recording")
		a.setState(types.AudioIdle)
		return
	}

	reply, err := a.deps.OnTalk(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("talk callback failed")
		a.setState(types.AudioIdle)
		return
	}

	a.setState(types.AudioIdle)
	a.Speak(reply, types.PriorityTalk, a.cfg.ConversationVolume)
}

func (a *Arbiter) handleStatusRead() {
	if a.deps.HealthSamples == nil {
		a.Speak("Health monitoring isn't wired up yet.", types.PriorityNotification, a.cfg.NotificationVolume)
		return
	}
	text := StatusText(a.deps.HealthSamples())
	a.Speak(text, types.PriorityNotification, a.cfg.ConversationVolume)
}

func (a *Arbiter) handleLogbook() {
	if a.deps.Logbook == nil {
		a.Speak("Logbook isn't wired up yet.", types.PriorityNotification, a.cfg.ConversationVolume)
		return
	}
	entry, err := a.deps.Logbook()
	if err != nil {
		a.Speak("Couldn't write to the logbook just now.", types.PriorityNotification, a.cfg.ConversationVolume)
		return
	}
	a.Speak("Logged: "+entry, types.PriorityNotification, a.cfg.ConversationVolume)
}

// emergencyStopDelay gives the spoken warning time to play out before the
// service actually stops; overridden in tests.
var emergencyStopDelay = 2 * time.Second

func (a *Arbiter) handleEmergencyStop(ctx context.Context) {
	log := logging.For("voice")
	a.Speak("Stopping now.", types.PriorityEmergency, a.cfg.EmergencyVolume)
	time.Sleep(emergencyStopDelay)
	if a.deps.StopService == nil {
		return
	}
	if err := a.deps.StopService(ctx); err != nil {
		log.Error().Err(err).Msg("emergency stop failed")
	} else {
		log.Warn().Msg("emergency stop executed")
	}
}
