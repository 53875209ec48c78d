package voice

import (
	"context"
	"os"
	"time"

	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// audioCmdLoop polls the shared audio-cmd snapshot every two seconds (spec
// §4.8), services speak/monologue_mute/monologue_unmute/status_read/
// change_voice, and deletes the file after each dispatch. lastTimestamp
// dedups against a poller that happens to read the same file twice before
// the webhook server's next write.
func (a *Arbiter) audioCmdLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastTimestamp time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.pollAudioCmd(&lastTimestamp)
		}
	}
}

func (a *Arbiter) pollAudioCmd(lastTimestamp *time.Time) {
	var cmd types.AudioCommand
	ok, err := statefile.ReadSnapshot(a.cfg.AudioCmdPath, &cmd)
	if err != nil {
		logging.For("voice").Warn().Err(err).Msg("failed to read audio command snapshot")
		return
	}
	if !ok || cmd.Timestamp.IsZero() || !cmd.Timestamp.After(*lastTimestamp) {
		return
	}
	*lastTimestamp = cmd.Timestamp

	a.dispatchAudioCommand(cmd)
	_ = os.Remove(a.cfg.AudioCmdPath)
}

func (a *Arbiter) dispatchAudioCommand(cmd types.AudioCommand) {
	log := logging.For("voice")
	switch cmd.Action {
	case types.AudioCmdSpeak:
		a.Speak(cmd.Text, types.PriorityTalk, a.cfg.ConversationVolume)
	case types.AudioCmdMonologueMute:
		if a.deps.Monologue != nil {
			a.deps.Monologue.SetMuted(true)
		}
	case types.AudioCmdMonologueUnmute:
		if a.deps.Monologue != nil {
			a.deps.Monologue.SetMuted(false)
		}
	case types.AudioCmdStatusRead:
		a.handleStatusRead()
	case types.AudioCmdChangeVoice:
		if vs, ok := a.deps.TTS.(VoiceSwitcher); ok {
			vs.SetVoice(cmd.Voice)
		} else {
			log.Warn().Str("voice", cmd.Voice).Msg("tts engine does not support voice switching")
		}
	default:
		log.Warn().Str("action", cmd.Action).Msg("unknown audio command")
	}
}
