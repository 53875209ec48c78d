package voice

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/shipos/autonomous/internal/logging"
)

// Action names the button/knob events the input listener can fire. Ported
// from the prototype's Action constants (InputListener.DEFAULT_KEY_MAP).
type Action string

const (
	ActionTalkPress       Action = "talk_press"
	ActionTalkRelease     Action = "talk_release"
	ActionMonologueToggle Action = "monologue_toggle"
	ActionStatusRead      Action = "status_read"
	ActionLogbook         Action = "logbook"
	ActionEmergencyStop   Action = "emergency_stop"
	ActionVolumeUp        Action = "volume_up"
	ActionVolumeDown      Action = "volume_down"
)

type keyBinding struct {
	name    string
	press   Action
	release Action
}

// defaultKeyMap mirrors the macropad wiring the prototype assumes: F13-F17
// plus the two system volume keys. Event codes are Linux input-event key
// codes (linux/input-event-codes.h).
var defaultKeyMap = map[uint16]keyBinding{
	183: {"talk", ActionTalkPress, ActionTalkRelease},
	184: {"monologue_mute", ActionMonologueToggle, ""},
	185: {"status_read", ActionStatusRead, ""},
	186: {"logbook", ActionLogbook, ""},
	187: {"emergency_stop", ActionEmergencyStop, ""},
	115: {"volume_up", ActionVolumeUp, ""},
	114: {"volume_down", ActionVolumeDown, ""},
}

// A raw struct input_event (linux/input.h) is 24 bytes on 64-bit targets:
// a 16-byte timeval (tv_sec, tv_usec), then type/code/value.
const evKey = 0x01

// Listener reads raw key events from a Linux evdev device node and fires
// the bound Action on press/release. Reconnects on read error with a
// backoff, since the USB macropad can be unplugged and replugged while the
// process runs. Grounded on the prototype's InputListener._listen_loop.
type Listener struct {
	DevicePath string
	KeyMap     map[uint16]keyBinding
	OnAction   func(Action)

	stop chan struct{}
}

func NewListener(devicePath string, onAction func(Action)) *Listener {
	return &Listener{DevicePath: devicePath, KeyMap: defaultKeyMap, OnAction: onAction, stop: make(chan struct{})}
}

// ApplyKeyConfig overrides the default event-code bindings, e.g. from a
// config file mapping symbolic key names to device-specific codes.
func (l *Listener) ApplyKeyConfig(nameToCode map[string]uint16) {
	byName := map[string]keyBinding{
		"talk":            {"talk", ActionTalkPress, ActionTalkRelease},
		"monologue_mute":  {"monologue_mute", ActionMonologueToggle, ""},
		"status_read":     {"status_read", ActionStatusRead, ""},
		"logbook":         {"logbook", ActionLogbook, ""},
		"emergency_stop":  {"emergency_stop", ActionEmergencyStop, ""},
		"volume_up":       {"volume_up", ActionVolumeUp, ""},
		"volume_down":     {"volume_down", ActionVolumeDown, ""},
	}
	newMap := make(map[uint16]keyBinding)
	for name, code := range nameToCode {
		if b, ok := byName[name]; ok {
			newMap[code] = b
		}
	}
	if len(newMap) > 0 {
		l.KeyMap = newMap
	}
}

// Run blocks, dispatching actions until ctx is cancelled or Stop is called.
func (l *Listener) Run(ctx context.Context) {
	log := logging.For("voice.input")
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		default:
		}

		f, err := os.Open(l.DevicePath)
		if err != nil {
			log.Warn().Str("device", l.DevicePath).Err(err).Msg("input device unavailable, retrying")
			if !sleepOrDone(ctx, l.stop, 5*time.Second) {
				return
			}
			continue
		}

		log.Info().Str("device", l.DevicePath).Msg("input device connected")
		l.readLoop(ctx, f)
		f.Close()

		if !sleepOrDone(ctx, l.stop, 5*time.Second) {
			return
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, r io.Reader) {
	log := logging.For("voice.input")
	buf := make([]byte, 24)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		default:
		}

		if _, err := io.ReadFull(r, buf); err != nil {
			log.Warn().Err(err).Msg("input device read error, reconnecting")
			return
		}

		evType := binary.LittleEndian.Uint16(buf[16:18])
		if evType != evKey {
			continue
		}
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))

		binding, ok := l.KeyMap[code]
		if !ok {
			continue
		}
		switch {
		case value == 1 && binding.press != "":
			l.fire(binding.press)
		case value == 0 && binding.release != "":
			l.fire(binding.release)
		}
	}
}

func (l *Listener) fire(a Action) {
	if l.OnAction != nil {
		l.OnAction(a)
	}
}

func (l *Listener) Stop() {
	close(l.stop)
}

func sleepOrDone(ctx context.Context, stop chan struct{}, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
