// Package webhook implements the HTTP endpoint that receives signed chat
// provider callbacks (spec §4.14): command-vocabulary dispatch, confirmation
// resolution, and fallback classification into the event inbox.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shipos/autonomous/internal/costguard"
	"github.com/shipos/autonomous/internal/health"
	"github.com/shipos/autonomous/internal/inbox"
	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/notifier"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// TextEvent is one inbound chat message, pre-decoded by the transport
// adapter (Telegram's update handler calls Handle with these fields).
type TextEvent struct {
	UserID string
	Text   string
}

// Reply is what the server returns synchronously to the HTTP caller: a
// same-response acknowledgement for matched commands.
type Reply struct {
	Text string
}

// Deps wires every subsystem the command vocabulary can touch.
type Deps struct {
	Modes       *modemgr.Manager
	CostGuard   *costguard.Guard
	Health      *health.Monitor
	Memory      *memory.Manager
	Inbox       *inbox.Inbox
	Notify      *notifier.Notifier
	LineStatusPath string
	AudioCmdPath   string
	ExecLogEnable  func(time.Duration)
	ExecLogDisable func()
}

// Server dispatches inbound chat text against the static command
// vocabulary, falling back to inbox classification.
type Server struct {
	deps Deps
}

// New builds a Server.
func New(deps Deps) *Server { return &Server{deps: deps} }

// Handle processes one inbound text event end to end: pulse the line
// status, try the command vocabulary, try a pending confirmation reply,
// and otherwise classify-and-push to the inbox. It never blocks on heavy
// work — every branch either replies immediately or enqueues.
func (s *Server) Handle(ctx context.Context, ev TextEvent) Reply {
	s.pulseRX()

	if reply, matched := s.dispatchCommand(ctx, ev); matched {
		return reply
	}
	if reply, matched := s.dispatchConfirmation(ev); matched {
		return reply
	}
	return s.fallbackToInbox(ev)
}

func (s *Server) pulseRX() {
	if s.deps.LineStatusPath == "" {
		return
	}
	var snap types.LineStatusSnapshot
	_, _ = statefile.ReadSnapshot(s.deps.LineStatusPath, &snap)
	snap.LastRX = time.Now()
	_ = statefile.WriteSnapshot(s.deps.LineStatusPath, snap)
}

func (s *Server) dispatchCommand(ctx context.Context, ev TextEvent) (Reply, bool) {
	text := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(text)

	switch {
	case lower == "status":
		return s.replyStatus(), true
	case lower == "health":
		return s.replyHealth(ctx), true
	case lower == "logbook":
		return s.replyLogbook(), true
	case lower == "today-summary", lower == "today summary":
		return Reply{Text: s.memorySummary()}, true
	case lower == "log on":
		if s.deps.ExecLogEnable != nil {
			s.deps.ExecLogEnable(30 * time.Minute)
		}
		return Reply{Text: "execution log enabled for 30 minutes"}, true
	case lower == "log off":
		if s.deps.ExecLogDisable != nil {
			s.deps.ExecLogDisable()
		}
		return Reply{Text: "execution log disabled"}, true
	case lower == "stop":
		return s.switchMode(types.ModeSafe, "user requested stop"), true
	case lower == "start":
		return s.switchMode(types.ModeAutonomous, "user requested start"), true
	case strings.HasPrefix(lower, "mode "):
		target := types.Mode(strings.TrimSpace(strings.TrimPrefix(lower, "mode ")))
		return s.switchMode(target, "user mode command"), true
	case strings.HasPrefix(lower, "speak "):
		return s.queueAudioCommand(types.AudioCommand{
			Action: types.AudioCmdSpeak,
			Text:   strings.TrimSpace(text[len("speak "):]),
		}), true
	case lower == "mute":
		return s.queueAudioCommand(types.AudioCommand{Action: types.AudioCmdMonologueMute}), true
	case lower == "unmute":
		return s.queueAudioCommand(types.AudioCommand{Action: types.AudioCmdMonologueUnmute}), true
	case lower == "read status":
		return s.queueAudioCommand(types.AudioCommand{Action: types.AudioCmdStatusRead}), true
	case strings.HasPrefix(lower, "voice "):
		return s.queueAudioCommand(types.AudioCommand{
			Action: types.AudioCmdChangeVoice,
			Voice:  strings.TrimSpace(text[len("voice "):]),
		}), true
	}
	return Reply{}, false
}

// queueAudioCommand writes cmd to the shared audio-cmd snapshot file the
// voice arbiter polls every two seconds (spec §4.8). The timestamp field is
// the poller's dedup key, so it is always stamped here, not by the caller.
func (s *Server) queueAudioCommand(cmd types.AudioCommand) Reply {
	if s.deps.AudioCmdPath == "" {
		return Reply{Text: "audio command channel unavailable"}
	}
	cmd.Timestamp = time.Now()
	if err := statefile.WriteSnapshot(s.deps.AudioCmdPath, cmd); err != nil {
		logging.For("webhook").Error().Err(err).Msg("failed to write audio command")
		return Reply{Text: "failed to queue audio command"}
	}
	return Reply{Text: "queued"}
}

func (s *Server) switchMode(target types.Mode, reason string) Reply {
	if s.deps.Modes == nil {
		return Reply{Text: "mode manager unavailable"}
	}
	result := s.deps.Modes.Switch(target, reason, types.SourceUser)
	if !result.Success {
		return Reply{Text: fmt.Sprintf("mode switch to %s refused: %s", target, result.Reason)}
	}
	return Reply{Text: fmt.Sprintf("switched from %s to %s", result.Old, result.New)}
}

func (s *Server) replyStatus() Reply {
	if s.deps.Modes == nil {
		return Reply{Text: "mode manager unavailable"}
	}
	cur := s.deps.Modes.Current()
	return Reply{Text: fmt.Sprintf("mode: %s (since %s)", cur.Mode, cur.Since.Format(time.RFC3339))}
}

func (s *Server) replyHealth(ctx context.Context) Reply {
	if s.deps.Health == nil {
		return Reply{Text: "health monitor unavailable"}
	}
	samples := s.deps.Health.RunAll(ctx)
	return Reply{Text: health.Summary(samples)}
}

func (s *Server) replyLogbook() Reply {
	if s.deps.Memory == nil {
		return Reply{Text: "memory store unavailable"}
	}
	entries, err := s.deps.Memory.ReadDiary(20)
	if err != nil {
		return Reply{Text: "could not read the diary"}
	}
	return Reply{Text: entries}
}

func (s *Server) memorySummary() string {
	if s.deps.Memory == nil {
		return "memory store unavailable"
	}
	return s.deps.Memory.Summary()
}

// dispatchConfirmation handles "approve:<id>" / "deny:<id>" replies
// targeting a pending cost-guard confirmation (spec's Data Model: a
// Confirmation is "resolved by a chat reply matching approve:<id> /
// deny:<id>").
func (s *Server) dispatchConfirmation(ev TextEvent) (Reply, bool) {
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	verb, id, ok := strings.Cut(text, ":")
	if !ok || id == "" || s.deps.CostGuard == nil {
		return Reply{}, false
	}
	var approved bool
	switch verb {
	case "approve":
		approved = true
	case "deny":
		approved = false
	default:
		return Reply{}, false
	}
	if err := s.deps.CostGuard.Resolve(id, approved); err != nil {
		return Reply{Text: "no matching confirmation found"}, true
	}
	return Reply{Text: "recorded your response"}, true
}

func (s *Server) fallbackToInbox(ev TextEvent) Reply {
	if s.deps.Inbox == nil {
		return Reply{Text: "accepted"}
	}
	if _, err := s.deps.Inbox.Push(ev.Text, ev.UserID); err != nil {
		logging.For("webhook").Error().Err(err).Msg("failed to push inbox event")
		return Reply{Text: "failed to record your message"}
	}
	return Reply{Text: "got it"}
}

// VerifySignature reports whether got equals expected, comparing
// equal-length inputs in constant time. It is a plain byte comparison: it
// computes no HMAC and does not read a request body; secretMiddleware uses
// it to check the X-Webhook-Secret header.
func VerifySignature(expected, got string) bool {
	if len(expected) != len(got) {
		return false
	}
	var diff byte
	for i := 0; i < len(expected); i++ {
		diff |= expected[i] ^ got[i]
	}
	return diff == 0
}

// secretMiddleware rejects requests whose X-Webhook-Secret header doesn't
// match secret, before any handler work happens.
func secretMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && !VerifySignature(secret, r.Header.Get("X-Webhook-Secret")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Mount wires the webhook handler behind signature verification onto mux
// at path.
func Mount(mux *http.ServeMux, path, secret string, handler http.HandlerFunc) {
	mux.Handle(path, secretMiddleware(secret, handler))
}
