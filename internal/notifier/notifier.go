// Package notifier implements the outbound chat push and notify-level
// filtering (spec §4.13): a reliable one-way Discord webhook channel and an
// interactive Telegram channel, an exec-log toggle, and a startup-cooldown
// guard against duplicate boot pushes.
package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Level identifies a notification's category, per spec §4.13.
type Level string

const (
	LevelStartup       Level = "startup"
	LevelShutdown      Level = "shutdown"
	LevelExecutionLog  Level = "execution_log"
	LevelError         Level = "error"
	LevelMemorySummary Level = "memory_summary"
	LevelCostWarning   Level = "cost_alert_warning"
	LevelCostAlert     Level = "cost_alert_alert"
	LevelCostStop      Level = "cost_alert_stop"
	LevelHealthCritical Level = "health_critical"
	LevelStatus        Level = "status"
	LevelUserResponse  Level = "user_response"
)

var criticalSet = map[Level]bool{
	LevelCostAlert: true, LevelCostStop: true, LevelError: true, LevelHealthCritical: true,
}

var statusSet = union(criticalSet, map[Level]bool{
	LevelStatus: true, LevelStartup: true, LevelShutdown: true,
})

var responsiveSet = union(statusSet, map[Level]bool{LevelUserResponse: true})

func union(a, b map[Level]bool) map[Level]bool {
	out := make(map[Level]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

// Allowed reports whether a message at level passes the mode's notify_level
// filter. "minimal" falls back to the same base tier as "critical" — the
// spec names it only as "default" without further expansion.
func Allowed(level Level, notifyLevel types.NotifyLevel) bool {
	switch notifyLevel {
	case types.NotifyAll:
		return true
	case types.NotifyResponsive:
		return responsiveSet[level]
	case types.NotifyStatus:
		return statusSet[level]
	default: // critical, minimal
		return criticalSet[level]
	}
}

// DiscordPusher executes a fire-and-forget webhook post. It is the
// "reliable one-way push channel" of spec §4.13.
type DiscordPusher struct {
	session   *discordgo.Session
	webhookID string
	token     string
}

// NewDiscordPusher parses a Discord webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscordPusher(webhookURL string) (*DiscordPusher, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("notifier: invalid discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 {
		return nil, fmt.Errorf("notifier: malformed discord webhook url %q", webhookURL)
	}
	id, token := parts[len(parts)-2], parts[len(parts)-1]

	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notifier: discordgo session: %w", err)
	}
	return &DiscordPusher{session: sess, webhookID: id, token: token}, nil
}

// Push sends text as a webhook message.
func (d *DiscordPusher) Push(text string) error {
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Content: ToDiscordMarkdown(text),
	})
	return err
}

// TelegramChannel is the interactive provider: it mounts a webhook handler
// and pushes outbound messages to a fixed allow-listed chat.
type TelegramChannel struct {
	bot            *tgbot.Bot
	allowedUserIDs map[int64]bool
	targetChatID   int64

	mu           sync.Mutex
	execLogUntil time.Time
}

// NewTelegramChannel constructs the bot without starting webhook dispatch;
// call WebhookHandler to mount it and StartWebhook to begin processing.
func NewTelegramChannel(token string, allowedIDs []int64, targetChatID int64, opts ...tgbot.Option) (*TelegramChannel, error) {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("notifier: telegram bot init: %w", err)
	}
	return &TelegramChannel{bot: b, allowedUserIDs: allowed, targetChatID: targetChatID}, nil
}

// WebhookHandler exposes the bot's HTTP webhook handler for mounting on a
// ServeMux (spec §4.14's "go-telegram/bot WebhookHandler() plugs directly
// into an http.ServeMux" wiring).
func (t *TelegramChannel) WebhookHandler() http.HandlerFunc {
	return t.bot.WebhookHandler()
}

// StartWebhook begins processing updates queued by the webhook handler
// until ctx is cancelled.
func (t *TelegramChannel) StartWebhook(ctx context.Context) {
	t.bot.StartWebhook(ctx)
}

// IsAllowed reports whether userID may interact with the bot. An empty
// allow-list means "allow everyone" (matches the teacher's convention).
func (t *TelegramChannel) IsAllowed(userID int64) bool {
	if len(t.allowedUserIDs) == 0 {
		return true
	}
	return t.allowedUserIDs[userID]
}

// Push sends text to the fixed target chat as HTML.
func (t *TelegramChannel) Push(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    t.targetChatID,
		Text:      ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	return err
}

// EnableExecLog turns on the exec-log toggle for the given window (the
// spec's "log on" chat command, default window 30 minutes).
func (t *TelegramChannel) EnableExecLog(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execLogUntil = time.Now().Add(window)
}

// DisableExecLog turns the toggle off immediately (the "log off" command).
func (t *TelegramChannel) DisableExecLog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execLogUntil = time.Time{}
}

// ExecLogEnabled reports whether the toggle window is currently active.
func (t *TelegramChannel) ExecLogEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Now().Before(t.execLogUntil)
}

// Notifier routes messages to both channels, applying notify-level
// filtering and the startup-push cooldown.
type Notifier struct {
	discord      *DiscordPusher
	telegram     *TelegramChannel
	startupFlagPath string
	startupCooldown time.Duration
}

// Config configures a Notifier.
type Config struct {
	Discord         *DiscordPusher
	Telegram        *TelegramChannel
	StartupFlagPath string
	StartupCooldown time.Duration // default 5 minutes
}

// New builds a Notifier.
func New(cfg Config) *Notifier {
	cooldown := cfg.StartupCooldown
	if cooldown == 0 {
		cooldown = 5 * time.Minute
	}
	return &Notifier{discord: cfg.Discord, telegram: cfg.Telegram, startupFlagPath: cfg.StartupFlagPath, startupCooldown: cooldown}
}

// Notify pushes text through every configured channel whose notify_level
// filter admits level, preferring the reliable Discord channel for
// info/warn push and the Telegram channel for anything interactive.
func (n *Notifier) Notify(ctx context.Context, level Level, notifyLevel types.NotifyLevel, text string) {
	logger := logging.For("notifier")
	if !Allowed(level, notifyLevel) {
		return
	}
	if level == LevelStartup && !n.startupAllowed() {
		return
	}
	if n.discord != nil {
		if err := n.discord.Push(text); err != nil {
			logger.Error().Err(err).Msg("discord push failed")
		}
	}
	if n.telegram != nil {
		if level == LevelExecutionLog && !n.telegram.ExecLogEnabled() {
			return
		}
		if err := n.telegram.Push(ctx, text); err != nil {
			logger.Error().Err(err).Msg("telegram push failed")
		}
	}
	if level == LevelStartup {
		n.markStartup()
	}
}

type startupFlag struct {
	LastPush time.Time `json:"last_push"`
}

func (n *Notifier) startupAllowed() bool {
	if n.startupFlagPath == "" {
		return true
	}
	var flag startupFlag
	ok, _ := statefile.ReadSnapshot(n.startupFlagPath, &flag)
	if !ok {
		return true
	}
	return time.Since(flag.LastPush) >= n.startupCooldown
}

func (n *Notifier) markStartup() {
	if n.startupFlagPath == "" {
		return
	}
	_ = statefile.WriteSnapshot(n.startupFlagPath, startupFlag{LastPush: time.Now()})
}
