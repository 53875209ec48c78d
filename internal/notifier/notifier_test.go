package notifier

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shipos/autonomous/internal/types"
)

func TestAllowedCriticalTierOnlyAdmitsCriticalLevels(t *testing.T) {
	if !Allowed(LevelError, types.NotifyCritical) {
		t.Fatalf("expected error to pass the critical filter")
	}
	if Allowed(LevelStatus, types.NotifyCritical) {
		t.Fatalf("expected status to be blocked by the critical filter")
	}
}

func TestAllowedStatusTierAddsStartupShutdownStatus(t *testing.T) {
	for _, lvl := range []Level{LevelStatus, LevelStartup, LevelShutdown, LevelError} {
		if !Allowed(lvl, types.NotifyStatus) {
			t.Fatalf("expected %s to pass the status filter", lvl)
		}
	}
	if Allowed(LevelUserResponse, types.NotifyStatus) {
		t.Fatalf("expected user_response to be blocked by the status filter")
	}
}

func TestAllowedResponsiveTierAddsUserResponse(t *testing.T) {
	if !Allowed(LevelUserResponse, types.NotifyResponsive) {
		t.Fatalf("expected user_response to pass the responsive filter")
	}
}

func TestAllowedAllTierAdmitsEverything(t *testing.T) {
	for _, lvl := range []Level{LevelStartup, LevelExecutionLog, LevelMemorySummary, LevelUserResponse} {
		if !Allowed(lvl, types.NotifyAll) {
			t.Fatalf("expected %s to pass the all filter", lvl)
		}
	}
}

func TestAllowedMinimalMatchesCriticalTier(t *testing.T) {
	if Allowed(LevelStatus, types.NotifyMinimal) {
		t.Fatalf("expected minimal to block non-critical levels same as critical tier")
	}
	if !Allowed(LevelError, types.NotifyMinimal) {
		t.Fatalf("expected minimal to admit error like the critical tier")
	}
}

func TestTelegramExecLogToggleWindow(t *testing.T) {
	ch := &TelegramChannel{}
	if ch.ExecLogEnabled() {
		t.Fatalf("expected exec log to start disabled")
	}
	ch.EnableExecLog(10 * time.Millisecond)
	if !ch.ExecLogEnabled() {
		t.Fatalf("expected exec log to be enabled within the window")
	}
	time.Sleep(20 * time.Millisecond)
	if ch.ExecLogEnabled() {
		t.Fatalf("expected exec log to expire after the window")
	}
}

func TestTelegramExecLogDisable(t *testing.T) {
	ch := &TelegramChannel{}
	ch.EnableExecLog(time.Hour)
	ch.DisableExecLog()
	if ch.ExecLogEnabled() {
		t.Fatalf("expected exec log to be off after explicit disable")
	}
}

func TestStartupCooldownBlocksDuplicatePush(t *testing.T) {
	dir := t.TempDir()
	n := New(Config{StartupFlagPath: filepath.Join(dir, "startup.json"), StartupCooldown: time.Hour})
	if !n.startupAllowed() {
		t.Fatalf("expected first startup push to be allowed")
	}
	n.markStartup()
	if n.startupAllowed() {
		t.Fatalf("expected a second startup push within the cooldown to be blocked")
	}
}

func TestStartupCooldownAllowsAfterExpiry(t *testing.T) {
	dir := t.TempDir()
	n := New(Config{StartupFlagPath: filepath.Join(dir, "startup.json"), StartupCooldown: -time.Second})
	n.markStartup()
	if !n.startupAllowed() {
		t.Fatalf("expected startup push to be allowed once the cooldown has elapsed")
	}
}

func TestNewDiscordPusherParsesWebhookURL(t *testing.T) {
	d, err := NewDiscordPusher("https://discord.com/api/webhooks/123456/abcDEF-token")
	if err != nil {
		t.Fatalf("NewDiscordPusher: %v", err)
	}
	if d.webhookID != "123456" || d.token != "abcDEF-token" {
		t.Fatalf("expected id/token to be parsed, got %q/%q", d.webhookID, d.token)
	}
}

func TestNewDiscordPusherRejectsMalformedURL(t *testing.T) {
	if _, err := NewDiscordPusher("https://discord.com/not-a-webhook"); err == nil {
		t.Fatalf("expected an error for a malformed webhook url")
	}
}
