// Package types holds the data shapes shared across subsystem boundaries.
// Every entity here is serialized to a state file (internal/statefile) by
// exactly one writer and read by value elsewhere.
package types

import "time"

// Mode is the process-wide operating mode. Exactly one is current at a time.
type Mode string

const (
	ModeAutonomous Mode = "autonomous"
	ModeUserFirst  Mode = "user_first"
	ModeMaintenance Mode = "maintenance"
	ModePowerSave  Mode = "power_save"
	ModeSafe       Mode = "safe"

	// Transient forced states. Only the watchdog or display may set these.
	ModeBoot      Mode = "boot"
	ModeStorm     Mode = "storm"
	ModeEmergency Mode = "emergency"
	ModeShutdown  Mode = "shutdown"
)

// ModeSource identifies who requested a mode switch.
type ModeSource string

const (
	SourceCalendar ModeSource = "calendar"
	SourceUser     ModeSource = "user"
	SourceSystem   ModeSource = "system"
	SourceHealth   ModeSource = "health"
	SourceFailsafe ModeSource = "failsafe"
)

// NotifyLevel controls the notifier's outbound filter.
type NotifyLevel string

const (
	NotifyAll        NotifyLevel = "all"
	NotifyCritical   NotifyLevel = "critical"
	NotifyStatus     NotifyLevel = "status"
	NotifyResponsive NotifyLevel = "responsive"
	NotifyMinimal    NotifyLevel = "minimal"
)

// PriorityBias hints the voice arbiter about non-talk priority handling.
type PriorityBias string

const (
	BiasSystem      PriorityBias = "system"
	BiasUser        PriorityBias = "user"
	BiasMaintenance PriorityBias = "maintenance"
	BiasNone        PriorityBias = "none"
	BiasSafety      PriorityBias = "safety"
)

// ModeConfig is the per-mode behavior contract every subsystem honors.
type ModeConfig struct {
	IterationIntervalSec  int          `json:"iteration_interval_sec"`
	NotifyLevel           NotifyLevel  `json:"notify_level"`
	AutonomousTasksEnabled bool        `json:"autonomous_tasks_enabled"`
	PriorityBias          PriorityBias `json:"priority_bias"`
}

// ModeSnapshot is the current-mode state file content.
type ModeSnapshot struct {
	Mode          Mode      `json:"mode"`
	Since         time.Time `json:"since"`
	Override      bool      `json:"override"`
	OverrideUntil time.Time `json:"override_until,omitempty"`
}

// ModeHistoryEntry is one append-only mode_history.jsonl line.
type ModeHistoryEntry struct {
	From      Mode       `json:"from"`
	To        Mode       `json:"to"`
	Reason    string     `json:"reason"`
	Source    ModeSource `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
}

// EventType classifies an inbox entry.
type EventType string

const (
	EventQuery EventType = "query"
	EventGoal  EventType = "goal"
)

// Event is one inbox entry: an external request awaiting the planner.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalHistoryEntry records a goal replacement.
type GoalHistoryEntry struct {
	PreviousGoal string    `json:"previous_goal"`
	NewGoal      string    `json:"new_goal"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
}

// MemoryRecord is one index.json entry.
type MemoryRecord struct {
	Topic     string    `json:"topic"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
}

// MemoryIndex is the regenerable index.json document.
type MemoryIndex struct {
	TotalMemories int                       `json:"total_memories"`
	Topics        map[string][]MemoryRecord `json:"topics"`
}

// DailyUsage is one calendar-day token/cost bucket.
type DailyUsage struct {
	Cost         float64 `json:"cost"`
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// UsageRecord is the billing/usage.json snapshot.
type UsageRecord struct {
	StartDate  string                `json:"start_date"` // YYYY-MM-DD
	TotalCost  float64               `json:"total_cost"`
	DailyUsage map[string]DailyUsage `json:"daily_usage"` // keyed by YYYY-MM-DD
}

// ConfirmationStatus is the lifecycle state of a cost-guard confirmation.
type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationDenied   ConfirmationStatus = "denied"
	ConfirmationExpired  ConfirmationStatus = "expired"
)

// Confirmation is a cost-guard confirmation record.
type Confirmation struct {
	ID                 string             `json:"id"`
	ActionDescription  string             `json:"action_description"`
	EstimatedCost      float64            `json:"estimated_cost"`
	CreatedAt          time.Time          `json:"created_at"`
	Status             ConfirmationStatus `json:"status"`
	ResponseTime       *time.Time         `json:"response_time,omitempty"`
}

// VoicePriority orders the speak queue. Lower value speaks first.
type VoicePriority int

const (
	PriorityTalk         VoicePriority = 1
	PriorityEmergency    VoicePriority = 2
	PriorityNotification VoicePriority = 3
	PriorityMonologue    VoicePriority = 4
)

// VoiceRequest is one entry in the speak priority queue.
type VoiceRequest struct {
	Text       string
	Priority   VoicePriority
	Volume     float64
	Category   string
	EnqueuedAt time.Time
}

// AudioState is the voice arbiter's monotonic playback state machine.
type AudioState string

const (
	AudioIdle      AudioState = "idle"
	AudioListening AudioState = "listening"
	AudioThinking  AudioState = "thinking"
	AudioSpeaking  AudioState = "speaking"
)

// AudioStateSnapshot is the ai-audio-state / ai-state file content.
type AudioStateSnapshot struct {
	State     AudioState `json:"state"`
	Since     time.Time  `json:"since"`
	Face      string     `json:"face,omitempty"`
}

// AudioCommand is the shipos-audio-cmd snapshot: a single chat-originated
// instruction for the voice arbiter, written by the webhook server and
// polled by the arbiter every two seconds (spec §4.8). Timestamp is the
// dedup key: the poller ignores a file whose timestamp it has already
// dispatched.
type AudioCommand struct {
	Action    string    `json:"action"`
	Text      string    `json:"text,omitempty"`
	Voice     string    `json:"voice,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	AudioCmdSpeak           = "speak"
	AudioCmdMonologueMute   = "monologue_mute"
	AudioCmdMonologueUnmute = "monologue_unmute"
	AudioCmdStatusRead      = "status_read"
	AudioCmdChangeVoice     = "change_voice"
)

// HealthStatus is a probe or rollup result level.
type HealthStatus string

const (
	HealthOK       HealthStatus = "OK"
	HealthWarn     HealthStatus = "WARN"
	HealthCritical HealthStatus = "CRITICAL"
	HealthUnknown  HealthStatus = "UNKNOWN"
)

// rank returns an ordering for worst-of comparisons: OK < WARN < CRITICAL,
// with UNKNOWN sorting below OK (used only when the sample set is empty).
func (s HealthStatus) rank() int {
	switch s {
	case HealthCritical:
		return 3
	case HealthWarn:
		return 2
	case HealthOK:
		return 1
	default:
		return 0
	}
}

// Worse returns whichever of a, b is the more severe status.
func Worse(a, b HealthStatus) HealthStatus {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// HealthSample is one probe result.
type HealthSample struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Value     float64      `json:"value"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// MoodSample is a deterministic derived mood score.
type MoodSample struct {
	Score     int               `json:"score"`
	Emoji     string            `json:"emoji"`
	Line      string            `json:"line"`
	Reasons   map[string]string `json:"reasons"`
	Timestamp time.Time         `json:"timestamp"`
}

// CommandAuditEntry is one line of the executor's audit JSONL
// (state/exec_audit.jsonl as wired by the supervisor).
type CommandAuditEntry struct {
	Timestamp  time.Time `json:"ts"`
	Argv       []string  `json:"argv"`
	Allowed    bool      `json:"allowed"`
	ReturnCode int       `json:"returncode"`
	Reason     string    `json:"reason,omitempty"`
}

// RecoveryEntry is one state/recovery_log.jsonl line written by the watchdog.
type RecoveryEntry struct {
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// LineStatusSnapshot records the last inbound/outbound chat pulse time for
// the display's brief RX/TX flash overlay.
type LineStatusSnapshot struct {
	LastRX time.Time `json:"last_rx"`
	LastTX time.Time `json:"last_tx"`
}

// Plan is the JSON object the LLM must return each planner iteration.
type Plan struct {
	Say          string            `json:"say"`
	Cmd          []string          `json:"cmd"`
	MemoryWrite  []MemoryWriteItem `json:"memory_write"`
	DiaryAppend  string            `json:"diary_append"`
	NextGoal     string            `json:"next_goal"`
	SelfImprove  SelfImproveRequest `json:"self_improve"`
}

// MemoryWriteItem is one memory_write[] entry in a Plan.
type MemoryWriteItem struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// SelfImproveRequest is the self_improve{} object in a Plan.
type SelfImproveRequest struct {
	Enabled    bool   `json:"enabled"`
	TargetFile string `json:"target_file"`
	Request    string `json:"request"`
}
