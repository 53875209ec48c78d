// Package config loads the runtime's environment and YAML configuration.
// The env-var loading shape (required-field validation, comma-separated
// list parsing) follows the teacher's original Load() function; the YAML
// overlay is new, used for the larger structured tables (allow-list roots,
// scheduler intervals, inbox patterns, voice settings) that don't fit
// comfortably as env vars. Mode configs are not part of it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full process configuration: required secrets from the
// environment plus the optional YAML overlay.
type Config struct {
	// LLM / cost guard
	OpenAIAPIKey       string
	QuickResponseModel string

	// Chat providers
	DiscordWebhookURL       string
	TelegramBotToken        string
	AllowedUserIDs          []int64
	LineChannelAccessToken  string
	LineChannelSecret       string
	LineTargetUserID        string
	LineExecLogEnabled      bool

	// Calendar-driven mode switching
	CalendarICSURL string

	// Inbound webhook transport (Telegram update delivery)
	WebhookListenAddr string
	WebhookSecret     string

	// Filesystem layout root
	RootDir string

	// YAML overlay, optional.
	Executor  ExecutorConfig  `yaml:"executor"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Voice     VoiceConfig     `yaml:"voice"`
}

// VoiceConfig configures the push-to-talk pipeline, ambient monologue, and
// macropad input device for the voice arbiter.
type VoiceConfig struct {
	InputDevicePath string `yaml:"input_device_path"`
	InputDeviceName string `yaml:"input_device_name"`

	WhisperCppBinary string `yaml:"whisper_cpp_binary"`
	WhisperCppModel  string `yaml:"whisper_cpp_model"`
	WhisperLanguage  string `yaml:"whisper_language"`

	PiperBinary string  `yaml:"piper_binary"`
	PiperModel  string  `yaml:"piper_model"`
	PiperSpeed  float64 `yaml:"piper_speed"`

	MonologueMinIntervalSec int  `yaml:"monologue_min_interval_sec"`
	MonologueMaxIntervalSec int  `yaml:"monologue_max_interval_sec"`
	QuietHoursStart         int  `yaml:"quiet_hours_start"`
	QuietHoursEnd           int  `yaml:"quiet_hours_end"`
	MonologueEnabled        bool `yaml:"monologue_enabled"`
}

// ExecutorConfig configures the command sandbox's path allow-list roots.
type ExecutorConfig struct {
	AllowedRoots    []string `yaml:"allowed_roots"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	MaxOutputBytes  int      `yaml:"max_output_bytes"`
}

// SchedulerConfig holds the scheduler's interval settings. Only
// WatchdogIntervalSec and CalendarCheckSec are read; the archive, fast-tier
// and health-probe tasks run at the fixed intervals set by
// scheduler.RegisterDefaults, and the other three fields are not read.
type SchedulerConfig struct {
	ArchiveIntervalSec     int `yaml:"archive_interval_sec"`
	FastTierCheckSec       int `yaml:"fast_tier_check_sec"`
	HealthProbeIntervalSec int `yaml:"health_probe_interval_sec"`
	WatchdogIntervalSec    int `yaml:"watchdog_interval_sec"`
	CalendarCheckSec       int `yaml:"calendar_check_sec"`
}

// InboxConfig holds the configurable query/goal classification pattern
// table, generalizing the prototype's hard-coded Japanese literal list.
type InboxConfig struct {
	QueryPatterns        []string `yaml:"query_patterns"`
	ShortTextMaxLen       int     `yaml:"short_text_max_len"`
	ImperativeEndings    []string `yaml:"imperative_endings"`
	CompletionMarkers    []string `yaml:"completion_markers"`
}

func defaults() Config {
	return Config{
		RootDir:           "/var/lib/shipos",
		WebhookListenAddr: ":8443",
		Executor: ExecutorConfig{
			AllowedRoots:   []string{"/var/lib/shipos", "/home"},
			TimeoutSec:     30,
			MaxOutputBytes: 10000,
		},
		Scheduler: SchedulerConfig{
			ArchiveIntervalSec:     24 * 3600,
			FastTierCheckSec:       3600,
			HealthProbeIntervalSec: 300,
			WatchdogIntervalSec:    600,
			CalendarCheckSec:       300,
		},
		Inbox: InboxConfig{
			QueryPatterns: []string{
				`[?？]`, `(教えて|おしえて)`, `(天気|気温|温度)`, `^(何|なに|なん)`, `^(いつ|どこ|誰|だれ)`,
				`(調べて|しらべて)`, `(どう|どんな|どれ)`, `(ある|ない|できる)\s*[?？]`, `(とは|って何|ってなに)`,
				`(意味|違い)`, `(わかる|知って|しって)`,
				`^(what|who|where|when|why|how)\b`, `\b(can you tell me|do you know)\b`,
			},
			ShortTextMaxLen:   10,
			ImperativeEndings: []string{"して", "しろ", "せよ", "する", "please", "now", "!"},
			CompletionMarkers: []string{"done", "completed", "finished"},
		},
		Voice: VoiceConfig{
			InputDevicePath:         "/dev/input/event12",
			WhisperCppBinary:        "/opt/whisper.cpp/main",
			WhisperCppModel:         "/opt/whisper.cpp/models/ggml-tiny.bin",
			WhisperLanguage:         "auto",
			PiperBinary:             "/opt/piper/piper",
			PiperModel:              "/opt/piper/en_US-amy-medium.onnx",
			PiperSpeed:              1.0,
			MonologueMinIntervalSec: 7 * 60,
			MonologueMaxIntervalSec: 25 * 60,
			QuietHoursStart:         22,
			QuietHoursEnd:           6,
			MonologueEnabled:        true,
		},
	}
}

// Load reads required secrets from the environment, then overlays an
// optional YAML file named by SHIPOS_CONFIG (default <root>/config/shipos.yaml).
func Load() (*Config, error) {
	cfg := defaults()

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg.DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	if cfg.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("DISCORD_WEBHOOK_URL is required")
	}
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.LineChannelAccessToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	cfg.LineChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	cfg.LineTargetUserID = os.Getenv("LINE_TARGET_USER_ID")
	cfg.CalendarICSURL = os.Getenv("CALENDAR_ICS_URL")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if addr := os.Getenv("WEBHOOK_LISTEN_ADDR"); addr != "" {
		cfg.WebhookListenAddr = addr
	}
	cfg.QuickResponseModel = os.Getenv("QUICK_RESPONSE_MODEL")
	if cfg.QuickResponseModel == "" {
		cfg.QuickResponseModel = "gpt-4.1-mini"
	}

	if v := os.Getenv("LINE_EXEC_LOG_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LINE_EXEC_LOG_ENABLED %q: %w", v, err)
		}
		cfg.LineExecLogEnabled = b
	}

	if ids := os.Getenv("ALLOWED_USER_IDS"); ids != "" {
		for _, idStr := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q: %w", idStr, err)
			}
			cfg.AllowedUserIDs = append(cfg.AllowedUserIDs, id)
		}
	}

	if root := os.Getenv("SHIPOS_ROOT"); root != "" {
		cfg.RootDir = root
	}

	yamlPath := os.Getenv("SHIPOS_CONFIG")
	if yamlPath == "" {
		yamlPath = cfg.RootDir + "/config/shipos.yaml"
	}
	if data, err := os.ReadFile(yamlPath); err == nil {
		var overlay Config
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
		mergeOverlay(&cfg, &overlay)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", yamlPath, err)
	}

	return &cfg, nil
}

func mergeOverlay(cfg, overlay *Config) {
	if len(overlay.Executor.AllowedRoots) > 0 {
		cfg.Executor.AllowedRoots = overlay.Executor.AllowedRoots
	}
	if overlay.Executor.TimeoutSec > 0 {
		cfg.Executor.TimeoutSec = overlay.Executor.TimeoutSec
	}
	if overlay.Executor.MaxOutputBytes > 0 {
		cfg.Executor.MaxOutputBytes = overlay.Executor.MaxOutputBytes
	}
	if overlay.Scheduler.ArchiveIntervalSec > 0 {
		cfg.Scheduler.ArchiveIntervalSec = overlay.Scheduler.ArchiveIntervalSec
	}
	if overlay.Scheduler.FastTierCheckSec > 0 {
		cfg.Scheduler.FastTierCheckSec = overlay.Scheduler.FastTierCheckSec
	}
	if overlay.Scheduler.HealthProbeIntervalSec > 0 {
		cfg.Scheduler.HealthProbeIntervalSec = overlay.Scheduler.HealthProbeIntervalSec
	}
	if overlay.Scheduler.WatchdogIntervalSec > 0 {
		cfg.Scheduler.WatchdogIntervalSec = overlay.Scheduler.WatchdogIntervalSec
	}
	if overlay.Scheduler.CalendarCheckSec > 0 {
		cfg.Scheduler.CalendarCheckSec = overlay.Scheduler.CalendarCheckSec
	}
	if len(overlay.Inbox.QueryPatterns) > 0 {
		cfg.Inbox.QueryPatterns = overlay.Inbox.QueryPatterns
	}
	if overlay.Inbox.ShortTextMaxLen > 0 {
		cfg.Inbox.ShortTextMaxLen = overlay.Inbox.ShortTextMaxLen
	}
	if len(overlay.Inbox.ImperativeEndings) > 0 {
		cfg.Inbox.ImperativeEndings = overlay.Inbox.ImperativeEndings
	}
	if len(overlay.Inbox.CompletionMarkers) > 0 {
		cfg.Inbox.CompletionMarkers = overlay.Inbox.CompletionMarkers
	}
	if overlay.Voice.InputDevicePath != "" {
		cfg.Voice.InputDevicePath = overlay.Voice.InputDevicePath
	}
	if overlay.Voice.InputDeviceName != "" {
		cfg.Voice.InputDeviceName = overlay.Voice.InputDeviceName
	}
	if overlay.Voice.WhisperCppBinary != "" {
		cfg.Voice.WhisperCppBinary = overlay.Voice.WhisperCppBinary
	}
	if overlay.Voice.WhisperCppModel != "" {
		cfg.Voice.WhisperCppModel = overlay.Voice.WhisperCppModel
	}
	if overlay.Voice.WhisperLanguage != "" {
		cfg.Voice.WhisperLanguage = overlay.Voice.WhisperLanguage
	}
	if overlay.Voice.PiperBinary != "" {
		cfg.Voice.PiperBinary = overlay.Voice.PiperBinary
	}
	if overlay.Voice.PiperModel != "" {
		cfg.Voice.PiperModel = overlay.Voice.PiperModel
	}
	if overlay.Voice.PiperSpeed > 0 {
		cfg.Voice.PiperSpeed = overlay.Voice.PiperSpeed
	}
	if overlay.Voice.MonologueMinIntervalSec > 0 {
		cfg.Voice.MonologueMinIntervalSec = overlay.Voice.MonologueMinIntervalSec
	}
	if overlay.Voice.MonologueMaxIntervalSec > 0 {
		cfg.Voice.MonologueMaxIntervalSec = overlay.Voice.MonologueMaxIntervalSec
	}
}

// WatchdogInterval returns the configured watchdog sweep interval as a
// time.Duration for --watchdog daemon mode.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Scheduler.WatchdogIntervalSec) * time.Second
}
