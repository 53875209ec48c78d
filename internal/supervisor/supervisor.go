// Package supervisor wires every subsystem into one running process and
// owns its goroutine lifecycle. The construction order and the graceful
// shutdown pattern (context.WithCancel cancelled from a signal handler
// goroutine) follow the teacher's cmd/ricochet/main.go runServer().
package supervisor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shipos/autonomous/internal/calendar"
	"github.com/shipos/autonomous/internal/config"
	"github.com/shipos/autonomous/internal/costguard"
	"github.com/shipos/autonomous/internal/display"
	"github.com/shipos/autonomous/internal/executor"
	"github.com/shipos/autonomous/internal/health"
	"github.com/shipos/autonomous/internal/inbox"
	"github.com/shipos/autonomous/internal/llm"
	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/mood"
	"github.com/shipos/autonomous/internal/notifier"
	"github.com/shipos/autonomous/internal/organizer"
	"github.com/shipos/autonomous/internal/planner"
	"github.com/shipos/autonomous/internal/scheduler"
	"github.com/shipos/autonomous/internal/selfmod"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/storagetier"
	"github.com/shipos/autonomous/internal/types"
	"github.com/shipos/autonomous/internal/voice"
	"github.com/shipos/autonomous/internal/watchdog"
	"github.com/shipos/autonomous/internal/webhook"
)

// Supervisor owns every constructed subsystem and the goroutines that
// drive them. It is built once by Run and torn down on context cancel.
type Supervisor struct {
	cfg *config.Config

	modes     *modemgr.Manager
	executor  *executor.Executor
	memory    *memory.Manager
	costGuard *costguard.Guard
	inbox     *inbox.Inbox
	llmClient llm.Client
	planner   *planner.Planner
	health    *health.Monitor
	scheduler *scheduler.Scheduler
	watchdog  *watchdog.Watchdog
	tierer    *storagetier.Tierer
	cal       *calendar.Sync
	notify    *notifier.Notifier
	telegram  *notifier.TelegramChannel
	web       *webhook.Server
	arbiter   *voice.Arbiter
	disp      *display.Model

	wg sync.WaitGroup
}

func statePath(cfg *config.Config, rel string) string {
	return filepath.Join(cfg.RootDir, "state", rel)
}

// Build constructs every subsystem from cfg but starts nothing yet.
func Build(cfg *config.Config) (*Supervisor, error) {
	logger := logging.For("supervisor")
	s := &Supervisor{cfg: cfg}

	s.modes = modemgr.New(modemgr.Paths{
		Snapshot: statePath(cfg, "ship_mode.json"),
		History:  statePath(cfg, "mode_history.jsonl"),
	})

	s.executor = executor.New(cfg.Executor.AllowedRoots, time.Duration(cfg.Executor.TimeoutSec)*time.Second, cfg.Executor.MaxOutputBytes, cfg.RootDir, statePath(cfg, "exec_audit.jsonl"))

	mem, err := memory.New(filepath.Join(cfg.RootDir, "memory"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: memory: %w", err)
	}
	s.memory = mem

	guard, err := costguard.New(filepath.Join(cfg.RootDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: costguard: %w", err)
	}
	s.costGuard = guard

	classifier := inbox.NewClassifier(cfg.Inbox.QueryPatterns, cfg.Inbox.ShortTextMaxLen, cfg.Inbox.ImperativeEndings)
	s.inbox = inbox.New(statePath(cfg, "inbox.jsonl"), filepath.Join(cfg.RootDir, "state", "inbox_history"), classifier)

	s.llmClient = llm.NewOpenAIClient(cfg.OpenAIAPIKey, "")

	var modifier selfmod.SelfModifier
	modifier = selfmod.New(s.llmClient, cfg.QuickResponseModel, cfg.RootDir)

	discord, err := notifier.NewDiscordPusher(cfg.DiscordWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("supervisor: discord notifier: %w", err)
	}
	if cfg.TelegramBotToken != "" {
		var targetID int64
		if len(cfg.AllowedUserIDs) > 0 {
			targetID = cfg.AllowedUserIDs[0]
		}
		s.telegram, err = notifier.NewTelegramChannel(cfg.TelegramBotToken, cfg.AllowedUserIDs, targetID,
			tgbot.WithDefaultHandler(s.handleTelegramUpdate))
		if err != nil {
			return nil, fmt.Errorf("supervisor: telegram notifier: %w", err)
		}
	}
	s.notify = notifier.New(notifier.Config{
		Discord:         discord,
		Telegram:        s.telegram,
		StartupFlagPath: statePath(cfg, "startup_notified"),
	})

	s.planner = planner.New(planner.Deps{
		Inbox:        s.inbox,
		CostGuard:    s.costGuard,
		Memory:       s.memory,
		Executor:     s.executor,
		Modes:        s.modes,
		LLM:          s.llmClient,
		SelfModifier: modifier,
		Notify:       s.notify,
	}, planner.Config{
		Model:              cfg.QuickResponseModel,
		GoalHistoryPath:    statePath(cfg, "goal_history.jsonl"),
		GoalSnapshotPath:   statePath(cfg, "current_goal.json"),
		LegacyCommandsPath: statePath(cfg, "user_commands.jsonl"),
	}, "Observe system state and stand by for instructions.")

	s.health = health.New(health.Config{
		HistoryPath:   statePath(cfg, "health_history.jsonl"),
		ThermalZone:   "/sys/class/thermal/thermal_zone0/temp",
		RootPath:      cfg.RootDir,
		ArchivePath:   filepath.Join(cfg.RootDir, "archive"),
		NetworkHost:   "1.1.1.1",
		NetworkPort:   "443",
		ServiceUnit:   "shipos.service",
		HeartbeatPath: statePath(cfg, "heartbeat"),
	})

	s.cal = calendar.New(calendar.Config{
		ICSURL:       cfg.CalendarICSURL,
		CachePath:    statePath(cfg, "calendar_cache.json"),
		SyncInterval: time.Hour,
	})

	s.scheduler = scheduler.New(s.cal, s.modes, time.Duration(cfg.Scheduler.CalendarCheckSec)*time.Second)

	s.tierer = storagetier.New(storagetier.Config{
		FastTierPath:        cfg.RootDir,
		ArchivePath:         filepath.Join(cfg.RootDir, "archive"),
		AccessThresholdDays: 30,
	})

	s.watchdog = watchdog.New(watchdog.Config{
		ServiceUnit:     "shipos.service",
		LogDir:          filepath.Join(cfg.RootDir, "logs"),
		CurrentLogName:  "current.log",
		MemoryDir:       filepath.Join(cfg.RootDir, "memory"),
		BaseDir:         cfg.RootDir,
		FallbackDir:     filepath.Join(cfg.RootDir, "state", "fallback"),
		RecoveryLog:     statePath(cfg, "recovery_log.jsonl"),
	}, s.memory)

	s.web = webhook.New(webhook.Deps{
		Modes:          s.modes,
		CostGuard:      s.costGuard,
		Health:         s.health,
		Memory:         s.memory,
		Inbox:          s.inbox,
		Notify:         s.notify,
		LineStatusPath: statePath(cfg, "line_status.json"),
		AudioCmdPath:   statePath(cfg, "audio_cmd.json"),
		ExecLogEnable: func(d time.Duration) {
			if s.telegram != nil {
				s.telegram.EnableExecLog(d)
			}
		},
		ExecLogDisable: func() {
			if s.telegram != nil {
				s.telegram.DisableExecLog()
			}
		},
	})

	s.arbiter = buildVoiceArbiter(cfg, s)

	s.disp = display.New(display.Paths{
		ModeSnapshot:  statePath(cfg, "ship_mode.json"),
		GoalSnapshot:  statePath(cfg, "current_goal.json"),
		HealthHistory: statePath(cfg, "health_history.jsonl"),
		AudioState:    statePath(cfg, "audio_state.json"),
		LineStatus:    statePath(cfg, "line_status.json"),
		NetworkState:  statePath(cfg, "network_state.json"),
		MoodLog:       statePath(cfg, "mood_log.jsonl"),
	}, display.NewTerminalSink(), 100*time.Millisecond)

	logger.Info().Msg("all subsystems constructed")
	return s, nil
}

func buildVoiceArbiter(cfg *config.Config, s *Supervisor) *voice.Arbiter {
	logger := logging.For("voice")

	var stt voice.STT
	whisperSTT, err := voice.NewWhisperCppSTT(cfg.Voice.WhisperCppBinary, cfg.Voice.WhisperCppModel, cfg.Voice.WhisperLanguage, 4)
	if err != nil {
		logger.Warn().Err(err).Msg("whisper.cpp unavailable, falling back to hosted transcription only")
		stt = voice.NewOpenAIWhisperSTT(cfg.OpenAIAPIKey, "whisper-1")
	} else {
		stt = &voice.FallbackSTT{Primary: whisperSTT, Secondary: voice.NewOpenAIWhisperSTT(cfg.OpenAIAPIKey, "whisper-1")}
	}

	var tts voice.TTS
	piperTTS, err := voice.NewPiperTTS(cfg.Voice.PiperBinary, cfg.Voice.PiperModel, "", cfg.Voice.PiperSpeed, 0)
	if err != nil {
		logger.Warn().Err(err).Msg("piper unavailable, falling back to hosted synthesis only")
		tts = voice.NewOpenAITTS(cfg.OpenAIAPIKey, "tts-1", "alloy")
	} else {
		tts = &voice.FallbackTTS{Primary: piperTTS, Secondary: voice.NewOpenAITTS(cfg.OpenAIAPIKey, "tts-1", "alloy")}
	}

	recorder := voice.NewRecorder(16000, 1, "default", 30*time.Second)
	monologue := voice.NewMonologueEngine(
		time.Duration(cfg.Voice.MonologueMinIntervalSec)*time.Second,
		time.Duration(cfg.Voice.MonologueMaxIntervalSec)*time.Second,
		cfg.Voice.QuietHoursStart, cfg.Voice.QuietHoursEnd,
		cfg.Voice.MonologueEnabled,
	)

	deps := voice.Deps{
		STT:       stt,
		TTS:       tts,
		Recorder:  recorder,
		Monologue: monologue,
		OnTalk: func(ctx context.Context, text string) (string, error) {
			s.planner.UpdateGoal(text, "voice")
			return "Got it, I'll work on that.", nil
		},
		HealthSamples: func() []types.HealthSample { return s.health.RunAll(context.Background()) },
		Logbook:       func() (string, error) { return s.memory.ReadDiary(5) },
		StopService: func(ctx context.Context) error {
			logger.Warn().Msg("emergency stop requested over voice")
			os.Exit(0)
			return nil
		},
	}

	deps.Listener = voice.NewListener(cfg.Voice.InputDevicePath, nil)
	return voice.New(voice.Config{
		StatePath:    statePath(cfg, "audio_state.json"),
		AudioCmdPath: statePath(cfg, "audio_cmd.json"),
	}, deps)
}

// Run builds every subsystem, starts one goroutine per worker, and blocks
// until SIGINT/SIGTERM, tearing everything down gracefully.
func Run(cfg *config.Config) error {
	logger := logging.For("supervisor")

	s, err := Build(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	s.scheduler.RegisterDefaults(
		func() (any, error) { return s.tierer.ArchiveColdFiles(false) },
		func() (any, error) {
			usage, err := s.tierer.FastTierUsage()
			if err != nil || usage.Percent < 80 {
				return usage, err
			}
			return s.tierer.ArchiveColdFiles(false)
		},
		func() (any, error) { return s.health.RunAll(ctx), nil },
		func() (any, error) { return s.watchdog.CheckAndRecover(ctx), nil },
		func() (any, error) { return nil, s.pushWeeklyDigest(ctx) },
		func() (any, error) { return s.sampleMood(ctx), nil },
		func() (any, error) { return nil, s.sweepOrganizer() },
	)

	s.arbiter.Start(ctx)
	defer s.arbiter.Stop()

	s.wg.Add(1)
	go s.runPlannerLoop(ctx)

	s.wg.Add(1)
	go s.runSchedulerLoop(ctx)

	s.wg.Add(1)
	go s.runWatchdogLoop(ctx)

	s.wg.Add(1)
	go s.runDisplayLoop(ctx)

	if s.telegram != nil {
		s.wg.Add(1)
		go s.runWebhookTransport(ctx)
	}

	if s.notify != nil {
		s.notify.Notify(ctx, notifier.LevelStartup, types.NotifyAll, "shipos runtime online")
	}

	<-ctx.Done()
	logger.Info().Msg("waiting for workers to stop")
	s.wg.Wait()
	logger.Info().Msg("shutdown complete")
	return nil
}

func (s *Supervisor) runPlannerLoop(ctx context.Context) {
	defer s.wg.Done()
	logger := logging.For("planner")
	for {
		interval := time.Duration(s.modes.GetConfig().IterationIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if err := s.planner.RunIteration(ctx); err != nil {
				logger.Error().Err(err).Msg("iteration failed")
			}
		}
	}
}

func (s *Supervisor) runSchedulerLoop(ctx context.Context) {
	defer s.wg.Done()
	logger := logging.For("scheduler")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sw := s.scheduler.CheckCalendarMode(); sw != nil {
				logger.Info().Str("mode", string(sw.New)).Msg("calendar-driven mode switch")
			}
			for _, res := range s.scheduler.RunDue(s.modes.Current().Mode) {
				if !res.Success {
					logger.Warn().Str("task", res.Name).Str("error", res.Error).Msg("scheduled task failed")
				}
			}
		}
	}
}

func (s *Supervisor) runWatchdogLoop(ctx context.Context) {
	defer s.wg.Done()
	logger := logging.For("watchdog")
	interval := s.cfg.WatchdogInterval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if err := watchdog.Run(ctx, s.watchdog, interval, func(actions []watchdog.Action) {
		for _, a := range actions {
			logger.Info().Str("action", a.Action).Bool("success", a.Success).Str("message", a.Message).Msg("recovery action taken")
		}
	}); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("watchdog loop exited")
	}
}

func (s *Supervisor) runDisplayLoop(ctx context.Context) {
	defer s.wg.Done()
	program := tea.NewProgram(s.disp)
	go func() {
		<-ctx.Done()
		program.Quit()
	}()
	if _, err := program.Run(); err != nil {
		log.Printf("display: %v", err)
	}
}

// runWebhookTransport mounts the Telegram update webhook on an HTTP
// listener and starts the bot's webhook dispatch loop (spec §4.14's
// "go-telegram/bot WebhookHandler() plugs directly into an http.ServeMux"
// wiring).
func (s *Supervisor) runWebhookTransport(ctx context.Context) {
	defer s.wg.Done()
	logger := logging.For("webhook")

	mux := http.NewServeMux()
	webhook.Mount(mux, "/telegram", s.cfg.WebhookSecret, s.telegram.WebhookHandler())
	srv := &http.Server{Addr: s.cfg.WebhookListenAddr, Handler: mux}

	go s.telegram.StartWebhook(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("webhook listener exited")
	}
}

// WriteNetworkSnapshot records the machine's current addresses for the
// display controller's network row.
func (s *Supervisor) WriteNetworkSnapshot(snap display.NetworkSnapshot) error {
	return statefile.WriteSnapshot(statePath(s.cfg, "network_state.json"), snap)
}

// pushWeeklyDigest is the scheduled weekly_digest task: render the memory
// diary as a ship's-log digest and push it through the notifier, rather
// than the on-demand `shipos digest` CLI command which only prints to a
// terminal.
func (s *Supervisor) pushWeeklyDigest(ctx context.Context) error {
	text, err := s.memory.WeeklyDigest()
	if err != nil {
		return err
	}
	s.notify.Notify(ctx, notifier.LevelStatus, s.modes.GetConfig().NotifyLevel, text)
	return nil
}

// sampleMood computes the deterministic mood score from the latest health
// readings and the time since the last inbound chat touch, and appends it
// to the mood JSONL log (spec.md §3 Mood sample). Idle time is derived from
// the existing line-status pulse (internal/webhook's pulseRX) rather than a
// separate last-touch state file, since that file already records exactly
// this fact.
func (s *Supervisor) sampleMood(ctx context.Context) types.MoodSample {
	samples := s.health.RunAll(ctx)
	var cpuTemp, diskPct float64
	netOK := true
	for _, sample := range samples {
		switch sample.Name {
		case "cpu_temp":
			cpuTemp = sample.Value
		case "disk_root":
			diskPct = sample.Value
		case "network":
			netOK = sample.Status == types.HealthOK
		}
	}

	idleMinutes := 0.0
	var line types.LineStatusSnapshot
	if ok, _ := statefile.ReadSnapshot(statePath(s.cfg, "line_status.json"), &line); ok && !line.LastRX.IsZero() {
		idleMinutes = time.Since(line.LastRX).Minutes()
	}

	sample := mood.Compute(mood.Inputs{CPUTempC: cpuTemp, DiskPercent: diskPct, NetOK: netOK, IdleMinutes: idleMinutes})
	if err := mood.Log(statePath(s.cfg, "mood_log.jsonl"), sample); err != nil {
		logging.For("supervisor").Error().Err(err).Msg("failed to log mood sample")
	}
	return sample
}

// sweepOrganizer classifies loose files under the fast tier's nas/
// directory and writes a proposed move plan to memory for the planner to
// act on through its own cmd[] path; it never moves a file itself.
func (s *Supervisor) sweepOrganizer() error {
	root := filepath.Join(s.cfg.RootDir, "nas")
	proposals, err := organizer.Classify(root)
	if err != nil {
		return err
	}
	plan := organizer.RenderPlan(proposals)
	return s.memory.Write(fmt.Sprintf("organizer_%s.md", time.Now().Format("20060102")), plan)
}

// handleTelegramUpdate is the bot's default handler, registered at
// construction time via bot.WithDefaultHandler. It runs the inbound text
// through the webhook command vocabulary and pushes the reply back, the
// same mount-and-dispatch shape the teacher uses for its own chat bot.
func (s *Supervisor) handleTelegramUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if update.Message == nil || s.web == nil {
		return
	}
	userID := update.Message.From.ID
	if s.telegram != nil && !s.telegram.IsAllowed(userID) {
		return
	}
	reply := s.web.Handle(ctx, webhook.TextEvent{
		UserID: strconv.FormatInt(userID, 10),
		Text:   update.Message.Text,
	})
	if reply.Text != "" && s.telegram != nil {
		if err := s.telegram.Push(ctx, reply.Text); err != nil {
			logging.For("webhook").Warn().Err(err).Msg("failed to push telegram reply")
		}
	}
}
