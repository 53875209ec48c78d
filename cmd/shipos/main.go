// Command shipos is the runtime's entrypoint: a cobra command tree wrapping
// the supervisor (the always-on daemon), the watchdog sweep, mode control,
// and first-time installation. Generalized from the teacher's single-binary
// cmd/ricochet/main.go, which dispatched on os.Args[1] by hand; cobra
// replaces that hand-rolled switch with a real subcommand tree while
// keeping the same "install / run / help" shape.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/shipos/autonomous/internal/config"
	"github.com/shipos/autonomous/internal/install"
	"github.com/shipos/autonomous/internal/logging"
	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/modemgr"
	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/supervisor"
	"github.com/shipos/autonomous/internal/types"
	"github.com/shipos/autonomous/internal/watchdog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shipos",
		Short: "Always-on autonomous agent runtime",
		// No subcommand and no piped stdin: a human launched the binary by
		// hand rather than from the service unit, so show help instead of
		// silently running the daemon in their terminal.
		RunE: func(cmd *cobra.Command, args []string) error {
			if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return cmd.Help()
			}
			return runDaemon()
		},
	}

	root.AddCommand(
		newRunCmd(),
		newWatchdogCmd(),
		newModeCmd(),
		newInstallCmd(),
		newDigestCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full supervisor (all C1-C15 components)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return supervisor.Run(cfg)
}

func newWatchdogCmd() *cobra.Command {
	var intervalSec int
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run only the self-repair sweep, repeating every interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			interval := time.Duration(intervalSec) * time.Second
			if interval <= 0 {
				interval = cfg.WatchdogInterval()
			}

			mem, err := memory.New(cfg.RootDir + "/memory")
			if err != nil {
				return fmt.Errorf("memory: %w", err)
			}
			logger := logging.For("watchdog")
			w := watchdog.New(watchdog.Config{
				ServiceUnit:    "shipos.service",
				LogDir:         cfg.RootDir + "/logs",
				CurrentLogName: "current.log",
				MemoryDir:      cfg.RootDir + "/memory",
				BaseDir:        cfg.RootDir,
				FallbackDir:    cfg.RootDir + "/state/fallback",
				RecoveryLog:    cfg.RootDir + "/state/recovery_log.jsonl",
			}, mem)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			return watchdog.Run(ctx, w, interval, func(actions []watchdog.Action) {
				for _, a := range actions {
					logger.Info().Str("action", a.Action).Bool("success", a.Success).Msg("sweep result")
				}
			})
		},
	}
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "sweep interval in seconds (default: configured scheduler.watchdog_interval_sec)")
	return cmd
}

func newModeCmd() *cobra.Command {
	var overrideMinutes int
	cmd := &cobra.Command{
		Use:   "mode [name]",
		Short: "Print or force the current operating mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			manager := modemgr.New(modemgr.Paths{
				Snapshot: cfg.RootDir + "/state/ship_mode.json",
				History:  cfg.RootDir + "/state/mode_history.jsonl",
			})

			if len(args) == 0 {
				snap := manager.Current()
				fmt.Printf("mode: %s (since %s)\n", snap.Mode, snap.Since.Format(time.RFC3339))
				return nil
			}

			target := types.Mode(args[0])
			var result modemgr.SwitchResult
			if overrideMinutes > 0 {
				result = manager.Override(target, time.Duration(overrideMinutes)*time.Minute, types.SourceUser)
			} else {
				result = manager.Switch(target, "operator override", types.SourceUser)
			}
			if !result.Success {
				return fmt.Errorf("mode switch rejected: %s -> %s", result.Old, result.New)
			}
			fmt.Printf("mode: %s -> %s\n", result.Old, result.New)
			return nil
		},
	}
	cmd.Flags().IntVar(&overrideMinutes, "for", 0, "force this mode for N minutes, then resume normal switching")
	return cmd
}

func newInstallCmd() *cobra.Command {
	var rootDir, unitPath, user string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Create the state directory tree and a systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable path: %w", err)
			}
			return install.Install(install.Options{
				BinaryPath: binary,
				RootDir:    rootDir,
				User:       user,
				UnitPath:   unitPath,
			})
		},
	}
	cmd.Flags().StringVar(&rootDir, "root", "", "state directory root (default /var/lib/shipos)")
	cmd.Flags().StringVar(&unitPath, "unit-path", "", "systemd unit file path (default /etc/systemd/system/shipos.service)")
	cmd.Flags().StringVar(&user, "user", "", "service user (default pi)")
	return cmd
}

// newDigestCmd renders the memory diary and goal history as a readable
// terminal digest, the one place this module exercises glamour: every
// other Markdown surface (Discord pushes, Telegram replies) targets a chat
// client's own renderer, not a terminal.
func newDigestCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Render a recent-activity digest for the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			mem, err := memory.New(cfg.RootDir + "/memory")
			if err != nil {
				return fmt.Errorf("memory: %w", err)
			}
			diary, err := mem.ReadDiary(lines)
			if err != nil {
				return fmt.Errorf("reading diary: %w", err)
			}

			var goal struct {
				Goal string `json:"goal"`
			}
			statefile.ReadSnapshot(cfg.RootDir+"/state/current_goal.json", &goal)

			md := fmt.Sprintf("# Status Digest\n\n**Current goal:** %s\n\n## Recent diary\n\n%s\n", goal.Goal, diary)

			renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return fmt.Errorf("building renderer: %w", err)
			}
			out, err := renderer.Render(md)
			if err != nil {
				return fmt.Errorf("rendering digest: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 20, "number of recent diary lines to include")
	return cmd
}
