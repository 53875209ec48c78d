// Package watchdog implements the self-repair sweep (spec §4.11): service
// restart-if-inactive, log rotation/compression, memory index corruption
// recovery, zero-byte file detection, and storage write-probe isolation.
// Ported from the Python prototype's failsafe.py.
package watchdog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shipos/autonomous/internal/memory"
	"github.com/shipos/autonomous/internal/statefile"
)

const (
	currentLogMaxBytes = 50 * 1024 * 1024
	staleLogAge        = 7 * 24 * time.Hour
)

// Action is one recovery step's outcome, mirroring failsafe.py's action
// dictionaries.
type Action struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Config configures the sweep's targets.
type Config struct {
	ServiceUnit    string // e.g. "shipos.service"
	LogDir         string
	CurrentLogName string // e.g. "agent.log"
	MemoryDir      string
	BaseDir        string // write-probe target directory
	FallbackDir    string // e.g. /tmp/shipos_fallback
	RecoveryLog    string
}

// Watchdog runs the self-repair sweep.
type Watchdog struct {
	cfg Config
	mem *memory.Manager
}

// New builds a Watchdog. mem may be nil if memory-integrity checks should
// be skipped (e.g. in tests that don't need that subsystem).
func New(cfg Config, mem *memory.Manager) *Watchdog {
	return &Watchdog{cfg: cfg, mem: mem}
}

// CheckAndRecover runs every probe in the prototype's fixed order and
// returns the combined action list.
func (w *Watchdog) CheckAndRecover(ctx context.Context) []Action {
	var actions []Action
	actions = append(actions, w.checkService(ctx)...)
	actions = append(actions, w.checkLogSize()...)
	actions = append(actions, w.checkMemoryIntegrity()...)
	actions = append(actions, w.checkStorageWritable()...)
	return actions
}

func (w *Watchdog) checkService(ctx context.Context) []Action {
	if w.cfg.ServiceUnit == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", w.cfg.ServiceUnit)
	out, err := cmd.Output()
	if err == nil && strings.TrimSpace(string(out)) == "active" {
		return nil
	}
	return []Action{w.restartService(ctx)}
}

func (w *Watchdog) restartService(ctx context.Context) Action {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", w.cfg.ServiceUnit)
	if err := cmd.Run(); err != nil {
		w.logRecovery("ai_restart_fail", err.Error())
		return Action{Action: "ai_restart", Success: false, Error: err.Error()}
	}
	w.logRecovery("ai_restart", "service automatically restarted")
	return Action{Action: "ai_restart", Success: true, Message: "automatic restart complete"}
}

func (w *Watchdog) checkLogSize() []Action {
	var actions []Action
	entries, err := os.ReadDir(w.cfg.LogDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []Action{{Action: "log_check", Success: false, Error: err.Error()}}
	}
	cutoff := time.Now().Add(-staleLogAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		path := filepath.Join(w.cfg.LogDir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		if e.Name() == w.cfg.CurrentLogName {
			if info.Size() > currentLogMaxBytes {
				actions = append(actions, w.rotateLog(path))
			}
			continue
		}
		if info.ModTime().Before(cutoff) {
			actions = append(actions, w.compressLog(path))
		}
	}
	return actions
}

func (w *Watchdog) compressLog(path string) Action {
	name := filepath.Base(path)
	gzPath := path + ".gz"
	if err := gzipFile(path, gzPath); err != nil {
		return Action{Action: "log_compress", Success: false, Error: err.Error()}
	}
	if err := os.Remove(path); err != nil {
		return Action{Action: "log_compress", Success: false, Error: err.Error()}
	}
	w.logRecovery("log_compress", "compressed: "+name)
	return Action{Action: "log_compress", Success: true, File: name}
}

func (w *Watchdog) rotateLog(path string) Action {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	ts := time.Now().Format("20060102_150405")
	rotated := filepath.Join(filepath.Dir(path), stem+"_"+ts+ext)

	if err := os.Rename(path, rotated); err != nil {
		return Action{Action: "log_rotate", Success: false, Error: err.Error()}
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return Action{Action: "log_rotate", Success: false, Error: err.Error()}
	}
	w.compressLog(rotated)
	w.logRecovery("log_rotate", "rotated: "+name)
	return Action{Action: "log_rotate", Success: true, File: name}
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var zeroByteSuffixes = map[string]bool{".json": true, ".txt": true, ".jsonl": true}

func (w *Watchdog) checkMemoryIntegrity() []Action {
	var actions []Action
	if w.cfg.MemoryDir == "" {
		return nil
	}
	if _, err := os.Stat(w.cfg.MemoryDir); os.IsNotExist(err) {
		if err := os.MkdirAll(w.cfg.MemoryDir, 0o755); err == nil {
			actions = append(actions, Action{Action: "memory_dir_create", Success: true})
		}
	}

	indexPath := filepath.Join(w.cfg.MemoryDir, "index.json")
	if data, err := os.ReadFile(indexPath); err == nil {
		var probe any
		if json.Unmarshal(data, &probe) != nil {
			actions = append(actions, w.regenerateIndex())
		}
	}

	_ = filepath.Walk(w.cfg.MemoryDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if info.Size() == 0 && zeroByteSuffixes[filepath.Ext(path)] {
			actions = append(actions, Action{
				Action: "zero_byte_detected", Success: true,
				File: path, Message: "zero-byte file detected: " + filepath.Base(path),
			})
			w.logRecovery("zero_byte", "detected: "+path)
		}
		return nil
	})

	return actions
}

func (w *Watchdog) regenerateIndex() Action {
	if w.mem == nil {
		return Action{Action: "index_regen", Success: false, Error: "no memory manager configured"}
	}
	if err := w.mem.RegenerateIndex(); err != nil {
		return Action{Action: "index_regen", Success: false, Error: err.Error()}
	}
	w.logRecovery("index_regen", "index regenerated from topic files")
	return Action{Action: "index_regen", Success: true}
}

func (w *Watchdog) checkStorageWritable() []Action {
	if w.cfg.BaseDir == "" {
		return nil
	}
	testFile := filepath.Join(w.cfg.BaseDir, ".write_test")
	err := os.WriteFile(testFile, []byte("test"), 0o644)
	if err == nil {
		os.Remove(testFile)
		return nil
	}
	if w.cfg.FallbackDir != "" {
		_ = os.MkdirAll(w.cfg.FallbackDir, 0o755)
	}
	w.logRecovery("storage_isolate", "write isolated to "+w.cfg.FallbackDir)
	return []Action{{
		Action: "storage_isolate", Success: true,
		Message: "main storage not writable, isolated to " + w.cfg.FallbackDir,
	}}
}

func (w *Watchdog) logRecovery(action, detail string) {
	if w.cfg.RecoveryLog == "" {
		return
	}
	entry := struct {
		Action    string    `json:"action"`
		Detail    string    `json:"detail"`
		Timestamp time.Time `json:"timestamp"`
	}{Action: action, Detail: detail, Timestamp: time.Now()}
	_ = statefile.AppendJSONL(w.cfg.RecoveryLog, entry)
}

// Run drives the watchdog daemon loop, calling CheckAndRecover every
// interval until ctx is cancelled. onActions receives each sweep's results
// (may be nil to discard them, though callers normally log/notify).
func Run(ctx context.Context, w *Watchdog, interval time.Duration, onActions func([]Action)) error {
	if interval <= 0 {
		return errors.New("watchdog: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		actions := w.CheckAndRecover(ctx)
		if onActions != nil {
			onActions(actions)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
