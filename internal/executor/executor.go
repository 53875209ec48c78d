// Package executor implements the sandboxed command runner (spec §4.3): a
// static allow-list of program basenames, a path sandbox for commands that
// accept paths, and a full JSONL audit trail. Validation order and the
// allow-lists themselves are ported from the Python prototype's
// executor.py (policy B, the "reinforced" variant).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// FailureReason enumerates the rejection/failure kinds callers can match on.
type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonUnsafe         FailureReason = "rejected_unsafe"
	ReasonTimeout        FailureReason = "timeout"
	ReasonSpawnError     FailureReason = "spawn_error"
)

// allowedCommands is the static program-basename allow-list.
var allowedCommands = map[string]bool{
	"ls": true, "cat": true, "echo": true, "pwd": true, "mkdir": true, "touch": true,
	"grep": true, "find": true, "wc": true, "head": true, "tail": true, "sort": true, "uniq": true,
	"date": true, "whoami": true, "hostname": true, "uname": true, "df": true, "du": true,
	"ps": true, "top": true, "free": true, "uptime": true, "which": true, "whereis": true,
	"git": true, "python3": true, "pip3": true, "node": true, "npm": true,
	"systemctl": true, "journalctl": true,
	"cp": true, "mv": true, "rm": true,
	"chmod": true, "chown": true,
}

// pathSensitive commands have every path-like argument checked against the
// allow-list roots.
var pathSensitive = map[string]bool{
	"cp": true, "mv": true, "rm": true, "chmod": true, "chown": true, "touch": true,
	"mkdir": true, "cat": true, "grep": true, "find": true, "ls": true, "head": true, "tail": true,
}

var allowedSystemctlActions = map[string]bool{
	"status": true, "start": true, "stop": true, "restart": true,
	"is-active": true, "is-enabled": true, "daemon-reload": true,
}

var rmDenylist = map[string]bool{
	"/": true, "/*": true, "..": true, "../": true, "~": true, "~/": true, ".*": true,
}

var shellOperators = []string{";", "&&", "||", "|", "`", "$("}

var urlPattern = regexp.MustCompile(`^[a-zA-Z]+://`)

// Executor runs a single allow-listed command with no shell interpretation.
type Executor struct {
	AllowedRoots   []string
	Timeout        time.Duration
	MaxOutputBytes int
	WorkDir        string
	AuditPath      string
}

// New builds an Executor with the given sandbox roots and audit log path.
func New(allowedRoots []string, timeout time.Duration, maxOutputBytes int, workDir, auditPath string) *Executor {
	return &Executor{
		AllowedRoots:   allowedRoots,
		Timeout:        timeout,
		MaxOutputBytes: maxOutputBytes,
		WorkDir:        workDir,
		AuditPath:      auditPath,
	}
}

// Result is the outcome of Execute.
type Result struct {
	Success    bool
	Stdout     string
	Stderr     string
	ReturnCode int
	Error      string
	Reason     FailureReason
}

// isSafe validates command against the allow-lists, returning the parsed
// argv on success. Validation order matches the prototype: empty check,
// dangerous shell-operator check, shlex-style parse, sudo ban, basename
// allow-list, systemctl subcommand check, path-sandbox check, rm denylist.
func (e *Executor) isSafe(command string) (ok bool, reason string, argv []string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return false, "empty command", nil
	}

	for _, op := range shellOperators {
		if strings.Contains(command, op) {
			return false, "shell operators (; && || | ` $() ) are forbidden", nil
		}
	}

	args, err := shlexSplit(command)
	if err != nil {
		return false, fmt.Sprintf("failed to parse command: %v", err), nil
	}
	if len(args) == 0 {
		return false, "empty command", nil
	}

	base := filepath.Base(args[0])
	if base == "sudo" {
		return false, "sudo is forbidden", nil
	}
	if !allowedCommands[base] {
		return false, fmt.Sprintf("command not allowed: %s", base), nil
	}

	if base == "systemctl" {
		if len(args) < 2 {
			return false, "systemctl requires a subcommand", nil
		}
		if !allowedSystemctlActions[args[1]] {
			return false, fmt.Sprintf("systemctl action not allowed: %s", args[1]), nil
		}
	}

	if pathSensitive[base] {
		for _, p := range extractPathlikeArgs(args) {
			if !e.isUnderAllowedRoots(p) {
				return false, fmt.Sprintf("path operation outside allowed roots: %s", p), nil
			}
		}
	}

	if base == "rm" {
		for _, a := range args[1:] {
			if rmDenylist[a] {
				return false, fmt.Sprintf("dangerous rm target: %s", a), nil
			}
		}
	}

	return true, "", args
}

func extractPathlikeArgs(args []string) []string {
	var paths []string
	for _, a := range args[1:] {
		if a == "" || strings.HasPrefix(a, "-") {
			continue
		}
		if urlPattern.MatchString(a) {
			continue
		}
		if strings.HasSuffix(a, ".service") && !strings.Contains(a, "/") {
			continue
		}
		if strings.Contains(a, "/") || strings.HasPrefix(a, ".") || strings.HasPrefix(a, "~") {
			paths = append(paths, a)
		}
	}
	return paths
}

func (e *Executor) isUnderAllowedRoots(p string) bool {
	expanded := expandUser(p)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return false
	}
	resolved := filepath.Clean(abs)
	for _, root := range e.AllowedRoots {
		rr, err := filepath.Abs(expandUser(root))
		if err != nil {
			continue
		}
		rr = filepath.Clean(rr)
		if resolved == rr || strings.HasPrefix(resolved, rr+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func expandUser(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func (e *Executor) truncate(s string) string {
	if len(s) <= e.MaxOutputBytes {
		return s
	}
	return fmt.Sprintf("%s\n... (output truncated after %d characters)", s[:e.MaxOutputBytes], e.MaxOutputBytes)
}

func (e *Executor) audit(entry types.CommandAuditEntry) {
	if e.AuditPath == "" {
		return
	}
	_ = statefile.AppendJSONL(e.AuditPath, entry) // audit failures never affect execution results
}

// Execute validates then runs command, returning a Result. It never panics
// and never returns an error for rejected/failed commands — those are
// communicated through Result.Success/Reason, per spec §9 "exceptions ->
// explicit results".
func (e *Executor) Execute(ctx context.Context, command string) Result {
	ok, reason, argv := e.isSafe(command)
	if !ok {
		e.audit(types.CommandAuditEntry{Timestamp: time.Now(), Argv: splitForAudit(command), Allowed: false, ReturnCode: -1, Reason: reason})
		return Result{Success: false, ReturnCode: -1, Error: fmt.Sprintf("safety check failed: %s", reason), Reason: ReasonUnsafe}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = e.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		e.audit(types.CommandAuditEntry{Timestamp: time.Now(), Argv: argv, Allowed: true, ReturnCode: -1, Reason: fmt.Sprintf("timeout(%ds)", int(timeout.Seconds()))})
		return Result{Success: false, ReturnCode: -1, Error: fmt.Sprintf("timed out: command did not complete within %s", timeout), Reason: ReasonTimeout}
	}

	returnCode := 0
	if exitErr, isExit := err.(*exec.ExitError); isExit {
		returnCode = exitErr.ExitCode()
	} else if err != nil {
		e.audit(types.CommandAuditEntry{Timestamp: time.Now(), Argv: argv, Allowed: true, ReturnCode: -1, Reason: err.Error()})
		return Result{Success: false, ReturnCode: -1, Error: err.Error(), Reason: ReasonSpawnError}
	}

	e.audit(types.CommandAuditEntry{Timestamp: time.Now(), Argv: argv, Allowed: true, ReturnCode: returnCode})

	return Result{
		Success:    returnCode == 0,
		Stdout:     e.truncate(stdout.String()),
		Stderr:     e.truncate(stderr.String()),
		ReturnCode: returnCode,
	}
}

func splitForAudit(command string) []string {
	fields := strings.Fields(command)
	return fields
}
