// Package install sets up the on-disk state tree and the systemd unit that
// keeps the runtime alive across reboots. Rewritten from the teacher's IDE
// MCP-config patcher: same "find the target, write the config, report what
// happened" shape, now targeting a systemd unit and a state directory tree
// instead of a handful of IDE JSON files.
package install

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Options configures where the binary, state tree, and unit file land.
type Options struct {
	BinaryPath string
	RootDir    string
	User       string
	UnitPath   string // default /etc/systemd/system/shipos.service
}

func (o Options) withDefaults() Options {
	if o.RootDir == "" {
		o.RootDir = "/var/lib/shipos"
	}
	if o.User == "" {
		o.User = "pi"
	}
	if o.UnitPath == "" {
		o.UnitPath = "/etc/systemd/system/shipos.service"
	}
	return o
}

// stateDirs is the tree the runtime expects to exist under RootDir; every
// C1-C15 component writes or reads somewhere under one of these.
var stateDirs = []string{
	"config",
	"state",
	"memory/topics",
	"diary",
	"logs",
	"archive",
}

const unitTemplate = `[Unit]
Description=Autonomous agent runtime
After=network-online.target sound.target
Wants=network-online.target

[Service]
Type=simple
User=%s
ExecStart=%s run
Restart=always
RestartSec=5
Environment=SHIPOS_ROOT=%s

[Install]
WantedBy=multi-user.target
`

// Install creates the state directory tree and writes the systemd unit
// file. It does not reload or enable the unit: it prints the systemctl
// command that does so and leaves running it to the operator.
func Install(opts Options) error {
	opts = opts.withDefaults()

	if opts.BinaryPath == "" {
		return fmt.Errorf("install: binary path is required")
	}

	for _, dir := range stateDirs {
		full := filepath.Join(opts.RootDir, dir)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("install: create %s: %w", full, err)
		}
		log.Printf("ensured %s", full)
	}

	unit := fmt.Sprintf(unitTemplate, opts.User, opts.BinaryPath, opts.RootDir)
	if err := os.WriteFile(opts.UnitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("install: write unit file %s: %w", opts.UnitPath, err)
	}
	log.Printf("wrote unit file %s", opts.UnitPath)

	fmt.Println("State tree and systemd unit installed.")
	fmt.Println("Next: sudo systemctl daemon-reload && sudo systemctl enable --now shipos")
	return nil
}
