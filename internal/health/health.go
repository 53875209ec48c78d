// Package health implements the seven periodic probes and worst-of rollup
// (spec §4.9), ported from the Python prototype's health_monitor.py.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Thresholds holds the fixed per-probe warning/critical levels.
type Thresholds struct {
	CPUTempWarn, CPUTempCrit         float64
	RAMPercentWarn, RAMPercentCrit   float64
	DiskPercentWarn, DiskPercentCrit float64
	HeartbeatWarnSec, HeartbeatCritSec float64
}

func defaultThresholds() Thresholds {
	return Thresholds{
		CPUTempWarn: 70, CPUTempCrit: 80,
		RAMPercentWarn: 80, RAMPercentCrit: 90,
		DiskPercentWarn: 80, DiskPercentCrit: 90,
		HeartbeatWarnSec: 120, HeartbeatCritSec: 300,
	}
}

// Monitor runs the fixed probe set and appends samples to health_history.jsonl.
type Monitor struct {
	thresholds    Thresholds
	historyPath   string
	thermalZone   string
	rootPath      string
	archivePath   string
	archiveMount  string
	networkHost   string
	networkPort   string
	serviceUnit   string
	heartbeatPath string
}

// Config configures probe targets.
type Config struct {
	HistoryPath   string
	ThermalZone   string // e.g. /sys/class/thermal/thermal_zone0/temp
	RootPath      string // e.g. "/"
	ArchivePath   string // e.g. "/mnt/hdd"
	NetworkHost   string // e.g. "8.8.8.8"
	NetworkPort   string // e.g. "53"
	ServiceUnit   string // e.g. "shipos.service"
	HeartbeatPath string // path to the planner heartbeat snapshot
}

// New builds a Monitor with fixed default thresholds.
func New(cfg Config) *Monitor {
	return &Monitor{
		thresholds:    defaultThresholds(),
		historyPath:   cfg.HistoryPath,
		thermalZone:   cfg.ThermalZone,
		rootPath:      cfg.RootPath,
		archivePath:   cfg.ArchivePath,
		networkHost:   cfg.NetworkHost,
		networkPort:   cfg.NetworkPort,
		serviceUnit:   cfg.ServiceUnit,
		heartbeatPath: cfg.HeartbeatPath,
	}
}

func levelFor(value, warn, crit float64) types.HealthStatus {
	switch {
	case value >= crit:
		return types.HealthCritical
	case value >= warn:
		return types.HealthWarn
	default:
		return types.HealthOK
	}
}

func (m *Monitor) probeCPUTemp() types.HealthSample {
	now := time.Now()
	data, err := os.ReadFile(m.thermalZone)
	if err != nil {
		return types.HealthSample{Name: "cpu_temp", Status: types.HealthUnknown, Message: err.Error(), Timestamp: now}
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return types.HealthSample{Name: "cpu_temp", Status: types.HealthUnknown, Message: err.Error(), Timestamp: now}
	}
	tempC := float64(milli) / 1000.0
	return types.HealthSample{
		Name: "cpu_temp", Status: levelFor(tempC, m.thresholds.CPUTempWarn, m.thresholds.CPUTempCrit),
		Value: tempC, Message: fmt.Sprintf("%.1f C", tempC), Timestamp: now,
	}
}

func (m *Monitor) probeRAM() types.HealthSample {
	now := time.Now()
	pct, err := ramUsedPercent()
	if err != nil {
		return types.HealthSample{Name: "ram", Status: types.HealthUnknown, Message: err.Error(), Timestamp: now}
	}
	return types.HealthSample{
		Name: "ram", Status: levelFor(pct, m.thresholds.RAMPercentWarn, m.thresholds.RAMPercentCrit),
		Value: pct, Message: fmt.Sprintf("%.1f%%", pct), Timestamp: now,
	}
}

func (m *Monitor) probeDisk(name, path string) types.HealthSample {
	now := time.Now()
	pct, err := diskUsedPercent(path)
	if err != nil {
		return types.HealthSample{Name: name, Status: types.HealthCritical, Message: "not mounted: " + err.Error(), Timestamp: now}
	}
	return types.HealthSample{
		Name: name, Status: levelFor(pct, m.thresholds.DiskPercentWarn, m.thresholds.DiskPercentCrit),
		Value: pct, Message: fmt.Sprintf("%.1f%%", pct), Timestamp: now,
	}
}

func (m *Monitor) probeNetwork(ctx context.Context) types.HealthSample {
	now := time.Now()
	d := net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(m.networkHost, m.networkPort))
	if err != nil {
		return types.HealthSample{Name: "network", Status: types.HealthWarn, Message: err.Error(), Timestamp: now}
	}
	conn.Close()
	return types.HealthSample{Name: "network", Status: types.HealthOK, Timestamp: now}
}

func (m *Monitor) probeHeartbeat() types.HealthSample {
	now := time.Now()
	var snap struct {
		LastIteration time.Time `json:"last_iteration"`
	}
	ok, _ := statefile.ReadSnapshot(m.heartbeatPath, &snap)
	if !ok || snap.LastIteration.IsZero() {
		return types.HealthSample{Name: "planner_heartbeat", Status: types.HealthUnknown, Timestamp: now}
	}
	age := now.Sub(snap.LastIteration).Seconds()
	return types.HealthSample{
		Name: "planner_heartbeat", Status: levelFor(age, m.thresholds.HeartbeatWarnSec, m.thresholds.HeartbeatCritSec),
		Value: age, Message: fmt.Sprintf("%.0fs since last iteration", age), Timestamp: now,
	}
}

func (m *Monitor) probeService(ctx context.Context) types.HealthSample {
	now := time.Now()
	if m.serviceUnit == "" {
		return types.HealthSample{Name: "service", Status: types.HealthUnknown, Timestamp: now}
	}
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", m.serviceUnit)
	out, err := cmd.Output()
	active := strings.TrimSpace(string(out)) == "active"
	if err != nil || !active {
		return types.HealthSample{Name: "service", Status: types.HealthCritical, Message: "service not active", Timestamp: now}
	}
	return types.HealthSample{Name: "service", Status: types.HealthOK, Timestamp: now}
}

// RunAll executes every probe in a fixed order, appends the batch to the
// health history, and returns the samples.
func (m *Monitor) RunAll(ctx context.Context) []types.HealthSample {
	samples := []types.HealthSample{
		m.probeCPUTemp(),
		m.probeRAM(),
		m.probeDisk("disk_root", m.rootPath),
		m.probeDisk("disk_archive", m.archivePath),
		m.probeNetwork(ctx),
		m.probeHeartbeat(),
		m.probeService(ctx),
	}
	for _, s := range samples {
		_ = statefile.AppendJSONL(m.historyPath, s)
	}
	return samples
}

// Overall returns the worst status among samples, or UNKNOWN if empty.
func Overall(samples []types.HealthSample) types.HealthStatus {
	status := types.HealthUnknown
	for _, s := range samples {
		status = types.Worse(status, s.Status)
	}
	return status
}

// Alerts filters samples to only WARN/CRITICAL entries, for the notifier.
func Alerts(samples []types.HealthSample) []types.HealthSample {
	var out []types.HealthSample
	for _, s := range samples {
		if s.Status == types.HealthWarn || s.Status == types.HealthCritical {
			out = append(out, s)
		}
	}
	return out
}

// Summary renders an emoji-prefixed one-line-per-probe digest.
func Summary(samples []types.HealthSample) string {
	var b strings.Builder
	for _, s := range samples {
		emoji := "✅"
		switch s.Status {
		case types.HealthWarn:
			emoji = "⚠️"
		case types.HealthCritical:
			emoji = "🛑"
		case types.HealthUnknown:
			emoji = "❔"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", emoji, s.Name, s.Message)
	}
	return b.String()
}

func ramUsedPercent() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	var total, available float64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable:":
			available, _ = strconv.ParseFloat(fields[1], 64)
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("health: could not read MemTotal")
	}
	used := total - available
	return (used / total) * 100, nil
}

func diskUsedPercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("health: zero-size filesystem at %s", path)
	}
	used := total - free
	return (float64(used) / float64(total)) * 100, nil
}
