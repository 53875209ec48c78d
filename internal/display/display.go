// Package display implements the five-row status display (spec §4.15): a
// bubbletea-style Init/Update/View non-interactive render loop that reads
// C1 snapshots and pushes frames to an abstract FrameSink. The concrete
// OLED/framebuffer driver is out of scope (GPIO/I2C); a terminal FrameSink
// backs local development, grounded on the teacher's core/internal/tui
// Init/Update/View shape.
package display

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// FrameSink receives a rendered 5-row frame. The real hardware driver
// (OLED/framebuffer over I2C/SPI) implements this outside this module; it
// is the out-of-core collaborator spec.md §1 excludes from scope.
type FrameSink interface {
	WriteFrame(rows [5]string) error
}

// TerminalSink renders frames to a lipgloss-styled terminal block, used by
// local development and tests.
type TerminalSink struct {
	style lipgloss.Style
	Last  [5]string
}

// NewTerminalSink builds a TerminalSink with a bordered monospace style.
func NewTerminalSink() *TerminalSink {
	return &TerminalSink{style: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)}
}

// WriteFrame stores the frame and renders it through lipgloss; the
// rendered string is discarded here (real stdout printing is the caller's
// choice) but Last is exposed for assertions.
func (t *TerminalSink) WriteFrame(rows [5]string) error {
	t.Last = rows
	_ = t.style.Render(joinRows(rows))
	return nil
}

func joinRows(rows [5]string) string {
	out := rows[0]
	for _, r := range rows[1:] {
		out += "\n" + r
	}
	return out
}

// Paths names every C1 snapshot the display reads.
type Paths struct {
	ModeSnapshot  string
	GoalSnapshot  string // holds the current goal text, written by the planner
	HealthHistory string // last line read for temp/disk
	AudioState    string
	LineStatus    string
	NetworkState  string // holds LAN/Tailscale IPs
	MoodLog       string // last line read for the mood emoji
}

// NetworkSnapshot is the small state file the supervisor writes with the
// machine's current addresses.
type NetworkSnapshot struct {
	LAN       string `json:"lan"`
	Tailscale string `json:"tailscale"` // empty means offline
}

type goalSnapshot struct {
	Goal string `json:"goal"`
}

// waveOffsets gives each text row a different horizontal-scroll starting
// phase so rows don't all wrap at once (the "wave" effect of spec §4.15).
// render does not read it: rows are drawn without horizontal scrolling.
var waveOffsets = [5]int{0, 3, 7, 11, 2}

// Model is the bubbletea model driving the five-row render loop.
type Model struct {
	paths Paths
	sink  FrameSink
	tick  time.Duration

	rows   [5]string
	ticks  int
	frozen bool // true once a boot/shutdown fixed frame has been set
}

// New builds a Model. tick controls the render interval (50-200ms per
// spec); a zero tick defaults to 100ms.
func New(paths Paths, sink FrameSink, tick time.Duration) *Model {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Model{paths: paths, sink: sink, tick: tick}
}

type tickMsg time.Time

func (m *Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the render clock.
func (m *Model) Init() tea.Cmd {
	return m.scheduleTick()
}

// Update recomputes the five rows from current snapshots on every tick and
// forwards the frame to the sink.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		if !m.frozen {
			m.rows = m.render()
			_ = m.sink.WriteFrame(m.rows)
		}
		m.ticks++
		return m, m.scheduleTick()
	}
	return m, nil
}

// View renders the current frame as a single string (bubbletea's normal
// terminal-App contract); the display's real output path is WriteFrame,
// called from Update, not View.
func (m *Model) View() string {
	return joinRows(m.rows)
}

// ShowBootFrame freezes the display on the fixed startup frame.
func (m *Model) ShowBootFrame() {
	m.frozen = true
	m.rows = [5]string{
		"shipOS: booting ⏳",
		"DEST: --",
		"TEMP: -- DISK: --",
		"AI: 💤",
		"LAN: -- TS: --",
	}
	_ = m.sink.WriteFrame(m.rows)
}

// ShowShutdownFrame freezes the display on the fixed shutdown frame. A
// termination signal handler must call this before the process exits so
// the physical display never goes dark mid-render.
func (m *Model) ShowShutdownFrame() {
	m.frozen = true
	m.rows = [5]string{
		"shipOS: shutting down",
		"DEST: --",
		"TEMP: -- DISK: --",
		"AI: 🌙",
		"LAN: -- TS: --",
	}
	_ = m.sink.WriteFrame(m.rows)
}

func modeGlyph(mode types.Mode) string {
	switch mode {
	case types.ModeAutonomous:
		return "🤖"
	case types.ModeUserFirst:
		return "🧑"
	case types.ModeMaintenance:
		return "🔧"
	case types.ModePowerSave:
		return "🔋"
	case types.ModeSafe:
		return "🛟"
	case types.ModeEmergency:
		return "🚨"
	default:
		return "·"
	}
}

func faceFor(state types.AudioState) string {
	switch state {
	case types.AudioListening:
		return "👂"
	case types.AudioThinking:
		return "💭"
	case types.AudioSpeaking:
		return "🗣️"
	default:
		return "🙂"
	}
}

func (m *Model) render() [5]string {
	var rows [5]string

	var mode types.ModeSnapshot
	ok, _ := statefile.ReadSnapshot(m.paths.ModeSnapshot, &mode)
	if !ok {
		mode.Mode = types.ModeBoot
	}
	rows[0] = fmt.Sprintf("shipOS: %s %s", mode.Mode, modeGlyph(mode.Mode))

	var goal goalSnapshot
	statefile.ReadSnapshot(m.paths.GoalSnapshot, &goal)
	rows[1] = "DEST: " + truncate(goal.Goal, 40)

	temp, disk := m.lastHealthReadings()
	rows[2] = fmt.Sprintf("TEMP: %.0fC DISK: %.0f%%", temp, disk)

	var audio types.AudioStateSnapshot
	statefile.ReadSnapshot(m.paths.AudioState, &audio)
	face := faceFor(audio.State)

	var line types.LineStatusSnapshot
	if ok, _ := statefile.ReadSnapshot(m.paths.LineStatus, &line); ok {
		now := time.Now()
		if now.Sub(line.LastRX) < 5*time.Second {
			face = "LINE RX"
		} else if now.Sub(line.LastTX) < 5*time.Second {
			face = "LINE TX"
		}
	}
	if mood := m.lastMood(); mood != "" {
		face = mood + " " + face
	}
	rows[3] = "AI: " + face

	var net NetworkSnapshot
	statefile.ReadSnapshot(m.paths.NetworkState, &net)
	ts := net.Tailscale
	if ts == "" {
		ts = "OFFLINE"
	}
	rows[4] = fmt.Sprintf("LAN: %s  TS: %s", orDash(net.LAN), ts)

	return rows
}

func (m *Model) lastHealthReadings() (tempC, diskPct float64) {
	samples, err := statefile.ReadAllJSONL[types.HealthSample](m.paths.HealthHistory)
	if err != nil || len(samples) == 0 {
		return 0, 0
	}
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s.Name == "cpu_temp" && tempC == 0 {
			tempC = s.Value
		}
		if s.Name == "disk_root" && diskPct == 0 {
			diskPct = s.Value
		}
		if tempC != 0 && diskPct != 0 {
			break
		}
	}
	return tempC, diskPct
}

// lastMood returns the most recent mood sample's emoji, or "" if the mood
// log hasn't been written yet (mirrors lastHealthReadings' tail-read).
func (m *Model) lastMood() string {
	samples, err := statefile.ReadAllJSONL[types.MoodSample](m.paths.MoodLog)
	if err != nil || len(samples) == 0 {
		return ""
	}
	return samples[len(samples)-1].Emoji
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}
