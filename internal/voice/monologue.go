package voice

import (
	"math/rand"
	"time"

	"github.com/shipos/autonomous/internal/types"
)

// monologueTemplates maps a situational mood to its candidate lines, picked
// by ambient system state (temperature, disk, network, time of day) rather
// than an LLM call — this runs every few seconds and must stay cheap.
// Ported from the prototype's MonologueEngine.TEMPLATES, generalized from
// its hard-coded persona voice into neutral operator-facing lines.
var monologueTemplates = map[string][]string{
	"idle": {
		"All quiet. A little dull, honestly.",
		"Nothing pressing right now.",
		"Calm stretch today.",
		"Tidying up the logs while it's quiet.",
		"Kind of like the downtime, not gonna lie.",
	},
	"cpu_warm": {
		"CPU's creeping up a bit.",
		"Running warm, but still fine.",
	},
	"cpu_hot": {
		"CPU is hot, might want to ease off.",
		"Getting uncomfortably warm in here.",
	},
	"disk_high": {
		"Storage is filling up. Want me to tidy it?",
		"Disk's getting tight, a cleanup would help.",
	},
	"net_down": {
		"Lost the connection for now.",
		"Working offline until the network's back.",
	},
	"night": {
		"Quiet night.",
		"Getting late. You should rest.",
		"Night shift is peaceful.",
	},
	"recovery": {
		"Okay, settled down now. That was close.",
		"Recovered. All good again.",
	},
}

// MonologueEngine generates unprompted ambient lines at a randomized
// interval, muted or suppressed by quiet hours, and avoids repeating the
// same line twice in a row. Ported from the prototype's MonologueEngine.
type MonologueEngine struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	QuietStart  int // hour, 0-23
	QuietEnd    int
	Enabled     bool

	muted    bool
	nextTime time.Time
	lastText string

	cpuTemp     float64
	diskPercent float64
	netOK       bool

	now func() time.Time
	rnd *rand.Rand
}

func NewMonologueEngine(minInterval, maxInterval time.Duration, quietStart, quietEnd int, enabled bool) *MonologueEngine {
	m := &MonologueEngine{
		MinInterval: minInterval,
		MaxInterval: maxInterval,
		QuietStart:  quietStart,
		QuietEnd:    quietEnd,
		Enabled:     enabled,
		netOK:       true,
		now:         time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.nextTime = m.calcNextTime()
	return m
}

func (m *MonologueEngine) calcNextTime() time.Time {
	lo := int64(m.MinInterval)
	hi := int64(m.MaxInterval)
	if hi <= lo {
		hi = lo + 1
	}
	delta := time.Duration(lo + m.rnd.Int63n(hi-lo))
	return m.now().Add(delta)
}

func (m *MonologueEngine) IsQuietHours() bool {
	hour := m.now().Hour()
	if m.QuietStart > m.QuietEnd {
		return hour >= m.QuietStart || hour < m.QuietEnd
	}
	return hour >= m.QuietStart && hour < m.QuietEnd
}

// UpdateStatus feeds the ambient readings the template selector reacts to.
func (m *MonologueEngine) UpdateStatus(cpuTemp, diskPercent float64, netOK bool) {
	m.cpuTemp = cpuTemp
	m.diskPercent = diskPercent
	m.netOK = netOK
}

func (m *MonologueEngine) ToggleMute() bool {
	m.muted = !m.muted
	return m.muted
}

// SetMuted sets the mute flag explicitly, for the audio-cmd poller's
// monologue_mute/monologue_unmute actions (as distinct from the macropad's
// toggle keypress).
func (m *MonologueEngine) SetMuted(muted bool) {
	m.muted = muted
}

// CheckAndGenerate returns a line if it's time for the next one, else "".
func (m *MonologueEngine) CheckAndGenerate() string {
	if !m.Enabled || m.muted {
		return ""
	}
	if m.now().Before(m.nextTime) {
		return ""
	}
	m.nextTime = m.calcNextTime()

	text := m.selectLine()
	m.lastText = text
	return text
}

func (m *MonologueEngine) selectLine() string {
	var pool []string
	switch {
	case m.cpuTemp >= 75:
		pool = monologueTemplates["cpu_hot"]
	case m.cpuTemp >= 65:
		pool = monologueTemplates["cpu_warm"]
	case !m.netOK:
		pool = monologueTemplates["net_down"]
	case m.diskPercent >= 85:
		pool = monologueTemplates["disk_high"]
	case m.IsQuietHours():
		pool = monologueTemplates["night"]
	default:
		pool = monologueTemplates["idle"]
	}

	candidates := make([]string, 0, len(pool))
	for _, t := range pool {
		if t != m.lastText {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}
	return candidates[m.rnd.Intn(len(candidates))]
}

// Volume returns the monologue playback volume, lowered during quiet hours.
func (m *MonologueEngine) Volume(base, night float64) float64 {
	if m.IsQuietHours() {
		return night
	}
	return base
}

func (m *MonologueEngine) priorityRequest(text string, volume float64) types.VoiceRequest {
	return types.VoiceRequest{Text: text, Priority: types.PriorityMonologue, Volume: volume, Category: "monologue"}
}
