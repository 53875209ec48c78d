// Package mood computes the deterministic 0-100 mood score (SPEC_FULL.md
// §6 "Mood scoring"), grounded on the prototype's ship_narrator.py-adjacent
// health-to-narrative mapping, generalized into a plain numeric score
// instead of hard-coded persona lines.
package mood

import (
	"strconv"
	"time"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Inputs is the ambient reading set the score is derived from.
type Inputs struct {
	CPUTempC    float64
	DiskPercent float64
	NetOK       bool
	IdleMinutes float64
}

func penaltyCPU(tempC float64) int {
	switch {
	case tempC >= 80:
		return 30
	case tempC >= 70:
		return 15
	case tempC >= 60:
		return 5
	default:
		return 0
	}
}

func penaltyDisk(percent float64) int {
	switch {
	case percent >= 95:
		return 25
	case percent >= 85:
		return 10
	default:
		return 0
	}
}

func penaltyNet(ok bool) int {
	if !ok {
		return 20
	}
	return 0
}

func penaltyIdle(minutes float64) int {
	switch {
	case minutes >= 240:
		return 10
	case minutes >= 60:
		return 5
	default:
		return 0
	}
}

// bucket maps a score to the fixed emoji/line table (SPEC_FULL.md §6).
func bucket(score int) (emoji, line string) {
	switch {
	case score >= 80:
		return "🙂", "Running great, nothing to report."
	case score >= 60:
		return "🙂", "All fine, a little warm under the hood."
	case score >= 40:
		return "😐", "Holding up, but keeping an eye on things."
	case score >= 20:
		return "😟", "Rough patch, might need attention soon."
	default:
		return "😣", "Struggling — check on me when you can."
	}
}

// Compute derives a MoodSample from the current ambient readings. Pure and
// deterministic: the same inputs always produce the same score.
func Compute(in Inputs) types.MoodSample {
	penalties := map[string]int{
		"cpu_temp": penaltyCPU(in.CPUTempC),
		"disk":     penaltyDisk(in.DiskPercent),
		"network":  penaltyNet(in.NetOK),
		"idle":     penaltyIdle(in.IdleMinutes),
	}
	score := 100
	reasons := make(map[string]string, len(penalties))
	for name, p := range penalties {
		score -= p
		if p > 0 {
			reasons[name] = "-" + strconv.Itoa(p)
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	emoji, line := bucket(score)
	return types.MoodSample{
		Score:     score,
		Emoji:     emoji,
		Line:      line,
		Reasons:   reasons,
		Timestamp: time.Now(),
	}
}

// Log appends the sample to the mood JSONL stream (spec.md §3 Mood sample,
// one of the C1 state files).
func Log(path string, sample types.MoodSample) error {
	return statefile.AppendJSONL(path, sample)
}
