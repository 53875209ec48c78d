// Package costguard implements the per-day and per-special-day token-cost
// budget and the confirmation protocol (spec §4.5), ported from the Python
// prototype's billing_guard.py. Token estimation when an LLM transport
// doesn't report usage falls back to github.com/pkoukk/tiktoken-go.
package costguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/shipos/autonomous/internal/statefile"
	"github.com/shipos/autonomous/internal/types"
)

// Pricing is a per-1000-token rate pair. Units are whatever currency the
// deployment configures consistently across pricing and thresholds; no
// currency symbol is hard-coded.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Thresholds is the fixed level set; only the numeric values are
// configurable.
type Thresholds struct {
	Warning float64
	Alert   float64 // 0 means "not set", only special days use it
	Stop    float64
}

const specialDayCycle = 6

var normalDayThresholds = Thresholds{Warning: 200, Stop: 300}
var specialDayThresholds = Thresholds{Warning: 500, Alert: 900, Stop: 1000}

// defaultPricing seeds the price table ported from MODEL_PRICING.
func defaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"gpt-4.1-mini": {InputPer1K: 0.015, OutputPer1K: 0.060},
		"gpt-4":        {InputPer1K: 3.0, OutputPer1K: 6.0},
	}
}

// Guard owns billing/usage.json and billing/confirmations/.
type Guard struct {
	dataDir         string
	usagePath       string
	confirmDir      string
	pricing         map[string]Pricing
	usage           types.UsageRecord
	startDate       time.Time
}

// New loads (or initializes) usage.json under dataDir. start_date is fixed
// on first run and persisted — it must never be reset casually (spec §9).
func New(dataDir string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "confirmations"), 0o755); err != nil {
		return nil, fmt.Errorf("costguard: mkdir: %w", err)
	}
	g := &Guard{
		dataDir:    dataDir,
		usagePath:  filepath.Join(dataDir, "usage.json"),
		confirmDir: filepath.Join(dataDir, "confirmations"),
		pricing:    defaultPricing(),
	}

	var usage types.UsageRecord
	ok, _ := statefile.ReadSnapshot(g.usagePath, &usage)
	if ok && usage.StartDate != "" {
		g.usage = usage
		if d, err := time.Parse("2006-01-02", usage.StartDate); err == nil {
			g.startDate = d
		} else {
			g.startDate = time.Now()
		}
	} else {
		g.startDate = time.Now()
		g.usage = types.UsageRecord{
			StartDate:  g.startDate.Format("2006-01-02"),
			DailyUsage: map[string]types.DailyUsage{},
		}
		if err := g.save(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Guard) save() error {
	return statefile.WriteSnapshot(g.usagePath, g.usage)
}

// DaysSinceStart returns the integer day count since start_date.
func (g *Guard) DaysSinceStart() int {
	return int(time.Since(g.startDate).Hours() / 24)
}

// IsSpecialDay is a pure function of the day index: day 0, or any day
// divisible by 6.
func IsSpecialDay(days int) bool {
	return days == 0 || days%specialDayCycle == 0
}

// Thresholds returns the active threshold set for today.
func (g *Guard) Thresholds() Thresholds {
	if IsSpecialDay(g.DaysSinceStart()) {
		return specialDayThresholds
	}
	return normalDayThresholds
}

// CalculateCost is a pure function of model + token counts.
func (g *Guard) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := g.pricing[model]
	if !ok {
		p = g.pricing["gpt-4.1-mini"]
	}
	return (float64(inputTokens)/1000)*p.InputPer1K + (float64(outputTokens)/1000)*p.OutputPer1K
}

var (
	tokenizer     *tiktoken.Tiktoken
	tokenizerOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tokenizerOnce.Do(func() {
		tokenizer, _ = tiktoken.GetEncoding("cl100k_base")
	})
	return tokenizer
}

// EstimateTokens counts tokens in text using tiktoken-go, for use when the
// LLM transport doesn't report usage directly. Falls back to a whitespace
// heuristic if the encoding table failed to load.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if tok := getTokenizer(); tok != nil {
		return len(tok.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// Record adds a usage observation to today's bucket and the rolling totals.
func (g *Guard) Record(model string, inputTokens, outputTokens int) error {
	cost := g.CalculateCost(model, inputTokens, outputTokens)

	today := time.Now().Format("2006-01-02")
	daily := g.usage.DailyUsage[today]
	daily.Cost += cost
	daily.Requests++
	daily.InputTokens += inputTokens
	daily.OutputTokens += outputTokens
	g.usage.DailyUsage[today] = daily

	g.usage.TotalCost += cost
	return g.save()
}

// TodayCost sums today's bucket.
func (g *Guard) TodayCost() float64 {
	today := time.Now().Format("2006-01-02")
	return g.usage.DailyUsage[today].Cost
}

// Level is the check() result.
type Level string

const (
	LevelNone    Level = ""
	LevelWarning Level = "warning"
	LevelAlert   Level = "alert"
	LevelStop    Level = "stop"
)

// Check returns the highest-triggered threshold level, checked in priority
// order stop > special-day alert > warning.
func (g *Guard) Check() Level {
	today := g.TodayCost()
	th := g.Thresholds()
	special := IsSpecialDay(g.DaysSinceStart())

	if today >= th.Stop {
		return LevelStop
	}
	if special && th.Alert > 0 && today >= th.Alert {
		return LevelAlert
	}
	if today >= th.Warning {
		return LevelWarning
	}
	return LevelNone
}

// ResponseWriter is implemented by the notifier/webhook path: given a
// confirmation id and an "approved"/"denied" response, it resolves the
// confirmation file cost guard is polling.
type ResponseWriter interface {
	WriteResponse(confirmationID string, approved bool) error
}

// RequestConfirmation writes a pending confirmation file, then polls for a
// sibling "response" field every second up to timeout (10 minutes when
// timeout is zero or negative). On timeout it auto-denies.
func (g *Guard) RequestConfirmation(description string, estimatedCost float64, timeout time.Duration) (approved bool, message string) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	id := uuid.New().String()
	path := filepath.Join(g.confirmDir, id+".json")

	confirmation := types.Confirmation{
		ID:                id,
		ActionDescription: description,
		EstimatedCost:     estimatedCost,
		CreatedAt:         time.Now(),
		Status:            types.ConfirmationPending,
	}
	if err := statefile.WriteSnapshot(path, confirmation); err != nil {
		return false, fmt.Sprintf("failed to create confirmation request: %v", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var current types.Confirmation
		if ok, _ := statefile.ReadSnapshot(path, &current); ok {
			switch current.Status {
			case types.ConfirmationApproved:
				return true, "user approved"
			case types.ConfirmationDenied:
				return false, "user denied"
			}
		}
		time.Sleep(time.Second)
	}
	return false, "auto-expired"
}

// ConfirmationPath returns the on-disk path for a given confirmation id, so
// the notifier/webhook resolver can write the response file directly.
func (g *Guard) ConfirmationPath(id string) string {
	return filepath.Join(g.confirmDir, id+".json")
}

// Resolve writes the resolution onto a pending confirmation, called by the
// notifier/webhook path when an "approve:<id>" / "deny:<id>" reply arrives.
func (g *Guard) Resolve(id string, approved bool) error {
	path := g.ConfirmationPath(id)
	var c types.Confirmation
	ok, err := statefile.ReadSnapshot(path, &c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("costguard: unknown confirmation %s", id)
	}
	now := time.Now()
	c.ResponseTime = &now
	if approved {
		c.Status = types.ConfirmationApproved
	} else {
		c.Status = types.ConfirmationDenied
	}
	return statefile.WriteSnapshot(path, c)
}

// Summary returns a short Markdown digest.
func (g *Guard) Summary() string {
	today := g.TodayCost()
	th := g.Thresholds()
	special := IsSpecialDay(g.DaysSinceStart())

	var b strings.Builder
	fmt.Fprintf(&b, "# Cost summary\n\n")
	fmt.Fprintf(&b, "- Start date: %s\n", g.startDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Day: %d\n", g.DaysSinceStart())
	fmt.Fprintf(&b, "- Special day: %v\n\n", special)
	fmt.Fprintf(&b, "## Today\n")
	fmt.Fprintf(&b, "- Cost: %.2f\n", today)
	fmt.Fprintf(&b, "- Warning threshold: %.2f\n", th.Warning)
	if th.Alert > 0 {
		fmt.Fprintf(&b, "- Alert threshold: %.2f\n", th.Alert)
	}
	fmt.Fprintf(&b, "- Stop threshold: %.2f\n\n", th.Stop)
	fmt.Fprintf(&b, "## Totals\n")
	fmt.Fprintf(&b, "- Total cost: %.2f\n", g.usage.TotalCost)
	return b.String()
}
