package costguard

import (
	"testing"
	"time"
)

func TestIsSpecialDay(t *testing.T) {
	cases := map[int]bool{0: true, 1: false, 5: false, 6: true, 12: true, 7: false, 30: true}
	for d, want := range cases {
		if got := IsSpecialDay(d); got != want {
			t.Errorf("IsSpecialDay(%d) = %v, want %v", d, got, want)
		}
	}
}

func TestCalculateCostKnownModel(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cost := g.CalculateCost("gpt-4.1-mini", 1000, 1000)
	want := 0.015 + 0.060
	if cost < want-1e-9 || cost > want+1e-9 {
		t.Fatalf("expected %.4f, got %.4f", want, cost)
	}
}

func TestCalculateCostUnknownModelFallsBackToDefault(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	known := g.CalculateCost("gpt-4.1-mini", 500, 500)
	unknown := g.CalculateCost("some-future-model", 500, 500)
	if known != unknown {
		t.Fatalf("expected unknown model to use default pricing: %f vs %f", known, unknown)
	}
}

func TestRecordIsMonotonicAndUpdatesTotal(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var last float64
	for i := 0; i < 5; i++ {
		if err := g.Record("gpt-4.1-mini", 100, 100); err != nil {
			t.Fatalf("record: %v", err)
		}
		cur := g.TodayCost()
		if cur < last {
			t.Fatalf("today_cost decreased: %f -> %f", last, cur)
		}
		last = cur
	}
	if g.usage.TotalCost < g.TodayCost() {
		t.Fatalf("total_cost must be >= today's cost")
	}
}

func TestCheckThresholdPriorityOrder(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Force special-day thresholds deterministically by overriding start date.
	g.startDate = time.Now() // day 0 -> always special

	g.usage.DailyUsage[todayKey()] = dailyWithCost(501)
	if lvl := g.Check(); lvl != LevelWarning {
		t.Fatalf("expected warning at 501, got %v", lvl)
	}

	g.usage.DailyUsage[todayKey()] = dailyWithCost(901)
	if lvl := g.Check(); lvl != LevelAlert {
		t.Fatalf("expected alert at 901, got %v", lvl)
	}

	g.usage.DailyUsage[todayKey()] = dailyWithCost(1001)
	if lvl := g.Check(); lvl != LevelStop {
		t.Fatalf("expected stop at 1001, got %v", lvl)
	}
}

func TestRequestConfirmationAutoDeniesOnTimeout(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	approved, msg := g.RequestConfirmation("risky action", 50, 50*time.Millisecond)
	if approved {
		t.Fatalf("expected auto-deny on timeout")
	}
	if msg != "auto-expired" {
		t.Fatalf("expected auto-expired message, got %q", msg)
	}
}

func TestResolveApprovesConfirmation(t *testing.T) {
	g, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	done := make(chan struct{})
	var approved bool
	go func() {
		approved, _ = g.RequestConfirmation("deploy", 10, 2*time.Second)
		close(done)
	}()

	// Give RequestConfirmation time to write the pending file, then resolve it.
	// Poll for the confirmation file id by scanning the confirmations dir is
	// unnecessary here: RequestConfirmation itself generates the id, so we
	// simulate the resolver by locating the single confirmation it created.
	time.Sleep(100 * time.Millisecond)
	entries := listConfirmations(t, g)
	if len(entries) != 1 {
		t.Fatalf("expected 1 pending confirmation, got %d", len(entries))
	}
	if err := g.Resolve(entries[0], true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	<-done
	if !approved {
		t.Fatalf("expected approval to propagate")
	}
}

func todayKey() string {
	return time.Now().Format("2006-01-02")
}
