package costguard

import (
	"os"
	"strings"
	"testing"

	"github.com/shipos/autonomous/internal/types"
)

func dailyWithCost(cost float64) types.DailyUsage {
	return types.DailyUsage{Cost: cost, Requests: 1, InputTokens: 0, OutputTokens: 0}
}

func listConfirmations(t *testing.T, g *Guard) []string {
	t.Helper()
	entries, err := os.ReadDir(g.confirmDir)
	if err != nil {
		t.Fatalf("list confirmations: %v", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids
}
