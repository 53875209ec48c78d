package voice

import (
	"strings"
	"testing"

	"github.com/shipos/autonomous/internal/types"
)

func TestStatusTextEmptySamples(t *testing.T) {
	got := StatusText(nil)
	if !strings.Contains(got, "No health samples") {
		t.Fatalf("unexpected text for empty samples: %q", got)
	}
}

func TestStatusTextDescribesCriticalTemp(t *testing.T) {
	samples := []types.HealthSample{
		{Name: "cpu_temp", Status: types.HealthCritical, Value: 82},
	}
	got := StatusText(samples)
	if !strings.Contains(got, "82") || !strings.Contains(got, "too hot") {
		t.Fatalf("expected a hot-temperature warning, got %q", got)
	}
}

func TestStatusTextDescribesOKNetwork(t *testing.T) {
	samples := []types.HealthSample{{Name: "network", Status: types.HealthOK}}
	got := StatusText(samples)
	if !strings.Contains(got, "Network is up") {
		t.Fatalf("expected network-up phrasing, got %q", got)
	}
}

func TestStatusTextEndsWithReportMarker(t *testing.T) {
	samples := []types.HealthSample{{Name: "ram", Status: types.HealthOK, Value: 40}}
	got := StatusText(samples)
	if !strings.HasSuffix(got, "End of report.") {
		t.Fatalf("expected the report to end with the closing marker, got %q", got)
	}
}
