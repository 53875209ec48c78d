package voice

import (
	"fmt"
	"strings"

	"github.com/shipos/autonomous/internal/types"
)

// StatusText renders the current health samples as a short spoken report,
// reusing the health monitor's probes instead of re-reading sensors
// directly. Ported from the prototype's get_system_status_text, which
// reads /sys/class/thermal and psutil itself; here the readings are
// supplied by internal/health so there is one probe implementation, not
// two that can drift apart.
func StatusText(samples []types.HealthSample) string {
	if len(samples) == 0 {
		return "No health samples available right now."
	}

	var parts []string
	for _, s := range samples {
		parts = append(parts, describeSample(s))
	}
	return strings.Join(parts, " ") + " End of report."
}

func describeSample(s types.HealthSample) string {
	switch s.Name {
	case "cpu_temp":
		switch s.Status {
		case types.HealthCritical:
			return fmt.Sprintf("CPU temperature is %.0f degrees, that's too hot, it needs to cool down.", s.Value)
		case types.HealthWarn:
			return fmt.Sprintf("CPU temperature is %.0f degrees, running warm but still fine.", s.Value)
		default:
			return fmt.Sprintf("CPU temperature is %.0f degrees, plenty of headroom.", s.Value)
		}
	case "ram":
		if s.Status == types.HealthWarn || s.Status == types.HealthCritical {
			return fmt.Sprintf("Memory is at %.0f percent, getting tight.", s.Value)
		}
		return fmt.Sprintf("Memory is at %.0f percent, no problem.", s.Value)
	case "network":
		if s.Status == types.HealthOK {
			return "Network is up."
		}
		return "Network looks unstable."
	default:
		if s.Status == types.HealthOK {
			return fmt.Sprintf("%s is at %.0f percent, still fine.", humanize(s.Name), s.Value)
		}
		return fmt.Sprintf("%s is at %.0f percent, worth a look.", humanize(s.Name), s.Value)
	}
}

func humanize(name string) string {
	switch name {
	case "disk_root":
		return "Root storage"
	case "disk_archive":
		return "Archive storage"
	default:
		return strings.ToUpper(name[:1]) + name[1:]
	}
}
