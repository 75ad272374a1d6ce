// Package metrics turns raw engine resource samples into display values and
// exports lifecycle and resource metrics for Prometheus.
package metrics

import (
	"math"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

const bytesPerMiB = 1024 * 1024

// View is a normalized resource sample. Every field is rounded to two
// decimals.
type View struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryUsageMiB float64 `json:"memory_usage_mib"`
	MemoryLimitMiB float64 `json:"memory_limit_mib"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// Sample converts s into a View.
//
// CPU is the share of system time the instance used between the engine's
// two samples, scaled by the number of online CPUs, so a bot saturating two
// cores reads 200%. A zero or negative system delta reads 0%, as does a
// counter that went backwards after an instance restart.
func Sample(s runtime.Snapshot) View {
	return View{
		CPUPercent:     round2(CPUPercent(s)),
		MemoryUsageMiB: round2(float64(s.MemoryUsage) / bytesPerMiB),
		MemoryLimitMiB: round2(float64(s.MemoryLimit) / bytesPerMiB),
		MemoryPercent:  round2(MemoryPercent(s)),
	}
}

// CPUPercent returns the unrounded CPU percentage of s.
func CPUPercent(s runtime.Snapshot) float64 {
	if s.SystemTotal <= s.PreSystemTotal || s.CPUTotal < s.PreCPUTotal {
		return 0
	}
	cpuDelta := float64(s.CPUTotal - s.PreCPUTotal)
	sysDelta := float64(s.SystemTotal - s.PreSystemTotal)
	return cpuDelta / sysDelta * float64(s.OnlineCPUs) * 100
}

// MemoryPercent returns the unrounded memory usage percentage of s. An
// unknown (zero) limit reads 0%.
func MemoryPercent(s runtime.Snapshot) float64 {
	if s.MemoryLimit == 0 {
		return 0
	}
	return float64(s.MemoryUsage) / float64(s.MemoryLimit) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
