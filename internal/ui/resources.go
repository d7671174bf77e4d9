package ui

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/harshul/microrun/internal/project"
)

// ResourceStats is a machine-wide sample shown in the dashboard header.
type ResourceStats struct {
	CPUPercent  float64
	MemPercent  float64
	MemoryUsed  uint64
	MemoryTotal uint64
	CPUTemp     float64 // -1 when unavailable
}

// GetResourceStats fetches current system resource statistics
func GetResourceStats() ResourceStats {
	stats := ResourceStats{CPUTemp: -1}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsed = memInfo.Used
		stats.MemoryTotal = memInfo.Total
		stats.MemPercent = memInfo.UsedPercent
	}
	stats.CPUTemp = getCPUTemperature()
	return stats
}

// getCPUTemperature is platform-specific and often unavailable.
func getCPUTemperature() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil && len(temps) == 0 {
		return -1
	}

	for _, temp := range temps {
		if containsAny(temp.SensorKey, "cpu", "coretemp", "k10temp") && temp.Temperature > 0 {
			return temp.Temperature
		}
	}

	// Apple Silicon reports no CPU-named sensor; take the first sane reading.
	if runtime.GOOS == "darwin" {
		for _, temp := range temps {
			if temp.Temperature > 0 && temp.Temperature < 120 {
				return temp.Temperature
			}
		}
	}
	return -1
}

func containsAny(s string, substrs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatUsage renders a process sample as "12.5% 80.0 MB up 3m2s".
func FormatUsage(u project.Usage) string {
	out := fmt.Sprintf("%.1f%% %s", u.CPUPercent, FormatBytes(u.RSS))
	if !u.StartedAt.IsZero() {
		out += " up " + time.Since(u.StartedAt).Truncate(time.Second).String()
	}
	return out
}
