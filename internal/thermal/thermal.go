// Package thermal sizes parallel builds to the machine. Starting several
// projects at once runs several `dotnet build` processes, each of which
// spreads over every core by default.
package thermal

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// HardwareInfo contains detected hardware information
type HardwareInfo struct {
	NumCPU         int
	IsDarwin       bool
	IsMacBookAir   bool
	IsAppleSilicon bool
	ModelName      string
}

// DetectHardware detects the current hardware configuration
func DetectHardware() HardwareInfo {
	info := HardwareInfo{
		NumCPU:   runtime.NumCPU(),
		IsDarwin: runtime.GOOS == "darwin",
	}

	if info.IsDarwin {
		info.ModelName = detectMacModel()
		info.IsMacBookAir = strings.Contains(strings.ToLower(info.ModelName), "macbook air")
		info.IsAppleSilicon = detectAppleSilicon()
	}
	return info
}

func detectMacModel() string {
	output, err := exec.Command("sysctl", "-n", "hw.model").Output()
	if err == nil {
		return strings.TrimSpace(string(output))
	}
	output, err = exec.Command("system_profiler", "SPHardwareDataType").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(output), "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "Model Name:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func detectAppleSilicon() bool {
	if runtime.GOARCH == "arm64" {
		return true
	}
	output, err := exec.Command("sysctl", "-n", "machdep.cpu.brand_string").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "apple")
}

// GetOptimalConcurrency returns how many projects to prepare at once. A
// configured value wins.
func GetOptimalConcurrency(hw HardwareInfo, configConcurrency int) int {
	if configConcurrency > 0 {
		return configConcurrency
	}

	optimal := hw.NumCPU
	switch {
	case hw.IsMacBookAir:
		// passive cooling
		optimal = hw.NumCPU / 2
	case hw.IsDarwin && hw.IsAppleSilicon:
		optimal = (hw.NumCPU * 3) / 4
	}
	return max(optimal, min(2, hw.NumCPU), 1)
}

// ThermalStatus represents the current thermal state
type ThermalStatus struct {
	// Level is "cool" or "warm"
	Level                  string
	RecommendedConcurrency int
	Message                string
}

// GetThermalStatus reads pmset on macOS. Other systems always report cool.
func GetThermalStatus(hw HardwareInfo) ThermalStatus {
	if !hw.IsDarwin {
		return coolStatus(hw)
	}
	output, err := exec.Command("pmset", "-g", "therm").Output()
	if err != nil {
		return coolStatus(hw)
	}
	return parseThermalStatus(hw, string(output))
}

func coolStatus(hw HardwareInfo) ThermalStatus {
	return ThermalStatus{
		Level:                  "cool",
		RecommendedConcurrency: hw.NumCPU,
		Message:                "System is running cool",
	}
}

// parseThermalStatus reads `pmset -g therm` output, whose lines look like
// "CPU_Speed_Limit = 100".
func parseThermalStatus(hw HardwareInfo, output string) ThermalStatus {
	status := coolStatus(hw)
	warm := func(msg string) {
		status.Level = "warm"
		status.RecommendedConcurrency = max(hw.NumCPU/2, 1)
		status.Message = msg
	}

	for _, line := range strings.Split(strings.ToLower(output), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}
			key, value = fields[0], fields[1]
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "cpu_speed_limit":
			if value != "100" {
				warm("CPU is being throttled due to thermal pressure")
			}
		case "thermal_level":
			if value != "0" {
				warm("System thermal pressure detected")
			}
		}
	}
	return status
}

// Plan is the parallelism used when several projects are built together.
type Plan struct {
	Concurrency int // projects prepared at once
	BuildCPUs   int // -maxcpucount for each build; 0 leaves MSBuild's default
}

// PlanBuilds combines the hardware default, the configured concurrency and
// the thermal state. With more than one build in flight the cores are split
// between them.
func PlanBuilds(hw HardwareInfo, configConcurrency int, status ThermalStatus) Plan {
	concurrency := GetOptimalConcurrency(hw, configConcurrency)
	if configConcurrency <= 0 && status.RecommendedConcurrency > 0 {
		concurrency = min(concurrency, status.RecommendedConcurrency)
	}
	concurrency = max(concurrency, 1)

	plan := Plan{Concurrency: concurrency}
	if concurrency > 1 && hw.NumCPU > 0 {
		plan.BuildCPUs = max(hw.NumCPU/concurrency, 1)
	}
	return plan
}

// FormatHardwareInfo returns a human-readable hardware description
func FormatHardwareInfo(hw HardwareInfo) string {
	parts := []string{fmt.Sprintf("%d cores", hw.NumCPU)}
	if hw.IsDarwin {
		if hw.ModelName != "" {
			parts = append(parts, hw.ModelName)
		}
		if hw.IsAppleSilicon {
			parts = append(parts, "Apple Silicon")
		}
	} else {
		parts = append(parts, runtime.GOOS)
	}
	return strings.Join(parts, ", ")
}
