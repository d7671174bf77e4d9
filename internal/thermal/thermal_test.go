package thermal

import (
	"runtime"
	"testing"
)

func TestDetectHardware(t *testing.T) {
	hw := DetectHardware()

	if hw.NumCPU < 1 {
		t.Errorf("NumCPU should be at least 1, got %d", hw.NumCPU)
	}
	expectedDarwin := runtime.GOOS == "darwin"
	if hw.IsDarwin != expectedDarwin {
		t.Errorf("IsDarwin = %v, expected %v", hw.IsDarwin, expectedDarwin)
	}
}

func TestGetOptimalConcurrency(t *testing.T) {
	tests := []struct {
		name              string
		hw                HardwareInfo
		configConcurrency int
		want              int
	}{
		{
			name:              "configured concurrency takes precedence",
			hw:                HardwareInfo{NumCPU: 8, IsDarwin: true, IsMacBookAir: true},
			configConcurrency: 3,
			want:              3,
		},
		{
			name: "MacBook Air halves the cores",
			hw:   HardwareInfo{NumCPU: 8, IsDarwin: true, IsMacBookAir: true},
			want: 4,
		},
		{
			name: "Apple Silicon (non-Air) uses 3/4 cores",
			hw:   HardwareInfo{NumCPU: 10, IsDarwin: true, IsAppleSilicon: true},
			want: 7,
		},
		{
			name: "non-Darwin uses all cores",
			hw:   HardwareInfo{NumCPU: 8},
			want: 8,
		},
		{
			name: "single core never drops to zero",
			hw:   HardwareInfo{NumCPU: 1, IsDarwin: true, IsMacBookAir: true},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetOptimalConcurrency(tt.hw, tt.configConcurrency); got != tt.want {
				t.Errorf("GetOptimalConcurrency() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseThermalStatus(t *testing.T) {
	hw := HardwareInfo{NumCPU: 8, IsDarwin: true}
	tests := []struct {
		name   string
		output string
		level  string
		rec    int
	}{
		{"full speed", "CPU_Scheduler_Limit \t= 100\nCPU_Speed_Limit \t= 100\n", "cool", 8},
		{"throttled", "CPU_Speed_Limit \t= 70\n", "warm", 4},
		{"thermal level", "Thermal_Level 2\n", "warm", 4},
		{"no data", "Note: No thermal warning level has been recorded\n", "cool", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseThermalStatus(hw, tt.output)
			if got.Level != tt.level || got.RecommendedConcurrency != tt.rec {
				t.Errorf("got %+v, want level %s concurrency %d", got, tt.level, tt.rec)
			}
		})
	}
}

func TestPlanBuilds(t *testing.T) {
	hw := HardwareInfo{NumCPU: 8}
	cool := coolStatus(hw)
	warm := ThermalStatus{Level: "warm", RecommendedConcurrency: 4}

	if plan := PlanBuilds(hw, 0, cool); plan.Concurrency != 8 || plan.BuildCPUs != 1 {
		t.Errorf("cool default: %+v", plan)
	}
	if plan := PlanBuilds(hw, 0, warm); plan.Concurrency != 4 || plan.BuildCPUs != 2 {
		t.Errorf("warm default: %+v", plan)
	}
	if plan := PlanBuilds(hw, 6, warm); plan.Concurrency != 6 {
		t.Errorf("configured concurrency should ignore thermal state: %+v", plan)
	}
	if plan := PlanBuilds(hw, 1, cool); plan.BuildCPUs != 0 {
		t.Errorf("a single build keeps the MSBuild default: %+v", plan)
	}
}

func TestFormatHardwareInfo(t *testing.T) {
	hw := HardwareInfo{
		NumCPU:         8,
		IsDarwin:       true,
		ModelName:      "MacBookAir10,1",
		IsAppleSilicon: true,
	}
	got := FormatHardwareInfo(hw)
	want := "8 cores, MacBookAir10,1, Apple Silicon"
	if got != want {
		t.Errorf("FormatHardwareInfo() = %q, want %q", got, want)
	}
}
