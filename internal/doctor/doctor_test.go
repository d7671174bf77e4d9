package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harshul/microrun/internal/launchsettings"
)

func notOnPath(string) (string, error) { return "", errors.New("not found") }

func TestLocateIISExpressOverride(t *testing.T) {
	dir := t.TempDir()
	host := filepath.Join(dir, "iisexpress.exe")
	if err := os.WriteFile(host, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := locateIISExpress(host, notOnPath, nil, "linux")
	if err != nil || got != host {
		t.Errorf("expected override %q, got %q, %v", host, got, err)
	}

	_, err = locateIISExpress(filepath.Join(dir, "missing.exe"), notOnPath, nil, "linux")
	if !errors.Is(err, ErrIISExpressNotFound) {
		t.Errorf("expected ErrIISExpressNotFound, got %v", err)
	}
}

func TestLocateIISExpressProgramFiles(t *testing.T) {
	programFiles := t.TempDir()
	host := filepath.Join(programFiles, "IIS Express", "iisexpress.exe")
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(host, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := locateIISExpress("", notOnPath, []string{programFiles}, "windows")
	if err != nil || got != host {
		t.Errorf("expected %q, got %q, %v", host, got, err)
	}

	if _, err := locateIISExpress("", notOnPath, []string{programFiles}, "linux"); !errors.Is(err, ErrIISExpressNotFound) {
		t.Errorf("expected not found off windows, got %v", err)
	}
}

func TestCheckProject(t *testing.T) {
	dir := t.TempDir()
	projectFile := filepath.Join(dir, "Web.csproj")
	if err := os.WriteFile(projectFile, []byte("<Project />"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "Properties"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	settings := `{"profiles": {"Web": {"commandName": "Project"}, "Container": {"commandName": "Docker"}}}`
	if err := os.WriteFile(launchsettings.SettingsPath(projectFile), []byte(settings), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name       string
		selected   string
		wantIssues int
	}{
		{"valid", "Web", 0},
		{"nothing selected", "", 1},
		{"stale selection", "Gone", 1},
		{"unsupported", "Container", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := checkProject(Target{ID: projectFile, SelectedProfile: tt.selected})
			if status.Profiles != 2 {
				t.Errorf("expected 2 profiles, got %d", status.Profiles)
			}
			if len(status.Issues) != tt.wantIssues {
				t.Errorf("expected %d issues, got %v", tt.wantIssues, status.Issues)
			}
		})
	}
}

func TestCheckProjectMissingSettings(t *testing.T) {
	status := checkProject(Target{ID: filepath.Join(t.TempDir(), "Nope.csproj"), SelectedProfile: "x"})
	if len(status.Issues) != 2 {
		t.Errorf("expected missing project and missing settings issues, got %v", status.Issues)
	}
}
