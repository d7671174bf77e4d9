package launchsettings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harshul/microrun/internal/failure"
)

const sampleSettings = `{
  "iisSettings": {
    "windowsAuthentication": false,
    "anonymousAuthentication": true,
    "iisExpress": {
      "applicationUrl": "http://localhost:51234",
      "sslPort": 44300
    }
  },
  "$schema": "http://json.schemastore.org/launchsettings.json",
  "profiles": {
    "Api": {
      "commandName": "Project",
      "launchBrowser": true,
      "launchUrl": "swagger",
      "applicationUrl": "https://localhost:7001;http://localhost:5001",
      "commandLineArgs": "--seed \"demo data\"",
      "environmentVariables": {
        "ASPNETCORE_ENVIRONMENT": "Development"
      },
      "dotnetRunMessages": true
    },
    "IIS Express": {
      "commandName": "IISExpress",
      "launchBrowser": true,
      "environmentVariables": {
        "ASPNETCORE_ENVIRONMENT": "Development"
      }
    },
    "Docker": {
      "commandName": "Docker"
    }
  }
}`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	projectFile := filepath.Join(dir, "Api.csproj")
	if err := os.WriteFile(projectFile, []byte("<Project />"), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	if content == "" {
		return projectFile
	}
	if err := os.MkdirAll(filepath.Join(dir, "Properties"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(SettingsPath(projectFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return projectFile
}

func TestLoadReturnsProfilesInOrder(t *testing.T) {
	set, err := Load(writeSettings(t, sampleSettings))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	names := set.Names()
	want := []string{"Api", "IIS Express", "Docker"}
	if len(names) != len(want) {
		t.Fatalf("expected %d profiles, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected profile %d to be %q, got %q", i, want[i], names[i])
		}
	}

	api, ok := set.Get("Api")
	if !ok {
		t.Fatalf("expected profile 'Api'")
	}
	if api.Kind != RunAsProcess {
		t.Errorf("expected RunAsProcess, got %v", api.Kind)
	}
	if api.CommandLineArgs != `--seed "demo data"` {
		t.Errorf("unexpected args %q", api.CommandLineArgs)
	}
	if api.EnvironmentVariables["ASPNETCORE_ENVIRONMENT"] != "Development" {
		t.Errorf("expected environment variable, got %v", api.EnvironmentVariables)
	}
	if got := api.ListenURL(); got != "https://localhost:7001" {
		t.Errorf("expected first URL, got %q", got)
	}
	if got := api.BrowseURL(); got != "https://localhost:7001/swagger" {
		t.Errorf("expected browse URL, got %q", got)
	}

	iis, _ := set.Get("IIS Express")
	if iis.Kind != RunUnderIISExpress {
		t.Errorf("expected RunUnderIISExpress, got %v", iis.Kind)
	}
	if got := iis.ListenURL(); got != "http://localhost:51234" {
		t.Errorf("expected iisSettings fallback URL, got %q", got)
	}

	docker, _ := set.Get("Docker")
	if docker.Kind != KindUnknown || docker.CommandName != "Docker" {
		t.Errorf("expected unknown kind with raw name kept, got %v %q", docker.Kind, docker.CommandName)
	}
}

func TestParseIsCaseInsensitive(t *testing.T) {
	data := `{"PROFILES": {"web": {"CommandName": "Project", "APPLICATIONURL": "http://localhost:5000", "EnvironmentVariables": {"A": "1"}, "LAUNCHBROWSER": true}}}`

	set, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 profile, got %d", set.Len())
	}
	p, _ := set.Get("web")
	if p.Kind != RunAsProcess || p.ApplicationURL != "http://localhost:5000" || !p.LaunchBrowser || p.EnvironmentVariables["A"] != "1" {
		t.Errorf("case-insensitive fields not decoded: %+v", p)
	}
}

func TestParseSkipsByteOrderMark(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, `{"profiles":{"Api":{"commandName":"Project"}}}`...)

	set, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	p, ok := set.Get("Api")
	if !ok || p.Kind != RunAsProcess {
		t.Errorf("expected the Api profile, got %+v", set.Names())
	}
}

func TestParseProfileCount(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"empty object", `{"profiles": {}}`, 0},
		{"one", `{"profiles": {"a": {"commandName": "Project"}}}`, 1},
		{"three", `{"profiles": {"a": {}, "b": {}, "c": {}}}`, 3},
		{"duplicate key keeps one entry", `{"profiles": {"a": {"commandName": "Project"}, "a": {"commandName": "IISExpress"}}}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if set.Len() != tt.want {
				t.Errorf("expected %d profiles, got %d", tt.want, set.Len())
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    failure.Kind
	}{
		{"missing file", "", failure.ConfigNotFound},
		{"not json", "{not json", failure.ConfigMalformed},
		{"no profiles key", `{"iisSettings": {}}`, failure.ConfigMalformed},
		{"null profiles", `{"profiles": null}`, failure.ConfigMalformed},
		{"profiles not an object", `{"profiles": []}`, failure.ConfigMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.content))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBrowseURL(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"absolute launch url", Profile{LaunchURL: "http://example.test/x", ApplicationURL: "http://localhost:5000"}, "http://example.test/x"},
		{"relative launch url", Profile{LaunchURL: "/health", ApplicationURL: "http://localhost:5000/"}, "http://localhost:5000/health"},
		{"no launch url", Profile{ApplicationURL: "http://localhost:5000;https://localhost:5001"}, "http://localhost:5000"},
		{"nothing", Profile{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.BrowseURL(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
