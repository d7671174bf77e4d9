package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/project"
)

func TestPrintProjects(t *testing.T) {
	var buf bytes.Buffer
	PrintProjects(&buf, []project.Snapshot{
		{ID: "/src/Api/Api.csproj", FilePath: "/src/Api/Api.csproj", SelectedProfile: "Api", BatchSelected: true, State: project.Running, PID: 42},
		{ID: "/src/Web/Web.csproj", FilePath: "/src/Web/Web.csproj", Err: failure.New(failure.ConfigNotFound, "/src/Web/Web.csproj", nil)},
	})
	out := buf.String()

	for _, want := range []string{"[x] Api", "Running 42", "[ ] Web", "Stopped", "launch settings not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintProjectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintProjects(&buf, nil)
	if !strings.Contains(buf.String(), "no projects tracked") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintProfilesMarksSelection(t *testing.T) {
	var buf bytes.Buffer
	snap := project.Snapshot{Profiles: []string{"Api", "IIS Express"}, SelectedProfile: "IIS Express"}
	PrintProfiles(&buf, snap, func(name string) string { return "kind of " + name })

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if strings.Contains(lines[0], "*") || !strings.Contains(lines[1], "* IIS Express") {
		t.Errorf("expected only the selected profile marked: %q", lines)
	}
	if !strings.Contains(lines[0], "kind of Api") {
		t.Errorf("expected the description, got %q", lines[0])
	}
}
