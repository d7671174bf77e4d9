package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harshul/microrun/internal/failure"
)

func TestParseTargetFramework(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			name: "single",
			xml:  `<Project Sdk="Microsoft.NET.Sdk.Web"><PropertyGroup><TargetFramework>net8.0</TargetFramework></PropertyGroup></Project>`,
			want: "net8.0",
		},
		{
			name: "multi targeting takes the first",
			xml:  `<Project><PropertyGroup><TargetFrameworks> net7.0;net6.0 </TargetFrameworks></PropertyGroup></Project>`,
			want: "net7.0",
		},
		{
			name: "second property group",
			xml:  `<Project><PropertyGroup><Nullable>enable</Nullable></PropertyGroup><PropertyGroup><TargetFramework>net6.0</TargetFramework></PropertyGroup></Project>`,
			want: "net6.0",
		},
		{
			name: "none declared",
			xml:  `<Project><PropertyGroup /></Project>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTargetFramework([]byte(tt.xml))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := parseTargetFramework([]byte("<Project>")); err == nil {
		t.Errorf("expected error for truncated xml")
	}
}

func TestArtifactPath(t *testing.T) {
	dir := t.TempDir()
	projectFile := filepath.Join(dir, "Orders.Api.csproj")
	body := `<Project><PropertyGroup><TargetFramework>net8.0</TargetFramework></PropertyGroup></Project>`
	if err := os.WriteFile(projectFile, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	b := NewDotNet(Options{Configuration: "Release"})
	got, err := b.ArtifactPath(projectFile)
	if err != nil {
		t.Fatalf("ArtifactPath: %v", err)
	}
	want := filepath.Join(dir, "bin", "Release", "net8.0", "Orders.Api.dll")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestArtifactPathDefaultFramework(t *testing.T) {
	dir := t.TempDir()
	projectFile := filepath.Join(dir, "Web.csproj")
	if err := os.WriteFile(projectFile, []byte("<Project />"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewDotNet(Options{Extension: ".exe"}).ArtifactPath(projectFile)
	if err != nil {
		t.Fatalf("ArtifactPath: %v", err)
	}
	want := filepath.Join(dir, "bin", "Debug", "net6.0", "Web.exe")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestArtifactPathMissingProject(t *testing.T) {
	_, err := NewDotNet(Options{}).ArtifactPath(filepath.Join(t.TempDir(), "Gone.csproj"))
	if !errors.Is(err, failure.BuildFailed) {
		t.Errorf("expected BuildFailed, got %v", err)
	}
}

func TestBuildMissingTool(t *testing.T) {
	b := NewDotNet(Options{Command: filepath.Join(t.TempDir(), "no-such-dotnet")})
	err := b.Build(context.Background(), filepath.Join(t.TempDir(), "Web.csproj"))
	if !errors.Is(err, failure.BuildFailed) {
		t.Errorf("expected BuildFailed, got %v", err)
	}
}

func TestBuildSkip(t *testing.T) {
	b := NewDotNet(Options{Command: "no-such-dotnet", Skip: true})
	if err := b.Build(context.Background(), "Web.csproj"); err != nil {
		t.Errorf("skip should not run the build: %v", err)
	}
}

func TestArgs(t *testing.T) {
	got := NewDotNet(Options{}).Args("/src/Web.csproj")
	want := []string{"dotnet", "build", "/src/Web.csproj", "-c", "Debug", "--nologo"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestArgsMaxCPUCount(t *testing.T) {
	got := NewDotNet(Options{Configuration: "Release", MaxCPUCount: 2}).Args("/src/Web.csproj")
	if last := got[len(got)-1]; last != "-maxcpucount:2" {
		t.Errorf("expected -maxcpucount:2 last, got %v", got)
	}
	if got[4] != "Release" {
		t.Errorf("expected Release configuration, got %v", got)
	}
}
