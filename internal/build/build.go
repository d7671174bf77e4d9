// Package build compiles .NET projects before they are launched and locates
// the artifact the runtime host loads.
package build

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/project"
)

const (
	DefaultCommand       = "dotnet"
	DefaultConfiguration = "Debug"
	DefaultFramework     = "net6.0"
	DefaultExtension     = "dll"
	DefaultTimeout       = 10 * time.Minute
)

// Builder produces the artifact of a project file.
type Builder interface {
	Build(ctx context.Context, projectFile string) error
	ArtifactPath(projectFile string) (string, error)
}

// Options configures a DotNet builder. Zero values take the defaults above.
type Options struct {
	Command       string
	Configuration string
	Framework     string // used when the project file names none
	Extension     string
	Timeout       time.Duration
	Skip          bool // only resolve artifacts, never run the build command
	MaxCPUCount   int  // MSBuild -maxcpucount; 0 leaves it to MSBuild

	// Output receives the build log of a project. Nil discards it.
	Output func(projectFile string) io.Writer
	Logger *slog.Logger
}

// DotNet runs `dotnet build` for a project file.
type DotNet struct {
	opts Options
	log  *slog.Logger
}

// NewDotNet returns a builder with defaults applied.
func NewDotNet(opts Options) *DotNet {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.Configuration == "" {
		opts.Configuration = DefaultConfiguration
	}
	if opts.Framework == "" {
		opts.Framework = DefaultFramework
	}
	opts.Extension = strings.TrimPrefix(opts.Extension, ".")
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DotNet{opts: opts, log: logger.With("component", "build")}
}

// Args returns the build command line for projectFile.
func (b *DotNet) Args(projectFile string) []string {
	args := []string{b.opts.Command, "build", projectFile, "-c", b.opts.Configuration, "--nologo"}
	if b.opts.MaxCPUCount > 0 {
		args = append(args, fmt.Sprintf("-maxcpucount:%d", b.opts.MaxCPUCount))
	}
	return args
}

// Build runs the build command and waits for it. A non-zero exit, a timeout,
// or a missing build tool is reported as failure.BuildFailed.
func (b *DotNet) Build(ctx context.Context, projectFile string) error {
	if b.opts.Skip {
		b.log.Debug("build skipped", "project", projectFile)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	args := b.Args(projectFile)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = project.Dir(projectFile)

	var out io.Writer = io.Discard
	if b.opts.Output != nil {
		if w := b.opts.Output(projectFile); w != nil {
			out = w
		}
	}
	// Keep the tail of the log so a failure can say why.
	tail := &tailBuffer{max: 2048}
	cmd.Stdout = io.MultiWriter(out, tail)
	cmd.Stderr = io.MultiWriter(out, tail)

	start := time.Now()
	b.log.Info("build started", "project", projectFile, "configuration", b.opts.Configuration)
	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", b.opts.Timeout)
		} else if last := tail.lastLine(); last != "" {
			err = fmt.Errorf("%w: %s", err, last)
		}
		b.log.Warn("build failed", "project", projectFile, "err", err)
		return failure.New(failure.BuildFailed, projectFile, err)
	}
	b.log.Info("build finished", "project", projectFile, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// ArtifactPath returns <dir>/bin/<configuration>/<tfm>/<name>.<ext>.
func (b *DotNet) ArtifactPath(projectFile string) (string, error) {
	tfm, err := TargetFramework(projectFile)
	if err != nil {
		return "", failure.New(failure.BuildFailed, projectFile, err)
	}
	if tfm == "" {
		tfm = b.opts.Framework
	}
	name := project.Name(projectFile) + "." + b.opts.Extension
	return filepath.Join(project.Dir(projectFile), "bin", b.opts.Configuration, tfm, name), nil
}

type csproj struct {
	PropertyGroups []struct {
		TargetFramework  string `xml:"TargetFramework"`
		TargetFrameworks string `xml:"TargetFrameworks"`
	} `xml:"PropertyGroup"`
}

// TargetFramework reads the target framework moniker from a project file. A
// multi-targeting project yields its first framework. It returns "" when the
// project declares none.
func TargetFramework(projectFile string) (string, error) {
	data, err := os.ReadFile(projectFile)
	if err != nil {
		return "", err
	}
	return parseTargetFramework(data)
}

func parseTargetFramework(data []byte) (string, error) {
	var proj csproj
	if err := xml.Unmarshal(data, &proj); err != nil {
		return "", fmt.Errorf("parse project file: %w", err)
	}
	for _, group := range proj.PropertyGroups {
		if tfm := strings.TrimSpace(group.TargetFramework); tfm != "" {
			return tfm, nil
		}
		for _, tfm := range strings.Split(group.TargetFrameworks, ";") {
			if tfm = strings.TrimSpace(tfm); tfm != "" {
				return tfm, nil
			}
		}
	}
	return "", nil
}

type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) lastLine() string {
	lines := strings.Split(strings.TrimSpace(string(t.buf)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
