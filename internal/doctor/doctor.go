package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/harshul/microrun/internal/launchsettings"
	"github.com/harshul/microrun/internal/ports"
)

// ErrIISExpressNotFound is returned when no IIS Express host can be located.
var ErrIISExpressNotFound = errors.New("iisexpress executable not found")

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// ProjectStatus represents the launch readiness of one tracked project
type ProjectStatus struct {
	ID              string
	SettingsFile    string
	Profiles        int
	SelectedProfile string
	Kind            launchsettings.CommandKind
	Port            int
	PortBusy        bool
	Issues          []string
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	Runtime    RuntimeStatus
	IISExpress RuntimeStatus
	Projects   []ProjectStatus
	Healthy    bool
	Issues     []string
}

// Target is a project to diagnose
type Target struct {
	ID              string
	SelectedProfile string
}

// Options controls which host binaries Diagnose looks for
type Options struct {
	RuntimeHost    string // defaults to "dotnet"
	IISExpressPath string // explicit override, checked first
}

// Diagnose checks the host tooling and every target project
func Diagnose(targets []Target, opts Options) Diagnosis {
	host := opts.RuntimeHost
	if host == "" {
		host = "dotnet"
	}

	diagnosis := Diagnosis{
		Runtime: checkRuntime(host),
		Healthy: true,
		Issues:  []string{},
	}

	diagnosis.IISExpress = RuntimeStatus{Name: "IIS Express"}
	if path, err := LocateIISExpress(opts.IISExpressPath); err == nil {
		diagnosis.IISExpress.Installed = true
		diagnosis.IISExpress.Path = path
	}

	if !diagnosis.Runtime.Installed {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, diagnosis.Runtime.Name+" runtime is not installed")
	}

	for _, target := range targets {
		status := checkProject(target)
		if status.Kind == launchsettings.RunUnderIISExpress && !diagnosis.IISExpress.Installed {
			status.Issues = append(status.Issues, "profile needs IIS Express, which is not installed")
		}
		if len(status.Issues) > 0 {
			diagnosis.Healthy = false
		}
		diagnosis.Projects = append(diagnosis.Projects, status)
	}

	return diagnosis
}

// checkRuntime checks if the runtime host is installed
func checkRuntime(host string) RuntimeStatus {
	status := RuntimeStatus{Name: host, Installed: false}

	path, err := exec.LookPath(host)
	if err != nil {
		return status
	}
	status.Path = path

	cmd := exec.Command(path, "--version")
	output, err := cmd.Output()
	if err == nil {
		status.Installed = true
		status.Version = strings.TrimSpace(string(output))
	}

	return status
}

// checkProject loads launch settings and validates the selected profile
func checkProject(target Target) ProjectStatus {
	status := ProjectStatus{
		ID:              target.ID,
		SettingsFile:    launchsettings.SettingsPath(target.ID),
		SelectedProfile: target.SelectedProfile,
	}

	if _, err := os.Stat(target.ID); err != nil {
		status.Issues = append(status.Issues, "project file is missing")
	}

	set, err := launchsettings.Load(target.ID)
	if err != nil {
		status.Issues = append(status.Issues, err.Error())
		return status
	}
	status.Profiles = set.Len()

	if target.SelectedProfile == "" {
		status.Issues = append(status.Issues, "no launch profile selected")
		return status
	}
	profile, ok := set.Get(target.SelectedProfile)
	if !ok {
		status.Issues = append(status.Issues, fmt.Sprintf("selected profile %q no longer exists", target.SelectedProfile))
		return status
	}
	status.Kind = profile.Kind
	if profile.Kind == launchsettings.KindUnknown {
		status.Issues = append(status.Issues, fmt.Sprintf("commandName %q is not supported", profile.CommandName))
		return status
	}

	if listen := profile.ListenURL(); listen != "" {
		if port, err := ports.PortFromURL(listen); err == nil {
			status.Port = port
			status.PortBusy = !ports.IsPortAvailable(port)
			if status.PortBusy {
				issue := ports.GetPortStatus(port)
				if free := ports.FindAvailablePort(port + 1); free > 0 {
					issue += fmt.Sprintf(" (next free port: %d)", free)
				}
				status.Issues = append(status.Issues, issue)
			}
		}
	}

	return status
}

// LocateIISExpress finds the IIS Express host. An explicit override wins; then
// PATH; then the well-known Program Files install locations.
func LocateIISExpress(override string) (string, error) {
	return locateIISExpress(override, exec.LookPath, programFilesDirs(), runtime.GOOS)
}

func locateIISExpress(override string, lookPath func(string) (string, error), programFiles []string, goos string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		if isFile(override) {
			return override, nil
		}
		return "", fmt.Errorf("%w at %s", ErrIISExpressNotFound, override)
	}

	if path, err := lookPath("iisexpress"); err == nil {
		return path, nil
	}

	if goos != "windows" {
		return "", ErrIISExpressNotFound
	}
	for _, dir := range programFiles {
		candidate := filepath.Join(dir, "IIS Express", "iisexpress.exe")
		if isFile(candidate) {
			return candidate, nil
		}
	}
	return "", ErrIISExpressNotFound
}

func programFilesDirs() []string {
	var dirs []string
	for _, env := range []string{"ProgramFiles", "ProgramW6432", "ProgramFiles(x86)"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			dirs = append(dirs, v)
		}
	}
	return dirs
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
