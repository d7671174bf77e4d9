// Package browser opens URLs in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Opener opens a URL somewhere a human can see it.
type Opener interface {
	Open(url string) error
}

// System opens URLs with the platform's default handler.
type System struct{}

// Open starts the platform handler for url and does not wait for it.
func (System) Open(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("browser: empty url")
	}
	cmd, err := command(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func command(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("browser: unsupported platform %s", goos)
	}
}

// Policy decides when a started profile opens the browser.
type Policy string

const (
	PolicyNever   Policy = "never"
	PolicyProfile Policy = "profile" // honour the profile's launchBrowser flag
	PolicyAlways  Policy = "always"
)

// ParsePolicy maps a config value to a Policy; "" means PolicyProfile.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyProfile, nil
	case PolicyNever, PolicyProfile, PolicyAlways:
		return p, nil
	default:
		return "", fmt.Errorf("browser: invalid policy %q (want never, profile or always)", raw)
	}
}

// ShouldOpen applies the policy to a profile's launchBrowser flag.
func (p Policy) ShouldOpen(launchBrowser bool) bool {
	switch p {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	default:
		return launchBrowser
	}
}
