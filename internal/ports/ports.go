package ports

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// FirstURL returns the first entry of a semicolon separated URL list, as used
// by launchSettings applicationUrl values.
func FirstURL(urls string) string {
	for _, part := range strings.Split(urls, ";") {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}

// PortFromURL extracts the listening port of the first URL in a semicolon
// separated list. URLs without an explicit port get the scheme default.
func PortFromURL(urls string) (int, error) {
	first := FirstURL(urls)
	if first == "" {
		return 0, fmt.Errorf("no URL in %q", urls)
	}
	u, err := url.Parse(first)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", first, err)
	}
	if u.Host == "" {
		return 0, fmt.Errorf("parse %q: missing host", first)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return 0, fmt.Errorf("parse %q: invalid port %q", first, p)
		}
		return port, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return 443, nil
	case "http":
		return 80, nil
	}
	return 0, fmt.Errorf("parse %q: no port", first)
}

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailablePort finds the next available port starting from the given port
func FindAvailablePort(startPort int) int {
	maxAttempts := 100 // Don't search forever
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		if IsPortAvailable(port) {
			return port
		}
	}
	return 0 // No available port found
}

// GetPortStatus returns a human-readable status of a port
func GetPortStatus(port int) string {
	if IsPortAvailable(port) {
		return fmt.Sprintf("Port %d is available", port)
	}
	return fmt.Sprintf("Port %d is in use", port)
}
