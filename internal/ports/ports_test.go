package ports

import (
	"net"
	"strings"
	"testing"
)

func TestFindAvailablePort(t *testing.T) {
	// 1. Find a port that's currently available to use for testing
	//    We use port 0 to let the system assign an available port
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to get a test port: %v", err)
	}
	defer ln.Close()

	// Get the assigned port
	blockedPort := ln.Addr().(*net.TCPAddr).Port

	// 2. Ask for a port starting at the blocked port
	got := FindAvailablePort(blockedPort)

	// 3. The result should be past the blocked port since it is busy
	if got <= blockedPort {
		t.Errorf("FindAvailablePort(%d) = %d; want a port after %d (because %d is busy)", blockedPort, got, blockedPort, blockedPort)
	}
	if !strings.Contains(GetPortStatus(blockedPort), "in use") {
		t.Errorf("expected port %d to be reported in use", blockedPort)
	}
}

func TestPortFromURL(t *testing.T) {
	tests := []struct {
		name    string
		urls    string
		want    int
		wantErr bool
	}{
		{"first segment only", "http://localhost:8080;https://localhost:8443", 8080, false},
		{"single", "https://localhost:44300", 44300, false},
		{"spaces around segments", "  ; http://localhost:5000 ", 5000, false},
		{"http default", "http://localhost", 80, false},
		{"https default", "https://localhost/", 443, false},
		{"empty", "", 0, true},
		{"no host", "localhost:8080", 0, true},
		{"bad port", "http://localhost:99999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PortFromURL(tt.urls)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PortFromURL(%q) error = %v, wantErr %v", tt.urls, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PortFromURL(%q) = %d; want %d", tt.urls, got, tt.want)
			}
		})
	}
}
