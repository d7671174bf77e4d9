package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsKind(t *testing.T) {
	err := New(BuildFailed, "/src/Api/Api.csproj", errors.New("exit status 1"))
	wrapped := fmt.Errorf("start: %w", err)

	if !errors.Is(wrapped, BuildFailed) {
		t.Errorf("expected errors.Is(BuildFailed) to match")
	}
	if errors.Is(wrapped, LaunchFailed) {
		t.Errorf("expected errors.Is(LaunchFailed) to not match")
	}
	if got := KindOf(wrapped); got != BuildFailed {
		t.Errorf("expected kind BuildFailed, got %v", got)
	}
	if got := ProjectOf(wrapped); got != "/src/Api/Api.csproj" {
		t.Errorf("expected project id, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "project and cause",
			err:  New(MissingDependency, "/src/Web/Web.csproj", errors.New("iisexpress not found")),
			want: "Web.csproj: missing dependency: iisexpress not found",
		},
		{
			name: "kind only",
			err:  New(AlreadyRunning, "", nil),
			want: "already running",
		},
		{
			name: "formatted",
			err:  Newf(UnsupportedCommandKind, "/a/b.csproj", "command %q", "Docker"),
			want: `b.csproj: unsupported command kind: command "Docker"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Unknown {
		t.Errorf("expected Unknown, got %v", got)
	}
}
