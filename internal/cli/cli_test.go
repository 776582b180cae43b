package cli

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 10*time.Minute, "2h10m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	old := rootDir
	defer func() { rootDir = old }()
	rootDir = filepath.FromSlash("/srv/ragvault")

	if got := resolvePath("data/vector_db"); got != filepath.Join(rootDir, "data", "vector_db") {
		t.Errorf("relative path resolved to %q", got)
	}
	abs := filepath.FromSlash("/var/lib/vector_db")
	if got := resolvePath(abs); got != abs {
		t.Errorf("absolute path changed to %q", got)
	}
}
