package syncer

import "testing"

func TestSplitPin(t *testing.T) {
	tests := []struct {
		upstream   string
		wantSource string
		wantPin    string
	}{
		{"owner/repo/skills/canvas-design@v1.2.0", "owner/repo/skills/canvas-design", "v1.2.0"},
		{"owner/repo/commands/review.md", "owner/repo/commands/review.md", ""},
		{"owner/repo@main", "owner/repo", "main"},
		{"", "", ""},
	}
	for _, tt := range tests {
		source, pin := SplitPin(tt.upstream)
		if source != tt.wantSource || pin != tt.wantPin {
			t.Errorf("SplitPin(%q) = %q, %q, want %q, %q", tt.upstream, source, pin, tt.wantSource, tt.wantPin)
		}
	}
}

func TestPinOutdated(t *testing.T) {
	tests := []struct {
		pin    string
		latest string
		want   bool
	}{
		{"v1.2.0", "v1.3.0", true},
		{"v1.3.0", "v1.3.0", false},
		{"v2.0.0", "v1.9.9", false},
		{"1.2.0", "1.10.0", true}, // missing v prefix still compares
		{"main", "v1.0.0", false}, // branch pins never age out
		{"v1.0.0", "abc123", false},
		{"", "v1.0.0", false},
	}
	for _, tt := range tests {
		if got := PinOutdated(tt.pin, tt.latest); got != tt.want {
			t.Errorf("PinOutdated(%q, %q) = %v, want %v", tt.pin, tt.latest, got, tt.want)
		}
	}
}
