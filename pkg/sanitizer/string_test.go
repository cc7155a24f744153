package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
		{"collapses internal whitespace", "San   \t Antonio", "San Antonio"},
		{"strips control characters", "Dal\x00las\x07", "Dallas"},
		{"trims edges", "  Houston  ", "Houston"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate(" abc-123 "); got != "ABC-123" {
		t.Errorf("NormalizePlate = %q, want ABC-123", got)
	}
}
