package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"trims", "  vendor_pro  ", 64, "vendor_pro"},
		{"drops control characters", "Asha\nMwita\x00", 120, "AshaMwita"},
		{"caps bytes", "tok_1234567890", 8, "tok_1234"},
		{"keeps runes whole", "Zuhura Müller", 9, "Zuhura M"},
		{"no limit", "  m-pesa ", 0, "m-pesa"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.input, tt.max); got != tt.want {
			t.Errorf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}
