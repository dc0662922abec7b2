package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"call_next", "waiting", true},
		{"call_next", "called", false},
		{"call_next", "finished", false},
		{"finish", "called", true},
		{"finish", "waiting", false},
		{"finish", "no_show", false},
		{"no_show", "called", true},
		{"no_show", "waiting", false},
		{"no_show", "finished", false},
		{"unknown", "waiting", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
