package model

import (
	"testing"
	"time"
)

func TestRenderParseDateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
	}{
		{"epoch", time.Unix(0, 0).UTC()},
		{"ordinary", time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)},
		{"non-utc input normalized", time.Date(2024, 3, 15, 9, 45, 30, 0, time.FixedZone("EST", -4*3600))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered := RenderDate(tt.in)
			if len(rendered) != 20 {
				t.Fatalf("rendered timestamp %q is not 20 characters", rendered)
			}
			parsed, err := ParseDate(rendered)
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", rendered, err)
			}
			if !parsed.Equal(tt.in) {
				t.Errorf("round-trip mismatch: got %v, want %v", parsed, tt.in.UTC())
			}
		})
	}
}

func TestParseDateRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"2024-03-15T13:45:30",      // missing trailing Z
		"2024-03-15T13:45:30.123Z", // sub-second precision, wrong length
		"not-a-date-at-all-Z",
	}
	for _, in := range tests {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q): expected error, got nil", in)
		}
	}
}

func TestParseOptIn(t *testing.T) {
	tests := []struct {
		raw  string
		want OptIn
	}{
		{"1", True}, {"yes", True}, {"true", True}, {"TRUE", True},
		{"0", False}, {"no", False}, {"false", False}, {"FALSE", False},
		{"", Unset}, {"maybe", Unset},
	}
	for _, tt := range tests {
		if got := ParseOptIn(tt.raw); got != tt.want {
			t.Errorf("ParseOptIn(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestResolveOptInTruthTable(t *testing.T) {
	tests := []struct {
		name               string
		volume, ns, claim  OptIn
		want               bool
	}{
		{"volume true wins over everything false", True, False, False, true},
		{"volume false wins over everything true", False, True, True, false},
		{"unset volume, ns false excludes", Unset, False, Unset, false},
		{"unset volume, claim false excludes", Unset, Unset, False, false},
		{"unset volume, both false excludes", Unset, False, False, false},
		{"all unset defaults to included", Unset, Unset, Unset, true},
		{"unset volume, both true includes", Unset, True, True, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.volume, tt.ns, tt.claim); got != tt.want {
				t.Errorf("Resolve(%v, %v, %v) = %v, want %v", tt.volume, tt.ns, tt.claim, got, tt.want)
			}
		})
	}
}
