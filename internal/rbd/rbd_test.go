package rbd

import "testing"

func TestFq(t *testing.T) {
	tests := []struct {
		pool, name, want string
	}{
		{"rbd", "pvc-0001", "rbd/pvc-0001"},
		{"ssd-pool", "backup-pvc-0002", "ssd-pool/backup-pvc-0002"},
	}
	for _, tt := range tests {
		if got := Fq(tt.pool, tt.name); string(got) != tt.want {
			t.Errorf("Fq(%q, %q) = %q, want %q", tt.pool, tt.name, got, tt.want)
		}
	}
}

func TestSnap(t *testing.T) {
	tests := []struct {
		pool, name, snap, want string
	}{
		{"rbd", "pvc-0001", "backup", "rbd/pvc-0001@backup"},
	}
	for _, tt := range tests {
		if got := Snap(tt.pool, tt.name, tt.snap); string(got) != tt.want {
			t.Errorf("Snap(%q, %q, %q) = %q, want %q", tt.pool, tt.name, tt.snap, got, tt.want)
		}
	}
}
