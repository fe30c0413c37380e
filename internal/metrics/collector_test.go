package metrics

import (
	"testing"
	"time"
)

func TestDueBucketNeverAttempted(t *testing.T) {
	if got := dueBucket(time.Now(), nil); got != 0 {
		t.Errorf("dueBucket(nil) = %d, want 0", got)
	}
}

func TestDueBucketTracksHoursUntilDueFromLastAttempt(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		lastAttempt time.Time
		want        int
	}{
		{"just attempted", now, 24},
		{"attempted 1 hour ago", now.Add(-1 * time.Hour), 23},
		{"attempted 23 hours ago", now.Add(-23 * time.Hour), 1},
		{"attempted exactly 24 hours ago", now.Add(-24 * time.Hour), 0},
		{"overdue by a week", now.Add(-7 * 24 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastAttempt := tt.lastAttempt
			if got := dueBucket(now, &lastAttempt); got != tt.want {
				t.Errorf("dueBucket() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDueBucketIgnoresLastBackup(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	recentAttempt := now.Add(-1 * time.Hour)

	// A failed attempt an hour ago must not be "never due" just because
	// no backup has ever succeeded.
	if got := dueBucket(now, &recentAttempt); got != 23 {
		t.Errorf("dueBucket() = %d, want 23 (derived from last_attempt, not last_backup)", got)
	}
}

func TestAgeBucketNeverBackedUp(t *testing.T) {
	if got := ageBucket(time.Now(), nil); got != 36 {
		t.Errorf("ageBucket(nil) = %d, want 36 (overflow bucket)", got)
	}
}

func TestAgeBucketTracksHoursSinceLastBackup(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastBackup time.Time
		want       int
	}{
		{"just backed up", now, 0},
		{"backed up 1 hour ago", now.Add(-1 * time.Hour), 1},
		{"backed up 36 hours ago", now.Add(-36 * time.Hour), 36},
		{"backed up a month ago", now.Add(-30 * 24 * time.Hour), 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastBackup := tt.lastBackup
			if got := ageBucket(now, &lastBackup); got != tt.want {
				t.Errorf("ageBucket() = %d, want %d", got, tt.want)
			}
		})
	}
}
