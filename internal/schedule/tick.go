package schedule

import (
	"math"
	"sort"
	"time"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
)

// dueThreshold is 23:30:00, the minimum gap since a volume's last
// attempt before it's due again. It is deliberately 30 minutes short
// of 24 hours so a daily tick doesn't slip a day late, per spec.md
// §4.3.
const dueThreshold = 24*time.Hour - 30*time.Minute

// Select narrows candidates to the ones due for backup right now, then
// smears them: instead of running every due volume in one tick, it
// runs ceil(total/24) of them, oldest-last-attempt-first, so that if
// every volume becomes due at once their backups spread across a day
// of ticks rather than colliding. Due-ness, sort order, and the smear
// quota are all computed from LastAttempt (not LastBackup): a volume
// whose most recent attempt failed must still respect the cooldown
// since that attempt, rather than being treated as permanently due
// because it never recorded a successful backup.
func Select(candidates []model.Candidate, now time.Time) []model.Candidate {
	total := len(candidates)

	var due []model.Candidate
	for _, c := range candidates {
		if c.LastAttempt == nil || now.Sub(*c.LastAttempt) > dueThreshold {
			due = append(due, c)
		}
	}

	sortByLastAttempt(due)

	doNow := int(math.Ceil(float64(total) / 24))
	if doNow > len(due) {
		doNow = len(due)
	}
	return due[:doNow]
}

// sortByLastAttempt orders candidates oldest-last-attempt-first, with
// never-attempted volumes sorting before any that have a recorded
// timestamp, mirroring SortByLastBackup's ordering but on the field
// Select actually schedules against.
func sortByLastAttempt(candidates []model.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lastAttemptOrZero(candidates[i]).Before(lastAttemptOrZero(candidates[j]))
	})
}

func lastAttemptOrZero(c model.Candidate) time.Time {
	if c.LastAttempt == nil {
		return time.Unix(0, 0).UTC()
	}
	return *c.LastAttempt
}
