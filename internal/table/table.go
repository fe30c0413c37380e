// Package table renders the candidate list for the "metrics --table"
// diagnostic view, grounded on
// cloudnative-pg-cloudnative-pg/internal/cmd/plugin/hibernate's
// tabby.NewCustom(tabwriter.NewWriter(...)) usage for writing to an
// arbitrary io.Writer rather than stdout.
package table

import (
	"io"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
)

// Render prints one row per candidate to w: NAMESPACE, PVC, LAST
// ATTEMPT, LAST BACKUP, JOBS (current job count for that volume, 0 or
// 1 since at most one active job exists per volume, per spec.md §3
// invariant 2).
func Render(w io.Writer, candidates []model.Candidate, jobsByPV map[string]int) {
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
	t.AddHeader("NAMESPACE", "PVC", "LAST ATTEMPT", "LAST BACKUP", "JOBS")

	for _, c := range candidates {
		t.AddLine(c.Namespace, c.Name, formatTime(c.LastAttempt), formatTime(c.LastBackup), jobsByPV[c.PV])
	}

	t.Print()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return model.RenderDate(*t)
}
