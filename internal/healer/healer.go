// Package healer implements the Healer described in spec.md §4.7: a
// periodic sweeper that purges zombie and stale entries from
// assignments.json. Its loop shape is grounded on the same
// pkg/reconciler.Reconciler ticker/stopCh pattern as internal/governor,
// generalized to a single-document purge sweep instead of cluster
// node/container reconciliation.
package healer

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/lease"
	"github.com/cuemby/shortlist/internal/metrics"
	"github.com/cuemby/shortlist/internal/repoclient"
	"github.com/cuemby/shortlist/internal/store"
	"github.com/cuemby/shortlist/pkg/log"
)

// Healer runs the periodic purge loop.
type Healer struct {
	cfg   config.Config
	store *store.Store
	clock lease.Clock
}

// New constructs a Healer.
func New(cfg config.Config, st *store.Store, clock lease.Clock) *Healer {
	return &Healer{cfg: cfg, store: st, clock: clock}
}

// Run drives the Healer loop until ctx is cancelled.
func (h *Healer) Run(ctx context.Context) {
	l := log.WithComponent("healer")
	ticker := time.NewTicker(h.cfg.HealerPeriod)
	defer ticker.Stop()

	l.Info().Dur("period", h.cfg.HealerPeriod).Msg("healer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("healer stopping")
			return
		case <-ticker.C:
			h.runCycle(ctx)
		}
	}
}

// runCycle implements one Healer cycle, spec.md §4.7 steps 1-5.
func (h *Healer) runCycle(ctx context.Context) {
	l := log.WithComponent("healer")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HealerCycleDuration)

	if err := h.store.Sync(ctx); err != nil {
		l.Warn().Err(err).Msg("sync failed, skipping cycle")
		metrics.HealerCycles.WithLabelValues("sync_error").Inc()
		return
	}

	roster, err := h.store.ReadRoster()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt roster, skipping cycle")
		metrics.HealerCycles.WithLabelValues("roster_error").Inc()
		return
	}
	assignments, err := h.store.ReadAssignments()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt assignments, skipping cycle")
		metrics.HealerCycles.WithLabelValues("assignments_error").Inc()
		return
	}

	now := time.Now().UTC()
	alive := make(map[string]bool, len(roster.Nodes))
	for _, n := range roster.Nodes {
		if n.IsAlive(now, h.cfg.NodeTimeout) {
			alive[n.ID] = true
		}
	}

	totalTasks := len(assignments.Assignments)
	purged := 0
	for taskID, a := range assignments.Assignments {
		if h.isPurgeable(a, alive, now) {
			delete(assignments.Assignments, taskID)
			purged++
		}
	}
	remaining := len(assignments.Assignments)

	l.Info().Int("total_tasks", totalTasks).Int("purged", purged).Int("remaining_tasks", remaining).
		Msg("healer cycle summary")

	if purged == 0 {
		metrics.HealerCycles.WithLabelValues("no_change").Inc()
		return
	}

	if err := h.store.WriteAssignments(assignments); err != nil {
		l.Warn().Err(err).Msg("failed to write purged assignments")
		metrics.HealerCycles.WithLabelValues("write_error").Inc()
		return
	}

	message := fmt.Sprintf("fix(healer): Cleared %d zombie task assignments", purged)
	result, err := h.store.CommitAndPush(ctx, []string{store.AssignmentsPath}, message)
	if err != nil {
		l.Warn().Err(err).Msg("commit/push failed")
		metrics.HealerCycles.WithLabelValues("push_error").Inc()
		return
	}

	switch result {
	case repoclient.Committed:
		l.Info().Int("purged", purged).Msg("purged stale assignments")
		metrics.HealerCycles.WithLabelValues("committed").Inc()
		metrics.HealerPurgedTotal.Add(float64(purged))
	case repoclient.NothingToCommit:
		metrics.HealerCycles.WithLabelValues("nothing_to_commit").Inc()
	case repoclient.PushRejected:
		metrics.HealerCycles.WithLabelValues("push_rejected").Inc()
		if err := h.store.RecoveryReset(ctx); err != nil {
			l.Warn().Err(err).Msg("recovery reset failed")
		}
	}
}

// isPurgeable implements spec.md §4.7 step 4: zombie (dead owner) or stale
// (lease expired past healer_grace with no renewal).
func (h *Healer) isPurgeable(a store.Assignment, alive map[string]bool, now time.Time) bool {
	if !alive[a.NodeID] {
		return true
	}
	graced := a.LeaseExpiresAt.Add(h.cfg.HealerGrace)
	return now.After(graced)
}
