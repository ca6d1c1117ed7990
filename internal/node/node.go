// Package node implements the Node State Machine described in spec.md §4.4:
// IDLE, ATTEMPT_CLAIM, and ACTIVE, plus the roster heartbeat and the claim
// race protocol. It is grounded on the teacher's pkg/worker.Worker — the
// same shape of ticker-driven loops with a stopCh, the same
// "launch subprocess, then run interleaved renewal/health loops until it
// exits" structure — generalized from Warren's gRPC-fetched task queue to
// Shortlist's Git-committed schedule/assignments documents.
package node

import (
	"context"
	"math/rand"
	"time"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/lease"
	"github.com/cuemby/shortlist/internal/metrics"
	"github.com/cuemby/shortlist/internal/renderer"
	"github.com/cuemby/shortlist/internal/repoclient"
	"github.com/cuemby/shortlist/internal/store"
	"github.com/cuemby/shortlist/pkg/log"
)

// State is one of the three states in spec.md §4.4.
type State int

const (
	StateIdle State = iota
	StateAttemptClaim
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAttemptClaim:
		return "ATTEMPT_CLAIM"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Node runs the state machine for one participating process. No terminal
// state; Run loops until ctx is cancelled.
type Node struct {
	cfg      config.Config
	store    *store.Store
	clock    lease.Clock
	registry *renderer.Registry
	runtime  *renderer.Runtime

	lastRosterHeartbeat time.Time
}

// New constructs a Node. registry/runtime may be nil in tests that never
// reach ACTIVE.
func New(cfg config.Config, st *store.Store, clock lease.Clock, registry *renderer.Registry, rt *renderer.Runtime) *Node {
	return &Node{cfg: cfg, store: st, clock: clock, registry: registry, runtime: rt}
}

// Run drives the state machine until ctx is cancelled. Cancellation is
// honored only at safe checkpoints (never mid-push), per spec.md §5.
func (n *Node) Run(ctx context.Context) {
	l := log.WithNode(n.cfg.NodeID)
	state := StateIdle
	var currentTask *store.Task

	for {
		if ctx.Err() != nil {
			l.Info().Msg("node stopping at safe checkpoint")
			return
		}

		switch state {
		case StateIdle:
			task, next := n.runIdle(ctx)
			currentTask = task
			state = next
		case StateAttemptClaim:
			next := n.runAttemptClaim(ctx, *currentTask)
			state = next
		case StateActive:
			n.runActive(ctx, *currentTask)
			currentTask = nil
			state = StateIdle
		}
	}
}

// runIdle implements spec.md §4.4's IDLE state: conditional roster
// heartbeat, then a scan for the first claimable task in ascending priority
// order.
func (n *Node) runIdle(ctx context.Context) (*store.Task, State) {
	l := log.WithNode(n.cfg.NodeID).With().Str("state", "IDLE").Logger()

	if time.Since(n.lastRosterHeartbeat) > n.cfg.HeartbeatInterval {
		if err := n.performRosterHeartbeat(ctx); err != nil {
			l.Warn().Err(err).Msg("roster heartbeat failed")
		} else {
			n.lastRosterHeartbeat = time.Now()
		}
	}

	if err := n.store.Sync(ctx); err != nil {
		l.Warn().Err(err).Msg("sync failed, sleeping before retry")
		sleepOrDone(ctx, n.cfg.IdlePollInterval)
		return nil, StateIdle
	}

	schedule, err := n.store.ReadSchedule()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt schedule, treating as empty")
		sleepOrDone(ctx, n.cfg.IdlePollInterval)
		return nil, StateIdle
	}
	assignments, err := n.store.ReadAssignments()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt assignments, treating as empty")
		sleepOrDone(ctx, n.cfg.IdlePollInterval)
		return nil, StateIdle
	}

	tasks := make([]store.Task, len(schedule.Tasks))
	copy(tasks, schedule.Tasks)
	sortTasksByPriority(tasks)

	now := time.Now().UTC()
	for _, t := range tasks {
		if !n.isCandidate(t, assignments, now) {
			continue
		}
		l.Info().Str("task_id", t.ID).Msg("found claimable task")
		task := t
		return &task, StateAttemptClaim
	}

	sleepOrDone(ctx, n.cfg.IdlePollInterval)
	return nil, StateIdle
}

// isCandidate implements the candidate-for-claim predicate of spec.md §4.4.
func (n *Node) isCandidate(t store.Task, assignments store.Assignments, now time.Time) bool {
	a, assigned := assignments.Assignments[t.ID]
	if assigned && !n.clock.IsOrphan(a.LeaseExpiresAt, now) {
		return false
	}
	if t.RequiredRole != "" && !n.cfg.HasRole(t.RequiredRole) {
		return false
	}
	if t.RequiredRegion != "" && t.RequiredRegion != n.cfg.Region {
		return false
	}
	return true
}

// runAttemptClaim implements spec.md §4.4's ATTEMPT_CLAIM state: the central
// claim race.
func (n *Node) runAttemptClaim(ctx context.Context, task store.Task) State {
	l := log.WithNode(n.cfg.NodeID).With().Str("state", "ATTEMPT_CLAIM").Str("task_id", task.ID).Logger()

	jitter := time.Duration(rand.Int63n(int64(n.cfg.JitterMax) + 1))
	sleepOrDone(ctx, jitter)
	if ctx.Err() != nil {
		return StateIdle
	}

	if err := n.store.Sync(ctx); err != nil {
		l.Warn().Err(err).Msg("sync failed during claim attempt")
		return StateIdle
	}

	assignments, err := n.store.ReadAssignments()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt assignments during claim attempt")
		return StateIdle
	}
	now := time.Now().UTC()
	if a, ok := assignments.Assignments[task.ID]; ok && !n.clock.IsOrphan(a.LeaseExpiresAt, now) {
		l.Info().Str("owner", a.NodeID).Msg("task already claimed by a peer, returning to IDLE")
		return StateIdle
	}

	assignments.Assignments[task.ID] = store.Assignment{
		NodeID:         n.cfg.NodeID,
		ClaimedAt:      now,
		LeaseExpiresAt: n.clock.NewLease(now),
		Status:         store.StatusClaiming,
		Region:         n.cfg.Region,
	}
	if err := n.store.WriteAssignments(assignments); err != nil {
		l.Warn().Err(err).Msg("failed to write claim")
		return StateIdle
	}

	message := "feat(assignments): node " + n.cfg.NodeIDPrefix() + " claims " + task.ID
	result, err := n.store.CommitAndPush(ctx, []string{store.AssignmentsPath}, message)
	if err != nil {
		l.Warn().Err(err).Msg("commit/push failed during claim attempt")
		metrics.ClaimAttemptsTotal.WithLabelValues("error").Inc()
		return StateIdle
	}

	switch result {
	case repoclient.Committed:
		l.Info().Msg("claim succeeded")
		metrics.ClaimAttemptsTotal.WithLabelValues("committed").Inc()
		return StateActive
	case repoclient.NothingToCommit:
		l.Info().Msg("claim collapsed to no-op, returning to IDLE")
		metrics.ClaimAttemptsTotal.WithLabelValues("nothing_to_commit").Inc()
		return StateIdle
	case repoclient.PushRejected:
		l.Info().Msg("claim lost the race, recovery reset")
		metrics.ClaimAttemptsTotal.WithLabelValues("push_rejected").Inc()
		if err := n.store.RecoveryReset(ctx); err != nil {
			l.Warn().Err(err).Msg("recovery reset failed")
		}
		return StateIdle
	}
	return StateIdle
}

// runActive implements spec.md §4.4's ACTIVE state: launch the renderer,
// then run the lease renewal loop and the health loop until the renderer
// exits, health fails, or ownership is lost.
func (n *Node) runActive(ctx context.Context, task store.Task) {
	l := log.WithNode(n.cfg.NodeID).With().Str("state", "ACTIVE").Str("task_id", task.ID).Logger()

	sup, err := renderer.New(n.runtime, n.registry, n.cfg.RepoPath, task.ID, task.Type, n.cfg.NodeID, n.cfg.Region)
	if err != nil {
		l.Warn().Err(err).Msg("no renderer descriptor for task type, releasing claim")
		n.releaseAssignmentBestEffort(ctx, task.ID)
		return
	}

	if err := sup.BuildImage(ctx); err != nil {
		l.Warn().Err(err).Msg("renderer build failed, releasing claim")
		n.releaseAssignmentBestEffort(ctx, task.ID)
		return
	}
	if err := sup.Start(ctx, n.cfg.NodeIDPrefix()); err != nil {
		l.Warn().Err(err).Msg("renderer start failed, releasing claim")
		n.releaseAssignmentBestEffort(ctx, task.ID)
		return
	}
	metrics.ActiveAssignments.Inc()
	defer metrics.ActiveAssignments.Dec()
	defer n.releaseAssignmentBestEffort(context.Background(), task.ID)
	defer sup.Stop(context.Background())

	now := time.Now().UTC()
	renewalTimer := time.NewTimer(n.clock.SleepUntilRenewal(n.clock.NewLease(now), now))
	defer renewalTimer.Stop()
	healthTicker := time.NewTicker(n.cfg.HealthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-renewalTimer.C:
			lease, ok := n.renewLease(ctx, task.ID)
			if !ok {
				return
			}
			renewalTimer.Reset(n.clock.SleepUntilRenewal(lease, time.Now().UTC()))

		case <-healthTicker.C:
			if !sup.IsRunning(ctx) {
				l.Warn().Msg("renderer process exited, tearing down")
				return
			}
			if !sup.CheckHealth(ctx, n.cfg.MaxConsecutiveFailures) {
				l.Warn().Msg("renderer failed health checks, tearing down")
				return
			}
		}
	}
}

// renewLease implements the lease renewal loop's single iteration. The
// second return value is false when ownership was lost or the loop must
// exit ACTIVE.
func (n *Node) renewLease(ctx context.Context, taskID string) (time.Time, bool) {
	l := log.WithNode(n.cfg.NodeID).With().Str("task_id", taskID).Logger()

	if err := n.store.Sync(ctx); err != nil {
		l.Warn().Err(err).Msg("sync failed during renewal")
		return time.Time{}, false
	}
	assignments, err := n.store.ReadAssignments()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt assignments during renewal")
		return time.Time{}, false
	}
	a, ok := assignments.Assignments[taskID]
	if !ok || a.NodeID != n.cfg.NodeID {
		l.Warn().Msg("lost ownership, tearing down")
		return time.Time{}, false
	}

	now := time.Now().UTC()
	a.LeaseExpiresAt = n.clock.NewLease(now)
	a.Status = store.StatusStreaming
	assignments.Assignments[taskID] = a
	if err := n.store.WriteAssignments(assignments); err != nil {
		l.Warn().Err(err).Msg("failed to write renewal")
		return time.Time{}, false
	}

	message := "chore(assignments): task heartbeat for " + taskID + " from node " + n.cfg.NodeIDPrefix()
	result, err := n.store.CommitAndPush(ctx, []string{store.AssignmentsPath}, message)
	if err != nil {
		l.Warn().Err(err).Msg("commit/push failed during renewal")
		metrics.LeaseRenewalsTotal.WithLabelValues("error").Inc()
		return time.Time{}, false
	}

	switch result {
	case repoclient.Committed:
		metrics.LeaseRenewalsTotal.WithLabelValues("committed").Inc()
		return a.LeaseExpiresAt, true
	case repoclient.NothingToCommit:
		metrics.LeaseRenewalsTotal.WithLabelValues("nothing_to_commit").Inc()
		return a.LeaseExpiresAt, true
	case repoclient.PushRejected:
		metrics.LeaseRenewalsTotal.WithLabelValues("push_rejected").Inc()
		if err := n.store.RecoveryReset(ctx); err != nil {
			l.Warn().Err(err).Msg("recovery reset failed")
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// performRosterHeartbeat implements the roster heartbeat described in
// spec.md §4.4's IDLE entry.
func (n *Node) performRosterHeartbeat(ctx context.Context) error {
	if err := n.store.Sync(ctx); err != nil {
		return err
	}
	roster, err := n.store.ReadRoster()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sample := metrics.SampleLocal()
	metrics.NodeCPULoad.Set(sample.CPULoad)
	metrics.NodeMemoryPercent.Set(sample.MemoryPercent)
	found := false
	for i, entry := range roster.Nodes {
		if entry.ID == n.cfg.NodeID {
			roster.Nodes[i].LastSeen = now
			roster.Nodes[i].Metrics = store.NodeMetric(sample)
			roster.Nodes[i].Region = n.cfg.Region
			found = true
			break
		}
	}
	if !found {
		roster.Nodes = append(roster.Nodes, store.NodeEntry{
			ID:        n.cfg.NodeID,
			StartedAt: now,
			LastSeen:  now,
			Metrics:   store.NodeMetric(sample),
			Region:    n.cfg.Region,
		})
	}

	if err := n.store.WriteRoster(roster); err != nil {
		return err
	}

	message := "chore(roster): heartbeat from node " + n.cfg.NodeIDPrefix()
	result, err := n.store.CommitAndPush(ctx, []string{store.RosterPath}, message)
	if err != nil {
		return err
	}
	if result == repoclient.PushRejected {
		return n.store.RecoveryReset(ctx)
	}
	if result == repoclient.Committed {
		metrics.RosterHeartbeatsTotal.Inc()
	}
	return nil
}

// releaseAssignmentBestEffort attempts to remove this node's own assignment
// on exit from ACTIVE. Per spec.md §9's Open Question resolution, this is
// best-effort only; the Healer is the backstop if it fails or races.
func (n *Node) releaseAssignmentBestEffort(ctx context.Context, taskID string) {
	l := log.WithNode(n.cfg.NodeID).With().Str("task_id", taskID).Logger()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.store.Sync(ctx); err != nil {
		l.Debug().Err(err).Msg("release: sync failed, leaving it for the healer")
		return
	}
	assignments, err := n.store.ReadAssignments()
	if err != nil {
		return
	}
	a, ok := assignments.Assignments[taskID]
	if !ok || a.NodeID != n.cfg.NodeID {
		return
	}
	delete(assignments.Assignments, taskID)
	if err := n.store.WriteAssignments(assignments); err != nil {
		return
	}
	message := "chore(assignments): release " + taskID + " from node " + n.cfg.NodeIDPrefix()
	if _, err := n.store.CommitAndPush(ctx, []string{store.AssignmentsPath}, message); err != nil {
		l.Debug().Err(err).Msg("release: commit/push failed, leaving it for the healer")
	}
}

func sortTasksByPriority(tasks []store.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].Priority < tasks[j-1].Priority; j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
