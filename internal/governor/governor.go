// Package governor implements the Governor described in spec.md §4.6: a
// periodic policy engine that mutates schedule.json in response to
// time-based and swarm-metric triggers, gated by quorum. Its loop shape is
// grounded on the teacher's pkg/reconciler.Reconciler — a ticker plus a
// stopCh selecting into one cycle function — generalized from cluster
// node/container reconciliation to Git-committed trigger evaluation.
package governor

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/metrics"
	"github.com/cuemby/shortlist/internal/repoclient"
	"github.com/cuemby/shortlist/internal/store"
	"github.com/cuemby/shortlist/pkg/log"
)

// Governor runs the periodic trigger-evaluation loop.
type Governor struct {
	cfg   config.Config
	store *store.Store
}

// New constructs a Governor.
func New(cfg config.Config, st *store.Store) *Governor {
	return &Governor{cfg: cfg, store: st}
}

// Run drives the Governor loop until ctx is cancelled.
func (g *Governor) Run(ctx context.Context) {
	l := log.WithComponent("governor")
	ticker := time.NewTicker(g.cfg.GovernorPeriod)
	defer ticker.Stop()

	l.Info().Dur("period", g.cfg.GovernorPeriod).Msg("governor started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("governor stopping")
			return
		case <-ticker.C:
			g.runCycle(ctx)
		}
	}
}

// swarmHealth is the quorum-relevant snapshot computed once per cycle, per
// spec.md §4.6 step 3.
type swarmHealth struct {
	totalNodes int
	aliveNodes int
	metrics    map[string][]float64 // metric name -> alive node values
}

func (h swarmHealth) alivePercent() float64 {
	if h.totalNodes == 0 {
		return 0
	}
	return float64(h.aliveNodes) / float64(h.totalNodes) * 100
}

// runCycle implements one Governor cycle, spec.md §4.6 steps 1-7.
func (g *Governor) runCycle(ctx context.Context) {
	l := log.WithComponent("governor")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GovernorCycleDuration)

	if err := g.store.Sync(ctx); err != nil {
		l.Warn().Err(err).Msg("sync failed, skipping cycle")
		metrics.GovernorCycles.WithLabelValues("sync_error").Inc()
		return
	}

	roster, err := g.store.ReadRoster()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt roster, skipping cycle")
		metrics.GovernorCycles.WithLabelValues("roster_error").Inc()
		return
	}
	schedule, err := g.store.ReadSchedule()
	if err != nil {
		l.Warn().Err(err).Msg("corrupt schedule, skipping cycle")
		metrics.GovernorCycles.WithLabelValues("schedule_error").Inc()
		return
	}
	triggersRaw, err := g.store.ReadRaw(store.TriggersPath)
	if err != nil {
		l.Warn().Err(err).Msg("failed to read triggers, skipping cycle")
		metrics.GovernorCycles.WithLabelValues("triggers_error").Inc()
		return
	}
	triggers, err := UnmarshalTriggers(triggersRaw)
	if err != nil {
		l.Warn().Err(err).Msg("corrupt triggers document, skipping cycle")
		metrics.GovernorCycles.WithLabelValues("triggers_error").Inc()
		return
	}

	health := computeSwarmHealth(roster, g.cfg.NodeTimeout)
	l.Info().Int("total_nodes", health.totalNodes).Int("alive_nodes", health.aliveNodes).
		Float64("alive_percent", health.alivePercent()).Msg("swarm health")

	modified := make([]store.Task, len(schedule.Tasks))
	copy(modified, schedule.Tasks)

	var appliedIDs []string
	ids := make([]string, 0, len(triggers.Triggers))
	for id := range triggers.Triggers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		trig := triggers.Triggers[id]
		if trig.Quorum != nil && !checkQuorum(*trig.Quorum, health) {
			l.Debug().Str("trigger_id", id).Msg("quorum not met, skipping trigger")
			continue
		}
		if !evaluateCondition(trig.Condition, health, time.Now().UTC()) {
			continue
		}
		changed := false
		for _, action := range trig.Actions {
			if applyAction(action, &modified) {
				changed = true
			}
		}
		if changed {
			appliedIDs = append(appliedIDs, id)
		}
	}

	if len(appliedIDs) == 0 || reflect.DeepEqual(modified, schedule.Tasks) {
		l.Debug().Msg("no schedule changes this cycle")
		metrics.GovernorCycles.WithLabelValues("no_change").Inc()
		return
	}

	schedule.Tasks = modified
	if err := g.store.WriteSchedule(schedule); err != nil {
		l.Warn().Err(err).Msg("failed to write modified schedule")
		metrics.GovernorCycles.WithLabelValues("write_error").Inc()
		return
	}

	message := "chore(governor): Applied triggers: " + strings.Join(appliedIDs, ", ")
	result, err := g.store.CommitAndPush(ctx, []string{store.SchedulePath}, message)
	if err != nil {
		l.Warn().Err(err).Msg("commit/push failed")
		metrics.GovernorCycles.WithLabelValues("push_error").Inc()
		return
	}

	switch result {
	case repoclient.Committed:
		l.Info().Strs("trigger_ids", appliedIDs).Msg("schedule updated")
		metrics.GovernorCycles.WithLabelValues("committed").Inc()
	case repoclient.NothingToCommit:
		metrics.GovernorCycles.WithLabelValues("nothing_to_commit").Inc()
	case repoclient.PushRejected:
		metrics.GovernorCycles.WithLabelValues("push_rejected").Inc()
		if err := g.store.RecoveryReset(ctx); err != nil {
			l.Warn().Err(err).Msg("recovery reset failed")
		}
	}
}

func computeSwarmHealth(roster store.Roster, nodeTimeout time.Duration) swarmHealth {
	now := time.Now().UTC()
	h := swarmHealth{
		totalNodes: len(roster.Nodes),
		metrics:    map[string][]float64{"cpu_load": {}, "memory_percent": {}},
	}
	for _, n := range roster.Nodes {
		if !n.IsAlive(now, nodeTimeout) {
			continue
		}
		h.aliveNodes++
		h.metrics["cpu_load"] = append(h.metrics["cpu_load"], n.Metrics.CPULoad)
		h.metrics["memory_percent"] = append(h.metrics["memory_percent"], n.Metrics.MemoryPercent)
	}
	return h
}

// checkQuorum implements spec.md §4.6 step 5: both declared bounds must hold.
func checkQuorum(q Quorum, health swarmHealth) bool {
	if q.MinNodesAlive > 0 && health.aliveNodes < q.MinNodesAlive {
		return false
	}
	if q.MinPercentAlive > 0 && health.alivePercent() < q.MinPercentAlive {
		return false
	}
	return true
}

// evaluateCondition implements spec.md §4.6 step 4.
func evaluateCondition(c Condition, health swarmHealth, now time.Time) bool {
	switch c.Type {
	case "time_based":
		return evaluateTimeBased(c, now)
	case "swarm_metric_agg":
		return evaluateSwarmMetricAgg(c, health)
	default:
		return false
	}
}

func evaluateTimeBased(c Condition, now time.Time) bool {
	if c.StartUTC != "" {
		start, err := time.Parse(time.RFC3339, c.StartUTC)
		if err == nil && now.Before(start) {
			return false
		}
	}
	if c.EndUTC != "" {
		end, err := time.Parse(time.RFC3339, c.EndUTC)
		if err == nil && now.After(end) {
			return false
		}
	}
	return true
}

func evaluateSwarmMetricAgg(c Condition, health swarmHealth) bool {
	values, ok := health.metrics[c.Metric]
	if !ok || len(values) == 0 {
		return false
	}
	aggregated, ok := aggregate(c.Aggregation, values, c.Threshold)
	if !ok {
		return false
	}
	return compare(c.Operator, aggregated, c.Threshold)
}

// aggregate implements the five aggregators named in spec.md §4.6.
func aggregate(kind string, values []float64, threshold float64) (float64, bool) {
	switch kind {
	case "average":
		return sum(values) / float64(len(values)), true
	case "sum":
		return sum(values), true
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m, true
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m, true
	case "count_above_threshold":
		count := 0.0
		for _, v := range values {
			if v > threshold {
				count++
			}
		}
		return count, true
	default:
		return 0, false
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// compare implements the five comparison operators gt, lt, eq, ge and le
// named in spec.md §4.6.
func compare(op string, value, threshold float64) bool {
	switch op {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "ge":
		return value >= threshold
	case "le":
		return value <= threshold
	default:
		return false
	}
}

// applyAction implements spec.md §4.6 step 6. Reports whether it changed tasks.
func applyAction(a Action, tasks *[]store.Task) bool {
	switch a.Type {
	case ActionAddTask:
		for _, t := range *tasks {
			if t.ID == a.ID {
				return false
			}
		}
		*tasks = append(*tasks, store.Task{
			ID:             a.ID,
			Type:           a.TaskType,
			Priority:       a.Priority,
			RequiredRole:   a.RequiredRole,
			RequiredRegion: a.RequiredRegion,
		})
		return true

	case ActionRemoveTask:
		out := (*tasks)[:0]
		removed := false
		for _, t := range *tasks {
			if t.ID == a.ID {
				removed = true
				continue
			}
			out = append(out, t)
		}
		*tasks = out
		return removed

	case ActionChangePriority:
		for i := range *tasks {
			if (*tasks)[i].ID == a.ID {
				if (*tasks)[i].Priority == a.Priority {
					return false
				}
				(*tasks)[i].Priority = a.Priority
				return true
			}
		}
		return false

	case ActionSwapTasks:
		idxA, idxB := -1, -1
		for i, t := range *tasks {
			if t.ID == a.ID {
				idxA = i
			}
			if t.ID == a.SwapWithID {
				idxB = i
			}
		}
		if idxA == -1 || idxB == -1 || idxA == idxB {
			return false
		}
		(*tasks)[idxA], (*tasks)[idxB] = (*tasks)[idxB], (*tasks)[idxA]
		return true

	default:
		return false
	}
}
