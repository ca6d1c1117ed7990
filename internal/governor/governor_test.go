package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/shortlist/internal/store"
)

func TestAggregate(t *testing.T) {
	values := []float64{1, 2, 3, 4}

	tests := []struct {
		name      string
		kind      string
		threshold float64
		want      float64
	}{
		{"average", "average", 0, 2.5},
		{"sum", "sum", 0, 10},
		{"max", "max", 0, 4},
		{"min", "min", 0, 1},
		{"count_above_threshold", "count_above_threshold", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := aggregate(tt.kind, values, tt.threshold)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := aggregate("unknown", values, 0)
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op   string
		a, b float64
		want bool
	}{
		{"gt", 5, 3, true},
		{"gt", 3, 5, false},
		{"lt", 3, 5, true},
		{"eq", 5, 5, true},
		{"ge", 5, 5, true},
		{"le", 5, 6, true},
		{"unknown", 5, 5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compare(tt.op, tt.a, tt.b), tt.op)
	}
}

func TestCheckQuorum(t *testing.T) {
	tests := []struct {
		name   string
		quorum Quorum
		health swarmHealth
		want   bool
	}{
		{"no bounds", Quorum{}, swarmHealth{totalNodes: 3, aliveNodes: 1}, true},
		{"nodes bound met", Quorum{MinNodesAlive: 2}, swarmHealth{totalNodes: 3, aliveNodes: 2}, true},
		{"nodes bound unmet", Quorum{MinNodesAlive: 2}, swarmHealth{totalNodes: 3, aliveNodes: 1}, false},
		{"percent bound unmet", Quorum{MinPercentAlive: 80}, swarmHealth{totalNodes: 4, aliveNodes: 2}, false},
		{"both bounds must hold", Quorum{MinNodesAlive: 1, MinPercentAlive: 80}, swarmHealth{totalNodes: 4, aliveNodes: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkQuorum(tt.quorum, tt.health))
		})
	}
}

func TestEvaluateSwarmMetricAgg(t *testing.T) {
	health := swarmHealth{metrics: map[string][]float64{"cpu_load": {0.8, 0.9}}}
	c := Condition{Type: "swarm_metric_agg", Metric: "cpu_load", Aggregation: "average", Operator: "gt", Threshold: 0.5}
	assert.True(t, evaluateSwarmMetricAgg(c, health))

	c.Threshold = 0.95
	assert.False(t, evaluateSwarmMetricAgg(c, health))

	empty := swarmHealth{metrics: map[string][]float64{}}
	assert.False(t, evaluateSwarmMetricAgg(c, empty))
}

func TestEvaluateTimeBased(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	c := Condition{StartUTC: "2026-01-01T00:00:00Z", EndUTC: "2026-12-31T00:00:00Z"}
	assert.True(t, evaluateTimeBased(c, now))

	c = Condition{StartUTC: "2027-01-01T00:00:00Z"}
	assert.False(t, evaluateTimeBased(c, now))

	c = Condition{EndUTC: "2025-01-01T00:00:00Z"}
	assert.False(t, evaluateTimeBased(c, now))
}

func TestApplyActionAddTask(t *testing.T) {
	tasks := []store.Task{{ID: "existing"}}

	changed := applyAction(Action{Type: ActionAddTask, ID: "new", TaskType: "web", Priority: 3}, &tasks)
	assert.True(t, changed)
	assert.Len(t, tasks, 2)

	changed = applyAction(Action{Type: ActionAddTask, ID: "new"}, &tasks)
	assert.False(t, changed, "adding a task with an existing id is a no-op")
	assert.Len(t, tasks, 2)
}

func TestApplyActionRemoveTask(t *testing.T) {
	tasks := []store.Task{{ID: "a"}, {ID: "b"}}

	changed := applyAction(Action{Type: ActionRemoveTask, ID: "a"}, &tasks)
	assert.True(t, changed)
	assert.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID)

	changed = applyAction(Action{Type: ActionRemoveTask, ID: "missing"}, &tasks)
	assert.False(t, changed)
}

func TestApplyActionChangePriority(t *testing.T) {
	tasks := []store.Task{{ID: "a", Priority: 5}}

	changed := applyAction(Action{Type: ActionChangePriority, ID: "a", Priority: 1}, &tasks)
	assert.True(t, changed)
	assert.Equal(t, 1, tasks[0].Priority)

	changed = applyAction(Action{Type: ActionChangePriority, ID: "a", Priority: 1}, &tasks)
	assert.False(t, changed, "setting the same priority again is a no-op")
}

func TestApplyActionSwapTasks(t *testing.T) {
	tasks := []store.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	changed := applyAction(Action{Type: ActionSwapTasks, ID: "a", SwapWithID: "c"}, &tasks)
	assert.True(t, changed)
	assert.Equal(t, "c", tasks[0].ID)
	assert.Equal(t, "a", tasks[2].ID)

	changed = applyAction(Action{Type: ActionSwapTasks, ID: "a", SwapWithID: "missing"}, &tasks)
	assert.False(t, changed)
}

func TestUnmarshalTriggersEmpty(t *testing.T) {
	tr, err := UnmarshalTriggers(nil)
	assert.NoError(t, err)
	assert.Empty(t, tr.Triggers)
}

func TestUnmarshalTriggersParsesRule(t *testing.T) {
	data := []byte(`{
  "triggers": {
    "scale-up": {
      "condition": {"type": "swarm_metric_agg", "metric": "cpu_load", "aggregation": "average", "operator": "gt", "threshold": 0.8},
      "quorum": {"min_nodes_alive": 2},
      "actions": [{"type": "ADD_TASK", "id": "auto", "task_type": "text", "priority": 5}]
    }
  }
}`)
	tr, err := UnmarshalTriggers(data)
	assert.NoError(t, err)
	assert.Len(t, tr.Triggers, 1)
	assert.Equal(t, 2, tr.Triggers["scale-up"].Quorum.MinNodesAlive)
}
