package governor

import (
	"encoding/json"
	"fmt"
)

// Triggers is the Governor's read-only input document, triggers.json. It is
// not one of spec.md §6's four persisted documents: the Governor consumes it
// but never writes it back, so round-trip field preservation does not apply
// here the way it does in internal/store.
type Triggers struct {
	Triggers map[string]Trigger `json:"triggers"`
}

// Trigger is one policy rule.
type Trigger struct {
	Condition Condition `json:"condition"`
	Quorum    *Quorum   `json:"quorum,omitempty"`
	Actions   []Action  `json:"actions"`
}

// Condition discriminates on Type: "time_based" or "swarm_metric_agg", per
// spec.md §4.6.
type Condition struct {
	Type string `json:"type"`

	// time_based fields.
	StartUTC string `json:"start_utc,omitempty"`
	EndUTC   string `json:"end_utc,omitempty"`

	// swarm_metric_agg fields.
	Metric      string  `json:"metric,omitempty"`
	Aggregation string  `json:"aggregation,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	Operator    string  `json:"operator,omitempty"`
}

// Quorum gates a trigger on swarm health, per spec.md §4.6: both bounds must
// hold when declared.
type Quorum struct {
	MinNodesAlive  int     `json:"min_nodes_alive,omitempty"`
	MinPercentAlive float64 `json:"min_percent_alive,omitempty"`
}

// Action mutates the in-memory schedule copy when its trigger fires.
type Action struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	TaskType       string `json:"task_type,omitempty"`
	Priority       int    `json:"priority,omitempty"`
	RequiredRole   string `json:"required_role,omitempty"`
	RequiredRegion string `json:"required_region,omitempty"`
	SwapWithID     string `json:"swap_with_id,omitempty"`
}

// Action type constants, per spec.md §4.6 step 6.
const (
	ActionAddTask       = "ADD_TASK"
	ActionRemoveTask    = "REMOVE_TASK"
	ActionChangePriority = "CHANGE_PRIORITY"
	ActionSwapTasks     = "SWAP_TASKS"
)

// UnmarshalTriggers parses triggers.json, tolerating a missing file as "no
// triggers configured" rather than an error.
func UnmarshalTriggers(data []byte) (Triggers, error) {
	if len(data) == 0 {
		return Triggers{Triggers: map[string]Trigger{}}, nil
	}
	var t Triggers
	if err := json.Unmarshal(data, &t); err != nil {
		return Triggers{}, fmt.Errorf("governor: corrupt triggers document: %w", err)
	}
	if t.Triggers == nil {
		t.Triggers = map[string]Trigger{}
	}
	return t, nil
}
