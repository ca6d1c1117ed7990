// Package store provides typed, tolerant accessors for the four persisted
// coordination documents: roster.json, schedule.json, assignments.json, and
// shortlist.json. Store wraps a repoclient.Client: its Read*/Write* methods
// read and stage files through the client and run the bytes through the
// Marshal/Unmarshal helpers here, and its Sync, CommitAndPush and
// RecoveryReset methods delegate to the client.
package store

import (
	"encoding/json"
	"time"
)

// Roster is the persisted set of participating nodes and their liveness.
type Roster struct {
	Nodes []NodeEntry `json:"nodes"`

	// unknown preserves any top-level fields a newer or older version of
	// this document wrote that this version does not know about, so a
	// round-trip never drops data.
	unknown map[string]json.RawMessage `json:"-"`
}

// NodeEntry is one row of the roster.
type NodeEntry struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	LastSeen  time.Time  `json:"last_seen"`
	Metrics   NodeMetric `json:"metrics"`
	Region    string     `json:"region,omitempty"`

	unknown map[string]json.RawMessage `json:"-"`
}

// NodeMetric is the sampled resource usage reported at each roster heartbeat.
type NodeMetric struct {
	CPULoad        float64 `json:"cpu_load"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// IsAlive reports whether this node's last heartbeat is recent enough,
// per spec.md §3 ("now - last_seen <= node_timeout").
func (n NodeEntry) IsAlive(now time.Time, nodeTimeout time.Duration) bool {
	return now.Sub(n.LastSeen) <= nodeTimeout
}

// Schedule is the ordered list of declared tasks.
type Schedule struct {
	Tasks []Task `json:"tasks"`

	unknown map[string]json.RawMessage `json:"-"`
}

// Task is one schedule entry.
type Task struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Priority       int    `json:"priority"`
	RequiredRole   string `json:"required_role,omitempty"`
	RequiredRegion string `json:"required_region,omitempty"`

	// Extra carries any policy fields spec.md §3 leaves open-ended
	// ("optional policy fields") that this version does not interpret but
	// must preserve verbatim on rewrite.
	Extra map[string]json.RawMessage `json:"-"`
}

// AssignmentStatus is the claim/stream phase of an assignment.
type AssignmentStatus string

const (
	StatusClaiming  AssignmentStatus = "claiming"
	StatusStreaming AssignmentStatus = "streaming"
)

// Assignments maps task id to its current owner.
type Assignments struct {
	Assignments map[string]Assignment `json:"assignments"`

	unknown map[string]json.RawMessage `json:"-"`
}

// Assignment is one task's current ownership record.
type Assignment struct {
	NodeID         string           `json:"node_id"`
	ClaimedAt      time.Time        `json:"claimed_at"`
	LeaseExpiresAt time.Time        `json:"lease_expires_at"`
	Status         AssignmentStatus `json:"status"`
	Region         string           `json:"region,omitempty"`
}

// IsLive reports whether the assignment's lease has not yet expired.
func (a Assignment) IsLive(now time.Time) bool {
	return now.Before(a.LeaseExpiresAt)
}

// IsOrphan reports whether the assignment's lease has expired, making the
// task eligible for takeover per spec.md §4.4.
func (a Assignment) IsOrphan(now time.Time) bool {
	return now.After(a.LeaseExpiresAt)
}

// Shortlist is the opaque renderer payload; the core never interprets its
// shape, so it is modeled as a raw JSON value.
type Shortlist struct {
	Raw json.RawMessage
}

// EmptyRoster returns the zero-value document a missing roster.json reads as.
func EmptyRoster() Roster { return Roster{Nodes: []NodeEntry{}} }

// EmptySchedule returns the zero-value document a missing schedule.json reads as.
func EmptySchedule() Schedule { return Schedule{Tasks: []Task{}} }

// EmptyAssignments returns the zero-value document a missing assignments.json reads as.
func EmptyAssignments() Assignments {
	return Assignments{Assignments: map[string]Assignment{}}
}
