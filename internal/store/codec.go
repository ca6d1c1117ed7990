package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// marshalStable serializes doc with sorted keys and a stable two-space
// indent, merging back any unknown top-level fields captured on read. This
// guarantees semantically-unchanged documents produce byte-identical output,
// which is what lets a Node or Governor detect a NothingToCommit result
// locally, per spec.md §4.2 and §8 (the round-trip property).
func marshalStable(known map[string]json.RawMessage, unknown map[string]json.RawMessage) ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(known)+len(unknown))
	for k, v := range unknown {
		merged[k] = v
	}
	for k, v := range known {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("  ")
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteString(": ")
		indented, err := indentValue(merged[k], "  ")
		if err != nil {
			return nil, err
		}
		buf.Write(indented)
	}
	if len(keys) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func indentValue(raw json.RawMessage, prefix string) ([]byte, error) {
	var tmp bytes.Buffer
	if err := json.Indent(&tmp, raw, prefix, "  "); err != nil {
		return nil, fmt.Errorf("store: indent: %w", err)
	}
	return tmp.Bytes(), nil
}

func rawFields(data []byte) (map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func popKnown(fields map[string]json.RawMessage, keys ...string) map[string]json.RawMessage {
	known := map[string]json.RawMessage{}
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			known[k] = v
			delete(fields, k)
		}
	}
	return known
}

// UnmarshalRoster parses a roster.json document, tolerating a missing or
// empty file (returns EmptyRoster) and preserving any unknown top-level keys.
func UnmarshalRoster(data []byte) (Roster, error) {
	if len(data) == 0 {
		return EmptyRoster(), nil
	}
	fields, err := rawFields(data)
	if err != nil {
		return Roster{}, fmt.Errorf("store: corrupt roster document: %w", err)
	}
	r := Roster{unknown: fields}
	if raw, ok := fields["nodes"]; ok {
		delete(fields, "nodes")
		var rawNodes []json.RawMessage
		if err := json.Unmarshal(raw, &rawNodes); err != nil {
			return Roster{}, fmt.Errorf("store: corrupt roster document: %w", err)
		}
		r.Nodes = make([]NodeEntry, 0, len(rawNodes))
		for _, rn := range rawNodes {
			nf, err := rawFields(rn)
			if err != nil {
				return Roster{}, fmt.Errorf("store: corrupt roster node entry: %w", err)
			}
			var entry NodeEntry
			core := popKnown(nf, "id", "started_at", "last_seen", "metrics", "region")
			merged, err := marshalKnownOnly(core)
			if err != nil {
				return Roster{}, err
			}
			if err := json.Unmarshal(merged, &entry); err != nil {
				return Roster{}, fmt.Errorf("store: corrupt roster node entry: %w", err)
			}
			entry.unknown = nf
			r.Nodes = append(r.Nodes, entry)
		}
	}
	if r.Nodes == nil {
		r.Nodes = []NodeEntry{}
	}
	return r, nil
}

func marshalKnownOnly(known map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(known[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalRoster serializes r deterministically, preserving unknown fields.
func MarshalRoster(r Roster) ([]byte, error) {
	nodesRaw := make([]json.RawMessage, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		core := map[string]json.RawMessage{}
		idb, _ := json.Marshal(n.ID)
		core["id"] = idb
		sab, _ := json.Marshal(n.StartedAt)
		core["started_at"] = sab
		lsb, _ := json.Marshal(n.LastSeen)
		core["last_seen"] = lsb
		mb, _ := json.Marshal(n.Metrics)
		core["metrics"] = mb
		if n.Region != "" {
			rb, _ := json.Marshal(n.Region)
			core["region"] = rb
		}
		nb, err := marshalStable(core, n.unknown)
		if err != nil {
			return nil, err
		}
		nodesRaw = append(nodesRaw, json.RawMessage(nb))
	}
	nodesArr, err := json.Marshal(nodesRaw)
	if err != nil {
		return nil, err
	}
	known := map[string]json.RawMessage{"nodes": nodesArr}
	return marshalStable(known, r.unknown)
}

// UnmarshalSchedule parses a schedule.json document, tolerating a missing
// file and preserving unknown task fields (spec.md §3's "optional policy
// fields").
func UnmarshalSchedule(data []byte) (Schedule, error) {
	if len(data) == 0 {
		return EmptySchedule(), nil
	}
	fields, err := rawFields(data)
	if err != nil {
		return Schedule{}, fmt.Errorf("store: corrupt schedule document: %w", err)
	}
	s := Schedule{unknown: fields}
	if raw, ok := fields["tasks"]; ok {
		delete(fields, "tasks")
		var rawTasks []json.RawMessage
		if err := json.Unmarshal(raw, &rawTasks); err != nil {
			return Schedule{}, fmt.Errorf("store: corrupt schedule document: %w", err)
		}
		s.Tasks = make([]Task, 0, len(rawTasks))
		for _, rt := range rawTasks {
			tf, err := rawFields(rt)
			if err != nil {
				return Schedule{}, fmt.Errorf("store: corrupt schedule task entry: %w", err)
			}
			core := popKnown(tf, "id", "type", "priority", "required_role", "required_region")
			merged, err := marshalKnownOnly(core)
			if err != nil {
				return Schedule{}, err
			}
			var task Task
			if err := json.Unmarshal(merged, &task); err != nil {
				return Schedule{}, fmt.Errorf("store: corrupt schedule task entry: %w", err)
			}
			task.Extra = tf
			s.Tasks = append(s.Tasks, task)
		}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	return s, nil
}

// MarshalSchedule serializes s deterministically, preserving unknown fields.
func MarshalSchedule(s Schedule) ([]byte, error) {
	tasksRaw := make([]json.RawMessage, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		core := map[string]json.RawMessage{}
		idb, _ := json.Marshal(t.ID)
		core["id"] = idb
		typb, _ := json.Marshal(t.Type)
		core["type"] = typb
		pb, _ := json.Marshal(t.Priority)
		core["priority"] = pb
		if t.RequiredRole != "" {
			rb, _ := json.Marshal(t.RequiredRole)
			core["required_role"] = rb
		}
		if t.RequiredRegion != "" {
			rb, _ := json.Marshal(t.RequiredRegion)
			core["required_region"] = rb
		}
		tb, err := marshalStable(core, t.Extra)
		if err != nil {
			return nil, err
		}
		tasksRaw = append(tasksRaw, json.RawMessage(tb))
	}
	tasksArr, err := json.Marshal(tasksRaw)
	if err != nil {
		return nil, err
	}
	known := map[string]json.RawMessage{"tasks": tasksArr}
	return marshalStable(known, s.unknown)
}

// UnmarshalAssignments parses an assignments.json document, tolerating a
// missing file.
func UnmarshalAssignments(data []byte) (Assignments, error) {
	if len(data) == 0 {
		return EmptyAssignments(), nil
	}
	fields, err := rawFields(data)
	if err != nil {
		return Assignments{}, fmt.Errorf("store: corrupt assignments document: %w", err)
	}
	a := Assignments{unknown: fields, Assignments: map[string]Assignment{}}
	if raw, ok := fields["assignments"]; ok {
		delete(fields, "assignments")
		var rawMap map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rawMap); err != nil {
			return Assignments{}, fmt.Errorf("store: corrupt assignments document: %w", err)
		}
		for id, rv := range rawMap {
			var entry Assignment
			if err := json.Unmarshal(rv, &entry); err != nil {
				return Assignments{}, fmt.Errorf("store: corrupt assignment entry %q: %w", id, err)
			}
			a.Assignments[id] = entry
		}
	}
	return a, nil
}

// MarshalAssignments serializes a deterministically, preserving unknown
// top-level fields. Assignment entries themselves carry no unknown-field
// passthrough because spec.md §6 fully specifies their shape.
func MarshalAssignments(a Assignments) ([]byte, error) {
	assignMap, err := json.Marshal(a.Assignments)
	if err != nil {
		return nil, err
	}
	known := map[string]json.RawMessage{"assignments": assignMap}
	return marshalStable(known, a.unknown)
}
