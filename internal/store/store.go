package store

import (
	"context"
	"fmt"

	"github.com/cuemby/shortlist/internal/repoclient"
)

// Document file names, per spec.md §6's persisted state layout.
const (
	RosterPath      = "roster.json"
	SchedulePath    = "schedule.json"
	AssignmentsPath = "assignments.json"
	ShortlistPath   = "shortlist.json"

	// TriggersPath is the Governor's input document. It is not one of
	// spec.md §6's four persisted documents because the Governor only ever
	// reads it; nothing in the core ever writes it back.
	TriggersPath = "triggers.json"
)

// Store provides typed read/write access to the four coordination documents
// over a repoclient.Client. It never calls Sync or CommitAndPush itself —
// callers control the sync/commit boundary so that a read-modify-write
// sequence can span exactly one claim/heartbeat/purge cycle, per spec.md
// §4.4/§4.6/§4.7.
type Store struct {
	repo *repoclient.Client
}

// New constructs a Store backed by repo.
func New(repo *repoclient.Client) *Store {
	return &Store{repo: repo}
}

// ReadRoster reads roster.json, treating a missing or corrupt file as empty
// per spec.md §4.2 and §7 (corrupt documents are logged and treated as
// empty, never fatal).
func (s *Store) ReadRoster() (Roster, error) {
	data, err := s.repo.ReadJSON(RosterPath)
	if err != nil {
		return EmptyRoster(), err
	}
	r, err := UnmarshalRoster(data)
	if err != nil {
		return EmptyRoster(), err
	}
	return r, nil
}

// WriteRoster serializes r deterministically and stages it for commit.
func (s *Store) WriteRoster(r Roster) error {
	data, err := MarshalRoster(r)
	if err != nil {
		return fmt.Errorf("store: marshal roster: %w", err)
	}
	return s.repo.WriteJSON(RosterPath, data)
}

// ReadSchedule reads schedule.json, treating a missing or corrupt file as empty.
func (s *Store) ReadSchedule() (Schedule, error) {
	data, err := s.repo.ReadJSON(SchedulePath)
	if err != nil {
		return EmptySchedule(), err
	}
	sc, err := UnmarshalSchedule(data)
	if err != nil {
		return EmptySchedule(), err
	}
	return sc, nil
}

// WriteSchedule serializes sc deterministically and stages it for commit.
func (s *Store) WriteSchedule(sc Schedule) error {
	data, err := MarshalSchedule(sc)
	if err != nil {
		return fmt.Errorf("store: marshal schedule: %w", err)
	}
	return s.repo.WriteJSON(SchedulePath, data)
}

// ReadAssignments reads assignments.json, treating a missing or corrupt file as empty.
func (s *Store) ReadAssignments() (Assignments, error) {
	data, err := s.repo.ReadJSON(AssignmentsPath)
	if err != nil {
		return EmptyAssignments(), err
	}
	a, err := UnmarshalAssignments(data)
	if err != nil {
		return EmptyAssignments(), err
	}
	return a, nil
}

// WriteAssignments serializes a deterministically and stages it for commit.
func (s *Store) WriteAssignments(a Assignments) error {
	data, err := MarshalAssignments(a)
	if err != nil {
		return fmt.Errorf("store: marshal assignments: %w", err)
	}
	return s.repo.WriteJSON(AssignmentsPath, data)
}

// ReadShortlist reads shortlist.json as an opaque blob; the core never
// interprets its contents, per spec.md §3.
func (s *Store) ReadShortlist() (Shortlist, error) {
	data, err := s.repo.ReadJSON(ShortlistPath)
	if err != nil {
		return Shortlist{}, err
	}
	if data == nil {
		data = []byte("{}")
	}
	return Shortlist{Raw: data}, nil
}

// ReadRaw reads an arbitrary repository-relative path as-is, for documents
// with no typed accessor (e.g. the Governor's triggers.json).
func (s *Store) ReadRaw(path string) ([]byte, error) {
	return s.repo.ReadJSON(path)
}

// Sync fast-forwards the working tree to the remote branch before a read.
func (s *Store) Sync(ctx context.Context) error {
	return s.repo.Sync(ctx)
}

// CommitAndPush commits the given staged document paths and pushes.
func (s *Store) CommitAndPush(ctx context.Context, paths []string, message string) (repoclient.PushResult, error) {
	return s.repo.CommitAndPush(ctx, paths, message)
}

// RecoveryReset performs the hard reset mandated on any push rejection or
// divergence, per spec.md §4.1 and §9.
func (s *Store) RecoveryReset(ctx context.Context) error {
	return s.repo.RecoveryReset(ctx)
}
