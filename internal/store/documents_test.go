package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNodeEntryIsAlive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)
	timeout := 15 * time.Minute

	tests := []struct {
		name     string
		lastSeen time.Time
		alive    bool
	}{
		{"just seen", now, true},
		{"at the boundary", now.Add(-timeout), true},
		{"past the boundary", now.Add(-timeout - time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NodeEntry{LastSeen: tt.lastSeen}
			assert.Equal(t, tt.alive, n.IsAlive(now, timeout))
		})
	}
}

func TestAssignmentIsLiveAndOrphan(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	a := Assignment{LeaseExpiresAt: expiry}

	assert.True(t, a.IsLive(expiry.Add(-time.Second)))
	assert.False(t, a.IsLive(expiry.Add(time.Second)))

	assert.False(t, a.IsOrphan(expiry.Add(-time.Second)))
	assert.True(t, a.IsOrphan(expiry.Add(time.Second)))
}

func TestEmptyDocuments(t *testing.T) {
	assert.Empty(t, EmptyRoster().Nodes)
	assert.Empty(t, EmptySchedule().Tasks)
	assert.Empty(t, EmptyAssignments().Assignments)
}
