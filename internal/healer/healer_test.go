package healer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/lease"
	"github.com/cuemby/shortlist/internal/store"
)

func newTestHealer() *Healer {
	cfg := config.Default()
	cfg.RepoPath = "/tmp/shortlist"
	cfg.HealerGrace = 30 * time.Second
	clock := lease.New(cfg.LeaseDuration, cfg.RenewalThreshold, cfg.GracePeriod)
	return New(cfg, store.New(nil), clock)
}

func TestIsPurgeableZombie(t *testing.T) {
	h := newTestHealer()
	now := time.Now()

	a := store.Assignment{NodeID: "dead-node", LeaseExpiresAt: now.Add(time.Hour)}
	assert.True(t, h.isPurgeable(a, map[string]bool{}, now), "owner not in alive set is a zombie regardless of lease")
}

func TestIsPurgeableStale(t *testing.T) {
	h := newTestHealer()
	now := time.Now()
	alive := map[string]bool{"live-node": true}

	tests := []struct {
		name      string
		expiresAt time.Time
		purgeable bool
	}{
		{"well within lease", now.Add(time.Minute), false},
		{"expired but within grace", now.Add(-5 * time.Second), false},
		{"expired past grace", now.Add(-31 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := store.Assignment{NodeID: "live-node", LeaseExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.purgeable, h.isPurgeable(a, alive, now))
		})
	}
}

func TestIsPurgeableLiveOwnedAssignment(t *testing.T) {
	h := newTestHealer()
	now := time.Now()
	alive := map[string]bool{"live-node": true}

	a := store.Assignment{NodeID: "live-node", LeaseExpiresAt: now.Add(time.Hour)}
	assert.False(t, h.isPurgeable(a, alive, now))
}
