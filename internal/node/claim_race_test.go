package node

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/lease"
	"github.com/cuemby/shortlist/internal/repoclient"
	"github.com/cuemby/shortlist/internal/store"
)

// setupClaimRaceRemote seeds a bare remote with one schedule.json declaring
// a single claimable task, plus two independent clones of it, mirroring two
// nodes sharing the same coordination repository.
func setupClaimRaceRemote(t *testing.T) (cloneA, cloneB string) {
	t.Helper()
	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")
	cloneA = filepath.Join(root, "node-a")
	cloneB = filepath.Join(root, "node-b")

	runGit(t, root, "init", "--bare", "--initial-branch=main", remote)
	runGit(t, root, "clone", remote, seed)
	runGit(t, seed, "config", "user.email", "seed@example.com")
	runGit(t, seed, "config", "user.name", "Seed")

	require.NoError(t, os.WriteFile(filepath.Join(seed, "schedule.json"),
		[]byte(`{"tasks":[{"id":"render-1","type":"web","priority":1}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(seed, "assignments.json"),
		[]byte(`{"assignments":{}}`), 0o644))
	runGit(t, seed, "add", "schedule.json", "assignments.json")
	runGit(t, seed, "commit", "-m", "seed schedule")
	runGit(t, seed, "push", "origin", "HEAD:main")

	runGit(t, root, "clone", remote, cloneA)
	runGit(t, cloneA, "config", "user.email", "a@example.com")
	runGit(t, cloneA, "config", "user.name", "Node A")

	runGit(t, root, "clone", remote, cloneB)
	runGit(t, cloneB, "config", "user.email", "b@example.com")
	runGit(t, cloneB, "config", "user.name", "Node B")

	return cloneA, cloneB
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// TestClaimRaceExactlyOneWinner drives two Node instances through
// runAttemptClaim against the same task over independent clones of a shared
// bare remote. Exactly one must observe Committed and reach ACTIVE; the
// other must observe PushRejected, recovery-reset, and return to IDLE.
func TestClaimRaceExactlyOneWinner(t *testing.T) {
	cloneA, cloneB := setupClaimRaceRemote(t)

	cfg := config.Default()
	cfg.JitterMax = 0

	cfgA := cfg
	cfgA.NodeID = "node-a"
	cfgA.RepoPath = cloneA
	cfgB := cfg
	cfgB.NodeID = "node-b"
	cfgB.RepoPath = cloneB

	clock := lease.New(cfg.LeaseDuration, cfg.RenewalThreshold, cfg.GracePeriod)
	nodeA := New(cfgA, store.New(repoclient.New(cloneA, "main")), clock, nil, nil)
	nodeB := New(cfgB, store.New(repoclient.New(cloneB, "main")), clock, nil, nil)

	task := store.Task{ID: "render-1", Type: "web", Priority: 1}

	type outcome struct {
		who   string
		state State
	}
	results := make(chan outcome, 2)

	run := func(who string, n *Node) {
		state := n.runAttemptClaim(context.Background(), task)
		results <- outcome{who: who, state: state}
	}

	go run("a", nodeA)
	go run("b", nodeB)

	first := <-results
	second := <-results

	states := map[string]State{first.who: first.state, second.who: second.state}

	activeCount := 0
	idleCount := 0
	for _, s := range states {
		switch s {
		case StateActive:
			activeCount++
		case StateIdle:
			idleCount++
		}
	}

	assert.Equal(t, 1, activeCount, "exactly one node must win the claim race and reach ACTIVE")
	assert.Equal(t, 1, idleCount, "the loser must return to IDLE after a rejected push")

	// The loser's local clone must have been recovery-reset to the winner's
	// committed assignment rather than left diverged.
	var loserRepo string
	if states["a"] == StateIdle {
		loserRepo = cloneA
	} else {
		loserRepo = cloneB
	}
	data, err := os.ReadFile(filepath.Join(loserRepo, "assignments.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "render-1")
}
