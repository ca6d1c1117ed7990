package repoclient

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupBareRepoAndClone creates a bare "remote" repository and one local
// clone tracking it, exercising the same fetch/merge/push plumbing the
// Client drives. Used by every test in this file as the shared fixture.
func setupBareRepoAndClone(t *testing.T) (remote, clone string) {
	t.Helper()
	root := t.TempDir()
	remote = filepath.Join(root, "remote.git")
	clone = filepath.Join(root, "clone")

	runGit(t, root, "init", "--bare", "--initial-branch=main", remote)
	runGit(t, root, "clone", remote, clone)
	runGit(t, clone, "config", "user.email", "test@example.com")
	runGit(t, clone, "config", "user.name", "Test")

	require.NoError(t, os.WriteFile(filepath.Join(clone, "roster.json"), []byte("{}\n"), 0o644))
	runGit(t, clone, "add", "roster.json")
	runGit(t, clone, "commit", "-m", "seed")
	runGit(t, clone, "push", "origin", "HEAD:main")

	return remote, clone
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func TestReadWriteJSON(t *testing.T) {
	_, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	data, err := c.ReadJSON("roster.json")
	assert.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	assert.NoError(t, c.WriteJSON("schedule.json", []byte(`{"tasks":[]}`)))
	data, err = c.ReadJSON("schedule.json")
	assert.NoError(t, err)
	assert.Equal(t, `{"tasks":[]}`, string(data))
}

func TestReadJSONMissingFileReturnsNil(t *testing.T) {
	_, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	data, err := c.ReadJSON("does-not-exist.json")
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestCommitAndPushCommitsAndPushes(t *testing.T) {
	remote, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	assert.NoError(t, c.WriteJSON("assignments.json", []byte(`{"assignments":{}}`)))
	result, err := c.CommitAndPush(context.Background(), []string{"assignments.json"}, "chore(test): add assignments")
	assert.NoError(t, err)
	assert.Equal(t, Committed, result)

	// Verify the remote actually advanced.
	other := filepath.Join(t.TempDir(), "verify")
	runGit(t, filepath.Dir(other), "clone", remote, other)
	data, err := os.ReadFile(filepath.Join(other, "assignments.json"))
	assert.NoError(t, err)
	assert.Equal(t, `{"assignments":{}}`, string(data))
}

func TestCommitAndPushNothingToCommit(t *testing.T) {
	_, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	result, err := c.CommitAndPush(context.Background(), []string{"roster.json"}, "chore(test): no-op")
	assert.NoError(t, err)
	assert.Equal(t, NothingToCommit, result)
}

func TestCommitAndPushRejectedOnDivergence(t *testing.T) {
	remote, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	// A peer pushes first.
	peer := filepath.Join(t.TempDir(), "peer")
	runGit(t, filepath.Dir(peer), "clone", remote, peer)
	runGit(t, peer, "config", "user.email", "peer@example.com")
	runGit(t, peer, "config", "user.name", "Peer")
	require.NoError(t, os.WriteFile(filepath.Join(peer, "assignments.json"), []byte(`{"assignments":{"t1":{}}}`), 0o644))
	runGit(t, peer, "add", "assignments.json")
	runGit(t, peer, "commit", "-m", "peer claims t1")
	runGit(t, peer, "push", "origin", "HEAD:main")

	// Our stale clone attempts to write and push the same path.
	assert.NoError(t, c.WriteJSON("assignments.json", []byte(`{"assignments":{"t2":{}}}`)))
	result, err := c.CommitAndPush(context.Background(), []string{"assignments.json"}, "chore(test): claim t2")
	assert.NoError(t, err)
	assert.Equal(t, PushRejected, result)
}

func TestSyncFastForwards(t *testing.T) {
	remote, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	peer := filepath.Join(t.TempDir(), "peer")
	runGit(t, filepath.Dir(peer), "clone", remote, peer)
	runGit(t, peer, "config", "user.email", "peer@example.com")
	runGit(t, peer, "config", "user.name", "Peer")
	require.NoError(t, os.WriteFile(filepath.Join(peer, "schedule.json"), []byte(`{"tasks":[]}`), 0o644))
	runGit(t, peer, "add", "schedule.json")
	runGit(t, peer, "commit", "-m", "peer adds schedule")
	runGit(t, peer, "push", "origin", "HEAD:main")

	assert.NoError(t, c.Sync(context.Background()))

	data, err := c.ReadJSON("schedule.json")
	assert.NoError(t, err)
	assert.Equal(t, `{"tasks":[]}`, string(data))
}

func TestRecoveryResetDiscardsLocalChanges(t *testing.T) {
	_, clone := setupBareRepoAndClone(t)
	c := New(clone, "main")

	require.NoError(t, os.WriteFile(filepath.Join(clone, "roster.json"), []byte(`{"garbage": true}`), 0o644))

	assert.NoError(t, c.RecoveryReset(context.Background()))

	data, err := c.ReadJSON("roster.json")
	assert.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}
