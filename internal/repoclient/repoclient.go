// Package repoclient wraps the git binary to provide the four operations
// spec.md §4.1 calls the Repo Client: sync, read_json, write_json, and
// commit_and_push. It is the only package in this module that invokes git;
// every other component obtains these operations, never a working-directory
// handle, per spec.md §9's design note on encapsulating the working tree.
//
// The implementation shells out to the real git binary with os/exec rather
// than an in-process Git library, grounded on original_source/node.py's and
// original_source/renderers/governor/main.py's subprocess model (see
// DESIGN.md) — this is the one ambient concern in this module built on the
// standard library instead of a third-party package.
package repoclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/shortlist/pkg/log"
)

// PushResult is the explicit result variant for commit_and_push, replacing
// the exception-or-None control flow of the source implementation per
// spec.md §9.
type PushResult int

const (
	// Committed means the staged paths were committed and the push
	// fast-forwarded the remote branch.
	Committed PushResult = iota
	// NothingToCommit means the staged set collapsed to a no-op against
	// HEAD; nothing was committed or pushed.
	NothingToCommit
	// PushRejected means the push was rejected as non-fast-forward: a peer's
	// write landed on the remote since our last sync.
	PushRejected
)

func (r PushResult) String() string {
	switch r {
	case Committed:
		return "Committed"
	case NothingToCommit:
		return "NothingToCommit"
	case PushRejected:
		return "PushRejected"
	default:
		return "Unknown"
	}
}

// NetworkError signals a transient failure reaching the remote (fetch/push
// could not contact origin). Never fatal; callers recovery-reset and retry.
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return fmt.Sprintf("repoclient: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error  { return e.Err }

// DivergedError signals the local branch and origin have diverged in a way a
// fast-forward pull cannot resolve.
type DivergedError struct{ Err error }

func (e *DivergedError) Error() string { return fmt.Sprintf("repoclient: diverged from origin: %v", e.Err) }
func (e *DivergedError) Unwrap() error  { return e.Err }

// CorruptDocument signals a path did not parse as valid JSON.
type CorruptDocument struct {
	Path string
	Err  error
}

func (e *CorruptDocument) Error() string {
	return fmt.Sprintf("repoclient: corrupt document %s: %v", e.Path, e.Err)
}
func (e *CorruptDocument) Unwrap() error { return e.Err }

// UnrecoverableError signals a local repository that cannot be reset against
// origin even after a recovery reset attempt. Per spec.md §7 this is the only
// case that should terminate the process.
type UnrecoverableError struct{ Err error }

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("repoclient: unrecoverable: %v", e.Err)
}
func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Client operates a single local git working tree against one remote branch.
type Client struct {
	repoPath string
	branch   string
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default per-git-invocation timeout (10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client rooted at repoPath tracking branch.
func New(repoPath, branch string, opts ...Option) *Client {
	c := &Client{repoPath: repoPath, branch: branch, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		log.WithComponent("repoclient").Warn().
			Str("args", strings.Join(args, " ")).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Err(err).
			Msg("git command failed")
	}
	return stdout.String(), stderr.String(), err
}

// Sync fast-forwards the local branch to the remote, per spec.md §4.1.
// Returns *NetworkError if the remote could not be reached, *DivergedError
// if a fast-forward pull is impossible.
func (c *Client) Sync(ctx context.Context) error {
	if _, stderr, err := c.run(ctx, "fetch", "origin", c.branch); err != nil {
		return &NetworkError{Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
	}
	if _, stderr, err := c.run(ctx, "merge", "--ff-only", "origin/"+c.branch); err != nil {
		return &DivergedError{Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
	}
	return nil
}

// RecoveryReset performs the hard reset mandated by spec.md §4.1 and §9: it
// is the only permitted recovery from a PushRejected or DivergedError
// anywhere in this module. It fetches origin and resets the working tree to
// origin/<branch>, discarding any uncommitted local changes. If the reset
// itself fails, the UnrecoverableError is logged at fatal level, which exits
// the process with a non-zero status.
func (c *Client) RecoveryReset(ctx context.Context) error {
	if _, stderr, err := c.run(ctx, "fetch", "origin", c.branch); err != nil {
		return &NetworkError{Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
	}
	if _, stderr, err := c.run(ctx, "reset", "--hard", "origin/"+c.branch); err != nil {
		uerr := &UnrecoverableError{Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
		log.WithComponent("repoclient").Fatal().Err(uerr).Msg("local repository cannot be reset against origin")
		return uerr
	}
	return nil
}

// ReadJSON reads path relative to the repository root. A missing file
// returns (nil, nil) so callers can apply their own empty-document default,
// per spec.md §4.2's "tolerate a missing file" requirement.
func (c *Client) ReadJSON(path string) ([]byte, error) {
	full := filepath.Join(c.repoPath, path)
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repoclient: read %s: %w", path, err)
	}
	return data, nil
}

// WriteJSON stages path with the given already-serialized bytes. Callers
// are responsible for deterministic serialization (see internal/store);
// this method performs no transformation beyond writing the file.
func (c *Client) WriteJSON(path string, data []byte) error {
	full := filepath.Join(c.repoPath, path)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("repoclient: write %s: %w", path, err)
	}
	return nil
}

// CommitAndPush stages paths, commits with message if the working tree
// differs from HEAD for those paths, and pushes. It never returns a plain
// error for "nothing changed" or "rejected" — those are PushResult values,
// per spec.md §9's explicit-result-variant design note. Cancelling ctx does
// not interrupt a commit or push already under way; each git invocation is
// still bounded by the client timeout.
func (c *Client) CommitAndPush(ctx context.Context, paths []string, message string) (PushResult, error) {
	ctx = context.WithoutCancel(ctx)
	args := append([]string{"add"}, paths...)
	if _, stderr, err := c.run(ctx, args...); err != nil {
		return 0, fmt.Errorf("repoclient: stage %v: %s: %w", paths, strings.TrimSpace(stderr), err)
	}

	diffArgs := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	_, _, diffErr := c.run(ctx, diffArgs...)
	if diffErr == nil {
		// exit 0 means no staged differences against HEAD.
		return NothingToCommit, nil
	}

	if _, stderr, err := c.run(ctx, "commit", "-m", message); err != nil {
		return 0, fmt.Errorf("repoclient: commit: %s: %w", strings.TrimSpace(stderr), err)
	}

	_, stderr, err := c.run(ctx, "push", "origin", "HEAD:"+c.branch)
	if err != nil {
		if isNonFastForward(stderr) {
			return PushRejected, nil
		}
		return 0, &NetworkError{Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
	}
	return Committed, nil
}

func isNonFastForward(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "non-fast-forward") ||
		strings.Contains(s, "fetch first") ||
		strings.Contains(s, "rejected")
}
