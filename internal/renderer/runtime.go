package renderer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// DefaultNamespace is the containerd namespace Shortlist's renderer
// containers run under.
const DefaultNamespace = "shortlist"

// ErrBuildFailed wraps a failed image build, per spec.md §4.5.
type ErrBuildFailed struct{ Err error }

func (e *ErrBuildFailed) Error() string { return fmt.Sprintf("renderer: build failed: %v", e.Err) }
func (e *ErrBuildFailed) Unwrap() error  { return e.Err }

// ErrStartFailed wraps a failed container start, per spec.md §4.5.
type ErrStartFailed struct{ Err error }

func (e *ErrStartFailed) Error() string { return fmt.Sprintf("renderer: start failed: %v", e.Err) }
func (e *ErrStartFailed) Unwrap() error  { return e.Err }

// Runtime drives containerd directly, grounded on the teacher's
// pkg/runtime.ContainerdRuntime: pull, create-with-mounts, start, stop, and
// is-running map almost one-to-one onto spec.md §4.5's lifecycle contract.
type Runtime struct {
	client    *containerd.Client
	namespace string
}

// NewRuntime connects to the containerd socket at socketPath.
func NewRuntime(socketPath string) (*Runtime, error) {
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("renderer: connect to containerd: %w", err)
	}
	return &Runtime{client: client, namespace: DefaultNamespace}, nil
}

// Close releases the containerd client connection.
func (r *Runtime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// BuildImage invokes an external container builder (`docker build`) against
// the descriptor's build context, if one is declared. A descriptor with no
// BuildContext is pull-only and this is a no-op.
func (r *Runtime) BuildImage(ctx context.Context, d Descriptor) error {
	if d.BuildContext == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", d.Image, d.BuildContext)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ErrBuildFailed{Err: fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)}
	}
	return nil
}

// PullImage pulls image from its registry and unpacks it for use.
func (r *Runtime) PullImage(ctx context.Context, image string) error {
	if r.client == nil {
		return fmt.Errorf("renderer: no containerd connection")
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	if _, err := r.client.Pull(ctx, image, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("renderer: pull image %s: %w", image, err)
	}
	return nil
}

// ContainerSpec is the fully-resolved set of parameters for starting one
// renderer container.
type ContainerSpec struct {
	ContainerID string
	Image       string
	Env         []string
	Mounts      []specs.Mount
}

// StartContainer creates and starts a container per spec, returning its id.
// Errors are wrapped as *ErrStartFailed, per spec.md §4.5.
func (r *Runtime) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	if r.client == nil {
		return "", &ErrStartFailed{Err: fmt.Errorf("no containerd connection")}
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", &ErrStartFailed{Err: fmt.Errorf("get image %s: %w", spec.Image, err)}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}
	if len(spec.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(spec.Mounts))
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		spec.ContainerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ContainerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", &ErrStartFailed{Err: fmt.Errorf("create container: %w", err)}
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return "", &ErrStartFailed{Err: fmt.Errorf("create task: %w", err)}
	}
	if err := task.Start(ctx); err != nil {
		return "", &ErrStartFailed{Err: fmt.Errorf("start task: %w", err)}
	}

	return ctrdContainer.ID(), nil
}

// IsRunning reports whether containerID currently has a running task.
// Swallows errors and reports false, per spec.md §4.5 ("the container may
// already be gone").
func (r *Runtime) IsRunning(ctx context.Context, containerID string) bool {
	if r.client == nil {
		return false
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return false
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return false
	}
	status, err := task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}

// StopContainer attempts a graceful stop (SIGTERM, then SIGKILL after
// timeout), then deletes the task and container. All failures are swallowed
// and logged by the caller; per spec.md §4.5 "the container may already be
// gone."
func (r *Runtime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	if r.client == nil {
		return nil
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return container.Delete(ctx, containerd.WithSnapshotCleanup)
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("renderer: signal container %s: %w", containerID, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("renderer: wait on container %s: %w", containerID, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		_ = task.Kill(ctx, syscall.SIGKILL)
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("renderer: delete task %s: %w", containerID, err)
	}
	return container.Delete(ctx, containerd.WithSnapshotCleanup)
}

// ExpandEnvVars resolves a list of declared environment variable names from
// the process environment, returning "NAME=value" pairs. Names with no
// value set are skipped (warned by the caller), per spec.md §4.5.
func ExpandEnvVars(names []string) (resolved []string, missing []string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			resolved = append(resolved, name+"="+v)
		} else {
			missing = append(missing, name)
		}
	}
	return resolved, missing
}
