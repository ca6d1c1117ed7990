package renderer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/shortlist/internal/metrics"
	"github.com/cuemby/shortlist/pkg/health"
	"github.com/cuemby/shortlist/pkg/log"
)

// StopTimeout is how long StopContainer waits for a graceful exit before
// force-killing, matching the teacher's worker.go default.
const StopTimeout = 10 * time.Second

// Supervisor drives one renderer subprocess's lifecycle for a single claimed
// task, per spec.md §4.5. It does not interpret the renderer's output; the
// container's liveness and /health response are a proxy for task liveness.
type Supervisor struct {
	runtime  *Runtime
	registry *Registry
	repoRoot string

	taskID      string
	taskType    string
	nodeID      string
	region      string
	descriptor  Descriptor
	containerID string

	checker      *health.HTTPChecker
	status       *health.Status
	healthConfig health.Config
}

// New constructs a Supervisor for one task. repoRoot is substituted into the
// descriptor's {repo_root} volume templates.
func New(runtime *Runtime, registry *Registry, repoRoot, taskID, taskType, nodeID, region string) (*Supervisor, error) {
	d, ok := registry.Resolve(taskType)
	if !ok {
		return nil, fmt.Errorf("renderer: no registered descriptor for task_type %q", taskType)
	}
	return &Supervisor{
		runtime:    runtime,
		registry:   registry,
		repoRoot:   repoRoot,
		taskID:     taskID,
		taskType:   taskType,
		nodeID:     nodeID,
		region:     region,
		descriptor: d,
		status:     health.NewStatus(),
		healthConfig: health.Config{
			Interval: 20 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  3,
		},
	}, nil
}

// containerName is the unique name spec.md §4.5 mandates:
// <task_id>-<node_id_prefix>.
func (s *Supervisor) containerName(nodeIDPrefix string) string {
	return s.taskID + "-" + nodeIDPrefix
}

// BuildImage builds the descriptor's image if it declares a build context.
func (s *Supervisor) BuildImage(ctx context.Context) error {
	return s.runtime.BuildImage(ctx, s.descriptor)
}

// Start launches the renderer container, always forwarding
// SHORTLIST_NODE_ID/SHORTLIST_TASK_ID/SHORTLIST_REGION in addition to the
// descriptor's declared env var names (see SPEC_FULL.md §C, grounded on
// original_source/node.py's unconditional env injection).
func (s *Supervisor) Start(ctx context.Context, nodeIDPrefix string) error {
	l := log.WithComponent("renderer").With().
		Str("task_id", s.taskID).Str("task_type", s.taskType).Logger()

	if err := s.runtime.PullImage(ctx, s.descriptor.Image); err != nil {
		l.Warn().Err(err).Msg("image pull failed, attempting to use cached image")
	}

	resolved, missing := ExpandEnvVars(s.descriptor.EnvVars)
	for _, m := range missing {
		l.Warn().Str("env_var", m).Msg("optional renderer env var not set")
	}
	resolved = append(resolved,
		"SHORTLIST_NODE_ID="+s.nodeID,
		"SHORTLIST_TASK_ID="+s.taskID,
		"SHORTLIST_REGION="+s.region,
	)

	mounts := make([]specs.Mount, 0, len(s.descriptor.Volumes))
	for _, v := range s.descriptor.ResolveVolumes(s.repoRoot) {
		m, err := parseMount(v)
		if err != nil {
			return fmt.Errorf("renderer: invalid volume template %q: %w", v, err)
		}
		mounts = append(mounts, m)
	}

	name := s.containerName(nodeIDPrefix)
	containerID, err := s.runtime.StartContainer(ctx, ContainerSpec{
		ContainerID: name,
		Image:       s.descriptor.Image,
		Env:         resolved,
		Mounts:      mounts,
	})
	if err != nil {
		return err
	}
	s.containerID = containerID

	if s.descriptor.HealthEndpoint && s.descriptor.Port != 0 {
		url := fmt.Sprintf("http://localhost:%d/health", s.descriptor.Port)
		s.checker = health.NewHTTPChecker(url).WithTimeout(s.healthConfig.Timeout)
	}

	l.Info().Str("container_id", containerID).Msg("renderer started")
	return nil
}

// IsRunning reports whether the container process is still alive.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	if s.containerID == "" {
		return false
	}
	return s.runtime.IsRunning(ctx, s.containerID)
}

// CheckHealth probes the renderer's health, per spec.md §4.5: a renderer
// with no declared health endpoint is always considered healthy. Returns
// false once MaxConsecutiveFailures is reached.
func (s *Supervisor) CheckHealth(ctx context.Context, maxConsecutiveFailures int) bool {
	if s.checker == nil {
		return true
	}
	result := s.checker.Check(ctx)
	cfg := s.healthConfig
	cfg.Retries = maxConsecutiveFailures
	s.status.Update(result, cfg)
	metrics.RendererHealthChecks.WithLabelValues(s.taskType, strconv.FormatBool(result.Healthy)).Inc()
	return s.status.Healthy
}

// Stop gracefully stops and removes the container, swallowing errors per
// spec.md §4.5 ("the container may already be gone").
func (s *Supervisor) Stop(ctx context.Context) {
	if s.containerID == "" {
		return
	}
	l := log.WithComponent("renderer").With().Str("task_id", s.taskID).Logger()
	if err := s.runtime.StopContainer(ctx, s.containerID, StopTimeout); err != nil {
		l.Warn().Err(err).Msg("error stopping renderer, continuing teardown")
	}
	l.Info().Msg("renderer stopped")
}

// parseMount translates a "{src}:{dst}[:ro]" volume template into an OCI
// bind mount spec.
func parseMount(template string) (specs.Mount, error) {
	parts := splitN(template, ':', 3)
	if len(parts) < 2 {
		return specs.Mount{}, fmt.Errorf("expected src:dst[:opts], got %q", template)
	}
	opts := []string{"rbind"}
	if len(parts) == 3 && parts[2] == "ro" {
		opts = append(opts, "ro")
	} else {
		opts = append(opts, "rw")
	}
	return specs.Mount{
		Source:      parts[0],
		Destination: parts[1],
		Type:        "bind",
		Options:     opts,
	}, nil
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
