// Package config holds the immutable configuration value object threaded
// through every Shortlist component at construction time. Nothing in this
// module reads a package-level global for a tunable; everything is passed in
// here once at process startup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config is the full set of tunables for one Shortlist node process. A zero
// Config is not valid; start from Default() and override fields from flags
// and environment.
type Config struct {
	// NodeID uniquely identifies this process in the roster. Generated if empty.
	NodeID string

	// RepoPath is the local working directory of the coordination repository.
	RepoPath string
	// RepoURL is the remote the local working tree tracks. No component reads
	// it; the clone itself is assumed pre-provisioned.
	RepoURL string
	// Branch is the coordination branch name, e.g. "main".
	Branch string

	// Region restricts which required_region tasks this node is eligible for.
	// Empty means "no region" (only tasks with no required_region match).
	Region string
	// Roles restricts which required_role tasks this node is eligible for.
	Roles []string

	// HeartbeatInterval is how often the Node refreshes its roster row.
	HeartbeatInterval time.Duration
	// IdlePollInterval is how long IDLE sleeps between schedule scans when
	// nothing is claimable.
	IdlePollInterval time.Duration
	// JitterMax bounds the random delay before a claim attempt's sync+write.
	JitterMax time.Duration

	// LeaseDuration is how long a claimed assignment's lease lasts per renewal.
	LeaseDuration time.Duration
	// RenewalThreshold is how long before expiry a lease is renewed.
	RenewalThreshold time.Duration
	// GracePeriod bounds tolerated clock skew between nodes.
	GracePeriod time.Duration

	// HealthCheckInterval is how often ACTIVE probes the renderer.
	HealthCheckInterval time.Duration
	// MaxConsecutiveFailures is the health-probe failure threshold before teardown.
	MaxConsecutiveFailures int

	// GovernorPeriod is the Governor's cycle interval.
	GovernorPeriod time.Duration

	// HealerPeriod is the Healer's cycle interval.
	HealerPeriod time.Duration
	// HealerGrace extends lease expiry before the Healer considers an
	// assignment stale. It is the only extension the Healer applies; the
	// Lease Clock's own grace period is not added to it.
	HealerGrace time.Duration

	// NodeTimeout is how long since last_seen before a roster row is no
	// longer considered alive.
	NodeTimeout time.Duration

	// MinCommitInterval holds the per-document commit interval for a single
	// node. No component reads it: commits and pushes are not rate limited.
	MinCommitInterval time.Duration

	// RendererRegistryPath points at the YAML file describing task_type to
	// renderer descriptor mappings (see internal/renderer).
	RendererRegistryPath string
	// ContainerdSocket is the path to the containerd API socket used by the
	// Renderer Supervisor.
	ContainerdSocket string

	// MetricsAddr is the bind address for the local Prometheus exposition
	// endpoint (empty disables it).
	MetricsAddr string

	LogLevel  string
	LogJSON   bool
}

// Default returns the configuration with every interval set to the value
// named in spec.md §4. Long-latency environments should override
// LeaseDuration to 10 minutes as spec.md §4.3 allows.
func Default() Config {
	return Config{
		Branch:                 "main",
		HeartbeatInterval:      5 * time.Minute,
		IdlePollInterval:       30 * time.Second,
		JitterMax:              5 * time.Second,
		LeaseDuration:          5 * time.Minute,
		RenewalThreshold:       1 * time.Minute,
		GracePeriod:            30 * time.Second,
		HealthCheckInterval:    20 * time.Second,
		MaxConsecutiveFailures: 3,
		GovernorPeriod:         60 * time.Second,
		HealerPeriod:           5 * time.Minute,
		HealerGrace:            30 * time.Second,
		NodeTimeout:            15 * time.Minute,
		MinCommitInterval:      10 * time.Second,
		RendererRegistryPath:   "renderers.yaml",
		ContainerdSocket:       "/run/containerd/containerd.sock",
		MetricsAddr:            "127.0.0.1:9090",
		LogLevel:               "info",
		LogJSON:                true,
	}
}

// Validate checks invariants that must hold before any component starts.
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("config: repo path is required")
	}
	if c.RenewalThreshold >= c.LeaseDuration {
		return fmt.Errorf("config: renewal threshold (%s) must be less than lease duration (%s)", c.RenewalThreshold, c.LeaseDuration)
	}
	if c.GracePeriod > 30*time.Second {
		return fmt.Errorf("config: grace period (%s) exceeds the assumed worst-case clock skew of 30s", c.GracePeriod)
	}
	return nil
}

// WithGeneratedNodeID fills NodeID with a fresh UUID if it is empty.
func (c Config) WithGeneratedNodeID() Config {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	return c
}

// RegionFromEnv applies the SHORTLIST_REGION environment variable override
// named in spec.md §6, if set and the caller did not already set Region via flag.
func (c Config) RegionFromEnv() Config {
	if c.Region == "" {
		if v := os.Getenv("SHORTLIST_REGION"); v != "" {
			c.Region = v
		}
	}
	return c
}

// HasRole reports whether role is in the node's configured role set. A task
// with no required_role is always eligible regardless of this set.
func (c Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRoles splits a comma-separated --roles flag value.
func ParseRoles(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// NodeIDPrefix returns the short identifier used in commit messages per
// spec.md §6 ("<id_prefix>").
func (c Config) NodeIDPrefix() string {
	if len(c.NodeID) <= 8 {
		return c.NodeID
	}
	return c.NodeID[:8]
}
