// Package renderer implements the Renderer Supervisor described in spec.md
// §4.5: it resolves a declarative descriptor for a claimed task's type and
// drives the container subprocess lifecycle (build, start, health-check,
// stop) without ever interpreting what the renderer itself produces.
package renderer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the declarative registration for one task_type, per
// spec.md §4.5 and §9 ("an explicit registry keyed by the declarative
// descriptor, not by polymorphic subtyping").
type Descriptor struct {
	// Image is the container image name to run.
	Image string `yaml:"image"`
	// BuildContext is the path to build Image from, if it is built locally
	// rather than pulled. Empty means pull-only.
	BuildContext string `yaml:"build_context,omitempty"`
	// Port is the container port to publish and probe for health, if any.
	Port int `yaml:"port,omitempty"`
	// Volumes are mount templates using the {repo_root} placeholder, per
	// spec.md §4.5 (e.g. "{repo_root}:/data:ro").
	Volumes []string `yaml:"volumes,omitempty"`
	// EnvVars names environment variables forwarded from the process
	// environment or a secrets file into the container. Missing optional
	// ones are warned, not fatal, per spec.md §4.5.
	EnvVars []string `yaml:"env_vars,omitempty"`
	// HealthEndpoint, if true, means the renderer exposes HTTP GET /health
	// on Port. If false, check_health() always reports healthy.
	HealthEndpoint bool `yaml:"health_endpoint,omitempty"`
}

// Registry maps task_type to its Descriptor.
type Registry struct {
	descriptors map[string]Descriptor
}

// LoadRegistry reads a YAML registry file shaped as:
//
//	web:
//	  image: shortlist/web-renderer:latest
//	  port: 8080
//	  volumes:
//	    - "{repo_root}:/data:ro"
//	  env_vars: ["API_TOKEN"]
//	  health_endpoint: true
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("renderer: read registry %s: %w", path, err)
	}
	raw := map[string]Descriptor{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("renderer: parse registry %s: %w", path, err)
	}
	return &Registry{descriptors: raw}, nil
}

// EmptyRegistry returns a Registry with no descriptors, for a node started
// without a readable registry file; every Resolve call will report not-found.
func EmptyRegistry() *Registry {
	return &Registry{descriptors: map[string]Descriptor{}}
}

// Resolve looks up the descriptor for taskType.
func (r *Registry) Resolve(taskType string) (Descriptor, bool) {
	d, ok := r.descriptors[taskType]
	return d, ok
}

// ResolveVolumes substitutes {repo_root} in the descriptor's volume
// templates with repoRoot.
func (d Descriptor) ResolveVolumes(repoRoot string) []string {
	out := make([]string, len(d.Volumes))
	for i, v := range d.Volumes {
		out[i] = strings.ReplaceAll(v, "{repo_root}", repoRoot)
	}
	return out
}
