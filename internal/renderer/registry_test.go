package renderer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renderers.yaml")
	content := `
web:
  image: shortlist/web-renderer:latest
  port: 8080
  volumes:
    - "{repo_root}:/data:ro"
  env_vars: ["API_TOKEN"]
  health_endpoint: true
text:
  image: shortlist/text-renderer:latest
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadRegistry(path)
	assert.NoError(t, err)

	d, ok := reg.Resolve("web")
	assert.True(t, ok)
	assert.Equal(t, "shortlist/web-renderer:latest", d.Image)
	assert.Equal(t, 8080, d.Port)
	assert.True(t, d.HealthEndpoint)

	_, ok = reg.Resolve("unknown")
	assert.False(t, ok)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry("/nonexistent/renderers.yaml")
	assert.Error(t, err)
}

func TestResolveVolumes(t *testing.T) {
	d := Descriptor{Volumes: []string{"{repo_root}:/data:ro", "/scratch:/scratch"}}
	resolved := d.ResolveVolumes("/srv/shortlist-repo")
	assert.Equal(t, []string{"/srv/shortlist-repo:/data:ro", "/scratch:/scratch"}, resolved)
}

func TestEmptyRegistry(t *testing.T) {
	reg := EmptyRegistry()
	_, ok := reg.Resolve("anything")
	assert.False(t, ok)
}
