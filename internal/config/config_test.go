package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = "/tmp/shortlist"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresRepoPath(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())
}

func TestValidateRenewalThreshold(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = "/tmp/shortlist"
	cfg.RenewalThreshold = cfg.LeaseDuration
	assert.Error(t, cfg.Validate())
}

func TestValidateGracePeriod(t *testing.T) {
	cfg := Default()
	cfg.RepoPath = "/tmp/shortlist"
	cfg.GracePeriod = 31 * time.Second
	assert.Error(t, cfg.Validate())
}

func TestWithGeneratedNodeID(t *testing.T) {
	cfg := Config{}
	cfg = cfg.WithGeneratedNodeID()
	assert.NotEmpty(t, cfg.NodeID)

	cfg2 := Config{NodeID: "fixed-id"}
	cfg2 = cfg2.WithGeneratedNodeID()
	assert.Equal(t, "fixed-id", cfg2.NodeID)
}

func TestRegionFromEnv(t *testing.T) {
	t.Setenv("SHORTLIST_REGION", "us-east")

	cfg := Config{}
	cfg = cfg.RegionFromEnv()
	assert.Equal(t, "us-east", cfg.Region)

	cfg2 := Config{Region: "eu-west"}
	cfg2 = cfg2.RegionFromEnv()
	assert.Equal(t, "eu-west", cfg2.Region, "explicit region must not be overridden")
}

func TestHasRole(t *testing.T) {
	cfg := Config{Roles: []string{"governor", "web"}}
	assert.True(t, cfg.HasRole("governor"))
	assert.True(t, cfg.HasRole("web"))
	assert.False(t, cfg.HasRole("healer"))
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want []string
	}{
		{"empty", "", nil},
		{"single", "governor", []string{"governor"}},
		{"multiple with spaces", "governor, healer , web", []string{"governor", "healer", "web"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRoles(tt.csv))
		})
	}
}

func TestNodeIDPrefix(t *testing.T) {
	assert.Equal(t, "short", Config{NodeID: "short"}.NodeIDPrefix())
	assert.Equal(t, "12345678", Config{NodeID: "12345678-abcd-ef01"}.NodeIDPrefix())
}
