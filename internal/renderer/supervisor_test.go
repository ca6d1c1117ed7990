package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMount(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantOpts []string
		wantErr  bool
	}{
		{"read-only bind", "/repo:/data:ro", []string{"rbind", "ro"}, false},
		{"read-write bind", "/scratch:/scratch", []string{"rbind", "rw"}, false},
		{"missing destination", "/repo", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := parseMount(tt.template)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantOpts, m.Options)
			assert.Equal(t, "bind", m.Type)
		})
	}
}

func TestSplitN(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitN("a:b:c", ':', 3))
	assert.Equal(t, []string{"a", "b:c"}, splitN("a:b:c", ':', 2))
	assert.Equal(t, []string{"a"}, splitN("a", ':', 3))
}

func TestNewReturnsErrorForUnknownTaskType(t *testing.T) {
	reg := EmptyRegistry()
	_, err := New(nil, reg, "/repo", "t1", "unregistered", "node-1", "us-east")
	assert.Error(t, err)
}

func TestContainerName(t *testing.T) {
	reg := EmptyRegistry()
	reg.descriptors["web"] = Descriptor{Image: "x"}
	sup, err := New(nil, reg, "/repo", "task-1", "web", "node-1", "")
	assert.NoError(t, err)
	assert.Equal(t, "task-1-abcd1234", sup.containerName("abcd1234"))
}
