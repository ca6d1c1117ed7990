package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleLocalReturnsNonNegativeValues(t *testing.T) {
	s := SampleLocal()
	assert.GreaterOrEqual(t, s.CPULoad, 0.0)
	assert.GreaterOrEqual(t, s.MemoryPercent, 0.0)
}

func TestParseKB(t *testing.T) {
	assert.Equal(t, 16384.0, parseKB("MemTotal:       16384 kB"))
	assert.Equal(t, 0.0, parseKB("MemTotal:"))
}
