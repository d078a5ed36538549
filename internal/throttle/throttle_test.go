package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenExhaustion(t *testing.T) {
	// 1 rps with burst 3: the first three calls pass, the fourth is
	// rejected before any meaningful refill happens
	tr := New(&Config{RequestsPerSecond: 1, Burst: 3, Enabled: true})

	assert.True(t, tr.Allow())
	assert.True(t, tr.Allow())
	assert.True(t, tr.Allow())
	assert.False(t, tr.Allow())

	stats := tr.Stats()
	assert.Equal(t, uint64(3), stats.Processed)
	assert.Equal(t, uint64(1), stats.Throttled)
}

func TestAllow_DisabledAlwaysAdmits(t *testing.T) {
	tr := New(&Config{RequestsPerSecond: 1, Burst: 1, Enabled: false})

	for i := 0; i < 100; i++ {
		assert.True(t, tr.Allow())
	}

	stats := tr.Stats()
	assert.Equal(t, uint64(100), stats.Processed)
	assert.Equal(t, uint64(0), stats.Throttled)
	assert.False(t, stats.Enabled)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tr := New(nil)
	assert.True(t, tr.Allow())
	assert.True(t, tr.Stats().Enabled)
}

func TestClear_ResetsCounters(t *testing.T) {
	tr := New(&Config{RequestsPerSecond: 1, Burst: 1, Enabled: true})

	tr.Allow()
	tr.Allow()
	tr.Clear()

	stats := tr.Stats()
	assert.Equal(t, uint64(0), stats.Processed)
	assert.Equal(t, uint64(0), stats.Throttled)
}
