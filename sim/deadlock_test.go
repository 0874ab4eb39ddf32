package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlockDetector_TimeoutFiresOnce(t *testing.T) {
	d := NewDeadlockDetector(300)
	d.RegisterBlocked("dev_a", 10, "dev_b")

	assert.Nil(t, d.Check(300), "not yet past threshold")
	assert.Nil(t, d.Check(310), "at 300s blocked, threshold not exceeded")

	info := d.Check(311)
	require.NotNil(t, info)
	assert.Equal(t, DeadlockTimeout, info.Type)
	assert.Equal(t, []string{"dev_a", "dev_b"}, info.InvolvedDevices)
	assert.Equal(t, 311.0, info.DetectionTime)
	assert.Contains(t, info.Message, "dev_a")

	// Same blockage must not be reported twice.
	assert.Nil(t, d.Check(500))
}

func TestDeadlockDetector_ReBlockReportsAgain(t *testing.T) {
	d := NewDeadlockDetector(100)
	d.RegisterBlocked("dev_a", 0, "dev_b")
	require.NotNil(t, d.Check(150))

	// Unblocking and blocking anew starts a fresh occurrence.
	d.RegisterUnblocked("dev_a")
	d.RegisterBlocked("dev_a", 200, "dev_b")
	assert.Nil(t, d.Check(250))
	assert.NotNil(t, d.Check(350))
}

func TestDeadlockDetector_BlockedSincePreserved(t *testing.T) {
	d := NewDeadlockDetector(300)
	d.RegisterBlocked("dev_a", 10, "dev_b")
	// Re-registering while blocked keeps the original time.
	d.RegisterBlocked("dev_a", 200, "dev_b")

	assert.NotNil(t, d.Check(311), "timeout measured from first registration")
}

func TestDeadlockDetector_CircularWait(t *testing.T) {
	d := NewDeadlockDetector(300)
	d.RegisterBlocked("d1", 5, "d2")
	d.RegisterBlocked("d2", 5, "d3")
	assert.Nil(t, d.Check(6), "chain without back edge is no cycle")

	d.RegisterBlocked("d3", 5, "d1")
	info := d.Check(6)
	require.NotNil(t, info)
	assert.Equal(t, DeadlockCircularWait, info.Type)
	assert.Equal(t, []string{"d1", "d2", "d3"}, info.InvolvedDevices)
	require.Len(t, info.WaitChain, 4)
	assert.Equal(t, info.WaitChain[0], info.WaitChain[3], "chain closes on its entry node")

	// Same cycle, no second report.
	assert.Nil(t, d.Check(7))
}

func TestDeadlockDetector_TwoNodeCycle(t *testing.T) {
	d := NewDeadlockDetector(300)
	d.RegisterBlocked("a", 0, "b")
	d.RegisterBlocked("b", 0, "a")

	info := d.Check(1)
	require.NotNil(t, info)
	assert.Equal(t, DeadlockCircularWait, info.Type)
	assert.Equal(t, []string{"a", "b"}, info.InvolvedDevices)
}

func TestDeadlockDetector_UnblockBreaksCycle(t *testing.T) {
	d := NewDeadlockDetector(300)
	d.RegisterBlocked("a", 0, "b")
	d.RegisterBlocked("b", 0, "a")
	d.RegisterUnblocked("b")

	assert.Nil(t, d.Check(1), "unblocked device removed from both graph sides")

	graph := d.WaitGraph()
	_, stillThere := graph["b"]
	assert.False(t, stillThere)
	assert.NotContains(t, graph["a"], "b")
}

func TestDeadlockDetector_Accessors(t *testing.T) {
	d := NewDeadlockDetector(0)
	assert.Equal(t, DefaultDeadlockTimeout, d.Stats().TimeoutThreshold, "non-positive timeout selects the default")

	d.RegisterBlocked("a", 3.5, "b")
	d.RegisterBlocked("a", 3.5, "c")

	blocked := d.BlockedDevices()
	assert.Equal(t, map[string]float64{"a": 3.5}, blocked)
	assert.Equal(t, []string{"b", "c"}, d.WaitGraph()["a"])

	stats := d.Stats()
	assert.Equal(t, 1, stats.BlockedDevices)
	assert.Equal(t, 2, stats.WaitRelationships)
	assert.Equal(t, 0, stats.DeadlocksDetected)
}

func TestDeadlockDetector_Reset(t *testing.T) {
	d := NewDeadlockDetector(100)
	d.RegisterBlocked("a", 0, "b")
	require.NotNil(t, d.Check(200))

	d.Reset()
	stats := d.Stats()
	assert.Zero(t, stats.BlockedDevices)
	assert.Zero(t, stats.WaitRelationships)
	assert.Zero(t, stats.DeadlocksDetected)

	// After reset the same blockage is reportable again.
	d.RegisterBlocked("a", 0, "b")
	assert.NotNil(t, d.Check(200))
}

func TestDeadlockDetector_TimeoutCheckedBeforeCycle(t *testing.T) {
	d := NewDeadlockDetector(100)
	d.RegisterBlocked("a", 0, "b")
	d.RegisterBlocked("b", 0, "a")

	info := d.Check(200)
	require.NotNil(t, info)
	assert.Equal(t, DeadlockTimeout, info.Type, "timeout strategy runs first")
}
