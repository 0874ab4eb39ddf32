package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFlow(id, from, to string, deps ...string) Flow {
	return Flow{
		ID:               id,
		FromDevice:       from,
		ToDevice:         to,
		ProcessTimeRange: TimeRange{Min: 1, Max: 2},
		Dependencies:     deps,
		OffsetMode:       OffsetParallel,
	}
}

func TestFlowController_RejectsUnknownDevice(t *testing.T) {
	_, err := NewFlowController(
		[]Flow{mkFlow("f1", "a", "nowhere")},
		[]string{"a", "b"},
	)
	var derr *UnknownDeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "f1", derr.FlowID)
	assert.Equal(t, "nowhere", derr.DeviceID)
}

func TestFlowController_RejectsUnknownDependency(t *testing.T) {
	_, err := NewFlowController(
		[]Flow{mkFlow("f1", "a", "b", "ghost")},
		[]string{"a", "b"},
	)
	var ferr *UnknownFlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "f1", ferr.FlowID)
	assert.Equal(t, "ghost", ferr.Dependency)
}

func TestFlowController_RejectsDependencyCycle(t *testing.T) {
	_, err := NewFlowController(
		[]Flow{
			mkFlow("f1", "a", "b", "f2"),
			mkFlow("f2", "b", "a", "f1"),
		},
		[]string{"a", "b"},
	)
	var cerr *CircularDependencyError
	require.ErrorAs(t, err, &cerr)
}

func TestFlowController_RejectsSelfDependency(t *testing.T) {
	_, err := NewFlowController(
		[]Flow{mkFlow("f1", "a", "b", "f1")},
		[]string{"a", "b"},
	)
	var cerr *CircularDependencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "f1", cerr.FlowID)
}

func TestFlowController_AcceptsLongChain(t *testing.T) {
	// A deep linear chain must not trip cycle detection or exhaust stack.
	const n = 5000
	flows := make([]Flow, n)
	flows[0] = mkFlow("f0", "a", "b")
	for i := 1; i < n; i++ {
		flows[i] = mkFlow(fmt.Sprintf("f%d", i), "a", "b", fmt.Sprintf("f%d", i-1))
	}
	fc, err := NewFlowController(flows, []string{"a", "b"})
	require.NoError(t, err)
	assert.NotNil(t, fc)
}

func TestFlowController_ExecutableFlows(t *testing.T) {
	fc, err := NewFlowController(
		[]Flow{
			mkFlow("prep", "a", "b"),
			mkFlow("spin", "b", "c", "prep"),
			mkFlow("pool", "c", "d", "prep", "spin"),
			mkFlow("side", "a", "d"),
		},
		[]string{"a", "b", "c", "d"},
	)
	require.NoError(t, err)

	// Nothing completed: only dependency-free flows, in declaration order.
	assert.Equal(t, []string{"prep", "side"}, fc.ExecutableFlows(nil))

	assert.Equal(t, []string{"spin", "side"}, fc.ExecutableFlows([]string{"prep"}))
	assert.Equal(t, []string{"pool", "side"}, fc.ExecutableFlows([]string{"prep", "spin"}))

	// Internally tracked completions merge with the caller's list.
	fc.MarkCompleted("prep")
	fc.MarkCompleted("side")
	assert.Equal(t, []string{"pool"}, fc.ExecutableFlows([]string{"spin"}))
}

func TestFlowController_StartAndCompleteTracking(t *testing.T) {
	fc, err := NewFlowController(
		[]Flow{mkFlow("f1", "a", "b")},
		[]string{"a", "b"},
	)
	require.NoError(t, err)

	assert.False(t, fc.IsStarted("f1"))
	assert.False(t, fc.IsCompleted("f1"))

	fc.MarkStarted("f1")
	assert.True(t, fc.IsStarted("f1"))
	assert.False(t, fc.IsCompleted("f1"))

	fc.MarkCompleted("f1")
	assert.True(t, fc.IsCompleted("f1"))
	assert.Equal(t, 1, fc.CompletedCount())
}
