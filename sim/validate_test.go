package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func iptr(v int) *int        { return &v }

func validRaw() *RawConfig {
	return &RawConfig{
		Simulation: &RawSimulation{Duration: f64(100)},
		Devices: []RawDevice{
			{ID: "dev_a", Type: "separator"},
			{ID: "dev_b", Type: "pooler", Capacity: iptr(2)},
		},
		Flows: []RawFlow{
			{FlowID: "f1", FromDevice: "dev_a", ToDevice: "dev_b", ProcessTimeRange: []float64{5, 10}},
		},
	}
}

func TestValidate_AcceptsMinimalConfig(t *testing.T) {
	cfg, err := Validate(validRaw())
	require.NoError(t, err)

	assert.Equal(t, 100.0, cfg.Simulation.Duration)
	assert.Equal(t, int64(0), cfg.Simulation.RandomSeed)
	assert.Equal(t, ModeAccelerated, cfg.Simulation.ExecutionMode)
	assert.Equal(t, 0.0, cfg.Simulation.SpeedMultiplier)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, 1, cfg.Devices[0].Capacity, "capacity defaults to 1")
	assert.Equal(t, StateIdle, cfg.Devices[0].InitialState)
	assert.Nil(t, cfg.Devices[0].RecoveryTimeRange)
	assert.Equal(t, 2, cfg.Devices[1].Capacity)

	require.Len(t, cfg.Flows, 1)
	assert.Equal(t, OffsetParallel, cfg.Flows[0].OffsetMode)
	assert.Equal(t, TimeRange{Min: 5, Max: 10}, cfg.Flows[0].ProcessTimeRange)
	assert.NotNil(t, cfg.Gates)
}

func TestValidate_NilDocument(t *testing.T) {
	_, err := Validate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "missing configuration document")
}

func TestValidate_MissingSections(t *testing.T) {
	_, err := Validate(&RawConfig{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 3)
	assert.Contains(t, verr.Issues, "missing required field: 'simulation'")
	assert.Contains(t, verr.Issues, "missing required field: 'devices'")
	assert.Contains(t, verr.Issues, "missing required field: 'flows'")
}

func TestValidate_AggregatesAllIssues(t *testing.T) {
	raw := validRaw()
	raw.Simulation.Duration = f64(-5)
	raw.Simulation.RandomSeed = i64(-1)
	raw.Simulation.ExecutionMode = "warp"
	raw.Devices[0].Capacity = iptr(0)
	raw.Devices = append(raw.Devices, RawDevice{ID: "dev_a"}) // duplicate
	raw.Flows[0].ToDevice = "ghost"
	raw.Flows = append(raw.Flows, RawFlow{
		FlowID:     "f2",
		FromDevice: "dev_a",
		ToDevice:   "dev_b",
		// process_time_range missing
		Dependencies: []string{"unknown_flow"},
	})

	_, err := Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Every violation is reported in one pass.
	assert.Contains(t, verr.Issues, "duration must be > 0")
	assert.Contains(t, verr.Issues, "random seed must be >= 0")
	assert.Contains(t, verr.Issues, `unknown execution_mode: "warp"`)
	assert.Contains(t, verr.Issues, "device dev_a has invalid capacity: capacity must be >= 1")
	assert.Contains(t, verr.Issues, "duplicate device id: dev_a")
	assert.Contains(t, verr.Issues, "flow f1 references unknown device: ghost")
	assert.Contains(t, verr.Issues, "flow f2 missing process_time_range")
	assert.Contains(t, verr.Issues, "flow f2 references unknown flow: unknown_flow")
	assert.GreaterOrEqual(t, len(verr.Issues), 8)
}

func TestValidate_TimeRanges(t *testing.T) {
	raw := validRaw()
	// Fixed duration: min == max is valid.
	raw.Flows[0].ProcessTimeRange = []float64{10, 10}
	cfg, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, TimeRange{Min: 10, Max: 10}, cfg.Flows[0].ProcessTimeRange)

	raw.Flows[0].ProcessTimeRange = []float64{10, 5}
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "flow f1 time range must have min <= max")

	raw.Flows[0].ProcessTimeRange = []float64{-1, 5}
	_, err = Validate(raw)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "flow f1 time range has negative min time")

	raw.Flows[0].ProcessTimeRange = []float64{5}
	_, err = Validate(raw)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "flow f1 time range must be [min, max]")
}

func TestValidate_DeviceRecoveryRange(t *testing.T) {
	raw := validRaw()
	raw.Devices[0].RecoveryTimeRange = []float64{3, 8}
	cfg, err := Validate(raw)
	require.NoError(t, err)
	require.NotNil(t, cfg.Devices[0].RecoveryTimeRange)
	assert.Equal(t, TimeRange{Min: 3, Max: 8}, *cfg.Devices[0].RecoveryTimeRange)

	raw.Devices[0].RecoveryTimeRange = []float64{8, 3}
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "device dev_a recovery range must have min <= max")
}

func TestValidate_InitialState(t *testing.T) {
	raw := validRaw()
	raw.Devices[0].InitialState = "Failed"
	cfg, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, cfg.Devices[0].InitialState)

	raw.Devices[0].InitialState = "Sleeping"
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, `device dev_a has unknown initial_state: "Sleeping"`)
}

func TestValidate_Gates(t *testing.T) {
	raw := validRaw()
	raw.Gates = map[string]bool{"qa_approved": true, "maintenance": false}
	raw.Flows[0].RequiredGates = []string{"qa_approved"}
	raw.Devices[0].RequiredGates = []string{"maintenance"}
	cfg, err := Validate(raw)
	require.NoError(t, err)
	assert.True(t, cfg.Gates["qa_approved"])
	assert.False(t, cfg.Gates["maintenance"])

	raw.Flows[0].RequiredGates = []string{"nonexistent"}
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "flow f1 requires undefined gate: nonexistent")

	raw.Flows[0].RequiredGates = nil
	raw.Devices[0].RequiredGates = []string{"nonexistent"}
	_, err = Validate(raw)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "device dev_a requires undefined gate: nonexistent")
}

func TestValidate_OffsetModes(t *testing.T) {
	raw := validRaw()
	raw.Flows[0].OffsetMode = "custom"
	raw.Flows[0].StartOffset = 12.5
	cfg, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, OffsetCustom, cfg.Flows[0].OffsetMode)
	assert.Equal(t, 12.5, cfg.Flows[0].StartOffset)

	raw.Flows[0].OffsetMode = "staggered"
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, `flow f1 has unknown offset_mode: "staggered"`)

	raw.Flows[0].OffsetMode = "parallel"
	raw.Flows[0].StartOffset = -1
	_, err = Validate(raw)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "flow f1 has negative start_offset")
}

func TestValidate_ExecutionModes(t *testing.T) {
	raw := validRaw()
	raw.Simulation.ExecutionMode = "real-time"
	raw.Simulation.SpeedMultiplier = f64(10)
	cfg, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, ModeRealTime, cfg.Simulation.ExecutionMode)
	assert.Equal(t, 10.0, cfg.Simulation.SpeedMultiplier)

	raw.Simulation.SpeedMultiplier = f64(-1)
	_, err = Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "speed_multiplier must be >= 0")
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Issues: []string{"a", "b"}}
	assert.Equal(t, "configuration validation failed: a; b", err.Error())
}
