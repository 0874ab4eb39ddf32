package sim

import "fmt"

// Validate checks a raw scenario against the configuration schema and
// returns the fully-typed Config, or a ValidationError carrying every
// violation found; bad input is reported in full, never fail-fast on the
// first issue. Validate is pure: raw is not mutated, and no partially
// constructed Config is ever returned alongside an error.
//
// Dependency cycles are deliberately not checked here; that is the flow
// controller's job at engine construction, over the validated flow list.
func Validate(raw *RawConfig) (*Config, error) {
	var issues []string
	fail := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if raw == nil {
		return nil, &ValidationError{Issues: []string{"missing configuration document"}}
	}
	if raw.Simulation == nil {
		fail("missing required field: 'simulation'")
	}
	if raw.Devices == nil {
		fail("missing required field: 'devices'")
	}
	if raw.Flows == nil {
		fail("missing required field: 'flows'")
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	// Gates are optional and default to an empty map.
	gates := make(map[string]bool, len(raw.Gates))
	for name, open := range raw.Gates {
		gates[name] = open
	}

	cfg := &Config{
		Gates: gates,
		Output: OutputOptions{
			IncludeHistory: raw.OutputOptions.IncludeHistory,
			IncludeEvents:  raw.OutputOptions.IncludeEvents,
		},
	}

	// Simulation section.
	if raw.Simulation.Duration != nil {
		cfg.Simulation.Duration = *raw.Simulation.Duration
	}
	if cfg.Simulation.Duration <= 0 {
		fail("duration must be > 0")
	}
	if raw.Simulation.RandomSeed != nil {
		if *raw.Simulation.RandomSeed < 0 {
			fail("random seed must be >= 0")
		} else {
			cfg.Simulation.RandomSeed = *raw.Simulation.RandomSeed
		}
	}
	switch raw.Simulation.ExecutionMode {
	case "", string(ModeAccelerated):
		cfg.Simulation.ExecutionMode = ModeAccelerated
	case string(ModeRealTime):
		cfg.Simulation.ExecutionMode = ModeRealTime
	default:
		fail("unknown execution_mode: %q", raw.Simulation.ExecutionMode)
	}
	if raw.Simulation.SpeedMultiplier != nil {
		if *raw.Simulation.SpeedMultiplier < 0 {
			fail("speed_multiplier must be >= 0")
		} else {
			cfg.Simulation.SpeedMultiplier = *raw.Simulation.SpeedMultiplier
		}
	}

	// Devices.
	deviceIDs := make(map[string]struct{}, len(raw.Devices))
	for _, d := range raw.Devices {
		if d.ID == "" {
			fail("device with empty id")
			continue
		}
		if _, dup := deviceIDs[d.ID]; dup {
			fail("duplicate device id: %s", d.ID)
		}
		deviceIDs[d.ID] = struct{}{}

		capacity := 1
		if d.Capacity != nil {
			capacity = *d.Capacity
		}
		if capacity < 1 {
			fail("device %s has invalid capacity: capacity must be >= 1", d.ID)
		}

		initial := StateIdle
		if d.InitialState != "" {
			switch DeviceState(d.InitialState) {
			case StateIdle, StateProcessing, StateBlocked, StateFailed:
				initial = DeviceState(d.InitialState)
			default:
				fail("device %s has unknown initial_state: %q", d.ID, d.InitialState)
			}
		}

		var recovery *TimeRange
		if d.RecoveryTimeRange != nil {
			if tr, ok := checkRange(d.RecoveryTimeRange, fmt.Sprintf("device %s recovery range", d.ID), fail); ok {
				recovery = &tr
			}
		}

		for _, g := range d.RequiredGates {
			if _, known := gates[g]; !known {
				fail("device %s requires undefined gate: %s", d.ID, g)
			}
		}

		cfg.Devices = append(cfg.Devices, Device{
			ID:                d.ID,
			Type:              d.Type,
			Capacity:          capacity,
			InitialState:      initial,
			RecoveryTimeRange: recovery,
			RequiredGates:     d.RequiredGates,
			Metadata:          d.Metadata,
		})
	}

	// First pass over flows to collect ids, so dependency references can be
	// checked regardless of declaration order.
	flowIDs := make(map[string]struct{}, len(raw.Flows))
	for _, f := range raw.Flows {
		if f.FlowID == "" {
			fail("flow with empty flow_id")
			continue
		}
		if _, dup := flowIDs[f.FlowID]; dup {
			fail("duplicate flow id: %s", f.FlowID)
		}
		flowIDs[f.FlowID] = struct{}{}
	}

	for _, f := range raw.Flows {
		if f.FlowID == "" {
			continue
		}
		if _, ok := deviceIDs[f.FromDevice]; !ok {
			fail("flow %s references unknown device: %s", f.FlowID, f.FromDevice)
		}
		if _, ok := deviceIDs[f.ToDevice]; !ok {
			fail("flow %s references unknown device: %s", f.FlowID, f.ToDevice)
		}

		var process TimeRange
		if f.ProcessTimeRange == nil {
			fail("flow %s missing process_time_range", f.FlowID)
		} else if tr, ok := checkRange(f.ProcessTimeRange, fmt.Sprintf("flow %s time range", f.FlowID), fail); ok {
			process = tr
		}

		mode := OffsetParallel
		switch OffsetMode(f.OffsetMode) {
		case "", OffsetParallel:
		case OffsetSequence:
			mode = OffsetSequence
		case OffsetCustom:
			mode = OffsetCustom
		default:
			fail("flow %s has unknown offset_mode: %q", f.FlowID, f.OffsetMode)
		}
		if f.StartOffset < 0 {
			fail("flow %s has negative start_offset", f.FlowID)
		}

		for _, dep := range f.Dependencies {
			if _, ok := flowIDs[dep]; !ok {
				fail("flow %s references unknown flow: %s", f.FlowID, dep)
			}
		}
		for _, g := range f.RequiredGates {
			if _, known := gates[g]; !known {
				fail("flow %s requires undefined gate: %s", f.FlowID, g)
			}
		}

		cfg.Flows = append(cfg.Flows, Flow{
			ID:               f.FlowID,
			FromDevice:       f.FromDevice,
			ToDevice:         f.ToDevice,
			ProcessTimeRange: process,
			Priority:         f.Priority,
			Dependencies:     f.Dependencies,
			RequiredGates:    f.RequiredGates,
			OffsetMode:       mode,
			StartOffset:      f.StartOffset,
			Metadata:         f.Metadata,
		})
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// checkRange validates a raw [min, max] pair. Min == max is accepted: it
// denotes a fixed duration.
func checkRange(pair []float64, what string, fail func(string, ...any)) (TimeRange, bool) {
	if len(pair) != 2 {
		fail("%s must be [min, max]", what)
		return TimeRange{}, false
	}
	min, max := pair[0], pair[1]
	ok := true
	if min < 0 {
		fail("%s has negative min time", what)
		ok = false
	}
	if max < min {
		fail("%s must have min <= max", what)
		ok = false
	}
	return TimeRange{Min: min, Max: max}, ok
}
