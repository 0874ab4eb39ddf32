package sim

import (
	"time"

	"github.com/google/uuid"
)

// Result is the full outcome of one simulation run, shaped for JSON export.
// StateHistory and EventTimeline are populated only when the corresponding
// output options are enabled.
type Result struct {
	Metadata      ResultMetadata         `json:"metadata"`
	Summary       ResultSummary          `json:"summary"`
	Status        EngineState            `json:"status"`
	DeviceStates  map[string]DeviceFinal `json:"device_states"`
	StateHistory  []Transition           `json:"state_history,omitempty"`
	EventTimeline []TimelineEntry        `json:"event_timeline,omitempty"`
	FlowsExecuted map[string]int         `json:"flows_executed"`
	Error         *ResultError           `json:"error,omitempty"`
}

// ResultMetadata identifies the run and its reproducibility inputs.
type ResultMetadata struct {
	SimulationID  string  `json:"simulation_id"`
	Duration      float64 `json:"duration"`
	RandomSeed    int64   `json:"random_seed"`
	CompletedAt   string  `json:"completed_at"`
	EngineVersion string  `json:"engine_version"`
}

// ResultSummary carries the aggregate counters for the run.
type ResultSummary struct {
	TotalEvents           int     `json:"total_events"`
	TotalFlowsCompleted   int     `json:"total_flows_completed"`
	DevicesCount          int     `json:"devices_count"`
	SimulationTimeSeconds float64 `json:"simulation_time_seconds"`
	ExecutionTimeSeconds  float64 `json:"execution_time_seconds"`
}

// DeviceFinal is the end-of-run snapshot for one device.
type DeviceFinal struct {
	FinalState   DeviceState `json:"final_state"`
	StateChanges int         `json:"state_changes"`
}

// TimelineEntry records one processed event for the optional timeline.
type TimelineEntry struct {
	ID        string     `json:"id"`
	Action    ActionKind `json:"action"`
	Timestamp float64    `json:"timestamp"`
}

// ResultError describes why a run terminated abnormally.
type ResultError struct {
	Type     string        `json:"type"`
	Message  string        `json:"message"`
	Deadlock *DeadlockInfo `json:"deadlock,omitempty"`
}

func (e *Engine) buildResult(wall time.Duration) *Result {
	res := &Result{
		Metadata: ResultMetadata{
			SimulationID:  "sim_" + uuid.NewString(),
			Duration:      e.cfg.Simulation.Duration,
			RandomSeed:    e.cfg.Simulation.RandomSeed,
			CompletedAt:   time.Now().UTC().Format(time.RFC3339),
			EngineVersion: EngineVersion,
		},
		Summary: ResultSummary{
			TotalEvents:           e.eventCount,
			TotalFlowsCompleted:   e.flowsCompleted,
			DevicesCount:          len(e.cfg.Devices),
			SimulationTimeSeconds: e.sched.Now(),
			ExecutionTimeSeconds:  wall.Seconds(),
		},
		Status:        e.State(),
		DeviceStates:  make(map[string]DeviceFinal, len(e.cfg.Devices)),
		FlowsExecuted: make(map[string]int, len(e.cfg.Flows)),
	}

	for _, d := range e.cfg.Devices {
		res.DeviceStates[d.ID] = DeviceFinal{
			FinalState:   e.devices.State(d.ID),
			StateChanges: len(e.devices.DeviceHistory(d.ID)),
		}
	}
	for _, f := range e.cfg.Flows {
		res.FlowsExecuted[f.ID] = e.flowExecutions[f.ID]
	}

	if e.cfg.Output.IncludeHistory {
		res.StateHistory = e.devices.History()
	}
	if e.cfg.Output.IncludeEvents {
		res.EventTimeline = e.timeline
	}
	if e.deadlock != nil {
		res.Error = &ResultError{
			Type:     "deadlock",
			Message:  e.deadlock.Message,
			Deadlock: e.deadlock,
		}
	}
	return res
}
