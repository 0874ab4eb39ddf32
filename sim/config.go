package sim

// ExecutionMode selects how the run loop paces event processing.
type ExecutionMode string

const (
	// ModeAccelerated processes events back-to-back, optionally throttled by
	// a speed multiplier.
	ModeAccelerated ExecutionMode = "accelerated"
	// ModeRealTime maps one simulated second to one wall-clock second.
	ModeRealTime ExecutionMode = "real-time"
)

// OffsetMode controls when a flow's first start attempt is scheduled.
type OffsetMode string

const (
	// OffsetParallel starts dependency-free flows at t=0; dependent flows
	// are triggered by dependency completion.
	OffsetParallel OffsetMode = "parallel"
	// OffsetSequence behaves like parallel under finish-to-start semantics.
	OffsetSequence OffsetMode = "sequence"
	// OffsetCustom starts the flow at t=start_offset; dependencies still
	// gate actual execution at fire time.
	OffsetCustom OffsetMode = "custom"
)

// TimeRange is a sampling window in seconds. Min == Max denotes a fixed
// duration.
type TimeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RawConfig is the loosely-typed scenario document as supplied by callers
// (YAML file or API payload). Optional scalars are pointers so absent and
// zero values stay distinguishable during validation. Validate turns this
// into a fully-typed Config.
type RawConfig struct {
	Simulation    *RawSimulation   `yaml:"simulation" json:"simulation"`
	Devices       []RawDevice      `yaml:"devices" json:"devices"`
	Flows         []RawFlow        `yaml:"flows" json:"flows"`
	Gates         map[string]bool  `yaml:"gates" json:"gates"`
	OutputOptions RawOutputOptions `yaml:"output_options" json:"output_options"`
}

// RawSimulation holds the top-level run parameters before validation.
type RawSimulation struct {
	Duration        *float64 `yaml:"duration" json:"duration"`
	RandomSeed      *int64   `yaml:"random_seed" json:"random_seed"`
	ExecutionMode   string   `yaml:"execution_mode" json:"execution_mode"`
	SpeedMultiplier *float64 `yaml:"speed_multiplier" json:"speed_multiplier"`
}

// RawDevice is a device definition before validation.
type RawDevice struct {
	ID                string         `yaml:"id" json:"id"`
	Type              string         `yaml:"type" json:"type"`
	Capacity          *int           `yaml:"capacity" json:"capacity"`
	InitialState      string         `yaml:"initial_state" json:"initial_state"`
	RecoveryTimeRange []float64      `yaml:"recovery_time_range" json:"recovery_time_range"`
	RequiredGates     []string       `yaml:"required_gates" json:"required_gates"`
	Metadata          map[string]any `yaml:"metadata" json:"metadata"`
}

// RawFlow is a flow definition before validation.
type RawFlow struct {
	FlowID           string         `yaml:"flow_id" json:"flow_id"`
	FromDevice       string         `yaml:"from_device" json:"from_device"`
	ToDevice         string         `yaml:"to_device" json:"to_device"`
	ProcessTimeRange []float64      `yaml:"process_time_range" json:"process_time_range"`
	Priority         int            `yaml:"priority" json:"priority"`
	Dependencies     []string       `yaml:"dependencies" json:"dependencies"`
	RequiredGates    []string       `yaml:"required_gates" json:"required_gates"`
	OffsetMode       string         `yaml:"offset_mode" json:"offset_mode"`
	StartOffset      float64        `yaml:"start_offset" json:"start_offset"`
	Metadata         map[string]any `yaml:"metadata" json:"metadata"`
}

// RawOutputOptions selects optional result sections.
type RawOutputOptions struct {
	IncludeHistory bool `yaml:"include_history" json:"include_history"`
	IncludeEvents  bool `yaml:"include_events" json:"include_events"`
}

// Config is the validated, fully-typed scenario. It is immutable for the
// lifetime of an Engine; all run-time state lives in the kernel components.
type Config struct {
	Simulation SimulationSettings `json:"simulation"`
	Devices    []Device           `json:"devices"`
	Flows      []Flow             `json:"flows"`
	Gates      map[string]bool    `json:"gates"`
	Output     OutputOptions      `json:"output_options"`
}

// SimulationSettings are the validated run parameters.
type SimulationSettings struct {
	Duration      float64       `json:"duration"`
	RandomSeed    int64         `json:"random_seed"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	// SpeedMultiplier throttles accelerated mode: N simulated seconds take
	// 1/N real seconds. Zero means maximum speed (no waiting).
	SpeedMultiplier float64 `json:"speed_multiplier"`
}

// Device is a validated resource with finite concurrent capacity.
type Device struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Capacity     int         `json:"capacity"`
	InitialState DeviceState `json:"initial_state"`
	// RecoveryTimeRange is the sampled auto-recovery window; nil means the
	// device never recovers from Failed.
	RecoveryTimeRange *TimeRange     `json:"recovery_time_range,omitempty"`
	RequiredGates     []string       `json:"required_gates,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Flow is a validated unit of work moving between two devices.
type Flow struct {
	ID               string     `json:"flow_id"`
	FromDevice       string     `json:"from_device"`
	ToDevice         string     `json:"to_device"`
	ProcessTimeRange TimeRange  `json:"process_time_range"`
	Priority         int        `json:"priority"`
	Dependencies     []string   `json:"dependencies,omitempty"`
	RequiredGates    []string   `json:"required_gates,omitempty"`
	OffsetMode       OffsetMode `json:"offset_mode"`
	// StartOffset is only consulted in OffsetCustom mode.
	StartOffset float64        `json:"start_offset,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// OutputOptions selects optional result sections.
type OutputOptions struct {
	IncludeHistory bool `json:"include_history"`
	IncludeEvents  bool `json:"include_events"`
}
