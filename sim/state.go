package sim

// DeviceState is one of the four lifecycle states of a device.
type DeviceState string

const (
	StateIdle       DeviceState = "Idle"
	StateProcessing DeviceState = "Processing"
	StateBlocked    DeviceState = "Blocked"
	StateFailed     DeviceState = "Failed"
)

// TransitionEvent names a state-machine input.
type TransitionEvent string

const (
	EventStartProcessing      TransitionEvent = "START_PROCESSING"
	EventCompleteProcessing   TransitionEvent = "COMPLETE_PROCESSING"
	EventBackpressureDetected TransitionEvent = "BACKPRESSURE_DETECTED"
	EventBackpressureCleared  TransitionEvent = "BACKPRESSURE_CLEARED"
	EventFailureDetected      TransitionEvent = "FAILURE_DETECTED"
	EventRecoveryComplete     TransitionEvent = "RECOVERY_COMPLETE"
)

// transitions is the complete state machine. Any (state, event) pair absent
// here is an invalid transition.
//
//	| From       | Event                 | To         |
//	|------------|-----------------------|------------|
//	| Idle       | START_PROCESSING      | Processing |
//	| Idle       | FAILURE_DETECTED      | Failed     |
//	| Processing | COMPLETE_PROCESSING   | Idle       |
//	| Processing | FAILURE_DETECTED      | Failed     |
//	| Processing | BACKPRESSURE_DETECTED | Blocked    |
//	| Blocked    | BACKPRESSURE_CLEARED  | Idle       |
//	| Blocked    | FAILURE_DETECTED      | Failed     |
//	| Failed     | RECOVERY_COMPLETE     | Idle       |
var transitions = map[DeviceState]map[TransitionEvent]DeviceState{
	StateIdle: {
		EventStartProcessing: StateProcessing,
		EventFailureDetected: StateFailed,
	},
	StateProcessing: {
		EventCompleteProcessing:   StateIdle,
		EventFailureDetected:      StateFailed,
		EventBackpressureDetected: StateBlocked,
	},
	StateBlocked: {
		EventBackpressureCleared: StateIdle,
		EventFailureDetected:     StateFailed,
	},
	StateFailed: {
		EventRecoveryComplete: StateIdle,
	},
}

// Transition is one applied state change, appended to the ordered history
// log. Timestamps come from the scheduler's virtual clock via the accessor
// injected into the StateManager.
type Transition struct {
	DeviceID  string          `json:"device_id"`
	FromState DeviceState     `json:"from_state"`
	ToState   DeviceState     `json:"to_state"`
	Event     TransitionEvent `json:"event"`
	Timestamp float64         `json:"timestamp"`
}

// deviceCapacity tracks the in-flight flow ids on one device. peak is the
// high-water mark, used by tests to verify the capacity invariant.
type deviceCapacity struct {
	capacity int
	active   map[string]struct{}
	peak     int
}

// StateManager owns every device's state machine and its capacity
// accounting. The capacity sub-model is independent of the FSM but colocated
// here because both are keyed by device id and mutated by the same engine
// callbacks.
type StateManager struct {
	now       func() float64
	states    map[string]DeviceState
	history   []Transition
	capacity  map[string]*deviceCapacity
	onFailure func(deviceID string)
}

// NewStateManager creates a manager reading history timestamps from now.
func NewStateManager(now func() float64) *StateManager {
	return &StateManager{
		now:      now,
		states:   make(map[string]DeviceState),
		capacity: make(map[string]*deviceCapacity),
	}
}

// SetFailureHook registers fn to run whenever a device enters Failed. The
// engine uses this to schedule sampled recovery durations.
func (m *StateManager) SetFailureHook(fn func(deviceID string)) {
	m.onFailure = fn
}

// InitializeDevice registers a device with its starting state and capacity.
// Initialization does not produce a history entry.
func (m *StateManager) InitializeDevice(id string, initial DeviceState, capacity int) {
	m.states[id] = initial
	m.capacity[id] = &deviceCapacity{
		capacity: capacity,
		active:   make(map[string]struct{}),
	}
}

// State returns the device's current state, defaulting to Idle for devices
// never initialized.
func (m *StateManager) State(id string) DeviceState {
	if st, ok := m.states[id]; ok {
		return st
	}
	return StateIdle
}

// Transition applies event to the device's state machine, appends the change
// to the history log, and fires the failure hook if the device lands in
// Failed. An event outside the transition table leaves the device untouched
// and returns InvalidTransitionError.
func (m *StateManager) Transition(id string, event TransitionEvent) (DeviceState, error) {
	from := m.State(id)
	next, ok := transitions[from][event]
	if !ok {
		return from, &InvalidTransitionError{DeviceID: id, From: from, Event: event}
	}
	m.states[id] = next
	m.history = append(m.history, Transition{
		DeviceID:  id,
		FromState: from,
		ToState:   next,
		Event:     event,
		Timestamp: m.now(),
	})
	if next == StateFailed && m.onFailure != nil {
		m.onFailure(id)
	}
	return next, nil
}

// History returns a copy of the full transition log in application order.
func (m *StateManager) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// DeviceHistory returns the transition log filtered to one device.
func (m *StateManager) DeviceHistory(id string) []Transition {
	var out []Transition
	for _, t := range m.history {
		if t.DeviceID == id {
			out = append(out, t)
		}
	}
	return out
}

// HasCapacity reports whether the device can host another flow. Devices
// without capacity tracking are treated as unlimited.
func (m *StateManager) HasCapacity(id string) bool {
	dc, ok := m.capacity[id]
	if !ok {
		return true
	}
	return len(dc.active) < dc.capacity
}

// AcquireCapacity claims a slot on the device for flowID, returning false
// when the device is full. Claiming a slot already held by flowID is a
// no-op that still reports success.
func (m *StateManager) AcquireCapacity(id, flowID string) bool {
	dc, ok := m.capacity[id]
	if !ok {
		return true
	}
	if _, held := dc.active[flowID]; held {
		return true
	}
	if len(dc.active) >= dc.capacity {
		return false
	}
	dc.active[flowID] = struct{}{}
	if len(dc.active) > dc.peak {
		dc.peak = len(dc.active)
	}
	return true
}

// ReleaseCapacity frees flowID's slot on the device. Releasing an absent id
// is a no-op, not an error: a flow releases on both its source and
// destination device.
func (m *StateManager) ReleaseCapacity(id, flowID string) {
	if dc, ok := m.capacity[id]; ok {
		delete(dc.active, flowID)
	}
}

// ActiveFlowCount returns the number of flows currently holding capacity on
// the device.
func (m *StateManager) ActiveFlowCount(id string) int {
	if dc, ok := m.capacity[id]; ok {
		return len(dc.active)
	}
	return 0
}

// PeakActiveFlows returns the high-water mark of concurrent flows observed
// on the device over the run.
func (m *StateManager) PeakActiveFlows(id string) int {
	if dc, ok := m.capacity[id]; ok {
		return dc.peak
	}
	return 0
}
