package sim

// ActionKind tags the work an event carries. Events hold plain data instead
// of closures so the pending event stream stays inspectable in tests and
// diagnostics.
type ActionKind string

const (
	// AttemptFlow tries to start a flow: gates, then dependencies, then
	// capacity on both endpoint devices.
	AttemptFlow ActionKind = "attempt_flow"
	// CompleteFlow finishes a running flow and triggers its dependents.
	CompleteFlow ActionKind = "complete_flow"
	// RecoverDevice returns a Failed device to Idle.
	RecoverDevice ActionKind = "recover_device"
)

// Action is the payload dispatched by the engine when its event fires.
// Exactly one of FlowID or DeviceID is set, depending on Kind.
type Action struct {
	Kind     ActionKind
	FlowID   string
	DeviceID string
}

// Event is one scheduled simulation action. Ordering is by Timestamp with a
// strict FIFO tie-break on insertion sequence, which makes replays of
// identical input sequences deterministic.
type Event struct {
	Timestamp float64
	ID        string
	Action    Action

	seq uint64
}
