package sim

import (
	"fmt"
	"strings"
)

// PastTimestampError reports an attempt to schedule an event at a timestamp
// earlier than the scheduler's current time.
type PastTimestampError struct {
	Current   float64
	Requested float64
}

func (e *PastTimestampError) Error() string {
	return fmt.Sprintf("cannot schedule event in the past (current=%g, requested=%g)",
		e.Current, e.Requested)
}

// EmptyQueueError reports ProcessNext being called on a drained future
// event list.
type EmptyQueueError struct{}

func (e *EmptyQueueError) Error() string { return "no events to process" }

// InvalidTransitionError reports a state-machine event submitted outside the
// transition table. The orchestrator must never submit an illegal transition,
// so seeing this error means a kernel bug, not bad user input.
type InvalidTransitionError struct {
	DeviceID string
	From     DeviceState
	Event    TransitionEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %s for %s", e.Event, e.From, e.DeviceID)
}

// UnknownDeviceError reports a flow referencing a device id that does not
// exist in the device set.
type UnknownDeviceError struct {
	FlowID   string
	DeviceID string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("flow %s references unknown device: %s", e.FlowID, e.DeviceID)
}

// UnknownFlowError reports a dependency on a flow id that does not exist in
// the flow set.
type UnknownFlowError struct {
	FlowID     string
	Dependency string
}

func (e *UnknownFlowError) Error() string {
	return fmt.Sprintf("flow %s references unknown flow dependency: %s", e.FlowID, e.Dependency)
}

// CircularDependencyError reports a cycle in the flow dependency graph,
// naming one flow on the cycle.
type CircularDependencyError struct {
	FlowID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected involving %s", e.FlowID)
}

// ValidationError aggregates every configuration violation found during
// validation, rather than failing fast on the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "configuration validation failed: " + strings.Join(e.Issues, "; ")
}
