// Package sim provides a domain-agnostic discrete-event simulation kernel:
// devices with finite concurrent capacity, flows of work moving between them
// with sampled durations and finish-to-start dependencies, and global boolean
// gates that can hold work back.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - scheduler.go: the future event list and the virtual clock
//   - state.go: the per-device state machine and capacity accounting
//   - engine.go: the orchestrator that decides when flows may execute
//
// # Architecture
//
// A validated Config (config.go, validate.go) seeds an Engine. The Engine
// schedules flow-start events on the EventScheduler; processing an event
// dispatches its Action through a single switch in the Engine, which mutates
// the StateManager and FlowController and schedules retries, completions and
// recoveries. The DeadlockDetector is consulted after every processed event
// while devices sit blocked. The run ends with a Result snapshot for the
// reporting layer.
//
// The kernel is logically single-threaded: every event callback runs to
// completion before the clock advances again. Capacity is an accounting
// abstraction, not OS-level concurrency. Only Cancel, Pause, Resume and
// Status are safe to call from other goroutines while Run executes.
package sim
