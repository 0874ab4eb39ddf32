package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// FlowRetryDelay is the simulated delay before re-attempting a flow
	// denied on dependencies or capacity.
	FlowRetryDelay = 1.0
	// GateRetryDelay is the simulated delay before rechecking closed gates.
	GateRetryDelay = 1.0

	// MaxRealTimeSleep caps the total paced wait for a single event, so a
	// malformed config cannot block the run loop indefinitely.
	MaxRealTimeSleep = 3600 * time.Second
	// pollInterval slices paced waits so cancel and pause stay responsive.
	pollInterval = 10 * time.Millisecond

	// EngineVersion is reported in result metadata.
	EngineVersion = "0.1.0"
)

// EngineState is the lifecycle of a single simulation run.
type EngineState string

const (
	EngineInitializing     EngineState = "initializing"
	EngineRunning          EngineState = "running"
	EngineCompleted        EngineState = "completed"
	EngineCancelled        EngineState = "cancelled"
	EngineDeadlockDetected EngineState = "deadlock_detected"
)

// Status is a point-in-time snapshot of a run, safe to poll from another
// goroutine while Run executes.
type Status struct {
	State         EngineState   `json:"state"`
	CurrentTime   float64       `json:"current_time"`
	EventCount    int           `json:"event_count"`
	IsRunning     bool          `json:"is_running"`
	IsPaused      bool          `json:"is_paused"`
	IsCancelled   bool          `json:"is_cancelled"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
}

// Engine composes the scheduler, state manager, flow controller, deadlock
// detector and RNG into one simulation run. An Engine is single-use: build
// it, call Run once, read the Result. Everything inside the run loop is
// single-threaded; Cancel, Pause, Resume and Status are the only methods
// safe to call from other goroutines while Run executes.
type Engine struct {
	cfg      *Config
	rng      *SeededRNG
	sched    *EventScheduler
	devices  *StateManager
	flows    *FlowController
	detector *DeadlockDetector
	log      *logrus.Entry

	devicesByID map[string]Device
	flowsByID   map[string]Flow

	eventCount     int
	flowExecutions map[string]int
	flowsCompleted int
	timeline       []TimelineEntry
	deadlock       *DeadlockInfo

	mu          sync.Mutex
	state       EngineState
	cancelled   bool
	paused      bool
	pausedAt    time.Time
	realStart   time.Time
	statusTime  float64
	statusCount int
}

// NewEngine validates the raw scenario and builds a ready-to-run engine.
// Validation failures come back as a ValidationError; flow-graph defects as
// UnknownDeviceError, UnknownFlowError or CircularDependencyError.
func NewEngine(raw *RawConfig) (*Engine, error) {
	cfg, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	return NewEngineFromConfig(cfg)
}

// NewEngineFromConfig builds an engine from an already-validated Config.
func NewEngineFromConfig(cfg *Config) (*Engine, error) {
	e := &Engine{
		cfg:            cfg,
		rng:            NewSeededRNG(cfg.Simulation.RandomSeed),
		detector:       NewDeadlockDetector(DefaultDeadlockTimeout),
		log:            logrus.WithField("component", "engine"),
		devicesByID:    make(map[string]Device, len(cfg.Devices)),
		flowsByID:      make(map[string]Flow, len(cfg.Flows)),
		flowExecutions: make(map[string]int),
		state:          EngineInitializing,
	}
	e.sched = NewEventScheduler(e.apply)
	e.devices = NewStateManager(e.sched.Now)

	deviceIDs := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		deviceIDs = append(deviceIDs, d.ID)
		e.devicesByID[d.ID] = d
	}
	for _, f := range cfg.Flows {
		e.flowsByID[f.ID] = f
	}

	fc, err := NewFlowController(cfg.Flows, deviceIDs)
	if err != nil {
		return nil, err
	}
	e.flows = fc

	for _, d := range cfg.Devices {
		e.devices.InitializeDevice(d.ID, d.InitialState, d.Capacity)
	}
	e.devices.SetFailureHook(e.scheduleRecovery)
	return e, nil
}

// Run executes the simulation to termination and returns the result
// snapshot. Termination: drained event list, next event beyond the
// configured duration, cancellation, or a detected deadlock. Cancellation
// and deadlock still yield a structurally complete (partial) result.
func (e *Engine) Run() *Result {
	wallStart := time.Now()
	e.mu.Lock()
	e.state = EngineRunning
	e.realStart = wallStart
	e.mu.Unlock()

	e.scheduleInitialFlows()
	// Devices configured to start Failed get recovery scheduled up front;
	// InitializeDevice does not route through the failure hook.
	for _, d := range e.cfg.Devices {
		if d.InitialState == StateFailed {
			e.scheduleRecovery(d.ID)
		}
	}

	duration := e.cfg.Simulation.Duration
	for e.sched.HasEvents() && !e.isCancelled() {
		next, ok := e.sched.PeekNext()
		if !ok || next.Timestamp > duration {
			break
		}
		if !e.waitForPacing(next.Timestamp) {
			break
		}
		if err := e.sched.ProcessNext(); err != nil {
			break
		}
		e.eventCount++
		e.mu.Lock()
		e.statusTime = e.sched.Now()
		e.statusCount = e.eventCount
		e.mu.Unlock()

		if info := e.detector.Check(e.sched.Now()); info != nil {
			e.deadlock = info
			e.setState(EngineDeadlockDetected)
			e.log.Errorf("deadlock detected at t=%.2f: %s", info.DetectionTime, info.Message)
			break
		}
	}

	switch {
	case e.deadlock != nil:
		// State already set.
	case e.isCancelled():
		e.setState(EngineCancelled)
	default:
		e.setState(EngineCompleted)
	}
	return e.buildResult(time.Since(wallStart))
}

// apply is the single dispatch point for scheduled actions. A failing flow
// is logged and abandoned; one bad flow must not abort the rest of the run.
func (e *Engine) apply(ev Event) {
	if e.cfg.Output.IncludeEvents {
		e.timeline = append(e.timeline, TimelineEntry{
			ID:        ev.ID,
			Action:    ev.Action.Kind,
			Timestamp: ev.Timestamp,
		})
	}

	var err error
	switch ev.Action.Kind {
	case AttemptFlow:
		err = e.attemptFlow(ev.Action.FlowID)
	case CompleteFlow:
		err = e.completeFlow(ev.Action.FlowID)
	case RecoverDevice:
		err = e.recoverDevice(ev.Action.DeviceID)
	default:
		err = fmt.Errorf("unknown action kind %q", ev.Action.Kind)
	}
	if err != nil {
		e.log.WithError(err).Errorf("event %s failed; abandoning", ev.ID)
	}
}

// scheduleInitialFlows schedules each flow's first start attempt according
// to its offset mode. Dependent flows in parallel and sequence modes are not
// pre-scheduled; their dependencies' completions trigger them.
func (e *Engine) scheduleInitialFlows() {
	for _, f := range e.cfg.Flows {
		var start float64
		switch f.OffsetMode {
		case OffsetCustom:
			start = f.StartOffset
		default:
			if len(f.Dependencies) > 0 {
				continue
			}
		}
		id := fmt.Sprintf("flow_start_%s_0", f.ID)
		if err := e.sched.Schedule(start, id, Action{Kind: AttemptFlow, FlowID: f.ID}); err != nil {
			e.log.WithError(err).Errorf("could not schedule initial start for flow %s", f.ID)
		}
	}
}

// attemptFlow runs the eligibility chain for one flow: gates, dependencies,
// destination backpressure, then capacity on both endpoints. Each denied
// check reschedules the attempt after a fixed retry delay and consumes no
// capacity.
func (e *Engine) attemptFlow(flowID string) error {
	if e.flows.IsCompleted(flowID) {
		e.log.Debugf("flow %s already completed; skipping", flowID)
		return nil
	}
	if e.flows.IsStarted(flowID) {
		// A retry and a dependency trigger can both land while the flow is
		// in flight; the flow must only execute once.
		e.log.Debugf("flow %s already in flight; skipping duplicate attempt", flowID)
		return nil
	}
	flow, ok := e.flowsByID[flowID]
	if !ok {
		return fmt.Errorf("flow %s not found in configuration", flowID)
	}
	now := e.sched.Now()

	if gate, open := e.gatesOpen(flow); !open {
		e.log.Debugf("flow %s held by closed gate %s", flowID, gate)
		return e.retry(flowID, "gate", GateRetryDelay)
	}

	// Finish-to-start: every dependency must have completed.
	for _, dep := range flow.Dependencies {
		if !e.flows.IsCompleted(dep) {
			return e.retry(flowID, "dep", FlowRetryDelay)
		}
	}

	from, to := flow.FromDevice, flow.ToDevice

	// A failed endpoint cannot host work until it recovers.
	if e.devices.State(from) == StateFailed || e.devices.State(to) == StateFailed {
		e.log.Debugf("flow %s held: endpoint device failed", flowID)
		return e.retry(flowID, "failed_device", FlowRetryDelay)
	}

	// Backpressure: the destination lacks capacity, so the flow cannot move.
	if !e.devices.HasCapacity(to) {
		if e.devices.State(from) == StateProcessing {
			if _, err := e.devices.Transition(from, EventBackpressureDetected); err != nil {
				return err
			}
		}
		e.detector.RegisterBlocked(from, now, to)
		e.log.Debugf("flow %s blocked: downstream %s at capacity", flowID, to)
		return e.retry(flowID, "backpressure", FlowRetryDelay)
	}

	if !e.devices.AcquireCapacity(from, flowID) {
		e.log.Debugf("flow %s blocked: source %s at capacity", flowID, from)
		return e.retry(flowID, "capacity", FlowRetryDelay)
	}
	if !e.devices.AcquireCapacity(to, flowID) {
		// Never hold a reservation on one end after failing the other.
		e.devices.ReleaseCapacity(from, flowID)
		e.detector.RegisterBlocked(from, now, to)
		e.log.Debugf("flow %s blocked: destination %s at capacity", flowID, to)
		return e.retry(flowID, "dest_capacity", FlowRetryDelay)
	}

	if e.devices.State(from) == StateBlocked {
		if _, err := e.devices.Transition(from, EventBackpressureCleared); err != nil {
			return err
		}
	}
	e.detector.RegisterUnblocked(from)

	if e.devices.State(from) == StateIdle {
		if _, err := e.devices.Transition(from, EventStartProcessing); err != nil {
			return err
		}
	}

	e.flows.MarkStarted(flowID)
	e.flowExecutions[flowID]++

	duration := e.rng.Uniform(flow.ProcessTimeRange.Min, flow.ProcessTimeRange.Max)
	id := fmt.Sprintf("flow_complete_%s_%d", flowID, e.eventCount)
	return e.sched.Schedule(now+duration, id, Action{Kind: CompleteFlow, FlowID: flowID})
}

// completeFlow finishes a flow: the source device returns to Idle (a device
// that failed mid-flight is left alone), capacity is released on both ends,
// and any dependent flow whose whole dependency set is now satisfied is
// scheduled to attempt execution at the current clock time.
func (e *Engine) completeFlow(flowID string) error {
	flow, ok := e.flowsByID[flowID]
	if !ok {
		return fmt.Errorf("flow %s not found in configuration during completion", flowID)
	}
	from, to := flow.FromDevice, flow.ToDevice

	if e.devices.State(from) == StateProcessing {
		if _, err := e.devices.Transition(from, EventCompleteProcessing); err != nil {
			return err
		}
	}
	e.devices.ReleaseCapacity(from, flowID)
	e.devices.ReleaseCapacity(to, flowID)

	e.flows.MarkCompleted(flowID)
	e.flowsCompleted++
	e.log.Debugf("flow %s completed at t=%.2f", flowID, e.sched.Now())

	e.triggerDependents(flowID)
	return nil
}

// triggerDependents schedules, at the current clock time, every flow that
// lists completedID as a dependency and whose full dependency set is now
// satisfied. Iteration follows config order for deterministic replays.
func (e *Engine) triggerDependents(completedID string) {
	now := e.sched.Now()
	for _, f := range e.cfg.Flows {
		if e.flows.IsCompleted(f.ID) || e.flows.IsStarted(f.ID) {
			continue
		}
		depends := false
		for _, dep := range f.Dependencies {
			if dep == completedID {
				depends = true
				break
			}
		}
		if !depends {
			continue
		}
		ready := true
		for _, dep := range f.Dependencies {
			if !e.flows.IsCompleted(dep) {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		id := fmt.Sprintf("flow_dep_%s_%g", f.ID, now)
		if err := e.sched.Schedule(now, id, Action{Kind: AttemptFlow, FlowID: f.ID}); err != nil {
			e.log.WithError(err).Errorf("could not schedule dependent flow %s", f.ID)
		}
	}
}

// scheduleRecovery is the failure hook: when a device enters Failed, sample
// its recovery window and schedule RECOVERY_COMPLETE. Devices without a
// recovery range stay Failed for the rest of the run.
func (e *Engine) scheduleRecovery(deviceID string) {
	dev, ok := e.devicesByID[deviceID]
	if !ok {
		e.log.Warnf("cannot schedule recovery: device %s not configured", deviceID)
		return
	}
	e.detector.RegisterUnblocked(deviceID)
	if dev.RecoveryTimeRange == nil {
		e.log.Infof("device %s has no recovery_time_range; will not auto-recover", deviceID)
		return
	}
	now := e.sched.Now()
	d := e.rng.Uniform(dev.RecoveryTimeRange.Min, dev.RecoveryTimeRange.Max)
	id := fmt.Sprintf("device_recovery_%s_%g", deviceID, now)
	if err := e.sched.Schedule(now+d, id, Action{Kind: RecoverDevice, DeviceID: deviceID}); err != nil {
		e.log.WithError(err).Errorf("could not schedule recovery for device %s", deviceID)
		return
	}
	e.log.Infof("device %s will recover in %.1fs at t=%.1f", deviceID, d, now+d)
}

// recoverDevice returns a Failed device to Idle. A device that already left
// Failed by other means is left alone.
func (e *Engine) recoverDevice(deviceID string) error {
	if e.devices.State(deviceID) != StateFailed {
		return nil
	}
	if _, err := e.devices.Transition(deviceID, EventRecoveryComplete); err != nil {
		return err
	}
	e.log.Infof("device %s recovered to Idle", deviceID)
	return nil
}

// retry reschedules the flow's attempt after the given simulated delay.
func (e *Engine) retry(flowID, reason string, delay float64) error {
	now := e.sched.Now()
	id := fmt.Sprintf("flow_%s_retry_%s_%g", reason, flowID, now)
	return e.sched.Schedule(now+delay, id, Action{Kind: AttemptFlow, FlowID: flowID})
}

// gatesOpen reports whether every gate required by the flow and by both of
// its endpoint devices is currently true, returning the first closed gate.
func (e *Engine) gatesOpen(flow Flow) (string, bool) {
	check := func(names []string) (string, bool) {
		for _, g := range names {
			if !e.cfg.Gates[g] {
				return g, false
			}
		}
		return "", true
	}
	if g, open := check(flow.RequiredGates); !open {
		return g, false
	}
	if from, ok := e.devicesByID[flow.FromDevice]; ok {
		if g, open := check(from.RequiredGates); !open {
			return g, false
		}
	}
	if to, ok := e.devicesByID[flow.ToDevice]; ok {
		if g, open := check(to.RequiredGates); !open {
			return g, false
		}
	}
	return "", true
}

// timeFactor maps simulated seconds to real seconds: 1 in real-time mode,
// 1/speed_multiplier when a multiplier is set, otherwise 0 (no waiting).
func (e *Engine) timeFactor() float64 {
	if e.cfg.Simulation.ExecutionMode == ModeRealTime {
		return 1
	}
	if m := e.cfg.Simulation.SpeedMultiplier; m > 0 {
		return 1 / m
	}
	return 0
}

// waitForPacing blocks until the wall clock reaches the paced time for the
// next event, honoring pause and the per-event wait cap. Returns false when
// cancelled while waiting.
func (e *Engine) waitForPacing(eventTime float64) bool {
	factor := e.timeFactor()
	var waited time.Duration
	for {
		if e.isCancelled() {
			return false
		}
		if e.isPaused() {
			time.Sleep(pollInterval)
			continue
		}
		if factor == 0 {
			return true
		}
		if waited >= MaxRealTimeSleep {
			e.log.Warnf("pacing wait exceeded cap %s; proceeding", MaxRealTimeSleep)
			return true
		}
		e.mu.Lock()
		target := e.realStart.Add(time.Duration(eventTime * factor * float64(time.Second)))
		e.mu.Unlock()
		remaining := time.Until(target)
		if remaining <= 0 {
			return true
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		time.Sleep(remaining)
		waited += remaining
	}
}

// Cancel requests cooperative termination. The run loop exits at the next
// event boundary (or mid-wait) and partial results are still assembled.
// Cancellation is not an error; it is a deliberate early stop.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
	e.log.Info("simulation cancellation requested")
}

// Pause suspends pacing. Only meaningful in real-time or speed-multiplier
// modes; at maximum accelerated speed there is nothing to pause.
func (e *Engine) Pause() {
	if e.timeFactor() == 0 {
		e.log.Warn("pause not supported at maximum accelerated speed")
		return
	}
	e.mu.Lock()
	if !e.paused {
		e.paused = true
		e.pausedAt = time.Now()
		e.log.Info("simulation pause requested")
	}
	e.mu.Unlock()
}

// Resume lifts a pause, shifting the real-time reference by the pause
// duration so already-scheduled timestamps remain correctly paced.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		e.log.Warn("simulation is not paused")
		return
	}
	d := time.Since(e.pausedAt)
	e.realStart = e.realStart.Add(d)
	e.paused = false
	e.log.Infof("simulation resumed after %.2fs pause", d.Seconds())
}

// Status reports the current run snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:         e.state,
		CurrentTime:   e.statusTime,
		EventCount:    e.statusCount,
		IsRunning:     e.state == EngineRunning,
		IsPaused:      e.paused,
		IsCancelled:   e.cancelled,
		ExecutionMode: e.cfg.Simulation.ExecutionMode,
	}
}

// State returns the engine lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Detector exposes the deadlock detector for diagnostics.
func (e *Engine) Detector() *DeadlockDetector { return e.detector }

// Devices exposes the state manager for diagnostics and tests.
func (e *Engine) Devices() *StateManager { return e.devices }

// Flows exposes the flow controller for diagnostics and tests.
func (e *Engine) Flows() *FlowController { return e.flows }

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}
