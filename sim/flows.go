package sim

// DFS colors shared by the dependency-graph and wait-for-graph walks.
const (
	dfsUnvisited = iota
	dfsInProgress
	dfsDone
)

// FlowController validates the flow dependency graph at construction and
// tracks which flows have started and completed. Flow definitions themselves
// are immutable configuration; the started and completed sets are the only
// mutable facts about a flow.
type FlowController struct {
	flows     map[string]Flow
	order     []string
	started   map[string]struct{}
	completed map[string]struct{}
}

// NewFlowController checks that every flow references existing devices, that
// every dependency names an existing flow, and that the dependency graph is
// acyclic.
func NewFlowController(flows []Flow, deviceIDs []string) (*FlowController, error) {
	fc := &FlowController{
		flows:     make(map[string]Flow, len(flows)),
		order:     make([]string, 0, len(flows)),
		started:   make(map[string]struct{}),
		completed: make(map[string]struct{}),
	}
	devices := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		devices[id] = struct{}{}
	}
	for _, f := range flows {
		fc.flows[f.ID] = f
		fc.order = append(fc.order, f.ID)
	}
	for _, id := range fc.order {
		f := fc.flows[id]
		if _, ok := devices[f.FromDevice]; !ok {
			return nil, &UnknownDeviceError{FlowID: id, DeviceID: f.FromDevice}
		}
		if _, ok := devices[f.ToDevice]; !ok {
			return nil, &UnknownDeviceError{FlowID: id, DeviceID: f.ToDevice}
		}
		for _, dep := range f.Dependencies {
			if _, ok := fc.flows[dep]; !ok {
				return nil, &UnknownFlowError{FlowID: id, Dependency: dep}
			}
		}
	}
	if err := fc.checkCycles(); err != nil {
		return nil, err
	}
	return fc, nil
}

// checkCycles runs DFS over the dependency graph with an explicit stack, so
// pathological dependency chains cannot blow the call stack. A back edge
// into the active path signals a cycle.
func (fc *FlowController) checkCycles() error {
	state := make(map[string]int, len(fc.flows))

	type frame struct {
		id   string
		next int
	}

	for _, root := range fc.order {
		if state[root] != dfsUnvisited {
			continue
		}
		stack := []frame{{id: root}}
		state[root] = dfsInProgress
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := fc.flows[top.id].Dependencies
			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				switch state[dep] {
				case dfsInProgress:
					return &CircularDependencyError{FlowID: dep}
				case dfsUnvisited:
					state[dep] = dfsInProgress
					stack = append(stack, frame{id: dep})
				}
				continue
			}
			state[top.id] = dfsDone
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}

// MarkStarted records that a flow has begun processing. Kept alongside the
// completed set as the hook a start-to-start dependency variant would use.
func (fc *FlowController) MarkStarted(id string) {
	fc.started[id] = struct{}{}
}

// IsStarted reports whether the flow has begun processing.
func (fc *FlowController) IsStarted(id string) bool {
	_, ok := fc.started[id]
	return ok
}

// MarkCompleted records that a flow has finished.
func (fc *FlowController) MarkCompleted(id string) {
	fc.completed[id] = struct{}{}
}

// IsCompleted reports whether the flow has finished.
func (fc *FlowController) IsCompleted(id string) bool {
	_, ok := fc.completed[id]
	return ok
}

// CompletedCount returns the number of distinct completed flows.
func (fc *FlowController) CompletedCount() int { return len(fc.completed) }

// ExecutableFlows returns, in declaration order, every flow not yet
// completed whose entire dependency set lies within completed plus the
// internally tracked completions.
func (fc *FlowController) ExecutableFlows(completed []string) []string {
	set := make(map[string]struct{}, len(completed)+len(fc.completed))
	for _, id := range completed {
		set[id] = struct{}{}
	}
	for id := range fc.completed {
		set[id] = struct{}{}
	}

	var out []string
	for _, id := range fc.order {
		if _, done := set[id]; done {
			continue
		}
		ready := true
		for _, dep := range fc.flows[id].Dependencies {
			if _, has := set[dep]; !has {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, id)
		}
	}
	return out
}
