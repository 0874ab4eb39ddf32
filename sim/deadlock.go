package sim

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultDeadlockTimeout is the maximum simulated seconds a device may sit
// blocked before the timeout strategy reports a deadlock.
const DefaultDeadlockTimeout = 300.0

// DeadlockType distinguishes the two detection strategies.
type DeadlockType string

const (
	DeadlockTimeout      DeadlockType = "timeout"
	DeadlockCircularWait DeadlockType = "circular_wait"
)

// DeadlockInfo describes one detected deadlock occurrence.
type DeadlockInfo struct {
	Type            DeadlockType `json:"type"`
	InvolvedDevices []string     `json:"involved_devices"`
	InvolvedFlows   []string     `json:"involved_flows"`
	DetectionTime   float64      `json:"detection_time"`
	Message         string       `json:"message"`
	// WaitChain is the ordered cycle for circular waits, closed by repeating
	// the first node at the end.
	WaitChain []string `json:"wait_chain,omitempty"`
}

// DeadlockStats summarizes detector state for diagnostics.
type DeadlockStats struct {
	BlockedDevices    int     `json:"blocked_devices_count"`
	WaitRelationships int     `json:"wait_relationships_count"`
	DeadlocksDetected int     `json:"deadlocks_detected"`
	TimeoutThreshold  float64 `json:"timeout_threshold"`
}

// DeadlockDetector watches device blocking and wait-for relationships,
// applying two complementary strategies: a per-device blocked-time timeout
// and cycle detection over the wait-for graph. Both deduplicate by derived
// keys so repeated checks never re-report the same occurrence.
type DeadlockDetector struct {
	timeout      float64
	blockedSince map[string]float64
	waitingFor   map[string]map[string]struct{}
	reported     map[string]struct{}
}

// NewDeadlockDetector creates a detector with the given timeout threshold in
// simulated seconds; values <= 0 select DefaultDeadlockTimeout.
func NewDeadlockDetector(timeout float64) *DeadlockDetector {
	if timeout <= 0 {
		timeout = DefaultDeadlockTimeout
	}
	return &DeadlockDetector{
		timeout:      timeout,
		blockedSince: make(map[string]float64),
		waitingFor:   make(map[string]map[string]struct{}),
		reported:     make(map[string]struct{}),
	}
}

// RegisterBlocked records that a device entered a blocked condition at now,
// optionally waiting on another device's capacity. Re-registering while
// still blocked keeps the original blocked-since time.
func (d *DeadlockDetector) RegisterBlocked(deviceID string, now float64, waitingFor string) {
	if _, ok := d.blockedSince[deviceID]; !ok {
		d.blockedSince[deviceID] = now
		logrus.Debugf("device %s entered blocked state at t=%.2f", deviceID, now)
	}
	if waitingFor == "" {
		return
	}
	if d.waitingFor[deviceID] == nil {
		d.waitingFor[deviceID] = make(map[string]struct{})
	}
	d.waitingFor[deviceID][waitingFor] = struct{}{}
}

// RegisterUnblocked clears the device's blocked record and removes it from
// the wait-for graph on both sides. Called on unblock, failure and recovery.
func (d *DeadlockDetector) RegisterUnblocked(deviceID string) {
	delete(d.blockedSince, deviceID)
	delete(d.waitingFor, deviceID)
	for _, targets := range d.waitingFor {
		delete(targets, deviceID)
	}
}

// Check runs both strategies against the current registrations and returns
// the first not-yet-reported deadlock, or nil. Timeout is checked first.
func (d *DeadlockDetector) Check(now float64) *DeadlockInfo {
	if info := d.checkTimeout(now); info != nil {
		return info
	}
	return d.checkCircularWait(now)
}

func (d *DeadlockDetector) checkTimeout(now float64) *DeadlockInfo {
	for _, deviceID := range sortedIDs(d.blockedSince) {
		since := d.blockedSince[deviceID]
		blockedFor := now - since
		if blockedFor <= d.timeout {
			continue
		}
		key := fmt.Sprintf("timeout_%s_%d", deviceID, int64(since))
		if _, seen := d.reported[key]; seen {
			continue
		}
		d.reported[key] = struct{}{}

		waiting := sortedIDs(d.waitingFor[deviceID])
		msg := fmt.Sprintf("timeout deadlock: device %q has been blocked for %.1fs (threshold: %.0fs)",
			deviceID, blockedFor, d.timeout)
		if len(waiting) > 0 {
			msg += "; waiting for: " + strings.Join(waiting, ", ")
		} else {
			msg += "; no downstream capacity available"
		}
		logrus.Error(msg)

		return &DeadlockInfo{
			Type:            DeadlockTimeout,
			InvolvedDevices: append([]string{deviceID}, waiting...),
			InvolvedFlows:   []string{},
			DetectionTime:   now,
			Message:         msg,
		}
	}
	return nil
}

func (d *DeadlockDetector) checkCircularWait(now float64) *DeadlockInfo {
	if len(d.waitingFor) == 0 {
		return nil
	}
	state := make(map[string]int, len(d.waitingFor))
	for _, root := range sortedIDs(d.waitingFor) {
		if state[root] != dfsUnvisited {
			continue
		}
		cycle := d.findCycle(root, state)
		if cycle == nil {
			continue
		}

		members := uniqueSorted(cycle)
		key := "cycle_" + strings.Join(members, "_")
		if _, seen := d.reported[key]; seen {
			continue
		}
		d.reported[key] = struct{}{}

		msg := fmt.Sprintf("circular wait deadlock detected: %s", strings.Join(cycle, " -> "))
		logrus.Error(msg)

		return &DeadlockInfo{
			Type:            DeadlockCircularWait,
			InvolvedDevices: members,
			InvolvedFlows:   []string{},
			DetectionTime:   now,
			Message:         msg,
			WaitChain:       cycle,
		}
	}
	return nil
}

// findCycle walks the wait-for graph from root with an explicit stack. It
// returns the cycle path, closed by repeating the entry node, or nil.
// Edges are visited in sorted order so detection is deterministic.
func (d *DeadlockDetector) findCycle(root string, state map[string]int) []string {
	type frame struct {
		id    string
		edges []string
		next  int
	}
	stack := []frame{{id: root, edges: sortedIDs(d.waitingFor[root])}}
	state[root] = dfsInProgress

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.edges) {
			target := top.edges[top.next]
			top.next++
			switch state[target] {
			case dfsInProgress:
				// Back edge: the active path from target onward is the cycle.
				start := 0
				for i := range stack {
					if stack[i].id == target {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start+1)
				for _, fr := range stack[start:] {
					cycle = append(cycle, fr.id)
				}
				return append(cycle, target)
			case dfsUnvisited:
				state[target] = dfsInProgress
				stack = append(stack, frame{id: target, edges: sortedIDs(d.waitingFor[target])})
			}
			continue
		}
		state[top.id] = dfsDone
		stack = stack[:len(stack)-1]
	}
	return nil
}

// BlockedDevices returns a copy of the blocked devices with the time each
// entered its blocked condition.
func (d *DeadlockDetector) BlockedDevices() map[string]float64 {
	out := make(map[string]float64, len(d.blockedSince))
	for id, since := range d.blockedSince {
		out[id] = since
	}
	return out
}

// WaitGraph returns the current wait-for adjacency as sorted slices.
func (d *DeadlockDetector) WaitGraph() map[string][]string {
	out := make(map[string][]string, len(d.waitingFor))
	for id, targets := range d.waitingFor {
		out[id] = sortedIDs(targets)
	}
	return out
}

// Stats returns detection statistics for diagnostics.
func (d *DeadlockDetector) Stats() DeadlockStats {
	edges := 0
	for _, targets := range d.waitingFor {
		edges += len(targets)
	}
	return DeadlockStats{
		BlockedDevices:    len(d.blockedSince),
		WaitRelationships: edges,
		DeadlocksDetected: len(d.reported),
		TimeoutThreshold:  d.timeout,
	}
}

// Reset clears all detector state between runs.
func (d *DeadlockDetector) Reset() {
	d.blockedSince = make(map[string]float64)
	d.waitingFor = make(map[string]map[string]struct{})
	d.reported = make(map[string]struct{})
	logrus.Debug("deadlock detector reset")
}

// sortedIDs returns the map's keys in sorted order, for deterministic
// iteration.
func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// uniqueSorted returns the distinct elements of s in sorted order.
func uniqueSorted(s []string) []string {
	set := make(map[string]struct{}, len(s))
	for _, v := range s {
		set[v] = struct{}{}
	}
	return sortedIDs(set)
}
