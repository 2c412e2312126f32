package engine

import (
	"context"
	"strconv"
	"time"

	"shuttlegate/pkg/metrics"
)

// dispatchStagger is the fixed delay enforced between any two consecutive
// dispatches across all slots. The first dispatch after startup has none.
const dispatchStagger = 2 * time.Second

// slotRegistration is the matchmaker's static view of one slot: which
// device it belongs to and what command types it can execute.
type slotRegistration struct {
	deviceID     string
	slotID       int
	capabilities map[CommandType]bool
}

func (r slotRegistration) supports(ct CommandType) bool {
	if len(r.capabilities) == 0 {
		return true // empty capability set means "all types supported"
	}
	return r.capabilities[ct]
}

// matchmaker is the single-goroutine scheduler: it owns the pending FIFO
// and matches envelopes to ready slots under the rules in their exact
// priority order, never skipping the head of the queue.
type matchmaker struct {
	input   chan CommandEnvelope
	ready   *unboundedQueue[ReadyTicket]
	mailbox map[string]chan CommandEnvelope // keyed by "device/slot"
	slots   map[string]slotRegistration
	tracker *Tracker
	gate    *pauseGate

	fifo          []CommandEnvelope
	availableSlot []ReadyTicket
	lastDispatch  time.Time
	firstDispatch bool
}

func newMatchmaker(input chan CommandEnvelope, ready *unboundedQueue[ReadyTicket],
	mailbox map[string]chan CommandEnvelope, slots map[string]slotRegistration,
	tracker *Tracker, gate *pauseGate) *matchmaker {
	return &matchmaker{
		input:         input,
		ready:         ready,
		mailbox:       mailbox,
		slots:         slots,
		tracker:       tracker,
		gate:          gate,
		firstDispatch: true,
	}
}

// Run is the matchmaker's main loop. It exits when ctx is cancelled.
func (m *matchmaker) Run(ctx context.Context) {
	for {
		if !m.gate.Wait(ctx.Done()) {
			return
		}

		if !m.drainInput(ctx) {
			return
		}

		if len(m.fifo) == 0 {
			m.gate.Resume()
			if !m.waitForWork(ctx) {
				return
			}
			continue
		}

		if !m.drainReady(ctx) {
			return
		}

		if !m.dispatchLoop(ctx) {
			return
		}

		m.returnUnusedTickets()
		m.reportQueueDepth()
	}
}

// reportQueueDepth publishes the pending FIFO's depth per device, sampled
// once per scheduling pass. Envelopes with no device affinity are counted
// under the "any" label, since they have not yet committed to a device.
func (m *matchmaker) reportQueueDepth() {
	byDevice := make(map[string]int)
	for _, slot := range m.slots {
		byDevice[slot.deviceID] = 0
	}
	for _, env := range m.fifo {
		if env.DeviceID == "" {
			byDevice["any"]++
			continue
		}
		byDevice[env.DeviceID]++
	}
	for device, depth := range byDevice {
		metrics.Get().SetMatchQueueDepth(device, depth)
	}
}

// drainInput pulls every currently-queued envelope off the input channel
// into the local FIFO, skipping any that have since been soft-removed.
func (m *matchmaker) drainInput(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case env, ok := <-m.input:
			if !ok {
				return false
			}
			if state, ok := m.tracker.State(env.CommandID); ok && state == TrackingRemoved {
				continue
			}
			m.fifo = append(m.fifo, env)
		default:
			return true
		}
	}
}

// waitForWork blocks (bounded to 1s) for either new input or a ReadyTicket.
func (m *matchmaker) waitForWork(ctx context.Context) bool {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case env, ok := <-m.input:
		if !ok {
			return false
		}
		if state, ok := m.tracker.State(env.CommandID); !ok || state != TrackingRemoved {
			m.fifo = append(m.fifo, env)
		}
		return true
	case t, ok := <-m.ready.C():
		if !ok {
			return false
		}
		m.availableSlot = append(m.availableSlot, t)
		return true
	case <-timer.C:
		return true
	}
}

func (m *matchmaker) drainReady(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case t, ok := <-m.ready.C():
			if !ok {
				return false
			}
			m.availableSlot = append(m.availableSlot, t)
		default:
			return true
		}
	}
}

// dispatchLoop repeatedly matches the FIFO head against ready slots. It
// stops the instant no match exists for the head - the head is never
// skipped in favor of a later envelope.
func (m *matchmaker) dispatchLoop(ctx context.Context) bool {
	for len(m.fifo) > 0 {
		head := m.fifo[0]
		if state, ok := m.tracker.State(head.CommandID); ok && state == TrackingRemoved {
			m.fifo = m.fifo[1:]
			continue
		}

		idx := m.findMatch(head)
		if idx < 0 {
			return true
		}

		slot := m.availableSlot[idx]
		m.availableSlot = append(m.availableSlot[:idx], m.availableSlot[idx+1:]...)
		m.fifo = m.fifo[1:]

		if !m.staggerAndDispatch(ctx, head, slot) {
			// Rolled back: cancelled mid-delay.
			m.fifo = append([]CommandEnvelope{head}, m.fifo...)
			m.availableSlot = append(m.availableSlot, slot)
			return true
		}
	}
	return true
}

// staggerAndDispatch enforces the 2s inter-dispatch delay, then marks the
// envelope Processing and writes it into the slot's mailbox.
func (m *matchmaker) staggerAndDispatch(ctx context.Context, env CommandEnvelope, slot ReadyTicket) bool {
	if !m.firstDispatch {
		elapsed := time.Since(m.lastDispatch)
		if wait := dispatchStagger - elapsed; wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return false
			}
		}
	}

	if err := m.tracker.MarkProcessing(env.CommandID); err != nil {
		// The envelope was resolved elsewhere (e.g. removed) during the
		// stagger wait and is dropped, but the slot it was about to take
		// is still a live, ready worker - it must get another chance at
		// dispatch, or it is stranded until new work happens to find it.
		m.ready.Send(slot)
		return true
	}

	key := mailboxKey(slot.DeviceID, slot.SlotID)
	box, ok := m.mailbox[key]
	if !ok {
		m.ready.Send(slot)
		return true
	}

	select {
	case box <- env:
	case <-ctx.Done():
		return false
	}

	m.firstDispatch = false
	m.lastDispatch = time.Now()
	metrics.Get().RecordDispatch(slot.DeviceID, string(env.CommandType))
	return true
}

// findMatch returns the index into m.availableSlot of the first ready slot
// that may take the head envelope, honoring every match rule in order, or
// -1 if none qualifies.
func (m *matchmaker) findMatch(env CommandEnvelope) int {
	if m.tracker.GlobalAlarm().Active {
		return -1
	}

	if !m.exclusivityAllows(env.CommandType) {
		return -1
	}

	for i, slot := range m.availableSlot {
		if _, blocked := m.tracker.DeviceError(slot.DeviceID); blocked {
			continue
		}
		if env.DeviceID != "" && env.DeviceID != slot.DeviceID {
			continue
		}
		reg, ok := m.slots[mailboxKey(slot.DeviceID, slot.SlotID)]
		if !ok || !reg.supports(env.CommandType) {
			continue
		}
		return i
	}
	return -1
}

// exclusivityAllows applies the Transfer/CheckPallet mutual exclusion and
// the Inbound/Outbound mutual exclusion rules, both system-wide: a
// processing Transfer or CheckPallet blocks every other dispatch anywhere
// in the fleet, and a processing Inbound blocks Outbound (and vice versa)
// across every device, not just the one it runs on.
func (m *matchmaker) exclusivityAllows(ct CommandType) bool {
	stats := m.processingByType()

	if ct == Transfer || ct == CheckPallet {
		return stats[Transfer] == 0 && stats[CheckPallet] == 0 && stats[Inbound] == 0 && stats[Outbound] == 0
	}
	if stats[Transfer] > 0 || stats[CheckPallet] > 0 {
		return false
	}
	if ct == Inbound {
		return stats[Outbound] == 0
	}
	if ct == Outbound {
		return stats[Inbound] == 0
	}
	return true
}

func (m *matchmaker) processingByType() map[CommandType]int {
	out := make(map[CommandType]int)
	for _, info := range m.tracker.Processing() {
		out[info.Envelope.CommandType]++
	}
	return out
}

func (m *matchmaker) returnUnusedTickets() {
	for _, t := range m.availableSlot {
		m.ready.Send(t)
	}
	m.availableSlot = nil
}

func mailboxKey(deviceID string, slotID int) string {
	return deviceID + "/" + strconv.Itoa(slotID)
}
