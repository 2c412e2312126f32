package engine

import (
	"sort"
	"sync"
	"time"

	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/metrics"
)

// TrackingState is a command-id's position in its lifecycle. Transitions
// are one-way: Pending -> {Processing, Removed} -> Completed. Removed is
// terminal and only reachable from Pending.
type TrackingState string

const (
	TrackingPending    TrackingState = "Pending"
	TrackingProcessing TrackingState = "Processing"
	TrackingCompleted  TrackingState = "Completed"
	TrackingRemoved    TrackingState = "Removed"
)

// CommandTrackingInfo is the tracker's internal record for one command-id.
type CommandTrackingInfo struct {
	Envelope    CommandEnvelope
	State       TrackingState
	LastStatus  ExecutionStatus
	LastResult  *CommandResult
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// DeviceErrorGate suppresses dispatch to every slot of one device until
// cleared. It is a relation keyed by device id, not an ownership edge.
type DeviceErrorGate struct {
	Active      bool
	FirstSlotID int
	Message     string
	ErrorCode   int
	Since       time.Time
}

// GlobalAlarmGate suppresses all dispatch system-wide until the
// originating command reaches a terminal state.
type GlobalAlarmGate struct {
	Active    bool
	CommandID string
	Error     ErrorDetail
}

// DeviceStats summarizes one device's tracked commands.
type DeviceStats struct {
	DeviceID   string
	Pending    int
	Processing int
	Completed  int
}

// Tracker is the thread-safe index of every submitted command's state,
// plus the device-error and global-alarm gates the matchmaker consults
// before every dispatch.
type Tracker struct {
	mu       sync.RWMutex
	commands map[string]*CommandTrackingInfo

	gateMu      sync.RWMutex
	deviceGates map[string]*DeviceErrorGate
	globalAlarm GlobalAlarmGate

	cleanupInterval time.Duration
	retention       time.Duration
}

// NewTracker creates an empty Tracker with the spec's default cleanup
// cadence (every 5 minutes, evicting Completed entries older than 1 hour).
func NewTracker() *Tracker {
	return &Tracker{
		commands:        make(map[string]*CommandTrackingInfo),
		deviceGates:     make(map[string]*DeviceErrorGate),
		cleanupInterval: 5 * time.Minute,
		retention:       time.Hour,
	}
}

// MarkPending registers a newly submitted envelope.
func (t *Tracker) MarkPending(env CommandEnvelope) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands[env.CommandID] = &CommandTrackingInfo{
		Envelope:    env,
		State:       TrackingPending,
		SubmittedAt: env.SubmittedAt,
	}
}

// MarkProcessing transitions a command from Pending to Processing. It is
// the only valid entry into Processing; calling it twice for the same
// command-id returns an error.
func (t *Tracker) MarkProcessing(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.commands[id]
	if !ok {
		return apperror.NewWithField(apperror.CodeNotFound, "unknown command", "command_id")
	}
	if info.State != TrackingPending {
		return apperror.NewWithField(apperror.CodeValidation,
			"command is not Pending", "command_id")
	}

	info.State = TrackingProcessing
	info.StartedAt = time.Now()
	return nil
}

// MarkCompleted transitions a command to Completed and clears any alarm
// tied to it. Processing -> Completed is monotonic: once Completed, later
// calls are no-ops save for replacing the stored result.
func (t *Tracker) MarkCompleted(id string, result CommandResult) error {
	t.mu.Lock()
	info, ok := t.commands[id]
	if !ok {
		t.mu.Unlock()
		return apperror.NewWithField(apperror.CodeNotFound, "unknown command", "command_id")
	}
	if info.State == TrackingRemoved {
		t.mu.Unlock()
		return apperror.NewWithField(apperror.CodeValidation, "command was removed", "command_id")
	}

	info.State = TrackingCompleted
	info.LastStatus = result.Status
	info.LastResult = &result
	info.CompletedAt = time.Now()
	t.mu.Unlock()

	t.clearAlarmIfOwned(id)
	return nil
}

// MarkRemoved soft-deletes a command. Only effective while Pending.
func (t *Tracker) MarkRemoved(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.commands[id]
	if !ok {
		return apperror.NewWithField(apperror.CodeNotFound, "unknown command", "command_id")
	}
	if info.State != TrackingPending {
		return apperror.NewWithField(apperror.CodeValidation,
			"command can only be removed while Pending", "command_id")
	}

	info.State = TrackingRemoved
	return nil
}

// State returns a command's current state.
func (t *Tracker) State(id string) (TrackingState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.commands[id]
	if !ok {
		return "", false
	}
	return info.State, true
}

// Info returns a copy of the tracking record for a command-id.
func (t *Tracker) Info(id string) (CommandTrackingInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.commands[id]
	if !ok {
		return CommandTrackingInfo{}, false
	}
	return *info, true
}

// Count returns how many tracked commands are in the given state.
func (t *Tracker) Count(state TrackingState) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, info := range t.commands {
		if info.State == state {
			n++
		}
	}
	return n
}

// Pending returns every Pending command ordered by submission time.
func (t *Tracker) Pending() []CommandTrackingInfo {
	return t.enumerate(TrackingPending, func(i CommandTrackingInfo) time.Time { return i.SubmittedAt })
}

// Processing returns every Processing command ordered by start time.
func (t *Tracker) Processing() []CommandTrackingInfo {
	return t.enumerate(TrackingProcessing, func(i CommandTrackingInfo) time.Time { return i.StartedAt })
}

func (t *Tracker) enumerate(state TrackingState, sortKey func(CommandTrackingInfo) time.Time) []CommandTrackingInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CommandTrackingInfo, 0)
	for _, info := range t.commands {
		if info.State == state {
			out = append(out, *info)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return sortKey(out[i]).Before(sortKey(out[j]))
	})
	return out
}

// StatsByDevice returns per-device command counts for reporting.
func (t *Tracker) StatsByDevice() map[string]DeviceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make(map[string]DeviceStats)
	for _, info := range t.commands {
		device := info.Envelope.DeviceID
		if device == "" {
			continue
		}
		s := stats[device]
		s.DeviceID = device
		switch info.State {
		case TrackingPending:
			s.Pending++
		case TrackingProcessing:
			s.Processing++
		case TrackingCompleted:
			s.Completed++
		}
		stats[device] = s
	}
	return stats
}

// SetAlarm sets the global alarm gate, attributing it to the command
// whose signal monitor raised it.
func (t *Tracker) SetAlarm(commandID string, detail ErrorDetail) {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()

	t.globalAlarm = GlobalAlarmGate{Active: true, CommandID: commandID, Error: detail}
	metrics.Get().SetGlobalAlarmActive(true)
	metrics.Get().RecordAlarm("", "global")
}

// ClearAlarm unconditionally clears the global alarm gate.
func (t *Tracker) ClearAlarm() {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()

	t.globalAlarm = GlobalAlarmGate{}
	metrics.Get().SetGlobalAlarmActive(false)
}

// clearAlarmIfOwned clears the global alarm only if it was raised by the
// command that just reached a terminal state, per the spec's rule that
// the gate clears when its originating command terminates.
func (t *Tracker) clearAlarmIfOwned(commandID string) {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()

	if t.globalAlarm.Active && t.globalAlarm.CommandID == commandID {
		t.globalAlarm = GlobalAlarmGate{}
		metrics.Get().SetGlobalAlarmActive(false)
	}
}

// GlobalAlarm returns a copy of the current global alarm gate.
func (t *Tracker) GlobalAlarm() GlobalAlarmGate {
	t.gateMu.RLock()
	defer t.gateMu.RUnlock()
	return t.globalAlarm
}

// SetDeviceError sets device's gate. Must be called before the failing
// result is published, to close the dispatch race against the matchmaker.
func (t *Tracker) SetDeviceError(device string, slotID int, message string, code int) {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()

	t.deviceGates[device] = &DeviceErrorGate{
		Active:      true,
		FirstSlotID: slotID,
		Message:     message,
		ErrorCode:   code,
		Since:       time.Now(),
	}
	metrics.Get().SetDeviceGateOpen(device, false)
	metrics.Get().RecordAlarm(device, "device")
}

// ClearDeviceError clears device's gate.
func (t *Tracker) ClearDeviceError(device string) {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()
	delete(t.deviceGates, device)
	metrics.Get().SetDeviceGateOpen(device, true)
}

// DeviceError returns device's current gate, if active.
func (t *Tracker) DeviceError(device string) (DeviceErrorGate, bool) {
	t.gateMu.RLock()
	defer t.gateMu.RUnlock()

	gate, ok := t.deviceGates[device]
	if !ok {
		return DeviceErrorGate{}, false
	}
	return *gate, true
}

// RunCleanup runs the periodic eviction of old Completed entries until done
// is closed.
func (t *Tracker) RunCleanup(done <-chan struct{}) {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.evictOldCompleted()
		}
	}
}

func (t *Tracker) evictOldCompleted() {
	cutoff := time.Now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, info := range t.commands {
		if info.State == TrackingCompleted && info.CompletedAt.Before(cutoff) {
			delete(t.commands, id)
		}
	}
}
