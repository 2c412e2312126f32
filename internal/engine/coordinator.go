package engine

import (
	"context"
	"sync"
	"time"

	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/plc"
)

// inputQueueCapacity bounds the coordinator's submission queue. Submitters
// back-pressure once it fills.
const inputQueueCapacity = 256

// DeviceOptions is the per-device configuration RegisterDevice needs, kept
// independent of the application's config package so the engine has no
// dependency on how a deployment is configured.
type DeviceOptions struct {
	CommandTimeout   time.Duration
	RecoveryInterval time.Duration
	RecoveryMode     RecoveryMode
	FailOnAlarm      bool
}

// SlotSpec describes one slot to register under a device.
type SlotSpec struct {
	SlotID       int
	DBNumber     int
	Capabilities []CommandType // empty means every command type
}

// Status summarizes the coordinator's current queue and device state.
type Status struct {
	Queued     int
	Processing int
	Completed  int
	Paused     bool
	PerDevice  map[string]DeviceStats
}

// registeredSlot is one live slot: its signal map, capability set, and the
// worker handle that owns its mailbox.
type registeredSlot struct {
	signals      SignalMap
	capabilities map[CommandType]bool
	handle       *slotHandle
}

// registeredDevice is one live PLC connection and every slot it hosts.
type registeredDevice struct {
	deviceID string
	client   plc.Client
	opts     DeviceOptions
	slots    map[int]*registeredSlot
}

// Coordinator is the gateway's public facade: it wires the tracker,
// matchmaker, reply hub, and one worker per slot together, and exposes the
// operations client applications and operators drive.
type Coordinator struct {
	mu      sync.RWMutex
	devices map[string]*registeredDevice

	tracker    *Tracker
	bus        *broadcastBus
	gate       *pauseGate
	input      chan CommandEnvelope
	ready      *unboundedQueue[ReadyTicket]
	results    chan CommandResult
	strategies map[CommandType]Strategy
	validator  *validatorBox

	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewCoordinator builds an unstarted coordinator. Devices must be
// registered before Start.
func NewCoordinator() *Coordinator {
	validator := &validatorBox{}
	strategies := map[CommandType]Strategy{}
	for _, ct := range []CommandType{Outbound, Transfer, CheckPallet, Inbound} {
		s, _ := NewStrategy(ct, validator)
		strategies[ct] = s
	}

	return &Coordinator{
		devices:    make(map[string]*registeredDevice),
		tracker:    NewTracker(),
		bus:        newBroadcastBus(),
		gate:       newPauseGate(),
		input:      make(chan CommandEnvelope, inputQueueCapacity),
		ready:      newUnboundedQueue[ReadyTicket](),
		results:    make(chan CommandResult, inputQueueCapacity),
		strategies: strategies,
		validator:  validator,
		stopped:    make(chan struct{}),
	}
}

// SetBarcodeValidator installs the external collaborator Inbound commands
// use. Must precede any Inbound submission.
func (c *Coordinator) SetBarcodeValidator(fn BarcodeValidator) {
	c.validator.Set(fn)
}

// RegisterDevice adds a device and its slots. Idempotent pre-start only:
// calling it after Start returns an error.
func (c *Coordinator) RegisterDevice(deviceID string, client plc.Client, opts DeviceOptions, slots []SlotSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return apperror.New(apperror.CodeValidation, "cannot register a device after start")
	}

	dev := &registeredDevice{deviceID: deviceID, client: client, opts: opts, slots: make(map[int]*registeredSlot)}

	for _, spec := range slots {
		signals, err := BindSignalMap(spec.DBNumber)
		if err != nil {
			return err
		}
		caps := make(map[CommandType]bool, len(spec.Capabilities))
		for _, ct := range spec.Capabilities {
			caps[ct] = true
		}

		handle := newSlotHandle(deviceID, spec.SlotID, client, signals,
			opts.CommandTimeout, opts.RecoveryInterval, opts.RecoveryMode, opts.FailOnAlarm,
			c.ready, c.results, c.tracker, c.strategies)

		dev.slots[spec.SlotID] = &registeredSlot{signals: signals, capabilities: caps, handle: handle}
	}

	c.devices[deviceID] = dev
	return nil
}

// Start launches the matchmaker, reply hub, and one worker per registered
// slot.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	mailbox := make(map[string]chan CommandEnvelope)
	slotRegs := make(map[string]slotRegistration)

	for deviceID, dev := range c.devices {
		for slotID, slot := range dev.slots {
			key := mailboxKey(deviceID, slotID)
			mailbox[key] = slot.handle.mailbox
			slotRegs[key] = slotRegistration{deviceID: deviceID, slotID: slotID, capabilities: slot.capabilities}
		}
	}
	c.mu.Unlock()

	mm := newMatchmaker(c.input, c.ready, mailbox, slotRegs, c.tracker, c.gate)
	hub := newReplyHub(c.results, c.tracker, c.bus)

	c.wg.Add(2)
	go func() { defer c.wg.Done(); mm.Run(runCtx) }()
	go func() { defer c.wg.Done(); hub.Run(runCtx) }()
	go c.tracker.RunCleanup(runCtx.Done())

	c.mu.RLock()
	for _, dev := range c.devices {
		for _, slot := range dev.slots {
			c.wg.Add(1)
			h := slot.handle
			go func() { defer c.wg.Done(); h.Run(runCtx) }()
		}
	}
	c.mu.RUnlock()
}

// Stop signals every task to shut down, waits for them to exit, and marks
// the coordinator stopped so a later Submit reports false instead of
// hanging on an input queue nothing drains anymore.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Dispose is an alias for Stop kept for symmetry with the coordinator's
// register/start/stop/dispose lifecycle.
func (c *Coordinator) Dispose() {
	c.Stop()
}

// Submit enqueues an envelope. Returns false if the coordinator has been
// stopped (the input channel is no longer accepting work) or the caller's
// context is cancelled first. Submitting auto-resumes a paused gate.
func (c *Coordinator) Submit(ctx context.Context, env CommandEnvelope) bool {
	// Checked up front, not just as a losing select case below: once
	// c.stopped is closed the input channel's buffer may still have
	// room, and an unbuffered race between "send" and "stopped" would
	// let select pick either nondeterministically. A stopped gateway
	// must always refuse new work.
	select {
	case <-c.stopped:
		return false
	default:
	}

	if env.SubmittedAt.IsZero() {
		env.SubmittedAt = time.Now()
	}
	c.tracker.MarkPending(env)
	c.gate.Resume()

	select {
	case c.input <- env:
		return true
	case <-ctx.Done():
		_ = c.tracker.MarkRemoved(env.CommandID)
		return false
	case <-c.stopped:
		_ = c.tracker.MarkRemoved(env.CommandID)
		return false
	}
}

// Pause halts new dispatches; in-flight executions continue.
func (c *Coordinator) Pause() { c.gate.Pause() }

// Resume clears the pause gate.
func (c *Coordinator) Resume() { c.gate.Resume() }

// IsPaused reports the pause gate's current state.
func (c *Coordinator) IsPaused() bool { return c.gate.IsPaused() }

// Remove soft-deletes a pending command. Only effective while Pending.
func (c *Coordinator) Remove(commandID string) error {
	return c.tracker.MarkRemoved(commandID)
}

// TriggerDeviceRecovery wakes every slot of a device blocked in manual
// recovery.
func (c *Coordinator) TriggerDeviceRecovery(deviceID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dev, ok := c.devices[deviceID]
	if !ok {
		return
	}
	for _, slot := range dev.slots {
		slot.handle.TriggerRecovery()
	}
}

// TriggerSlotRecovery wakes one slot blocked in manual recovery.
func (c *Coordinator) TriggerSlotRecovery(deviceID string, slotID int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dev, ok := c.devices[deviceID]
	if !ok {
		return
	}
	slot, ok := dev.slots[slotID]
	if !ok {
		return
	}
	slot.handle.TriggerRecovery()
}

// ReadCurrentLocation reads the four position registers for a slot. When
// slotID is 0 and the device has exactly one slot, that slot is used.
func (c *Coordinator) ReadCurrentLocation(ctx context.Context, deviceID string, slotID int) (Location, error) {
	c.mu.RLock()
	dev, ok := c.devices[deviceID]
	if !ok {
		c.mu.RUnlock()
		return Location{}, apperror.NewWithField(apperror.CodeNotFound, "unknown device", "device_id")
	}
	if slotID == 0 && len(dev.slots) == 1 {
		for id := range dev.slots {
			slotID = id
		}
	}
	slot, ok := dev.slots[slotID]
	client := dev.client
	c.mu.RUnlock()
	if !ok {
		return Location{}, apperror.NewWithField(apperror.CodeNotFound, "unknown slot", "slot_id")
	}

	floor, err := client.ReadWord(ctx, slot.signals.PositionFloor)
	if err != nil {
		return Location{}, err
	}
	rail, err := client.ReadWord(ctx, slot.signals.PositionRail)
	if err != nil {
		return Location{}, err
	}
	block, err := client.ReadWord(ctx, slot.signals.PositionBlock)
	if err != nil {
		return Location{}, err
	}
	depth, err := client.ReadWord(ctx, slot.signals.PositionDepth)
	if err != nil {
		return Location{}, err
	}

	return Location{Floor: int(floor), Rail: int(rail), Block: int(block), Depth: int(depth)}, nil
}

// PendingCommands returns every command still waiting for dispatch, oldest
// first. Intended for read-only reporting, not for driving dispatch logic.
func (c *Coordinator) PendingCommands() []CommandTrackingInfo {
	return c.tracker.Pending()
}

// ProcessingCommands returns every command currently in flight, oldest
// first.
func (c *Coordinator) ProcessingCommands() []CommandTrackingInfo {
	return c.tracker.Processing()
}

// Status returns current queue depths, device stats, and pause state.
func (c *Coordinator) Status() Status {
	return Status{
		Queued:     c.tracker.Count(TrackingPending),
		Processing: c.tracker.Count(TrackingProcessing),
		Completed:  c.tracker.Count(TrackingCompleted),
		Paused:     c.gate.IsPaused(),
		PerDevice:  c.tracker.StatsByDevice(),
	}
}

// ObserveResults returns a lazy, multi-subscriber stream of results and an
// unsubscribe function the caller must invoke when done reading.
func (c *Coordinator) ObserveResults() (<-chan CommandResult, func()) {
	return c.bus.Subscribe()
}
