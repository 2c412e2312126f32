package engine

import (
	"context"
	"sync/atomic"
	"time"

	"shuttlegate/pkg/logger"
	"shuttlegate/pkg/metrics"
	"shuttlegate/pkg/plc"
)

const (
	coolDown          = 5 * time.Second
	deviceReadyPoll   = time.Second
	recoveryRejectLog = "recovery rejected, device still reporting a fault"

	// linkNotEstablishedMessage flags a failure as a PLC-program problem
	// rather than a device problem: the worker re-announces without
	// setting the device-error gate or entering recovery.
	linkNotEstablishedMessage = "link not established"
)

// RecoveryMode selects how a slot's worker recovers a device out of the
// error gate once a command fails terminally.
type RecoveryMode string

const (
	// RecoveryAuto polls DeviceReady on a fixed interval and clears the
	// gate once the device reports a clean state.
	RecoveryAuto RecoveryMode = "auto"
	// RecoveryManual waits for an external signal (trigger-device-recovery
	// or trigger-slot-recovery) before re-checking device state.
	RecoveryManual RecoveryMode = "manual"
)

// slotHandle is everything one worker needs about its owning device and
// the surrounding engine to execute commands independently of the others.
type slotHandle struct {
	deviceID string
	slotID   int
	client   plc.Client
	signals  SignalMap

	commandTimeout   time.Duration
	recoveryInterval time.Duration
	recoveryMode     RecoveryMode
	failOnAlarm      bool

	mailbox    chan CommandEnvelope
	ready      *unboundedQueue[ReadyTicket]
	results    chan CommandResult
	recoverNow chan struct{}
	tracker    *Tracker
	strategies map[CommandType]Strategy
}

func newSlotHandle(deviceID string, slotID int, client plc.Client, signals SignalMap,
	commandTimeout, recoveryInterval time.Duration, recoveryMode RecoveryMode, failOnAlarm bool,
	ready *unboundedQueue[ReadyTicket], results chan CommandResult, tracker *Tracker,
	strategies map[CommandType]Strategy) *slotHandle {
	return &slotHandle{
		deviceID:         deviceID,
		slotID:           slotID,
		client:           client,
		signals:          signals,
		commandTimeout:   commandTimeout,
		recoveryInterval: recoveryInterval,
		recoveryMode:     recoveryMode,
		failOnAlarm:      failOnAlarm,
		mailbox:          make(chan CommandEnvelope, 1),
		ready:            ready,
		results:          results,
		recoverNow:       make(chan struct{}, 1),
		tracker:          tracker,
		strategies:       strategies,
	}
}

// TriggerRecovery wakes a worker blocked in manual recovery. Non-blocking:
// a recovery already in flight simply ignores a duplicate signal.
func (h *slotHandle) TriggerRecovery() {
	select {
	case h.recoverNow <- struct{}{}:
	default:
	}
}

// Run is the slot worker's main loop: announce readiness, wait for one
// envelope, execute it, publish the result, and either re-announce or
// recover. It exits when ctx is cancelled.
func (h *slotHandle) Run(ctx context.Context) {
	h.announceReady(0)

	for {
		var env CommandEnvelope
		select {
		case <-ctx.Done():
			return
		case env = <-h.mailbox:
		}

		result := h.execute(ctx, env)

		// The device-error gate must close the dispatch race against the
		// matchmaker before the result is published, for every terminal
		// failure except a link problem (which is the PLC program's
		// fault, not the device's).
		linkProblem := result.Status == StatusFailed && result.Message == linkNotEstablishedMessage
		setsDeviceError := !linkProblem && (result.Status == StatusFailed || result.Status == StatusTimeout || result.Status == StatusCancelled)
		if setsDeviceError {
			h.tracker.SetDeviceError(h.deviceID, h.slotID, result.Message, errorCodeOf(result))
		}

		h.publish(ctx, result)

		switch {
		case result.Status == StatusSuccess || result.Status == StatusWarning:
			select {
			case <-ctx.Done():
				return
			case <-time.After(coolDown):
			}
			h.announceReady(h.queueDepthHint())
		case result.Status == StatusAlarm:
			// Intermediate notification only; the same execution
			// continues, so the worker does not re-announce here.
		case linkProblem:
			h.announceReady(h.queueDepthHint())
		case setsDeviceError:
			h.recover(ctx)
			h.announceReady(h.queueDepthHint())
		default:
			h.announceReady(h.queueDepthHint())
		}
	}
}

func (h *slotHandle) queueDepthHint() int {
	return len(h.mailbox)
}

func (h *slotHandle) announceReady(queueDepth int) {
	h.ready.Send(ReadyTicket{DeviceID: h.deviceID, SlotID: h.slotID, ReadyAt: time.Now(), QueueDepth: queueDepth})
}

// execute drives the four guards and two phases of one command execution.
func (h *slotHandle) execute(ctx context.Context, env CommandEnvelope) (result CommandResult) {
	started := time.Now()
	base := CommandResult{CommandID: env.CommandID, DeviceID: env.DeviceID, SlotID: h.slotID, StartedAt: started}

	metrics.Get().IncCommandsInFlight()
	defer func() {
		metrics.Get().DecCommandsInFlight()
		metrics.Get().RecordCommand(string(env.CommandType), string(result.Status), time.Since(started))
	}()

	linked, cancel := context.WithTimeout(ctx, h.commandTimeout)
	defer cancel()

	established, err := h.client.IsLinkEstablished(linked)
	if err != nil || !established {
		return h.fail(base, StatusFailed, linkNotEstablishedMessage, nil)
	}

	strategy, ok := h.strategies[env.CommandType]
	if !ok {
		return h.fail(base, StatusFailed, "no strategy registered for command type "+string(env.CommandType), nil)
	}
	if err := strategy.Validate(env); err != nil {
		return h.fail(base, StatusFailed, err.Error(), nil)
	}

	if !h.waitDeviceReady(linked) {
		return h.fail(base, StatusFailed, "device not ready within command timeout", nil)
	}

	var steps []ExecutionStep
	var alarmObserved atomic.Bool

	monitor := newSignalMonitor(h.client, h.signals, strategy.CompletionAddress(h.signals), strategy.ForceFailOnAlarm(),
		func(detail ErrorDetail) {
			alarmObserved.Store(true)
			r := base
			r.Status = StatusAlarm
			r.Error = &detail
			r.Message = "alarm detected"
			select {
			case h.results <- r:
			case <-linked.Done():
			}
		})
	monitor.deviceID = h.deviceID

	monitorDone := make(chan monitorOutcome, 1)
	go func() { monitorDone <- monitor.Run(linked, h.failOnAlarm) }()

	type stepOutcome struct {
		result *CommandResult
		err    error
	}
	stepDone := make(chan stepOutcome, 1)
	go func() {
		result, err := h.runSteps(linked, strategy, env, &steps)
		stepDone <- stepOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-monitorDone:
		return h.resolveMonitorOutcome(base, env, strategy, outcome, steps, alarmObserved.Load())
	case so := <-stepDone:
		if so.err != nil {
			return h.fail(base, StatusFailed, so.err.Error(), steps)
		}
		if so.result != nil {
			so.result.Steps = steps
			return *so.result
		}
		// Step machine finished writing parameters/trigger; wait for the
		// monitor, which owns completion detection.
		select {
		case outcome := <-monitorDone:
			return h.resolveMonitorOutcome(base, env, strategy, outcome, steps, alarmObserved.Load())
		case <-linked.Done():
			return h.timeoutResult(base, steps)
		}
	case <-linked.Done():
		return h.timeoutResult(base, steps)
	}
}

// resolveMonitorOutcome translates a signal-monitor outcome into a terminal
// CommandResult. hasWarning is true when an alarm fired earlier in this
// same execution but did not force termination (fail-on-alarm=false): a
// clean completion reached after such an alarm is a Warning, not a plain
// Success, per the command's success message.
func (h *slotHandle) resolveMonitorOutcome(base CommandResult, env CommandEnvelope, strategy Strategy, outcome monitorOutcome, steps []ExecutionStep, hasWarning bool) CommandResult {
	base.Steps = steps
	base.CompletedAt = time.Now()

	switch outcome.Kind {
	case monitorCompleted:
		if hasWarning {
			base.Status = StatusWarning
		} else {
			base.Status = StatusSuccess
		}
		base.Message = strategy.BuildSuccessMessage(env, hasWarning)
		if cp, ok := strategy.(*checkPalletStrategy); ok {
			available, unavailable, err := cp.ReadAvailability(context.Background(), h.client, h.signals)
			if err == nil {
				base.PalletAvailable = &available
				base.PalletUnavailable = &unavailable
			}
		}
		return base
	case monitorFailed:
		base.Status = StatusFailed
		base.Message = strategy.BuildFailureMessage(env, ErrorDetail{Message: "CommandFailed flag set"})
		return base
	case monitorAlarm:
		base.Status = StatusFailed
		base.Error = outcome.Error
		if outcome.Error != nil {
			base.Message = strategy.BuildFailureMessage(env, *outcome.Error)
		} else {
			base.Message = "alarm terminated command"
		}
		return base
	default:
		return h.timeoutResult(base, steps)
	}
}

// runSteps drives pre-trigger, parameter writes, the trigger/start flags,
// and post-trigger, then idles until cancelled. A non-nil CommandResult
// from either phase short-circuits the rest of the sequence.
func (h *slotHandle) runSteps(ctx context.Context, strategy Strategy, env CommandEnvelope, steps *[]ExecutionStep) (*CommandResult, error) {
	if result, err := strategy.PreTrigger(ctx, h.client, h.signals, env); err != nil {
		return nil, err
	} else if result != nil {
		return result, nil
	}

	if err := strategy.WriteParameters(ctx, h.client, h.signals, env, steps); err != nil {
		return nil, err
	}
	appendStep(steps, "write-parameters")

	if err := h.client.WriteBool(ctx, strategy.TriggerAddress(h.signals), true); err != nil {
		return nil, err
	}
	if err := h.client.WriteBool(ctx, h.signals.StartProcess, true); err != nil {
		return nil, err
	}
	appendStep(steps, "trigger-and-start")

	if result, err := strategy.PostTrigger(ctx, h.client, h.signals, env); err != nil {
		return nil, err
	} else if result != nil {
		return result, nil
	}
	appendStep(steps, "post-trigger")

	// Idle backup loop: completion detection belongs to the monitor. This
	// goroutine only exits via ctx cancellation from the select in execute.
	<-ctx.Done()
	return nil, nil
}

func (h *slotHandle) waitDeviceReady(ctx context.Context) bool {
	if ready, err := h.client.IsDeviceReady(ctx); err == nil && ready {
		return true
	}
	ticker := time.NewTicker(deviceReadyPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if ready, err := h.client.IsDeviceReady(ctx); err == nil && ready {
				return true
			}
		}
	}
}

func (h *slotHandle) fail(base CommandResult, status ExecutionStatus, message string, steps []ExecutionStep) CommandResult {
	base.Status = status
	base.Message = message
	base.Steps = steps
	base.CompletedAt = time.Now()
	return base
}

func (h *slotHandle) timeoutResult(base CommandResult, steps []ExecutionStep) CommandResult {
	base.Status = StatusTimeout
	base.Message = "command timed out"
	base.Steps = steps
	base.CompletedAt = time.Now()
	return base
}

func (h *slotHandle) publish(ctx context.Context, result CommandResult) {
	select {
	case h.results <- result:
	case <-ctx.Done():
	}
}

// recover drives the slot back to a dispatchable state after a terminal
// failure, via either automatic polling or a manual external trigger.
func (h *slotHandle) recover(ctx context.Context) {
	switch h.recoveryMode {
	case RecoveryManual:
		h.recoverManual(ctx)
	default:
		h.recoverAuto(ctx)
	}
}

func (h *slotHandle) recoverAuto(ctx context.Context) {
	ticker := time.NewTicker(h.recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.deviceClean(ctx) {
				h.tracker.ClearDeviceError(h.deviceID)
				return
			}
		}
	}
}

func (h *slotHandle) recoverManual(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.recoverNow:
			if h.deviceClean(ctx) {
				h.tracker.ClearDeviceError(h.deviceID)
				return
			}
			logger.Log.Warn(recoveryRejectLog, "device", h.deviceID, "slot", h.slotID)
		}
	}
}

// deviceClean performs the triple-check the recovery modes share: ready,
// not failed, and not alarming.
func (h *slotHandle) deviceClean(ctx context.Context) bool {
	ready, err := h.client.IsDeviceReady(ctx)
	if err != nil || !ready {
		return false
	}
	failed, err := h.client.ReadBool(ctx, h.signals.CommandFailed)
	if err != nil || failed {
		return false
	}
	alarm, err := h.client.ReadBool(ctx, h.signals.ErrorAlarm)
	if err != nil || alarm {
		return false
	}
	return true
}

func errorCodeOf(r CommandResult) int {
	if r.Error == nil {
		return 0
	}
	return r.Error.Code
}
