package engine

import (
	"context"
	"time"

	"shuttlegate/pkg/metrics"
	"shuttlegate/pkg/plc"
)

// monitorPollInterval is the fixed cadence at which the signal monitor
// reads the error-code register, the CommandFailed flag, and the
// strategy's completion address.
const monitorPollInterval = 200 * time.Millisecond

// monitorOutcomeKind classifies how a monitor run ended.
type monitorOutcomeKind string

const (
	monitorNone      monitorOutcomeKind = "None"
	monitorAlarm     monitorOutcomeKind = "Alarm"
	monitorCompleted monitorOutcomeKind = "Completed"
	monitorFailed    monitorOutcomeKind = "Failed"
)

// monitorOutcome is what a signal-monitor run reports back to the worker
// once it terminates (by detecting a terminal flag or by cancellation).
type monitorOutcome struct {
	Kind       monitorOutcomeKind
	Error      *ErrorDetail
	DetectedAt time.Time
}

// signalMonitor polls the device's error-code register, CommandFailed
// flag, and the active strategy's completion address on a fixed 200ms
// cadence, independent of the step machine driving the same command. The
// worker races its result against the step machine via select; whichever
// resolves first wins and the other side is cancelled.
type signalMonitor struct {
	deviceID     string
	client       plc.Client
	signals      SignalMap
	completionAt string
	forceFail    bool

	alarmPushed bool
	onAlarm     func(ErrorDetail)
}

// newSignalMonitor builds a monitor for one command execution. onAlarm, if
// non-nil, is invoked at most once on the first alarm observed, letting the
// worker push an intermediate Alarm result onto the result stream before
// the monitor decides whether to keep running.
func newSignalMonitor(client plc.Client, signals SignalMap, completionAt string, forceFailOnAlarm bool, onAlarm func(ErrorDetail)) *signalMonitor {
	return &signalMonitor{
		client:       client,
		signals:      signals,
		completionAt: completionAt,
		forceFail:    forceFailOnAlarm,
		onAlarm:      onAlarm,
	}
}

// Run polls until it observes a terminal condition or ctx is cancelled. A
// device configured to continue past alarms (fail-on-alarm false, and no
// strategy override) reports the alarm via onAlarm but keeps polling.
func (m *signalMonitor) Run(ctx context.Context, failOnAlarm bool) monitorOutcome {
	forceFail := failOnAlarm || m.forceFail
	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return monitorOutcome{Kind: monitorNone, DetectedAt: time.Now()}
		case <-ticker.C:
		}

		code, err := m.client.ReadWord(ctx, m.signals.ErrorCode)
		if err == nil && code != 0 {
			detail := ErrorDetail{Code: int(code), Message: lookupErrorMessage(int(code)), DetectedAt: time.Now()}
			if !m.alarmPushed {
				m.alarmPushed = true
				if m.onAlarm != nil {
					m.onAlarm(detail)
				}
			}
			if forceFail {
				metrics.Get().RecordSignalPoll(m.deviceID, "alarm")
				return monitorOutcome{Kind: monitorAlarm, Error: &detail, DetectedAt: detail.DetectedAt}
			}
			metrics.Get().RecordSignalPoll(m.deviceID, "alarm")
			continue
		}

		failed, err := m.client.ReadBool(ctx, m.signals.CommandFailed)
		if err == nil && failed {
			metrics.Get().RecordSignalPoll(m.deviceID, "failed")
			return monitorOutcome{Kind: monitorFailed, DetectedAt: time.Now()}
		}

		done, err := m.client.ReadBool(ctx, m.completionAt)
		if err == nil && done {
			metrics.Get().RecordSignalPoll(m.deviceID, "completed")
			return monitorOutcome{Kind: monitorCompleted, DetectedAt: time.Now()}
		}

		metrics.Get().RecordSignalPoll(m.deviceID, "none")
	}
}
