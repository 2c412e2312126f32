package engine

import (
	"context"
	"testing"
	"time"
)

func TestSignalMonitor_Completed(t *testing.T) {
	client := newFakeClient()
	m, _ := BindSignalMap(10)
	mon := newSignalMonitor(client, m, m.OutboundCompleted, false, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		client.setBool(m.OutboundCompleted, true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome := mon.Run(ctx, false)
	if outcome.Kind != monitorCompleted {
		t.Errorf("Run() kind = %s, want %s", outcome.Kind, monitorCompleted)
	}
}

func TestSignalMonitor_Failed(t *testing.T) {
	client := newFakeClient()
	m, _ := BindSignalMap(11)
	mon := newSignalMonitor(client, m, m.OutboundCompleted, false, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		client.setBool(m.CommandFailed, true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome := mon.Run(ctx, false)
	if outcome.Kind != monitorFailed {
		t.Errorf("Run() kind = %s, want %s", outcome.Kind, monitorFailed)
	}
}

func TestSignalMonitor_AlarmForceFail(t *testing.T) {
	client := newFakeClient()
	m, _ := BindSignalMap(12)
	var pushed []ErrorDetail
	mon := newSignalMonitor(client, m, m.OutboundCompleted, false, func(d ErrorDetail) {
		pushed = append(pushed, d)
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		client.setWord(m.ErrorCode, 7)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// failOnAlarm=true forces termination on the first alarm observed.
	outcome := mon.Run(ctx, true)
	if outcome.Kind != monitorAlarm {
		t.Errorf("Run() kind = %s, want %s", outcome.Kind, monitorAlarm)
	}
	if outcome.Error == nil || outcome.Error.Code != 7 {
		t.Errorf("Run() error = %v, want code 7", outcome.Error)
	}
	if len(pushed) != 1 {
		t.Errorf("onAlarm called %d times, want 1", len(pushed))
	}
}

func TestSignalMonitor_AlarmContinuesWhenNotForced(t *testing.T) {
	client := newFakeClient()
	m, _ := BindSignalMap(13)
	var pushed []ErrorDetail
	mon := newSignalMonitor(client, m, m.OutboundCompleted, false, func(d ErrorDetail) {
		pushed = append(pushed, d)
	})

	client.setWord(m.ErrorCode, 7)

	go func() {
		time.Sleep(150 * time.Millisecond)
		client.setWord(m.ErrorCode, 0)
		client.setBool(m.OutboundCompleted, true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// failOnAlarm=false and the strategy doesn't force fail: the monitor
	// reports the alarm once via onAlarm but keeps polling past it.
	outcome := mon.Run(ctx, false)
	if outcome.Kind != monitorCompleted {
		t.Errorf("Run() kind = %s, want %s", outcome.Kind, monitorCompleted)
	}
	if len(pushed) != 1 {
		t.Errorf("onAlarm called %d times, want 1 (at-most-once guarantee)", len(pushed))
	}
}

func TestSignalMonitor_CancelledWithoutTerminal(t *testing.T) {
	client := newFakeClient()
	m, _ := BindSignalMap(14)
	mon := newSignalMonitor(client, m, m.OutboundCompleted, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := mon.Run(ctx, false)
	if outcome.Kind != monitorNone {
		t.Errorf("Run() kind = %s, want %s", outcome.Kind, monitorNone)
	}
}
