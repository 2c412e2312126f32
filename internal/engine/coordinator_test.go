package engine

import (
	"context"
	"testing"
	"time"
)

func TestCoordinator_SubmitAndComplete(t *testing.T) {
	coord := NewCoordinator()
	client := newFakeClient()

	err := coord.RegisterDevice("dev-1", client, DeviceOptions{
		CommandTimeout:   2 * time.Second,
		RecoveryInterval: 50 * time.Millisecond,
		RecoveryMode:     RecoveryAuto,
	}, []SlotSpec{{SlotID: 1, DBNumber: 30}})
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop()

	sub, unsubscribe := coord.ObserveResults()
	defer unsubscribe()

	ok := coord.Submit(context.Background(), CommandEnvelope{
		CommandID:   "cmd-1",
		DeviceID:    "dev-1",
		CommandType: Outbound,
		Source:      &Location{Floor: 1, Rail: 1, Block: 1},
	})
	if !ok {
		t.Fatal("Submit() returned false")
	}

	m, _ := BindSignalMap(30)
	go func() {
		time.Sleep(200 * time.Millisecond)
		client.setBool(m.OutboundCompleted, true)
	}()

	select {
	case r := <-sub:
		if r.Status != StatusSuccess {
			t.Errorf("result status = %s, want Success", r.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
	}

	status := coord.Status()
	if status.Completed != 1 {
		t.Errorf("Status().Completed = %d, want 1", status.Completed)
	}
}

func TestCoordinator_RegisterAfterStartFails(t *testing.T) {
	coord := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop()

	err := coord.RegisterDevice("dev-1", newFakeClient(), DeviceOptions{}, nil)
	if err == nil {
		t.Error("RegisterDevice() after Start should error")
	}
}

func TestCoordinator_RemovePending(t *testing.T) {
	coord := NewCoordinator()
	env := CommandEnvelope{CommandID: "cmd-2", CommandType: Outbound, Source: &Location{Floor: 1}}
	coord.tracker.MarkPending(env)

	if err := coord.Remove("cmd-2"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	state, ok := coord.tracker.State("cmd-2")
	if !ok || state != TrackingRemoved {
		t.Errorf("state = %v, want Removed", state)
	}
}

func TestCoordinator_SubmitAfterStopReturnsFalse(t *testing.T) {
	coord := NewCoordinator()
	client := newFakeClient()
	if err := coord.RegisterDevice("dev-1", client, DeviceOptions{
		CommandTimeout:   2 * time.Second,
		RecoveryInterval: 50 * time.Millisecond,
		RecoveryMode:     RecoveryAuto,
	}, []SlotSpec{{SlotID: 1, DBNumber: 32}}); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	coord.Start(context.Background())
	coord.Stop()

	done := make(chan bool, 1)
	go func() {
		done <- coord.Submit(context.Background(), CommandEnvelope{
			CommandID:   "cmd-after-stop",
			DeviceID:    "dev-1",
			CommandType: Outbound,
			Source:      &Location{Floor: 1},
		})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("Submit() after Stop() = true, want false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit() after Stop() hung instead of observing the coordinator's own shutdown")
	}

	// The early-exit path in Submit returns false before the command is
	// ever handed to the tracker, so it stays entirely unknown rather
	// than moving through Pending -> Removed.
	if _, ok := coord.tracker.State("cmd-after-stop"); ok {
		t.Error("tracker should never have seen a command submitted after Stop()")
	}
}

func TestCoordinator_PauseResume(t *testing.T) {
	coord := NewCoordinator()
	if coord.IsPaused() {
		t.Fatal("new coordinator should not be paused")
	}
	coord.Pause()
	if !coord.IsPaused() {
		t.Error("IsPaused() = false after Pause()")
	}
	coord.Resume()
	if coord.IsPaused() {
		t.Error("IsPaused() = true after Resume()")
	}
}

func TestCoordinator_ReadCurrentLocation(t *testing.T) {
	coord := NewCoordinator()
	client := newFakeClient()
	if err := coord.RegisterDevice("dev-1", client, DeviceOptions{}, []SlotSpec{{SlotID: 1, DBNumber: 31}}); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	m, _ := BindSignalMap(31)
	client.setWord(m.PositionFloor, 3)
	client.setWord(m.PositionRail, 4)

	loc, err := coord.ReadCurrentLocation(context.Background(), "dev-1", 1)
	if err != nil {
		t.Fatalf("ReadCurrentLocation() error = %v", err)
	}
	if loc.Floor != 3 || loc.Rail != 4 {
		t.Errorf("ReadCurrentLocation() = %+v, want Floor=3 Rail=4", loc)
	}
}

func TestCoordinator_ReadCurrentLocation_UnknownDevice(t *testing.T) {
	coord := NewCoordinator()
	if _, err := coord.ReadCurrentLocation(context.Background(), "missing", 1); err == nil {
		t.Error("ReadCurrentLocation() for an unknown device should error")
	}
}

func TestCoordinator_Status_Empty(t *testing.T) {
	coord := NewCoordinator()
	status := coord.Status()
	if status.Queued != 0 || status.Processing != 0 || status.Completed != 0 {
		t.Errorf("Status() = %+v, want all zero", status)
	}
}
