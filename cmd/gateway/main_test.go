package main

import (
	"testing"

	"shuttlegate/internal/engine"
	"shuttlegate/pkg/config"
	"shuttlegate/pkg/plc"
)

func TestRecoveryMode(t *testing.T) {
	tests := []struct {
		in   string
		want engine.RecoveryMode
	}{
		{"auto", engine.RecoveryAuto},
		{"manual", engine.RecoveryManual},
		{"", engine.RecoveryAuto},
		{"bogus", engine.RecoveryAuto},
	}

	for _, tt := range tests {
		if got := recoveryMode(tt.in); got != tt.want {
			t.Errorf("recoveryMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCommandTypes(t *testing.T) {
	got := commandTypes([]string{"Inbound", "Transfer"})
	want := []engine.CommandType{engine.Inbound, engine.Transfer}
	if len(got) != len(want) {
		t.Fatalf("commandTypes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commandTypes()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := commandTypes(nil); got != nil {
		t.Errorf("commandTypes(nil) = %v, want nil (all capabilities)", got)
	}
}

func TestBuildPLCClient(t *testing.T) {
	tcp := buildPLCClient(config.DeviceConfig{DeviceID: "shuttle-1", Transport: "tcp", Address: "127.0.0.1:5000"})
	if _, ok := tcp.(*plc.EmulatedClient); !ok {
		t.Errorf("buildPLCClient(transport=tcp) = %T, want *plc.EmulatedClient", tcp)
	}

	s7 := buildPLCClient(config.DeviceConfig{DeviceID: "shuttle-2", Transport: "s7", Address: "127.0.0.1:102"})
	if _, ok := s7.(*plc.S7Stub); !ok {
		t.Errorf("buildPLCClient(transport=s7) = %T, want *plc.S7Stub", s7)
	}

	fallback := buildPLCClient(config.DeviceConfig{DeviceID: "shuttle-3", Transport: "unknown"})
	if _, ok := fallback.(*plc.EmulatedClient); !ok {
		t.Errorf("buildPLCClient(unknown transport) = %T, want *plc.EmulatedClient fallback", fallback)
	}
}

func TestRegisterDevices(t *testing.T) {
	coord := engine.NewCoordinator()
	cfg := &config.Config{
		DeviceDefaults: config.DeviceDefaults{
			CommandTimeout:   0,
			RecoveryInterval: 0,
		},
		Devices: []config.DeviceConfig{
			{
				DeviceID:  "shuttle-1",
				Transport: "tcp",
				Address:   "127.0.0.1:5000",
				Slots: []config.SlotConfig{
					{SlotID: 1, DBNumber: 100, Capabilities: []string{"Inbound"}},
				},
			},
		},
	}

	if err := registerDevices(coord, cfg); err != nil {
		t.Fatalf("registerDevices() error = %v", err)
	}

	coord.Start(t.Context())
	defer coord.Stop()

	if err := registerDevices(coord, cfg); err == nil {
		t.Error("registerDevices() after Start should error")
	}
}

func TestBuildValidator_Disabled(t *testing.T) {
	cfg := &config.Config{BarcodeValidator: config.ValidatorConfig{Enabled: false}}

	v, err := buildValidator(cfg)
	if err != nil {
		t.Fatalf("buildValidator() error = %v", err)
	}
	if v != nil {
		t.Errorf("buildValidator() with validator disabled = %v, want nil", v)
	}
}
