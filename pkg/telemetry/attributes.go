package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys for gateway spans.
const (
	AttrDeviceID    = "gateway.device_id"
	AttrSlotID      = "gateway.slot_id"
	AttrCommandID   = "gateway.command_id"
	AttrCommandType = "gateway.command_type"

	AttrDirection   = "gateway.direction"
	AttrTerminalPos = "gateway.terminal_position"

	AttrClassification = "gateway.signal_classification"

	AttrValidatorStatus = "gateway.validator_status"
)

// CommandAttributes returns the attributes identifying a single command.
func CommandAttributes(deviceID string, slotID int, commandID, commandType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDeviceID, deviceID),
		attribute.Int(AttrSlotID, slotID),
		attribute.String(AttrCommandID, commandID),
		attribute.String(AttrCommandType, commandType),
	}
}

// DirectionAttributes returns the attributes describing a shuttle movement.
func DirectionAttributes(direction string, terminalPosition int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDirection, direction),
		attribute.Int(AttrTerminalPos, terminalPosition),
	}
}

// SignalPollAttributes returns the attributes describing one signal-monitor poll.
func SignalPollAttributes(deviceID, classification string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDeviceID, deviceID),
		attribute.String(AttrClassification, classification),
	}
}

// ValidatorAttributes returns the attributes describing a barcode-validation call.
func ValidatorAttributes(status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrValidatorStatus, status),
	}
}
