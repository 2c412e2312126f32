// Package plc defines the gateway's contract with a PLC connection and
// provides two implementations: an emulated line-oriented TCP client used
// in development/testing, and a minimal S7-shaped binary client stub.
package plc

import (
	"context"
	"fmt"

	"shuttlegate/pkg/apperror"
)

// Client is the gateway's view of one physical PLC connection. A single
// connection is shared by every slot (data block) of the device it serves;
// implementations must serialize concurrent calls with one mutex per
// connection.
type Client interface {
	// Connect establishes the transport-level connection.
	Connect(ctx context.Context) error
	// Disconnect closes the transport-level connection.
	Disconnect(ctx context.Context) error
	// IsConnected reports whether the transport-level connection is open.
	IsConnected() bool
	// IsLinkEstablished reports the PLC program's SoftwareConnected flag.
	IsLinkEstablished(ctx context.Context) (bool, error)
	// IsDeviceReady reports the PLC program's DeviceReady flag.
	IsDeviceReady(ctx context.Context) (bool, error)

	ReadBool(ctx context.Context, address string) (bool, error)
	ReadWord(ctx context.Context, address string) (uint16, error)
	ReadDWord(ctx context.Context, address string) (uint32, error)
	ReadString(ctx context.Context, address string, length int) (string, error)

	WriteBool(ctx context.Context, address string, value bool) error
	WriteWord(ctx context.Context, address string, value uint16) error
	WriteDWord(ctx context.Context, address string, value uint32) error
	WriteString(ctx context.Context, address string, value string) error
}

// Config configures a PLC client.
type Config struct {
	Address          string
	ConnectTimeout   int // milliseconds
	OperationTimeout int // milliseconds
}

// invalidAddress builds a CodeInvalidAddress error for an unparsable or
// empty address.
func invalidAddress(address string) error {
	return apperror.NewWithField(apperror.CodeInvalidAddress,
		fmt.Sprintf("unparsable PLC address %q", address), "address")
}

func connectionLost(cause error) error {
	return apperror.Wrap(cause, apperror.CodeConnectionLost, "plc transport error")
}

func opTimeout(address string) error {
	return apperror.NewWithField(apperror.CodeTimeout,
		fmt.Sprintf("no response within operation timeout for %q", address), "address")
}
