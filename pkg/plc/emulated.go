package plc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shuttlegate/pkg/apperror"
)

const (
	linkAddress        = "SoftwareConnected"
	deviceReadyAddress = "DeviceReady"
)

// EmulatedClient speaks a line-oriented text protocol over TCP:
//
//	READ <dev> <addr>   -> OK <payload>  |  ERR <reason>
//	WRITE <dev> <addr> <val> -> OK        |  ERR <reason>
//
// A single mutex serializes every call on the connection, matching the
// real S7 driver's one-connection-one-in-flight-request contract.
type EmulatedClient struct {
	cfg       Config
	deviceTag string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	connected atomic.Bool
}

// NewEmulatedClient creates an emulated PLC client for the given device tag.
// deviceTag is the <dev> token sent on every READ/WRITE line, letting one
// emulated server multiplex several logical devices.
func NewEmulatedClient(cfg Config, deviceTag string) *EmulatedClient {
	return &EmulatedClient{cfg: cfg, deviceTag: deviceTag}
}

func (c *EmulatedClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := time.Duration(c.cfg.ConnectTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return connectionLost(err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected.Store(true)
	return nil
}

func (c *EmulatedClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.connected.Store(false)
	if err != nil {
		return connectionLost(err)
	}
	return nil
}

func (c *EmulatedClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *EmulatedClient) IsLinkEstablished(ctx context.Context) (bool, error) {
	return c.ReadBool(ctx, linkAddress)
}

func (c *EmulatedClient) IsDeviceReady(ctx context.Context) (bool, error) {
	return c.ReadBool(ctx, deviceReadyAddress)
}

func (c *EmulatedClient) ReadBool(ctx context.Context, address string) (bool, error) {
	payload, err := c.readRaw(ctx, address)
	if err != nil {
		return false, err
	}
	return payload == "1" || strings.EqualFold(payload, "true"), nil
}

func (c *EmulatedClient) ReadWord(ctx context.Context, address string) (uint16, error) {
	payload, err := c.readRaw(ctx, address)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseUint(payload, 10, 16)
	if perr != nil {
		return 0, invalidAddress(address)
	}
	return uint16(v), nil
}

func (c *EmulatedClient) ReadDWord(ctx context.Context, address string) (uint32, error) {
	payload, err := c.readRaw(ctx, address)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseUint(payload, 10, 32)
	if perr != nil {
		return 0, invalidAddress(address)
	}
	return uint32(v), nil
}

func (c *EmulatedClient) ReadString(ctx context.Context, address string, length int) (string, error) {
	payload, err := c.readRaw(ctx, address)
	if err != nil {
		return "", err
	}
	if length > 0 && len(payload) > length {
		payload = payload[:length]
	}
	return payload, nil
}

func (c *EmulatedClient) WriteBool(ctx context.Context, address string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	return c.writeRaw(ctx, address, v)
}

func (c *EmulatedClient) WriteWord(ctx context.Context, address string, value uint16) error {
	return c.writeRaw(ctx, address, strconv.FormatUint(uint64(value), 10))
}

func (c *EmulatedClient) WriteDWord(ctx context.Context, address string, value uint32) error {
	return c.writeRaw(ctx, address, strconv.FormatUint(uint64(value), 10))
}

func (c *EmulatedClient) WriteString(ctx context.Context, address string, value string) error {
	return c.writeRaw(ctx, address, value)
}

func (c *EmulatedClient) readRaw(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", invalidAddress(address)
	}
	line := fmt.Sprintf("READ %s %s\n", c.deviceTag, address)
	return c.roundTrip(ctx, line, address)
}

func (c *EmulatedClient) writeRaw(ctx context.Context, address, value string) error {
	if address == "" {
		return invalidAddress(address)
	}
	line := fmt.Sprintf("WRITE %s %s %s\n", c.deviceTag, address, value)
	_, err := c.roundTrip(ctx, line, address)
	return err
}

// roundTrip sends one line and reads one reply, holding the connection
// mutex for the full exchange so monitor and worker goroutines never
// interleave bytes on the wire.
func (c *EmulatedClient) roundTrip(ctx context.Context, line, address string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", apperror.ErrConnectionLost
	}

	timeout := time.Duration(c.cfg.OperationTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.connected.Store(false)
		return "", connectionLost(err)
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return "", opTimeout(address)
		}
		c.connected.Store(false)
		return "", connectionLost(err)
	}

	reply = strings.TrimSpace(reply)
	switch {
	case strings.HasPrefix(reply, "OK"):
		return strings.TrimSpace(strings.TrimPrefix(reply, "OK")), nil
	case strings.HasPrefix(reply, "ERR"):
		reason := strings.TrimSpace(strings.TrimPrefix(reply, "ERR"))
		return "", apperror.New(apperror.CodeCommandFailed, reason)
	default:
		return "", invalidAddress(address)
	}
}
