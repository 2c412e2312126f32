package plc

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// addressPattern parses DB{n}.DBX{byte}.{bit} / DB{n}.DBW{byte} / DB{n}.DBD{byte}.
var addressPattern = regexp.MustCompile(`^DB(\d+)\.DB([XWD])(\d+)(?:\.(\d+))?$`)

// S7Stub is a minimal S7-shaped binary client behind the same Client
// interface. It does not speak the real ISO-on-TCP/S7comm wire protocol;
// it backs every data block with an in-process byte buffer addressed the
// same way a real S7 PDU would be, so swapping in a genuine S7 driver
// later only means a new implementation of Client — callers never change.
type S7Stub struct {
	cfg Config

	mu        sync.Mutex
	connected bool
	blocks    map[int][]byte // DB number -> byte buffer
	blockSize int
}

// NewS7Stub creates an S7-shaped stub client. blockSize bounds each data
// block's byte buffer; 256 is ample for the signal map's offsets.
func NewS7Stub(cfg Config) *S7Stub {
	return &S7Stub{cfg: cfg, blocks: make(map[int][]byte), blockSize: 256}
}

func (s *S7Stub) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *S7Stub) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *S7Stub) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *S7Stub) IsLinkEstablished(ctx context.Context) (bool, error) {
	return s.ReadBool(ctx, linkAddress)
}

func (s *S7Stub) IsDeviceReady(ctx context.Context) (bool, error) {
	return s.ReadBool(ctx, deviceReadyAddress)
}

// parsed holds a resolved DB address; named registers like SoftwareConnected
// and DeviceReady are mapped to fixed byte offsets in data block 0.
type parsed struct {
	db   int
	kind byte // 'X', 'W', 'D'
	byt  int
	bit  int
}

func resolveStubAddress(address string) (parsed, bool) {
	switch address {
	case linkAddress:
		return parsed{db: 0, kind: 'X', byt: 0, bit: 0}, true
	case deviceReadyAddress:
		return parsed{db: 0, kind: 'X', byt: 0, bit: 1}, true
	}

	m := addressPattern.FindStringSubmatch(address)
	if m == nil {
		return parsed{}, false
	}
	db, _ := strconv.Atoi(m[1])
	byt, _ := strconv.Atoi(m[3])
	bit := 0
	if m[4] != "" {
		bit, _ = strconv.Atoi(m[4])
	}
	return parsed{db: db, kind: m[2][0], byt: byt, bit: bit}, true
}

func (s *S7Stub) block(db int) []byte {
	b, ok := s.blocks[db]
	if !ok {
		b = make([]byte, s.blockSize)
		s.blocks[db] = b
	}
	return b
}

func (s *S7Stub) ReadBool(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'X' {
		return false, invalidAddress(address)
	}
	b := s.block(p.db)
	return b[p.byt]&(1<<uint(p.bit)) != 0, nil
}

func (s *S7Stub) ReadWord(ctx context.Context, address string) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'W' {
		return 0, invalidAddress(address)
	}
	b := s.block(p.db)
	return binary.BigEndian.Uint16(b[p.byt:]), nil
}

func (s *S7Stub) ReadDWord(ctx context.Context, address string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'D' {
		return 0, invalidAddress(address)
	}
	b := s.block(p.db)
	return binary.BigEndian.Uint32(b[p.byt:]), nil
}

func (s *S7Stub) ReadString(ctx context.Context, address string, length int) (string, error) {
	w, err := s.ReadWord(ctx, address)
	if err != nil {
		return "", err
	}
	if w == 0 {
		return "", nil
	}
	return fmt.Sprintf("%c", rune(w)), nil
}

func (s *S7Stub) WriteBool(ctx context.Context, address string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'X' {
		return invalidAddress(address)
	}
	b := s.block(p.db)
	mask := byte(1 << uint(p.bit))
	if value {
		b[p.byt] |= mask
	} else {
		b[p.byt] &^= mask
	}
	return nil
}

func (s *S7Stub) WriteWord(ctx context.Context, address string, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'W' {
		return invalidAddress(address)
	}
	b := s.block(p.db)
	binary.BigEndian.PutUint16(b[p.byt:], value)
	return nil
}

func (s *S7Stub) WriteDWord(ctx context.Context, address string, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := resolveStubAddress(address)
	if !ok || p.kind != 'D' {
		return invalidAddress(address)
	}
	b := s.block(p.db)
	binary.BigEndian.PutUint32(b[p.byt:], value)
	return nil
}

func (s *S7Stub) WriteString(ctx context.Context, address string, value string) error {
	var w uint16
	if len(value) > 0 {
		w = uint16(value[0])
	}
	return s.WriteWord(ctx, address, w)
}
