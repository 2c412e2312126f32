package engine

import (
	"context"
	"sync"
)

// fakeClient is an in-memory plc.Client test double: every register lives
// in a map keyed by address, with link/ready state toggled directly by
// tests instead of simulated over a socket.
type fakeClient struct {
	mu sync.Mutex

	connected bool
	linked    bool
	ready     bool

	bools   map[string]bool
	words   map[string]uint16
	dwords  map[string]uint32
	strings map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connected: true,
		linked:    true,
		ready:     true,
		bools:     make(map[string]bool),
		words:     make(map[string]uint16),
		dwords:    make(map[string]uint32),
		strings:   make(map[string]string),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsLinkEstablished(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linked, nil
}

func (f *fakeClient) IsDeviceReady(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready, nil
}

func (f *fakeClient) ReadBool(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bools[address], nil
}

func (f *fakeClient) ReadWord(ctx context.Context, address string) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words[address], nil
}

func (f *fakeClient) ReadDWord(ctx context.Context, address string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dwords[address], nil
}

func (f *fakeClient) ReadString(ctx context.Context, address string, length int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strings[address], nil
}

func (f *fakeClient) WriteBool(ctx context.Context, address string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bools[address] = value
	return nil
}

func (f *fakeClient) WriteWord(ctx context.Context, address string, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[address] = value
	return nil
}

func (f *fakeClient) WriteDWord(ctx context.Context, address string, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dwords[address] = value
	return nil
}

func (f *fakeClient) WriteString(ctx context.Context, address string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[address] = value
	return nil
}

// setBool lets a test toggle a register directly, simulating the PLC
// program's side of the protocol.
func (f *fakeClient) setBool(address string, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bools[address] = value
}

func (f *fakeClient) setWord(address string, value uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[address] = value
}

func (f *fakeClient) getBool(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bools[address]
}

func (f *fakeClient) getWord(address string) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words[address]
}

func (f *fakeClient) setString(address string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[address] = value
}
