package msr

import "sync"

// FakeGateway is an in-memory Gateway for tests and for the MSR_READ path of
// pkg/kernelproto's would-be driver: no privileged access, one map of
// registers per opened core.
type FakeGateway struct {
	mu    sync.Mutex
	cores map[int]*FakeHandle
}

// NewFakeGateway returns an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{cores: make(map[int]*FakeHandle)}
}

// Open returns (creating if needed) the FakeHandle for coreID.
func (g *FakeGateway) Open(coreID int) (Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.cores[coreID]
	if !ok {
		h = &FakeHandle{coreID: coreID, regs: make(map[uint32]uint64)}
		g.cores[coreID] = h
	}
	return h, nil
}

// Handle exposes the FakeHandle already opened for coreID, for assertions.
func (g *FakeGateway) Handle(coreID int) *FakeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cores[coreID]
}

// FakeHandle is an in-memory register file standing in for one logical CPU.
type FakeHandle struct {
	mu      sync.Mutex
	coreID  int
	regs    map[uint32]uint64
	closed  bool
	Events  [NumEvents]uint64
	FixedOn bool
}

func (h *FakeHandle) CoreID() int { return h.coreID }

func (h *FakeHandle) Read(addr uint32) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regs[addr], nil
}

func (h *FakeHandle) Write(addr uint32, value uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs[addr] = value
	return nil
}

func (h *FakeHandle) EnableFixedCounters() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.FixedOn = true
	return nil
}

func (h *FakeHandle) ConfigureProgrammableEvents(events [NumEvents]uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = events
	return nil
}

func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// SetCounter seeds a raw counter/register value, for tests driving
// pkg/pmu.Sampler without real hardware.
func (h *FakeHandle) SetCounter(addr uint32, value uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs[addr] = value
}
