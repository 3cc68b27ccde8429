// Package msr is the sole place in this repository that touches privileged
// per-CPU registers: it opens /dev/cpu/<n>/msr and performs RDMSR/WRMSR
// equivalents via pread/pwrite at the MSR address used as file offset, the
// standard Linux msr driver ABI.
package msr

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/zedulotech/dpftune/pkg/errs"
)

// Prefetcher-MSR and fixed-counter control addresses (spec §4.A).
const (
	// AddrHWPrefetch is the per-module prefetcher control MSR.
	AddrHWPrefetch uint32 = 0x1A4
	// AddrFixedCtrCtrl enables the architectural fixed counters.
	AddrFixedCtrCtrl uint32 = 0x38D
	// AddrPerfGlobalCtrl gates PMC0-6 and the fixed counters together.
	AddrPerfGlobalCtrl uint32 = 0x38F
	// FixedCtrEnableAll sets "enable OS+usr for all three fixed counters".
	FixedCtrEnableAll uint64 = 0x333
	// GlobalCtrEnablePMC06Fixed enables PMC0-6 and the fixed counter block.
	GlobalCtrEnablePMC06Fixed uint64 = 0x70000007F

	// AddrEventSelBase is the first of the seven programmable event-select
	// MSRs (0x186..0x18C, spec §4.A).
	AddrEventSelBase uint32 = 0x186
	// NumEvents is the number of programmable events dPF configures.
	NumEvents = 7

	// AddrCounterBase is the first of the programmable counter MSRs dPF
	// reads back (0xC1..0xC7, spec §4.B).
	AddrCounterBase uint32 = 0xC1
	// AddrFixedInstrRetired and AddrFixedCycles are the architectural fixed
	// counters for instructions retired and unhalted core cycles.
	AddrFixedInstrRetired uint32 = 0x309
	AddrFixedCycles       uint32 = 0x30A
)

// Handle is a channel to a single logical CPU's MSR address space, owned
// exclusively by the worker goroutine pinned to that core.
type Handle interface {
	CoreID() int
	Read(addr uint32) (uint64, error)
	Write(addr uint32, value uint64) error
	EnableFixedCounters() error
	ConfigureProgrammableEvents(events [NumEvents]uint64) error
	Close() error
}

// Gateway opens per-CPU MSR handles.
type Gateway interface {
	Open(coreID int) (Handle, error)
}

// LinuxGateway opens /dev/cpu/<n>/msr, the Linux msr driver's device node.
type LinuxGateway struct{}

// Open acquires a handle to coreID's MSR device file.
func (LinuxGateway) Open(coreID int) (Handle, error) {
	path := fmt.Sprintf("/dev/cpu/%d/msr", coreID)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		switch err {
		case unix.EACCES, unix.EPERM:
			return nil, errs.WithStack(errs.PermissionDenied, fmt.Errorf("open %s: %w", path, err))
		case unix.ENOENT, unix.ENODEV:
			return nil, errs.WithStack(errs.NotAvailable, fmt.Errorf("open %s: %w", path, err))
		default:
			return nil, errs.WithStack(errs.PermissionDenied, fmt.Errorf("open %s: %w", path, err))
		}
	}
	return &linuxHandle{coreID: coreID, fd: fd}, nil
}

type linuxHandle struct {
	coreID int
	fd     int
}

func (h *linuxHandle) CoreID() int { return h.coreID }

func (h *linuxHandle) Read(addr uint32) (uint64, error) {
	buf := make([]byte, 8)
	n, err := unix.Pread(h.fd, buf, int64(addr))
	if err != nil {
		return 0, fmt.Errorf("msr: read core %d addr %#x: %w", h.coreID, addr, err)
	}
	if n != 8 {
		return 0, fmt.Errorf("msr: short read on core %d addr %#x: got %d bytes", h.coreID, addr, n)
	}
	return leU64(buf), nil
}

func (h *linuxHandle) Write(addr uint32, value uint64) error {
	buf := make([]byte, 8)
	putLeU64(buf, value)
	n, err := unix.Pwrite(h.fd, buf, int64(addr))
	if err != nil {
		return fmt.Errorf("msr: write core %d addr %#x: %w", h.coreID, addr, err)
	}
	if n != 8 {
		return fmt.Errorf("msr: short write on core %d addr %#x: wrote %d bytes", h.coreID, addr, n)
	}
	return nil
}

func (h *linuxHandle) EnableFixedCounters() error {
	if err := h.Write(AddrFixedCtrCtrl, FixedCtrEnableAll); err != nil {
		return err
	}
	return h.Write(AddrPerfGlobalCtrl, GlobalCtrEnablePMC06Fixed)
}

func (h *linuxHandle) ConfigureProgrammableEvents(events [NumEvents]uint64) error {
	for i, ev := range events {
		if err := h.Write(AddrEventSelBase+uint32(i), ev); err != nil {
			return fmt.Errorf("msr: configure event %d: %w", i, err)
		}
	}
	return nil
}

func (h *linuxHandle) Close() error {
	return unix.Close(h.fd)
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
