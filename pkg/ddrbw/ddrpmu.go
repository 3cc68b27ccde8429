package ddrbw

import (
	"time"

	"github.com/zedulotech/dpftune/pkg/msr"
	"github.com/zedulotech/dpftune/pkg/numeric"
	"github.com/zedulotech/dpftune/pkg/types"
)

// Uncore memory-controller counter MSRs (integrated memory controller
// "DDR PMU", spec §4.C source 2). Each tick's delta, scaled by the fixed
// per-transfer byte width, estimates aggregate DRAM traffic.
const (
	AddrUncoreDRAMBytes uint32 = 0x0E8E
	// BytesPerCount is the cache-line width each uncore count represents.
	BytesPerCount uint64 = 64
)

// DDRPMUSource reads an integrated memory-controller uncore counter through
// the shared msr gateway, the fallback when RDT/MBM is unsupported.
type DDRPMUSource struct {
	handle    msr.Handle
	prevCount uint64
	seeded    bool
}

// NewDDRPMUSource opens an uncore counter handle via gw on coreID (the
// platform exposes the uncore counters through the same per-CPU MSR space).
func NewDDRPMUSource(gw msr.Gateway, coreID int) (*DDRPMUSource, error) {
	h, err := gw.Open(coreID)
	if err != nil {
		return nil, err
	}
	return &DDRPMUSource{handle: h}, nil
}

// Sample reads the uncore counter and converts its wrap-safe delta over dt
// into MB/s.
func (s *DDRPMUSource) Sample(dt time.Duration) (types.MBPerSec, error) {
	count, err := s.handle.Read(AddrUncoreDRAMBytes)
	if err != nil {
		return 0, err
	}
	if !s.seeded {
		s.prevCount = count
		s.seeded = true
		return 0, nil
	}
	delta := numeric.DeltaU64(count, s.prevCount)
	s.prevCount = count
	bytes := types.Bytes(delta * BytesPerCount)
	return bytes.PerSecondMB(dt.Seconds()), nil
}

// Close releases the underlying MSR handle.
func (s *DDRPMUSource) Close() error { return s.handle.Close() }
