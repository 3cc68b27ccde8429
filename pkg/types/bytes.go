// Package types holds small value types shared across the tuner: byte
// counts (self-test burst sizes, MBM deltas) and the MB/s bandwidth unit the
// DDR oracle and tuners speak in.
package types

import "fmt"

// Bytes is a uint64 wrapper representing a size in bytes.
type Bytes uint64

// Humanized returns a human-readable string with automatic unit.
func (b Bytes) Humanized() string {
	const unit = 1024
	v := float64(b)
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.2f TB", v/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", v/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", v/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", uint64(b))
	}
}

// MB returns the number of megabytes (1024-based) in b.
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }

// PerSecondMB converts a byte count measured over dt seconds into MB/s.
func (b Bytes) PerSecondMB(dt float64) MBPerSec {
	if dt <= 0 {
		return 0
	}
	return MBPerSec(b.MB() / dt)
}

// MBPerSec is aggregate memory bandwidth in megabytes per second, the unit
// every DDR bandwidth oracle and both tuners operate in.
type MBPerSec float64

// Headroom returns target-bw, positive when there is slack to spend.
func (bw MBPerSec) Headroom(target MBPerSec) float64 {
	return float64(target - bw)
}
