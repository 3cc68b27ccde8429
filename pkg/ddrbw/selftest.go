package ddrbw

import (
	"runtime"
	"time"

	"github.com/zedulotech/dpftune/pkg/types"
)

// SelfTestBufBytes is the buffer size streamed through during the burst
// (spec §4.C source 3): large enough to exceed typical LLC size so the
// measurement reflects DRAM, not cache, bandwidth.
const SelfTestBufBytes = 256 * 1024 * 1024

// SelfTestBurstDuration bounds the one-off synthetic read/write burst.
const SelfTestBurstDuration = 200 * time.Millisecond

// MeasurePeak runs a short streaming read/write burst and returns the
// achieved bandwidth in MB/s. It is run once, at start-up, to derive
// ddr_bw_target — never per tick (spec §4.C). It does not pin to any core;
// it exists as ResolveTarget's fallback default for callers with no core to
// pin to. Real runs reach the burst through MeasurePeakOnCore instead, so
// the measurement matches core_first as spec'd.
func MeasurePeak() types.MBPerSec {
	return measureBurst(SelfTestBufBytes, SelfTestBurstDuration)
}

// MeasurePeakOnCore pins the calling goroutine's OS thread to coreID before
// running the burst (spec §4.C, "peak measured on core_first"). A pinning
// failure is not fatal: the burst still runs and its reading is still
// usable, just noisier, so the error is swallowed here rather than
// propagated through ResolveTarget's MeasurePeak hook.
func MeasurePeakOnCore(coreID int) types.MBPerSec {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	_ = pinToCore(coreID)
	return measureBurst(SelfTestBufBytes, SelfTestBurstDuration)
}

func measureBurst(bufBytes int, duration time.Duration) types.MBPerSec {
	buf := make([]byte, bufBytes)
	var sink byte
	start := time.Now()
	var bytesMoved uint64
	for time.Since(start) < duration {
		for i := range buf {
			buf[i] = byte(i)
		}
		for _, b := range buf {
			sink ^= b
		}
		bytesMoved += uint64(2 * len(buf)) // one write pass, one read pass
	}
	elapsed := time.Since(start).Seconds()
	_ = sink // defeat dead-store elimination of the read pass
	return types.Bytes(bytesMoved).PerSecondMB(elapsed)
}
