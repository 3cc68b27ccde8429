//go:build linux

package ddrbw

import "golang.org/x/sys/unix"

// pinToCore binds the calling OS thread to coreID. Callers must have
// already called runtime.LockOSThread so the binding sticks (mirrors
// pkg/worker's pinning of each core-worker goroutine).
func pinToCore(coreID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	return unix.SchedSetaffinity(0, &set)
}
