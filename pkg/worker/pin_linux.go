//go:build linux

package worker

import "golang.org/x/sys/unix"

// pinToCore binds the calling OS thread to coreID. Callers must have
// already called runtime.LockOSThread so the binding sticks to this
// goroutine (spec §4.D "pin to core_id").
func pinToCore(coreID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	return unix.SchedSetaffinity(0, &set)
}
