package topology

import (
	"encoding/binary"
	"os"
)

// dmiPath is the raw SMBIOS/DMI table binary exposed by the kernel, read to
// size and speed-rate memory-device (type 17) entries for a theoretical
// bandwidth estimate.
const dmiPath = "/sys/firmware/dmi/tables/DMI"

const (
	dmiTypeMemoryDevice = 17
	// dmiMemoryDeviceSpeedOffset is the byte offset of the "Speed" word
	// (MT/s) within a type-17 structure, per the SMBIOS specification.
	dmiMemoryDeviceSpeedOffset = 0x15
	// dmiMemoryDeviceWidthOffset is the byte offset of "Total Width" (bits).
	dmiMemoryDeviceWidthOffset = 0x08
)

// TheoreticalBandwidthMBs returns the platform's theoretical aggregate DDR
// bandwidth in MB/s, summed across every populated memory-device (type 17)
// DMI structure, or -1 if the DMI table is unreadable or carries no usable
// entries (spec §4.C: feeds ddr_bw_target when no --ddrbw flag is given).
func TheoreticalBandwidthMBs() int {
	raw, err := os.ReadFile(dmiPath)
	if err != nil {
		return -1
	}
	return theoreticalBandwidthFromDMI(raw)
}

// theoreticalBandwidthFromDMI sums speed × width over the populated type-17
// structures of a raw DMI table, returning -1 when none is usable.
func theoreticalBandwidthFromDMI(raw []byte) int {
	total := 0
	for _, rec := range splitDMIStructures(raw) {
		if len(rec) <= dmiMemoryDeviceSpeedOffset+1 || rec[0] != dmiTypeMemoryDevice {
			continue
		}
		speedMTs := int(binary.LittleEndian.Uint16(rec[dmiMemoryDeviceSpeedOffset : dmiMemoryDeviceSpeedOffset+2]))
		widthBits := int(binary.LittleEndian.Uint16(rec[dmiMemoryDeviceWidthOffset : dmiMemoryDeviceWidthOffset+2]))
		if speedMTs <= 0 || widthBits <= 0 {
			continue
		}
		// speedMTs is already expressed in mega-transfers/s, so
		// speedMTs * width-in-bytes gives decimal MB/s directly.
		total += speedMTs * (widthBits / 8)
	}
	if total <= 0 {
		return -1
	}
	return total
}

// splitDMIStructures walks the raw DMI table, returning each structure's
// formatted-section bytes (header + fixed fields, excluding the trailing
// unformed string-table region terminated by a double NUL).
func splitDMIStructures(raw []byte) [][]byte {
	var out [][]byte
	i := 0
	for i+4 <= len(raw) {
		length := int(raw[i+1])
		if length < 4 || i+length > len(raw) {
			break
		}
		out = append(out, raw[i:i+length])

		// Skip the string-table region: bytes after the formatted section up
		// to and including the terminating double NUL.
		j := i + length
		for j+1 < len(raw) && !(raw[j] == 0 && raw[j+1] == 0) {
			j++
		}
		i = j + 2
	}
	return out
}
