package ddrbw

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zedulotech/dpftune/pkg/errs"
	"github.com/zedulotech/dpftune/pkg/types"
)

// ResctrlRoot is the standard mount point of the Linux resctrl filesystem,
// the kernel's RDT/MBM interface.
const ResctrlRoot = "/sys/fs/resctrl"

// RDTMBMSource reads aggregate local-memory bandwidth from an OS-exposed
// RDT/MBM monitoring group (spec §4.C source 1, highest priority).
type RDTMBMSource struct {
	root     string
	prevByte uint64
	seeded   bool
}

// Supported reports whether the resctrl MBM monitoring facility is present.
func Supported(root string) bool {
	_, err := os.Stat(filepath.Join(root, "mon_data"))
	return err == nil
}

// NewRDTMBMSource opens the root monitoring group under root (pass
// ResctrlRoot in production).
func NewRDTMBMSource(root string) (*RDTMBMSource, error) {
	if !Supported(root) {
		return nil, errs.New(errs.NotAvailable, "resctrl MBM monitoring not present under %s", root)
	}
	return &RDTMBMSource{root: root}, nil
}

// Sample reads the current cumulative local-bandwidth byte counter across
// every mon_L3_* domain and converts the delta over dt into MB/s.
func (s *RDTMBMSource) Sample(dt time.Duration) (types.MBPerSec, error) {
	total, err := s.readTotalBytes()
	if err != nil {
		return 0, err
	}
	if !s.seeded {
		s.prevByte = total
		s.seeded = true
		return 0, nil
	}
	delta := uint64(0)
	if total >= s.prevByte {
		delta = total - s.prevByte
	}
	s.prevByte = total
	return types.Bytes(delta).PerSecondMB(dt.Seconds()), nil
}

func (s *RDTMBMSource) readTotalBytes() (uint64, error) {
	base := filepath.Join(s.root, "mon_data")
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, fmt.Errorf("ddrbw: read %s: %w", base, err)
	}
	var total uint64
	found := false
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "mon_L3_") {
			continue
		}
		path := filepath.Join(base, e.Name(), "mbm_local_bytes")
		v, err := readUintFile(path)
		if err != nil {
			continue
		}
		total += v
		found = true
	}
	if !found {
		return 0, fmt.Errorf("ddrbw: no mbm_local_bytes domains under %s", base)
	}
	return total, nil
}

// Close is a no-op; resctrl is plain filesystem access with no handle.
func (s *RDTMBMSource) Close() error { return nil }

// Reset clears the seeded baseline, matching rdt_mbm_reset() in the
// collaborator contract (spec §6), called on shutdown.
func (s *RDTMBMSource) Reset() { s.seeded = false }

func readUintFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("ddrbw: empty file %s", path)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ddrbw: parse %s: %w", path, err)
	}
	return v, nil
}
