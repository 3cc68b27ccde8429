// Package topology resolves which logical CPUs are Atom efficiency cores
// (spec §4, component the original calls core discovery) and the platform's
// theoretical DDR bandwidth, both needed before the tuner can pick a
// default --core range or a DDR bandwidth target.
package topology

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/zedulotech/dpftune/pkg/errs"
)

// EfficientCoresPath is the sysfs cpumask listing Atom E-core logical CPUs
// on hybrid Intel platforms.
const EfficientCoresPath = "/sys/devices/cpu_atom/cpus"

// EfficientCores returns the sorted logical CPU IDs belonging to the Atom
// efficiency-core cluster. It first tries the hybrid-platform cpumask file,
// then falls back to counting cpu.Info() entries whose model name suggests
// an Atom/E-core part.
func EfficientCores() ([]int, error) {
	if cores, err := readCPUList(EfficientCoresPath); err == nil {
		return cores, nil
	}

	infos, err := cpu.Info()
	if err != nil {
		return nil, errs.WithStack(errs.NotAvailable, err)
	}
	var cores []int
	for _, info := range infos {
		if isAtomModel(info.ModelName) {
			cores = append(cores, int(info.CPU))
		}
	}
	if len(cores) == 0 {
		return nil, errs.New(errs.NotAvailable, "no Atom efficiency cores detected")
	}
	sort.Ints(cores)
	return cores, nil
}

func isAtomModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "atom") || strings.Contains(m, "e-core")
}

// readCPUList parses a Linux cpumask list file such as "0-3,8,10-11".
func readCPUList(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return nil, errs.New(errs.NotAvailable, "%s is empty", path)
	}
	return parseCPUList(sc.Text())
}

func parseCPUList(text string) ([]int, error) {
	var cores []int
	for _, field := range strings.Split(strings.TrimSpace(text), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if dash := strings.IndexByte(field, '-'); dash >= 0 {
			lo, err := strconv.Atoi(field[:dash])
			if err != nil {
				return nil, errs.New(errs.ConfigurationError, "bad cpu range %q", field)
			}
			hi, err := strconv.Atoi(field[dash+1:])
			if err != nil {
				return nil, errs.New(errs.ConfigurationError, "bad cpu range %q", field)
			}
			for c := lo; c <= hi; c++ {
				cores = append(cores, c)
			}
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, errs.New(errs.ConfigurationError, "bad cpu id %q", field)
		}
		cores = append(cores, v)
	}
	if len(cores) == 0 {
		return nil, errs.New(errs.NotAvailable, "cpu list %q has no entries", text)
	}
	sort.Ints(cores)
	return cores, nil
}
