//go:build linux

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zedulotech/dpftune/pkg/config"
	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/ddrbw"
	"github.com/zedulotech/dpftune/pkg/errs"
	"github.com/zedulotech/dpftune/pkg/logging"
	"github.com/zedulotech/dpftune/pkg/metrics"
	"github.com/zedulotech/dpftune/pkg/msr"
	"github.com/zedulotech/dpftune/pkg/stats"
	"github.com/zedulotech/dpftune/pkg/topology"
	"github.com/zedulotech/dpftune/pkg/tuner"
	"github.com/zedulotech/dpftune/pkg/worker"
)

func main() {
	f := config.DefaultFlags()
	var metricsAddr string

	root := &cobra.Command{
		Use:   "dpftune",
		Short: "Dynamic hardware prefetcher tuner for Atom E-core modules",
		Long: `dpftune watches aggregate memory bandwidth and IPC on Atom E-core
modules and steers each module's hardware-prefetcher MSR toward the
configured DDR bandwidth target, either by hill-climbing a fixed level
table or by running a UCB1 bandit over the same table.

* GitHub: https://github.com/zedulotech/dpftune

Examples:
  dpftune --core 8-11 --ddrbw-set 20000 --alg 0
  dpftune --core 8-11 --ddrbw-auto 0.7 --alg 2 --aggr 1.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Past this point errors are runtime failures, not usage
			// mistakes; stop cobra from printing the usage block for them
			// (spec §6: usage errors exit 2, runtime failures exit 1).
			cmd.SilenceUsage = true
			f.DDRBWSet = cmd.Flags().Changed("ddrbw-set")
			return run(cmd.Context(), f, metricsAddr)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&f.Core, "core", "c", "", "core range \"a\" or \"a-b\" (default: auto-detect Atom E-cores)")
	flags.Float64VarP(&f.DDRBWAutoShare, "ddrbw-auto", "d", f.DDRBWAutoShare, "utilization factor applied to the DMI theoretical bandwidth, in (0,1]")
	flags.BoolVarP(&f.DDRBWTest, "ddrbw-test", "t", false, "measure peak bandwidth via a self-test burst instead of using DMI")
	flags.IntVarP(&f.DDRBWSetValue, "ddrbw-set", "D", 0, "use this bandwidth target directly, in MB/s")
	flags.Float64VarP(&f.Interval, "intervall", "i", f.Interval, "tick interval in seconds, clamped to [0.0001, 60]")
	flags.IntVarP(&f.Alg, "alg", "A", f.Alg, "tuning algorithm: 0/1 = basic variants, 2 = MAB")
	flags.Float64VarP(&f.Aggressiveness, "aggr", "a", f.Aggressiveness, "aggressiveness, clamped to [0.1, 5.0]")
	flags.StringVarP(&f.Weight, "weight", "w", "", "CSV of per-core priorities, each 0..99; short lists padded with 50")
	flags.IntVarP(&f.LogLevel, "log", "l", f.LogLevel, "log level, 1 (quietest) to 5 (verbose)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		// root.SilenceUsage is only flipped on once RunE starts, so an
		// error reaching here with it still false means cobra never got
		// past flag parsing: a usage error (spec §6 exit code 2), as
		// opposed to a runtime failure surfaced by run() (exit code 1).
		if root.SilenceUsage {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, f config.Flags, metricsAddr string) error {
	logger := logging.New(logging.Level(f.LogLevel))

	coreFirst, coreLast, err := resolveCoreRange(f.Core)
	if err != nil {
		return err
	}

	theoreticalBW := topology.TheoreticalBandwidthMBs()
	target, err := ddrbw.ResolveTarget(config.DDRBWTargetInputs(f, theoreticalBW, coreFirst))
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(f, coreFirst, coreLast, target)
	if err != nil {
		return err
	}
	shared := corestate.NewShared(cfg)

	gw := msr.LinuxGateway{}
	oracle, sourceName := selectOracle(gw, coreFirst)
	defer func() {
		if oracle != nil {
			_ = oracle.Close()
		}
	}()

	t := tuner.New(cfg.TuneAlg, cfg.Aggressiveness)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics", "http server exited", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	acc := stats.New()
	pool := worker.New(shared, gw, t, oracle, clock.New(), logger)
	pool.Metrics = m
	pool.Stats = acc

	fmt.Printf(_console, coreFirst, coreLast, cfg.TuneAlg, sourceName, float64(cfg.DDRBWTarget), cfg.TickInterval, time.Now().Format("2006-01-02 15:04:05"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := pool.Run(ctx)

	summary := acc.Summarize()
	fmt.Println()
	fmt.Printf("dpftune shut down after %d ticks:\n", summary.Ticks)
	fmt.Printf("- avg bandwidth: %.1f MB/s\n", float64(summary.AvgBandwidth))
	fmt.Printf("- avg ipc:       %.3f\n", summary.AvgIPC)
	fmt.Printf("- dirty writes:  %d\n", summary.DirtyWrites)
	fmt.Println()

	return runErr
}

func resolveCoreRange(core string) (first, last int, err error) {
	if core != "" {
		return config.ParseCoreRange(core)
	}
	cores, err := topology.EfficientCores()
	if err != nil {
		return 0, 0, errs.WithStack(errs.ConfigurationError, err)
	}
	if len(cores) == 0 {
		return 0, 0, errs.New(errs.ConfigurationError, "no Atom E-cores detected; pass --core explicitly")
	}
	first, last = cores[0], cores[0]
	for _, c := range cores[1:] {
		if c < first {
			first = c
		}
		if c > last {
			last = c
		}
	}
	return first, last, nil
}

// selectOracle picks the highest-priority available bandwidth source (spec
// §4.C): RDT/MBM first, the DDR PMU uncore counter as fallback. Either is
// wrapped in the reuse-last-value/disable-on-persistent-failure policy.
func selectOracle(gw msr.Gateway, coreFirst int) (*ddrbw.Cached, string) {
	if ddrbw.Supported(ddrbw.ResctrlRoot) {
		if src, err := ddrbw.NewRDTMBMSource(ddrbw.ResctrlRoot); err == nil {
			return ddrbw.NewCached(src), "rdt-mbm"
		}
	}
	if src, err := ddrbw.NewDDRPMUSource(gw, coreFirst); err == nil {
		return ddrbw.NewCached(src), "ddr-pmu"
	}
	return nil, "none"
}

const _console = `dpftune - Dynamic Hardware Prefetcher Tuner

* GitHub: https://github.com/zedulotech/dpftune

       Cores: %d-%d
       Algorithm: %v
       Bandwidth source: %s
       Bandwidth target: %.0f MB/s
       Tick interval: %.4fs

dpftune run started at %s:

`
