// Command cxlsim drives the CXL Type-3 memory-expander simulator against a
// reference trace file: one request per line (see internal/trace), admitted
// at its pinned cycle if given or as soon as the root complex has room
// otherwise, run until the trace is exhausted and every admitted request has
// completed. Grounded on the teacher's cmd/ublk-mem/main.go (flag parsing,
// leveled logging setup, SIGUSR1 stack-dump handler, SIGINT/SIGTERM
// graceful shutdown: the cycle loop stops at the next cycle boundary).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	cxlsim "github.com/joonho3020/CXLSim"
	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/logging"
	"github.com/joonho3020/CXLSim/internal/trace"
)

func main() {
	var (
		tracePath     = flag.String("trace", "", "path to a reference trace file (required)")
		verbose       = flag.Bool("v", false, "verbose (debug-level) logging")
		lanes         = flag.Int("lanes", 0, "override pcie_lanes (0 keeps the default)")
		scheduler     = flag.String("scheduler", "", "override ndp_scheduler (in_order|out_of_order)")
		directOffload = flag.Bool("uop-direct-offload", false, "bypass the return PCIe path for retired uops")
		watchdogCyc   = flag.Uint64("watchdog", 1_000_000, "forward-progress watchdog window, in cycles (0 disables)")
		maxCycles     = flag.Uint64("max-cycles", 10_000_000, "hard cap on cycles run, as a safety backstop")
	)
	flag.Parse()

	if *tracePath == "" {
		fmt.Fprintln(os.Stderr, "cxlsim: -trace is required")
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := config.Default()
	if *lanes != 0 {
		cfg.PCIeLanes = *lanes
	}
	if *scheduler != "" {
		cfg.Scheduler = config.Scheduler(*scheduler)
	}
	cfg.UopDirectOffload = *directOffload

	f, err := os.Open(*tracePath)
	if err != nil {
		logger.Error("failed to open trace file", "path", *tracePath, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	sim, err := cxlsim.New(cfg, &cxlsim.Options{
		Logger:         loggerAdapter{logger},
		WatchdogPeriod: *watchdogCyc,
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		os.Exit(1)
	}

	var admitted, completed int
	sim.RegisterMemCallback(func(addr uint64, write bool, handle any) {
		completed++
		logger.Debug("mem request completed", "addr", fmt.Sprintf("0x%x", addr), "write", write)
	})
	sim.RegisterUopCallback(func(addr uint64, write bool, handle any) {
		completed++
		logger.Debug("uop completed", "addr", fmt.Sprintf("0x%x", addr))
	})

	logger.Info("starting simulation", "trace", *tracePath, "lanes", cfg.PCIeLanes, "scheduler", cfg.Scheduler)

	// SIGUSR1 dumps every goroutine's stack, for diagnosing a simulation
	// that appears to have stalled.
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END ===\n\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	scanner := trace.NewScanner(f)
	haveEntry := scanner.Scan()
	var pending *trace.Entry
	if haveEntry {
		e := scanner.Entry()
		pending = &e
	}

	var uniqueID uint64
	cycles := uint64(0)
runLoop:
	for cycles < *maxCycles {
		select {
		case <-stopCh:
			logger.Info("received shutdown signal, stopping early")
			break runLoop
		default:
		}

		for pending != nil && (!pending.HasCycle || pending.Cycle <= sim.Cycle()) {
			if !admitEntry(sim, *pending, &uniqueID) {
				break // back-pressure; retry next cycle
			}
			admitted++
			if haveEntry = scanner.Scan(); haveEntry {
				e := scanner.Entry()
				pending = &e
			} else {
				pending = nil
			}
		}

		if pending == nil && admitted == completed {
			break
		}

		if err := sim.RunACycle(); err != nil {
			logger.Error("simulation halted", "cycle", sim.Cycle(), "error", err)
			os.Exit(1)
		}
		cycles++
	}

	if scanner.Err() != nil {
		logger.Error("trace parse error", "error", scanner.Err())
		os.Exit(1)
	}
	if err := sim.Finalize(); err != nil {
		logger.Error("finalize failed", "error", err)
		os.Exit(1)
	}

	snap := sim.Stats()
	fmt.Printf("cycles: %d\n", sim.Cycle())
	fmt.Printf("admitted: %d completed: %d\n", admitted, completed)
	fmt.Printf("requests_admitted=%d requests_completed=%d\n", snap.RequestsAdmitted, snap.RequestsCompleted)
	fmt.Printf("cache_hits=%d cache_misses=%d\n", snap.CacheHits, snap.CacheMisses)
	fmt.Printf("dram_reads=%d dram_writes=%d mshr_merges=%d\n", snap.DRAMReads, snap.DRAMWrites, snap.MSHRMerges)
	fmt.Printf("uops_dispatched=%d uops_completed=%d\n", snap.UopsDispatched, snap.UopsCompleted)
	fmt.Printf("mean_latency_cycles=%.2f\n", snap.AvgLatencyCycles)
}

// admitEntry submits one trace entry to the simulator, returning false on
// back-pressure (the caller should retry the same entry next cycle).
func admitEntry(sim *cxlsim.Simulator, e trace.Entry, uniqueID *uint64) bool {
	if !e.IsUop {
		return sim.InsertMemRequest(e.Addr, e.Write, nil)
	}
	*uniqueID++
	return sim.InsertUopRequest(nil, 0, e.UopType, cxlsim.MemNone, e.Addr, *uniqueID, 1, nil)
}

// loggerAdapter satisfies cxlsim.Logger against internal/logging.Logger,
// which spells its leveled Printf-style methods Infof/Debugf rather than a
// bare Printf.
type loggerAdapter struct {
	l *logging.Logger
}

func (a loggerAdapter) Printf(format string, args ...any) { a.l.Infof(format, args...) }
func (a loggerAdapter) Debugf(format string, args ...any) { a.l.Debugf(format, args...) }
