package cxlsim

import (
	"github.com/joonho3020/CXLSim/internal/clock"
	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/dram"
	"github.com/joonho3020/CXLSim/internal/endpoint"
	"github.com/joonho3020/CXLSim/internal/mxp"
	"github.com/joonho3020/CXLSim/internal/packet"
	"github.com/joonho3020/CXLSim/internal/rc"
	"github.com/joonho3020/CXLSim/internal/stats"
	"github.com/joonho3020/CXLSim/internal/watchdog"
)

// Options configures a Simulator beyond its knob Config: an optional logger,
// observer, and forward-progress watchdog period. Grounded on the teacher's
// CreateAndServe(ctx, params, *Options) shape (Context/Logger/Observer,
// defaulted to no-ops when nil).
type Options struct {
	Logger         Logger
	Observer       Observer
	WatchdogPeriod uint64 // cycles; 0 disables the watchdog
}

// Simulator is the public shell around the root complex/memory expander
// pipeline: the driver-facing admit/pop API from core spec §6, wired to a
// multi-domain clock advancing the IO and CXLRAM clock domains at their
// configured ratio. Grounded on the teacher's Device (the public handle
// CreateAndServe returns) generalized from a kernel-backed block device to
// an in-process cycle-driven model.
type Simulator struct {
	cfg *config.Config
	log Logger
	obs Observer

	pools     *packet.Pools
	host      *rc.RootComplex
	dev       *mxp.MemoryExpander
	dramModel dram.Collaborator
	clk       *clock.MultiDomainClock

	stats *stats.Stats
	wd    *watchdog.Watchdog

	memCallback func(addr uint64, write bool, handle any)
	uopCallback func(addr uint64, write bool, handle any)

	// pendingCompletions holds a completion computed while draining for a
	// registered callback of the other kind (mem vs uop) when no callback
	// is registered for this one, so PopCompletion still surfaces it.
	pendingCompletions []*Completion

	uopIndex    map[uint64]*packet.UOp // unique id -> admitted uop, for source resolution
	uopRefcount map[uint64]int         // unique id -> count of not-yet-retired dependents
	uopObserved map[uint64]bool        // unique id -> driver has observed its completion

	totalDone    uint64 // cumulative mem-request completions ever produced, for watchdog progress detection
	totalUopDone uint64 // cumulative uop completions ever produced, for watchdog progress detection
}

// New validates cfg and wires a fresh Simulator: a linked root-complex/
// memory-expander pair backed by a dram.FixedLatencyModel and a
// multi-domain clock. The memory expander always owns its own uop scheduler
// (internal/mxp.New); cfg.UopDirectOffload only changes where a retired uop's
// completion is routed (internal/mxp.MemoryExpander.drainSchedDone).
func New(cfg *config.Config, opts *Options) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	physCap, err := config.DerivePhysCapacity(cfg.PCIeLanes)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	pools := packet.NewPools()
	dramModel := dram.NewFixedLatencyModel(cfg.RamulatorLatencyCycles, cfg.RamulatorCapacity)

	host := rc.New(cfg, pools, physCap)
	dev := mxp.New(cfg, pools, physCap, dramModel)
	endpoint.Link(host.Endpoint(), dev.Endpoint())

	s := &Simulator{
		cfg:         cfg,
		log:         opts.Logger,
		obs:         opts.Observer,
		pools:       pools,
		host:        host,
		dev:         dev,
		dramModel:   dramModel,
		clk:         clock.NewMultiDomainClock(cfg.ClockIO, cfg.RamulatorClockGHz),
		stats:       stats.New(),
		wd:          watchdog.New(opts.WatchdogPeriod),
		uopIndex:    make(map[uint64]*packet.UOp),
		uopRefcount: make(map[uint64]int),
		uopObserved: make(map[uint64]bool),
	}
	if s.obs == nil {
		s.obs = NoOpObserver{}
	}
	dev.OnLookup(func(addr uint64, hit bool) {
		if hit {
			s.stats.RecordCacheHit()
		} else {
			s.stats.RecordCacheMiss()
		}
		s.obs.ObserveCacheLookup(addr, hit)
	})
	dev.OnDRAMIssue(func(write bool) { s.stats.RecordDRAMIssue(write) })
	dev.OnMSHRMerge(func() { s.stats.RecordMSHRMerge() })
	dev.OnUopDispatch(func(*packet.UOp) { s.stats.RecordUopDispatch() })
	dev.OnUopComplete(func(*packet.UOp) { s.stats.RecordUopComplete() })
	return s, nil
}

// RegisterMemCallback registers fn to be invoked, every cycle a plain memory
// request retires, with its address, write flag, and opaque handle. Mirrors
// core spec §6's register_mem_callback. Once a mem callback is registered,
// RunACycle drains completed plain requests into it directly instead of
// leaving them for PopCompletion to poll.
func (s *Simulator) RegisterMemCallback(fn func(addr uint64, write bool, handle any)) {
	s.memCallback = fn
}

// RegisterUopCallback registers fn to be invoked, every cycle a uop retires,
// with its address, write flag (derived from MemStore), and opaque handle.
// Mirrors core spec §6's register_uop_callback. Applies uniformly whether
// the uop's completion reached the driver through the ordinary TX-VC
// response path or (cfg.UopDirectOffload) bypassed it entirely.
func (s *Simulator) RegisterUopCallback(fn func(addr uint64, write bool, handle any)) {
	s.uopCallback = fn
}

// InsertMemRequest admits a memory request into the pipeline, returning
// false if the root complex's admission queue is full (back-pressure, never
// an error value per core spec §7). Mirrors core spec §6's
// insert_mem_request driver entry point.
func (s *Simulator) InsertMemRequest(addr uint64, write bool, handle any) bool {
	if s.host.Full() {
		return false
	}
	req := s.pools.Requests.Acquire()
	req.Addr = addr
	req.Write = write
	req.Handle = handle
	req.AdmitCycle = s.clk.IOCycle()
	s.host.InsertRequest(req)
	s.stats.RecordAdmit(write)
	s.obs.ObserveAdmit(addr, write)
	return true
}

// Completion is a retired request handed back to the driver.
type Completion struct {
	Addr    uint64
	Write   bool
	Handle  any
	Latency uint64
}

// PopCompletion removes and returns the oldest completion not already
// claimed by a registered callback, or nil if none are ready. Mirrors core
// spec §6's completion side of the driver API (pop_request generalized to
// return driver-facing Completion values instead of internal
// packet.Request pointers). If both RegisterMemCallback and
// RegisterUopCallback are set, every completion is delivered through those
// callbacks during RunACycle and PopCompletion always returns nil.
func (s *Simulator) PopCompletion() *Completion {
	if len(s.pendingCompletions) > 0 {
		c := s.pendingCompletions[0]
		s.pendingCompletions = s.pendingCompletions[1:]
		return c
	}
	req := s.host.PopRequest()
	if req == nil {
		return nil
	}
	return s.completeHostReq(req)
}

// completeHostReq finalizes a request popped off the root complex's done
// queue: stats/observer bookkeeping, uop retirement bookkeeping if it
// carries one, and releasing it back to its pool.
func (s *Simulator) completeHostReq(req *packet.Request) *Completion {
	latency := s.clk.IOCycle() - req.AdmitCycle
	c := &Completion{Addr: req.Addr, Write: req.Write, Handle: req.Handle, Latency: latency}
	s.stats.RecordComplete(latency)
	s.obs.ObserveComplete(req.Addr, req.Write, latency)
	if req.IsUop() {
		s.retireUop(req.Uop)
	}
	s.pools.Requests.Release(req)
	return c
}

// drainHostDone drains every request waiting in the root complex's done
// queue, routing each to its registered callback (uop-done vs mem-done per
// whether it carries a uop) or, absent one, onto pendingCompletions for
// PopCompletion to return instead.
func (s *Simulator) drainHostDone() {
	if s.memCallback == nil && s.uopCallback == nil {
		return
	}
	for {
		req := s.host.PopRequest()
		if req == nil {
			return
		}
		isUop := req.IsUop()
		c := s.completeHostReq(req)
		switch {
		case isUop && s.uopCallback != nil:
			s.uopCallback(c.Addr, c.Write, c.Handle)
		case !isUop && s.memCallback != nil:
			s.memCallback(c.Addr, c.Write, c.Handle)
		default:
			s.pendingCompletions = append(s.pendingCompletions, c)
		}
	}
}

// drainUopDirectOffload drains every uop completion the memory expander
// diverted from the return PCIe path (cfg.UopDirectOffload), delivering it
// to the registered uop callback or, absent one, onto pendingCompletions.
// Unlike drainHostDone this always runs: a direct-offload completion never
// reaches the root complex's done queue at all, so skipping this drain
// would leak it. Mirrors core spec §4.7 item 1's "directly back to the
// simulator shell" branch.
func (s *Simulator) drainUopDirectOffload() {
	for {
		req := s.dev.PopDirectOffload()
		if req == nil {
			return
		}
		latency := s.clk.IOCycle() - req.AdmitCycle
		s.stats.RecordComplete(latency)
		s.obs.ObserveComplete(req.Addr, req.Write, latency)
		s.retireUop(req.Uop)
		if s.uopCallback != nil {
			s.uopCallback(req.Addr, req.Write, req.Handle)
		} else {
			s.pendingCompletions = append(s.pendingCompletions, &Completion{
				Addr: req.Addr, Write: req.Write, Handle: req.Handle, Latency: latency,
			})
		}
		s.pools.Requests.Release(req)
	}
}

// RunACycle advances the simulator by one IO-domain cycle: the root
// complex's and memory expander's pipelines each run once, the DRAM
// collaborator ticks as many times as the clock ratio calls for this cycle,
// completions are delivered to any registered callbacks, and the
// forward-progress watchdog is checked. Mirrors the top-level per-cycle
// drive loop cmd/cxlsim's reference driver calls once per trace-file cycle.
func (s *Simulator) RunACycle() error {
	s.host.RunACycle()
	s.dev.RunACycle()

	ramTicks := s.clk.Tick()
	for i := 0; i < ramTicks; i++ {
		s.dramModel.Tick()
	}

	s.drainUopDirectOffload()
	s.drainHostDone()

	now := s.clk.IOCycle()
	s.stats.Tick(now)
	if done := s.host.TotalCompleted(); done > s.totalDone {
		s.totalDone = done
		s.wd.RecordProgress(now)
	}
	if done := s.dev.Scheduler().TotalCompleted(); done > s.totalUopDone {
		s.totalUopDone = done
		s.wd.RecordProgress(now)
	}
	return s.wd.Check(now)
}

// Cycle returns the current IO-domain cycle count.
func (s *Simulator) Cycle() uint64 { return s.clk.IOCycle() }

// Stats returns a point-in-time statistics snapshot.
func (s *Simulator) Stats() stats.Snapshot { return s.stats.Snapshot() }

// Finalize flushes statistics (stamping the final end-of-run cycle marker)
// at the end of a run, so a Stats snapshot taken afterward reports an
// accurate elapsed-cycle rate even if the driver's last RunACycle call
// wasn't itself the final cycle of interest. Mirrors core spec §6's
// finalize() driver entry point.
func (s *Simulator) Finalize() error {
	s.stats.Tick(s.clk.IOCycle())
	return nil
}

// StatsCollector returns a prometheus.Collector wrapping this simulator's
// statistics, for an embedder that wants to register it with its own
// registry rather than polling Stats.
func (s *Simulator) StatsCollector() *stats.Collector { return stats.NewCollector(s.stats) }
