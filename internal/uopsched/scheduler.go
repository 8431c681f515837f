// Package uopsched implements the optional uop scheduler: a pending queue
// of offloaded uops waiting on their source dependencies, typed execution
// ports with fixed issue width/latency, and an exec/done pipeline. Neither
// the scheduler nor its ports have a source file of their own in this
// retrieval pack beyond port.cc/uop.cc (the dispatch loop that drives them
// lives in an exec-stage translation unit not present here), so the
// dispatch policy itself is grounded on the reservation-station
// occupied/ready-bitmap idiom from _examples/Maemo32-SupraX_Legacy/SupraX.go's
// OutOfOrderScheduler, adapted from register-rename tracking to uop
// unique-id/done-cycle tracking since these uops have no register file.
package uopsched

import (
	"math/bits"

	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/packet"
)

// execClass returns the typed port key a non-memory uop dispatches to.
// UopLoad/UopStore never reach this: they're diverted to the device's
// cache/MSHR/DRAM interlock instead of an execution port (see
// Scheduler.dispatch and OnMemReady), matching uop_s::get_exec_unit's
// EXEC_CACHE case for UOP_LD/UOP_ST/UOP_IMEM/UOP_FMEM conceptually, except
// that class is a memory-backend interlock in this model, not a port.
func execClass(t packet.UopType) string {
	switch t {
	case packet.UopNop:
		return "nop"
	case packet.UopIAdd:
		return "iadd"
	case packet.UopIMul:
		return "imul"
	case packet.UopIDiv:
		return "idiv"
	case packet.UopIMisc:
		return "imisc"
	case packet.UopFAdd:
		return "fadd"
	case packet.UopFMul:
		return "fmul"
	case packet.UopFDiv:
		return "fdiv"
	case packet.UopFMisc:
		return "fmisc"
	default:
		return "imisc"
	}
}

// Scheduler dispatches pending uops onto typed ports once their source
// dependencies are satisfied, either in strict program order or
// out-of-order (config.SchedulerInOrder / SchedulerOutOfOrder).
type Scheduler struct {
	cfg        *config.Config
	outOfOrder bool
	ports      map[string]*Port

	pending  []*packet.UOp
	inFlight []*packet.UOp
	done     []*packet.UOp

	totalDone uint64 // cumulative retirements ever produced, for watchdog progress detection

	// onMemReady is invoked once a memory-type uop (Load/Store) clears its
	// source-dependency check and is ready to issue. Core spec §4.7 step 2
	// hands such a uop to the cache/MSHR interlock instead of an execution
	// port; that interlock lives in internal/mxp (which owns the cache and
	// DRAM collaborator), so this hook is how the scheduler defers to it
	// without importing it back (mxp already imports uopsched).
	onMemReady  func(*packet.UOp)
	onDispatch  func(*packet.UOp)
	onComplete  func(*packet.UOp)

	cycle uint64
}

// OnDispatch registers the callback invoked once for every uop that clears
// its source-dependency check and is handed off (to a port, or to the
// memory interlock via onMemReady) — an embedder's stats counter, not a
// control-flow hook.
func (s *Scheduler) OnDispatch(f func(*packet.UOp)) {
	s.onDispatch = f
}

// OnComplete registers the callback invoked once for every uop that joins
// the done queue, whether retired via port latency or CompleteMemUop.
func (s *Scheduler) OnComplete(f func(*packet.UOp)) {
	s.onComplete = f
}

// OnMemReady registers the callback invoked for every memory-type uop that
// becomes ready to issue. Must be set before the first RunACycle.
func (s *Scheduler) OnMemReady(f func(*packet.UOp)) {
	s.onMemReady = f
}

// CompleteMemUop stamps a memory-type uop done at doneCycle and moves it
// onto the same done/retire path port-dispatched uops use, once the
// device's cache/MSHR/DRAM interlock has serviced it (cache hit, or DRAM
// fill on a miss). Mirrors the tail of core spec §4.6's uop miss-handling
// ("stamp all merged uops as done, routing them to the executor's done
// queue").
func (s *Scheduler) CompleteMemUop(u *packet.UOp, doneCycle uint64) {
	u.DoneCycle = doneCycle
	u.Done = true
	s.done = append(s.done, u)
	s.totalDone++
	if s.onComplete != nil {
		s.onComplete(u)
	}
}

// New builds a scheduler with one Port per configured execution-unit class.
func New(cfg *config.Config) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		outOfOrder: cfg.Scheduler == config.SchedulerOutOfOrder,
		ports:      make(map[string]*Port),
	}
	for class, n := range cfg.PortCounts {
		s.ports[class] = NewPort(n, cfg.PortLatencies[class])
	}
	return s
}

// Submit admits a uop into the pending queue, in program order.
func (s *Scheduler) Submit(u *packet.UOp) {
	s.pending = append(s.pending, u)
}

// ready reports whether u is src_ready as of cycle now: for each source,
// entries that are invalid (nil) or whose unique id is not strictly
// smaller than u's are skipped (only strictly-older sources enforce
// ordering); every remaining source must have a nonzero done_cycle that
// has already elapsed. Mirrors core spec §4.7's dependency check.
func ready(u *packet.UOp, now uint64) bool {
	for _, src := range u.Sources {
		if src.Uop == nil || src.Uop.UniqueNum >= u.UniqueNum {
			continue
		}
		if src.Uop.DoneCycle == 0 || src.Uop.DoneCycle > now {
			return false
		}
	}
	return true
}

// readyBitmap computes, for up to 64 pending uops starting at offset, a
// bitmap with bit i set when pending[offset+i] is ready to dispatch. Scans
// beyond 64 entries are handled by the caller chunking offset forward.
func (s *Scheduler) readyBitmap(offset int) uint64 {
	var bitmap uint64
	end := offset + 64
	if end > len(s.pending) {
		end = len(s.pending)
	}
	for i := offset; i < end; i++ {
		if ready(s.pending[i], s.cycle) {
			bitmap |= 1 << uint(i-offset)
		}
	}
	return bitmap
}

// RunACycle ticks every port and in-flight uop, retires uops whose latency
// has elapsed, and dispatches newly ready pending uops onto free ports. In
// in-order mode only the head of the pending queue may dispatch; in
// out-of-order mode every chunk of up to 64 pending uops is scanned via a
// readiness bitmap and dispatched with bits.TrailingZeros64, mirroring the
// CTZ-driven reservation-station scan SupraX.go uses for picking ready
// instructions.
func (s *Scheduler) RunACycle() {
	for _, p := range s.ports {
		p.RunACycle()
	}

	var stillInFlight []*packet.UOp
	for _, u := range s.inFlight {
		if s.cycle >= u.DoneCycle {
			u.Done = true
			s.done = append(s.done, u)
			s.totalDone++
			if s.onComplete != nil {
				s.onComplete(u)
			}
		} else {
			stillInFlight = append(stillInFlight, u)
		}
	}
	s.inFlight = stillInFlight

	if s.outOfOrder {
		s.dispatchOutOfOrder()
	} else {
		s.dispatchInOrder()
	}

	s.cycle++
}

func (s *Scheduler) dispatchInOrder() {
	for len(s.pending) > 0 {
		head := s.pending[0]
		if !ready(head, s.cycle) {
			break
		}
		if !s.dispatch(head) {
			break
		}
		s.pending = s.pending[1:]
	}
}

func (s *Scheduler) dispatchOutOfOrder() {
	var remaining []*packet.UOp
	consumed := make(map[int]bool)
	for offset := 0; offset < len(s.pending); offset += 64 {
		bitmap := s.readyBitmap(offset)
		for bitmap != 0 {
			bit := bits.TrailingZeros64(bitmap)
			bitmap &^= 1 << uint(bit)
			idx := offset + bit
			if s.dispatch(s.pending[idx]) {
				consumed[idx] = true
			}
		}
	}
	for i, u := range s.pending {
		if !consumed[i] {
			remaining = append(remaining, u)
		}
	}
	s.pending = remaining
}

// dispatch routes a ready uop: a memory-type uop (Load/Store) hands off to
// the device's cache/MSHR/DRAM interlock via onMemReady and is always
// considered consumed from the pending queue (the interlock, not a port,
// is the resource gate from here); a non-memory uop tries to acquire a
// port for its execution-unit class, stamping exec/done cycles on success.
func (s *Scheduler) dispatch(u *packet.UOp) bool {
	if u.MemType != packet.MemNone {
		u.ExecCycle = s.cycle
		if s.onMemReady != nil {
			s.onMemReady(u)
		}
		if s.onDispatch != nil {
			s.onDispatch(u)
		}
		return true
	}
	port, ok := s.ports[execClass(u.Type)]
	if !ok || !port.TryAcquire() {
		return false
	}
	u.ExecCycle = s.cycle
	latency := u.Latency // the uop's own latency; the port's when it carries none
	if latency == 0 {
		latency = port.Latency()
	}
	u.DoneCycle = s.cycle + latency
	s.inFlight = append(s.inFlight, u)
	if s.onDispatch != nil {
		s.onDispatch(u)
	}
	return true
}

// PopDone removes and returns the oldest completed uop, or nil.
func (s *Scheduler) PopDone() *packet.UOp {
	if len(s.done) == 0 {
		return nil
	}
	u := s.done[0]
	s.done = s.done[1:]
	return u
}

// Cycle returns the scheduler's current cycle count.
func (s *Scheduler) Cycle() uint64 { return s.cycle }

// TotalCompleted returns the cumulative count of uops ever retired,
// monotonically increasing even as PopDone drains the done queue — used by a
// forward-progress watchdog to detect new completions reliably.
func (s *Scheduler) TotalCompleted() uint64 { return s.totalDone }
