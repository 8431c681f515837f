// Package mxp implements the CXL Type-3 memory-expander device backend:
// the pending/response queues pcie_ep_c's Transactor hooks drain, and the
// cache+MSHR+DRAM request path process_pending_req feeds into. Grounded on
// cxl_t3.cc/.h, extended with the cache+MSHR supplement cache.go already
// provides (the retrieved cxl_t3.cc has no cache wired in at all).
package mxp

import (
	"github.com/joonho3020/CXLSim/internal/cache"
	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/dram"
	"github.com/joonho3020/CXLSim/internal/endpoint"
	"github.com/joonho3020/CXLSim/internal/packet"
	"github.com/joonho3020/CXLSim/internal/uopsched"
)

// MemoryExpander is the CXL.mem device endpoint: requests arriving on the
// RX virtual channel land in a pending queue, get serviced through the
// cache/MSHR/DRAM path, and completed requests drain back out the TX
// virtual channel. A uop-carrying request is instead submitted to the
// device's uop scheduler; a memory-type uop that becomes ready to issue is
// handed back here (via Scheduler.OnMemReady) to service through the exact
// same cache/MSHR/DRAM interlock a plain memory request uses. Grounded on
// cxlt3_c, extended per core spec §4.6/§4.7.
type MemoryExpander struct {
	cfg *config.Config
	ep  *endpoint.Endpoint

	cache *cache.Cache
	dram  dram.Collaborator
	sched *uopsched.Scheduler

	pendingReq []*packet.Request
	respQueue  []*packet.Request
	hitQueue   []hitEntry
	offloadQ   []*packet.Request // uop_direct_offload completions, bypassing the return PCIe path

	txvcBW int

	onLookup    func(addr uint64, hit bool)
	onDRAMIssue func(write bool)
	onMSHRMerge func()
}

// hitEntry tracks a cache hit waiting out the cache's fixed access latency
// before joining the response queue.
type hitEntry struct {
	req   *packet.Request
	ready uint64
}

// New constructs a memory expander backed by dramModel, wiring its own
// cache/MSHR per the configured knobs and itself as the Endpoint's
// Transactor. Call endpoint.Link(host, mxp.Endpoint()) once the paired
// root complex exists.
func New(cfg *config.Config, pools *packet.Pools, physCapacity int, dramModel dram.Collaborator) *MemoryExpander {
	c := cache.New(cfg.CacheSets, cfg.CacheAssoc, cfg.CacheLatency, cfg.RamulatorCachelineSize)
	c.InitMSHR(cfg.MSHRAssoc, cfg.MSHRCap)

	m := &MemoryExpander{
		cfg:    cfg,
		cache:  c,
		dram:   dramModel,
		sched:  uopsched.New(cfg),
		txvcBW: cfg.PCIeTXVCBW,
	}
	m.sched.OnMemReady(m.onMemUopReady)
	m.ep = endpoint.New(cfg, pools, false, physCapacity, m)
	return m
}

// Scheduler returns the device's uop scheduler, for an embedder (or the
// simulator shell) wanting direct visibility into its pending/done queues
// without reaching through MemoryExpander's own drain API.
func (m *MemoryExpander) Scheduler() *uopsched.Scheduler { return m.sched }

// PopDirectOffload removes and returns the oldest uop completion diverted
// from the return PCIe path because cfg.UopDirectOffload is set, or nil if
// none are ready. The simulator shell drains this every cycle and invokes
// the registered uop-done callback directly. Mirrors core spec §4.7 item
// 1's "directly back to the simulator shell" branch.
func (m *MemoryExpander) PopDirectOffload() *packet.Request {
	if len(m.offloadQ) == 0 {
		return nil
	}
	req := m.offloadQ[0]
	m.offloadQ = m.offloadQ[1:]
	return req
}

// onMemUopReady handles a memory-type uop the scheduler has cleared for
// issue: it is serviced through the exact same cache/MSHR/DRAM interlock a
// plain memory Request uses, by feeding its back-referenced Request into
// the ordinary pending-request queue.
func (m *MemoryExpander) onMemUopReady(u *packet.UOp) {
	m.pendingReq = append(m.pendingReq, u.Req)
}

// Endpoint returns the underlying pipeline endpoint, for Link and RunACycle.
func (m *MemoryExpander) Endpoint() *endpoint.Endpoint { return m.ep }

// OnLookup registers a callback invoked once per cache lookup with its
// hit/miss outcome, for an embedder wanting push-based cache telemetry
// instead of polling internal/stats.
func (m *MemoryExpander) OnLookup(f func(addr uint64, hit bool)) {
	m.onLookup = f
}

// OnDRAMIssue registers a callback invoked once per request newly issued to
// the DRAM collaborator (the first miss on a line, not a later merge).
func (m *MemoryExpander) OnDRAMIssue(f func(write bool)) {
	m.onDRAMIssue = f
}

// OnMSHRMerge registers a callback invoked once per miss merged onto an
// already-outstanding MSHR entry instead of issuing a redundant DRAM access.
func (m *MemoryExpander) OnMSHRMerge(f func()) {
	m.onMSHRMerge = f
}

// OnUopDispatch registers a callback invoked once for every uop the device's
// scheduler hands off, whether to a compute port or the memory interlock.
func (m *MemoryExpander) OnUopDispatch(f func(*packet.UOp)) {
	m.sched.OnDispatch(f)
}

// OnUopComplete registers a callback invoked once for every uop the
// device's scheduler retires, whether via port latency or CompleteMemUop.
func (m *MemoryExpander) OnUopComplete(f func(*packet.UOp)) {
	m.sched.OnComplete(f)
}

// RunACycle advances the memory expander's endpoint, ticks the uop
// scheduler (which may feed ready memory-type uops back into the pending
// queue via OnMemReady), services the pending-request queue against the
// cache/MSHR/DRAM path, and drains both cache hits and scheduler
// completions into their respective response paths. Mirrors
// cxlt3_c::run_a_cycle's send-then-process-then-receive ordering, extended
// with the uop exec-stage drain from core spec §4.7 item 1.
func (m *MemoryExpander) RunACycle() {
	m.ep.RunACycle()
	m.sched.RunACycle()
	m.processPendingReq()
	m.drainHitQueue()
	m.drainSchedDone()
}

// drainHitQueue releases cache hits into their response path once their
// fixed access latency has elapsed: a plain request joins the TX-VC
// response queue; a memory-type uop instead reports through the scheduler's
// done path so it retires the same way a port-dispatched uop does.
func (m *MemoryExpander) drainHitQueue() {
	now := m.ep.Cycle()
	var remaining []hitEntry
	for _, h := range m.hitQueue {
		if h.ready <= now {
			m.completeReq(h.req, now)
		} else {
			remaining = append(remaining, h)
		}
	}
	m.hitQueue = remaining
}

// drainSchedDone moves every uop the scheduler has retired this cycle
// (either port-dispatched compute uops or memory uops completed via
// CompleteMemUop) onto its response path: directly back to the simulator
// shell if cfg.UopDirectOffload is set, otherwise the ordinary TX-VC
// response queue. Mirrors core spec §4.7 item 1.
func (m *MemoryExpander) drainSchedDone() {
	for {
		u := m.sched.PopDone()
		if u == nil {
			break
		}
		if m.cfg.UopDirectOffload {
			m.offloadQ = append(m.offloadQ, u.Req)
		} else {
			m.respQueue = append(m.respQueue, u.Req)
		}
	}
}

// completeReq routes a serviced request to its correct response path: a
// memory-type uop reports through the scheduler's done queue (so its
// DoneCycle/Done stamping and uop_direct_offload routing stay consistent
// with port-dispatched uops); a plain memory request joins the TX-VC
// response queue directly.
func (m *MemoryExpander) completeReq(req *packet.Request, now uint64) {
	if req.IsUop() {
		m.sched.CompleteMemUop(req.Uop, now)
		return
	}
	m.respQueue = append(m.respQueue, req)
}

// EndTransaction drains every ready message off the RX virtual channel: a
// uop-carrying request is submitted to the device's uop scheduler (which
// gates it on source-dependency readiness before ever touching the cache),
// everything else joins the pending-request queue directly. Mirrors
// cxlt3_c::end_transaction, extended per core spec §4.6's pending-queue
// dispatch rule.
func (m *MemoryExpander) EndTransaction() {
	for {
		msg := m.ep.PullRXVC()
		if msg == nil {
			break
		}
		req := msg.Req
		if req.IsUop() {
			m.sched.Submit(req.Uop)
			continue
		}
		m.pendingReq = append(m.pendingReq, req)
	}
}

// StartTransaction drains the response queue onto the TX virtual channel,
// bounded by pcie_txvc_bw and stopping at the first rejection. Mirrors
// cxlt3_c::start_transaction.
func (m *MemoryExpander) StartTransaction() {
	cnt := 0
	admitted := 0
	for admitted < len(m.respQueue) {
		req := m.respQueue[admitted]
		success := m.ep.PushTXVC(req)
		if success {
			admitted++
			cnt++
		}
		if cnt == m.txvcBW || !success {
			break
		}
	}
	m.respQueue = m.respQueue[admitted:]
}

// processPendingReq services every pending request against the cache: a
// hit is queued on hitQueue and completes once the cache's fixed latency has
// elapsed, a miss either opens a new DRAM request (first miss for that line,
// only while the MSHR has a free entry) or merges onto the MSHR entry already tracking it
// (a later miss to the same line), in which case it waits for the
// in-flight DRAM fill rather than issuing a redundant access. Grounded on
// cxlt3_c::process_pending_req, with the cache/MSHR hit/miss branching
// supplemented since the original has no cache wired in at all.
func (m *MemoryExpander) processPendingReq() {
	var remaining []*packet.Request
	for _, req := range m.pendingReq {
		hit := m.cache.Lookup(req.Addr)
		if m.onLookup != nil {
			m.onLookup(req.Addr, hit)
		}
		if hit {
			m.hitQueue = append(m.hitQueue, hitEntry{req: req, ready: m.ep.Cycle() + m.cache.Latency()})
			continue
		}
		if !m.cache.IsFirstMiss(req.Addr) {
			if m.cache.InsertMSHR(req) {
				if m.onMSHRMerge != nil {
					m.onMSHRMerge()
				}
				continue // merged onto the in-flight miss; serviced by its fill
			}
			remaining = append(remaining, req) // MSHR entry at capacity, retry next cycle
			continue
		}
		if !m.cache.HasFreeMSHR() {
			remaining = append(remaining, req) // no free MSHR entry, retry next cycle
			continue
		}
		if m.pushDRAMReq(req) {
			m.cache.InsertMSHR(req)
			if m.onDRAMIssue != nil {
				m.onDRAMIssue(req.Write)
			}
		} else {
			remaining = append(remaining, req)
		}
	}
	m.pendingReq = remaining
}

// pushDRAMReq issues req to the DRAM collaborator, completing via
// dramComplete once the model calls back. Mirrors cxlt3_c::push_ramu_req.
func (m *MemoryExpander) pushDRAMReq(req *packet.Request) bool {
	reqType := dram.ReqRead
	if req.Write {
		reqType = dram.ReqWrite
	}
	return m.dram.Send(dram.Request{
		Addr: req.Addr,
		Type: reqType,
		Callback: func(dram.Request) {
			m.dramComplete(req.Addr)
		},
	})
}

// dramComplete fills the cache line, releases the MSHR entry, and routes
// every request that had merged onto it to its response path. Mirrors the
// shared tail of cxlt3_c::readComplete/writeComplete, extended with the
// cache fill/MSHR release this pack's cxl_t3.cc has no equivalent of.
func (m *MemoryExpander) dramComplete(addr uint64) {
	reqs := m.cache.MSHREntries(addr)
	m.cache.Insert(addr)
	m.cache.ClearMSHR(addr)
	now := m.ep.Cycle()
	for _, req := range reqs {
		m.completeReq(req, now)
	}
}
