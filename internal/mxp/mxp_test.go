package mxp

import (
	"testing"

	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/dram"
	"github.com/joonho3020/CXLSim/internal/endpoint"
	"github.com/joonho3020/CXLSim/internal/packet"
)

type noopTransactor struct{}

func (noopTransactor) StartTransaction() {}
func (noopTransactor) EndTransaction()   {}

func testConfig() *config.Config {
	c := config.Default()
	c.PCIeMaxFlitWaitCyc = 0
	c.PCIeTXTransLatency = 0
	c.PCIeRXTransLatency = 0
	c.PCIeTXDLLLatency = 0
	c.PCIeRXDLLLatency = 0
	c.PCIeArbMuxLatency = 0
	c.ClockIO = 1
	c.PCIePerLaneBW = 1e9
	c.CacheLatency = 1
	c.CacheSets = 4
	c.CacheAssoc = 2
	c.MSHRAssoc = 4
	c.MSHRCap = 4
	c.RamulatorCachelineSize = 64
	return c
}

func TestFirstMissIssuesDRAMRequest(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(2, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	req := &packet.Request{Addr: 0x1000, Write: false}
	dev.pendingReq = append(dev.pendingReq, req)
	dev.processPendingReq()

	if dramModel.InFlight() != 1 {
		t.Fatalf("expected the first miss to issue a DRAM request, got %d in flight", dramModel.InFlight())
	}
	if len(dev.pendingReq) != 0 {
		t.Errorf("expected the request to leave the pending queue once admitted to DRAM")
	}
}

func TestSecondMissMergesOntoMSHR(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(100, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	req1 := &packet.Request{Addr: 0x1000, Write: false}
	req2 := &packet.Request{Addr: 0x1004, Write: false} // same line
	dev.pendingReq = append(dev.pendingReq, req1, req2)
	dev.processPendingReq()

	if dramModel.InFlight() != 1 {
		t.Fatalf("expected only one DRAM request for two misses on the same line, got %d", dramModel.InFlight())
	}
	if len(dev.pendingReq) != 0 {
		t.Error("expected both requests to leave the pending queue (one issued, one merged)")
	}
}

func TestCacheHitCompletesAfterLatencyWithoutDRAM(t *testing.T) {
	cfg := testConfig()
	cfg.CacheLatency = 3
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(100, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	dev.cache.Insert(0x1000) // prime the line

	req := &packet.Request{Addr: 0x1000, Write: false}
	dev.pendingReq = append(dev.pendingReq, req)
	dev.processPendingReq()

	if dramModel.InFlight() != 0 {
		t.Fatal("expected a cache hit to never touch DRAM")
	}
	for i := 0; i < 3; i++ {
		dev.drainHitQueue()
		if len(dev.respQueue) != 0 {
			t.Fatalf("expected the hit to still be waiting out cache latency at cycle %d", i)
		}
		dev.ep.RunACycle()
	}
	dev.drainHitQueue()
	if len(dev.respQueue) != 1 {
		t.Fatal("expected the hit to land in the response queue once cache latency elapsed")
	}
}

func TestDRAMCompletionReleasesAllMergedRequests(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(2, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	req1 := &packet.Request{Addr: 0x1000, Write: false}
	req2 := &packet.Request{Addr: 0x1004, Write: false}
	dev.pendingReq = append(dev.pendingReq, req1, req2)
	dev.processPendingReq()

	dramModel.Tick()
	dramModel.Tick()

	if len(dev.respQueue) != 2 {
		t.Fatalf("expected both merged requests to reach the response queue on DRAM completion, got %d", len(dev.respQueue))
	}
	if !dev.cache.Lookup(req1.Addr) {
		t.Error("expected the DRAM fill to install the line in the cache")
	}
}

// newUopReq builds a memory-type uop wrapped in its back-referencing Request,
// as vc.acquireMessage/EndTransaction would hand to the device.
func newUopReq(addr uint64, write bool) *packet.Request {
	req := &packet.Request{Addr: addr, Write: write}
	memType := packet.MemLoad
	if write {
		memType = packet.MemStore
	}
	req.Uop = &packet.UOp{MemType: memType, Addr: addr, Req: req}
	return req
}

func TestSubmittedMemUopReachesPendingQueue(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(2, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	u := &packet.UOp{MemType: packet.MemLoad, Addr: 0x2000}
	u.Req = &packet.Request{Addr: 0x2000, Uop: u}
	dev.sched.Submit(u)
	dev.sched.RunACycle() // source-free, dispatches immediately via onMemReady

	if len(dev.pendingReq) != 1 {
		t.Fatalf("expected the ready memory uop to land in the pending queue, got %d", len(dev.pendingReq))
	}
	if dev.pendingReq[0] != u.Req {
		t.Fatal("expected the pending entry to be the uop's back-referenced request")
	}
}

func TestMemUopMissCompletesThroughSchedulerDoneQueue(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(2, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	req := newUopReq(0x3000, false)
	dev.sched.Submit(req.Uop)
	dev.sched.RunACycle()
	dev.processPendingReq()

	if dramModel.InFlight() != 1 {
		t.Fatalf("expected the memory uop miss to issue a DRAM request, got %d in flight", dramModel.InFlight())
	}

	dramModel.Tick()
	dramModel.Tick()

	done := dev.sched.PopDone()
	if done == nil {
		t.Fatal("expected the memory uop to retire through the scheduler's done queue on DRAM completion")
	}
	if done != req.Uop {
		t.Fatal("expected the retired uop to be the one submitted")
	}
	if !done.Done {
		t.Error("expected the retired uop to be marked Done")
	}
	if len(dev.respQueue) != 0 {
		t.Error("expected the uop's completion to stay in the scheduler done queue, not the plain response queue, until drainSchedDone runs")
	}
}

func TestDrainSchedDoneRoutesToOffloadQueueWhenDirectOffloadSet(t *testing.T) {
	cfg := testConfig()
	cfg.UopDirectOffload = true
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	dramModel := dram.NewFixedLatencyModel(2, 8)
	dev := New(cfg, pools, physCap, dramModel)
	host := endpoint.New(cfg, pools, true, physCap, noopTransactor{})
	endpoint.Link(host, dev.Endpoint())

	dev.cache.Insert(0x4000) // prime so the uop hits and completes immediately

	req := newUopReq(0x4000, false)
	dev.sched.Submit(req.Uop)
	dev.sched.RunACycle()
	dev.processPendingReq()
	dev.drainHitQueue() // CacheLatency is 1 in testConfig, ready() on insertion cycle may still be pending
	dev.ep.RunACycle()
	dev.drainHitQueue()
	dev.drainSchedDone()

	if len(dev.offloadQ) != 1 {
		t.Fatalf("expected the completed uop to divert to the offload queue, got %d", len(dev.offloadQ))
	}
	if len(dev.respQueue) != 0 {
		t.Error("expected nothing to reach the ordinary response queue when uop_direct_offload is set")
	}
	if dev.PopDirectOffload() != req {
		t.Error("expected PopDirectOffload to return the diverted request")
	}
	if dev.PopDirectOffload() != nil {
		t.Error("expected the offload queue to be empty after draining its one entry")
	}
}
