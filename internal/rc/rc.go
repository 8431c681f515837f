// Package rc implements the root complex: the admission/completion queues
// that sit above an Endpoint and turn it from a bare pipeline into a
// driver-facing request source/sink. Grounded on pcie_rc_c.
package rc

import (
	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/endpoint"
	"github.com/joonho3020/CXLSim/internal/packet"
)

// RootComplex is the CXL host-side endpoint: requests the driver admits sit
// in a pending queue until start_transaction drains them onto the TX VC,
// and responses arriving on the RX VC land in a done queue until the driver
// pops them. Grounded on pcie_rc_c.
type RootComplex struct {
	cfg *config.Config
	ep  *endpoint.Endpoint

	pendingSize int
	pendingReq  []*packet.Request
	doneReq     []*packet.Request

	txvcBW       int
	totalDoneCnt uint64
}

// New constructs a root complex and wires it as its own Endpoint's
// Transactor. Call endpoint.Link(rc.Endpoint(), mxpEndpoint) once the device
// endpoint exists.
func New(cfg *config.Config, pools *packet.Pools, physCapacity int) *RootComplex {
	rc := &RootComplex{
		cfg:         cfg,
		pendingSize: cfg.PCIeInsertQSize,
		txvcBW:      cfg.PCIeTXVCBW,
	}
	rc.ep = endpoint.New(cfg, pools, true, physCapacity, rc)
	return rc
}

// Endpoint returns the underlying pipeline endpoint, for Link and RunACycle.
func (rc *RootComplex) Endpoint() *endpoint.Endpoint { return rc.ep }

// RunACycle advances the root complex's endpoint by one cycle.
func (rc *RootComplex) RunACycle() { rc.ep.RunACycle() }

// Full reports whether the pending queue has reached its configured depth
// (pcie_insertq_size). Mirrors pcie_rc_c::rootcomplex_full.
func (rc *RootComplex) Full() bool {
	return len(rc.pendingReq) >= rc.pendingSize
}

// InsertRequest admits req onto the pending queue. Callers must check Full
// first; mirrors pcie_rc_c::insert_request's assert on pending-queue depth.
func (rc *RootComplex) InsertRequest(req *packet.Request) {
	rc.pendingReq = append(rc.pendingReq, req)
}

// DoneCount returns the number of completed requests currently waiting in
// the done queue, for inspection without consuming them.
func (rc *RootComplex) DoneCount() int { return len(rc.doneReq) }

// TotalCompleted returns the cumulative count of requests ever completed,
// monotonically increasing even as the driver pops them out of the done
// queue — used by a forward-progress watchdog to detect new completions
// without the queue length itself being a reliable signal after pops.
func (rc *RootComplex) TotalCompleted() uint64 { return rc.totalDoneCnt }

// PopRequest removes and returns the oldest completed request, or nil if
// none are ready yet. Mirrors pcie_rc_c::pop_request.
func (rc *RootComplex) PopRequest() *packet.Request {
	if len(rc.doneReq) == 0 {
		return nil
	}
	req := rc.doneReq[0]
	rc.doneReq = rc.doneReq[1:]
	return req
}

// StartTransaction drains the pending queue onto the TX virtual channel,
// bounded by pcie_txvc_bw per cycle and stopping at the first request that
// push_txvc rejects (back-pressure). Mirrors pcie_rc_c::start_transaction.
func (rc *RootComplex) StartTransaction() {
	cnt := 0
	admitted := 0
	for admitted < len(rc.pendingReq) {
		req := rc.pendingReq[admitted]
		success := rc.ep.PushTXVC(req)
		if success {
			admitted++
			cnt++
		}
		if cnt == rc.txvcBW || !success {
			break
		}
	}
	rc.pendingReq = rc.pendingReq[admitted:]
}

// EndTransaction drains every ready message off the RX virtual channel into
// the done queue. Mirrors pcie_rc_c::end_transaction.
func (rc *RootComplex) EndTransaction() {
	for {
		msg := rc.ep.PullRXVC()
		if msg == nil {
			break
		}
		rc.doneReq = append(rc.doneReq, msg.Req)
		rc.totalDoneCnt++
	}
}
