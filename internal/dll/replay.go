// Package dll implements the data-link layer's TX replay buffer: flits
// admitted out of the VC buffer wait here, credit-gated on the peer's RX-VC
// space, until the physical layer has actually transmitted and the peer has
// acknowledged receipt.
package dll

import "github.com/joonho3020/CXLSim/internal/packet"

// ReplayBuffer holds flits that have left the TX VC buffer but have not yet
// been confirmed received by the peer, grounded on pcie_ep_c's
// m_txreplay_buff / refresh_replay_buffer / process_txdll.
type ReplayBuffer struct {
	cap   int
	flits []*packet.Flit
}

// NewReplayBuffer builds an empty replay buffer bounded by cap
// (pcie_txreplay_capacity).
func NewReplayBuffer(cap int) *ReplayBuffer {
	return &ReplayBuffer{cap: cap}
}

// Len reports how many flits are currently held.
func (r *ReplayBuffer) Len() int { return len(r.flits) }

// Cap reports the configured capacity.
func (r *ReplayBuffer) Cap() int { return r.cap }

// Full reports whether the buffer has reached capacity.
func (r *ReplayBuffer) Full() bool { return len(r.flits) >= r.cap }

// Push admits a newly credit-checked flit, stamping its replay-insertion
// timestamps. now is the current IO cycle; latency is pcie_txdll_latency.
func (r *ReplayBuffer) Push(flit *packet.Flit, now, latency uint64) {
	flit.ReplayInsertStart = now
	flit.ReplayInsertDone = now + latency
	r.flits = append(r.flits, flit)
}

// Flits exposes the buffer contents in FIFO order for process_txphys to
// scan for the first not-yet-sent, latency-cleared flit.
func (r *ReplayBuffer) Flits() []*packet.Flit {
	return r.flits
}

// Refresh drops flits from the front that have been physically sent and
// whose transmission the peer has finished receiving as of now, mirroring
// pcie_ep_c::refresh_replay_buffer.
func (r *ReplayBuffer) Refresh(now uint64) {
	for len(r.flits) > 0 {
		front := r.flits[0]
		if front.PhysSent && front.PhysDone <= now {
			r.flits = r.flits[1:]
		} else {
			break
		}
	}
}
