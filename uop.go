package cxlsim

import "github.com/joonho3020/CXLSim/internal/packet"

// DepType, UopType, and MemType are re-exported from internal/packet as type
// aliases (same pattern as Error/ErrorCode in errors.go) so a caller driving
// the optional uop-scheduler mode never needs to import an internal package.
type DepType = packet.DepType
type UopType = packet.UopType
type MemType = packet.MemType

const (
	DepRegData = packet.DepRegData
	DepMemAddr = packet.DepMemAddr
	DepMemData = packet.DepMemData
	DepPrevUop = packet.DepPrevUop
)

const (
	UopNop   = packet.UopNop
	UopIAdd  = packet.UopIAdd
	UopIMul  = packet.UopIMul
	UopIDiv  = packet.UopIDiv
	UopIMisc = packet.UopIMisc
	UopFAdd  = packet.UopFAdd
	UopFMul  = packet.UopFMul
	UopFDiv  = packet.UopFDiv
	UopFMisc = packet.UopFMisc
	UopLoad  = packet.UopLoad
	UopStore = packet.UopStore
)

const (
	MemNone  = packet.MemNone
	MemLoad  = packet.MemLoad
	MemStore = packet.MemStore
)

// UopSource names one source-uop dependency a newly admitted uop waits on,
// by the producer's unique id rather than a direct reference, matching core
// spec §6's insert_uop_request signature (`sources: [(unique_id, dep_type)]`).
type UopSource struct {
	UniqueID uint64
	Type     DepType
}

// InsertUopRequest admits an offloaded uop into the pipeline, returning false
// on the same root-complex back-pressure InsertMemRequest reports. Sources
// naming a unique id this simulator has never seen resolve to an invalid
// (always-satisfied) dependency, matching core spec §4.7's "skip entries
// that are invalid" rule. Mirrors core spec §6's insert_uop_request.
func (s *Simulator) InsertUopRequest(handle any, coreID int, uopType UopType, memType MemType, addr uint64, uniqueID uint64, latency uint64, sources []UopSource) bool {
	if s.host.Full() {
		return false
	}

	srcInfos := make([]packet.SrcInfo, 0, len(sources))
	for _, src := range sources {
		producer := s.uopIndex[src.UniqueID]
		srcInfos = append(srcInfos, packet.SrcInfo{Type: src.Type, Uop: producer})
		if producer != nil {
			s.uopRefcount[src.UniqueID]++
		}
	}

	req := s.pools.Requests.Acquire()
	req.Addr = addr
	req.Write = memType == MemStore
	req.Handle = handle
	req.AdmitCycle = s.clk.IOCycle()

	u := s.pools.Uops.Acquire()
	u.UniqueNum = uniqueID
	u.CoreID = coreID
	u.Type = uopType
	u.MemType = memType
	u.Addr = addr
	u.Latency = latency
	u.Sources = srcInfos
	u.Handle = handle
	u.Req = req
	req.Uop = u

	s.uopIndex[uniqueID] = u
	if _, ok := s.uopRefcount[uniqueID]; !ok {
		s.uopRefcount[uniqueID] = 0
	}

	s.host.InsertRequest(req)
	s.stats.RecordAdmit(req.Write)
	s.obs.ObserveAdmit(addr, req.Write)
	return true
}

// retireUop marks uniqueID observed by its issuer (its completion has been
// delivered) and releases it, along with every now-unreferenced ancestor in
// its source chain, from the unique-id index. Mirrors core spec's UOp
// lifecycle note: "retired when done_cycle observed by issuer; references
// kept until last dependent uop clears" — a producer stays indexable (so a
// not-yet-admitted consumer can still resolve it as a source) until both its
// own completion has been observed and nothing still depends on it.
func (s *Simulator) retireUop(u *packet.UOp) {
	s.uopObserved[u.UniqueNum] = true
	s.releaseUopIfClear(u)
}

func (s *Simulator) releaseUopIfClear(u *packet.UOp) {
	if !s.uopObserved[u.UniqueNum] || s.uopRefcount[u.UniqueNum] > 0 {
		return
	}
	delete(s.uopIndex, u.UniqueNum)
	delete(s.uopRefcount, u.UniqueNum)
	delete(s.uopObserved, u.UniqueNum)
	for _, src := range u.Sources {
		if src.Uop == nil {
			continue
		}
		if s.uopRefcount[src.Uop.UniqueNum] > 0 {
			s.uopRefcount[src.Uop.UniqueNum]--
		}
		s.releaseUopIfClear(src.Uop)
	}
	s.pools.Uops.Release(u)
}
