// Package packet defines the Request/UOp/Message/Slot/Flit packet hierarchy
// and the arena pools that own their storage. Each pooled type carries its
// own slab index so Pool.Release is O(1); parent/child references (e.g.
// Message.Parent) are plain non-owning pointers, freed only when the owner
// explicitly releases them back to the pool (see the Design Notes on
// arena-backed slab pools).
package packet

import "github.com/rs/xid"

// Channel identifies one of the four virtual channels. DATA is a formal
// channel id here, a peer of WOD/WD/UOP, matching how the original flit
// builder indexes its per-channel counters and switches on channel id
// uniformly for all four (see DESIGN.md / SPEC_FULL.md §9.6 item 2).
type Channel int

const (
	ChannelWOD Channel = iota
	ChannelWD
	ChannelData
	ChannelUop
	MaxChannel
)

func (c Channel) String() string {
	switch c {
	case ChannelWOD:
		return "WOD"
	case ChannelWD:
		return "WD"
	case ChannelData:
		return "DATA"
	case ChannelUop:
		return "UOP"
	default:
		return "UNKNOWN"
	}
}

// MsgType is the transaction-layer message type.
type MsgType int

const (
	MsgREQ MsgType = iota
	MsgRWD
	MsgNDR
	MsgDRS
	MsgDATA
	MaxMsgTypes
)

func (t MsgType) String() string {
	switch t {
	case MsgREQ:
		return "REQ"
	case MsgRWD:
		return "RWD"
	case MsgNDR:
		return "NDR"
	case MsgDRS:
		return "DRS"
	case MsgDATA:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// SlotType distinguishes header slots (which open a flit and carry exactly
// one message type) from general slots (continuation slots, some of which
// may mix NDR/DRS or are reserved for DATA).
type SlotType int

const (
	SlotH4 SlotType = iota
	SlotH5
	SlotG0
	SlotG4
	SlotG5
	SlotG6
)

func (t SlotType) IsHeader() bool {
	return t == SlotH4 || t == SlotH5
}

// Request is an in-flight memory or uop operation admitted by the driver.
type Request struct {
	ID         xid.ID
	Addr       uint64
	Write      bool
	Handle     any // opaque driver handle, returned verbatim at callback
	Uop        *UOp
	AdmitCycle uint64
	DRAMStart  uint64
	DRAMDone   uint64

	idx int
}

// IsUop reports whether this request carries an offloaded uop.
func (r *Request) IsUop() bool {
	return r.Uop != nil
}

// Reset clears a Request for reuse from its pool.
func (r *Request) Reset() {
	idx := r.idx
	*r = Request{idx: idx}
}

func (r *Request) setPoolIndex(i int) { r.idx = i }
func (r *Request) poolIndex() int     { return r.idx }

// DepType is the kind of dependency a uop source records.
type DepType int

const (
	DepRegData DepType = iota
	DepMemAddr
	DepMemData
	DepPrevUop
)

// SrcInfo records one source-uop dependency: its kind and the producing uop.
type SrcInfo struct {
	Type DepType
	Uop  *UOp
}

// UopType mirrors the original's execution-unit opcode classes, trimmed to
// the subset a CXL offload engine actually dispatches to typed ports.
type UopType int

const (
	UopInvalid UopType = iota
	UopNop
	UopIAdd
	UopIMul
	UopIDiv
	UopIMisc
	UopFAdd
	UopFMul
	UopFDiv
	UopFMisc
	UopLoad
	UopStore
)

// MemType classifies whether (and how) a uop touches memory.
type MemType int

const (
	MemNone MemType = iota
	MemLoad
	MemStore
)

// UOp is an offloaded execution unit in the optional uop-scheduler mode.
type UOp struct {
	ID        xid.ID
	UniqueNum uint64 // monotonically increasing program order id
	CoreID    int
	Type      UopType
	MemType   MemType
	Addr      uint64
	Latency   uint64
	Sources   []SrcInfo
	ExecCycle uint64
	DoneCycle uint64
	SrcReady  bool
	Done      bool
	Handle    any

	// Req is a non-owning back-reference to the Request this uop travels
	// inside (Request.Uop is the forward reference). Set once at admission
	// so the device-side cache/MSHR/DRAM path — which keys everything off
	// *Request — can service a memory-type uop with the exact same code
	// path as a plain memory request (see internal/mxp).
	Req *Request

	idx int
}

// IsWrite reports whether this uop is a store.
func (u *UOp) IsWrite() bool {
	return u.MemType == MemStore
}

func (u *UOp) Reset() {
	idx := u.idx
	*u = UOp{idx: idx}
}

func (u *UOp) setPoolIndex(i int) { u.idx = i }
func (u *UOp) poolIndex() int     { return u.idx }

// Message is one transaction-layer unit crossing the VC buffers. DATA
// messages are non-owning children of their RWD/DRS parent; the parent is
// only released once ArrivedChild reaches the configured slots-per-flit.
// TxInsertDone/RxInsertDone are tracked separately because a message is
// timestamped once on its originating TX VC buffer and again, independently,
// after receive_flit re-inserts it into the peer's RX VC buffer.
type Message struct {
	ID   xid.ID
	Type MsgType
	Bits int
	VC   Channel
	Req  *Request // nil for DATA children

	Parent       *Message // non-nil only for DATA children
	ArrivedChild int      // parent-side counter of DATA children received

	TxInsertStart uint64
	TxInsertDone  uint64
	RxInsertStart uint64
	RxInsertDone  uint64

	data bool // true if this message is itself a DATA child

	idx int
}

func (m *Message) IsData() bool {
	return m.data
}

// MarkData flags this message as a DATA child.
func (m *Message) MarkData() { m.data = true }

// IsWDataMsg reports whether this message carries a data payload (RWD/DRS),
// i.e. whether it has (or will have) DATA children attached.
func (m *Message) IsWDataMsg() bool {
	return m.Type == MsgRWD || m.Type == MsgDRS
}

// ChildWaiting reports whether a wdata message is still missing one or more
// of its expected DATA children (expected count equals slots-per-flit).
func (m *Message) ChildWaiting(expectedChildren int) bool {
	return m.ArrivedChild < expectedChildren
}

// TxReady reports whether the message has cleared TX-VC insertion latency.
func (m *Message) TxReady(now uint64) bool {
	return now >= m.TxInsertDone
}

// RxReady reports whether the message has cleared RX-VC insertion latency.
func (m *Message) RxReady(now uint64) bool {
	return now >= m.RxInsertDone
}

func (m *Message) Reset() {
	idx := m.idx
	*m = Message{idx: idx}
}

func (m *Message) setPoolIndex(i int) { m.idx = i }
func (m *Message) poolIndex() int     { return m.idx }

// Slot is a fixed unit of a flit.
type Slot struct {
	ID     xid.ID
	Head   bool
	Type   SlotType
	MsgCnt [MaxMsgTypes]int
	Msgs   []*Message

	idx int
}

func (s *Slot) Reset() {
	idx := s.idx
	*s = Slot{idx: idx}
}

func (s *Slot) Append(msg *Message) {
	s.Msgs = append(s.Msgs, msg)
	s.MsgCnt[msg.Type]++
}

// Empty reports whether the slot has no messages yet.
func (s *Slot) Empty() bool {
	return len(s.Msgs) == 0
}

// MultiMsg reports whether the slot already holds more than one distinct
// message type (only general slots combining NDR and DRS ever do).
func (s *Slot) MultiMsg() bool {
	distinct := 0
	for _, cnt := range s.MsgCnt {
		if cnt > 0 {
			distinct++
		}
	}
	return distinct > 1
}

func (s *Slot) setPoolIndex(i int) { s.idx = i }
func (s *Slot) poolIndex() int     { return s.idx }

// Flit is a fixed-bit link payload carrying up to SlotsPerFlit slots.
type Flit struct {
	ID    xid.ID
	Bits  int
	Slots []*Slot

	MsgCnt [MaxMsgTypes]int

	ReplayInsertStart uint64
	ReplayInsertDone  uint64
	PhysStart         uint64
	PhysDone          uint64
	RxDLLDone         uint64
	PhysSent          bool

	idx int
}

func (f *Flit) Reset() {
	idx := f.idx
	*f = Flit{idx: idx}
}

func (f *Flit) setPoolIndex(i int) { f.idx = i }
func (f *Flit) poolIndex() int     { return f.idx }

func (f *Flit) AppendSlot(s *Slot) {
	f.Slots = append(f.Slots, s)
	for t := MsgType(0); t < MaxMsgTypes; t++ {
		f.MsgCnt[t] += s.MsgCnt[t]
	}
}

// PrependSlot inserts s as the new first slot, used for the data-rollover
// case where a header slot is pushed in front of a tail flit whose slots
// are all DATA.
func (f *Flit) PrependSlot(s *Slot) {
	f.Slots = append([]*Slot{s}, f.Slots...)
	for t := MsgType(0); t < MaxMsgTypes; t++ {
		f.MsgCnt[t] += s.MsgCnt[t]
	}
}

// IsDataRollover reports whether every slot currently in the flit is a G0
// DATA slot and the flit still has room for more slots.
func (f *Flit) IsDataRollover(slotsPerFlit int) bool {
	if len(f.Slots) == 0 || len(f.Slots) >= slotsPerFlit {
		return false
	}
	for _, s := range f.Slots {
		if s.Type != SlotG0 {
			return false
		}
	}
	return true
}
