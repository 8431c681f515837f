// Package vc implements the PCIe/CXL.mem virtual-channel buffer and flit
// builder: per-channel message admission, the table-driven header/general
// slot composer, data-message expansion with flit rollover, and the RX-side
// message dequeue/receive-flit path.
//
// Each endpoint owns two instances: one with tx=true building outbound
// flits from its own channel buffers, one with tx=false reassembling
// inbound flits back into per-channel message queues for the transaction
// layer to pull from.
package vc

import (
	"github.com/joonho3020/CXLSim/internal/config"
	"github.com/joonho3020/CXLSim/internal/packet"
)

// limits bundles the three composition-limit tables (Table H/G/F from the
// driver API), populated once at construction exactly like the original's
// init() populating m_hslot_msg_limit/m_gslot_msg_limit/m_flit_msg_limit.
type limits struct {
	hslot [packet.MaxMsgTypes]int
	gslot [packet.MaxMsgTypes]int
	flit  [packet.MaxMsgTypes]int
}

func newLimits() limits {
	var l limits
	l.hslot[packet.MsgREQ] = 1
	l.hslot[packet.MsgRWD] = 1
	l.hslot[packet.MsgDRS] = 2
	l.hslot[packet.MsgNDR] = 2

	l.gslot[packet.MsgREQ] = 1
	l.gslot[packet.MsgRWD] = 1
	l.gslot[packet.MsgDRS] = 2
	l.gslot[packet.MsgNDR] = 2

	l.flit[packet.MsgREQ] = 2
	l.flit[packet.MsgRWD] = 1
	l.flit[packet.MsgDRS] = 3
	l.flit[packet.MsgNDR] = 2
	return l
}

// Buffer is one direction (TX or RX) of a virtual-channel buffer attached
// to an endpoint, grounded on vc_buff_c.
type Buffer struct {
	pools  *packet.Pools
	cfg    *config.Config
	lim    limits
	isTX   bool
	master bool

	cycle uint64

	channelCnt [packet.MaxChannel]int
	msgBuff    []*packet.Message
	flitBuff   []*packet.Flit
}

// NewBuffer constructs a VC buffer. isTX selects the transaction direction
// (true = outbound flit builder, false = inbound message reassembler);
// master selects the role (true = root complex / M2S side, false = device /
// S2M side), matching vc_buff_c::init's is_tx/is_master parameters.
func NewBuffer(pools *packet.Pools, cfg *config.Config, isTX, master bool) *Buffer {
	return &Buffer{
		pools:  pools,
		cfg:    cfg,
		lim:    newLimits(),
		isTX:   isTX,
		master: master,
	}
}

// capacity returns this buffer's configured per-channel capacity: TX and RX
// directions are sized from distinct knobs (pcie_txvc_capacity vs.
// pcie_rxvc_capacity).
func (b *Buffer) capacity() int {
	if b.isTX {
		return b.cfg.PCIeTXVCCapacity
	}
	return b.cfg.PCIeRXVCCapacity
}

// Full reports whether the given channel is at capacity.
func (b *Buffer) Full(ch packet.Channel) bool {
	return b.channelCnt[ch] >= b.capacity()
}

// Empty reports whether the given channel currently holds no messages.
func (b *Buffer) Empty(ch packet.Channel) bool {
	return b.channelCnt[ch] == 0
}

// Free returns the remaining admission room in the given channel.
func (b *Buffer) Free(ch packet.Channel) int {
	return b.capacity() - b.channelCnt[ch]
}

// FlitFull reports whether the in-progress flit buffer has grown to the
// point that a new flit composition cannot be started — mirrored from the
// driver API's flit_full() gate on push_txvc admission. pcie_endpoint.cc's
// call to vc_buff_c::init passes a dedicated tx/rx flitbuff capacity, so
// that is what this gates on (see DESIGN.md for the source-variant note).
func (b *Buffer) FlitFull() bool {
	if b.isTX {
		return len(b.flitBuff) >= b.cfg.PCIeTXFlitBuffCapacity
	}
	return len(b.flitBuff) >= b.cfg.PCIeRXFlitBuffCapacity
}

// GetChannel maps a request's role/write-flag pair to its virtual channel,
// exactly reproducing vc_buff_c::get_channel's (write, master) switch:
// master+write -> WD, master+!write -> WOD, device+write -> WOD,
// device+!write -> WD. A uop-carrying request always routes to the
// dedicated UOP channel regardless of its write flag (core spec §3's
// channel table lists UOP as its own offload class).
func (b *Buffer) GetChannel(req *packet.Request) packet.Channel {
	if req.IsUop() {
		return packet.ChannelUop
	}
	if req.Write {
		if b.master {
			return packet.ChannelWD
		}
		return packet.ChannelWOD
	}
	if b.master {
		return packet.ChannelWOD
	}
	return packet.ChannelWD
}

// Insert admits a new request's message onto its channel.
func (b *Buffer) Insert(req *packet.Request) {
	ch := b.GetChannel(req)
	msg := b.acquireMessage(ch, req)
	b.insertChannel(msg)
}

// PeekFlit returns the oldest composed-but-undrained flit, or nil.
func (b *Buffer) PeekFlit() *packet.Flit {
	if len(b.flitBuff) == 0 {
		return nil
	}
	return b.flitBuff[0]
}

// PopFlit removes the oldest composed flit. Caller must have confirmed
// PeekFlit returned non-nil.
func (b *Buffer) PopFlit() {
	b.flitBuff = b.flitBuff[1:]
}

// PullMsg dequeues the first ready message on the given channel, skipping
// messages not yet past RX-VC insertion latency or whose data children
// haven't all arrived, exactly mirroring vc_buff_c::pull_msg. Only valid on
// an RX-direction buffer.
func (b *Buffer) PullMsg(ch packet.Channel) *packet.Message {
	for i, msg := range b.msgBuff {
		if msg.VC != ch || msg.RxInsertDone > b.cycle {
			continue
		}
		if msg.IsWDataMsg() && msg.ChildWaiting(b.cfg.PCIeSlotsPerFlit) {
			continue
		}
		b.removeMsgAt(i)
		return msg
	}
	return nil
}

// ReceiveFlit tears a received flit back down into its constituent
// messages: DATA children increment their parent's arrival counter and are
// released immediately, while non-data messages are re-admitted onto their
// channel for the transaction layer to pull. Mirrors vc_buff_c::receive_flit.
func (b *Buffer) ReceiveFlit(flit *packet.Flit) {
	for _, slot := range flit.Slots {
		for _, msg := range slot.Msgs {
			if msg.IsData() {
				msg.Parent.ArrivedChild++
				b.releaseMsg(msg)
			} else {
				b.insertChannel(msg)
			}
		}
		b.pools.Slots.Release(slot)
	}
	b.pools.Flits.Release(flit)
}

// RunACycle advances the buffer's internal cycle counter.
func (b *Buffer) RunACycle() {
	b.cycle++
}

// GenerateFlits is the per-cycle TX flit-builder entry point: it collects
// ready messages, then either starts a new flit, continues the in-progress
// back flit (appending a general slot, or prepending a header slot onto a
// data-rollover tail), or rolls over into a fresh flit once the back one is
// full. Mirrors vc_buff_c::generate_flits.
func (b *Buffer) GenerateFlits() {
	var ready []*packet.Message
	for _, msg := range b.msgBuff {
		if b.isTX && msg.TxReady(b.cycle) {
			ready = append(ready, msg)
		} else if !b.isTX && msg.RxReady(b.cycle) {
			ready = append(ready, msg)
		}
	}
	if len(ready) == 0 {
		return
	}

	if len(b.flitBuff) == 0 {
		b.generateNewFlit(&ready)
		return
	}

	back := b.flitBuff[len(b.flitBuff)-1]
	switch {
	case back.IsDataRollover(b.cfg.PCIeSlotsPerFlit):
		if hslot := b.generateHSlot(&ready); hslot != nil {
			back.PrependSlot(hslot)
			b.addDataSlotsAndInsertFromSlot(back, hslot)
		}
	case len(back.Slots) < b.cfg.PCIeSlotsPerFlit:
		if gslot := b.generateGSlot(&ready, back); gslot != nil {
			back.AppendSlot(gslot)
			b.addDataSlotsAndInsertFromSlot(back, gslot)
		}
	default:
		b.generateNewFlit(&ready)
	}
}

func (b *Buffer) generateNewFlit(msgs *[]*packet.Message) {
	hslot := b.generateHSlot(msgs)
	if hslot == nil {
		return
	}
	flit := b.pools.Flits.Acquire()
	flit.Bits = b.cfg.PCIeFlitBits
	flit.AppendSlot(hslot)

	for i := 0; i < b.cfg.PCIeSlotsPerFlit-1; i++ {
		if len(*msgs) == 0 {
			break
		}
		if gslot := b.generateGSlot(msgs, flit); gslot != nil {
			flit.AppendSlot(gslot)
		}
	}

	b.flitBuff = append(b.flitBuff, flit)
	b.addDataSlotsAndInsertFromFlit(flit)
}

// addDataSlotsAndInsertFromSlot expands only the wdata messages that were
// just placed in slot, mirroring the two-argument add_data_slots_and_insert
// overload used after appending a single new slot to an existing flit.
func (b *Buffer) addDataSlotsAndInsertFromSlot(flit *packet.Flit, slot *packet.Slot) {
	var dataSlots []*packet.Slot
	for _, msg := range slot.Msgs {
		if !msg.IsWDataMsg() {
			continue
		}
		dataSlots = append(dataSlots, b.expandDataChildren(msg)...)
	}
	b.insertDataSlots(flit, dataSlots)
}

// addDataSlotsAndInsertFromFlit expands every wdata message across every
// slot of a freshly composed flit, mirroring the one-argument overload
// called right after generate_new_flit finishes.
func (b *Buffer) addDataSlotsAndInsertFromFlit(flit *packet.Flit) {
	var dataSlots []*packet.Slot
	for _, slot := range flit.Slots {
		for _, msg := range slot.Msgs {
			if !msg.IsWDataMsg() {
				continue
			}
			dataSlots = append(dataSlots, b.expandDataChildren(msg)...)
		}
	}
	b.insertDataSlots(flit, dataSlots)
}

func (b *Buffer) expandDataChildren(parent *packet.Message) []*packet.Slot {
	slots := make([]*packet.Slot, 0, b.cfg.PCIeSlotsPerFlit)
	for i := 0; i < b.cfg.PCIeSlotsPerFlit; i++ {
		data := b.pools.Messages.Acquire()
		data.Type = packet.MsgDATA
		data.Bits = b.cfg.PCIeDataMsgBits
		data.VC = packet.ChannelData
		data.Parent = parent
		data.MarkData()

		slot := b.pools.Slots.Acquire()
		slot.Append(data)
		slot.Type = packet.SlotG0
		slots = append(slots, slot)
	}
	return slots
}

// insertDataSlots spills data slots into flit until it is full, then spills
// the remainder into fresh flits, mirroring vc_buff_c::insert_data_slots.
func (b *Buffer) insertDataSlots(flit *packet.Flit, dataSlots []*packet.Slot) {
	var overflow *packet.Flit
	for _, slot := range dataSlots {
		if len(flit.Slots) < b.cfg.PCIeSlotsPerFlit {
			flit.AppendSlot(slot)
			continue
		}
		if overflow == nil {
			overflow = b.pools.Flits.Acquire()
			overflow.Bits = b.cfg.PCIeFlitBits
		}
		overflow.AppendSlot(slot)
		if len(overflow.Slots) == b.cfg.PCIeSlotsPerFlit {
			b.flitBuff = append(b.flitBuff, overflow)
			overflow = nil
		}
	}
	if overflow != nil {
		b.flitBuff = append(b.flitBuff, overflow)
	}
}

// generateHSlot gates on the head-slot wait cycle, then greedily accumulates
// same-type messages from the ready list into one new header slot, removing
// consumed messages from both the ready list and the buffer. Mirrors
// vc_buff_c::generate_hslot.
func (b *Buffer) generateHSlot(msgs *[]*packet.Message) *packet.Slot {
	if len(*msgs) == 0 {
		return nil
	}
	oldest := (*msgs)[0]
	if b.cycle-oldest.TxInsertDone < b.cfg.PCIeMaxFlitWaitCyc {
		return nil
	}

	var newSlot *packet.Slot
	var consumed []int
	for i, msg := range *msgs {
		if b.checkValidHeader(newSlot, msg) {
			if newSlot == nil {
				newSlot = b.pools.Slots.Acquire()
				newSlot.Head = true
			}
			newSlot.Append(msg)
			consumed = append(consumed, i)
		}
	}
	if newSlot != nil {
		newSlot.Type = headerSlotType(newSlot)
	}
	b.removeIndices(msgs, consumed)
	return newSlot
}

// generateGSlot greedily accumulates compatible messages from the ready
// list into one new general slot under the Table G / Table F limits.
// Mirrors vc_buff_c::generate_gslot.
func (b *Buffer) generateGSlot(msgs *[]*packet.Message, flit *packet.Flit) *packet.Slot {
	var newSlot *packet.Slot
	var consumed []int
	for i, msg := range *msgs {
		if b.checkValidGeneral(newSlot, msg, flit) {
			if newSlot == nil {
				newSlot = b.pools.Slots.Acquire()
			}
			newSlot.Append(msg)
			consumed = append(consumed, i)
		}
	}
	if newSlot != nil {
		newSlot.Type = generalSlotType(newSlot)
	}
	b.removeIndices(msgs, consumed)
	return newSlot
}

// checkValidHeader implements Table H: an empty slot accepts anything; a
// non-empty header slot only grows if msg is the same type already present
// and under the per-type header limit.
func (b *Buffer) checkValidHeader(slot *packet.Slot, msg *packet.Message) bool {
	if slot == nil || slot.Empty() {
		return true
	}
	if slot.MsgCnt[msg.Type] != 0 {
		return slot.MsgCnt[msg.Type] < b.lim.hslot[msg.Type]
	}
	return false
}

// checkValidGeneral implements Table G combined with the Table F per-flit
// cap: NDR/DRS may share a general slot under the DRS<2&&NDR<2 or
// DRS<1&&NDR<3 combinatorial rule; REQ/RWD never share a slot with another
// type. Mirrors vc_buff_c::check_valid_general.
func (b *Buffer) checkValidGeneral(slot *packet.Slot, msg *packet.Message, flit *packet.Flit) bool {
	flitOK := flit.MsgCnt[msg.Type] < b.lim.flit[msg.Type]

	var slotOK bool
	switch {
	case slot == nil || slot.Empty():
		slotOK = true
	case slot.MultiMsg() || slot.MsgCnt[msg.Type] == 0:
		switch msg.Type {
		case packet.MsgNDR:
			slotOK = slot.MsgCnt[packet.MsgDRS] < 2 && slot.MsgCnt[packet.MsgNDR] < 2
		case packet.MsgDRS:
			slotOK = slot.MsgCnt[packet.MsgDRS] < 1 && slot.MsgCnt[packet.MsgNDR] < 3
		default:
			slotOK = false
		}
	default:
		slotOK = slot.MsgCnt[msg.Type] < b.lim.gslot[msg.Type]
	}
	return slotOK && flitOK
}

// headerSlotType assigns a header slot's type by the message type it
// carries (checkValidHeader never lets a header slot mix types, so exactly
// one of these counts is nonzero). Mirrors slot_s::assign_type's m_head
// branch.
func headerSlotType(s *packet.Slot) packet.SlotType {
	switch {
	case s.MsgCnt[packet.MsgREQ] > 0:
		return packet.SlotH5
	case s.MsgCnt[packet.MsgRWD] > 0:
		return packet.SlotH4
	case s.MsgCnt[packet.MsgDRS] > 0:
		return packet.SlotH5
	default: // NDR
		return packet.SlotH4
	}
}

// generalSlotType assigns a general slot's type by the message type(s) it
// carries. Mirrors slot_s::assign_type's non-head branch: REQ and RWD never
// share a slot with another type (checkValidGeneral); NDR/DRS may combine,
// in which case the combination itself takes G4.
func generalSlotType(s *packet.Slot) packet.SlotType {
	switch {
	case s.MsgCnt[packet.MsgREQ] > 0:
		return packet.SlotG4
	case s.MsgCnt[packet.MsgRWD] > 0:
		return packet.SlotG5
	case s.MsgCnt[packet.MsgDRS] > 0 && s.MsgCnt[packet.MsgNDR] > 0:
		return packet.SlotG4
	case s.MsgCnt[packet.MsgNDR] > 0:
		return packet.SlotG5
	case s.MsgCnt[packet.MsgDRS] > 0:
		return packet.SlotG6
	default: // DATA
		return packet.SlotG0
	}
}

func (b *Buffer) insertChannel(msg *packet.Message) {
	b.channelCnt[msg.VC]++
	b.msgBuff = append(b.msgBuff, msg)
	if b.isTX {
		msg.TxInsertStart = b.cycle
		msg.TxInsertDone = b.cycle + b.cfg.PCIeTXTransLatency
	} else {
		msg.RxInsertStart = b.cycle
		msg.RxInsertDone = b.cycle + b.cfg.PCIeRXTransLatency
	}
}

func (b *Buffer) removeMsgAt(i int) {
	msg := b.msgBuff[i]
	b.channelCnt[msg.VC]--
	b.msgBuff = append(b.msgBuff[:i], b.msgBuff[i+1:]...)
}

func (b *Buffer) removeMsg(target *packet.Message) {
	for i, msg := range b.msgBuff {
		if msg == target {
			b.removeMsgAt(i)
			return
		}
	}
}

// removeIndices deletes the given indices (ascending, as built by the
// generate*Slot scans) from *msgs and from the channel buffer.
func (b *Buffer) removeIndices(msgs *[]*packet.Message, indices []int) {
	if len(indices) == 0 {
		return
	}
	for _, i := range indices {
		b.removeMsg((*msgs)[i])
	}
	kept := (*msgs)[:0:0]
	skip := make(map[int]bool, len(indices))
	for _, i := range indices {
		skip[i] = true
	}
	for i, msg := range *msgs {
		if !skip[i] {
			kept = append(kept, msg)
		}
	}
	*msgs = kept
}

func (b *Buffer) releaseMsg(msg *packet.Message) {
	b.pools.Messages.Release(msg)
}

func (b *Buffer) acquireMessage(ch packet.Channel, req *packet.Request) *packet.Message {
	msg := b.pools.Messages.Acquire()
	msg.VC = ch
	msg.Req = req

	if b.master {
		switch ch {
		case packet.ChannelWOD:
			msg.Type = packet.MsgREQ
			msg.Bits = b.cfg.PCIeReqMsgBits
		case packet.ChannelWD:
			msg.Type = packet.MsgRWD
			msg.Bits = b.cfg.PCIeRWDMsgBits
		case packet.ChannelData:
			msg.Type = packet.MsgDATA
			msg.Bits = b.cfg.PCIeDataMsgBits
		case packet.ChannelUop:
			// A uop offload admission carries no write-data payload,
			// framed like a plain REQ.
			msg.Type = packet.MsgREQ
			msg.Bits = b.cfg.PCIeReqMsgBits
		}
	} else {
		switch ch {
		case packet.ChannelWOD:
			msg.Type = packet.MsgNDR
			msg.Bits = b.cfg.PCIeNDRMsgBits
		case packet.ChannelWD:
			msg.Type = packet.MsgDRS
			msg.Bits = b.cfg.PCIeDRSMsgBits
		case packet.ChannelData:
			msg.Type = packet.MsgDATA
			msg.Bits = b.cfg.PCIeDataMsgBits
		case packet.ChannelUop:
			// A uop completion carries no data payload, framed like NDR.
			msg.Type = packet.MsgNDR
			msg.Bits = b.cfg.PCIeNDRMsgBits
		}
	}
	return msg
}

// ChannelCount reports live message count per channel, for diagnostics/tests.
func (b *Buffer) ChannelCount(ch packet.Channel) int {
	return b.channelCnt[ch]
}
