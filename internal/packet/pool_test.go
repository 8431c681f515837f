package packet

import "testing"

func TestPoolAcquireGrowsSlab(t *testing.T) {
	p := NewPool[Message]()
	a := p.Acquire()
	b := p.Acquire()
	if a == b {
		t.Fatal("expected distinct entries from successive Acquire calls")
	}
	if p.InUse() != 2 {
		t.Fatalf("expected InUse()=2, got %d", p.InUse())
	}
}

func TestPoolReleaseReusesSlot(t *testing.T) {
	p := NewPool[Message]()
	a := p.Acquire()
	a.Type = MsgRWD
	a.TxInsertDone = 7
	p.Release(a)

	if p.InUse() != 0 {
		t.Fatalf("expected InUse()=0 after release, got %d", p.InUse())
	}

	b := p.Acquire()
	if b != a {
		t.Fatalf("expected Release+Acquire to reuse the same slab slot")
	}
	if b.Type != MsgREQ || b.TxInsertDone != 0 {
		t.Fatalf("expected Acquire to return a Reset entry, got %+v", b)
	}
}

func TestPoolReleaseIsConstantTime(t *testing.T) {
	p := NewPool[Slot]()
	entries := make([]*Slot, 0, 64)
	for i := 0; i < 64; i++ {
		entries = append(entries, p.Acquire())
	}
	// Release in reverse order; each Release must find its own slab index
	// via poolIndex() rather than scanning, so this should not panic or
	// mis-free an unrelated entry.
	for i := len(entries) - 1; i >= 0; i-- {
		p.Release(entries[i])
	}
	if p.InUse() != 0 {
		t.Fatalf("expected InUse()=0, got %d", p.InUse())
	}
}

func TestMessageParentChildNonOwningReference(t *testing.T) {
	pools := NewPools()
	parent := pools.Messages.Acquire()
	parent.Type = MsgRWD

	child := pools.Messages.Acquire()
	child.Type = MsgDATA
	child.data = true
	child.Parent = parent

	if !child.IsData() {
		t.Fatal("expected child.IsData() to be true")
	}
	if child.Parent != parent {
		t.Fatal("expected child.Parent to reference the live parent entry")
	}

	parent.ArrivedChild++
	pools.Messages.Release(child)

	// Releasing the child must not disturb the parent still in use.
	if parent.Type != MsgRWD || parent.ArrivedChild != 1 {
		t.Fatalf("releasing child corrupted parent: %+v", parent)
	}
}

func TestRequestIsUop(t *testing.T) {
	pools := NewPools()
	req := pools.Requests.Acquire()
	if req.IsUop() {
		t.Fatal("fresh Request should not carry a uop")
	}
	req.Uop = pools.Uops.Acquire()
	if !req.IsUop() {
		t.Fatal("expected IsUop() true once Uop is attached")
	}
}

func TestUopIsWrite(t *testing.T) {
	u := &UOp{MemType: MemStore}
	if !u.IsWrite() {
		t.Fatal("expected MemStore uop to report IsWrite()")
	}
	u.MemType = MemLoad
	if u.IsWrite() {
		t.Fatal("expected MemLoad uop to report !IsWrite()")
	}
}

func TestSlotAppendTracksMsgCnt(t *testing.T) {
	s := &Slot{}
	m1 := &Message{Type: MsgNDR}
	m2 := &Message{Type: MsgNDR}
	m3 := &Message{Type: MsgDRS}
	s.Append(m1)
	s.Append(m2)
	s.Append(m3)

	if s.MsgCnt[MsgNDR] != 2 {
		t.Errorf("expected MsgCnt[NDR]=2, got %d", s.MsgCnt[MsgNDR])
	}
	if s.MsgCnt[MsgDRS] != 1 {
		t.Errorf("expected MsgCnt[DRS]=1, got %d", s.MsgCnt[MsgDRS])
	}
	if len(s.Msgs) != 3 {
		t.Errorf("expected 3 msgs in slot, got %d", len(s.Msgs))
	}
}

func TestFlitIsDataRollover(t *testing.T) {
	f := &Flit{}
	g0 := &Slot{Type: SlotG0}
	f.AppendSlot(g0)

	if !f.IsDataRollover(4) {
		t.Error("expected single G0 slot with room left to be a rollover candidate")
	}

	f.AppendSlot(&Slot{Type: SlotG0})
	f.AppendSlot(&Slot{Type: SlotG0})
	f.AppendSlot(&Slot{Type: SlotG0})
	if f.IsDataRollover(4) {
		t.Error("expected a full flit to not be a rollover candidate")
	}

	f2 := &Flit{}
	f2.AppendSlot(&Slot{Type: SlotH4})
	if f2.IsDataRollover(4) {
		t.Error("expected a flit containing a header slot to not be a rollover candidate")
	}
}

func TestFlitPrependSlotOrdering(t *testing.T) {
	f := &Flit{}
	data := &Slot{Type: SlotG0}
	f.AppendSlot(data)

	head := &Slot{Type: SlotH4, Head: true}
	f.PrependSlot(head)

	if len(f.Slots) != 2 || f.Slots[0] != head || f.Slots[1] != data {
		t.Fatalf("expected [head, data] ordering after PrependSlot, got %+v", f.Slots)
	}
}

func TestMessageTxRxReady(t *testing.T) {
	m := &Message{TxInsertDone: 10, RxInsertDone: 20}
	if m.TxReady(9) {
		t.Error("message should not be tx-ready before TxInsertDone")
	}
	if !m.TxReady(10) {
		t.Error("message should be tx-ready at TxInsertDone")
	}
	if m.RxReady(19) {
		t.Error("message should not be rx-ready before RxInsertDone")
	}
	if !m.RxReady(20) {
		t.Error("message should be rx-ready at RxInsertDone")
	}
}

func TestMessageChildWaiting(t *testing.T) {
	m := &Message{Type: MsgRWD, ArrivedChild: 2}
	if !m.IsWDataMsg() {
		t.Fatal("RWD message should report IsWDataMsg()")
	}
	if !m.ChildWaiting(4) {
		t.Error("expected ChildWaiting(4) true with only 2 of 4 children arrived")
	}
	m.ArrivedChild = 4
	if m.ChildWaiting(4) {
		t.Error("expected ChildWaiting(4) false once all children arrived")
	}
}

func TestChannelString(t *testing.T) {
	cases := map[Channel]string{
		ChannelWOD:  "WOD",
		ChannelWD:   "WD",
		ChannelData: "DATA",
		ChannelUop:  "UOP",
	}
	for ch, want := range cases {
		if got := ch.String(); got != want {
			t.Errorf("Channel(%d).String() = %q, want %q", ch, got, want)
		}
	}
}
