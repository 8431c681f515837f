package endpoint

import (
	"testing"

	"github.com/joonho3020/CXLSim/internal/config"
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
	return c
}

func newLinkedPair(cfg *config.Config) (rc, mxp *Endpoint) {
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	rc = New(cfg, pools, true, physCap, noopTransactor{})
	mxp = New(cfg, pools, false, physCap, noopTransactor{})
	Link(rc, mxp)
	return rc, mxp
}

func TestPushTXVCRejectsWhenChannelFull(t *testing.T) {
	cfg := testConfig()
	cfg.PCIeTXVCCapacity = 1
	rc, _ := newLinkedPair(cfg)

	if !rc.PushTXVC(&packet.Request{Write: false}) {
		t.Fatal("expected first push to succeed")
	}
	if rc.PushTXVC(&packet.Request{Write: false}) {
		t.Fatal("expected second push to fail once the channel is full")
	}
}

func TestRequestTraversesLinkEndToEnd(t *testing.T) {
	cfg := testConfig()
	rc, mxp := newLinkedPair(cfg)

	if !rc.PushTXVC(&packet.Request{Write: false}) {
		t.Fatal("expected push to succeed")
	}

	// Drive enough cycles for generate_flits -> txdll -> txphys -> rxphys -> rxvc.
	var got *packet.Message
	for i := 0; i < 20 && got == nil; i++ {
		rc.RunACycle()
		mxp.RunACycle()
		got = mxp.PullRXVC()
	}
	if got == nil {
		t.Fatal("expected the request to arrive at the device endpoint's RX-VC within 20 cycles")
	}
	if got.Type != packet.MsgREQ {
		t.Errorf("expected a REQ message to arrive, got %s", got.Type)
	}
}

func TestCheckPeerCreditMsgRejectsWhenPeerChannelFull(t *testing.T) {
	cfg := testConfig()
	cfg.PCIeRXVCCapacity = 0
	rc, _ := newLinkedPair(cfg)

	msg := &packet.Message{Type: packet.MsgREQ, VC: packet.ChannelWOD}
	if rc.checkPeerCreditMsg(msg) {
		t.Fatal("expected checkPeerCreditMsg to report no credit when peer RX-VC capacity is zero")
	}
}

func TestProcessTxDLLBreaksInsteadOfHangingOnCreditFailure(t *testing.T) {
	cfg := testConfig()
	cfg.PCIeRXVCCapacity = 0 // peer never has credit
	rc, _ := newLinkedPair(cfg)

	if !rc.PushTXVC(&packet.Request{Write: false}) {
		t.Fatal("expected push to succeed")
	}
	rc.TXVC.GenerateFlits()

	// A literal translation of the source would spin forever here since the
	// credit check never succeeds and cnt is never incremented; this call
	// must simply return with the flit left in place.
	rc.processTxDLL()
	if rc.TXVC.PeekFlit() == nil {
		t.Fatal("expected the un-admitted flit to remain in the TX-VC flit buffer")
	}
}
