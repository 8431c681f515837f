package rc

import (
	"testing"

	"github.com/joonho3020/CXLSim/internal/config"
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
	return c
}

func TestFullGatesOnPendingSize(t *testing.T) {
	cfg := testConfig()
	cfg.PCIeInsertQSize = 1
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	host := New(cfg, pools, physCap)

	if host.Full() {
		t.Fatal("expected an empty root complex to not report full")
	}
	host.InsertRequest(&packet.Request{})
	if !host.Full() {
		t.Fatal("expected root complex to report full once pending queue hits its configured depth")
	}
}

func TestStartTransactionStopsAtFirstRejection(t *testing.T) {
	cfg := testConfig()
	cfg.PCIeTXVCCapacity = 1
	cfg.PCIeTXVCBW = 100
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	host := New(cfg, pools, physCap)

	r1 := &packet.Request{Write: false}
	r2 := &packet.Request{Write: false}
	host.InsertRequest(r1)
	host.InsertRequest(r2)

	host.StartTransaction()

	if len(host.pendingReq) != 1 {
		t.Fatalf("expected the second request to remain pending after the first fills the channel, got %d left", len(host.pendingReq))
	}
	if host.pendingReq[0] != r2 {
		t.Fatal("expected r2 to be the request left behind")
	}
}

func TestRequestReachesDeviceEndpoint(t *testing.T) {
	cfg := testConfig()
	pools := packet.NewPools()
	physCap, _ := config.DerivePhysCapacity(cfg.PCIeLanes)
	host := New(cfg, pools, physCap)
	dev := endpoint.New(cfg, pools, false, physCap, noopTransactor{})
	endpoint.Link(host.Endpoint(), dev)

	req := &packet.Request{Write: false}
	host.InsertRequest(req)

	var got *packet.Message
	for i := 0; i < 40 && got == nil; i++ {
		host.RunACycle()
		dev.RunACycle()
		got = dev.PullRXVC()
	}
	if got == nil {
		t.Fatal("expected the admitted request to arrive at the device endpoint's RX-VC")
	}
	if got.Req != req {
		t.Error("expected the arriving message to still reference the original request")
	}
}
