package dram

import "testing"

func TestSendRejectsWhenAtCapacity(t *testing.T) {
	m := NewFixedLatencyModel(4, 1)
	if !m.Send(Request{Addr: 0x100, Callback: func(Request) {}}) {
		t.Fatal("expected first send to be admitted")
	}
	if m.Send(Request{Addr: 0x200, Callback: func(Request) {}}) {
		t.Fatal("expected second send to be rejected at capacity")
	}
}

func TestCallbackFiresAfterLatency(t *testing.T) {
	m := NewFixedLatencyModel(3, 4)
	fired := false
	m.Send(Request{Addr: 0x100, Callback: func(Request) { fired = true }})

	for i := 0; i < 2; i++ {
		m.Tick()
		if fired {
			t.Fatalf("callback fired early at cycle %d", i+1)
		}
	}
	m.Tick()
	if !fired {
		t.Fatal("expected callback to fire once latency elapsed")
	}
	if m.InFlight() != 0 {
		t.Errorf("expected request to be retired from in-flight tracking, got %d remaining", m.InFlight())
	}
}

func TestSendFreesCapacityAfterCompletion(t *testing.T) {
	m := NewFixedLatencyModel(1, 1)
	m.Send(Request{Addr: 0x100, Callback: func(Request) {}})
	m.Tick()
	if !m.Send(Request{Addr: 0x200, Callback: func(Request) {}}) {
		t.Fatal("expected capacity to free up once the first request completed")
	}
}
