package config

import (
	"testing"

	"github.com/joonho3020/CXLSim/internal/errs"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default() config should validate cleanly, got: %v", err)
	}
}

func TestValidateRejectsNonPow2Lanes(t *testing.T) {
	c := Default()
	c.PCIeLanes = 3
	err := c.Validate()
	if err == nil {
		t.Fatal("expected an error for non-power-of-two lane count")
	}
	if !errs.IsCode(err, errs.ErrCodeLanesNotPow2) {
		t.Errorf("expected ErrCodeLanesNotPow2, got %v", err)
	}
}

func TestValidateRejectsUnknownScheduler(t *testing.T) {
	c := Default()
	c.Scheduler = "round_robin"
	err := c.Validate()
	if !errs.IsCode(err, errs.ErrCodeConfigInvalid) {
		t.Errorf("expected ErrCodeConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsEmptyRamulatorConfig(t *testing.T) {
	c := Default()
	c.RamulatorConfigFile = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for empty ramulator config path")
	}
}

func TestDerivePhysCapacity(t *testing.T) {
	cases := map[int]int{16: 4, 8: 2, 4: 1, 2: 1, 1: 1}
	for lanes, want := range cases {
		got, err := DerivePhysCapacity(lanes)
		if err != nil {
			t.Fatalf("DerivePhysCapacity(%d) returned error: %v", lanes, err)
		}
		if got != want {
			t.Errorf("DerivePhysCapacity(%d) = %d, want %d", lanes, got, want)
		}
	}
	if _, err := DerivePhysCapacity(3); err == nil {
		t.Error("expected an error for an unsupported lane count")
	}
}

func TestPhysLatencyCycles(t *testing.T) {
	c := Default()
	// 544 bits / (8 lanes * 32 GT/s) * 0.8 GHz == 1.7 cycles -> ceil to 2.
	got := c.PhysLatencyCycles()
	if got != 2 {
		t.Errorf("PhysLatencyCycles() = %d, want 2", got)
	}
}

// TestPhysLatencyCyclesRoundsUpNotToNearest pins clock_io so the raw value
// lands strictly between 1 and 1.5 cycles, where round-to-nearest and
// round-up diverge (round would give 1, ceil must give 2).
func TestPhysLatencyCyclesRoundsUpNotToNearest(t *testing.T) {
	c := Default()
	// 544 / (8 * 32) * ClockIO == 1.2 cycles when ClockIO == 2.125*1.2/2.125...
	// solve ClockIO so that 2.125 * ClockIO == 1.2 cycles exactly.
	c.ClockIO = 1.2 / 2.125
	got := c.PhysLatencyCycles()
	if got != 2 {
		t.Errorf("PhysLatencyCycles() = %d, want 2 (ceil of 1.2, not round-to-nearest's 1)", got)
	}
}
