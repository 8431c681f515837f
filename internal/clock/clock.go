// Package clock implements the multi-domain rational clock scheduler that
// drives the IO-side pipeline (endpoint/VC/DLL/PHY) and the DRAM-side
// domain at their correct relative rate without floating-point drift.
package clock

import "math"

// Domain names the two clock domains the simulator advances. Named after
// cxlsim.h's CLOCK_DOMAIN enum (CLOCK_IO, CLOCK_CXLRAM).
type Domain int

const (
	DomainIO Domain = iota
	DomainCXLRAM
	DomainCount
)

func (d Domain) String() string {
	switch d {
	case DomainIO:
		return "io"
	case DomainCXLRAM:
		return "cxlram"
	default:
		return "unknown"
	}
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// MultiDomainClock advances an IO-domain master tick and derives how many
// CXLRAM-domain ticks should run alongside it using an exact integer ratio
// (a Bresenham-style rational clock), so the long-run average frequency
// ratio matches the configured knobs with zero floating-point drift — the
// Go-idiomatic analogue of cxlt3_c::run_a_cycle_internal ticking the
// ramulator wrapper a variable number of times per IO cycle.
type MultiDomainClock struct {
	ioRate, ramRate uint64 // reduced integer ratio: ramRate ram-ticks per ioRate io-ticks
	acc             uint64
	ioCycle         uint64
	ramCycle        uint64
}

// NewMultiDomainClock builds a clock from the configured IO and CXLRAM
// domain frequencies (in GHz, as read from clock_io and the DRAM model's
// own clock knob). Frequencies are reduced to an exact integer ratio at
// 1e-6 GHz (1 kHz) precision.
func NewMultiDomainClock(ioHz, ramHz float64) *MultiDomainClock {
	const precision = 1_000_000
	ioNum := uint64(math.Round(ioHz * precision))
	ramNum := uint64(math.Round(ramHz * precision))
	if ioNum == 0 {
		ioNum = 1
	}
	if ramNum == 0 {
		ramNum = 1
	}
	if g := gcd(ioNum, ramNum); g > 1 {
		ioNum /= g
		ramNum /= g
	}
	return &MultiDomainClock{ioRate: ioNum, ramRate: ramNum}
}

// Tick advances the IO domain by one cycle and returns how many CXLRAM
// domain cycles should run this call. Call exactly once per Simulator.RunACycle.
func (c *MultiDomainClock) Tick() int {
	c.ioCycle++
	c.acc += c.ramRate
	n := 0
	for c.acc >= c.ioRate {
		c.acc -= c.ioRate
		n++
		c.ramCycle++
	}
	return n
}

// IOCycle returns the number of IO-domain ticks elapsed so far.
func (c *MultiDomainClock) IOCycle() uint64 { return c.ioCycle }

// RAMCycle returns the number of CXLRAM-domain ticks elapsed so far.
func (c *MultiDomainClock) RAMCycle() uint64 { return c.ramCycle }
