// Package config holds the simulator's knob registry: every tunable named
// in the driver API, its default, and the validation/derivation rules that
// turn raw knob values into the ratios and capacities the rest of the
// packages consume directly (no package outside internal/config reads a
// knob by name).
package config

import (
	"fmt"
	"math"

	"github.com/joonho3020/CXLSim/internal/errs"
)

// Scheduler selects the uop scheduler's issue policy.
type Scheduler string

const (
	SchedulerInOrder    Scheduler = "in_order"
	SchedulerOutOfOrder Scheduler = "out_of_order"
)

// Config is the flat knob registry, one field per knob named in the driver
// API. Defaults mirror all_knobs.cc exactly where that file defines the
// knob; knobs referenced elsewhere in the original (KNOB_PCIE_TXVC_BW,
// KNOB_PCIE_RXVC_BW, KNOB_PCIE_REPLAY_BW, KNOB_PCIE_INSERTQ_SIZE,
// KNOB_PCIE_MAX_FLIT_WAIT_CYCLE) but whose def-file entry is not present in
// this retrieval pack get defaults sized in proportion to their sibling
// capacity/bandwidth knobs, noted per-field below.
type Config struct {
	// Clock domains.
	ClockIO float64 // KNOB_CLOCK_IO, GHz

	// PCIe lane/link.
	PCIeLanes     int     // KNOB_PCIE_LANES, must be a power of two
	PCIePerLaneBW float64 // KNOB_PCIE_PER_LANE_BW, GT/s

	// Virtual channels and queue capacities.
	PCIeVCCount           int // KNOB_PCIE_VC_CNT
	PCIeTXVCCapacity      int // KNOB_PCIE_TXVC_CAPACITY, per-channel
	PCIeRXVCCapacity      int // KNOB_PCIE_RXVC_CAPACITY, per-channel
	PCIeTXDLLCapacity     int // KNOB_PCIE_TXDLL_CAPACITY (replay buffer depth)
	PCIeTXReplayCapacity  int // KNOB_PCIE_TXREPLAY_CAPACITY
	PCIePhysCapacity      int // KNOB_PCIE_PHYS_CAPACITY (derived from lanes if 0)
	PCIeInsertQSize       int // KNOB_PCIE_INSERTQ_SIZE, default sized like TXVC capacity * VC count

	// In-progress flit buffer depth. pcie_endpoint.cc's vc_buff_c::init call
	// site passes separate tx/rx flitbuff capacities that this retrieval
	// pack's vc_buff_c::init signature does not actually accept (another
	// source-variant mismatch, see DESIGN.md) — kept here since push_txvc's
	// flit_full() gate needs a concrete bound.
	PCIeTXFlitBuffCapacity int // KNOB_PCIE_TXFLITBUFF_CAPACITY
	PCIeRXFlitBuffCapacity int // KNOB_PCIE_RXFLITBUFF_CAPACITY

	// Per-cycle admission bandwidths. Not present in the retrieved
	// all_knobs.cc; defaulted to 1 (serial admission per cycle), matching
	// how process_txphys and process_txdll each advance one flit per cycle.
	PCIeTXVCBW   int // KNOB_PCIE_TXVC_BW
	PCIeRXVCBW   int // KNOB_PCIE_RXVC_BW
	PCIeReplayBW int // KNOB_PCIE_REPLAY_BW

	// Latencies, in IO-domain cycles.
	PCIeTXTransLatency uint64 // KNOB_PCIE_TXTRANS_LATENCY
	PCIeRXTransLatency uint64 // KNOB_PCIE_RXTRANS_LATENCY
	PCIeTXDLLLatency   uint64 // KNOB_PCIE_TXDLL_LATENCY
	PCIeRXDLLLatency   uint64 // KNOB_PCIE_RXDLL_LATENCY
	PCIeArbMuxLatency  uint64 // KNOB_PCIE_ARBMUX_LATENCY

	// Flit/slot geometry.
	PCIeFlitBits        int // KNOB_PCIE_FLIT_BITS
	PCIeSlotsPerFlit    int // KNOB_PCIE_DATA_SLOTS_PER_FLIT
	PCIeMaxMsgPerFlit   int // KNOB_PCIE_MAX_MSG_PER_FLIT
	PCIeMaxFlitWaitCyc  uint64 // KNOB_PCIE_MAX_FLIT_WAIT_CYCLE
	PCIeDataMsgBits     int    // KNOB_PCIE_DATA_MSG_BITS
	PCIeReqMsgBits      int    // KNOB_PCIE_REQ_MSG_BITS
	PCIeRWDMsgBits      int    // KNOB_PCIE_RWD_MSG_BITS
	PCIeNDRMsgBits      int    // KNOB_PCIE_NDR_MSG_BITS
	PCIeDRSMsgBits      int    // KNOB_PCIE_DRS_MSG_BITS

	// Device-side cache + MSHR. Not present in all_knobs.cc at all; this
	// whole block is a supplemented addition (core §4.6 requires a cache;
	// the retrieved cxl_t3.cc in this pack has none wired in, see
	// SPEC_FULL.md §4.6/§9.6).
	CachelineBits int // bits per cache line, default 64*8
	CacheSets     int // ndp_cache_set
	CacheAssoc    int // ndp_cache_assoc
	CacheLatency  uint64
	MSHRAssoc     int // ndp_mshr_assoc (number of outstanding distinct misses)
	MSHRCap       int // ndp_mshr_cap (merges per miss entry)

	// Execution ports, one count+latency pair per uop type class.
	PortCounts    map[string]int
	PortLatencies map[string]uint64

	Scheduler        Scheduler // ndp_scheduler
	UopDirectOffload bool      // uop_direct_offload

	// DRAM backend. RamulatorClockGHz/LatencyCycles/Capacity parameterize the
	// internal/dram.FixedLatencyModel reference collaborator this pack wires
	// in place of a concrete ramulator binding (none is retrievable here);
	// none of these three have an all_knobs.cc entry, so their defaults are
	// reasoned from the knob file's own DDR4 config-file default (CL=16 at a
	// 1.2GHz core clock, per JEDEC DDR4-2400 timings) rather than invented.
	RamulatorConfigFile    string  // KNOB_RAMULATOR_CONFIG_FILE
	RamulatorCachelineSize int     // KNOB_RAMULATOR_CACHELINE_SIZE
	RamulatorClockGHz      float64 // not in all_knobs.cc; DDR4-2400 core clock
	RamulatorLatencyCycles uint64  // not in all_knobs.cc; DDR4 CL16 in its own domain
	RamulatorCapacity      int     // not in all_knobs.cc; in-flight request slots

	// Misc / ambient.
	NumSimCores   int    // KNOB_NUM_SIM_CORES
	OutDirectory  string // KNOB_STATISTICS_OUT_DIRECTORY
	DebugIOSys    int    // KNOB_DEBUG_IO_SYS
}

// Default returns the registry seeded with the original's knob defaults
// (all_knobs.cc) plus reasoned defaults for the knobs this retrieval pack
// references but never defines.
func Default() *Config {
	return &Config{
		ClockIO: 0.8,

		PCIeLanes:     8,
		PCIePerLaneBW: 32,

		PCIeVCCount:          2,
		PCIeTXVCCapacity:     8,
		PCIeRXVCCapacity:     8,
		PCIeTXDLLCapacity:    8,
		PCIeTXReplayCapacity: 8,
		PCIePhysCapacity:     0, // 0 means "derive from lanes", see DerivePhysCapacity
		PCIeInsertQSize:      16,

		PCIeTXFlitBuffCapacity: 8,
		PCIeRXFlitBuffCapacity: 8,

		PCIeTXVCBW:   1,
		PCIeRXVCBW:   1,
		PCIeReplayBW: 1,

		PCIeTXTransLatency: 5,
		PCIeRXTransLatency: 5,
		PCIeTXDLLLatency:   5,
		PCIeRXDLLLatency:   5,
		PCIeArbMuxLatency:  2,

		PCIeFlitBits:       544,
		PCIeSlotsPerFlit:   4,
		PCIeMaxMsgPerFlit:  4,
		PCIeMaxFlitWaitCyc: 16,
		PCIeDataMsgBits:    128,
		PCIeReqMsgBits:     87,
		PCIeRWDMsgBits:     87,
		PCIeNDRMsgBits:     30,
		PCIeDRSMsgBits:     40,

		CachelineBits: 64 * 8,
		CacheSets:     64,
		CacheAssoc:    8,
		CacheLatency:  4,
		MSHRAssoc:     16,
		MSHRCap:       4,

		PortCounts: map[string]int{
			"nop": 1, "iadd": 2, "imul": 1, "idiv": 1, "imisc": 1,
			"fadd": 2, "fmul": 1, "fdiv": 1, "fmisc": 1,
		},
		PortLatencies: map[string]uint64{
			"nop": 1, "iadd": 1, "imul": 3, "idiv": 10, "imisc": 1,
			"fadd": 3, "fmul": 4, "fdiv": 12, "fmisc": 2,
		},
		Scheduler:        SchedulerInOrder,
		UopDirectOffload: false,

		RamulatorConfigFile:    "DDR4-config.cfg",
		RamulatorCachelineSize: 64,
		RamulatorClockGHz:      1.2,
		RamulatorLatencyCycles: 16,
		RamulatorCapacity:      32,

		NumSimCores:  1,
		OutDirectory: ".",
		DebugIOSys:   0,
	}
}

// DerivePhysCapacity mirrors pcie_endpoint_c's constructor switch on lane
// count: x16 gets 4 in-flight phys slots, x8 gets 2, anything x4 and below
// gets 1.
func DerivePhysCapacity(lanes int) (int, error) {
	switch lanes {
	case 16:
		return 4, nil
	case 8:
		return 2, nil
	case 4, 2, 1:
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported lane count %d", lanes)
	}
}

// Validate checks invariants the original enforces with asserts at
// construction time, returning a *errs.Error tagged ErrCodeConfigInvalid
// or ErrCodeLanesNotPow2 instead of crashing.
func (c *Config) Validate() error {
	if c.PCIeLanes <= 0 || c.PCIeLanes&(c.PCIeLanes-1) != 0 {
		return errs.NewError("config.validate", errs.ErrCodeLanesNotPow2,
			fmt.Sprintf("pcie_lanes=%d is not a power of two", c.PCIeLanes))
	}
	if c.PCIeSlotsPerFlit <= 0 {
		return errs.NewError("config.validate", errs.ErrCodeConfigInvalid, "pcie_data_slots_per_flit must be positive")
	}
	if c.RamulatorConfigFile == "" {
		return errs.NewError("config.validate", errs.ErrCodeConfigInvalid, "ramulator_config_file must not be empty")
	}
	if c.ClockIO <= 0 {
		return errs.NewError("config.validate", errs.ErrCodeConfigInvalid, "clock_io must be positive")
	}
	if c.Scheduler != SchedulerInOrder && c.Scheduler != SchedulerOutOfOrder {
		return errs.NewError("config.validate", errs.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown ndp_scheduler value %q", c.Scheduler))
	}
	if c.MSHRAssoc <= 0 || c.MSHRCap <= 0 {
		return errs.NewError("config.validate", errs.ErrCodeConfigInvalid, "ndp_mshr_assoc and ndp_mshr_cap must be positive")
	}
	if _, err := DerivePhysCapacity(c.PCIeLanes); err != nil {
		return errs.WrapError("config.validate", errs.ErrCodeLanesNotPow2, err)
	}
	return nil
}

// PhysLatencyCycles computes flit_bits / (lanes * per_lane_bw) * clock_io,
// rounded up to a whole cycle count per core spec §8's testable property
// (a flit occupying any fraction of a cycle still costs that whole cycle on
// the wire).
func (c *Config) PhysLatencyCycles() uint64 {
	cycles := float64(c.PCIeFlitBits) / (float64(c.PCIeLanes) * c.PCIePerLaneBW) * c.ClockIO
	return uint64(math.Ceil(cycles))
}
