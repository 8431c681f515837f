// Package watchdog implements the forward-progress assertion: across any
// window of period cycles, at least one in-flight request must complete, or
// the simulation is considered stalled (credit/DRAM deadlock) and must fail
// loudly rather than spin silently.
package watchdog

import "github.com/joonho3020/CXLSim/internal/errs"

// Watchdog tracks the cycle of the most recent completion and trips once
// more than period cycles have elapsed without one. Shape adapted from the
// teacher's Observer "did anything happen this interval" tracking, applied
// here to request completions instead of I/O ops.
type Watchdog struct {
	period       uint64
	lastProgress uint64
	lastChecked  uint64
}

// New builds a watchdog armed with the given window, in cycles. A period of
// 0 disables the watchdog (Check always reports no trip).
func New(period uint64) *Watchdog {
	return &Watchdog{period: period}
}

// RecordProgress marks that a request completed at cycle now, resetting the
// stall window.
func (w *Watchdog) RecordProgress(now uint64) {
	w.lastProgress = now
}

// Check reports whether the watchdog has tripped as of cycle now: more than
// period cycles have elapsed since the last recorded completion. Returns nil
// when armed and not tripped, or when disabled (period == 0).
func (w *Watchdog) Check(now uint64) error {
	w.lastChecked = now
	if w.period == 0 {
		return nil
	}
	if now-w.lastProgress > w.period {
		return errs.NewErrorAt("watchdog.check", now, errs.ErrCodeForwardProgress,
			"no request completed within the configured forward-progress window")
	}
	return nil
}

// Idle reports cycles elapsed since the last completion, as of the most
// recent Check call.
func (w *Watchdog) Idle() uint64 {
	if w.lastChecked < w.lastProgress {
		return 0
	}
	return w.lastChecked - w.lastProgress
}
