package watchdog

import (
	"testing"

	"github.com/joonho3020/CXLSim/internal/errs"
)

func TestCheckPassesWithinWindow(t *testing.T) {
	w := New(10)
	w.RecordProgress(5)
	if err := w.Check(12); err != nil {
		t.Errorf("expected no trip within the window, got %v", err)
	}
}

func TestCheckTripsPastWindow(t *testing.T) {
	w := New(10)
	w.RecordProgress(5)
	err := w.Check(20)
	if err == nil {
		t.Fatal("expected a forward-progress trip past the window")
	}
	if !errs.IsCode(err, errs.ErrCodeForwardProgress) {
		t.Errorf("expected ErrCodeForwardProgress, got %v", err)
	}
}

func TestZeroPeriodDisablesWatchdog(t *testing.T) {
	w := New(0)
	if err := w.Check(1_000_000); err != nil {
		t.Errorf("expected a zero period to never trip, got %v", err)
	}
}

func TestRecordProgressResetsWindow(t *testing.T) {
	w := New(10)
	w.RecordProgress(5)
	w.RecordProgress(18)
	if err := w.Check(25); err != nil {
		t.Errorf("expected the window to reset at the latest RecordProgress, got %v", err)
	}
}

func TestIdleReflectsCyclesSinceLastProgress(t *testing.T) {
	w := New(10)
	w.RecordProgress(5)
	w.Check(8)
	if w.Idle() != 3 {
		t.Errorf("expected 3 idle cycles, got %d", w.Idle())
	}
}
