package cxlsim

// Logger is the minimal logging surface a Simulator accepts from its
// embedder, kept separate from internal/logging so callers outside this
// module never need to import an internal package. Grounded on the
// teacher's internal/interfaces.Logger (Printf/Debugf), which exists
// precisely to let the public package depend on an interface instead of a
// concrete internal logger.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Observer receives simulator lifecycle events as they happen, for an
// embedder that wants push-based telemetry instead of polling Snapshot.
// Grounded on the teacher's Observer interface (ObserveRead/ObserveWrite/...),
// generalized from block-I/O ops to request admit/complete/cache events.
type Observer interface {
	ObserveAdmit(addr uint64, write bool)
	ObserveComplete(addr uint64, write bool, latencyCycles uint64)
	ObserveCacheLookup(addr uint64, hit bool)
}

// NoOpObserver discards every event. Mirrors the teacher's NoOpObserver,
// used as Simulator's default when the embedder supplies none.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAdmit(uint64, bool)            {}
func (NoOpObserver) ObserveComplete(uint64, bool, uint64) {}
func (NoOpObserver) ObserveCacheLookup(uint64, bool)      {}

var _ Observer = NoOpObserver{}
