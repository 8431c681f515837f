package packet

import "github.com/rs/xid"

// Resettable is implemented by every pooled packet type so that Release can
// zero it before returning it to the free list. setPoolIndex/poolIndex give
// the pool an O(1) way to return an entry without a linear scan. The methods
// have pointer receivers, so it is *T that implements Resettable.
type Resettable interface {
	Reset()
	setPoolIndex(int)
	poolIndex() int
}

// Pool is a slab-backed free list for a pooled packet type, grounded on the
// original's pool_c<T>/acquire_entry/release_entry shape. Unlike a sync.Pool,
// entries are never reclaimed behind the caller's back between Acquire
// calls, which matters here because Message/Slot/Flit participate in
// non-owning parent/child back-references that must stay valid until
// explicitly released.
type Pool[T any] struct {
	slab []T
	free []int
}

// NewPool creates an empty pool. New backing entries are allocated lazily
// on first Acquire past the free list, exactly like the original's pool
// growing on demand.
func NewPool[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Acquire returns a ready-to-use *T zeroed via Reset. The zero value T must
// be valid to take the address of (all pooled types here are plain structs).
func (p *Pool[T]) Acquire() *T {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		item := &p.slab[idx]
		r := any(item).(Resettable)
		r.Reset()
		r.setPoolIndex(idx)
		return item
	}
	p.slab = append(p.slab, *new(T))
	idx := len(p.slab) - 1
	item := &p.slab[idx]
	any(item).(Resettable).setPoolIndex(idx)
	return item
}

// Release returns entry to the pool in O(1) via its stored slab index. The
// caller must not use entry again until it is re-Acquired. Release does not
// walk parent/child links; callers (internal/vc) are responsible for only
// releasing a Message once its parent/child relationships have been fully
// drained.
func (p *Pool[T]) Release(entry *T) {
	r := any(entry).(Resettable)
	idx := r.poolIndex()
	r.Reset()
	p.free = append(p.free, idx)
}

// InUse returns the number of entries currently acquired (not on the free
// list). Used by tests and diagnostics, not by the hot path.
func (p *Pool[T]) InUse() int {
	return len(p.slab) - len(p.free)
}

// Pools bundles the three packet-level pools the VC buffers and endpoint
// share, mirroring the original's single msg_pool/slot_pool/flit_pool trio
// passed to both TX and RX vc_buff_c instances.
type Pools struct {
	Messages *Pool[Message]
	Slots    *Pool[Slot]
	Flits    *Pool[Flit]
	Requests *Pool[Request]
	Uops     *Pool[UOp]
}

// NewPools constructs a fresh set of empty pools.
func NewPools() *Pools {
	return &Pools{
		Messages: NewPool[Message](),
		Slots:    NewPool[Slot](),
		Flits:    NewPool[Flit](),
		Requests: NewPool[Request](),
		Uops:     NewPool[UOp](),
	}
}

// NewID returns a fresh globally unique, time-sortable id, replacing the
// original's static incrementing uid counters (m_msg_uid/m_slot_uid/m_flit_uid).
func NewID() xid.ID {
	return xid.New()
}
