// Package cache implements the device-side NDP cache: a set-associative LRU
// tag array plus a fully-associative MSHR tracking misses in flight,
// keyed by page frame number so multiple requests to the same line can
// merge onto a single miss. Grounded on cache.cc/.h.
package cache

import (
	"container/list"
	"math/bits"

	"github.com/joonho3020/CXLSim/internal/packet"
)

// line is one tag-array entry.
type line struct {
	valid bool
	tag   uint64
}

// set is one associative set, MRU at the front of the list.
type set struct {
	assoc int
	lines *list.List // of *line
}

func newSet(assoc int) *set {
	s := &set{assoc: assoc, lines: list.New()}
	for i := 0; i < assoc; i++ {
		s.lines.PushBack(&line{})
	}
	return s
}

// lookup reports whether tag is resident, promoting it to MRU when
// updateLRU is set. Mirrors cache_set_s::lookup.
func (s *set) lookup(tag uint64, updateLRU bool) bool {
	for e := s.lines.Front(); e != nil; e = e.Next() {
		ln := e.Value.(*line)
		if ln.valid && ln.tag == tag {
			if updateLRU {
				s.lines.MoveToFront(e)
			}
			return true
		}
	}
	return false
}

// insert installs tag, evicting the LRU line if every way is occupied.
// Mirrors cache_set_s::insert.
func (s *set) insert(tag uint64) {
	valCnt := 0
	for e := s.lines.Front(); e != nil; e = e.Next() {
		if e.Value.(*line).valid {
			valCnt++
		}
	}
	newLine := &line{valid: true, tag: tag}
	if valCnt == s.assoc {
		s.lines.Remove(s.lines.Back())
		s.lines.PushFront(newLine)
		return
	}
	for e := s.lines.Front(); e != nil; e = e.Next() {
		if !e.Value.(*line).valid {
			s.lines.Remove(e)
			s.lines.PushFront(newLine)
			return
		}
	}
}

// mshrEntry tracks every request merged onto one outstanding miss.
type mshrEntry struct {
	capacity int
	reqs     []*packet.Request
}

// insert merges req onto this entry, rejecting once capacity is reached.
//
// cache.cc's mshr_entry_s::insert reads `if (m_capacity >= (int)m_reqs.size())
// return false`, which rejects a merge whenever the entry is NOT yet full
// and only ever succeeds once size has already overrun capacity — the
// opposite of a capacity gate. This is corrected here to the evidently
// intended check: reject once len(reqs) has reached capacity.
func (e *mshrEntry) insert(req *packet.Request) bool {
	if len(e.reqs) >= e.capacity {
		return false
	}
	e.reqs = append(e.reqs, req)
	return true
}

// mshr is the fully-associative miss-status-holding-register file, one
// entry per distinct page frame number with a miss in flight.
type mshr struct {
	assoc    int
	capacity int
	entries  map[uint64]*mshrEntry
	order    []uint64 // insertion order, for deterministic iteration in tests/print
}

func newMSHR() *mshr {
	return &mshr{entries: make(map[uint64]*mshrEntry)}
}

func (m *mshr) init(assoc, capacity int) {
	m.assoc = assoc
	m.capacity = capacity
}

// insert merges req onto pfn's entry, creating one if this is a first miss
// and the MSHR still has a free associative way. Mirrors mshr_s::insert.
func (m *mshr) insert(req *packet.Request, pfn uint64) bool {
	if entry, ok := m.entries[pfn]; ok {
		return entry.insert(req)
	}
	if m.assoc <= len(m.entries) {
		return false
	}
	entry := &mshrEntry{capacity: m.capacity, reqs: []*packet.Request{req}}
	m.entries[pfn] = entry
	m.order = append(m.order, pfn)
	return true
}

func (m *mshr) isFirstMiss(pfn uint64) bool {
	_, ok := m.entries[pfn]
	return !ok
}

func (m *mshr) getEntry(pfn uint64) []*packet.Request {
	entry, ok := m.entries[pfn]
	if !ok {
		return nil
	}
	return entry.reqs
}

func (m *mshr) clear(pfn uint64) {
	delete(m.entries, pfn)
	for i, p := range m.order {
		if p == pfn {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *mshr) hasFree() bool {
	return m.assoc > len(m.entries)
}

// Cache is the NDP set-associative cache with its attached MSHR. Addresses
// are split into (tag, set, page-offset) using log2 of New's cachelineBytes
// as the page offset width, matching cache_c's get_set/get_tag/get_pfn.
type Cache struct {
	setCnt       int
	setBits      int
	setMask      uint64
	pageOffset   int
	sets         []*set
	latency      uint64
	mshr         *mshr
}

// New constructs a cache with setCnt sets of the given associativity, fixed
// per-access latency, and cachelineBytes (a power of two) used to derive
// the page-offset width. Mirrors cache_c::init_cache, whose m_page_offset
// is KNOB_CACHELINE_OFFSET_BITS (log2 of the DRAM collaborator's cacheline
// size in bytes, not the bit-width of a line's payload).
func New(setCnt, assoc int, latency uint64, cachelineBytes int) *Cache {
	c := &Cache{
		setCnt:     setCnt,
		latency:    latency,
		pageOffset: bits.Len(uint(cachelineBytes)) - 1,
		mshr:       newMSHR(),
	}
	for i := 0; i < setCnt; i++ {
		c.sets = append(c.sets, newSet(assoc))
	}
	c.setBits = bits.Len(uint(setCnt)) - 1
	c.setMask = uint64(setCnt - 1)
	return c
}

// InitMSHR configures the fully-associative MSHR. Mirrors cache_c::init_mshr.
func (c *Cache) InitMSHR(assoc, capacity int) {
	c.mshr.init(assoc, capacity)
}

func (c *Cache) getTag(addr uint64) uint64 {
	return addr >> uint(c.setBits+c.pageOffset)
}

func (c *Cache) getSet(addr uint64) int {
	return int((addr >> uint(c.pageOffset)) & c.setMask)
}

func (c *Cache) getPFN(addr uint64) uint64 {
	return addr >> uint(c.pageOffset)
}

// Lookup reports whether addr's line is resident, promoting it to MRU.
func (c *Cache) Lookup(addr uint64) bool {
	return c.sets[c.getSet(addr)].lookup(c.getTag(addr), true)
}

// Insert installs addr's line, evicting an LRU victim if the set is full.
func (c *Cache) Insert(addr uint64) {
	c.sets[c.getSet(addr)].insert(c.getTag(addr))
}

// Latency returns the configured per-access cache latency.
func (c *Cache) Latency() uint64 { return c.latency }

// InsertMSHR merges req onto its page frame's outstanding miss entry, or
// opens a new entry if the MSHR has a free associative way.
func (c *Cache) InsertMSHR(req *packet.Request) bool {
	return c.mshr.insert(req, c.getPFN(req.Addr))
}

// MSHREntries returns every request merged onto addr's outstanding miss.
func (c *Cache) MSHREntries(addr uint64) []*packet.Request {
	return c.mshr.getEntry(c.getPFN(addr))
}

// ClearMSHR releases addr's outstanding miss entry once its DRAM fill
// completes.
func (c *Cache) ClearMSHR(addr uint64) {
	c.mshr.clear(c.getPFN(addr))
}

// IsFirstMiss reports whether addr has no MSHR entry yet (i.e. whether a
// new DRAM request must be issued, versus merging onto an existing miss).
func (c *Cache) IsFirstMiss(addr uint64) bool {
	return c.mshr.isFirstMiss(c.getPFN(addr))
}

// HasFreeMSHR reports whether the MSHR has an unused associative way.
func (c *Cache) HasFreeMSHR() bool {
	return c.mshr.hasFree()
}
