// Package trace reads reference trace files driving the simulator outside
// of its embedding-process driver API: one request per line, `<addr> <type>
// [<cycle>]`, where type 0 is a read, 1 a write, and 2+ selects a uop
// variant to offload instead of a plain memory access. Format fixed by core
// spec §6; grounded on original_source/src/main.cc's role as the reference
// driver that such a trace file feeds.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joonho3020/CXLSim/internal/packet"
)

// uopVariants maps a trace line's type field (2, 3, 4, ...) to a uop type,
// in the order a trace author would plausibly want to exercise each
// execution-unit class.
var uopVariants = []packet.UopType{
	packet.UopIAdd,
	packet.UopIMul,
	packet.UopIDiv,
	packet.UopIMisc,
	packet.UopFAdd,
	packet.UopFMul,
	packet.UopFDiv,
	packet.UopFMisc,
}

// Entry is one parsed trace line.
type Entry struct {
	Addr     uint64
	Write    bool
	IsUop    bool
	UopType  packet.UopType
	Cycle    uint64
	HasCycle bool
}

// Scanner reads Entry values from a trace file one line at a time, skipping
// blank lines and lines starting with '#'.
type Scanner struct {
	sc   *bufio.Scanner
	line int
	err  error
	cur  Entry
}

// NewScanner wraps r for line-oriented trace parsing.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{sc: bufio.NewScanner(r)}
}

// Scan advances to the next trace entry, returning false at EOF or on a
// parse error (check Err for the latter).
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		s.line++
		text := strings.TrimSpace(s.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		entry, err := parseLine(text)
		if err != nil {
			s.err = fmt.Errorf("trace line %d: %w", s.line, err)
			return false
		}
		s.cur = entry
		return true
	}
	s.err = s.sc.Err()
	return false
}

// Entry returns the entry produced by the most recent successful Scan.
func (s *Scanner) Entry() Entry { return s.cur }

// Err returns the first non-EOF error encountered during scanning, if any.
func (s *Scanner) Err() error { return s.err }

func parseLine(text string) (Entry, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 || len(fields) > 3 {
		return Entry{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}

	addr, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid addr %q: %w", fields[0], err)
	}
	typ, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid type %q: %w", fields[1], err)
	}

	entry := Entry{Addr: addr}
	switch {
	case typ == 0:
		entry.Write = false
	case typ == 1:
		entry.Write = true
	case typ >= 2:
		entry.IsUop = true
		variant := typ - 2
		if variant >= len(uopVariants) {
			return Entry{}, fmt.Errorf("uop variant %d out of range (have %d variants)", variant, len(uopVariants))
		}
		entry.UopType = uopVariants[variant]
	default:
		return Entry{}, fmt.Errorf("negative type %d", typ)
	}

	if len(fields) == 3 {
		cycle, err := strconv.ParseUint(fields[2], 0, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid cycle %q: %w", fields[2], err)
		}
		entry.Cycle = cycle
		entry.HasCycle = true
	}

	return entry, nil
}
