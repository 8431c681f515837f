package trace

import (
	"strings"
	"testing"

	"github.com/joonho3020/CXLSim/internal/packet"
)

func TestScanParsesReadsWritesAndComments(t *testing.T) {
	input := `# a comment
0x1000 0
0x2000 1

0x3000 0 42
`
	sc := NewScanner(strings.NewReader(input))

	var entries []Entry
	for sc.Scan() {
		entries = append(entries, sc.Entry())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Addr != 0x1000 || entries[0].Write {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Addr != 0x2000 || !entries[1].Write {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if !entries[2].HasCycle || entries[2].Cycle != 42 {
		t.Errorf("expected third entry to carry cycle 42, got %+v", entries[2])
	}
}

func TestScanParsesUopVariant(t *testing.T) {
	sc := NewScanner(strings.NewReader("0x4000 2\n"))
	if !sc.Scan() {
		t.Fatalf("expected one entry, scan failed: %v", sc.Err())
	}
	entry := sc.Entry()
	if !entry.IsUop {
		t.Fatal("expected IsUop to be set for type >= 2")
	}
	if entry.UopType != packet.UopIAdd {
		t.Errorf("expected variant 0 to map to UopIAdd, got %v", entry.UopType)
	}
}

func TestScanRejectsMalformedLine(t *testing.T) {
	sc := NewScanner(strings.NewReader("not-a-trace-line\n"))
	if sc.Scan() {
		t.Fatal("expected scan to fail on a malformed line")
	}
	if sc.Err() == nil {
		t.Fatal("expected a non-nil error after a malformed line")
	}
}

func TestScanRejectsOutOfRangeUopVariant(t *testing.T) {
	sc := NewScanner(strings.NewReader("0x1000 999\n"))
	if sc.Scan() {
		t.Fatal("expected scan to fail on an out-of-range uop variant")
	}
	if sc.Err() == nil {
		t.Fatal("expected a non-nil error for an out-of-range uop variant")
	}
}
