package mscfb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildDifatFixture lays out a two-sector file: sector 0 is a DIFAT sector
// whose only payload word points at sector 1, the lone FAT sector. The
// header carries no inline FAT-sector SECTs at all, so readFAT can only
// assemble the FAT by walking the DIFAT sector chain.
func buildDifatFixture(t *testing.T) *Reader {
	t.Helper()
	const sectorSize = 512
	buf := make([]byte, headerLen+2*sectorSize)

	difatSector := buf[headerLen : headerLen+sectorSize]
	binary.LittleEndian.PutUint32(difatSector[0:], 1) // points at the FAT sector
	for i := 1; i < sectorSize/4-1; i++ {
		binary.LittleEndian.PutUint32(difatSector[i*4:], freeSect)
	}
	binary.LittleEndian.PutUint32(difatSector[sectorSize-4:], endOfChain) // no further DIFAT sectors

	fatSector := buf[headerLen+sectorSize : headerLen+2*sectorSize]
	binary.LittleEndian.PutUint32(fatSector[0:], fatSect) // sector 0 (itself the DIFAT sector) is unused here
	binary.LittleEndian.PutUint32(fatSector[4:], fatSect) // sector 1 holds FAT data
	for i := 2; i < sectorSize/4; i++ {
		binary.LittleEndian.PutUint32(fatSector[i*4:], freeSect)
	}

	hf := &headerFields{DifatSectorLoc: 0, NumDifatSectors: 1}
	for i := range hf.InitialDifats {
		hf.InitialDifats[i] = freeSect
	}
	h := &header{fields: hf, sectorSize: sectorSize}

	return &Reader{
		src:    bytes.NewReader(buf),
		size:   int64(len(buf)),
		header: h,
	}
}

func TestReadFATWalksDifatChain(t *testing.T) {
	r := buildDifatFixture(t)
	if err := r.readFAT(); err != nil {
		t.Fatalf("readFAT: %v", err)
	}
	if len(r.header.difats) != 1 || r.header.difats[0] != 1 {
		t.Fatalf("difats = %v, want [1]", r.header.difats)
	}
	if len(r.fat) != sectorSizeWords(t) {
		t.Fatalf("fat has %d entries, want %d", len(r.fat), sectorSizeWords(t))
	}
	if r.fat[0] != fatSect || r.fat[1] != fatSect {
		t.Errorf("fat[0:2] = %v, want [%v %v]", r.fat[:2], fatSect, fatSect)
	}
}

func sectorSizeWords(t *testing.T) int {
	t.Helper()
	return 512 / 4
}

func TestReadFATRejectsRunawayDifatChain(t *testing.T) {
	const sectorSize = 512
	// A single-sector file whose DIFAT sector points at itself: must be
	// caught by the size-based bound, not looped forever.
	buf := make([]byte, headerLen+sectorSize)
	self := buf[headerLen : headerLen+sectorSize]
	for i := 0; i < sectorSize/4-1; i++ {
		binary.LittleEndian.PutUint32(self[i*4:], freeSect)
	}
	binary.LittleEndian.PutUint32(self[sectorSize-4:], 0) // points back at itself

	hf := &headerFields{DifatSectorLoc: 0, NumDifatSectors: 1}
	for i := range hf.InitialDifats {
		hf.InitialDifats[i] = freeSect
	}
	h := &header{fields: hf, sectorSize: sectorSize}
	r := &Reader{src: bytes.NewReader(buf), size: int64(len(buf)), header: h}

	if err := r.readFAT(); err == nil {
		t.Fatal("expected an error for a self-referencing DIFAT chain")
	}
}
