package mscfb

import "testing"

func TestReadMiniFATNoOpWhenAbsent(t *testing.T) {
	hf := &headerFields{MiniFatSectorLoc: endOfChain}
	h := &header{fields: hf, sectorSize: 512, miniSectorSize: 64}
	root := &DirectoryEntry{Type: TypeRoot, sect: endOfChain}
	r := &Reader{header: h, entries: []*DirectoryEntry{root}}

	if err := r.readMiniFAT(); err != nil {
		t.Fatalf("readMiniFAT: %v", err)
	}
	if r.miniFAT != nil {
		t.Errorf("miniFAT = %v, want nil when the file has no mini stream", r.miniFAT)
	}
}

func TestMiniSectorOffsetOutOfRange(t *testing.T) {
	h := &header{sectorSize: 512, miniSectorSize: 64}
	r := &Reader{header: h, miniStreamSectors: []uint32{3}}
	// perSector = 512/64 = 8 mini-sectors per ordinary sector; mini-sector
	// 8 would be the first of a second ordinary sector that doesn't exist.
	if _, err := r.miniSectorOffset(8); err == nil {
		t.Fatal("expected an error for a mini-sector beyond the mini-stream's sector chain")
	}
}

func TestMiniSectorOffsetWithinRange(t *testing.T) {
	h := &header{sectorSize: 512, miniSectorSize: 64}
	r := &Reader{header: h, miniStreamSectors: []uint32{3}}
	off, err := r.miniSectorOffset(2)
	if err != nil {
		t.Fatalf("miniSectorOffset: %v", err)
	}
	want := h.fileOffset(3) + 2*64
	if off != want {
		t.Errorf("miniSectorOffset(2) = %d, want %d", off, want)
	}
}
