// Package cfbtest builds minimal, valid Microsoft Compound File Binary
// images in memory, for exercising the mscfb parser against synthetic
// fixtures rather than committed binary test files. It intentionally
// supports only small, single-FAT-sector files: enough to cover the
// end-to-end scenarios a parser's test suite needs, not general-purpose
// CFB authoring.
package cfbtest

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	sectorSize     = 512
	miniSectorSize = 64
	miniCutoff     = 4096
	dirEntrySize   = 128
	entriesPerDir  = sectorSize / dirEntrySize
	fatWordsPer    = sectorSize / 4

	freeSect   uint32 = 0xFFFFFFFF
	endOfChain uint32 = 0xFFFFFFFE
	fatSect    uint32 = 0xFFFFFFFD
	difSect    uint32 = 0xFFFFFFFC
	noStream   uint32 = 0xFFFFFFFF
)

// Stream is one named entry to place in the built image. PropertySet
// marks the entry as an OLE property set by prefixing its on-disk name
// with the 0x05 marker byte the parser looks for.
type Stream struct {
	Name        string
	Data        []byte
	PropertySet bool
}

// Builder assembles a compound file image from a flat list of top-level
// streams under a single root.
type Builder struct {
	streams []Stream
}

func New() *Builder { return &Builder{} }

func (b *Builder) AddStream(name string, data []byte) *Builder {
	b.streams = append(b.streams, Stream{Name: name, Data: data})
	return b
}

func (b *Builder) AddPropertySet(name string, data []byte) *Builder {
	b.streams = append(b.streams, Stream{Name: name, Data: data, PropertySet: true})
	return b
}

// region is a contiguous run of ordinary sectors allocated to one chain.
type region struct {
	start uint32
	count uint32
}

// Build assembles the image. It returns an error if the fixture would
// need more than one FAT sector (128 ordinary-sector entries): large
// enough for every end-to-end scenario this parser's test suite needs,
// small enough to keep the allocator trivial.
func (b *Builder) Build() ([]byte, error) {
	var miniData []byte
	miniRegions := make([]region, len(b.streams))
	for i, s := range b.streams {
		if len(s.Data) < miniCutoff {
			start := uint32(len(miniData) / miniSectorSize)
			n := (len(s.Data) + miniSectorSize - 1) / miniSectorSize
			miniData = append(miniData, pad(s.Data, n*miniSectorSize)...)
			miniRegions[i] = region{start: start, count: uint32(n)}
		}
	}

	numDirEntries := 1 + len(b.streams) // root + each stream
	dirSectors := ceilDiv(numDirEntries, entriesPerDir)

	numMiniSectors := len(miniData) / miniSectorSize
	miniFATSectors := 0
	if numMiniSectors > 0 {
		miniFATSectors = ceilDiv(numMiniSectors, fatWordsPer)
	}
	miniStreamSectors := ceilDiv(len(miniData), sectorSize)

	var cursor uint32
	dirStart := cursor
	cursor += uint32(dirSectors)
	miniFATStart := cursor
	cursor += uint32(miniFATSectors)
	miniStreamStart := cursor
	cursor += uint32(miniStreamSectors)

	dataRegions := make([]region, len(b.streams))
	for i, s := range b.streams {
		if len(s.Data) < miniCutoff {
			continue
		}
		n := uint32(ceilDiv(len(s.Data), sectorSize))
		dataRegions[i] = region{start: cursor, count: n}
		cursor += n
	}

	fatSectorIndex := cursor
	total := cursor + 1
	if total > fatWordsPer {
		return nil, fmt.Errorf("cfbtest: fixture needs %d sectors, builder supports at most %d (single FAT sector)", total, fatWordsPer)
	}

	fat := make([]uint32, total)
	for i := range fat {
		fat[i] = freeSect
	}
	fillChain(fat, dirStart, uint32(dirSectors))
	fillChain(fat, miniFATStart, uint32(miniFATSectors))
	fillChain(fat, miniStreamStart, uint32(miniStreamSectors))
	for _, r := range dataRegions {
		fillChain(fat, r.start, r.count)
	}
	fat[fatSectorIndex] = fatSect

	miniFAT := make([]uint32, numMiniSectors)
	for i := range miniFAT {
		miniFAT[i] = freeSect
	}
	for _, r := range miniRegions {
		if r.count > 0 {
			fillChain(miniFAT, r.start, r.count)
		}
	}

	buf := make([]byte, int(total+1)*sectorSize)
	writeHeader(buf, dirStart, miniFATStart, uint32(miniFATSectors), fatSectorIndex)

	sectorOff := func(sn uint32) int { return sectorSize + int(sn)*sectorSize }

	// FAT sector.
	fatBuf := buf[sectorOff(fatSectorIndex) : sectorOff(fatSectorIndex)+sectorSize]
	for i := 0; i < fatWordsPer; i++ {
		v := freeSect
		if i < len(fat) {
			v = fat[i]
		}
		binary.LittleEndian.PutUint32(fatBuf[i*4:], v)
	}

	// Mini-FAT sectors.
	if miniFATSectors > 0 {
		miniFATBuf := buf[sectorOff(miniFATStart) : sectorOff(miniFATStart)+miniFATSectors*sectorSize]
		for i := 0; i < fatWordsPer*miniFATSectors; i++ {
			v := freeSect
			if i < len(miniFAT) {
				v = miniFAT[i]
			}
			binary.LittleEndian.PutUint32(miniFATBuf[i*4:], v)
		}
	}

	// Mini-stream payload, stored as an ordinary stream rooted at the
	// root entry.
	if miniStreamSectors > 0 {
		copy(buf[sectorOff(miniStreamStart):], miniData)
	}

	// Large-stream payloads.
	for i, s := range b.streams {
		if len(s.Data) < miniCutoff {
			continue
		}
		copy(buf[sectorOff(dataRegions[i].start):], s.Data)
	}

	// Directory entries.
	dirBuf := buf[sectorOff(dirStart) : sectorOff(dirStart)+dirSectors*sectorSize]
	rootSect := endOfChain
	rootSize := 0
	if numMiniSectors > 0 {
		rootSect = miniStreamStart
		rootSize = len(miniData)
	}
	writeDirEntry(dirBuf[0:dirEntrySize], "Root Entry", 0x5, noStream, noStream, firstChildIndex(len(b.streams)), rootSect, uint64(rootSize))

	var prevRight uint32 = noStream
	for i := len(b.streams) - 1; i >= 0; i-- {
		s := b.streams[i]
		idx := uint32(1 + i)
		name := s.Name
		if s.PropertySet {
			name = string(rune(5)) + name
		}
		var sect uint32 = endOfChain
		if len(s.Data) > 0 {
			if len(s.Data) < miniCutoff {
				sect = miniRegions[i].start
			} else {
				sect = dataRegions[i].start
			}
		}
		off := int(idx) * dirEntrySize
		writeDirEntry(dirBuf[off:off+dirEntrySize], name, 0x2, noStream, prevRight, noStream, sect, uint64(len(s.Data)))
		prevRight = idx
	}

	return buf, nil
}

func firstChildIndex(n int) uint32 {
	if n == 0 {
		return noStream
	}
	return 1
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func fillChain(fat []uint32, start, count uint32) {
	for i := uint32(0); i < count; i++ {
		if i == count-1 {
			fat[start+i] = endOfChain
		} else {
			fat[start+i] = start + i + 1
		}
	}
}

func writeHeader(buf []byte, dirStart, miniFATStart, numMiniFATSectors, fatSectorIndex uint32) {
	binary.LittleEndian.PutUint64(buf[0:], 0xE11AB1A1E011CFD0)
	binary.LittleEndian.PutUint16(buf[24:], 0x003E) // minor version
	binary.LittleEndian.PutUint16(buf[26:], 3)       // major version
	binary.LittleEndian.PutUint16(buf[28:], 0xFFFE)  // byte order
	binary.LittleEndian.PutUint16(buf[30:], 9)       // sector shift: 512
	binary.LittleEndian.PutUint16(buf[32:], 6)       // mini sector shift: 64
	binary.LittleEndian.PutUint32(buf[40:], 0)       // num dir sectors (v3: must be 0)
	binary.LittleEndian.PutUint32(buf[44:], 1)       // num FAT sectors
	binary.LittleEndian.PutUint32(buf[48:], dirStart)
	binary.LittleEndian.PutUint32(buf[56:], 4096) // mini stream cutoff
	miniFATLoc := endOfChain
	if numMiniFATSectors > 0 {
		miniFATLoc = miniFATStart
	}
	binary.LittleEndian.PutUint32(buf[60:], miniFATLoc)
	binary.LittleEndian.PutUint32(buf[64:], numMiniFATSectors)
	binary.LittleEndian.PutUint32(buf[68:], endOfChain) // no DIFAT chain
	binary.LittleEndian.PutUint32(buf[72:], 0)
	binary.LittleEndian.PutUint32(buf[76:], fatSectorIndex) // InitialDifats[0]
	for i := 1; i < 109; i++ {
		binary.LittleEndian.PutUint32(buf[76+i*4:], freeSect)
	}
}

// writeDirEntry encodes one 128-byte on-disk directory record.
func writeDirEntry(b []byte, name string, objType byte, left, right, child, sect uint32, size uint64) {
	u := utf16.Encode([]rune(name))
	u = append(u, 0) // NUL terminator
	if len(u) > 32 {
		u = u[:32]
	}
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[i*2:], c)
	}
	binary.LittleEndian.PutUint16(b[64:], uint16(len(u)*2))
	b[66] = objType
	b[67] = 1 // color: black: the parser does not validate it
	binary.LittleEndian.PutUint32(b[68:], left)
	binary.LittleEndian.PutUint32(b[72:], right)
	binary.LittleEndian.PutUint32(b[76:], child)
	binary.LittleEndian.PutUint32(b[116:], sect)
	binary.LittleEndian.PutUint64(b[120:], size)
}
