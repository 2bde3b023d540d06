// Copyright 2013 Richard Lehane. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mscfb

import (
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	signature    uint64 = 0xE11AB1A1E011CFD0
	headerLen    int    = 512
	dirEntrySize uint32 = 128
)

// Sector number sentinels (SECT), per spec §3.
const (
	maxRegSect uint32 = 0xFFFFFFFA // highest ordinary sector number
	difSect    uint32 = 0xFFFFFFFC // sector holds DIFAT data
	fatSect    uint32 = 0xFFFFFFFD // sector holds FAT data
	endOfChain uint32 = 0xFFFFFFFE // end of a chain
	freeSect   uint32 = 0xFFFFFFFF // unallocated

	noStream uint32 = 0xFFFFFFFF // "none" for a directory left/right/child index
)

// Version identifies the CFB major version, which fixes the sector size
// and the width of the directory entry's stream-size field.
type Version uint16

const (
	Version3 Version = 3
	Version4 Version = 4
)

// SectorShift returns the expected log2(sector size) for v.
func (v Version) SectorShift() uint16 {
	switch v {
	case Version3:
		return 9 // 512-byte sectors
	case Version4:
		return 12 // 4096-byte sectors
	default:
		return 0
	}
}

func versionFromMajor(major uint16) (Version, bool) {
	switch major {
	case 3:
		return Version3, true
	case 4:
		return Version4, true
	default:
		return 0, false
	}
}

// headerFields is the on-disk 512-byte CFB header, read in one shot with
// binary.Read. Reserved/ignored regions are absorbed by blank padding
// fields sized to their documented byte counts.
type headerFields struct {
	Signature        uint64
	ClassID          [16]byte
	MinorVersion     uint16
	MajorVersion     uint16
	ByteOrder        [2]byte // must be 0xFFFE little-endian; not re-validated
	SectorShift      uint16
	MiniSectorShift  uint16
	_                [6]byte // reserved
	NumDirSectors    uint32  // version 3: must be zero, directory chain walked instead
	NumFatSectors    uint32
	DirSectorLoc     uint32
	_                [4]byte // transaction signature, ignored
	MiniStreamCutoff uint32  // maxMiniStreamSize
	MiniFatSectorLoc uint32
	NumMiniFatSectors uint32
	DifatSectorLoc   uint32
	NumDifatSectors  uint32
	InitialDifats    [109]uint32
}

// header is the parsed, immutable-after-phase-1 header together with the
// derived geometry every later phase needs.
type header struct {
	fields *headerFields

	version        Version
	sectorSize     uint32
	miniSectorSize uint32
	classID        uuid.UUID

	// difats is the full list of FAT-sector SECTs: the header's 109
	// inline entries, extended by the DIFAT sector chain (spec §4.3).
	difats []uint32
}

// fileOffset converts a sector number to an absolute file offset. Sector
// 0 begins immediately after the fixed 512-byte header, regardless of the
// file's actual sector size (spec §4.3).
func (h *header) fileOffset(sn uint32) int64 {
	return int64(headerLen) + int64(sn)*int64(h.sectorSize)
}

func (r *Reader) readHeader() error {
	buf := make([]byte, headerLen)
	n, err := r.src.ReadAt(buf, 0)
	if err != nil && n < headerLen {
		return wrapErr(KindInvalidFormat, "short read on header", err)
	}
	if n < headerLen {
		return ErrFormat
	}

	hf := new(headerFields)
	if err := binary.Read(newByteReader(buf), binary.LittleEndian, hf); err != nil {
		return wrapErr(KindInvalidFormat, "decoding header", err)
	}
	if hf.Signature != signature {
		return ErrFormat
	}

	version, ok := versionFromMajor(hf.MajorVersion)
	if !ok {
		return wrapErr(KindVersionMismatch, "unrecognized major version", nil)
	}
	if hf.SectorShift != version.SectorShift() {
		return wrapErr(KindVersionMismatch, "sector shift does not match major version", nil)
	}

	h := &header{
		fields:         hf,
		version:        version,
		sectorSize:     1 << hf.SectorShift,
		miniSectorSize: 1 << hf.MiniSectorShift,
		classID:        parseGUID(hf.ClassID),
	}
	// hf.NumDirSectors MUST be zero for version 3; tolerated rather than
	// rejected when a writer sets it anyway, since the directory chain is
	// walked via DirSectorLoc regardless.

	r.header = h
	return nil
}

// newByteReader adapts a []byte to the io.Reader binary.Read needs
// without an extra allocation beyond the sliceReader wrapper itself.
func newByteReader(b []byte) *sliceReader { return &sliceReader{b: b} }

// sliceReader is a minimal io.Reader over a byte slice, used only to feed
// binary.Read a fixed-size struct; unlike bytes.Reader it has no seek or
// read-at surface, keeping the header decode path honest about being a
// single forward pass.
type sliceReader struct {
	b   []byte
	off int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, s.b[s.off:])
	s.off += n
	if n == 0 {
		return 0, errShortHeader
	}
	return n, nil
}

var errShortHeader = wrapErr(KindInvalidFormat, "header buffer exhausted", nil)
