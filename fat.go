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
	"fmt"
)

// readFAT assembles the FAT (phase 2, spec §4.3): the header's 109 inline
// FAT-sector SECTs, extended by the DIFAT sector chain when the file has
// more than 109 FAT sectors, then the FAT sectors themselves concatenated
// in that enumeration order.
func (r *Reader) readFAT() error {
	h := r.header

	difats := make([]uint32, 0, 109)
	for _, s := range h.fields.InitialDifats {
		if s == freeSect || s == endOfChain {
			break
		}
		difats = append(difats, s)
	}

	sectDIF := h.fields.DifatSectorLoc
	if sectDIF == freeSect {
		sectDIF = endOfChain
	}
	words := h.sectorSize / 4
	// A DIFAT sector cannot legitimately outnumber the sectors in the
	// file; bound the walk so a cyclic chain in a malformed file cannot
	// loop forever (spec §9, cyclic-graph defense).
	maxDifatSectors := r.size/int64(h.sectorSize) + 2
	for i := int64(0); sectDIF != endOfChain; i++ {
		if i >= maxDifatSectors {
			return wrapErr(KindTruncated, "difat chain exceeds file size", nil)
		}
		buf := make([]byte, h.sectorSize)
		if err := r.readSector(sectDIF, buf); err != nil {
			return err
		}
		for j := uint32(0); j < words-1; j++ {
			s := binary.LittleEndian.Uint32(buf[j*4:])
			if s == freeSect {
				continue
			}
			difats = append(difats, s)
		}
		sectDIF = binary.LittleEndian.Uint32(buf[(words-1)*4:])
	}
	h.difats = difats

	fat := make([]uint32, 0, len(difats)*int(words))
	for _, sn := range difats {
		buf := make([]byte, h.sectorSize)
		if err := r.readSector(sn, buf); err != nil {
			return err
		}
		for j := uint32(0); j < words; j++ {
			fat = append(fat, binary.LittleEndian.Uint32(buf[j*4:]))
		}
	}
	r.fat = fat
	return nil
}

// readSector reads exactly one sector's worth of bytes at sector number
// sn into buf. A short read on a sector that the allocation tables claim
// exists is an I/O error, not a silently truncated result, per spec §4.1.
func (r *Reader) readSector(sn uint32, buf []byte) error {
	off := r.header.fileOffset(sn)
	n, err := r.src.ReadAt(buf, off)
	if n < len(buf) {
		if err == nil {
			err = fmt.Errorf("got %d of %d bytes", n, len(buf))
		}
		return wrapErr(KindIO, fmt.Sprintf("reading sector %d", sn), err)
	}
	return nil
}

// next returns the sector following sn in the FAT chain.
func (r *Reader) next(sn uint32) (uint32, error) {
	if int(sn) >= len(r.fat) {
		return 0, wrapErr(KindTruncated, fmt.Sprintf("sector %d has no FAT entry", sn), nil)
	}
	return r.fat[sn], nil
}
