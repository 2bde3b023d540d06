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

// readMiniFAT assembles the mini-FAT (phase 4, spec §4.6). Shape-wise
// it's identical to the FAT: sectors are chained through the ordinary
// FAT, not through a DIFAT-style extension. It also records the chain of
// ordinary sectors backing the root entry's mini-stream, since stream
// reads need that chain to translate a mini-sector index into a file
// offset (spec §4.5).
func (r *Reader) readMiniFAT() error {
	h := r.header
	root := r.entries[0]

	if h.fields.MiniFatSectorLoc == endOfChain || h.fields.MiniFatSectorLoc == freeSect || root.sect == endOfChain {
		return nil
	}

	words := h.sectorSize / 4
	miniFAT := make([]uint32, 0, int(h.fields.NumMiniFatSectors)*int(words))
	sn := h.fields.MiniFatSectorLoc
	for sn != endOfChain {
		buf := make([]byte, h.sectorSize)
		if err := r.readSector(sn, buf); err != nil {
			return err
		}
		for j := uint32(0); j < words; j++ {
			miniFAT = append(miniFAT, binary.LittleEndian.Uint32(buf[j*4:]))
		}
		next, err := r.next(sn)
		if err != nil {
			return err
		}
		sn = next
	}
	r.miniFAT = miniFAT

	sectors := make([]uint32, 0, 16)
	sn = root.sect
	for sn != endOfChain {
		sectors = append(sectors, sn)
		if len(sectors) > len(r.fat)+1 {
			return wrapErr(KindTruncated, "mini-stream sector chain longer than FAT", nil)
		}
		next, err := r.next(sn)
		if err != nil {
			return err
		}
		sn = next
	}
	r.miniStreamSectors = sectors
	return nil
}

// miniFATNext returns the mini-sector following sn in the mini-FAT chain.
func (r *Reader) miniFATNext(sn uint32) (uint32, error) {
	if int(sn) >= len(r.miniFAT) {
		return 0, wrapErr(KindTruncated, fmt.Sprintf("mini-sector %d has no mini-FAT entry", sn), nil)
	}
	return r.miniFAT[sn], nil
}

// miniSectorOffset converts a mini-sector index into an absolute file
// offset: the mini-stream begins at the first ordinary sector of the
// root entry, and each mini-sector is miniSectorSize bytes within that
// ordinary-sector chain.
func (r *Reader) miniSectorOffset(sn uint32) (int64, error) {
	perSector := r.header.sectorSize / r.header.miniSectorSize
	idx := sn / perSector
	if int(idx) >= len(r.miniStreamSectors) {
		return 0, wrapErr(KindTruncated, fmt.Sprintf("mini-sector %d outside mini-stream", sn), nil)
	}
	within := int64(sn%perSector) * int64(r.header.miniSectorSize)
	return r.header.fileOffset(r.miniStreamSectors[idx]) + within, nil
}
