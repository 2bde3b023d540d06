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
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// DirEntryType is the on-disk directory entry type tag (spec §3).
type DirEntryType uint8

const (
	TypeInvalid   DirEntryType = 0x0
	TypeStorage   DirEntryType = 0x1
	TypeStream    DirEntryType = 0x2
	TypeLockBytes DirEntryType = 0x3
	TypeProperty  DirEntryType = 0x4
	TypeRoot      DirEntryType = 0x5
)

func (t DirEntryType) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeStorage:
		return "storage"
	case TypeStream:
		return "stream"
	case TypeLockBytes:
		return "lockbytes"
	case TypeProperty:
		return "property"
	case TypeRoot:
		return "root"
	default:
		return "unknown"
	}
}

// directoryEntryFields is the on-disk 128-byte directory entry.
type directoryEntryFields struct {
	RawName      [32]uint16
	NameLength   uint16
	ObjectType   uint8
	Color        uint8
	LeftSibID    uint32
	RightSibID   uint32
	ChildID      uint32
	CLSID        [16]byte
	StateBits    uint32
	CreateTime   uint64
	ModifyTime   uint64
	StartSectLoc uint32
	StreamSize   uint64
}

// DirectoryEntry is the lifted, caller-visible view of a directory
// record: a named storage or stream, with a Children collection for
// storages and a Properties record for streams whose on-disk marker byte
// identifies them as a property set. Internal bookkeeping (sibling/child
// indices, the starting sector) is deliberately not exported, per
// spec §4.7.
type DirectoryEntry struct {
	Name       string
	Type       DirEntryType
	Size       uint64
	ClassID    uuid.UUID
	UserFlags  uint32
	Created    time.Time
	Modified   time.Time
	Properties *PropertySet

	left     uint32
	right    uint32
	child    uint32
	sect     uint32
	children []*DirectoryEntry
}

// Children returns the direct children of a storage or root entry, in
// the order produced by the depth-first lift of its red/black sibling
// tree (spec §4.4). It returns nil for a stream entry or a storage with
// no children.
func (e *DirectoryEntry) Children() []*DirectoryEntry { return e.children }

// readDirectory reads the directory sector chain (phase 3, spec §4.4):
// flattens it into entries and lifts each storage's sibling tree into a
// Children slice. Property-set decoding happens later, in
// decodePropertySets, once the mini-FAT (phase 4) has located the
// mini-stream that small property-set streams are read from.
func (r *Reader) readDirectory() error {
	h := r.header
	entriesPerSector := int(h.sectorSize / dirEntrySize)

	var raw []directoryEntryFields
	var markers []byte // marker byte (offset 0 of the 128-byte record) per entry, for property-set detection
done:
	for sn := h.fields.DirSectorLoc; sn != endOfChain; {
		buf := make([]byte, h.sectorSize)
		if err := r.readSector(sn, buf); err != nil {
			return err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := i * int(dirEntrySize)
			if buf[off+66] == byte(TypeInvalid) {
				break done
			}
			var f directoryEntryFields
			decodeDirEntry(&f, buf[off:off+int(dirEntrySize)])
			raw = append(raw, f)
			markers = append(markers, buf[off])
		}
		next, err := r.next(sn)
		if err != nil {
			return err
		}
		sn = next
	}
	if len(raw) == 0 {
		return wrapErr(KindInvalidFormat, "no directory entries", nil)
	}

	entries := make([]*DirectoryEntry, len(raw))
	for i, f := range raw {
		e := &DirectoryEntry{
			Type:      DirEntryType(f.ObjectType),
			UserFlags: f.StateBits,
			left:      f.LeftSibID,
			right:     f.RightSibID,
			child:     f.ChildID,
			sect:      f.StartSectLoc,
		}
		nlen := 0
		if f.NameLength >= 2 {
			nlen = int(f.NameLength)/2 - 1
		}
		if nlen > 0 && nlen <= 31 {
			e.Name = trimControl(f.RawName[:nlen])
		}
		switch e.Type {
		case TypeStorage, TypeRoot:
			e.ClassID = parseGUID(f.CLSID)
		}
		switch e.Type {
		case TypeStream, TypeRoot:
			e.Size = sizeForVersion(h.version, f.StreamSize)
		}
		e.Created = filetimeToTime(f.CreateTime)
		e.Modified = filetimeToTime(f.ModifyTime)
		entries[i] = e
	}
	r.entries = entries

	if err := r.liftTree(entries); err != nil {
		return err
	}
	r.propertySetMarkers = markers
	return nil
}

// decodePropertySets decodes the embedded property set of every stream
// entry whose on-disk marker byte identifies it as one (phase 5, spec
// §4.8). It runs after readMiniFAT so that property-set streams small
// enough to live in the mini-stream can be read.
func (r *Reader) decodePropertySets() error {
	for i, e := range r.entries {
		if e.Type != TypeStream || r.propertySetMarkers[i] != propertySetMarker {
			continue
		}
		ps, err := r.decodePropertySet(e)
		if err != nil {
			// Isolated failure: the entry keeps its other fields but
			// gains no Properties record (spec §7).
			continue
		}
		e.Properties = ps
	}
	return nil
}

// decodeDirEntry reads a single 128-byte on-disk directory record. A
// plain field-by-field little-endian decode is used rather than
// binary.Read over a struct, since the record mixes uint16 arrays,
// 8-byte timestamp blobs and fixed GUID bytes that binary.Read would
// otherwise need matching Go types for anyway.
func decodeDirEntry(f *directoryEntryFields, b []byte) {
	d := newDecoder(b)
	for i := 0; i < 32; i++ {
		f.RawName[i] = d.u16(i * 2)
	}
	f.NameLength = d.u16(64)
	f.ObjectType = d.u8(66)
	f.Color = d.u8(67)
	f.LeftSibID = d.u32(68)
	f.RightSibID = d.u32(72)
	f.ChildID = d.u32(76)
	copy(f.CLSID[:], b[80:96])
	f.StateBits = d.u32(96)
	f.CreateTime = d.u64(100)
	f.ModifyTime = d.u64(108)
	f.StartSectLoc = d.u32(116)
	f.StreamSize = d.u64(120)
}

// trimControl strips control code points (0x00-0x1F) from a decoded
// UTF-16 name, per spec §4.4.
func trimControl(u []uint16) string {
	r := make([]rune, 0, len(u))
	for _, c := range utf16.Decode(u) {
		if c < 0x20 {
			continue
		}
		r = append(r, c)
	}
	return string(r)
}

// sizeForVersion applies the size-field versioning rule of spec §4.4: a
// version 3 file's size field only has 32 authoritative bits; a version 4
// file's full 64 bits are authoritative.
func sizeForVersion(v Version, raw uint64) uint64 {
	if v == Version3 {
		return raw & 0xFFFFFFFF
	}
	return raw
}

// filetimeEpochOffset100ns is the number of 100ns ticks between the
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset100ns = 116444736000000000

func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	secs := (int64(ft) - filetimeEpochOffset100ns) / 10_000_000
	return time.Unix(secs, 0).UTC()
}

// liftTree flattens each storage/root entry's left/right/child red/black
// sibling tree into a Children slice, via a depth-first walk bounded by
// the directory length (spec §4.4, §9 cyclic-graph defense: malformed
// files could otherwise describe a cycle).
func (r *Reader) liftTree(entries []*DirectoryEntry) error {
	for _, e := range entries {
		if (e.Type != TypeStorage && e.Type != TypeRoot) || e.child == noStream {
			continue
		}
		children, err := r.walkSiblings(entries, e.child)
		if err != nil {
			return err
		}
		e.children = children
	}
	return nil
}

func (r *Reader) walkSiblings(entries []*DirectoryEntry, start uint32) ([]*DirectoryEntry, error) {
	var out []*DirectoryEntry
	visited := make(map[uint32]bool)
	stack := []uint32{start}
	for len(stack) > 0 {
		if len(visited) > r.maxDepth {
			return nil, wrapErr(KindTruncated, "directory sibling tree exceeds max depth", nil)
		}
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c == noStream || visited[c] {
			continue
		}
		if int(c) >= len(entries) {
			return nil, wrapErr(KindTruncated, fmt.Sprintf("sibling index %d out of range", c), nil)
		}
		visited[c] = true
		entry := entries[c]
		if entry.left != noStream {
			stack = append(stack, entry.left)
		}
		if entry.right != noStream {
			stack = append(stack, entry.right)
		}
		out = append(out, entry)
	}
	return out, nil
}

// propertySetMarker is the byte at offset 0 of a directory record that
// flags the stream as an OLE property set (spec §4.4). It coincides
// numerically with the TypeRoot type tag, which is unrelated: the marker
// is the first byte of the (UTF-16LE) name field, not the object type.
const propertySetMarker byte = 0x05
