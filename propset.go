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
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
)

// VT_* are the classic OLE VARIANT type tags used by a property-set item
// (spec §4.8).
const (
	VT_EMPTY    uint32 = 0
	VT_NULL     uint32 = 1
	VT_I2       uint32 = 2
	VT_I4       uint32 = 3
	VT_R4       uint32 = 4
	VT_R8       uint32 = 5
	VT_DATE     uint32 = 7
	VT_BSTR     uint32 = 8
	VT_ERROR    uint32 = 10
	VT_BOOL     uint32 = 11
	VT_I1       uint32 = 16
	VT_UI1      uint32 = 17
	VT_UI2      uint32 = 18
	VT_UI4      uint32 = 19
	VT_INT      uint32 = 22
	VT_UINT     uint32 = 23
	VT_LPSTR    uint32 = 30
	VT_LPWSTR   uint32 = 31
	VT_FILETIME uint32 = 64
	VT_BLOB     uint32 = 65
	VT_CLSID    uint32 = 72
)

// Well-known PROPERTYIDs within the summary-information format ID.
const (
	PidCodepage  uint32 = 1
	PidTitle     uint32 = 2
	PidEditTime  uint32 = 10
	PidCreateDtm uint32 = 12
)

// FormatID holds the well-known property-set format IDs.
var FormatID = struct {
	Summary    uuid.UUID
	DocSummary uuid.UUID
}{
	Summary:    uuid.MustParse("f29f85e0-4ff9-1068-ab91-08002b27b3d9"),
	DocSummary: uuid.MustParse("d5cdd502-2e9c-101b-9397-08002b2cf9ae"),
}

// PropertySet is the decoded content of a stream whose on-disk marker
// byte flags it as an OLE property set (spec §4.8). Only the first
// section is decoded unless the Reader was built with WithAllSections, in
// which case a PROPERTYSETHEADER declaring exactly two sections also
// populates SecondFormatID/SecondItems from the second FORMATIDOFFSET
// entry (the well-known "user-defined properties" section of a
// DocumentSummaryInformation stream).
type PropertySet struct {
	FormatVersion uint16
	FormatID      uuid.UUID
	Items         []PropertyItem

	SecondFormatID uuid.UUID
	SecondItems    []PropertyItem
}

// PropertyItem is one (id, type, value) entry of a property set. Value's
// concrete type depends on Type: a signed/unsigned integer kind for the
// integer VT_* tags, float32/float64 for VT_R4/VT_R8, string for VT_LPSTR/VT_LPWSTR, []byte for
// VT_BSTR/VT_BLOB, bool for VT_BOOL, uuid.UUID for VT_CLSID, time.Time
// for an absolute VT_FILETIME/VT_DATE, and time.Duration for the elapsed
// VT_FILETIME carried by PID_EDITTIME.
type PropertyItem struct {
	ID    uint32
	Type  uint32
	Value interface{}
}

// decodePropertySet reads the entire stream at entry e and parses it as
// an OLE PROPERTYSET (spec §4.8). A parse failure here is isolated by
// the caller: it degrades to "no properties for that entry". A panic
// from an out-of-range offset in a malformed file is recovered and
// turned into the same isolated failure, since this decoder walks
// offsets taken directly from untrusted file content.
func (r *Reader) decodePropertySet(e *DirectoryEntry) (ps *PropertySet, err error) {
	defer func() {
		if p := recover(); p != nil {
			ps, err = nil, wrapErr(KindTruncated, fmt.Sprintf("property set decode panic: %v", p), nil)
		}
	}()

	if e.Size < 48 {
		return nil, wrapErr(KindTruncated, "property set stream too short for header", nil)
	}
	sr, err := r.newStreamReader(e)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.Size)
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, wrapErr(KindIO, "reading property set stream", err)
	}
	d := newDecoder(buf)

	// PROPERTYSETHEADER, bytes 0-27.
	if d.u16(0) != 0xFFFE {
		return nil, wrapErr(KindInvalidFormat, "bad property set byte order mark", nil)
	}
	fmtVer := d.u16(2)
	numSections := d.u32(24)

	// First FORMATIDOFFSET entry, bytes 28-47.
	fmtID := d.guidAt(28)
	sectionStart := int(d.u32(44))

	items, err := r.decodeSection(d, sectionStart)
	if err != nil {
		return nil, err
	}
	ps = &PropertySet{FormatVersion: fmtVer, FormatID: fmtID, Items: items}

	// Second FORMATIDOFFSET entry, bytes 48-67, opt-in per spec §9: a
	// two-section property set (e.g. DocumentSummaryInformation's
	// user-defined properties section) is otherwise left undecoded.
	if r.allSections && numSections == 2 {
		if d.len() < 68 {
			return ps, nil
		}
		fmtID2 := d.guidAt(48)
		sectionStart2 := int(d.u32(64))
		items2, err := r.decodeSection(d, sectionStart2)
		if err != nil {
			return ps, nil
		}
		ps.SecondFormatID = fmtID2
		ps.SecondItems = items2
	}
	return ps, nil
}

// decodeSection parses a single PROPERTYSECTIONHEADER and its items,
// starting at byte offset start within the decoded buffer. It scans for
// a CodePage item (PID 1) first, so any VT_LPSTR item in the section,
// regardless of its position in the index table, decodes against the
// section's declared codepage rather than the Reader's default.
func (r *Reader) decodeSection(d decoder, start int) ([]PropertyItem, error) {
	if start+8 > d.len() {
		return nil, wrapErr(KindTruncated, "property section header out of range", nil)
	}
	numProps := int(d.u32(start + 4))
	if maxProps := (d.len() - start - 8) / 8; numProps > maxProps {
		return nil, wrapErr(KindTruncated, "property index table claims more entries than the stream holds", nil)
	}

	type propLoc struct{ id, offset uint32 }
	locs := make([]propLoc, numProps)
	for i := 0; i < numProps; i++ {
		idOff := start + 8 + 8*i
		if idOff+8 > d.len() {
			return nil, wrapErr(KindTruncated, "property index table out of range", nil)
		}
		locs[i] = propLoc{id: d.u32(idOff), offset: d.u32(idOff + 4)}
	}

	codepage := r.codepage
	for _, l := range locs {
		if l.id != PidCodepage {
			continue
		}
		loc := start + int(l.offset)
		if loc+6 > d.len() || d.u32(loc) != VT_I2 {
			break
		}
		if cm := codepageCharmap(d.i16(loc + 4)); cm != nil {
			codepage = cm
		}
		break
	}

	items := make([]PropertyItem, 0, numProps)
	for _, l := range locs {
		loc := start + int(l.offset)
		if loc+4 > d.len() {
			return nil, wrapErr(KindTruncated, "property item out of range", nil)
		}
		typ := d.u32(loc)
		v, ok := decodeValue(d, typ, loc+4, l.id, r.dateMode, codepage)
		if !ok {
			// Unknown type tag: skip silently, continue with the
			// next item (spec §4.8).
			continue
		}
		items = append(items, PropertyItem{ID: l.id, Type: typ, Value: v})
	}
	return items, nil
}

// decodeValue decodes a single property value at byte offset off,
// dispatching on the VT_* type tag. ok is false for an unrecognized tag.
func decodeValue(d decoder, typ uint32, off int, id uint32, dateMode DateMode, codepage *charmap.Charmap) (interface{}, bool) {
	switch typ {
	case VT_EMPTY, VT_NULL:
		return nil, true
	case VT_I2:
		return d.i16(off), true
	case VT_I4:
		return d.i32(off), true
	case VT_R4:
		return d.f32(off), true
	case VT_R8:
		return d.f64(off), true
	case VT_DATE:
		return decodeDate(d.f64(off), dateMode), true
	case VT_BSTR:
		return decodeCountedRaw(d, off, true), true
	case VT_ERROR:
		return d.i32(off), true
	case VT_BOOL:
		return d.u8(off) != 0, true
	case VT_I1:
		return d.i8(off), true
	case VT_UI1:
		return d.u8(off), true
	case VT_UI2:
		return d.u16(off), true
	case VT_UI4:
		return d.u32(off), true
	case VT_INT:
		return d.i32(off), true
	case VT_UINT:
		return d.u32(off), true
	case VT_LPSTR:
		return decodeLPSTR(d, off, codepage), true
	case VT_LPWSTR:
		return decodeLPWSTR(d, off), true
	case VT_FILETIME:
		return decodeFiletimeValue(d, off, id), true
	case VT_BLOB:
		return decodeCountedRaw(d, off, false), true
	case VT_CLSID:
		return d.guidAt(off), true
	default:
		return nil, false
	}
}

// decodeDate converts a VT_DATE value (days since 1899-12-30) per the
// selected DateMode. DateModeBugCompatible reproduces a historical
// transcription bug that collapses the stored value and returns the
// moment of parsing instead (spec §4.8, §9); it exists only for byte-for-
// byte parity with that behavior and is never the default.
func decodeDate(v float64, mode DateMode) time.Time {
	if mode == DateModeBugCompatible {
		return time.Now().UTC()
	}
	days := v - 25569
	return time.Unix(int64(days*86400), 0).UTC()
}

// decodeFiletimeValue decodes a VT_FILETIME value: two little-endian
// uint32 halves combined into a 100ns tick count since 1601-01-01. An
// item with id == PidEditTime holds an elapsed duration rather than an
// absolute timestamp (spec §4.8).
func decodeFiletimeValue(d decoder, off int, id uint32) interface{} {
	low, high := d.u32(off), d.u32(off+4)
	ticks := int64((uint64(high) << 32) | uint64(low))
	if id == PidEditTime {
		return time.Duration(ticks/10_000_000) * time.Second
	}
	secs := (ticks - filetimeEpochOffset100ns) / 10_000_000
	return time.Unix(secs, 0).UTC()
}

// decodeCountedRaw decodes a u32-prefixed byte run. When trimNul is set
// (VT_BSTR) the declared count includes a trailing NUL that is dropped
// from the returned slice; VT_BLOB uses the full count.
func decodeCountedRaw(d decoder, off int, trimNul bool) []byte {
	count := int(d.u32(off))
	raw := d.bytesAt(off+4, count)
	if trimNul && count > 0 {
		raw = raw[:count-1]
	}
	return raw
}

// decodeLPSTR decodes a u32-prefixed, codepage-encoded byte string,
// stripping the trailing NUL the declared count includes.
func decodeLPSTR(d decoder, off int, codepage *charmap.Charmap) string {
	raw := decodeCountedRaw(d, off, true)
	if codepage == nil {
		return string(raw)
	}
	s, err := codepage.NewDecoder().String(string(raw))
	if err != nil {
		return string(raw)
	}
	return s
}

// decodeLPWSTR decodes a u32-prefixed run of UTF-16LE code units.
func decodeLPWSTR(d decoder, off int) string {
	count := int(d.u32(off))
	return d.utf16le(off+4, count)
}

// codepageCharmap maps a handful of common Windows codepage identifiers
// (the value of a PID_CODEPAGE item) to an x/text charmap. An
// unrecognized codepage (including 65001/UTF-8, which charmap has no
// table for) returns nil, leaving the Reader's configured default in
// place.
func codepageCharmap(cp int16) *charmap.Charmap {
	switch cp {
	case 1252:
		return charmap.Windows1252
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 28591:
		return charmap.ISO8859_1
	default:
		return nil
	}
}
