package mscfb

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/google/uuid"
)

// decoder reads fixed-width little-endian values out of a byte buffer at
// caller-supplied offsets. It underlies the property-set decoder, which
// must address an arbitrary TLV layout rather than a single fixed struct.
type decoder struct {
	buf []byte
}

func newDecoder(buf []byte) decoder { return decoder{buf: buf} }

func (d decoder) u8(off int) uint8 { return d.buf[off] }
func (d decoder) i8(off int) int8  { return int8(d.buf[off]) }

func (d decoder) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(d.buf[off : off+2])
}
func (d decoder) i16(off int) int16 { return int16(d.u16(off)) }

func (d decoder) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(d.buf[off : off+4])
}
func (d decoder) i32(off int) int32 { return int32(d.u32(off)) }

func (d decoder) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(d.buf[off : off+8])
}
func (d decoder) i64(off int) int64 { return int64(d.u64(off)) }

func (d decoder) f32(off int) float32 { return math.Float32frombits(d.u32(off)) }
func (d decoder) f64(off int) float64 { return math.Float64frombits(d.u64(off)) }

// utf16le decodes n uint16 code units starting at off into a Go string.
func (d decoder) utf16le(off, n int) string {
	u := make([]uint16, n)
	for i := 0; i < n; i++ {
		u[i] = d.u16(off + 2*i)
	}
	return string(utf16.Decode(u))
}

// bytesAt returns a copy of n raw bytes starting at off.
func (d decoder) bytesAt(off, n int) []byte {
	b := make([]byte, n)
	copy(b, d.buf[off:off+n])
	return b
}

func (d decoder) len() int { return len(d.buf) }

// guidAt decodes a 16-byte CFB-layout GUID at off: the first three groups
// (a 4-byte, a 2-byte and a 2-byte field) are stored little-endian and
// must be byte-swapped to their canonical big-endian presentation; the
// trailing 8-byte group is kept in source order. Both class IDs (header,
// directory entries) and property-set format IDs use this layout.
func (d decoder) guidAt(off int) uuid.UUID {
	var b [16]byte
	copy(b[:], d.buf[off:off+16])
	return parseGUID(b)
}

// parseGUID applies the CFB GUID byte-swap described in spec §4.4 to a
// raw 16-byte on-disk field.
func parseGUID(b [16]byte) uuid.UUID {
	var out uuid.UUID
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:16])
	return out
}
