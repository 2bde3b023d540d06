package mscfb

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
)

func TestReadHeaderBadMagic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	buf := make([]byte, headerLen)
	buf[0] = 0x00 // not the CFB signature

	src := NewMockSectorReader(ctrl)
	src.EXPECT().ReadAt(gomock.Any(), int64(0)).DoAndReturn(
		func(p []byte, off int64) (int, error) {
			n := copy(p, buf)
			return n, nil
		})

	r := &Reader{src: src, size: int64(headerLen)}
	err := r.readHeader()
	if err == nil {
		t.Fatal("expected an error for bad magic")
	}
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindInvalidFormat {
		t.Errorf("expected KindInvalidFormat, got %v", err)
	}
}

func TestReadHeaderShortRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := NewMockSectorReader(ctrl)
	src.EXPECT().ReadAt(gomock.Any(), int64(0)).Return(10, errors.New("EOF"))

	r := &Reader{src: src, size: 10}
	err := r.readHeader()
	if err == nil {
		t.Fatal("expected an error for a short header read")
	}
}

func TestReadHeaderUnsupportedVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	buf := make([]byte, headerLen)
	writeTestHeaderPrefix(buf, 7, 9) // bogus major version

	src := NewMockSectorReader(ctrl)
	src.EXPECT().ReadAt(gomock.Any(), int64(0)).DoAndReturn(
		func(p []byte, off int64) (int, error) {
			return copy(p, buf), nil
		})

	r := &Reader{src: src, size: int64(headerLen)}
	err := r.readHeader()
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindVersionMismatch {
		t.Errorf("expected KindVersionMismatch, got %v", err)
	}
}

func TestReadHeaderMismatchedSectorShift(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	buf := make([]byte, headerLen)
	writeTestHeaderPrefix(buf, 3, 12) // version 3 demands shift 9, not 12

	src := NewMockSectorReader(ctrl)
	src.EXPECT().ReadAt(gomock.Any(), int64(0)).DoAndReturn(
		func(p []byte, off int64) (int, error) {
			return copy(p, buf), nil
		})

	r := &Reader{src: src, size: int64(headerLen)}
	err := r.readHeader()
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindVersionMismatch {
		t.Errorf("expected KindVersionMismatch, got %v", err)
	}
}

// writeTestHeaderPrefix writes just enough of a header for the version
// dispatch logic to run: a valid signature, a major version and a
// sector shift.
func writeTestHeaderPrefix(buf []byte, major, shift uint16) {
	putU64(buf[0:], signature)
	putU16(buf[26:], major)
	putU16(buf[30:], shift)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
