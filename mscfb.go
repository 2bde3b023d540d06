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

// Package mscfb implements a read-only parser for Microsoft's Compound File
// Binary File Format (also known as OLE2 structured storage), the container
// format used by legacy Office documents (.doc, .xls, .ppt) and many other
// Windows composite files.
//
// Example:
//
//	f, err := mscfb.Open("test/test.doc")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Close()
//	if idx := f.FindStream("WordDocument"); idx >= 0 {
//		r, err := f.GetStream(idx)
//		...
//	}
package mscfb

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// sectorReader is the byte source adapter contract: a positioned,
// non-cursor read over the backing device. *os.File, afero.File and
// bytes.Reader all satisfy it.
type sectorReader interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Reader provides random access to the storages and streams of a compound
// file. A Reader owns its backing handle exclusively from Open/NewReader
// until Close; it is not safe for concurrent use by multiple goroutines,
// nor are two streams obtained from the same Reader safe to read from
// concurrently (matching the single-owner discipline of the format).
type Reader struct {
	src    sectorReader
	size   int64
	closer io.Closer // nil when the caller supplied the source

	header  *header
	fat     []uint32
	miniFAT []uint32
	// miniStreamSectors is the chain of ordinary sectors backing the
	// root entry's mini-stream, in chain order.
	miniStreamSectors []uint32
	entries           []*DirectoryEntry
	root              *DirectoryEntry
	// propertySetMarkers holds, per entry, the on-disk marker byte that
	// readDirectory captured for property-set detection; decodePropertySets
	// consumes it once the mini-FAT is available.
	propertySetMarkers []byte

	dateMode    DateMode
	codepage    *charmap.Charmap
	maxDepth    int
	allSections bool
}

// Open opens the compound file at path and parses its header, FAT,
// directory tree, mini-FAT and embedded property sets.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, "open", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, "stat", err)
	}
	r, err := newReader(f, fi.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader parses a compound file already available as a positioned byte
// source (for example an *os.File, an afero.File, or a bytes.Reader). size
// is the total length of the source in bytes. NewReader does not take
// ownership of r: Close on the returned Reader never closes r, even when r
// implements io.Closer.
func NewReader(r sectorReader, size int64, opts ...Option) (*Reader, error) {
	return newReader(r, size, opts...)
}

func newReader(src sectorReader, size int64, opts ...Option) (*Reader, error) {
	r := &Reader{
		src:      src,
		size:     size,
		dateMode: DateModeCorrected,
		codepage: charmap.Windows1252,
		maxDepth: 1 << 20,
	}
	for _, o := range opts {
		o(r)
	}

	// Phase 1: header.
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	// Phase 2: FAT (+ DIFAT extension).
	if err := r.readFAT(); err != nil {
		return nil, err
	}
	// Phase 3: directory (entries, tree lift).
	if err := r.readDirectory(); err != nil {
		return nil, err
	}
	// Phase 4: mini-FAT.
	if err := r.readMiniFAT(); err != nil {
		return nil, err
	}
	// Phase 5: property-set decode.
	if err := r.decodePropertySets(); err != nil {
		return nil, err
	}
	r.root = r.entries[0]
	return r, nil
}

// Root returns the root directory entry. Its Children method exposes the
// top-level storages and streams.
func (r *Reader) Root() *DirectoryEntry {
	return r.root
}

// FindStream returns the directory index of the stream named name,
// matched case-insensitively against every entry (storage or stream), or
// -1 if no entry has that name.
func (r *Reader) FindStream(name string) int {
	for i, e := range r.entries {
		if e.Type == TypeStream || e.Type == TypeStorage || e.Type == TypeRoot {
			if strings.EqualFold(e.Name, name) {
				return i
			}
		}
	}
	return -1
}

// Entry returns the directory entry at index idx, the same indexing space
// FindStream and GetStream use, or nil if idx is out of range.
func (r *Reader) Entry(idx int) *DirectoryEntry {
	if idx < 0 || idx >= len(r.entries) {
		return nil
	}
	return r.entries[idx]
}

// GetStream returns an io.Reader over the logical bytes of the stream at
// directory index idx. The returned reader is single-pass: it must be
// fully drained (or discarded) before the Reader is closed.
func (r *Reader) GetStream(idx int) (io.Reader, error) {
	if idx < 0 || idx >= len(r.entries) {
		return nil, wrapErr(KindNoSuchStream, fmt.Sprintf("index %d out of range", idx), nil)
	}
	e := r.entries[idx]
	if e.Type != TypeStream {
		return nil, wrapErr(KindNoSuchStream, fmt.Sprintf("entry %q is not a stream", e.Name), nil)
	}
	return r.newStreamReader(e)
}

// Close releases the handle opened by Open. It is a no-op for Readers
// built with NewReader, since those do not own their source. Further
// stream reads after Close fail.
func (r *Reader) Close() error {
	r.src = nil
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
