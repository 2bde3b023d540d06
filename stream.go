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
)

// chunk is one contiguous run of a stream's logical bytes: an absolute
// file offset and a byte count.
type chunk struct {
	off int64
	n   int64
}

// newStreamReader builds the io.Reader for entry e's logical bytes (spec
// §4.5). The full chain is walked and compressed up front into a list of
// file-offset runs; reads against the backing source then happen lazily,
// one run at a time, as the caller drains the reader.
func (r *Reader) newStreamReader(e *DirectoryEntry) (io.Reader, error) {
	mini := e.Size < uint64(r.header.fields.MiniStreamCutoff)

	var chunks []chunk
	if e.Size > 0 {
		var err error
		chunks, err = r.streamChunks(e.sect, e.Size, mini)
		if err != nil {
			return nil, err
		}
	}
	return &streamReader{r: r, chunks: chunks}, nil
}

// streamChunks walks the chain backing a stream (either the ordinary FAT,
// for streams at or above the mini-stream cutoff, or the mini-FAT,
// for smaller ones) and returns the file-offset runs needed to read it,
// with the final run truncated so the total matches size exactly.
func (r *Reader) streamChunks(startSect uint32, size uint64, mini bool) ([]chunk, error) {
	var sectorSize int64
	if mini {
		sectorSize = int64(r.header.miniSectorSize)
	} else {
		sectorSize = int64(r.header.sectorSize)
	}

	chunks := make([]chunk, 0, size/uint64(sectorSize)+1)
	remaining := int64(size)
	sn := startSect
	for remaining > 0 {
		if sn == endOfChain {
			return nil, wrapErr(KindTruncated, "stream chain ended before declared size", nil)
		}
		var off int64
		var err error
		if mini {
			off, err = r.miniSectorOffset(sn)
		} else {
			off = r.header.fileOffset(sn)
		}
		if err != nil {
			return nil, err
		}
		n := sectorSize
		if n > remaining {
			n = remaining
		}
		chunks = append(chunks, chunk{off: off, n: n})
		remaining -= n

		if remaining == 0 {
			break
		}
		if mini {
			sn, err = r.miniFATNext(sn)
		} else {
			sn, err = r.next(sn)
		}
		if err != nil {
			return nil, err
		}
	}
	return compressChunks(chunks), nil
}

// compressChunks merges adjacent runs (off[i]+n[i] == off[i+1]) so a
// fragmented-but-contiguous-on-disk stream reads as one ReadAt instead of
// many.
func compressChunks(chunks []chunk) []chunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:1]
	for _, c := range chunks[1:] {
		last := &out[len(out)-1]
		if last.off+last.n == c.off {
			last.n += c.n
		} else {
			out = append(out, c)
		}
	}
	return out
}

// streamReader is a single-pass, non-restartable io.Reader over a
// stream's logical bytes (spec §4.5's "lazy finite sequence of byte
// chunks"). Once drained it cannot be reused, and every Read fails once
// the owning Reader has been closed.
type streamReader struct {
	r      *Reader
	chunks []chunk
	cur    int64 // bytes already consumed from chunks[0]
}

func (s *streamReader) Read(p []byte) (int, error) {
	if s.r.src == nil {
		return 0, wrapErr(KindIO, "read from closed Reader", nil)
	}
	for len(s.chunks) > 0 && s.cur >= s.chunks[0].n {
		s.chunks = s.chunks[1:]
		s.cur = 0
	}
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	c := s.chunks[0]
	want := c.n - s.cur
	if want > int64(len(p)) {
		want = int64(len(p))
	}
	n, err := s.r.src.ReadAt(p[:want], c.off+s.cur)
	s.cur += int64(n)
	if err != nil && err != io.EOF {
		return n, wrapErr(KindIO, fmt.Sprintf("reading stream at offset %d", c.off+s.cur), err)
	}
	return n, nil
}
