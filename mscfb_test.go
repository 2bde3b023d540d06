package mscfb

import (
	"bytes"
	"io"
	"testing"

	"github.com/cfbkit/mscfb/internal/cfbtest"
)

func openBuilt(t *testing.T, b *cfbtest.Builder, opts ...Option) *Reader {
	t.Helper()
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("building fixture: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf), int64(len(buf)), opts...)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestMinimalFile(t *testing.T) {
	r := openBuilt(t, cfbtest.New())
	root := r.Root()
	if root.Type != TypeRoot {
		t.Fatalf("root type = %v, want root", root.Type)
	}
	if len(root.Children()) != 0 {
		t.Errorf("minimal file should have no children, got %d", len(root.Children()))
	}
}

func TestSmallStreamViaMiniFAT(t *testing.T) {
	data := bytes.Repeat([]byte("ministream"), 10) // well under the 4096 cutoff
	r := openBuilt(t, cfbtest.New().AddStream("Small", data))

	idx := r.FindStream("Small")
	if idx < 0 {
		t.Fatal("stream not found")
	}
	sr, err := r.GetStream(idx)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	got, err := io.ReadAll(sr)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d matching bytes", len(got), len(data))
	}
}

func TestLargeStreamViaFAT(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 9000) // above the 4096 mini-stream cutoff
	r := openBuilt(t, cfbtest.New().AddStream("Big", data))

	idx := r.FindStream("big") // case-insensitive match
	if idx < 0 {
		t.Fatal("stream not found")
	}
	sr, err := r.GetStream(idx)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	got, err := io.ReadAll(sr)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("large stream round-trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestMultipleStreamsUnderRoot(t *testing.T) {
	r := openBuilt(t, cfbtest.New().
		AddStream("One", []byte("aaa")).
		AddStream("Two", []byte("bbb")).
		AddStream("Three", nil))

	names := map[string]bool{}
	for _, c := range r.Root().Children() {
		names[c.Name] = true
	}
	for _, want := range []string{"One", "Two", "Three"} {
		if !names[want] {
			t.Errorf("missing child %q, have %v", want, names)
		}
	}
}

func TestEmptyStream(t *testing.T) {
	r := openBuilt(t, cfbtest.New().AddStream("Empty", nil))
	idx := r.FindStream("Empty")
	if idx < 0 {
		t.Fatal("stream not found")
	}
	sr, err := r.GetStream(idx)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	got, err := io.ReadAll(sr)
	if err != nil {
		t.Fatalf("reading empty stream: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty stream produced %d bytes", len(got))
	}
}

func TestFindStreamMiss(t *testing.T) {
	r := openBuilt(t, cfbtest.New().AddStream("One", []byte("a")))
	if idx := r.FindStream("DoesNotExist"); idx != -1 {
		t.Errorf("FindStream on a missing name = %d, want -1", idx)
	}
}

func TestGetStreamOutOfRange(t *testing.T) {
	r := openBuilt(t, cfbtest.New())
	if _, err := r.GetStream(99); err == nil {
		t.Error("expected an error for an out-of-range stream index")
	}
}

func TestGetStreamRejectsRoot(t *testing.T) {
	r := openBuilt(t, cfbtest.New().AddStream("One", []byte("a")))
	idx := r.FindStream("Root Entry")
	if idx < 0 {
		t.Fatal("expected FindStream to locate the root entry by name")
	}
	if _, err := r.GetStream(idx); err == nil {
		t.Error("expected GetStream on the root index to fail, not serve the mini-stream")
	}
}

func TestBadMagicRejected(t *testing.T) {
	buf := make([]byte, headerLen)
	_, err := NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err == nil {
		t.Fatal("expected an error opening a buffer with no CFB signature")
	}
}

func TestCloseInvalidatesFurtherReads(t *testing.T) {
	b := cfbtest.New().AddStream("One", []byte("hello"))
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("building fixture: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	idx := r.FindStream("One")
	sr, err := r.GetStream(idx)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	r.Close()
	if _, err := sr.Read(make([]byte, 1)); err == nil {
		t.Error("expected a read after Close to fail")
	}
}
