package internal

import (
	"bytes"
	"testing"
)

func TestBufferPoolGetReturnsEmptySlice(t *testing.T) {
	bp := NewBufferPool(1024)
	buf := bp.Get()
	if len(buf) != 0 {
		t.Fatalf("expected zero length buffer, got len %d", len(buf))
	}
	if cap(buf) < 1024 {
		t.Fatalf("expected capacity >= 1024, got %d", cap(buf))
	}
}

func TestBufferPoolRecyclesWrites(t *testing.T) {
	bp := NewBufferPool(64)
	payload := []byte("datagram bytes")

	buf := append(bp.Get(), payload...)
	if !bytes.Equal(buf, payload) {
		t.Fatalf("append into pooled buffer mangled payload: %q", buf)
	}
	bp.Put(buf)

	again := bp.Get()
	if len(again) != 0 {
		t.Fatalf("recycled buffer must come back empty, got len %d", len(again))
	}
}

func TestBufferPoolClampsBadCapacity(t *testing.T) {
	bp := NewBufferPool(-5)
	if c := cap(bp.Get()); c < 64*1024 {
		t.Fatalf("expected default capacity for bad argument, got %d", c)
	}
	bp.Put(nil)
}
