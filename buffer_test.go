package iostream

import "testing"

func TestBufferPushShift(t *testing.T) {
	b := NewBuffer()
	b.Push([]byte("hello"))
	b.Push([]byte(" world"))
	if got := string(b.Shift(5)); got != "hello" {
		t.Fatalf("Shift(5) = %q, want %q", got, "hello")
	}
	if got := string(b.Shift(100)); got != " world" {
		t.Fatalf("Shift(100) = %q, want %q", got, " world")
	}
	if !b.IsEmpty() {
		t.Fatalf("expected buffer empty after draining shift")
	}
}

func TestBufferUnshift(t *testing.T) {
	b := NewBuffer()
	b.Push([]byte("world"))
	b.Unshift([]byte("hello "))
	if got := string(b.Drain()); got != "hello world" {
		t.Fatalf("Drain() = %q, want %q", got, "hello world")
	}

	// Unshift with no room before head forces a reallocation.
	b2 := NewBuffer()
	b2.Push([]byte("b"))
	b2.Shift(0) // no-op, head stays 0
	b2.Unshift([]byte("a"))
	if got := string(b2.Drain()); got != "ab" {
		t.Fatalf("Drain() = %q, want %q", got, "ab")
	}
}

func TestBufferSearch(t *testing.T) {
	b := NewBuffer()
	b.Push([]byte("abc\ndef"))
	if idx := b.Search('\n'); idx != 3 {
		t.Fatalf("Search('\\n') = %d, want 3", idx)
	}
	if idx := b.Search('z'); idx != -1 {
		t.Fatalf("Search('z') = %d, want -1", idx)
	}
	b.Shift(4)
	if idx := b.SearchFrom('f', 0); idx != 2 {
		t.Fatalf("SearchFrom('f', 0) = %d, want 2", idx)
	}
}

func TestBufferPeekNonDestructive(t *testing.T) {
	b := NewBuffer()
	b.Push([]byte("abcdef"))
	if got := string(b.Peek(3, 0)); got != "abc" {
		t.Fatalf("Peek(3,0) = %q, want %q", got, "abc")
	}
	if got := string(b.Peek(3, 2)); got != "cde" {
		t.Fatalf("Peek(3,2) = %q, want %q", got, "cde")
	}
	if b.Len() != 6 {
		t.Fatalf("Peek must not consume bytes, Len() = %d, want 6", b.Len())
	}
}

func TestBufferCompaction(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 100; i++ {
		b.Push([]byte{byte(i)})
		b.Shift(1)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got Len()=%d", b.Len())
	}
}

func TestCursorSeekAndInsert(t *testing.T) {
	b := NewBuffer()
	b.Push([]byte("abcdef"))
	c := b.NewCursor()

	if !c.Seek(3) {
		t.Fatalf("Seek(3) should succeed within bounds")
	}
	c.Insert([]byte("XYZ"))
	if got := string(b.Peek(100, 0)); got != "abcXYZdef" {
		t.Fatalf("after Insert, buffer = %q, want %q", got, "abcXYZdef")
	}

	if c.Seek(-1) {
		t.Fatalf("Seek(-1) should fail")
	}
	if c.Seek(b.Len() + 1) {
		t.Fatalf("Seek past length should fail")
	}
	if !c.Seek(b.Len()) {
		t.Fatalf("Seek(length) should succeed (inclusive end)")
	}
	if c.Valid() {
		t.Fatalf("cursor at length should not be Valid")
	}
}
