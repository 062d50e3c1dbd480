package iostream

import (
	"testing"
	"time"

	"github.com/zhihanii/iostream/errs"
)

func TestReadExact(t *testing.T) {
	s := NewMemoryStream(0)
	s.Write([]byte("hello world"), 0)

	data, err := ReadExact(s, 5, 0)
	if err != nil {
		t.Fatalf("ReadExact() error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadExact() = %q, want %q", data, "hello")
	}
}

func TestReadExactAcrossMultipleWrites(t *testing.T) {
	s := NewMemoryStream(0)
	done := make(chan struct{})
	var data []byte
	var rerr error
	go func() {
		data, rerr = ReadExact(s, 10, time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Write([]byte("hello "), 0)
	time.Sleep(10 * time.Millisecond)
	s.Write([]byte("world"), 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadExact never completed")
	}
	if rerr != nil {
		t.Fatalf("ReadExact() error: %v", rerr)
	}
	if string(data) != "hello worl" {
		t.Fatalf("ReadExact() = %q, want %q", data, "hello worl")
	}
}

func TestReadUntil(t *testing.T) {
	s := NewMemoryStream(0)
	s.Write([]byte("GET / HTTP/1.1\r\n"), 0)

	data, err := ReadUntil(s, []byte("\r\n"), 0, 0)
	if err != nil {
		t.Fatalf("ReadUntil() error: %v", err)
	}
	if string(data) != "GET / HTTP/1.1\r\n" {
		t.Fatalf("ReadUntil() = %q, want %q", data, "GET / HTTP/1.1\r\n")
	}
}

func TestReadAll(t *testing.T) {
	s := NewMemoryStream(0)
	s.End([]byte("all of it"), 0)

	data, err := ReadAll(s, 0, 0)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != "all of it" {
		t.Fatalf("ReadAll() = %q, want %q", data, "all of it")
	}
}

func TestPipeCopiesAndEndsDest(t *testing.T) {
	src := NewMemoryStream(0)
	dst := NewMemoryStream(0)
	src.End([]byte("copy me"), 0)

	n, err := Pipe(src, dst, true, 0, nil, 0)
	if err != nil {
		t.Fatalf("Pipe() error: %v", err)
	}
	if n != 7 {
		t.Fatalf("Pipe() n = %d, want 7", n)
	}
	if dst.IsWritable() {
		t.Fatalf("dest should be unwritable after Pipe with end=true")
	}

	data, err := ReadAll(dst, 0, 0)
	if err != nil {
		t.Fatalf("ReadAll(dst) error: %v", err)
	}
	if string(data) != "copy me" {
		t.Fatalf("dest contents = %q, want %q", data, "copy me")
	}
}

func TestReadExactNegativeLength(t *testing.T) {
	s := NewMemoryStream(0)
	if _, err := ReadExact(s, -1, 0); !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("ReadExact(-1) error = %v, want KindInvalidArgument", err)
	}
}
