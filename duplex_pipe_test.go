package iostream

import (
	"testing"

	"github.com/zhihanii/iostream/internal/descriptor"
	"github.com/zhihanii/iostream/internal/reactortest"
)

func TestDuplexPipeReadWrite(t *testing.T) {
	a, b, err := descriptor.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	rt := reactortest.New()
	da := NewDuplexPipe(a, rt, true)
	db := NewDuplexPipe(b, rt, true)
	defer da.Close()
	defer db.Close()

	if _, err := da.Write([]byte("ping"), 0); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := db.Read(4, nil, 0)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "ping" {
		t.Fatalf("Read() = %q, want %q", data, "ping")
	}
}

func TestDuplexPipeEndClosesReadHalf(t *testing.T) {
	a, b, err := descriptor.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	rt := reactortest.New()
	da := NewDuplexPipe(a, rt, true)
	db := NewDuplexPipe(b, rt, true)
	defer db.Close()

	if _, err := da.End(nil, 0); err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if da.r.IsOpen() {
		t.Fatalf("readable half should close on End")
	}
	// With no data left to drain, the writable half also finishes and
	// closes immediately, so the whole duplex reports closed.
	if da.IsOpen() {
		t.Fatalf("duplex should close once both halves have finished")
	}
}
