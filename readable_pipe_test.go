package iostream

import (
	"testing"
	"time"

	"github.com/zhihanii/iostream/internal/reactortest"
	"golang.org/x/sys/unix"
)

func newNonblockingPipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("unix.Pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadablePipeImmediateData(t *testing.T) {
	rfd, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewReadablePipe(rfd, rt, false)
	defer p.Close()

	if _, err := unix.Write(wfd, []byte("hello")); err != nil {
		t.Fatalf("unix.Write: %v", err)
	}

	data, err := p.Read(5, nil, 0)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Read() = %q, want %q", data, "hello")
	}
}

func TestReadablePipeWaitsThenWakes(t *testing.T) {
	rfd, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewReadablePipe(rfd, rt, false)
	defer p.Close()

	done := make(chan struct{})
	var data []byte
	var rerr error
	go func() {
		data, rerr = p.Read(5, nil, time.Second)
		close(done)
	}()

	// Give Read time to arm its watcher before data arrives.
	deadline := time.Now().Add(time.Second)
	for !p.watcher.IsPending() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never armed")
		}
		time.Sleep(time.Millisecond)
	}
	unix.Write(wfd, []byte("world"))
	if !rt.Ready(rfd, false) {
		t.Fatal("reactor had no pending read watcher to fire")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parked read never woke up")
	}
	if rerr != nil {
		t.Fatalf("Read() error: %v", rerr)
	}
	if string(data) != "world" {
		t.Fatalf("Read() = %q, want %q", data, "world")
	}
}

func TestReadablePipeEOF(t *testing.T) {
	rfd, wfd := newNonblockingPipe(t)
	unix.Close(wfd)
	rt := reactortest.New()
	p := NewReadablePipe(rfd, rt, false)
	defer p.Close()

	data, err := p.Read(5, nil, 0)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("Read() at EOF = %q, want empty", data)
	}
	if p.IsOpen() {
		t.Fatalf("pipe should close on EOF")
	}
}

func TestReadablePipeUnshift(t *testing.T) {
	rfd, _ := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewReadablePipe(rfd, rt, false)
	defer p.Close()

	p.Unshift([]byte("pre"))
	data, err := p.Read(3, nil, 0)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "pre" {
		t.Fatalf("Read() = %q, want %q", data, "pre")
	}
}
