package iostream

import (
	"testing"
	"time"

	"github.com/zhihanii/iostream/errs"
	"github.com/zhihanii/iostream/internal/reactortest"
	"golang.org/x/sys/unix"
)

func TestWritablePipeImmediateWrite(t *testing.T) {
	rfd, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewWritablePipe(wfd, rt, false)
	defer p.Close()

	n, err := p.Write([]byte("hello"), 0)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if n != 5 {
		t.Fatalf("Write() n = %d, want 5", n)
	}

	buf := make([]byte, 5)
	got, rerr := unix.Read(rfd, buf)
	if rerr != nil {
		t.Fatalf("unix.Read: %v", rerr)
	}
	if string(buf[:got]) != "hello" {
		t.Fatalf("pipe contents = %q, want %q", buf[:got], "hello")
	}
}

func TestWritablePipeEndMarksUnwritable(t *testing.T) {
	_, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewWritablePipe(wfd, rt, false)
	defer p.Close()

	if _, err := p.End([]byte("bye"), 0); err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if p.IsWritable() {
		t.Fatalf("pipe should be unwritable after End")
	}
	if _, err := p.Write([]byte("more"), 0); err == nil {
		t.Fatalf("Write() after End should fail")
	}
}

func TestWritablePipeCloseWakesQueuedTicket(t *testing.T) {
	_, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewWritablePipe(wfd, rt, false)

	done := make(chan error, 1)
	go func() {
		_, err := p.Await(time.Second)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !p.watcher.IsPending() {
		if time.Now().After(deadline) {
			t.Fatal("await ticket never armed a watcher")
		}
		time.Sleep(time.Millisecond)
	}
	p.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Await() should fail once the pipe is closed")
		}
	case <-time.After(time.Second):
		t.Fatal("queued ticket never woke up after Close")
	}
}

// TestWritablePipeExpiredTicketFreesWholePipe drives a queued ticket's
// timeout via reactortest.Expire instead of a real epoll timer,
// exercising Open Question resolution 3 (SPEC_FULL.md §6.3): a ticket
// timing out must free the whole pipe with a Closed cause, not just
// resolve that one ticket and leave the pipe open.
func TestWritablePipeExpiredTicketFreesWholePipe(t *testing.T) {
	_, wfd := newNonblockingPipe(t)
	rt := reactortest.New()
	p := NewWritablePipe(wfd, rt, false)

	done := make(chan error, 1)
	go func() {
		_, err := p.Await(time.Second)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !p.watcher.IsPending() {
		if time.Now().After(deadline) {
			t.Fatal("await ticket never armed a watcher")
		}
		time.Sleep(time.Millisecond)
	}
	if !rt.Expire(wfd, true) {
		t.Fatal("Expire() found no pending watcher to fire")
	}

	select {
	case err := <-done:
		if !errs.Is(err, errs.KindTimeout) {
			t.Fatalf("Await() error = %v, want KindTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued ticket never woke up after Expire")
	}

	if p.IsOpen() {
		t.Fatalf("pipe should be closed after a queued ticket times out")
	}
	if p.IsWritable() {
		t.Fatalf("pipe should be unwritable after a queued ticket times out")
	}

	if _, err := p.Write([]byte("x"), 0); !errs.Is(err, errs.KindUnwritable) {
		t.Fatalf("Write() after timeout-induced free = %v, want KindUnwritable", err)
	}
}
