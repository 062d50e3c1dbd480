package epollreactor

import (
	"testing"
	"time"

	"github.com/zhihanii/iostream/reactor"
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

func TestReactorFiresOnReadReadiness(t *testing.T) {
	rfd, wfd := newNonblockingPipe(t)
	r, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer r.Close()

	fired := make(chan bool, 1)
	watcher := r.Poll(rfd, func(fd int, expired bool, _ reactor.Watcher) {
		fired <- expired
	})
	watcher.Listen(2 * time.Second)

	if _, werr := unix.Write(wfd, []byte("x")); werr != nil {
		t.Fatalf("unix.Write: %v", werr)
	}

	select {
	case expired := <-fired:
		if expired {
			t.Fatalf("callback fired expired=true, want false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired on read readiness")
	}
}

func TestReactorFiresOnTimeout(t *testing.T) {
	rfd, _ := newNonblockingPipe(t)
	r, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer r.Close()

	fired := make(chan bool, 1)
	watcher := r.Poll(rfd, func(fd int, expired bool, _ reactor.Watcher) {
		fired <- expired
	})
	watcher.Listen(50 * time.Millisecond)

	select {
	case expired := <-fired:
		if !expired {
			t.Fatalf("callback fired expired=false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never expired")
	}
}
