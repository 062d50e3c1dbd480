package iostream

import (
	"time"

	"github.com/zhihanii/iostream/errs"
)

// ReadExact reads until exactly n bytes have been collected (spec
// §4.9). n == 0 returns empty immediately; n < 0 is InvalidArgument.
func ReadExact(s Readable, n int, timeout time.Duration) ([]byte, error) {
	if n < 0 {
		return nil, errs.New(errs.KindInvalidArgument, "negative length", nil)
	}
	if n == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := s.Read(n-len(out), nil, timeout)
		if err != nil {
			return out, err
		}
		if len(chunk) == 0 {
			// EOF before n bytes were collected.
			return out, errs.New(errs.KindUnreadable, "stream ended before n bytes were read", nil)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// ReadUntil reads until the buffer ends with needle or maxLen bytes
// have accumulated (maxLen == 0 means unbounded). The stop-byte
// accelerator (needle's last byte) narrows each underlying Read, but
// the final termination check is always against the full needle (spec
// §4.9).
func ReadUntil(s Readable, needle []byte, maxLen int, timeout time.Duration) ([]byte, error) {
	if len(needle) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "empty needle", nil)
	}

	last := []byte{needle[len(needle)-1]}
	out := make([]byte, 0, len(needle))

	for {
		remaining := 0
		if maxLen > 0 {
			remaining = maxLen - len(out)
			if remaining <= 0 {
				return out, nil
			}
		}
		chunk, err := s.Read(remaining, last, timeout)
		if err != nil {
			return out, err
		}
		if len(chunk) == 0 {
			return out, errs.New(errs.KindUnreadable, "stream ended before needle was found", nil)
		}
		out = append(out, chunk...)

		if endsWith(out, needle) {
			return out, nil
		}
		if maxLen > 0 && len(out) >= maxLen {
			return out[:maxLen], nil
		}
	}
}

func endsWith(b, suffix []byte) bool {
	if len(suffix) > len(b) {
		return false
	}
	base := len(b) - len(suffix)
	for i := range suffix {
		if b[base+i] != suffix[i] {
			return false
		}
	}
	return true
}

// ReadAll reads until the stream is no longer readable (EOF) or maxLen
// bytes have been collected, whichever comes first (maxLen == 0 means
// unbounded).
func ReadAll(s Readable, maxLen int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, 256)
	for s.IsReadable() {
		remaining := 0
		if maxLen > 0 {
			remaining = maxLen - len(out)
			if remaining <= 0 {
				break
			}
		}
		chunk, err := s.Read(remaining, nil, timeout)
		if err != nil {
			return out, err
		}
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Pipe repeatedly reads from source and writes to dest (spec §4.9).
// It continues while source is readable, dest is writable, the stop
// byte (if any) has not yet been emitted, and (length == 0 or bytes
// are still required). On normal completion, if end, it ends dest but
// never source. On any error, if end and dest is still writable, it
// ends dest first, then propagates the error.
func Pipe(source Readable, dest Writable, end bool, length int, stopByte []byte, timeout time.Duration) (int64, error) {
	var total int64
	stopSeen := false

	for source.IsReadable() && dest.IsWritable() && !stopSeen {
		remaining := 0
		if length > 0 {
			remaining = length - int(total)
			if remaining <= 0 {
				break
			}
		}

		chunk, err := source.Read(remaining, stopByte, timeout)
		if err != nil {
			return total, finishPipeOnError(dest, end, timeout, err)
		}
		if len(chunk) == 0 {
			break
		}

		if b, ok := ResolveStopByte(stopByte); ok && len(chunk) > 0 && chunk[len(chunk)-1] == b {
			stopSeen = true
		}

		n, err := dest.Write(chunk, timeout)
		total += int64(n)
		if err != nil {
			return total, finishPipeOnError(dest, end, timeout, err)
		}
	}

	if end {
		if _, err := dest.End(nil, timeout); err != nil {
			return total, err
		}
	}
	return total, nil
}

func finishPipeOnError(dest Writable, end bool, timeout time.Duration, cause error) error {
	if end && dest.IsWritable() {
		_, _ = dest.End(nil, timeout)
	}
	return cause
}
