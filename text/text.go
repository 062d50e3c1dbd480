// Package text layers character-set-aware string convenience methods
// over the byte stream contracts (spec §4.10), grounded on
// connection.go's ReadString/WriteString family generalized from a
// hardwired UTF-8 assumption to any golang.org/x/text/encoding.
package text

import (
	"time"

	"github.com/zhihanii/iostream"
	"github.com/zhihanii/iostream/errs"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// UTF8 is the zero-value default: no transcoding, since the byte
// streams underneath already carry UTF-8-safe data most of the time.
var UTF8 encoding.Encoding = encoding.Nop

// UTF16BE and UTF16LE cover the other two encodings the teacher's own
// original ReadString call sites needed to support (BOM-less streams
// negotiated out of band).
var (
	UTF16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	UTF16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// Reader decodes text out of an iostream.Readable using enc, buffering
// undecoded trailing bytes across calls the way transform.Reader does
// for a multibyte encoding split across two reads.
type Reader struct {
	src iostream.Readable
	dec transform.Transformer
	enc encoding.Encoding
}

// NewReader wraps src, decoding bytes read from it as enc.
func NewReader(src iostream.Readable, enc encoding.Encoding) *Reader {
	return &Reader{src: src, dec: enc.NewDecoder(), enc: enc}
}

// ReadString reads up to length bytes (0 meaning the stream's default
// chunk) and decodes them to a string. Readable has no general unshift,
// so a multibyte sequence cut at the chunk boundary is resolved by
// pulling one more byte at a time and retrying the transform, mirroring
// transform.Reader's own retry-on-ErrShortSrc loop.
func (r *Reader) ReadString(length int, timeout time.Duration) (string, error) {
	raw, err := r.src.Read(length, nil, timeout)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}

	dst := make([]byte, len(raw)*4+16)
	for {
		nDst, _, terr := r.dec.Transform(dst, raw, false)
		if terr == transform.ErrShortDst {
			dst = make([]byte, len(dst)*2)
			continue
		}
		if terr == transform.ErrShortSrc {
			// A multibyte sequence was cut at the chunk boundary; pull one
			// more byte and retry the transform from scratch (small
			// chunks only, so re-decoding the whole buffer is cheap).
			extra, eerr := r.src.Read(1, nil, timeout)
			if eerr != nil || len(extra) == 0 {
				return string(dst[:nDst]), errs.New(errs.KindFailure, "truncated multibyte sequence at eof", terr)
			}
			raw = append(raw, extra...)
			r.dec.Reset()
			continue
		}
		if terr != nil {
			return string(dst[:nDst]), errs.New(errs.KindFailure, "decode failed", terr)
		}
		return string(dst[:nDst]), nil
	}
}

// Writer encodes strings to bytes as enc and forwards them to dest.
type Writer struct {
	dest iostream.Writable
	enc  transform.Transformer
}

// NewWriter wraps dest, encoding strings written through it as enc.
func NewWriter(dest iostream.Writable, enc encoding.Encoding) *Writer {
	return &Writer{dest: dest, enc: enc.NewEncoder()}
}

// WriteString encodes s and writes the result through dest.
func (w *Writer) WriteString(s string, timeout time.Duration) (int, error) {
	encoded, _, err := transform.Bytes(w.enc, []byte(s))
	if err != nil {
		return 0, errs.New(errs.KindFailure, "encode failed", err)
	}
	return w.dest.Write(encoded, timeout)
}

// EndString encodes s, writes it, and ends dest.
func (w *Writer) EndString(s string, timeout time.Duration) (int, error) {
	encoded, _, err := transform.Bytes(w.enc, []byte(s))
	if err != nil {
		return 0, errs.New(errs.KindFailure, "encode failed", err)
	}
	return w.dest.End(encoded, timeout)
}
