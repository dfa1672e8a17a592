// Package datastream reads and writes the big-endian primitive encoding used by
// NeuroLab network files. Strings follow the Qt data stream layout: a uint32 byte
// length followed by UTF-16BE code units, with 0xFFFFFFFF marking a null string.
//
// Reader and Writer keep the first error they encounter; every later call is a
// no-op, so callers check Err once after a block of fields.
package datastream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

const nullStringLength = 0xFFFFFFFF

// MaxStringBytes bounds string lengths accepted by the reader.
const MaxStringBytes = 1 << 20

var ErrStringTooLong = errors.New("string exceeds maximum length")

type Writer struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error {
	return w.err
}

// Written reports the number of bytes successfully written.
func (w *Writer) Written() int64 {
	return w.n
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err != nil {
		w.err = err
	}
}

func (w *Writer) Uint8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) {
	binary.BigEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

func (w *Writer) Uint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

func (w *Writer) String(s string) {
	units := utf16.Encode([]rune(s))
	w.Uint32(uint32(len(units) * 2))
	for _, u := range units {
		w.Uint16(u)
	}
}

type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first read error. A stream that ends mid-field reports
// io.ErrUnexpectedEOF; a stream that ends before any byte of a field reports io.EOF.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		r.err = err
		return false
	}
	return true
}

func (r *Reader) Uint8() uint8 {
	if !r.read(r.buf[:1]) {
		return 0
	}
	return r.buf[0]
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint16() uint16 {
	if !r.read(r.buf[:2]) {
		return 0
	}
	return binary.BigEndian.Uint16(r.buf[:2])
}

func (r *Reader) Uint32() uint32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return binary.BigEndian.Uint32(r.buf[:4])
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// String reads a length-prefixed UTF-16BE string. A null string decodes as "".
func (r *Reader) String() string {
	length := r.Uint32()
	if r.err != nil || length == nullStringLength {
		return ""
	}
	if length > MaxStringBytes {
		r.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, length)
		return ""
	}
	if length%2 != 0 {
		r.err = fmt.Errorf("odd utf-16 string length %d", length)
		return ""
	}
	// The buffer grows with the bytes actually present, not the claimed length.
	var raw bytes.Buffer
	if _, err := io.CopyN(&raw, r.r, int64(length)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return ""
	}
	data := raw.Bytes()
	units := make([]uint16, length/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units))
}
