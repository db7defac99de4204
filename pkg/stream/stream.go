// Package stream provides the little-endian byte stream primitives used to
// persist hierarchical meshes, hulls and cutout sets.
//
// Reader and Writer keep the first error they encounter; later calls become
// no-ops so callers can check Err once at the end of a record.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Stream errors.
var (
	ErrBufferTooLarge = errors.New("stream: buffer length exceeds limit")
	ErrBadMagic       = errors.New("stream: bad magic")
)

// MaxBufferLen bounds length-prefixed buffers read from untrusted data.
const MaxBufferLen = 1 << 30

// Writer stores primitives to an io.Writer.
type Writer struct {
	w   io.Writer
	buf [8]byte
	n   int64
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int64 {
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

// StoreByte writes one byte.
func (w *Writer) StoreByte(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

// StoreWord writes a uint16.
func (w *Writer) StoreWord(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

// StoreDword writes a uint32.
func (w *Writer) StoreDword(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// StoreQword writes a uint64.
func (w *Writer) StoreQword(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

// StoreInt writes a signed 32-bit value.
func (w *Writer) StoreInt(v int) {
	w.StoreDword(uint32(int32(v)))
}

// StoreBool writes a bool as one byte.
func (w *Writer) StoreBool(v bool) {
	if v {
		w.StoreByte(1)
		return
	}
	w.StoreByte(0)
}

// StoreFloat writes a float32.
func (w *Writer) StoreFloat(v float32) {
	w.StoreDword(math.Float32bits(v))
}

// StoreDouble writes a float64.
func (w *Writer) StoreDouble(v float64) {
	w.StoreQword(math.Float64bits(v))
}

// StoreBuffer writes raw bytes without a length prefix.
func (w *Writer) StoreBuffer(p []byte) {
	w.write(p)
}

// StoreString writes a length-prefixed string.
func (w *Writer) StoreString(s string) {
	w.StoreDword(uint32(len(s)))
	w.write([]byte(s))
}

// StoreMagic writes a 4-byte tag.
func (w *Writer) StoreMagic(tag string) {
	var m [4]byte
	copy(m[:], tag)
	w.write(m[:])
}

// Reader loads primitives from an io.Reader.
type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first read error. A short read is reported as
// io.ErrUnexpectedEOF.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err unless an earlier error is already stored.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		for i := range p {
			p[i] = 0
		}
		return false
	}
	return true
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() uint8 {
	r.read(r.buf[:1])
	return r.buf[0]
}

// ReadWord reads a uint16.
func (r *Reader) ReadWord() uint16 {
	r.read(r.buf[:2])
	return binary.LittleEndian.Uint16(r.buf[:2])
}

// ReadDword reads a uint32.
func (r *Reader) ReadDword() uint32 {
	r.read(r.buf[:4])
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// ReadQword reads a uint64.
func (r *Reader) ReadQword() uint64 {
	r.read(r.buf[:8])
	return binary.LittleEndian.Uint64(r.buf[:8])
}

// ReadInt reads a signed 32-bit value.
func (r *Reader) ReadInt() int {
	return int(int32(r.ReadDword()))
}

// ReadBool reads a one-byte bool.
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadFloat reads a float32.
func (r *Reader) ReadFloat() float32 {
	return math.Float32frombits(r.ReadDword())
}

// ReadDouble reads a float64.
func (r *Reader) ReadDouble() float64 {
	return math.Float64frombits(r.ReadQword())
}

// ReadBuffer fills p.
func (r *Reader) ReadBuffer(p []byte) {
	r.read(p)
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	n := r.ReadDword()
	if r.err != nil {
		return ""
	}
	if n > MaxBufferLen {
		r.Fail(fmt.Errorf("%w: %d", ErrBufferTooLarge, n))
		return ""
	}
	p := make([]byte, n)
	r.read(p)
	return string(p)
}

// ReadCount reads a length prefix and validates it against limit.
func (r *Reader) ReadCount(limit int) int {
	n := r.ReadDword()
	if r.err != nil {
		return 0
	}
	if int64(n) > int64(limit) {
		r.Fail(fmt.Errorf("%w: %d > %d", ErrBufferTooLarge, n, limit))
		return 0
	}
	return int(n)
}

// ExpectMagic reads a 4-byte tag and fails if it differs from tag.
func (r *Reader) ExpectMagic(tag string) {
	var m [4]byte
	if !r.read(m[:]) {
		return
	}
	var want [4]byte
	copy(want[:], tag)
	if m != want {
		r.Fail(fmt.Errorf("%w: got %q, want %q", ErrBadMagic, string(m[:]), tag))
	}
}
