package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.StoreMagic("TEST")
	w.StoreByte(0xAB)
	w.StoreWord(0xBEEF)
	w.StoreDword(0xDEADBEEF)
	w.StoreQword(1 << 40)
	w.StoreInt(-7)
	w.StoreBool(true)
	w.StoreFloat(1.5)
	w.StoreDouble(-2.25)
	w.StoreString("material")
	w.StoreBuffer([]byte{1, 2, 3})
	if err := w.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}
	if w.Len() != int64(buf.Len()) {
		t.Errorf("Len() = %d, buffer has %d", w.Len(), buf.Len())
	}

	r := NewReader(&buf)
	r.ExpectMagic("TEST")
	if got := r.ReadUint8(); got != 0xAB {
		t.Errorf("ReadUint8 = %x", got)
	}
	if got := r.ReadWord(); got != 0xBEEF {
		t.Errorf("ReadWord = %x", got)
	}
	if got := r.ReadDword(); got != 0xDEADBEEF {
		t.Errorf("ReadDword = %x", got)
	}
	if got := r.ReadQword(); got != 1<<40 {
		t.Errorf("ReadQword = %d", got)
	}
	if got := r.ReadInt(); got != -7 {
		t.Errorf("ReadInt = %d", got)
	}
	if !r.ReadBool() {
		t.Error("ReadBool = false")
	}
	if got := r.ReadFloat(); got != 1.5 {
		t.Errorf("ReadFloat = %v", got)
	}
	if got := r.ReadDouble(); got != -2.25 {
		t.Errorf("ReadDouble = %v", got)
	}
	if got := r.ReadString(); got != "material" {
		t.Errorf("ReadString = %q", got)
	}
	p := make([]byte, 3)
	r.ReadBuffer(p)
	if !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Errorf("ReadBuffer = %v", p)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	_ = r.ReadDword()
	if !errors.Is(r.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("Err() = %v, want ErrUnexpectedEOF", r.Err())
	}
	if got := r.ReadUint8(); got != 0 {
		t.Errorf("read after error returned %d, want 0", got)
	}
}

func TestExpectMagicMismatch(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("XXXX")))
	r.ExpectMagic("EHM1")
	if !errors.Is(r.Err(), ErrBadMagic) {
		t.Errorf("Err() = %v, want ErrBadMagic", r.Err())
	}
}

func TestReadCountLimit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.StoreDword(100)
	r := NewReader(&buf)
	if n := r.ReadCount(10); n != 0 {
		t.Errorf("ReadCount = %d, want 0", n)
	}
	if !errors.Is(r.Err(), ErrBufferTooLarge) {
		t.Errorf("Err() = %v, want ErrBufferTooLarge", r.Err())
	}
}
