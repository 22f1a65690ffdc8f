package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortPayload is returned when a reader runs out of bytes mid-field.
var ErrShortPayload = errors.New("payload ended before expected field")

// Writer serializes primitive values, strings, and string maps into a payload
// in little endian order. The zero value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteUint8(v byte) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteString writes a uint16 length prefix followed by the UTF-8 bytes.
// Strings longer than 65535 bytes are truncated to fit the prefix; no
// protocol field legitimately approaches that limit.
func (w *Writer) WriteString(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	w.WriteUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes. Nested
// message payloads are carried this way.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteStringMap writes a uint16 count followed by alternating key/value strings.
func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteUint16(uint16(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteString(v)
	}
}

// Reader deserializes values written by Writer. All methods return
// ErrShortPayload once the underlying buffer is exhausted.
type Reader struct {
	buf *bytes.Reader
}

func NewReader(payload []byte) *Reader {
	return &Reader{buf: bytes.NewReader(payload)}
}

func (r *Reader) ReadUint8() (byte, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, ErrShortPayload
	}
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	return b != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	var b [2]byte
	if n, err := r.buf.Read(b[:]); err != nil || n != 2 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if n, err := r.buf.Read(b[:]); err != nil || n != 4 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	var b [8]byte
	if n, err := r.buf.Read(b[:]); err != nil || n != 8 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b := make([]byte, length)
	if n, err := r.buf.Read(b); err != nil || n != int(length) {
		return "", ErrShortPayload
	}
	return string(b), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	length, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(length) > r.buf.Len() {
		return nil, fmt.Errorf("%w: declared block of %d bytes", ErrShortPayload, length)
	}
	b := make([]byte, length)
	if n, err := r.buf.Read(b); err != nil || n != int(length) {
		return nil, ErrShortPayload
	}
	return b, nil
}

func (r *Reader) ReadStringMap() (map[string]string, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
