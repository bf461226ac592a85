package net

import "encoding/binary"

// reader and writer are small helpers around the fixed-header-plus-variable-
// trailer binary framing used by messages.go. Factored out so every message
// type shares one implementation instead of repeating offset arithmetic.

type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrMessageTooShort
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrMessageTooShort
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// lenPrefixedString reads a one-byte length followed by that many bytes of
// string data, applied uniformly to every variable-length field.
func (r *reader) lenPrefixedString() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{}
}

func (w *writer) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) putBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) lenPrefixedString(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.putByte(byte(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) Bytes() []byte {
	return w.buf
}
