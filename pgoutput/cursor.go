/*
Copyright 2026 The Replication Checker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pgoutput

import (
	"bytes"
	"encoding/binary"
)

var networkByteOrder = binary.BigEndian

func need(buf []byte, off, n int) error {
	if off < 0 || n < 0 || off > len(buf) || len(buf)-off < n {
		have := len(buf) - off
		if have < 0 {
			have = 0
		}
		return truncated(off, n, have)
	}
	return nil
}

/*
ReadUint8 reads one byte at "off".
*/
func ReadUint8(buf []byte, off int) (uint8, error) {
	if err := need(buf, off, 1); err != nil {
		return 0, err
	}
	return buf[off], nil
}

/*
ReadUint16 reads a big-endian 16-bit integer at "off".
*/
func ReadUint16(buf []byte, off int) (uint16, error) {
	if err := need(buf, off, 2); err != nil {
		return 0, err
	}
	return networkByteOrder.Uint16(buf[off:]), nil
}

/*
ReadUint32 reads a big-endian 32-bit integer at "off".
*/
func ReadUint32(buf []byte, off int) (uint32, error) {
	if err := need(buf, off, 4); err != nil {
		return 0, err
	}
	return networkByteOrder.Uint32(buf[off:]), nil
}

/*
ReadInt32 reads a big-endian signed 32-bit integer at "off".
*/
func ReadInt32(buf []byte, off int) (int32, error) {
	v, err := ReadUint32(buf, off)
	return int32(v), err
}

/*
ReadUint64 reads a big-endian 64-bit integer at "off".
*/
func ReadUint64(buf []byte, off int) (uint64, error) {
	if err := need(buf, off, 8); err != nil {
		return 0, err
	}
	return networkByteOrder.Uint64(buf[off:]), nil
}

/*
ReadCString reads a zero-terminated string starting at "off". It returns the
string without the terminator and the offset of the first byte after it.
*/
func ReadCString(buf []byte, off int) (string, int, error) {
	if err := need(buf, off, 1); err != nil {
		return "", off, err
	}
	ix := bytes.IndexByte(buf[off:], 0)
	if ix < 0 {
		return "", off, newError(TruncatedMessage, off, "unterminated string")
	}
	return string(buf[off : off+ix]), off + ix + 1, nil
}

/*
PutUint16 writes a big-endian 16-bit integer at "off".
*/
func PutUint16(buf []byte, off int, v uint16) error {
	if err := need(buf, off, 2); err != nil {
		return err
	}
	networkByteOrder.PutUint16(buf[off:], v)
	return nil
}

/*
PutUint32 writes a big-endian 32-bit integer at "off".
*/
func PutUint32(buf []byte, off int, v uint32) error {
	if err := need(buf, off, 4); err != nil {
		return err
	}
	networkByteOrder.PutUint32(buf[off:], v)
	return nil
}

/*
PutUint64 writes a big-endian 64-bit integer at "off".
*/
func PutUint64(buf []byte, off int, v uint64) error {
	if err := need(buf, off, 8); err != nil {
		return err
	}
	networkByteOrder.PutUint64(buf[off:], v)
	return nil
}

/*
A Cursor reads sequentially from a single payload. Every read is bounds
checked and advances the cursor only when it succeeds.
*/
type Cursor struct {
	buf []byte
	off int
}

/*
NewCursor returns a cursor positioned at the start of "buf".
*/
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset is the position of the next byte to be read.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining is the count of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Skip moves past "n" bytes.
func (c *Cursor) Skip(n int) error {
	if err := need(c.buf, c.off, n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Rewind moves back "n" bytes.
func (c *Cursor) Rewind(n int) error {
	if n < 0 || n > c.off {
		return newError(ProtocolViolation, c.off, "cannot rewind %d bytes", n)
	}
	c.off -= n
	return nil
}

/*
ReadByte returns the next byte.
*/
func (c *Cursor) ReadByte() (byte, error) {
	b, err := ReadUint8(c.buf, c.off)
	if err == nil {
		c.off++
	}
	return b, err
}

/*
PeekByte returns the byte "ahead" bytes past the current position without
consuming anything.
*/
func (c *Cursor) PeekByte(ahead int) (byte, error) {
	return ReadUint8(c.buf, c.off+ahead)
}

func (c *Cursor) ReadUint16() (uint16, error) {
	v, err := ReadUint16(c.buf, c.off)
	if err == nil {
		c.off += 2
	}
	return v, err
}

func (c *Cursor) ReadUint32() (uint32, error) {
	v, err := ReadUint32(c.buf, c.off)
	if err == nil {
		c.off += 4
	}
	return v, err
}

func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

func (c *Cursor) ReadUint64() (uint64, error) {
	v, err := ReadUint64(c.buf, c.off)
	if err == nil {
		c.off += 8
	}
	return v, err
}

func (c *Cursor) ReadCString() (string, error) {
	s, next, err := ReadCString(c.buf, c.off)
	if err == nil {
		c.off = next
	}
	return s, err
}

/*
ReadBytes returns a copy of the next "n" bytes.
*/
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := need(c.buf, c.off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:])
	c.off += n
	return out, nil
}
