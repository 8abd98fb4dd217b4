package pgclient

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var networkByteOrder = binary.BigEndian

var errShortMessage = errors.New("message too short")

/*
An OutputMessage represents a single message that is going to be sent to
the Postgres server. It will be prepended with a type byte and a four-byte
length.
*/
type OutputMessage struct {
	buf     bytes.Buffer
	msgType byte
	hasType bool
}

/*
NewOutputMessage constructs a new message with the given type byte
*/
func NewOutputMessage(msgType PgOutputType) *OutputMessage {
	return &OutputMessage{
		msgType: byte(msgType),
		hasType: true,
	}
}

/*
NewServerMessage constructs a message of the kind the server sends. It is
used by the mock server.
*/
func NewServerMessage(msgType PgInputType) *OutputMessage {
	return &OutputMessage{
		msgType: byte(msgType),
		hasType: true,
	}
}

/*
NewStartupMessage constructs a startup message, which has no type byte
*/
func NewStartupMessage() *OutputMessage {
	return &OutputMessage{}
}

/*
Type returns the message type byte from the message that was passed in to
the "NewOutputMessage" function.
*/
func (m *OutputMessage) Type() byte {
	return m.msgType
}

func (m *OutputMessage) WriteInt16(i int16) {
	var b [2]byte
	networkByteOrder.PutUint16(b[:], uint16(i))
	m.buf.Write(b[:])
}

func (m *OutputMessage) WriteInt32(i int32) {
	var b [4]byte
	networkByteOrder.PutUint32(b[:], uint32(i))
	m.buf.Write(b[:])
}

func (m *OutputMessage) WriteByte(b byte) error {
	return m.buf.WriteByte(b)
}

/*
WriteString writes a null-terminated string to the output.
*/
func (m *OutputMessage) WriteString(s string) {
	m.buf.WriteString(s)
	m.buf.WriteByte(0)
}

/*
WriteBytes writes "b" as-is, with no length or terminator.
*/
func (m *OutputMessage) WriteBytes(b []byte) {
	m.buf.Write(b)
}

/*
Encode returns a byte slice that represents the entire message, including
the header byte and length.
*/
func (m *OutputMessage) Encode() []byte {
	hdrLen := 4
	if m.hasType {
		hdrLen = 5
	}
	out := make([]byte, hdrLen, hdrLen+m.buf.Len())
	if m.hasType {
		out[0] = m.msgType
	}
	networkByteOrder.PutUint32(out[hdrLen-4:], uint32(m.buf.Len()+4))
	return append(out, m.buf.Bytes()...)
}

/*
An InputMessage represents a message read from the server. It's understood
that we already read the type byte and also the four-byte length, and that
we are being given a slice to the data of the appropriate length for the
message.
*/
type InputMessage struct {
	buf     []byte
	msgType PgInputType
}

/*
NewInputMessage generates a new input message from the specified byte array,
which must be the correct length for the message.
*/
func NewInputMessage(msgType PgInputType, b []byte) *InputMessage {
	return &InputMessage{
		buf:     b,
		msgType: msgType,
	}
}

func (m *InputMessage) Type() PgInputType {
	return m.msgType
}

func (m *InputMessage) take(n int) ([]byte, error) {
	if n < 0 || len(m.buf) < n {
		return nil, errShortMessage
	}
	b := m.buf[:n]
	m.buf = m.buf[n:]
	return b, nil
}

func (m *InputMessage) ReadInt16() (int16, error) {
	b, err := m.take(2)
	if err != nil {
		return 0, err
	}
	return int16(networkByteOrder.Uint16(b)), nil
}

func (m *InputMessage) ReadInt32() (int32, error) {
	b, err := m.take(4)
	if err != nil {
		return 0, err
	}
	return int32(networkByteOrder.Uint32(b)), nil
}

func (m *InputMessage) ReadByte() (byte, error) {
	b, err := m.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

/*
ReadString reads a single null-terminated string form the message and
returns it.
*/
func (m *InputMessage) ReadString() (string, error) {
	ix := bytes.IndexByte(m.buf, 0)
	if ix < 0 {
		return "", errShortMessage
	}
	s := string(m.buf[:ix])
	m.buf = m.buf[ix+1:]
	return s, nil
}

/*
ReadBytes reads a count of bytes.
*/
func (m *InputMessage) ReadBytes(n int) ([]byte, error) {
	return m.take(n)
}

/*
ReadRemaining returns everything that has not been read yet.
*/
func (m *InputMessage) ReadRemaining() []byte {
	b := m.buf
	m.buf = nil
	return b
}
