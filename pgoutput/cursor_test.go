package pgoutput

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Byte codec", func() {
	It("Reads big-endian integers", func() {
		buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
		v16, err := ReadUint16(buf, 0)
		Expect(err).Should(Succeed())
		Expect(v16).Should(BeEquivalentTo(0x0102))
		v32, err := ReadUint32(buf, 4)
		Expect(err).Should(Succeed())
		Expect(v32).Should(BeEquivalentTo(0x05060708))
		v64, err := ReadUint64(buf, 0)
		Expect(err).Should(Succeed())
		Expect(v64).Should(BeEquivalentTo(uint64(0x0102030405060708)))
	})

	It("Reads signed integers", func() {
		v, err := ReadInt32([]byte{0xff, 0xff, 0xff, 0xfe}, 0)
		Expect(err).Should(Succeed())
		Expect(v).Should(BeEquivalentTo(-2))
	})

	It("Fails past the end", func() {
		_, err := ReadUint32([]byte{1, 2, 3}, 0)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		_, err = ReadUint16([]byte{1, 2, 3}, 2)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		_, err = ReadUint8([]byte{1}, 1)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		_, err = ReadUint64(nil, 0)
		Expect(KindOf(err)).Should(Equal(TruncatedMessage))
	})

	It("Reads C strings", func() {
		buf := []byte{'a', 'b', 0, 'c', 0}
		s, next, err := ReadCString(buf, 0)
		Expect(err).Should(Succeed())
		Expect(s).Should(Equal("ab"))
		Expect(next).Should(Equal(3))
		s, next, err = ReadCString(buf, next)
		Expect(err).Should(Succeed())
		Expect(s).Should(Equal("c"))
		Expect(next).Should(Equal(5))
	})

	It("Reads empty C string", func() {
		s, next, err := ReadCString([]byte{0}, 0)
		Expect(err).Should(Succeed())
		Expect(s).Should(BeEmpty())
		Expect(next).Should(Equal(1))
	})

	It("Rejects unterminated C string", func() {
		_, _, err := ReadCString([]byte{'a', 'b'}, 0)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
	})

	It("Writes in place", func() {
		buf := make([]byte, 14)
		Expect(PutUint16(buf, 0, 0xabcd)).Should(Succeed())
		Expect(PutUint32(buf, 2, 0xdeadbeef)).Should(Succeed())
		Expect(PutUint64(buf, 6, 42)).Should(Succeed())
		Expect(buf).Should(Equal([]byte{
			0xab, 0xcd, 0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 42}))
		Expect(PutUint32(buf, 12, 1)).Should(MatchError(ErrTruncatedMessage))
	})

	It("Cursor does not advance on failure", func() {
		c := NewCursor([]byte{0, 1, 2})
		_, err := c.ReadUint32()
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		Expect(c.Offset()).Should(BeZero())
		v, err := c.ReadUint16()
		Expect(err).Should(Succeed())
		Expect(v).Should(BeEquivalentTo(1))
		Expect(c.Remaining()).Should(Equal(1))
		Expect(c.Rewind(2)).Should(Succeed())
		Expect(c.Rewind(1)).ShouldNot(Succeed())
	})

	It("Cursor peeks", func() {
		c := NewCursor([]byte{9, 8, 7})
		b, err := c.PeekByte(2)
		Expect(err).Should(Succeed())
		Expect(b).Should(BeEquivalentTo(7))
		_, err = c.PeekByte(3)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		Expect(c.Offset()).Should(BeZero())
	})
})
