package pgoutput

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tuple decoding", func() {
	It("Decodes text and null", func() {
		buf := []byte{0x00, 0x02, 't', 0, 0, 0, 3, 'a', 'b', 'c', 'n'}
		row, next, err := DecodeTuple(buf, 0, 2)
		Expect(err).Should(Succeed())
		Expect(next).Should(Equal(len(buf)))
		Expect(row).Should(HaveLen(2))
		Expect(row[0].Kind).Should(Equal(ColumnText))
		Expect(string(row[0].Data)).Should(Equal("abc"))
		Expect(row[1].IsNull()).Should(BeTrue())
	})

	It("Decodes null, unchanged and text together", func() {
		buf := []byte{0x00, 0x03, 'n', 'u', 't', 0, 0, 0, 3, 'a', 'b', 'c'}
		row, next, err := DecodeTuple(buf, 0, 3)
		Expect(err).Should(Succeed())
		Expect(next).Should(Equal(12))
		Expect(row).Should(Equal(Row{
			{Kind: ColumnNull},
			{Kind: ColumnUnchangedToast},
			{Kind: ColumnText, Data: []byte("abc")},
		}))
	})

	It("Decodes two tuples one after the other", func() {
		// The old and new rows of an update, after the 'O' marker
		buf := []byte{
			0x00, 0x02, 't', 0, 0, 0, 1, '1', 'n',
			'N',
			0x00, 0x02, 't', 0, 0, 0, 1, '2', 'u',
		}
		old, next, err := DecodeTuple(buf, 0, 2)
		Expect(err).Should(Succeed())
		Expect(next).Should(Equal(9))
		Expect(buf[next]).Should(Equal(byte('N')))

		row, end, err := DecodeTuple(buf, next+1, 2)
		Expect(err).Should(Succeed())
		Expect(end).Should(Equal(len(buf)))
		Expect(string(old[0].Data)).Should(Equal("1"))
		Expect(old[1].IsNull()).Should(BeTrue())
		Expect(string(row[0].Data)).Should(Equal("2"))
		Expect(row[1].IsUnchanged()).Should(BeTrue())

		// A failure leaves the offset where it was
		_, next, err = DecodeTuple(buf[:end-1], 10, 2)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		Expect(next).Should(Equal(10))
	})

	It("Decodes at an offset", func() {
		buf := []byte{'x', 'x', 0x00, 0x01, 'u', 'y'}
		row, next, err := DecodeTuple(buf, 2, 1)
		Expect(err).Should(Succeed())
		Expect(next).Should(Equal(5))
		Expect(row[0].IsUnchanged()).Should(BeTrue())
		Expect(row[0].String()).Should(Equal("(unchanged)"))
	})

	It("Decodes empty text", func() {
		row, _, err := DecodeTuple([]byte{0, 1, 't', 0, 0, 0, 0}, 0, 1)
		Expect(err).Should(Succeed())
		Expect(row[0].Kind).Should(Equal(ColumnText))
		Expect(row[0].Data).Should(BeEmpty())
	})

	It("Rejects wrong column count", func() {
		buf := []byte{0x00, 0x02, 'n', 'n'}
		_, _, err := DecodeTuple(buf, 0, 3)
		Expect(err).Should(MatchError(ErrColumnCountMismatch))
	})

	It("Rejects unknown kind", func() {
		buf := []byte{0x00, 0x01, 'x'}
		_, _, err := DecodeTuple(buf, 0, 1)
		Expect(err).Should(MatchError(ErrUnknownColumnKind))
		Expect(err.(*DecodeError).Offset).Should(Equal(2))
	})

	It("Rejects binary columns", func() {
		_, _, err := DecodeTuple([]byte{0, 1, 'b', 0, 0, 0, 1, 1}, 0, 1)
		Expect(err).Should(MatchError(ErrUnknownColumnKind))
	})

	It("Rejects short text", func() {
		buf := []byte{0x00, 0x01, 't', 0, 0, 0, 5, 'a', 'b'}
		_, _, err := DecodeTuple(buf, 0, 1)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
	})

	It("Rejects truncated header", func() {
		_, _, err := DecodeTuple([]byte{0x00}, 0, 1)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
		_, _, err = DecodeTuple([]byte{0x00, 0x01}, 0, 1)
		Expect(err).Should(MatchError(ErrTruncatedMessage))
	})
})
