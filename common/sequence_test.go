package common

import (
	"testing/quick"

	"github.com/fkfk000/replication-checker/pgoutput"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sequence tests", func() {
	It("Basic test", func() {
		Expect(testSequence(1, 2)).Should(BeTrue())
	})

	It("Quick test", func() {
		err := quick.Check(testSequence, nil)
		Expect(err).Should(Succeed())
	})

	It("String form", func() {
		s := MakeSequence(0x1600000010, 3)
		Expect(s.String()).Should(Equal("16.10.3"))
		Expect(s.Bytes()).Should(Equal([]byte{0, 0, 0, 0x16, 0, 0, 0, 0x10, 0, 0, 0, 3}))
	})

	It("Bad strings", func() {
		_, err := ParseSequence("")
		Expect(err).ShouldNot(Succeed())
		_, err = ParseSequence("0/16B3748")
		Expect(err).ShouldNot(Succeed())
		_, err = ParseSequence("1.2.3.4")
		Expect(err).ShouldNot(Succeed())
		_, err = ParseSequence("1.2.xyz")
		Expect(err).ShouldNot(Succeed())
		_, err = ParseSequence("100000000.0.0")
		Expect(err).ShouldNot(Succeed())
		_, err = ParseSequenceBytes([]byte{1, 2, 3})
		Expect(err).ShouldNot(Succeed())
	})

	It("Basic compare", func() {
		Expect(testSequenceCompare(1, 1, 1, 1)).Should(BeTrue())
		Expect(testSequenceCompare(1, 1, 2, 1)).Should(BeTrue())
		Expect(testSequenceCompare(2, 1, 1, 1)).Should(BeTrue())
		Expect(testSequenceCompare(1, 1, 1, 2)).Should(BeTrue())
		Expect(testSequenceCompare(1, 2, 1, 1)).Should(BeTrue())
	})

	It("Quick compare", func() {
		err := quick.Check(testSequenceCompare, nil)
		Expect(err).Should(Succeed())
	})

	It("Next", func() {
		Expect(MakeSequence(10, 1).Next()).Should(Equal(MakeSequence(10, 2)))
		Expect(MakeSequence(10, ^uint32(0)).Next()).Should(Equal(MakeSequence(11, 0)))
		err := quick.Check(func(lsn uint64, index uint32) bool {
			if lsn == ^uint64(0) {
				return true
			}
			s := MakeSequence(pgoutput.LSN(lsn), index)
			return s.Next().Compare(s) > 0
		}, nil)
		Expect(err).Should(Succeed())
	})
})

func testSequence(lsn uint64, index uint32) bool {
	seq := MakeSequence(pgoutput.LSN(lsn), index)
	seqStr := seq.String()
	rseq, err := ParseSequence(seqStr)
	Expect(err).Should(Succeed())
	Expect(rseq.LSN).Should(BeEquivalentTo(lsn))
	Expect(rseq.Index).Should(Equal(index))

	seqBytes := seq.Bytes()
	rseq, err = ParseSequenceBytes(seqBytes)
	Expect(err).Should(Succeed())
	Expect(rseq.LSN).Should(BeEquivalentTo(lsn))
	Expect(rseq.Index).Should(Equal(index))

	return true
}

func testSequenceCompare(lsn1 uint64, index1 uint32, lsn2 uint64, index2 uint32) bool {
	s1 := MakeSequence(pgoutput.LSN(lsn1), index1)
	s2 := MakeSequence(pgoutput.LSN(lsn2), index2)

	if lsn1 < lsn2 {
		return s1.Compare(s2) < 0
	}
	if lsn1 > lsn2 {
		return s1.Compare(s2) > 0
	}
	if index1 < index2 {
		return s1.Compare(s2) < 0
	}
	if index1 > index2 {
		return s1.Compare(s2) > 0
	}
	return s1.Compare(s2) == 0
}
