package replication

import (
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Standby messages", func() {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	It("Encodes status update", func() {
		msg := EncodeStandbyStatusUpdate(0x0102, 0x0101, 0x0100, when)
		Expect(msg).Should(HaveLen(34))
		Expect(msg[0]).Should(BeEquivalentTo('r'))
		Expect(msg[1:9]).Should(Equal([]byte{0, 0, 0, 0, 0, 0, 1, 2}))
		Expect(msg[9:17]).Should(Equal([]byte{0, 0, 0, 0, 0, 0, 1, 1}))
		Expect(msg[17:25]).Should(Equal([]byte{0, 0, 0, 0, 0, 0, 1, 0}))
		Expect(msg[33]).Should(BeZero())

		st, err := DecodeStandbyStatusUpdate(msg)
		Expect(err).Should(Succeed())
		Expect(st).Should(Equal(StandbyStatus{
			Write:      0x0102,
			Flush:      0x0101,
			Apply:      0x0100,
			ClientTime: when,
		}))
	})

	It("Uses the Postgres epoch", func() {
		msg := EncodeStandbyStatusUpdate(1, 1, 1, time.Date(2000, 1, 1, 0, 0, 1, 0, time.UTC))
		Expect(msg[25:33]).Should(Equal([]byte{0, 0, 0, 0, 0, 0x0f, 0x42, 0x40}))
	})

	It("Decodes keepalive", func() {
		msg := []byte{'k', 0, 0, 0, 0, 0, 0, 0x13, 0x88, 0, 0, 0, 0, 0, 0, 0, 0, 1}
		k, err := DecodeKeepalive(msg)
		Expect(err).Should(Succeed())
		Expect(k.EndLSN).Should(BeEquivalentTo(5000))
		Expect(k.ServerTime).Should(Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
		Expect(k.ReplyRequested).Should(BeTrue())

		again, err := DecodeKeepalive(EncodeKeepalive(k))
		Expect(err).Should(Succeed())
		Expect(again).Should(Equal(k))
	})

	It("Rejects short keepalive", func() {
		_, err := DecodeKeepalive([]byte{'k', 0, 0, 0})
		Expect(err).Should(MatchError(pgoutput.ErrTruncatedMessage))
	})

	It("Rejects wrong tag", func() {
		_, err := DecodeKeepalive(EncodeStandbyStatusUpdate(1, 1, 1, when))
		Expect(err).Should(MatchError(pgoutput.ErrProtocolViolation))
	})

	It("Decodes XLogData", func() {
		msg := EncodeXLogData(XLogData{
			WALStart: 100,
			WALEnd:   200,
			SendTime: when,
			Data:     []byte{'E'},
		})
		Expect(msg).Should(HaveLen(26))
		x, err := DecodeXLogData(msg)
		Expect(err).Should(Succeed())
		Expect(x.WALStart).Should(BeEquivalentTo(100))
		Expect(x.WALEnd).Should(BeEquivalentTo(200))
		Expect(x.SendTime).Should(Equal(when))
		Expect(x.Data).Should(Equal([]byte{'E'}))
	})

	It("Rejects short XLogData", func() {
		_, err := DecodeXLogData([]byte{'w', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
		Expect(err).Should(MatchError(pgoutput.ErrTruncatedMessage))
	})
})
