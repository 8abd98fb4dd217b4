package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const (
	trackerTestTimeout = 10 * time.Second
	trackerCount       = 1000
)

func seq(lsn pgoutput.LSN, ix uint32) common.Sequence {
	return common.MakeSequence(lsn, ix)
}

var _ = Describe("Change tracker", func() {
	var tracker *changeTracker

	BeforeEach(func() {
		tracker = createTracker()
		tracker.update(seq(2, 0))
	})

	AfterEach(func() {
		tracker.close()
	})

	It("Behind", func() {
		behind := tracker.wait(seq(1, 5))
		Expect(behind).Should(Equal(seq(2, 0)))
	})

	It("Caught up", func() {
		behind := tracker.wait(seq(2, 0))
		Expect(behind).Should(Equal(seq(2, 0)))
	})

	It("Never goes back", func() {
		tracker.update(seq(1, 0))
		behind := tracker.wait(seq(1, 0))
		Expect(behind).Should(Equal(seq(2, 0)))
	})

	It("Timeout", func() {
		blocked := tracker.timedWait(seq(2, 1), 250*time.Millisecond)
		Expect(blocked).Should(Equal(common.Sequence{}))
	})

	It("Up to date", func() {
		doneChan := make(chan common.Sequence, 1)

		go func() {
			doneChan <- tracker.wait(seq(3, 0))
		}()

		tracker.update(seq(3, 0))
		Eventually(doneChan).Should(Receive(Equal(seq(3, 0))))
	})

	It("Up to date with timeout", func() {
		doneChan := make(chan common.Sequence, 1)

		go func() {
			doneChan <- tracker.timedWait(seq(2, 1), 2*time.Second)
		}()

		tracker.update(seq(2, 4))
		Eventually(doneChan).Should(Receive(Equal(seq(2, 4))))
	})

	It("Woken on close", func() {
		doneChan := make(chan common.Sequence, 1)
		t := createTracker()
		t.update(seq(5, 0))

		go func() {
			doneChan <- t.wait(seq(9, 0))
		}()

		Consistently(doneChan, 100*time.Millisecond).ShouldNot(Receive())
		t.close()
		Eventually(doneChan).Should(Receive(Equal(seq(5, 0))))
	})

	It("Many waiters", func() {
		doneChan := make(chan bool, trackerCount)
		for i := 0; i < trackerCount; i++ {
			target := seq(pgoutput.LSN(rand.Intn(100)+3), 0)
			go func() {
				got := tracker.timedWait(target, trackerTestTimeout)
				if got.Compare(target) < 0 {
					fmt.Fprintf(GinkgoWriter, "Waiter for %s got %s\n", target, got)
					doneChan <- false
				} else {
					doneChan <- true
				}
			}()
		}

		for l := pgoutput.LSN(3); l <= 103; l++ {
			tracker.update(seq(l, 0))
		}

		for i := 0; i < trackerCount; i++ {
			Eventually(doneChan, trackerTestTimeout).Should(Receive(BeTrue()))
		}
	})
})
