package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing/quick"
	"time"

	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const (
	testDBDir = "./testdb"
)

var testDB *SQL

var _ = Describe("Storage Main Test", func() {

	BeforeEach(func() {
		var err error
		testDB, err = Open(testDBDir)
		Expect(err).Should(Succeed())
	})

	AfterEach(func() {
		testDB.Close()
		err := testDB.Delete()
		Expect(err).Should(Succeed())
	})

	It("Open and reopen", func() {
		stor, err := Open("./opensqlite")
		Expect(err).Should(Succeed())
		err = stor.Put(1, 2, []byte("kept"))
		Expect(err).Should(Succeed())
		stor.Close()

		stor, err = Open("./opensqlite")
		Expect(err).Should(Succeed())
		buf, err := stor.Get(1, 2)
		Expect(err).Should(Succeed())
		Expect(buf).Should(Equal([]byte("kept")))
		stor.Close()
		err = stor.Delete()
		Expect(err).Should(Succeed())
	})

	It("Bad path", func() {
		_, err := Open("./does/not/exist")
		Expect(err).ShouldNot(Succeed())
	})

	It("Entries", func() {
		// SQLite integers are signed, and real LSNs never use the top bit
		err := quick.Check(func(lsn uint64, index uint32, data []byte) bool {
			return testEntry(pgoutput.LSN(lsn>>1), index, data)
		}, nil)
		Expect(err).Should(Succeed())
	})

	It("Entries same LSN", func() {
		err := quick.Check(func(index uint32, data []byte) bool {
			return testEntry(8675309, index, data)
		}, nil)
		Expect(err).Should(Succeed())
	})

	It("Entries all same", func() {
		err := quick.Check(func(data []byte) bool {
			return testEntry(8675309, 123, data)
		}, nil)
		Expect(err).Should(Succeed())
	})

	It("Read not found", func() {
		buf, err := testDB.Get(0, 0)
		Expect(err).Should(Succeed())
		Expect(buf).Should(BeNil())
	})

	It("Read not found multi", func() {
		bufs, first, last, err := testDB.Scan(0, 0, 100, nil)
		Expect(err).Should(Succeed())
		Expect(bufs).Should(BeEmpty())
		Expect(first.Compare(common.Sequence{})).Should(BeZero())
		Expect(last.Compare(common.Sequence{})).Should(BeZero())
	})

	It("Reading sequences", func() {
		val1 := []byte("Hello!")
		val2 := []byte("World.")

		rangeEqual(0, 0, 0, 0)
		testDB.Put(0, 0, val1)
		rangeEqual(0, 0, 0, 0)
		testDB.Put(1, 0, val2)
		rangeEqual(0, 0, 1, 0)
		testDB.Put(1, 1, val1)
		testDB.Put(2, 0, val2)
		testDB.Put(3, 0, val1)
		testDB.Put(4, 0, val1)
		testDB.Put(4, 1, val2)
		testDB.Put(11, 1, val2)
		testDB.Put(10, 0, val1)
		rangeEqual(0, 0, 11, 1)

		// Read whole range
		testGetSequence(0, 0, 100,
			[][]byte{val1, val2, val1, val2, val1, val1, val2, val1, val2})

		// Read after start
		testGetSequence(1, 0, 100, [][]byte{val2, val1, val2, val1, val1, val2, val1, val2})
		testGetSequence(1, 1, 100, [][]byte{val1, val2, val1, val1, val2, val1, val2})
		testGetSequence(4, 1, 100, [][]byte{val2, val1, val2})
		testGetSequence(11, 2, 100, [][]byte{})
		testGetSequence(12, 0, 100, [][]byte{})

		// Read with limit
		testGetSequence(0, 0, 4, [][]byte{val1, val2, val1, val2})
		testGetSequence(0, 0, 1, [][]byte{val1})
		testGetSequence(0, 0, 0, [][]byte{})

		// Read with limit and filter
		testGetSequenceFilter(0, 0, 2, [][]byte{val2, val2}, val1)
		testGetSequenceFilter(0, 0, 100, [][]byte{val2, val2, val2, val2}, val1)
		testGetSequenceFilter(3, 0, 1, [][]byte{val2}, val1)
	})

	It("Purge empty database", func() {
		count, err := testDB.Purge(time.Now())
		Expect(err).Should(Succeed())
		Expect(count).Should(BeZero())
	})

	It("Purge by age", func() {
		clock := clockwork.NewFakeClock()
		testDB.clock = clock
		val := []byte("Hello")

		testDB.Put(1, 0, val)
		testDB.Put(1, 1, val)
		clock.Advance(time.Minute)
		testDB.Put(2, 0, val)
		clock.Advance(time.Minute)
		testDB.PutBatch([]Entry{
			{LSN: 3, Index: 0, Data: val},
			{LSN: 3, Index: 1, Data: val},
		})
		rangeEqual(1, 0, 3, 1)

		count, err := testDB.Purge(clock.Now().Add(-90 * time.Second))
		Expect(err).Should(Succeed())
		Expect(count).Should(BeEquivalentTo(2))
		rangeEqual(2, 0, 3, 1)

		// Verify that re-purge does nothing
		count, err = testDB.Purge(clock.Now().Add(-90 * time.Second))
		Expect(err).Should(Succeed())
		Expect(count).Should(BeZero())

		count, err = testDB.Purge(clock.Now().Add(time.Second))
		Expect(err).Should(Succeed())
		Expect(count).Should(BeEquivalentTo(3))
		rangeEqual(0, 0, 0, 0)
	})

	It("Checkpoint", func() {
		lsn, err := testDB.GetCheckpoint("slot1")
		Expect(err).Should(Succeed())
		Expect(lsn).Should(BeZero())

		err = testDB.Commit("slot1", 0x16B3748, []Entry{
			{LSN: 0x16B3700, Index: 0, Data: []byte("one")},
			{LSN: 0x16B3700, Index: 1, Data: []byte("two")},
		})
		Expect(err).Should(Succeed())
		err = testDB.Commit("slot2", 5, nil)
		Expect(err).Should(Succeed())

		lsn, err = testDB.GetCheckpoint("slot1")
		Expect(err).Should(Succeed())
		Expect(lsn).Should(Equal(pgoutput.LSN(0x16B3748)))
		lsn, err = testDB.GetCheckpoint("slot2")
		Expect(err).Should(Succeed())
		Expect(lsn).Should(Equal(pgoutput.LSN(5)))
		testGetSequence(0, 0, 100, [][]byte{[]byte("one"), []byte("two")})

		err = testDB.Commit("slot1", 0x16B3800, nil)
		Expect(err).Should(Succeed())
		lsn, err = testDB.GetCheckpoint("slot1")
		Expect(err).Should(Succeed())
		Expect(lsn).Should(Equal(pgoutput.LSN(0x16B3800)))
	})
})

func testGetSequence(lsn pgoutput.LSN,
	index uint32, limit int, expected [][]byte) {
	ret, _, _, err := testDB.Scan(lsn, index, limit, nil)
	Expect(err).Should(Succeed())
	Expect(len(ret)).Should(Equal(len(expected)))
	for i := range expected {
		Expect(bytes.Equal(expected[i], ret[i])).Should(BeTrue())
	}
}

func testGetSequenceFilter(lsn pgoutput.LSN,
	index uint32, limit int, expected [][]byte, rejected []byte) {
	ret, _, _, err := testDB.Scan(lsn, index, limit,
		func(rej []byte) bool {
			return !bytes.Equal(rej, rejected)
		})
	Expect(err).Should(Succeed())
	Expect(len(ret)).Should(Equal(len(expected)))
	for i := range expected {
		Expect(bytes.Equal(expected[i], ret[i])).Should(BeTrue())
	}
}

func testEntry(lsn pgoutput.LSN, index uint32, val []byte) bool {
	err := testDB.Put(lsn, index, val)
	Expect(err).Should(Succeed())
	ret, err := testDB.Get(lsn, index)
	Expect(err).Should(Succeed())
	if !bytes.Equal(val, ret) {
		fmt.Fprintf(GinkgoWriter, "Val is %d %s ret is %d %s, lsn is %s index is %d\n",
			len(val), hex.Dump(val), len(ret), hex.Dump(ret), lsn, index)
	}
	Expect(bytes.Equal(val, ret)).Should(BeTrue())
	return true
}

func rangeEqual(l1 pgoutput.LSN, i1 uint32, l2 pgoutput.LSN, i2 uint32) {
	fs, ls, err := testDB.GetLimits()
	Expect(err).Should(Succeed())
	Expect(fs.Compare(common.MakeSequence(l1, i1))).Should(BeZero())
	Expect(ls.Compare(common.MakeSequence(l2, i2))).Should(BeZero())
}
