package main

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fkfk000/replication-checker/pgclient"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type syncBuffer struct {
	latch sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.latch.Lock()
	defer b.latch.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.latch.Lock()
	defer b.latch.Unlock()
	return b.buf.String()
}

func sendEvent(mock *pgclient.MockServer, start pgoutput.LSN, ev pgoutput.Event) {
	data, err := pgoutput.Encode(ev)
	Expect(err).Should(Succeed())
	mock.Send(replication.EncodeXLogData(replication.XLogData{
		WALStart: start,
		WALEnd:   start,
		SendTime: commitTime,
		Data:     data,
	}))
}

var _ = Describe("Checker", func() {
	var mock *pgclient.MockServer
	var cfg *config

	rel := &pgoutput.RelationInfo{
		ID:              16384,
		Namespace:       "public",
		Name:            "users",
		ReplicaIdentity: pgoutput.ReplicaIdentityDefault,
		Columns: []pgoutput.ColumnInfo{
			{Flags: 1, Name: "id", TypeID: 23, TypeModifier: -1},
			{Name: "name", TypeID: 25, TypeModifier: -1},
		},
	}

	BeforeEach(func() {
		var err error
		mock, err = pgclient.NewMockServer(0)
		Expect(err).Should(Succeed())
		cfg = &config{
			pgURL:            mock.URL(),
			slot:             "e2e",
			publication:      "pub",
			createSlot:       true,
			feedbackInterval: 50 * time.Millisecond,
			dbDir:            filepath.Join(testDataDir, "e2e"),
			durableFeedback:  true,
			output:           outputJSON,
			mgmtPort:         -1,
		}
	})

	AfterEach(func() {
		mock.Stop()
	})

	It("Replicates into the database", func() {
		cfg.dropSlot = true
		out := &syncBuffer{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c, err := newChecker(ctx, cfg, out)
		Expect(err).Should(Succeed())
		defer func() {
			c.close()
			c.db.Delete()
		}()

		done := make(chan error, 1)
		go func() {
			done <- c.run(ctx)
		}()

		const commit = pgoutput.LSN(0x16B3748)
		sendEvent(mock, 0, &pgoutput.RelationEvent{Relation: rel})
		sendEvent(mock, commit-0x100, &pgoutput.BeginEvent{FinalLSN: commit, CommitTime: commitTime, Xid: 771})
		for _, name := range []string{"alice", "bob"} {
			sendEvent(mock, commit-0x80, &pgoutput.InsertEvent{
				Relation: rel,
				Row: pgoutput.Row{
					{Kind: pgoutput.ColumnText, Data: []byte("1")},
					{Kind: pgoutput.ColumnText, Data: []byte(name)},
				},
			})
		}
		sendEvent(mock, commit, &pgoutput.CommitEvent{
			EndLSN:            commit,
			TransactionEndLSN: commit + 0x30,
			CommitTime:        commitTime,
		})

		Eventually(func() int {
			entries, _, _, err := c.db.Scan(0, 0, 100, nil)
			Expect(err).Should(Succeed())
			return len(entries)
		}, 5*time.Second).Should(Equal(2))

		var last replication.StandbyStatus
		Eventually(func() pgoutput.LSN {
			for {
				select {
				case fb := <-mock.Feedback():
					st, err := replication.DecodeStandbyStatusUpdate(fb)
					Expect(err).Should(Succeed())
					last = st
				default:
					return last.Flush
				}
			}
		}, 5*time.Second).Should(Equal(commit))
		Expect(last.Write).Should(Equal(commit))

		Eventually(out.String).Should(ContainSubstring(`"name":"bob"`))
		Expect(c.session.Status().Relations).Should(Equal(1))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		Expect(c.session.State()).Should(Equal(replication.StateTerminated))
		Eventually(mock.Slots).Should(BeEmpty())
	})

	It("Resumes from the checkpoint", func() {
		cfg.dbDir = filepath.Join(testDataDir, "e2e-resume")
		ctx := context.Background()

		c, err := newChecker(ctx, cfg, &syncBuffer{})
		Expect(err).Should(Succeed())
		Expect(c.db.Commit("e2e", 0x5000, nil)).Should(Succeed())
		c.close()

		c, err = newChecker(ctx, cfg, &syncBuffer{})
		Expect(err).Should(Succeed())
		defer func() {
			c.close()
			c.db.Delete()
		}()
		Expect(c.session.Status().Received).Should(Equal(pgoutput.LSN(0x5000)))
	})

	It("Start LSN wins over the checkpoint", func() {
		cfg.dbDir = ""
		cfg.startLSN = 0x7000
		cfg.output = outputNone
		c, err := newChecker(context.Background(), cfg, &syncBuffer{})
		Expect(err).Should(Succeed())
		defer c.close()
		Expect(c.db).Should(BeNil())
		Expect(c.session.Status().Received).Should(Equal(pgoutput.LSN(0x7000)))
	})

	It("Fails without a server", func() {
		cfg.pgURL = "postgres://127.0.0.1:1/nothing"
		cfg.dbDir = ""
		_, err := newChecker(context.Background(), cfg, &syncBuffer{})
		Expect(err).ShouldNot(Succeed())
	})
})
