package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
	"github.com/fkfk000/replication-checker/storage"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
)

var commitTime = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func userChange(table string, lsn pgoutput.LSN, ix uint32, name string) common.Change {
	return common.Change{
		Operation:      common.Insert,
		Table:          table,
		CommitSequence: lsn,
		CommitIndex:    ix,
		TransactionID:  uint32(lsn),
		CommitTime:     commitTime,
		NewRow:         common.Row{"name": name},
	}
}

func storeTxn(el *storage.EventLog, lsn pgoutput.LSN, changes ...common.Change) {
	err := el.HandleTransaction(&common.Transaction{
		Xid:        uint32(lsn),
		CommitLSN:  lsn,
		EndLSN:     lsn + 8,
		CommitTime: commitTime,
		Changes:    changes,
	})
	Expect(err).Should(Succeed())
}

func get(h http.Handler, method, url string, hdrs ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	for i := 0; i+1 < len(hdrs); i += 2 {
		req.Header.Set(hdrs[i], hdrs[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getChanges(h http.Handler, url string) *common.ChangeList {
	rec := get(h, "GET", url)
	Expect(rec.Code).Should(Equal(http.StatusOK))
	Expect(rec.Header().Get("Content-Type")).Should(Equal(jsonContent))
	cl, err := common.UnmarshalChangeList(rec.Body.Bytes())
	Expect(err).Should(Succeed())
	return cl
}

var _ = Describe("Management API", func() {
	var db *storage.SQL
	var el *storage.EventLog
	var tracker *changeTracker
	var session *replication.Session
	var srv *server
	var dbDir string

	BeforeEach(func() {
		var err error
		dbDir = filepath.Join(testDataDir, fmt.Sprintf("api-%d", time.Now().UnixNano()))
		db, err = storage.Open(dbDir)
		Expect(err).Should(Succeed())
		el, err = storage.NewEventLog(db, "apislot")
		Expect(err).Should(Succeed())
		tracker = createTracker()
		el.OnCommit(tracker.update)

		catalog := pgoutput.NewCatalog()
		catalog.Upsert(&pgoutput.RelationInfo{
			ID:              16384,
			Namespace:       "public",
			Name:            "users",
			ReplicaIdentity: pgoutput.ReplicaIdentityDefault,
			Columns: []pgoutput.ColumnInfo{
				{Flags: 1, Name: "id", TypeID: 23, TypeModifier: -1},
				{Name: "name", TypeID: 25, TypeModifier: -1},
			},
		})
		registry := prometheus.NewRegistry()
		metrics, err := replication.NewMetrics(registry)
		Expect(err).Should(Succeed())
		session = replication.NewSession(nil, nil,
			replication.WithCatalog(catalog), replication.WithMetrics(metrics))
		srv = newServer(session, db, dbDir, tracker, registry)
	})

	AfterEach(func() {
		tracker.close()
		db.Close()
		Expect(db.Delete()).Should(Succeed())
	})

	It("Health", func() {
		rec := get(srv, "GET", "/health")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(rec.Body.String()).Should(Equal("OK"))
	})

	It("Status", func() {
		rec := get(srv, "GET", "/status")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(rec.Body.String()).Should(ContainSubstring(`"state": "Connecting"`))
		Expect(rec.Body.String()).Should(ContainSubstring(`"relations": 1`))
		Expect(rec.Body.String()).Should(ContainSubstring(`"received": "0/0"`))
	})

	It("Relations", func() {
		rec := get(srv, "GET", "/relations")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		body := rec.Body.String()
		Expect(body).Should(ContainSubstring(`"name": "users"`))
		Expect(body).Should(ContainSubstring(`"replicaIdentity": "default"`))
		Expect(body).Should(ContainSubstring(`"key": true`))
	})

	It("Metrics", func() {
		rec := get(srv, "GET", "/metrics")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(rec.Body.String()).Should(ContainSubstring("replication_feedback_sent_total"))
	})

	It("Stack", func() {
		rec := get(srv, "GET", "/diagnostics/stack")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(rec.Body.String()).Should(ContainSubstring("goroutine"))
	})

	It("Changes empty", func() {
		cl := getChanges(srv, "/changes")
		Expect(cl.Changes).Should(BeEmpty())
		Expect(cl.FirstSequence).Should(Equal("0.0.0"))
		Expect(cl.LastSequence).Should(Equal("0.0.0"))
	})

	It("Changes", func() {
		storeTxn(el, 0x1000,
			userChange("public.users", 0x1000, 0, "alice"),
			userChange("public.orders", 0x1000, 1, "order1"))
		storeTxn(el, 0x2000, userChange("public.users", 0x2000, 0, "bob"))

		cl := getChanges(srv, "/changes")
		Expect(cl.Changes).Should(HaveLen(3))
		Expect(cl.FirstSequence).Should(Equal("0.1000.0"))
		Expect(cl.LastSequence).Should(Equal("0.2000.0"))
		Expect(cl.Changes[0].Sequence).Should(Equal("0.1000.0"))
		Expect(cl.Changes[2].NewRow["name"]).Should(Equal("bob"))

		cl = getChanges(srv, "/changes?since=0.1000.0")
		Expect(cl.Changes).Should(HaveLen(2))
		Expect(cl.Changes[0].Table).Should(Equal("public.orders"))

		cl = getChanges(srv, "/changes?limit=1")
		Expect(cl.Changes).Should(HaveLen(1))
		Expect(cl.LastSequence).Should(Equal("0.1000.0"))

		cl = getChanges(srv, "/changes?table=public.users")
		Expect(cl.Changes).Should(HaveLen(2))
		Expect(cl.Changes[1].NewRow["name"]).Should(Equal("bob"))

		cl = getChanges(srv, "/changes?since=0.2000.0")
		Expect(cl.Changes).Should(BeEmpty())
		Expect(cl.LastSequence).Should(Equal("0.2000.0"))
	})

	It("Changes as protobuf", func() {
		storeTxn(el, 0x1000, userChange("public.users", 0x1000, 0, "alice"))
		rec := get(srv, "GET", "/changes", "Accept", protoContent)
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).Should(Equal(protoContent))
		cl, err := common.UnmarshalChangeListProto(rec.Body.Bytes())
		Expect(err).Should(Succeed())
		Expect(cl.Changes).Should(HaveLen(1))
		Expect(cl.Changes[0].NewRow["name"]).Should(Equal("alice"))
	})

	It("Blocks for changes", func() {
		storeTxn(el, 0x1000, userChange("public.users", 0x1000, 0, "alice"))

		done := make(chan *common.ChangeList, 1)
		go func() {
			defer GinkgoRecover()
			done <- getChanges(srv, "/changes?since=0.1000.0&block=5")
		}()
		Consistently(done, 250*time.Millisecond).ShouldNot(Receive())

		storeTxn(el, 0x3000, userChange("public.users", 0x3000, 0, "carol"))
		var cl *common.ChangeList
		Eventually(done, 5*time.Second).Should(Receive(&cl))
		Expect(cl.Changes).Should(HaveLen(1))
		Expect(cl.Changes[0].NewRow["name"]).Should(Equal("carol"))
	})

	It("Block times out", func() {
		start := time.Now()
		cl := getChanges(srv, "/changes?block=1")
		Expect(cl.Changes).Should(BeEmpty())
		Expect(time.Since(start)).Should(BeNumerically(">=", time.Second))
	})

	It("Changes too old", func() {
		storeTxn(el, 0x1000, userChange("public.users", 0x1000, 0, "alice"))
		storeTxn(el, 0x2000, userChange("public.users", 0x2000, 0, "bob"))
		_, err := db.Purge(time.Now().Add(time.Hour))
		Expect(err).Should(Succeed())
		storeTxn(el, 0x3000, userChange("public.users", 0x3000, 0, "carol"))

		rec := get(srv, "GET", "/changes?since=0.1000.0")
		Expect(rec.Code).Should(Equal(http.StatusBadRequest))
		ae, err := common.UnmarshalAPIError(rec.Body.Bytes(), rec.Code)
		Expect(err).Should(Succeed())
		Expect(ae.Code).Should(Equal("CHANGES_TOO_OLD"))
		Expect(ae.FirstSequence).Should(Equal("0.3000.0"))
		Expect(ae.Status).Should(Equal(http.StatusBadRequest))
	})

	It("Bad parameters", func() {
		for _, q := range []string{
			"limit=foo", "limit=-1", "block=bar", "block=1000",
			"since=1/2", "since=1.2", "table=users%20x",
		} {
			rec := get(srv, "GET", "/changes?"+q)
			Expect(rec.Code).Should(Equal(http.StatusBadRequest), q)
			Expect(rec.Body.String()).Should(ContainSubstring("PARAMETER_INVALID"))
		}
	})

	It("Unsupported media type", func() {
		rec := get(srv, "GET", "/changes", "Accept", "text/xml")
		Expect(rec.Code).Should(Equal(http.StatusUnsupportedMediaType))
		rec = get(srv, "GET", "/changes", "Accept", "text/xml, */*")
		Expect(rec.Code).Should(Equal(http.StatusOK))
	})

	It("Backup", func() {
		storeTxn(el, 0x1000, userChange("public.users", 0x1000, 0, "alice"))

		rec := get(srv, "POST", "/diagnostics/backup")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		body, _ := io.ReadAll(rec.Body)
		Expect(string(body)).Should(ContainSubstring(dbDir + "-backup-"))

		path := strings.Split(strings.Split(string(body), `"path": "`)[1], `"`)[0]
		defer os.RemoveAll(path)
		bdb, err := storage.Open(path)
		Expect(err).Should(Succeed())
		defer bdb.Close()
		cp, err := bdb.GetCheckpoint("apislot")
		Expect(err).Should(Succeed())
		Expect(cp).Should(Equal(pgoutput.LSN(0x1008)))
	})
})

var _ = Describe("API without a database", func() {
	It("Says so", func() {
		session := replication.NewSession(nil, nil)
		srv := newServer(session, nil, "", nil, prometheus.NewRegistry())

		rec := get(srv, "GET", "/changes")
		Expect(rec.Code).Should(Equal(http.StatusNotFound))
		rec = get(srv, "POST", "/diagnostics/backup")
		Expect(rec.Code).Should(Equal(http.StatusNotFound))
		rec = get(srv, "GET", "/relations")
		Expect(rec.Code).Should(Equal(http.StatusOK))
		Expect(strings.TrimSpace(rec.Body.String())).Should(Equal("[]"))
	})
})
