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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fkfk000/replication-checker/pgclient"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	var port int
	var slot string
	var demo bool
	var debug bool

	pflag.IntVarP(&port, "port", "p", 5432, "Port to listen on")
	pflag.StringVarP(&slot, "slot", "s", "", "Create this replication slot at startup")
	pflag.BoolVar(&demo, "demo", false, "Queue a few demonstration transactions")
	pflag.BoolVarP(&debug, "debug", "D", false, "Turn on debugging")
	pflag.Parse()

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	mock, err := pgclient.NewMockServer(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %s\n", err)
		os.Exit(2)
	}
	if slot != "" {
		mock.CreateSlot(slot)
	}
	if demo {
		if err = queueDemo(mock); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding demo: %s\n", err)
			os.Exit(3)
		}
	}

	fmt.Printf("Mock server listening at %s\n", mock.Address())
	fmt.Printf("Connect with %s\n", mock.URL())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	for {
		select {
		case <-sigs:
			mock.Stop()
			return
		case fb := <-mock.Feedback():
			if st, err := replication.DecodeStandbyStatusUpdate(fb); err == nil {
				log.Infof("Feedback: write %s flush %s apply %s", st.Write, st.Flush, st.Apply)
			}
		}
	}
}

/*
queueDemo queues a plain transaction, then a streamed one in which one
subtransaction is rolled back.
*/
func queueDemo(mock *pgclient.MockServer) error {
	now := time.Now()
	rel := &pgoutput.RelationInfo{
		ID:              16384,
		Namespace:       "public",
		Name:            "accounts",
		ReplicaIdentity: pgoutput.ReplicaIdentityDefault,
		Columns: []pgoutput.ColumnInfo{
			{Flags: 1, Name: "id", TypeID: 23, TypeModifier: -1},
			{Name: "owner", TypeID: 25, TypeModifier: -1},
			{Name: "balance", TypeID: 1700, TypeModifier: -1},
		},
	}
	row := func(vals ...string) pgoutput.Row {
		r := make(pgoutput.Row, len(vals))
		for i, v := range vals {
			r[i] = pgoutput.ColumnValue{Kind: pgoutput.ColumnText, Data: []byte(v)}
		}
		return r
	}

	const base = pgoutput.LSN(0x1000000)
	script := []struct {
		lsn pgoutput.LSN
		ev  pgoutput.Event
	}{
		{0, &pgoutput.RelationEvent{Relation: rel}},
		{base, &pgoutput.BeginEvent{FinalLSN: base + 0x200, CommitTime: now, Xid: 740}},
		{base + 0x40, &pgoutput.InsertEvent{Relation: rel, Row: row("1", "alice", "100.00")}},
		{base + 0x80, &pgoutput.UpdateEvent{Relation: rel, NewRow: row("1", "alice", "75.50")}},
		{base + 0x200, &pgoutput.CommitEvent{EndLSN: base + 0x200, TransactionEndLSN: base + 0x230, CommitTime: now}},
		{base + 0x300, &pgoutput.StreamStartEvent{Xid: 741, FirstSegment: true}},
		{base + 0x340, &pgoutput.InsertEvent{Relation: rel, Streamed: true, Xid: 741, Row: row("2", "bob", "10.00")}},
		{base + 0x380, &pgoutput.InsertEvent{Relation: rel, Streamed: true, Xid: 742, Row: row("3", "carol", "0")}},
		{base + 0x3c0, &pgoutput.StreamStopEvent{}},
		{base + 0x400, &pgoutput.StreamAbortEvent{Xid: 741, SubXid: 742}},
		{base + 0x500, &pgoutput.StreamCommitEvent{Xid: 741, EndLSN: base + 0x500, TransactionEndLSN: base + 0x530, CommitTime: now}},
	}

	for _, s := range script {
		data, err := pgoutput.Encode(s.ev)
		if err != nil {
			return err
		}
		mock.Send(replication.EncodeXLogData(replication.XLogData{
			WALStart: s.lsn,
			WALEnd:   s.lsn,
			SendTime: now,
			Data:     data,
		}))
	}
	mock.Send(replication.EncodeKeepalive(replication.Keepalive{
		EndLSN:         base + 0x600,
		ServerTime:     now,
		ReplyRequested: true,
	}))
	return nil
}
