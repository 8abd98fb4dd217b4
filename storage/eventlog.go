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

package storage

import (
	"sync"
	"sync/atomic"

	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

/*
An EventLog writes each committed transaction to the database, together
with the position that the slot has reached. It reports that position as
its flushed LSN, so the server is never told that a change is safe before
it is.
*/
type EventLog struct {
	db      *SQL
	slot    string
	flushed uint64

	latch     sync.Mutex
	listeners []func(common.Sequence)
}

/*
NewEventLog creates a log for the named slot. The flushed position starts
at whatever was last committed for that slot.
*/
func NewEventLog(db *SQL, slot string) (*EventLog, error) {
	cp, err := db.GetCheckpoint(slot)
	if err != nil {
		return nil, errors.Wrap(err, "reading checkpoint")
	}
	return &EventLog{
		db:      db,
		slot:    slot,
		flushed: uint64(cp),
	}, nil
}

/*
OnCommit registers a function that is called with the sequence of the last
change after every transaction that stored at least one change.
*/
func (l *EventLog) OnCommit(fn func(last common.Sequence)) {
	l.latch.Lock()
	l.listeners = append(l.listeners, fn)
	l.latch.Unlock()
}

/*
HandleTransaction stores all the changes of a transaction and moves the
checkpoint to its end in one database transaction. A transaction with no
changes still moves the checkpoint.
*/
func (l *EventLog) HandleTransaction(txn *common.Transaction) error {
	entries := make([]Entry, len(txn.Changes))
	for i := range txn.Changes {
		c := &txn.Changes[i]
		data, err := c.MarshalProto()
		if err != nil {
			return errors.Wrapf(err, "encoding change %d of transaction %d", i, txn.Xid)
		}
		entries[i] = Entry{
			LSN:   c.CommitSequence,
			Index: c.CommitIndex,
			Data:  data,
		}
	}

	pos := txn.EndLSN
	if pos < txn.CommitLSN {
		pos = txn.CommitLSN
	}
	if err := l.db.Commit(l.slot, pos, entries); err != nil {
		return errors.Wrapf(err, "storing transaction %d", txn.Xid)
	}
	if pos > l.FlushedLSN() {
		atomic.StoreUint64(&l.flushed, uint64(pos))
	}
	log.Debugf("Stored %d changes of transaction %d at %s", len(entries), txn.Xid, pos)

	if len(entries) > 0 {
		last := entries[len(entries)-1]
		seq := common.MakeSequence(last.LSN, last.Index)
		l.latch.Lock()
		listeners := l.listeners
		l.latch.Unlock()
		for _, fn := range listeners {
			fn(seq)
		}
	}
	return nil
}

/*
FlushedLSN returns the end of the last transaction that was stored.
*/
func (l *EventLog) FlushedLSN() pgoutput.LSN {
	return pgoutput.LSN(atomic.LoadUint64(&l.flushed))
}
