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

package common

import (
	"strconv"
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

/*
A Transaction is a committed transaction and the changes that it made,
in the order that they were made.
*/
type Transaction struct {
	Xid        uint32
	CommitLSN  pgoutput.LSN
	EndLSN     pgoutput.LSN
	CommitTime time.Time
	Streamed   bool
	Changes    []Change
}

type pendingTxn struct {
	xid     uint32
	changes []Change
	// The (sub)transaction that made each change. Only used for streaming.
	owners []uint32
}

func (p *pendingTxn) add(c Change, owner uint32) {
	p.changes = append(p.changes, c)
	p.owners = append(p.owners, owner)
}

func (p *pendingTxn) rollbackSubxact(subxid uint32) int {
	var keptChanges []Change
	var keptOwners []uint32
	for i, c := range p.changes {
		if p.owners[i] != subxid {
			keptChanges = append(keptChanges, c)
			keptOwners = append(keptOwners, p.owners[i])
		}
	}
	dropped := len(p.changes) - len(keptChanges)
	p.changes = keptChanges
	p.owners = keptOwners
	return dropped
}

func (p *pendingTxn) finish(commitLSN, endLSN pgoutput.LSN, ts time.Time, streamed bool) *Transaction {
	for i := range p.changes {
		c := &p.changes[i]
		c.CommitSequence = commitLSN
		c.CommitIndex = uint32(i)
		c.TransactionID = p.xid
		c.CommitTime = ts
		c.Streamed = streamed
	}
	return &Transaction{
		Xid:        p.xid,
		CommitLSN:  commitLSN,
		EndLSN:     endLSN,
		CommitTime: ts,
		Streamed:   streamed,
		Changes:    p.changes,
	}
}

/*
An Assembler collects row events into transactions. It is fed every event
of one replication stream in order, and hands back each transaction when
it commits. Streamed transactions are kept apart by transaction ID until
they commit or abort, and an abort of a subtransaction removes only the
changes that it made.
*/
type Assembler struct {
	catalog   *pgoutput.Catalog
	types     *pgtype.Map
	current   *pendingTxn
	streams   map[uint32]*pendingTxn
	streamXid uint32
	inStream  bool
}

/*
NewAssembler creates an assembler. "catalog" is used to name the tables
in a truncate, and should be the one that the decoder fills in.
*/
func NewAssembler(catalog *pgoutput.Catalog) *Assembler {
	return &Assembler{
		catalog: catalog,
		types:   pgoutput.NewTypeMap(),
		streams: make(map[uint32]*pendingTxn),
	}
}

/*
Pending returns the number of streamed transactions that have neither
committed nor aborted.
*/
func (a *Assembler) Pending() int {
	return len(a.streams)
}

/*
Add processes one event. It returns a Transaction if the event committed
one, and nil otherwise.
*/
func (a *Assembler) Add(ev pgoutput.Event) (*Transaction, error) {
	switch e := ev.(type) {
	case *pgoutput.BeginEvent:
		if a.current != nil {
			log.Warnf("Transaction %d began before transaction %d committed", e.Xid, a.current.xid)
		}
		a.current = &pendingTxn{xid: e.Xid}

	case *pgoutput.CommitEvent:
		p := a.current
		a.current = nil
		if p == nil {
			return nil, errors.Errorf("commit at %s without a transaction", e.EndLSN)
		}
		return p.finish(e.EndLSN, e.TransactionEndLSN, e.CommitTime, false), nil

	case *pgoutput.StreamStartEvent:
		a.inStream = true
		a.streamXid = e.Xid
		if a.streams[e.Xid] == nil {
			a.streams[e.Xid] = &pendingTxn{xid: e.Xid}
		}

	case *pgoutput.StreamStopEvent:
		a.inStream = false

	case *pgoutput.StreamCommitEvent:
		p := a.streams[e.Xid]
		delete(a.streams, e.Xid)
		if p == nil {
			p = &pendingTxn{xid: e.Xid}
		}
		return p.finish(e.EndLSN, e.TransactionEndLSN, e.CommitTime, true), nil

	case *pgoutput.StreamAbortEvent:
		a.abort(e.Xid, e.SubXid)

	case *pgoutput.InsertEvent:
		vals, unchanged, err := a.values(e.Relation, e.Row)
		if err != nil {
			return nil, err
		}
		return nil, a.add(e.Streamed, e.Xid, Change{
			Operation: Insert,
			Table:     e.Relation.QualifiedName(),
			NewRow:    vals,
			Unchanged: unchanged,
		})

	case *pgoutput.UpdateEvent:
		c := Change{
			Operation: Update,
			Table:     e.Relation.QualifiedName(),
		}
		var err error
		if c.NewRow, c.Unchanged, err = a.values(e.Relation, e.NewRow); err != nil {
			return nil, err
		}
		if e.OldKind != 0 {
			if c.OldRow, _, err = a.values(e.Relation, e.OldRow); err != nil {
				return nil, err
			}
		}
		return nil, a.add(e.Streamed, e.Xid, c)

	case *pgoutput.DeleteEvent:
		vals, _, err := a.values(e.Relation, e.Row)
		if err != nil {
			return nil, err
		}
		return nil, a.add(e.Streamed, e.Xid, Change{
			Operation: Delete,
			Table:     e.Relation.QualifiedName(),
			OldRow:    vals,
		})

	case *pgoutput.TruncateEvent:
		c := Change{
			Operation:       Truncate,
			Cascade:         e.Options.Cascade(),
			RestartIdentity: e.Options.RestartIdentity(),
		}
		for _, id := range e.RelationIDs {
			c.Tables = append(c.Tables, a.tableName(id))
		}
		return nil, a.add(e.Streamed, e.Xid, c)
	}
	return nil, nil
}

func (a *Assembler) values(rel *pgoutput.RelationInfo, row pgoutput.Row) (Row, []string, error) {
	vals, unchanged, err := row.Values(a.types, rel)
	if err != nil {
		return nil, nil, err
	}
	return Row(vals), unchanged, nil
}

func (a *Assembler) tableName(id uint32) string {
	rel, err := a.catalog.Lookup(id)
	if err != nil {
		return strconv.FormatUint(uint64(id), 10)
	}
	return rel.QualifiedName()
}

func (a *Assembler) add(streamed bool, xid uint32, c Change) error {
	if streamed {
		if !a.inStream {
			return errors.Errorf("streamed change for transaction %d outside a stream block", xid)
		}
		p := a.streams[a.streamXid]
		if p == nil {
			return errors.Errorf("streamed change for transaction %d after it ended", a.streamXid)
		}
		p.add(c, xid)
		return nil
	}
	if a.current == nil {
		return errors.Errorf("%s on %s outside a transaction", c.Operation, c.Table)
	}
	a.current.add(c, a.current.xid)
	return nil
}

func (a *Assembler) abort(xid, subxid uint32) {
	p := a.streams[xid]
	if p == nil {
		log.Debugf("Abort of unknown streamed transaction %d", xid)
		return
	}
	if xid == subxid {
		delete(a.streams, xid)
		log.Debugf("Discarded %d changes of aborted transaction %d", len(p.changes), xid)
		return
	}
	n := p.rollbackSubxact(subxid)
	log.Debugf("Discarded %d changes of aborted subtransaction %d of %d", n, subxid, xid)
}
