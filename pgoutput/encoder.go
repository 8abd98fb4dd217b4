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

package pgoutput

import (
	"fmt"
	"time"
)

/*
Encode produces the wire form of an event, as the server would send it.
It is used to script mock servers and to build test streams.
*/
func Encode(ev Event) ([]byte, error) {
	w := NewWriter(64)
	w.WriteByte(byte(ev.Type()))

	switch e := ev.(type) {
	case *BeginEvent:
		w.WriteUint64(uint64(e.FinalLSN))
		w.WriteInt64(TimeToPostgres(e.CommitTime))
		w.WriteUint32(e.Xid)

	case *CommitEvent:
		w.writeCommitBody(e.Flags, e.EndLSN, e.TransactionEndLSN, e.CommitTime)

	case *RelationEvent:
		r := e.Relation
		w.WriteUint32(r.ID)
		w.WriteCString(r.Namespace)
		w.WriteCString(r.Name)
		w.WriteByte(byte(r.ReplicaIdentity))
		w.WriteUint16(uint16(len(r.Columns)))
		for _, col := range r.Columns {
			w.WriteByte(col.Flags)
			w.WriteCString(col.Name)
			w.WriteUint32(col.TypeID)
			w.WriteInt32(col.TypeModifier)
		}

	case *InsertEvent:
		w.writeDMLHeader(e.Relation, e.Streamed, e.Xid)
		w.WriteByte('N')
		w.writeTuple(e.Row)

	case *UpdateEvent:
		w.writeDMLHeader(e.Relation, e.Streamed, e.Xid)
		if e.OldKind != 0 {
			w.WriteByte(byte(e.OldKind))
			w.writeTuple(e.OldRow)
		}
		w.WriteByte('N')
		w.writeTuple(e.NewRow)

	case *DeleteEvent:
		w.writeDMLHeader(e.Relation, e.Streamed, e.Xid)
		w.WriteByte(byte(e.KeyKind))
		w.writeTuple(e.Row)

	case *TruncateEvent:
		if e.Streamed {
			w.WriteUint32(e.Xid)
		}
		w.WriteUint32(uint32(len(e.RelationIDs)))
		w.WriteByte(byte(e.Options))
		for _, id := range e.RelationIDs {
			w.WriteUint32(id)
		}

	case *StreamStartEvent:
		w.WriteUint32(e.Xid)
		if e.FirstSegment {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}

	case *StreamStopEvent:

	case *StreamCommitEvent:
		w.WriteUint32(e.Xid)
		w.writeCommitBody(e.Flags, e.EndLSN, e.TransactionEndLSN, e.CommitTime)

	case *StreamAbortEvent:
		w.WriteUint32(e.Xid)
		w.WriteUint32(e.SubXid)

	default:
		return nil, fmt.Errorf("cannot encode %T", ev)
	}
	return w.Bytes(), nil
}

func (w *Writer) writeCommitBody(flags uint8, commitLSN, endLSN LSN, ts time.Time) {
	w.WriteByte(flags)
	w.WriteUint64(uint64(commitLSN))
	w.WriteUint64(uint64(endLSN))
	w.WriteInt64(TimeToPostgres(ts))
}

func (w *Writer) writeDMLHeader(rel *RelationInfo, streamed bool, xid uint32) {
	if streamed {
		w.WriteUint32(xid)
	}
	w.WriteUint32(rel.ID)
}
