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
	"time"

	log "github.com/sirupsen/logrus"
)

/*
A Decoder turns pgoutput messages into Events. Relation messages update its
Catalog, which later DML messages are resolved against. A Decoder is not
safe for use by more than one goroutine, although its Catalog is.
*/
type Decoder struct {
	catalog  *Catalog
	inStream bool
}

/*
NewDecoder returns a decoder backed by "catalog". A new catalog is created
if it is nil.
*/
func NewDecoder(catalog *Catalog) *Decoder {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Decoder{catalog: catalog}
}

func (d *Decoder) Catalog() *Catalog {
	return d.catalog
}

/*
InStream is true between a Stream Start and the matching Stream Stop.
*/
func (d *Decoder) InStream() bool {
	return d.inStream
}

/*
Decode decodes a single message. "payload" starts with the message type
byte. Errors are always *DecodeError values.
*/
func (d *Decoder) Decode(payload []byte) (Event, error) {
	c := NewCursor(payload)
	tag, err := c.ReadByte()
	if err != nil {
		return nil, err
	}

	switch MessageType(tag) {
	case MessageBegin:
		return decodeBegin(c)
	case MessageCommit:
		return decodeCommit(c)
	case MessageRelation:
		return d.decodeRelation(c)
	case MessageInsert:
		return d.decodeInsert(c)
	case MessageUpdate:
		return d.decodeUpdate(c)
	case MessageDelete:
		return d.decodeDelete(c)
	case MessageTruncate:
		return d.decodeTruncate(c)
	case MessageStreamStart:
		ev, err := decodeStreamStart(c)
		if err == nil {
			d.inStream = true
		}
		return ev, err
	case MessageStreamStop:
		d.inStream = false
		return &StreamStopEvent{}, nil
	case MessageStreamCommit:
		return decodeStreamCommit(c)
	case MessageStreamAbort:
		return decodeStreamAbort(c)
	default:
		return nil, newError(UnknownMessageTag, 0, "tag 0x%02x", tag)
	}
}

func decodeBegin(c *Cursor) (*BeginEvent, error) {
	lsn, err := c.ReadUint64()
	if err != nil {
		return nil, err
	}
	ts, err := c.ReadUint64()
	if err != nil {
		return nil, err
	}
	xid, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &BeginEvent{
		FinalLSN:   LSN(lsn),
		CommitTime: TimeFromPostgres(int64(ts)),
		Xid:        xid,
	}, nil
}

/*
readCommitBody reads the commit body shared by Commit and Stream Commit.
Only the flags and the commit LSN are required. When anything follows them
it must be the transaction end LSN and the commit timestamp.
*/
func readCommitBody(c *Cursor) (flags uint8, commitLSN, endLSN LSN, ts time.Time, err error) {
	if flags, err = c.ReadByte(); err != nil {
		return
	}
	var v uint64
	if v, err = c.ReadUint64(); err != nil {
		return
	}
	commitLSN = LSN(v)
	if c.Remaining() == 0 {
		return
	}
	if v, err = c.ReadUint64(); err != nil {
		return
	}
	endLSN = LSN(v)
	if v, err = c.ReadUint64(); err != nil {
		return
	}
	ts = TimeFromPostgres(int64(v))
	return
}

func decodeCommit(c *Cursor) (*CommitEvent, error) {
	flags, commitLSN, endLSN, ts, err := readCommitBody(c)
	if err != nil {
		return nil, err
	}
	return &CommitEvent{
		Flags:             flags,
		EndLSN:            commitLSN,
		TransactionEndLSN: endLSN,
		CommitTime:        ts,
	}, nil
}

func (d *Decoder) decodeRelation(c *Cursor) (*RelationEvent, error) {
	id, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	ns, err := c.ReadCString()
	if err != nil {
		return nil, err
	}
	name, err := c.ReadCString()
	if err != nil {
		return nil, err
	}
	identOff := c.Offset()
	ident, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	if !ReplicaIdentity(ident).valid() {
		return nil, newError(ProtocolViolation, identOff, "replica identity 0x%02x", ident)
	}
	ncols, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}

	rel := &RelationInfo{
		ID:              id,
		Namespace:       ns,
		Name:            name,
		ReplicaIdentity: ReplicaIdentity(ident),
		Columns:         make([]ColumnInfo, ncols),
	}
	for i := range rel.Columns {
		col := &rel.Columns[i]
		if col.Flags, err = c.ReadByte(); err != nil {
			return nil, err
		}
		if col.Name, err = c.ReadCString(); err != nil {
			return nil, err
		}
		if col.TypeID, err = c.ReadUint32(); err != nil {
			return nil, err
		}
		if col.TypeModifier, err = c.ReadInt32(); err != nil {
			return nil, err
		}
	}

	d.catalog.Upsert(rel)
	log.Debugf("Relation %d is %s with %d columns", id, rel.QualifiedName(), ncols)
	return &RelationEvent{Relation: rel}, nil
}

/*
readDMLHeader reads the optional xid and the relation ID at the start of an
Insert, Update or Delete. The server only sends the xid inside a streamed
transaction, so the byte that follows the first integer decides: if it is
one of the markers that may follow a relation ID, the message is not
streamed.
*/
func (d *Decoder) readDMLHeader(c *Cursor, markers string) (rel *RelationInfo, streamed bool, xid uint32, err error) {
	var la byte
	if la, err = c.PeekByte(4); err != nil {
		return
	}
	streamed = !isMarker(la, markers)

	if streamed {
		if xid, err = c.ReadUint32(); err != nil {
			return
		}
	}
	idOff := c.Offset()
	var id uint32
	if id, err = c.ReadUint32(); err != nil {
		return
	}
	rel, err = d.catalog.Lookup(id)
	if err != nil {
		err = newError(RelationNotFound, idOff, "relation %d", id)
	}
	return
}

func isMarker(b byte, markers string) bool {
	for i := 0; i < len(markers); i++ {
		if markers[i] == b {
			return true
		}
	}
	return false
}

func readMarker(c *Cursor, markers string) (byte, error) {
	off := c.Offset()
	m, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	if !isMarker(m, markers) {
		return 0, newError(ProtocolViolation, off, "expected one of %q, got 0x%02x", markers, m)
	}
	return m, nil
}

func (d *Decoder) decodeInsert(c *Cursor) (*InsertEvent, error) {
	rel, streamed, xid, err := d.readDMLHeader(c, "N")
	if err != nil {
		return nil, err
	}
	if _, err = readMarker(c, "N"); err != nil {
		return nil, err
	}
	row, err := c.readTuple(rel.ColumnCount())
	if err != nil {
		return nil, err
	}
	return &InsertEvent{
		Relation: rel,
		Streamed: streamed,
		Xid:      xid,
		Row:      row,
	}, nil
}

func (d *Decoder) decodeUpdate(c *Cursor) (*UpdateEvent, error) {
	rel, streamed, xid, err := d.readDMLHeader(c, "KON")
	if err != nil {
		return nil, err
	}
	ev := &UpdateEvent{
		Relation: rel,
		Streamed: streamed,
		Xid:      xid,
	}

	m, err := readMarker(c, "KON")
	if err != nil {
		return nil, err
	}
	if m != 'N' {
		ev.OldKind = KeyKind(m)
		if ev.OldRow, err = c.readTuple(rel.ColumnCount()); err != nil {
			return nil, err
		}
		if _, err = readMarker(c, "N"); err != nil {
			return nil, err
		}
	}
	if ev.NewRow, err = c.readTuple(rel.ColumnCount()); err != nil {
		return nil, err
	}
	return ev, nil
}

func (d *Decoder) decodeDelete(c *Cursor) (*DeleteEvent, error) {
	rel, streamed, xid, err := d.readDMLHeader(c, "KO")
	if err != nil {
		return nil, err
	}
	m, err := readMarker(c, "KO")
	if err != nil {
		return nil, err
	}
	row, err := c.readTuple(rel.ColumnCount())
	if err != nil {
		return nil, err
	}
	return &DeleteEvent{
		Relation: rel,
		Streamed: streamed,
		Xid:      xid,
		KeyKind:  KeyKind(m),
		Row:      row,
	}, nil
}

/*
decodeTruncate has to guess whether an xid is present, since nothing in the
message says so. Streamed messages are laid out as
xid(4) count(4) flags(1) ids(4*count), and others as count(4) flags(1)
ids(4*count). A layout is possible only if the ID list exactly fills the
rest of the payload. When both are possible, which can only happen for a
handful of small values, the stream state decides.
*/
func (d *Decoder) decodeTruncate(c *Cursor) (*TruncateEvent, error) {
	start := c.Offset()
	rest := int64(c.Remaining())

	var streamedOK, plainOK bool
	if rest >= 5 {
		a, _ := ReadUint32(c.buf, start)
		plainOK = rest-5 == 4*int64(a)
	}
	if rest >= 9 {
		b, _ := ReadUint32(c.buf, start+4)
		streamedOK = rest-9 == 4*int64(b)
	}

	streamed := streamedOK
	switch {
	case streamedOK && plainOK:
		streamed = d.inStream
		log.Warnf("Truncate at offset %d fits both layouts, assuming streamed=%t", start, streamed)
	case !streamedOK && !plainOK:
		if rest < 5 {
			return nil, truncated(start, 5, int(rest))
		}
		return nil, newError(ProtocolViolation, start, "truncate body of %d bytes fits no layout", rest)
	}

	ev := &TruncateEvent{Streamed: streamed}
	if streamed {
		ev.Xid, _ = c.ReadUint32()
	}
	n, _ := c.ReadUint32()
	flags, _ := c.ReadByte()
	ev.Options = TruncateOptions(flags)
	ev.RelationIDs = make([]uint32, n)
	for i := range ev.RelationIDs {
		id, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		ev.RelationIDs[i] = id
	}
	return ev, nil
}

func decodeStreamStart(c *Cursor) (*StreamStartEvent, error) {
	xid, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	ev := &StreamStartEvent{Xid: xid}
	if c.Remaining() > 0 {
		first, _ := c.ReadByte()
		ev.FirstSegment = first == 1
	}
	return ev, nil
}

func decodeStreamCommit(c *Cursor) (*StreamCommitEvent, error) {
	xid, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	flags, commitLSN, endLSN, ts, err := readCommitBody(c)
	if err != nil {
		return nil, err
	}
	return &StreamCommitEvent{
		Xid:               xid,
		Flags:             flags,
		EndLSN:            commitLSN,
		TransactionEndLSN: endLSN,
		CommitTime:        ts,
	}, nil
}

func decodeStreamAbort(c *Cursor) (*StreamAbortEvent, error) {
	xid, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	ev := &StreamAbortEvent{Xid: xid, SubXid: xid}
	if c.Remaining() >= 4 {
		ev.SubXid, _ = c.ReadUint32()
	}
	return ev, nil
}
