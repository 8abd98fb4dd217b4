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
MessageType is the first byte of every pgoutput message.
*/
type MessageType byte

// Message types handled by the decoder.
const (
	MessageBegin        MessageType = 'B'
	MessageCommit       MessageType = 'C'
	MessageRelation     MessageType = 'R'
	MessageInsert       MessageType = 'I'
	MessageUpdate       MessageType = 'U'
	MessageDelete       MessageType = 'D'
	MessageTruncate     MessageType = 'T'
	MessageStreamStart  MessageType = 'S'
	MessageStreamStop   MessageType = 'E'
	MessageStreamCommit MessageType = 'c'
	MessageStreamAbort  MessageType = 'A'
)

func (t MessageType) String() string {
	switch t {
	case MessageBegin:
		return "Begin"
	case MessageCommit:
		return "Commit"
	case MessageRelation:
		return "Relation"
	case MessageInsert:
		return "Insert"
	case MessageUpdate:
		return "Update"
	case MessageDelete:
		return "Delete"
	case MessageTruncate:
		return "Truncate"
	case MessageStreamStart:
		return "StreamStart"
	case MessageStreamStop:
		return "StreamStop"
	case MessageStreamCommit:
		return "StreamCommit"
	case MessageStreamAbort:
		return "StreamAbort"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", byte(t))
	}
}

/*
An Event is the result of decoding one message.
*/
type Event interface {
	Type() MessageType
}

/*
KeyKind tells which old-row image accompanies an update or delete.
*/
type KeyKind byte

// Old-row markers. Zero means no old image was sent.
const (
	KeyKindIndex KeyKind = 'K'
	KeyKindOld   KeyKind = 'O'
)

/*
TruncateOptions is the bit set sent with a Truncate message.
*/
type TruncateOptions uint8

func (o TruncateOptions) Cascade() bool {
	return o&1 != 0
}

func (o TruncateOptions) RestartIdentity() bool {
	return o&2 != 0
}

type BeginEvent struct {
	FinalLSN   LSN
	CommitTime time.Time
	Xid        uint32
}

/*
CommitEvent marks the end of a transaction. EndLSN is the commit LSN, and
is the position that is acknowledged once the commit is delivered.
*/
type CommitEvent struct {
	Flags             uint8
	EndLSN            LSN
	TransactionEndLSN LSN
	CommitTime        time.Time
}

/*
RelationEvent is emitted after a Relation message has been stored in the
catalog.
*/
type RelationEvent struct {
	Relation *RelationInfo
}

/*
InsertEvent carries a new row. Xid is only set when Streamed is true.
*/
type InsertEvent struct {
	Relation *RelationInfo
	Streamed bool
	Xid      uint32
	Row      Row
}

/*
UpdateEvent carries the new row, and an old one when OldKind is set.
*/
type UpdateEvent struct {
	Relation *RelationInfo
	Streamed bool
	Xid      uint32
	OldKind  KeyKind
	OldRow   Row
	NewRow   Row
}

/*
DeleteEvent carries either the key columns (KeyKindIndex) or the whole
old row (KeyKindOld).
*/
type DeleteEvent struct {
	Relation *RelationInfo
	Streamed bool
	Xid      uint32
	KeyKind  KeyKind
	Row      Row
}

type TruncateEvent struct {
	Streamed    bool
	Xid         uint32
	Options     TruncateOptions
	RelationIDs []uint32
}

type StreamStartEvent struct {
	Xid          uint32
	FirstSegment bool
}

type StreamStopEvent struct{}

type StreamCommitEvent struct {
	Xid               uint32
	Flags             uint8
	EndLSN            LSN
	TransactionEndLSN LSN
	CommitTime        time.Time
}

/*
StreamAbortEvent aborts a streamed transaction. When SubXid differs from
Xid only that subtransaction is rolled back.
*/
type StreamAbortEvent struct {
	Xid    uint32
	SubXid uint32
}

func (*BeginEvent) Type() MessageType        { return MessageBegin }
func (*CommitEvent) Type() MessageType       { return MessageCommit }
func (*RelationEvent) Type() MessageType     { return MessageRelation }
func (*InsertEvent) Type() MessageType       { return MessageInsert }
func (*UpdateEvent) Type() MessageType       { return MessageUpdate }
func (*DeleteEvent) Type() MessageType       { return MessageDelete }
func (*TruncateEvent) Type() MessageType     { return MessageTruncate }
func (*StreamStartEvent) Type() MessageType  { return MessageStreamStart }
func (*StreamStopEvent) Type() MessageType   { return MessageStreamStop }
func (*StreamCommitEvent) Type() MessageType { return MessageStreamCommit }
func (*StreamAbortEvent) Type() MessageType  { return MessageStreamAbort }
