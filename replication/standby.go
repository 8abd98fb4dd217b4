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

package replication

import (
	"fmt"
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
)

// Tags of the messages carried inside CopyData during replication.
const (
	XLogDataTag            = 'w'
	KeepaliveTag           = 'k'
	StandbyStatusUpdateTag = 'r'
)

const (
	xlogHeaderLen    = 25
	keepaliveLen     = 18
	standbyStatusLen = 34
)

/*
XLogData is the envelope around each pgoutput message.
*/
type XLogData struct {
	WALStart pgoutput.LSN
	WALEnd   pgoutput.LSN
	SendTime time.Time
	Data     []byte
}

/*
Keepalive is the server's periodic heartbeat.
*/
type Keepalive struct {
	EndLSN         pgoutput.LSN
	ServerTime     time.Time
	ReplyRequested bool
}

/*
StandbyStatus is the feedback that we send to the server.
*/
type StandbyStatus struct {
	Write          pgoutput.LSN
	Flush          pgoutput.LSN
	Apply          pgoutput.LSN
	ClientTime     time.Time
	ReplyRequested bool
}

func expectTag(payload []byte, tag byte, minLen int) error {
	if len(payload) == 0 {
		return &pgoutput.DecodeError{Kind: pgoutput.TruncatedMessage, Msg: "empty message"}
	}
	if payload[0] != tag {
		return &pgoutput.DecodeError{
			Kind: pgoutput.ProtocolViolation,
			Msg:  fmt.Sprintf("expected message %q, got %q", tag, payload[0]),
		}
	}
	if len(payload) < minLen {
		return &pgoutput.DecodeError{
			Kind: pgoutput.TruncatedMessage,
			Msg:  fmt.Sprintf("message %q needs %d bytes, has %d", tag, minLen, len(payload)),
		}
	}
	return nil
}

/*
DecodeXLogData strips the XLogData header. Data is a slice of "payload".
*/
func DecodeXLogData(payload []byte) (XLogData, error) {
	if err := expectTag(payload, XLogDataTag, xlogHeaderLen); err != nil {
		return XLogData{}, err
	}
	c := pgoutput.NewCursor(payload[1:])
	start, _ := c.ReadUint64()
	end, _ := c.ReadUint64()
	ts, _ := c.ReadUint64()
	return XLogData{
		WALStart: pgoutput.LSN(start),
		WALEnd:   pgoutput.LSN(end),
		SendTime: pgoutput.TimeFromPostgres(int64(ts)),
		Data:     payload[xlogHeaderLen:],
	}, nil
}

func EncodeXLogData(x XLogData) []byte {
	w := pgoutput.NewWriter(xlogHeaderLen + len(x.Data))
	w.WriteByte(XLogDataTag)
	w.WriteUint64(uint64(x.WALStart))
	w.WriteUint64(uint64(x.WALEnd))
	w.WriteInt64(pgoutput.TimeToPostgres(x.SendTime))
	w.WriteBytes(x.Data)
	return w.Bytes()
}

/*
DecodeKeepalive decodes a primary keepalive message.
*/
func DecodeKeepalive(payload []byte) (Keepalive, error) {
	if err := expectTag(payload, KeepaliveTag, keepaliveLen); err != nil {
		return Keepalive{}, err
	}
	c := pgoutput.NewCursor(payload[1:])
	end, _ := c.ReadUint64()
	ts, _ := c.ReadUint64()
	reply, _ := c.ReadByte()
	return Keepalive{
		EndLSN:         pgoutput.LSN(end),
		ServerTime:     pgoutput.TimeFromPostgres(int64(ts)),
		ReplyRequested: reply == 1,
	}, nil
}

func EncodeKeepalive(k Keepalive) []byte {
	w := pgoutput.NewWriter(keepaliveLen)
	w.WriteByte(KeepaliveTag)
	w.WriteUint64(uint64(k.EndLSN))
	w.WriteInt64(pgoutput.TimeToPostgres(k.ServerTime))
	if k.ReplyRequested {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return w.Bytes()
}

/*
EncodeStandbyStatusUpdate builds the 34-byte feedback message. We never ask
the server for a reply.
*/
func EncodeStandbyStatusUpdate(write, flush, apply pgoutput.LSN, now time.Time) []byte {
	w := pgoutput.NewWriter(standbyStatusLen)
	w.WriteByte(StandbyStatusUpdateTag)
	w.WriteUint64(uint64(write))
	w.WriteUint64(uint64(flush))
	w.WriteUint64(uint64(apply))
	w.WriteInt64(pgoutput.TimeToPostgres(now))
	w.WriteByte(0)
	return w.Bytes()
}

func DecodeStandbyStatusUpdate(payload []byte) (StandbyStatus, error) {
	if err := expectTag(payload, StandbyStatusUpdateTag, standbyStatusLen); err != nil {
		return StandbyStatus{}, err
	}
	c := pgoutput.NewCursor(payload[1:])
	write, _ := c.ReadUint64()
	flush, _ := c.ReadUint64()
	apply, _ := c.ReadUint64()
	ts, _ := c.ReadUint64()
	reply, _ := c.ReadByte()
	return StandbyStatus{
		Write:          pgoutput.LSN(write),
		Flush:          pgoutput.LSN(flush),
		Apply:          pgoutput.LSN(apply),
		ClientTime:     pgoutput.TimeFromPostgres(int64(ts)),
		ReplyRequested: reply == 1,
	}, nil
}
