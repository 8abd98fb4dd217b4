package common

import (
	"encoding/binary"
	"regexp"
	"strconv"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/pkg/errors"
)

var sequenceRe = regexp.MustCompile("^([a-fA-F0-9]+)\\.([a-fA-F0-9]+)\\.([a-fA-F0-9]+)$")
var networkByteOrder = binary.BigEndian

const sequenceLen = 12

/*
A Sequence represents a unique position in the list of changes. It consists
of a postgres LSN that represents when a transaction was committed, and a
index into the list of changes in that transaction.
*/
type Sequence struct {
	LSN   pgoutput.LSN
	Index uint32
}

/*
MakeSequence makes a new sequence from an LSN and an index.
*/
func MakeSequence(lsn pgoutput.LSN, index uint32) Sequence {
	return Sequence{
		LSN:   lsn,
		Index: index,
	}
}

/*
ParseSequence parses a stringified sequence.
*/
func ParseSequence(s string) (Sequence, error) {
	parsed := sequenceRe.FindStringSubmatch(s)
	if parsed == nil {
		return Sequence{}, errors.Errorf("Invalid sequence string %q", s)
	}

	var parts [3]uint64
	for i := range parts {
		v, err := strconv.ParseUint(parsed[i+1], 16, 32)
		if err != nil {
			return Sequence{}, errors.Wrap(err, "Invalid sequence")
		}
		parts[i] = v
	}

	return Sequence{
		LSN:   pgoutput.LSN((parts[0] << 32) | parts[1]),
		Index: uint32(parts[2]),
	}, nil
}

/*
ParseSequenceBytes parses bytes written using Bytes().
*/
func ParseSequenceBytes(b []byte) (Sequence, error) {
	if len(b) != sequenceLen {
		return Sequence{}, errors.New("Invalid byte sequence")
	}
	return Sequence{
		LSN:   pgoutput.LSN(networkByteOrder.Uint64(b)),
		Index: networkByteOrder.Uint32(b[8:]),
	}, nil
}

/*
String turns the sequence into the canonical string form, which looks
like this: "XXX.YYY.ZZZ," where each component is a hexadecimal number.
This is different from the standard Postgres format, which includes a
slash in the first part, in that it doesn't need URL encoding.
*/
func (s Sequence) String() string {
	return strconv.FormatUint(uint64(s.LSN)>>32, 16) + "." +
		strconv.FormatUint(uint64(s.LSN)&0xffffffff, 16) + "." +
		strconv.FormatUint(uint64(s.Index), 16)
}

/*
Bytes turns the sequence into an array of 12 bytes, in "network" (aka
big-endian) byte order.
*/
func (s Sequence) Bytes() []byte {
	buf := make([]byte, sequenceLen)
	networkByteOrder.PutUint64(buf, uint64(s.LSN))
	networkByteOrder.PutUint32(buf[8:], s.Index)
	return buf
}

/*
Compare returns if the current sequence is less than, greater to, or
equal to the specified sequence.
*/
func (s Sequence) Compare(o Sequence) int {
	if s.LSN < o.LSN {
		return -1
	}
	if s.LSN > o.LSN {
		return 1
	}
	if s.Index < o.Index {
		return -1
	}
	if s.Index > o.Index {
		return 1
	}
	return 0
}

/*
Next is the lowest sequence that compares greater than this one.
*/
func (s Sequence) Next() Sequence {
	if s.Index == ^uint32(0) {
		return MakeSequence(s.LSN+1, 0)
	}
	return MakeSequence(s.LSN, s.Index+1)
}
