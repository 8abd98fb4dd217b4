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

import "fmt"

/*
ColumnKind is the one-byte tag in front of every column in a TupleData
block.
*/
type ColumnKind byte

// Column kinds found in TupleData.
const (
	ColumnNull           ColumnKind = 'n'
	ColumnUnchangedToast ColumnKind = 'u'
	ColumnText           ColumnKind = 't'
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnNull:
		return "null"
	case ColumnUnchangedToast:
		return "unchanged-toast"
	case ColumnText:
		return "text"
	default:
		return fmt.Sprintf("ColumnKind(%d)", byte(k))
	}
}

/*
ColumnValue is a single decoded column. Data is only set for ColumnText.
*/
type ColumnValue struct {
	Kind ColumnKind
	Data []byte
}

func (v ColumnValue) IsNull() bool {
	return v.Kind == ColumnNull
}

// IsUnchanged is true for a TOASTed value that the server did not resend.
func (v ColumnValue) IsUnchanged() bool {
	return v.Kind == ColumnUnchangedToast
}

func (v ColumnValue) String() string {
	switch v.Kind {
	case ColumnText:
		return string(v.Data)
	case ColumnNull:
		return "NULL"
	default:
		return "(unchanged)"
	}
}

/*
A Row holds one value per column of its relation, in column order.
*/
type Row []ColumnValue

/*
DecodeTuple decodes a TupleData block starting at "offset". The block must
contain exactly "columnCount" columns. It returns the row and the offset of
the first byte after the block.
*/
func DecodeTuple(buf []byte, offset int, columnCount int) (Row, int, error) {
	c := &Cursor{buf: buf, off: offset}
	row, err := c.readTuple(columnCount)
	if err != nil {
		return nil, offset, err
	}
	return row, c.off, nil
}

func (c *Cursor) readTuple(columnCount int) (Row, error) {
	start := c.off
	n, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(n) != columnCount {
		return nil, newError(ColumnCountMismatch, start,
			"tuple has %d columns, relation has %d", n, columnCount)
	}

	row := make(Row, n)
	for i := range row {
		kindOff := c.off
		kind, err := c.ReadByte()
		if err != nil {
			return nil, err
		}

		switch ColumnKind(kind) {
		case ColumnNull, ColumnUnchangedToast:
			row[i] = ColumnValue{Kind: ColumnKind(kind)}
		case ColumnText:
			l, err := c.ReadInt32()
			if err != nil {
				return nil, err
			}
			if l < 0 {
				return nil, newError(ProtocolViolation, kindOff+1, "negative column length %d", l)
			}
			data, err := c.ReadBytes(int(l))
			if err != nil {
				return nil, err
			}
			row[i] = ColumnValue{Kind: ColumnText, Data: data}
		default:
			return nil, newError(UnknownColumnKind, kindOff, "column %d has kind 0x%02x", i, kind)
		}
	}
	return row, nil
}

func (w *Writer) writeTuple(row Row) {
	w.WriteUint16(uint16(len(row)))
	for _, v := range row {
		w.WriteByte(byte(v.Kind))
		if v.Kind == ColumnText {
			w.WriteUint32(uint32(len(v.Data)))
			w.WriteBytes(v.Data)
		}
	}
}
