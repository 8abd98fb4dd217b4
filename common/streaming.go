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
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Largest record that a ChangeReader will accept.
const maxRecordLen = 64 * 1024 * 1024

/*
A ChangeWriter writes a stream of changes. Each one is written in the
format of MarshalProto, preceded by its length as a four-byte big-endian
integer.
*/
type ChangeWriter struct {
	writer io.Writer
}

func NewChangeWriter(w io.Writer) *ChangeWriter {
	return &ChangeWriter{writer: w}
}

func (w *ChangeWriter) Write(c *Change) error {
	buf, err := c.MarshalProto()
	if err != nil {
		return err
	}
	return w.writeRecord(buf)
}

func (w *ChangeWriter) writeRecord(buf []byte) error {
	hdr := make([]byte, 4)
	networkByteOrder.PutUint32(hdr, uint32(len(buf)))
	if _, err := w.writer.Write(hdr); err != nil {
		return err
	}
	_, err := w.writer.Write(buf)
	return err
}

/*
A ChangeReader reads what a ChangeWriter wrote.
*/
type ChangeReader struct {
	reader io.Reader
}

func NewChangeReader(r io.Reader) *ChangeReader {
	return &ChangeReader{reader: r}
}

/*
Next returns the next change. It returns io.EOF at a clean end of the
stream, and io.ErrUnexpectedEOF if the stream ends inside a record.
*/
func (r *ChangeReader) Next() (*Change, error) {
	var bufLen uint32
	err := binary.Read(r.reader, networkByteOrder, &bufLen)
	if err != nil {
		return nil, err
	}
	if bufLen > maxRecordLen {
		return nil, errors.Errorf("Invalid stream: record of %d bytes", bufLen)
	}

	buf := make([]byte, bufLen)
	_, err = io.ReadFull(r.reader, buf)
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	return UnmarshalChangeProto(buf)
}
