package sink

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/fkfk000/replication-checker/common"
)

/*
JSONWriter writes each change of a committed transaction as one line of
JSON, with its sequence filled in.
*/
type JSONWriter struct {
	latch sync.Mutex
	enc   *json.Encoder
}

func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

func (j *JSONWriter) HandleTransaction(txn *common.Transaction) error {
	j.latch.Lock()
	defer j.latch.Unlock()
	for i := range txn.Changes {
		c := txn.Changes[i]
		c.Sequence = c.GetSequence().String()
		if err := j.enc.Encode(&c); err != nil {
			return err
		}
	}
	return nil
}

/*
StreamWriter writes each change in the length-prefixed protobuf format of
common.ChangeWriter.
*/
type StreamWriter struct {
	latch  sync.Mutex
	writer *common.ChangeWriter
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{writer: common.NewChangeWriter(w)}
}

func (s *StreamWriter) HandleTransaction(txn *common.Transaction) error {
	s.latch.Lock()
	defer s.latch.Unlock()
	for i := range txn.Changes {
		if err := s.writer.Write(&txn.Changes[i]); err != nil {
			return err
		}
	}
	return nil
}
