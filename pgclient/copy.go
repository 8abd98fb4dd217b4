package pgclient

import (
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

/*
CopyBothInfo is the content of a CopyBothResponse.
*/
type CopyBothInfo struct {
	Binary  bool
	ColFmts []int16
}

func parseCopyBoth(m *InputMessage) (CopyBothInfo, error) {
	var info CopyBothInfo
	isBinary, err := m.ReadByte()
	if err != nil {
		return info, err
	}
	info.Binary = isBinary != 0
	nf, err := m.ReadInt16()
	if err != nil {
		return info, err
	}
	for i := 0; i < int(nf); i++ {
		f, err := m.ReadInt16()
		if err != nil {
			return info, err
		}
		info.ColFmts = append(info.ColFmts, f)
	}
	return info, nil
}

/*
StartCopyBoth sends a command, such as START_REPLICATION, that puts the
connection into CopyBoth mode, and waits until the server confirms.
*/
func (c *PgConnection) StartCopyBoth(cmd string) (CopyBothInfo, error) {
	log.Debugf("Starting copy: %s", cmd)
	qm := NewOutputMessage(Query)
	qm.WriteString(cmd)
	if err := c.WriteMessage(qm); err != nil {
		return CopyBothInfo{}, err
	}

	for {
		m, err := c.ReadMessage()
		if err != nil {
			return CopyBothInfo{}, err
		}

		switch m.Type() {
		case ErrorResponse:
			pe := ParseError(m)
			c.consumeTillReady()
			return CopyBothInfo{}, pe

		case NoticeResponse:
			msg, _ := ParseNotice(m)
			log.Infof("Info from server: %s", msg)

		case CopyBothResponse:
			return parseCopyBoth(m)

		default:
			return CopyBothInfo{}, fmt.Errorf("Unknown message from server: %s", m.Type())
		}
	}
}

/*
SendCopyData sends one CopyData message containing "data".
*/
func (c *PgConnection) SendCopyData(data []byte) error {
	om := NewOutputMessage(CopyDataOut)
	om.WriteBytes(data)
	return c.WriteMessage(om)
}

/*
SendCopyDone tells the server that we are done sending.
*/
func (c *PgConnection) SendCopyDone() error {
	return c.WriteMessage(NewOutputMessage(CopyDoneOut))
}

/*
ReceiveCopyData waits up to "timeout" for the next CopyData message and
returns its contents. Notices are logged and skipped. It returns ErrTimeout
if nothing arrived, a *PgError if the server reported one, and io.EOF
if the server ended the copy.
*/
func (c *PgConnection) ReceiveCopyData(timeout time.Duration) ([]byte, error) {
	for {
		m, err := c.ReadMessageTimeout(timeout)
		if err != nil {
			return nil, err
		}

		switch m.Type() {
		case CopyData:
			return m.ReadRemaining(), nil
		case NoticeResponse:
			msg, _ := ParseNotice(m)
			log.Infof("Info from server: %s", msg)
		case ErrorResponse:
			return nil, ParseError(m)
		case CopyDone:
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("Unexpected message during copy: %s", m.Type())
		}
	}
}

func (c *PgConnection) consumeTillReady() error {
	for {
		m, err := c.ReadMessage()
		if err != nil {
			return err
		}
		if m.Type() == ReadyForQuery {
			return nil
		}
	}
}
