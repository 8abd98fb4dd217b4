package pgclient

import (
	"errors"
	"fmt"
	"strings"
)

// SQLSTATE codes that callers care about.
const (
	DuplicateObject = "42710"
	UndefinedObject = "42704"
)

/*
A PgError is an ErrorResponse from the server.
*/
type PgError struct {
	Severity string
	Code     string
	Message  string
	Detail   string
}

func (e *PgError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Severity, e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

/*
IsPgError returns true if "err" came from the server with SQLSTATE "code".
*/
func IsPgError(err error, code string) bool {
	var pe *PgError
	return errors.As(err, &pe) && pe.Code == code
}

func readFields(m *InputMessage) (map[byte]string, error) {
	fields := make(map[byte]string)
	for {
		code, err := m.ReadByte()
		if err != nil {
			return nil, errors.New("Invalid message format")
		}
		if code == 0 {
			return fields, nil
		}
		txt, err := m.ReadString()
		if err != nil {
			return nil, errors.New("Invalid message format")
		}
		fields[code] = txt
	}
}

/*
ParseError turns an ErrorResponse into a *PgError. Anything else comes back
as a plain error.
*/
func ParseError(m *InputMessage) error {
	if m.Type() != ErrorResponse {
		return errors.New("Message type is not Error")
	}
	fields, err := readFields(m)
	if err != nil {
		return err
	}
	return &PgError{
		Severity: fields['S'],
		Code:     fields['C'],
		Message:  fields['M'],
		Detail:   fields['D'],
	}
}

/*
ParseNotice returns the text of a NoticeResponse or ErrorResponse.
*/
func ParseNotice(m *InputMessage) (string, error) {
	if m.Type() != NoticeResponse && m.Type() != ErrorResponse {
		return "", errors.New("Mismatched message type")
	}
	fields, err := readFields(m)
	if err != nil {
		return "", err
	}
	parts := []string{fields['S'], fields['M']}
	if fields['D'] != "" {
		parts = append(parts, fields['D'])
	}
	return strings.Join(parts, " "), nil
}

/*
ParseRowDescription returns the columns of a RowDescription.
*/
func ParseRowDescription(m *InputMessage) ([]ColumnInfo, error) {
	if m.Type() != RowDescription {
		return nil, errors.New("Message type is not Row Description")
	}

	numFields, err := m.ReadInt16()
	if err != nil {
		return nil, err
	}

	cols := make([]ColumnInfo, 0, numFields)
	for i := 0; i < int(numFields); i++ {
		col := ColumnInfo{}
		if col.Name, err = m.ReadString(); err != nil {
			return nil, err
		}
		// Table OID, attribute number
		if _, err = m.ReadBytes(6); err != nil {
			return nil, err
		}
		if col.Type, err = m.ReadInt32(); err != nil {
			return nil, err
		}
		// Type size, type modifier
		if _, err = m.ReadBytes(6); err != nil {
			return nil, err
		}
		fmtCode, err := m.ReadInt16()
		if err != nil {
			return nil, err
		}
		col.Binary = (fmtCode == 1)
		cols = append(cols, col)
	}
	return cols, nil
}

/*
ParseDataRow returns the columns of a DataRow as strings. NULL comes back
as an empty string.
*/
func ParseDataRow(m *InputMessage) ([]string, error) {
	if m.Type() != DataRow {
		return nil, errors.New("Message type is not Data Row")
	}

	numFields, err := m.ReadInt16()
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, numFields)
	for i := 0; i < int(numFields); i++ {
		l, err := m.ReadInt32()
		if err != nil {
			return nil, err
		}
		if l <= 0 {
			fields = append(fields, "")
			continue
		}
		buf, err := m.ReadBytes(int(l))
		if err != nil {
			return nil, err
		}
		fields = append(fields, string(buf))
	}
	return fields, nil
}

func ParseCommandComplete(m *InputMessage) (string, error) {
	if m.Type() != CommandComplete {
		return "", errors.New("Message type is not Command Complete")
	}
	return m.ReadString()
}
