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

	"github.com/pkg/errors"
)

/*
ErrorKind classifies a failure to decode a pgoutput message. Every kind is
fatal to a replication session.
*/
type ErrorKind int

// Kinds of decoding errors.
const (
	TruncatedMessage ErrorKind = iota + 1
	UnknownMessageTag
	UnknownColumnKind
	RelationNotFound
	ColumnCountMismatch
	ProtocolViolation
)

func (k ErrorKind) String() string {
	switch k {
	case TruncatedMessage:
		return "TruncatedMessage"
	case UnknownMessageTag:
		return "UnknownMessageTag"
	case UnknownColumnKind:
		return "UnknownColumnKind"
	case RelationNotFound:
		return "RelationNotFound"
	case ColumnCountMismatch:
		return "ColumnCountMismatch"
	case ProtocolViolation:
		return "ProtocolViolation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

/*
A DecodeError is returned by everything in this package that reads the wire.
Offset is the position in the payload where the problem was detected.
*/
type DecodeError struct {
	Kind   ErrorKind
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	msg := e.Kind.String()
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

/*
Is lets errors.Is match a DecodeError against one of the sentinel errors
below by kind.
*/
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Offset == -1
}

// Sentinels for use with errors.Is.
var (
	ErrTruncatedMessage    = &DecodeError{Kind: TruncatedMessage, Offset: -1}
	ErrUnknownMessageTag   = &DecodeError{Kind: UnknownMessageTag, Offset: -1}
	ErrUnknownColumnKind   = &DecodeError{Kind: UnknownColumnKind, Offset: -1}
	ErrRelationNotFound    = &DecodeError{Kind: RelationNotFound, Offset: -1}
	ErrColumnCountMismatch = &DecodeError{Kind: ColumnCountMismatch, Offset: -1}
	ErrProtocolViolation   = &DecodeError{Kind: ProtocolViolation, Offset: -1}
)

func newError(kind ErrorKind, off int, format string, args ...interface{}) error {
	return &DecodeError{
		Kind:   kind,
		Offset: off,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func truncated(off, want, have int) error {
	return newError(TruncatedMessage, off, "need %d bytes, have %d", want, have)
}

/*
KindOf returns the ErrorKind carried by err, or zero if err is not a
DecodeError.
*/
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
