package pgclient

import "fmt"

/*
PgOutputType represents the type of an output message to the server.
*/
type PgOutputType byte

// Constants representing output message types.
const (
	Query           PgOutputType = 'Q'
	Terminate       PgOutputType = 'X'
	CopyDoneOut     PgOutputType = 'c'
	CopyDataOut     PgOutputType = 'd'
	PasswordMessage PgOutputType = 'p'
)

func (t PgOutputType) String() string {
	switch t {
	case Query:
		return "Query"
	case Terminate:
		return "Terminate"
	case CopyDoneOut:
		return "CopyDone"
	case CopyDataOut:
		return "CopyData"
	case PasswordMessage:
		return "PasswordMessage"
	default:
		return fmt.Sprintf("PgOutputType(%d)", byte(t))
	}
}

/*
PgInputType is the one-byte type of a postgres response from the server.
*/
type PgInputType byte

// Various types of messages that represent one-byte message types.
const (
	ErrorResponse          PgInputType = 'E'
	CommandComplete        PgInputType = 'C'
	DataRow                PgInputType = 'D'
	CopyInResponse         PgInputType = 'G'
	CopyOutResponse        PgInputType = 'H'
	EmptyQueryResponse     PgInputType = 'I'
	BackEndKeyData         PgInputType = 'K'
	NoticeResponse         PgInputType = 'N'
	AuthenticationResponse PgInputType = 'R'
	ParameterStatus        PgInputType = 'S'
	RowDescription         PgInputType = 'T'
	CopyBothResponse       PgInputType = 'W'
	ReadyForQuery          PgInputType = 'Z'
	CopyDone               PgInputType = 'c'
	CopyData               PgInputType = 'd'
)

func (t PgInputType) String() string {
	switch t {
	case ErrorResponse:
		return "ErrorResponse"
	case CommandComplete:
		return "CommandComplete"
	case DataRow:
		return "DataRow"
	case CopyInResponse:
		return "CopyInResponse"
	case CopyOutResponse:
		return "CopyOutResponse"
	case EmptyQueryResponse:
		return "EmptyQueryResponse"
	case BackEndKeyData:
		return "BackEndKeyData"
	case NoticeResponse:
		return "NoticeResponse"
	case AuthenticationResponse:
		return "AuthenticationResponse"
	case ParameterStatus:
		return "ParameterStatus"
	case RowDescription:
		return "RowDescription"
	case CopyBothResponse:
		return "CopyBothResponse"
	case ReadyForQuery:
		return "ReadyForQuery"
	case CopyDone:
		return "CopyDone"
	case CopyData:
		return "CopyData"
	default:
		return fmt.Sprintf("PgInputType(%d)", byte(t))
	}
}
