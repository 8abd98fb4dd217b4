package pgclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

/*
A ColumnInfo describes a single column in a command result.
*/
type ColumnInfo struct {
	Name   string
	Type   int32
	Binary bool
}

/*
A Result is everything that a command sent back before ReadyForQuery.
Values are in text format. A null value is an empty string.
*/
type Result struct {
	Columns []ColumnInfo
	Rows    [][]string
	// From CommandComplete, like "SELECT 1" or "CREATE_REPLICATION_SLOT"
	Tag string
}

/*
Value returns the value of the named column in row "i". The second return
is false if there is no such row or column.
*/
func (r *Result) Value(i int, name string) (string, bool) {
	if i < 0 || i >= len(r.Rows) {
		return "", false
	}
	for c, col := range r.Columns {
		if col.Name == name && c < len(r.Rows[i]) {
			return r.Rows[i][c], true
		}
	}
	return "", false
}

func (r *Result) single(names ...string) ([]string, error) {
	if len(r.Rows) != 1 {
		return nil, fmt.Errorf("Expected one row from %s, got %d", r.Tag, len(r.Rows))
	}
	vals := make([]string, len(names))
	for i, n := range names {
		v, ok := r.Value(0, n)
		if !ok {
			return nil, fmt.Errorf("Column %s missing from %s result", n, r.Tag)
		}
		vals[i] = v
	}
	return vals, nil
}

/*
Exec runs a command using the simple query protocol. It works for SQL and
for the replication commands that return rows, but not for those that
start a COPY. An ErrorResponse from the server is returned as a *PgError
once the server is ready for the next command.
*/
func (c *PgConnection) Exec(cmd string) (*Result, error) {
	log.Debugf("Exec: %s", cmd)
	qm := NewOutputMessage(Query)
	qm.WriteString(cmd)
	if err := c.WriteMessage(qm); err != nil {
		return nil, err
	}

	res := &Result{}
	var cmdErr error

	for {
		im, err := c.ReadMessage()
		if err != nil {
			return nil, err
		}

		switch im.Type() {
		case CommandComplete:
			if res.Tag, err = ParseCommandComplete(im); err != nil {
				cmdErr = err
			}
		case CopyInResponse, CopyOutResponse, CopyBothResponse:
			cmdErr = errors.New("Exec cannot run a command that starts a COPY")
		case RowDescription:
			if res.Columns, err = ParseRowDescription(im); err != nil {
				cmdErr = err
			}
		case DataRow:
			row, err := ParseDataRow(im)
			if err != nil {
				cmdErr = err
			} else {
				res.Rows = append(res.Rows, row)
			}
		case EmptyQueryResponse:
		case NoticeResponse:
			if msg, err := ParseNotice(im); err == nil {
				log.Info(msg)
			}
		case ErrorResponse:
			// Keep reading until ReadyForQuery so the connection stays usable
			cmdErr = ParseError(im)
		case ReadyForQuery:
			if cmdErr != nil {
				return nil, cmdErr
			}
			return res, nil
		default:
			cmdErr = fmt.Errorf("Invalid server response %s", im.Type())
		}
	}
}

/*
SystemIdentity is the row that IDENTIFY_SYSTEM returns. XLogPos is in the
server's "X/X" form. DBName is empty unless the connection was made with
"replication=database".
*/
type SystemIdentity struct {
	SystemID string
	Timeline int
	XLogPos  string
	DBName   string
}

/*
IdentifySystem runs IDENTIFY_SYSTEM on a replication connection.
*/
func (c *PgConnection) IdentifySystem() (SystemIdentity, error) {
	res, err := c.Exec("IDENTIFY_SYSTEM")
	if err != nil {
		return SystemIdentity{}, err
	}
	vals, err := res.single("systemid", "timeline", "xlogpos", "dbname")
	if err != nil {
		return SystemIdentity{}, err
	}
	tli, err := strconv.Atoi(vals[1])
	if err != nil {
		return SystemIdentity{}, fmt.Errorf("Invalid timeline %q", vals[1])
	}
	return SystemIdentity{
		SystemID: vals[0],
		Timeline: tli,
		XLogPos:  vals[2],
		DBName:   vals[3],
	}, nil
}

/*
SlotInfo is the row that CREATE_REPLICATION_SLOT returns.
*/
type SlotInfo struct {
	Name            string
	ConsistentPoint string
	SnapshotName    string
	OutputPlugin    string
}

/*
CreateLogicalSlot creates a logical replication slot that uses "plugin",
without exporting a snapshot. A slot that already exists is an error with
code DuplicateObject.
*/
func (c *PgConnection) CreateLogicalSlot(name, plugin string) (SlotInfo, error) {
	res, err := c.Exec(fmt.Sprintf("CREATE_REPLICATION_SLOT %s LOGICAL %s (SNAPSHOT 'nothing')",
		QuoteIdent(name), plugin))
	if err != nil {
		return SlotInfo{}, err
	}
	vals, err := res.single("slot_name", "consistent_point", "snapshot_name", "output_plugin")
	if err != nil {
		return SlotInfo{}, err
	}
	return SlotInfo{
		Name:            vals[0],
		ConsistentPoint: vals[1],
		SnapshotName:    vals[2],
		OutputPlugin:    vals[3],
	}, nil
}

/*
DropSlot drops a replication slot. It must be run on a connection that is
not streaming from the slot.
*/
func (c *PgConnection) DropSlot(name string) error {
	_, err := c.Exec(fmt.Sprintf("select pg_drop_replication_slot(%s)", QuoteLiteral(name)))
	return err
}

// QuoteIdent quotes an identifier such as a slot or publication name.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func QuoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
