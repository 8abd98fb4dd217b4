package common

import (
	"fmt"
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
)

/*
Operation lists the types of operations on each row in a change list.
*/
type Operation int

// Operation constants. (Not using "iota" here because these IDs are persisted.)
const (
	Insert   Operation = 1
	Update   Operation = 2
	Delete   Operation = 3
	Truncate Operation = 4
)

func (o Operation) String() string {
	switch o {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Truncate:
		return "TRUNCATE"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

/*
A Row is a set of decoded column values, keyed by column name.
*/
type Row map[string]interface{}

/*
A Change is one row operation from a committed transaction. Each Change
describes how the row changed (due to an insert, delete, update, or
truncate), when it changed (LSNs and transaction IDs from Postgres), and
what changed (the new and/or old rows).
*/
type Change struct {
	// Why the row was changed
	Operation Operation `json:"operation"`
	// Qualified name of the table. Not set for a truncate.
	Table string `json:"table,omitempty"`
	// The tables that a truncate applies to
	Tables []string `json:"tables,omitempty"`
	// Sequence is the string form of CommitSequence and CommitIndex. It is
	// filled in when changes are served, and not stored.
	Sequence string `json:"sequence,omitempty"`
	// The LSN of the commit. Changes are delivered in this order.
	CommitSequence pgoutput.LSN `json:"commitSequence"`
	// The order in which the change happened within the commit, starting
	// at zero.
	CommitIndex uint32 `json:"commitIndex"`
	// The Postgres Transaction ID of the top-level transaction.
	TransactionID uint32    `json:"txid"`
	CommitTime    time.Time `json:"commitTime"`
	// True if the transaction was streamed before it committed
	Streamed        bool `json:"streamed,omitempty"`
	Cascade         bool `json:"cascade,omitempty"`
	RestartIdentity bool `json:"restartIdentity,omitempty"`
	// For an insert operation, the columns that are being inserted. For an update,
	// the new value of the columns
	NewRow Row `json:"newRow,omitempty"`
	// For an update, the old value of the columns if the server sent them.
	// For a delete, the key or the entire old row.
	OldRow Row `json:"oldRow,omitempty"`
	// Columns of NewRow whose value was an unchanged TOAST value, and so
	// is not known
	Unchanged []string `json:"unchanged,omitempty"`
}

/*
GetSequence returns the position of the change in the change list.
*/
func (c *Change) GetSequence() Sequence {
	return MakeSequence(c.CommitSequence, c.CommitIndex)
}

/*
A ChangeList represents a set of changes returned from the change API.
It contains a list of rows, and it also contains information about the list.
*/
type ChangeList struct {
	// The sequence of the oldest change that is still stored. If a client
	// asks for changes before this, it has missed some.
	FirstSequence string `json:"firstSequence"`
	// The highest sequence in the list, or in the whole database if the
	// list is empty. Use it as "since" on the next request.
	LastSequence string `json:"lastSequence"`
	// All the changes, in order of "commit sequence" and "commit index"
	Changes []Change `json:"changes"`
}
