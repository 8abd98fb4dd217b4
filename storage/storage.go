package storage

import (
	"github.com/fkfk000/replication-checker/pgoutput"
)

/*
An Entry is a single stored change, keyed by the LSN of the commit and its
index within the commit.
*/
type Entry struct {
	LSN   pgoutput.LSN
	Index uint32
	Data  []byte
}

/*
BackupProgress reports the progress of a backup. The last one sent on the
channel has Done set.
*/
type BackupProgress struct {
	PagesRemaining int
	Error          error
	Done           bool
}
