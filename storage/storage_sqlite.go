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

package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/jonboulle/clockwork"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	driverName        = "sqlite3"
	dbFileName        = "replchecker"
	backupPagesInStep = 512
)

/*
An SQL is a handle to a database of committed changes.
*/
type SQL struct {
	baseFile        string
	db              *sql.DB
	clock           clockwork.Clock
	insert          *sql.Stmt
	readEntry       *sql.Stmt
	readRange       *sql.Stmt
	readFirst       *sql.Stmt
	readLast        *sql.Stmt
	purgeByTime     *sql.Stmt
	writeCheckpoint *sql.Stmt
	readCheckpoint  *sql.Stmt
}

/*
Open opens a SQLite database and makes it available for reads and writes.
Opened databases should be closed when done.

The "baseFile" parameter refers to the name of a directory. SQLite will
create a few files inside this directory. To create an empty database,
make sure that it is empty.
*/
func Open(baseFile string) (*SQL, error) {
	success := false

	url, err := createDBDir(baseFile)
	if err != nil {
		return nil, err
	}

	log.Infof("Opening SQLite DB at %s", url)
	db, err := sql.Open(driverName, url)
	if err != nil {
		return nil, err
	}

	defer func() {
		if !success {
			db.Close()
		}
	}()

	_, err = db.Exec(createTableSQL)
	if err != nil {
		return nil, err
	}

	stor := &SQL{
		baseFile: baseFile,
		db:       db,
		clock:    clockwork.NewRealClock(),
	}

	stor.insert, err = db.Prepare(insertSQL)
	if err == nil {
		stor.readEntry, err = db.Prepare(readEntrySQL)
	}
	if err == nil {
		stor.readRange, err = db.Prepare(readRangeSQL)
	}
	if err == nil {
		stor.readFirst, err = db.Prepare(readFirstSQL)
	}
	if err == nil {
		stor.readLast, err = db.Prepare(readLastSQL)
	}
	if err == nil {
		stor.purgeByTime, err = db.Prepare(purgeByTimeSQL)
	}
	if err == nil {
		stor.writeCheckpoint, err = db.Prepare(writeCheckpointSQL)
	}
	if err == nil {
		stor.readCheckpoint, err = db.Prepare(readCheckpointSQL)
	}
	if err != nil {
		return nil, err
	}

	success = true

	return stor, nil
}

// createDBDir ensures that "base" is a directory and returns the file name
func createDBDir(baseFile string) (string, error) {
	st, err := os.Stat(baseFile)
	if err != nil {
		err = os.Mkdir(baseFile, 0775)
		if err != nil {
			return "", err
		}
	} else if !st.IsDir() {
		return "", errors.Errorf("Database location %s is not a directory", baseFile)
	}

	return filepath.Join(baseFile, dbFileName), nil
}

/*
Close closes the database cleanly.
*/
func (s *SQL) Close() {
	log.Infof("Closed DB in %s", s.baseFile)
	s.db.Close()
}

/*
Delete deletes all the files used by the database.
*/
func (s *SQL) Delete() error {
	return os.RemoveAll(s.baseFile)
}

/*
Put writes an entry to the database indexed by lsn and index.
*/
func (s *SQL) Put(lsn pgoutput.LSN, index uint32, data []byte) error {
	_, err := s.insert.Exec(int64(lsn), index, s.now(), data)
	return err
}

/*
PutBatch writes a whole bunch.
*/
func (s *SQL) PutBatch(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = s.putEntries(tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

/*
Commit writes the entries of one transaction together with the position
that the named slot has reached. Either all of it is written or none is,
so after a crash the checkpoint never points past the stored changes.
*/
func (s *SQL) Commit(slot string, lsn pgoutput.LSN, entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = s.putEntries(tx, entries); err != nil {
		return err
	}

	cs := tx.Stmt(s.writeCheckpoint)
	defer cs.Close()
	if _, err = cs.Exec(slot, int64(lsn), s.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) putEntries(tx *sql.Tx, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	is := tx.Stmt(s.insert)
	defer is.Close()

	ts := s.now()
	for _, entry := range entries {
		_, err := is.Exec(int64(entry.LSN), entry.Index, ts, entry.Data)
		if err != nil {
			return err
		}
	}
	return nil
}

/*
GetCheckpoint returns the position last committed for the named slot, or
zero if nothing has been committed.
*/
func (s *SQL) GetCheckpoint(slot string) (pgoutput.LSN, error) {
	var lsn int64
	err := s.readCheckpoint.QueryRow(slot).Scan(&lsn)
	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return pgoutput.LSN(lsn), nil
}

/*
Get returns what was written by Put. It's mainly used for testing.
*/
func (s *SQL) Get(lsn pgoutput.LSN, index uint32) ([]byte, error) {
	var data []byte
	err := s.readEntry.QueryRow(int64(lsn), index).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err == nil {
		return data, nil
	}
	return nil, err
}

/*
Scan returns entries in sequence number order.
It also returns the sequences of the first and last records in the DB.
The first entry returned will be the first entry that matches the specified
startLSN and startIndex. No more than "limit" entries will be returned, and
entries for which "filter" returns false are skipped and not counted.
To retrieve the very next entry after an entry, simply increment the index
by 1. This method uses a transaction to guarantee consistency even if data
is being inserted to the database.
*/
func (s *SQL) Scan(
	startLSN pgoutput.LSN, startIndex uint32,
	limit int, filter func([]byte) bool) (final [][]byte, firstSeq common.Sequence, lastSeq common.Sequence, err error) {

	// By doing this in a transaction we should get snapshot-level consistency
	var tx *sql.Tx
	tx, err = s.db.Begin()
	if err != nil {
		return
	}
	defer tx.Commit()

	firstSeq, lastSeq, err = s.readLimits(tx)
	if err != nil {
		return
	}

	rrs := tx.Stmt(s.readRange)
	defer rrs.Close()

	var rows *sql.Rows
	rows, err = rrs.Query(int64(startLSN), int64(startLSN), startIndex)
	if err != nil {
		return
	}
	defer rows.Close()

	for len(final) < limit && rows.Next() {
		var lsn int64
		var index uint32
		var data []byte
		err = rows.Scan(&lsn, &index, &data)
		if err != nil {
			return
		}
		if filter == nil || filter(data) {
			final = append(final, data)
		}
	}
	err = rows.Err()
	return
}

/*
GetLimits returns the sequences of the first and last records in the DB.
Both are zero if the DB is empty.
*/
func (s *SQL) GetLimits() (firstSeq, lastSeq common.Sequence, err error) {
	var tx *sql.Tx
	tx, err = s.db.Begin()
	if err != nil {
		return
	}
	defer tx.Commit()
	return s.readLimits(tx)
}

/*
Purge removes all entries older than the specified time.
*/
func (s *SQL) Purge(oldest time.Time) (uint64, error) {
	res, err := s.purgeByTime.Exec(oldest.UnixNano())
	if err != nil {
		return 0, err
	}
	ra, _ := res.RowsAffected()
	return uint64(ra), nil
}

/*
Backup creates a backup of the current database in the specified directory,
which must not exist yet, and sends results using the supplied channel.
*/
func (s *SQL) Backup(dest string) <-chan BackupProgress {
	pc := make(chan BackupProgress, 1000)
	go s.runBackup(dest, pc)
	return pc
}

func (s *SQL) runBackup(dest string, pc chan BackupProgress) {
	if _, err := os.Stat(dest); err == nil {
		returnBackupError(pc, errors.Errorf("Backup destination %s already exists", dest))
		return
	}

	srcConn, err := s.openRawConnection(s.baseFile)
	if err != nil {
		returnBackupError(pc, err)
		return
	}
	defer srcConn.Close()

	dstConn, err := s.openRawConnection(dest)
	if err != nil {
		returnBackupError(pc, err)
		return
	}
	defer dstConn.Close()

	backup, err := dstConn.Backup("main", srcConn, "main")
	if err != nil {
		returnBackupError(pc, err)
		return
	}
	defer backup.Close()

	done := false
	for !done {
		done, err = backup.Step(backupPagesInStep)
		if err != nil {
			done = true
		}
		pc <- BackupProgress{
			PagesRemaining: backup.Remaining(),
			Error:          err,
			Done:           done,
		}
	}
	backup.Finish()
}

func returnBackupError(pc chan BackupProgress, err error) {
	pc <- BackupProgress{
		Done:  true,
		Error: err,
	}
}

func (s *SQL) openRawConnection(baseFile string) (*sqlite3.SQLiteConn, error) {
	url, err := createDBDir(baseFile)
	if err != nil {
		return nil, err
	}

	sqlConn, err := s.db.Driver().Open(url)
	if err != nil {
		return nil, err
	}

	return sqlConn.(*sqlite3.SQLiteConn), nil
}

func (s *SQL) readLimits(tx *sql.Tx) (firstSeq, lastSeq common.Sequence, err error) {
	rfs := tx.Stmt(s.readFirst)
	defer rfs.Close()

	var lsn int64
	var ix uint32
	err = rfs.QueryRow().Scan(&lsn, &ix)
	if err == sql.ErrNoRows {
		err = nil
		return
	} else if err != nil {
		return
	}
	firstSeq = common.MakeSequence(pgoutput.LSN(lsn), ix)

	rls := tx.Stmt(s.readLast)
	defer rls.Close()

	err = rls.QueryRow().Scan(&lsn, &ix)
	if err == sql.ErrNoRows {
		err = nil
		lastSeq = firstSeq
		return
	} else if err != nil {
		return
	}
	lastSeq = common.MakeSequence(pgoutput.LSN(lsn), ix)
	return
}

func (s *SQL) now() int64 {
	return s.clock.Now().UnixNano()
}
