package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/fkfk000/replication-checker/pgclient"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ProtocolVersion is the pgoutput protocol version that we ask for.
const ProtocolVersion = 3

/*
PgTransport is a Transport and Bootstrapper over a real (or mock) Postgres
replication connection.
*/
type PgTransport struct {
	conn        *pgclient.PgConnection
	slot        string
	publication string
	createSlot  bool
}

/*
Dial opens a replication connection. "connect" is a postgres URL to be
passed to the "pgclient" module. "slot" is the replication slot to read
from, and it is created if "createSlot" is set and it does not exist.
*/
func Dial(connect, slot, publication string, createSlot bool) (*PgTransport, error) {
	conn, err := pgclient.Connect(withReplicationParam(connect))
	if err != nil {
		return nil, err
	}
	return &PgTransport{
		conn:        conn,
		slot:        slot,
		publication: publication,
		createSlot:  createSlot,
	}, nil
}

func withReplicationParam(connect string) string {
	if strings.Contains(connect, "replication=") {
		return connect
	}
	if strings.Contains(connect, "?") {
		return connect + "&replication=database"
	}
	return connect + "?replication=database"
}

func (t *PgTransport) IdentifySystem() (SystemInfo, error) {
	id, err := t.conn.IdentifySystem()
	if err != nil {
		return SystemInfo{}, err
	}
	pos, err := pgoutput.ParseLSN(id.XLogPos)
	if err != nil {
		return SystemInfo{}, errors.Wrap(err, "xlogpos")
	}
	return SystemInfo{
		SystemID: id.SystemID,
		Timeline: id.Timeline,
		XLogPos:  pos,
		Database: id.DBName,
	}, nil
}

/*
CreateSlot creates the slot if we were asked to. A slot that already exists
is fine.
*/
func (t *PgTransport) CreateSlot() error {
	if !t.createSlot {
		return nil
	}
	log.Debugf("Creating replication slot %s", t.slot)
	info, err := t.conn.CreateLogicalSlot(t.slot, "pgoutput")
	if pgclient.IsPgError(err, pgclient.DuplicateObject) {
		log.Infof("Replication slot %s already exists", t.slot)
		return nil
	}
	if err == nil {
		log.Infof("Created replication slot %s at %s", info.Name, info.ConsistentPoint)
	}
	return err
}

func (t *PgTransport) StartReplication(start pgoutput.LSN) error {
	cmd := fmt.Sprintf(
		"START_REPLICATION SLOT %s LOGICAL %s (proto_version '%d', streaming 'on', publication_names %s)",
		pgclient.QuoteIdent(t.slot), start, ProtocolVersion, pgclient.QuoteLiteral(pgclient.QuoteIdent(t.publication)))
	_, err := t.conn.StartCopyBoth(cmd)
	if err == nil {
		log.Infof("Replication started on slot %s at %s", t.slot, start)
	}
	return err
}

func (t *PgTransport) Send(msg []byte) error {
	return t.conn.SendCopyData(msg)
}

func (t *PgTransport) Receive(timeout time.Duration) ([]byte, error) {
	data, err := t.conn.ReceiveCopyData(timeout)
	if err == pgclient.ErrTimeout {
		return nil, ErrReceiveTimeout
	}
	return data, err
}

/*
Close ends the copy and closes the connection.
*/
func (t *PgTransport) Close() error {
	t.conn.SendCopyDone()
	t.conn.Close()
	return nil
}

/*
DropSlot deletes a logical replication slot.
"connect" is a postgres URL to be passed to the "pgclient" module.
*/
func DropSlot(connect, slot string) error {
	conn, err := pgclient.Connect(connect)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.DropSlot(slot)
}
