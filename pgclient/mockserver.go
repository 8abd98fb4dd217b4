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

package pgclient

import (
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	mockUserName     = "mock"
	mockDatabaseName = "turtle"
	mockSystemID     = "7301234567890123456"
	mockXLogPos      = "0/1000000"
	queueSize        = 1024
)

var (
	slotNameExp = regexp.MustCompile(`SLOT\s+"?([^"\s]+)"?`)
	dropSlotExp = regexp.MustCompile(`pg_drop_replication_slot\('([^']+)'\)`)
)

/*
A MockServer is a server that implements enough of the Postgres wire
protocol to test a logical replication client. It answers IDENTIFY_SYSTEM,
creates and drops slots, and after START_REPLICATION it streams whatever
is passed to Send as CopyData, while collecting what the client sends back.
*/
type MockServer struct {
	listener net.Listener
	latch    sync.Mutex
	slots    map[string]bool
	wal      chan []byte
	feedback chan []byte
}

/*
NewMockServer starts a new server in the current process, listening on the
specified port. Use port 0 to pick any free port.
*/
func NewMockServer(port int) (s *MockServer, err error) {
	var listener net.Listener
	listener, err = net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: port,
	})
	if err != nil {
		return
	}

	s = &MockServer{
		listener: listener,
		slots:    make(map[string]bool),
		wal:      make(chan []byte, queueSize),
		feedback: make(chan []byte, queueSize),
	}
	go s.acceptLoop()

	return
}

/*
Address returns the listen address in host:port format.
*/
func (m *MockServer) Address() string {
	return m.listener.Addr().String()
}

/*
URL returns a connect string for this server.
*/
func (m *MockServer) URL() string {
	return fmt.Sprintf("postgres://%s@%s/%s", mockUserName, m.Address(), mockDatabaseName)
}

/*
Stop stops the server listening for new connections.
*/
func (m *MockServer) Stop() {
	m.listener.Close()
}

/*
Send queues a CopyData payload for the replication stream.
*/
func (m *MockServer) Send(data []byte) {
	m.wal <- data
}

/*
Feedback returns the CopyData payloads that clients sent while streaming.
*/
func (m *MockServer) Feedback() <-chan []byte {
	return m.feedback
}

func (m *MockServer) CreateSlot(name string) {
	m.latch.Lock()
	m.slots[name] = true
	m.latch.Unlock()
}

func (m *MockServer) Slots() []string {
	m.latch.Lock()
	defer m.latch.Unlock()
	var names []string
	for n := range m.slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *MockServer) hasSlot(name string) bool {
	m.latch.Lock()
	defer m.latch.Unlock()
	return m.slots[name]
}

func (m *MockServer) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.connectLoop(&mockConn{c: conn})
	}
}

type mockConn struct {
	c      net.Conn
	wlatch sync.Mutex
}

func (mc *mockConn) write(out *OutputMessage) error {
	mc.wlatch.Lock()
	defer mc.wlatch.Unlock()
	_, err := mc.c.Write(out.Encode())
	return err
}

func (m *MockServer) connectLoop(mc *mockConn) {
	defer mc.c.Close()

	startup, err := readMessage(mc.c, true)
	if err != nil {
		log.Errorf("Error reading startup message: %s", err)
		return
	}

	protoVersion, err := startup.ReadInt32()
	if err != nil {
		log.Error("Can't read protocol version")
		return
	}
	if protoVersion != protocolVersion {
		sendError(mc, "08P01", fmt.Sprintf("Invalid protocol version %d", protoVersion))
		return
	}

	for {
		paramName, err := startup.ReadString()
		if err != nil || paramName == "" {
			break
		}
		paramVal, err := startup.ReadString()
		if err != nil {
			return
		}

		if paramName == "user" && paramVal != mockUserName {
			sendError(mc, "28000", fmt.Sprintf("Invalid user name %s", paramVal))
			return
		}
		if paramName == "database" && paramVal != mockDatabaseName {
			sendError(mc, "3D000", fmt.Sprintf("Invalid database name %s", paramVal))
			return
		}
	}

	out := NewServerMessage(AuthenticationResponse)
	out.WriteInt32(0)
	mc.write(out)
	sendReady(mc)

	m.readLoop(mc)
}

func (m *MockServer) readLoop(mc *mockConn) {
	for {
		msg, err := readMessage(mc.c, false)
		if err != nil {
			return
		}

		switch PgOutputType(msg.Type()) {
		case Query:
			sql, _ := msg.ReadString()
			if err = m.handleQuery(mc, sql); err != nil {
				return
			}
		case Terminate:
			return
		default:
			sendError(mc, "08P01", fmt.Sprintf("Invalid message %s", PgOutputType(msg.Type())))
			sendReady(mc)
		}
	}
}

func (m *MockServer) handleQuery(mc *mockConn, sql string) error {
	log.Debugf("Mock server query: %s", sql)
	switch {
	case strings.HasPrefix(sql, "IDENTIFY_SYSTEM"):
		sendRows(mc, []string{"systemid", "timeline", "xlogpos", "dbname"},
			[]string{mockSystemID, "1", mockXLogPos, mockDatabaseName}, "IDENTIFY_SYSTEM")

	case strings.HasPrefix(sql, "CREATE_REPLICATION_SLOT"):
		name := slotName(sql)
		if m.hasSlot(name) {
			sendError(mc, DuplicateObject, fmt.Sprintf("replication slot \"%s\" already exists", name))
		} else {
			m.CreateSlot(name)
			sendRows(mc, []string{"slot_name", "consistent_point", "snapshot_name", "output_plugin"},
				[]string{name, mockXLogPos, "", "pgoutput"}, "CREATE_REPLICATION_SLOT")
		}

	case strings.HasPrefix(sql, "START_REPLICATION"):
		name := slotName(sql)
		if !m.hasSlot(name) {
			sendError(mc, UndefinedObject, fmt.Sprintf("replication slot \"%s\" does not exist", name))
		} else {
			return m.stream(mc)
		}

	case dropSlotExp.MatchString(sql):
		name := dropSlotExp.FindStringSubmatch(sql)[1]
		if !m.hasSlot(name) {
			sendError(mc, UndefinedObject, fmt.Sprintf("replication slot \"%s\" does not exist", name))
		} else {
			m.latch.Lock()
			delete(m.slots, name)
			m.latch.Unlock()
			sendRows(mc, []string{"pg_drop_replication_slot"}, []string{""}, "SELECT 1")
		}

	default:
		sendError(mc, "42601", "Invalid SQL")
	}
	sendReady(mc)
	return nil
}

func slotName(sql string) string {
	match := slotNameExp.FindStringSubmatch(sql)
	if match == nil {
		return ""
	}
	return match[1]
}

/*
stream runs CopyBoth mode until the client sends CopyDone. Queued WAL is
written by a separate goroutine so that reading feedback never blocks it.
*/
func (m *MockServer) stream(mc *mockConn) error {
	out := NewServerMessage(CopyBothResponse)
	out.WriteByte(0)
	out.WriteInt16(0)
	if err := mc.write(out); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case d := <-m.wal:
				om := NewServerMessage(CopyData)
				om.WriteBytes(d)
				if mc.write(om) != nil {
					return
				}
			}
		}
	}()

	for {
		msg, err := readMessage(mc.c, false)
		if err != nil {
			return err
		}

		switch PgOutputType(msg.Type()) {
		case CopyDataOut:
			select {
			case m.feedback <- msg.ReadRemaining():
			default:
				log.Warn("Mock server feedback queue is full")
			}
		case CopyDoneOut:
			mc.write(NewServerMessage(CopyDone))
			cc := NewServerMessage(CommandComplete)
			cc.WriteString("START_REPLICATION")
			mc.write(cc)
			sendReady(mc)
			return nil
		case Terminate:
			return io.EOF
		default:
			log.Warnf("Mock server got %s while streaming", PgOutputType(msg.Type()))
		}
	}
}

func sendRows(mc *mockConn, names []string, row []string, tag string) {
	desc := NewServerMessage(RowDescription)
	desc.WriteInt16(int16(len(names)))
	for _, n := range names {
		desc.WriteString(n)
		desc.WriteInt32(0)  // Table OID
		desc.WriteInt16(0)  // Attribute number
		desc.WriteInt32(25) // text
		desc.WriteInt16(-1)
		desc.WriteInt32(-1)
		desc.WriteInt16(0)
	}
	mc.write(desc)

	dr := NewServerMessage(DataRow)
	dr.WriteInt16(int16(len(row)))
	for _, v := range row {
		dr.WriteInt32(int32(len(v)))
		dr.WriteBytes([]byte(v))
	}
	mc.write(dr)

	cc := NewServerMessage(CommandComplete)
	cc.WriteString(tag)
	mc.write(cc)
}

func sendError(mc *mockConn, code, msg string) {
	out := NewServerMessage(ErrorResponse)
	out.WriteByte('S')
	out.WriteString("ERROR")
	out.WriteByte('C')
	out.WriteString(code)
	out.WriteByte('M')
	out.WriteString(msg)
	out.WriteByte(0)
	mc.write(out)
}

func sendReady(mc *mockConn) {
	out := NewServerMessage(ReadyForQuery)
	out.WriteByte('I')
	mc.write(out)
}
