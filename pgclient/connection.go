package pgclient

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	protocolVersion = (3 << 16)
	maxMessageLen   = 1 << 30
)

/*
ErrTimeout is returned by ReadMessageTimeout when no message started to
arrive in time.
*/
var ErrTimeout = errors.New("timed out waiting for a message")

/*
A PgConnection represents a connection to the database.
*/
type PgConnection struct {
	conn net.Conn
	rdr  *bufio.Reader
}

/*
Connect to the database.

The connect string works the same way as "psql":

postgres://[user[:password]@]hostname[:port]/[database]?param=val&param=val

Add "replication=database" to get a connection that accepts replication
commands.
*/
func Connect(connect string) (*PgConnection, error) {
	ci, err := parseConnectString(connect)
	if err != nil {
		return nil, err
	}
	if ci.ssl {
		return nil, errors.New("SSL connections are not supported")
	}

	startup := NewStartupMessage()
	startup.WriteInt32(protocolVersion)
	startup.WriteString("user")
	startup.WriteString(ci.user)
	startup.WriteString("database")
	startup.WriteString(ci.database)
	for k, v := range ci.options {
		startup.WriteString(k)
		startup.WriteString(v)
	}
	startup.WriteString("")

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ci.host, ci.port), ci.connectTimeout)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	c := &PgConnection{
		conn: conn,
		rdr:  bufio.NewReader(conn),
	}

	err = c.WriteMessage(startup)
	if err != nil {
		return nil, err
	}

	// Loop here for challenge-response
	authDone := false
	for !authDone {
		im, err := c.ReadMessage()
		if err != nil {
			return nil, err
		}

		if im.Type() == ErrorResponse {
			return nil, ParseError(im)
		} else if im.Type() != AuthenticationResponse {
			return nil, fmt.Errorf("Invalid response from server: %s", im.Type())
		}

		authResp, err := im.ReadInt32()
		if err != nil {
			return nil, err
		}
		switch authResp {
		case 0:
			authDone = true
		case 3:
			log.Debug("Sending cleartext password")
			pm := NewOutputMessage(PasswordMessage)
			pm.WriteString(ci.creds)
			if err = c.WriteMessage(pm); err != nil {
				return nil, err
			}
		case 5:
			log.Debug("Sending MD5 password")
			salt, err := im.ReadBytes(4)
			if err != nil {
				return nil, err
			}
			pm := NewOutputMessage(PasswordMessage)
			pm.WriteString(passwordMD5(ci.user, ci.creds, salt))
			if err = c.WriteMessage(pm); err != nil {
				return nil, err
			}
		case 10:
			return nil, errors.New("SCRAM authentication is not supported: use md5 or trust for the replication user")
		default:
			return nil, fmt.Errorf("Unsupported authentication method: %d", authResp)
		}
	}

	// Loop to wait for "ready" status
	for {
		im, err := c.ReadMessage()
		if err != nil {
			return nil, err
		}

		switch im.Type() {
		case BackEndKeyData, ParameterStatus:
			// Nothing to keep
		case NoticeResponse:
			msg, _ := ParseNotice(im)
			log.Info(msg)
		case ErrorResponse:
			return nil, ParseError(im)
		case ReadyForQuery:
			success = true
			return c, nil
		default:
			return nil, fmt.Errorf("Invalid database response %s", im.Type())
		}
	}
}

/*
Close sends a Terminate message and closes the socket.
*/
func (c *PgConnection) Close() {
	if c.conn != nil {
		c.WriteMessage(NewOutputMessage(Terminate))
		log.Debug("Closing TCP connection")
		c.conn.Close()
		c.conn = nil
	}
}

/*
WriteMessage sends the specified message to the server, and does not wait
to see what comes back.
*/
func (c *PgConnection) WriteMessage(m *OutputMessage) error {
	if c.conn == nil {
		return errors.New("connection is closed")
	}
	buf := m.Encode()
	log.Debugf("Sending message type %s length %d", PgOutputType(m.Type()), len(buf))
	_, err := c.conn.Write(buf)
	return err
}

/*
ReadMessage reads a single message from the socket, and decodes its type byte
and length.
*/
func (c *PgConnection) ReadMessage() (*InputMessage, error) {
	if c.conn == nil {
		return nil, errors.New("connection is closed")
	}
	return readMessage(c.rdr, false)
}

/*
ReadMessageTimeout is like ReadMessage, but returns ErrTimeout if the first
byte of a message does not arrive within "timeout". Once a message has
started, the rest of it is read without a deadline so that we never lose
our place in the stream.
*/
func (c *PgConnection) ReadMessageTimeout(timeout time.Duration) (*InputMessage, error) {
	if c.conn == nil {
		return nil, errors.New("connection is closed")
	}
	if c.rdr.Buffered() == 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		_, err := c.rdr.Peek(1)
		c.conn.SetReadDeadline(time.Time{})
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, err
		}
	}
	return c.ReadMessage()
}

func readMessage(r io.Reader, isStartup bool) (*InputMessage, error) {
	hdrLen := 5
	if isStartup {
		hdrLen = 4
	}
	hdr := make([]byte, hdrLen)
	_, err := io.ReadFull(r, hdr)
	if err != nil {
		return nil, err
	}

	var msgType PgInputType
	if !isStartup {
		msgType = PgInputType(hdr[0])
	}
	msgLen := int32(networkByteOrder.Uint32(hdr[hdrLen-4:]))
	if msgLen < 4 || msgLen > maxMessageLen {
		return nil, fmt.Errorf("Invalid message length %d", msgLen)
	}

	bodBuf := make([]byte, msgLen-4)
	_, err = io.ReadFull(r, bodBuf)
	if err != nil {
		return nil, err
	}
	return NewInputMessage(msgType, bodBuf), nil
}

/*
passwordMD5 generates an MD5 password using the same algorithm
as Postgres.
*/
func passwordMD5(user, pass string, salt []byte) string {
	up := pass + user
	md1 := md5.Sum([]byte(up))
	md1S := hex.EncodeToString(md1[:]) + string(salt)
	md2 := md5.Sum([]byte(md1S))
	return "md5" + hex.EncodeToString(md2[:])
}
