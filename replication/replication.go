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

package replication

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultFeedbackInterval is how often we report our position to the server
// when nothing else has caused us to.
const DefaultFeedbackInterval = time.Second

/*
State is the lifecycle state of a Session.
*/
type State int

// Session states, in the order they are entered.
const (
	StateConnecting State = iota
	StateIdentified
	StateSlotReady
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateIdentified:
		return "Identified"
	case StateSlotReady:
		return "SlotReady"
	case StateStreaming:
		return "Streaming"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

/*
ErrReceiveTimeout is returned by Transport.Receive when nothing arrived
before the timeout.
*/
var ErrReceiveTimeout = errors.New("receive timed out")

/*
ErrTransport matches every TransportError with errors.Is.
*/
var ErrTransport = errors.New("transport error")

/*
A TransportError means that we could not talk to the server.
*/
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

/*
A Transport carries the CopyData payloads of a replication connection that
has already been started, or that a Bootstrapper will start.
*/
type Transport interface {
	// Send sends one CopyData payload.
	Send(msg []byte) error
	// Receive waits up to "timeout" for the next CopyData payload and returns
	// ErrReceiveTimeout if there was none.
	Receive(timeout time.Duration) ([]byte, error)
}

/*
SystemInfo is the result of IDENTIFY_SYSTEM.
*/
type SystemInfo struct {
	SystemID string       `json:"systemId"`
	Timeline int          `json:"timeline"`
	XLogPos  pgoutput.LSN `json:"xlogPos"`
	Database string       `json:"database"`
}

/*
A Bootstrapper is a Transport that needs to be told to identify the server,
create the slot and start replication before streaming.
*/
type Bootstrapper interface {
	IdentifySystem() (SystemInfo, error)
	CreateSlot() error
	StartReplication(start pgoutput.LSN) error
}

/*
A Sink receives every decoded event, in the order that the server sent
them. An error terminates the session.
*/
type Sink interface {
	Handle(ev pgoutput.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev pgoutput.Event) error

func (f SinkFunc) Handle(ev pgoutput.Event) error {
	return f(ev)
}

/*
A FlushTracker knows how far the events handed to a Sink have been made
durable. When a Session has one, it reports that position as "flush" and
"apply" rather than the position received.
*/
type FlushTracker interface {
	FlushedLSN() pgoutput.LSN
}

/*
Status is a point-in-time view of a Session.
*/
type Status struct {
	State        string       `json:"state"`
	Received     pgoutput.LSN `json:"received"`
	Flushed      pgoutput.LSN `json:"flushed"`
	LastFeedback time.Time    `json:"lastFeedback"`
	Relations    int          `json:"relations"`
	Error        string       `json:"error,omitempty"`
}

// An Option configures a Session.
type Option func(*Session)

func WithClock(c clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithFeedbackInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

/*
WithStartLSN sets the position passed to START_REPLICATION. It is also
treated as already received.
*/
func WithStartLSN(l pgoutput.LSN) Option {
	return func(s *Session) {
		s.startLSN = l
	}
}

func WithFlushTracker(t FlushTracker) Option {
	return func(s *Session) {
		s.tracker = t
	}
}

/*
WithReplyOnRequest makes the session answer a keepalive only when the server
asks for a reply. By default every keepalive is answered.
*/
func WithReplyOnRequest(b bool) Option {
	return func(s *Session) {
		s.replyOnRequest = b
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

/*
WithCatalog shares a relation catalog with the session's decoder.
*/
func WithCatalog(c *pgoutput.Catalog) Option {
	return func(s *Session) {
		s.catalog = c
	}
}

/*
A Session consumes one replication stream. It decodes each message, hands
it to the Sink, and keeps the server informed of our position. Run must
only be called once.
*/
type Session struct {
	transport      Transport
	sink           Sink
	catalog        *pgoutput.Catalog
	decoder        *pgoutput.Decoder
	clock          clockwork.Clock
	interval       time.Duration
	startLSN       pgoutput.LSN
	tracker        FlushTracker
	replyOnRequest bool
	metrics        *Metrics

	// Written only by the goroutine in Run. The latch is for Status.
	latch        sync.Mutex
	state        State
	received     pgoutput.LSN
	flushed      pgoutput.LSN
	lastFeedback time.Time
	err          error
}

/*
NewSession creates a session that reads from "t" and delivers to "sink".
*/
func NewSession(t Transport, sink Sink, opts ...Option) *Session {
	s := &Session{
		transport: t,
		sink:      sink,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultFeedbackInterval,
	}
	for _, o := range opts {
		o(s)
	}
	if s.sink == nil {
		s.sink = SinkFunc(func(pgoutput.Event) error { return nil })
	}
	if s.catalog == nil {
		s.catalog = pgoutput.NewCatalog()
	}
	s.decoder = pgoutput.NewDecoder(s.catalog)
	s.received = s.startLSN
	return s
}

func (s *Session) Catalog() *pgoutput.Catalog {
	return s.catalog
}

func (s *Session) State() State {
	s.latch.Lock()
	defer s.latch.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	s.latch.Lock()
	st := Status{
		State:        s.state.String(),
		Received:     s.received,
		Flushed:      s.flushed,
		LastFeedback: s.lastFeedback,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	s.latch.Unlock()
	st.Relations = s.catalog.Len()
	return st
}

/*
Run starts replication and processes messages until the context is
cancelled or something fails. On cancellation it makes one last attempt to
report our position and returns the context's error. Any other error is
fatal: decode errors are *pgoutput.DecodeError, and problems talking to the
server are *TransportError. In every case the session ends Terminated and
the transport is closed if it is an io.Closer.
*/
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		s.terminate(err)
	}()

	if err = s.bootstrap(); err != nil {
		return err
	}

	s.markFeedback()
	for {
		if ctx.Err() != nil {
			if ferr := s.sendFeedback(); ferr != nil {
				log.Warnf("Final feedback failed: %s", ferr)
			}
			return ctx.Err()
		}

		if s.clock.Since(s.lastFeedback) >= s.interval {
			if err = s.feedback(); err != nil {
				return err
			}
		}

		wait := s.interval - s.clock.Since(s.lastFeedback)
		if wait <= 0 {
			continue
		}

		msg, rerr := s.transport.Receive(wait)
		if errors.Is(rerr, ErrReceiveTimeout) {
			continue
		}
		if rerr != nil {
			return &TransportError{Op: "receive", Err: rerr}
		}

		if err = s.handle(msg); err != nil {
			return err
		}
	}
}

func (s *Session) bootstrap() error {
	s.setState(StateConnecting)
	b, ok := s.transport.(Bootstrapper)
	if !ok {
		s.setState(StateIdentified)
		s.setState(StateSlotReady)
		s.setState(StateStreaming)
		return nil
	}

	info, err := b.IdentifySystem()
	if err != nil {
		return &TransportError{Op: "identify system", Err: err}
	}
	log.Infof("Connected to system %s timeline %d at %s database %q",
		info.SystemID, info.Timeline, info.XLogPos, info.Database)
	s.setState(StateIdentified)

	if err = b.CreateSlot(); err != nil {
		return &TransportError{Op: "create slot", Err: err}
	}
	s.setState(StateSlotReady)

	if err = b.StartReplication(s.startLSN); err != nil {
		return &TransportError{Op: "start replication", Err: err}
	}
	s.setState(StateStreaming)
	return nil
}

func (s *Session) handle(msg []byte) error {
	if len(msg) == 0 {
		return &pgoutput.DecodeError{Kind: pgoutput.TruncatedMessage, Msg: "empty CopyData"}
	}

	switch msg[0] {
	case KeepaliveTag:
		k, err := DecodeKeepalive(msg)
		if err != nil {
			return err
		}
		s.metrics.keepalive()
		s.advance(k.EndLSN)
		log.Debugf("Keepalive at %s, reply requested = %t", k.EndLSN, k.ReplyRequested)
		if s.replyOnRequest && !k.ReplyRequested {
			return nil
		}
		return s.feedback()

	case XLogDataTag:
		x, err := DecodeXLogData(msg)
		if err != nil {
			return err
		}
		if x.WALStart != 0 {
			s.advance(x.WALStart)
		}
		ev, err := s.decoder.Decode(x.Data)
		if err != nil {
			return errors.Wrapf(err, "decoding message at %s", x.WALStart)
		}
		s.metrics.message(ev.Type())
		if err = s.sink.Handle(ev); err != nil {
			return errors.Wrapf(err, "handling %s at %s", ev.Type(), x.WALStart)
		}

		switch e := ev.(type) {
		case *pgoutput.CommitEvent:
			s.advance(e.EndLSN)
			return s.feedback()
		case *pgoutput.StreamCommitEvent:
			s.advance(e.EndLSN)
			return s.feedback()
		}
		return nil

	default:
		return &pgoutput.DecodeError{
			Kind: pgoutput.ProtocolViolation,
			Msg:  fmt.Sprintf("unexpected replication message 0x%02x", msg[0]),
		}
	}
}

// advance moves the received position forward, never back.
func (s *Session) advance(l pgoutput.LSN) {
	if l <= s.received {
		return
	}
	s.latch.Lock()
	s.received = l
	s.latch.Unlock()
}

func (s *Session) feedback() error {
	err := s.sendFeedback()
	s.markFeedback()
	return err
}

func (s *Session) markFeedback() {
	now := s.clock.Now()
	s.latch.Lock()
	s.lastFeedback = now
	s.latch.Unlock()
}

/*
sendFeedback reports our position, unless there is nothing to report yet.
*/
func (s *Session) sendFeedback() error {
	received := s.received
	if received == 0 {
		return nil
	}
	flushed := received
	if s.tracker != nil {
		flushed = s.tracker.FlushedLSN()
		if flushed == 0 {
			return nil
		}
		if flushed > received {
			flushed = received
		}
	}

	log.Debugf("Sending feedback write %s flush %s", received, flushed)
	msg := EncodeStandbyStatusUpdate(received, flushed, flushed, s.clock.Now())
	if err := s.transport.Send(msg); err != nil {
		return &TransportError{Op: "send", Err: err}
	}

	s.latch.Lock()
	s.flushed = flushed
	s.latch.Unlock()
	s.metrics.sent(received, flushed)
	return nil
}

func (s *Session) setState(st State) {
	s.latch.Lock()
	s.state = st
	s.latch.Unlock()
	s.metrics.setState(st)
	log.Debugf("Replication session is %s", st)
}

func (s *Session) terminate(err error) {
	s.latch.Lock()
	s.err = err
	s.latch.Unlock()
	s.setState(StateTerminated)

	if c, ok := s.transport.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			log.Debugf("Error closing transport: %s", cerr)
		}
	}
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Warnf("Replication terminated: %s", err)
	}
}
