// Package relay owns the debug session: the socket to the debug engine
// injected into Maya, the outbound message queue, the pending-answer set, and
// the interception logic applied to the editor's DAP stream.
package relay

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"mayadap/pkg/codec"
	"mayadap/pkg/utils"
)

// State of the engine side of the session.
type State int

const (
	Disconnected State = iota
	Connected
	Relaying
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Relaying:
		return "relaying"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transport is the debugger-facing channel. It must preserve message
// boundaries exactly and be safe to call from multiple goroutines.
type Transport interface {
	Send(body []byte) error
}

// CommandChannel is the host application's remote command port.
type CommandChannel interface {
	Connect(host string, port int, timeout time.Duration) error
	Submit(code string) error
}

// Config is the immutable snapshot captured from the attach request's
// arguments. Created once per attach, read-only thereafter.
type Config struct {
	MayaHost   string
	MayaPort   int
	EngineHost string
	EnginePort int
	Program    string
}

const queueDepth = 64

// Session ties the three channels of one debug session together. All shared
// state lives here rather than in package globals, so a second attach can be
// rejected instead of silently clobbering the first.
type Session struct {
	transport Transport
	maya      CommandChannel
	fatal     func(error)

	// dial is swapped out in tests.
	dial func(addr string) (net.Conn, error)

	mu     sync.Mutex
	state  State
	conn   net.Conn
	config *Config

	queue chan []byte

	// Request seqs the relay answered itself; engine responses to these
	// are suppressed. Written by the debugger-handler goroutine, read by
	// the engine receive loop.
	pendingMu sync.Mutex
	pending   map[int]struct{}

	runMu   sync.Mutex
	runCode string
	runOnce sync.Once

	// Numbering for relay-originated messages to the debugger.
	seqMu sync.Mutex
	seq   int
}

func NewSession(transport Transport, maya CommandChannel, fatal func(error)) *Session {
	if fatal == nil {
		fatal = func(error) {}
	}
	return &Session{
		transport: transport,
		maya:      maya,
		fatal:     fatal,
		dial: func(addr string) (net.Conn, error) {
			return utils.DialWithRetry(addr, 3, time.Second)
		},
		queue:   make(chan []byte, queueDepth),
		pending: make(map[int]struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enqueue pushes a serialized message onto the outbound queue. Safe to call
// from any goroutine; the single send loop preserves FIFO order on the wire.
func (s *Session) Enqueue(body []byte) {
	s.queue <- body
}

// Stop enqueues the sentinel that terminates the send loop. Real messages
// are never nil. The send is non-blocking: a backlogged queue means the send
// loop already died on a write failure, and there is nothing left to stop.
func (s *Session) Stop() {
	select {
	case s.queue <- nil:
	default:
	}
}

// Close tears the session down: stops the send loop and closes the engine
// socket so the receive loop exits too. Safe to call whatever state the
// session is in.
func (s *Session) Close() {
	s.Stop()
	s.closeEngine()
}

// ConnectEngine dials the injected debug engine and moves the session to
// Connected.
func (s *Session) ConnectEngine(addr string) error {
	conn, err := s.dial(addr)
	if err != nil {
		return fmt.Errorf("connect to debug engine at %s: %w", addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()

	log.Printf("Connected to debug engine at %s", addr)
	return nil
}

// StartRelaying moves the session to Relaying and spawns the receive and
// send loops. The engine socket is read only by the receive loop and written
// only by the send loop.
func (s *Session) StartRelaying() {
	s.mu.Lock()
	conn := s.conn
	s.state = Relaying
	s.mu.Unlock()

	go s.receiveLoop(conn)
	go s.sendLoop(conn)
}

// receiveLoop decodes frames off the engine socket and hands each message to
// the interceptor. A read or decode failure closes the socket and ends only
// this loop.
func (s *Session) receiveLoop(conn net.Conn) {
	br := bufio.NewReader(conn)
	for {
		body, err := codec.ReadMessage(br)
		if err != nil {
			if utils.IsConnectionClosedError(err) {
				log.Printf("Debug engine connection closed")
			} else {
				log.Printf("Failure reading debug engine output: %v", err)
			}
			s.closeEngine()
			return
		}
		s.handleEngineMessage(body)
	}
}

// sendLoop blocks on the outbound queue and writes each dequeued message to
// the engine socket. A write failure is logged, not retried; the session is
// lost for outbound traffic from that point.
func (s *Session) sendLoop(conn net.Conn) {
	for body := range s.queue {
		if body == nil {
			log.Printf("Send loop stopping")
			return
		}
		if err := codec.WriteMessage(conn, body); err != nil {
			log.Printf("Failure writing to debug engine: %v", err)
			return
		}
		log.Printf("Engine <- %s", preview(body))
	}
}

func (s *Session) closeEngine() {
	s.mu.Lock()
	conn := s.conn
	s.state = Closed
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) nextSeq() int {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

func (s *Session) markAnswered(seq int) {
	s.pendingMu.Lock()
	s.pending[seq] = struct{}{}
	s.pendingMu.Unlock()
}

func (s *Session) answered(seq int) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	_, ok := s.pending[seq]
	return ok
}

func preview(body []byte) string {
	const max = 160
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
