// Package handlers serves the editor's debugger connection: it reads framed
// DAP messages off the client socket and feeds them to the session's
// interceptor, and frames everything the relay sends back.
package handlers

import (
	"bufio"
	"log"
	"net"
	"sync"
	"time"

	"mayadap/pkg/codec"
	"mayadap/pkg/relay"
	"mayadap/pkg/utils"
)

// DebuggerTransport is the debugger-facing channel. Writes are serialized:
// both the interceptor and the engine receive loop send through here.
type DebuggerTransport struct {
	mu   sync.Mutex
	conn net.Conn
}

func NewDebuggerTransport(conn net.Conn) *DebuggerTransport {
	return &DebuggerTransport{conn: conn}
}

func (t *DebuggerTransport) Send(body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return codec.WriteMessage(t.conn, body)
}

// Serve reads framed messages off the editor connection and hands each one
// to onMessage. Returns when the connection closes.
func (t *DebuggerTransport) Serve(onMessage func([]byte)) {
	br := bufio.NewReader(t.conn)
	for {
		body, err := codec.ReadMessage(br)
		if err != nil {
			if utils.IsConnectionClosedError(err) {
				log.Printf("Debugger connection closed")
			} else {
				log.Printf("Error reading from debugger: %v", err)
			}
			return
		}
		onMessage(body)
	}
}

// Handle serves one editor debugger connection until it closes.
func Handle(clientTCP net.Conn, maya relay.CommandChannel, fatal func(error)) {
	clientAddr := clientTCP.RemoteAddr().String()
	log.Printf("Debugger connected from %s", clientAddr)

	// Keep-alive so a dead editor is eventually detected.
	if tcpConn, ok := clientTCP.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			log.Printf("Error enabling keep alive on debugger connection: %v", err)
		}
		if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
			log.Printf("Error setting keep alive period on debugger connection: %v", err)
		}
	}

	transport := NewDebuggerTransport(clientTCP)
	sess := relay.NewSession(transport, maya, fatal)

	defer func() {
		// Tear down the engine side too, or its receive loop would keep
		// reading into a dead transport and leak the socket per reconnect.
		sess.Close()
		if err := clientTCP.Close(); err != nil && !utils.IsConnectionClosedError(err) {
			log.Printf("Error closing debugger connection: %v", err)
		}
		log.Printf("Debugger %s disconnected", clientAddr)
	}()

	transport.Serve(sess.HandleDebuggerMessage)
}
