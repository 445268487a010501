package handlers

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"mayadap/pkg/codec"
)

type stubMaya struct {
	mu        sync.Mutex
	submitted []string
}

func (s *stubMaya) Connect(host string, port int, timeout time.Duration) error { return nil }

func (s *stubMaya) Submit(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, code)
	return nil
}

func TestHandleAnswersInitialize(t *testing.T) {
	editor, relaySide := net.Pipe()

	served := make(chan struct{})
	go func() {
		Handle(relaySide, &stubMaya{}, nil)
		close(served)
	}()

	require.NoError(t, codec.WriteMessage(editor, []byte(`{"seq":1,"type":"request","command":"initialize","arguments":{"adapterID":"mayapy"}}`)))

	br := bufio.NewReader(editor)
	body, err := codec.ReadMessage(br)
	require.NoError(t, err)

	resp := gjson.ParseBytes(body)
	assert.Equal(t, "response", resp.Get("type").String())
	assert.Equal(t, "initialize", resp.Get("command").String())
	assert.Equal(t, int64(1), resp.Get("request_seq").Int())
	assert.True(t, resp.Get("success").Bool())

	require.NoError(t, editor.Close())
	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after the editor disconnected")
	}
}

func TestHandleClosesEngineOnEditorDisconnect(t *testing.T) {
	// Fake debug engine the session will dial after attach.
	engineListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer engineListener.Close()
	engineHost, enginePort, err := net.SplitHostPort(engineListener.Addr().String())
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := engineListener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	editor, relaySide := net.Pipe()
	served := make(chan struct{})
	go func() {
		Handle(relaySide, &stubMaya{}, nil)
		close(served)
	}()

	require.NoError(t, codec.WriteMessage(editor, []byte(`{"seq":1,"type":"request","command":"initialize","arguments":{}}`)))
	br := bufio.NewReader(editor)
	_, err = codec.ReadMessage(br)
	require.NoError(t, err)

	attach := fmt.Sprintf(`{"seq":2,"type":"request","command":"attach","arguments":{`+
		`"program":"/home/user/scripts/rig_tool.py",`+
		`"maya":{"host":"localhost","port":7001},`+
		`"debugpy":{"host":"%s","port":%s}}}`, engineHost, enginePort)
	require.NoError(t, codec.WriteMessage(editor, []byte(attach)))

	var engine net.Conn
	select {
	case engine = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never dialed the debug engine")
	}
	defer engine.Close()

	// Drain the relayed initialize and attach frames so the session is known
	// to be relaying before the editor goes away.
	engineBr := bufio.NewReader(engine)
	require.NoError(t, engine.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 2; i++ {
		_, err := codec.ReadMessage(engineBr)
		require.NoError(t, err)
	}

	require.NoError(t, editor.Close())
	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after the editor disconnected")
	}

	// The engine side of the session is torn down with it: the engine
	// observes EOF rather than a relay that keeps its socket open forever.
	require.NoError(t, engine.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = codec.ReadMessage(engineBr)
	assert.ErrorIs(t, err, io.EOF, "engine socket was not closed after the session ended")
}

func TestTransportSendPreservesBoundaries(t *testing.T) {
	editor, relaySide := net.Pipe()
	transport := NewDebuggerTransport(relaySide)

	go func() {
		_ = transport.Send([]byte(`{"seq":1,"type":"event","event":"initialized"}`))
		_ = transport.Send([]byte(`{"seq":2,"type":"event","event":"stopped"}`))
	}()

	br := bufio.NewReader(editor)
	first, err := codec.ReadMessage(br)
	require.NoError(t, err)
	assert.Equal(t, "initialized", gjson.GetBytes(first, "event").String())

	second, err := codec.ReadMessage(br)
	require.NoError(t, err)
	assert.Equal(t, "stopped", gjson.GetBytes(second, "event").String())
}
