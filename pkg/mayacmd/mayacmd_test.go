package mayacmd

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return l, host, port
}

func TestSubmitWrapsSnippetInExecCommand(t *testing.T) {
	l, host, port := listen(t)

	received := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
	}()

	c := NewClient()
	c.scratch = filepath.Join(t.TempDir(), "exec.py")
	require.NoError(t, c.Connect(host, port, time.Second))
	defer c.Close()

	require.NoError(t, c.Submit("print('hello from maya')"))

	select {
	case cmd := <-received:
		assert.True(t, strings.HasPrefix(cmd, `python("exec(open('`), "got %q", cmd)
		assert.Contains(t, cmd, "exec.py")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
	}

	// The snippet itself goes through the scratch file, not the socket.
	code, err := os.ReadFile(c.scratch)
	require.NoError(t, err)
	assert.Equal(t, "print('hello from maya')", string(code))
}

func TestSubmitRequiresConnection(t *testing.T) {
	c := NewClient()
	assert.Error(t, c.Submit("pass"))
}

func TestConnectRefusedReturnsConnectionError(t *testing.T) {
	l, host, port := listen(t)
	require.NoError(t, l.Close()) // free the port so the dial is refused

	c := NewClient()
	err := c.Connect(host, port, 500*time.Millisecond)
	require.Error(t, err)

	connErr, ok := err.(*ConnectionError)
	require.True(t, ok, "expected *ConnectionError, got %T", err)
	assert.Equal(t, host, connErr.Host)
	assert.Equal(t, port, connErr.Port)
	assert.Contains(t, connErr.Remediation(), "cmds.commandPort(")
	assert.Contains(t, connErr.Remediation(), host+":"+strconv.Itoa(port))
}

func TestFormatAttachCode(t *testing.T) {
	code := FormatAttachCode("127.0.0.1", 7002)
	assert.Contains(t, code, "debugpy.listen(('127.0.0.1', 7002))")
}

func TestFormatRunCode(t *testing.T) {
	code := FormatRunCode(filepath.Join("/home/user/scenes", "rig_tool.py"))
	assert.Contains(t, code, "sys.path.insert(0, '"+filepath.Join("/home/user/scenes")+"')")
	assert.Contains(t, code, "import rig_tool\n")
	assert.Contains(t, code, "importlib.reload(rig_tool)")
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "rig_tool", ModuleName("/home/user/scenes/rig_tool.py"))
	assert.Equal(t, "scenes", ModuleName("/home/user/scenes/"))
}

func TestEscapeForMEL(t *testing.T) {
	assert.Equal(t, `C:\\\\tmp\\\\exec.py`, escapeForMEL(`C:\tmp\exec.py`))
}
