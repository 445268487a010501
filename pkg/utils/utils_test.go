package utils

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectionClosedError(t *testing.T) {
	assert.False(t, IsConnectionClosedError(nil))
	assert.True(t, IsConnectionClosedError(io.EOF))
	assert.True(t, IsConnectionClosedError(errors.New("read tcp 127.0.0.1:1->127.0.0.1:2: use of closed network connection")))
	assert.True(t, IsConnectionClosedError(errors.New("write: broken pipe")))
	assert.False(t, IsConnectionClosedError(errors.New("invalid Content-Length header")))
}

func TestDialWithRetrySucceeds(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	conn, err := DialWithRetry(l.Addr().String(), 3, 10*time.Millisecond)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDialWithRetryExhaustsAttempts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close()) // free the port so every attempt fails

	_, err = DialWithRetry(addr, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect after 2 attempts")
}
