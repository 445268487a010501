package utils

import (
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"
)

// IsConnectionClosedError reports whether an error is due to a closed network
// connection, so loops can tell a normal disconnect from an actual failure.
func IsConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}

	if err == io.EOF {
		return true
	}

	errStr := err.Error()
	closedPatterns := []string{
		"use of closed network connection",
		"connection reset by peer",
		"broken pipe",
		"EOF",
		"io: read/write on closed pipe",
	}
	for _, pattern := range closedPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	if opErr, ok := err.(*net.OpError); ok {
		if opErr.Op == "read" || opErr.Op == "write" {
			if strings.Contains(opErr.Err.Error(), "closed") {
				return true
			}
		}
	}

	return false
}

// DialWithRetry dials addr, retrying on failure. The injected debug engine
// needs a moment after the bootstrap code runs before it starts listening, so
// the first attempt is allowed to fail.
func DialWithRetry(addr string, maxRetries int, delay time.Duration) (net.Conn, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err == nil {
			return conn, nil
		}

		lastErr = err
		log.Printf("Failed to connect to debug engine (attempt %d/%d): %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}
