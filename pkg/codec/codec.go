// Package codec implements the Content-Length framing used on the wire
// between the relay and the debug engine (and the editor's debugger client,
// which speaks the same framing). A frame is a header block terminated by a
// blank line, followed by exactly the declared number of body bytes:
//
//	Content-Length: 123\r\n
//	\r\n
//	{ ... 123 bytes of JSON ... }
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const contentLengthHeader = "Content-Length:"

// WriteMessage frames body and writes it to w. The declared length is the
// byte length of body, not the rune count.
func WriteMessage(w io.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "%s %d\r\n\r\n", contentLengthHeader, len(body)); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r. It consumes header lines until
// a blank line, taking the declared body length from the Content-Length
// header and skipping any other header lines, then reads exactly that many
// body bytes, accumulating across partial reads.
//
// End of stream, or a header block that declares no body, yields io.EOF:
// there is no message available, which is not a protocol error.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// The peer closed the stream; a partial header line has
			// nothing we can deliver either way.
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, contentLengthHeader) {
			n, err := strconv.Atoi(strings.TrimSpace(line[len(contentLengthHeader):]))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length header %q: %w", line, err)
			}
			contentLength = n
		}
		// Other header lines are allowed and ignored.
	}

	if contentLength <= 0 {
		return nil, io.EOF
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body (%d bytes): %w", contentLength, err)
	}
	return body, nil
}
