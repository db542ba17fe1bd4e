package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// maxFrameSize bounds one SSE line. Run events carry assertion payloads.
const maxFrameSize = 4 << 20

// writeFrame writes one SSE data frame and flushes it.
func writeFrame(w io.Writer, f http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", bytes.TrimSpace(data)); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// sseStream implements ports.EventStream over a text/event-stream body.
// Multi-line data fields are joined with newlines; other fields are ignored.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEStream(body io.ReadCloser) *sseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &sseStream{body: body, scanner: sc}
}

func (s *sseStream) Recv() ([]byte, error) {
	var data [][]byte
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if !bytes.Equal(field, []byte("data")) {
			continue
		}
		data = append(data, bytes.Clone(bytes.TrimPrefix(value, []byte(" "))))
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return bytes.Join(data, []byte("\n")), nil
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
