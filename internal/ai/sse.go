package ai

import (
	"bufio"
	"io"
	"strings"
)

type sseEvent struct {
	Type string
	Data string
}

// sseScanner groups the lines of a text/event-stream body into events.
// Only the "event" and "data" fields are kept.
type sseScanner struct {
	sc  *bufio.Scanner
	ev  sseEvent
	err error
}

func newSSEScanner(r io.Reader) *sseScanner {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)
	return &sseScanner{sc: sc}
}

// Next advances to the next event carrying data. A body that ends without
// a trailing blank line still yields its last event.
func (s *sseScanner) Next() bool {
	var typ string
	var data []string
	for s.sc.Scan() {
		line := strings.TrimSuffix(s.sc.Text(), "\r")
		if line == "" {
			if len(data) > 0 {
				s.ev = sseEvent{Type: typ, Data: strings.Join(data, "\n")}
				return true
			}
			typ = ""
			continue
		}
		switch {
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			typ = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
	s.err = s.sc.Err()
	if s.err == nil && len(data) > 0 {
		s.ev = sseEvent{Type: typ, Data: strings.Join(data, "\n")}
		return true
	}
	return false
}

func (s *sseScanner) Event() sseEvent { return s.ev }

func (s *sseScanner) Err() error { return s.err }
