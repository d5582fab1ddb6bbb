package llm

import (
	"bufio"
	"io"
	"strings"
)

type sseEvent struct {
	Event string
	Data  string
}

// readSSE parses a text/event-stream body and calls fn for each dispatched
// event. It stops when fn returns false or the body ends.
func readSSE(r io.Reader, fn func(sseEvent) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev sseEvent
	var data []string
	dispatch := func() bool {
		if len(data) == 0 {
			ev = sseEvent{}
			return true
		}
		ev.Data = strings.Join(data, "\n")
		cont := fn(ev)
		ev, data = sseEvent{}, data[:0]
		return cont
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}
