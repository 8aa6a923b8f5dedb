package streamjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Incoming discriminates the two line shapes the host sends in.
type Incoming struct {
	User    *UserEvent
	Control *ControlRequestEvent
}

// envelope peeks at just the discriminant fields common to every incoming
// line, before deciding which concrete type to decode into.
type envelope struct {
	Type string `json:"type"`
}

// Reader decodes stdin's stream-json lines one at a time and suppresses a
// user entry whose uuid has already been seen — spec §6: "duplicates by
// uuid are suppressed from execution".
type Reader struct {
	scanner *bufio.Scanner

	mu   sync.Mutex
	seen map[string]bool
}

// NewReader wraps r, scanning newline-delimited JSON objects.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner, seen: make(map[string]bool)}
}

// Next reads and decodes the next line. It returns (nil, io.EOF) once the
// underlying reader is exhausted, and (nil, nil) for a line that was
// skipped: an empty line, an unknown type, or a user entry whose uuid is a
// duplicate.
func (r *Reader) Next() (*Incoming, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read stream-json line: %w", err)
		}
		return nil, io.EOF
	}
	line := r.scanner.Bytes()
	if len(line) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode stream-json line: %w", err)
	}

	switch env.Type {
	case "user":
		var evt UserEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("decode user event: %w", err)
		}
		r.mu.Lock()
		duplicate := r.seen[evt.UUID]
		r.seen[evt.UUID] = true
		r.mu.Unlock()
		if duplicate {
			return nil, nil
		}
		return &Incoming{User: &evt}, nil
	case "control_request":
		var evt ControlRequestEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("decode control_request event: %w", err)
		}
		return &Incoming{Control: &evt}, nil
	default:
		// Unknown incoming type: ignore rather than fail the stream.
		return nil, nil
	}
}

// IsInterrupt reports whether a ControlRequestEvent's Request payload is an
// interrupt request.
func IsInterrupt(evt *ControlRequestEvent) bool {
	if evt == nil {
		return false
	}
	raw, err := json.Marshal(evt.Request)
	if err != nil {
		return false
	}
	var req InterruptRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return false
	}
	return req.Subtype == "interrupt"
}
