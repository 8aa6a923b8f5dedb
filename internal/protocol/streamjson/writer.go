package streamjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Writer emits stream-json events as JSON Lines. Each call produces exactly
// one newline-delimited JSON object.
type Writer struct {
	// mu serializes writes to prevent JSON line interleaving.
	mu sync.Mutex
	// writer is the underlying output destination.
	writer io.Writer
	// afterWrite runs after a JSON line is written when set; invoked under
	// the write lock so persisted ordering matches emission ordering.
	afterWrite func(event any) error
}

// NewWriter constructs a stream-json writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: w}
}

// SetAfterWrite registers a hook invoked after each event line is written,
// under the write lock.
func (w *Writer) SetAfterWrite(afterWrite func(event any) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.afterWrite = afterWrite
}

// Write emits event as a single JSON line.
func (w *Writer) Write(event any) error {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	// Disable HTML escaping to match the host's JSON.stringify output.
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(event); err != nil {
		return fmt.Errorf("encode stream-json event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("write stream-json event: %w", err)
	}
	if w.afterWrite != nil {
		if err := w.afterWrite(event); err != nil {
			return fmt.Errorf("after-write hook: %w", err)
		}
	}
	return nil
}

// NewUUID returns a new event/message uuid.
func NewUUID() string {
	return uuid.NewString()
}
