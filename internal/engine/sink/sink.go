// Package sink implements the agent turn engine's Session Sink: an
// append-only JSONL transcript with parentUuid chaining, a sanitized-cwd
// directory layout, and tolerant-reader replay for rebuilding a session's
// message timeline on resume.
//
// The JSONL writer is ported from other_examples'
// dm-vev-OpenClaude__internal-streamjson-events.go.go Writer (mutex-guarded
// single-Encode-per-line, SetEscapeHTML(false)); the on-disk directory/file
// naming follows spec §6's session log layout, with a sanitized-cwd path
// scheme in the same spirit as a conversational agent's session-path
// builder. There is no separate read-side cache: the message timeline is
// rebuilt by replaying the log, which is the sole source of truth.
package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dcode/internal/engine/message"
)

// knownRecordTypes are the type discriminants RebuildMessages understands.
// Readers must tolerate unknown types, per the session log layout: a future
// writer may append a type this build has never seen, and replay should skip
// it rather than fail the whole log.
var knownRecordTypes = map[string]bool{
	string(message.RoleUser):      true,
	string(message.RoleAssistant): true,
	string(message.RoleProgress):  true,
}

// Record is one JSONL line: a Message plus the linking/session metadata the
// replay tolerant-reader needs. Type mirrors Message.Role for known records;
// a future writer's unrecognized Type value stays parseable but is excluded
// from RebuildMessages.
type Record struct {
	UUID       string          `json:"uuid"`
	ParentUUID string          `json:"parent_uuid,omitempty"`
	SessionID  string          `json:"session_id"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Message    message.Message `json:"message"`
}

var sanitizeChars = regexp.MustCompile(`[/\\ ]+`)

// SanitizeProjectDir replaces '/', '\', and spaces in cwd with '-', the
// session log layout's directory-naming rule.
func SanitizeProjectDir(cwd string) string {
	slug := sanitizeChars.ReplaceAllString(cwd, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "root"
	}
	return slug
}

// SessionLogPath returns "<configDir>/projects/<sanitized cwd>/<sessionID>.jsonl".
func SessionLogPath(configDir, cwd, sessionID string) string {
	return filepath.Join(configDir, "projects", SanitizeProjectDir(cwd), sessionID+".jsonl")
}

// Writer appends Records to one session's JSONL transcript. Exactly one
// JSON line is written per call, matching the ported Writer's guarantee.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	lastUUID  string
	sessionID string
	log       *zap.Logger
}

// OpenWriter creates parent directories as needed and opens path for
// append, picking up lastUUID from any existing tail so chaining continues
// correctly across process restarts.
func OpenWriter(path, sessionID string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	lastUUID := ""
	if records, _, err := Replay(path); err == nil && len(records) > 0 {
		lastUUID = records[len(records)-1].UUID
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Writer{f: f, lastUUID: lastUUID, sessionID: sessionID, log: log}, nil
}

// Append writes msg as the next Record, chained off the previously written
// entry's uuid (or empty for the first entry in the log).
func (w *Writer) Append(msg message.Message) (Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := Record{
		UUID:       msg.UUID,
		ParentUUID: w.lastUUID,
		SessionID:  w.sessionID,
		Type:       string(msg.Role),
		Timestamp:  time.Now().UTC(),
		Message:    msg,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return Record{}, fmt.Errorf("encode session record: %w", err)
	}
	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return Record{}, fmt.Errorf("write session record: %w", err)
	}
	w.lastUUID = msg.UUID
	return rec, nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Replay reads every line of path, tolerantly: a malformed trailing line
// (e.g. a torn write after a crash) is discarded with a diagnostic rather
// than failing the whole replay. A missing file replays to an empty,
// non-error result — a session log is created lazily on first Append.
func Replay(path string) (records []Record, diagnostics []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if jerr := json.Unmarshal(line, &rec); jerr != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("line %d: discarded unparseable record: %v", lineNo, jerr))
			continue
		}
		records = append(records, rec)
	}
	if serr := scanner.Err(); serr != nil {
		diagnostics = append(diagnostics, fmt.Sprintf("scan error after line %d: %v", lineNo, serr))
	}
	return records, diagnostics, nil
}

// RebuildMessages extracts the ordered message.Message timeline from a
// replayed Record slice, for handing straight to the Turn Loop on resume.
// Records whose Type isn't one this build recognizes are skipped, per the
// session log layout's "readers MUST tolerate unknown types" rule.
func RebuildMessages(records []Record) []message.Message {
	out := make([]message.Message, 0, len(records))
	for _, r := range records {
		if !knownRecordTypes[r.Type] {
			continue
		}
		out = append(out, r.Message)
	}
	return out
}
