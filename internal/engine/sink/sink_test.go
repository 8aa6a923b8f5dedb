package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/message"
)

func TestSanitizeProjectDirIsStableAndSafe(t *testing.T) {
	assert.Equal(t, "root", SanitizeProjectDir("/"))
	assert.Equal(t, "root", SanitizeProjectDir(""))
	assert.NotContains(t, SanitizeProjectDir("/home/user/my project"), "/")
	assert.NotContains(t, SanitizeProjectDir("/home/user/my project"), " ")
}

func TestSessionLogPathLayout(t *testing.T) {
	p := SessionLogPath("/cfg", "/home/user/proj", "sess-1")
	assert.Equal(t, filepath.Join("/cfg", "projects", SanitizeProjectDir("/home/user/proj"), "sess-1.jsonl"), p)
}

func TestAppendThenReplayRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")

	w, err := OpenWriter(path, "sess-1", nil)
	require.NoError(t, err)

	msg1 := message.Message{UUID: message.NewUUID(), Position: 0, Role: message.RoleUser, Text: "hello"}
	rec1, err := w.Append(msg1)
	require.NoError(t, err)
	assert.Equal(t, "", rec1.ParentUUID)

	msg2 := message.Message{UUID: message.NewUUID(), Position: 1, Role: message.RoleAssistant, Text: "hi"}
	rec2, err := w.Append(msg2)
	require.NoError(t, err)
	assert.Equal(t, msg1.UUID, rec2.ParentUUID)

	require.NoError(t, w.Close())

	records, diagnostics, err := Replay(path)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
	require.Len(t, records, 2)
	assert.Equal(t, msg1.UUID, records[0].UUID)
	assert.Equal(t, msg2.UUID, records[1].UUID)
	assert.Equal(t, msg1.UUID, records[1].ParentUUID)

	timeline := RebuildMessages(records)
	require.Len(t, timeline, 2)
	assert.Equal(t, "hello", timeline[0].Text)
	assert.Equal(t, "hi", timeline[1].Text)
}

func TestReplayMissingFileIsEmptyNotError(t *testing.T) {
	records, diagnostics, err := Replay(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, diagnostics)
}

func TestReplayDiscardsTrailingCorruptLineButKeepsEarlierRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")

	w, err := OpenWriter(path, "sess-1", nil)
	require.NoError(t, err)
	msg := message.Message{UUID: message.NewUUID(), Position: 0, Role: message.RoleUser, Text: "valid entry"}
	_, err = w.Append(msg)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, diagnostics, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "valid entry", records[0].Message.Text)
	require.Len(t, diagnostics, 1)
}

func TestRebuildMessagesSkipsUnknownRecordTypes(t *testing.T) {
	records := []Record{
		{UUID: "a", Type: "user", Message: message.Message{UUID: "a", Text: "kept"}},
		{UUID: "b", Type: "future_type_this_build_has_never_seen", Message: message.Message{UUID: "b", Text: "dropped"}},
		{UUID: "c", Type: "assistant", Message: message.Message{UUID: "c", Text: "kept too"}},
	}
	timeline := RebuildMessages(records)
	require.Len(t, timeline, 2)
	assert.Equal(t, "kept", timeline[0].Text)
	assert.Equal(t, "kept too", timeline[1].Text)
}

func TestOpenWriterResumesChainAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")

	w1, err := OpenWriter(path, "sess-1", nil)
	require.NoError(t, err)
	msg1 := message.Message{UUID: message.NewUUID(), Position: 0, Role: message.RoleUser, Text: "first"}
	_, err = w1.Append(msg1)
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := OpenWriter(path, "sess-1", nil)
	require.NoError(t, err)
	msg2 := message.Message{UUID: message.NewUUID(), Position: 1, Role: message.RoleAssistant, Text: "second"}
	rec2, err := w2.Append(msg2)
	require.NoError(t, err)
	assert.Equal(t, msg1.UUID, rec2.ParentUUID)
	require.NoError(t, w2.Close())
}
