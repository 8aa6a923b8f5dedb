package streamjson

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/turn"
)

func TestWriterEmitsOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(map[string]string{"type": "keep_alive"}))
	require.NoError(t, w.Write(map[string]string{"type": "keep_alive"}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var decoded map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	}
}

func TestWriterAfterWriteHookSeesEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var captured []any
	w.SetAfterWrite(func(event any) error {
		captured = append(captured, event)
		return nil
	})

	require.NoError(t, w.Write(map[string]string{"type": "a"}))
	require.NoError(t, w.Write(map[string]string{"type": "b"}))
	assert.Len(t, captured, 2)
}

func TestBuildAssistantEventRoundTripsTextAndToolUse(t *testing.T) {
	msg := message.Message{
		UUID: "m1",
		Role: message.RoleAssistant,
		Blocks: []message.Block{
			{Type: message.BlockText, Text: "hello"},
			{Type: message.BlockToolUse, ToolUseID: "t1", ToolName: "read", ToolInput: map[string]any{"path": "a.go"}},
		},
	}
	evt := BuildAssistantEvent("sess-1", msg)
	assert.Equal(t, "assistant", evt.Type)
	assert.Equal(t, "m1", evt.UUID)
	blocks, ok := evt.Message.Content.([]ContentBlock)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	assert.Equal(t, "text", blocks[0].Type)
	assert.Equal(t, "tool_use", blocks[1].Type)
	assert.Equal(t, "read", blocks[1].Name)
}

func TestBuildUserEventMarksReplay(t *testing.T) {
	msg := message.Message{UUID: "u1", Role: message.RoleUser, Text: "hi"}
	evt := BuildUserEvent("sess-1", msg, true)
	assert.True(t, evt.IsReplay)
	assert.Equal(t, "hi", evt.Message.Content)
}

func TestBuildResultEventCarriesUsageAndCost(t *testing.T) {
	res := turn.Result{
		Subtype: turn.SubtypeSuccess,
		Usage:   turn.Usage{InputTokens: 10, OutputTokens: 5},
		Cost:    0.002,
	}
	evt := BuildResultEvent("sess-1", 3, res)
	assert.Equal(t, "success", evt.Subtype)
	assert.False(t, evt.IsError)
	assert.Equal(t, 3, evt.NumTurns)
	assert.Equal(t, 0.002, evt.TotalCostUSD)
}

func TestBuildStreamEventsForTextChunksAndClosesTheBlock(t *testing.T) {
	events := BuildStreamEventsForText("sess-1", "claude", "hello world", 5)
	require.True(t, len(events) >= 4)
	first, ok := events[0].Event.(MessageStartEvent)
	require.True(t, ok)
	assert.Equal(t, "message_start", first.Type)
	last := events[len(events)-1].Event
	_, ok = last.(MessageStopEvent)
	assert.True(t, ok)
}

func TestBuildStreamEventsForTextEmptyIsNoOp(t *testing.T) {
	assert.Nil(t, BuildStreamEventsForText("sess-1", "claude", "", 5))
}

func TestReaderDecodesUserAndControlRequestLines(t *testing.T) {
	input := `{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}
{"type":"control_request","request_id":"r1","request":{"subtype":"interrupt"}}
`
	r := NewReader(strings.NewReader(input))

	in1, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, in1.User)
	assert.Equal(t, "u1", in1.User.UUID)

	in2, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, in2.Control)
	assert.True(t, IsInterrupt(in2.Control))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSuppressesDuplicateUserUUID(t *testing.T) {
	input := `{"type":"user","uuid":"dup","message":{"role":"user","content":"first"}}
{"type":"user","uuid":"dup","message":{"role":"user","content":"second"}}
`
	r := NewReader(strings.NewReader(input))

	in1, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, in1.User)

	in2, err := r.Next()
	require.NoError(t, err)
	assert.Nil(t, in2)
}

func TestReaderIgnoresUnknownLineTypes(t *testing.T) {
	input := `{"type":"keep_alive"}
{"type":"user","uuid":"u1","message":{"role":"user","content":"hi"}}
`
	r := NewReader(strings.NewReader(input))

	in1, err := r.Next()
	require.NoError(t, err)
	assert.Nil(t, in1)

	in2, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, in2.User)
}
