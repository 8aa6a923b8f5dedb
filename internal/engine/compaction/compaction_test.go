package compaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/provider"
)

type fakeProvider struct {
	reply string
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) CreateMessage(ctx context.Context, req *provider.MessageRequest) (*provider.MessageResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.MessageResponse{Content: []provider.ContentBlock{{Type: "text", Text: p.reply}}}, nil
}
func (p *fakeProvider) StreamMessage(ctx context.Context, req *provider.MessageRequest, cb func(*provider.StreamChunk) error) error {
	return nil
}
func (p *fakeProvider) Models() []string { return nil }

func longTimeline() []message.Message {
	return []message.Message{
		{UUID: "1", Role: message.RoleUser, Text: "please read main.go"},
		{UUID: "2", Role: message.RoleAssistant, Blocks: []message.Block{
			{Type: message.BlockToolUse, ToolUseID: "t1", ToolName: "read", ToolInput: map[string]any{"path": "main.go"}},
		}},
		{UUID: "3", Role: message.RoleUser, Blocks: []message.Block{
			{Type: message.BlockToolResult, ToolUseID: "t1", Content: "package main"},
		}},
		{UUID: "4", Role: message.RoleAssistant, Text: "main.go contains the entrypoint"},
	}
}

func TestIsOverflowRespectsContextWindow(t *testing.T) {
	e := New(&fakeProvider{}, "", "main", Config{ContextWindow: 1000}, nil)
	assert.False(t, e.IsOverflow(100))
	assert.True(t, e.IsOverflow(990))
}

func TestIsOverflowDisabledWithoutContextWindow(t *testing.T) {
	e := New(&fakeProvider{}, "", "main", Config{}, nil)
	assert.False(t, e.IsOverflow(1_000_000))
}

func TestMaybeCompactReplacesTimelineOnOverflow(t *testing.T) {
	e := New(&fakeProvider{reply: "Summary: working on main.go entrypoint"}, "", "main", Config{ContextWindow: 1000}, nil)
	out, did, err := e.MaybeCompact(context.Background(), longTimeline(), 990)
	require.NoError(t, err)
	assert.True(t, did)
	require.Len(t, out, 3) // synthetic user + assistant summary + one recovered file
	assert.Equal(t, message.RoleUser, out[0].Role)
	assert.Equal(t, message.RoleAssistant, out[1].Role)
	assert.Contains(t, out[1].Text, "Summary")
	assert.Contains(t, out[2].Text, "main.go")
}

func TestMaybeCompactNoOpBelowOverflowThreshold(t *testing.T) {
	e := New(&fakeProvider{reply: "summary"}, "", "main", Config{ContextWindow: 1000}, nil)
	original := longTimeline()
	out, did, err := e.MaybeCompact(context.Background(), original, 10)
	require.NoError(t, err)
	assert.False(t, did)
	assert.Equal(t, original, out)
}

func TestMaybeCompactLeavesTimelineUnchangedOnSummarizationFailure(t *testing.T) {
	e := New(&fakeProvider{err: errors.New("model unavailable")}, "", "main", Config{ContextWindow: 1000}, nil)
	original := longTimeline()
	out, did, err := e.MaybeCompact(context.Background(), original, 990)
	require.NoError(t, err)
	assert.False(t, did)
	assert.Equal(t, original, out)
}

func TestMaybeCompactSkipsShortTimelines(t *testing.T) {
	e := New(&fakeProvider{reply: "summary"}, "", "main", Config{ContextWindow: 1000, MinEntries: 10}, nil)
	original := longTimeline()
	out, did, err := e.MaybeCompact(context.Background(), original, 990)
	require.NoError(t, err)
	assert.False(t, did)
	assert.Equal(t, original, out)
}
