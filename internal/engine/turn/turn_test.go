package turn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/engine/scheduler"
	"github.com/yourusername/dcode/internal/provider"
	"github.com/yourusername/dcode/internal/tool"
)

// scriptedProvider replays a fixed sequence of responses, one per
// CreateMessage call, so a turn's step count is deterministic in tests.
type scriptedProvider struct {
	responses []*provider.MessageResponse
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CreateMessage(ctx context.Context, req *provider.MessageRequest) (*provider.MessageResponse, error) {
	if p.calls >= len(p.responses) {
		return &provider.MessageResponse{StopReason: "end_turn"}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) StreamMessage(ctx context.Context, req *provider.MessageRequest, cb func(*provider.StreamChunk) error) error {
	return nil
}

func (p *scriptedProvider) Models() []string { return []string{"scripted-1"} }

func buildRequest(messages []message.Message) *provider.MessageRequest {
	return &provider.MessageRequest{Model: "scripted-1", MaxTokens: 1024}
}

func TestTurnEndsImmediatelyWhenNoToolUse(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.MessageResponse{
		{StopReason: "end_turn", Content: []provider.ContentBlock{{Type: "text", Text: "hello"}}},
	}}
	reg := tool.NewRegistry()
	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	loop := New(prov, sched, nil, Config{}, nil)

	var events []Event
	result, messages := loop.Run(context.Background(), "sess", "/work", buildRequest, &permission.Context{Mode: permission.ModeBypassPermissions}, nil, func(e Event) { events = append(events, e) })

	assert.Equal(t, SubtypeSuccess, result.Subtype)
	assert.False(t, result.IsError)
	require.Len(t, messages, 1)
	assert.Equal(t, message.RoleAssistant, messages[0].Role)
}

func TestTurnRunsToolUseThenEndsOnNextResponse(t *testing.T) {
	prov := &scriptedProvider{responses: []*provider.MessageResponse{
		{StopReason: "tool_use", Content: []provider.ContentBlock{
			{Type: "tool_use", ID: "tu1", Name: "echo", Input: map[string]interface{}{"msg": "hi"}},
		}},
		{StopReason: "end_turn", Content: []provider.ContentBlock{{Type: "text", Text: "done"}}},
	}}

	reg := tool.NewRegistry()
	reg.Register(&tool.ToolDef{
		Name:            "echo",
		ReadOnly:        func(map[string]interface{}) bool { return true },
		ConcurrencySafe: func(map[string]interface{}) bool { return true },
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			return &tool.ToolResult{Output: "echoed"}, nil
		},
	})
	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	loop := New(prov, sched, nil, Config{}, nil)

	result, messages := loop.Run(context.Background(), "sess", "/work", buildRequest, &permission.Context{Mode: permission.ModeBypassPermissions}, nil, func(Event) {})

	assert.Equal(t, SubtypeSuccess, result.Subtype)
	require.Len(t, messages, 3) // assistant(tool_use), user(tool_result), assistant(text)
	assert.Equal(t, message.RoleAssistant, messages[0].Role)
	assert.Equal(t, message.RoleUser, messages[1].Role)
	require.Len(t, messages[1].Blocks, 1)
	assert.Equal(t, "echoed", messages[1].Blocks[0].Content)
	assert.Equal(t, message.RoleAssistant, messages[2].Role)
}

func TestTurnHitsMaxTurnsCap(t *testing.T) {
	var responses []*provider.MessageResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, &provider.MessageResponse{StopReason: "tool_use", Content: []provider.ContentBlock{
			{Type: "tool_use", ID: "tu", Name: "echo", Input: map[string]interface{}{"i": i}},
		}})
	}
	prov := &scriptedProvider{responses: responses}
	reg := tool.NewRegistry()
	reg.Register(&tool.ToolDef{
		Name:            "echo",
		ReadOnly:        func(map[string]interface{}) bool { return true },
		ConcurrencySafe: func(map[string]interface{}) bool { return true },
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			return &tool.ToolResult{Output: "ok"}, nil
		},
	})
	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	loop := New(prov, sched, nil, Config{MaxTurns: 3}, nil)

	result, _ := loop.Run(context.Background(), "sess", "/work", buildRequest, &permission.Context{Mode: permission.ModeBypassPermissions}, nil, func(Event) {})

	assert.Equal(t, SubtypeErrorMaxTurns, result.Subtype)
	assert.True(t, result.IsError)
}
