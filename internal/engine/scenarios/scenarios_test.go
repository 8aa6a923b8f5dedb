// Package scenarios runs the agent turn engine's end-to-end scenarios
// (S1-S6) against the real Permission Engine, Tool Scheduler, Hook
// Dispatcher, Turn Loop, and Auto-Compaction packages wired together, the
// way cmd/dcode/streamjson.go wires them for a live session.
package scenarios

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/compaction"
	"github.com/yourusername/dcode/internal/engine/hook"
	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/engine/scheduler"
	"github.com/yourusername/dcode/internal/engine/turn"
	"github.com/yourusername/dcode/internal/provider"
	"github.com/yourusername/dcode/internal/tool"
)

func bashToolDef(execute func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error)) *tool.ToolDef {
	return &tool.ToolDef{
		Name: "Bash",
		ReadOnly: func(input map[string]interface{}) bool {
			cmd, _ := input["command"].(string)
			return permission.IsReadOnlyBash(cmd)
		},
		ConcurrencySafe: func(input map[string]interface{}) bool {
			cmd, _ := input["command"].(string)
			return permission.IsReadOnlyBash(cmd)
		},
		Execute: execute,
	}
}

// S1: two read-only Bash ToolUses ("pwd", "ls") run concurrently; both
// Tool-Results come back non-error.
func TestS1ReadOnlyParallelism(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	overlapped := make(chan struct{}, 2)

	reg := tool.NewRegistry()
	reg.Register(bashToolDef(func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
		wg.Done()
		// block until both invocations have started, proving concurrency
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			overlapped <- struct{}{}
		case <-time.After(2 * time.Second):
			t.Error("sibling Bash ToolUse never started: not running concurrently")
		}
		return &tool.ToolResult{Output: "ok"}, nil
	}))

	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	var mu sync.Mutex
	var events []scheduler.Event
	err := sched.Run(context.Background(), "sess", "/work", permCtx,
		[]scheduler.Request{
			{ToolUseID: "tu1", ToolName: "Bash", Input: map[string]interface{}{"command": "pwd"}},
			{ToolUseID: "tu2", ToolName: "Bash", Input: map[string]interface{}{"command": "ls"}},
		},
		func(ev scheduler.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})

	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, scheduler.EventResult, ev.Kind)
		assert.False(t, ev.Result.IsError)
	}
	close(overlapped)
	assert.Len(t, overlapped, 2)
}

// S2: a write-shaped Bash ToolUse ("cat a > b") followed by a read-only one
// ("pwd") — only the first runs initially, the second starts after the
// first's Tool-Result is emitted, and result order matches block order.
func TestS2WriteBarrier(t *testing.T) {
	var mu sync.Mutex
	var order []string

	reg := tool.NewRegistry()
	reg.Register(bashToolDef(func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
		cmd := input["command"].(string)
		if cmd == "cat a > b" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, cmd)
		mu.Unlock()
		return &tool.ToolResult{Output: "ok"}, nil
	}))

	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	var events []scheduler.Event
	err := sched.Run(context.Background(), "sess", "/work", permCtx,
		[]scheduler.Request{
			{ToolUseID: "tu1", ToolName: "Bash", Input: map[string]interface{}{"command": "cat a > b"}},
			{ToolUseID: "tu2", ToolName: "Bash", Input: map[string]interface{}{"command": "pwd"}},
		},
		func(ev scheduler.Event) { events = append(events, ev) })

	require.NoError(t, err)
	require.Equal(t, []string{"cat a > b", "pwd"}, order)
	require.Len(t, events, 2)
	assert.Equal(t, "tu1", events[0].ToolUseID)
	assert.Equal(t, "tu2", events[1].ToolUseID)
}

// S3: a FileWrite to /tmp/x/y when /tmp/x is not a working dir returns Ask
// with suggestions [setMode(acceptEdits), addDirectories(/tmp/x)]; applying
// both and re-checking the same write returns Allow.
func TestS3PermissionPromptWithSuggestionApplication(t *testing.T) {
	eng := permission.New(nil)
	ctx := &permission.Context{Mode: permission.ModeDefault, ProjectDir: "/home/user/project"}
	in := permission.Input{Tool: "FileWrite", Path: "/tmp/x/y", Write: true}

	decision := eng.Check(ctx, in)
	require.Equal(t, permission.Ask, decision.Kind)
	require.Len(t, decision.Suggestions, 2)
	assert.Equal(t, permission.ModeAcceptEdits, decision.Suggestions[0].SetMode)
	assert.Equal(t, "/tmp/x", decision.Suggestions[1].AddDirectory)

	for _, s := range decision.Suggestions {
		ctx.ApplySuggestion(s)
	}

	redecision := eng.Check(ctx, in)
	assert.Equal(t, permission.Allow, redecision.Kind)
}

// S4: a PreToolUse hook prints BLOCKED to stderr and exits 2 for a tool
// whose input command contains "block" — the tool never executes, its
// Tool-Result is an error containing BLOCKED, and the epoch still
// completes (the turn continues).
func TestS4HookBlock(t *testing.T) {
	executed := false
	reg := tool.NewRegistry()
	reg.Register(&tool.ToolDef{
		Name:            "Bash",
		ReadOnly:        func(map[string]interface{}) bool { return true },
		ConcurrencySafe: func(map[string]interface{}) bool { return true },
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			executed = true
			return &tool.ToolResult{Output: "should not run"}, nil
		},
	})

	hooks := hook.New(hook.Config{
		PreToolUse: []hook.MatcherConfig{
			{Hooks: []hook.Hook{{Command: `echo BLOCKED 1>&2; exit 2`}}},
		},
	}, nil)

	sched := scheduler.New(reg, permission.New(nil), hooks, nil, scheduler.Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	var events []scheduler.Event
	err := sched.Run(context.Background(), "sess", "/work", permCtx,
		[]scheduler.Request{
			{ToolUseID: "tu1", ToolName: "Bash", Input: map[string]interface{}{"command": "do the block thing"}},
		},
		func(ev scheduler.Event) { events = append(events, ev) })

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, executed)
	assert.True(t, events[0].Result.IsError)
	assert.Contains(t, events[0].Result.Output, "BLOCKED")
}

// blockingThenDoneProvider's first CreateMessage call blocks until ctx is
// cancelled (simulating an interrupt mid-generation); subsequent calls
// return a normal end_turn response.
type blockingThenDoneProvider struct {
	calls int
}

func (p *blockingThenDoneProvider) Name() string { return "blocking" }

func (p *blockingThenDoneProvider) CreateMessage(ctx context.Context, req *provider.MessageRequest) (*provider.MessageResponse, error) {
	p.calls++
	if p.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &provider.MessageResponse{StopReason: "end_turn", Content: []provider.ContentBlock{{Type: "text", Text: "done"}}}, nil
}

func (p *blockingThenDoneProvider) StreamMessage(ctx context.Context, req *provider.MessageRequest, cb func(*provider.StreamChunk) error) error {
	return nil
}

func (p *blockingThenDoneProvider) Models() []string { return []string{"blocking-1"} }

func buildRequest(messages []message.Message) *provider.MessageRequest {
	return &provider.MessageRequest{Model: "blocking-1", MaxTokens: 1024}
}

// S5: a control_request{interrupt} arriving mid-turn cancels the in-flight
// turn, which resolves with an error result; a subsequent turn on the same
// session succeeds normally.
func TestS5InterruptDuringTurn(t *testing.T) {
	prov := &blockingThenDoneProvider{}
	reg := tool.NewRegistry()
	sched := scheduler.New(reg, permission.New(nil), nil, nil, scheduler.Config{}, nil)
	loop := turn.New(prov, sched, nil, turn.Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel() // simulates the control_request{interrupt} handler
	}()
	result, _ := loop.Run(ctx, "sess", "/work", buildRequest, permCtx, nil, func(turn.Event) {})
	assert.True(t, result.IsError)

	result2, messages2 := loop.Run(context.Background(), "sess", "/work", buildRequest, permCtx, nil, func(turn.Event) {})
	assert.False(t, result2.IsError)
	assert.Equal(t, turn.SubtypeSuccess, result2.Subtype)
	require.Len(t, messages2, 1)
}

// S6: once the timeline's token count crosses 0.9x the context window, the
// timeline prefix is replaced by a synthetic user/assistant summary pair
// (plus any recovered-file entries); a failure leaves the timeline
// unchanged rather than deleting anything.
func TestS6AutoCompaction(t *testing.T) {
	prov := &summarizingProvider{summary: "We refactored the parser and still need to update its tests."}
	eng := compaction.New(prov, "", "main-model", compaction.Config{ContextWindow: 1000}, nil)

	messages := []message.Message{
		{UUID: "u1", Role: message.RoleUser, Text: "please refactor the parser"},
		{UUID: "a1", Role: message.RoleAssistant, Text: "working on it"},
		{UUID: "u2", Role: message.RoleUser, Text: "looks good"},
	}

	// 950 input tokens is above 0.9 × 1000, so compaction triggers.
	compacted, did, err := eng.MaybeCompact(context.Background(), messages, 950)
	require.NoError(t, err)
	require.True(t, did)
	require.GreaterOrEqual(t, len(compacted), 2)
	assert.Equal(t, compaction.CompactionPromptText, compacted[0].Text)
	assert.Equal(t, "We refactored the parser and still need to update its tests.", compacted[1].Text)

	// a summarization failure leaves the timeline unchanged.
	failing := compaction.New(&summarizingProvider{err: assert.AnError}, "", "main-model", compaction.Config{ContextWindow: 1000}, nil)
	unchanged, did2, err2 := failing.MaybeCompact(context.Background(), messages, 950)
	require.NoError(t, err2)
	assert.False(t, did2)
	assert.Equal(t, messages, unchanged)
}

type summarizingProvider struct {
	summary string
	err     error
}

func (p *summarizingProvider) Name() string { return "summarizing" }

func (p *summarizingProvider) CreateMessage(ctx context.Context, req *provider.MessageRequest) (*provider.MessageResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.MessageResponse{Content: []provider.ContentBlock{{Type: "text", Text: p.summary}}}, nil
}

func (p *summarizingProvider) StreamMessage(ctx context.Context, req *provider.MessageRequest, cb func(*provider.StreamChunk) error) error {
	return nil
}

func (p *summarizingProvider) Models() []string { return []string{"summarizing-1"} }
