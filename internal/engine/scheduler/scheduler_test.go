package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/tool"
)

func alwaysTrue(map[string]interface{}) bool { return true }

// readTool is a concurrency-safe, permission-exempt stand-in for a
// read-only tool (ls/read/grep).
func readTool(running *int32, maxObserved *int32) *tool.ToolDef {
	return &tool.ToolDef{
		Name:            "read",
		ReadOnly:        alwaysTrue,
		ConcurrencySafe: alwaysTrue,
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			n := atomic.AddInt32(running, 1)
			for {
				cur := atomic.LoadInt32(maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(maxObserved, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(running, -1)
			return &tool.ToolResult{Output: "ok"}, nil
		},
	}
}

// writeTool is a barrier tool: not read-only, not concurrency-safe.
func writeTool(running *int32, maxObserved *int32) *tool.ToolDef {
	return &tool.ToolDef{
		Name: "write",
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			n := atomic.AddInt32(running, 1)
			for {
				cur := atomic.LoadInt32(maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(maxObserved, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(running, -1)
			return &tool.ToolResult{Output: "wrote"}, nil
		},
	}
}

func noPrompt(ctx context.Context, req Request, ask permission.Decision) (bool, *permission.Suggestion) {
	return true, nil
}

func TestReadOnlyToolUsesRunConcurrently(t *testing.T) {
	var running, maxObserved int32
	reg := tool.NewRegistry()
	reg.Register(readTool(&running, &maxObserved))

	sched := New(reg, permission.New(nil), nil, noPrompt, Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeDefault}

	reqs := []Request{
		{ToolUseID: "1", ToolName: "read"},
		{ToolUseID: "2", ToolName: "read"},
		{ToolUseID: "3", ToolName: "read"},
	}

	var mu sync.Mutex
	results := map[string]*Event{}
	err := sched.Run(context.Background(), "sess", "/work", permCtx, reqs, func(ev Event) {
		mu.Lock()
		e := ev
		results[ev.ToolUseID] = &e
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, id := range []string{"1", "2", "3"} {
		require.Contains(t, results, id)
		assert.False(t, results[id].Result.IsError)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestWriteToolsRunAsBarrierNeverConcurrent(t *testing.T) {
	var running, maxObserved int32
	reg := tool.NewRegistry()
	reg.Register(writeTool(&running, &maxObserved))

	sched := New(reg, permission.New(nil), nil, noPrompt, Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	reqs := []Request{
		{ToolUseID: "a", ToolName: "write"},
		{ToolUseID: "b", ToolName: "write"},
		{ToolUseID: "c", ToolName: "write"},
	}

	var count int32
	err := sched.Run(context.Background(), "sess", "/work", permCtx, reqs, func(ev Event) {
		atomic.AddInt32(&count, 1)
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxObserved))
}

func TestMixedReadThenWriteBarrierWaitsForReadsToDrain(t *testing.T) {
	var runningRead, maxRead int32
	var runningWrite, maxWrite int32
	reg := tool.NewRegistry()
	reg.Register(readTool(&runningRead, &maxRead))
	reg.Register(writeTool(&runningWrite, &maxWrite))

	sched := New(reg, permission.New(nil), nil, noPrompt, Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	reqs := []Request{
		{ToolUseID: "r1", ToolName: "read"},
		{ToolUseID: "r2", ToolName: "read"},
		{ToolUseID: "w1", ToolName: "write"},
	}

	order := []string{}
	var mu sync.Mutex
	err := sched.Run(context.Background(), "sess", "/work", permCtx, reqs, func(ev Event) {
		mu.Lock()
		order = append(order, ev.ToolUseID)
		mu.Unlock()
	})

	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "w1", order[len(order)-1])
}

func TestDeniedToolUseEmitsErrorResultWithoutRunning(t *testing.T) {
	var ran bool
	reg := tool.NewRegistry()
	reg.Register(&tool.ToolDef{
		Name: "write",
		Execute: func(ctx context.Context, tc *tool.ToolContext, input map[string]interface{}) (*tool.ToolResult, error) {
			ran = true
			return &tool.ToolResult{Output: "should not run"}, nil
		},
	})

	sched := New(reg, permission.New(nil), nil, noPrompt, Config{}, nil)
	permCtx := &permission.Context{
		Mode:      permission.ModeDefault,
		DenyRules: []permission.Rule{{Kind: permission.RuleDeny, Tool: "write", Selector: "x"}},
	}

	var got Event
	err := sched.Run(context.Background(), "sess", "/work", permCtx, []Request{
		{ToolUseID: "1", ToolName: "write", Input: map[string]interface{}{"path": "x"}},
	}, func(ev Event) { got = ev })

	require.NoError(t, err)
	assert.True(t, got.Result.IsError)
	assert.False(t, ran)
}

func TestUnknownToolNameEmitsErrorResult(t *testing.T) {
	reg := tool.NewRegistry()
	sched := New(reg, permission.New(nil), nil, noPrompt, Config{}, nil)
	permCtx := &permission.Context{Mode: permission.ModeBypassPermissions}

	var got Event
	err := sched.Run(context.Background(), "sess", "/work", permCtx, []Request{
		{ToolUseID: "1", ToolName: "nonexistent"},
	}, func(ev Event) { got = ev })

	require.NoError(t, err)
	assert.True(t, got.Result.IsError)
}
