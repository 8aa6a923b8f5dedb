// Package scheduler implements the agent turn engine's Tool Scheduler: the
// per-ToolUse state machine, concurrency-class admission policy (parallel
// read-only pool vs. serialized write barrier), permission/hook wiring, and
// cancellation semantics described in spec §4.4–§5.
//
// The concurrency model generalizes internal/tool/batch.go's
// sync.WaitGroup + pre-indexed results fan-out into a real admission
// policy driven by each Tool Descriptor's ReadOnly/ConcurrencySafe
// classifiers: a golang.org/x/sync/semaphore.Weighted bounds how many
// concurrency-safe ToolUses run at once, while a barrier ToolUse first
// drains that pool and then runs alone, preserving block order.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/dcode/internal/engine/hook"
	"github.com/yourusername/dcode/internal/engine/metrics"
	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/tool"
)

// DefaultCancelGracePeriod is the Open-Question-resolved default grace
// period given to in-flight tools after a cancellation signal (spec §9).
const DefaultCancelGracePeriod = 250 * time.Millisecond

// Request is one ToolUse block handed to the Scheduler.
type Request struct {
	ToolUseID string
	ToolName  string
	Input     map[string]interface{}
}

// EventKind discriminates a Scheduler output event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
)

// Event is one Progress or Tool-Result entry the Scheduler emits for a
// ToolUse. Exactly one EventResult is emitted per ToolUse, always, even on
// cancel or error (invariant 4).
type Event struct {
	Kind      EventKind
	ToolUseID string
	Text      string // progress text
	Result    *tool.ToolResult
	Aborted   bool
}

// CanUseToolFunc prompts the user for an Ask decision. It may block
// indefinitely. A returned Suggestion, if non-nil, is applied to the
// Permission Context before the call proceeds.
type CanUseToolFunc func(ctx context.Context, req Request, ask permission.Decision) (approved bool, suggestion *permission.Suggestion)

// Config tunes the Scheduler's admission policy.
type Config struct {
	MaxConcurrency    int           // 0 means unbounded among concurrency-safe ToolUses
	CancelGracePeriod time.Duration // 0 means DefaultCancelGracePeriod
}

// Scheduler runs one scheduling epoch (one Assistant message's ToolUse
// blocks) at a time.
type Scheduler struct {
	registry   *tool.Registry
	permEngine *permission.Engine
	hooks      *hook.Dispatcher
	canUseTool CanUseToolFunc
	cfg        Config
	log        *zap.Logger
	metrics    *metrics.Collector

	// inflight tracks the at-most-one-concurrent-execution admission token
	// per ToolUse id (invariant 3), for the lifetime of the session.
	inflight sync.Map // map[string]struct{}
}

// SetMetrics attaches a Collector the Scheduler reports tool-execution and
// permission-decision metrics to. Nil is a valid no-op default.
func (s *Scheduler) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// New constructs a Scheduler.
func New(registry *tool.Registry, permEngine *permission.Engine, hooks *hook.Dispatcher, canUseTool CanUseToolFunc, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.CancelGracePeriod <= 0 {
		cfg.CancelGracePeriod = DefaultCancelGracePeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{registry: registry, permEngine: permEngine, hooks: hooks, canUseTool: canUseTool, cfg: cfg, log: log}
}

// Run executes requests (one scheduling epoch) against permCtx, emitting
// events via emit in an order consistent with spec §5's ordering
// guarantees: concurrency-safe results emit in completion order; a barrier
// ToolUse's result always follows all of its preceding siblings' results;
// progress always precedes its own result.
func (s *Scheduler) Run(ctx context.Context, sessionID, workDir string, permCtx *permission.Context, requests []Request, emit func(Event)) error {
	epochCtx, cancelEpoch := context.WithCancel(ctx)
	defer cancelEpoch()

	var sem *semaphore.Weighted
	if s.cfg.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(s.cfg.MaxConcurrency))
	}

	var wg sync.WaitGroup
	var fatalOnce sync.Once
	var fatalErr error

	flushSafePool := func() {
		wg.Wait()
	}

	for _, req := range requests {
		classSafe := s.isConcurrencySafe(req)

		if !classSafe {
			// Barrier: drain all prior concurrency-safe ToolUses first.
			flushSafePool()
			if epochCtx.Err() != nil {
				s.emitAborted(req, emit)
				continue
			}
			s.runOne(epochCtx, sessionID, workDir, permCtx, req, emit, func(err error) {
				fatalOnce.Do(func() { fatalErr = err; cancelEpoch() })
			})
			continue
		}

		req := req
		if sem != nil {
			if err := sem.Acquire(epochCtx, 1); err != nil {
				s.emitAborted(req, emit)
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			if epochCtx.Err() != nil {
				s.emitAborted(req, emit)
				return
			}
			s.runOne(epochCtx, sessionID, workDir, permCtx, req, emit, func(err error) {
				fatalOnce.Do(func() { fatalErr = err; cancelEpoch() })
			})
		}()
	}
	flushSafePool()

	// Every ToolUse this epoch skipped (sibling-error cancellation or outer
	// cancel) already got an aborted Tool-Result inside the loop above,
	// enforcing invariant 4.
	return fatalErr
}

// isConcurrencySafe consults the Tool Descriptor's classifiers. An unknown
// tool is conservatively treated as a barrier.
func (s *Scheduler) isConcurrencySafe(req Request) bool {
	t, ok := s.registry.Get(req.ToolName)
	if !ok {
		return false
	}
	return t.IsConcurrencySafe(req.Input)
}

// runOne drives the per-ToolUse state machine: PermissionCheck ->
// PreToolUseHook -> Running -> ResultEmitted, with Denied/Blocked and
// Cancelled short-circuits. onFatal is invoked (once, across the epoch) on
// a fatal tool error, triggering sibling cancellation.
func (s *Scheduler) runOne(ctx context.Context, sessionID, workDir string, permCtx *permission.Context, req Request, emit func(Event), onFatal func(error)) {
	// Admission token: invariant 3, at most one concurrent execution per id.
	if _, already := s.inflight.LoadOrStore(req.ToolUseID, struct{}{}); already {
		emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: &tool.ToolResult{Output: "duplicate tool_use id already in flight", IsError: true}})
		return
	}
	defer s.inflight.Delete(req.ToolUseID)

	t, ok := s.registry.Get(req.ToolName)
	if !ok {
		emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: &tool.ToolResult{Output: fmt.Sprintf("unknown tool %q", req.ToolName), IsError: true}})
		return
	}

	if ctx.Err() != nil {
		s.emitAborted(req, emit)
		return
	}

	// PermissionCheck
	if t.NeedsPermissions(req.Input) {
		decision := s.permEngine.Check(permCtx, toPermissionInput(req))
		switch decision.Kind {
		case permission.Deny:
			s.recordPermission(req.ToolName, "deny")
			emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: &tool.ToolResult{Output: decision.Message, IsError: true}})
			return
		case permission.Ask:
			s.recordPermission(req.ToolName, "ask")
			approved, suggestion := true, (*permission.Suggestion)(nil)
			if s.canUseTool != nil {
				approved, suggestion = s.canUseTool(ctx, req, decision)
			}
			if suggestion != nil {
				permCtx.ApplySuggestion(*suggestion)
			}
			if !approved {
				emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: &tool.ToolResult{Output: "rejected by user", IsError: true}})
				return
			}
		case permission.Allow:
			s.recordPermission(req.ToolName, "allow")
		}
	}

	// PreToolUseHook
	input := req.Input
	if s.hooks != nil {
		hres := s.hooks.RunPreToolUse(ctx, hook.Input{
			SessionID: sessionID, Cwd: workDir, HookEventName: hook.EventPreToolUse,
			ToolName: req.ToolName, ToolUseID: req.ToolUseID, ToolInput: req.Input,
		})
		if !hres.Allowed {
			emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: &tool.ToolResult{Output: hres.Message, IsError: true}})
			return
		}
		if hres.ModifiedInput != nil {
			input = hres.ModifiedInput
		}
	}

	if ctx.Err() != nil {
		s.emitAborted(req, emit)
		return
	}

	// Running
	tc := &tool.ToolContext{SessionID: sessionID, WorkDir: workDir, Abort: ctx}
	start := time.Now()
	result, err := t.Execute(ctx, tc, input)
	elapsed := time.Since(start).Seconds()
	if ctx.Err() != nil {
		s.emitAborted(req, emit)
		return
	}
	if err != nil {
		result = &tool.ToolResult{Output: err.Error(), IsError: true}
		onFatal(err)
	}
	if result == nil {
		result = &tool.ToolResult{Output: "(no result)"}
	}
	s.recordToolExecution(req, result, elapsed)

	if s.hooks != nil {
		s.hooks.RunPostToolUse(ctx, hook.Input{
			SessionID: sessionID, Cwd: workDir, HookEventName: hook.EventPostToolUse,
			ToolName: req.ToolName, ToolUseID: req.ToolUseID, ToolInput: input, ToolResponse: result,
		})
	}

	emit(Event{Kind: EventResult, ToolUseID: req.ToolUseID, Result: result})
}

func (s *Scheduler) recordPermission(toolName, outcome string) {
	if s.metrics != nil {
		s.metrics.PermissionDecided(toolName, outcome)
	}
}

func (s *Scheduler) recordToolExecution(req Request, result *tool.ToolResult, elapsedSeconds float64) {
	if s.metrics == nil {
		return
	}
	class := "barrier"
	if s.isConcurrencySafe(req) {
		class = "concurrency_safe"
	}
	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	s.metrics.ToolExecuted(req.ToolName, class, outcome, elapsedSeconds)
}

func (s *Scheduler) emitAborted(req Request, emit func(Event)) {
	emit(Event{
		Kind:      EventResult,
		ToolUseID: req.ToolUseID,
		Aborted:   true,
		Result:    &tool.ToolResult{Output: "aborted: turn cancelled", IsError: true},
	})
}

func toPermissionInput(req Request) permission.Input {
	in := permission.Input{Tool: req.ToolName, Raw: req.Input}
	if cmd, ok := req.Input["command"].(string); ok {
		in.Bash = cmd
	}
	if path, ok := req.Input["path"].(string); ok {
		in.Path = path
	} else if path, ok := req.Input["file_path"].(string); ok {
		in.Path = path
	}
	if u, ok := req.Input["url"].(string); ok {
		in.URL = u
	}
	if q, ok := req.Input["query"].(string); ok {
		in.Query = q
	}
	in.Write = req.ToolName == "write" || req.ToolName == "edit" || req.ToolName == "multiedit" || req.ToolName == "patch" || req.ToolName == "apply_patch"
	return in
}
