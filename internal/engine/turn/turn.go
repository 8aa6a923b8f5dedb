// Package turn implements the agent turn engine's Turn Loop: the
// query-model / append-message / schedule-tools step cycle that runs until
// the model stops requesting tools, a terminal error occurs, or the
// configured turn cap is hit.
//
// The step loop shape (doom-loop detection, retry-on-classified-error,
// inline compaction trigger) runs over the message.Message/Entry timeline
// and the scheduler.Scheduler built for this engine. Retry classification
// and backoff reuse internal/session's ComputeRetryDelay/IsRetryableError
// and provider.ClassifyError.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dcode/internal/engine/enginerr"
	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/metrics"
	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/engine/scheduler"
	"github.com/yourusername/dcode/internal/provider"
	"github.com/yourusername/dcode/internal/session"
)

// DefaultMaxTurns caps the step loop absent an agent-specific override.
const DefaultMaxTurns = 50

// DoomLoopThreshold is the number of identical consecutive ToolUse
// invocations before the loop treats the pattern as a doom loop: the
// repeated call gets an error Tool-Result instead of running, and the turn
// ends.
const DoomLoopThreshold = 3

// MaxRetryAttempts bounds model-call retries per turn.
const MaxRetryAttempts = 10

// ResultSubtype is the terminal "result" event's subtype field (spec §6).
type ResultSubtype string

const (
	SubtypeSuccess              ResultSubtype = "success"
	SubtypeErrorMaxTurns        ResultSubtype = "error_max_turns"
	SubtypeErrorDuringExecution ResultSubtype = "error_during_execution"
	SubtypeErrorModel           ResultSubtype = "error_model"
	SubtypeErrorCancelled       ResultSubtype = "error_cancelled"
)

// Usage accumulates token counts across every step of one turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is the terminal {subtype, is_error, usage, cost, duration} event
// emitted once per turn (spec §6's "result" event).
type Result struct {
	Subtype  ResultSubtype
	IsError  bool
	Usage    Usage
	Cost     float64
	Duration time.Duration
}

// Compactor abstracts Auto-Compaction so the Turn Loop doesn't depend on
// its summarization internals; internal/engine/compaction.Engine
// implements this.
type Compactor interface {
	MaybeCompact(ctx context.Context, messages []message.Message, inputTokens int) ([]message.Message, bool, error)
}

// RequestBuilder builds the next provider request from the current message
// timeline. It is the seam between the Turn Loop and session/agent-specific
// concerns (system prompt, model selection, available tools), kept out of
// the loop itself so callers can vary them per agent.
type RequestBuilder func(messages []message.Message) *provider.MessageRequest

// EventKind discriminates a turn-level streaming event.
type EventKind string

const (
	EventText       EventKind = "text"
	EventThinking   EventKind = "thinking"
	EventRetry      EventKind = "retry"
	EventCompaction EventKind = "compaction"
	EventStepEnd    EventKind = "step_end"
	EventTool       EventKind = "tool"
	EventDone       EventKind = "done"
)

// Event is one unit of progress a caller (sink, stdio writer, TUI) may
// subscribe to while a turn runs.
type Event struct {
	Kind    EventKind
	Text    string
	Attempt int
	NextAt  time.Time
	Tool    *scheduler.Event
}

// Config tunes one Loop.
type Config struct {
	MaxTurns          int
	AutoCompactionOn  bool
	ContextWindow     int
	MaxOutputTokens   int
	CostPerInputToken float64
	CostPerOutputTok  float64
	AgentName         string // metrics label; defaults to "default"
}

// Loop runs the step cycle for one turn of an agent conversation.
type Loop struct {
	prov      provider.Provider
	sched     *scheduler.Scheduler
	compactor Compactor
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Collector
}

// SetMetrics attaches a Collector the Loop reports turn started/completed
// metrics to. Nil is a valid no-op default.
func (l *Loop) SetMetrics(m *metrics.Collector) {
	l.metrics = m
}

// New constructs a Loop.
func New(prov provider.Provider, sched *scheduler.Scheduler, compactor Compactor, cfg Config, log *zap.Logger) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "default"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{prov: prov, sched: sched, compactor: compactor, cfg: cfg, log: log}
}

type toolCallRecord struct {
	Name  string
	Input map[string]interface{}
}

// Run drives the step cycle: compact (if needed) -> build request -> query
// model -> append the Assistant message -> if it carries no ToolUse block,
// end the turn -> else schedule its ToolUse blocks and append the resulting
// Tool-Result/Progress entries as the next User message -> repeat, up to
// cfg.MaxTurns steps.
func (l *Loop) Run(ctx context.Context, sessionID, workDir string, buildRequest RequestBuilder, permCtx *permission.Context, messages []message.Message, emit func(Event)) (result Result, outMessages []message.Message) {
	if l.metrics != nil {
		l.metrics.TurnStarted(l.cfg.AgentName)
	}
	defer func() {
		if l.metrics != nil {
			l.metrics.TurnCompleted(l.cfg.AgentName, string(result.Subtype), result.Duration.Seconds())
		}
	}()

	start := time.Now()
	var usage Usage
	var cost float64
	retryAttempt := 0
	var recentToolCalls []toolCallRecord

	for step := 0; step < l.cfg.MaxTurns; step++ {
		if err := ctx.Err(); err != nil {
			return Result{Subtype: SubtypeErrorCancelled, IsError: true, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
		}

		if l.compactor != nil && l.cfg.AutoCompactionOn {
			compacted, did, err := l.compactor.MaybeCompact(ctx, messages, usage.InputTokens)
			if err != nil {
				l.log.Warn("compaction failed, continuing with uncompacted timeline", zap.Error(err))
			} else if did {
				messages = compacted
				emit(Event{Kind: EventCompaction, Text: "context overflow: timeline compacted"})
			}
		}

		req := buildRequest(messages)

		resp, err := l.prov.CreateMessage(ctx, req)
		if err != nil {
			classified := provider.ClassifyError(err, 0, "")
			retryMsg := ""
			if classified != nil && classified.IsRetryable {
				retryMsg = classified.Message
			}
			if retryMsg == "" {
				retryMsg = session.IsRetryableError(err)
			}
			if retryMsg != "" && retryAttempt < MaxRetryAttempts {
				retryAttempt++
				delay := session.ComputeRetryDelay(retryAttempt, nil)
				emit(Event{Kind: EventRetry, Text: retryMsg, Attempt: retryAttempt, NextAt: time.Now().Add(delay)})
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return Result{Subtype: SubtypeErrorCancelled, IsError: true, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
				case <-timer.C:
				}
				step--
				continue
			}
			return Result{Subtype: SubtypeErrorModel, IsError: true, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
		}
		retryAttempt = 0

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		cost += l.cfg.CostPerInputToken*float64(resp.Usage.InputTokens) + l.cfg.CostPerOutputTok*float64(resp.Usage.OutputTokens)

		assistantMsg, toolUses := l.toAssistantMessage(resp)
		messages = append(messages, assistantMsg)

		emit(Event{Kind: EventStepEnd, Text: fmt.Sprintf("step %d", step)})

		if len(toolUses) == 0 || resp.StopReason == "end_turn" {
			emit(Event{Kind: EventDone})
			return Result{Subtype: SubtypeSuccess, IsError: false, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
		}

		requests := make([]scheduler.Request, 0, len(toolUses))
		blocked := false
		var blockedEntries []message.Block
		for _, tu := range toolUses {
			if isDoomLoop(recentToolCalls, tu.ToolName, tu.ToolInput) {
				blocked = true
				blockedEntries = append(blockedEntries, message.Block{
					Type: message.BlockToolResult, ToolUseID: tu.ToolUseID,
					Content: fmt.Sprintf("doom loop detected: %s called %d+ times with identical input; blocked", tu.ToolName, DoomLoopThreshold),
					IsError: true,
				})
				continue
			}
			recentToolCalls = append(recentToolCalls, toolCallRecord{Name: tu.ToolName, Input: tu.ToolInput})
			requests = append(requests, scheduler.Request{ToolUseID: tu.ToolUseID, ToolName: tu.ToolName, Input: tu.ToolInput})
		}

		resultBlocks := make([]message.Block, len(blockedEntries))
		copy(resultBlocks, blockedEntries)

		if len(requests) > 0 {
			fatalErr := l.sched.Run(ctx, sessionID, workDir, permCtx, requests, func(ev scheduler.Event) {
				emit(Event{Kind: EventTool, Tool: &ev})
				if ev.Kind == scheduler.EventResult {
					resultBlocks = append(resultBlocks, message.Block{
						Type:      message.BlockToolResult,
						ToolUseID: ev.ToolUseID,
						Content:   ev.Result.Output,
						IsError:   ev.Result.IsError,
					})
				}
			})
			if fatalErr != nil {
				messages = append(messages, message.Message{UUID: message.NewUUID(), Position: len(messages), Role: message.RoleUser, Blocks: resultBlocks})
				return Result{Subtype: SubtypeErrorDuringExecution, IsError: true, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
			}
		}

		messages = append(messages, message.Message{UUID: message.NewUUID(), Position: len(messages), Role: message.RoleUser, Blocks: resultBlocks})
		if blocked {
			emit(Event{Kind: EventDone})
			return Result{Subtype: SubtypeSuccess, IsError: false, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
		}
	}

	return Result{Subtype: SubtypeErrorMaxTurns, IsError: true, Usage: usage, Cost: cost, Duration: time.Since(start)}, messages
}

type toolUseBlock struct {
	ToolUseID string
	ToolName  string
	ToolInput map[string]interface{}
}

// toAssistantMessage converts a provider response into an Assistant
// message.Message, returning the ToolUse blocks found for scheduling.
func (l *Loop) toAssistantMessage(resp *provider.MessageResponse) (message.Message, []toolUseBlock) {
	msg := message.Message{UUID: message.NewUUID(), Role: message.RoleAssistant}
	var toolUses []toolUseBlock
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				msg.Blocks = append(msg.Blocks, message.Block{Type: message.BlockText, Text: b.Text})
			}
		case "thinking":
			if b.Text != "" {
				msg.Blocks = append(msg.Blocks, message.Block{Type: message.BlockThinking, Text: b.Text})
			}
		case "tool_use":
			msg.Blocks = append(msg.Blocks, message.Block{
				Type: message.BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input,
			})
			toolUses = append(toolUses, toolUseBlock{ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input})
		}
	}
	return msg, toolUses
}

// isDoomLoop reports whether the last DoomLoopThreshold-1 recorded calls are
// identical to (name, input).
func isDoomLoop(recent []toolCallRecord, name string, input map[string]interface{}) bool {
	if len(recent) < DoomLoopThreshold-1 {
		return false
	}
	inputJSON, _ := json.Marshal(input)
	inputStr := string(inputJSON)

	matchCount := 0
	for i := len(recent) - 1; i >= 0 && matchCount < DoomLoopThreshold-1; i-- {
		r := recent[i]
		if r.Name != name {
			break
		}
		rInputJSON, _ := json.Marshal(r.Input)
		if string(rInputJSON) != inputStr {
			break
		}
		matchCount++
	}
	return matchCount >= DoomLoopThreshold-1
}

// ErrForSubtype maps a terminal subtype to an enginerr sentinel, for callers
// that want errors.Is-style dispatch instead of switching on strings.
func ErrForSubtype(s ResultSubtype) error {
	switch s {
	case SubtypeErrorMaxTurns:
		return enginerr.ErrMaxTurns
	case SubtypeErrorModel:
		return enginerr.ErrModel
	case SubtypeErrorCancelled:
		return enginerr.ErrCancelled
	case SubtypeErrorDuringExecution:
		return enginerr.ErrToolExecution
	default:
		return nil
	}
}
