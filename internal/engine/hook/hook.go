// Package hook implements the agent turn engine's Hook Dispatcher:
// discovery of PreToolUse/PostToolUse/SessionStart registrations, the JSON
// stdin contract, and exit-code/structured-output interpretation.
//
// Type shapes are ported from vvoland-cagent's pkg/hooks (EventType, Hook,
// MatcherConfig, Input, Output, HookSpecificOutput, Decision, Result);
// process-execution mechanics (timeout, stdout/stderr capture, exit-code
// extraction) follow internal/tool/bash.go's command-running idiom.
package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EventType is the hook lifecycle event name.
type EventType string

const (
	EventPreToolUse    EventType = "PreToolUse"
	EventPostToolUse   EventType = "PostToolUse"
	EventSessionStart  EventType = "SessionStart"
)

// Hook is one external-command registration.
type Hook struct {
	Command string
	Timeout time.Duration // zero means DefaultTimeout
}

// DefaultTimeout is the hook command timeout used when Hook.Timeout is unset.
const DefaultTimeout = 60 * time.Second

func (h Hook) timeout() time.Duration {
	if h.Timeout <= 0 {
		return DefaultTimeout
	}
	return h.Timeout
}

// MatcherConfig pairs a tool-name regex matcher with the hooks it fires.
type MatcherConfig struct {
	Matcher *regexp.Regexp // nil matches every tool
	Hooks   []Hook
}

func (m MatcherConfig) matches(toolName string) bool {
	if m.Matcher == nil {
		return true
	}
	return m.Matcher.MatchString(toolName)
}

// Config is the full hook registration set, sourced from project, user,
// policy, and plugin scopes (the Dispatcher does not distinguish scopes at
// evaluation time; all configured hooks for a matching event/tool fire).
type Config struct {
	PreToolUse   []MatcherConfig
	PostToolUse  []MatcherConfig
	SessionStart []Hook
}

func (c Config) IsEmpty() bool {
	return len(c.PreToolUse) == 0 && len(c.PostToolUse) == 0 && len(c.SessionStart) == 0
}

// Input is the JSON object delivered to a hook handler on stdin.
type Input struct {
	SessionID     string         `json:"session_id"`
	Cwd           string         `json:"cwd"`
	HookEventName EventType      `json:"hook_event_name"`
	ToolName      string         `json:"tool_name,omitempty"`
	ToolUseID     string         `json:"tool_use_id,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolResponse  any            `json:"tool_response,omitempty"`
	Source        string         `json:"source,omitempty"`
}

// Decision is a hook's permission decision for PreToolUse.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// HookSpecificOutput carries PreToolUse/PostToolUse structured fields.
type HookSpecificOutput struct {
	HookEventName            EventType      `json:"hookEventName,omitempty"`
	PermissionDecision        Decision       `json:"permissionDecision,omitempty"`
	PermissionDecisionReason  string         `json:"permissionDecisionReason,omitempty"`
	UpdatedInput              map[string]any `json:"updatedInput,omitempty"`
	AdditionalContext         string         `json:"additionalContext,omitempty"`
}

// Output is the JSON object a hook handler may write to stdout.
type Output struct {
	SystemMessage      string              `json:"systemMessage,omitempty"`
	Decision           string              `json:"decision,omitempty"` // "block"
	Reason             string              `json:"reason,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

func (o Output) isBlocked() bool { return o.Decision == "block" }

// Result is the Dispatcher's interpreted outcome of running one hook.
type Result struct {
	Allowed           bool
	ForceAllow        bool // bypasses the Permission Engine for this call
	ModifiedInput     map[string]any
	Message           string // warning (exit 1) or block (exit 2) content
	IsBlock           bool
	SystemMessage     string
	AdditionalContext string
}

// Dispatcher runs hook handlers against the stdin JSON contract.
type Dispatcher struct {
	cfg Config
	log *zap.Logger
}

// New constructs a Dispatcher for the given registration set.
func New(cfg Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, log: log}
}

// RunPreToolUse dispatches all PreToolUse hooks matching toolName, in
// registration order, short-circuiting on the first block/deny.
func (d *Dispatcher) RunPreToolUse(ctx context.Context, in Input) Result {
	for _, mc := range d.cfg.PreToolUse {
		if !mc.matches(in.ToolName) {
			continue
		}
		for _, h := range mc.Hooks {
			res := d.runOne(ctx, h, in)
			if !res.Allowed {
				return res
			}
			if res.ForceAllow {
				return res
			}
		}
	}
	return Result{Allowed: true}
}

// RunPostToolUse dispatches all PostToolUse hooks matching toolName. Unlike
// PreToolUse, failures are collected as warnings; they never retroactively
// undo an already-emitted Tool-Result.
func (d *Dispatcher) RunPostToolUse(ctx context.Context, in Input) []Result {
	var results []Result
	for _, mc := range d.cfg.PostToolUse {
		if !mc.matches(in.ToolName) {
			continue
		}
		for _, h := range mc.Hooks {
			results = append(results, d.runOne(ctx, h, in))
		}
	}
	return results
}

// RunSessionStart dispatches all SessionStart hooks and concatenates their
// additionalContext for the next system prompt.
func (d *Dispatcher) RunSessionStart(ctx context.Context, in Input) (additionalContext string) {
	var parts []string
	for _, h := range d.cfg.SessionStart {
		res := d.runOne(ctx, h, in)
		if res.AdditionalContext != "" {
			parts = append(parts, res.AdditionalContext)
		}
	}
	return strings.Join(parts, "\n\n")
}

// runOne executes a single hook handler: writes Input as JSON to stdin,
// reads stdout/stderr, and interprets the result per spec §4.3. Timeout,
// exec failure, or malformed JSON are all treated as "1" (warning) and
// never propagate as an error — hooks must never crash the turn.
func (d *Dispatcher) runOne(ctx context.Context, h Hook, in Input) Result {
	cmdCtx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		d.log.Warn("hook input marshal failed", zap.Error(err))
		return Result{Allowed: true}
	}

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", h.Command)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	envFile, cleanup := d.prepareEnvFile()
	defer cleanup()
	cmd.Env = append(os.Environ(), "CLAUDE_ENV_FILE="+envFile)

	runErr := cmd.Run()

	// Per §9 Open Question resolution: apply env-file exports first, then
	// evaluate the structured decision.
	d.applyEnvFile(envFile)

	if cmdCtx.Err() == context.DeadlineExceeded {
		d.log.Warn("hook timed out", zap.String("command", h.Command))
		return Result{Allowed: true, Message: "hook timed out"}
	}

	if out, ok := parseOutput(stdout.Bytes()); ok {
		if out.HookSpecificOutput != nil && out.HookSpecificOutput.PermissionDecision != "" {
			switch out.HookSpecificOutput.PermissionDecision {
			case DecisionDeny:
				return Result{Allowed: false, IsBlock: true, Message: out.HookSpecificOutput.PermissionDecisionReason, SystemMessage: out.SystemMessage}
			case DecisionAllow:
				return Result{
					Allowed:           true,
					ForceAllow:        true,
					ModifiedInput:     out.HookSpecificOutput.UpdatedInput,
					AdditionalContext: out.HookSpecificOutput.AdditionalContext,
					SystemMessage:     out.SystemMessage,
				}
			}
		}
		if out.isBlocked() {
			return Result{Allowed: false, IsBlock: true, Message: out.Reason, SystemMessage: out.SystemMessage}
		}
		if out.HookSpecificOutput != nil {
			return Result{Allowed: true, AdditionalContext: out.HookSpecificOutput.AdditionalContext, SystemMessage: out.SystemMessage}
		}
	}

	exitCode := exitCodeOf(runErr)
	switch exitCode {
	case 0:
		return Result{Allowed: true}
	case 2:
		return Result{Allowed: false, IsBlock: true, Message: stderr.String()}
	default:
		// exit code 1, or any other non-zero, is treated as a warning.
		return Result{Allowed: true, Message: stderr.String()}
	}
}

func parseOutput(stdout []byte) (Output, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Output{}, false
	}
	var out Output
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return Output{}, false
	}
	if err := json.Unmarshal(scanner.Bytes(), &out); err != nil {
		return Output{}, false
	}
	return out, true
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func (d *Dispatcher) prepareEnvFile() (path string, cleanup func()) {
	f, err := os.CreateTemp("", "dcode-hook-env-*.env")
	if err != nil {
		d.log.Warn("could not create hook env file", zap.Error(err))
		return "", func() {}
	}
	name := f.Name()
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }
}

// applyEnvFile reads a key=value block a hook may have written to
// CLAUDE_ENV_FILE and exports each variable into the current process, for
// subsequent operations in this turn.
func (d *Dispatcher) applyEnvFile(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			d.log.Warn("failed to export hook env var", zap.String("key", key), zap.Error(err))
		}
	}
}
