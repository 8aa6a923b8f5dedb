package hook

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreToolUseExitZeroAllows(t *testing.T) {
	cfg := Config{PreToolUse: []MatcherConfig{{Hooks: []Hook{{Command: "exit 0"}}}}}
	d := New(cfg, nil)
	res := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	assert.True(t, res.Allowed)
}

func TestRunPreToolUseExitTwoBlocksWithStderr(t *testing.T) {
	cfg := Config{PreToolUse: []MatcherConfig{{Hooks: []Hook{{Command: "echo BLOCKED 1>&2; exit 2"}}}}}
	d := New(cfg, nil)
	res := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	require.False(t, res.Allowed)
	assert.True(t, res.IsBlock)
	assert.Contains(t, res.Message, "BLOCKED")
}

func TestRunPreToolUseExitOneWarnsButAllows(t *testing.T) {
	cfg := Config{PreToolUse: []MatcherConfig{{Hooks: []Hook{{Command: "echo warn 1>&2; exit 1"}}}}}
	d := New(cfg, nil)
	res := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	assert.True(t, res.Allowed)
	assert.Contains(t, res.Message, "warn")
}

func TestStructuredPermissionDecisionDenyOverridesExitCode(t *testing.T) {
	cmd := `echo '{"hookSpecificOutput":{"permissionDecision":"deny","permissionDecisionReason":"nope"}}'; exit 0`
	cfg := Config{PreToolUse: []MatcherConfig{{Hooks: []Hook{{Command: cmd}}}}}
	d := New(cfg, nil)
	res := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	require.False(t, res.Allowed)
	assert.Equal(t, "nope", res.Message)
}

func TestStructuredPermissionDecisionAllowWithUpdatedInput(t *testing.T) {
	cmd := `echo '{"hookSpecificOutput":{"permissionDecision":"allow","updatedInput":{"command":"ls -la"}}}'`
	cfg := Config{PreToolUse: []MatcherConfig{{Hooks: []Hook{{Command: cmd}}}}}
	d := New(cfg, nil)
	res := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	require.True(t, res.Allowed)
	assert.True(t, res.ForceAllow)
	assert.Equal(t, "ls -la", res.ModifiedInput["command"])
}

func TestMatcherRegexScopesHookToToolName(t *testing.T) {
	cfg := Config{PreToolUse: []MatcherConfig{{
		Matcher: regexp.MustCompile("bash|edit"),
		Hooks:   []Hook{{Command: "exit 2"}},
	}}}
	d := New(cfg, nil)
	blocked := d.RunPreToolUse(context.Background(), Input{ToolName: "bash"})
	assert.False(t, blocked.Allowed)

	passed := d.RunPreToolUse(context.Background(), Input{ToolName: "read"})
	assert.True(t, passed.Allowed)
}
