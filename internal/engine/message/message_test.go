package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFlattensAssistantBlocks(t *testing.T) {
	msgs := []Message{
		{
			UUID: "m1", Position: 0, Role: RoleAssistant,
			Blocks: []Block{
				{Type: BlockText, Text: "let me check"},
				{Type: BlockToolUse, ToolUseID: "t1", ToolName: "bash", ToolInput: map[string]any{"command": "pwd"}},
			},
		},
	}

	entries, diags := Normalize(msgs)
	require.Empty(t, diags)
	require.Len(t, entries, 2)
	assert.Equal(t, "m1:0", entries[0].UUID)
	assert.Equal(t, EntryText, entries[0].Kind)
	assert.Equal(t, "m1:1", entries[1].UUID)
	assert.Equal(t, EntryToolUse, entries[1].Kind)
	assert.Equal(t, "t1", entries[1].ToolUseID)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	msgs := []Message{
		{UUID: "m1", Role: RoleUser, Text: "hello"},
		{UUID: "m2", Role: RoleAssistant, Blocks: []Block{{Type: BlockText, Text: "hi"}}},
	}
	first, _ := Normalize(msgs)
	// Re-normalizing the same raw input must produce identical entries.
	second, _ := Normalize(msgs)
	assert.Equal(t, first, second)
}

func TestNormalizeFoldsServerAndMcpToolUse(t *testing.T) {
	msgs := []Message{
		{UUID: "m1", Role: RoleAssistant, Blocks: []Block{
			{Type: BlockServerToolUse, ToolUseID: "t1", ToolName: "web_search"},
			{Type: BlockMcpToolUse, ToolUseID: "t2", ToolName: "mcp_tool"},
		}},
	}
	entries, diags := Normalize(msgs)
	require.Empty(t, diags)
	require.Len(t, entries, 2)
	assert.Equal(t, EntryToolUse, entries[0].Kind)
	assert.Equal(t, EntryToolUse, entries[1].Kind)
}

func TestNormalizeDropsMalformedBlocksWithDiagnostic(t *testing.T) {
	msgs := []Message{
		{UUID: "m1", Role: RoleAssistant, Blocks: []Block{
			{Type: BlockToolUse, ToolUseID: "", ToolName: ""}, // missing id/name
		}},
		{UUID: "m2", Role: RoleUser, Blocks: []Block{
			{Type: BlockText, Text: "not a tool result"},
		}},
	}
	entries, diags := Normalize(msgs)
	assert.Empty(t, entries)
	require.Len(t, diags, 2)
}

func TestUnresolvedToolUseIDs(t *testing.T) {
	entries := []Entry{
		{Kind: EntryToolUse, ToolUseID: "t1"},
		{Kind: EntryToolUse, ToolUseID: "t2"},
		{Kind: EntryToolResult, ToolUseID: "t1"},
	}
	unresolved := UnresolvedToolUseIDs(entries)
	assert.True(t, unresolved["t2"])
	assert.False(t, unresolved["t1"])
}

func TestReorderPairsToolUseWithResult(t *testing.T) {
	entries := []Entry{
		{UUID: "a", Kind: EntryToolUse, ToolUseID: "t1"},
		{UUID: "b", Kind: EntryToolUse, ToolUseID: "t2"},
		{UUID: "c", Kind: EntryToolResult, ToolUseID: "t1"},
		{UUID: "d", Kind: EntryToolResult, ToolUseID: "t2"},
	}
	ordered := Reorder(entries)
	require.Len(t, ordered, 4)
	assert.Equal(t, []string{"a", "c", "b", "d"}, uuids(ordered))
}

func TestStaticPrefixLengthMonotonicAcrossResolvingAppend(t *testing.T) {
	entries := []Entry{
		{Kind: EntryText, ToolUseID: ""},
		{Kind: EntryToolUse, ToolUseID: "t1"},
	}
	unresolved := map[string]bool{"t1": true}
	before := StaticPrefixLength(entries, unresolved)
	assert.Equal(t, 1, before)

	// Appending the matching result does not un-resolve t1; prefix must not shrink.
	resolved := append(entries, Entry{Kind: EntryToolResult, ToolUseID: "t1"})
	after := StaticPrefixLength(resolved, map[string]bool{})
	assert.GreaterOrEqual(t, after, before)
}

func uuids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UUID
	}
	return out
}
