// Package message implements the agent turn engine's timeline: a tagged-union
// Message/Block model, normalization into per-block logical entries, tool-use
// / tool-result pairing, and the static-prefix computation the UI relies on
// to avoid redrawing stable history.
package message

import (
	"fmt"

	"github.com/google/uuid"
)

// Role discriminates the three message variants the timeline carries.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleProgress  Role = "progress"
)

// BlockType discriminates content inside an Assistant message, or the lone
// payload of a User tool-result message.
type BlockType string

const (
	BlockText          BlockType = "text"
	BlockToolUse       BlockType = "tool_use"
	BlockServerToolUse BlockType = "server_tool_use"
	BlockMcpToolUse    BlockType = "mcp_tool_use"
	BlockThinking      BlockType = "thinking"
	BlockToolResult    BlockType = "tool_result"
)

// IsToolUse reports whether a block type is scheduled as a tool use.
// ServerToolUse and McpToolUse fold into ToolUse for scheduling purposes,
// per DESIGN NOTES: "Dynamic content blocks ... ServerToolUse and McpToolUse
// are equivalent to ToolUse for scheduling and are folded at normalization."
func (t BlockType) IsToolUse() bool {
	return t == BlockToolUse || t == BlockServerToolUse || t == BlockMcpToolUse
}

// Block is a single tagged-union content block.
type Block struct {
	Type BlockType `json:"type"`

	// Text / Thinking payload.
	Text string `json:"text,omitempty"`

	// ToolUse / ServerToolUse / McpToolUse payload.
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// ToolResult payload (User message only).
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is the tagged union {User, Assistant, Progress}. UUID is stable
// across normalization (invariant: "uuid is stable across normalization").
type Message struct {
	UUID     string `json:"uuid"`
	Position int    `json:"position"`
	Role     Role   `json:"role"`

	// User payload: either Text (free text) or Blocks of BlockToolResult.
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`

	// Progress payload: references a ToolUse id and carries streamed text.
	ProgressToolUseID string `json:"progress_tool_use_id,omitempty"`
}

// NewUUID returns a fresh message/block identifier.
func NewUUID() string { return uuid.NewString() }

// EntryKind discriminates a normalized, per-block logical entry.
type EntryKind string

const (
	EntryText       EntryKind = "text"
	EntryToolUse    EntryKind = "tool_use"
	EntryToolResult EntryKind = "tool_result"
	EntryProgress   EntryKind = "progress"
)

// Entry is one logical, schedulable unit of the normalized timeline. A
// multi-block Assistant message is flattened into one Entry per block; a
// User tool-result message is flattened into one Entry per tool-result
// block; a plain-text User message becomes a single text Entry.
type Entry struct {
	UUID       string `json:"uuid"`
	ParentUUID string `json:"parent_uuid"` // owning Message's uuid
	BlockIndex int    `json:"block_index"`
	Position   int    `json:"position"` // inherited from the owning Message
	Kind       EntryKind
	Role       Role

	Text string

	ToolUseID string
	ToolName  string
	ToolInput map[string]any

	Content string
	IsError bool
}

// Diagnostic records a dropped or malformed block encountered during
// normalization. Normalization itself never fails (spec §4.1: "normalization
// never fails; malformed blocks are dropped with a diagnostic").
type Diagnostic struct {
	MessageUUID string
	BlockIndex  int
	Reason      string
}

// Normalize flattens a raw message slice into the canonical per-block Entry
// sequence used by scheduling and the UI. Each ToolUse block becomes its own
// Entry with uuid = "{parent_uuid}:{block_index}"; text blocks are lifted
// the same way.
func Normalize(messages []Message) ([]Entry, []Diagnostic) {
	var entries []Entry
	var diags []Diagnostic

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			if len(msg.Blocks) == 0 {
				entries = append(entries, Entry{
					UUID:       blockUUID(msg.UUID, 0),
					ParentUUID: msg.UUID,
					BlockIndex: 0,
					Position:   msg.Position,
					Kind:       EntryText,
					Role:       RoleUser,
					Text:       msg.Text,
				})
				continue
			}
			for i, b := range msg.Blocks {
				if b.Type != BlockToolResult {
					diags = append(diags, Diagnostic{MessageUUID: msg.UUID, BlockIndex: i, Reason: "user block is not a tool_result"})
					continue
				}
				if b.ToolUseID == "" {
					diags = append(diags, Diagnostic{MessageUUID: msg.UUID, BlockIndex: i, Reason: "tool_result missing tool_use_id"})
					continue
				}
				entries = append(entries, Entry{
					UUID:       blockUUID(msg.UUID, i),
					ParentUUID: msg.UUID,
					BlockIndex: i,
					Position:   msg.Position,
					Kind:       EntryToolResult,
					Role:       RoleUser,
					ToolUseID:  b.ToolUseID,
					Content:    b.Content,
					IsError:    b.IsError,
				})
			}

		case RoleAssistant:
			for i, b := range msg.Blocks {
				switch {
				case b.Type == BlockText || b.Type == BlockThinking:
					entries = append(entries, Entry{
						UUID:       blockUUID(msg.UUID, i),
						ParentUUID: msg.UUID,
						BlockIndex: i,
						Position:   msg.Position,
						Kind:       EntryText,
						Role:       RoleAssistant,
						Text:       b.Text,
					})
				case b.Type.IsToolUse():
					if b.ToolUseID == "" || b.ToolName == "" {
						diags = append(diags, Diagnostic{MessageUUID: msg.UUID, BlockIndex: i, Reason: "tool_use missing id or name"})
						continue
					}
					entries = append(entries, Entry{
						UUID:       blockUUID(msg.UUID, i),
						ParentUUID: msg.UUID,
						BlockIndex: i,
						Position:   msg.Position,
						Kind:       EntryToolUse,
						Role:       RoleAssistant,
						ToolUseID:  b.ToolUseID,
						ToolName:   b.ToolName,
						ToolInput:  b.ToolInput,
					})
				default:
					diags = append(diags, Diagnostic{MessageUUID: msg.UUID, BlockIndex: i, Reason: fmt.Sprintf("unrecognized block type %q", b.Type)})
				}
			}

		case RoleProgress:
			entries = append(entries, Entry{
				UUID:       blockUUID(msg.UUID, 0),
				ParentUUID: msg.UUID,
				BlockIndex: 0,
				Position:   msg.Position,
				Kind:       EntryProgress,
				Role:       RoleProgress,
				ToolUseID:  msg.ProgressToolUseID,
				Text:       msg.Text,
			})

		default:
			diags = append(diags, Diagnostic{MessageUUID: msg.UUID, Reason: fmt.Sprintf("unrecognized role %q", msg.Role)})
		}
	}

	return entries, diags
}

func blockUUID(parent string, idx int) string {
	return fmt.Sprintf("%s:%d", parent, idx)
}

// Reorder pairs each ToolUse entry with its matching Tool-Result immediately
// after it, leaving everything else stable. Ties (multiple ToolUse entries
// waiting on results) are broken by original position.
func Reorder(entries []Entry) []Entry {
	resultsByToolUse := make(map[string]Entry, len(entries))
	consumed := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Kind == EntryToolResult {
			resultsByToolUse[e.ToolUseID] = e
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == EntryToolResult {
			if consumed[e.ToolUseID] {
				continue // already emitted right after its ToolUse
			}
			out = append(out, e)
			continue
		}
		out = append(out, e)
		if e.Kind == EntryToolUse {
			if res, ok := resultsByToolUse[e.ToolUseID]; ok && !consumed[e.ToolUseID] {
				out = append(out, res)
				consumed[e.ToolUseID] = true
			}
		}
	}
	return out
}

// UnresolvedToolUseIDs returns the set of ToolUse ids with no matching
// Tool-Result anywhere in entries.
func UnresolvedToolUseIDs(entries []Entry) map[string]bool {
	used := make(map[string]bool)
	resolved := make(map[string]bool)
	for _, e := range entries {
		switch e.Kind {
		case EntryToolUse:
			used[e.ToolUseID] = true
		case EntryToolResult:
			resolved[e.ToolUseID] = true
		}
	}
	unresolved := make(map[string]bool)
	for id := range used {
		if !resolved[id] {
			unresolved[id] = true
		}
	}
	return unresolved
}

// StaticPrefixLength returns the largest prefix of ordered such that no
// entry in the prefix references a ToolUse id in unresolved, and no entry in
// the prefix follows an entry that does. Used by the UI to memoize a stable
// visible history (entries past this point may still be rewritten by later
// tool-use/tool-result pairing).
func StaticPrefixLength(ordered []Entry, unresolved map[string]bool) int {
	for i, e := range ordered {
		switch e.Kind {
		case EntryToolUse, EntryProgress:
			if unresolved[e.ToolUseID] {
				return i
			}
		case EntryToolResult:
			if unresolved[e.ToolUseID] {
				return i
			}
		}
	}
	return len(ordered)
}
