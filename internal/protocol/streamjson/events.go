// Package streamjson implements the stdio Stream-JSON session protocol
// (spec §6): one JSON object per line, covering the host-facing assistant
// and user message events, the system/init banner, the terminal result
// event, control request/response framing for interrupt handling, and the
// low-level streaming (message_start/content_block_*/message_delta/stop)
// event family.
//
// The event struct family and Writer are ported near-verbatim from
// other_examples' dm-vev-OpenClaude__internal-streamjson-events.go.go, which
// already implements this exact wire protocol against an OpenAI-backed
// gateway; this package retargets the Build* constructors at
// internal/engine/message's Message/Block model and internal/engine/turn's
// Result instead of at openai.Message.
package streamjson

import "encoding/json"

// Message is the Claude-style message payload carried by AssistantEvent and
// UserEvent.
type Message struct {
	ID           string           `json:"id,omitempty"`
	Container    *json.RawMessage `json:"container,omitempty"`
	Model        string           `json:"model,omitempty"`
	Role         string           `json:"role"`
	StopReason   string           `json:"stop_reason,omitempty"`
	StopSequence *string          `json:"stop_sequence,omitempty"`
	Type         string           `json:"type,omitempty"`
	Usage        *MessageUsage    `json:"usage,omitempty"`
	Content      any              `json:"content"`
}

// ContentBlock is an Anthropic-style content block.
type ContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// MessageUsage reports Claude-style token usage.
type MessageUsage struct {
	InputTokens              int     `json:"input_tokens"`
	OutputTokens             int     `json:"output_tokens"`
	CacheCreationInputTokens int     `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int     `json:"cache_read_input_tokens"`
	ServiceTier              *string `json:"service_tier"`
}

// AssistantEvent is an outgoing `{type:"assistant", ...}` line.
type AssistantEvent struct {
	Type            string `json:"type"`
	Message         Message `json:"message"`
	SessionID       string `json:"session_id"`
	ParentToolUseID any    `json:"parent_tool_use_id"`
	UUID            string `json:"uuid"`
}

// UserEvent is both the incoming `{type:"user", ...}` line and its
// outgoing replay/echo.
type UserEvent struct {
	Type            string  `json:"type"`
	Message         Message `json:"message"`
	SessionID       string  `json:"session_id,omitempty"`
	ParentToolUseID any     `json:"parent_tool_use_id,omitempty"`
	UUID            string  `json:"uuid"`
	IsReplay        bool    `json:"isReplay,omitempty"`
}

// SystemInitEvent is the outgoing `{type:"system", subtype:"init", ...}`
// banner emitted once at session start.
type SystemInitEvent struct {
	Type           string   `json:"type"`
	Subtype        string   `json:"subtype"`
	CWD            string   `json:"cwd"`
	SessionID      string   `json:"session_id"`
	Tools          []string `json:"tools"`
	Model          string   `json:"model"`
	PermissionMode string   `json:"permissionMode"`
	SlashCommands  []string `json:"slash_commands,omitempty"`
	UUID           string   `json:"uuid"`
}

// ProgressEvent mirrors a scheduler.EventProgress onto the wire, scoped to
// the ToolUse it streams incremental output for.
type ProgressEvent struct {
	Type            string       `json:"type"`
	Data            ProgressData `json:"data"`
	SessionID       string       `json:"session_id"`
	ParentToolUseID string       `json:"parent_tool_use_id,omitempty"`
	UUID            string       `json:"uuid"`
}

// ProgressData is a ProgressEvent's payload.
type ProgressData struct {
	Type     string `json:"type"`
	ToolName string `json:"tool_name,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ControlRequestEvent is an incoming `{type:"control_request", ...}` line —
// currently only the "interrupt" subtype is recognized.
type ControlRequestEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   any    `json:"request"`
}

// InterruptRequest is the Request payload of a ControlRequestEvent whose
// subtype is "interrupt".
type InterruptRequest struct {
	Subtype string `json:"subtype"`
}

// ControlResponseEvent is the outgoing ACK/result for a ControlRequestEvent.
type ControlResponseEvent struct {
	Type     string                `json:"type"`
	Response ControlResponsePayload `json:"response"`
}

// ControlResponsePayload carries the subtype/request_id pair spec §6
// requires on every control_response.
type ControlResponsePayload struct {
	Subtype   string `json:"subtype"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// ResultEvent is the terminal `{type:"result", ...}` line closing a turn.
type ResultEvent struct {
	Type          string  `json:"type"`
	Subtype       string  `json:"subtype"`
	IsError       bool    `json:"is_error"`
	DurationMS    int64   `json:"duration_ms"`
	DurationAPIMS int64   `json:"duration_api_ms"`
	NumTurns      int     `json:"num_turns"`
	SessionID     string  `json:"session_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	Usage         any     `json:"usage"`
	UUID          string  `json:"uuid"`
}

// StreamEvent wraps one low-level streaming event.
type StreamEvent struct {
	Type            string `json:"type"`
	Event           any    `json:"event"`
	SessionID       string `json:"session_id"`
	ParentToolUseID any    `json:"parent_tool_use_id"`
	UUID            string `json:"uuid"`
}

// MessageStartEvent opens a streamed assistant message.
type MessageStartEvent struct {
	Type    string        `json:"type"`
	Message StreamMessage `json:"message"`
}

// StreamMessage is a streaming assistant message header.
type StreamMessage struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	Content      []any  `json:"content"`
	StopReason   any    `json:"stop_reason"`
	StopSequence any    `json:"stop_sequence"`
}

// ContentBlockStartEvent opens a streamed content block.
type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// ContentBlockDeltaEvent carries one incremental content chunk.
type ContentBlockDeltaEvent struct {
	Type  string      `json:"type"`
	Index int         `json:"index"`
	Delta StreamDelta `json:"delta"`
}

// StreamDelta is a ContentBlockDeltaEvent's payload.
type StreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockStopEvent closes a streamed content block.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaEvent carries message-level stream metadata updates.
type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
}

// MessageDelta is a MessageDeltaEvent's payload.
type MessageDelta struct {
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence any    `json:"stop_sequence,omitempty"`
}

// MessageStopEvent closes a streamed assistant message.
type MessageStopEvent struct {
	Type string `json:"type"`
}
