package streamjson

import (
	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/turn"
)

// BuildAssistantEvent converts an Assistant message.Message into the
// outgoing `{type:"assistant", ...}` line.
func BuildAssistantEvent(sessionID string, msg message.Message) AssistantEvent {
	return AssistantEvent{
		Type:            "assistant",
		Message:         toWireMessage("assistant", msg),
		SessionID:       sessionID,
		ParentToolUseID: nil,
		UUID:            msg.UUID,
	}
}

// BuildUserEvent converts a User message.Message (free text, or Tool-Result
// blocks) into the outgoing `{type:"user", ...}` line. isReplay marks a line
// that echoes an already-processed incoming user entry rather than a fresh
// one (spec §6: "duplicates by uuid are suppressed from execution").
func BuildUserEvent(sessionID string, msg message.Message, isReplay bool) UserEvent {
	return UserEvent{
		Type:            "user",
		Message:         toWireMessage("user", msg),
		SessionID:       sessionID,
		ParentToolUseID: nil,
		UUID:            msg.UUID,
		IsReplay:        isReplay,
	}
}

func toWireMessage(role string, msg message.Message) Message {
	if len(msg.Blocks) == 0 {
		return Message{Type: "message", Role: role, Content: msg.Text}
	}
	blocks := make([]ContentBlock, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch {
		case b.Type == message.BlockToolResult:
			blocks = append(blocks, ContentBlock{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   b.Content,
				IsError:   b.IsError,
			})
		case b.Type.IsToolUse():
			blocks = append(blocks, ContentBlock{
				Type:  "tool_use",
				ID:    b.ToolUseID,
				Name:  b.ToolName,
				Input: b.ToolInput,
			})
		case b.Type == message.BlockThinking:
			blocks = append(blocks, ContentBlock{Type: "thinking", Text: b.Text})
		default:
			blocks = append(blocks, ContentBlock{Type: "text", Text: b.Text})
		}
	}
	return Message{Type: "message", Role: role, Content: blocks}
}

// BuildSystemInitEvent builds the one-shot banner emitted at session start.
func BuildSystemInitEvent(sessionID, cwd, model, permissionMode string, tools, slashCommands []string) SystemInitEvent {
	return SystemInitEvent{
		Type:           "system",
		Subtype:        "init",
		CWD:            cwd,
		SessionID:      sessionID,
		Tools:          tools,
		Model:          model,
		PermissionMode: permissionMode,
		SlashCommands:  slashCommands,
		UUID:           NewUUID(),
	}
}

// BuildProgressEvent wraps a scheduler progress line for the given ToolUse.
func BuildProgressEvent(sessionID, toolUseID, toolName, text string) ProgressEvent {
	return ProgressEvent{
		Type: "progress",
		Data: ProgressData{
			Type:     "tool_progress",
			ToolName: toolName,
			Message:  text,
		},
		SessionID:       sessionID,
		ParentToolUseID: toolUseID,
		UUID:            NewUUID(),
	}
}

// BuildResultEvent converts a turn.Result into the terminal result line.
func BuildResultEvent(sessionID string, numTurns int, res turn.Result) ResultEvent {
	return ResultEvent{
		Type:          "result",
		Subtype:       string(res.Subtype),
		IsError:       res.IsError,
		DurationMS:    res.Duration.Milliseconds(),
		DurationAPIMS: res.Duration.Milliseconds(),
		NumTurns:      numTurns,
		SessionID:     sessionID,
		TotalCostUSD:  res.Cost,
		Usage: map[string]int{
			"input_tokens":  res.Usage.InputTokens,
			"output_tokens": res.Usage.OutputTokens,
		},
		UUID: NewUUID(),
	}
}

// BuildControlResponse acknowledges or fails a control request.
func BuildControlResponse(requestID string, err error) ControlResponseEvent {
	if err != nil {
		return ControlResponseEvent{
			Type: "control_response",
			Response: ControlResponsePayload{
				Subtype:   "error",
				RequestID: requestID,
				Error:     err.Error(),
			},
		}
	}
	return ControlResponseEvent{
		Type: "control_response",
		Response: ControlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
		},
	}
}

// BuildStreamEventsForText synthesizes the message_start /
// content_block_start / content_block_delta* / content_block_stop /
// message_delta / message_stop sequence for one completed assistant text
// block, chunked into chunkSize-rune deltas.
func BuildStreamEventsForText(sessionID, model, text string, chunkSize int) []StreamEvent {
	if text == "" {
		return nil
	}
	messageID := NewUUID()
	events := []StreamEvent{
		wrap(sessionID, MessageStartEvent{
			Type: "message_start",
			Message: StreamMessage{
				ID:      messageID,
				Type:    "message",
				Role:    "assistant",
				Model:   model,
				Content: []any{},
			},
		}),
		wrap(sessionID, ContentBlockStartEvent{
			Type:         "content_block_start",
			Index:        0,
			ContentBlock: ContentBlock{Type: "text"},
		}),
	}
	for _, chunk := range splitText(text, chunkSize) {
		events = append(events, wrap(sessionID, ContentBlockDeltaEvent{
			Type:  "content_block_delta",
			Index: 0,
			Delta: StreamDelta{Type: "text_delta", Text: chunk},
		}))
	}
	events = append(events,
		wrap(sessionID, ContentBlockStopEvent{Type: "content_block_stop", Index: 0}),
		wrap(sessionID, MessageDeltaEvent{Type: "message_delta", Delta: MessageDelta{StopReason: "end_turn"}}),
		wrap(sessionID, MessageStopEvent{Type: "message_stop"}),
	)
	return events
}

func wrap(sessionID string, event any) StreamEvent {
	return StreamEvent{
		Type:            "stream_event",
		Event:           event,
		SessionID:       sessionID,
		ParentToolUseID: nil,
		UUID:            NewUUID(),
	}
}

func splitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	chunks := make([]string, 0, len(runes)/chunkSize+1)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
