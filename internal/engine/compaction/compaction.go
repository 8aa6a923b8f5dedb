// Package compaction implements the agent turn engine's Auto-Compaction:
// overflow detection, compaction-model selection, a structured
// summarization request, and timeline-prefix replacement with a synthetic
// summary plus recovered-file entries.
//
// The CompactionPromptText wording and the summarization request shape
// generalize an IsOverflow/BuildCompactionMessages
// pair built for per-tool-output pruning (PruneToolOutputs) into full-prefix
// replacement of the message.Message timeline.
package compaction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/metrics"
	"github.com/yourusername/dcode/internal/provider"
)

// DefaultRatio is the fraction of the context window at which compaction
// triggers (spec default: 0.9).
const DefaultRatio = 0.9

// DefaultMinEntries is the minimum timeline length before compaction is
// considered worthwhile — compacting a 1-2 entry timeline saves nothing.
const DefaultMinEntries = 3

// OutputTokenMax is the default for Config.MaxOutput. IsOverflow uses neither
// value; its trigger is Ratio × ContextWindow alone.
const OutputTokenMax = 12288

// CompactionPromptText is the summarization instruction sent to the
// compaction model.
const CompactionPromptText = `Provide a detailed prompt for continuing our conversation above. Focus on information that would be helpful for continuing the conversation, including what we did, what we're doing, which files we're working on, and what we're going to do next considering new session will not have access to our conversation.`

// Config tunes one Engine.
type Config struct {
	Ratio         float64 // 0 means DefaultRatio
	ContextWindow int
	MaxOutput     int // 0 means OutputTokenMax
	MinEntries    int // 0 means DefaultMinEntries
}

// Engine runs Auto-Compaction against a message.Message timeline.
type Engine struct {
	prov         provider.Provider
	compactModel string // preferred model for the summarization call
	mainModel    string // fallback when compactModel is unset
	cfg          Config
	log          *zap.Logger
	metrics      *metrics.Collector
}

// SetMetrics attaches a Collector the Engine reports compaction-trigger
// metrics to. Nil is a valid no-op default.
func (e *Engine) SetMetrics(m *metrics.Collector) {
	e.metrics = m
}

// New constructs an Engine. compactModel may be empty, in which case
// mainModel is used for the summarization call too.
func New(prov provider.Provider, compactModel, mainModel string, cfg Config, log *zap.Logger) *Engine {
	if cfg.Ratio <= 0 {
		cfg.Ratio = DefaultRatio
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = OutputTokenMax
	}
	if cfg.MinEntries <= 0 {
		cfg.MinEntries = DefaultMinEntries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{prov: prov, compactModel: compactModel, mainModel: mainModel, cfg: cfg, log: log}
}

// IsOverflow reports whether inputTokens exceeds Ratio × ContextWindow. A
// zero ContextWindow disables the check.
func (e *Engine) IsOverflow(inputTokens int) bool {
	if e.cfg.ContextWindow == 0 {
		return false
	}
	return float64(inputTokens) > e.cfg.Ratio*float64(e.cfg.ContextWindow)
}

// MaybeCompact implements turn.Compactor. On overflow with a long-enough
// timeline it replaces the timeline with {synthetic User request, synthetic
// Assistant summary, recovered-file User entries} and returns (newTimeline,
// true, nil). On any failure — or when compaction isn't triggered — it
// returns the original timeline unchanged with did=false, per spec: "failure
// leaves the timeline unchanged".
func (e *Engine) MaybeCompact(ctx context.Context, messages []message.Message, inputTokens int) ([]message.Message, bool, error) {
	if !e.IsOverflow(inputTokens) {
		return messages, false, nil
	}
	if len(messages) < e.cfg.MinEntries {
		return messages, false, nil
	}

	model := e.compactModel
	if model == "" {
		model = e.mainModel
	}

	summary, err := e.summarize(ctx, messages, model)
	if err != nil {
		e.log.Warn("compaction summarization failed, leaving timeline unchanged", zap.Error(err))
		e.recordTrigger("skipped")
		return messages, false, nil
	}
	e.recordTrigger("summarized")

	recovered := recoverRelevantFiles(messages, summary)

	replacement := make([]message.Message, 0, 2+len(recovered))
	replacement = append(replacement,
		message.Message{UUID: message.NewUUID(), Role: message.RoleUser, Text: CompactionPromptText},
		message.Message{UUID: message.NewUUID(), Role: message.RoleAssistant, Text: summary},
	)
	for _, path := range recovered {
		replacement = append(replacement, message.Message{
			UUID: message.NewUUID(), Role: message.RoleUser,
			Text: fmt.Sprintf("Recovered file relevant to the summary above: %s", path),
		})
	}
	for i := range replacement {
		replacement[i].Position = i
	}
	return replacement, true, nil
}

func (e *Engine) recordTrigger(outcome string) {
	if e.metrics != nil {
		e.metrics.CompactionTriggered(outcome)
	}
}

// summarize sends the full timeline plus CompactionPromptText to the
// compaction model and returns its text reply.
func (e *Engine) summarize(ctx context.Context, messages []message.Message, model string) (string, error) {
	req := &provider.MessageRequest{
		Model:     model,
		MaxTokens: 4096,
		Messages:  toProviderMessages(messages, CompactionPromptText),
	}
	resp, err := e.prov.CreateMessage(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("compaction model returned no text content")
	}
	return sb.String(), nil
}

// toProviderMessages flattens the timeline into provider.Message requests
// and appends the compaction prompt as a final user turn.
func toProviderMessages(messages []message.Message, promptText string) []provider.Message {
	out := make([]provider.Message, 0, len(messages)+1)
	for _, msg := range messages {
		switch {
		case len(msg.Blocks) == 0:
			out = append(out, provider.Message{Role: string(msg.Role), Content: msg.Text})
		default:
			blocks := make([]provider.ContentBlock, 0, len(msg.Blocks))
			for _, b := range msg.Blocks {
				switch b.Type {
				case message.BlockText, message.BlockThinking:
					blocks = append(blocks, provider.ContentBlock{Type: "text", Text: b.Text})
				case message.BlockToolUse, message.BlockServerToolUse, message.BlockMcpToolUse:
					if b.ToolName == "" {
						continue
					}
					blocks = append(blocks, provider.ContentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
				case message.BlockToolResult:
					if b.ToolUseID == "" {
						continue
					}
					blocks = append(blocks, provider.ContentBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
				}
			}
			if len(blocks) > 0 {
				out = append(out, provider.Message{Role: string(msg.Role), Content: blocks})
			}
		}
	}
	out = append(out, provider.Message{Role: "user", Content: promptText})
	return out
}

// recoverRelevantFiles scans the timeline for file paths touched by
// read/write-shaped tool inputs and ranks them against the summary text
// with github.com/sahilm/fuzzy, returning the top matches in best-first
// order. Used to seed the post-compaction timeline with the files the
// summary is most likely to still need.
func recoverRelevantFiles(messages []message.Message, summary string) []string {
	seen := map[string]bool{}
	var candidates []string
	for _, msg := range messages {
		if msg.Role != message.RoleAssistant {
			continue
		}
		for _, b := range msg.Blocks {
			if !b.Type.IsToolUse() {
				continue
			}
			path, _ := b.ToolInput["path"].(string)
			if path == "" {
				path, _ = b.ToolInput["file_path"].(string)
			}
			if path != "" && !seen[path] {
				seen[path] = true
				candidates = append(candidates, path)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Each candidate path is the fuzzy pattern, matched against the summary's
	// leading words; a path whose characters do not occur there in order is
	// dropped.
	text := summaryKeywords(summary)
	var matches fuzzy.Matches
	for i, path := range candidates {
		if m := fuzzy.Find(path, []string{text}); len(m) > 0 {
			m[0].Index = i
			matches = append(matches, m[0])
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	const maxRecovered = 5
	out := make([]string, 0, maxRecovered)
	used := map[int]bool{}
	for _, m := range matches {
		if used[m.Index] {
			continue
		}
		used[m.Index] = true
		out = append(out, candidates[m.Index])
		if len(out) >= maxRecovered {
			break
		}
	}
	return out
}

// summaryKeywords narrows the summary to its first few words, the text each
// candidate path is fuzzy-matched against.
func summaryKeywords(summary string) string {
	fields := strings.Fields(summary)
	const maxWords = 12
	if len(fields) > maxWords {
		fields = fields[:maxWords]
	}
	return strings.Join(fields, " ")
}
