package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/dcode/internal/agent"
	"github.com/yourusername/dcode/internal/config"
	"github.com/yourusername/dcode/internal/engine/compaction"
	"github.com/yourusername/dcode/internal/engine/hook"
	"github.com/yourusername/dcode/internal/engine/message"
	"github.com/yourusername/dcode/internal/engine/metrics"
	"github.com/yourusername/dcode/internal/engine/permission"
	"github.com/yourusername/dcode/internal/engine/scheduler"
	"github.com/yourusername/dcode/internal/engine/sink"
	"github.com/yourusername/dcode/internal/engine/turn"
	"github.com/yourusername/dcode/internal/protocol/streamjson"
	"github.com/yourusername/dcode/internal/provider"
	"github.com/yourusername/dcode/internal/tool"
)

// streamJSONCmd is the headless entrypoint: it drives the Turn
// Loop/Scheduler/Permission Engine/Compaction/Session Sink stack over the
// stream-json stdio protocol, one line in, one or more lines out.
func streamJSONCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream-json",
		Short: "Run a headless agent session over the stream-json stdio protocol",
		Long: `Speak the stream-json protocol over stdin/stdout: each incoming line is a
{"type":"user",...} message or a {"type":"control_request",...} control
frame; each outgoing line is a system/user/assistant/result event. Designed
for embedding dcode inside another program rather than a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg)

			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			prov, err := initProvider(cfg)
			if err != nil {
				return err
			}

			agentName := cfg.DefaultAgent
			if agentName == "" {
				agentName = "coder"
			}
			ag := agent.GetAgent(agentName, cfg)

			registry := tool.GetRegistry()
			tool.SetMCPConfigFromConfig(cfg)

			log, _ := zap.NewProduction()
			if log == nil {
				log = zap.NewNop()
			}
			defer log.Sync()

			stack := buildEngineStack(cfg, ag, prov, registry, log)

			if metricsAddr != "" {
				go serveMetrics(metricsAddr, stack.metrics, log)
			}

			return runStreamJSONSession(cmd.Context(), stack, agentName, cfg)
		},
	}
	cmd.Flags().String("metrics-addr", "", "If set, expose Prometheus metrics at http://<addr>/metrics")
	return cmd
}

// engineStack bundles the components the stream-json transport drives;
// constructing it is the one place that wires Scheduler/Loop/Compaction to
// the shared metrics Collector.
type engineStack struct {
	registry   *tool.Registry
	permEngine *permission.Engine
	sched      *scheduler.Scheduler
	compactor  *compaction.Engine
	loop       *turn.Loop
	metrics    *metrics.Collector
}

func buildEngineStack(cfg *config.Config, ag *agent.Agent, prov provider.Provider, registry *tool.Registry, log *zap.Logger) *engineStack {
	collector := metrics.New()

	permEngine := permission.New(log)
	hooks := hook.New(hook.Config{}, log)
	sched := scheduler.New(registry, permEngine, hooks, nil, scheduler.Config{}, log)
	sched.SetMetrics(collector)

	modelID := ag.Model
	if modelID == "" {
		modelID = cfg.GetDefaultModel(cfg.Provider)
	}
	info, known := config.DefaultModels[cfg.Provider]
	contextWindow := 0
	if known {
		contextWindow = info.ContextWindow
	}

	compactor := compaction.New(prov, cfg.SmallModel, modelID, compaction.Config{ContextWindow: contextWindow}, log)
	compactor.SetMetrics(collector)

	steps := ag.Steps
	if steps <= 0 {
		steps = turn.DefaultMaxTurns
	}
	loop := turn.New(prov, sched, compactor, turn.Config{
		MaxTurns:         steps,
		AutoCompactionOn: cfg.Compaction,
		ContextWindow:    contextWindow,
		AgentName:        ag.Name,
	}, log)
	loop.SetMetrics(collector)

	return &engineStack{registry: registry, permEngine: permEngine, sched: sched, compactor: compactor, loop: loop, metrics: collector}
}

func serveMetrics(addr string, collector *metrics.Collector, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}

// runStreamJSONSession reads {type:"user",...} messages from stdin until EOF,
// drives one Turn Loop run per message, and streams assistant/result events
// back to stdout, appending every message to the Session Sink as it goes.
func runStreamJSONSession(ctx context.Context, stack *engineStack, agentName string, cfg *config.Config) error {
	sessionID := message.NewUUID()
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	sinkPath := sink.SessionLogPath(config.GetConfigDir(), cwd, sessionID)
	writer, err := sink.OpenWriter(sinkPath, sessionID, nil)
	if err != nil {
		return fmt.Errorf("failed to open session sink: %w", err)
	}
	defer writer.Close()

	out := streamjson.NewWriter(os.Stdout)
	in := streamjson.NewReader(os.Stdin)

	permCtx := &permission.Context{Mode: permission.ModeDefault, ProjectDir: cwd, BypassAvailable: true}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := out.Write(streamjson.BuildSystemInitEvent(sessionID, cwd, cfg.GetDefaultModel(cfg.Provider), string(permCtx.Mode), stack.registry.List(), nil)); err != nil {
		return err
	}

	var messages []message.Message

	for {
		incoming, err := in.Next()
		if err != nil {
			return nil // EOF: stdin closed, session over
		}
		if incoming == nil {
			continue // skipped duplicate or unknown line
		}

		if incoming.Control != nil {
			if streamjson.IsInterrupt(incoming.Control) {
				cancel()
				_ = out.Write(streamjson.BuildControlResponse(incoming.Control.RequestID, nil))
			}
			continue
		}
		if incoming.User == nil {
			continue
		}

		userMsg := message.Message{UUID: incoming.User.UUID, Role: message.RoleUser, Text: textOf(incoming.User.Message.Content)}
		if userMsg.UUID == "" {
			userMsg.UUID = message.NewUUID()
		}
		messages = append(messages, userMsg)
		if _, err := writer.Append(userMsg); err != nil {
			return err
		}

		buildRequest := func(msgs []message.Message) *provider.MessageRequest {
			system := agent.GetSystemPrompt(agentName, cfg)
			if notice := permCtx.ConsumeExitPlanModeNotice(); notice != "" {
				system += "\n\n" + notice
			}
			return &provider.MessageRequest{
				Model:     cfg.GetDefaultModel(cfg.Provider),
				MaxTokens: cfg.MaxTokens,
				System:    system,
				Messages:  toProviderMessages(msgs),
				Tools:     toProviderTools(stack.registry.ToProviderTools(nil)),
			}
		}

		result, newMessages := stack.loop.Run(ctx, sessionID, cwd, buildRequest, permCtx, messages, func(turn.Event) {})

		for i := len(messages); i < len(newMessages); i++ {
			if _, err := writer.Append(newMessages[i]); err != nil {
				return err
			}
			switch newMessages[i].Role {
			case message.RoleAssistant:
				_ = out.Write(streamjson.BuildAssistantEvent(sessionID, newMessages[i]))
			case message.RoleUser:
				_ = out.Write(streamjson.BuildUserEvent(sessionID, newMessages[i], false))
			}
		}
		messages = newMessages

		if err := out.Write(streamjson.BuildResultEvent(sessionID, 1, result)); err != nil {
			return err
		}
	}
}

func toProviderTools(tools []tool.ProviderTool) []provider.Tool {
	out := make([]provider.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, provider.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

func textOf(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

func toProviderMessages(messages []message.Message) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Blocks) == 0 {
			out = append(out, provider.Message{Role: string(msg.Role), Content: msg.Text})
			continue
		}
		blocks := make([]provider.ContentBlock, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			switch {
			case b.Type == message.BlockText || b.Type == message.BlockThinking:
				blocks = append(blocks, provider.ContentBlock{Type: "text", Text: b.Text})
			case b.Type.IsToolUse():
				blocks = append(blocks, provider.ContentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
			case b.Type == message.BlockToolResult:
				blocks = append(blocks, provider.ContentBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
			}
		}
		out = append(out, provider.Message{Role: string(msg.Role), Content: blocks})
	}
	return out
}
