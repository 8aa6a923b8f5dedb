package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yourusername/dcode/internal/engine/permission"
)

// DiffData holds before/after content for rendering side-by-side diffs
type DiffData struct {
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
	FilePath   string `json:"file_path,omitempty"`
	Language   string `json:"language,omitempty"`
	IsFragment bool   `json:"is_fragment,omitempty"` // true for edit (partial), false for write (full file)
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Output       string           `json:"output"`
	IsError      bool             `json:"is_error"`
	Title        string           `json:"title,omitempty"`          // Optional title for tool output display
	Attachments  []FileAttachment `json:"attachments,omitempty"`    // File attachments (images, PDFs)
	DiffData     *DiffData        `json:"diff_data,omitempty"`      // Single diff (edit, write)
	DiffDataList []*DiffData      `json:"diff_data_list,omitempty"` // Multiple diffs (multiedit, patch)
}

// FileAttachment represents a base64-encoded file attachment
type FileAttachment struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Type      string `json:"type"` // "file"
	MIME      string `json:"mime"` // e.g. "image/png", "application/pdf"
	URL       string `json:"url"`  // data URL: "data:<mime>;base64,<data>"
	Filename  string `json:"filename,omitempty"`
}

// ToolContext provides context for tool execution
type ToolContext struct {
	SessionID  string
	MessageID  string
	WorkDir    string
	Abort      context.Context
	OnQuestion QuestionAskFn // Optional: wired by TUI to show interactive question dialog
}

// ToolDef defines a tool that the AI can use.
//
// ReadOnly, ConcurrencySafe, NeedsPermissions, and Prompt correspond to the
// Tool Descriptor contract the Tool Scheduler consults for admission and
// permission decisions. They default to the conservative (write-capable,
// not concurrency-safe, needs permission) case when left nil/unset so that
// a tool added without classification never silently gets parallelized or
// auto-allowed; registerBuiltinTools assigns the real classification for
// every built-in tool via classifyBuiltinTools.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error)

	// ReadOnly reports whether input describes a read-only invocation of
	// this tool. Nil means "never read-only".
	ReadOnly func(input map[string]interface{}) bool

	// ConcurrencySafe reports whether input describes an invocation safe to
	// run concurrently with any other concurrency-safe invocation. Nil
	// means "not concurrency-safe" (the tool is a scheduling barrier).
	ConcurrencySafe func(input map[string]interface{}) bool

	// NeedsPermissionsAlways forces a permission check even for otherwise
	// read-only tools (e.g. WebFetch, which still keys by domain).
	NeedsPermissionsAlways bool

	// PromptHint renders a short human-readable description of a specific
	// invocation, used by canUseTool prompts ("prompt()" in the Tool
	// Descriptor contract).
	PromptHint func(input map[string]interface{}) string
}

// IsReadOnly reports whether this invocation is read-only for scheduling
// purposes. A missing classifier is conservatively not read-only.
func (t *ToolDef) IsReadOnly(input map[string]interface{}) bool {
	if t.ReadOnly == nil {
		return false
	}
	return t.ReadOnly(input)
}

// IsConcurrencySafe reports whether this invocation may run in parallel
// with other concurrency-safe invocations. A missing classifier is
// conservatively a barrier.
func (t *ToolDef) IsConcurrencySafe(input map[string]interface{}) bool {
	if t.ConcurrencySafe == nil {
		return false
	}
	return t.ConcurrencySafe(input)
}

// NeedsPermissions reports whether this tool must go through the Permission
// Engine. Write-capable (non-read-only) tools always do; read-only tools do
// only when explicitly flagged (e.g. WebFetch's domain keying).
func (t *ToolDef) NeedsPermissions(input map[string]interface{}) bool {
	return !t.IsReadOnly(input) || t.NeedsPermissionsAlways
}

// Prompt renders this invocation for a canUseTool prompt.
func (t *ToolDef) Prompt(input map[string]interface{}) string {
	if t.PromptHint != nil {
		return t.PromptHint(input)
	}
	return t.Name
}

// Registry manages all available tools
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDef
}

var (
	globalRegistry *Registry
	once           sync.Once
)

// GetRegistry returns the global tool registry
func GetRegistry() *Registry {
	once.Do(func() {
		globalRegistry = &Registry{
			tools: make(map[string]*ToolDef),
		}
		registerBuiltinTools(globalRegistry)
	})
	return globalRegistry
}

// NewRegistry returns an empty, independent Registry, for tests and for
// embedders that want a tool set other than the built-in one.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*ToolDef)}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *ToolDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// GetAll returns all registered tools
func (r *Registry) GetAll() map[string]*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*ToolDef, len(r.tools))
	for k, v := range r.tools {
		result[k] = v
	}
	return result
}

// GetFiltered returns tools filtered by allowed names (empty = all)
func (r *Registry) GetFiltered(allowed []string) map[string]*ToolDef {
	if len(allowed) == 0 {
		return r.GetAll()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*ToolDef)
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			result[name] = t
		}
	}
	return result
}

// Execute runs a tool by name with the given input
func (r *Registry) Execute(ctx context.Context, tc *ToolContext, name string, input map[string]interface{}) (*ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{
			Output:  fmt.Sprintf("Unknown tool: %s. Available tools: %v", name, r.List()),
			IsError: true,
		}, nil
	}
	return tool.Execute(ctx, tc, input)
}

// ToProviderTools converts registry tools to provider-compatible tool definitions
func (r *Registry) ToProviderTools(allowed []string) []ProviderTool {
	tools := r.GetFiltered(allowed)
	result := make([]ProviderTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, ProviderTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return result
}

// ProviderTool is a simplified tool definition for LLM providers
type ProviderTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// inferLanguage returns a language identifier based on file extension
func inferLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	langs := map[string]string{
		".go":    "go",
		".js":    "javascript",
		".ts":    "typescript",
		".tsx":   "tsx",
		".jsx":   "jsx",
		".py":    "python",
		".rb":    "ruby",
		".rs":    "rust",
		".java":  "java",
		".c":     "c",
		".cpp":   "cpp",
		".h":     "c",
		".hpp":   "cpp",
		".cs":    "csharp",
		".swift": "swift",
		".kt":    "kotlin",
		".lua":   "lua",
		".sh":    "bash",
		".bash":  "bash",
		".zsh":   "zsh",
		".fish":  "fish",
		".yaml":  "yaml",
		".yml":   "yaml",
		".json":  "json",
		".toml":  "toml",
		".xml":   "xml",
		".html":  "html",
		".css":   "css",
		".scss":  "scss",
		".sql":   "sql",
		".md":    "markdown",
		".proto": "protobuf",
		".tf":    "hcl",
		".vim":   "vim",
		".el":    "elisp",
		".ex":    "elixir",
		".exs":   "elixir",
		".zig":   "zig",
		".v":     "v",
		".dart":  "dart",
		".r":     "r",
		".R":     "r",
		".php":   "php",
		".pl":    "perl",
	}
	if lang, ok := langs[ext]; ok {
		return lang
	}
	return ""
}

// registerBuiltinTools registers all built-in tools
func registerBuiltinTools(r *Registry) {
	// Core file operations
	r.Register(ReadTool())
	r.Register(WriteTool())
	r.Register(EditTool())
	r.Register(MultiEditTool())
	r.Register(PatchTool())
	r.Register(ApplyPatchTool())

	// Shell and search
	r.Register(BashTool())
	r.Register(GlobTool())
	r.Register(GrepTool())
	r.Register(LsTool())
	r.Register(CodeSearchTool())

	// Web and external
	r.Register(WebFetchTool())
	r.Register(WebSearchTool())

	// Task management
	r.Register(TodoReadTool())
	r.Register(TodoWriteTool())
	r.Register(TaskTool())

	// Interactive
	r.Register(QuestionTool())

	// Skills
	r.Register(SkillTool())

	// Batch operations
	r.Register(BatchTool())

	// Plan mode
	r.Register(PlanEnterTool())
	r.Register(PlanExitTool())

	// Development tools
	r.Register(GitTool())
	r.Register(LSPTool())
	r.Register(MCPTool())
	r.Register(DockerTool())
	r.Register(ImageTool())

	classifyBuiltinTools(r)
}

// classifyBuiltinTools assigns ReadOnly/ConcurrencySafe/NeedsPermissionsAlways
// to every built-in tool after registration, rather than editing each tool
// file individually: classification is a scheduling/permission concern
// layered on top of each tool's existing Execute function, not a rewrite of
// tool behavior. Read-only, side-effect-free tools are concurrency-safe;
// anything that can touch the filesystem, a shell, or an external process
// is a barrier.
func classifyBuiltinTools(r *Registry) {
	alwaysTrue := func(map[string]interface{}) bool { return true }

	readOnlySafe := []string{
		"read", "glob", "grep", "ls", "codesearch", "todo_read", "LSP",
	}
	for _, name := range readOnlySafe {
		if t, ok := r.Get(name); ok {
			t.ReadOnly = alwaysTrue
			t.ConcurrencySafe = alwaysTrue
		}
	}

	// Bash is conditionally read-only/concurrency-safe, depending on the
	// specific command (spec §4.2's read-only classifier).
	if t, ok := r.Get("bash"); ok {
		t.ReadOnly = func(input map[string]interface{}) bool {
			cmd, _ := input["command"].(string)
			return permission.IsReadOnlyBash(cmd)
		}
		t.ConcurrencySafe = t.ReadOnly
	}

	// WebFetch/WebSearch are read-only but still must be keyed through the
	// Permission Engine (domain/query selectors), so NeedsPermissionsAlways
	// stays set even though they're concurrency-safe.
	for _, name := range []string{"webfetch", "WebSearch"} {
		if t, ok := r.Get(name); ok {
			t.ReadOnly = alwaysTrue
			t.ConcurrencySafe = alwaysTrue
			t.NeedsPermissionsAlways = true
		}
	}

	// Everything else (write, edit, multiedit, patch, apply_patch, git
	// (every subcommand), docker, mcp, task, question, skill, todo_write,
	// plan_enter/exit, image) keeps the zero-value conservative
	// classification: not read-only, not concurrency-safe, needs
	// permissions — i.e. a scheduling barrier.
}
