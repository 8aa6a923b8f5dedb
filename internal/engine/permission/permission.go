// Package permission implements the agent turn engine's Permission Engine:
// scoped allow/ask/deny rule evaluation, mode-based precedence, and Bash/
// web/filesystem-specific selector keying.
//
// Path selectors in a RuleSet are matched with gobwas/glob; the staged
// evaluation order is generalized from the eight-step precedence documented on
// deepnoodle-ai-dive's PermissionManager.EvaluateToolUse.
package permission

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// ExitPlanModeNotice is the one-shot system-prompt addition appended after
// the UI mode-cycle shortcut leaves plan mode (spec §6).
const ExitPlanModeNotice = "Exited Plan Mode"

// Mode is the session-scoped permission mode: five modes with their own
// precedence slots, rather than a flat auto/prompt/deny switch.
type Mode string

const (
	ModeDefault           Mode = "default"
	ModeAcceptEdits       Mode = "acceptEdits"
	ModePlan              Mode = "plan"
	ModeBypassPermissions Mode = "bypassPermissions"
	ModeDontAsk           Mode = "dontAsk"
)

// Next returns the mode the UI permission-mode-cycle shortcut advances to
// (spec §6): default -> acceptEdits -> plan -> bypassPermissions (if
// available) -> default.
func (m Mode) Next(bypassAvailable bool) Mode {
	switch m {
	case ModeDefault:
		return ModeAcceptEdits
	case ModeAcceptEdits:
		return ModePlan
	case ModePlan:
		if bypassAvailable {
			return ModeBypassPermissions
		}
		return ModeDefault
	case ModeBypassPermissions:
		return ModeDefault
	default:
		return ModeDefault
	}
}

// RuleScope orders the origins a rule may come from; precedence among
// scopes at the same decision stage is policy > local > project > user
// (most to least trusted for deny; the engine does not otherwise
// distinguish scopes beyond "does any scope match").
type RuleScope string

const (
	ScopePolicy  RuleScope = "policySettings"
	ScopeLocal   RuleScope = "localSettings"
	ScopeProject RuleScope = "projectSettings"
	ScopeUser    RuleScope = "userSettings"
)

// RuleKind is the action a matching rule takes.
type RuleKind string

const (
	RuleAllow RuleKind = "allow"
	RuleAsk   RuleKind = "ask"
	RuleDeny  RuleKind = "deny"
)

// Rule is one `Tool(selector)` entry.
type Rule struct {
	Kind     RuleKind
	Scope    RuleScope
	Tool     string
	Selector string // e.g. "git status", "git:*", "domain:example.com"
}

// DecisionKind is the outcome of Check.
type DecisionKind string

const (
	Allow DecisionKind = "allow"
	Deny  DecisionKind = "deny"
	Ask   DecisionKind = "ask"
)

// Suggestion is a policy-context update the caller may apply after an Ask,
// after which a re-check with the same input is expected to yield Allow.
type Suggestion struct {
	AddDirectory string // addDirectories(dir)
	SetMode      Mode   // setMode(mode)
}

// Decision is the result of Check.
type Decision struct {
	Kind        DecisionKind
	Message     string
	Suggestions []Suggestion
}

// Context is the mutable, session-scoped Permission Context (spec §3).
type Context struct {
	Mode                Mode
	AllowRules          []Rule
	AskRules            []Rule
	DenyRules           []Rule
	AdditionalWorkDirs  []string
	BypassAvailable     bool
	ProjectDir          string
	PlanFilePath        string // writes to this path are always Allowed under plan mode
	SandboxEnabled      bool
	SandboxExcludedCmds map[string]bool

	PlanModeEnteredAt     time.Time // zero unless Mode == ModePlan
	pendingExitPlanNotice bool
}

// CycleMode advances ctx.Mode via Mode.Next, recording a PlanModeEnteredAt
// telemetry timestamp on entry to plan mode and arming the one-shot "Exited
// Plan Mode" system-prompt addition on exit from it.
func (ctx *Context) CycleMode(bypassAvailable bool) Mode {
	prev := ctx.Mode
	next := prev.Next(bypassAvailable)
	if next == ModePlan {
		ctx.PlanModeEnteredAt = time.Now()
	}
	if prev == ModePlan && next != ModePlan {
		ctx.pendingExitPlanNotice = true
		ctx.PlanModeEnteredAt = time.Time{}
	}
	ctx.Mode = next
	return next
}

// ConsumeExitPlanModeNotice returns ExitPlanModeNotice and clears the
// pending flag if a plan-mode exit is still unreported, else "". Intended to
// be spliced into the next outgoing system prompt exactly once.
func (ctx *Context) ConsumeExitPlanModeNotice() string {
	if !ctx.pendingExitPlanNotice {
		return ""
	}
	ctx.pendingExitPlanNotice = false
	return ExitPlanModeNotice
}

// ApplySuggestion mutates ctx per a Suggestion returned from a prior Ask.
func (ctx *Context) ApplySuggestion(s Suggestion) {
	if s.AddDirectory != "" {
		ctx.AdditionalWorkDirs = append(ctx.AdditionalWorkDirs, s.AddDirectory)
	}
	if s.SetMode != "" {
		ctx.Mode = s.SetMode
	}
}

// Input is one tool invocation to evaluate.
type Input struct {
	Tool  string
	Path  string         // for FileRead/FileWrite-shaped tools
	URL   string          // for WebFetch
	Query string          // for WebSearch
	Bash  string          // raw command, for Bash
	Write bool            // true if this tool call mutates state (edit/write-capable)
	Raw   map[string]any
}

// Engine evaluates Decisions against a Context. Stateless aside from a
// logger; all mutable state lives in the Context passed to Check.
type Engine struct {
	log *zap.Logger
}

// New constructs a permission Engine. A nil logger is replaced with a no-op
// logger so the Engine tolerates an unconfigured collaborator.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Check implements the eight-step precedence from spec §4.2.
func (e *Engine) Check(ctx *Context, in Input) Decision {
	// 1. bypassPermissions mode -> Allow unless a policy-scope deny matches.
	if ctx.Mode == ModeBypassPermissions {
		if d, ok := matchRules(ctx.DenyRules, in, ScopePolicy); ok {
			return Decision{Kind: Deny, Message: d}
		}
		return Decision{Kind: Allow}
	}

	// 2. dontAsk mode -> Deny with a fixed explanation.
	if ctx.Mode == ModeDontAsk {
		return Decision{Kind: Deny, Message: "permission mode dontAsk: all tool use requires an explicit allow rule"}
	}

	// 3. Exact deny match at any scope -> Deny.
	if msg, ok := matchRules(ctx.DenyRules, in, ""); ok {
		return Decision{Kind: Deny, Message: msg}
	}

	// 4. Exact ask match at any scope -> Ask (cannot be silenced by allow).
	if msg, ok := matchRules(ctx.AskRules, in, ""); ok {
		return Decision{Kind: Ask, Message: msg, Suggestions: e.suggestionsFor(ctx, in)}
	}

	// 5. plan mode -> Ask for write-capable tools; Allow reads inside
	// working dirs; writes to the plan file are explicitly Allowed.
	if ctx.Mode == ModePlan {
		if in.Write {
			if ctx.PlanFilePath != "" && in.Path != "" && samePath(in.Path, ctx.PlanFilePath) {
				return Decision{Kind: Allow}
			}
			return Decision{Kind: Ask, Message: "plan mode: write-capable tools require confirmation", Suggestions: e.suggestionsFor(ctx, in)}
		}
		if in.Path != "" && pathWithin(in.Path, ctx.workDirs()) {
			return Decision{Kind: Allow}
		}
	}

	// 6. Exact or prefix allow match -> Allow. A Bash command with injection
	// risk is never allowed this way.
	if _, ok := matchRules(ctx.AllowRules, in, ""); ok {
		if in.Tool != "Bash" || !hasInjectionRisk(in.Bash) {
			return Decision{Kind: Allow}
		}
	}

	// 7. acceptEdits mode -> Allow edits inside working dirs.
	if ctx.Mode == ModeAcceptEdits && in.Write && in.Path != "" && pathWithin(in.Path, ctx.workDirs()) {
		return Decision{Kind: Allow}
	}

	// Bash-specific auto-allow under sandbox, still subject to the deny/ask
	// precedence already applied above.
	if in.Tool == "Bash" && ctx.SandboxEnabled && !ctx.SandboxExcludedCmds[in.Bash] {
		if !hasInjectionRisk(in.Bash) {
			return Decision{Kind: Allow}
		}
	}

	// 8. Otherwise -> Ask.
	return Decision{Kind: Ask, Message: fmt.Sprintf("%s requires confirmation", in.Tool), Suggestions: e.suggestionsFor(ctx, in)}
}

func (ctx *Context) workDirs() []string {
	dirs := make([]string, 0, len(ctx.AdditionalWorkDirs)+1)
	if ctx.ProjectDir != "" {
		dirs = append(dirs, ctx.ProjectDir)
	}
	dirs = append(dirs, ctx.AdditionalWorkDirs...)
	return dirs
}

func (e *Engine) suggestionsFor(ctx *Context, in Input) []Suggestion {
	if in.Path == "" {
		return nil
	}
	dir := filepath.Dir(in.Path)
	return []Suggestion{
		{SetMode: ModeAcceptEdits},
		{AddDirectory: dir},
	}
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func pathWithin(path string, dirs []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, d := range dirs {
		absDir, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absDir, abs)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// matchRules reports whether any rule in rules matches in; if scope is
// non-empty, only rules in that scope are considered (used for the
// bypassPermissions policy-deny carve-out).
func matchRules(rules []Rule, in Input, scope RuleScope) (string, bool) {
	for _, r := range rules {
		if scope != "" && r.Scope != scope {
			continue
		}
		if r.Tool != in.Tool {
			continue
		}
		if selectorMatches(r.Selector, in) {
			return fmt.Sprintf("%s(%s) matched by %s rule", r.Tool, r.Selector, r.Kind), true
		}
	}
	return "", false
}

// selectorMatches applies the tool-specific keying rules from spec §4.2:
// exact/prefix matching for Bash, domain keying with "*." wildcards for
// WebFetch, query-text keying for WebSearch, and plain string equality
// otherwise.
func selectorMatches(selector string, in Input) bool {
	if selector == "" {
		return false
	}
	switch in.Tool {
	case "Bash":
		return bashSelectorMatches(selector, in.Bash)
	case "WebFetch":
		return webFetchSelectorMatches(selector, in.URL)
	case "WebSearch":
		if selector == "WebSearch" {
			return true
		}
		return strings.Contains(in.Query, strings.TrimPrefix(selector, "query:"))
	default:
		if in.Path != "" {
			return pathSelectorMatches(selector, in.Path)
		}
		return selector == in.Bash || selector == in.Query
	}
}

func bashSelectorMatches(selector, cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if strings.HasSuffix(selector, ":*") {
		prefix := strings.TrimSuffix(selector, ":*")
		return strings.HasPrefix(cmd, prefix)
	}
	return selector == cmd || selector == BashPrefix(cmd)
}

func webFetchSelectorMatches(selector, rawURL string) bool {
	const domainPrefix = "domain:"
	if !strings.HasPrefix(selector, domainPrefix) {
		return selector == rawURL
	}
	pattern := strings.TrimPrefix(selector, domainPrefix)
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*")
		return strings.HasSuffix(host, suffix)
	}
	return host == pattern
}

// pathSelectorMatches compiles selector as a '/'-separated glob so
// "src/**/*.go"-style selectors match path segments rather than raw strings.
func pathSelectorMatches(selector, path string) bool {
	g, err := glob.Compile(selector, '/')
	if err != nil {
		return false
	}
	return g.Match(filepath.Clean(path))
}

// BashPrefix extracts a first-party "command prefix" from a full command
// line, e.g. "git status --short" -> "git status". Used both as a rule
// selector and, by the scheduler, as a display label.
func BashPrefix(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return fields[0] + " " + fields[1]
}

var injectionPattern = regexp.MustCompile("[;|&`]|\\$\\(|>>|[^2]>")

// hasInjectionRisk flags shell metacharacters that could chain commands.
// Redirection into /dev/null is whitelisted as a common, harmless idiom.
func hasInjectionRisk(cmd string) bool {
	scrubbed := strings.ReplaceAll(cmd, "> /dev/null", "")
	scrubbed = strings.ReplaceAll(scrubbed, ">/dev/null", "")
	return injectionPattern.MatchString(scrubbed)
}

// IsReadOnlyBash is the conservative Bash read-only classifier used only by
// the Tool Scheduler for concurrency admission (permission checks above
// still apply regardless of this result).
func IsReadOnlyBash(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return false
	}
	if strings.ContainsAny(cmd, "|><&;") || strings.Contains(cmd, "$(") || strings.Contains(cmd, "`") {
		return false
	}
	safe := []string{
		"pwd", "ls", "cat", "echo", "which", "whereis", "env", "printenv",
		"uname", "whoami", "date", "head", "tail", "wc", "find",
		"git status", "git log", "git diff", "git branch", "git show",
	}
	for _, s := range safe {
		if cmd == s || strings.HasPrefix(cmd, s+" ") {
			return true
		}
	}
	return false
}
