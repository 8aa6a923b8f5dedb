package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseContext() *Context {
	return &Context{
		Mode:       ModeDefault,
		ProjectDir: "/work",
	}
}

func TestBypassPermissionsAllowsUnlessPolicyDeny(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.Mode = ModeBypassPermissions
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "rm -rf /"})
	assert.Equal(t, Allow, d.Kind)

	ctx.DenyRules = []Rule{{Kind: RuleDeny, Scope: ScopePolicy, Tool: "Bash", Selector: "rm -rf /"}}
	d = e.Check(ctx, Input{Tool: "Bash", Bash: "rm -rf /"})
	assert.Equal(t, Deny, d.Kind)
}

func TestDontAskModeAlwaysDenies(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.Mode = ModeDontAsk
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "pwd"})
	assert.Equal(t, Deny, d.Kind)
}

func TestExactDenyBeatsAllow(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.DenyRules = []Rule{{Kind: RuleDeny, Tool: "Bash", Selector: "git push"}}
	ctx.AllowRules = []Rule{{Kind: RuleAllow, Tool: "Bash", Selector: "git:*"}}
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "git push"})
	assert.Equal(t, Deny, d.Kind)
}

func TestAskRuleCannotBeSilencedByAllow(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.AskRules = []Rule{{Kind: RuleAsk, Tool: "Bash", Selector: "git push"}}
	ctx.AllowRules = []Rule{{Kind: RuleAllow, Tool: "Bash", Selector: "git:*"}}
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "git push"})
	assert.Equal(t, Ask, d.Kind)
}

func TestPlanModeAsksForWritesAllowsReads(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.Mode = ModePlan

	write := e.Check(ctx, Input{Tool: "Write", Path: "/work/a.go", Write: true})
	assert.Equal(t, Ask, write.Kind)

	read := e.Check(ctx, Input{Tool: "Read", Path: "/work/a.go"})
	assert.Equal(t, Allow, read.Kind)
}

func TestPlanModeAllowsWritesToPlanFile(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.Mode = ModePlan
	ctx.PlanFilePath = "/work/.dcode/plan.md"

	d := e.Check(ctx, Input{Tool: "Write", Path: "/work/.dcode/plan.md", Write: true})
	assert.Equal(t, Allow, d.Kind)
}

func TestAllowRuleMatchesPrefix(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.AllowRules = []Rule{{Kind: RuleAllow, Tool: "Bash", Selector: "git:*"}}
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "git status --short"})
	assert.Equal(t, Allow, d.Kind)
}

func TestAcceptEditsAllowsWritesInsideWorkDir(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.Mode = ModeAcceptEdits
	d := e.Check(ctx, Input{Tool: "Edit", Path: "/work/a.go", Write: true})
	assert.Equal(t, Allow, d.Kind)

	outside := e.Check(ctx, Input{Tool: "Edit", Path: "/tmp/x/a.go", Write: true})
	assert.Equal(t, Ask, outside.Kind)
}

func TestDefaultModeAsksWithSuggestions(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	d := e.Check(ctx, Input{Tool: "Write", Path: "/tmp/x/y", Write: true})
	assert.Equal(t, Ask, d.Kind)
	var gotAdd, gotMode bool
	for _, s := range d.Suggestions {
		if s.AddDirectory != "" {
			gotAdd = true
		}
		if s.SetMode == ModeAcceptEdits {
			gotMode = true
		}
	}
	assert.True(t, gotAdd)
	assert.True(t, gotMode)
}

func TestSuggestionApplicationProducesAllowOnRecheck(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	in := Input{Tool: "Write", Path: "/tmp/x/y", Write: true}
	first := e.Check(ctx, in)
	assert.Equal(t, Ask, first.Kind)
	for _, s := range first.Suggestions {
		ctx.ApplySuggestion(s)
	}
	second := e.Check(ctx, in)
	assert.Equal(t, Allow, second.Kind)
}

func TestBashInjectionRiskNeverSilentlyAllowedByPrefix(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.AllowRules = []Rule{{Kind: RuleAllow, Tool: "Bash", Selector: "git:*"}}
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "git status; rm -rf /"})
	assert.Equal(t, Ask, d.Kind)
}

func TestWebFetchDomainKeyingWithWildcard(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.AllowRules = []Rule{{Kind: RuleAllow, Tool: "WebFetch", Selector: "domain:*.example.com"}}
	d := e.Check(ctx, Input{Tool: "WebFetch", URL: "https://api.example.com/v1"})
	assert.Equal(t, Allow, d.Kind)
}

func TestIsReadOnlyBashClassifier(t *testing.T) {
	assert.True(t, IsReadOnlyBash("pwd"))
	assert.True(t, IsReadOnlyBash("git status"))
	assert.False(t, IsReadOnlyBash("git status | cat"))
	assert.False(t, IsReadOnlyBash("rm -rf /"))
}

func TestSandboxAutoAllowStillSubjectToDeny(t *testing.T) {
	e := New(nil)
	ctx := baseContext()
	ctx.SandboxEnabled = true
	ctx.DenyRules = []Rule{{Kind: RuleDeny, Tool: "Bash", Selector: "pwd"}}
	d := e.Check(ctx, Input{Tool: "Bash", Bash: "pwd"})
	assert.Equal(t, Deny, d.Kind)

	allowed := e.Check(ctx, Input{Tool: "Bash", Bash: "ls"})
	assert.Equal(t, Allow, allowed.Kind)
}

func TestModeNextCycleOrderWithoutBypass(t *testing.T) {
	assert.Equal(t, ModeAcceptEdits, ModeDefault.Next(false))
	assert.Equal(t, ModePlan, ModeAcceptEdits.Next(false))
	assert.Equal(t, ModeDefault, ModePlan.Next(false))
}

func TestModeNextCycleOrderWithBypass(t *testing.T) {
	assert.Equal(t, ModeBypassPermissions, ModePlan.Next(true))
	assert.Equal(t, ModeDefault, ModeBypassPermissions.Next(true))
}

func TestCycleModeRecordsPlanEntryTimestamp(t *testing.T) {
	ctx := &Context{Mode: ModeAcceptEdits}
	next := ctx.CycleMode(false)
	assert.Equal(t, ModePlan, next)
	assert.False(t, ctx.PlanModeEnteredAt.IsZero())
}

func TestCycleModeArmsExitPlanNoticeOnlyOnce(t *testing.T) {
	ctx := &Context{Mode: ModePlan}
	ctx.CycleMode(false)
	assert.Equal(t, ModeDefault, ctx.Mode)
	assert.True(t, ctx.PlanModeEnteredAt.IsZero())

	assert.Equal(t, ExitPlanModeNotice, ctx.ConsumeExitPlanModeNotice())
	assert.Equal(t, "", ctx.ConsumeExitPlanModeNotice())
}

func TestConsumeExitPlanModeNoticeEmptyWhenNeverInPlan(t *testing.T) {
	ctx := &Context{Mode: ModeDefault}
	assert.Equal(t, "", ctx.ConsumeExitPlanModeNotice())
}
