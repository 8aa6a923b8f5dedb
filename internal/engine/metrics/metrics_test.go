package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTurnStartedAndCompletedIncrementCounters(t *testing.T) {
	c := New()
	c.TurnStarted("coder")
	c.TurnStarted("coder")
	c.TurnCompleted("coder", "success", 1.25)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.turnsStarted.WithLabelValues("coder")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.turnsCompleted.WithLabelValues("coder", "success")))
}

func TestToolExecutedTracksNameClassAndOutcome(t *testing.T) {
	c := New()
	c.ToolExecuted("read", "concurrency_safe", "ok", 0.01)
	c.ToolExecuted("bash", "barrier", "error", 0.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.toolExecutions.WithLabelValues("read", "concurrency_safe", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.toolExecutions.WithLabelValues("bash", "barrier", "error")))
}

func TestPermissionDecidedTracksOutcome(t *testing.T) {
	c := New()
	c.PermissionDecided("bash", "ask")
	c.PermissionDecided("bash", "ask")
	c.PermissionDecided("bash", "deny")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.permissionDecisions.WithLabelValues("bash", "ask")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.permissionDecisions.WithLabelValues("bash", "deny")))
}

func TestCompactionTriggeredTracksOutcome(t *testing.T) {
	c := New()
	c.CompactionTriggered("summarized")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.compactionTriggers.WithLabelValues("summarized")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.compactionTriggers.WithLabelValues("skipped")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	c := New()
	c.TurnStarted("coder")
	assert.NotNil(t, c.Handler())
}
