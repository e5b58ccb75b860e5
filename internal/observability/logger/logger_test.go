package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/cashback/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRunAndActorFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithActor(context.Background(), "system", "scheduler")
	ctx = obscontext.WithRun(ctx, "dunning", "42")

	WithContext(ctx, base).Info("scheduler.job.start")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "system", fields["actor_type"])
		assert.Equal(t, "scheduler", fields["actor_id"])
		assert.Equal(t, "dunning", fields["job"])
		assert.Equal(t, "42", fields["run_id"])
		assert.NotContains(t, fields, "trace_id")
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("  update subscriptions set status = ?"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH due AS (SELECT 1) SELECT * FROM due"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
