// Package context carries correlation identifiers used by loggers and spans.
package context

import (
	"context"
	"strings"
)

type (
	requestIDKey struct{}
	actorKey     struct{}
	runKey       struct{}
)

type actor struct {
	typ string
	id  string
}

type run struct {
	job string
	id  string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{typ: strings.TrimSpace(actorType), id: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, _ := ctx.Value(actorKey{}).(actor)
	return v.typ, v.id
}

// WithRun tags the context with the scheduler job and run identifier.
func WithRun(ctx context.Context, job, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, run{job: job, id: runID})
}

func RunFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, _ := ctx.Value(runKey{}).(run)
	return v.job, v.id
}
