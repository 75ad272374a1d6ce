// Package trace correlates every engine call made on behalf of one
// operation (a deploy, a reconcile pass) under a single ID that appears in
// logs and deployment history.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// NewID returns a fresh trace ID of the form "t_<32 hex chars>".
func NewID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// With returns ctx carrying id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx unchanged when it already carries an ID, otherwise a
// child context with a new one. The effective ID is returned as well.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := From(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return With(ctx, id), id
}

// From extracts the trace ID from ctx, or "".
func From(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
