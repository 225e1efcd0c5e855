// Package common holds request-scoped plumbing shared by the HTTP adapters and
// the bundle engine: the submission correlation id, the per-entry operation
// descriptor, and the open transactional scope. All of it travels on
// context.Context rather than a mutable slot, so concurrent submissions never
// observe each other's state.
package common

import (
	"context"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type ctxKey int

const (
	correlationKey ctxKey = iota
	operationKey
	scopeKey
)

// Operation describes the sub-operation currently executing, for audit and
// authorization collaborators downstream of the dispatcher.
type Operation struct {
	ResourceType string
	Action       string
}

func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// Correlation returns the submission correlation id, or "" outside a
// submission.
func Correlation(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

func WithOperation(ctx context.Context, op Operation) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

func OperationFrom(ctx context.Context) (Operation, bool) {
	op, ok := ctx.Value(operationKey).(Operation)
	return op, ok
}

// WithScope threads an open transactional scope through the dispatch chain so
// store calls made by downstream handlers participate in it.
func WithScope(ctx context.Context, s ports.Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

func ScopeFrom(ctx context.Context) (ports.Scope, bool) {
	s, ok := ctx.Value(scopeKey).(ports.Scope)
	return s, ok
}
