package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Sentinel errors for handler dispatch and quality gates.
var (
	// ErrUnknownMethod is returned when no handler is registered for a method.
	ErrUnknownMethod = errors.New("no handler registered for method")

	// ErrThresholdExceeded is returned when the reject count or rate breaches
	// the configured quality limits.
	ErrThresholdExceeded = errors.New("reject threshold exceeded")
)

type (
	// Source streams one SOAP response per method; implemented by soap.Client.
	Source interface {
		Stream(ctx context.Context, methodName string) (io.ReadCloser, error)
	}

	// Handler extracts and persists one method's dataset into its curated
	// table, accumulating metrics and rejects on the run context.
	Handler interface {
		// MethodName returns the SOAP method this handler serves.
		MethodName() string

		// Execute pulls the stream, validates records, and flushes batches.
		Execute(ctx context.Context, runCtx *RunContext) error
	}

	// Registry dispatches to handlers by method name.
	Registry struct {
		handlers map[string]Handler
	}
)

// NewRegistry builds a registry from the given handlers, keyed on method name.
func NewRegistry(handlers ...Handler) *Registry {
	byName := make(map[string]Handler, len(handlers))
	for _, handler := range handlers {
		byName[handler.MethodName()] = handler
	}

	return &Registry{handlers: byName}
}

// IsValidMethod reports whether a handler is registered for the method.
func (r *Registry) IsValidMethod(methodName string) bool {
	_, ok := r.handlers[methodName]

	return ok
}

// MethodNames returns the registered method names, sorted.
func (r *Registry) MethodNames() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Execute dispatches to the handler registered for methodName.
func (r *Registry) Execute(ctx context.Context, methodName string, runCtx *RunContext) error {
	handler, ok := r.handlers[methodName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, methodName)
	}

	return handler.Execute(ctx, runCtx)
}
