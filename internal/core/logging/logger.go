// Package logging holds the zerolog helpers shared across kennel.
//
// Engine code tags a context with the collection and query generation it
// works on; loggers built by Component add both to every event logged with
// that context.
package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Scope is the browsing state attached to log events.
type Scope struct {
	Collection string
	Generation uint64
}

type scopeKey struct{}

// ScopeFrom returns the scope stored in ctx, zero when none is.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// WithCollection sets the collection of the scope in ctx.
func WithCollection(ctx context.Context, collection string) context.Context {
	s := ScopeFrom(ctx)
	s.Collection = collection
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithGeneration sets the query generation of the scope in ctx.
func WithGeneration(ctx context.Context, gen uint64) context.Context {
	s := ScopeFrom(ctx)
	s.Generation = gen
	return context.WithValue(ctx, scopeKey{}, s)
}

// ContextHook copies the scope of the event context onto the event.
type ContextHook struct{}

func (ContextHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	s := ScopeFrom(e.GetCtx())
	if s.Collection != "" {
		e.Str("collection", s.Collection)
	}
	if s.Generation != 0 {
		e.Uint64("generation", s.Generation)
	}
}

// Component derives a logger tagged with cmp=name that reports the event
// context scope.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("cmp", name).Logger().Hook(ContextHook{})
}
