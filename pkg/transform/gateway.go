// Package transform implements the polymorphic transform gateway: a
// dispatch table of named executors behind one uniform entry point that
// converts every fault into a structured payload.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/journal"
)

// Transform is one executor in the dispatch table.
type Transform interface {
	ID() string
	Execute(ctx context.Context, payload []byte) ([]byte, error)
}

// Reflector is the journal surface the gateway needs.
type Reflector interface {
	Reflect(ctx context.Context, event string, details map[string]any) journal.Record
}

// Gateway routes dispatch requests to registered transforms. Lookup is
// case-insensitive; ids are canonicalized to upper case. Safe for
// concurrent use.
type Gateway struct {
	mu         sync.RWMutex
	transforms map[string]Transform
	journal    Reflector
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewGateway creates an empty gateway. journal may be nil.
func NewGateway(j Reflector) *Gateway {
	return &Gateway{
		transforms: make(map[string]Transform),
		journal:    j,
		logger:     slog.Default(),
		tracer:     otel.Tracer("gestalt/transform"),
	}
}

// Register adds a transform to the table. Last registration wins.
func (g *Gateway) Register(t Transform) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transforms[strings.ToUpper(t.ID())] = t
}

// IDs returns the sorted canonical transform identifiers.
func (g *Gateway) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.transforms))
	for id := range g.transforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// errorPayload is the uniform failure shape every dispatch fault becomes.
type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	ID    string `json:"id"`
}

// Dispatch executes the transform registered under id. It never panics and
// the returned payload is always forwardable: unknown ids, executor errors,
// and executor panics all become an error-describing JSON payload, a journal
// entry, and a span event. The error return carries the same fault as a
// typed value (nil on success) so callers can classify the outcome without
// re-parsing the payload.
func (g *Gateway) Dispatch(ctx context.Context, id string, payload []byte) ([]byte, error) {
	canonical := strings.ToUpper(strings.TrimSpace(id))

	ctx, span := g.tracer.Start(ctx, "transform.dispatch",
		trace.WithAttributes(attribute.String("transform.id", canonical)))
	defer span.End()

	g.mu.RLock()
	t, ok := g.transforms[canonical]
	g.mu.RUnlock()

	if !ok {
		span.SetStatus(codes.Error, "unknown transform")
		g.reflect(ctx, "TRANSFORM_UNKNOWN", map[string]any{"id": canonical})
		ge := errors.New(errors.CodeNotFound, "unknown transform", nil).
			WithContext("id", canonical)
		return mustJSON(errorPayload{
			Error: "unknown transform",
			Code:  string(errors.CodeNotFound),
			ID:    canonical,
		}), ge
	}

	out, err := g.execute(ctx, t, payload)
	if err != nil {
		ge := errors.AsGestaltError(err)
		span.RecordError(ge)
		span.SetStatus(codes.Error, ge.Message)
		g.reflect(ctx, "TRANSFORM_FAULT", map[string]any{
			"id":    canonical,
			"code":  string(ge.Code),
			"error": ge.Error(),
		})
		return mustJSON(errorPayload{
			Error: ge.Error(),
			Code:  string(ge.Code),
			ID:    canonical,
		}), ge
	}
	return out, nil
}

// execute runs one transform with a panic boundary.
func (g *Gateway) execute(ctx context.Context, t Transform, payload []byte) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New(errors.CodeInternal, "transform panicked", fmt.Errorf("%v", rec)).
				WithContext("id", t.ID())
		}
	}()
	return t.Execute(ctx, payload)
}

func (g *Gateway) reflect(ctx context.Context, event string, details map[string]any) {
	if g.journal != nil {
		g.journal.Reflect(ctx, event, details)
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal encoding fault"}`)
	}
	return data
}
