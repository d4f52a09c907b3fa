// Package registry implements the dynamic capability registry: named
// invocables registered at runtime, invoked asynchronously, and optionally
// loaded from external SKILL.md manifests.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/journal"
)

// Invocable is a capability entry point. Implementations run on their own
// goroutine; blocking inside one never stalls the agent loop.
type Invocable func(ctx context.Context, args map[string]any) (any, error)

// Skill is a registered capability.
type Skill struct {
	Name   string
	Source string // "builtin", "manifest", "inherited"
	Invoke Invocable
}

// Result is the outcome of one asynchronous invocation.
type Result struct {
	Name  string
	Value any
	Err   error
}

// Ack is the immediate acknowledgement of an invocation request. Done
// always yields exactly one Result, including for rejected requests.
type Ack struct {
	Name     string
	Accepted bool
	Err      error
	Done     <-chan Result
}

// Reflector is the journal surface the registry needs.
type Reflector interface {
	Reflect(ctx context.Context, event string, details map[string]any) journal.Record
}

// Registry maps capability names to invocables. Registration is
// last-write-wins. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	skills   map[string]Skill
	journal  Reflector
	logger   *slog.Logger
	onChange func(names []string)
}

// New creates a registry. journal and onChange may be nil; onChange fires
// with the sorted name list after every registration, letting the owner
// rewrite the integrity certificate.
func New(j Reflector, onChange func(names []string)) *Registry {
	return &Registry{
		skills:   make(map[string]Skill),
		journal:  j,
		logger:   slog.Default(),
		onChange: onChange,
	}
}

// Register binds a name to an invocable. An existing binding is replaced.
// Returns true when the name was already bound.
func (r *Registry) Register(name string, fn Invocable, source string) bool {
	r.mu.Lock()
	_, replaced := r.skills[name]
	r.skills[name] = Skill{Name: name, Source: source, Invoke: fn}
	names := r.namesLocked()
	r.mu.Unlock()

	if r.journal != nil {
		event := "SKILL_ADDED"
		if replaced {
			event = "SKILL_REPLACED"
		}
		r.journal.Reflect(context.Background(), event, map[string]any{
			"name":   name,
			"source": source,
		})
	}
	if r.onChange != nil {
		r.onChange(names)
	}
	return replaced
}

// Names returns the sorted registered capability names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks up a capability by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[name]
	return s, ok
}

// Len reports the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.skills)
}

// InvokeAsync requests an invocation and acknowledges immediately. An
// unknown name yields a rejected Ack with a NOT_FOUND result; it never
// panics. A known name runs on its own goroutine; panics inside the
// invocable are recovered, journaled, and surfaced as the Result error.
func (r *Registry) InvokeAsync(ctx context.Context, name string, args map[string]any) Ack {
	r.mu.Lock()
	skill, ok := r.skills[name]
	r.mu.Unlock()

	done := make(chan Result, 1)
	if !ok {
		err := errors.New(errors.CodeNotFound, "unknown skill", nil).
			WithContext("name", name).
			WithRecoverable(true)
		done <- Result{Name: name, Err: err}
		return Ack{Name: name, Accepted: false, Err: err, Done: done}
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				err := errors.New(errors.CodeInternal, "skill panicked", fmt.Errorf("%v", rec)).
					WithContext("name", name)
				if r.journal != nil {
					r.journal.Reflect(context.Background(), "SKILL_PANIC", map[string]any{
						"name":  name,
						"panic": fmt.Sprintf("%v", rec),
					})
				}
				done <- Result{Name: name, Err: err}
			}
		}()
		value, err := skill.Invoke(ctx, args)
		if err != nil && r.journal != nil {
			r.journal.Reflect(context.Background(), "SKILL_FAILED", map[string]any{
				"name":  name,
				"error": err.Error(),
			})
		}
		done <- Result{Name: name, Value: value, Err: err}
	}()

	return Ack{Name: name, Accepted: true, Done: done}
}
