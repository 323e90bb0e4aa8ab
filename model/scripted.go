package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedBackend runs out of steps and
// has no fallback.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted outcome of Generate.
type Step struct {
	Text string
	Err  error
}

// Reply scripts a successful turn.
func Reply(text string) Step { return Step{Text: text} }

// Fail scripts a failed turn. Unclassified errors are wrapped as transport failures.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedOptions configures a ScriptedBackend.
type ScriptedOptions struct {
	Kind     Kind
	Models   []string
	Fallback func(req Request) (string, error)
}

// ScriptedBackend is a deterministic in-memory Backend that replays a fixed
// sequence of outcomes in call order. It records every request it receives.
type ScriptedBackend struct {
	name  string
	opts  ScriptedOptions
	mu    sync.Mutex
	steps []Step
	calls []Request
}

// NewScriptedBackend constructs a ScriptedBackend replaying steps.
func NewScriptedBackend(name string, steps []Step, optFns ...func(o *ScriptedOptions)) *ScriptedBackend {
	opts := ScriptedOptions{
		Kind:   KindLocal,
		Models: []string{name},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ScriptedBackend{name: name, opts: opts, steps: append([]Step(nil), steps...)}
}

// Generate implements Backend.
func (b *ScriptedBackend) Generate(ctx context.Context, req Request) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, cloneRequest(req))
	if len(b.steps) == 0 {
		b.mu.Unlock()
		if b.opts.Fallback != nil {
			return b.opts.Fallback(req)
		}
		return "", TransportError(b.name, ErrScriptExhausted)
	}
	step := b.steps[0]
	b.steps = b.steps[1:]
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", TransportError(b.name, err)
	}
	if step.Err != nil {
		var me *Error
		if errors.As(step.Err, &me) {
			return "", step.Err
		}
		return "", TransportError(b.name, step.Err)
	}
	return step.Text, nil
}

// ListModels implements Backend.
func (b *ScriptedBackend) ListModels(context.Context) []string {
	return append([]string(nil), b.opts.Models...)
}

// Info implements Backend.
func (b *ScriptedBackend) Info() Info { return Info{Name: b.name, Kind: b.opts.Kind} }

// Calls returns a copy of every request received so far.
func (b *ScriptedBackend) Calls() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.calls))
	for i, c := range b.calls {
		out[i] = cloneRequest(c)
	}
	return out
}

// EchoFallback answers with a short line quoting the outbound message. It is
// used for dry runs where no real backend is contacted.
func EchoFallback(name string) func(Request) (string, error) {
	return func(req Request) (string, error) {
		turn := (len(req.History)-1)/2 + 1
		return fmt.Sprintf("%s (turn %d) replying to: %q", name, turn, firstLine(req.Last().Content)), nil
	}
}

func cloneRequest(r Request) Request {
	c := r
	c.History = append(c.History[:0:0], r.History...)
	return c
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

var _ Backend = (*ScriptedBackend)(nil)
