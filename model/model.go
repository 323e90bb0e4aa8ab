package model

import (
	"context"

	"github.com/hupe1980/agentduet/core"
)

// NoModelsPlaceholder is offered in place of an empty model list so a
// selection widget is never blank. It is never a usable model.
const NoModelsPlaceholder = "no models available"

// Kind is the closed set of backend variants.
type Kind string

const (
	// KindLocal backends talk to a model server on the local network and
	// discover their models dynamically.
	KindLocal Kind = "local"
	// KindCloud backends talk to a hosted provider, enumerate a static model
	// set and require a validated credential before first use.
	KindCloud Kind = "cloud"
)

// Request captures the input of a single turn.
//
// History is the speaking agent's full history, system message first and the
// outbound user message last. SystemPrompt duplicates History[0] for providers
// that carry the system instruction out of band.
type Request struct {
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	History      []core.Message `json:"history"`
}

// Last returns the outbound message of the request.
func (r Request) Last() core.Message {
	if len(r.History) == 0 {
		return core.Message{}
	}
	return r.History[len(r.History)-1]
}

// Info contains metadata about a backend implementation.
type Info struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Backend is the capability interface every provider variant implements.
type Backend interface {
	// Generate produces the assistant reply for the request. Failures are
	// returned as *Error and are never raised as panics.
	Generate(ctx context.Context, req Request) (string, error)

	// ListModels returns the models this backend can serve. It never fails:
	// an empty result means nothing is available.
	ListModels(ctx context.Context) []string

	// Info returns information about the backend implementation.
	Info() Info
}

// Credentialed is implemented by backends that need an API key validated
// before first use.
type Credentialed interface {
	// ValidateCredential checks key against the provider and reports whether it
	// is usable. A valid key is retained for subsequent calls. Errors are
	// swallowed and reported as false.
	ValidateCredential(ctx context.Context, key string) bool

	// HasValidCredential reports whether a key has been validated.
	HasValidCredential() bool
}

// Usable reports whether name is a selectable model.
func Usable(name string) bool {
	return name != "" && name != NoModelsPlaceholder
}

// ModelsOrPlaceholder returns models, or a single placeholder entry when empty.
func ModelsOrPlaceholder(models []string) []string {
	if len(models) == 0 {
		return []string{NoModelsPlaceholder}
	}
	return models
}
