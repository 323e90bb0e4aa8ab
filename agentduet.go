// Package agentduet provides a high-level facade over the execution host for
// two-agent dialogues. Most applications interact with this package by:
//  1. Creating an AgentDuet via New() (optionally overriding the default
//     in-memory transcript archive)
//  2. Building agent.Settings with a backend, model and persona per agent
//  3. Running dialogues asynchronously (Start) or synchronously (RunSync)
//
// The facade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; long-lived tools typically supply a session.FileStore and a
// structured logger.
package agentduet

import (
	"context"

	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/engine"
	"github.com/hupe1980/agentduet/logging"
	"github.com/hupe1980/agentduet/model"
	"github.com/hupe1980/agentduet/session"
)

// Options configures the AgentDuet instance.
type Options struct {
	// EngineConfig sets the event buffer and poll interval.
	EngineConfig engine.Config

	// TranscriptStore archives finished runs (defaults to an in-memory store).
	TranscriptStore core.TranscriptStore

	// Callbacks receives run lifecycle hooks (optional).
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentDuet is the high-level facade aggregating the engine and its archive.
type AgentDuet struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new AgentDuet instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentDuet {
	opts := Options{
		EngineConfig:    engine.DefaultConfig,
		TranscriptStore: session.NewInMemoryStore(),
		Callbacks:       engine.NewCallbackManager(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.TranscriptStore = opts.TranscriptStore
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &AgentDuet{opts: opts, engine: e}
}

// Engine exposes the underlying execution host.
func (d *AgentDuet) Engine() *engine.Engine { return d.engine }

// Transcripts exposes the archive finished runs are saved to.
func (d *AgentDuet) Transcripts() core.TranscriptStore { return d.opts.TranscriptStore }

// Start begins an asynchronous run and returns its ID and the event channel.
func (d *AgentDuet) Start(ctx context.Context, settings agent.Settings) (string, <-chan core.Event, error) {
	return d.engine.Start(ctx, settings)
}

// Stop asks the active run to end at the next turn boundary.
func (d *AgentDuet) Stop() error { return d.engine.RequestStop() }

// RefreshModels emits a model-list-update for agentNum once backend answered.
func (d *AgentDuet) RefreshModels(ctx context.Context, agentNum int, backend model.Backend) {
	d.engine.RefreshModels(ctx, agentNum, backend)
}

// RunSync is a synchronous helper that starts a run, collects its events until
// the terminal one and returns the finalized transcript.
//
// A cancelled ctx makes the run stop at the next opportunity; RunSync still
// waits for the terminal event and then returns the transcript together with
// ctx.Err(). Backend failures are not errors here: they end the run in
// core.RunFailed, which the transcript records.
func (d *AgentDuet) RunSync(ctx context.Context, settings agent.Settings) (core.Transcript, []core.Event, error) {
	runID, eventsCh, err := d.engine.Start(ctx, settings)
	if err != nil {
		return core.Transcript{}, nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		if ev.RunID != runID {
			// Model list updates belong to no run.
			continue
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			break
		}
	}

	transcript, _ := d.engine.Result(runID)
	return transcript, events, ctx.Err()
}
