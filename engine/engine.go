package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/logging"
	"github.com/hupe1980/agentduet/model"
	"github.com/hupe1980/agentduet/session"
)

var (
	// ErrRunActive is returned by Start while another run has not finished.
	ErrRunActive = errors.New("a dialogue run is already active")
	// ErrNoActiveRun is returned by RequestStop when nothing is running.
	ErrNoActiveRun = errors.New("no active dialogue run")
)

// terminalRetryInterval paces the terminal send while the event buffer is full.
const terminalRetryInterval = 2 * time.Millisecond

// Config defines tuning parameters for the Engine.
type Config struct {
	// EventBufferSize sets the capacity of the event channel. A full buffer
	// makes the run goroutine wait for the consumer; events are never dropped.
	EventBufferSize int

	// PollInterval is the interval at which consumers are expected to drain
	// the channel. The engine itself does not tick; it only advertises the
	// value through PollInterval.
	PollInterval time.Duration
}

// DefaultConfig provides default configuration values.
//
// Configuration values:
//   - EventBufferSize: 256 (a full run of short turns fits without backpressure)
//   - PollInterval: 100ms
var DefaultConfig = Config{
	EventBufferSize: 256,
	PollInterval:    100 * time.Millisecond,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := New(func(o *Options) {
//	    o.Config.EventBufferSize = 1024
//	    o.TranscriptStore = session.NewFileStore("history")
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// TranscriptStore archives finished runs. Defaults to an in-memory store.
	TranscriptStore core.TranscriptStore

	// Callbacks receives lifecycle hooks. Defaults to an empty manager.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Clock stamps transcripts. Defaults to time.Now.
	Clock func() time.Time
}

type activeRun struct {
	id    string
	token *core.CancelToken
}

// Engine hosts at most one dialogue run at a time and relays its events.
//
// Concurrency Model:
//   - Start spawns one goroutine per run; a second Start while it is active
//     fails with ErrRunActive
//   - RequestStop only sets the run's cancellation token; an in-flight
//     backend call is never interrupted
//   - RefreshModels spawns its own short-lived goroutine
//   - All events share one ordered channel returned by Events
type Engine struct {
	store     core.TranscriptStore
	callbacks *CallbackManager
	logger    logging.Logger
	clock     func() time.Time
	config    Config

	events chan core.Event

	mu      sync.Mutex
	active  *activeRun
	results map[string]core.Transcript
}

// New creates a new Engine with defaults overridable through optFns.
//
// Default Services:
//   - TranscriptStore: in-memory store
//   - Callbacks: empty manager
//   - Logger: NoOpLogger
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:          DefaultConfig,
		TranscriptStore: session.NewInMemoryStore(),
		Callbacks:       NewCallbackManager(),
		Logger:          logging.NoOpLogger{},
		Clock:           time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Config.PollInterval <= 0 {
		opts.Config.PollInterval = DefaultConfig.PollInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Engine{
		store:     opts.TranscriptStore,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		clock:     opts.Clock,
		config:    opts.Config,
		events:    make(chan core.Event, opts.Config.EventBufferSize),
		results:   make(map[string]core.Transcript),
	}
}

// Events returns the single ordered event channel. It is never closed.
func (e *Engine) Events() <-chan core.Event { return e.events }

// PollInterval returns the configured drain interval for consumers.
func (e *Engine) PollInterval() time.Duration { return e.config.PollInterval }

// Start validates settings and spawns a run. It returns the run identifier and
// the engine's event channel.
//
// Immediate errors:
//   - ErrRunActive if another run has not finished
//   - *agent.ConfigurationError if the settings cannot start a run
//
// Everything that goes wrong after Start returns is reported as events, ending
// with exactly one terminal event for the run.
func (e *Engine) Start(ctx context.Context, settings agent.Settings) (string, <-chan core.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return "", nil, ErrRunActive
	}

	token := core.NewCancelToken()
	runID := core.NewID()
	d, err := agent.NewDialogue(settings, token, func(o *agent.Options) {
		o.RunID = runID
		o.Logger = e.logger
		o.Now = e.clock
	})
	if err != nil {
		e.logger.Warn("Dialogue rejected", "error", err.Error())
		return "", nil, err
	}

	e.active = &activeRun{id: runID, token: token}
	e.logger.Info("Dialogue started", "run_id", runID, "rounds", settings.Rounds)

	go e.run(ctx, d)

	return runID, e.events, nil
}

// RequestStop asks the active run to stop at the next turn boundary.
func (e *Engine) RequestStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return ErrNoActiveRun
	}
	e.active.token.Cancel()
	e.logger.Info("Stop requested", "run_id", e.active.id)
	return nil
}

// Active reports whether a run is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// ActiveRunID returns the identifier of the active run, if any.
func (e *Engine) ActiveRunID() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return "", false
	}
	return e.active.id, true
}

// Result returns the finalized transcript of a finished run.
func (e *Engine) Result(runID string) (core.Transcript, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.results[runID]
	if !ok {
		return core.Transcript{}, false
	}
	return t.Clone(), true
}

// Poll drains up to max buffered events without blocking. A max of zero or
// less drains everything currently buffered.
func (e *Engine) Poll(max int) []core.Event {
	var out []core.Event
	for max <= 0 || len(out) < max {
		select {
		case ev := <-e.events:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// RefreshModels discovers the models of backend in a short-lived goroutine and
// emits a model-list-update for agentNum. It never touches the active run; an
// empty result becomes the placeholder. The update shares the ordered channel,
// so a full buffer makes the goroutine wait for the sink; cancelling ctx drops
// the update and ends the goroutine instead.
func (e *Engine) RefreshModels(ctx context.Context, agentNum int, backend model.Backend) {
	go func() {
		models := e.listModels(ctx, backend)
		name := backend.Info().Name
		if ctx.Err() != nil {
			e.logger.Debug("Model list dropped", "agent", agentNum, "backend", name, "error", ctx.Err().Error())
			return
		}
		e.logger.Debug("Models discovered", "agent", agentNum, "backend", name, "count", len(models))

		select {
		case e.events <- core.NewModelListEvent(agentNum, model.ModelsOrPlaceholder(models)):
		case <-ctx.Done():
			e.logger.Debug("Model list dropped", "agent", agentNum, "backend", name, "error", ctx.Err().Error())
		}
	}()
}

func (e *Engine) listModels(ctx context.Context, backend model.Backend) (models []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Model discovery panicked", "backend", backend.Info().Name, "panic", fmt.Sprint(r))
			models = nil
		}
	}()
	return backend.ListModels(ctx)
}

// run drives a dialogue on the run goroutine. The terminal event is held back
// until the transcript is archived and the callbacks have run; only then is
// the active slot released, together with the terminal send.
func (e *Engine) run(ctx context.Context, d *agent.Dialogue) {
	runID := d.RunID()
	_ = e.callbacks.ExecuteCallbacks(ctx, CallbackRunStarted, &CallbackContext{RunID: runID, CallbackType: CallbackRunStarted})

	var terminal *core.Event
	transcript, err := d.Run(ctx, func(ev core.Event) {
		if ev.IsTerminal() {
			terminal = &ev
			return
		}
		e.events <- ev
	})
	if err != nil {
		// Only reachable if the dialogue was reused, which Start never does.
		e.logger.Error("Dialogue run rejected", "run_id", runID, "error", err.Error())
	}

	e.archive(ctx, runID, transcript)

	if terminal == nil {
		ev := core.NewFinishedEvent(runID, transcript.State, "")
		terminal = &ev
	}
	e.release(runID, transcript, *terminal)
}

func (e *Engine) archive(ctx context.Context, runID string, transcript core.Transcript) {
	if err := e.store.Save(transcript); err != nil {
		e.logger.Error("Archiving transcript failed", "run_id", runID, "error", err.Error())
		_ = e.callbacks.ExecuteCallbacks(ctx, CallbackArchiveError, &CallbackContext{
			RunID: runID, CallbackType: CallbackArchiveError, Transcript: &transcript, Err: err,
		})
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackRunFinished, &CallbackContext{
		RunID: runID, CallbackType: CallbackRunFinished, Transcript: &transcript,
	}); err != nil {
		e.logger.Warn("Run finished callbacks failed", "run_id", runID, "error", err.Error())
	}
}

// release records the result, then queues the terminal event and frees the
// active slot in one critical section: no other run can start, and so emit,
// before this run's terminal event is in the channel. The send never blocks
// under the mutex; a full buffer is retried so that RequestStop, Active and
// Poll stay usable for the sink that has to drain it.
func (e *Engine) release(runID string, transcript core.Transcript, terminal core.Event) {
	e.mu.Lock()
	e.results[runID] = transcript.Clone()
	e.mu.Unlock()

	for {
		e.mu.Lock()
		select {
		case e.events <- terminal:
			e.active = nil
			e.mu.Unlock()
			return
		default:
		}
		e.mu.Unlock()
		time.Sleep(terminalRetryInterval)
	}
}
