package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/engine"
	"github.com/hupe1980/agentduet/internal/testutil"
	"github.com/hupe1980/agentduet/model"
	"github.com/hupe1980/agentduet/session"
)

const waitTimeout = 5 * time.Second

// gateBackend blocks every Generate call until release is closed.
type gateBackend struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateBackend() *gateBackend {
	return &gateBackend{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateBackend) Generate(ctx context.Context, _ model.Request) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return "gated reply", nil
}

func (g *gateBackend) ListModels(context.Context) []string { return []string{"gate"} }
func (g *gateBackend) Info() model.Info                    { return model.Info{Name: "gate", Kind: model.KindLocal} }

type emptyModelsBackend struct{ panics bool }

func (b emptyModelsBackend) Generate(context.Context, model.Request) (string, error) { return "x", nil }
func (b emptyModelsBackend) ListModels(context.Context) []string {
	if b.panics {
		panic("discovery exploded")
	}
	return nil
}
func (b emptyModelsBackend) Info() model.Info { return model.Info{Name: "empty", Kind: model.KindLocal} }

// recordingStore observes what the engine knew at the moment of archiving.
type recordingStore struct {
	*session.InMemoryStore
	eng       *engine.Engine
	err       error
	mu        sync.Mutex
	sawActive bool
}

func (s *recordingStore) Save(t core.Transcript) error {
	s.mu.Lock()
	s.sawActive = s.eng.Active()
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.InMemoryStore.Save(t)
}

// slowStore delays archiving to widen the window between a run's last turn
// and its terminal event.
type slowStore struct {
	*session.InMemoryStore
	delay  time.Duration
	saving chan struct{}
	once   sync.Once
}

func (s *slowStore) Save(t core.Transcript) error {
	s.once.Do(func() { close(s.saving) })
	time.Sleep(s.delay)
	return s.InMemoryStore.Save(t)
}

func drainUntilTerminal(t *testing.T, events <-chan core.Event) []core.Event {
	t.Helper()
	var out []core.Event
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
			if ev.IsTerminal() {
				return out
			}
		case <-deadline:
			t.Fatalf("no terminal event after %d events", len(out))
			return nil
		}
	}
}

func TestEngine_StartRunsToCompletion(t *testing.T) {
	eng := engine.New()
	settings := testutil.NewSettingsBuilder().
		Rounds(2).
		Backends(testutil.Scripted("one", "A1", "A2"), testutil.Scripted("two", "B1", "B2")).
		Build()

	runID, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	got := drainUntilTerminal(t, events)
	require.Len(t, got, 1+2*4+1)
	for _, ev := range got {
		assert.Equal(t, runID, ev.RunID)
		assert.True(t, ev.IsText())
	}
	terminal := got[len(got)-1]
	assert.Equal(t, core.RunCompleted, terminal.State)

	assert.False(t, eng.Active())
	tr, ok := eng.Result(runID)
	require.True(t, ok)
	assert.Equal(t, core.RunCompleted, tr.State)
	dialogue := tr.Dialogue()
	require.Len(t, dialogue, 4)
	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, []string{
		dialogue[0].Content, dialogue[1].Content, dialogue[2].Content, dialogue[3].Content,
	})
}

func TestEngine_RejectsSecondRunWhileActive(t *testing.T) {
	eng := engine.New()
	gate := newGateBackend()
	settings := testutil.NewSettingsBuilder().Backends(gate, testutil.Scripted("two", "B1")).Build()

	_, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)
	<-gate.entered

	_, _, err = eng.Start(context.Background(), settings)
	assert.ErrorIs(t, err, engine.ErrRunActive)
	assert.True(t, eng.Active())

	close(gate.release)
	drainUntilTerminal(t, events)
	assert.False(t, eng.Active())

	_, events, err = eng.Start(context.Background(), testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).Build())
	require.NoError(t, err)
	drainUntilTerminal(t, events)
}

func TestEngine_RequestStopWaitsForInFlightTurn(t *testing.T) {
	eng := engine.New()
	assert.ErrorIs(t, eng.RequestStop(), engine.ErrNoActiveRun)

	gate := newGateBackend()
	two := testutil.Scripted("two", "B1")
	settings := testutil.NewSettingsBuilder().Rounds(3).Backends(gate, two).Build()

	runID, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)
	<-gate.entered

	require.NoError(t, eng.RequestStop())
	close(gate.release)

	got := drainUntilTerminal(t, events)
	terminal := got[len(got)-1]
	assert.Equal(t, core.RunCancelled, terminal.State)
	assert.Contains(t, terminal.Text, "stopped by user")

	tr, ok := eng.Result(runID)
	require.True(t, ok)
	require.Len(t, tr.Dialogue(), 1)
	assert.Equal(t, "gated reply", tr.Dialogue()[0].Content)
	assert.Empty(t, two.Calls())
}

func TestEngine_FailureIsReportedAsTerminalEvent(t *testing.T) {
	eng := engine.New()
	one := model.NewScriptedBackend("one", []model.Step{model.Fail(errors.New("connection refused"))})
	settings := testutil.NewSettingsBuilder().Backends(one, testutil.Scripted("two")).Build()

	runID, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)

	got := drainUntilTerminal(t, events)
	terminal := got[len(got)-1]
	assert.Equal(t, core.RunFailed, terminal.State)
	assert.Equal(t, core.ErrorTransport, terminal.ErrorKind)
	assert.Equal(t, 1, terminal.Agent)

	tr, ok := eng.Result(runID)
	require.True(t, ok)
	assert.Equal(t, core.ErrorTransport, tr.ErrorKind)
}

func TestEngine_ConfigurationErrorNeverStarts(t *testing.T) {
	eng := engine.New()
	settings := testutil.NewSettingsBuilder().Backends(testutil.Scripted("one"), nil).Build()

	_, events, err := eng.Start(context.Background(), settings)
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrConfiguration)
	assert.Nil(t, events)
	assert.False(t, eng.Active())
	assert.Empty(t, eng.Poll(0))
}

func TestEngine_ArchivesBeforeTerminalEvent(t *testing.T) {
	store := &recordingStore{InMemoryStore: session.NewInMemoryStore()}
	var finished []string
	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewFunctionCallback(engine.CallbackRunFinished,
		func(_ context.Context, c *engine.CallbackContext) error {
			finished = append(finished, c.RunID)
			return nil
		}))

	eng := engine.New(func(o *engine.Options) {
		o.TranscriptStore = store
		o.Callbacks = callbacks
	})
	store.eng = eng

	runID, events, err := eng.Start(context.Background(), testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).Build())
	require.NoError(t, err)
	drainUntilTerminal(t, events)

	archived, err := store.Get(runID)
	require.NoError(t, err)
	assert.Len(t, archived.Dialogue(), 2)
	assert.True(t, store.sawActive)
	assert.False(t, eng.Active())
	assert.Equal(t, []string{runID}, finished)
}

func TestEngine_ArchiveErrorDoesNotLoseTerminalEvent(t *testing.T) {
	store := &recordingStore{InMemoryStore: session.NewInMemoryStore(), err: errors.New("disk full")}
	var archiveErr error
	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewFunctionCallback(engine.CallbackArchiveError,
		func(_ context.Context, c *engine.CallbackContext) error {
			archiveErr = c.Err
			return nil
		}))

	eng := engine.New(func(o *engine.Options) {
		o.TranscriptStore = store
		o.Callbacks = callbacks
	})
	store.eng = eng

	runID, events, err := eng.Start(context.Background(), testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).Build())
	require.NoError(t, err)

	got := drainUntilTerminal(t, events)
	assert.Equal(t, core.RunCompleted, got[len(got)-1].State)
	assert.EqualError(t, archiveErr, "disk full")
	_, ok := eng.Result(runID)
	assert.True(t, ok)
}

func TestEngine_SmallBufferDropsNothing(t *testing.T) {
	eng := engine.New(func(o *engine.Options) { o.Config.EventBufferSize = 1 })
	settings := testutil.NewSettingsBuilder().
		Rounds(3).
		Backends(testutil.Scripted("one", "A1", "A2", "A3"), testutil.Scripted("two", "B1", "B2", "B3")).
		Build()

	_, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)
	got := drainUntilTerminal(t, events)
	assert.Len(t, got, 1+6*2+1)
}

func TestEngine_Poll(t *testing.T) {
	eng := engine.New()
	assert.Equal(t, engine.DefaultConfig.PollInterval, eng.PollInterval())
	assert.Empty(t, eng.Poll(10))

	_, _, err := eng.Start(context.Background(), testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).Build())
	require.NoError(t, err)

	var got []core.Event
	require.Eventually(t, func() bool {
		got = append(got, eng.Poll(2)...)
		return len(got) > 0 && got[len(got)-1].IsTerminal()
	}, waitTimeout, 5*time.Millisecond)
	assert.Len(t, got, 6)
}

func TestEngine_RefreshModels(t *testing.T) {
	eng := engine.New()

	eng.RefreshModels(context.Background(), 2, emptyModelsBackend{})
	ev := <-eng.Events()
	assert.Equal(t, core.EventModelListUpdate, ev.Kind)
	assert.Equal(t, 2, ev.Agent)
	assert.Equal(t, []string{model.NoModelsPlaceholder}, ev.Models)

	eng.RefreshModels(context.Background(), 1, emptyModelsBackend{panics: true})
	ev = <-eng.Events()
	assert.Equal(t, 1, ev.Agent)
	assert.Equal(t, []string{model.NoModelsPlaceholder}, ev.Models)

	scripted := model.NewScriptedBackend("local", nil, func(o *model.ScriptedOptions) {
		o.Models = []string{"llama3", "mistral"}
	})
	eng.RefreshModels(context.Background(), 1, scripted)
	ev = <-eng.Events()
	assert.Equal(t, []string{"llama3", "mistral"}, ev.Models)
	assert.False(t, eng.Active())
}

func TestEngine_ClockStampsTranscript(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	eng := engine.New(func(o *engine.Options) {
		o.Clock = func() time.Time { return fixed }
	})
	settings := testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).
		Build()

	runID, events, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)
	drainUntilTerminal(t, events)

	tr, ok := eng.Result(runID)
	require.True(t, ok)
	assert.True(t, fixed.Equal(tr.StartedAt))
	assert.True(t, fixed.Equal(tr.FinishedAt))
}

func TestEngine_NextRunWaitsForTerminalEvent(t *testing.T) {
	store := &slowStore{
		InMemoryStore: session.NewInMemoryStore(),
		delay:         200 * time.Millisecond,
		saving:        make(chan struct{}),
	}
	eng := engine.New(func(o *engine.Options) { o.TranscriptStore = store })
	newSettings := func() agent.Settings {
		return testutil.NewSettingsBuilder().
			Rounds(2).
			Backends(testutil.Scripted("one", "A1", "A2"), testutil.Scripted("two", "B1", "B2")).
			Build()
	}

	first, events, err := eng.Start(context.Background(), newSettings())
	require.NoError(t, err)

	<-store.saving
	assert.True(t, eng.Active())
	_, _, err = eng.Start(context.Background(), newSettings())
	assert.ErrorIs(t, err, engine.ErrRunActive)

	require.Eventually(t, func() bool { return !eng.Active() }, waitTimeout, time.Millisecond)
	second, _, err := eng.Start(context.Background(), newSettings())
	require.NoError(t, err)

	var order []core.Event
	deadline := time.After(waitTimeout)
	for done := false; !done; {
		select {
		case ev := <-events:
			order = append(order, ev)
			done = ev.IsTerminal() && ev.RunID == second
		case <-deadline:
			t.Fatalf("second run did not finish after %d events", len(order))
		}
	}

	firstTerminal := -1
	for i, ev := range order {
		if ev.RunID == first && ev.IsTerminal() {
			firstTerminal = i
		}
		if ev.RunID == second {
			require.GreaterOrEqual(t, firstTerminal, 0, "event %d of the second run precedes the first run's terminal event", i)
		}
	}
	assert.Equal(t, 2*(1+2*4+1), len(order))
}

func TestEngine_FullBufferTerminalWithStop(t *testing.T) {
	eng := engine.New(func(o *engine.Options) { o.Config.EventBufferSize = 1 })
	settings := testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).
		Build()

	runID, _, err := eng.Start(context.Background(), settings)
	require.NoError(t, err)

	var got []core.Event
	require.Eventually(t, func() bool {
		// Stop requests and state queries must not block while the run waits
		// for buffer space.
		_ = eng.RequestStop()
		_ = eng.Active()
		got = append(got, eng.Poll(1)...)
		return len(got) > 0 && got[len(got)-1].IsTerminal()
	}, waitTimeout, time.Millisecond)

	assert.Equal(t, runID, got[len(got)-1].RunID)
	assert.False(t, eng.Active())
}

func TestLoggingCallback(t *testing.T) {
	var lines []string
	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackRunStarted, func(m string) { lines = append(lines, m) }))
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackRunFinished, func(m string) { lines = append(lines, m) }))
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackArchiveError, nil))

	eng := engine.New(func(o *engine.Options) { o.Callbacks = callbacks })
	runID, events, err := eng.Start(context.Background(), testutil.NewSettingsBuilder().
		Backends(testutil.Scripted("one", "A1"), testutil.Scripted("two", "B1")).Build())
	require.NoError(t, err)
	drainUntilTerminal(t, events)

	assert.Equal(t, []string{
		"[run_started] run: " + runID,
		"[run_finished] run: " + runID + ", state: completed, turns: 2",
	}, lines)

	err = callbacks.ExecuteCallbacks(context.Background(), engine.CallbackArchiveError, &engine.CallbackContext{
		RunID: runID, CallbackType: engine.CallbackArchiveError, Err: errors.New("disk full"),
	})
	assert.NoError(t, err)
}

// blockingModelsBackend holds ListModels until release is closed.
type blockingModelsBackend struct {
	emptyModelsBackend
	entered chan struct{}
	release chan struct{}
}

func (b blockingModelsBackend) ListModels(context.Context) []string {
	close(b.entered)
	<-b.release
	return []string{"late"}
}

func TestEngine_RefreshModelsCancelledContextDropsUpdate(t *testing.T) {
	eng := engine.New(func(o *engine.Options) { o.Config.EventBufferSize = 1 })
	backend := blockingModelsBackend{entered: make(chan struct{}), release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	eng.RefreshModels(ctx, 1, backend)
	<-backend.entered
	cancel()
	close(backend.release)

	assert.Never(t, func() bool { return len(eng.Poll(0)) > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	// A cancelled ctx also frees a goroutine already waiting on a full buffer.
	eng.RefreshModels(context.Background(), 1, emptyModelsBackend{})
	require.Eventually(t, func() bool { return len(eng.Events()) == 1 }, waitTimeout, time.Millisecond)

	ctx, cancel = context.WithCancel(context.Background())
	waiting := blockingModelsBackend{entered: make(chan struct{}), release: make(chan struct{})}
	eng.RefreshModels(ctx, 2, waiting)
	<-waiting.entered
	close(waiting.release)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	evs := eng.Poll(0)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].Agent)
	assert.Never(t, func() bool { return len(eng.Poll(0)) > 0 }, 100*time.Millisecond, 5*time.Millisecond)
}
