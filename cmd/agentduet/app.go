package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hupe1980/agentduet"
	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/config"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/engine"
	"github.com/hupe1980/agentduet/export"
	"github.com/hupe1980/agentduet/logging"
	"github.com/hupe1980/agentduet/model"
	"github.com/hupe1980/agentduet/persona"
	"github.com/hupe1980/agentduet/session"
)

// app carries what every subcommand shares once the configuration is loaded.
type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *logging.DuetLogger
	stdout  io.Writer
	stderr  io.Writer
}

// load reads the configuration. quiet discards log output so it cannot
// corrupt a full-screen interface.
func (a *app) load(quiet bool) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", a.cfgPath, err)
	}
	a.cfg = cfg

	out := a.stderr
	if quiet {
		out = io.Discard
	}
	a.logger = cfg.Logger(out).WithComponent("cli")
	return nil
}

func (a *app) personas() (*persona.Store, error) {
	return persona.NewStore(a.cfg.Paths.UserPersonas, func(o *persona.Options) {
		o.DefaultsPath = a.cfg.Paths.PersonaDefaults
		o.Logger = a.logger
	})
}

func (a *app) styles() (*persona.StyleStore, error) {
	return persona.NewStyleStore(a.cfg.Paths.UserStyles)
}

func (a *app) history() *session.FileStore {
	return session.NewFileStore(a.cfg.Paths.HistoryDir)
}

func (a *app) newDuet() *agentduet.AgentDuet {
	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewFunctionCallback(engine.CallbackArchiveError,
		func(_ context.Context, c *engine.CallbackContext) error {
			fmt.Fprintf(a.stderr, "warning: could not archive run %s: %v\n", c.RunID, c.Err)
			return nil
		}))
	runLog := a.logger.WithComponent("callbacks")
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackRunFinished, func(message string) {
		runLog.Debug(message)
	}))

	return agentduet.New(func(o *agentduet.Options) {
		o.EngineConfig = engine.Config{
			EventBufferSize: a.cfg.Engine.EventBufferSize,
			PollInterval:    a.cfg.Engine.PollInterval,
		}
		o.TranscriptStore = a.history()
		o.Callbacks = callbacks
		o.Logger = a.logger.WithComponent("engine")
	})
}

// dialogueFlags are the run settings shared by the run and tui commands.
type dialogueFlags struct {
	topic    string
	rounds   int
	persona1 string
	persona2 string
	backend1 string
	backend2 string
	model1   string
	model2   string
	style    string
	dryRun   bool
}

func (f *dialogueFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.topic, "topic", "", "topic of the conversation")
	fs.IntVar(&f.rounds, "rounds", 3, "number of rounds; each round is one turn per agent")
	fs.StringVar(&f.persona1, "persona1", "", "persona of agent 1 (defaults to the first persona)")
	fs.StringVar(&f.persona2, "persona2", "", "persona of agent 2 (defaults to the second persona)")
	fs.StringVar(&f.backend1, "backend1", backendOllama, "backend of agent 1: "+strings.Join(backendNames, ", "))
	fs.StringVar(&f.backend2, "backend2", backendOllama, "backend of agent 2: "+strings.Join(backendNames, ", "))
	fs.StringVar(&f.model1, "model1", "", "model of agent 1 (defaults to the first discovered model)")
	fs.StringVar(&f.model2, "model2", "", "model of agent 2 (defaults to the first discovered model)")
	fs.StringVar(&f.style, "style", "", "name of a saved style, or a literal style directive")
	fs.BoolVar(&f.dryRun, "dry-run", false, "use offline echo backends instead of real models")
}

// buildSettings resolves personas, style, backends and models into run settings.
func (a *app) buildSettings(ctx context.Context, f dialogueFlags) (agent.Settings, error) {
	if strings.TrimSpace(f.topic) == "" {
		return agent.Settings{}, errors.New("--topic is required")
	}

	store, err := a.personas()
	if err != nil {
		return agent.Settings{}, err
	}
	p1, p2, err := pickPersonas(store, f.persona1, f.persona2)
	if err != nil {
		return agent.Settings{}, err
	}

	style, err := a.resolveStyle(f.style)
	if err != nil {
		return agent.Settings{}, err
	}

	settings := agent.Settings{Topic: f.topic, Rounds: f.rounds, Style: style}
	for n, side := range []struct {
		persona core.Persona
		backend string
		model   string
	}{{p1, f.backend1, f.model1}, {p2, f.backend2, f.model2}} {
		backendName := side.backend
		if f.dryRun {
			backendName = backendEcho
		}
		backend, err := newBackend(ctx, a.cfg, backendName, fmt.Sprintf("Agent%d", n+1))
		if err != nil {
			return agent.Settings{}, err
		}
		modelName := side.model
		if modelName == "" || f.dryRun {
			modelName = firstModel(ctx, backend)
		}
		as := agent.AgentSettings{
			PersonaName:  side.persona.Name,
			SystemPrompt: side.persona.Prompt,
			Backend:      backend,
			Model:        modelName,
		}
		if n == 0 {
			settings.Agent1 = as
		} else {
			settings.Agent2 = as
		}
	}

	if err := settings.Validate(); err != nil {
		return agent.Settings{}, err
	}
	return settings, nil
}

func pickPersonas(store *persona.Store, name1, name2 string) (core.Persona, core.Persona, error) {
	all := store.All()
	pick := func(name string, fallback int) (core.Persona, error) {
		if name != "" {
			return store.Get(name)
		}
		if len(all) == 0 {
			return core.Persona{}, errors.New("no personas available; add one with 'agentduet personas add'")
		}
		if fallback >= len(all) {
			fallback = len(all) - 1
		}
		return all[fallback], nil
	}
	p1, err := pick(name1, 0)
	if err != nil {
		return core.Persona{}, core.Persona{}, err
	}
	p2, err := pick(name2, 1)
	if err != nil {
		return core.Persona{}, core.Persona{}, err
	}
	return p1, p2, nil
}

// resolveStyle maps a saved style name to its prompt. Anything else is used
// as a literal directive.
func (a *app) resolveStyle(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	styles, err := a.styles()
	if err != nil {
		return "", err
	}
	if st, err := styles.Get(name); err == nil {
		return st.Prompt, nil
	}
	return strings.TrimSpace(name), nil
}

func firstModel(ctx context.Context, backend model.Backend) string {
	for _, m := range backend.ListModels(ctx) {
		if model.Usable(m) {
			return m
		}
	}
	return model.NoModelsPlaceholder
}

// exportTranscript writes t to path. An empty format is taken from the
// file extension and falls back to plain text.
func exportTranscript(path, format string, t core.Transcript) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
		if format == "" {
			format = string(export.FormatText)
		}
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := export.Write(out, t, f); err != nil {
		_ = out.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	return out.Close()
}
