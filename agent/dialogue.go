package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/logging"
	"github.com/hupe1980/agentduet/model"
)

// ErrAlreadyRun is returned when Run is called on a Dialogue that has left Idle.
var ErrAlreadyRun = errors.New("dialogue already run")

var errEmptyReply = errors.New("backend returned empty content")

// Options configures a Dialogue.
type Options struct {
	// RunID correlates events and the transcript. Generated when empty.
	RunID string
	// Logger receives backend call and run outcome records. Defaults to NoOpLogger.
	Logger logging.Logger
	// Now supplies timestamps for the transcript. Defaults to time.Now.
	Now func() time.Time
}

// Dialogue is a single run of the two-agent turn loop.
//
// State machine: Idle -> Running -> {Completed | Cancelled | Failed}.
//
// While Run executes, the Dialogue exclusively owns both histories and the
// structured log; other goroutines must not call its accessors until Run has
// returned.
type Dialogue struct {
	settings Settings
	token    *core.CancelToken
	opts     Options

	state     core.RunState
	errorKind core.ErrorKind
	histories [2]*core.History
	log       *core.StructuredLog
	turns     int
	started   time.Time
	finished  time.Time
}

// NewDialogue validates settings and returns an Idle Dialogue. A nil token
// gets a fresh one. Invalid settings yield a *ConfigurationError.
func NewDialogue(settings Settings, token *core.CancelToken, optFns ...func(o *Options)) (*Dialogue, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RunID == "" {
		opts.RunID = core.NewID()
	}
	if token == nil {
		token = core.NewCancelToken()
	}

	return &Dialogue{
		settings: settings,
		token:    token,
		opts:     opts,
		state:    core.RunIdle,
	}, nil
}

// RunID returns the run identifier.
func (d *Dialogue) RunID() string { return d.opts.RunID }

// Token returns the cancellation token polled by the run.
func (d *Dialogue) Token() *core.CancelToken { return d.token }

// State returns the lifecycle state.
func (d *Dialogue) State() core.RunState { return d.state }

// History returns a copy of agent n's history.
func (d *Dialogue) History(n int) []core.Message {
	if h := d.histories[n-1]; h != nil {
		return h.Messages()
	}
	return nil
}

// Run executes the turn loop, reporting progress through emit. It always
// returns the finalized transcript; failures and cancellation are resolved
// into terminal events and never returned as errors. The only error is
// ErrAlreadyRun.
//
// The turn algorithm:
//  1. Both histories are seeded with their effective system prompt.
//  2. The header entry is logged and emitted.
//  3. For each turn i in [0, Rounds*2) the speaker is Agent1 when i is even:
//     the token is checked, the current message is appended to the
//     speaker's history as user, the speaker's backend is called with the
//     full history, and on success the reply is appended as assistant,
//     logged, emitted and becomes the current message for the other agent.
//  4. A failed turn ends the run without touching histories or the log
//     beyond a terminal entry naming the speaker.
func (d *Dialogue) Run(ctx context.Context, emit func(core.Event)) (core.Transcript, error) {
	if d.state != core.RunIdle {
		return core.Transcript{}, ErrAlreadyRun
	}
	d.state = core.RunRunning
	d.started = d.opts.Now()

	s := d.settings
	d.histories[0] = core.NewHistory(s.EffectivePrompt(1))
	d.histories[1] = core.NewHistory(s.EffectivePrompt(2))

	header := d.header()
	d.log = core.NewStructuredLog(header)
	emit(core.NewTextEvent(d.opts.RunID, header))

	current := OpeningMessage(s.Topic)

	for i := 0; i < s.TotalTurns(); i++ {
		speaker := 1
		if i%2 == 1 {
			speaker = 2
		}

		if d.token.Cancelled() || ctx.Err() != nil {
			d.cancel(emit)
			return d.transcript(), nil
		}

		round := i/2 + 1
		agentSettings := s.Agent(speaker)
		label := s.Label(speaker)
		emit(d.text(fmt.Sprintf("\nRound %d (%s, model: %s):\n", round, label, agentSettings.Model), speaker, label))

		hist := d.histories[speaker-1]
		if err := hist.AppendUser(current); err != nil {
			d.fail(emit, speaker, i, model.TransportError(agentSettings.Backend.Info().Name, err))
			return d.transcript(), nil
		}

		reply, err := d.generate(ctx, agentSettings, hist)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, model.ErrMalformedResponse) {
				d.cancel(emit)
				return d.transcript(), nil
			}
			d.fail(emit, speaker, i, err)
			return d.transcript(), nil
		}

		if !d.commit(emit, speaker, i, hist, reply) {
			return d.transcript(), nil
		}
		current = reply
	}

	d.finish(core.RunCompleted, core.ErrorNone)
	logging.LogRun(d.opts.Logger, string(d.state), d.turns, d.finished.Sub(d.started))
	emit(core.NewFinishedEvent(d.opts.RunID, core.RunCompleted, "\n--- Conversation ended ---\n"))
	return d.transcript(), nil
}

// commit records a successful reply in the speaker's history and the log. A
// history that rejects the reply ends the run as failed and commit reports
// false.
func (d *Dialogue) commit(emit func(core.Event), speaker, turn int, hist *core.History, reply string) bool {
	a := d.settings.Agent(speaker)
	if err := hist.AppendAssistant(reply); err != nil {
		d.fail(emit, speaker, turn, model.TransportError(a.Backend.Info().Name, err))
		return false
	}
	label := d.settings.Label(speaker)
	d.turns++
	d.log.AppendDialogue(speaker, label, reply)
	emit(d.text(reply+"\n", speaker, label))
	return true
}

// generate calls the backend, converting panics and empty replies into
// classified failures. The speaker's history must end with the outbound user
// message.
func (d *Dialogue) generate(ctx context.Context, a AgentSettings, hist *core.History) (reply string, err error) {
	name := a.Backend.Info().Name
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			reply, err = "", model.TransportError(name, fmt.Errorf("backend panic: %v", r))
		}
		logging.LogBackendCall(d.opts.Logger, name, a.Model, time.Since(start), err == nil, err)
	}()

	reply, err = a.Backend.Generate(ctx, model.Request{
		Model:        a.Model,
		SystemPrompt: hist.SystemPrompt(),
		History:      hist.Messages(),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", model.MalformedResponseError(name, errEmptyReply)
	}
	return reply, nil
}

func (d *Dialogue) cancel(emit func(core.Event)) {
	d.log.AppendTerminal(0, fmt.Sprintf("Conversation stopped by user after %d turns.", d.turns))
	d.finish(core.RunCancelled, core.ErrorNone)
	logging.LogRun(d.opts.Logger, string(d.state), d.turns, d.finished.Sub(d.started))
	emit(core.NewFinishedEvent(d.opts.RunID, core.RunCancelled, "\n--- Conversation stopped by user ---\n"))
}

func (d *Dialogue) fail(emit func(core.Event), speaker, turn int, err error) {
	label := d.settings.Label(speaker)
	kind := model.KindOf(err)

	d.log.AppendTerminal(speaker, fmt.Sprintf("No response from %s on turn %d (%s), conversation terminated.", label, turn+1, kind))
	d.finish(core.RunFailed, kind)
	logging.LogRun(d.opts.Logger, string(d.state), d.turns, d.finished.Sub(d.started))

	ev := core.NewFinishedEvent(d.opts.RunID, core.RunFailed, fmt.Sprintf("No response from %s, conversation terminated.\n", label))
	ev.Speaker = label
	ev.Agent = speaker
	ev.ErrorKind = kind
	ev.Detail = err.Error()
	emit(ev)
}

func (d *Dialogue) finish(state core.RunState, kind core.ErrorKind) {
	d.state = state
	d.errorKind = kind
	d.finished = d.opts.Now()
}

func (d *Dialogue) text(text string, agent int, speaker string) core.Event {
	ev := core.NewTextEvent(d.opts.RunID, text)
	ev.Agent = agent
	ev.Speaker = speaker
	return ev
}

func (d *Dialogue) header() string {
	s := d.settings
	var b strings.Builder
	b.WriteString("Persona introduction\n")
	for n := 1; n <= 2; n++ {
		a := s.Agent(n)
		fmt.Fprintf(&b, "%s: %s\n", s.Label(n), personaName(a))
		fmt.Fprintf(&b, "Prompt:\n%s\n", a.SystemPrompt)
		if n == 1 {
			b.WriteString("\n")
		}
	}
	if s.Style != "" {
		fmt.Fprintf(&b, "\nConversation style directive:\n%s\n", s.Style)
	}
	b.WriteString("==========================================\n")
	return b.String()
}

func (d *Dialogue) transcript() core.Transcript {
	s := d.settings
	return core.Transcript{
		RunID:      d.opts.RunID,
		StartedAt:  d.started,
		FinishedAt: d.finished,
		State:      d.state,
		ErrorKind:  d.errorKind,
		Topic:      s.Topic,
		Rounds:     s.Rounds,
		Agent1:     s.participant(1),
		Agent2:     s.participant(2),
		Style:      s.Style,
		Entries:    d.log.Entries(),
	}
}

// OpeningMessage is the synthesized first user message addressed to Agent1.
func OpeningMessage(topic string) string {
	return fmt.Sprintf("On the topic: '%s'\nPlease open the first round of the discussion.", topic)
}

func personaName(a AgentSettings) string {
	if a.PersonaName != "" {
		return a.PersonaName
	}
	return "custom persona"
}
