package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentduet"
	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/core"
)

func newTUICommand(a *app) *cobra.Command {
	var flags dialogueFlags
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Watch a conversation in a full-screen terminal view",
		Long: `Watch a conversation in a full-screen terminal view.

Keys:
  s        stop after the turn in progress
  q        stop and quit once the conversation has ended
  ctrl+c   quit immediately
  ↑/↓      scroll`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			settings, err := a.buildSettings(ctx, flags)
			if err != nil {
				return err
			}
			m := newTUIModel(ctx, a.newDuet(), settings)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
			return err
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

type tickMsg time.Time

type runStartedMsg struct {
	runID string
	err   error
}

type tuiTheme struct {
	header lipgloss.Style
	panel  lipgloss.Style
	status lipgloss.Style
	failed lipgloss.Style
	help   lipgloss.Style
}

func newTUITheme() tuiTheme {
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")
	return tuiTheme{
		header: lipgloss.NewStyle().Bold(true).Foreground(blue).Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),
		status: lipgloss.NewStyle().Foreground(blue).Bold(true),
		failed: lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:   lipgloss.NewStyle().Foreground(muted),
	}
}

// tuiModel is the event sink of the interactive view. It owns all
// presentation state and only learns about the run by draining the engine on
// every tick.
type tuiModel struct {
	ctx      context.Context
	duet     *agentduet.AgentDuet
	settings agent.Settings
	theme    tuiTheme

	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int

	runID       string
	content     string
	running     bool
	finished    bool
	state       core.RunState
	statusLine  string
	err         error
	quitOnFinal bool

	// models holds the latest discovered model list per agent slot.
	models [2][]string
}

func newTUIModel(ctx context.Context, duet *agentduet.AgentDuet, settings agent.Settings) tuiModel {
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	return tuiModel{
		ctx:        ctx,
		duet:       duet,
		settings:   settings,
		theme:      newTUITheme(),
		viewport:   vp,
		spinner:    sp,
		state:      core.RunIdle,
		statusLine: "starting...",
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshModelsCmd(), m.startCmd(), m.tick())
}

// refreshModelsCmd asks both backends for their models; the answers arrive as
// model-list-update events on the next ticks.
func (m tuiModel) refreshModelsCmd() tea.Cmd {
	duet, ctx, settings := m.duet, m.ctx, m.settings
	return func() tea.Msg {
		for n := 1; n <= 2; n++ {
			if backend := settings.Agent(n).Backend; backend != nil {
				duet.RefreshModels(ctx, n, backend)
			}
		}
		return nil
	}
}

func (m tuiModel) startCmd() tea.Cmd {
	duet, ctx, settings := m.duet, m.ctx, m.settings
	return func() tea.Msg {
		runID, _, err := duet.Start(ctx, settings)
		return runStartedMsg{runID: runID, err: err}
	}
}

func (m tuiModel) tick() tea.Cmd {
	return tea.Tick(m.duet.Engine().PollInterval(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case runStartedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.finished = true
			m.statusLine = "could not start: " + msg.err.Error()
			break
		}
		m.runID = msg.runID
		m.running = true
		m.state = core.RunRunning
		m.statusLine = fmt.Sprintf("talking about %q", m.settings.Topic)
	case tickMsg:
		m = m.drain()
		if m.finished && m.quitOnFinal {
			return m, tea.Quit
		}
		cmds = append(cmds, m.tick())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-2, 10)
		m.viewport.Height = max(msg.Height-6, 3)
		m.viewport.SetContent(m.content)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "s":
			m = m.requestStop()
		case "q":
			if !m.running {
				return m, tea.Quit
			}
			m = m.requestStop()
			m.quitOnFinal = true
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// drain applies every buffered event of this run in emission order. Model
// list updates belong to no run and replace the list of their agent slot.
func (m tuiModel) drain() tuiModel {
	appended := false
	for _, ev := range m.duet.Engine().Poll(0) {
		if ev.Kind == core.EventModelListUpdate {
			if ev.Agent == 1 || ev.Agent == 2 {
				m.models[ev.Agent-1] = ev.Models
			}
			continue
		}
		if m.runID == "" || ev.RunID != m.runID || !ev.IsText() {
			continue
		}
		m.content += ev.Text
		appended = true
		if ev.IsTerminal() {
			m.running = false
			m.finished = true
			m.state = ev.State
			m.statusLine = finalStatus(ev)
		}
	}
	if appended {
		m.viewport.SetContent(m.content)
		m.viewport.GotoBottom()
	}
	return m
}

func (m tuiModel) requestStop() tuiModel {
	if !m.running {
		return m
	}
	if err := m.duet.Stop(); err == nil {
		m.statusLine = "stopping after the current turn..."
	}
	return m
}

func finalStatus(ev core.Event) string {
	switch ev.State {
	case core.RunCompleted:
		return "conversation ended"
	case core.RunCancelled:
		return "conversation stopped"
	default:
		return fmt.Sprintf("%s failed (%s): %s", ev.Speaker, ev.ErrorKind, ev.Detail)
	}
}

func (m tuiModel) View() string {
	var b strings.Builder
	header := fmt.Sprintf("agentduet · %s vs %s · %d rounds",
		m.settings.Agent1.PersonaName, m.settings.Agent2.PersonaName, m.settings.Rounds)
	b.WriteString(m.theme.header.Render(header))
	b.WriteString("\n")
	b.WriteString(m.theme.panel.Render(m.viewport.View()))
	b.WriteString("\n")
	if line := m.modelsLine(); line != "" {
		b.WriteString(m.theme.help.Render(line))
		b.WriteString("\n")
	}

	status := m.theme.status.Render(m.statusLine)
	if m.err != nil || m.state == core.RunFailed {
		status = m.theme.failed.Render(m.statusLine)
	}
	if m.running {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	b.WriteString("  ")
	b.WriteString(m.theme.help.Render("s stop · q quit · ↑/↓ scroll"))
	return b.String()
}

// modelsLine lists the known models per agent, or "" before any discovery.
func (m tuiModel) modelsLine() string {
	var parts []string
	for n := 1; n <= 2; n++ {
		if models := m.models[n-1]; len(models) > 0 {
			parts = append(parts, fmt.Sprintf("%s models: %s", m.settings.Label(n), strings.Join(models, ", ")))
		}
	}
	return strings.Join(parts, " · ")
}
