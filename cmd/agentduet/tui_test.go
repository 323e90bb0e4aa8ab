package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
)

func newTestTUIModel(t *testing.T, rounds int) tuiModel {
	t.Helper()
	env := newCLIEnv(t)
	a := &app{cfgPath: env.configPath, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	require.NoError(t, a.load(true))
	a.cfg.Engine.EventBufferSize = 1
	settings, err := a.buildSettings(context.Background(), dialogueFlags{topic: "tui", rounds: rounds, dryRun: true})
	require.NoError(t, err)
	return newTUIModel(context.Background(), a.newDuet(), settings)
}

func step(m tuiModel, msg tea.Msg) tuiModel {
	next, _ := m.Update(msg)
	return next.(tuiModel)
}

func TestTUIModel_RunsToCompletion(t *testing.T) {
	m := newTestTUIModel(t, 2)
	m = step(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = step(m, m.startCmd()())
	require.True(t, m.running)

	require.Eventually(t, func() bool {
		m = step(m, tickMsg(time.Now()))
		return m.finished
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, core.RunCompleted, m.state)
	assert.Equal(t, "conversation ended", m.statusLine)
	assert.Contains(t, m.content, "Round 2 (Agent2, model: echo):")
	assert.Contains(t, m.View(), "conversation ended")
}

func TestTUIModel_QuitWhileRunningStopsFirst(t *testing.T) {
	m := newTestTUIModel(t, 50)
	m = step(m, m.startCmd()())
	m = step(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.quitOnFinal)

	require.Eventually(t, func() bool {
		m = step(m, tickMsg(time.Now()))
		return m.finished
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, core.RunCancelled, m.state)
}

func TestTUIModel_StartError(t *testing.T) {
	m := newTestTUIModel(t, 1)
	m.settings.Rounds = 0
	m = step(m, m.startCmd()())
	assert.True(t, m.finished)
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "could not start")
}

func TestTUIModel_ShowsLatestModelListPerAgent(t *testing.T) {
	m := newTestTUIModel(t, 1)
	assert.Nil(t, m.refreshModelsCmd()())

	require.Eventually(t, func() bool {
		m = step(m, tickMsg(time.Now()))
		return len(m.models[0]) > 0 && len(m.models[1]) > 0
	}, 5*time.Second, 5*time.Millisecond)

	m.duet.RefreshModels(context.Background(), 2, model.NewScriptedBackend("remote", nil, func(o *model.ScriptedOptions) {
		o.Models = []string{"large", "small"}
	}))
	require.Eventually(t, func() bool {
		m = step(m, tickMsg(time.Now()))
		return len(m.models[1]) == 2
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"large", "small"}, m.models[1])
	assert.NotEmpty(t, m.models[0])
	assert.Contains(t, m.View(), "Agent2 models: large, small")
	assert.False(t, m.running)
}
