package testutil

import (
	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/model"
)

// SettingsBuilder helps construct run settings with fluent chaining for tests.
// Example:
//
//	s := NewSettingsBuilder().Rounds(2).Topic("X").Backends(b1, b2).Build()
//
// Defaults: one round, topic "testing", scripted models named "m1"/"m2" and
// prompts "persona one"/"persona two".
type SettingsBuilder struct {
	s agent.Settings
}

// NewSettingsBuilder creates a builder with usable defaults apart from the backends.
func NewSettingsBuilder() *SettingsBuilder {
	return &SettingsBuilder{s: agent.Settings{
		Agent1: agent.AgentSettings{PersonaName: "One", SystemPrompt: "persona one", Model: "m1"},
		Agent2: agent.AgentSettings{PersonaName: "Two", SystemPrompt: "persona two", Model: "m2"},
		Topic:  "testing",
		Rounds: 1,
	}}
}

// Rounds sets the round count (chainable).
func (b *SettingsBuilder) Rounds(n int) *SettingsBuilder { b.s.Rounds = n; return b }

// Topic sets the topic (chainable).
func (b *SettingsBuilder) Topic(t string) *SettingsBuilder { b.s.Topic = t; return b }

// Style sets the style directive (chainable).
func (b *SettingsBuilder) Style(st string) *SettingsBuilder { b.s.Style = st; return b }

// Backends sets both agents' backends (chainable).
func (b *SettingsBuilder) Backends(b1, b2 model.Backend) *SettingsBuilder {
	b.s.Agent1.Backend = b1
	b.s.Agent2.Backend = b2
	return b
}

// Models sets both agents' models (chainable).
func (b *SettingsBuilder) Models(m1, m2 string) *SettingsBuilder {
	b.s.Agent1.Model = m1
	b.s.Agent2.Model = m2
	return b
}

// Prompts sets both agents' persona prompts (chainable).
func (b *SettingsBuilder) Prompts(p1, p2 string) *SettingsBuilder {
	b.s.Agent1.SystemPrompt = p1
	b.s.Agent2.SystemPrompt = p2
	return b
}

// Labels sets both agents' display labels (chainable).
func (b *SettingsBuilder) Labels(l1, l2 string) *SettingsBuilder {
	b.s.Agent1.Label = l1
	b.s.Agent2.Label = l2
	return b
}

// Build returns the settings value.
func (b *SettingsBuilder) Build() agent.Settings { return b.s }

// Scripted returns a scripted backend replying with texts in order.
func Scripted(name string, texts ...string) *model.ScriptedBackend {
	steps := make([]model.Step, len(texts))
	for i, t := range texts {
		steps[i] = model.Reply(t)
	}
	return model.NewScriptedBackend(name, steps)
}
