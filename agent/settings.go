package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
)

// StyleDirectiveHeading separates a persona prompt from the appended style directive.
const StyleDirectiveHeading = "\n\n--- Conversation style directive ---\n"

// ErrConfiguration matches every *ConfigurationError.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports settings that cannot start a run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AgentSettings configures one side of the dialogue.
type AgentSettings struct {
	// Label names the agent in status lines and the structured log. Defaults
	// to "Agent1" / "Agent2".
	Label string
	// PersonaName is informational and appears in the session header.
	PersonaName  string
	SystemPrompt string
	Backend      model.Backend
	Model        string
}

// Settings is the immutable input of a single run.
type Settings struct {
	Agent1 AgentSettings
	Agent2 AgentSettings
	Topic  string
	Rounds int
	// Style is appended once to both system prompts when non-empty.
	Style string
}

// Agent returns the settings of agent n (1 or 2).
func (s Settings) Agent(n int) AgentSettings {
	if n == 2 {
		return s.Agent2
	}
	return s.Agent1
}

// Label returns the display label of agent n.
func (s Settings) Label(n int) string {
	if l := s.Agent(n).Label; l != "" {
		return l
	}
	return fmt.Sprintf("Agent%d", n)
}

// EffectivePrompt returns the system prompt of agent n with the style
// directive applied.
func (s Settings) EffectivePrompt(n int) string {
	return ComposePrompt(s.Agent(n).SystemPrompt, s.Style)
}

// TotalTurns returns Rounds*2.
func (s Settings) TotalTurns() int { return s.Rounds * 2 }

// ComposePrompt appends style to persona exactly once when style is non-empty.
func ComposePrompt(persona, style string) string {
	if style == "" {
		return persona
	}
	return persona + StyleDirectiveHeading + style
}

// Validate checks that a run can start. It is called by NewDialogue.
func (s Settings) Validate() error {
	for n := 1; n <= 2; n++ {
		if err := validateAgent(fmt.Sprintf("agent%d", n), s.Agent(n)); err != nil {
			return err
		}
	}
	if s.Rounds < 1 {
		return &ConfigurationError{Field: "rounds", Reason: fmt.Sprintf("must be at least 1, got %d", s.Rounds)}
	}
	return nil
}

func validateAgent(field string, a AgentSettings) error {
	if a.Backend == nil {
		return &ConfigurationError{Field: field + ".backend", Reason: "no backend selected"}
	}
	if !model.Usable(a.Model) {
		return &ConfigurationError{Field: field + ".model", Reason: "no usable model selected"}
	}
	if c, ok := a.Backend.(model.Credentialed); ok && !c.HasValidCredential() {
		return &ConfigurationError{
			Field:  field + ".backend",
			Reason: fmt.Sprintf("%s requires a validated credential", a.Backend.Info().Name),
		}
	}
	if a.SystemPrompt == "" {
		return &ConfigurationError{Field: field + ".system_prompt", Reason: "persona prompt is empty"}
	}
	return nil
}

func (s Settings) participant(n int) core.Participant {
	a := s.Agent(n)
	return core.Participant{
		Label:       s.Label(n),
		PersonaName: a.PersonaName,
		Backend:     a.Backend.Info().Name,
		Model:       a.Model,
	}
}
