package core

// Persona is the system-level prompt establishing an agent's voice. Personas
// are immutable once loaded into a session.
type Persona struct {
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	IsDefault bool   `json:"-"`
}

// Style is an optional directive appended once to both agents' personas.
type Style struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}
