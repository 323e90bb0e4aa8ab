package core

import (
	"errors"
	"fmt"
)

// Role tags the author of a Message within a History.
type Role string

const (
	// RoleSystem carries the persona prompt and only ever appears first.
	RoleSystem Role = "system"
	// RoleUser carries the other agent's last utterance (or the opening message).
	RoleUser Role = "user"
	// RoleAssistant carries the owning agent's own replies.
	RoleAssistant Role = "assistant"
)

// ErrOutOfOrder is returned when an append would break user/assistant alternation.
var ErrOutOfOrder = errors.New("message out of order")

// Message is a single role-tagged utterance.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the ordered record of one agent's view of the dialogue.
//
// Invariants:
//   - the first message is always RoleSystem
//   - every following pair strictly alternates RoleUser / RoleAssistant
//   - after k completed turns the length is 1 + 2k
//
// A History is owned by a single run goroutine and is not safe for concurrent
// mutation; Messages returns a copy for readers.
type History struct {
	messages []Message
}

// NewHistory seeds a history with its system message.
func NewHistory(systemPrompt string) *History {
	return &History{messages: []Message{{Role: RoleSystem, Content: systemPrompt}}}
}

// SystemPrompt returns the content of the leading system message.
func (h *History) SystemPrompt() string { return h.messages[0].Content }

// AppendUser appends a user message. It fails if the last message is already a user message.
func (h *History) AppendUser(content string) error {
	if h.Pending() {
		return fmt.Errorf("append user after user: %w", ErrOutOfOrder)
	}
	h.messages = append(h.messages, Message{Role: RoleUser, Content: content})
	return nil
}

// AppendAssistant appends an assistant reply. It fails unless a user message is pending.
func (h *History) AppendAssistant(content string) error {
	if !h.Pending() {
		return fmt.Errorf("append assistant after %s: %w", h.last().Role, ErrOutOfOrder)
	}
	h.messages = append(h.messages, Message{Role: RoleAssistant, Content: content})
	return nil
}

// Pending reports whether the history ends with an unanswered user message.
func (h *History) Pending() bool { return h.last().Role == RoleUser }

// Len returns the number of messages including the system message.
func (h *History) Len() int { return len(h.messages) }

// Turns returns the number of completed user/assistant exchanges.
func (h *History) Turns() int { return (len(h.messages) - 1) / 2 }

// Messages returns a copy of the ordered messages.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) last() Message { return h.messages[len(h.messages)-1] }
