// Package anthropic provides a cloud-session model.Backend for the Anthropic
// Messages API. The persona prompt travels in the System blocks and the
// user/assistant history is re-sent on every turn.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
)

const backendName = "anthropic"

// SupportedModels is the static model set offered by this backend.
var SupportedModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-1-20250805",
	"claude-3-5-haiku-latest",
}

var (
	errNoCredential = errors.New("no validated api key")
	errNoText       = errors.New("response has no text block")
)

// Options configures the Anthropic backend (temperature, max tokens and an
// optional base URL override).
type Options struct {
	BaseURL     string
	Temperature float64
	MaxTokens   int64
}

// Backend wraps the Anthropic Messages API behind model.Backend.
type Backend struct {
	opts Options

	mu     sync.RWMutex
	client *anthropic.Client
}

// NewBackend creates an Anthropic backend without a credential.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{opts: opts}
}

// NewBackendFromClient creates an Anthropic backend from an existing client.
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	b := NewBackend(optFns...)
	b.client = client
	return b
}

// ValidateCredential implements model.Credentialed by listing models with key.
func (b *Backend) ValidateCredential(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if b.opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(b.opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return false
	}

	b.mu.Lock()
	b.client = &client
	b.mu.Unlock()
	return true
}

// HasValidCredential implements model.Credentialed.
func (b *Backend) HasValidCredential() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil
}

// ListModels implements model.Backend with the static supported set.
func (b *Backend) ListModels(context.Context) []string {
	return append([]string(nil), SupportedModels...)
}

// Generate implements model.Backend.
func (b *Backend) Generate(ctx context.Context, req model.Request) (string, error) {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return "", model.TransportError(backendName, errNoCredential)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    buildMessages(req.History),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("api: %w", err))
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", model.MalformedResponseError(backendName, errNoText)
	}
	return sb.String(), nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: backendName, Kind: model.KindCloud}
}

// buildMessages converts the history, skipping the system message which is
// carried in MessageNewParams.System.
func buildMessages(history []core.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return messages
}

var (
	_ model.Backend      = (*Backend)(nil)
	_ model.Credentialed = (*Backend)(nil)
)
