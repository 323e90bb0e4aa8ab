// Package openai provides a cloud-session model.Backend using the OpenAI Chat
// Completions API. The persona prompt is sent as a leading system message and
// the full history is re-sent on every turn.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const backendName = "openai"

// SupportedModels is the static model set offered by this backend.
var SupportedModels = []string{
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
}

var (
	errNoCredential = errors.New("no validated api key")
	errNoChoices    = errors.New("no choices returned")
	errEmptyContent = errors.New("choice has no content")
)

// Options configure the OpenAI backend. Fields mirror a small subset of the
// Chat Completion parameters.
type Options struct {
	BaseURL             string
	Temperature         float64
	MaxCompletionTokens int64
}

// Backend wraps the OpenAI Chat Completions API behind model.Backend.
type Backend struct {
	opts Options

	mu     sync.RWMutex
	client *openai.Client
}

// NewBackend creates an OpenAI backend without a credential. Call
// ValidateCredential before the first Generate.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{opts: opts}
}

// NewBackendFromClient creates an OpenAI backend from an already configured
// client. The client's credential is trusted without a check.
func NewBackendFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	b := NewBackend(optFns...)
	b.client = client
	return b
}

// ValidateCredential implements model.Credentialed by listing models with key.
func (b *Backend) ValidateCredential(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if b.opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(b.opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	if _, err := client.Models.List(ctx); err != nil {
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

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               openai.ChatModel(req.Model),
		Temperature:         openai.Float(b.opts.Temperature),
		MaxCompletionTokens: openai.Int(b.opts.MaxCompletionTokens),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("api: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", model.MalformedResponseError(backendName, errNoChoices)
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", model.MalformedResponseError(backendName, errEmptyContent)
	}
	return text, nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: backendName, Kind: model.KindCloud}
}

// buildMessages prepends the system prompt and maps the remaining history
// one-to-one. A system message inside the history is replaced by SystemPrompt.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		switch m.Role {
		case core.RoleSystem:
			if req.SystemPrompt == "" {
				messages = append(messages, openai.SystemMessage(m.Content))
			}
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	return messages
}

var (
	_ model.Backend      = (*Backend)(nil)
	_ model.Credentialed = (*Backend)(nil)
)
