// Package ollama provides a local-serving model.Backend for an Ollama server.
// Models are discovered dynamically via /api/tags and every turn re-sends the
// full history, system message included, to /api/chat with streaming disabled.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
)

// DefaultBaseURL is the address of a stock local Ollama install.
const DefaultBaseURL = "http://localhost:11434"

const backendName = "ollama"

var errNoMessage = errors.New("response has no message content")

// Options configures the Ollama backend.
type Options struct {
	BaseURL          string
	HTTPClient       *http.Client
	DiscoveryTimeout time.Duration
}

// Backend calls the Ollama REST API.
type Backend struct {
	opts Options
}

// NewBackend creates an Ollama backend with defaults overridable through optFns.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := Options{
		BaseURL:          DefaultBaseURL,
		HTTPClient:       &http.Client{},
		DiscoveryTimeout: 5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Backend{opts: opts}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels implements model.Backend. Any failure yields an empty list.
func (b *Backend) ListModels(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, b.opts.DiscoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/api/tags", nil)
	if err != nil {
		return []string{}
	}
	resp, err := b.opts.HTTPClient.Do(req)
	if err != nil {
		return []string{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []string{}
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return []string{}
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message *chatMessage `json:"message"`
}

// Generate implements model.Backend.
func (b *Backend) Generate(ctx context.Context, req model.Request) (string, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: toChatMessages(req.History),
		Stream:   false,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("marshal: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.BaseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("do: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", model.TransportError(backendName, fmt.Errorf("api: %s", resp.Status))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", model.MalformedResponseError(backendName, fmt.Errorf("decode: %w", err))
	}
	if out.Message == nil || out.Message.Content == "" {
		return "", model.MalformedResponseError(backendName, errNoMessage)
	}

	return out.Message.Content, nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: backendName, Kind: model.KindLocal}
}

func toChatMessages(history []core.Message) []chatMessage {
	out := make([]chatMessage, len(history))
	for i, m := range history {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Ensure Backend implements model.Backend at compile time.
var _ model.Backend = (*Backend)(nil)
