// Package gemini provides a cloud-session model.Backend for the Google Gemini
// REST API (v1beta generateContent).
//
// Every turn rebuilds the chat session from the full history: all messages
// except the last become the session contents, translated into Gemini's
// {user, model} role vocabulary, and the last message is sent as the outbound
// user turn. The system message travels as systemInstruction.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const backendName = "gemini"

// SupportedModels is the static model set offered by this backend.
var SupportedModels = []string{
	"gemini-1.5-flash",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
}

var (
	errNoCredential = errors.New("no validated api key")
	errLastNotUser  = errors.New("last history message must be a user message")
	errNoCandidates = errors.New("no candidates in response")
	errEmptyText    = errors.New("candidate has no text")
)

// Options configures the Gemini backend.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Backend calls the Gemini REST API.
type Backend struct {
	opts Options

	mu     sync.RWMutex
	apiKey string
}

// NewBackend creates a Gemini backend. A key must be validated with
// ValidateCredential before Generate can be used.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := Options{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Backend{opts: opts}
}

// ValidateCredential implements model.Credentialed by listing models with key.
func (b *Backend) ValidateCredential(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/v1beta/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-goog-api-key", key)

	resp, err := b.opts.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	b.mu.Lock()
	b.apiKey = key
	b.mu.Unlock()
	return true
}

// HasValidCredential implements model.Credentialed.
func (b *Backend) HasValidCredential() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.apiKey != ""
}

// ListModels implements model.Backend with the static supported set.
func (b *Backend) ListModels(context.Context) []string {
	return append([]string(nil), SupportedModels...)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Generate implements model.Backend.
func (b *Backend) Generate(ctx context.Context, req model.Request) (string, error) {
	b.mu.RLock()
	key := b.apiKey
	b.mu.RUnlock()
	if key == "" {
		return "", model.TransportError(backendName, errNoCredential)
	}

	body, err := buildRequest(req)
	if err != nil {
		return "", model.TransportError(backendName, err)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("marshal: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", b.opts.BaseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := b.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return "", model.TransportError(backendName, fmt.Errorf("do: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.TransportError(backendName, fmt.Errorf("api: %s", resp.Status))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", model.MalformedResponseError(backendName, fmt.Errorf("decode: %w", err))
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", model.MalformedResponseError(backendName, fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		return "", model.MalformedResponseError(backendName, errNoCandidates)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", model.MalformedResponseError(backendName, errEmptyText)
	}
	return sb.String(), nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: backendName, Kind: model.KindCloud}
}

// buildRequest rebuilds the session from history[:len-1] and appends the
// final user message as the outbound turn.
func buildRequest(req model.Request) (generateRequest, error) {
	last := req.Last()
	if last.Role != core.RoleUser {
		return generateRequest{}, errLastNotUser
	}

	session := make([]content, 0, len(req.History))
	for _, m := range req.History[:len(req.History)-1] {
		if m.Role == core.RoleSystem {
			continue
		}
		session = append(session, content{Role: translateRole(m.Role), Parts: []part{{Text: m.Content}}})
	}
	session = append(session, content{Role: "user", Parts: []part{{Text: last.Content}}})

	out := generateRequest{Contents: session}
	if req.SystemPrompt != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	return out, nil
}

func translateRole(r core.Role) string {
	if r == core.RoleUser {
		return "user"
	}
	return "model"
}

var (
	_ model.Backend      = (*Backend)(nil)
	_ model.Credentialed = (*Backend)(nil)
)
