package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentduet/config"
	"github.com/hupe1980/agentduet/model"
	"github.com/hupe1980/agentduet/model/anthropic"
	"github.com/hupe1980/agentduet/model/gemini"
	"github.com/hupe1980/agentduet/model/ollama"
	"github.com/hupe1980/agentduet/model/openai"
)

const (
	backendOllama    = "ollama"
	backendGemini    = "gemini"
	backendOpenAI    = "openai"
	backendAnthropic = "anthropic"
	backendEcho      = "echo"
)

var backendNames = []string{backendOllama, backendGemini, backendOpenAI, backendAnthropic, backendEcho}

// newBackend returns the backend called name. Cloud backends have their
// credential validated before they are returned. label is used by the echo
// backend to sign its replies.
func newBackend(ctx context.Context, cfg *config.Config, name, label string) (model.Backend, error) {
	switch name {
	case backendOllama:
		return ollama.NewBackend(func(o *ollama.Options) {
			if cfg.Ollama.BaseURL != "" {
				o.BaseURL = cfg.Ollama.BaseURL
			}
		}), nil
	case backendGemini:
		b := gemini.NewBackend(func(o *gemini.Options) {
			if cfg.Gemini.BaseURL != "" {
				o.BaseURL = cfg.Gemini.BaseURL
			}
		})
		return b, validate(ctx, b, name, cfg.Gemini.APIKey, config.EnvGeminiKey)
	case backendOpenAI:
		b := openai.NewBackend(func(o *openai.Options) {
			o.BaseURL = cfg.OpenAI.BaseURL
		})
		return b, validate(ctx, b, name, cfg.OpenAI.APIKey, config.EnvOpenAIKey)
	case backendAnthropic:
		b := anthropic.NewBackend(func(o *anthropic.Options) {
			o.BaseURL = cfg.Anthropic.BaseURL
		})
		return b, validate(ctx, b, name, cfg.Anthropic.APIKey, config.EnvAnthropicKey)
	case backendEcho:
		return model.NewScriptedBackend(backendEcho, nil, func(o *model.ScriptedOptions) {
			o.Models = []string{backendEcho}
			o.Fallback = model.EchoFallback(label)
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use: ollama, gemini, openai, anthropic, echo)", name)
	}
}

func validate(ctx context.Context, c model.Credentialed, name, key, env string) error {
	if key == "" {
		return fmt.Errorf("%s: no API key configured (set %s or %s.api_key)", name, env, name)
	}
	if !c.ValidateCredential(ctx, key) {
		return fmt.Errorf("%s: API key was rejected", name)
	}
	return nil
}
