package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	Model  string `json:"model"`
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func newTestBackend(t *testing.T, messages http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/v1/models"):
			if r.Header.Get("X-Api-Key") != "good" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[],"has_more":false,"first_id":"","last_id":""}`))
		case strings.HasSuffix(r.URL.Path, "/v1/messages"):
			messages(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return NewBackend(func(o *Options) { o.BaseURL = srv.URL + "/" })
}

func TestValidateCredential(t *testing.T) {
	b := newTestBackend(t, nil)

	assert.False(t, b.ValidateCredential(context.Background(), "bad"))
	assert.False(t, b.HasValidCredential())
	assert.True(t, b.ValidateCredential(context.Background(), "good"))
	assert.True(t, b.HasValidCredential())
}

func TestGenerate(t *testing.T) {
	var got recordedMessage
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"measured answer"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	})
	require.True(t, b.ValidateCredential(context.Background(), "good"))

	out, err := b.Generate(context.Background(), model.Request{
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "persona",
		History: []core.Message{
			{Role: core.RoleSystem, Content: "persona"},
			{Role: core.RoleUser, Content: "opening"},
			{Role: core.RoleAssistant, Content: "reply"},
			{Role: core.RoleUser, Content: "rebuttal"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "measured answer", out)

	require.Len(t, got.System, 1)
	assert.Equal(t, "persona", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
}

func TestGenerateFailures(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		_, err := NewBackend().Generate(context.Background(), model.Request{Model: "claude-3-5-haiku-latest"})
		assert.ErrorIs(t, err, model.ErrTransport)
	})

	t.Run("no text", func(t *testing.T) {
		b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"x","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
		})
		require.True(t, b.ValidateCredential(context.Background(), "good"))
		_, err := b.Generate(context.Background(), model.Request{Model: "x"})
		assert.ErrorIs(t, err, model.ErrMalformedResponse)
	})

	t.Run("server error", func(t *testing.T) {
		b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
		})
		require.True(t, b.ValidateCredential(context.Background(), "good"))
		_, err := b.Generate(context.Background(), model.Request{Model: "x"})
		assert.ErrorIs(t, err, model.ErrTransport)
	})
}
