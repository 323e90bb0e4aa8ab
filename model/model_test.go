package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/agentduet/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedBackendReplaysInOrder(t *testing.T) {
	b := NewScriptedBackend("stub", []Step{Reply("one"), Fail(errors.New("boom")), Reply("three")})
	ctx := context.Background()
	req := Request{Model: "m", History: []core.Message{{Role: core.RoleSystem, Content: "s"}, {Role: core.RoleUser, Content: "u"}}}

	out, err := b.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = b.Generate(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, core.ErrorTransport, KindOf(err))

	out, err = b.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "three", out)

	_, err = b.Generate(ctx, req)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Len(t, b.Calls(), 4)
}

func TestScriptedBackendKeepsClassifiedErrors(t *testing.T) {
	b := NewScriptedBackend("stub", []Step{Fail(MalformedResponseError("stub", errors.New("no content")))})

	_, err := b.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestScriptedBackendRecordsCopies(t *testing.T) {
	b := NewScriptedBackend("stub", []Step{Reply("ok")})
	hist := []core.Message{{Role: core.RoleSystem, Content: "s"}}

	_, err := b.Generate(context.Background(), Request{History: hist})
	require.NoError(t, err)
	hist[0].Content = "mutated"

	assert.Equal(t, "s", b.Calls()[0].History[0].Content)
}

func TestEchoFallback(t *testing.T) {
	b := NewScriptedBackend("echo", nil, func(o *ScriptedOptions) {
		o.Fallback = EchoFallback("echo")
		o.Kind = KindCloud
	})

	out, err := b.Generate(context.Background(), Request{History: []core.Message{
		{Role: core.RoleSystem, Content: "s"},
		{Role: core.RoleUser, Content: "first line\nsecond"},
	}})
	require.NoError(t, err)
	assert.Equal(t, `echo (turn 1) replying to: "first line"`, out)
	assert.Equal(t, KindCloud, b.Info().Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, core.ErrorNone, KindOf(nil))
	assert.Equal(t, core.ErrorTransport, KindOf(errors.New("plain")))
	wrapped := fmt.Errorf("turn: %w", MalformedResponseError("x", errors.New("y")))
	assert.Equal(t, core.ErrorMalformedResponse, KindOf(wrapped))
}

func TestModelsOrPlaceholder(t *testing.T) {
	assert.Equal(t, []string{NoModelsPlaceholder}, ModelsOrPlaceholder(nil))
	assert.Equal(t, []string{"a"}, ModelsOrPlaceholder([]string{"a"}))
	assert.False(t, Usable(NoModelsPlaceholder))
	assert.False(t, Usable(""))
	assert.True(t, Usable("llama3"))
}
