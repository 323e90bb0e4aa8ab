package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentduet/core"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks run synchronously on the run goroutine. RunFinished callbacks run
// after the transcript is archived and before the terminal event is
// delivered, so a consumer that observes the terminal event can rely on their
// side effects.
type CallbackType string

const (
	// CallbackRunStarted is triggered after a run left Idle.
	CallbackRunStarted CallbackType = "run_started"

	// CallbackRunFinished is triggered once a run reached a terminal state.
	// CallbackContext.Transcript is set.
	CallbackRunFinished CallbackType = "run_finished"

	// CallbackArchiveError is triggered when the transcript store rejects a transcript.
	CallbackArchiveError CallbackType = "archive_error"
)

// CallbackContext carries the data available to a callback.
type CallbackContext struct {
	RunID        string
	CallbackType CallbackType
	Transcript   *core.Transcript
	Err          error
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager keeps registered callbacks per type. It is safe for
// concurrent registration and execution.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback under its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback of callbackType in registration order
// and returns all of their errors joined. A failing callback does not stop
// the others.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	var errs []error
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s callback: %w", callbackType, err))
		}
	}
	return errors.Join(errs...)
}

// LoggingCallback writes a one-line summary of each execution.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a callback that reports through logger.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] run: %s", c.callbackType, callbackCtx.RunID)
	if callbackCtx.Transcript != nil {
		message += fmt.Sprintf(", state: %s, turns: %d", callbackCtx.Transcript.State, len(callbackCtx.Transcript.Dialogue()))
	}
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(", error: %v", callbackCtx.Err)
	}
	c.logger(message)
	return nil
}
