package agent

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/models"
)

// HookAction is the verdict a hook returns for an event: either let the
// turn continue (optionally with a replacement value) or abort it.
type HookAction int

const (
	// HookContinue lets dispatch proceed to the next hook, or back to the
	// caller once all hooks have run.
	HookContinue HookAction = iota
	// HookAbort short-circuits the remaining hooks for this event and
	// terminates the turn with Reason.
	HookAbort
)

// HookResult carries a hook's verdict plus its (possibly transformed) value
// and, on HookAbort, the reason the turn is ending.
type HookResult struct {
	Action HookAction
	Reason string
}

// Continue builds a HookResult that lets the turn proceed.
func Continue() HookResult { return HookResult{Action: HookContinue} }

// Abort builds a HookResult that terminates the turn with reason.
func Abort(reason string) HookResult { return HookResult{Action: HookAbort, Reason: reason} }

// ErrHookAborted wraps the reason a hook gave for aborting a turn.
type ErrHookAborted struct {
	Reason string
}

func (e *ErrHookAborted) Error() string {
	return fmt.Sprintf("hook aborted turn: %s", e.Reason)
}

// InitHook runs once per turn before the first iteration. It may rewrite
// the outgoing context (e.g. inject a plan reminder) or abort the turn.
type InitHook interface {
	Init(ctx context.Context, messages []*models.Message) ([]*models.Message, HookResult)
}

// PreChatHook runs immediately before each provider call.
type PreChatHook interface {
	PreChat(ctx context.Context, messages []*models.Message, iter int) ([]*models.Message, HookResult)
}

// PostChatHook runs after the model's response is fully collected.
type PostChatHook interface {
	PostChat(ctx context.Context, msg *models.Message, iter int) (*models.Message, HookResult)
}

// PreToolCallHook runs before a tool call is dispatched.
type PreToolCallHook interface {
	PreToolCall(ctx context.Context, call models.ToolCall) (models.ToolCall, HookResult)
}

// PostToolCallHook runs after a tool call returns.
type PostToolCallHook interface {
	PostToolCall(ctx context.Context, call models.ToolCall, result models.ToolResult) (models.ToolResult, HookResult)
}

// CompleteHook runs once per turn after the loop reaches a terminal state.
// It cannot transform anything or abort; it is a pure observer, matching
// the teacher's title-generation hook which only ever needs to know the
// turn is over.
type CompleteHook interface {
	Complete(ctx context.Context, isComplete bool, iters int)
}

// HookBus dispatches the Orchestrator's lifecycle events to registered
// hooks in registration order. A hook only needs to implement the
// sub-interfaces it cares about; unimplemented stages are skipped for it.
type HookBus struct {
	hooks []any
}

// NewHookBus returns an empty Hook Bus.
func NewHookBus() *HookBus {
	return &HookBus{}
}

// Register adds a hook. It is invoked, for whichever event interfaces it
// implements, after every previously registered hook that implements the
// same interface.
func (b *HookBus) Register(hook any) {
	if hook == nil {
		return
	}
	b.hooks = append(b.hooks, hook)
}

// Init runs every registered InitHook in order, threading the (possibly
// rewritten) message list through each. The first Abort short-circuits.
func (b *HookBus) Init(ctx context.Context, messages []*models.Message) ([]*models.Message, error) {
	for _, h := range b.hooks {
		hook, ok := h.(InitHook)
		if !ok {
			continue
		}
		next, result := hook.Init(ctx, messages)
		if result.Action == HookAbort {
			return messages, &ErrHookAborted{Reason: result.Reason}
		}
		if next != nil {
			messages = next
		}
	}
	return messages, nil
}

// PreChat runs every registered PreChatHook in order.
func (b *HookBus) PreChat(ctx context.Context, messages []*models.Message, iter int) ([]*models.Message, error) {
	for _, h := range b.hooks {
		hook, ok := h.(PreChatHook)
		if !ok {
			continue
		}
		next, result := hook.PreChat(ctx, messages, iter)
		if result.Action == HookAbort {
			return messages, &ErrHookAborted{Reason: result.Reason}
		}
		if next != nil {
			messages = next
		}
	}
	return messages, nil
}

// PostChat runs every registered PostChatHook in order.
func (b *HookBus) PostChat(ctx context.Context, msg *models.Message, iter int) (*models.Message, error) {
	for _, h := range b.hooks {
		hook, ok := h.(PostChatHook)
		if !ok {
			continue
		}
		next, result := hook.PostChat(ctx, msg, iter)
		if result.Action == HookAbort {
			return msg, &ErrHookAborted{Reason: result.Reason}
		}
		if next != nil {
			msg = next
		}
	}
	return msg, nil
}

// PreToolCall runs every registered PreToolCallHook in order.
func (b *HookBus) PreToolCall(ctx context.Context, call models.ToolCall) (models.ToolCall, error) {
	for _, h := range b.hooks {
		hook, ok := h.(PreToolCallHook)
		if !ok {
			continue
		}
		next, result := hook.PreToolCall(ctx, call)
		if result.Action == HookAbort {
			return call, &ErrHookAborted{Reason: result.Reason}
		}
		call = next
	}
	return call, nil
}

// PostToolCall runs every registered PostToolCallHook in order.
func (b *HookBus) PostToolCall(ctx context.Context, call models.ToolCall, result models.ToolResult) (models.ToolResult, error) {
	for _, h := range b.hooks {
		hook, ok := h.(PostToolCallHook)
		if !ok {
			continue
		}
		next, verdict := hook.PostToolCall(ctx, call, result)
		if verdict.Action == HookAbort {
			return result, &ErrHookAborted{Reason: verdict.Reason}
		}
		result = next
	}
	return result, nil
}

// Complete runs every registered CompleteHook. Unlike the other stages this
// cannot abort: by the time a turn completes there is nothing left to stop.
func (b *HookBus) Complete(ctx context.Context, isComplete bool, iters int) {
	for _, h := range b.hooks {
		if hook, ok := h.(CompleteHook); ok {
			hook.Complete(ctx, isComplete, iters)
		}
	}
}
