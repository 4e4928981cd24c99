package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

// recordingHook implements every transform/observer hook interface and
// records, in order, which stage names fired. It is used to verify that
// Runtime.Process dispatches pre_chat/post_chat/pre_tool_call/post_tool_call
// at the points spec.md §4.9 names, not just init/complete.
type recordingHook struct {
	mu     sync.Mutex
	stages []string
}

func (h *recordingHook) record(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage)
}

func (h *recordingHook) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.stages))
	copy(out, h.stages)
	return out
}

func (h *recordingHook) PreChat(ctx context.Context, messages []*models.Message, iter int) ([]*models.Message, HookResult) {
	h.record("pre_chat")
	return messages, Continue()
}

func (h *recordingHook) PostChat(ctx context.Context, msg *models.Message, iter int) (*models.Message, HookResult) {
	h.record("post_chat")
	return msg, Continue()
}

func (h *recordingHook) PreToolCall(ctx context.Context, call models.ToolCall) (models.ToolCall, HookResult) {
	h.record("pre_tool_call")
	return call, Continue()
}

func (h *recordingHook) PostToolCall(ctx context.Context, call models.ToolCall, result models.ToolResult) (models.ToolResult, HookResult) {
	h.record("post_tool_call")
	return result, Continue()
}

func (h *recordingHook) Complete(ctx context.Context, isComplete bool, iters int) {
	h.record("complete")
}

func TestProcess_HookBusDispatchesEveryStage(t *testing.T) {
	provider := &multiTurnProvider{
		responses: []multiTurnResponse{
			{
				text: "checking",
				toolCalls: []models.ToolCall{
					{ID: "tc-1", Name: "search", Input: json.RawMessage(`{"query":"go"}`)},
				},
			},
			{text: "done"},
		},
	}
	store := newMemoryStore()
	runtime := NewRuntime(provider, store)
	runtime.RegisterTool(&integrationTool{name: "search"})

	hook := &recordingHook{}
	bus := NewHookBus()
	bus.Register(hook)
	runtime.SetHookBus(bus)

	session := &models.Session{ID: "hook-session", Channel: models.ChannelTelegram}
	msg := &models.Message{Role: models.RoleUser, Content: "search for go"}

	chunks, err := runtime.Process(context.Background(), session, msg)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Error)
		}
	}

	stages := hook.snapshot()
	want := []string{"pre_chat", "post_chat", "pre_tool_call", "post_tool_call", "pre_chat", "post_chat", "complete"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i, s := range want {
		if stages[i] != s {
			t.Errorf("stage %d = %q, want %q (full sequence: %v)", i, stages[i], s, stages)
		}
	}
}

// abortingPostToolCallHook aborts the turn the first time it sees a tool
// result, exercising the HookAborted error path from a post_tool_call hook.
type abortingPostToolCallHook struct{}

func (abortingPostToolCallHook) PostToolCall(ctx context.Context, call models.ToolCall, result models.ToolResult) (models.ToolResult, HookResult) {
	return result, Abort("no tools allowed this turn")
}

func TestProcess_PostToolCallAbortEndsTurn(t *testing.T) {
	provider := &multiTurnProvider{
		responses: []multiTurnResponse{
			{
				toolCalls: []models.ToolCall{
					{ID: "tc-1", Name: "search", Input: json.RawMessage(`{}`)},
				},
			},
		},
	}
	store := newMemoryStore()
	runtime := NewRuntime(provider, store)
	runtime.RegisterTool(&integrationTool{name: "search"})

	bus := NewHookBus()
	bus.Register(abortingPostToolCallHook{})
	runtime.SetHookBus(bus)

	session := &models.Session{ID: "abort-session", Channel: models.ChannelTelegram}
	msg := &models.Message{Role: models.RoleUser, Content: "search"}

	chunks, err := runtime.Process(context.Background(), session, msg)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var gotErr bool
	for chunk := range chunks {
		if chunk.Error != nil {
			gotErr = true
		}
	}
	if !gotErr {
		t.Fatal("expected a HookAborted error to surface on the chunk stream")
	}
}
