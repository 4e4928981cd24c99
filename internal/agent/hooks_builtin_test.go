package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

type fakePreChatHook struct {
	result HookResult
	called *bool
}

func (h fakePreChatHook) PreChat(ctx context.Context, messages []*models.Message, iter int) ([]*models.Message, HookResult) {
	if h.called != nil {
		*h.called = true
	}
	return messages, h.result
}

func TestParsePlanStatuses(t *testing.T) {
	md := "- [ ] pending task\n- [~] in progress task\n- [x] done task\n- [X] also done\n- [!] failed task\n"
	tasks := ParsePlan(md)
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	want := []PlanStatus{PlanPending, PlanInProgress, PlanDone, PlanDone, PlanFailed}
	for i, task := range tasks {
		if task.Status != want[i] {
			t.Errorf("task %d: got %s, want %s", i, task.Status, want[i])
		}
	}
}

func TestPlanWatcherYieldsWhenAllDone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("- [x] only task\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewPlanWatcher(path)
	allowed, notice := w.CanYield()
	if !allowed {
		t.Fatalf("expected yield allowed, got notice %q", notice)
	}
}

func TestPlanWatcherBlocksYieldUntilDone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("- [ ] first\n- [x] second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewPlanWatcher(path)
	allowed, notice := w.CanYield()
	if allowed {
		t.Fatal("expected yield to be blocked while tasks remain pending")
	}
	if notice == "" {
		t.Fatal("expected a notice describing the next pending task")
	}
}

func TestPlanWatcherAllowsOneMoreAttemptAfterFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("- [!] broken task\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewPlanWatcher(path)

	allowed, notice := w.CanYield()
	if allowed {
		t.Fatal("expected first failure check to block with a one-more-attempt notice")
	}
	if notice == "" {
		t.Fatal("expected a notice on first failure")
	}

	allowed, _ = w.CanYield()
	if !allowed {
		t.Fatal("expected yield to be allowed after the one-more-attempt notice was already shown")
	}
}

func TestPlanWatcherTreatsMissingFileAsNoPlan(t *testing.T) {
	w := NewPlanWatcher(filepath.Join(t.TempDir(), "missing-plan.md"))
	allowed, _ := w.CanYield()
	if !allowed {
		t.Fatal("expected a missing plan file to allow yielding")
	}
}

func TestNewDefaultHookBusRegistersPlanAndNotifierHooks(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(planPath, []byte("- [ ] do the thing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tracked := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(tracked, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	bus := NewDefaultHookBus(planPath, []string{tracked}, nil, nil)

	messages, err := bus.Init(context.Background(), []*models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected Init error: %v", err)
	}
	if len(messages) == 0 {
		t.Fatal("expected PlanWatcher.Init to inject a reminder message")
	}

	if err := os.WriteFile(tracked, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	messages, err = bus.PreChat(context.Background(), messages, 0)
	if err != nil {
		t.Fatalf("unexpected PreChat error: %v", err)
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleUser || last.Content == "" {
		t.Fatalf("expected ChangedFilesNotifier to append a change notice, got %+v", last)
	}
}

func TestHookBusAbortShortCircuits(t *testing.T) {
	bus := NewHookBus()
	var secondCalled bool
	bus.Register(fakePreChatHook{result: Abort("blocked")})
	bus.Register(fakePreChatHook{result: Continue(), called: &secondCalled})

	_, err := bus.PreChat(context.Background(), nil, 0)
	if err == nil {
		t.Fatal("expected abort error")
	}
	if secondCalled {
		t.Fatal("expected second hook to be skipped after abort")
	}
}
