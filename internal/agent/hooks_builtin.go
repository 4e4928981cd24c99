package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// TitleGenerator is a built-in CompleteHook that spawns a background task on
// the turn's first user prompt to derive a short conversation title, and
// awaits the result only when the turn actually completes. Generate is
// typically a cheap, cached LLM call; it must not block the hot path.
type TitleGenerator struct {
	Generate func(ctx context.Context, firstPrompt string) (string, error)
	OnTitle  func(title string)

	mu      sync.Mutex
	started bool
	done    chan struct{}
	title   string
}

// NewTitleGenerator builds a Title Generator hook. onTitle receives the
// generated title once the background task finishes; it may be called after
// Complete returns.
func NewTitleGenerator(generate func(ctx context.Context, firstPrompt string) (string, error), onTitle func(string)) *TitleGenerator {
	return &TitleGenerator{Generate: generate, OnTitle: onTitle}
}

// Init starts the background generation task on the first user prompt in
// the conversation and never transforms or aborts the turn.
func (g *TitleGenerator) Init(ctx context.Context, messages []*models.Message) ([]*models.Message, HookResult) {
	g.mu.Lock()
	if g.started || g.Generate == nil {
		g.mu.Unlock()
		return nil, Continue()
	}
	var firstPrompt string
	for _, m := range messages {
		if m != nil && m.Role == models.RoleUser {
			firstPrompt = m.Content
			break
		}
	}
	if firstPrompt == "" {
		g.mu.Unlock()
		return nil, Continue()
	}
	g.started = true
	g.done = make(chan struct{})
	g.mu.Unlock()

	go func() {
		defer close(g.done)
		title, err := g.Generate(context.Background(), firstPrompt)
		if err == nil {
			g.mu.Lock()
			g.title = title
			g.mu.Unlock()
		}
	}()
	return nil, Continue()
}

// Complete awaits the background title task, if one was started, and
// reports the result via OnTitle.
func (g *TitleGenerator) Complete(ctx context.Context, isComplete bool, iters int) {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		return
	}
	g.mu.Lock()
	title := g.title
	g.mu.Unlock()
	if title != "" && g.OnTitle != nil {
		g.OnTitle(title)
	}
}

// ChangedFilesNotifier is a built-in InitHook/PreChatHook that hashes the
// content of tracked files between turns and, when any differ from the
// last-seen hash, injects a synthetic user message listing which files
// changed outside the agent's own tool calls. Hashing content (rather than
// mtime) means an external edit that restores the original bytes is not
// reported as a change.
type ChangedFilesNotifier struct {
	mu     sync.Mutex
	hashes map[string]string
}

// NewChangedFilesNotifier returns an empty notifier; call Track to add
// files whose content should be watched across turns.
func NewChangedFilesNotifier() *ChangedFilesNotifier {
	return &ChangedFilesNotifier{hashes: make(map[string]string)}
}

// Track registers a file path for change detection, recording its current
// content hash as the baseline.
func (n *ChangedFilesNotifier) Track(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hashes[path] = n.hashFile(path)
}

func (n *ChangedFilesNotifier) hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PreChat checks all tracked files and, if any changed since the last
// check, prepends a synthetic user message naming them.
func (n *ChangedFilesNotifier) PreChat(ctx context.Context, messages []*models.Message, iter int) ([]*models.Message, HookResult) {
	n.mu.Lock()
	var changed []string
	for path, lastHash := range n.hashes {
		newHash := n.hashFile(path)
		if newHash != lastHash {
			changed = append(changed, path)
			n.hashes[path] = newHash
		}
	}
	n.mu.Unlock()

	if len(changed) == 0 {
		return nil, Continue()
	}
	notice := &models.Message{
		Role:    models.RoleUser,
		Content: "Files changed outside the agent's own edits: " + strings.Join(changed, ", "),
	}
	return append(append([]*models.Message{}, messages...), notice), Continue()
}

// PlanStatus is one checklist item's parsed status from a plan file.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanDone       PlanStatus = "done"
	PlanFailed     PlanStatus = "failed"
)

var planCheckboxRE = regexp.MustCompile(`(?m)^\s*-\s*\[([ xX~!]?)\]\s*(.+)$`)

// PlanTask is one parsed checklist line.
type PlanTask struct {
	Status PlanStatus
	Text   string
}

// ParsePlan parses a markdown checklist into PlanTasks. Unknown checkbox
// markers are treated as Pending.
func ParsePlan(markdown string) []PlanTask {
	matches := planCheckboxRE.FindAllStringSubmatch(markdown, -1)
	tasks := make([]PlanTask, 0, len(matches))
	for _, m := range matches {
		tasks = append(tasks, PlanTask{Status: checkboxStatus(m[1]), Text: strings.TrimSpace(m[2])})
	}
	return tasks
}

func checkboxStatus(mark string) PlanStatus {
	switch mark {
	case "~":
		return PlanInProgress
	case "x", "X":
		return PlanDone
	case "!":
		return PlanFailed
	default:
		return PlanPending
	}
}

// PlanWatcher is the built-in hook that tracks an on-disk plan file (written
// by a `plan_start`/`plan_update`-style tool) and decides whether the loop
// is allowed to yield once the model claims to be done.
type PlanWatcher struct {
	PlanPath string

	mu                 sync.Mutex
	shownOneMoreNotice bool
}

// NewPlanWatcher watches the plan markdown file at path.
func NewPlanWatcher(path string) *PlanWatcher {
	return &PlanWatcher{PlanPath: path}
}

// Init injects a reminder that a plan should be started, if the toolset
// includes plan_start. Callers only register this hook when that is true,
// so Init unconditionally injects the reminder.
func (w *PlanWatcher) Init(ctx context.Context, messages []*models.Message) ([]*models.Message, HookResult) {
	reminder := &models.Message{
		Role:    models.RoleUser,
		Content: "Remember to maintain a plan checklist in " + w.PlanPath + " and keep it current as you work.",
	}
	return append(append([]*models.Message{}, messages...), reminder), Continue()
}

// readTasks loads and parses the current plan file. A missing file (the
// plan was never started, or was deleted mid-run) is treated as "no plan":
// the caller may yield.
func (w *PlanWatcher) readTasks() ([]PlanTask, bool) {
	data, err := os.ReadFile(w.PlanPath)
	if err != nil {
		return nil, false
	}
	return ParsePlan(string(data)), true
}

// CanYield reports whether the loop is allowed to stop iterating now that
// the model has signaled completion, and if not, a notice describing the
// next pending task to inject instead.
func (w *PlanWatcher) CanYield() (allowed bool, notice string) {
	tasks, hasPlan := w.readTasks()
	if !hasPlan || len(tasks) == 0 {
		return true, ""
	}

	allDone := true
	hasFailed := false
	var nextPending string
	for _, t := range tasks {
		switch t.Status {
		case PlanDone:
			// no-op
		case PlanFailed:
			hasFailed = true
			allDone = false
		default:
			allDone = false
			if nextPending == "" {
				nextPending = t.Text
			}
		}
	}

	if allDone {
		return true, ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if hasFailed && w.shownOneMoreNotice {
		return true, ""
	}
	if hasFailed {
		w.shownOneMoreNotice = true
		return false, "One or more plan tasks failed. You have one more attempt before the turn ends."
	}
	if nextPending != "" {
		return false, "Next pending task: " + nextPending
	}
	return false, "Continue working through the plan."
}

// NewDefaultHookBus builds the Hook Bus an Orchestrator wires in by default:
// a Plan Watcher rooted at planPath, a Changed-Files Notifier watching
// cwdFiles, and (when generateTitle is non-nil) a Title Generator reporting
// through onTitle. Callers needing only a subset should build a HookBus by
// hand instead.
func NewDefaultHookBus(planPath string, cwdFiles []string, generateTitle func(ctx context.Context, firstPrompt string) (string, error), onTitle func(string)) *HookBus {
	bus := NewHookBus()

	notifier := NewChangedFilesNotifier()
	for _, f := range cwdFiles {
		notifier.Track(f)
	}
	bus.Register(notifier)

	if planPath != "" {
		bus.Register(NewPlanWatcher(planPath))
	}

	if generateTitle != nil {
		bus.Register(NewTitleGenerator(generateTitle, onTitle))
	}

	return bus
}
