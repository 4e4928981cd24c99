package context

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

type fakeSummarizer struct {
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, window []*models.Message) (string, error) {
	f.calls++
	return "summary of middle window", nil
}

func compactorMsg(role models.Role, content string) *models.Message {
	return &models.Message{Role: role, Content: content}
}

func TestCompactorKeepsPrefixAndTail(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleSystem, "system prompt"),
		compactorMsg(models.RoleUser, "first user turn"),
		compactorMsg(models.RoleAssistant, "middle 1"),
		compactorMsg(models.RoleUser, "middle 2"),
		compactorMsg(models.RoleAssistant, "middle 3"),
		compactorMsg(models.RoleUser, "recent tail"),
	}

	summarizer := &fakeSummarizer{}
	compactor := NewCompactor(CompactConfig{Threshold: 0, MinTail: 1}, nil, summarizer)

	out, err := compactor.Compact(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summarizer.calls != 1 {
		t.Fatalf("expected summarizer to be called once, got %d", summarizer.calls)
	}

	if out[0] != messages[0] || out[1] != messages[1] {
		t.Fatalf("expected prefix preserved, got %+v", out[:2])
	}
	if out[2].Content != "summary of middle window" {
		t.Fatalf("expected synthetic summary message, got %q", out[2].Content)
	}
	if v, _ := out[2].Metadata[SummaryMetadataKey].(bool); !v {
		t.Fatalf("expected summary message to be tagged")
	}
	if out[len(out)-1] != messages[len(messages)-1] {
		t.Fatalf("expected tail preserved")
	}
}

func TestCompactorIdempotent(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleSystem, "system prompt"),
		compactorMsg(models.RoleUser, "first user turn"),
		compactorMsg(models.RoleAssistant, "middle"),
		compactorMsg(models.RoleUser, "tail"),
	}

	summarizer := &fakeSummarizer{}
	compactor := NewCompactor(CompactConfig{Threshold: 0, MinTail: 1}, nil, summarizer)

	once, err := compactor.Compact(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	twice, err := compactor.Compact(context.Background(), once)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(once) != len(twice) {
		t.Fatalf("expected stable length, got %d vs %d", len(once), len(twice))
	}
	if once[len(once)-2].Content != twice[len(twice)-2].Content {
		t.Fatalf("expected stable summary content")
	}
	if summarizer.calls != 1 {
		t.Fatalf("second compaction pass must not re-summarize, got %d calls", summarizer.calls)
	}
}

func TestCompactorSkipsWhenNothingToSummarize(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleSystem, "system prompt"),
		compactorMsg(models.RoleUser, "only turn"),
	}
	summarizer := &fakeSummarizer{}
	compactor := NewCompactor(CompactConfig{Threshold: 0, MinTail: 100000}, nil, summarizer)

	out, err := compactor.Compact(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(messages) {
		t.Fatalf("expected unchanged messages, got %d", len(out))
	}
	if summarizer.calls != 0 {
		t.Fatalf("summarizer should not be called, got %d calls", summarizer.calls)
	}
}

type recordingSummarizer struct {
	lastWindow []*models.Message
}

func (r *recordingSummarizer) Summarize(_ context.Context, window []*models.Message) (string, error) {
	r.lastWindow = window
	return "summary of middle window", nil
}

func TestCompactorAppliesDropRolesThroughCompact(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleSystem, "system prompt"),
		compactorMsg(models.RoleUser, "first user turn"),
		compactorMsg(models.RoleTool, "tool output 1"),
		compactorMsg(models.RoleAssistant, "middle reply"),
		compactorMsg(models.RoleTool, "tool output 2"),
		compactorMsg(models.RoleUser, "recent tail"),
	}

	summarizer := &recordingSummarizer{}
	compactor := NewCompactor(CompactConfig{Threshold: 0, MinTail: 1, DropRoles: []models.Role{models.RoleTool}}, nil, summarizer)

	out, err := compactor.Compact(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, m := range summarizer.lastWindow {
		if m.Role == models.RoleTool {
			t.Fatalf("expected Tool-role messages dropped from the summarized window, got %+v", summarizer.lastWindow)
		}
	}
	if len(summarizer.lastWindow) != 1 || summarizer.lastWindow[0].Content != "middle reply" {
		t.Fatalf("expected only the deduped/dropped middle window reaching the summarizer, got %+v", summarizer.lastWindow)
	}

	if count, _ := out[2].Metadata["compacted_count"].(int); count != len(summarizer.lastWindow) {
		t.Fatalf("expected compacted_count to reflect the deduped window size (%d), got %d", len(summarizer.lastWindow), count)
	}
}

func TestDedupeConsecutiveRoleBlocks(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleAssistant, "a1"),
		compactorMsg(models.RoleAssistant, "a2"),
		compactorMsg(models.RoleUser, "u1"),
		compactorMsg(models.RoleUser, "u2"),
		compactorMsg(models.RoleAssistant, "a3"),
	}
	out := dedupeConsecutiveRoleBlocks(messages)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages after dedupe, got %d", len(out))
	}
	if out[0].Content != "a1" || out[1].Content != "u1" || out[2].Content != "a3" {
		t.Fatalf("unexpected dedupe result: %+v", out)
	}
}

func TestApplyDedupTransformersDropsConfiguredRole(t *testing.T) {
	messages := []*models.Message{
		compactorMsg(models.RoleTool, "t1"),
		compactorMsg(models.RoleUser, "u1"),
	}
	out := applyDedupTransformers(messages, []models.Role{models.RoleTool})
	if len(out) != 1 || out[0].Content != "u1" {
		t.Fatalf("expected tool-role message dropped, got %+v", out)
	}
}
