package context

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/pkg/models"
)

// TokenEstimator estimates the token cost of a message window. The
// Compactor calls it against the whole context to decide whether to run,
// and against candidate tail windows to size the keep-suffix.
type TokenEstimator interface {
	EstimateMessages(messages []*models.Message) int
}

// CharTokenEstimator is the default TokenEstimator: ~4 characters per token,
// the same heuristic the teacher's context packer uses for its char budget.
type CharTokenEstimator struct {
	CharsPerToken int
}

// NewCharTokenEstimator returns a CharTokenEstimator with the default ratio.
func NewCharTokenEstimator() CharTokenEstimator {
	return CharTokenEstimator{CharsPerToken: 4}
}

// EstimateMessages sums an approximate token count across messages.
func (e CharTokenEstimator) EstimateMessages(messages []*models.Message) int {
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	total := 0
	for _, m := range messages {
		if m == nil {
			continue
		}
		total += len(m.Content) / ratio
		for _, tc := range m.ToolCalls {
			total += (len(tc.Name) + len(tc.Input)) / ratio
		}
		for _, tr := range m.ToolResults {
			total += len(tr.Content) / ratio
		}
	}
	return total
}

// CompactConfig configures the Compactor. Field names mirror the
// `compact.*` configuration keys.
type CompactConfig struct {
	// Threshold triggers compaction when estimated_tokens(ctx) >= Threshold.
	Threshold int

	// MinTail is the minimum token sum the keep-suffix must cover; K is the
	// smallest number of trailing messages whose token sum is >= MinTail.
	MinTail int

	// DropRoles, if non-empty, are roles stripped entirely from the
	// generated summary block (the "drop_role" transformer).
	DropRoles []models.Role
}

// DefaultCompactConfig returns sensible defaults.
func DefaultCompactConfig() CompactConfig {
	return CompactConfig{
		Threshold: 120000,
		MinTail:   2000,
	}
}

// Summarizer produces a natural-language summary of a window of messages,
// typically by calling a cheaper configured model.
type Summarizer interface {
	Summarize(ctx context.Context, window []*models.Message) (string, error)
}

// Compactor implements the Context Compactor: summarizing the middle of a
// conversation into one synthetic message once the estimated token budget
// is exceeded, while preserving the role-alternation invariant.
type Compactor struct {
	config     CompactConfig
	estimator  TokenEstimator
	summarizer Summarizer
}

// NewCompactor builds a Compactor. A nil estimator defaults to
// CharTokenEstimator.
func NewCompactor(config CompactConfig, estimator TokenEstimator, summarizer Summarizer) *Compactor {
	if estimator == nil {
		estimator = NewCharTokenEstimator()
	}
	return &Compactor{config: config, estimator: estimator, summarizer: summarizer}
}

// ShouldCompact reports whether the context's estimated token usage meets
// the configured threshold.
func (c *Compactor) ShouldCompact(messages []*models.Message) bool {
	return c.estimator.EstimateMessages(messages) >= c.config.Threshold
}

// Compact summarizes the middle window of messages, keeping a fixed prefix
// (the system message, if any, plus the first user turn) and a tail sized
// so its token sum is at least MinTail. Compaction is idempotent: a second
// call against already-compacted messages must return the same structure,
// so a message already tagged as a compaction summary is itself treated as
// an atomic, non-splittable unit of the prefix/middle/tail partition.
func (c *Compactor) Compact(ctx context.Context, messages []*models.Message) ([]*models.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	prefixEnd := c.keepPrefixEnd(messages)
	tailStart := c.keepTailStart(messages, prefixEnd)

	if tailStart <= prefixEnd {
		// Nothing left to summarize; the prefix/tail already cover everything.
		return messages, nil
	}

	middle := messages[prefixEnd:tailStart]
	if isAlreadyCompacted(middle) {
		// Idempotence: a single existing summary block needs no further work.
		return messages, nil
	}

	deduped := applyDedupTransformers(dedupeConsecutiveRoleBlocks(middle), c.config.DropRoles)

	summaryContent, err := c.summarizer.Summarize(ctx, deduped)
	if err != nil {
		return nil, fmt.Errorf("compactor: summarize middle window: %w", err)
	}

	summary := &models.Message{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: summaryContent,
		Metadata: map[string]any{
			SummaryMetadataKey: true,
			"compacted_count":  len(deduped),
		},
		CreatedAt: time.Now(),
	}

	result := make([]*models.Message, 0, prefixEnd+1+(len(messages)-tailStart))
	result = append(result, messages[:prefixEnd]...)
	result = append(result, summary)
	result = append(result, messages[tailStart:]...)
	return result, nil
}

// keepPrefixEnd returns the index just past the fixed prefix: a leading
// System message (if present) plus the first User turn that follows it.
func (c *Compactor) keepPrefixEnd(messages []*models.Message) int {
	idx := 0
	if len(messages) > 0 && messages[0] != nil && messages[0].Role == models.RoleSystem {
		idx = 1
	}
	for i := idx; i < len(messages); i++ {
		if messages[i] != nil && messages[i].Role == models.RoleUser {
			return i + 1
		}
	}
	return idx
}

// keepTailStart finds the smallest K such that the token sum of the last K
// messages (from prefixEnd onward) is >= MinTail, returning the start index
// of that suffix.
func (c *Compactor) keepTailStart(messages []*models.Message, prefixEnd int) int {
	if prefixEnd >= len(messages) {
		return prefixEnd
	}
	tokens := 0
	for i := len(messages) - 1; i >= prefixEnd; i-- {
		tokens += c.estimator.EstimateMessages([]*models.Message{messages[i]})
		if tokens >= c.config.MinTail {
			return i
		}
	}
	return prefixEnd
}

func isAlreadyCompacted(window []*models.Message) bool {
	if len(window) != 1 || window[0] == nil {
		return false
	}
	if v, ok := window[0].Metadata[SummaryMetadataKey]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// dedupeConsecutiveRoleBlocks keeps only the first message within each run
// of consecutive same-role messages, mirroring the "dedupe_role" transform
// applied to a summary's source window before it is fed to the summarizer.
func dedupeConsecutiveRoleBlocks(messages []*models.Message) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	result := make([]*models.Message, 0, len(messages))
	var lastRole models.Role
	hasLast := false
	for _, m := range messages {
		if m == nil {
			continue
		}
		if hasLast && m.Role == lastRole {
			continue
		}
		result = append(result, m)
		lastRole = m.Role
		hasLast = true
	}
	return result
}

// applyDedupTransformers drops messages whose role is in dropRoles, after
// the consecutive-role dedupe has already run ("drop_role" transform).
func applyDedupTransformers(messages []*models.Message, dropRoles []models.Role) []*models.Message {
	if len(dropRoles) == 0 {
		return messages
	}
	drop := make(map[models.Role]struct{}, len(dropRoles))
	for _, r := range dropRoles {
		drop[r] = struct{}{}
	}
	result := make([]*models.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		if _, ok := drop[m.Role]; ok {
			continue
		}
		result = append(result, m)
	}
	return result
}
