package config

import (
	"time"

	agentpolicy "github.com/haasonsaas/nexus/internal/agent/policy"
)

// OrchestratorConfig binds the Retry Harness, Context Compactor, Policy
// Engine, and the per-turn caps the Orchestrator Loop enforces.
type OrchestratorConfig struct {
	Retry    RetryConfig           `yaml:"retry"`
	Compact  CompactConfig         `yaml:"compact"`
	Limits   LimitsConfig          `yaml:"limits"`
	Policies []OperationPolicyRule `yaml:"policies"`
}

// OperationPolicyRule is the YAML shape of one entry in the Policy Engine's
// ordered rule list (spec.md §3's Policy data model).
type OperationPolicyRule struct {
	// Permission is one of "allow", "deny", "confirm".
	Permission string `yaml:"permission"`
	// Kind is one of "read", "write", "execute", "fetch".
	Kind string `yaml:"kind"`
	// Glob matches the operation's path/command/url, per Kind.
	Glob string `yaml:"glob"`
	// Cwd, if set, additionally restricts the rule to that working directory.
	Cwd string `yaml:"cwd"`
}

// BuildPolicyEngine converts the configured rule list into a Policy Engine.
// An empty list still yields a usable Engine whose CanPerform defaults every
// operation to Confirm, matching the Policy Engine's documented default.
func (c OrchestratorConfig) BuildPolicyEngine() *agentpolicy.Engine {
	policies := make([]agentpolicy.Policy, 0, len(c.Policies))
	for _, p := range c.Policies {
		policies = append(policies, agentpolicy.Policy{
			Permission: agentpolicy.Permission(p.Permission),
			Rule: agentpolicy.Rule{
				Kind:             agentpolicy.OperationKind(p.Kind),
				Glob:             p.Glob,
				WorkingDirectory: p.Cwd,
			},
		})
	}
	return agentpolicy.NewEngine(agentpolicy.PolicyConfig{Policies: policies})
}

// RetryConfig configures the agent package's Retry Harness.
type RetryConfig struct {
	// InitialBackoffMs is the delay before the first retry attempt.
	InitialBackoffMs float64 `yaml:"initial_backoff_ms"`
	// BackoffFactor multiplies the delay on each subsequent attempt.
	BackoffFactor float64 `yaml:"backoff_factor"`
	// MaxAttempts caps provider calls per chat invocation, including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// StatusCodes, if set, are treated as retryable in addition to the
	// harness's own rate-limit/timeout/server-error classification.
	StatusCodes []int `yaml:"status_codes"`
}

// DefaultRetryConfig matches the Retry Harness's own defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{InitialBackoffMs: 100, BackoffFactor: 2, MaxAttempts: 3}
}

// CompactConfig configures the Context Compactor's token-budget trigger.
type CompactConfig struct {
	// Threshold triggers compaction once the context's estimated token
	// count meets or exceeds this value. Zero disables compaction.
	Threshold int `yaml:"threshold"`
	// MinTail is the minimum token sum the preserved tail window must cover.
	MinTail int `yaml:"min_tail"`
	// DropRoles lists message roles to drop from the generated summary
	// block entirely (the dedupe/drop-role transformers).
	DropRoles []string `yaml:"drop_roles"`
}

// DefaultCompactConfig returns the Compactor's own defaults.
func DefaultCompactConfig() CompactConfig {
	return CompactConfig{Threshold: 120000, MinTail: 2000}
}

// LimitsConfig caps per-turn work the Orchestrator Loop enforces
// independently of tool execution's own MaxIterations/MaxToolCalls.
type LimitsConfig struct {
	// MaxRequestsPerTurn caps total provider calls (including retries)
	// across one turn.
	MaxRequestsPerTurn int `yaml:"max_requests_per_turn"`
	// MaxToolFailuresPerTurn caps consecutive tool failures before the
	// turn is aborted rather than retried indefinitely.
	MaxToolFailuresPerTurn int `yaml:"max_tool_failure_per_turn"`
	// MaxToolTimeout bounds how long any single tool call may run.
	MaxToolTimeout time.Duration `yaml:"max_tool_timeout_seconds"`
}

// DefaultLimitsConfig returns conservative per-turn caps.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxRequestsPerTurn:     50,
		MaxToolFailuresPerTurn: 5,
		MaxToolTimeout:         120 * time.Second,
	}
}
