// Package policy implements the Orchestrator's Policy Engine: given an
// Operation the model wants to perform, it produces an Allow, Deny, or
// Confirm decision by evaluating an ordered list of glob-matched rules.
package policy

import (
	"path"
	"regexp"
	"strings"
)

// Permission is the outcome of evaluating an Operation against a PolicyConfig.
type Permission string

const (
	// PermissionAllow lets the operation proceed without confirmation.
	PermissionAllow Permission = "allow"
	// PermissionDeny blocks the operation; it becomes a tool-level error.
	PermissionDeny Permission = "deny"
	// PermissionConfirm requires operator sign-off before proceeding.
	PermissionConfirm Permission = "confirm"
)

// OperationKind distinguishes the four operation shapes the engine judges.
type OperationKind string

const (
	OperationRead    OperationKind = "read"
	OperationWrite   OperationKind = "write"
	OperationExecute OperationKind = "execute"
	OperationFetch   OperationKind = "fetch"
)

// Operation describes a single action a tool is about to perform. Path is
// used for Read/Write, Command for Execute, and URL for Fetch.
type Operation struct {
	Kind    OperationKind
	Path    string
	Command string
	URL     string
	Cwd     string
}

// Rule is one glob-matched condition a Policy's Permission applies to.
type Rule struct {
	Kind OperationKind
	// Glob matches Path (read/write), Command (execute), or URL (fetch)
	// depending on Kind. Supports "**" for arbitrary path segments in
	// addition to the single-segment "*" and "?" that path.Match supports.
	Glob string
	// WorkingDirectory, if set, additionally restricts the rule to
	// operations whose Operation.Cwd matches exactly.
	WorkingDirectory string
}

// Policy pairs a Permission with the Rule it applies to.
type Policy struct {
	Permission Permission
	Rule       Rule
}

// PolicyConfig is an ordered list of policies; order is significant for the
// Trace, though not for the final Permission (see can_perform below).
type PolicyConfig struct {
	Policies []Policy
}

// Trace records which policy (if any) produced a Permission, for auditability.
type Trace struct {
	Value      Permission
	RuleIndex  int // 1-indexed ordinal position of the matched policy; 0 if none matched
	MatchedRule *Rule
}

// Engine is the Policy Engine. It is a pure function of its PolicyConfig.
type Engine struct {
	config PolicyConfig
}

// NewEngine builds a Policy Engine over an ordered policy list.
func NewEngine(config PolicyConfig) *Engine {
	return &Engine{config: config}
}

// CanPerform evaluates an Operation against the engine's policies.
//
// Resolution order: any Deny match short-circuits; any Confirm match
// short-circuits; absent those, the *last* matching Allow wins; if nothing
// matches, the default is Confirm.
func (e *Engine) CanPerform(op Operation) Trace {
	if len(e.config.Policies) == 0 {
		return Trace{Value: PermissionConfirm}
	}

	var firstDeny, firstConfirm, lastAllow *Trace
	for i, p := range e.config.Policies {
		if p.Rule.Kind != op.Kind {
			continue
		}
		if !matchesOperation(p.Rule, op) {
			continue
		}

		trace := Trace{Value: p.Permission, RuleIndex: i + 1, MatchedRule: &e.config.Policies[i].Rule}
		switch p.Permission {
		case PermissionDeny:
			if firstDeny == nil {
				t := trace
				firstDeny = &t
			}
		case PermissionConfirm:
			if firstConfirm == nil {
				t := trace
				firstConfirm = &t
			}
		case PermissionAllow:
			t := trace
			lastAllow = &t
		}
	}

	// Any Deny anywhere in the list wins outright, regardless of where a
	// Confirm or Allow also matched.
	if firstDeny != nil {
		return *firstDeny
	}
	if firstConfirm != nil {
		return *firstConfirm
	}
	if lastAllow != nil {
		return *lastAllow
	}
	return Trace{Value: PermissionConfirm}
}

func matchesOperation(rule Rule, op Operation) bool {
	if rule.WorkingDirectory != "" && rule.WorkingDirectory != op.Cwd {
		return false
	}

	switch op.Kind {
	case OperationRead, OperationWrite:
		return matchGlob(rule.Glob, op.Path)
	case OperationExecute:
		return matchGlob(rule.Glob, op.Command)
	case OperationFetch:
		return matchGlob(rule.Glob, op.URL)
	default:
		return false
	}
}

// matchGlob matches subject against a shell-style glob that additionally
// supports "**" (match across path separators), since path.Match alone
// cannot express patterns like "**/*.py".
func matchGlob(glob, subject string) bool {
	if glob == "" {
		return false
	}
	if glob == "*" || glob == "**" {
		return true
	}
	if !strings.Contains(glob, "**") {
		ok, err := path.Match(glob, subject)
		return err == nil && ok
	}
	return doubleStarMatch(glob, subject)
}

func doubleStarMatch(glob, subject string) bool {
	re, err := regexp.Compile("^" + globToRegexp(glob) + "$")
	if err != nil {
		return false
	}
	return re.MatchString(subject)
}

// globToRegexp translates a glob with "**", "*" and "?" into a regexp
// fragment. "**" matches zero or more path segments (including "/"); "*"
// matches within a single segment; "?" matches a single non-separator rune.
func globToRegexp(glob string) string {
	var sb strings.Builder
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				sb.WriteString(".*")
				i++
				// Swallow an immediately following separator so "**/x" also
				// matches "x" at the root.
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
				}
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			sb.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			sb.WriteRune(runes[i])
		}
	}
	return sb.String()
}
