package tool

// PolicyDecision is the outcome of evaluating a policy rule against a tool
// invocation.
type PolicyDecision string

const (
	PolicyAllow PolicyDecision = "allow"
	PolicyDeny  PolicyDecision = "deny"
)

// PolicyContext carries the information a PolicyEvaluator needs to decide
// whether a specific invocation is permitted (spec.md §4.6 step 4, "policy
// gate": a rule-based check distinct from the tool/node permission gate,
// covering operator-defined constraints such as "never allow shell tools in
// production tasks").
type PolicyContext struct {
	ToolID  string
	NodeID  string
	TaskID  string
	RiskLevel RiskLevel
	Inputs  any
}

// PolicyEvaluator decides whether a tool invocation is allowed under the
// operator's configured policies. Implementations are expected to be pure
// and side-effect-free; denial is communicated purely through the return
// value, never by raising.
type PolicyEvaluator interface {
	Evaluate(PolicyContext) (PolicyDecision, string)
}

// Rule is a single named policy predicate. The first matching rule whose
// Decide is PolicyDeny halts evaluation; rules are evaluated in order.
type Rule struct {
	Name   string
	Decide func(PolicyContext) (PolicyDecision, string)
}

// RuleEvaluator is a simple ordered-rule PolicyEvaluator, grounded on the
// operator policy manifest described in spec.md §6 ("policies manifest").
// Absent any matching deny rule, the default decision is allow.
type RuleEvaluator struct {
	Rules []Rule
}

// NewRuleEvaluator builds a RuleEvaluator from the given rules, evaluated
// in the given order.
func NewRuleEvaluator(rules ...Rule) *RuleEvaluator {
	return &RuleEvaluator{Rules: rules}
}

func (e *RuleEvaluator) Evaluate(pc PolicyContext) (PolicyDecision, string) {
	for _, r := range e.Rules {
		if decision, reason := r.Decide(pc); decision == PolicyDeny {
			return PolicyDeny, reason
		}
	}
	return PolicyAllow, ""
}

// DenyHighRiskShell is a ready-made rule denying high-risk tools unless the
// caller's policy context explicitly names them in an allowlist — provided
// as a convenience constructor mirroring the kind of rule the original
// runtime's default policy set ships (original_source/runtime/tool_runtime.py
// ships a "deny high risk without explicit allow" default).
func DenyHighRiskShell(allowedToolIDs ...string) Rule {
	allowed := make(map[string]bool, len(allowedToolIDs))
	for _, id := range allowedToolIDs {
		allowed[id] = true
	}
	return Rule{
		Name: "deny_high_risk_without_allowlist",
		Decide: func(pc PolicyContext) (PolicyDecision, string) {
			if pc.RiskLevel == RiskHigh && !allowed[pc.ToolID] {
				return PolicyDeny, "high risk tool not present in explicit allowlist"
			}
			return PolicyAllow, ""
		},
	}
}
