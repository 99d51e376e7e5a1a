package tool

import "testing"

func TestRuleEvaluator_DefaultAllowWithNoRules(t *testing.T) {
	e := NewRuleEvaluator()
	decision, _ := e.Evaluate(PolicyContext{ToolID: "fs.read"})
	if decision != PolicyAllow {
		t.Fatalf("expected allow with no rules, got %v", decision)
	}
}

func TestRuleEvaluator_FirstDenyWins(t *testing.T) {
	e := NewRuleEvaluator(
		Rule{Name: "always_allow", Decide: func(PolicyContext) (PolicyDecision, string) { return PolicyAllow, "" }},
		Rule{Name: "always_deny", Decide: func(PolicyContext) (PolicyDecision, string) { return PolicyDeny, "nope" }},
	)
	decision, reason := e.Evaluate(PolicyContext{ToolID: "fs.write"})
	if decision != PolicyDeny || reason != "nope" {
		t.Fatalf("expected deny with reason nope, got %v %q", decision, reason)
	}
}

func TestDenyHighRiskShell_AllowsExplicitAllowlist(t *testing.T) {
	rule := DenyHighRiskShell("shell.run")
	e := NewRuleEvaluator(rule)

	decision, _ := e.Evaluate(PolicyContext{ToolID: "shell.run", RiskLevel: RiskHigh})
	if decision != PolicyAllow {
		t.Fatalf("expected allowlisted high-risk tool to pass, got %v", decision)
	}

	decision, reason := e.Evaluate(PolicyContext{ToolID: "shell.rm", RiskLevel: RiskHigh})
	if decision != PolicyDeny || reason == "" {
		t.Fatalf("expected non-allowlisted high-risk tool to be denied, got %v %q", decision, reason)
	}

	decision, _ = e.Evaluate(PolicyContext{ToolID: "fs.read", RiskLevel: RiskLow})
	if decision != PolicyAllow {
		t.Fatalf("expected low risk tool to pass regardless of allowlist, got %v", decision)
	}
}
