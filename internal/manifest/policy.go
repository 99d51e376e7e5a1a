package manifest

import (
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// BuildPolicyEvaluator compiles a PoliciesManifest's declarative rules
// into a *tool.RuleEvaluator, evaluated in manifest order (spec.md §4.6
// step 4's "policy gate"). A rule matches a ToolID if ToolIDs is empty or
// contains it, and matches MinRiskLevel if unset or if the definition's
// risk is at or above it; the manifest has no richer predicate language
// than that, favoring small declarative rule tables over an embedded
// expression language.
func BuildPolicyEvaluator(m PoliciesManifest) *tool.RuleEvaluator {
	rules := make([]tool.Rule, 0, len(m.Rules))
	for _, r := range m.Rules {
		r := r
		rules = append(rules, tool.Rule{
			Name: r.Name,
			Decide: func(pc tool.PolicyContext) (tool.PolicyDecision, string) {
				if !ruleMatchesTool(r, pc.ToolID) {
					return tool.PolicyAllow, ""
				}
				if !ruleMatchesRisk(r, pc.RiskLevel) {
					return tool.PolicyAllow, ""
				}
				return r.Decision, r.Reason
			},
		})
	}
	return tool.NewRuleEvaluator(rules...)
}

func ruleMatchesTool(r PolicyRule, toolID string) bool {
	if len(r.ToolIDs) == 0 {
		return true
	}
	for _, id := range r.ToolIDs {
		if id == toolID {
			return true
		}
	}
	return false
}

var riskRank = map[tool.RiskLevel]int{
	tool.RiskLow:    0,
	tool.RiskMedium: 1,
	tool.RiskHigh:   2,
}

func ruleMatchesRisk(r PolicyRule, actual tool.RiskLevel) bool {
	if r.MinRiskLevel == "" {
		return true
	}
	return riskRank[actual] >= riskRank[r.MinRiskLevel]
}
