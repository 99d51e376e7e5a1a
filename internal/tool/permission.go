package tool

import "github.com/antigravity-dev/agentengine/internal/errs"

// CheckPermission enforces the two-level permission model of spec.md §4.6:
// BOTH levels must allow the call for it to proceed.
//
//  1. Tool level: the Definition must declare capabilities covering what the
//     caller is attempting (network/shell/filesystem access are additionally
//     gated by the matching boolean flags on the definition).
//  2. Node level: nodeTools (the invoking node's `tools` whitelist) must
//     contain the tool's id.
//
// A denial returns a security-category *errs.Error; callers must halt the
// enclosing plan on any such error (spec.md §4.6: "a denial halts the plan").
func CheckPermission(def Definition, nodeTools []string, caller CallerFlags) *errs.Error {
	if !whitelisted(def.ToolID, nodeTools) {
		return errs.Security(errs.SourceToolRuntime, "tool-not-whitelisted",
			"node does not whitelist tool %q", def.ToolID)
	}
	if caller.AllowNetwork && !def.AllowNetwork {
		return errs.Security(errs.SourceToolRuntime, "network-capability-denied",
			"tool %q does not permit network access", def.ToolID)
	}
	if caller.AllowShell && !def.AllowShell {
		return errs.Security(errs.SourceToolRuntime, "shell-capability-denied",
			"tool %q does not permit shell access", def.ToolID)
	}
	if caller.AllowWorkspaceMutation && !def.hasCapability(CapabilityWorkspaceMutation) {
		return errs.Security(errs.SourceToolRuntime, "mutation-capability-denied",
			"tool %q does not declare workspace_mutation capability", def.ToolID)
	}
	if caller.FilesystemRoot != "" && def.FilesystemRoot != "" && caller.FilesystemRoot != def.FilesystemRoot {
		return errs.Security(errs.SourceToolRuntime, "filesystem-root-mismatch",
			"tool %q is scoped to filesystem root %q", def.ToolID, def.FilesystemRoot)
	}
	return nil
}

func whitelisted(toolID string, nodeTools []string) bool {
	for _, id := range nodeTools {
		if id == toolID {
			return true
		}
	}
	return false
}
