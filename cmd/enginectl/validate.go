package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
)

// runValidate builds a full Engine against the manifest directory and
// immediately discards it: construction already runs manifest.Load's
// per-file validation and manifest.BuildDAG's structural checks (unknown
// node references, missing START/EXIT, cycles), so a clean construction
// is the validation result itself.
func runValidate(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	c := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, err := c.buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	fmt.Printf("manifest %q is valid: %d node(s), %d agent(s), %d tool(s)\n",
		c.manifestDir, len(eng.Manifest.Workflow.Nodes), len(eng.Manifest.Agents.Agents), len(eng.Manifest.Tools.Tools))
	return nil
}
