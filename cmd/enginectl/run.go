package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/antigravity-dev/agentengine/internal/engine"
)

func runRun(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	c := bindCommonFlags(fs)
	start := fs.String("start", "", "start node id (default: the workflow's default START node)")
	input := fs.String("input", "", "JSON-encoded task input")
	inputFile := fs.String("input-file", "", "path to a JSON file containing the task input")
	projectID := fs.String("project", "", "project id the run is scoped to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	payload, err := readInput(*input, *inputFile)
	if err != nil {
		return err
	}

	eng, err := c.buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	var opts []engine.RunOption
	if *projectID != "" {
		opts = append(opts, engine.WithProjectID(*projectID))
	}

	result, err := eng.Run(context.Background(), payload, *start, opts...)
	if err != nil {
		return err
	}
	return printJSON(result)
}
