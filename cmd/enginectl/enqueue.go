package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/agentengine/internal/engine"
)

func runEnqueue(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
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

	taskID, err := eng.Enqueue(payload, *start, opts...)
	if err != nil {
		return err
	}
	fmt.Println(taskID)
	return nil
}

func runRunQueued(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run-queued", flag.ExitOnError)
	c := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, err := c.buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	results, err := eng.RunQueued(context.Background())
	if err != nil {
		if len(results) > 0 {
			_ = printJSON(results)
		}
		return err
	}
	return printJSON(results)
}
