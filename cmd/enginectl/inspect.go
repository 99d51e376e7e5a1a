package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
)

// inspectOutput assembles whichever sections were requested into one JSON
// document (spec.md §6's get_task_* inspection surface).
type inspectOutput struct {
	Summary   any `json:"summary,omitempty"`
	History   any `json:"history,omitempty"`
	Events    any `json:"events,omitempty"`
	Artifacts any `json:"artifacts,omitempty"`
}

func runInspect(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	c := bindCommonFlags(fs)
	taskID := fs.String("task", "", "task id to inspect (required)")
	history := fs.Bool("history", false, "include the task's execution history")
	events := fs.Bool("events", false, "include events recorded for this task")
	artifacts := fs.Bool("artifacts", false, "include artifacts produced by this task")
	all := fs.Bool("all", false, "include history, events, and artifacts")
	listTasks := fs.Bool("list", false, "list every known task id instead of inspecting one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, err := c.buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	if *listTasks {
		return printJSON(eng.GetAllTaskIDs())
	}
	if *taskID == "" {
		return fmt.Errorf("-task is required (or pass -list)")
	}

	out := inspectOutput{}
	summary, err := eng.GetTaskSummary(*taskID)
	if err != nil {
		return err
	}
	out.Summary = summary

	if *history || *all {
		h, err := eng.GetTaskHistory(*taskID)
		if err != nil {
			return err
		}
		out.History = h
	}
	if *events || *all {
		out.Events = eng.GetTaskEvents(*taskID)
	}
	if *artifacts || *all {
		out.Artifacts = eng.GetTaskArtifacts(*taskID)
	}
	return printJSON(out)
}
