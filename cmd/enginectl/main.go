// Command enginectl is the operator-facing entrypoint over internal/engine:
// it loads a manifest directory and runs, enqueues, or inspects workflow
// tasks, or just validates the manifest set, without requiring a caller to
// embed internal/engine directly. Grounded on cmd/cortex/main.go's
// flag-parsing/slog/component-wiring idiom and cmd/specmcp's
// flag.NewFlagSet-per-subcommand dispatch.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var err error
	switch os.Args[1] {
	case "run":
		err = runRun(os.Args[2:], logger)
	case "enqueue":
		err = runEnqueue(os.Args[2:], logger)
	case "run-queued":
		err = runRunQueued(os.Args[2:], logger)
	case "inspect":
		err = runInspect(os.Args[2:], logger)
	case "validate":
		err = runValidate(os.Args[2:], logger)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "enginectl: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("enginectl: "+os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `enginectl — run and inspect agentengine workflows

Usage:
  enginectl run        -manifest DIR [-start NODE] [-input JSON | -input-file PATH] [flags]
  enginectl enqueue     -manifest DIR [-start NODE] [-input JSON | -input-file PATH] [flags]
  enginectl run-queued -manifest DIR [flags]
  enginectl inspect     -manifest DIR -task TASK_ID [-history] [-events] [-artifacts] [flags]
  enginectl validate    -manifest DIR

Common flags (run/enqueue/run-queued/inspect):
  -manifest DIR        manifest directory (required)
  -state DIR            task/memory state root (default: DIR/state)
  -schemas DIR          JSON schema directory for input/output validation
  -anthropic-credential NAME   provider_credentials.yaml entry to use for real LLM calls
  -default-model NAME   model name used with -anthropic-credential when no agent declares one
  -docker-image NAME    image used to run AllowShell tools
  -docker-workspace DIR bind-mounted workspace for -docker-image

Run "enginectl <subcommand> -h" for subcommand-specific flags.
`)
}
