package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{name: "lint", summary: "lint one template: lint [-sample file] <id>", run: runLint},
	{name: "batch-lint", summary: "lint many templates: batch-lint [-published] [ids...]", run: runBatchLint},
	{name: "verify", summary: "verify and publish: verify [-force] [-dry-run] <id>", run: runVerify},
	{name: "edit", summary: "replace template content: edit -file path <id>", run: runEdit},
	{name: "render", summary: "render safely: render [-data file] <id>", run: runRender},
	{name: "interview", summary: "answer a guided flow and print the document: interview <template-id>", run: runInterview},
	{name: "serve", summary: "serve the HTTP API", run: runServe},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		return 2
	}

	name, rest := args[0], args[1:]
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		if err := execute(ctx, cmd, rest, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", name, err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", name)
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <command> [flags] [args]\n\nCommands:\n", filepath.Base(os.Args[0]))
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w, "\nEvery command accepts the shared flags (-config, -seed, -database-dsn, -log-level, ...).")
}
