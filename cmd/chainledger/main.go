package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches a subcommand and returns the process exit code:
// 0 on success, 1 when a check fails, 2 on usage or runtime errors.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "stats":
		return runStatsCmd(args[2:], stdout, stderr)
	case "list":
		return runListCmd(args[2:], stdout, stderr)
	case "append":
		return runAppendCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "verify-bundle":
		return runVerifyBundleCmd(args[2:], stdout, stderr)
	case "reset":
		return runResetCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "chainledger %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: chainledger <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	printCommand(w, "serve", "Run the HTTP API")
	printCommand(w, "verify", "Verify chain integrity (--json)")
	printCommand(w, "stats", "Show ledger statistics (--json)")
	printCommand(w, "list", "List records (--type, --filter, --limit, --offset, --json)")
	printCommand(w, "append", "Append a record (--type, --actor, --payload)")
	printCommand(w, "export", "Export a verified bundle to the artifact store")
	printCommand(w, "verify-bundle", "Verify an exported bundle offline (<file> or --key)")
	printCommand(w, "reset", "Truncate the ledger (--yes)")
	printCommand(w, "version", "Show version information")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Every command accepts --config <file.yaml>; environment variables override it.")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-14s %s\n", name, desc)
}
