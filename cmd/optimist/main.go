package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/optimist-go/optimist/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┌┬┐┬┌┬┐┬┌─┐┌┬┐
  │ │├─┘ │ │││││└─┐ │
  └─┘┴   ┴ ┴┴ ┴┴└─┘ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "optimist",
		Short: "The optimistic state cache server",
		Long: `Optimist keeps speculative client state and its confirmed baseline
in sync across consumers.

The server holds a keyed cache of JSON values and fans every write out
to subscribed WebSocket clients. Features include:

  • Optimistic writes with revert-on-failure semantics
  • Real-time key synchronization over WebSocket
  • REST access to every key
  • Snapshot persistence (memory, SQL, Redis, S3)
  • Prometheus metrics and OpenTelemetry tracing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		serveCmd(),
		initCmd(),
		benchCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the optimist ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
