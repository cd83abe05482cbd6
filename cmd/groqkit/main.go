package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	configPath   string
	envFile      string
	verbose      bool
	metricsAddr  string
	noTranscript bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "groqkit",
		Short: "groqkit - Groq chat completions from the command line",
		Long: `groqkit sends chat completion requests to the Groq OpenAI-compatible API.

Requests are validated locally, rate limit and network failures are retried
with a linear backoff, and every exchange can be recorded to a session
transcript under the output directory.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "groqkit.toml", "Path to profile file (.toml, .yaml or .yml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Path to environment file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.BoolVar(&opts.noTranscript, "no-transcript", false, "Do not record a session transcript")

	rootCmd.AddCommand(newGenerateCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newStreamCmd(opts))
	rootCmd.AddCommand(newBatchCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "groqkit %s\ncommit: %s\nbuilt: %s\n", Version, GitCommit, BuildTime)
		},
	}
}
