// Package cli implements the devlensctl operator commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// options are the flags shared by every command.
type options struct {
	grpcAddr string
	httpAddr string
	jsonOut  bool
	timeout  time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCommand creates and returns the root cobra command for devlensctl
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "devlensctl",
		Short: "Analyze learner event logs and manage saved analyses",
		Long: `devlensctl runs behavior analyses over xAPI-style event exports.

Files can be analyzed locally, without a server, or sent to a running
devlens server and saved. Saved analyses are listed, fetched, renamed and
deleted through the server's APIs.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.grpcAddr, "grpc-addr", envOr("DEVLENS_GRPC_ADDR", "localhost:9090"), "devlens gRPC address")
	cmd.PersistentFlags().StringVar(&opts.httpAddr, "http-addr", envOr("DEVLENS_HTTP_URL", "http://localhost:8080"), "devlens HTTP base URL")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print raw JSON instead of a summary")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Request timeout")

	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newClassifyCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newRenameCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devlensctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devlensctl version %s\n", Version)
		},
	}
}
