package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	grpcapi "github.com/devlens/devlens/internal/api/grpc"
	"github.com/devlens/devlens/internal/classify"
	"github.com/devlens/devlens/internal/ingest"
	"github.com/devlens/devlens/internal/normalize"
	"github.com/devlens/devlens/internal/pipeline"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	var (
		remote        bool
		save          bool
		name          string
		sessionGap    time.Duration
		significanceZ float64
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Run the behavior analysis over an event export",
		Long: `Analyze reads a CSV, JSON or JSON-lines export and prints the overview,
session funnel and significant behavior transitions.

By default the analysis runs locally. With --remote the rows are sent to the
devlens server over gRPC, and --save stores the result there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if save && !remote {
				return fmt.Errorf("--save requires --remote")
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			if !remote {
				analyzer := pipeline.New(pipeline.Options{SessionGap: sessionGap, SignificanceZ: significanceZ})
				analysis, err := analyzer.Run(ctx, rows)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), analysis)
				}
				newPrinter(cmd.OutOrStdout()).analysis(analysis)
				return nil
			}

			client, closeConn, err := dialGRPC(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.Analyze(ctx, name, rows, save)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			p := newPrinter(cmd.OutOrStdout())
			if resp.ID != "" {
				p.green.Fprintf(p.w, "saved as %s\n", resp.ID)
			}
			p.analysis(resp.Analysis)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Analyze on the devlens server")
	cmd.Flags().BoolVar(&save, "save", false, "Save the analysis on the server (requires --remote)")
	cmd.Flags().StringVar(&name, "name", "", "Source file name to save under (default: file base name)")
	cmd.Flags().DurationVar(&sessionGap, "session-gap", 30*time.Minute, "Inactivity gap that starts a new session")
	cmd.Flags().Float64Var(&significanceZ, "z", 1.96, "Adjusted-residual cutoff for significant transitions")

	return cmd
}

func newClassifyCommand(opts *options) *cobra.Command {
	var showUnmatched bool

	cmd := &cobra.Command{
		Use:   "classify FILE",
		Short: "Count behavior codes in an event export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}

			classifier := classify.Default()
			codes := make(map[string]int)
			unmatched := make(map[string]int)
			for _, ev := range normalize.Events(rows) {
				if code, ok := classifier.Classify(ev); ok {
					codes[code]++
				} else {
					unmatched[verbSuffix(ev.Verb)]++
				}
			}

			if opts.jsonOut {
				out := map[string]interface{}{"rows": len(rows), "codes": codes}
				if showUnmatched {
					out["unmatched"] = unmatched
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			p := newPrinter(cmd.OutOrStdout())
			p.field("Rows", len(rows))
			p.counts("Behavior codes", codes)
			if showUnmatched {
				p.counts("Unmatched verbs", unmatched)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showUnmatched, "unmatched", false, "Also count unclassified rows by verb")
	return cmd
}

func verbSuffix(verb string) string {
	for i := len(verb) - 1; i >= 0; i-- {
		if verb[i] == '/' {
			return verb[i+1:]
		}
	}
	if verb == "" {
		return "(none)"
	}
	return verb
}

func dialGRPC(opts *options) (*grpcapi.Client, func(), error) {
	conn, err := newGRPCConn(opts.grpcAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", opts.grpcAddr, err)
	}
	return grpcapi.NewClient(conn), func() { conn.Close() }, nil
}
