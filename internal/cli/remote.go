package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/devlens/devlens/pkg/types"
)

func newGRPCConn(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func newGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dialGRPC(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := client.GetAnalysis(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			p := newPrinter(cmd.OutOrStdout())
			p.bold.Fprintf(p.w, "%s\n", resp.Record.ID)
			p.field("Source", resp.Record.SourceFile)
			p.field("Created", resp.Record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			p.field("Size (bytes)", resp.Record.SizeBytes)
			p.analysis(resp.Analysis)
			return nil
		},
	}
}

func newListCommand(opts *options) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dialGRPC(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			recs, err := client.ListAnalyses(ctx, limit, offset)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			newPrinter(cmd.OutOrStdout()).records(recs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of analyses to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of analyses to skip")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dialGRPC(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if err := client.DeleteAnalysis(ctx, args[0]); err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.green.Fprintf(p.w, "deleted %s\n", args[0])
			return nil
		},
	}
}

// newRenameCommand renames over HTTP; the gRPC service has no rename call.
func newRenameCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Change the source file name of a saved analysis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			rec, err := renameAnalysis(ctx, opts.httpAddr, args[0], args[1])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			p := newPrinter(cmd.OutOrStdout())
			p.green.Fprintf(p.w, "renamed %s to %s\n", rec.ID, rec.SourceFile)
			return nil
		},
	}
}

func renameAnalysis(ctx context.Context, baseURL, id, name string) (*types.AnalysisRecord, error) {
	body, err := json.Marshal(map[string]string{"sourceFile": name})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/v1/analyses/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return nil, fmt.Errorf("rename failed: %s", resp.Status)
		}
		return nil, fmt.Errorf("rename failed: [%s] %s", apiErr.Code, apiErr.Error)
	}

	var rec types.AnalysisRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &rec, nil
}
