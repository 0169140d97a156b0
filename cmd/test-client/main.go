package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverPath string
		query      string
		cursor     string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test-client",
		Short: "Spawn the JupiterOne MCP server over stdio and run one query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			toolArgs := map[string]any{"query": query}
			if cursor != "" {
				toolArgs["cursor"] = cursor
			}
			return run(ctx, cmd.OutOrStdout(), exec.Command(serverPath), toolArgs)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&serverPath, "server", "./server", "Path to the server binary")
	cmd.Flags().StringVarP(&query, "query", "q", "", "J1QL query to run (required)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous result (optional)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func run(ctx context.Context, out io.Writer, server *exec.Cmd, toolArgs map[string]any) error {
	server.Stderr = os.Stderr

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)

	fmt.Fprintln(out, "Connecting to MCP server...")
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: server}, nil)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer session.Close()

	fmt.Fprintln(out, "\nAvailable tools:")
	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("list tools failed: %w", err)
	}
	for _, tool := range tools.Tools {
		fmt.Fprintf(out, "  • %s\n    %s\n", tool.Name, tool.Description)
	}

	fmt.Fprintln(out, "\nCalling tool...")
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "run_j1_query",
		Arguments: toolArgs,
	})
	if err != nil {
		return fmt.Errorf("call tool failed: %w", err)
	}

	printResult(out, res)
	if res.IsError {
		return errors.New("tool returned an error")
	}
	return nil
}

func printResult(out io.Writer, res *mcp.CallToolResult) {
	if res.IsError {
		fmt.Fprintln(out, "\n✗ Tool returned error:")
	} else {
		fmt.Fprintln(out, "\n✓ Tool succeeded!")
	}
	for _, c := range res.Content {
		tc, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		var data any
		if err := json.Unmarshal([]byte(tc.Text), &data); err == nil {
			b, _ := json.MarshalIndent(data, "", "  ")
			fmt.Fprintf(out, "%s\n", b)
		} else {
			fmt.Fprintf(out, "  %s\n", tc.Text)
		}
	}
}
