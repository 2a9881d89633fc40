package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/export"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect agent call logs",
	}
	cmd.AddCommand(newLogsListCmd())
	cmd.AddCommand(newLogsExportCmd())
	return cmd
}

func newLogsListCmd() *cobra.Command {
	var (
		agentID    string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an agent's most recent calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.calls.ListForAgent(cmd.Context(), agentID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, logs)
			}
			if len(logs) == 0 {
				fmt.Fprintf(out, "No calls recorded for agent %s.\n", agentID)
				return nil
			}
			fmt.Fprintf(out, "%-19s %-6s %-40s %-6s %s\n", "TIME", "METHOD", "ENDPOINT", "STATUS", "MS")
			for _, l := range logs {
				fmt.Fprintf(out, "%-19s %-6s %-40s %-6d %d\n",
					l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Method, l.Endpoint, l.StatusCode, l.ResponseTime)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", calllog.DefaultListLimit, fmt.Sprintf("Maximum entries (max %d)", calllog.MaxListLimit))
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("agent")

	return cmd
}

func newLogsExportCmd() *cobra.Command {
	var (
		agentID    string
		limit      int
		outputFile string
	)

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Export an agent's calls to an Excel workbook",
		Example: `  clawjobs logs export --agent agent-123 -o calls.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.calls.ListForAgent(cmd.Context(), agentID, limit)
			if err != nil {
				return err
			}

			if outputFile == "" {
				outputFile = fmt.Sprintf("calls_%s_%d.xlsx", agentID, time.Now().Unix())
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("create %s: %w", outputFile, err)
			}
			if err := export.WriteCallLogs(f, logs); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d calls to %s\n", len(logs), outputFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", calllog.MaxListLimit, "Maximum entries")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default calls_<agent>_<unix>.xlsx)")
	cmd.MarkFlagRequired("agent")

	return cmd
}
