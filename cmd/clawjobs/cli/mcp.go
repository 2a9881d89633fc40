package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmcp "github.com/openclaw/clawjobs/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the agent API as
tools. The server acts as the agent that owns --api-key; the key is checked
at startup and again on every call, and every tool call is recorded in that
agent's call log. Revoking the key stops the session.

In stdio mode the server talks JSON-RPC over stdin/stdout, for clients that
launch clawjobs as a subprocess. In http mode it serves Streamable HTTP.`,
		Example: `  clawjobs mcp --api-key oc_live_...                       # stdio
  clawjobs mcp --api-key oc_live_... --transport http --addr :3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("CLAWJOBS_API_KEY")
			}

			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			principal, err := cmcp.Authenticate(cmd.Context(), a.keys, apiKey)
			if err != nil {
				return err
			}

			srv := cmcp.NewMCPServer(a.market, a.keys, a.calls, a.metrics, principal, a.logger)
			switch a.cfg.MCP.Transport {
			case "http":
				return srv.ServeHTTP(a.cfg.MCP.Addr)
			default:
				return srv.ServeStdio()
			}
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Agent API key (default $CLAWJOBS_API_KEY)")
	cmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().String("addr", ":3001", "HTTP listen address (only used with --transport http)")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
