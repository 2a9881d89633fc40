package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawjobs/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI document of the agent API",
		Long: `Print the OpenAPI 3.1 document describing the agent API. The server URL is
--base-url, falling back to server.public_url.`,
		Example: `  clawjobs openapi --base-url https://jobs.example.com
  clawjobs openapi -o openapi.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				if cfg, err := loadConfig(); err == nil {
					baseURL = cfg.Server.PublicURL
				}
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}

			data, err := json.MarshalIndent(openapi.Document(strings.TrimRight(baseURL, "/")), "", "  ")
			if err != nil {
				return fmt.Errorf("encode openapi document: %w", err)
			}
			if outputFile != "" {
				if err := os.WriteFile(outputFile, data, 0644); err != nil {
					return fmt.Errorf("write %s: %w", outputFile, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", outputFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of the server")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to a file instead of stdout")

	return cmd
}
