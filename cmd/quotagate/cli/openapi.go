package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/quotagate/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 specification for the gateway's HTTP endpoints.
The running server serves the same document at /openapi.json.`,
		Example: `  quotagate openapi
  quotagate openapi --base-url https://gate.example.com -o openapi.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := openapi.Generate(openapi.Options{
				BaseURL:    baseURL,
				CookieName: viper.GetString("session.cookie_name"),
				Version:    versionString(),
			})

			b, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal spec: %w", err)
			}
			b = append(b, '\n')

			if outputFile != "" {
				if err := os.WriteFile(outputFile, b, 0644); err != nil {
					return fmt.Errorf("write spec: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", outputFile)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to list in the spec")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}
