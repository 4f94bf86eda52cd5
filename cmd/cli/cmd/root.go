package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pagemagic-cli",
	Short: "PageMagic CLI - restyle web pages with natural language",
	Long: `PageMagic hosts web pages and restyles them from plain-language
requests. Each request becomes a CSS layer stored per page or per site.

This CLI tool allows you to:
- Open pages and apply styling requests
- Review, toggle and edit the style history of a page
- Switch between page and domain-wide styles
- Track model usage and spend`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("PAGEMAGIC_URL", "http://localhost:8080"), "PageMagic server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
