package cmd

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View CLI configuration and server status",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the CLI configuration and whether the server is reachable",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Explain how to set a configuration value",
	Long: `Explain how to set a configuration value. Supported keys:
  server  - PageMagic server URL
  output  - default output format (table, json)
  api-key - model API key, stored by the server`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// HealthResponse is the server's /health body
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	healthErr := apiRequest(http.MethodGet, "/health", nil, &health)

	if outputFormat == "json" {
		out := map[string]any{
			"server":        serverURL,
			"output":        outputFormat,
			"pagemagic_url": os.Getenv("PAGEMAGIC_URL"),
			"reachable":     healthErr == nil,
		}
		if healthErr == nil {
			out["health"] = health
		} else {
			out["error"] = healthErr.Error()
		}
		return printJSON(out)
	}

	fmt.Println("PageMagic CLI Configuration")
	fmt.Println("===========================")
	fmt.Println()
	fmt.Printf("Server URL:     %s\n", serverURL)
	fmt.Printf("Output Format:  %s\n", outputFormat)
	if url := os.Getenv("PAGEMAGIC_URL"); url != "" {
		fmt.Printf("PAGEMAGIC_URL:  %s\n", url)
	} else {
		fmt.Println("PAGEMAGIC_URL:  (not set, using default)")
	}
	fmt.Println()

	if healthErr != nil {
		fmt.Printf("Server:         unreachable (%v)\n", healthErr)
		return nil
	}

	fmt.Printf("Server:         %s\n", health.Status)
	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s  %s\n", name, health.Services[name])
	}
	if health.Services["model_api"] == "not_configured" {
		fmt.Println()
		fmt.Println("Set an API key with: pagemagic-cli settings set --api-key <key>")
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	switch key {
	case "server":
		fmt.Printf("To set the server URL, use the environment variable:\n")
		fmt.Printf("  export PAGEMAGIC_URL=%s\n", value)
		fmt.Println()
		fmt.Println("Or use the --server flag with each command.")
	case "output":
		if value != "table" && value != "json" {
			return fmt.Errorf("invalid output format %q: use table or json", value)
		}
		fmt.Printf("Pass -o %s with each command.\n", value)
	case "api-key":
		fmt.Println("The API key is stored by the server. Use:")
		fmt.Println("  pagemagic-cli settings set --api-key <key>")
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	return nil
}
