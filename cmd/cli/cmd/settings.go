package cmd

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	settingsAPIKey string
	settingsModel  string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change the API key and model",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Long: `Change settings. Only the flags given are changed.

  --api-key ""   removes the stored API key`,
	Args: cobra.NoArgs,
	RunE: runSettingsSet,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(modelsCmd)

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().StringVar(&settingsAPIKey, "api-key", "", "Model API key")
	settingsSetCmd.Flags().StringVar(&settingsModel, "model", "", "Model id")
}

func printSettings(s Settings) {
	key := "(not set)"
	if s.APIKeySet {
		key = s.APIKey
	}
	model := s.Model
	if s.ModelName != "" && s.ModelName != s.Model {
		model = fmt.Sprintf("%s (%s)", s.ModelName, s.Model)
	}

	fmt.Printf("API key:  %s\n", key)
	fmt.Printf("Model:    %s\n", model)
	if !s.PricedByTable {
		fmt.Println("Note:     no price table for this model, costs use the fallback rates")
	}
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	var result Settings
	if err := apiRequest(http.MethodGet, "/api/v1/settings", nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}
	printSettings(result)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	body := map[string]string{}
	if cmd != nil && cmd.Flags().Changed("api-key") {
		body["api_key"] = settingsAPIKey
	}
	if cmd != nil && cmd.Flags().Changed("model") {
		body["model"] = settingsModel
	}
	if len(body) == 0 {
		return fmt.Errorf("nothing to change: pass --api-key and/or --model")
	}

	var result Settings
	if err := apiRequest(http.MethodPut, "/api/v1/settings", body, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println("Settings updated.")
	fmt.Println()
	printSettings(result)
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	var result struct {
		Models   []Model `json:"models"`
		Count    int     `json:"count"`
		Selected string  `json:"selected"`
	}
	if err := apiRequest(http.MethodGet, "/api/v1/models", nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Models) == 0 {
		fmt.Println("No models available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tRELEASED")
	fmt.Fprintln(w, "\t--\t----\t--------")
	for _, m := range result.Models {
		marker := ""
		if m.ID == result.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, m.ID, m.DisplayName, m.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d models (* selected)\n", result.Count)
	return nil
}
