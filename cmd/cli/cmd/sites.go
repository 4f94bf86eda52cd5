package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "0.1.0"

var (
	sitesYes    bool
	clearCSSYes bool
	resetYes    bool
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage stored styles per site",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every scope with stored styles",
	Args:  cobra.NoArgs,
	RunE:  runSitesList,
}

var sitesRemoveCmd = &cobra.Command{
	Use:   "remove [scope]",
	Short: "Delete the styles stored for one scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesRemove,
}

var clearCSSCmd = &cobra.Command{
	Use:   "clear-css",
	Short: "Delete the styles of every site",
	Args:  cobra.NoArgs,
	RunE:  runClearCSS,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all data: styles, usage, settings and the API key",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pagemagic-cli %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(clearCSSCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)

	sitesCmd.AddCommand(sitesListCmd)
	sitesCmd.AddCommand(sitesRemoveCmd)

	sitesRemoveCmd.Flags().BoolVarP(&sitesYes, "yes", "y", false, "Confirm deletion")
	clearCSSCmd.Flags().BoolVarP(&clearCSSYes, "yes", "y", false, "Confirm deletion")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Confirm deletion")
}

func runSitesList(cmd *cobra.Command, args []string) error {
	var result struct {
		Sites []SiteSummary `json:"sites"`
		Count int           `json:"count"`
		Stats StorageStats  `json:"stats"`
	}
	if err := apiRequest(http.MethodGet, "/api/v1/sites", nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Sites) == 0 {
		fmt.Println("No customized sites.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCOPE\tLAYERS\tENABLED\tSTYLES\tLATEST REQUEST")
	fmt.Fprintln(w, "-----\t------\t-------\t------\t--------------")
	for _, s := range result.Sites {
		fmt.Fprintf(w, "%s\t%d\t%d\t%dB\t%s\n",
			s.Scope,
			s.Entries,
			s.Enabled,
			s.StyleBytes,
			truncateString(s.LatestPrompt, 40),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d sites, %d layers, %d bytes stored\n",
		result.Count, result.Stats.HistoryEntries, result.Stats.TotalBytes)
	return nil
}

func runSitesRemove(cmd *cobra.Command, args []string) error {
	if err := confirm(sitesYes, "delete the styles of "+args[0]); err != nil {
		return err
	}
	if err := apiRequest(http.MethodDelete, "/api/v1/sites?scope="+url.QueryEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Styles removed for %s.\n", args[0])
	return nil
}

func runClearCSS(cmd *cobra.Command, args []string) error {
	if err := confirm(clearCSSYes, "delete the styles of every site"); err != nil {
		return err
	}

	var result struct {
		KeysRemoved int64 `json:"keys_removed"`
	}
	if err := apiRequest(http.MethodDelete, "/api/v1/styles", nil, &result); err != nil {
		return err
	}
	fmt.Printf("All styles cleared (%d records removed).\n", result.KeysRemoved)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := confirm(resetYes, "delete all styles, usage data, settings and the API key"); err != nil {
		return err
	}

	var result struct {
		KeysRemoved int64 `json:"keys_removed"`
	}
	if err := apiRequest(http.MethodPost, "/api/v1/reset", nil, &result); err != nil {
		return err
	}
	fmt.Printf("All data reset (%d records removed).\n", result.KeysRemoved)
	return nil
}
