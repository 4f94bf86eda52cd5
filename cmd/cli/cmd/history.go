package cmd

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyYes bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Review and manage the style history of a page",
	Long: `Review and manage the style layers stored for the active scope of a
page. The scope is the page itself, or its whole site in domain-wide mode.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list [page-id]",
	Short: "List style layers, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryList,
}

var historyToggleCmd = &cobra.Command{
	Use:   "toggle [page-id] [entry-id]",
	Short: "Enable or disable one style layer",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryToggle,
}

var historyToggleAllCmd = &cobra.Command{
	Use:   "toggle-all [page-id]",
	Short: "Disable every layer, or enable them all when all are disabled",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryToggleAll,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove [page-id] [entry-id]",
	Short: "Delete one style layer",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryRemove,
}

var historyEditCmd = &cobra.Command{
	Use:   "edit [page-id] [entry-id]",
	Short: "Remove a layer and print its request for revision",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryEdit,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [page-id]",
	Short: "Delete every layer of the page's scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyToggleCmd)
	historyCmd.AddCommand(historyToggleAllCmd)
	historyCmd.AddCommand(historyRemoveCmd)
	historyCmd.AddCommand(historyEditCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyRemoveCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "Confirm deletion")
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "Confirm deletion")
}

func historyPath(pageID string) string {
	return "/api/v1/pages/" + pageID + "/history"
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	var result HistoryResponse
	if err := apiRequest(http.MethodGet, historyPath(args[0]), nil, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Printf("Scope: %s\n\n", result.Scope)
	if len(result.Entries) == 0 {
		fmt.Println("No styles yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tCREATED\tREQUEST")
	fmt.Fprintln(w, "--\t-----\t-------\t-------")
	for _, e := range result.Entries {
		state := "on"
		if e.Disabled {
			state = "off"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.ID,
			state,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncateString(e.Prompt, 50),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d layers\n", result.Count)
	return nil
}

func runHistoryToggle(cmd *cobra.Command, args []string) error {
	if err := apiRequest(http.MethodPost, historyPath(args[0])+"/"+args[1]+"/toggle", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Layer %s toggled.\n", args[1])
	return nil
}

func runHistoryToggleAll(cmd *cobra.Command, args []string) error {
	var result struct {
		Scope   string `json:"scope"`
		Enabled bool   `json:"enabled"`
	}
	if err := apiRequest(http.MethodPost, historyPath(args[0])+"/toggle-all", nil, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	if result.Enabled {
		fmt.Printf("All layers enabled for %s.\n", result.Scope)
	} else {
		fmt.Printf("All layers disabled for %s.\n", result.Scope)
	}
	return nil
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	if err := confirm(historyYes, "delete layer "+args[1]); err != nil {
		return err
	}
	if err := apiRequest(http.MethodDelete, historyPath(args[0])+"/"+args[1], nil, nil); err != nil {
		return err
	}
	fmt.Printf("Layer %s removed.\n", args[1])
	return nil
}

func runHistoryEdit(cmd *cobra.Command, args []string) error {
	var result struct {
		Scope  string `json:"scope"`
		Prompt string `json:"prompt"`
	}
	if err := apiRequest(http.MethodPost, historyPath(args[0])+"/"+args[1]+"/edit", nil, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Layer %s removed. Its request was:\n\n  %s\n\n", args[1], result.Prompt)
	fmt.Printf("Revise it and run: pagemagic-cli apply %s <request>\n", args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if err := confirm(historyYes, "delete every style layer of the page's scope"); err != nil {
		return err
	}

	var result struct {
		Scope string `json:"scope"`
	}
	if err := apiRequest(http.MethodDelete, historyPath(args[0]), nil, &result); err != nil {
		return err
	}
	fmt.Printf("Styles cleared for %s.\n", result.Scope)
	return nil
}
