package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	usageDate string
	usageYes  bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "View model usage and spend",
	Long:  `View request counts, token totals and estimated spend per day and in total.`,
}

var usageTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show usage for today, or for --date",
	Args:  cobra.NoArgs,
	RunE:  runUsageToday,
}

var usageDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "List usage per day, newest first",
	Args:  cobra.NoArgs,
	RunE:  runUsageDays,
}

var usageTotalCmd = &cobra.Command{
	Use:   "total",
	Short: "Show all-time usage",
	Args:  cobra.NoArgs,
	RunE:  runUsageTotal,
}

var usageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all usage data",
	Args:  cobra.NoArgs,
	RunE:  runUsageClear,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageTodayCmd)
	usageCmd.AddCommand(usageDaysCmd)
	usageCmd.AddCommand(usageTotalCmd)
	usageCmd.AddCommand(usageClearCmd)

	usageTodayCmd.Flags().StringVarP(&usageDate, "date", "d", "", "Date (YYYY-MM-DD)")
	usageClearCmd.Flags().BoolVarP(&usageYes, "yes", "y", false, "Confirm deletion")
}

func runUsageToday(cmd *cobra.Command, args []string) error {
	path := "/api/v1/usage/daily"
	if usageDate != "" {
		path += "?date=" + url.QueryEscape(usageDate)
	}

	var result UsageResponse
	if err := apiRequest(http.MethodGet, path, nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Printf("Usage for %s\n", result.Date)
	fmt.Println("====================")
	printLedgerEntry(result.Entry, result.ModelNames)
	return nil
}

func runUsageTotal(cmd *cobra.Command, args []string) error {
	var result UsageResponse
	if err := apiRequest(http.MethodGet, "/api/v1/usage/total", nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println("All-time usage")
	fmt.Println("==============")
	printLedgerEntry(result.Entry, result.ModelNames)
	return nil
}

func printLedgerEntry(entry LedgerEntry, names map[string]string) {
	fmt.Printf("Requests:   %d\n", entry.Requests)
	fmt.Printf("Total cost: $%.4f\n", entry.TotalCost)
	if len(entry.Models) == 0 {
		return
	}

	ids := make([]string, 0, len(entry.Models))
	for id := range entry.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tREQUESTS\tINPUT\tOUTPUT\tCOST")
	fmt.Fprintln(w, "-----\t--------\t-----\t------\t----")
	for _, id := range ids {
		m := entry.Models[id]
		name := id
		if n, ok := names[id]; ok && n != "" {
			name = n
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\n", name, m.Requests, m.Tokens.Input, m.Tokens.Output, m.Cost)
	}
	w.Flush()
}

func runUsageDays(cmd *cobra.Command, args []string) error {
	var result struct {
		Days  []DailyUsage `json:"days"`
		Count int          `json:"count"`
	}
	if err := apiRequest(http.MethodGet, "/api/v1/usage/days", nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Days) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tREQUESTS\tCOST")
	fmt.Fprintln(w, "----\t--------\t----")
	var total float64
	for _, d := range result.Days {
		fmt.Fprintf(w, "%s\t%d\t$%.4f\n", d.Date, d.Entry.Requests, d.Entry.TotalCost)
		total += d.Entry.TotalCost
	}
	w.Flush()

	fmt.Printf("\nTotal: %d days, $%.4f\n", result.Count, total)
	return nil
}

func runUsageClear(cmd *cobra.Command, args []string) error {
	if err := confirm(usageYes, "delete all usage data"); err != nil {
		return err
	}
	if err := apiRequest(http.MethodDelete, "/api/v1/usage", nil, nil); err != nil {
		return err
	}
	fmt.Println("Usage data cleared.")
	return nil
}
