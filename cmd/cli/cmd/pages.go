package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var openHTMLFile string

var openCmd = &cobra.Command{
	Use:   "open [url]",
	Short: "Open a page",
	Long: `Open a page on the server. The page is fetched from its URL unless
--file supplies the HTML. Stored styles for the page are applied on open.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List open pages",
	Args:  cobra.NoArgs,
	RunE:  runPages,
}

var closeCmd = &cobra.Command{
	Use:   "close [page-id]",
	Short: "Close a page and release its uploaded snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var htmlCmd = &cobra.Command{
	Use:   "html [page-id]",
	Short: "Print the current HTML of a page, including applied styles",
	Args:  cobra.ExactArgs(1),
	RunE:  runHTML,
}

var applyCmd = &cobra.Command{
	Use:   "apply [page-id] [request...]",
	Short: "Restyle a page from a natural-language request",
	Long: `Send a styling request for a page, for example:

  pagemagic-cli apply 3f2a... make the background dark and the text larger

The generated CSS is added as a new layer to the page's style history.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(htmlCmd)
	rootCmd.AddCommand(applyCmd)

	openCmd.Flags().StringVarP(&openHTMLFile, "file", "f", "", "Read the page HTML from a file instead of fetching the URL")
}

func runOpen(cmd *cobra.Command, args []string) error {
	body := map[string]string{"url": args[0]}
	if openHTMLFile != "" {
		data, err := os.ReadFile(openHTMLFile)
		if err != nil {
			return fmt.Errorf("failed to read HTML file: %w", err)
		}
		body["html"] = string(data)
	}

	var page PageInfo
	if err := apiRequest(http.MethodPost, "/api/v1/pages", body, &page); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(page)
	}

	fmt.Println("Page opened!")
	fmt.Println()
	printPage(page)
	return nil
}

func printPage(page PageInfo) {
	fmt.Printf("Page ID:     %s\n", page.ID)
	fmt.Printf("URL:         %s\n", page.URL)
	if page.Title != "" {
		fmt.Printf("Title:       %s\n", page.Title)
	}
	fmt.Printf("Scope:       %s\n", page.Scope)
	fmt.Printf("Domain-wide: %s\n", onOff(page.DomainWide))
	fmt.Printf("Styles:      %d bytes applied\n", page.StyleBytes)
}

func runPages(cmd *cobra.Command, args []string) error {
	var result struct {
		Pages []PageInfo `json:"pages"`
		Count int        `json:"count"`
	}
	if err := apiRequest(http.MethodGet, "/api/v1/pages", nil, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Pages) == 0 {
		fmt.Println("No open pages.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSCOPE\tSTYLES\tCHANGED")
	fmt.Fprintln(w, "--\t-----\t-----\t------\t-------")
	for _, p := range result.Pages {
		changed := ""
		if p.HasChanges {
			changed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dB\t%s\n",
			p.ID,
			truncateString(p.Title, 30),
			p.Scope,
			p.StyleBytes,
			changed,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d pages\n", result.Count)
	return nil
}

func runClose(cmd *cobra.Command, args []string) error {
	if err := apiRequest(http.MethodDelete, "/api/v1/pages/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Printf("Page %s closed.\n", args[0])
	return nil
}

func runHTML(cmd *cobra.Command, args []string) error {
	var html []byte
	if err := apiRequest(http.MethodGet, "/api/v1/pages/"+args[0]+"/html", nil, &html); err != nil {
		return err
	}
	fmt.Print(string(html))
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	pageID := args[0]
	prompt := strings.Join(args[1:], " ")

	var result GenerationResult
	if err := apiRequest(http.MethodPost, "/api/v1/pages/"+pageID+"/generate", map[string]string{"prompt": prompt}, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println("Styles applied!")
	fmt.Println()
	fmt.Printf("Entry:   %s\n", result.Entry.ID)
	fmt.Printf("Scope:   %s\n", result.Scope)
	fmt.Printf("Model:   %s\n", result.Model)
	fmt.Printf("Tokens:  %d in / %d out\n", result.Usage.InputTokens, result.Usage.OutputTokens)
	fmt.Printf("Cost:    $%.4f\n", result.Cost)
	if result.Retried {
		fmt.Println("Note:    the page was uploaded again after its snapshot expired")
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Println()
	fmt.Println(result.Entry.CSS)
	return nil
}
