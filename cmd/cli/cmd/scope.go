package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var scopeDomainWide string

var scopeCmd = &cobra.Command{
	Use:   "scope [page-id]",
	Short: "Show or switch domain-wide styling",
	Long: `Show whether styles apply to single pages or to whole sites.

With --domain-wide=on|off and a page id, switch modes. The page's styles
move to the newly active scope, replacing any stored there.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScope,
}

func init() {
	rootCmd.AddCommand(scopeCmd)

	scopeCmd.Flags().StringVar(&scopeDomainWide, "domain-wide", "", "Switch domain-wide mode (on, off)")
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q: expected on or off", s)
	}
}

func runScope(cmd *cobra.Command, args []string) error {
	var pageID string
	if len(args) > 0 {
		pageID = args[0]
	}

	if scopeDomainWide != "" {
		enabled, err := parseOnOff(scopeDomainWide)
		if err != nil {
			return err
		}
		if pageID == "" {
			return fmt.Errorf("a page id is required to switch modes")
		}

		var result ScopeResponse
		body := map[string]any{"page_id": pageID, "domain_wide": enabled}
		if err := apiRequest(http.MethodPut, "/api/v1/scope", body, &result); err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(result)
		}
		fmt.Printf("Domain-wide styling %s. Active scope: %s\n", onOff(result.DomainWide), result.Scope)
		return nil
	}

	path := "/api/v1/scope"
	if pageID != "" {
		path += "?page_id=" + url.QueryEscape(pageID)
	}

	var result ScopeResponse
	if err := apiRequest(http.MethodGet, path, nil, &result); err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Printf("Domain-wide: %s\n", onOff(result.DomainWide))
	if result.Scope != "" {
		fmt.Printf("Scope:       %s\n", result.Scope)
	}
	return nil
}
